package handler

import (
	"context"
	"errors"
	"time"

	"github.com/Georgesa98/UrlShortner-sub000/internal/app/model"
	"github.com/Georgesa98/UrlShortner-sub000/internal/app/repository"
	"github.com/Georgesa98/UrlShortner-sub000/internal/app/service"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// URLDeps groups dependencies required by URL management handlers.
type URLDeps struct {
	Logger       *zap.Logger
	UrlService   service.UrlService
	MaxBatchSize int
}

// URLHandler implements the shortening and management endpoints.
type URLHandler struct {
	logger       *zap.Logger
	urlService   service.UrlService
	maxBatchSize int
}

// NewURLHandler creates a URL handler with the provided dependencies.
func NewURLHandler(deps URLDeps) *URLHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBatch := deps.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = 50
	}
	return &URLHandler{
		logger:       logger,
		urlService:   deps.UrlService,
		maxBatchSize: maxBatch,
	}
}

// Register wires URL routes onto the provided router.
func (h *URLHandler) Register(router fiber.Router) {
	urls := router.Group("/url")
	{
		urls.Post("/shorten", h.Shorten)
		urls.Post("/batch-shorten", h.BatchShorten)
		urls.Get("/urls", h.ListURLs)
		urls.Get("/:short_url", h.GetURL)
		urls.Patch("/:short_url", h.UpdateURL)
		urls.Delete("/:short_url", h.DeleteURL)
	}
}

// ShortenRequest represents the request body for shortening a URL.
type ShortenRequest struct {
	LongURL    string     `json:"long_url" validate:"required,url"`
	ShortURL   string     `json:"short_url,omitempty" validate:"omitempty,alphanum,min=4,max=128"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
	UserID     *uint64    `json:"user_id,omitempty"`
}

// URLResponse represents a short URL in API responses.
type URLResponse struct {
	ShortURL      string     `json:"short_url"`
	LongURL       string     `json:"long_url"`
	IsCustomAlias bool       `json:"is_custom_alias"`
	Visits        int64      `json:"visits"`
	UniqueVisits  int64      `json:"unique_visits"`
	State         string     `json:"state"`
	ExpiryDate    *time.Time `json:"expiry_date,omitempty"`
	LastAccessed  *time.Time `json:"last_accessed,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toURLResponse(u *model.Url) URLResponse {
	state := string(model.StateActive)
	if u.Status != nil {
		state = string(u.Status.State)
	}
	return URLResponse{
		ShortURL:      u.ShortURL,
		LongURL:       u.LongURL,
		IsCustomAlias: u.IsCustomAlias,
		Visits:        u.Visits,
		UniqueVisits:  u.UniqueVisits,
		State:         state,
		ExpiryDate:    u.ExpiryDate,
		LastAccessed:  u.LastAccessed,
		CreatedAt:     u.CreatedAt,
	}
}

// Shorten handles POST /url/shorten
func (h *URLHandler) Shorten(c *fiber.Ctx) error {
	var req ShortenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if req.LongURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "long_url is required",
		})
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	u, err := h.urlService.CreateURL(ctx, service.CreateURLInput{
		LongURL:    req.LongURL,
		ShortURL:   req.ShortURL,
		ExpiryDate: req.ExpiryDate,
		UserID:     req.UserID,
	})
	if err != nil {
		return h.createError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(toURLResponse(u))
}

// BatchShortenRequest represents the request body for batch shortening.
type BatchShortenRequest struct {
	URLs []ShortenRequest `json:"urls" validate:"required,min=1,max=50,dive"`
}

// BatchShorten handles POST /url/batch-shorten
func (h *URLHandler) BatchShorten(c *fiber.Ctx) error {
	var req BatchShortenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if len(req.URLs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "urls is required",
		})
	}
	if len(req.URLs) > h.maxBatchSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "batch size exceeds limit",
			"limit": h.maxBatchSize,
		})
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	inputs := make([]service.CreateURLInput, len(req.URLs))
	for i, r := range req.URLs {
		inputs[i] = service.CreateURLInput{
			LongURL:    r.LongURL,
			ShortURL:   r.ShortURL,
			ExpiryDate: r.ExpiryDate,
			UserID:     r.UserID,
		}
	}

	created, err := h.urlService.BatchCreate(ctx, inputs)
	if err != nil {
		return h.createError(c, err)
	}

	response := make([]URLResponse, len(created))
	for i := range created {
		response[i] = toURLResponse(&created[i])
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"urls":  response,
		"count": len(response),
	})
}

// ListURLs handles GET /url/urls
func (h *URLHandler) ListURLs(c *fiber.Ctx) error {
	limit := 20
	page := 1

	if parsed := c.QueryInt("limit"); parsed > 0 && parsed <= 100 {
		limit = parsed
	}
	if parsed := c.QueryInt("page"); parsed > 0 {
		page = parsed
	}

	var state model.UrlState
	if raw := c.Query("state"); raw != "" {
		state = model.UrlState(raw)
	}

	var userID *uint64
	if parsed := c.QueryInt("user_id"); parsed > 0 {
		id := uint64(parsed)
		userID = &id
	}

	sort := c.Query("sort")
	if sort != "visits" {
		sort = "created"
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := h.urlService.ListURLs(ctx, repository.ListQuery{
		Limit:  limit,
		Page:   page,
		State:  state,
		UserID: userID,
		Sort:   sort,
	})
	if err != nil {
		h.logger.Error("failed to list urls", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list urls",
		})
	}

	response := make([]URLResponse, len(result.Urls))
	for i := range result.Urls {
		response[i] = toURLResponse(&result.Urls[i])
	}
	return c.JSON(fiber.Map{
		"urls":        response,
		"total":       result.Total,
		"page":        result.Page,
		"limit":       result.Limit,
		"total_pages": result.TotalPages,
	})
}

// GetURL handles GET /url/:short_url
func (h *URLHandler) GetURL(c *fiber.Ctx) error {
	shortURL := c.Params("short_url")
	if shortURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "short_url is required",
		})
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	u, err := h.urlService.GetURL(ctx, shortURL)
	if err != nil {
		if errors.Is(err, repository.ErrUrlNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "url not found",
			})
		}
		h.logger.Error("failed to get url", zap.Error(err), zap.String("short_url", shortURL))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to get url",
		})
	}

	return c.JSON(toURLResponse(u))
}

// UpdateURLRequest represents the request body for updating a URL.
type UpdateURLRequest struct {
	LongURL    *string    `json:"long_url,omitempty" validate:"omitempty,url"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
}

// UpdateURL handles PATCH /url/:short_url
func (h *URLHandler) UpdateURL(c *fiber.Ctx) error {
	shortURL := c.Params("short_url")
	if shortURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "short_url is required",
		})
	}

	var req UpdateURLRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	u, err := h.urlService.UpdateURL(ctx, shortURL, service.UpdateURLInput{
		LongURL:    req.LongURL,
		ExpiryDate: req.ExpiryDate,
	})
	if err != nil {
		if errors.Is(err, repository.ErrUrlNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "url not found",
			})
		}
		return h.createError(c, err)
	}

	return c.JSON(toURLResponse(u))
}

// DeleteURL handles DELETE /url/:short_url
func (h *URLHandler) DeleteURL(c *fiber.Ctx) error {
	shortURL := c.Params("short_url")
	if shortURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "short_url is required",
		})
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := h.urlService.DeleteURL(ctx, shortURL); err != nil {
		if errors.Is(err, repository.ErrUrlNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "url not found",
			})
		}
		h.logger.Error("failed to delete url", zap.Error(err), zap.String("short_url", shortURL))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to delete url",
		})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// createError maps service validation failures onto client statuses.
func (h *URLHandler) createError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidLongURL),
		errors.Is(err, service.ErrInvalidAlias),
		errors.Is(err, service.ErrExpiryInPast):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, repository.ErrShortURLTaken):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "short url already taken",
		})
	case errors.Is(err, service.ErrUserQuotaExceeded):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "url quota for user exceeded",
		})
	default:
		h.logger.Error("failed to create url", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create url",
		})
	}
}

package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Georgesa98/UrlShortner-sub000/internal/app/repository"
	"github.com/Georgesa98/UrlShortner-sub000/internal/app/service"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// RedirectDeps groups dependencies required by redirect handlers.
type RedirectDeps struct {
	Logger   *zap.Logger
	Redirect *service.RedirectService
}

// RedirectHandler serves the hot redirect path.
type RedirectHandler struct {
	logger   *zap.Logger
	redirect *service.RedirectService
}

// NewRedirectHandler creates a redirect handler with the provided dependencies.
func NewRedirectHandler(deps RedirectDeps) *RedirectHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectHandler{
		logger:   logger,
		redirect: deps.Redirect,
	}
}

// Register wires redirect routes onto the provided router.
func (h *RedirectHandler) Register(router fiber.Router) {
	router.Get("/", h.Health)
	router.Get("/health", h.Health)
	router.Get("/redirect/:code", h.Resolve)
}

// Health is a simple root endpoint so we know the service is running.
func (h *RedirectHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "url-shortener",
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Resolve handles GET /redirect/:code.
func (h *RedirectHandler) Resolve(c *fiber.Ctx) error {
	code := c.Params("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing short code",
		})
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	in := service.RequestInput{
		IP:             clientIP(c),
		UserAgent:      c.Get(fiber.HeaderUserAgent),
		AcceptLanguage: c.Get(fiber.HeaderAcceptLanguage),
		Referrer:       c.Get(fiber.HeaderReferer),
	}

	target, err := h.redirect.Resolve(ctx, code, in)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBurstLimited):
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests",
			})
		case errors.Is(err, repository.ErrUrlNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "short url not found",
			})
		case errors.Is(err, service.ErrUrlGone):
			return c.Status(fiber.StatusGone).JSON(fiber.Map{
				"error": "url no longer available",
			})
		default:
			h.logger.Error("failed to resolve redirect", zap.Error(err), zap.String("code", code))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "internal server error",
			})
		}
	}

	return c.Redirect(target, fiber.StatusFound)
}

// clientIP prefers the first X-Forwarded-For hop so the burst and fraud
// layers see the real client behind the load balancer.
func clientIP(c *fiber.Ctx) string {
	if xff := c.Get(fiber.HeaderXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	return c.IP()
}

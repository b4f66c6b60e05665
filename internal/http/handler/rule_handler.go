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

// RuleDeps groups dependencies required by redirection rule handlers.
type RuleDeps struct {
	Logger      *zap.Logger
	RuleService service.RuleService
}

// RuleHandler implements the redirection rule management endpoints.
type RuleHandler struct {
	logger      *zap.Logger
	ruleService service.RuleService
}

// NewRuleHandler creates a rule handler with the provided dependencies.
func NewRuleHandler(deps RuleDeps) *RuleHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RuleHandler{
		logger:      logger,
		ruleService: deps.RuleService,
	}
}

// Register wires rule routes onto the provided router.
func (h *RuleHandler) Register(router fiber.Router) {
	rules := router.Group("/url/redirection/rules")
	{
		rules.Post("/", h.CreateRule)
		rules.Get("/", h.ListRules)
		rules.Post("/test", h.TestRule)
		rules.Post("/reorder", h.ReorderRules)
		rules.Get("/:id", h.GetRule)
		rules.Put("/:id", h.ReplaceRule)
		rules.Patch("/:id", h.UpdateRule)
		rules.Delete("/:id", h.DeleteRule)
	}
}

// RuleRequest represents the request body for creating a rule.
type RuleRequest struct {
	UrlID      uint64             `json:"url_id" validate:"required"`
	Name       string             `json:"name" validate:"required,max=255"`
	Conditions model.ConditionSet `json:"conditions" validate:"required"`
	TargetURL  string             `json:"target_url" validate:"required,url"`
	Priority   int                `json:"priority"`
	IsActive   *bool              `json:"is_active,omitempty"`
}

// RuleResponse represents a redirection rule in API responses.
type RuleResponse struct {
	ID         uint64             `json:"id"`
	UrlID      uint64             `json:"url_id"`
	Name       string             `json:"name"`
	Conditions model.ConditionSet `json:"conditions"`
	TargetURL  string             `json:"target_url"`
	Priority   int                `json:"priority"`
	IsActive   bool               `json:"is_active"`
	CreatedAt  time.Time          `json:"created_at"`
}

func toRuleResponse(r *model.RedirectionRule) RuleResponse {
	return RuleResponse{
		ID:         r.ID,
		UrlID:      r.UrlID,
		Name:       r.Name,
		Conditions: r.Conditions,
		TargetURL:  r.TargetURL,
		Priority:   r.Priority,
		IsActive:   r.IsActive,
		CreatedAt:  r.CreatedAt,
	}
}

// CreateRule handles POST /url/redirection/rules
func (h *RuleHandler) CreateRule(c *fiber.Ctx) error {
	var req RuleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if req.UrlID == 0 || req.Name == "" || req.TargetURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "url_id, name and target_url are required",
		})
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	rule, err := h.ruleService.CreateRule(h.ctx(c), service.CreateRuleInput{
		UrlID:      req.UrlID,
		Name:       req.Name,
		Conditions: req.Conditions,
		TargetURL:  req.TargetURL,
		Priority:   req.Priority,
		IsActive:   active,
	})
	if err != nil {
		return h.ruleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(toRuleResponse(rule))
}

// ListRules handles GET /url/redirection/rules?url_id=N
func (h *RuleHandler) ListRules(c *fiber.Ctx) error {
	urlID := c.QueryInt("url_id")
	if urlID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "url_id query parameter is required",
		})
	}

	limit := 50
	offset := 0
	if parsed := c.QueryInt("limit"); parsed > 0 && parsed <= 100 {
		limit = parsed
	}
	if parsed := c.QueryInt("offset"); parsed >= 0 {
		offset = parsed
	}

	rules, err := h.ruleService.ListRules(h.ctx(c), uint64(urlID), limit, offset)
	if err != nil {
		h.logger.Error("failed to list rules", zap.Error(err), zap.Int("url_id", urlID))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list rules",
		})
	}

	response := make([]RuleResponse, len(rules))
	for i := range rules {
		response[i] = toRuleResponse(&rules[i])
	}
	return c.JSON(fiber.Map{
		"rules": response,
		"count": len(response),
	})
}

// GetRule handles GET /url/redirection/rules/:id
func (h *RuleHandler) GetRule(c *fiber.Ctx) error {
	id, ok := h.ruleID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid rule id",
		})
	}

	rule, err := h.ruleService.GetRule(h.ctx(c), id)
	if err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "rule not found",
			})
		}
		h.logger.Error("failed to get rule", zap.Error(err), zap.Uint64("id", id))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to get rule",
		})
	}

	return c.JSON(toRuleResponse(rule))
}

// UpdateRuleRequest represents the request body for updating a rule.
type UpdateRuleRequest struct {
	Name       *string             `json:"name,omitempty" validate:"omitempty,max=255"`
	Conditions *model.ConditionSet `json:"conditions,omitempty"`
	TargetURL  *string             `json:"target_url,omitempty" validate:"omitempty,url"`
	Priority   *int                `json:"priority,omitempty"`
	IsActive   *bool               `json:"is_active,omitempty"`
}

// UpdateRule handles PATCH /url/redirection/rules/:id
func (h *RuleHandler) UpdateRule(c *fiber.Ctx) error {
	id, ok := h.ruleID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid rule id",
		})
	}

	var req UpdateRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	rule, err := h.ruleService.UpdateRule(h.ctx(c), id, service.UpdateRuleInput{
		Name:       req.Name,
		Conditions: req.Conditions,
		TargetURL:  req.TargetURL,
		Priority:   req.Priority,
		IsActive:   req.IsActive,
	})
	if err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "rule not found",
			})
		}
		return h.ruleError(c, err)
	}

	return c.JSON(toRuleResponse(rule))
}

// ReplaceRuleRequest represents the request body for replacing a rule.
// All fields are written; unlike PATCH there are no partial updates.
type ReplaceRuleRequest struct {
	Name       string             `json:"name" validate:"required,max=255"`
	Conditions model.ConditionSet `json:"conditions"`
	TargetURL  string             `json:"target_url" validate:"required,url"`
	Priority   int                `json:"priority"`
	IsActive   bool               `json:"is_active"`
}

// ReplaceRule handles PUT /url/redirection/rules/:id
func (h *RuleHandler) ReplaceRule(c *fiber.Ctx) error {
	id, ok := h.ruleID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid rule id",
		})
	}

	var req ReplaceRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if req.Name == "" || req.TargetURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "name and target_url are required",
		})
	}

	conditions := req.Conditions
	if conditions == nil {
		conditions = model.ConditionSet{}
	}

	rule, err := h.ruleService.UpdateRule(h.ctx(c), id, service.UpdateRuleInput{
		Name:       &req.Name,
		Conditions: &conditions,
		TargetURL:  &req.TargetURL,
		Priority:   &req.Priority,
		IsActive:   &req.IsActive,
	})
	if err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "rule not found",
			})
		}
		return h.ruleError(c, err)
	}

	return c.JSON(toRuleResponse(rule))
}

// DeleteRule handles DELETE /url/redirection/rules/:id
func (h *RuleHandler) DeleteRule(c *fiber.Ctx) error {
	id, ok := h.ruleID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid rule id",
		})
	}

	if err := h.ruleService.DeleteRule(h.ctx(c), id); err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "rule not found",
			})
		}
		h.logger.Error("failed to delete rule", zap.Error(err), zap.Uint64("id", id))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to delete rule",
		})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ReorderRules handles POST /url/redirection/rules/reorder
func (h *RuleHandler) ReorderRules(c *fiber.Ctx) error {
	var req struct {
		UrlID uint64 `json:"url_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.UrlID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "url_id is required",
		})
	}

	if err := h.ruleService.ReorderRules(h.ctx(c), req.UrlID); err != nil {
		h.logger.Error("failed to reorder rules", zap.Error(err), zap.Uint64("url_id", req.UrlID))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to reorder rules",
		})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// TestRuleRequest carries a synthetic request context for dry-run
// evaluation against a URL's rule chain.
type TestRuleRequest struct {
	UrlID    uint64 `json:"url_id" validate:"required"`
	Country  string `json:"country,omitempty"`
	Device   string `json:"device,omitempty"`
	Browser  string `json:"browser,omitempty"`
	OS       string `json:"os,omitempty"`
	Language string `json:"language,omitempty"`
	Mobile   bool   `json:"mobile,omitempty"`
	Referrer string `json:"referrer,omitempty"`
	Time     string `json:"time,omitempty"` // HH:MM, defaults to now
}

// TestRule handles POST /url/redirection/rules/test
func (h *RuleHandler) TestRule(c *fiber.Ctx) error {
	var req TestRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if req.UrlID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "url_id is required",
		})
	}

	now := time.Now().UTC()
	if req.Time != "" {
		clock, err := time.Parse("15:04", req.Time)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "time must be HH:MM",
			})
		}
		now = time.Date(now.Year(), now.Month(), now.Day(),
			clock.Hour(), clock.Minute(), 0, 0, time.UTC)
	}

	reqCtx := model.RequestContext{
		Country:    req.Country,
		DeviceType: req.Device,
		Browser:    req.Browser,
		OS:         req.OS,
		Language:   req.Language,
		Mobile:     req.Mobile,
		Referrer:   req.Referrer,
		Now:        now,
	}

	rule, target, err := h.ruleService.TestRule(h.ctx(c), req.UrlID, &reqCtx)
	if err != nil {
		if errors.Is(err, repository.ErrUrlNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "url not found",
			})
		}
		h.logger.Error("failed to test rules", zap.Error(err), zap.Uint64("url_id", req.UrlID))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to test rules",
		})
	}

	body := fiber.Map{
		"matched":    rule != nil,
		"target_url": target,
	}
	if rule != nil {
		body["rule"] = toRuleResponse(rule)
	}
	return c.JSON(body)
}

func (h *RuleHandler) ruleID(c *fiber.Ctx) (uint64, bool) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, false
	}
	return uint64(id), true
}

func (h *RuleHandler) ctx(c *fiber.Ctx) context.Context {
	if ctx := c.UserContext(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// ruleError maps rule validation failures onto client statuses.
func (h *RuleHandler) ruleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, repository.ErrUrlNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "url not found",
		})
	case errors.Is(err, service.ErrTargetEqualsSource):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "target_url must differ from the long url",
		})
	case errors.Is(err, repository.ErrPriorityTaken):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "priority already in use for this url",
		})
	default:
		h.logger.Error("rule operation failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "rule operation failed",
		})
	}
}

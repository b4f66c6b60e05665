package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Georgesa98/UrlShortner-sub000/internal/app/model"
	"github.com/Georgesa98/UrlShortner-sub000/internal/app/repository"
	"github.com/Georgesa98/UrlShortner-sub000/internal/app/service"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRuleService struct {
	createFn func(ctx context.Context, input service.CreateRuleInput) (*model.RedirectionRule, error)
	getFn    func(ctx context.Context, id uint64) (*model.RedirectionRule, error)
	updateFn func(ctx context.Context, id uint64, input service.UpdateRuleInput) (*model.RedirectionRule, error)
	deleteFn func(ctx context.Context, id uint64) error
}

func (m *mockRuleService) CreateRule(ctx context.Context, input service.CreateRuleInput) (*model.RedirectionRule, error) {
	if m.createFn != nil {
		return m.createFn(ctx, input)
	}
	return &model.RedirectionRule{ID: 1, UrlID: input.UrlID, Name: input.Name}, nil
}

func (m *mockRuleService) GetRule(ctx context.Context, id uint64) (*model.RedirectionRule, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, repository.ErrRuleNotFound
}

func (m *mockRuleService) ListRules(ctx context.Context, urlID uint64, limit, offset int) ([]model.RedirectionRule, error) {
	return nil, nil
}

func (m *mockRuleService) UpdateRule(ctx context.Context, id uint64, input service.UpdateRuleInput) (*model.RedirectionRule, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, input)
	}
	return nil, repository.ErrRuleNotFound
}

func (m *mockRuleService) DeleteRule(ctx context.Context, id uint64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockRuleService) ReorderRules(ctx context.Context, urlID uint64) error {
	return nil
}

func (m *mockRuleService) TestRule(ctx context.Context, urlID uint64, reqCtx *model.RequestContext) (*model.RedirectionRule, string, error) {
	return nil, "", repository.ErrUrlNotFound
}

func newTestRuleApp(svc service.RuleService) *fiber.App {
	app := fiber.New()
	NewRuleHandler(RuleDeps{RuleService: svc}).Register(app)
	return app
}

func TestRuleHandler_ReplaceRuleWritesAllFields(t *testing.T) {
	var got service.UpdateRuleInput
	svc := &mockRuleService{
		updateFn: func(ctx context.Context, id uint64, input service.UpdateRuleInput) (*model.RedirectionRule, error) {
			got = input
			return &model.RedirectionRule{
				ID:         id,
				UrlID:      7,
				Name:       *input.Name,
				Conditions: *input.Conditions,
				TargetURL:  *input.TargetURL,
				Priority:   *input.Priority,
				IsActive:   *input.IsActive,
			}, nil
		},
	}
	app := newTestRuleApp(svc)

	payload := `{
		"name": "germany mobile",
		"conditions": {"country": ["DE"]},
		"target_url": "https://example.de/m",
		"priority": 3,
		"is_active": true
	}`
	req := httptest.NewRequest("PUT", "/url/redirection/rules/5", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.NotNil(t, got.Name)
	require.NotNil(t, got.Conditions)
	require.NotNil(t, got.TargetURL)
	require.NotNil(t, got.Priority)
	require.NotNil(t, got.IsActive)
	assert.Equal(t, "germany mobile", *got.Name)
	assert.Equal(t, "https://example.de/m", *got.TargetURL)
	assert.Equal(t, 3, *got.Priority)
	assert.True(t, *got.IsActive)

	var body RuleResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, uint64(5), body.ID)
	assert.Equal(t, "germany mobile", body.Name)
}

func TestRuleHandler_ReplaceRuleClearsConditionsWhenOmitted(t *testing.T) {
	var got service.UpdateRuleInput
	svc := &mockRuleService{
		updateFn: func(ctx context.Context, id uint64, input service.UpdateRuleInput) (*model.RedirectionRule, error) {
			got = input
			return &model.RedirectionRule{ID: id, Name: *input.Name, TargetURL: *input.TargetURL}, nil
		},
	}
	app := newTestRuleApp(svc)

	req := httptest.NewRequest("PUT", "/url/redirection/rules/5",
		strings.NewReader(`{"name": "catch all", "target_url": "https://example.com/all"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.NotNil(t, got.Conditions)
	assert.Empty(t, *got.Conditions)
	require.NotNil(t, got.IsActive)
	assert.False(t, *got.IsActive)
}

func TestRuleHandler_ReplaceRuleRequiresNameAndTarget(t *testing.T) {
	app := newTestRuleApp(&mockRuleService{})

	req := httptest.NewRequest("PUT", "/url/redirection/rules/5",
		strings.NewReader(`{"priority": 1}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRuleHandler_ReplaceRuleNotFound(t *testing.T) {
	app := newTestRuleApp(&mockRuleService{})

	req := httptest.NewRequest("PUT", "/url/redirection/rules/99",
		strings.NewReader(`{"name": "x", "target_url": "https://example.com/x"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

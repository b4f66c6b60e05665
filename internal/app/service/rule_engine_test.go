package service

import (
	"context"
	"testing"
	"time"

	"github.com/Georgesa98/UrlShortner-sub000/internal/app/model"
	"github.com/Georgesa98/UrlShortner-sub000/internal/app/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRuleRepository struct {
	createFn    func(ctx context.Context, rule *model.RedirectionRule) error
	getByIDFn   func(ctx context.Context, id uint64) (*model.RedirectionRule, error)
	listByURLFn func(ctx context.Context, urlID uint64, activeOnly bool) ([]model.RedirectionRule, error)
	listFn      func(ctx context.Context, limit, offset int) ([]model.RedirectionRule, error)
	updateFn    func(ctx context.Context, rule *model.RedirectionRule) error
	deleteFn    func(ctx context.Context, id uint64) error
	priorityFn  func(ctx context.Context, urlID uint64, priority int, excludeID uint64) (bool, error)
	reorderFn   func(ctx context.Context, urlID uint64, start int) error
}

func (m *mockRuleRepository) Create(ctx context.Context, rule *model.RedirectionRule) error {
	if m.createFn != nil {
		return m.createFn(ctx, rule)
	}
	return nil
}

func (m *mockRuleRepository) GetByID(ctx context.Context, id uint64) (*model.RedirectionRule, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrRuleNotFound
}

func (m *mockRuleRepository) ListByURL(ctx context.Context, urlID uint64, activeOnly bool) ([]model.RedirectionRule, error) {
	if m.listByURLFn != nil {
		return m.listByURLFn(ctx, urlID, activeOnly)
	}
	return nil, nil
}

func (m *mockRuleRepository) List(ctx context.Context, limit, offset int) ([]model.RedirectionRule, error) {
	if m.listFn != nil {
		return m.listFn(ctx, limit, offset)
	}
	return nil, nil
}

func (m *mockRuleRepository) Update(ctx context.Context, rule *model.RedirectionRule) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, rule)
	}
	return nil
}

func (m *mockRuleRepository) Delete(ctx context.Context, id uint64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockRuleRepository) PriorityExists(ctx context.Context, urlID uint64, priority int, excludeID uint64) (bool, error) {
	if m.priorityFn != nil {
		return m.priorityFn(ctx, urlID, priority, excludeID)
	}
	return false, nil
}

func (m *mockRuleRepository) ReorderPriorities(ctx context.Context, urlID uint64, start int) error {
	if m.reorderFn != nil {
		return m.reorderFn(ctx, urlID, start)
	}
	return nil
}

func geoRules() []model.RedirectionRule {
	return []model.RedirectionRule{
		{
			ID:         1,
			UrlID:      7,
			Priority:   1,
			TargetURL:  "https://example.de",
			Conditions: model.ConditionSet{model.CountryCondition{"DE"}},
			IsActive:   true,
		},
		{
			ID:         2,
			UrlID:      7,
			Priority:   2,
			TargetURL:  "https://m.example.com",
			Conditions: model.ConditionSet{model.MobileCondition(true)},
			IsActive:   true,
		},
	}
}

func TestRuleEngine_FirstMatchWinsByPriority(t *testing.T) {
	repo := &mockRuleRepository{
		listByURLFn: func(ctx context.Context, urlID uint64, activeOnly bool) ([]model.RedirectionRule, error) {
			require.True(t, activeOnly)
			return geoRules(), nil
		},
	}
	engine := NewRuleEngine(repo, nil, 0, nil)

	// German mobile visitor matches both rules; priority 1 wins.
	rule := engine.Evaluate(context.Background(), 7, &model.RequestContext{Country: "DE", Mobile: true})
	require.NotNil(t, rule)
	assert.EqualValues(t, 1, rule.ID)

	// Non-German mobile visitor falls through to the mobile rule.
	rule = engine.Evaluate(context.Background(), 7, &model.RequestContext{Country: "US", Mobile: true})
	require.NotNil(t, rule)
	assert.EqualValues(t, 2, rule.ID)
}

func TestRuleEngine_NoMatchReturnsNil(t *testing.T) {
	repo := &mockRuleRepository{
		listByURLFn: func(ctx context.Context, urlID uint64, activeOnly bool) ([]model.RedirectionRule, error) {
			return geoRules(), nil
		},
	}
	engine := NewRuleEngine(repo, nil, 0, nil)

	rule := engine.Evaluate(context.Background(), 7, &model.RequestContext{Country: "US", Mobile: false})
	assert.Nil(t, rule)
}

func TestRuleEngine_RepositoryErrorIsNoMatch(t *testing.T) {
	repo := &mockRuleRepository{
		listByURLFn: func(ctx context.Context, urlID uint64, activeOnly bool) ([]model.RedirectionRule, error) {
			return nil, context.DeadlineExceeded
		},
	}
	engine := NewRuleEngine(repo, nil, 0, nil)

	assert.Nil(t, engine.Evaluate(context.Background(), 7, &model.RequestContext{Country: "DE"}))
}

func TestRuleEngine_CachesRuleSet(t *testing.T) {
	calls := 0
	repo := &mockRuleRepository{
		listByURLFn: func(ctx context.Context, urlID uint64, activeOnly bool) ([]model.RedirectionRule, error) {
			calls++
			return geoRules(), nil
		},
	}
	engine := NewRuleEngine(repo, newTestRedis(t), time.Minute, nil)
	ctx := context.Background()
	reqCtx := &model.RequestContext{Country: "DE"}

	require.NotNil(t, engine.Evaluate(ctx, 7, reqCtx))
	require.NotNil(t, engine.Evaluate(ctx, 7, reqCtx))
	assert.Equal(t, 1, calls, "second evaluation must hit the cache")

	engine.Invalidate(ctx, 7)
	require.NotNil(t, engine.Evaluate(ctx, 7, reqCtx))
	assert.Equal(t, 2, calls, "invalidation must force a reload")
}

func TestRuleService_TestRuleFallsBackToLongURL(t *testing.T) {
	urls := &mockUrlRepository{
		getByIDFn: func(ctx context.Context, id uint64) (*model.Url, error) {
			return &model.Url{ID: id, LongURL: "https://example.com"}, nil
		},
	}
	rules := &mockRuleRepository{
		listByURLFn: func(ctx context.Context, urlID uint64, activeOnly bool) ([]model.RedirectionRule, error) {
			return geoRules(), nil
		},
	}
	svc := NewRuleService(rules, urls, NewRuleEngine(rules, nil, 0, nil))

	rule, target, err := svc.TestRule(context.Background(), 7, &model.RequestContext{Country: "DE"})
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, "https://example.de", target)

	rule, target, err = svc.TestRule(context.Background(), 7, &model.RequestContext{Country: "JP"})
	require.NoError(t, err)
	assert.Nil(t, rule)
	assert.Equal(t, "https://example.com", target)
}

func TestRuleService_CreateRejectsSelfTarget(t *testing.T) {
	urls := &mockUrlRepository{
		getByIDFn: func(ctx context.Context, id uint64) (*model.Url, error) {
			return &model.Url{ID: id, LongURL: "https://example.com"}, nil
		},
	}
	rules := &mockRuleRepository{}
	svc := NewRuleService(rules, urls, NewRuleEngine(rules, nil, 0, nil))

	_, err := svc.CreateRule(context.Background(), CreateRuleInput{
		UrlID:     7,
		Name:      "loop",
		TargetURL: "https://example.com",
	})
	assert.ErrorIs(t, err, ErrTargetEqualsSource)
}

func TestRuleService_CreateRejectsDuplicatePriority(t *testing.T) {
	urls := &mockUrlRepository{
		getByIDFn: func(ctx context.Context, id uint64) (*model.Url, error) {
			return &model.Url{ID: id, LongURL: "https://example.com"}, nil
		},
	}
	rules := &mockRuleRepository{
		priorityFn: func(ctx context.Context, urlID uint64, priority int, excludeID uint64) (bool, error) {
			return true, nil
		},
	}
	svc := NewRuleService(rules, urls, NewRuleEngine(rules, nil, 0, nil))

	_, err := svc.CreateRule(context.Background(), CreateRuleInput{
		UrlID:     7,
		Name:      "geo",
		TargetURL: "https://example.de",
		Priority:  1,
	})
	assert.ErrorIs(t, err, repository.ErrPriorityTaken)
}

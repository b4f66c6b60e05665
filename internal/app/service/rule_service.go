package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Georgesa98/UrlShortner-sub000/internal/app/model"
	"github.com/Georgesa98/UrlShortner-sub000/internal/app/repository"
)

// ErrTargetEqualsSource signals a rule whose target is the URL's own
// long URL. Rejected at configuration time so the redirect path never
// sees it.
var ErrTargetEqualsSource = errors.New("target url cannot be the same as the original url")

// RuleService defines behaviour-level operations on redirection rules.
type RuleService interface {
	CreateRule(ctx context.Context, input CreateRuleInput) (*model.RedirectionRule, error)
	GetRule(ctx context.Context, id uint64) (*model.RedirectionRule, error)
	ListRules(ctx context.Context, urlID uint64, limit, offset int) ([]model.RedirectionRule, error)
	UpdateRule(ctx context.Context, id uint64, input UpdateRuleInput) (*model.RedirectionRule, error)
	DeleteRule(ctx context.Context, id uint64) error
	ReorderRules(ctx context.Context, urlID uint64) error
	TestRule(ctx context.Context, urlID uint64, reqCtx *model.RequestContext) (*model.RedirectionRule, string, error)
}

type ruleService struct {
	rules  repository.RuleRepository
	urls   repository.UrlRepository
	engine *RuleEngine
}

// NewRuleService returns a service implementation backed by the given
// repositories. Writes invalidate the engine's rule cache.
func NewRuleService(rules repository.RuleRepository, urls repository.UrlRepository, engine *RuleEngine) RuleService {
	return &ruleService{rules: rules, urls: urls, engine: engine}
}

// CreateRuleInput captures data required to create a rule.
type CreateRuleInput struct {
	UrlID      uint64
	Name       string
	Conditions model.ConditionSet
	TargetURL  string
	Priority   int
	IsActive   bool
}

// UpdateRuleInput captures fields that can change on an existing rule.
type UpdateRuleInput struct {
	Name       *string
	Conditions *model.ConditionSet
	TargetURL  *string
	Priority   *int
	IsActive   *bool
}

func (s *ruleService) CreateRule(ctx context.Context, input CreateRuleInput) (*model.RedirectionRule, error) {
	url, err := s.urls.GetByID(ctx, input.UrlID)
	if err != nil {
		return nil, fmt.Errorf("load url: %w", err)
	}
	if input.TargetURL == url.LongURL {
		return nil, ErrTargetEqualsSource
	}

	taken, err := s.rules.PriorityExists(ctx, input.UrlID, input.Priority, 0)
	if err != nil {
		return nil, fmt.Errorf("check priority: %w", err)
	}
	if taken {
		return nil, repository.ErrPriorityTaken
	}

	rule := &model.RedirectionRule{
		UrlID:      input.UrlID,
		Name:       input.Name,
		Conditions: input.Conditions,
		TargetURL:  input.TargetURL,
		Priority:   input.Priority,
		IsActive:   input.IsActive,
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, fmt.Errorf("create rule: %w", err)
	}

	s.engine.Invalidate(ctx, input.UrlID)
	return rule, nil
}

func (s *ruleService) GetRule(ctx context.Context, id uint64) (*model.RedirectionRule, error) {
	rule, err := s.rules.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return rule, nil
}

func (s *ruleService) ListRules(ctx context.Context, urlID uint64, limit, offset int) ([]model.RedirectionRule, error) {
	if urlID != 0 {
		rules, err := s.rules.ListByURL(ctx, urlID, false)
		if err != nil {
			return nil, fmt.Errorf("list rules: %w", err)
		}
		return rules, nil
	}

	rules, err := s.rules.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

func (s *ruleService) UpdateRule(ctx context.Context, id uint64, input UpdateRuleInput) (*model.RedirectionRule, error) {
	rule, err := s.rules.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load rule: %w", err)
	}

	if input.Priority != nil && *input.Priority != rule.Priority {
		taken, err := s.rules.PriorityExists(ctx, rule.UrlID, *input.Priority, rule.ID)
		if err != nil {
			return nil, fmt.Errorf("check priority: %w", err)
		}
		if taken {
			return nil, repository.ErrPriorityTaken
		}
		rule.Priority = *input.Priority
	}

	if input.TargetURL != nil {
		url, err := s.urls.GetByID(ctx, rule.UrlID)
		if err != nil {
			return nil, fmt.Errorf("load url: %w", err)
		}
		if *input.TargetURL == url.LongURL {
			return nil, ErrTargetEqualsSource
		}
		rule.TargetURL = *input.TargetURL
	}

	if input.Name != nil {
		rule.Name = *input.Name
	}
	if input.Conditions != nil {
		rule.Conditions = *input.Conditions
	}
	if input.IsActive != nil {
		rule.IsActive = *input.IsActive
	}

	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, fmt.Errorf("update rule: %w", err)
	}

	s.engine.Invalidate(ctx, rule.UrlID)
	return rule, nil
}

func (s *ruleService) DeleteRule(ctx context.Context, id uint64) error {
	rule, err := s.rules.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load rule: %w", err)
	}
	if err := s.rules.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	s.engine.Invalidate(ctx, rule.UrlID)
	return nil
}

func (s *ruleService) ReorderRules(ctx context.Context, urlID uint64) error {
	if err := s.rules.ReorderPriorities(ctx, urlID, 0); err != nil {
		return fmt.Errorf("reorder rules: %w", err)
	}
	s.engine.Invalidate(ctx, urlID)
	return nil
}

// TestRule evaluates a URL's active rules against a caller-provided
// context and returns the matched rule plus the effective target.
func (s *ruleService) TestRule(ctx context.Context, urlID uint64, reqCtx *model.RequestContext) (*model.RedirectionRule, string, error) {
	url, err := s.urls.GetByID(ctx, urlID)
	if err != nil {
		return nil, "", fmt.Errorf("load url: %w", err)
	}

	matched := s.engine.Evaluate(ctx, urlID, reqCtx)
	if matched == nil {
		return nil, url.LongURL, nil
	}
	return matched, matched.TargetURL, nil
}

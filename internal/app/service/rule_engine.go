package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/Georgesa98/UrlShortner-sub000/internal/app/model"
	"github.com/Georgesa98/UrlShortner-sub000/internal/app/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const rulesCacheKeyPrefix = "rules:url:"

// RuleEngine picks a per-request redirect target from a URL's active
// rules. The active rule set is cached in Redis; every failure path
// degrades to "no match" because the long URL is always a safe fallback.
type RuleEngine struct {
	rules    repository.RuleRepository
	redis    *redis.Client
	logger   *zap.Logger
	cacheTTL time.Duration
}

// NewRuleEngine builds an engine; cacheTTL <= 0 disables caching.
func NewRuleEngine(rules repository.RuleRepository, rdb *redis.Client, cacheTTL time.Duration, logger *zap.Logger) *RuleEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RuleEngine{
		rules:    rules,
		redis:    rdb,
		logger:   logger,
		cacheTTL: cacheTTL,
	}
}

// Evaluate returns the first active rule, in ascending priority order,
// whose every condition matches the context. Nil means no match.
func (e *RuleEngine) Evaluate(ctx context.Context, urlID uint64, reqCtx *model.RequestContext) *model.RedirectionRule {
	rules, err := e.activeRules(ctx, urlID)
	if err != nil {
		e.logger.Warn("failed to load redirection rules, using default target",
			zap.Uint64("url_id", urlID), zap.Error(err))
		return nil
	}

	for i := range rules {
		if rules[i].Conditions.Matches(reqCtx) {
			return &rules[i]
		}
	}
	return nil
}

// Invalidate drops the cached rule set for a URL after a rule write.
func (e *RuleEngine) Invalidate(ctx context.Context, urlID uint64) {
	if e.redis == nil || e.cacheTTL <= 0 {
		return
	}
	if err := e.redis.Del(ctx, rulesCacheKey(urlID)).Err(); err != nil {
		e.logger.Debug("failed to invalidate rule cache",
			zap.Uint64("url_id", urlID), zap.Error(err))
	}
}

func (e *RuleEngine) activeRules(ctx context.Context, urlID uint64) ([]model.RedirectionRule, error) {
	if e.redis != nil && e.cacheTTL > 0 {
		if cached, err := e.redis.Get(ctx, rulesCacheKey(urlID)).Bytes(); err == nil {
			var rules []model.RedirectionRule
			if err := json.Unmarshal(cached, &rules); err == nil {
				return rules, nil
			}
		}
	}

	rules, err := e.rules.ListByURL(ctx, urlID, true)
	if err != nil {
		return nil, err
	}

	if e.redis != nil && e.cacheTTL > 0 {
		if data, err := json.Marshal(rules); err == nil {
			if err := e.redis.Set(ctx, rulesCacheKey(urlID), data, e.cacheTTL).Err(); err != nil {
				e.logger.Debug("failed to cache rules", zap.Uint64("url_id", urlID), zap.Error(err))
			}
		}
	}
	return rules, nil
}

func rulesCacheKey(urlID uint64) string {
	return rulesCacheKeyPrefix + strconv.FormatUint(urlID, 10)
}

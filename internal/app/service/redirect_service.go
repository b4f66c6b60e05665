package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Georgesa98/UrlShortner-sub000/internal/app/model"
	"github.com/Georgesa98/UrlShortner-sub000/internal/app/repository"
	infraprometheus "github.com/Georgesa98/UrlShortner-sub000/internal/infra/prometheus"
	"go.uber.org/zap"
)

var (
	// ErrBurstLimited signals the burst protector rejected the request.
	ErrBurstLimited = errors.New("burst limit exceeded")
	// ErrUrlGone signals the URL exists but is no longer servable.
	ErrUrlGone = errors.New("url no longer available")
)

// scriptedAgents are user-agent substrings of common fetch tooling.
var scriptedAgents = []string{"curl", "wget", "python-urllib", "go-http-client"}

// RedirectService resolves a short code into a redirect target, running
// burst protection, fraud detection, rule evaluation and analytics on
// the way.
type RedirectService struct {
	urls      repository.UrlRepository
	burst     *BurstProtector
	engine    *RuleEngine
	extractor *ContextExtractor
	analytics *AnalyticsService
	fraud     *FraudReporter
	logger    *zap.Logger
	metrics   *infraprometheus.Metrics
}

// RedirectServiceDeps groups construction dependencies.
type RedirectServiceDeps struct {
	Urls      repository.UrlRepository
	Burst     *BurstProtector
	Engine    *RuleEngine
	Extractor *ContextExtractor
	Analytics *AnalyticsService
	Fraud     *FraudReporter
	Logger    *zap.Logger
	Metrics   *infraprometheus.Metrics
}

// NewRedirectService creates the coordinator from its dependencies.
func NewRedirectService(deps RedirectServiceDeps) *RedirectService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectService{
		urls:      deps.Urls,
		burst:     deps.Burst,
		engine:    deps.Engine,
		extractor: deps.Extractor,
		analytics: deps.Analytics,
		fraud:     deps.Fraud,
		logger:    logger,
		metrics:   deps.Metrics,
	}
}

// Resolve runs the full redirect sequence for one request and returns
// the target to redirect to. Errors map onto HTTP statuses:
// ErrBurstLimited -> 429, repository.ErrUrlNotFound -> 404,
// ErrUrlGone -> 410.
func (s *RedirectService) Resolve(ctx context.Context, shortURL string, in RequestInput) (string, error) {
	if !s.burst.CheckBurst(ctx, in.IP, shortURL) {
		s.observe("limited")
		return "", ErrBurstLimited
	}

	u, err := s.urls.GetByShortURL(ctx, shortURL)
	if err != nil {
		if errors.Is(err, repository.ErrUrlNotFound) {
			s.observe("not_found")
			return "", err
		}
		return "", fmt.Errorf("load url: %w", err)
	}
	if u.Status != nil && !u.Status.State.Servable() {
		s.observe("gone")
		return "", fmt.Errorf("%w: %s", ErrUrlGone, u.Status.State)
	}

	s.inspectUserAgent(ctx, u, in)

	reqCtx := s.extractor.Extract(ctx, in)
	newVisitor := s.analytics.RecordVisit(ctx, u, &reqCtx)

	target := u.LongURL
	if rule := s.engine.Evaluate(ctx, u.ID, &reqCtx); rule != nil {
		target = rule.TargetURL
	}

	s.observe("redirected")
	s.logger.Debug("redirect resolved",
		zap.String("short_url", shortURL),
		zap.Uint64("url_id", u.ID),
		zap.Bool("new_visitor", newVisitor))
	return target, nil
}

// inspectUserAgent flags empty and scripted agents. Detection never
// blocks the redirect.
func (s *RedirectService) inspectUserAgent(ctx context.Context, u *model.Url, in RequestInput) {
	ua := strings.TrimSpace(in.UserAgent)
	if ua == "" {
		s.fraud.ReportSuspiciousUA(ctx, u.ID, u.ShortURL, in.IP, in.UserAgent, model.SeverityLow)
		return
	}
	lowered := strings.ToLower(ua)
	for _, agent := range scriptedAgents {
		if strings.Contains(lowered, agent) {
			s.fraud.ReportSuspiciousUA(ctx, u.ID, u.ShortURL, in.IP, in.UserAgent, model.SeverityMedium)
			return
		}
	}
}

func (s *RedirectService) observe(status string) {
	if s.metrics != nil {
		s.metrics.RedirectsTotal.WithLabelValues(status).Inc()
	}
}

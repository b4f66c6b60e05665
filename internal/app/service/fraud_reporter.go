package service

import (
	"context"
	"encoding/json"

	"github.com/Georgesa98/UrlShortner-sub000/internal/app/model"
	"github.com/Georgesa98/UrlShortner-sub000/internal/app/repository"
	infraprometheus "github.com/Georgesa98/UrlShortner-sub000/internal/infra/prometheus"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// FraudReporter appends fraud incidents. Incidents go through JetStream
// so the redirect path never waits on the durable store; when the stream
// is unavailable the reporter writes the row directly.
type FraudReporter struct {
	js      nats.JetStreamContext
	repo    repository.FraudRepository
	logger  *zap.Logger
	metrics *infraprometheus.Metrics
}

// FraudReporterDeps groups construction dependencies.
type FraudReporterDeps struct {
	JetStream nats.JetStreamContext
	Repo      repository.FraudRepository
	Logger    *zap.Logger
	Metrics   *infraprometheus.Metrics
}

// NewFraudReporter creates a reporter with the provided dependencies.
func NewFraudReporter(deps FraudReporterDeps) *FraudReporter {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FraudReporter{
		js:      deps.JetStream,
		repo:    deps.Repo,
		logger:  logger,
		metrics: deps.Metrics,
	}
}

// Report records one incident, assigning its ID.
func (r *FraudReporter) Report(ctx context.Context, incident model.FraudIncident) {
	if incident.ID == "" {
		incident.ID = uuid.New().String()
	}
	if r.metrics != nil {
		r.metrics.FraudIncidentsTotal.WithLabelValues(incident.Type).Inc()
	}

	if r.js != nil {
		data, err := json.Marshal(incident)
		if err == nil {
			if _, err := r.js.Publish(model.FraudStreamSubject, data); err == nil {
				return
			} else {
				r.logger.Warn("fraud incident publish failed, writing directly",
					zap.String("type", incident.Type), zap.Error(err))
			}
		}
	}

	if r.repo == nil {
		r.logger.Error("fraud incident dropped: no repository configured",
			zap.String("type", incident.Type))
		return
	}
	if err := r.repo.Create(ctx, &incident); err != nil {
		r.logger.Error("failed to persist fraud incident",
			zap.String("type", incident.Type), zap.Error(err))
	}
}

// ReportBurst records the high-severity incident emitted on a flag
// transition. Callers invoke it exactly once per transition.
func (r *FraudReporter) ReportBurst(ctx context.Context, urlID uint64, shortURL, ip string) {
	r.Report(ctx, model.FraudIncident{
		Type:     model.IncidentBurst,
		Severity: model.SeverityHigh,
		UrlID:    &urlID,
		Details: model.IncidentDetails{
			"ip":     ip,
			"url":    shortURL,
			"reason": "Excessive requests detected",
		},
	})
}

// ReportSuspiciousUA records a scripted or empty user agent. It never
// blocks the redirect.
func (r *FraudReporter) ReportSuspiciousUA(ctx context.Context, urlID uint64, shortURL, ip, userAgent, severity string) {
	details := model.IncidentDetails{
		"user_agent": userAgent,
		"ip":         ip,
		"url":        shortURL,
	}
	if severity == model.SeverityMedium {
		details["pattern"] = "scripting"
	}
	r.Report(ctx, model.FraudIncident{
		Type:     model.IncidentSuspiciousUA,
		Severity: severity,
		UrlID:    &urlID,
		Details:  details,
	})
}

// ReportThrottle records a rate-limit violation from the throttling layer.
func (r *FraudReporter) ReportThrottle(ctx context.Context, ip, endpoint, rate string, userID *uint64) {
	r.Report(ctx, model.FraudIncident{
		Type:     model.IncidentThrottle,
		Severity: model.SeverityMedium,
		UserID:   userID,
		Details: model.IncidentDetails{
			"ip":       ip,
			"endpoint": endpoint,
			"rate":     rate,
		},
	})
}

package scheduler

import (
	"context"
	"time"

	"github.com/Georgesa98/UrlShortner-sub000/config"
	"github.com/Georgesa98/UrlShortner-sub000/internal/app/service"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const jobTimeout = 5 * time.Minute

// Scheduler runs the recurring maintenance jobs: short-code pool refill,
// analytics drain, expiry sweep and the weekly link-rot pass. Every job
// is idempotent, so overlapping or repeated runs are harmless.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

// Deps groups the services the jobs drive plus their cron specs.
type Deps struct {
	Config    config.WorkersConfig
	Pool      *service.ShortCodePool
	PoolSize  int
	Urls      service.UrlService
	Analytics *service.AnalyticsService
	LinkRot   *service.LinkRotChecker
	Logger    *zap.Logger
}

// New registers all jobs. Call Start to begin scheduling.
func New(deps Deps) (*Scheduler, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := cron.New(cron.WithLocation(time.UTC))
	s := &Scheduler{cron: c, logger: logger}

	jobs := []struct {
		name string
		spec string
		run  func(context.Context)
	}{
		{"pool_refill", deps.Config.PoolRefillSpec, func(ctx context.Context) {
			added, err := deps.Pool.Refill(ctx, deps.PoolSize)
			if err != nil {
				logger.Error("pool refill failed", zap.Error(err))
				return
			}
			if added > 0 {
				logger.Info("pool refilled", zap.Int("added", added))
			}
		}},
		{"analytics_drain", deps.Config.AnalyticsSpec, func(ctx context.Context) {
			drained, err := deps.Analytics.Drain(ctx)
			if err != nil {
				logger.Error("analytics drain failed", zap.Error(err))
				return
			}
			if drained > 0 {
				logger.Debug("analytics drained", zap.Int("visits", drained))
			}
		}},
		{"expiry_sweep", deps.Config.ExpirySweepSpec, func(ctx context.Context) {
			expired, err := deps.Urls.ExpireDue(ctx, time.Now())
			if err != nil {
				logger.Error("expiry sweep failed", zap.Error(err))
				return
			}
			if expired > 0 {
				logger.Info("urls expired", zap.Int64("count", expired))
			}
		}},
		{"link_rot", deps.Config.LinkRotSpec, func(ctx context.Context) {
			queued, err := deps.LinkRot.Enqueue(ctx, time.Now())
			if err != nil {
				logger.Error("link rot enqueue failed", zap.Error(err))
				return
			}
			probed, err := deps.LinkRot.DrainQueue(ctx)
			if err != nil {
				logger.Error("link rot probing interrupted", zap.Error(err))
			}
			logger.Info("link rot pass complete",
				zap.Int("queued", queued), zap.Int("probed", probed))
		}},
	}

	for _, job := range jobs {
		job := job
		_, err := c.AddFunc(job.spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			job.run(ctx)
		})
		if err != nil {
			return nil, err
		}
		logger.Info("scheduled job", zap.String("job", job.name), zap.String("spec", job.spec))
	}
	return s, nil
}

// Start begins running jobs on their schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

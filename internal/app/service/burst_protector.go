package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Georgesa98/UrlShortner-sub000/config"
	"github.com/Georgesa98/UrlShortner-sub000/internal/app/model"
	"github.com/Georgesa98/UrlShortner-sub000/internal/app/repository"
	infraprometheus "github.com/Georgesa98/UrlShortner-sub000/internal/infra/prometheus"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	burstIPKeyPrefix  = "burst:ip:"
	burstURLKeyPrefix = "burst:url:"
	burstLockPrefix   = "burst:lock:"

	// FlagReason is written to url_status when a burst confirms abuse.
	FlagReason = "excessive traffic"

	lockExpiry     = 3 * time.Second
	lockRetryDelay = 125 * time.Millisecond
	lockTries      = 8 // 8 × 125ms bounds the blocking wait at about 1s
)

// BurstWindow pairs a sliding window with its event limit.
type BurstWindow struct {
	Window time.Duration
	Limit  int64
}

// BurstThresholds is the single canonical source of the three scales.
type BurstThresholds struct {
	Short  BurstWindow
	Medium BurstWindow
	Long   BurstWindow
}

// DefaultBurstThresholds returns 10s/10, 60s/50, 3600s/1000.
func DefaultBurstThresholds() BurstThresholds {
	return BurstThresholds{
		Short:  BurstWindow{Window: 10 * time.Second, Limit: 10},
		Medium: BurstWindow{Window: time.Minute, Limit: 50},
		Long:   BurstWindow{Window: time.Hour, Limit: 1000},
	}
}

// ThresholdsFromConfig builds thresholds from the config section,
// falling back to defaults for unset scales.
func ThresholdsFromConfig(cfg config.BurstConfig) BurstThresholds {
	t := DefaultBurstThresholds()
	if cfg.ShortWindowSeconds > 0 && cfg.ShortLimit > 0 {
		t.Short = BurstWindow{Window: time.Duration(cfg.ShortWindowSeconds) * time.Second, Limit: cfg.ShortLimit}
	}
	if cfg.MediumWindowSeconds > 0 && cfg.MediumLimit > 0 {
		t.Medium = BurstWindow{Window: time.Duration(cfg.MediumWindowSeconds) * time.Second, Limit: cfg.MediumLimit}
	}
	if cfg.LongWindowSeconds > 0 && cfg.LongLimit > 0 {
		t.Long = BurstWindow{Window: time.Duration(cfg.LongWindowSeconds) * time.Second, Limit: cfg.LongLimit}
	}
	return t
}

func (t BurstThresholds) windows() []BurstWindow {
	return []BurstWindow{t.Short, t.Medium, t.Long}
}

// Longest returns the widest window; it bounds counter retention.
func (t BurstThresholds) Longest() time.Duration {
	longest := t.Short.Window
	for _, w := range t.windows() {
		if w.Window > longest {
			longest = w.Window
		}
	}
	return longest
}

// BurstProtector decides, per redirect attempt, whether to allow the
// request and whether to flag the short code. Decisions for one
// (ip, code) pair are serialized by a Redis lease lock; any KV error
// fails closed.
type BurstProtector struct {
	redis      *redis.Client
	locks      *redsync.Redsync
	urls       repository.UrlRepository
	fraud      *FraudReporter
	logger     *zap.Logger
	metrics    *infraprometheus.Metrics
	thresholds BurstThresholds
}

// BurstProtectorDeps groups construction dependencies.
type BurstProtectorDeps struct {
	Redis      *redis.Client
	Urls       repository.UrlRepository
	Fraud      *FraudReporter
	Logger     *zap.Logger
	Metrics    *infraprometheus.Metrics
	Thresholds BurstThresholds
}

// NewBurstProtector builds a protector from its dependencies.
func NewBurstProtector(deps BurstProtectorDeps) *BurstProtector {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	thresholds := deps.Thresholds
	if thresholds == (BurstThresholds{}) {
		thresholds = DefaultBurstThresholds()
	}
	return &BurstProtector{
		redis:      deps.Redis,
		locks:      redsync.New(goredis.NewPool(deps.Redis)),
		urls:       deps.Urls,
		fraud:      deps.Fraud,
		logger:     logger,
		metrics:    deps.Metrics,
		thresholds: thresholds,
	}
}

// CheckBurst serializes the read-decide-append sequence for (ip, code)
// under the lease lock, flags the code when any window limit is hit,
// and records the request otherwise. Missed lock means reject.
func (b *BurstProtector) CheckBurst(ctx context.Context, ip, shortURL string) bool {
	mutex := b.locks.NewMutex(
		burstLockPrefix+shortURL+":"+ip,
		redsync.WithExpiry(lockExpiry),
		redsync.WithTries(lockTries),
		redsync.WithRetryDelay(lockRetryDelay),
	)
	if err := mutex.LockContext(ctx); err != nil {
		b.logger.Debug("burst lock not acquired",
			zap.String("short_url", shortURL), zap.String("ip", ip), zap.Error(err))
		return false
	}
	defer func() {
		if _, err := mutex.UnlockContext(ctx); err != nil {
			// The 3s TTL reclaims the lease either way.
			b.logger.Debug("burst lock release failed", zap.Error(err))
		}
	}()

	now := time.Now()
	burst, err := b.detectBurst(ctx, ip, shortURL, now)
	if err != nil {
		b.logger.Warn("burst detection failed, rejecting",
			zap.String("short_url", shortURL), zap.Error(err))
		return false
	}
	if burst {
		if b.metrics != nil {
			b.metrics.BurstRejectionsTotal.Inc()
		}
		b.flag(ctx, shortURL, ip)
		return false
	}

	if err := b.track(ctx, ip, shortURL, now); err != nil {
		b.logger.Warn("burst tracking failed, rejecting",
			zap.String("short_url", shortURL), zap.Error(err))
		return false
	}
	return true
}

func (b *BurstProtector) detectBurst(ctx context.Context, ip, shortURL string, now time.Time) (bool, error) {
	ipKey := burstIPKeyPrefix + ip
	urlKey := burstURLKeyPrefix + shortURL
	ts := unixSeconds(now)

	windows := b.thresholds.windows()
	counts := make([]*redis.IntCmd, 0, len(windows)*2)

	pipe := b.redis.Pipeline()
	for _, w := range windows {
		min := formatScore(ts - w.Window.Seconds())
		counts = append(counts,
			pipe.ZCount(ctx, ipKey, min, "+inf"),
			pipe.ZCount(ctx, urlKey, min, "+inf"),
		)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	for i, w := range windows {
		for j := 0; j < 2; j++ {
			if counts[i*2+j].Val() >= w.Limit {
				return true, nil
			}
		}
	}
	return false, nil
}

func (b *BurstProtector) track(ctx context.Context, ip, shortURL string, now time.Time) error {
	ipKey := burstIPKeyPrefix + ip
	urlKey := burstURLKeyPrefix + shortURL
	ts := unixSeconds(now)
	member := fmt.Sprintf("request_%s", formatScore(ts))
	cutoff := formatScore(ts - b.thresholds.Longest().Seconds())
	retention := b.thresholds.Longest()

	_, err := b.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, ipKey, redis.Z{Score: ts, Member: member})
		pipe.ZAdd(ctx, urlKey, redis.Z{Score: ts, Member: member})
		pipe.ZRemRangeByScore(ctx, ipKey, "-inf", cutoff)
		pipe.ZRemRangeByScore(ctx, urlKey, "-inf", cutoff)
		pipe.Expire(ctx, ipKey, retention)
		pipe.Expire(ctx, urlKey, retention)
		return nil
	})
	return err
}

// flag performs the FLAGGED transition. The compare-and-set inside the
// repository fires at most once, so exactly one incident is emitted per
// transition. On a durable-store error the incident is still recorded
// and the state write is retried on the next burst observation.
func (b *BurstProtector) flag(ctx context.Context, shortURL, ip string) {
	url, err := b.urls.GetByShortURL(ctx, shortURL)
	if err != nil {
		b.logger.Error("failed to load url for flagging",
			zap.String("short_url", shortURL), zap.Error(err))
		b.fraud.Report(ctx, model.FraudIncident{
			Type:     model.IncidentBurst,
			Severity: model.SeverityHigh,
			Details: model.IncidentDetails{
				"ip":     ip,
				"url":    shortURL,
				"reason": "Excessive requests detected",
			},
		})
		return
	}

	flagged, err := b.urls.Flag(ctx, url.ID, FlagReason)
	if err != nil {
		b.logger.Error("failed to flag url",
			zap.String("short_url", shortURL), zap.Error(err))
		b.fraud.ReportBurst(ctx, url.ID, shortURL, ip)
		return
	}
	if flagged {
		b.logger.Warn("url flagged for excessive traffic",
			zap.String("short_url", shortURL), zap.String("ip", ip))
		b.fraud.ReportBurst(ctx, url.ID, shortURL, ip)
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', 6, 64)
}

package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Georgesa98/UrlShortner-sub000/internal/app/model"
	"github.com/Georgesa98/UrlShortner-sub000/internal/app/repository"
	infraprometheus "github.com/Georgesa98/UrlShortner-sub000/internal/infra/prometheus"
	"github.com/bits-and-blooms/bloom/v3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// AnalyticsQueueKey is the Redis list buffering visit records for the
// drain worker.
const AnalyticsQueueKey = "analytics:visits"

const (
	defaultDrainBatch = 100
	bloomCapacity     = 1_000_000
	bloomFalsePos     = 0.01
)

// AnalyticsService captures one visit per allowed redirect with
// constant-time latency impact and batch-persists later.
type AnalyticsService struct {
	redis   *redis.Client
	urls    repository.UrlRepository
	visits  repository.VisitRepository
	logger  *zap.Logger
	metrics *infraprometheus.Metrics

	salt      string
	trackIP   bool
	batchSize int

	// seen short-circuits the visit-exists query for repeat visitors.
	// A negative means the hashed IP was never added here, so the
	// database stays authoritative on that path.
	mu   sync.Mutex
	seen *bloom.BloomFilter
}

// AnalyticsDeps groups construction dependencies.
type AnalyticsDeps struct {
	Redis     *redis.Client
	Urls      repository.UrlRepository
	Visits    repository.VisitRepository
	Logger    *zap.Logger
	Metrics   *infraprometheus.Metrics
	IPSalt    string
	TrackIP   bool
	BatchSize int
}

// NewAnalyticsService builds the service from its dependencies.
func NewAnalyticsService(deps AnalyticsDeps) *AnalyticsService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	batch := deps.BatchSize
	if batch <= 0 {
		batch = defaultDrainBatch
	}
	return &AnalyticsService{
		redis:     deps.Redis,
		urls:      deps.Urls,
		visits:    deps.Visits,
		logger:    logger,
		metrics:   deps.Metrics,
		salt:      deps.IPSalt,
		trackIP:   deps.TrackIP,
		batchSize: batch,
		seen:      bloom.NewWithEstimates(bloomCapacity, bloomFalsePos),
	}
}

// HashIP returns the salted SHA-256 of the client IP as lowercase hex.
func (a *AnalyticsService) HashIP(ip string) string {
	sum := sha256.Sum256([]byte(a.salt + ":" + ip))
	return hex.EncodeToString(sum[:])
}

// IsNewVisitor reports whether no Visit row exists for the hashed IP.
// Errors answer false so unique counters never inflate.
func (a *AnalyticsService) IsNewVisitor(ctx context.Context, hashedIP string) bool {
	a.mu.Lock()
	maybeSeen := a.seen.TestString(hashedIP)
	a.mu.Unlock()
	if maybeSeen {
		return false
	}

	exists, err := a.visits.ExistsByHashedIP(ctx, hashedIP)
	if err != nil {
		a.logger.Warn("new-visitor lookup failed", zap.Error(err))
		return false
	}
	return !exists
}

// RecordVisit bumps the URL counters, stamps last_accessed and buffers
// one visit record. A buffer failure falls back to a synchronous insert;
// the counter updates have already happened either way.
func (a *AnalyticsService) RecordVisit(ctx context.Context, url *model.Url, reqCtx *model.RequestContext) bool {
	now := time.Now().UTC()

	hashedIP := ""
	newVisitor := false
	if a.trackIP {
		hashedIP = a.HashIP(reqCtx.IP)
		newVisitor = a.IsNewVisitor(ctx, hashedIP)
	}

	if err := a.urls.RecordAccess(ctx, url.ID, newVisitor, now); err != nil {
		a.logger.Error("failed to update visit counters",
			zap.Uint64("url_id", url.ID), zap.Error(err))
	}

	if a.trackIP {
		a.mu.Lock()
		a.seen.AddString(hashedIP)
		a.mu.Unlock()
	}

	record := model.VisitRecord{
		URLID:           url.ID,
		HashedIP:        hashedIP,
		Geolocation:     reqCtx.Country,
		OperatingSystem: reqCtx.OS,
		Browser:         reqCtx.Browser,
		Device:          reqCtx.DeviceType,
		Referrer:        reqCtx.Referrer,
		NewVisitor:      newVisitor,
		Timestamp:       now,
	}

	if err := a.enqueue(ctx, record); err != nil {
		a.logger.Warn("analytics buffer unavailable, inserting visit directly", zap.Error(err))
		visit := record.Visit()
		if err := a.visits.Create(ctx, &visit); err != nil {
			a.logger.Error("failed to insert visit directly",
				zap.Uint64("url_id", url.ID), zap.Error(err))
		}
	}
	return newVisitor
}

func (a *AnalyticsService) enqueue(ctx context.Context, record model.VisitRecord) error {
	data, err := record.Encode()
	if err != nil {
		return fmt.Errorf("encode visit record: %w", err)
	}
	return a.redis.RPush(ctx, AnalyticsQueueKey, data).Err()
}

// Drain pops up to one batch from the buffer and bulk-inserts it. A
// parse or insert failure logs and aborts without re-enqueuing; buffered
// records are persisted at most once.
func (a *AnalyticsService) Drain(ctx context.Context) (int, error) {
	raws, err := a.redis.LPopCount(ctx, AnalyticsQueueKey, a.batchSize).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			a.observeQueueDepth(ctx)
			return 0, nil
		}
		return 0, fmt.Errorf("pop analytics buffer: %w", err)
	}
	if len(raws) == 0 {
		return 0, nil
	}

	visits := make([]model.Visit, 0, len(raws))
	for _, raw := range raws {
		record, err := model.DecodeVisitRecord([]byte(raw))
		if err != nil {
			return 0, fmt.Errorf("decode visit record: %w", err)
		}
		visits = append(visits, record.Visit())
	}

	inserted, err := a.visits.BulkInsert(ctx, visits)
	if err != nil {
		return 0, fmt.Errorf("bulk insert visits: %w", err)
	}

	if a.metrics != nil {
		a.metrics.VisitsDrainedTotal.Add(float64(inserted))
	}
	a.observeQueueDepth(ctx)
	return int(inserted), nil
}

func (a *AnalyticsService) observeQueueDepth(ctx context.Context) {
	if a.metrics == nil {
		return
	}
	if depth, err := a.redis.LLen(ctx, AnalyticsQueueKey).Result(); err == nil {
		a.metrics.AnalyticsQueueDepth.Set(float64(depth))
	}
}

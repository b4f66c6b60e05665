package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Georgesa98/UrlShortner-sub000/internal/app/model"
	"github.com/Georgesa98/UrlShortner-sub000/internal/app/repository"
	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LinkRotQueueKey is the Redis list of URL IDs awaiting a liveness probe.
const LinkRotQueueKey = "link_rot:urls_to_check"

const (
	defaultProbeTimeout = 10 * time.Second
	probeRetries        = 3
	defaultStaleAfter   = 7 * 24 * time.Hour
	enqueueBatchMax     = 1000
)

var errRetryableStatus = errors.New("retryable upstream status")

// LinkRotChecker probes long URLs for liveness and updates their status.
type LinkRotChecker struct {
	urls       repository.UrlRepository
	redis      *redis.Client
	client     *http.Client
	staleAfter time.Duration
	logger     *zap.Logger
}

// LinkRotDeps groups construction dependencies. StaleAfter and
// ProbeTimeout fall back to a week and 10s when unset.
type LinkRotDeps struct {
	Urls         repository.UrlRepository
	Redis        *redis.Client
	Logger       *zap.Logger
	StaleAfter   time.Duration
	ProbeTimeout time.Duration
}

// NewLinkRotChecker returns a checker with a probe client that does not
// follow more than the default redirect chain and never reuses cookies.
func NewLinkRotChecker(deps LinkRotDeps) *LinkRotChecker {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	staleAfter := deps.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	probeTimeout := deps.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}
	return &LinkRotChecker{
		urls:       deps.Urls,
		redis:      deps.Redis,
		client:     &http.Client{Timeout: probeTimeout},
		staleAfter: staleAfter,
		logger:     logger,
	}
}

// Enqueue pushes IDs of URLs not checked within the stale window onto
// the probe queue. Safe to re-run; already-queued IDs get probed twice
// at worst.
func (c *LinkRotChecker) Enqueue(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-c.staleAfter)
	ids, err := c.urls.StaleCheckedIDs(ctx, cutoff, enqueueBatchMax)
	if err != nil {
		return 0, fmt.Errorf("list stale urls: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = strconv.FormatUint(id, 10)
	}
	if err := c.redis.RPush(ctx, LinkRotQueueKey, members...).Err(); err != nil {
		return 0, fmt.Errorf("enqueue stale urls: %w", err)
	}
	return len(ids), nil
}

// DrainQueue pops and probes queued URLs until the queue is empty or the
// context is cancelled. Returns the number of URLs probed.
func (c *LinkRotChecker) DrainQueue(ctx context.Context) (int, error) {
	probed := 0
	for {
		if err := ctx.Err(); err != nil {
			return probed, err
		}

		raw, err := c.redis.LPop(ctx, LinkRotQueueKey).Result()
		if errors.Is(err, redis.Nil) {
			return probed, nil
		}
		if err != nil {
			return probed, fmt.Errorf("pop probe queue: %w", err)
		}

		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.logger.Warn("discarding malformed queue entry", zap.String("entry", raw))
			continue
		}
		if err := c.CheckURL(ctx, id); err != nil {
			c.logger.Error("link rot check failed", zap.Uint64("url_id", id), zap.Error(err))
		}
		probed++
	}
}

// CheckURL probes a single URL and persists the resulting state.
func (c *LinkRotChecker) CheckURL(ctx context.Context, id uint64) error {
	u, err := c.urls.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUrlNotFound) {
			return nil
		}
		return fmt.Errorf("load url: %w", err)
	}

	now := time.Now().UTC()
	alive, detail := c.probe(ctx, u.LongURL)
	if alive {
		return c.urls.SetState(ctx, id, model.StateActive, "", now)
	}
	c.logger.Info("marking url broken",
		zap.Uint64("url_id", id),
		zap.String("detail", detail))
	return c.urls.SetState(ctx, id, model.StateBroken, detail, now)
}

// probe runs a HEAD request, falling back to GET when HEAD is refused.
// Transient statuses (429, 5xx) are retried a few times with backoff
// before the URL counts as broken.
func (c *LinkRotChecker) probe(ctx context.Context, target string) (alive bool, detail string) {
	var lastStatus int
	attempt := func() error {
		status, err := c.fetchStatus(ctx, target)
		if err != nil {
			return backoff.Permanent(err)
		}
		lastStatus = status
		if status == http.StatusTooManyRequests || status >= 500 {
			return errRetryableStatus
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), probeRetries),
		ctx,
	)
	if err := backoff.Retry(attempt, policy); err != nil {
		if lastStatus != 0 {
			return false, fmt.Sprintf("upstream returned %d", lastStatus)
		}
		return false, fmt.Sprintf("probe failed: %v", err)
	}
	if lastStatus >= 200 && lastStatus < 400 {
		return true, ""
	}
	return false, fmt.Sprintf("upstream returned %d", lastStatus)
}

func (c *LinkRotChecker) fetchStatus(ctx context.Context, target string) (int, error) {
	status, err := c.do(ctx, http.MethodHead, target)
	// Some origins reject HEAD with an error status or drop the
	// connection entirely; retry those with GET before concluding
	// anything about the link.
	if err != nil {
		return c.do(ctx, http.MethodGet, target)
	}
	if status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented {
		return c.do(ctx, http.MethodGet, target)
	}
	return status, nil
}

func (c *LinkRotChecker) do(ctx context.Context, method, target string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

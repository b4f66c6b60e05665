package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	infraprometheus "github.com/Georgesa98/UrlShortner-sub000/internal/infra/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PoolKey is the Redis set holding pre-generated unused short codes.
const PoolKey = "shortcode:available_pool"

const (
	codeCharset      = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	refillBatchSize  = 1000
	lowWaterFraction = 0.3
	refillTimeout    = time.Minute
)

// ShortCodePool hands out fresh short codes from a Redis-backed pool,
// refilling asynchronously at a low-water mark. Pool output is unique by
// set semantics; fallback output relies on the short_url unique
// constraint to catch the astronomical-probability collision.
type ShortCodePool struct {
	redis       *redis.Client
	logger      *zap.Logger
	metrics     *infraprometheus.Metrics
	codeLength  int
	minPoolSize int
	refilling   atomic.Bool
}

// ShortCodePoolDeps groups construction dependencies.
type ShortCodePoolDeps struct {
	Redis       *redis.Client
	Logger      *zap.Logger
	Metrics     *infraprometheus.Metrics
	CodeLength  int
	MinPoolSize int
}

// NewShortCodePool builds a pool manager from its dependencies.
func NewShortCodePool(deps ShortCodePoolDeps) *ShortCodePool {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	length := deps.CodeLength
	if length <= 0 {
		length = 8
	}
	return &ShortCodePool{
		redis:       deps.Redis,
		logger:      logger,
		metrics:     deps.Metrics,
		codeLength:  length,
		minPoolSize: deps.MinPoolSize,
	}
}

// Allocate atomically pops one code from the pool. An empty pool falls
// through to the synchronous generator and schedules a refill; a pool
// left below 30% of its target size schedules a refill as well.
func (p *ShortCodePool) Allocate(ctx context.Context) (string, error) {
	code, err := p.redis.SPop(ctx, PoolKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			p.triggerRefill()
			return p.Generate()
		}
		// KV unreachable: the pool is effectively disabled until it recovers.
		p.logger.Warn("short code pool unavailable, generating directly", zap.Error(err))
		return p.Generate()
	}

	remaining, err := p.redis.SCard(ctx, PoolKey).Result()
	if err != nil {
		p.logger.Warn("failed to read pool cardinality", zap.Error(err))
		return code, nil
	}
	if p.metrics != nil {
		p.metrics.PoolSize.Set(float64(remaining))
	}
	if float64(remaining) < lowWaterFraction*float64(p.minPoolSize) {
		p.triggerRefill()
	}
	return code, nil
}

// Generate produces one CSPRNG code in the pool charset. The result is
// not inserted into the pool.
func (p *ShortCodePool) Generate() (string, error) {
	return randomCode(p.codeLength)
}

// Refill tops the pool up to target, generating codes in batches. Safe
// to call concurrently; set deduplication preserves correctness.
func (p *ShortCodePool) Refill(ctx context.Context, target int) (int, error) {
	if target <= 0 {
		target = p.minPoolSize
	}

	added := 0
	for {
		current, err := p.redis.SCard(ctx, PoolKey).Result()
		if err != nil {
			return added, fmt.Errorf("pool cardinality: %w", err)
		}
		if p.metrics != nil {
			p.metrics.PoolSize.Set(float64(current))
		}

		missing := target - int(current)
		if missing <= 0 {
			return added, nil
		}

		size := missing
		if size > refillBatchSize {
			size = refillBatchSize
		}
		batch := make([]interface{}, 0, size)
		for i := 0; i < size; i++ {
			code, err := randomCode(p.codeLength)
			if err != nil {
				return added, err
			}
			batch = append(batch, code)
		}

		if err := p.redis.SAdd(ctx, PoolKey, batch...).Err(); err != nil {
			return added, fmt.Errorf("pool insert: %w", err)
		}
		added += size
	}
}

func (p *ShortCodePool) triggerRefill() {
	if !p.refilling.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer p.refilling.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), refillTimeout)
		defer cancel()

		added, err := p.Refill(ctx, p.minPoolSize)
		if err != nil {
			p.logger.Error("short code pool refill failed",
				zap.Int("added", added), zap.Error(err))
			return
		}
		if added > 0 {
			p.logger.Info("short code pool refilled", zap.Int("added", added))
		}
	}()
}

// randomCode samples the charset via crypto/rand with rejection so every
// character is uniform.
func randomCode(length int) (string, error) {
	const maxAcceptable = byte(248) // largest multiple of len(codeCharset) under 256

	out := make([]byte, 0, length)
	buf := make([]byte, length*2)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate short code: %w", err)
		}
		for _, b := range buf {
			if b >= maxAcceptable {
				continue
			}
			out = append(out, codeCharset[int(b)%len(codeCharset)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

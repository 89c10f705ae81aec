package ratelimit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/feral-file/ff-splits/internal/adapter"
	"github.com/feral-file/ff-splits/internal/logger"
)

const (
	// DefaultKeyPrefix prefixes the Redis keys of distributed limiters
	DefaultKeyPrefix = "ff:splits:limiter:"

	// DefaultMaxQueueTime bounds how long a request waits for a token
	DefaultMaxQueueTime = time.Minute

	// RedisRetryInterval is how long the distributed limiter is skipped after a Redis error
	RedisRetryInterval = 10 * time.Second
)

// Config holds the request budget of one node
type Config struct {
	RequestsPerSecond int
	Burst             int
	MaxQueueTime      time.Duration
	KeyPrefix         string
}

// Limiter hands out request tokens for one node. With a Redis client the
// budget is shared with every process using the same key, otherwise it is
// enforced locally.
type Limiter struct {
	name        string
	config      Config
	clock       adapter.Clock
	distributed adapter.RedisRateLimiter
	local       *rate.Limiter
	preFilter   *rate.Limiter

	mu        sync.Mutex
	downUntil time.Time
}

// NewLimiter creates a limiter for the named node. rc may be nil.
func NewLimiter(name string, cfg Config, rc adapter.RedisClient, clock adapter.Clock) (*Limiter, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid rate limit configuration for %s: %w", name, err)
	}

	l := &Limiter{
		name:      name,
		config:    cfg,
		clock:     clock,
		local:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		preFilter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}

	if rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := rc.Ping(ctx); err != nil {
			logger.Warn("Redis unavailable, using local rate limiter",
				zap.String("node", name),
				zap.Error(err))
		} else {
			l.distributed = rc.NewRateLimiter()
		}
	}

	logger.Info("Rate limiter initialized",
		zap.String("node", name),
		zap.Int("requests_per_second", cfg.RequestsPerSecond),
		zap.Int("burst", cfg.Burst),
		zap.Bool("distributed", l.distributed != nil))

	return l, nil
}

// Acquire blocks until a token is available, ctx is done or the maximum
// queue time has passed
func (l *Limiter) Acquire(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.config.MaxQueueTime)
	defer cancel()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !l.distributedAvailable() {
			return l.local.Wait(ctx)
		}

		allowed, retryAfter, err := l.tryDistributed(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.markDistributedDown(err)
		case allowed:
			return nil
		default:
			wait := 100 * time.Millisecond
			if retryAfter > 0 {
				// 50-150% of retryAfter spreads out competing processes
				wait = time.Duration(float64(retryAfter) * (0.5 + rand.Float64())) //nolint:gosec,G404
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-l.clock.After(wait):
			}
		}
	}
}

// tryDistributed attempts to take a token from the shared budget
func (l *Limiter) tryDistributed(ctx context.Context) (bool, time.Duration, error) {
	// Pre-filter requests to reduce Redis pressure
	if err := l.preFilter.Wait(ctx); err != nil {
		return false, 0, err
	}

	res, err := l.distributed.Allow(ctx, l.config.KeyPrefix+l.name, redis_rate.PerSecond(l.config.RequestsPerSecond))
	if err != nil {
		return false, 0, err
	}

	if res.Allowed == 0 {
		logger.Debug("Rate limit token unavailable, waiting",
			zap.String("node", l.name),
			zap.Duration("retry_after", res.RetryAfter),
			zap.Int("remaining", res.Remaining))
		return false, res.RetryAfter, nil
	}
	return true, 0, nil
}

func (l *Limiter) distributedAvailable() bool {
	if l.distributed == nil {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.downUntil.IsZero() {
		return true
	}
	if l.clock.Now().Before(l.downUntil) {
		return false
	}
	l.downUntil = time.Time{}
	logger.Info("Retrying Redis rate limiter", zap.String("node", l.name))
	return true
}

func (l *Limiter) markDistributedDown(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.downUntil = l.clock.Now().Add(RedisRetryInterval)
	logger.Warn("Redis rate limiter error, falling back to local",
		zap.String("node", l.name),
		zap.Duration("retry_in", RedisRetryInterval),
		zap.Error(err))
}

// validateConfig validates and sets defaults for the configuration
func validateConfig(cfg *Config) error {
	if cfg.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests_per_second must be positive")
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RequestsPerSecond
	}
	if cfg.MaxQueueTime <= 0 {
		cfg.MaxQueueTime = DefaultMaxQueueTime
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	return nil
}

// Package retry runs transient chain calls with exponential backoff.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/feral-file/ff-splits/internal/adapter"
	"github.com/feral-file/ff-splits/internal/logger"
)

const (
	// BaseDelay is the wait after the first failed attempt
	BaseDelay = time.Second

	// MaxJitter bounds the random delay added to every wait
	MaxJitter = 100 * time.Millisecond

	// DefaultMaxAttempts is used when a caller passes a non-positive attempt count
	DefaultMaxAttempts = 3
)

// Operation is a fallible call that may be retried
type Operation[T any] func(ctx context.Context) (T, error)

// Do executes op up to maxAttempts times. After the n-th failure it waits
// 2^(n-1) * BaseDelay plus a jitter in [0, MaxJitter) before trying again.
// When every attempt fails the last error is returned unchanged. Errors wrapped
// with backoff.Permanent and context cancellation end the loop immediately.
func Do[T any](ctx context.Context, clock adapter.Clock, maxAttempts int, op Operation[T]) (T, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	schedule := backoff.WithContext(
		backoff.WithMaxRetries(NewSchedule(), uint64(maxAttempts-1)), //nolint:gosec,G115 // maxAttempts is positive
		ctx,
	)

	attempt := 0
	notify := func(err error, next time.Duration) {
		logger.DebugCtx(ctx, "Chain call failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Duration("next_retry_in", next))
	}

	return backoff.RetryNotifyWithTimerAndData(func() (T, error) {
		attempt++
		return op(ctx)
	}, schedule, notify, &clockTimer{clock: clock})
}

// Schedule is a backoff.BackOff doubling from BaseDelay with a small additive jitter
type Schedule struct {
	attempt int
	jitter  func() time.Duration
}

// NewSchedule returns a schedule with random jitter
func NewSchedule() *Schedule {
	return &Schedule{jitter: randomJitter}
}

// NextBackOff returns the delay to wait before the next attempt
func (s *Schedule) NextBackOff() time.Duration {
	s.attempt++
	return Delay(s.attempt) + s.jitter()
}

// Reset restarts the schedule from the first attempt
func (s *Schedule) Reset() {
	s.attempt = 0
}

// Delay returns the jitter-free wait after the given failed attempt (1-based)
func Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return BaseDelay << (attempt - 1)
}

func randomJitter() time.Duration {
	return rand.N(MaxJitter)
}

// clockTimer adapts adapter.Clock to backoff.Timer so waits can be faked in tests
type clockTimer struct {
	clock adapter.Clock
	c     <-chan time.Time
}

func (t *clockTimer) Start(d time.Duration) {
	t.c = t.clock.After(d)
}

func (t *clockTimer) Stop() {}

func (t *clockTimer) C() <-chan time.Time {
	return t.c
}

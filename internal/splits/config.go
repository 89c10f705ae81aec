// Package splits resolves split contracts straight from a chain node: it
// identifies the contract version, walks the chain history backwards for the
// split's creation and latest update events and rebuilds the split state.
package splits

import (
	"fmt"
	"time"
)

// DefaultProbeCandidates are the window sizes tried against a node, largest first
var DefaultProbeCandidates = []uint64{1_000_000, 10_000, 5_000, 1_250}

const (
	// DefaultFallbackBlockRange is used when a node accepts none of the probe candidates
	DefaultFallbackBlockRange = 1_000

	// DefaultBatchSize is the number of block-range sized queries issued per walk step
	DefaultBatchSize = 20

	// DefaultQueryConcurrency bounds the queries in flight per resolver
	DefaultQueryConcurrency = 8
)

// Config tunes the scanning behavior of a Resolver
type Config struct {
	// ProbeCandidates are the window sizes tested against a node
	ProbeCandidates []uint64

	// FallbackBlockRange is used when every candidate fails
	FallbackBlockRange uint64

	// BatchSize is the number of block-range sized queries issued per walk step
	BatchSize uint64

	// MaxAttempts bounds the attempts of every retried node call
	MaxAttempts int

	// QueryConcurrency bounds the node calls in flight
	QueryConcurrency int

	// HeadTTL is how long a chain head is served from cache
	HeadTTL time.Duration

	// HeadStaleWindow is how long a cached head may be used when the node fails
	HeadStaleWindow time.Duration
}

// DefaultConfig returns the default scanning configuration
func DefaultConfig() Config {
	return Config{
		ProbeCandidates:    append([]uint64(nil), DefaultProbeCandidates...),
		FallbackBlockRange: DefaultFallbackBlockRange,
		BatchSize:          DefaultBatchSize,
		MaxAttempts:        3,
		QueryConcurrency:   DefaultQueryConcurrency,
		HeadTTL:            12 * time.Second,
		HeadStaleWindow:    2 * time.Minute,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if len(c.ProbeCandidates) == 0 {
		return fmt.Errorf("at least one probe candidate is required")
	}
	for _, size := range c.ProbeCandidates {
		if size == 0 {
			return fmt.Errorf("probe candidates must be positive")
		}
	}
	if c.FallbackBlockRange == 0 {
		return fmt.Errorf("fallback block range must be positive")
	}
	if c.BatchSize == 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.QueryConcurrency <= 0 {
		return fmt.Errorf("query concurrency must be positive")
	}
	return nil
}

package block

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/feral-file/ff-splits/internal/adapter"
	"github.com/feral-file/ff-splits/internal/domain"
	"github.com/feral-file/ff-splits/internal/logger"
)

// headInfo represents a cached chain head
type headInfo struct {
	Number    uint64
	FetchedAt time.Time
}

// HeadProvider provides cached access to the head block of every configured chain.
// Repeated lookups against the same chain within the TTL are served from memory,
// which keeps periodic refreshes of the same split from hitting the node for the head.
type HeadProvider interface {
	// LatestBlock returns the head block number of the chain, potentially from cache
	LatestBlock(ctx context.Context, chain domain.Chain) (uint64, error)
}

// HeadFetcher fetches the head block number from a chain node
//
//go:generate mockgen -destination=../mocks/head.go -package=mocks github.com/feral-file/ff-splits/internal/block HeadFetcher
type HeadFetcher interface {
	// FetchLatestBlock fetches the head block number of the chain
	FetchLatestBlock(ctx context.Context, chain domain.Chain) (uint64, error)
}

// Config holds configuration for the HeadProvider
type Config struct {
	// TTL is how long a fetched head is served from cache
	TTL time.Duration

	// StaleWindow is how long a cached head may still be used when fetching fails
	StaleWindow time.Duration
}

// headProvider implements HeadProvider with TTL-based caching per chain
type headProvider struct {
	fetcher HeadFetcher
	config  Config
	clock   adapter.Clock

	mu    sync.RWMutex
	heads map[domain.Chain]*headInfo
}

// NewHeadProvider creates a new HeadProvider with caching
func NewHeadProvider(fetcher HeadFetcher, config Config, clock adapter.Clock) HeadProvider {
	return &headProvider{
		fetcher: fetcher,
		config:  config,
		clock:   clock,
		heads:   make(map[domain.Chain]*headInfo),
	}
}

// LatestBlock returns the head block number of the chain, using cache if valid
func (p *headProvider) LatestBlock(ctx context.Context, chain domain.Chain) (uint64, error) {
	p.mu.RLock()
	cached := p.heads[chain]
	p.mu.RUnlock()

	now := p.clock.Now()

	if cached != nil && now.Sub(cached.FetchedAt) < p.config.TTL {
		logger.DebugCtx(ctx, "Using cached chain head",
			zap.String("chain", string(chain)),
			zap.Uint64("block_number", cached.Number))
		return cached.Number, nil
	}

	logger.DebugCtx(ctx, "Fetching chain head from node", zap.String("chain", string(chain)))
	blockNumber, err := p.fetcher.FetchLatestBlock(ctx, chain)
	if err != nil {
		if cached != nil && now.Sub(cached.FetchedAt) < p.config.StaleWindow {
			logger.WarnCtx(ctx, "Using stale chain head",
				zap.String("chain", string(chain)),
				zap.Uint64("block_number", cached.Number),
				zap.Error(err))
			return cached.Number, nil
		}
		return 0, fmt.Errorf("failed to fetch head of %s and no valid cache available: %w", chain, err)
	}

	p.mu.Lock()
	// A concurrent fetch may have stored a newer head already
	if current := p.heads[chain]; current == nil || current.Number <= blockNumber {
		p.heads[chain] = &headInfo{
			Number:    blockNumber,
			FetchedAt: now,
		}
	}
	p.mu.Unlock()

	return blockNumber, nil
}

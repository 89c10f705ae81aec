package block

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/feral-file/ff-splits/internal/adapter"
	"github.com/feral-file/ff-splits/internal/domain"
	"github.com/feral-file/ff-splits/internal/retry"
)

// nodeHeadFetcher implements HeadFetcher over the node clients of each chain
type nodeHeadFetcher struct {
	clients     map[domain.Chain]adapter.EthClient
	clock       adapter.Clock
	maxAttempts int
}

// NewNodeHeadFetcher creates a HeadFetcher reading the latest header from each chain's node.
// Header reads are retried with backoff.
func NewNodeHeadFetcher(clients map[domain.Chain]adapter.EthClient, clock adapter.Clock, maxAttempts int) HeadFetcher {
	return &nodeHeadFetcher{
		clients:     clients,
		clock:       clock,
		maxAttempts: maxAttempts,
	}
}

// FetchLatestBlock fetches the latest block number of the chain
func (f *nodeHeadFetcher) FetchLatestBlock(ctx context.Context, chain domain.Chain) (uint64, error) {
	client, ok := f.clients[chain]
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrUnsupportedChain, chain)
	}

	header, err := retry.Do(ctx, f.clock, f.maxAttempts, func(ctx context.Context) (*types.Header, error) {
		return client.HeaderByNumber(ctx, nil)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get latest header: %w", err)
	}
	if header == nil || header.Number == nil {
		return 0, fmt.Errorf("node returned an empty latest header")
	}
	return header.Number.Uint64(), nil
}

package ratelimit

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/feral-file/ff-splits/internal/adapter"
)

// ethClient takes a token from the limiter before every node request
type ethClient struct {
	client  adapter.EthClient
	limiter *Limiter
}

// NewEthClient wraps client so that its requests respect the limiter's budget
func NewEthClient(client adapter.EthClient, limiter *Limiter) adapter.EthClient {
	return &ethClient{client: client, limiter: limiter}
}

func (c *ethClient) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	return c.client.FilterLogs(ctx, query)
}

func (c *ethClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	return c.client.HeaderByNumber(ctx, number)
}

func (c *ethClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	return c.client.CallContract(ctx, msg, blockNumber)
}

func (c *ethClient) Close() {
	c.client.Close()
}

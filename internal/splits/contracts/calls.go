package contracts

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-splits/internal/adapter"
	"github.com/feral-file/ff-splits/internal/retry"
)

// ErrNoContractCode is returned when a call returns no data, which is what a
// node answers for an address without code or without the called function
var ErrNoContractCode = errors.New("call returned no data")

// Caller performs the read-only split contract calls at the latest block.
// Every call is retried with backoff; reverts and empty results are final.
type Caller struct {
	client      adapter.EthClient
	clock       adapter.Clock
	maxAttempts int
}

// NewCaller creates a contract caller over the node client
func NewCaller(client adapter.EthClient, clock adapter.Clock, maxAttempts int) *Caller {
	return &Caller{
		client:      client,
		clock:       clock,
		maxAttempts: maxAttempts,
	}
}

// call packs the method call, executes it with retries and unpacks a single output into out
func (c *Caller) call(ctx context.Context, contract abi.ABI, to common.Address, out interface{}, method string, args ...interface{}) error {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to pack %s: %w", method, err)
	}

	result, err := retry.Do(ctx, c.clock, c.maxAttempts, func(ctx context.Context) ([]byte, error) {
		result, err := c.client.CallContract(ctx, ethereum.CallMsg{
			To:   &to,
			Data: data,
		}, nil)
		if err != nil {
			if retry.IsReverted(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if len(result) == 0 {
			return nil, backoff.Permanent(ErrNoContractCode)
		}
		return result, nil
	})
	if err != nil {
		return fmt.Errorf("failed to call %s on %s: %w", method, to.Hex(), err)
	}

	if err := contract.UnpackIntoInterface(out, method, result); err != nil {
		return fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return nil
}

// GetHash reads the v1 SplitMain hash of a split; zero means SplitMain does not know it
func (c *Caller) GetHash(ctx context.Context, splitMain, split common.Address) (common.Hash, error) {
	var hash [32]byte
	if err := c.call(ctx, SplitMainV1ABI, splitMain, &hash, "getHash", split); err != nil {
		return common.Hash{}, err
	}
	return common.Hash(hash), nil
}

// GetController reads the v1 controller of a split
func (c *Caller) GetController(ctx context.Context, splitMain, split common.Address) (common.Address, error) {
	var controller common.Address
	if err := c.call(ctx, SplitMainV1ABI, splitMain, &controller, "getController", split); err != nil {
		return common.Address{}, err
	}
	return controller, nil
}

// SplitHash reads the hash stored by a v2 split wallet. Only v2 bytecode answers it.
func (c *Caller) SplitHash(ctx context.Context, split common.Address) (common.Hash, error) {
	var hash [32]byte
	if err := c.call(ctx, SplitWalletV2ABI, split, &hash, "splitHash"); err != nil {
		return common.Hash{}, err
	}
	return common.Hash(hash), nil
}

// Owner reads the owner of a v2 split wallet
func (c *Caller) Owner(ctx context.Context, split common.Address) (common.Address, error) {
	var owner common.Address
	if err := c.call(ctx, SplitWalletV2ABI, split, &owner, "owner"); err != nil {
		return common.Address{}, err
	}
	return owner, nil
}

// Paused reads the paused flag of a v2 split wallet
func (c *Caller) Paused(ctx context.Context, split common.Address) (bool, error) {
	var paused bool
	if err := c.call(ctx, SplitWalletV2ABI, split, &paused, "paused"); err != nil {
		return false, err
	}
	return paused, nil
}

// Factory reads the factory that deployed a v2 split wallet
func (c *Caller) Factory(ctx context.Context, split common.Address) (common.Address, error) {
	var factory common.Address
	if err := c.call(ctx, SplitWalletV2ABI, split, &factory, "FACTORY"); err != nil {
		return common.Address{}, err
	}
	return factory, nil
}

// eip712Domain mirrors the EIP-5267 domain returned by v2 split wallets
type eip712Domain struct {
	Fields            [1]byte
	Name              string
	Version           string
	ChainId           *big.Int //nolint:revive // matches the ABI output name
	VerifyingContract common.Address
	Salt              [32]byte
	Extensions        []*big.Int
}

// DomainVersion reads the version string of a v2 split wallet's EIP-712 domain
func (c *Caller) DomainVersion(ctx context.Context, split common.Address) (string, error) {
	var domain eip712Domain
	if err := c.call(ctx, SplitWalletV2ABI, split, &domain, "eip712Domain"); err != nil {
		return "", err
	}
	return domain.Version, nil
}

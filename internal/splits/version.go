package splits

import (
	"context"
	"errors"
	"fmt"

	"github.com/alitto/pond/v2"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/feral-file/ff-splits/internal/domain"
	"github.com/feral-file/ff-splits/internal/logger"
	"github.com/feral-file/ff-splits/internal/retry"
	"github.com/feral-file/ff-splits/internal/splits/contracts"
)

// ContractReader is the set of split contract reads the resolver depends on
type ContractReader interface {
	GetHash(ctx context.Context, splitMain, split common.Address) (common.Hash, error)
	GetController(ctx context.Context, splitMain, split common.Address) (common.Address, error)
	SplitHash(ctx context.Context, split common.Address) (common.Hash, error)
	DomainVersion(ctx context.Context, split common.Address) (string, error)
	Owner(ctx context.Context, split common.Address) (common.Address, error)
	Paused(ctx context.Context, split common.Address) (bool, error)
	Factory(ctx context.Context, split common.Address) (common.Address, error)
}

var _ ContractReader = (*contracts.Caller)(nil)

// ResolveVersion determines the contract family and sub-version of the split
// by probing both families concurrently:
//
//	v1 probe | v2 probe | result
//	ok       | ok       | ErrAmbiguousProtocol
//	ok       | fail     | v1 (ErrUnsupportedLookup on the primary network)
//	fail     | ok       | v2 sub-version read from the EIP-712 domain
//	fail     | fail     | ErrSplitNotFound
//
// A family that is not deployed on the chain counts as a failed probe.
func ResolveVersion(ctx context.Context, pool pond.Pool, reader ContractReader, chain domain.ChainConfig, split common.Address) (domain.Version, error) {
	var isV1, isV2 bool

	group := pool.NewGroup()
	group.Submit(func() {
		isV1 = probeV1(ctx, reader, chain, split)
	}, func() {
		isV2 = probeV2(ctx, reader, chain, split)
	})
	waitErr := group.Wait()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if waitErr != nil {
		// Probes absorb their own failures, so only an unusable pool gets here
		return "", fmt.Errorf("%w: failed to probe split families: %w", domain.ErrLookupFailed, waitErr)
	}

	logger.DebugCtx(ctx, "Probed split families",
		zap.String("address", split.Hex()),
		zap.String("chain", string(chain.Chain)),
		zap.Bool("v1", isV1),
		zap.Bool("v2", isV2))

	switch {
	case isV1 && isV2:
		return "", domain.ErrAmbiguousProtocol
	case isV1:
		if chain.Chain.IsPrimary() {
			return "", domain.ErrUnsupportedLookup
		}
		return domain.VersionV1, nil
	case isV2:
		return resolveV2Version(ctx, reader, chain, split)
	default:
		return "", domain.ErrSplitNotFound
	}
}

func probeV1(ctx context.Context, reader ContractReader, chain domain.ChainConfig, split common.Address) bool {
	if !chain.SupportsV1() {
		return false
	}
	hash, err := reader.GetHash(ctx, chain.SplitMain, split)
	if err != nil {
		logProbeFailure(ctx, "v1", split, err)
		return false
	}
	return hash != (common.Hash{})
}

func probeV2(ctx context.Context, reader ContractReader, chain domain.ChainConfig, split common.Address) bool {
	if !chain.SupportsV2() {
		return false
	}
	if _, err := reader.SplitHash(ctx, split); err != nil {
		logProbeFailure(ctx, "v2", split, err)
		return false
	}
	return true
}

func logProbeFailure(ctx context.Context, family string, split common.Address, err error) {
	// Reverts and empty results are the expected answer for the other family
	if retry.IsReverted(err) || errors.Is(err, contracts.ErrNoContractCode) {
		logger.DebugCtx(ctx, "Split family probe failed",
			zap.String("family", family),
			zap.String("address", split.Hex()),
			zap.Error(err))
		return
	}
	logger.WarnCtx(ctx, "Split family probe failed unexpectedly",
		zap.String("family", family),
		zap.String("address", split.Hex()),
		zap.Error(err))
}

func resolveV2Version(ctx context.Context, reader ContractReader, chain domain.ChainConfig, split common.Address) (domain.Version, error) {
	raw, err := reader.DomainVersion(ctx, split)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read split version: %w", domain.ErrLookupFailed, err)
	}

	version, err := domain.ParseV2Version(raw)
	if err != nil {
		logger.WarnCtx(ctx, "Split reports an unknown version",
			zap.String("address", split.Hex()),
			zap.String("version", raw))
		return "", fmt.Errorf("%w: %w", domain.ErrSplitNotFound, err)
	}

	if _, ok := chain.V2[version]; !ok {
		return "", fmt.Errorf("%w: %s factories are not configured for %s", domain.ErrUnsupportedChain, version, chain.Chain)
	}
	return version, nil
}

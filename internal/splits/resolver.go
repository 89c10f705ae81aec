package splits

import (
	"context"
	"errors"
	"fmt"

	"github.com/alitto/pond/v2"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/feral-file/ff-splits/internal/adapter"
	"github.com/feral-file/ff-splits/internal/block"
	"github.com/feral-file/ff-splits/internal/domain"
	"github.com/feral-file/ff-splits/internal/logger"
	"github.com/feral-file/ff-splits/internal/splits/contracts"
)

// IndexedLookup resolves splits from an indexing service. When configured it
// is always tried first.
//
//go:generate mockgen -source=resolver.go -destination=../mocks/indexed_lookup.go -package=mocks -mock_names=IndexedLookup=MockIndexedLookup
type IndexedLookup interface {
	GetSplit(ctx context.Context, chain domain.Chain, address common.Address) (*domain.Split, error)
}

// Source tells where a resolved split came from
type Source string

const (
	SourceIndexed  Source = "indexed"
	SourceProvider Source = "provider"
)

// Stats describes the work done by a resolution
type Stats struct {
	Source     Source     `json:"source"`
	BlockRange uint64     `json:"block_range,omitempty"`
	Probed     bool       `json:"probed"`
	Steps      int        `json:"steps"`
	LogQueries int        `json:"log_queries"`
	StopReason StopReason `json:"stop_reason,omitempty"`
}

// Result is a resolved split together with the cache to pass to the next resolution
type Result struct {
	Split *domain.Split     `json:"split"`
	Cache *domain.ScanCache `json:"cache"`
	Stats Stats             `json:"stats"`
}

// ChainNode is the node and address table of one chain
type ChainNode struct {
	Config domain.ChainConfig
	Client adapter.EthClient
}

type chainBackend struct {
	config domain.ChainConfig
	client adapter.EthClient
	reader ContractReader
	walker *Walker
}

// Resolver resolves splits from chain nodes
type Resolver struct {
	config  Config
	clock   adapter.Clock
	pool    pond.Pool
	heads   block.HeadProvider
	chains  map[domain.Chain]*chainBackend
	indexed IndexedLookup
}

// NewResolver creates a resolver over the given chain nodes. indexed may be nil.
func NewResolver(nodes []ChainNode, config Config, clock adapter.Clock, indexed IndexedLookup) (*Resolver, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scan configuration: %w", err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("at least one chain node is required")
	}

	pool := pond.NewPool(config.QueryConcurrency)
	chains := make(map[domain.Chain]*chainBackend, len(nodes))
	clients := make(map[domain.Chain]adapter.EthClient, len(nodes))
	for _, node := range nodes {
		if node.Client == nil {
			pool.StopAndWait()
			return nil, fmt.Errorf("no node client for %s", node.Config.Chain)
		}
		if _, err := node.Config.Chain.EVMChainID(); err != nil {
			pool.StopAndWait()
			return nil, err
		}
		chains[node.Config.Chain] = &chainBackend{
			config: node.Config,
			client: node.Client,
			reader: contracts.NewCaller(node.Client, clock, config.MaxAttempts),
			walker: NewWalker(node.Client, clock, pool, config.BatchSize, config.MaxAttempts),
		}
		clients[node.Config.Chain] = node.Client
	}

	heads := block.NewHeadProvider(
		block.NewNodeHeadFetcher(clients, clock, config.MaxAttempts),
		block.Config{TTL: config.HeadTTL, StaleWindow: config.HeadStaleWindow},
		clock,
	)

	return &Resolver{
		config:  config,
		clock:   clock,
		pool:    pool,
		heads:   heads,
		chains:  chains,
		indexed: indexed,
	}, nil
}

// Close stops the query pool. Node clients are owned by the caller.
func (r *Resolver) Close() {
	r.pool.StopAndWait()
}

// ResolveSplit resolves the split at address on chain. cache is the Cache of a
// previous Result for the same split, or nil; it is never modified. The
// returned Result always carries a fresh cache.
func (r *Resolver) ResolveSplit(ctx context.Context, address common.Address, chain domain.Chain, cache *domain.ScanCache) (*Result, error) {
	backend, ok := r.chains[chain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedChain, chain)
	}
	if r.pool.Stopped() {
		return nil, fmt.Errorf("%w: resolver is closed", domain.ErrLookupFailed)
	}

	if r.indexed != nil {
		split, err := r.indexed.GetSplit(ctx, chain, address)
		if err == nil && split != nil {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return &Result{
				Split: split,
				Cache: cache.Clone(),
				Stats: Stats{Source: SourceIndexed},
			}, nil
		}
		logIndexedFallback(ctx, address, chain, err)
	}

	result, err := r.resolveFromNode(ctx, backend, address, cache)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	// Results of abandoned calls are never handed back
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Resolver) resolveFromNode(ctx context.Context, backend *chainBackend, address common.Address, cache *domain.ScanCache) (*Result, error) {
	cfg := backend.config

	version, err := ResolveVersion(ctx, r.pool, backend.reader, cfg, address)
	if err != nil {
		return nil, err
	}

	controller, err := r.readController(ctx, backend, version, address)
	if err != nil {
		return nil, lookupFailed(ctx, "failed to read split controller", err)
	}

	head, err := r.heads.LatestBlock(ctx, cfg.Chain)
	if err != nil {
		return nil, lookupFailed(ctx, "failed to read chain head", err)
	}

	stats := Stats{Source: SourceProvider}

	blockRange := uint64(0)
	if cache != nil {
		blockRange = cache.BlockRange
	}
	if blockRange == 0 {
		schema, err := contracts.SchemaFor(version)
		if err != nil {
			return nil, err
		}
		blockRange = ProbeBlockRange(ctx, r.pool, backend.client, ProbeQuery{
			Addresses:  cfg.Factories(version),
			Topic:      schema.CreateTopic(),
			StartBlock: cfg.StartBlock(version),
		}, r.config.ProbeCandidates, r.config.FallbackBlockRange)
		stats.Probed = true
	}

	// A changed controller may have produced updates a short-circuited
	// previous scan never looked for, so only an unchanged one allows resuming
	resume := cache != nil && cache.ControllerMatches(controller) && cache.Blocks.LatestScannedBlock != nil
	if cache != nil && !resume {
		logger.DebugCtx(ctx, "Scan cache cannot be resumed, walking from head",
			zap.String("address", address.Hex()),
			zap.Bool("controller_matches", cache.ControllerMatches(controller)))
	}

	walk, err := backend.walker.Walk(ctx, WalkRequest{
		Split:      address,
		Chain:      cfg,
		Version:    version,
		BlockRange: blockRange,
		Head:       head,
		Cache:      cache,
		Resume:     resume,
	})
	if err != nil {
		if errors.Is(err, domain.ErrSplitNotFound) || ctx.Err() != nil {
			return nil, err
		}
		return nil, lookupFailed(ctx, "failed to walk split history", err)
	}
	stats.BlockRange = walk.BlockRange
	stats.Steps = walk.Steps
	stats.LogQueries = walk.Queries
	stats.StopReason = walk.StopReason

	input := BuildInput{
		Address:    address,
		Chain:      cfg,
		Version:    version,
		CreateLog:  walk.CreateLog,
		UpdateLog:  walk.UpdateLog,
		Controller: controller,
	}
	if cache != nil {
		input.CreateBlock = cache.Blocks.CreateBlock
	}

	if version.Family() == domain.FamilyV2 {
		input.Paused, err = backend.reader.Paused(ctx, address)
		if err != nil {
			return nil, lookupFailed(ctx, "failed to read split paused flag", err)
		}
		if walk.CreateLog == nil {
			input.Direction, err = r.readDirection(ctx, backend, version, address)
			if err != nil {
				return nil, err
			}
		}
	}

	split, err := BuildSplit(input)
	if err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "Resolved split from node",
		zap.String("address", address.Hex()),
		zap.String("chain", string(cfg.Chain)),
		zap.String("version", string(version)),
		zap.Uint64("create_block", split.CreateBlock),
		zap.Uint64("update_block", split.UpdateBlock),
		zap.Int("steps", stats.Steps),
		zap.Int("log_queries", stats.LogQueries))

	return &Result{
		Split: split,
		Cache: newScanCache(walk, controller, input.CreateBlock),
		Stats: stats,
	}, nil
}

func (r *Resolver) readController(ctx context.Context, backend *chainBackend, version domain.Version, address common.Address) (common.Address, error) {
	switch version {
	case domain.VersionV1:
		return backend.reader.GetController(ctx, backend.config.SplitMain, address)
	case domain.VersionV2, domain.VersionV21, domain.VersionV22:
		return backend.reader.Owner(ctx, address)
	}
	return common.Address{}, fmt.Errorf("%w: %q", domain.ErrUnknownVersion, version)
}

// readDirection derives the direction of a v2 split from the factory that deployed it
func (r *Resolver) readDirection(ctx context.Context, backend *chainBackend, version domain.Version, address common.Address) (domain.Direction, error) {
	factory, err := backend.reader.Factory(ctx, address)
	if err != nil {
		return "", lookupFailed(ctx, "failed to read split factory", err)
	}
	direction, ok := backend.config.DirectionOf(version, factory)
	if !ok {
		return "", fmt.Errorf("%w: split %s was deployed by unknown factory %s", domain.ErrLookupFailed, address.Hex(), factory.Hex())
	}
	return direction, nil
}

// newScanCache records the outcome of a walk for the next resolution
func newScanCache(walk *WalkResult, controller common.Address, cachedCreate *uint64) *domain.ScanCache {
	cache := &domain.ScanCache{
		BlockRange: walk.BlockRange,
		Controller: &controller,
		Blocks: domain.ScanBlocks{
			LatestScannedBlock: domain.Uint64Ptr(walk.LatestScannedBlock),
		},
	}
	switch {
	case walk.CreateLog != nil:
		cache.Blocks.CreateBlock = domain.Uint64Ptr(walk.CreateLog.BlockNumber)
	case cachedCreate != nil:
		cache.Blocks.CreateBlock = domain.Uint64Ptr(*cachedCreate)
	}
	if walk.UpdateLog != nil {
		cache.Blocks.UpdateBlock = domain.Uint64Ptr(walk.UpdateLog.BlockNumber)
	}
	return cache
}

// lookupFailed wraps a node failure as ErrLookupFailed. Only the caller's own
// cancellation is passed through; timeouts inside the node client are failures.
func lookupFailed(ctx context.Context, msg string, err error) error {
	if ctx.Err() != nil {
		return err
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrLookupFailed, msg, err)
}

func logIndexedFallback(ctx context.Context, address common.Address, chain domain.Chain, err error) {
	fields := []zap.Field{
		zap.String("address", address.Hex()),
		zap.String("chain", string(chain)),
		zap.Error(err),
	}
	// Chains without an index and splits it has not seen are routine
	if err == nil || errors.Is(err, domain.ErrUnsupportedChain) || errors.Is(err, domain.ErrSplitNotFound) {
		logger.DebugCtx(ctx, "Indexed split lookup missed, falling back to the node", fields...)
		return
	}
	logger.WarnCtx(ctx, "Indexed split lookup failed, falling back to the node", fields...)
}

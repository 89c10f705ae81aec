package splits

import (
	"context"
	"fmt"
	"math/big"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/feral-file/ff-splits/internal/adapter"
	"github.com/feral-file/ff-splits/internal/domain"
	"github.com/feral-file/ff-splits/internal/logger"
	"github.com/feral-file/ff-splits/internal/retry"
	"github.com/feral-file/ff-splits/internal/splits/contracts"
)

// StopReason records why a walk ended
type StopReason string

const (
	StopCreateFound   StopReason = "create_found"
	StopCachedCreate  StopReason = "update_found_create_cached"
	StopNewestVersion StopReason = "update_found_newest_version"
	StopExhausted     StopReason = "history_exhausted"
)

// WalkRequest describes one backwards walk over the history of a split
type WalkRequest struct {
	Split   common.Address
	Chain   domain.ChainConfig
	Version domain.Version
	// BlockRange is the largest window a single log query may span
	BlockRange uint64
	// Head is the block the walk starts from
	Head uint64
	// Cache is the previous scan result, nil for a first scan
	Cache *domain.ScanCache
	// Resume limits the walk to the blocks after Cache.Blocks.LatestScannedBlock
	Resume bool
}

// WalkResult holds the events located by a walk
type WalkResult struct {
	CreateLog  *contracts.SplitEvent
	UpdateLog  *contracts.SplitEvent
	BlockRange uint64
	// LatestScannedBlock is the head the walk started from
	LatestScannedBlock uint64
	StopReason         StopReason
	Steps              int
	Queries            int
}

// Walker walks chain history backwards in windows of BatchSize queries
type Walker struct {
	client      adapter.EthClient
	clock       adapter.Clock
	pool        pond.Pool
	batchSize   uint64
	maxAttempts int
}

// NewWalker creates a walker issuing queries through the pool
func NewWalker(client adapter.EthClient, clock adapter.Clock, pool pond.Pool, batchSize uint64, maxAttempts int) *Walker {
	return &Walker{
		client:      client,
		clock:       clock,
		pool:        pool,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
	}
}

// Walk searches the split's creation event and its most recent update event.
// It starts at req.Head and moves back one step of BlockRange*BatchSize blocks
// at a time until an exit rule applies or the version's deployment block is
// reached. Blocks already known from the cache are fetched directly instead of
// being walked again.
func (w *Walker) Walk(ctx context.Context, req WalkRequest) (*WalkResult, error) {
	if req.BlockRange == 0 {
		return nil, fmt.Errorf("block range must be positive")
	}

	schema, err := contracts.SchemaFor(req.Version)
	if err != nil {
		return nil, err
	}

	filter := newLogFilter(schema, req.Chain, req.Split)
	result := &WalkResult{
		BlockRange:         req.BlockRange,
		LatestScannedBlock: req.Head,
		StopReason:         StopExhausted,
	}

	var cachedCreate, cachedUpdate *uint64
	if req.Cache != nil {
		cachedCreate = req.Cache.Blocks.CreateBlock
		cachedUpdate = req.Cache.Blocks.UpdateBlock
	}

	floor := req.Chain.StartBlock(req.Version)
	if cachedCreate != nil {
		// Nothing before the creation block can concern the split
		floor = max(floor, *cachedCreate)
	}
	if req.Resume && req.Cache != nil && req.Cache.Blocks.LatestScannedBlock != nil {
		// Everything up to the previous head was covered by the previous scan
		floor = max(floor, *req.Cache.Blocks.LatestScannedBlock+1)
	}

	step := req.BlockRange * w.batchSize
	to := req.Head

	for to >= floor {
		from := floor
		if to-floor+1 > step {
			from = to - step + 1
		}

		events, queries, err := w.queryWindow(ctx, filter, from, to, req.BlockRange)
		result.Steps++
		result.Queries += queries
		if err != nil {
			return nil, err
		}

		logger.DebugCtx(ctx, "Walked split history window",
			zap.String("address", req.Split.Hex()),
			zap.String("chain", string(req.Chain.Chain)),
			zap.Uint64("from_block", from),
			zap.Uint64("to_block", to),
			zap.Int("events", len(events)))

		for _, e := range events {
			switch e.Kind {
			case contracts.EventCreate:
				if e.After(result.CreateLog) {
					result.CreateLog = e
				}
			case contracts.EventUpdate:
				if e.After(result.UpdateLog) {
					result.UpdateLog = e
				}
			}
		}

		if result.CreateLog != nil {
			result.StopReason = StopCreateFound
			break
		}
		if result.UpdateLog != nil && cachedCreate != nil {
			result.StopReason = StopCachedCreate
			break
		}
		// Unverified heuristic: the newest sub-version is assumed to have no
		// older, differently shaped update that could change the outcome.
		if result.UpdateLog != nil && req.Version.IsNewest() {
			result.StopReason = StopNewestVersion
			break
		}
		if from == floor {
			break
		}
		to = from - 1
	}

	if result.CreateLog == nil && cachedCreate != nil {
		if err := w.requery(ctx, filter, req.BlockRange, *cachedCreate, cachedUpdate, result); err != nil {
			return nil, err
		}
	} else if result.CreateLog == nil && result.UpdateLog == nil && cachedUpdate != nil && req.Resume {
		// A resumed newest-version scan may only know where the latest update is
		if err := w.requery(ctx, filter, req.BlockRange, *cachedUpdate, nil, result); err != nil {
			return nil, err
		}
	}

	if result.CreateLog == nil {
		if req.Version.RequiresCreateLog() || result.UpdateLog == nil {
			return nil, fmt.Errorf("%w: no creation event for %s on %s", domain.ErrSplitNotFound, req.Split.Hex(), req.Chain.Chain)
		}
		logger.InfoCtx(ctx, "Split creation event not located, using latest update only",
			zap.String("address", req.Split.Hex()),
			zap.String("version", string(req.Version)),
			zap.Uint64("update_block", result.UpdateLog.BlockNumber))
	}

	logger.DebugCtx(ctx, "Split history walk finished",
		zap.String("address", req.Split.Hex()),
		zap.String("chain", string(req.Chain.Chain)),
		zap.String("stop_reason", string(result.StopReason)),
		zap.Int("steps", result.Steps),
		zap.Int("queries", result.Queries))

	return result, nil
}

// requery fetches the logs at the cached creation and update blocks directly.
// Located events only replace walk results they are more recent than.
func (w *Walker) requery(ctx context.Context, filter *logFilter, blockRange uint64, first uint64, last *uint64, result *WalkResult) error {
	end := first
	if last != nil && *last > first {
		end = *last
	}

	var windows [][2]uint64
	if end-first+1 <= blockRange {
		windows = append(windows, [2]uint64{first, end})
	} else {
		// Too far apart for one query, fetch both blocks on their own
		windows = append(windows, [2]uint64{first, first}, [2]uint64{end, end})
	}

	for _, window := range windows {
		events, queries, err := w.queryWindow(ctx, filter, window[0], window[1], blockRange)
		result.Queries += queries
		if err != nil {
			return err
		}
		for _, e := range events {
			switch e.Kind {
			case contracts.EventCreate:
				if e.After(result.CreateLog) {
					result.CreateLog = e
				}
			case contracts.EventUpdate:
				if e.After(result.UpdateLog) {
					result.UpdateLog = e
				}
			}
		}
	}

	logger.DebugCtx(ctx, "Re-queried cached split blocks",
		zap.Uint64("from_block", first),
		zap.Uint64("to_block", end),
		zap.Bool("create_found", result.CreateLog != nil))
	return nil
}

// queryWindow queries [from, to] in sub-windows of at most blockRange blocks,
// concurrently, and returns the matching events
func (w *Walker) queryWindow(ctx context.Context, filter *logFilter, from, to, blockRange uint64) ([]*contracts.SplitEvent, int, error) {
	var windows [][2]uint64
	for start := from; start <= to; {
		end := to
		if end-start+1 > blockRange {
			end = start + blockRange - 1
		}
		windows = append(windows, [2]uint64{start, end})
		if end == to {
			break
		}
		start = end + 1
	}

	results := make([][]types.Log, len(windows))
	counts := make([]int, len(windows))
	group := w.pool.NewGroup()
	for i, window := range windows {
		group.SubmitErr(func() error {
			logs, queries, err := w.filterLogs(ctx, filter, window[0], window[1])
			counts[i] = queries
			if err != nil {
				return err
			}
			results[i] = logs
			return nil
		})
	}
	err := group.Wait()

	queries := 0
	for _, count := range counts {
		queries += count
	}
	if err != nil {
		return nil, queries, err
	}

	var events []*contracts.SplitEvent
	for _, logs := range results {
		for _, l := range logs {
			event, ok := filter.match(ctx, l)
			if ok {
				events = append(events, event)
			}
		}
	}
	return events, queries, nil
}

// filterLogs fetches the candidate logs of [from, to] with retries. A range the
// node refuses for the size of its result is halved until it is accepted or a
// single block is still refused.
func (w *Walker) filterLogs(ctx context.Context, filter *logFilter, from, to uint64) ([]types.Log, int, error) {
	query := filter.query(from, to)
	logs, err := retry.Do(ctx, w.clock, w.maxAttempts, func(ctx context.Context) ([]types.Log, error) {
		logs, err := w.client.FilterLogs(ctx, query)
		if retry.IsTooManyResults(err) {
			return nil, backoff.Permanent(err)
		}
		return logs, err
	})
	if err == nil {
		return logs, 1, nil
	}
	if !retry.IsTooManyResults(err) || from == to {
		return nil, 1, fmt.Errorf("failed to query logs in blocks %d-%d: %w", from, to, err)
	}

	mid := from + (to-from)/2
	logger.WarnCtx(ctx, "Too many results, splitting log query",
		zap.Uint64("from_block", from),
		zap.Uint64("to_block", to),
		zap.Uint64("split_at", mid),
		zap.Error(err))

	lower, lowerQueries, err := w.filterLogs(ctx, filter, from, mid)
	if err != nil {
		return nil, 1 + lowerQueries, err
	}
	upper, upperQueries, err := w.filterLogs(ctx, filter, mid+1, to)
	if err != nil {
		return nil, 1 + lowerQueries + upperQueries, err
	}
	return append(lower, upper...), 1 + lowerQueries + upperQueries, nil
}

// logFilter binds the candidate addresses and event schema of one split
type logFilter struct {
	schema     contracts.Schema
	split      common.Address
	candidates []common.Address
	factories  map[common.Address]bool
	topics     [][]common.Hash
}

func newLogFilter(schema contracts.Schema, chain domain.ChainConfig, split common.Address) *logFilter {
	f := &logFilter{
		schema:     schema,
		split:      split,
		candidates: chain.Candidates(schema.Version, split),
		factories:  make(map[common.Address]bool),
		topics:     [][]common.Hash{{schema.CreateTopic(), schema.UpdateTopic()}},
	}
	for _, factory := range chain.Factories(schema.Version) {
		f.factories[factory] = true
	}
	if !schema.UpdateEmittedBySplit() {
		// Both SplitMain events index the split, so the node can filter on it
		f.topics = append(f.topics, []common.Hash{common.BytesToHash(split.Bytes())})
	}
	return f
}

func (f *logFilter) query(from, to uint64) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: f.candidates,
		Topics:    f.topics,
	}
}

// match decodes the log when it is a creation or update event of the split
func (f *logFilter) match(ctx context.Context, l types.Log) (*contracts.SplitEvent, bool) {
	if l.Removed || len(l.Topics) == 0 {
		return nil, false
	}

	switch l.Topics[0] {
	case f.schema.CreateTopic():
		if !f.factories[l.Address] || len(l.Topics) < 2 || common.BytesToAddress(l.Topics[1].Bytes()) != f.split {
			return nil, false
		}
	case f.schema.UpdateTopic():
		if f.schema.UpdateEmittedBySplit() {
			if l.Address != f.split {
				return nil, false
			}
		} else if !f.factories[l.Address] || len(l.Topics) < 2 || common.BytesToAddress(l.Topics[1].Bytes()) != f.split {
			return nil, false
		}
	default:
		return nil, false
	}

	event, err := f.schema.Decode(l)
	if err != nil {
		logger.WarnCtx(ctx, "Skipping undecodable split log",
			zap.String("address", l.Address.Hex()),
			zap.Uint64("block_number", l.BlockNumber),
			zap.Uint("log_index", l.Index),
			zap.Error(err))
		return nil, false
	}
	return event, true
}

package splits

import (
	"context"
	"math/big"

	"github.com/alitto/pond/v2"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/feral-file/ff-splits/internal/adapter"
	"github.com/feral-file/ff-splits/internal/logger"
)

// ProbeQuery is the log query tested at every candidate window size. StartBlock
// must be a block known to hold the event, usually the deployment block.
type ProbeQuery struct {
	Addresses  []common.Address
	Topic      common.Hash
	StartBlock uint64
}

// ProbeBlockRange returns the largest candidate window size the node answers a
// log query for, starting at query.StartBlock. Candidates are tried
// concurrently and independently; failures are logged and absorbed. When
// every candidate fails, fallback is returned.
func ProbeBlockRange(ctx context.Context, pool pond.Pool, client adapter.EthClient, query ProbeQuery, candidates []uint64, fallback uint64) uint64 {
	accepted := make([]bool, len(candidates))

	group := pool.NewGroup()
	for i, size := range candidates {
		group.Submit(func() {
			if size == 0 {
				return
			}
			from := query.StartBlock
			to := from + size - 1

			// Probes are deliberately not retried: a rejected window is an answer
			_, err := client.FilterLogs(ctx, ethereum.FilterQuery{
				FromBlock: new(big.Int).SetUint64(from),
				ToBlock:   new(big.Int).SetUint64(to),
				Addresses: query.Addresses,
				Topics:    [][]common.Hash{{query.Topic}},
			})
			if err != nil {
				logger.DebugCtx(ctx, "Block range candidate rejected",
					zap.Uint64("block_range", size),
					zap.Uint64("from_block", from),
					zap.Uint64("to_block", to),
					zap.Error(err))
				return
			}
			accepted[i] = true
		})
	}
	_ = group.Wait()

	var best uint64
	for i, size := range candidates {
		if accepted[i] && size > best {
			best = size
		}
	}

	if best == 0 {
		logger.WarnCtx(ctx, "No block range candidate accepted, using fallback",
			zap.Uint64s("candidates", candidates),
			zap.Uint64("block_range", fallback))
		return fallback
	}

	logger.DebugCtx(ctx, "Probed block range", zap.Uint64("block_range", best))
	return best
}

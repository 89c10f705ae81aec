package splits_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/feral-file/ff-splits/internal/splits"
	"github.com/feral-file/ff-splits/internal/splits/contracts"
	"github.com/feral-file/ff-splits/internal/splits/splitstest"
)

func probeQuery() splits.ProbeQuery {
	return splits.ProbeQuery{
		Addresses:  []common.Address{splitMain},
		Topic:      contracts.SplitMainV1ABI.Events["CreateSplit"].ID,
		StartBlock: startBlock,
	}
}

func TestProbeBlockRange_SelectsLargestAccepted(t *testing.T) {
	tests := []struct {
		name     string
		maxRange uint64
		expected uint64
	}{
		{name: "unlimited node", maxRange: 0, expected: 1_000_000},
		{name: "10k limit", maxRange: 10_000, expected: 10_000},
		{name: "between candidates", maxRange: 7_500, expected: 5_000},
		{name: "tight limit", maxRange: 2_000, expected: 1_250},
		{name: "below every candidate", maxRange: 500, expected: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := splitstest.NewNode(2_000_000)
			node.SetMaxRange(tt.maxRange)

			got := splits.ProbeBlockRange(context.Background(), newPool(t), node, probeQuery(), splits.DefaultProbeCandidates, 42)

			assert.Equal(t, tt.expected, got)
			if tt.maxRange > 0 {
				assert.LessOrEqual(t, got, tt.maxRange)
			}
			// Every candidate is tried exactly once
			assert.Equal(t, len(splits.DefaultProbeCandidates), node.LogQueries())
		})
	}
}

func TestProbeBlockRange_NeverExceedsNodeLimit(t *testing.T) {
	candidates := []uint64{50_000, 20_000, 9_000, 3_000, 800}
	for _, limit := range []uint64{800, 2_999, 3_000, 9_001, 49_999} {
		node := splitstest.NewNode(2_000_000)
		node.SetMaxRange(limit)

		got := splits.ProbeBlockRange(context.Background(), newPool(t), node, probeQuery(), candidates, 1)

		assert.LessOrEqual(t, got, limit)
	}
}

func TestProbeBlockRange_FallbackWhenNodeFails(t *testing.T) {
	node := splitstest.NewNode(2_000_000)
	node.FailNextLogQueries(4)

	got := splits.ProbeBlockRange(context.Background(), newPool(t), node, probeQuery(), splits.DefaultProbeCandidates, 1_000)

	assert.Equal(t, uint64(1_000), got)
}

package splits_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-splits/internal/domain"
	"github.com/feral-file/ff-splits/internal/splits"
	"github.com/feral-file/ff-splits/internal/splits/contracts"
	"github.com/feral-file/ff-splits/internal/splits/splitstest"
)

type versionFixture struct {
	node   *splitstest.Node
	clock  *splitstest.Clock
	reader *contracts.Caller
}

func setupVersionFixture() *versionFixture {
	node := splitstest.NewNode(10_000)
	node.AddSplitMain(splitMain)
	clock := splitstest.NewClock(time.Time{})
	return &versionFixture{
		node:   node,
		clock:  clock,
		reader: contracts.NewCaller(node, clock, 3),
	}
}

func TestResolveVersion_V1(t *testing.T) {
	f := setupVersionFixture()
	split := splitstest.Address("v1-split")
	f.node.AddV1Split(splitMain, split, owner)

	version, err := splits.ResolveVersion(context.Background(), newPool(t), f.reader, chainConfig(domain.ChainBase), split)

	require.NoError(t, err)
	assert.Equal(t, domain.VersionV1, version)
}

func TestResolveVersion_V2SubVersions(t *testing.T) {
	tests := []struct {
		reported string
		expected domain.Version
	}{
		{reported: "2", expected: domain.VersionV2},
		{reported: "2.1", expected: domain.VersionV21},
		{reported: "2.2", expected: domain.VersionV22},
	}

	for _, tt := range tests {
		t.Run(tt.reported, func(t *testing.T) {
			f := setupVersionFixture()
			split := splitstest.Address("v2-split-" + tt.reported)
			f.node.AddV2Split(split, tt.reported, owner, pullFactory(tt.expected), false)

			version, err := splits.ResolveVersion(context.Background(), newPool(t), f.reader, chainConfig(domain.ChainBase), split)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, version)
		})
	}
}

func TestResolveVersion_UnknownVersionIsNotFound(t *testing.T) {
	f := setupVersionFixture()
	split := splitstest.Address("v3-split")
	f.node.AddV2Split(split, "3", owner, pullFactory(domain.VersionV22), false)

	_, err := splits.ResolveVersion(context.Background(), newPool(t), f.reader, chainConfig(domain.ChainBase), split)

	assert.ErrorIs(t, err, domain.ErrSplitNotFound)
	assert.ErrorIs(t, err, domain.ErrUnknownVersion)
}

func TestResolveVersion_BothFamiliesIsAmbiguous(t *testing.T) {
	f := setupVersionFixture()
	split := splitstest.Address("both")
	f.node.AddV1Split(splitMain, split, owner)
	f.node.AddV2Split(split, "2.1", owner, pullFactory(domain.VersionV21), false)

	_, err := splits.ResolveVersion(context.Background(), newPool(t), f.reader, chainConfig(domain.ChainBase), split)

	assert.ErrorIs(t, err, domain.ErrAmbiguousProtocol)
}

func TestResolveVersion_NeitherFamilyIsNotFound(t *testing.T) {
	f := setupVersionFixture()

	_, err := splits.ResolveVersion(context.Background(), newPool(t), f.reader, chainConfig(domain.ChainBase), alice)

	assert.ErrorIs(t, err, domain.ErrSplitNotFound)
}

func TestResolveVersion_V1OnPrimaryNetworkIsUnsupported(t *testing.T) {
	f := setupVersionFixture()
	split := splitstest.Address("v1-split")
	f.node.AddV1Split(splitMain, split, owner)

	_, err := splits.ResolveVersion(context.Background(), newPool(t), f.reader, chainConfig(domain.ChainEthereumMainnet), split)

	assert.ErrorIs(t, err, domain.ErrUnsupportedLookup)
	assert.Zero(t, f.node.LogQueries())
}

func TestResolveVersion_UndeployedFamilyCountsAsFailedProbe(t *testing.T) {
	f := setupVersionFixture()
	split := splitstest.Address("v1-split")
	f.node.AddV1Split(splitMain, split, owner)

	cfg := chainConfig(domain.ChainBase)
	cfg.SplitMain = [20]byte{}

	_, err := splits.ResolveVersion(context.Background(), newPool(t), f.reader, cfg, split)

	assert.ErrorIs(t, err, domain.ErrSplitNotFound)
}

func TestResolveVersion_SubVersionNotConfigured(t *testing.T) {
	f := setupVersionFixture()
	split := splitstest.Address("v22-split")
	f.node.AddV2Split(split, "2.2", owner, pullFactory(domain.VersionV22), false)

	cfg := chainConfig(domain.ChainBase)
	delete(cfg.V2, domain.VersionV22)

	_, err := splits.ResolveVersion(context.Background(), newPool(t), f.reader, cfg, split)

	assert.ErrorIs(t, err, domain.ErrUnsupportedChain)
}

func TestResolveVersion_StoppedPoolIsLookupFailure(t *testing.T) {
	f := setupVersionFixture()
	split := splitstest.Address("v1-split")
	f.node.AddV1Split(splitMain, split, owner)
	pool := newPool(t)
	pool.StopAndWait()

	_, err := splits.ResolveVersion(context.Background(), pool, f.reader, chainConfig(domain.ChainBase), split)

	assert.ErrorIs(t, err, domain.ErrLookupFailed)
	assert.NotErrorIs(t, err, domain.ErrSplitNotFound)
}

package domain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChain_EVMChainID(t *testing.T) {
	tests := []struct {
		name     string
		chain    Chain
		expected uint64
		wantErr  bool
	}{
		{name: "ethereum mainnet", chain: ChainEthereumMainnet, expected: 1},
		{name: "base", chain: ChainBase, expected: 8453},
		{name: "sepolia", chain: ChainEthereumSepolia, expected: 11155111},
		{name: "tezos namespace", chain: Chain("tezos:mainnet"), wantErr: true},
		{name: "non numeric reference", chain: Chain("eip155:base"), wantErr: true},
		{name: "missing reference", chain: Chain("eip155"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := tt.chain.EVMChainID()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedChain)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, id)
		})
	}
}

func TestChain_IsPrimary(t *testing.T) {
	assert.True(t, ChainEthereumMainnet.IsPrimary())
	assert.False(t, ChainBase.IsPrimary())
	assert.False(t, ChainEthereumSepolia.IsPrimary())
}

func TestVersion(t *testing.T) {
	tests := []struct {
		version        Version
		family         Family
		newest         bool
		requiresCreate bool
	}{
		{version: VersionV1, family: FamilyV1, requiresCreate: true},
		{version: VersionV2, family: FamilyV2, requiresCreate: true},
		{version: VersionV21, family: FamilyV2},
		{version: VersionV22, family: FamilyV2, newest: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.version), func(t *testing.T) {
			assert.Equal(t, tt.family, tt.version.Family())
			assert.Equal(t, tt.newest, tt.version.IsNewest())
			assert.Equal(t, tt.requiresCreate, tt.version.RequiresCreateLog())
		})
	}
}

func TestParseV2Version(t *testing.T) {
	tests := []struct {
		input    string
		expected Version
		wantErr  bool
	}{
		{input: "2", expected: VersionV2},
		{input: "2.1", expected: VersionV21},
		{input: "2.2", expected: VersionV22},
		{input: "2.3", wantErr: true},
		{input: "1", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := ParseV2Version(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownVersion)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x742d35cc6634c0532925a3b844bc9e7595f0beb0"), addr)

	_, err = ParseAddress("0x742d35")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = ParseAddress("tz1VSUr8wwNhLAzempoch5d6hLRiTh8Cjcjb")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func testChainConfig() ChainConfig {
	return ChainConfig{
		Chain:        ChainBase,
		SplitMain:    common.HexToAddress("0x01"),
		V1StartBlock: 10,
		V2: map[Version]FactorySet{
			VersionV2:  {Pull: common.HexToAddress("0x20"), Push: common.HexToAddress("0x21"), StartBlock: 200},
			VersionV21: {Pull: common.HexToAddress("0x30"), Push: common.HexToAddress("0x31"), StartBlock: 300},
		},
	}
}

func TestChainConfig(t *testing.T) {
	cfg := testChainConfig()
	split := common.HexToAddress("0xabc")

	assert.True(t, cfg.SupportsV1())
	assert.True(t, cfg.SupportsV2())
	assert.False(t, ChainConfig{Chain: ChainBase}.SupportsV1())
	assert.False(t, ChainConfig{Chain: ChainBase}.SupportsV2())

	assert.Equal(t, uint64(10), cfg.StartBlock(VersionV1))
	assert.Equal(t, uint64(300), cfg.StartBlock(VersionV21))

	assert.Equal(t, []common.Address{cfg.SplitMain}, cfg.Candidates(VersionV1, split))
	assert.Equal(t,
		[]common.Address{split, common.HexToAddress("0x30"), common.HexToAddress("0x31")},
		cfg.Candidates(VersionV21, split))

	direction, ok := cfg.DirectionOf(VersionV2, common.HexToAddress("0x21"))
	assert.True(t, ok)
	assert.Equal(t, DirectionPush, direction)

	direction, ok = cfg.DirectionOf(VersionV21, common.HexToAddress("0x30"))
	assert.True(t, ok)
	assert.Equal(t, DirectionPull, direction)

	_, ok = cfg.DirectionOf(VersionV21, common.HexToAddress("0x20"))
	assert.False(t, ok)
	_, ok = cfg.DirectionOf(VersionV22, common.HexToAddress("0x30"))
	assert.False(t, ok)
}

func TestScanCache_Clone(t *testing.T) {
	controller := common.HexToAddress("0xc0")
	cache := &ScanCache{
		BlockRange: 5000,
		Controller: &controller,
		Blocks: ScanBlocks{
			CreateBlock:        Uint64Ptr(100),
			LatestScannedBlock: Uint64Ptr(900),
		},
	}

	clone := cache.Clone()
	require.Equal(t, cache, clone)

	*clone.Controller = common.HexToAddress("0xc1")
	*clone.Blocks.CreateBlock = 200
	assert.Equal(t, controller, *cache.Controller)
	assert.Equal(t, uint64(100), *cache.Blocks.CreateBlock)
	assert.Nil(t, clone.Blocks.UpdateBlock)

	var empty *ScanCache
	assert.Nil(t, empty.Clone())
}

func TestScanCache_ControllerMatches(t *testing.T) {
	controller := common.HexToAddress("0xc0")

	var empty *ScanCache
	assert.False(t, empty.ControllerMatches(controller))
	assert.False(t, (&ScanCache{}).ControllerMatches(controller))
	assert.True(t, (&ScanCache{Controller: &controller}).ControllerMatches(controller))
	assert.False(t, (&ScanCache{Controller: &controller}).ControllerMatches(common.HexToAddress("0xc1")))
}

func TestPercentOf(t *testing.T) {
	tests := []struct {
		name     string
		value    *big.Int
		total    *big.Int
		expected float64
	}{
		{name: "share", value: big.NewInt(300_000), total: big.NewInt(1_000_000), expected: 30},
		{name: "whole", value: big.NewInt(54), total: big.NewInt(54), expected: 100},
		{name: "fraction", value: big.NewInt(1), total: big.NewInt(3), expected: 100.0 / 3},
		{name: "zero total", value: big.NewInt(5), total: new(big.Int), expected: 0},
		{name: "nil total", value: big.NewInt(5), total: nil, expected: 0},
		{name: "nil value", value: nil, total: big.NewInt(5), expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PercentOf(tt.value, tt.total))
		})
	}
}

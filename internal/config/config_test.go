package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-splits/internal/domain"
)

const baseChainYAML = `
chains:
  - chain_id: "eip155:8453"
    rpc_url: "https://base.example.com"
    subgraph_url: "https://subgraph.example.com/base"
    split_main: "0x2ed6c4B5dA6378c7897AC67Ba9e43102Feb694EE"
    v1_start_block: 2000000
    v2_1:
      pull: "0x80f1B766817D04870f115fEBbcCADF8DBF75E017"
      push: "0xaDC87646f736d6A82e9a6539cddC488b2aA07f38"
      start_block: 15000000
    rate_limit:
      requests_per_second: 25
      burst: 50
      max_queue_time: 30s
`

func TestLoadResolverConfig(t *testing.T) {
	tests := []struct {
		name        string
		configFile  string
		expectError bool
		validate    func(*testing.T, *ResolverConfig)
	}{
		{
			name: "valid config file",
			configFile: `
debug: true
sentry_dsn: "https://sentry.example.com"
scan:
  probe_candidates: [10000, 2000]
  fallback_block_range: 500
  batch_size: 10
  max_attempts: 5
  query_concurrency: 4
  head_ttl: 6s
  head_stale_window: 1m
subgraph:
  enabled: true
  timeout: 3s
cache_store:
  type: redis
  redis_addr: "redis:6379"
  redis_db: 2
  ttl: 24h
` + baseChainYAML,
			validate: func(t *testing.T, cfg *ResolverConfig) {
				assert.True(t, cfg.Debug)
				assert.Equal(t, "https://sentry.example.com", cfg.SentryDSN)
				assert.Equal(t, []uint64{10000, 2000}, cfg.Scan.ProbeCandidates)
				assert.Equal(t, uint64(500), cfg.Scan.FallbackBlockRange)
				assert.Equal(t, uint64(10), cfg.Scan.BatchSize)
				assert.Equal(t, 5, cfg.Scan.MaxAttempts)
				assert.Equal(t, 4, cfg.Scan.QueryConcurrency)
				assert.Equal(t, 6*time.Second, cfg.Scan.HeadTTL)
				assert.Equal(t, time.Minute, cfg.Scan.HeadStaleWindow)
				assert.True(t, cfg.Subgraph.Enabled)
				assert.Equal(t, 3*time.Second, cfg.Subgraph.Timeout)
				assert.Equal(t, CacheStoreRedis, cfg.CacheStore.Type)
				assert.Equal(t, "redis:6379", cfg.CacheStore.RedisAddr)
				assert.Equal(t, 2, cfg.CacheStore.RedisDB)
				assert.Equal(t, 24*time.Hour, cfg.CacheStore.TTL)

				require.Len(t, cfg.Chains, 1)
				chain := cfg.Chains[0]
				assert.Equal(t, domain.ChainBase, chain.ChainID)
				assert.Equal(t, "https://base.example.com", chain.RPCURL)
				assert.Nil(t, chain.V2)
				require.NotNil(t, chain.V21)
				assert.Equal(t, uint64(15000000), chain.V21.StartBlock)
				require.NotNil(t, chain.RateLimit)
				assert.Equal(t, 25, chain.RateLimit.RequestsPerSecond)
				assert.Equal(t, 30*time.Second, chain.RateLimit.MaxQueueTime)
			},
		},
		{
			name:       "config with defaults",
			configFile: baseChainYAML,
			validate: func(t *testing.T, cfg *ResolverConfig) {
				assert.False(t, cfg.Debug)
				assert.Equal(t, []uint64{1_000_000, 10_000, 5_000, 1_250}, cfg.Scan.ProbeCandidates)
				assert.Equal(t, uint64(1000), cfg.Scan.FallbackBlockRange)
				assert.Equal(t, uint64(20), cfg.Scan.BatchSize)
				assert.Equal(t, 3, cfg.Scan.MaxAttempts)
				assert.Equal(t, 8, cfg.Scan.QueryConcurrency)
				assert.Equal(t, 12*time.Second, cfg.Scan.HeadTTL)
				assert.Equal(t, 2*time.Minute, cfg.Scan.HeadStaleWindow)
				assert.False(t, cfg.Subgraph.Enabled)
				assert.Equal(t, 10*time.Second, cfg.Subgraph.Timeout)
				assert.Equal(t, CacheStoreFile, cfg.CacheStore.Type)
				assert.Equal(t, ".cache/split-resolver.json", cfg.CacheStore.Path)
			},
		},
		{
			name:        "missing chains",
			configFile:  "debug: true\n",
			expectError: true,
		},
		{
			name: "invalid factory address",
			configFile: `
chains:
  - chain_id: "eip155:10"
    rpc_url: "https://optimism.example.com"
    v2:
      pull: "0x1234"
      push: "0xaDC87646f736d6A82e9a6539cddC488b2aA07f38"
`,
			expectError: true,
		},
		{
			name:        "zero batch size",
			configFile:  baseChainYAML + "scan:\n  batch_size: 0\n",
			expectError: true,
		},
		{
			name:        "unknown cache store",
			configFile:  baseChainYAML + "cache_store:\n  type: memcached\n",
			expectError: true,
		},
		{
			name: "invalid yaml",
			configFile: `
				scan:
				  batch_size: invalid
			`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configFile := filepath.Join(tmpDir, "config.yaml")
			err := os.WriteFile(configFile, []byte(tt.configFile), 0600)
			require.NoError(t, err)

			cfg, err := LoadResolverConfig(configFile, tmpDir)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, cfg)
			tt.validate(t, cfg)
		})
	}
}

func TestChainTable_ChainConfig(t *testing.T) {
	table := ChainTable{
		ChainID:      domain.ChainBase,
		SplitMain:    "0x2ed6c4B5dA6378c7897AC67Ba9e43102Feb694EE",
		V1StartBlock: 100,
		V22: &FactoryConfig{
			Pull:       "0x80f1B766817D04870f115fEBbcCADF8DBF75E017",
			Push:       "0xaDC87646f736d6A82e9a6539cddC488b2aA07f38",
			StartBlock: 200,
		},
	}

	cfg, err := table.ChainConfig()
	require.NoError(t, err)
	assert.Equal(t, domain.ChainBase, cfg.Chain)
	assert.Equal(t, common.HexToAddress("0x2ed6c4B5dA6378c7897AC67Ba9e43102Feb694EE"), cfg.SplitMain)
	assert.True(t, cfg.SupportsV1())
	assert.Equal(t, uint64(200), cfg.StartBlock(domain.VersionV22))
	assert.Equal(t, common.HexToAddress("0x80f1B766817D04870f115fEBbcCADF8DBF75E017"), cfg.V2[domain.VersionV22].Pull)
	_, ok := cfg.V2[domain.VersionV2]
	assert.False(t, ok)

	_, err = ChainTable{ChainID: domain.ChainBase}.ChainConfig()
	assert.ErrorContains(t, err, "no split contracts configured")

	_, err = ChainTable{ChainID: "tezos:mainnet", SplitMain: "0x2ed6c4B5dA6378c7897AC67Ba9e43102Feb694EE"}.ChainConfig()
	assert.ErrorIs(t, err, domain.ErrUnsupportedChain)
}

func TestScanConfig_SplitsConfig(t *testing.T) {
	scan := ScanConfig{
		ProbeCandidates:    []uint64{100},
		FallbackBlockRange: 50,
		BatchSize:          4,
		MaxAttempts:        2,
		QueryConcurrency:   1,
		HeadTTL:            time.Second,
		HeadStaleWindow:    time.Minute,
	}

	cfg := scan.SplitsConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, []uint64{100}, cfg.ProbeCandidates)
	assert.Equal(t, uint64(4), cfg.BatchSize)
	assert.Equal(t, time.Minute, cfg.HeadStaleWindow)
}

func TestResolverConfig_SubgraphURLs(t *testing.T) {
	cfg := &ResolverConfig{Chains: []ChainTable{
		{ChainID: domain.ChainBase, SubgraphURL: "https://subgraph.example.com/base"},
		{ChainID: domain.ChainOptimism},
	}}

	assert.Equal(t, map[domain.Chain]string{domain.ChainBase: "https://subgraph.example.com/base"}, cfg.SubgraphURLs())

	chain, ok := cfg.Chain(domain.ChainOptimism)
	assert.True(t, ok)
	assert.Equal(t, domain.ChainOptimism, chain.ChainID)
	_, ok = cfg.Chain(domain.ChainPolygon)
	assert.False(t, ok)
}

func TestConfigWithEnvironmentVariables(t *testing.T) {
	tmpDir := t.TempDir()

	envDir := filepath.Join(tmpDir, "env")
	err := os.MkdirAll(envDir, 0750)
	require.NoError(t, err)

	// Viper uses the FF_SPLITS_ prefix
	envFile := filepath.Join(envDir, ".env")
	envContent := `FF_SPLITS_DEBUG=true
FF_SPLITS_SCAN_BATCH_SIZE=7
FF_SPLITS_SCAN_PROBE_CANDIDATES=4000,800
FF_SPLITS_CACHE_STORE_TYPE=memory
`
	err = os.WriteFile(envFile, []byte(envContent), 0600)
	require.NoError(t, err)
	t.Cleanup(func() {
		for _, key := range []string{"FF_SPLITS_DEBUG", "FF_SPLITS_SCAN_BATCH_SIZE", "FF_SPLITS_SCAN_PROBE_CANDIDATES", "FF_SPLITS_CACHE_STORE_TYPE"} {
			_ = os.Unsetenv(key)
		}
	})

	configPath := filepath.Join(tmpDir, "config.yaml")
	configFile := `
debug: false
scan:
  batch_size: 30
cache_store:
  type: file
` + baseChainYAML

	err = os.WriteFile(configPath, []byte(configFile), 0600)
	require.NoError(t, err)

	cfg, err := LoadResolverConfig(configPath, envDir)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Values from the .env file override the config file
	assert.True(t, cfg.Debug)
	assert.Equal(t, uint64(7), cfg.Scan.BatchSize)
	assert.Equal(t, []uint64{4000, 800}, cfg.Scan.ProbeCandidates)
	assert.Equal(t, CacheStoreMemory, cfg.CacheStore.Type)
}

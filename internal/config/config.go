package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/feral-file/ff-splits/internal/domain"
	"github.com/feral-file/ff-splits/internal/ratelimit"
	"github.com/feral-file/ff-splits/internal/splits"
)

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// FactoryConfig holds the factories of one v2 sub-version
type FactoryConfig struct {
	Pull       string `mapstructure:"pull"`
	Push       string `mapstructure:"push"`
	StartBlock uint64 `mapstructure:"start_block"`
}

// RateLimitConfig holds the request budget of a node
type RateLimitConfig struct {
	RequestsPerSecond int           `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	MaxQueueTime      time.Duration `mapstructure:"max_queue_time"`
	Distributed       bool          `mapstructure:"distributed"` // share the budget through the cache store Redis
}

// ChainTable holds the node and contract addresses of one chain
type ChainTable struct {
	ChainID      domain.Chain     `mapstructure:"chain_id"`
	RPCURL       string           `mapstructure:"rpc_url"`
	SubgraphURL  string           `mapstructure:"subgraph_url"`
	SplitMain    string           `mapstructure:"split_main"` // empty when v1 is not deployed
	V1StartBlock uint64           `mapstructure:"v1_start_block"`
	V2           *FactoryConfig   `mapstructure:"v2"`
	V21          *FactoryConfig   `mapstructure:"v2_1"`
	V22          *FactoryConfig   `mapstructure:"v2_2"`
	RateLimit    *RateLimitConfig `mapstructure:"rate_limit"`
}

// ScanConfig holds the node scanning configuration
type ScanConfig struct {
	ProbeCandidates    []uint64      `mapstructure:"probe_candidates"`
	FallbackBlockRange uint64        `mapstructure:"fallback_block_range"`
	BatchSize          uint64        `mapstructure:"batch_size"`
	MaxAttempts        int           `mapstructure:"max_attempts"`
	QueryConcurrency   int           `mapstructure:"query_concurrency"`
	HeadTTL            time.Duration `mapstructure:"head_ttl"`
	HeadStaleWindow    time.Duration `mapstructure:"head_stale_window"`
}

// SubgraphConfig holds the indexed lookup configuration
type SubgraphConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CacheStoreConfig holds the scan cache persistence configuration
type CacheStoreConfig struct {
	Type          string        `mapstructure:"type"` // memory, file or redis
	Path          string        `mapstructure:"path"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// Cache store types
const (
	CacheStoreMemory = "memory"
	CacheStoreFile   = "file"
	CacheStoreRedis  = "redis"
)

// ResolverConfig holds configuration for split-resolver
type ResolverConfig struct {
	BaseConfig `mapstructure:",squash"`
	Chains     []ChainTable     `mapstructure:"chains"`
	Scan       ScanConfig       `mapstructure:"scan"`
	Subgraph   SubgraphConfig   `mapstructure:"subgraph"`
	CacheStore CacheStoreConfig `mapstructure:"cache_store"`
}

// LoadResolverConfig loads configuration for split-resolver
func LoadResolverConfig(configFile string, envPath string) (*ResolverConfig, error) {
	v := configureViper("split-resolver", configFile, envPath)

	// Set defaults
	v.SetDefault("scan.probe_candidates", splits.DefaultProbeCandidates)
	v.SetDefault("scan.fallback_block_range", splits.DefaultFallbackBlockRange)
	v.SetDefault("scan.batch_size", splits.DefaultBatchSize)
	v.SetDefault("scan.max_attempts", 3)
	v.SetDefault("scan.query_concurrency", splits.DefaultQueryConcurrency)
	v.SetDefault("scan.head_ttl", "12s")
	v.SetDefault("scan.head_stale_window", "2m")
	v.SetDefault("subgraph.timeout", "10s")
	v.SetDefault("cache_store.type", CacheStoreFile)
	v.SetDefault("cache_store.path", ".cache/split-resolver.json")
	v.SetDefault("cache_store.redis_addr", "localhost:6379")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config ResolverConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks the configuration
func (c *ResolverConfig) Validate() error {
	if len(c.Chains) == 0 {
		return fmt.Errorf("at least one chain is required")
	}

	seen := make(map[domain.Chain]bool, len(c.Chains))
	for i, chain := range c.Chains {
		if chain.ChainID == "" {
			return fmt.Errorf("chains[%d]: chain_id is required", i)
		}
		if seen[chain.ChainID] {
			return fmt.Errorf("chains[%d]: duplicate chain %s", i, chain.ChainID)
		}
		seen[chain.ChainID] = true
		if chain.RPCURL == "" {
			return fmt.Errorf("chain %s: rpc_url is required", chain.ChainID)
		}
		if _, err := chain.ChainConfig(); err != nil {
			return err
		}
	}

	if err := c.Scan.SplitsConfig().Validate(); err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	switch c.CacheStore.Type {
	case CacheStoreMemory:
	case CacheStoreFile:
		if c.CacheStore.Path == "" {
			return fmt.Errorf("cache_store: path is required for the file store")
		}
	case CacheStoreRedis:
		if c.CacheStore.RedisAddr == "" {
			return fmt.Errorf("cache_store: redis_addr is required for the redis store")
		}
	default:
		return fmt.Errorf("cache_store: unknown type %q", c.CacheStore.Type)
	}

	return nil
}

// Chain returns the table of the given chain
func (c *ResolverConfig) Chain(id domain.Chain) (ChainTable, bool) {
	for _, chain := range c.Chains {
		if chain.ChainID == id {
			return chain, true
		}
	}
	return ChainTable{}, false
}

// SubgraphURLs returns the subgraph endpoint of every chain that has one
func (c *ResolverConfig) SubgraphURLs() map[domain.Chain]string {
	urls := make(map[domain.Chain]string)
	for _, chain := range c.Chains {
		if chain.SubgraphURL != "" {
			urls[chain.ChainID] = chain.SubgraphURL
		}
	}
	return urls
}

// ChainConfig converts the table into the address table used by the resolver
func (t ChainTable) ChainConfig() (domain.ChainConfig, error) {
	if _, err := t.ChainID.EVMChainID(); err != nil {
		return domain.ChainConfig{}, err
	}

	cfg := domain.ChainConfig{
		Chain:        t.ChainID,
		V1StartBlock: t.V1StartBlock,
		V2:           make(map[domain.Version]domain.FactorySet),
	}

	if t.SplitMain != "" {
		addr, err := domain.ParseAddress(t.SplitMain)
		if err != nil {
			return domain.ChainConfig{}, fmt.Errorf("chain %s: split_main: %w", t.ChainID, err)
		}
		cfg.SplitMain = addr
	}

	factories := map[domain.Version]*FactoryConfig{
		domain.VersionV2:  t.V2,
		domain.VersionV21: t.V21,
		domain.VersionV22: t.V22,
	}
	for version, fc := range factories {
		if fc == nil {
			continue
		}
		pull, err := domain.ParseAddress(fc.Pull)
		if err != nil {
			return domain.ChainConfig{}, fmt.Errorf("chain %s: %s pull factory: %w", t.ChainID, version, err)
		}
		push, err := domain.ParseAddress(fc.Push)
		if err != nil {
			return domain.ChainConfig{}, fmt.Errorf("chain %s: %s push factory: %w", t.ChainID, version, err)
		}
		cfg.V2[version] = domain.FactorySet{
			Pull:       pull,
			Push:       push,
			StartBlock: fc.StartBlock,
		}
	}

	if !cfg.SupportsV1() && !cfg.SupportsV2() {
		return domain.ChainConfig{}, fmt.Errorf("chain %s: no split contracts configured", t.ChainID)
	}
	return cfg, nil
}

// LimiterConfig converts the rate limit section
func (r RateLimitConfig) LimiterConfig() ratelimit.Config {
	return ratelimit.Config{
		RequestsPerSecond: r.RequestsPerSecond,
		Burst:             r.Burst,
		MaxQueueTime:      r.MaxQueueTime,
	}
}

// SplitsConfig converts the scan section into the resolver configuration
func (c ScanConfig) SplitsConfig() splits.Config {
	return splits.Config{
		ProbeCandidates:    c.ProbeCandidates,
		FallbackBlockRange: c.FallbackBlockRange,
		BatchSize:          c.BatchSize,
		MaxAttempts:        c.MaxAttempts,
		QueryConcurrency:   c.QueryConcurrency,
		HeadTTL:            c.HeadTTL,
		HeadStaleWindow:    c.HeadStaleWindow,
	}
}

func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	// Load environment variables
	loadEnv(envPath, service)

	// Set config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// Search for config.yaml in multiple locations:
		// 1. Current directory
		v.AddConfigPath(".")
		// 2. Service-specific directory (e.g., cmd/split-resolver/)
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		// 3. Config directory
		v.AddConfigPath("config/")
	}

	// Set environment variables
	v.SetEnvPrefix("FF_SPLITS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind all environment variables
	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars explicitly binds all possible environment variables
// This is required for viper to map env vars to config struct fields when no config file exists
func bindAllEnvVars(v *viper.Viper) {
	commonKeys := []string{
		"debug",
		"sentry_dsn",
		// Scan
		"scan.probe_candidates",
		"scan.fallback_block_range",
		"scan.batch_size",
		"scan.max_attempts",
		"scan.query_concurrency",
		"scan.head_ttl",
		"scan.head_stale_window",
		// Subgraph
		"subgraph.enabled",
		"subgraph.timeout",
		// Cache store
		"cache_store.type",
		"cache_store.path",
		"cache_store.redis_addr",
		"cache_store.redis_password",
		"cache_store.redis_db",
		"cache_store.key_prefix",
		"cache_store.ttl",
	}

	for _, key := range commonKeys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads environment variables from the config directory
func loadEnv(envPath string, service string) {
	// Always try shared base first, then local, then optional per-service local.
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	// Default to config directory
	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		candidate := filepath.Join(envPath, envFile)
		_ = godotenv.Overload(candidate) // Overload lets later files override earlier ones
	}
}

// ChdirRepoRoot changes the current working directory to the repository root
func ChdirRepoRoot() {
	cwd, _ := os.Getwd()
	for range 5 {
		if _, err := os.Stat(filepath.Join(cwd, "config")); err == nil {
			_ = os.Chdir(cwd)
			return
		}
		cwd = filepath.Dir(cwd)
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/feral-file/ff-splits/internal/adapter"
	"github.com/feral-file/ff-splits/internal/cachestore"
	"github.com/feral-file/ff-splits/internal/config"
	"github.com/feral-file/ff-splits/internal/domain"
	"github.com/feral-file/ff-splits/internal/logger"
	"github.com/feral-file/ff-splits/internal/providers/subgraph"
	"github.com/feral-file/ff-splits/internal/ratelimit"
	"github.com/feral-file/ff-splits/internal/splits"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
	chainID    = flag.String("chain", string(domain.ChainEthereumMainnet), "CAIP-2 id of the chain the splits live on")
	noCache    = flag.Bool("no-cache", false, "Ignore saved scan caches and scan from the chain head")
	timeout    = flag.Duration("timeout", 5*time.Minute, "Maximum duration of the whole run")
)

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: split-resolver [flags] <split address>...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadResolverConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "split-resolver",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	chain := domain.Chain(*chainID)
	table, ok := cfg.Chain(chain)
	if !ok {
		logger.FatalCtx(ctx, "Chain is not configured", zap.String("chain", *chainID))
	}
	chainConfig, err := table.ChainConfig()
	if err != nil {
		logger.FatalCtx(ctx, "Invalid chain configuration", zap.Error(err))
	}

	clock := adapter.NewClock()
	json := adapter.NewJSON()

	// Redis backs the cache store and distributed rate limits
	var redisClient adapter.RedisClient
	if cfg.CacheStore.Type == config.CacheStoreRedis || (table.RateLimit != nil && table.RateLimit.Distributed) {
		redisClient = adapter.NewRedisClient(cfg.CacheStore.RedisAddr, cfg.CacheStore.RedisPassword, cfg.CacheStore.RedisDB)
		if cfg.CacheStore.Type != config.CacheStoreRedis {
			// Otherwise closed with the store
			defer func() { _ = redisClient.Close() }()
		}
	}

	// Connect to the node
	ethClient, err := connectNode(ctx, adapter.NewEthClientDialer(), table, redisClient, clock)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to node", zap.Error(err), zap.String("chain", *chainID))
	}
	defer ethClient.Close()
	logger.InfoCtx(ctx, "Connected to node", zap.String("chain", *chainID))

	var indexed splits.IndexedLookup
	if cfg.Subgraph.Enabled {
		indexed = subgraph.NewClient(adapter.NewHTTPClient(cfg.Subgraph.Timeout), json, cfg.SubgraphURLs())
	}

	resolver, err := splits.NewResolver(
		[]splits.ChainNode{{Config: chainConfig, Client: ethClient}},
		cfg.Scan.SplitsConfig(),
		clock,
		indexed,
	)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create resolver", zap.Error(err))
	}
	defer resolver.Close()

	store := newCacheStore(cfg.CacheStore, redisClient, json)
	defer func() {
		if err := store.Close(); err != nil {
			logger.WarnCtx(ctx, "Failed to close cache store", zap.Error(err))
		}
	}()

	failed := 0
	for _, arg := range flag.Args() {
		if err := resolveOne(ctx, resolver, store, json, chain, arg); err != nil {
			logger.ErrorCtx(ctx, err, zap.String("address", arg), zap.String("chain", *chainID))
			failed++
		}
	}

	if failed > 0 {
		logger.Flush(2 * time.Second)
		os.Exit(1)
	}
}

// connectNode dials the chain's node and applies the chain's rate limit, if any.
// redisClient is only used for distributed limits and may be nil.
func connectNode(ctx context.Context, dialer adapter.EthClientDialer, table config.ChainTable, redisClient adapter.RedisClient, clock adapter.Clock) (adapter.EthClient, error) {
	client, err := dialer.Dial(ctx, table.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", table.ChainID, err)
	}
	if table.RateLimit == nil {
		return client, nil
	}

	var limiterRedis adapter.RedisClient
	if table.RateLimit.Distributed {
		limiterRedis = redisClient
	}
	limiter, err := ratelimit.NewLimiter(string(table.ChainID), table.RateLimit.LimiterConfig(), limiterRedis, clock)
	if err != nil {
		client.Close()
		return nil, err
	}
	return ratelimit.NewEthClient(client, limiter), nil
}

// resolveOne resolves a single split and prints it as JSON
func resolveOne(ctx context.Context, resolver *splits.Resolver, store cachestore.Store, json adapter.JSON, chain domain.Chain, arg string) error {
	address, err := domain.ParseAddress(arg)
	if err != nil {
		return err
	}

	var cache *domain.ScanCache
	if !*noCache {
		cache, err = store.Load(ctx, chain, address)
		if err != nil {
			logger.WarnCtx(ctx, "Failed to load scan cache, scanning from head", zap.Error(err))
			cache = nil
		}
	}

	result, err := resolver.ResolveSplit(ctx, address, chain, cache)
	if err != nil {
		if errors.Is(err, domain.ErrUnsupportedLookup) {
			return fmt.Errorf("v1 splits on %s can only be resolved through the subgraph: %w", chain, err)
		}
		return err
	}

	if result.Cache != nil {
		if err := store.Save(ctx, chain, address, result.Cache); err != nil {
			logger.WarnCtx(ctx, "Failed to save scan cache", zap.Error(err))
		}
	}

	output, err := json.MarshalIndent(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	fmt.Println(string(output))
	return nil
}

func newCacheStore(cfg config.CacheStoreConfig, redisClient adapter.RedisClient, json adapter.JSON) cachestore.Store {
	switch cfg.Type {
	case config.CacheStoreRedis:
		return cachestore.NewRedisStore(redisClient, json, cfg.KeyPrefix, cfg.TTL)
	case config.CacheStoreFile:
		return cachestore.NewFileStore(adapter.NewFileSystem(), json, cfg.Path)
	default:
		return cachestore.NewMemoryStore()
	}
}

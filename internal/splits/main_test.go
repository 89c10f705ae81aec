package splits_test

import (
	"os"
	"testing"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-splits/internal/domain"
	"github.com/feral-file/ff-splits/internal/logger"
	"github.com/feral-file/ff-splits/internal/splits"
	"github.com/feral-file/ff-splits/internal/splits/splitstest"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

const startBlock = 100

var zeroTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

var (
	splitMain = splitstest.Address("split-main")
	alice     = splitstest.Address("alice")
	bob       = splitstest.Address("bob")
	carol     = splitstest.Address("carol")
	owner     = splitstest.Address("owner")
	newOwner  = splitstest.Address("new-owner")
)

func pullFactory(v domain.Version) common.Address {
	return splitstest.Address("pull-factory-" + string(v))
}

func pushFactory(v domain.Version) common.Address {
	return splitstest.Address("push-factory-" + string(v))
}

// chainConfig returns an address table deploying every version at startBlock
func chainConfig(chain domain.Chain) domain.ChainConfig {
	cfg := domain.ChainConfig{
		Chain:        chain,
		SplitMain:    splitMain,
		V1StartBlock: startBlock,
		V2:           make(map[domain.Version]domain.FactorySet),
	}
	for _, v := range domain.V2Versions {
		cfg.V2[v] = domain.FactorySet{
			Pull:       pullFactory(v),
			Push:       pushFactory(v),
			StartBlock: startBlock,
		}
	}
	return cfg
}

// testEnv is a simulated chain with a resolver in front of it
type testEnv struct {
	node     *splitstest.Node
	clock    *splitstest.Clock
	chain    domain.ChainConfig
	resolver *splits.Resolver
}

func setupEnv(t *testing.T, chain domain.Chain, head uint64, cfg splits.Config, indexed splits.IndexedLookup) *testEnv {
	t.Helper()

	node := splitstest.NewNode(head)
	node.AddSplitMain(splitMain)
	clock := splitstest.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	chainCfg := chainConfig(chain)

	resolver, err := splits.NewResolver([]splits.ChainNode{{Config: chainCfg, Client: node}}, cfg, clock, indexed)
	if err != nil {
		t.Fatalf("failed to create resolver: %v", err)
	}
	t.Cleanup(resolver.Close)

	return &testEnv{
		node:     node,
		clock:    clock,
		chain:    chainCfg,
		resolver: resolver,
	}
}

// smallStepConfig makes every walk step span 200 blocks in two queries
func smallStepConfig() splits.Config {
	cfg := splits.DefaultConfig()
	cfg.ProbeCandidates = []uint64{100}
	cfg.BatchSize = 2
	return cfg
}

func newPool(t *testing.T) pond.Pool {
	pool := pond.NewPool(4)
	t.Cleanup(pool.StopAndWait)
	return pool
}

func halfHalf() []splitstest.Allocation {
	return []splitstest.Allocation{
		{Account: alice, Units: 500_000},
		{Account: bob, Units: 500_000},
	}
}

func thirtySeventy() []splitstest.Allocation {
	return []splitstest.Allocation{
		{Account: alice, Units: 300_000},
		{Account: bob, Units: 700_000},
	}
}

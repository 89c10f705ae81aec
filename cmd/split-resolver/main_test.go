package main

import (
	"context"
	"errors"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/go-redis/redis_rate/v10"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-splits/internal/config"
	"github.com/feral-file/ff-splits/internal/domain"
	"github.com/feral-file/ff-splits/internal/logger"
	"github.com/feral-file/ff-splits/internal/mocks"
	"github.com/feral-file/ff-splits/internal/ratelimit"
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

const testRPCURL = "https://base.example.com"

type testConnectMocks struct {
	ctrl        *gomock.Controller
	dialer      *mocks.MockEthClientDialer
	client      *mocks.MockEthClient
	redisClient *mocks.MockRedisClient
	clock       *mocks.MockClock
}

func setupConnectMocks(t *testing.T) *testConnectMocks {
	ctrl := gomock.NewController(t)
	return &testConnectMocks{
		ctrl:        ctrl,
		dialer:      mocks.NewMockEthClientDialer(ctrl),
		client:      mocks.NewMockEthClient(ctrl),
		redisClient: mocks.NewMockRedisClient(ctrl),
		clock:       mocks.NewMockClock(ctrl),
	}
}

func tearDownConnectMocks(m *testConnectMocks) {
	m.ctrl.Finish()
}

func chainTable(rateLimit *config.RateLimitConfig) config.ChainTable {
	return config.ChainTable{
		ChainID:   domain.ChainBase,
		RPCURL:    testRPCURL,
		RateLimit: rateLimit,
	}
}

func TestConnectNode_WithoutRateLimit(t *testing.T) {
	m := setupConnectMocks(t)
	defer tearDownConnectMocks(m)

	m.dialer.EXPECT().Dial(gomock.Any(), testRPCURL).Return(m.client, nil)

	client, err := connectNode(context.Background(), m.dialer, chainTable(nil), m.redisClient, m.clock)

	require.NoError(t, err)
	assert.Equal(t, m.client, client)
}

func TestConnectNode_DialError(t *testing.T) {
	m := setupConnectMocks(t)
	defer tearDownConnectMocks(m)

	m.dialer.EXPECT().Dial(gomock.Any(), testRPCURL).Return(nil, errors.New("connection refused"))

	client, err := connectNode(context.Background(), m.dialer, chainTable(nil), m.redisClient, m.clock)

	assert.Nil(t, client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to dial eip155:8453")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestConnectNode_LocalRateLimit(t *testing.T) {
	m := setupConnectMocks(t)
	defer tearDownConnectMocks(m)

	head := &types.Header{Number: big.NewInt(3000)}
	m.dialer.EXPECT().Dial(gomock.Any(), testRPCURL).Return(m.client, nil)
	m.client.EXPECT().HeaderByNumber(gomock.Any(), gomock.Nil()).Return(head, nil)

	// A local limit never touches Redis
	client, err := connectNode(context.Background(), m.dialer, chainTable(&config.RateLimitConfig{
		RequestsPerSecond: 100,
		MaxQueueTime:      time.Second,
	}), m.redisClient, m.clock)

	require.NoError(t, err)
	assert.NotEqual(t, m.client, client)

	got, err := client.HeaderByNumber(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, head, got)
}

func TestConnectNode_DistributedRateLimit(t *testing.T) {
	m := setupConnectMocks(t)
	defer tearDownConnectMocks(m)

	limiter := mocks.NewMockRedisRateLimiter(m.ctrl)
	head := &types.Header{Number: big.NewInt(3000)}

	m.dialer.EXPECT().Dial(gomock.Any(), testRPCURL).Return(m.client, nil)
	m.redisClient.EXPECT().Ping(gomock.Any()).Return(nil)
	m.redisClient.EXPECT().NewRateLimiter().Return(limiter)
	limiter.EXPECT().
		Allow(gomock.Any(), ratelimit.DefaultKeyPrefix+string(domain.ChainBase), redis_rate.PerSecond(100)).
		Return(&redis_rate.Result{Allowed: 1, Remaining: 99}, nil)
	m.client.EXPECT().HeaderByNumber(gomock.Any(), gomock.Nil()).Return(head, nil)

	client, err := connectNode(context.Background(), m.dialer, chainTable(&config.RateLimitConfig{
		RequestsPerSecond: 100,
		MaxQueueTime:      time.Second,
		Distributed:       true,
	}), m.redisClient, m.clock)
	require.NoError(t, err)

	got, err := client.HeaderByNumber(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, head, got)
}

func TestConnectNode_InvalidRateLimitClosesClient(t *testing.T) {
	m := setupConnectMocks(t)
	defer tearDownConnectMocks(m)

	m.dialer.EXPECT().Dial(gomock.Any(), testRPCURL).Return(m.client, nil)
	m.client.EXPECT().Close()

	client, err := connectNode(context.Background(), m.dialer, chainTable(&config.RateLimitConfig{}), m.redisClient, m.clock)

	assert.Nil(t, client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requests_per_second must be positive")
}

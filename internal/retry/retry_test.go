package retry_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-splits/internal/logger"
	"github.com/feral-file/ff-splits/internal/mocks"
	"github.com/feral-file/ff-splits/internal/retry"
)

func TestMain(m *testing.M) {
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

type testRetryMocks struct {
	ctrl   *gomock.Controller
	clock  *mocks.MockClock
	delays []time.Duration
}

func setupTest(t *testing.T) *testRetryMocks {
	ctrl := gomock.NewController(t)
	tm := &testRetryMocks{
		ctrl:  ctrl,
		clock: mocks.NewMockClock(ctrl),
	}

	// Every wait fires immediately, the requested delay is recorded
	tm.clock.EXPECT().After(gomock.Any()).DoAndReturn(func(d time.Duration) <-chan time.Time {
		tm.delays = append(tm.delays, d)
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}).AnyTimes()

	return tm
}

func tearDownTest(tm *testRetryMocks) {
	tm.ctrl.Finish()
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	tm := setupTest(t)
	defer tearDownTest(tm)

	calls := 0
	result, err := retry.Do(context.Background(), tm.clock, 3, func(ctx context.Context) (uint64, error) {
		calls++
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, uint64(42), result)
	assert.Equal(t, 1, calls)
	assert.Empty(t, tm.delays)
}

func TestDo_RetriesWithExponentialDelay(t *testing.T) {
	tm := setupTest(t)
	defer tearDownTest(tm)

	calls := 0
	result, err := retry.Do(context.Background(), tm.clock, 3, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("node unavailable")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
	require.Len(t, tm.delays, 2)

	assert.GreaterOrEqual(t, tm.delays[0], time.Second)
	assert.Less(t, tm.delays[0], time.Second+retry.MaxJitter)
	assert.GreaterOrEqual(t, tm.delays[1], 2*time.Second)
	assert.Less(t, tm.delays[1], 2*time.Second+retry.MaxJitter)
}

func TestDo_ReturnsLastErrorUnchanged(t *testing.T) {
	tm := setupTest(t)
	defer tearDownTest(tm)

	errFirst := errors.New("first failure")
	errLast := errors.New("last failure")

	calls := 0
	_, err := retry.Do(context.Background(), tm.clock, 4, func(ctx context.Context) (int, error) {
		calls++
		if calls < 4 {
			return 0, errFirst
		}
		return 0, errLast
	})

	assert.Equal(t, 4, calls)
	assert.Same(t, errLast, err)
	assert.Len(t, tm.delays, 3)
	assert.GreaterOrEqual(t, tm.delays[2], 4*time.Second)
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	tm := setupTest(t)
	defer tearDownTest(tm)

	errRevert := errors.New("execution reverted")

	calls := 0
	_, err := retry.Do(context.Background(), tm.clock, 5, func(ctx context.Context) (int, error) {
		calls++
		return 0, backoff.Permanent(errRevert)
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, errRevert)
	assert.Empty(t, tm.delays)
}

func TestDo_CancelledContextStops(t *testing.T) {
	tm := setupTest(t)
	defer tearDownTest(tm)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := retry.Do(ctx, tm.clock, 5, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("node unavailable")
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, tm.delays)
}

func TestDo_NonPositiveAttemptsUsesDefault(t *testing.T) {
	tm := setupTest(t)
	defer tearDownTest(tm)

	calls := 0
	_, err := retry.Do(context.Background(), tm.clock, 0, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("node unavailable")
	})

	assert.Error(t, err)
	assert.Equal(t, retry.DefaultMaxAttempts, calls)
}

func TestDelay(t *testing.T) {
	assert.Equal(t, time.Duration(0), retry.Delay(0))
	assert.Equal(t, time.Second, retry.Delay(1))
	assert.Equal(t, 2*time.Second, retry.Delay(2))
	assert.Equal(t, 4*time.Second, retry.Delay(3))
	assert.Equal(t, 8*time.Second, retry.Delay(4))
}

func TestSchedule_ResetRestartsFromBase(t *testing.T) {
	s := retry.NewSchedule()

	first := s.NextBackOff()
	second := s.NextBackOff()
	assert.GreaterOrEqual(t, second, 2*time.Second)

	s.Reset()
	again := s.NextBackOff()
	assert.GreaterOrEqual(t, again, time.Second)
	assert.Less(t, again, time.Second+retry.MaxJitter)
	assert.Less(t, first, second)
}

func TestIsReverted(t *testing.T) {
	assert.False(t, retry.IsReverted(nil))
	assert.True(t, retry.IsReverted(errors.New("execution reverted")))
	assert.True(t, retry.IsReverted(errors.New("historical backend error: execution reverted: Dai/insufficient-balance")))
	assert.True(t, retry.IsReverted(errors.New("VM execution error.")))
	assert.False(t, retry.IsReverted(errors.New("429 Too Many Requests")))
	assert.False(t, retry.IsReverted(context.DeadlineExceeded))
}

func TestIsTooManyResults(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "infura cap", err: errors.New("query returned more than 10000 results"), expected: true},
		{name: "wrapped cap", err: fmt.Errorf("post failed: %w", errors.New("query returned more than 20 results")), expected: true},
		{name: "alchemy", err: errors.New("Log response size exceeded. You can make eth_getLogs requests with up to a 2K block range"), expected: true},
		{name: "generic", err: errors.New("too many results in range"), expected: true},
		{name: "rate limited", err: errors.New("429 Too Many Requests"), expected: false},
		{name: "revert", err: errors.New("execution reverted"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, retry.IsTooManyResults(tt.err))
		})
	}
}

package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

func TestRun_SpendsBudgetUntilExhausted(t *testing.T) {
	h := newHarness("m1", "m2", "m3")
	cfg := testConfig()
	cfg.KellyMultiplier = 1
	cfg.MaxExposurePerTrade = 1
	cfg.MinTradeSize = 0
	s := h.session(t, cfg, 20, WithMaxIterations(100))

	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StateExhausted, summary.EndState)
	assert.Equal(t, "budget exhausted", summary.StopReason)
	assert.LessOrEqual(t, summary.CumulativeSpent, summary.AllocatedCapital+cfg.BudgetEpsilon)
	assert.Equal(t, summary.Iterations, summary.TotalTrades)

	var spent float64
	for _, tr := range s.State().Trades {
		spent += tr.Size
		assert.LessOrEqual(t, spent, 20.0+1e-9)
	}

	runs := h.journal.runs
	require.GreaterOrEqual(t, len(runs), 2)
	assert.Equal(t, domain.StateExhausted, runs[len(runs)-1].EndState)
	assert.Len(t, h.sink.kinds(domain.EventRunStart), 1)
	assert.Len(t, h.sink.kinds(domain.EventExhausted), 1)
}

func TestRun_ExhaustedFromStartDoesNotScan(t *testing.T) {
	h := newHarness("m1")
	s := h.session(t, testConfig(), 100)
	s.state.CumulativeSpent = 99.95

	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StateExhausted, summary.EndState)
	assert.Zero(t, summary.Iterations)
	assert.Empty(t, h.markets.filters)
	assert.Empty(t, h.waits)
}

func TestRun_FaultBacksOffDoubleInterval(t *testing.T) {
	h := newHarness("m1")
	h.estimator.byMarket["m1"] = estimate{err: fmt.Errorf("rate: %w", domain.ErrRateLimited)}
	cfg := testConfig()
	cfg.ScanInterval = 10 * time.Second
	s := h.session(t, cfg, 100, WithMaxIterations(2))

	summary, err := s.Run(context.Background())
	require.NoError(t, err, "iteration faults do not stop the run")
	assert.Equal(t, 2, summary.Faults)
	assert.Equal(t, 2, summary.Iterations)
	assert.Equal(t, domain.StateIdle, summary.EndState)
	assert.Equal(t, []time.Duration{20 * time.Second}, h.waits)
	assert.Len(t, h.sink.kinds(domain.EventFault), 2)
}

func TestRun_BalanceFailureCountsTowardsMaxIterations(t *testing.T) {
	h := newHarness("m1")
	deps := h.deps()
	deps.Balances = &fakeBalances{err: errors.New("rpc down")}
	s, err := NewSession(testConfig(), 100, deps, WithMaxIterations(1))
	require.NoError(t, err)
	var waits []time.Duration
	s.wait = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		if len(waits) > 5 {
			s.Stop()
		}
		return ctx.Err()
	}

	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Iterations)
	assert.Equal(t, 1, summary.Faults)
	assert.Equal(t, "max iterations reached", summary.StopReason)
	assert.Empty(t, waits)
	assert.Empty(t, h.markets.filters, "no scan without balances")
	assert.False(t, s.State().LastIterationAt.IsZero())
}

func TestRun_NormalIterationWaitsScanInterval(t *testing.T) {
	h := newHarness("m1")
	h.executor.reject["m1"] = true
	cfg := testConfig()
	cfg.ScanInterval = 7 * time.Second
	s := h.session(t, cfg, 100, WithMaxIterations(3))

	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Iterations)
	assert.Zero(t, summary.Faults)
	assert.Equal(t, []time.Duration{7 * time.Second, 7 * time.Second}, h.waits)
	assert.Equal(t, "max iterations reached", summary.StopReason)
}

func TestRun_FundingFaultStopsRun(t *testing.T) {
	h := newHarness("m1")
	h.executor.err = fmt.Errorf("execution.Execute: balance $0.00 < size $8.33: %w", domain.ErrInsufficientFunds)
	s := h.session(t, testConfig(), 100, WithMaxIterations(10))

	summary, err := s.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, domain.StateIdle, summary.EndState)
	assert.Contains(t, summary.StopReason, "insufficient funds")
	assert.Equal(t, 1, summary.Iterations)
	assert.Zero(t, summary.Faults)
	assert.Empty(t, h.waits, "no backoff after a funding fault")
}

func TestRun_StopBeforeStart(t *testing.T) {
	h := newHarness("m1")
	s := h.session(t, testConfig(), 100)
	s.Stop()

	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StateIdle, summary.EndState)
	assert.Equal(t, "stopped by user", summary.StopReason)
	assert.Zero(t, summary.Iterations)
}

func TestRun_StopDuringWaitPreventsNextIteration(t *testing.T) {
	h := newHarness("m1")
	h.executor.reject["m1"] = true
	s := h.session(t, testConfig(), 100)
	s.wait = func(ctx context.Context, d time.Duration) error {
		s.Stop()
		return ctx.Err()
	}

	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Iterations)
	assert.Equal(t, domain.StateIdle, summary.EndState)
	assert.Equal(t, "stopped by user", summary.StopReason)
	assert.Len(t, h.sink.kinds(domain.EventStopped), 1)
}

func TestRun_ResumesAfterStop(t *testing.T) {
	h := newHarness("m1")
	h.executor.reject["m1"] = true
	s := h.session(t, testConfig(), 100)
	s.wait = func(ctx context.Context, d time.Duration) error {
		s.Stop()
		return ctx.Err()
	}

	first, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Iterations)
	assert.Equal(t, "stopped by user", first.StopReason)

	second, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, second.Iterations, "second run scans again")
	assert.Equal(t, "stopped by user", second.StopReason)
	assert.Len(t, h.sink.kinds(domain.EventRunStart), 2)
}

func TestRun_ParentContextCancel(t *testing.T) {
	h := newHarness("m1")
	h.executor.reject["m1"] = true
	s := h.session(t, testConfig(), 100)
	ctx, cancel := context.WithCancel(context.Background())
	s.wait = func(wctx context.Context, d time.Duration) error {
		cancel()
		return wctx.Err()
	}

	summary, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "context cancelled", summary.StopReason)
}

func TestRun_RejectsSecondConcurrentRun(t *testing.T) {
	h := newHarness("m1")
	h.executor.reject["m1"] = true
	s := h.session(t, testConfig(), 100)

	started := make(chan struct{})
	release := make(chan struct{})
	s.wait = func(ctx context.Context, d time.Duration) error {
		close(started)
		<-release
		s.Stop()
		return ctx.Err()
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background())
		done <- err
	}()
	<-started

	assert.True(t, s.State().IsRunning)
	_, err := s.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, s.State().IsRunning)
}

func TestSleepCtx(t *testing.T) {
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
}

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

func TestNewSession_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.MinTradeSize = 30
	cfg.MaxTradeSize = 10

	_, err := NewSession(cfg, 100, newHarness().deps())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_trade_size 30.00 exceeds max_trade_size 10.00")
}

func TestNewSession_RejectsMissingCapitalAndDeps(t *testing.T) {
	_, err := NewSession(testConfig(), 0, newHarness().deps())
	require.Error(t, err)

	_, err = NewSession(testConfig(), 100, Deps{})
	require.Error(t, err)
}

func TestNewSession_ConfigSnapshotIsIsolated(t *testing.T) {
	h := newHarness("m1")
	cfg := testConfig()
	cfg.Categories = []string{"politics"}
	s := h.session(t, cfg, 100)

	cfg.Categories[0] = "sports"
	cfg.MinEV = 0.9

	_, err := s.RunIteration(context.Background())
	require.NoError(t, err)
	require.Len(t, h.markets.filters, 1)
	assert.Equal(t, []string{"politics"}, h.markets.filters[0].Categories)
	assert.InDelta(t, 0.05, s.Config().MinEV, 1e-12)
	assert.Len(t, h.executor.reqs, 1)
}

func TestRunIteration_AtMostOneTrade(t *testing.T) {
	h := newHarness("m1", "m2", "m3")
	s := h.session(t, testConfig(), 100)

	res, err := s.RunIteration(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Trade)
	assert.Equal(t, "m1", res.Trade.MarketID)
	assert.Equal(t, 1, res.Evaluated)
	assert.Equal(t, 3, res.Candidates)
	assert.Equal(t, 0, h.estimator.calls["m2"])
	assert.Len(t, h.executor.reqs, 1)

	st := s.State()
	assert.Equal(t, 1, st.TotalTrades)
	assert.Len(t, st.Trades, 1)
	assert.Equal(t, domain.StateMonitoring, st.State)
	// Kelly 1/3 × 0.25 × $100
	assert.InDelta(t, 8.3333, st.CumulativeSpent, 0.001)
	assert.InDelta(t, 100-8.3333, st.Balance, 0.001)
	assert.Len(t, h.journal.trades, 1)
	assert.Equal(t, st.RunID, h.journal.trades[0].RunID)
	assert.Len(t, h.sink.kinds(domain.EventTrade), 1)
}

func TestRunIteration_RejectedExecutionMovesToNextCandidate(t *testing.T) {
	h := newHarness("m1", "m2")
	h.executor.reject["m1"] = true
	s := h.session(t, testConfig(), 100)

	res, err := s.RunIteration(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Trade)
	assert.Equal(t, "m2", res.Trade.MarketID)
	assert.Equal(t, 1, res.Skips[domain.SkipExecution])
}

func TestRunIteration_SkipReasons(t *testing.T) {
	h := newHarness("nobook", "wide", "lowev", "lowconf", "thin", "good")

	delete(h.books.books, "yes-nobook")
	h.books.books["yes-wide"] = domain.OrderBook{
		Bids: []domain.BookEntry{{Price: 0.40, Size: 100}},
		Asks: []domain.BookEntry{{Price: 0.44, Size: 100}},
	}
	h.estimator.set("lowev", 0.41, 0.9)
	h.estimator.set("lowconf", 0.7, 0.3)
	h.books.books["yes-thin"] = domain.OrderBook{
		Bids: []domain.BookEntry{{Price: 0.395, Size: 10}},
		Asks: []domain.BookEntry{{Price: 0.405, Size: 10}}, // ~4 USDC
	}

	cfg := testConfig()
	cfg.MaxMarketsPerScan = 10
	s := h.session(t, cfg, 100)

	res, err := s.RunIteration(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Trade)
	assert.Equal(t, "good", res.Trade.MarketID)

	assert.Equal(t, 1, res.Skips[domain.SkipNoBook])
	assert.Equal(t, 1, res.Skips[domain.SkipSpread])
	assert.Equal(t, 1, res.Skips[domain.SkipLowEV])
	assert.Equal(t, 1, res.Skips[domain.SkipLowConfidence])
	assert.Equal(t, 1, res.Skips[domain.SkipLiquidity])
	assert.Equal(t, 0, h.estimator.calls["wide"], "spread is checked before the estimator")

	skips := h.sink.kinds(domain.EventSkip)
	require.Len(t, skips, 5)
	assert.Contains(t, skips[1].Message, "spread 0.0952 > max 0.0500")
	assert.Equal(t, 5, len(s.SkipCounts()))
}

func TestRunIteration_SizeBelowMinimumSkips(t *testing.T) {
	h := newHarness("m1")
	cfg := testConfig()
	cfg.MinTradeSize = 10 // 8.33 < 10
	s := h.session(t, cfg, 100)

	res, err := s.RunIteration(context.Background())
	require.NoError(t, err)
	assert.Nil(t, res.Trade)
	assert.Equal(t, 1, res.Skips[domain.SkipSize])
	assert.Len(t, h.sink.kinds(domain.EventNoTrade), 1)
}

func TestRunIteration_EstimatorErrorSkipsCandidate(t *testing.T) {
	h := newHarness("m1", "m2")
	h.estimator.byMarket["m1"] = estimate{err: errors.New("http 500")}
	s := h.session(t, testConfig(), 100)

	res, err := s.RunIteration(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Trade)
	assert.Equal(t, "m2", res.Trade.MarketID)
	assert.Equal(t, 1, res.Skips[domain.SkipEstimatorErr])
}

func TestRunIteration_RateLimitIsIterationFault(t *testing.T) {
	h := newHarness("m1", "m2")
	h.estimator.byMarket["m1"] = estimate{err: fmt.Errorf("reasoning.Estimate: 3 attempts: %w", domain.ErrRateLimited)}
	s := h.session(t, testConfig(), 100)

	res, err := s.RunIteration(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Nil(t, res.Trade)
	assert.Equal(t, 0, h.estimator.calls["m2"])
}

func TestRunIteration_MissingSignalSkipExcludesMarket(t *testing.T) {
	h := newHarness("m1", "m2")
	h.estimator.byMarket["m1"] = estimate{ok: false}
	h.executor.reject["m2"] = true
	cfg := testConfig()
	cfg.OnMissingSignal = domain.MissingSignalSkip
	s := h.session(t, cfg, 100)

	_, err := s.RunIteration(context.Background())
	require.NoError(t, err)
	res, err := s.RunIteration(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, h.estimator.calls["m1"])
	assert.Equal(t, 2, h.estimator.calls["m2"])
	assert.Equal(t, 1, res.Candidates)
	assert.Equal(t, 1, res.Skips[domain.SkipExcluded])
}

func TestRunIteration_MissingSignalRetryKeepsMarket(t *testing.T) {
	h := newHarness("m1")
	h.estimator.byMarket["m1"] = estimate{ok: false}
	cfg := testConfig()
	cfg.OnMissingSignal = domain.MissingSignalRetry
	s := h.session(t, cfg, 100)

	for i := 0; i < 3; i++ {
		res, err := s.RunIteration(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, res.Skips[domain.SkipNoSignal])
	}
	assert.Equal(t, 3, h.estimator.calls["m1"])
}

func TestRunIteration_ExclusionAppliesBeforeTruncation(t *testing.T) {
	h := newHarness("m1", "m2")
	h.estimator.byMarket["m1"] = estimate{ok: false}
	cfg := testConfig()
	cfg.MaxMarketsPerScan = 1
	cfg.OnMissingSignal = domain.MissingSignalSkip
	s := h.session(t, cfg, 100)

	res, err := s.RunIteration(context.Background())
	require.NoError(t, err)
	assert.Nil(t, res.Trade)

	res, err = s.RunIteration(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Trade)
	assert.Equal(t, "m2", res.Trade.MarketID)
}

func TestRunIteration_BudgetGate_ScenarioE(t *testing.T) {
	h := newHarness("m1")
	s := h.session(t, testConfig(), 100)
	s.state.CumulativeSpent = 99.95

	res, err := s.RunIteration(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Exhausted)
	assert.Empty(t, h.markets.filters, "no SCANNING after the gate fires")
	assert.Equal(t, domain.StateExhausted, s.State().State)
	assert.Len(t, h.sink.kinds(domain.EventExhausted), 1)
	assert.Len(t, h.sink.kinds(domain.EventScanStart), 0)
}

func TestRunIteration_RejectsReentrantCall(t *testing.T) {
	h := newHarness("m1")
	s := h.session(t, testConfig(), 100)
	s.inFlight.Store(true)

	_, err := s.RunIteration(context.Background())
	assert.ErrorIs(t, err, ErrIterationInFlight)
	assert.Empty(t, h.markets.filters)
}

func TestRunIteration_BankrollIsCappedByRemainingBudget(t *testing.T) {
	h := newHarness("m1")
	h.executor.reject["m1"] = true
	bal := &fakeBalances{bal: domain.Balances{Trading: 1000, Gas: 1}}
	deps := h.deps()
	deps.Balances = bal
	s, err := NewSession(testConfig(), 60, deps)
	require.NoError(t, err)

	_, err = s.RunIteration(context.Background())
	require.NoError(t, err)
	require.Len(t, h.executor.reqs, 1)
	// bankroll = min(1000, 60) → 60 × 0.0833
	assert.InDelta(t, 5.0, h.executor.reqs[0].Size, 1e-6)
	assert.InDelta(t, 1000.0, s.State().Balance, 1e-9)
}

func TestRunIteration_LiveGasBelowMinimumIsFatal(t *testing.T) {
	h := newHarness("m1")
	deps := h.deps()
	deps.Balances = &fakeBalances{bal: domain.Balances{Trading: 100, Gas: 0}}
	cfg := testConfig()
	cfg.Mode = domain.ModeLive
	s, err := NewSession(cfg, 50, deps)
	require.NoError(t, err)

	_, err = s.RunIteration(context.Background())
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Empty(t, h.markets.filters)
}

func TestRunIteration_CancelledContextAborts(t *testing.T) {
	h := newHarness("m1", "m2")
	s := h.session(t, testConfig(), 100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := s.RunIteration(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res.Trade)
	assert.Empty(t, h.executor.reqs)
}

func TestState_ReturnsCopies(t *testing.T) {
	h := newHarness("m1")
	s := h.session(t, testConfig(), 100)
	_, err := s.RunIteration(context.Background())
	require.NoError(t, err)

	snap := s.State()
	snap.Trades[0].Size = 999
	snap.Skips[domain.SkipSize] = 42

	again := s.State()
	assert.NotEqual(t, 999.0, again.Trades[0].Size)
	assert.Zero(t, again.Skips[domain.SkipSize])
	assert.False(t, again.IsRunning)
}

func TestEmit_SetsRunIDAndTime(t *testing.T) {
	h := newHarness("m1")
	s := h.session(t, testConfig(), 100)
	_, err := s.RunIteration(context.Background())
	require.NoError(t, err)

	for _, e := range h.sink.events {
		assert.Equal(t, s.State().RunID, e.RunID)
		assert.WithinDuration(t, time.Now(), e.Time, time.Minute)
	}
}

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// IterationResult summarizes one SCANNING→MONITORING cycle.
type IterationResult struct {
	Iteration  int
	Stats      domain.ScanStats
	Candidates int
	Evaluated  int
	Trade      *domain.Trade // nil si no hubo ejecución
	Exhausted  bool
	Skips      map[domain.SkipReason]int
}

// RunIteration runs one iteration of the decision loop. It executes at most one
// trade. The returned error is an iteration fault (rate-limited estimator,
// balance refresh failure), a funding fault wrapping domain.ErrInsufficientFunds,
// ctx's error, or ErrIterationInFlight.
func (s *Session) RunIteration(ctx context.Context) (IterationResult, error) {
	res := IterationResult{Skips: make(map[domain.SkipReason]int)}
	if !s.inFlight.CompareAndSwap(false, true) {
		return res, ErrIterationInFlight
	}
	defer s.inFlight.Store(false)

	// Budget gate
	st := s.runState()
	if st.LoopState == domain.StateExhausted || st.BudgetExhausted(s.cfg.BudgetEpsilon) {
		res.Exhausted = true
		s.halt(domain.StateExhausted, "budget exhausted")
		s.emit(ctx, domain.Event{
			Level:   slog.LevelInfo,
			Kind:    domain.EventExhausted,
			Message: fmt.Sprintf("budget exhausted: remaining $%.2f <= epsilon $%.2f", st.Remaining(), s.cfg.BudgetEpsilon),
			Fields:  map[string]any{"spent": st.CumulativeSpent, "allocated": st.AllocatedCapital},
		})
		return res, nil
	}

	// the attempt counts even if the balance refresh fails
	s.mu.Lock()
	s.state.Iterations++
	s.state.LastIterationAt = s.now()
	res.Iteration = s.state.Iterations
	s.mu.Unlock()

	if err := s.refreshBalances(ctx); err != nil {
		return res, err
	}

	s.mu.Lock()
	s.state.LoopState = domain.StateScanning
	remaining := s.state.Remaining()
	s.mu.Unlock()

	s.emit(ctx, domain.Event{
		Level:   slog.LevelInfo,
		Kind:    domain.EventScanStart,
		Message: fmt.Sprintf("scan #%d started, remaining $%.2f", res.Iteration, remaining),
		Fields:  map[string]any{"iteration": res.Iteration, "remaining": remaining},
	})

	candidates := s.scan(ctx, &res)
	if err := ctx.Err(); err != nil {
		return res, err
	}

	for i, m := range candidates {
		if i > 0 {
			if err := s.wait(ctx, s.cfg.CandidateDelay); err != nil {
				return res, err
			}
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		res.Evaluated++
		trade, err := s.evaluate(ctx, &res, m)
		if err != nil {
			return res, err
		}
		if trade != nil {
			res.Trade = trade
			break
		}
	}

	s.setLoopState(domain.StateMonitoring)
	if res.Trade == nil {
		s.emit(ctx, domain.Event{
			Level:   slog.LevelInfo,
			Kind:    domain.EventNoTrade,
			Message: fmt.Sprintf("%d candidates evaluated, none cleared all gates", res.Evaluated),
			Fields:  map[string]any{"evaluated": res.Evaluated},
		})
	}
	return res, nil
}

// refreshBalances actualiza saldo y gas desde la wallet (solo si hay BalanceSource).
func (s *Session) refreshBalances(ctx context.Context) error {
	if s.deps.Balances == nil {
		return nil
	}
	bal, err := s.deps.Balances.Balances(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("agent.refreshBalances: %w", err)
	}

	s.mu.Lock()
	s.state.Balance = bal.Trading
	s.state.GasBalance = bal.Gas
	s.mu.Unlock()

	if s.cfg.Mode == domain.ModeLive && bal.Gas < s.cfg.MinGasBalance {
		return fmt.Errorf("agent.refreshBalances: gas %.4f < min %.4f: %w",
			bal.Gas, s.cfg.MinGasBalance, domain.ErrInsufficientFunds)
	}
	return nil
}

// scan lista mercados, quita los excluidos y recorta a MaxMarketsPerScan.
func (s *Session) scan(ctx context.Context, res *IterationResult) []domain.Market {
	markets, stats := s.deps.Markets.ListTradableMarkets(ctx, domain.MarketFilter{
		BinaryOnly: s.cfg.BinaryOnly,
		Categories: s.cfg.Categories,
		FetchLimit: s.cfg.FetchLimit,
	})
	res.Stats = stats

	candidates := make([]domain.Market, 0, s.cfg.MaxMarketsPerScan)
	excluded := 0
	for _, m := range markets {
		if len(candidates) == s.cfg.MaxMarketsPerScan {
			break
		}
		if _, ok := s.excluded[m.ID]; ok {
			excluded++
			continue
		}
		candidates = append(candidates, m)
	}
	res.Candidates = len(candidates)
	if excluded > 0 {
		res.Skips[domain.SkipExcluded] += excluded
		s.mu.Lock()
		s.skips[domain.SkipExcluded] += excluded
		s.mu.Unlock()
	}

	s.emit(ctx, domain.Event{
		Level: slog.LevelInfo,
		Kind:  domain.EventScanStats,
		Message: fmt.Sprintf("%d markets listed, %d tradable, %d discarded, %d excluded, %d candidates",
			stats.Total, stats.Tradable, stats.Discarded, excluded, len(candidates)),
		Fields: map[string]any{
			"total":      stats.Total,
			"tradable":   stats.Tradable,
			"discarded":  stats.Discarded,
			"excluded":   excluded,
			"candidates": len(candidates),
		},
	})
	return candidates
}

// evaluate runs one candidate through book → spread → estimator → risk →
// liquidity → execution. It returns a trade only when one was filled.
func (s *Session) evaluate(ctx context.Context, res *IterationResult, m domain.Market) (*domain.Trade, error) {
	cfg := s.cfg

	book, ok := s.deps.Books.GetOrderbook(ctx, m.YesTokenID)
	if !ok {
		s.skip(ctx, res, m, domain.SkipNoBook, "no order book")
		return nil, nil
	}
	if spread := book.Spread(); spread > cfg.MaxSpread {
		s.skip(ctx, res, m, domain.SkipSpread, "spread %.4f > max %.4f (bid %.3f ask %.3f)",
			spread, cfg.MaxSpread, book.BestBid(), book.BestAsk())
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// ANALYZING
	s.setLoopState(domain.StateAnalyzing)
	sig, ok, err := s.deps.Estimator.Estimate(ctx, m)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, domain.ErrRateLimited) {
			return nil, fmt.Errorf("agent.evaluate: %w", err)
		}
		s.skip(ctx, res, m, domain.SkipEstimatorErr, "estimator error: %v", err)
		return nil, nil
	}
	if !ok {
		if cfg.OnMissingSignal == domain.MissingSignalSkip {
			s.excluded[m.ID] = struct{}{}
			s.skip(ctx, res, m, domain.SkipNoSignal, "no signal, excluded for the rest of the run")
		} else {
			s.skip(ctx, res, m, domain.SkipNoSignal, "no signal, retry next scan")
		}
		return nil, nil
	}

	// RISK_CHECK
	s.setLoopState(domain.StateRiskCheck)
	price := book.MidPrice()
	ev := domain.ExpectedValue(price, sig.ImpliedProbability)
	s.emit(ctx, domain.Event{
		Level:    slog.LevelInfo,
		Kind:     domain.EventSignal,
		Message:  fmt.Sprintf("signal p=%.3f conf=%.2f price=%.3f ev=%+.4f", sig.ImpliedProbability, sig.Confidence, price, ev),
		MarketID: m.ID,
		Fields: map[string]any{
			"question":    domain.TruncateQuestion(m.Question, m.ID, 50),
			"probability": sig.ImpliedProbability,
			"confidence":  sig.Confidence,
			"price":       price,
			"ev":          ev,
			"sources":     len(sig.Sources),
		},
	})

	if ev < cfg.MinEV {
		s.skip(ctx, res, m, domain.SkipLowEV, "ev %.4f < min %.4f", ev, cfg.MinEV)
		return nil, nil
	}
	if sig.Confidence < cfg.MinConfidence {
		s.skip(ctx, res, m, domain.SkipLowConfidence, "confidence %.2f < min %.2f", sig.Confidence, cfg.MinConfidence)
		return nil, nil
	}

	st := s.runState()
	bankroll := math.Min(st.Balance, st.Remaining())
	size := domain.PositionSize(price, sig.ImpliedProbability, bankroll, cfg)
	if size <= 0 {
		s.skip(ctx, res, m, domain.SkipSize, "position size 0 (kelly %.4f, bankroll $%.2f, min $%.2f)",
			domain.KellyFraction(price, sig.ImpliedProbability), bankroll, cfg.MinTradeSize)
		return nil, nil
	}

	lc := domain.CheckLiquidity(book, size, cfg)
	if !lc.OK {
		s.skip(ctx, res, m, domain.SkipLiquidity, "%s: depth $%.2f < required $%.2f (spread %.4f)",
			lc.Reason, lc.Depth, lc.Required, lc.Spread)
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// EXECUTING
	s.setLoopState(domain.StateExecuting)
	trade, ok, err := s.deps.Executor.Execute(ctx, domain.ExecutionRequest{
		Mode:   cfg.Mode,
		Market: m,
		Book:   book,
		Size:   size,
		Side:   domain.SideBuy,
		Edge:   ev,
		Signal: sig,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		s.skip(ctx, res, m, domain.SkipExecution, "order for $%.2f not filled", size)
		return nil, nil
	}

	trade.RunID = s.runID
	s.mu.Lock()
	s.state.RecordTrade(trade)
	s.trades = append(s.trades, trade)
	s.mu.Unlock()

	if s.deps.Journal != nil {
		if err := s.deps.Journal.SaveTrade(context.WithoutCancel(ctx), trade); err != nil {
			slog.Warn("agent: saving trade", "id", trade.ID, "err", err)
		}
	}

	s.emit(ctx, domain.Event{
		Level:    slog.LevelInfo,
		Kind:     domain.EventTrade,
		Message:  fmt.Sprintf("%s $%.2f @ %.4f (ev %+.4f)", trade.Side, trade.Size, trade.EntryPrice, ev),
		MarketID: m.ID,
		Fields: map[string]any{
			"trade_id":  trade.ID,
			"question":  domain.TruncateQuestion(m.Question, m.ID, 50),
			"side":      string(trade.Side),
			"size":      trade.Size,
			"price":     trade.EntryPrice,
			"shares":    trade.Shares,
			"simulated": trade.Simulated,
			"order_id":  trade.OrderID,
		},
	})
	return &trade, nil
}

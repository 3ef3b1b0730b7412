// Package agent runs the decision loop: scan, analyze, risk-check and execute
// at most one trade per iteration until the allocated budget is spent.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/ports"
)

var (
	// ErrIterationInFlight is returned when RunIteration is called while
	// another iteration of the same session has not finished.
	ErrIterationInFlight = errors.New("agent: iteration already in flight")
	// ErrAlreadyRunning is returned when Run is called twice on one session.
	ErrAlreadyRunning = errors.New("agent: session already running")
)

// Deps are the collaborators of a session. Balances, Journal and Sink are optional.
type Deps struct {
	Markets   ports.MarketGateway
	Books     ports.BookProvider
	Estimator ports.SignalEstimator
	Executor  ports.TradeExecutor
	Balances  ports.BalanceSource
	Journal   ports.TradeJournal
	Sink      ports.EventSink
}

// Option customizes a Session.
type Option func(*Session)

// WithMaxIterations stops Run after n iterations (0 = unlimited).
func WithMaxIterations(n int) Option {
	return func(s *Session) { s.maxIterations = n }
}

// Session owns one run: its config snapshot, counters, trades and stop signal.
// RunState is only mutated by the goroutine executing the iteration; readers
// go through State().
type Session struct {
	cfg   domain.BotConfig
	deps  Deps
	runID string

	maxIterations int
	now           func() time.Time
	wait          func(ctx context.Context, d time.Duration) error

	inFlight atomic.Bool
	running  atomic.Bool

	mu       sync.RWMutex
	state    domain.RunState
	trades   []domain.Trade
	skips    map[domain.SkipReason]int
	stopped  bool
	cancel   context.CancelFunc
	excluded map[string]struct{} // mercados sin señal con política SKIP
}

// NewSession validates cfg and prepares a run with allocated capital.
// cfg is copied: later edits by the caller do not reach the session.
func NewSession(cfg domain.BotConfig, allocated float64, deps Deps, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("agent.NewSession: %w", err)
	}
	if allocated <= 0 {
		return nil, fmt.Errorf("agent.NewSession: allocated capital must be > 0 (got %.2f)", allocated)
	}
	if deps.Markets == nil || deps.Books == nil || deps.Estimator == nil || deps.Executor == nil {
		return nil, errors.New("agent.NewSession: markets, books, estimator and executor are required")
	}

	s := &Session{
		cfg:      cfg.Clone(),
		deps:     deps,
		now:      time.Now,
		wait:     sleepCtx,
		skips:    make(map[domain.SkipReason]int),
		excluded: make(map[string]struct{}),
	}
	s.runID = uuid.NewString()
	s.state = domain.RunState{
		RunID:            s.runID,
		Mode:             cfg.Mode,
		LoopState:        domain.StateIdle,
		AllocatedCapital: allocated,
		Balance:          allocated,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the session's config snapshot.
func (s *Session) Config() domain.BotConfig {
	return s.cfg.Clone()
}

// Stop cancels the in-flight iteration and prevents the next one from starting.
// A Stop issued while idle applies to the next Run. Once Run returns the stop
// request is cleared and the session can be resumed with another Run.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
}

// Snapshot is the read-only view of a session served to observers.
type Snapshot struct {
	RunID            string                    `json:"run_id"`
	Mode             domain.ExecutionMode      `json:"mode"`
	State            domain.LoopState          `json:"state"`
	IsRunning        bool                      `json:"is_running"`
	AllocatedCapital float64                   `json:"allocated_capital"`
	CumulativeSpent  float64                   `json:"cumulative_spent"`
	Remaining        float64                   `json:"remaining"`
	Balance          float64                   `json:"balance"`
	GasBalance       float64                   `json:"gas_balance"`
	TotalTrades      int                       `json:"total_trades"`
	Iterations       int                       `json:"iterations"`
	Faults           int                       `json:"faults"`
	StopReason       string                    `json:"stop_reason,omitempty"`
	StartedAt        time.Time                 `json:"started_at"`
	LastIterationAt  time.Time                 `json:"last_iteration_at"`
	Skips            map[domain.SkipReason]int `json:"skips"`
	Trades           []domain.Trade            `json:"trades"`
}

// State returns a consistent copy of the run counters and trades.
func (s *Session) State() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.state
	skips := make(map[domain.SkipReason]int, len(s.skips))
	for k, v := range s.skips {
		skips[k] = v
	}
	return Snapshot{
		RunID:            st.RunID,
		Mode:             st.Mode,
		State:            st.LoopState,
		IsRunning:        s.running.Load(),
		AllocatedCapital: st.AllocatedCapital,
		CumulativeSpent:  st.CumulativeSpent,
		Remaining:        st.Remaining(),
		Balance:          st.Balance,
		GasBalance:       st.GasBalance,
		TotalTrades:      st.TotalTrades,
		Iterations:       st.Iterations,
		Faults:           st.Faults,
		StopReason:       st.StopReason,
		StartedAt:        st.StartedAt,
		LastIterationAt:  st.LastIterationAt,
		Skips:            skips,
		Trades:           append([]domain.Trade(nil), s.trades...),
	}
}

// Summary returns the run summary as of now.
func (s *Session) Summary() domain.RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Summary(s.now())
}

// SkipCounts returns the accumulated skip-reason distribution of the run.
func (s *Session) SkipCounts() map[domain.SkipReason]int {
	return s.State().Skips
}

// --- state helpers ---

func (s *Session) setLoopState(ls domain.LoopState) {
	s.mu.Lock()
	s.state.LoopState = ls
	s.mu.Unlock()
}

func (s *Session) loopState() domain.LoopState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.LoopState
}

func (s *Session) runState() domain.RunState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) halt(ls domain.LoopState, reason string) {
	s.mu.Lock()
	s.state.LoopState = ls
	s.state.StopReason = reason
	s.mu.Unlock()
}

func (s *Session) isStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

// --- events ---

func (s *Session) emit(ctx context.Context, e domain.Event) {
	if e.Time.IsZero() {
		e.Time = s.now()
	}
	e.RunID = s.runID

	attrs := make([]any, 0, 8+2*len(e.Fields))
	attrs = append(attrs, "kind", e.Kind)
	if e.MarketID != "" {
		attrs = append(attrs, "market", domain.ShortID(e.MarketID))
	}
	if e.Reason != "" {
		attrs = append(attrs, "reason", e.Reason)
	}
	for k, v := range e.Fields {
		attrs = append(attrs, k, v)
	}
	slog.Log(ctx, e.Level, "agent: "+e.Message, attrs...)

	if s.deps.Sink != nil {
		s.deps.Sink.OnEvent(e)
	}
}

func (s *Session) skip(ctx context.Context, res *IterationResult, m domain.Market, reason domain.SkipReason, format string, args ...any) {
	res.Skips[reason]++
	s.mu.Lock()
	s.skips[reason]++
	s.mu.Unlock()

	s.emit(ctx, domain.Event{
		Level:    slog.LevelInfo,
		Kind:     domain.EventSkip,
		Message:  fmt.Sprintf("%s: %s", domain.TruncateQuestion(m.Question, m.ID, 40), fmt.Sprintf(format, args...)),
		MarketID: m.ID,
		Reason:   reason,
	})
}

func (s *Session) saveRun(ctx context.Context) {
	if s.deps.Journal == nil {
		return
	}
	if err := s.deps.Journal.SaveRun(ctx, s.Summary()); err != nil {
		slog.Warn("agent: saving run summary", "err", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

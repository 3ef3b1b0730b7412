package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// Run drives iterations until the budget is exhausted, the session is stopped,
// ctx is cancelled or a funding fault occurs. Iteration faults are logged and
// retried after ScanInterval × FaultBackoffMultiplier. The returned error is
// non-nil only for a funding fault (wrapping domain.ErrInsufficientFunds) or
// ErrAlreadyRunning.
func (s *Session) Run(ctx context.Context) (domain.RunSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return domain.RunSummary{}, ErrAlreadyRunning
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancel = cancel
	if s.stopped {
		cancel()
	}
	if s.state.StartedAt.IsZero() {
		s.state.StartedAt = s.now()
	}
	s.state.StopReason = ""
	s.mu.Unlock()

	st := s.runState()
	s.emit(ctx, domain.Event{
		Level:   slog.LevelInfo,
		Kind:    domain.EventRunStart,
		Message: fmt.Sprintf("run started (%s, $%.2f allocated)", st.Mode, st.AllocatedCapital),
		Fields:  map[string]any{"mode": string(st.Mode), "allocated": st.AllocatedCapital},
	})
	s.saveRun(ctx)

	fatal := s.loop(ctx)

	s.mu.Lock()
	s.stopped = false
	s.cancel = nil
	s.mu.Unlock()

	s.saveRun(context.WithoutCancel(ctx))
	return s.Summary(), fatal
}

func (s *Session) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			s.stopWithContext(ctx)
			return nil
		}

		res, err := s.RunIteration(ctx)
		if res.Exhausted {
			return nil
		}

		wait := s.cfg.ScanInterval
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInsufficientFunds):
				s.halt(domain.StateIdle, err.Error())
				s.emit(ctx, domain.Event{
					Level:   slog.LevelError,
					Kind:    domain.EventStopped,
					Message: "funding fault, stopping run: " + err.Error(),
				})
				return err
			case ctx.Err() != nil:
				s.stopWithContext(ctx)
				return nil
			}

			wait = scaleDuration(wait, s.cfg.FaultBackoffMultiplier)
			s.mu.Lock()
			s.state.Faults++
			s.state.LoopState = domain.StateMonitoring
			s.mu.Unlock()
			s.emit(ctx, domain.Event{
				Level:   slog.LevelWarn,
				Kind:    domain.EventFault,
				Message: fmt.Sprintf("iteration fault, backing off %s: %v", wait, err),
			})
		}

		st := s.runState()
		if err == nil && st.BudgetExhausted(s.cfg.BudgetEpsilon) {
			continue // next budget gate ends the run
		}
		if s.maxIterations > 0 && st.Iterations >= s.maxIterations {
			s.halt(domain.StateIdle, "max iterations reached")
			s.emit(ctx, domain.Event{
				Level:   slog.LevelInfo,
				Kind:    domain.EventStopped,
				Message: "max iterations reached",
			})
			return nil
		}

		if err := s.wait(ctx, wait); err != nil {
			s.stopWithContext(ctx)
			return nil
		}
	}
}

// stopWithContext moves the session to IDLE after a stop or cancellation.
func (s *Session) stopWithContext(ctx context.Context) {
	reason := "stopped by user"
	if !s.isStopped() {
		reason = "context cancelled"
	}
	s.halt(domain.StateIdle, reason)
	s.emit(context.WithoutCancel(ctx), domain.Event{
		Level:   slog.LevelInfo,
		Kind:    domain.EventStopped,
		Message: reason,
	})
}

func scaleDuration(d time.Duration, m float64) time.Duration {
	if m <= 1 {
		return d
	}
	return time.Duration(float64(d) * m)
}

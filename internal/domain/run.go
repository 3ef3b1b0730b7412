package domain

import "time"

// LoopState es el estado de la máquina de estados del decision loop.
type LoopState string

const (
	StateIdle       LoopState = "IDLE"
	StateScanning   LoopState = "SCANNING"
	StateAnalyzing  LoopState = "ANALYZING"
	StateRiskCheck  LoopState = "RISK_CHECK"
	StateExecuting  LoopState = "EXECUTING"
	StateMonitoring LoopState = "MONITORING"
	StateExhausted  LoopState = "EXHAUSTED"
)

// RunState son los contadores agregados de un run. Solo el decision loop lo muta.
type RunState struct {
	RunID            string
	Mode             ExecutionMode
	LoopState        LoopState
	AllocatedCapital float64
	CumulativeSpent  float64
	TotalTrades      int
	Balance          float64
	GasBalance       float64
	Iterations       int
	Faults           int
	StopReason       string
	StartedAt        time.Time
	LastIterationAt  time.Time
}

// Remaining devuelve el presupuesto aún no gastado.
func (s RunState) Remaining() float64 {
	return s.AllocatedCapital - s.CumulativeSpent
}

// BudgetExhausted aplica el budget gate: remaining <= epsilon.
func (s RunState) BudgetExhausted(epsilon float64) bool {
	return s.Remaining() <= epsilon
}

// RecordTrade aplica un fill a los contadores del run.
func (s *RunState) RecordTrade(t Trade) {
	s.CumulativeSpent += t.Size
	s.Balance -= t.Size
	s.TotalTrades++
}

// RunSummary es el resumen persistido al terminar un run.
type RunSummary struct {
	RunID            string
	Mode             ExecutionMode
	StartedAt        time.Time
	EndedAt          time.Time
	AllocatedCapital float64
	CumulativeSpent  float64
	TotalTrades      int
	Iterations       int
	Faults           int
	EndState         LoopState
	StopReason       string
}

// Summary construye el resumen del run a partir del estado actual.
func (s RunState) Summary(endedAt time.Time) RunSummary {
	return RunSummary{
		RunID:            s.RunID,
		Mode:             s.Mode,
		StartedAt:        s.StartedAt,
		EndedAt:          endedAt,
		AllocatedCapital: s.AllocatedCapital,
		CumulativeSpent:  s.CumulativeSpent,
		TotalTrades:      s.TotalTrades,
		Iterations:       s.Iterations,
		Faults:           s.Faults,
		EndState:         s.LoopState,
		StopReason:       s.StopReason,
	}
}

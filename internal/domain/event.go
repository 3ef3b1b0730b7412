package domain

import (
	"log/slog"
	"time"
)

// EventKind clasifica los puntos de decisión del loop.
type EventKind string

const (
	EventRunStart  EventKind = "run_start"
	EventScanStart EventKind = "scan_start"
	EventScanStats EventKind = "scan_stats"
	EventSkip      EventKind = "skip"
	EventSignal    EventKind = "signal"
	EventTrade     EventKind = "trade"
	EventNoTrade   EventKind = "no_trade"
	EventFault     EventKind = "fault"
	EventExhausted EventKind = "exhausted"
	EventStopped   EventKind = "stopped"
)

// SkipReason explica por qué un candidato no se ejecutó.
type SkipReason string

const (
	SkipNoBook        SkipReason = "no_book"
	SkipSpread        SkipReason = "spread"
	SkipNoSignal      SkipReason = "no_signal"
	SkipExcluded      SkipReason = "excluded"
	SkipEstimatorErr  SkipReason = "estimator_error"
	SkipLowEV         SkipReason = "low_ev"
	SkipLowConfidence SkipReason = "low_confidence"
	SkipSize          SkipReason = "size"
	SkipLiquidity     SkipReason = "liquidity"
	SkipExecution     SkipReason = "execution_rejected"
)

// Event es el registro estructurado {timestamp, level, message} emitido en cada
// punto de decisión, con contexto adicional para reconstruir el ciclo.
type Event struct {
	Time     time.Time      `json:"timestamp"`
	Level    slog.Level     `json:"level"`
	Kind     EventKind      `json:"kind"`
	Message  string         `json:"message"`
	RunID    string         `json:"run_id,omitempty"`
	MarketID string         `json:"market_id,omitempty"`
	Reason   SkipReason     `json:"reason,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
}

package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// TradeJournal persiste trades y resúmenes de run.
type TradeJournal interface {
	// SaveTrade persiste un trade ejecutado (simulado o real).
	SaveTrade(ctx context.Context, t domain.Trade) error

	// SaveRun persiste (o actualiza) el resumen de un run.
	SaveRun(ctx context.Context, s domain.RunSummary) error

	// GetTrades devuelve los trades registrados en el rango de tiempo dado.
	GetTrades(ctx context.Context, from, to time.Time) ([]domain.Trade, error)

	// GetRuns devuelve los últimos `limit` runs, más recientes primero.
	GetRuns(ctx context.Context, limit int) ([]domain.RunSummary, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}

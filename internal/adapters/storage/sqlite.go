package storage

// sqlite.go: diario de trades, log de eventos y resumen de runs.
//
//   - `trades`: una fila por trade ejecutado (simulado o real). Nunca se borra.
//   - `runs`: una fila por run (UPSERT): se guarda al arrancar y al terminar.
//   - `events`: un registro por punto de decisión del loop, para reconstruir
//     por qué se saltó o ejecutó cada candidato. Prune automático a 30 días.
//
// Los timestamps se guardan como unix millis (INTEGER) para que los rangos
// funcionen sin depender del formato de texto del driver.

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    id           TEXT PRIMARY KEY,
    run_id       TEXT    NOT NULL DEFAULT '',
    market_id    TEXT    NOT NULL,
    condition_id TEXT    NOT NULL DEFAULT '',
    question     TEXT,
    token_id     TEXT    NOT NULL,
    outcome      TEXT,
    side         TEXT    NOT NULL,
    entry_price  REAL    NOT NULL,
    size         REAL    NOT NULL,
    shares       REAL    NOT NULL DEFAULT 0,
    status       TEXT    NOT NULL,
    realized_pnl REAL    NOT NULL DEFAULT 0,
    edge         REAL    NOT NULL DEFAULT 0,
    probability  REAL    NOT NULL DEFAULT 0,
    confidence   REAL    NOT NULL DEFAULT 0,
    simulated    INTEGER NOT NULL DEFAULT 1,
    order_id     TEXT,
    created_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
    run_id      TEXT PRIMARY KEY,
    mode        TEXT    NOT NULL,
    started_at  INTEGER NOT NULL,
    ended_at    INTEGER,
    allocated   REAL    NOT NULL DEFAULT 0,
    spent       REAL    NOT NULL DEFAULT 0,
    trades      INTEGER NOT NULL DEFAULT 0,
    iterations  INTEGER NOT NULL DEFAULT 0,
    faults      INTEGER NOT NULL DEFAULT 0,
    end_state   TEXT,
    stop_reason TEXT
);

CREATE TABLE IF NOT EXISTS events (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id    TEXT,
    ts        INTEGER NOT NULL,
    level     TEXT    NOT NULL,
    kind      TEXT    NOT NULL,
    market_id TEXT,
    reason    TEXT,
    message   TEXT    NOT NULL,
    fields    TEXT
);

CREATE INDEX IF NOT EXISTS idx_trades_at  ON trades(created_at);
CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id);
CREATE INDEX IF NOT EXISTS idx_runs_at    ON runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_ts  ON events(ts DESC);
`

const retentionEvents = 30 * 24 * time.Hour

// SQLiteStorage implementa ports.TradeJournal y ports.EventSink usando
// SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia eventos antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// SaveTrade persiste un trade ejecutado.
func (s *SQLiteStorage) SaveTrade(ctx context.Context, t domain.Trade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades
			(id, run_id, market_id, condition_id, question, token_id, outcome, side,
			 entry_price, size, shares, status, realized_pnl, edge, probability,
			 confidence, simulated, order_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status       = excluded.status,
			realized_pnl = excluded.realized_pnl
	`,
		t.ID, t.RunID, t.MarketID, t.ConditionID, t.Question, t.TokenID, t.Outcome,
		string(t.Side), t.EntryPrice, t.Size, t.Shares, string(t.Status), t.RealizedPnL,
		t.Edge, t.Probability, t.Confidence, boolToInt(t.Simulated), t.OrderID,
		t.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveTrade: insert %s: %w", t.ID, err)
	}
	return nil
}

// GetTrades devuelve los trades creados en el rango dado, más antiguos primero.
func (s *SQLiteStorage) GetTrades(ctx context.Context, from, to time.Time) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, market_id, condition_id, question, token_id, outcome, side,
		       entry_price, size, shares, status, realized_pnl, edge, probability,
		       confidence, simulated, order_id, created_at
		FROM trades
		WHERE created_at BETWEEN ? AND ?
		ORDER BY created_at ASC
	`, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("storage.GetTrades: query: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var question, outcome, orderID sql.NullString
		var side, status string
		var simulated int
		var createdAt int64
		if err := rows.Scan(
			&t.ID, &t.RunID, &t.MarketID, &t.ConditionID, &question, &t.TokenID, &outcome,
			&side, &t.EntryPrice, &t.Size, &t.Shares, &status, &t.RealizedPnL, &t.Edge,
			&t.Probability, &t.Confidence, &simulated, &orderID, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("storage.GetTrades: scan row: %w", err)
		}
		t.Question = question.String
		t.Outcome = outcome.String
		t.OrderID = orderID.String
		t.Side = domain.Side(side)
		t.Status = domain.TradeStatus(status)
		t.Simulated = simulated == 1
		t.CreatedAt = time.UnixMilli(createdAt).UTC()
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// SaveRun hace upsert del resumen de un run.
func (s *SQLiteStorage) SaveRun(ctx context.Context, r domain.RunSummary) error {
	var endedAt *int64
	if !r.EndedAt.IsZero() {
		ms := r.EndedAt.UnixMilli()
		endedAt = &ms
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
			(run_id, mode, started_at, ended_at, allocated, spent, trades,
			 iterations, faults, end_state, stop_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			ended_at    = excluded.ended_at,
			spent       = excluded.spent,
			trades      = excluded.trades,
			iterations  = excluded.iterations,
			faults      = excluded.faults,
			end_state   = excluded.end_state,
			stop_reason = excluded.stop_reason
	`,
		r.RunID, string(r.Mode), r.StartedAt.UnixMilli(), endedAt, r.AllocatedCapital,
		r.CumulativeSpent, r.TotalTrades, r.Iterations, r.Faults, string(r.EndState),
		r.StopReason,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: upsert %s: %w", r.RunID, err)
	}
	return nil
}

// GetRuns devuelve los últimos `limit` runs, más recientes primero.
func (s *SQLiteStorage) GetRuns(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, mode, started_at, ended_at, allocated, spent, trades,
		       iterations, faults, end_state, stop_reason
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.GetRuns: query: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunSummary
	for rows.Next() {
		var r domain.RunSummary
		var mode string
		var startedAt int64
		var endedAt sql.NullInt64
		var endState, stopReason sql.NullString
		if err := rows.Scan(
			&r.RunID, &mode, &startedAt, &endedAt, &r.AllocatedCapital, &r.CumulativeSpent,
			&r.TotalTrades, &r.Iterations, &r.Faults, &endState, &stopReason,
		); err != nil {
			return nil, fmt.Errorf("storage.GetRuns: scan row: %w", err)
		}
		r.Mode = domain.ExecutionMode(mode)
		r.StartedAt = time.UnixMilli(startedAt).UTC()
		if endedAt.Valid {
			r.EndedAt = time.UnixMilli(endedAt.Int64).UTC()
		}
		r.EndState = domain.LoopState(endState.String)
		r.StopReason = stopReason.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// OnEvent implementa ports.EventSink. Un fallo de escritura solo se loguea:
// el log de eventos nunca detiene el loop.
func (s *SQLiteStorage) OnEvent(e domain.Event) {
	var fields []byte
	if len(e.Fields) > 0 {
		var err error
		if fields, err = json.Marshal(e.Fields); err != nil {
			slog.Warn("event fields not serializable", "kind", e.Kind, "err", err)
			fields = nil
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO events (run_id, ts, level, kind, market_id, reason, message, fields)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.RunID, e.Time.UnixMilli(), e.Level.String(), string(e.Kind), e.MarketID,
		string(e.Reason), e.Message, nullableString(fields),
	); err != nil {
		slog.Warn("event not persisted", "kind", e.Kind, "err", err)
	}
}

// RecentEvents devuelve los últimos `limit` eventos en orden cronológico.
func (s *SQLiteStorage) RecentEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, ts, level, kind, market_id, reason, message, fields
		FROM (SELECT * FROM events ORDER BY id DESC LIMIT ?)
		ORDER BY id ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentEvents: query: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var runID, marketID, reason, fields sql.NullString
		var ts int64
		var level, kind string
		if err := rows.Scan(&runID, &ts, &level, &kind, &marketID, &reason, &e.Message, &fields); err != nil {
			return nil, fmt.Errorf("storage.RecentEvents: scan row: %w", err)
		}
		e.RunID = runID.String
		e.Time = time.UnixMilli(ts).UTC()
		_ = e.Level.UnmarshalText([]byte(level))
		e.Kind = domain.EventKind(kind)
		e.MarketID = marketID.String
		e.Reason = domain.SkipReason(reason.String)
		if fields.Valid && fields.String != "" {
			_ = json.Unmarshal([]byte(fields.String), &e.Fields)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

// pruneOld elimina eventos antiguos para mantener la DB ligera.
// Trades y runs se conservan siempre.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().Add(-retentionEvents).UnixMilli()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE ts < ?`, cutoff); err != nil {
		slog.Debug("event prune failed", "err", err)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

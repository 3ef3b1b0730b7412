package main

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/polyedge/config"
	"github.com/alejandrodnm/polyedge/internal/adapters/notify"
	"github.com/alejandrodnm/polyedge/internal/adapters/storage"
)

const (
	reportWindow = 30 * 24 * time.Hour
	reportRuns   = 20
	reportEvents = 25
)

// runReport imprime el historial de trades y los últimos runs guardados.
func runReport(cfg *config.Config, console *notify.Console) error {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("runReport: open storage: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now()
	trades, err := store.GetTrades(ctx, now.Add(-reportWindow), now)
	if err != nil {
		return fmt.Errorf("runReport: %w", err)
	}
	runs, err := store.GetRuns(ctx, reportRuns)
	if err != nil {
		return fmt.Errorf("runReport: %w", err)
	}

	fmt.Printf("\n=== TRADES (last %d days) ===\n", int(reportWindow.Hours()/24))
	console.PrintTrades(trades)
	fmt.Printf("\n=== RUNS (last %d) ===\n", reportRuns)
	console.PrintRuns(runs)

	events, err := store.RecentEvents(ctx, reportEvents)
	if err != nil {
		return fmt.Errorf("runReport: %w", err)
	}
	fmt.Printf("\n=== EVENTS (last %d) ===\n", reportEvents)
	for _, e := range events {
		console.OnEvent(e)
	}
	return nil
}

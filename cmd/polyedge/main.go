package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/polyedge/config"
	"github.com/alejandrodnm/polyedge/internal/adapters/monitor"
	"github.com/alejandrodnm/polyedge/internal/adapters/notify"
	"github.com/alejandrodnm/polyedge/internal/adapters/polymarket"
	"github.com/alejandrodnm/polyedge/internal/adapters/reasoning"
	"github.com/alejandrodnm/polyedge/internal/adapters/storage"
	"github.com/alejandrodnm/polyedge/internal/application/agent"
	"github.com/alejandrodnm/polyedge/internal/application/execution"
	"github.com/alejandrodnm/polyedge/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single iteration and exit")
	live := flag.Bool("live", false, "execute real orders (overrides agent.mode)")
	verbose := flag.Bool("verbose", false, "set log level to debug and print every skip")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	report := flag.Bool("report", false, "print trade history and recent runs, then exit")
	monitorAddr := flag.String("monitor", "", "serve /state and /events on this address (overrides config)")
	capital := flag.Float64("capital", 0, "allocated capital in USDC (overrides config)")
	dryRun := flag.Bool("dry-run", false, "do not persist trades, runs or events")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *live {
		cfg.Agent.Mode = "live"
	}
	if *capital > 0 {
		cfg.Agent.CapitalUSDC = *capital
	}
	if *monitorAddr != "" {
		cfg.Monitor.Addr = *monitorAddr
	}
	closeLog := setupLogger(cfg.Log)
	defer closeLog()

	console := notify.NewConsole(!*verbose)

	if *report {
		if err := runReport(cfg, console); err != nil {
			slog.Error("report failed", "err", err)
			os.Exit(1)
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}
	botCfg := cfg.BotConfig()
	if err := botCfg.Validate(); err != nil {
		slog.Error("invalid agent config", "err", err)
		os.Exit(1)
	}

	slog.Info("polyedge starting",
		"config", *configPath,
		"mode", botCfg.Mode,
		"capital", fmt.Sprintf("$%.2f", cfg.Agent.CapitalUSDC),
		"interval", botCfg.ScanInterval,
		"once", *once,
		"dry_run", *dryRun,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase, polymarket.WithTimeout(cfg.APITimeout()))
	estimator := reasoning.NewClient(cfg.Reasoning.APIKey,
		reasoning.WithBaseURL(cfg.Reasoning.BaseURL),
		reasoning.WithModel(cfg.Reasoning.Model),
		reasoning.WithRequestsPerMinute(cfg.Reasoning.RequestsPerMinute),
		reasoning.WithTimeout(cfg.ReasoningTimeout()),
	)

	deps := agent.Deps{
		Markets:   client,
		Books:     client,
		Estimator: estimator,
	}
	sinks := []ports.EventSink{console}

	if !*dryRun {
		store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
		if err != nil {
			slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
			os.Exit(1)
		}
		defer store.Close()
		deps.Journal = store
		sinks = append(sinks, store)
	}

	var (
		placer   ports.OrderPlacer
		balances ports.BalanceSource
	)
	if cfg.IsLive() {
		lv, err := setupLive(ctx, cfg)
		if err != nil {
			slog.Error("live setup failed", "err", err)
			os.Exit(1)
		}
		if lv == nil {
			return // abortado por el usuario
		}
		placer, balances = lv.trading, lv.wallet
		deps.Balances = lv.wallet
	}
	deps.Executor = execution.New(botCfg, placer, balances)

	var session *agent.Session
	var hub *monitor.Hub
	if cfg.Monitor.Addr != "" {
		hub = monitor.NewHub(func() any { return session.State() })
		sinks = append(sinks, hub)
	}
	deps.Sink = notify.NewMulti(sinks...)

	var opts []agent.Option
	if *once {
		opts = append(opts, agent.WithMaxIterations(1))
	}
	session, err = agent.NewSession(botCfg, cfg.Agent.CapitalUSDC, deps, opts...)
	if err != nil {
		slog.Error("failed to create session", "err", err)
		os.Exit(1)
	}

	if hub != nil {
		go func() {
			if err := hub.Serve(ctx, cfg.Monitor.Addr); err != nil {
				slog.Error("monitor stopped", "err", err)
			}
		}()
	}

	summary, runErr := session.Run(ctx)
	console.PrintSummary(summary, session.SkipCounts())

	if runErr != nil {
		slog.Error("run stopped with error", "err", runErr, "run", summary.RunID)
		closeLog()
		os.Exit(1)
	}
	slog.Info("polyedge stopped cleanly",
		"state", summary.EndState,
		"trades", summary.TotalTrades,
		"spent", fmt.Sprintf("$%.2f", summary.CumulativeSpent),
		"duration", summary.EndedAt.Sub(summary.StartedAt).Round(time.Second),
	)
}

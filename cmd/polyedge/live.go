package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyedge/config"
	"github.com/alejandrodnm/polyedge/internal/adapters/onchain"
	"github.com/alejandrodnm/polyedge/internal/adapters/polymarket"
)

type liveDeps struct {
	trading *polymarket.TradingClient
	wallet  *onchain.Wallet
}

// setupLive authenticates against the CLOB and connects the Polygon wallet.
// It returns nil, nil when the user aborts during the countdown.
func setupLive(ctx context.Context, cfg *config.Config) (*liveDeps, error) {
	slog.Info("=== LIVE TRADING MODE (REAL MONEY) ===",
		"capital", fmt.Sprintf("$%.2f", cfg.Agent.CapitalUSDC),
		"max_trade", fmt.Sprintf("$%.2f", cfg.Agent.MaxTradeSize),
		"order_type", cfg.Agent.OrderType,
	)

	fmt.Printf("\n⚠️  LIVE TRADING MODE — REAL MONEY WILL BE SPENT\n")
	fmt.Printf("   Capital: $%.2f | Max trade: $%.2f | Kelly x%.2f\n",
		cfg.Agent.CapitalUSDC, cfg.Agent.MaxTradeSize, cfg.Agent.KellyMultiplier)
	fmt.Printf("   Press Ctrl+C within 5 seconds to abort...\n\n")

	abortTimer := time.NewTimer(5 * time.Second)
	defer abortTimer.Stop()
	select {
	case <-abortTimer.C:
	case <-ctx.Done():
		slog.Info("live trading aborted by user")
		return nil, nil
	}

	auth, err := polymarket.NewAuthClient(cfg.API.CLOBBase, cfg.API.GammaBase, cfg.Wallet.PrivateKey,
		polymarket.WithTimeout(cfg.APITimeout()))
	if err != nil {
		return nil, fmt.Errorf("setupLive: auth client: %w", err)
	}

	if cfg.API.APIKey != "" && cfg.API.APISecret != "" && cfg.API.APIPassphrase != "" {
		auth.SetCredentials(cfg.API.APIKey, cfg.API.APISecret, cfg.API.APIPassphrase)
	} else if err := auth.EnsureCreds(ctx); err != nil {
		return nil, fmt.Errorf("setupLive: derive API credentials (check POLY_PRIVATE_KEY): %w", err)
	}
	slog.Info("live: authenticated with Polymarket CLOB", "address", auth.Address())

	wallet, err := onchain.Dial(ctx, cfg.Wallet.RPCURL, cfg.Wallet.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("setupLive: wallet: %w", err)
	}

	bal, err := wallet.Balances(ctx)
	if err != nil {
		return nil, fmt.Errorf("setupLive: balances: %w", err)
	}
	slog.Info("live: wallet balances",
		"address", wallet.Address(),
		"usdc", fmt.Sprintf("$%.2f", bal.Trading),
		"pol", fmt.Sprintf("%.4f", bal.Gas),
	)

	// Las órdenes fallan sin allowance hacia los exchanges: solo avisamos.
	for name, spender := range map[string]string{
		"ctf_exchange":      onchain.CTFExchange,
		"neg_risk_exchange": onchain.NegRiskExchange,
	} {
		allowance, err := wallet.Allowance(ctx, spender)
		if err != nil {
			slog.Warn("live: allowance check failed", "spender", name, "err", err)
			continue
		}
		if allowance < cfg.Agent.MaxTradeSize {
			slog.Warn("live: USDC.e allowance below max trade size", "spender", name,
				"allowance", fmt.Sprintf("$%.2f", allowance))
		}
	}

	return &liveDeps{
		trading: polymarket.NewTradingClient(auth),
		wallet:  wallet,
	}, nil
}

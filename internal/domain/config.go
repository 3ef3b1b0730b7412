package domain

import (
	"errors"
	"fmt"
	"time"
)

// ExecutionMode selecciona entre ejecución simulada y real.
type ExecutionMode string

const (
	ModeSimulated ExecutionMode = "SIMULATED"
	ModeLive      ExecutionMode = "LIVE"
)

// MissingSignalPolicy decide qué hacer con un mercado sin señal.
type MissingSignalPolicy string

const (
	// MissingSignalSkip excluye el mercado del resto del run.
	MissingSignalSkip MissingSignalPolicy = "SKIP"
	// MissingSignalRetry lo deja elegible para el próximo scan.
	MissingSignalRetry MissingSignalPolicy = "RETRY"
)

// Tipos de orden aceptados por el CLOB.
const (
	OrderTypeFOK = "FOK"
	OrderTypeGTC = "GTC"
	OrderTypeGTD = "GTD"
)

// BotConfig es el bundle de parámetros de un run. Se copia por valor al arrancar
// la sesión: ediciones posteriores no afectan al run en curso.
type BotConfig struct {
	Mode ExecutionMode

	// Discovery
	BinaryOnly        bool
	Categories        []string
	FetchLimit        int
	MaxMarketsPerScan int

	// Edge
	MinEV           float64
	MinConfidence   float64
	OnMissingSignal MissingSignalPolicy

	// Sizing
	KellyMultiplier     float64
	MaxExposurePerTrade float64 // fracción del balance
	MinTradeSize        float64 // USDC
	MaxTradeSize        float64 // USDC

	// Liquidez
	MaxSpread              float64 // fraccional, relativo al mid
	MinLiquidityMultiplier float64
	DepthLevels            int

	// Scheduling
	ScanInterval           time.Duration
	CandidateDelay         time.Duration
	FaultBackoffMultiplier float64

	// Budget
	BudgetEpsilon float64

	// Live
	MinGasBalance float64
	OrderType     string
	OrderTTL      time.Duration // solo GTD
}

// DefaultBotConfig devuelve los valores por defecto documentados.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		Mode:                   ModeSimulated,
		BinaryOnly:             true,
		FetchLimit:             100,
		MaxMarketsPerScan:      5,
		MinEV:                  0.05,
		MinConfidence:          0.6,
		OnMissingSignal:        MissingSignalRetry,
		KellyMultiplier:        0.25,
		MaxExposurePerTrade:    0.10,
		MinTradeSize:           1,
		MaxTradeSize:           25,
		MaxSpread:              0.05,
		MinLiquidityMultiplier: 1.5,
		DepthLevels:            5,
		ScanInterval:           60 * time.Second,
		CandidateDelay:         1200 * time.Millisecond,
		FaultBackoffMultiplier: 2,
		BudgetEpsilon:          0.25,
		MinGasBalance:          0.05,
		OrderType:              OrderTypeFOK,
		OrderTTL:               5 * time.Minute,
	}
}

// Validate rechaza configuraciones inválidas. Nunca corrige valores:
// devuelve todas las violaciones encontradas.
func (c BotConfig) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Mode {
	case ModeSimulated, ModeLive:
	default:
		add("mode %q must be %s or %s", c.Mode, ModeSimulated, ModeLive)
	}
	switch c.OnMissingSignal {
	case MissingSignalSkip, MissingSignalRetry:
	default:
		add("on_missing_signal %q must be %s or %s", c.OnMissingSignal, MissingSignalSkip, MissingSignalRetry)
	}

	if c.MaxMarketsPerScan <= 0 {
		add("max_markets_per_scan must be > 0 (got %d)", c.MaxMarketsPerScan)
	}
	if c.FetchLimit < 0 {
		add("fetch_limit must be >= 0 (got %d)", c.FetchLimit)
	}
	if c.MinEV < 0 || c.MinEV > 1 {
		add("min_ev must be within [0,1] (got %.4f)", c.MinEV)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		add("min_confidence must be within [0,1] (got %.4f)", c.MinConfidence)
	}
	if c.KellyMultiplier <= 0 || c.KellyMultiplier > 1 {
		add("kelly_multiplier must be within (0,1] (got %.4f)", c.KellyMultiplier)
	}
	if c.MaxExposurePerTrade <= 0 || c.MaxExposurePerTrade > 1 {
		add("max_exposure_per_trade must be within (0,1] (got %.4f)", c.MaxExposurePerTrade)
	}
	if c.MinTradeSize < 0 {
		add("min_trade_size must be >= 0 (got %.2f)", c.MinTradeSize)
	}
	if c.MaxTradeSize <= 0 {
		add("max_trade_size must be > 0 (got %.2f)", c.MaxTradeSize)
	}
	if c.MinTradeSize > c.MaxTradeSize {
		add("min_trade_size %.2f exceeds max_trade_size %.2f", c.MinTradeSize, c.MaxTradeSize)
	}
	if c.MaxSpread <= 0 {
		add("max_spread must be > 0 (got %.4f)", c.MaxSpread)
	}
	if c.MinLiquidityMultiplier < 1 {
		add("min_liquidity_multiplier must be >= 1.0 (got %.2f)", c.MinLiquidityMultiplier)
	}
	if c.DepthLevels <= 0 {
		add("depth_levels must be > 0 (got %d)", c.DepthLevels)
	}
	if c.ScanInterval <= 0 {
		add("scan_interval must be > 0 (got %s)", c.ScanInterval)
	}
	if c.CandidateDelay < 0 {
		add("candidate_delay must be >= 0 (got %s)", c.CandidateDelay)
	}
	if c.FaultBackoffMultiplier < 1 {
		add("fault_backoff_multiplier must be >= 1 (got %.2f)", c.FaultBackoffMultiplier)
	}
	if c.BudgetEpsilon < 0 {
		add("budget_epsilon must be >= 0 (got %.4f)", c.BudgetEpsilon)
	}

	if c.Mode == ModeLive {
		if c.MinGasBalance < 0 {
			add("min_gas_balance must be >= 0 (got %.4f)", c.MinGasBalance)
		}
		switch c.OrderType {
		case OrderTypeFOK, OrderTypeGTC:
		case OrderTypeGTD:
			if c.OrderTTL <= 0 {
				add("order_ttl must be > 0 for GTD orders")
			}
		default:
			add("order_type %q must be FOK, GTC or GTD", c.OrderType)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid bot config: %w", errors.Join(errs...))
}

// Clone devuelve una copia profunda (el slice de categorías no se comparte).
func (c BotConfig) Clone() BotConfig {
	out := c
	if c.Categories != nil {
		out.Categories = append([]string(nil), c.Categories...)
	}
	return out
}

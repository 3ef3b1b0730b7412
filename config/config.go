package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// Config es la configuración completa del agente.
type Config struct {
	Agent     AgentConfig     `yaml:"agent"`
	API       APIConfig       `yaml:"api"`
	Reasoning ReasoningConfig `yaml:"reasoning"`
	Wallet    WalletConfig    `yaml:"wallet"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
	Monitor   MonitorConfig   `yaml:"monitor"`
}

// AgentConfig son los parámetros del decision loop. Se convierten a
// domain.BotConfig con BotConfig() y se validan al crear la sesión.
type AgentConfig struct {
	Mode        string  `yaml:"mode"`         // simulated | live
	CapitalUSDC float64 `yaml:"capital_usdc"` // capital asignado al run

	BinaryOnly        bool     `yaml:"binary_only"`
	Categories        []string `yaml:"categories"` // vacío = todas
	FetchLimit        int      `yaml:"fetch_limit"`
	MaxMarketsPerScan int      `yaml:"max_markets_per_scan"`

	MinEV           float64 `yaml:"min_ev"`
	MinConfidence   float64 `yaml:"min_confidence"`
	OnMissingSignal string  `yaml:"on_missing_signal"` // SKIP | RETRY

	KellyMultiplier     float64 `yaml:"kelly_multiplier"`
	MaxExposurePerTrade float64 `yaml:"max_exposure_per_trade"`
	MinTradeSize        float64 `yaml:"min_trade_size"`
	MaxTradeSize        float64 `yaml:"max_trade_size"`

	MaxSpread              float64 `yaml:"max_spread"`
	MinLiquidityMultiplier float64 `yaml:"min_liquidity_multiplier"`
	DepthLevels            int     `yaml:"depth_levels"`

	ScanIntervalSeconds    int     `yaml:"scan_interval_seconds"`
	CandidateDelayMs       int     `yaml:"candidate_delay_ms"`
	FaultBackoffMultiplier float64 `yaml:"fault_backoff_multiplier"`
	BudgetEpsilon          float64 `yaml:"budget_epsilon"`

	MinGasBalance   float64 `yaml:"min_gas_balance"` // POL
	OrderType       string  `yaml:"order_type"`      // FOK | GTC | GTD
	OrderTTLSeconds int     `yaml:"order_ttl_seconds"`
}

// APIConfig contiene los base URLs de Polymarket y las credenciales L2 opcionales.
type APIConfig struct {
	CLOBBase       string `yaml:"clob_base"`
	GammaBase      string `yaml:"gamma_base"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	APIKey         string `yaml:"api_key"`
	APISecret      string `yaml:"api_secret"`
	APIPassphrase  string `yaml:"api_passphrase"`
}

const defaultRequestsPerMinute = 15

// ReasoningConfig configura el servicio de razonamiento (Gemini).
type ReasoningConfig struct {
	APIKey            string `yaml:"api_key"`
	BaseURL           string `yaml:"base_url"`
	Model             string `yaml:"model"`
	RequestsPerMinute int    `yaml:"requests_per_minute"` // 0 = sin límite local
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
}

// WalletConfig configura la wallet de Polygon (solo modo live).
type WalletConfig struct {
	PrivateKey string `yaml:"private_key"`
	RPCURL     string `yaml:"rpc_url"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato, nivel y archivo de logging.
type LogConfig struct {
	Level      string `yaml:"level"`  // debug | info | warn | error
	Format     string `yaml:"format"` // text | json
	File       string `yaml:"file"`   // vacío = solo stdout
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// MonitorConfig controla el servidor HTTP de monitorización.
type MonitorConfig struct {
	Addr string `yaml:"addr"` // vacío = desactivado
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben los valores del YAML.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse construye la configuración a partir de YAML ya leído.
// Los campos ausentes conservan los defaults del dominio.
func Parse(data []byte) (*Config, error) {
	cfg := Config{
		Agent:     defaultAgent(),
		Reasoning: ReasoningConfig{RequestsPerMinute: defaultRequestsPerMinute},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Parse: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// Validate comprueba los requisitos que no cubre BotConfig.Validate:
// credenciales y endpoints según el modo.
func (c *Config) Validate() error {
	var errs []error
	if c.Agent.CapitalUSDC <= 0 {
		errs = append(errs, fmt.Errorf("agent.capital_usdc must be > 0 (got %.2f)", c.Agent.CapitalUSDC))
	}
	if c.Reasoning.APIKey == "" {
		errs = append(errs, errors.New("reasoning.api_key is required (or GEMINI_API_KEY)"))
	}
	if c.IsLive() {
		if c.Wallet.PrivateKey == "" {
			errs = append(errs, errors.New("wallet.private_key is required in live mode (or POLY_PRIVATE_KEY)"))
		}
		if c.Wallet.RPCURL == "" {
			errs = append(errs, errors.New("wallet.rpc_url is required in live mode (or POLYGON_RPC_URL)"))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("config.Validate: %w", errors.Join(errs...))
}

// IsLive indica si el modo configurado es ejecución real.
func (c *Config) IsLive() bool {
	return strings.EqualFold(c.Agent.Mode, string(domain.ModeLive))
}

// BotConfig convierte la sección agent en el snapshot de dominio.
func (c *Config) BotConfig() domain.BotConfig {
	a := c.Agent
	return domain.BotConfig{
		Mode:                   domain.ExecutionMode(strings.ToUpper(a.Mode)),
		BinaryOnly:             a.BinaryOnly,
		Categories:             append([]string(nil), a.Categories...),
		FetchLimit:             a.FetchLimit,
		MaxMarketsPerScan:      a.MaxMarketsPerScan,
		MinEV:                  a.MinEV,
		MinConfidence:          a.MinConfidence,
		OnMissingSignal:        domain.MissingSignalPolicy(strings.ToUpper(a.OnMissingSignal)),
		KellyMultiplier:        a.KellyMultiplier,
		MaxExposurePerTrade:    a.MaxExposurePerTrade,
		MinTradeSize:           a.MinTradeSize,
		MaxTradeSize:           a.MaxTradeSize,
		MaxSpread:              a.MaxSpread,
		MinLiquidityMultiplier: a.MinLiquidityMultiplier,
		DepthLevels:            a.DepthLevels,
		ScanInterval:           time.Duration(a.ScanIntervalSeconds) * time.Second,
		CandidateDelay:         time.Duration(a.CandidateDelayMs) * time.Millisecond,
		FaultBackoffMultiplier: a.FaultBackoffMultiplier,
		BudgetEpsilon:          a.BudgetEpsilon,
		MinGasBalance:          a.MinGasBalance,
		OrderType:              strings.ToUpper(a.OrderType),
		OrderTTL:               time.Duration(a.OrderTTLSeconds) * time.Second,
	}
}

// APITimeout devuelve el timeout HTTP de los clientes de Polymarket.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// ReasoningTimeout devuelve el timeout HTTP del servicio de razonamiento.
func (c *Config) ReasoningTimeout() time.Duration {
	return time.Duration(c.Reasoning.TimeoutSeconds) * time.Second
}

// defaultAgent parte de los defaults documentados del dominio.
func defaultAgent() AgentConfig {
	d := domain.DefaultBotConfig()
	return AgentConfig{
		Mode:                   strings.ToLower(string(d.Mode)),
		CapitalUSDC:            100,
		BinaryOnly:             d.BinaryOnly,
		FetchLimit:             d.FetchLimit,
		MaxMarketsPerScan:      d.MaxMarketsPerScan,
		MinEV:                  d.MinEV,
		MinConfidence:          d.MinConfidence,
		OnMissingSignal:        string(d.OnMissingSignal),
		KellyMultiplier:        d.KellyMultiplier,
		MaxExposurePerTrade:    d.MaxExposurePerTrade,
		MinTradeSize:           d.MinTradeSize,
		MaxTradeSize:           d.MaxTradeSize,
		MaxSpread:              d.MaxSpread,
		MinLiquidityMultiplier: d.MinLiquidityMultiplier,
		DepthLevels:            d.DepthLevels,
		ScanIntervalSeconds:    int(d.ScanInterval / time.Second),
		CandidateDelayMs:       int(d.CandidateDelay / time.Millisecond),
		FaultBackoffMultiplier: d.FaultBackoffMultiplier,
		BudgetEpsilon:          d.BudgetEpsilon,
		MinGasBalance:          d.MinGasBalance,
		OrderType:              d.OrderType,
		OrderTTLSeconds:        int(d.OrderTTL / time.Second),
	}
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{"LOG_LEVEL", &cfg.Log.Level},
		{"LOG_FORMAT", &cfg.Log.Format},
		{"POLYEDGE_MODE", &cfg.Agent.Mode},
		{"GEMINI_API_KEY", &cfg.Reasoning.APIKey},
		{"POLY_PRIVATE_KEY", &cfg.Wallet.PrivateKey},
		{"POLYGON_RPC_URL", &cfg.Wallet.RPCURL},
		{"POLY_API_KEY", &cfg.API.APIKey},
		{"POLY_API_SECRET", &cfg.API.APISecret},
		{"POLY_API_PASSPHRASE", &cfg.API.APIPassphrase},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
// Los parámetros de riesgo no se corrigen aquí: BotConfig.Validate los rechaza.
func setDefaults(cfg *Config) {
	if cfg.Agent.Mode == "" {
		cfg.Agent.Mode = "simulated"
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.API.TimeoutSeconds <= 0 {
		cfg.API.TimeoutSeconds = 15
	}
	if cfg.Reasoning.Model == "" {
		cfg.Reasoning.Model = "gemini-2.0-flash"
	}
	if cfg.Reasoning.BaseURL == "" {
		cfg.Reasoning.BaseURL = "https://generativelanguage.googleapis.com"
	}
	// 0 explícito desactiva el límite local; sólo un negativo vuelve al default
	if cfg.Reasoning.RequestsPerMinute < 0 {
		cfg.Reasoning.RequestsPerMinute = defaultRequestsPerMinute
	}
	if cfg.Reasoning.TimeoutSeconds <= 0 {
		cfg.Reasoning.TimeoutSeconds = 60
	}
	if cfg.Wallet.RPCURL == "" && cfg.Wallet.PrivateKey != "" {
		cfg.Wallet.RPCURL = "https://polygon-rpc.com"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polyedge.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 50
	}
	if cfg.Log.MaxBackups <= 0 {
		cfg.Log.MaxBackups = 5
	}
	if cfg.Log.MaxAgeDays <= 0 {
		cfg.Log.MaxAgeDays = 30
	}
}

// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Health    HealthConfig    `mapstructure:"health"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	TUIMode     bool   `mapstructure:"-"` // Set at runtime, not from config file
}

// Exchange adapters.
const (
	ExchangeBinance = "binance"
	ExchangePaper   = "paper"
)

// ExchangeConfig holds the exchange adapter configuration.
type ExchangeConfig struct {
	Name                   string        `mapstructure:"name"`
	APIKey                 string        `mapstructure:"api_key"`
	APISecret              string        `mapstructure:"api_secret"`
	RestURL                string        `mapstructure:"rest_url"`
	WebSocketURL           string        `mapstructure:"websocket_url"` // wss://stream.binance.com:9443 or wss://stream.binance.us:9443 for US
	RecvWindow             time.Duration `mapstructure:"recv_window"`
	RequestTimeout         time.Duration `mapstructure:"request_timeout"`
	RequestWeightPerMinute int           `mapstructure:"request_weight_per_minute"`
	TakerFee               float64       `mapstructure:"taker_fee"`
	MakerFee               float64       `mapstructure:"maker_fee"`
	StreamDepth            bool          `mapstructure:"stream_depth"`
	StaleTimeout           time.Duration `mapstructure:"stale_timeout"`
	DepthLimit             int           `mapstructure:"depth_limit"`

	// PaperBalances seeds the paper exchange, asset -> free amount.
	PaperBalances map[string]float64 `mapstructure:"paper_balances"`
}

// TakerFeeDecimal returns the default taker fee as decimal.Decimal.
func (c *ExchangeConfig) TakerFeeDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.TakerFee)
}

// MakerFeeDecimal returns the default maker fee as decimal.Decimal.
func (c *ExchangeConfig) MakerFeeDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MakerFee)
}

// PaperBalancesDecimal returns the paper balances keyed by upper-case asset.
func (c *ExchangeConfig) PaperBalancesDecimal() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(c.PaperBalances))
	for asset, amount := range c.PaperBalances {
		out[strings.ToUpper(asset)] = decimal.NewFromFloat(amount)
	}
	return out
}

// Engine policies.
const (
	SchedulerScore   = "score"
	SchedulerScanAll = "scan_all"

	UnwindContinue = "continue"
	UnwindSell     = "unwind"

	PriceSourceDepth  = "depth"
	PriceSourceTicker = "ticker"
)

// EngineConfig holds the arbitrage engine configuration.
type EngineConfig struct {
	AnchorAssets        []string        `mapstructure:"anchor_assets"`
	InitialInvestment   float64         `mapstructure:"initial_investment"`
	MinProfit           float64         `mapstructure:"min_profit"`
	Slippage            []float64       `mapstructure:"slippage"`
	PriceSource         string          `mapstructure:"price_source"`
	PollInterval        time.Duration   `mapstructure:"poll_interval"`
	PollAttempts        int             `mapstructure:"poll_attempts"`
	UnwindPolicy        string          `mapstructure:"unwind_policy"`
	SchedulerMode       string          `mapstructure:"scheduler_mode"`
	Reward              int             `mapstructure:"reward"`
	Penalty             int             `mapstructure:"penalty"`
	ScoreFloorEnabled   bool            `mapstructure:"score_floor_enabled"`
	ScoreFloor          int             `mapstructure:"score_floor"`
	MaxRefinements      int             `mapstructure:"max_refinements"`
	BalanceRefreshEvery int             `mapstructure:"balance_refresh_every"`
	DryRun              bool            `mapstructure:"dry_run"`
	NetworkSleeps       []time.Duration `mapstructure:"network_sleeps"`
	ExchangeSleep       time.Duration   `mapstructure:"exchange_sleep"`
	ExchangeErrorCap    int             `mapstructure:"exchange_error_cap"`
}

// InitialInvestmentDecimal returns the investment cap as decimal.Decimal.
func (c *EngineConfig) InitialInvestmentDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.InitialInvestment)
}

// MinProfitDecimal returns the minimum profit fraction as decimal.Decimal.
func (c *EngineConfig) MinProfitDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MinProfit)
}

// SlippageDecimals returns the per-leg slippage fractions. A single value
// applies to all three legs.
func (c *EngineConfig) SlippageDecimals() [3]decimal.Decimal {
	var out [3]decimal.Decimal
	for i := range out {
		switch {
		case len(c.Slippage) == 0:
			out[i] = decimal.Zero
		case len(c.Slippage) == 1:
			out[i] = decimal.NewFromFloat(c.Slippage[0])
		default:
			out[i] = decimal.NewFromFloat(c.Slippage[i])
		}
	}
	return out
}

// AnchorAssetsUpper returns anchor assets normalized to upper case.
func (c *EngineConfig) AnchorAssetsUpper() []string {
	out := make([]string, 0, len(c.AnchorAssets))
	for _, a := range c.AnchorAssets {
		out = append(out, strings.ToUpper(strings.TrimSpace(a)))
	}
	return out
}

// StorageConfig holds ledger persistence settings.
type StorageConfig struct {
	SQLitePath string `mapstructure:"sqlite_path"` // empty disables the ledger
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	TraceProvider  string `mapstructure:"trace_provider"` // zipkin, otlp_grpc, otlp_http, console
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("ARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "ARB_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "ARB_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "ARB_LOG_LEVEL", "LOG_LEVEL")

	// Exchange
	v.BindEnv("exchange.name", "ARB_EXCHANGE", "EXCHANGE")
	v.BindEnv("exchange.api_key", "ARB_API_KEY", "BINANCE_API_KEY")
	v.BindEnv("exchange.api_secret", "ARB_API_SECRET", "BINANCE_API_SECRET")
	v.BindEnv("exchange.rest_url", "ARB_REST_URL", "BINANCE_REST_URL")
	v.BindEnv("exchange.websocket_url", "ARB_WS_URL", "BINANCE_WS_URL")

	// Engine
	v.BindEnv("engine.initial_investment", "ARB_INVESTMENT")
	v.BindEnv("engine.min_profit", "ARB_MIN_PROFIT")
	v.BindEnv("engine.dry_run", "ARB_DRY_RUN", "TEST_MODE")

	// Storage
	v.BindEnv("storage.sqlite_path", "ARB_SQLITE_PATH")

	// Telemetry
	v.BindEnv("telemetry.enabled", "ARB_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "ARB_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "ARB_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("telemetry.otlp_headers", "ARB_OTEL_HEADERS", "OTEL_EXPORTER_OTLP_HEADERS")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "triarb-bot")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Exchange defaults
	v.SetDefault("exchange.name", ExchangeBinance)
	v.SetDefault("exchange.rest_url", "https://api.binance.com")
	v.SetDefault("exchange.websocket_url", "wss://stream.binance.com:9443")
	v.SetDefault("exchange.recv_window", "5s")
	v.SetDefault("exchange.request_timeout", "10s")
	v.SetDefault("exchange.request_weight_per_minute", 1200)
	v.SetDefault("exchange.taker_fee", 0.001)
	v.SetDefault("exchange.maker_fee", 0.001)
	v.SetDefault("exchange.stream_depth", false)
	v.SetDefault("exchange.stale_timeout", "5s")
	v.SetDefault("exchange.depth_limit", 20)

	// Engine defaults
	v.SetDefault("engine.anchor_assets", []string{"USDT", "BUSD", "USD", "EUR"})
	v.SetDefault("engine.initial_investment", 100)
	v.SetDefault("engine.min_profit", 0.001)
	v.SetDefault("engine.slippage", []float64{0})
	v.SetDefault("engine.price_source", PriceSourceDepth)
	v.SetDefault("engine.poll_interval", "1s")
	v.SetDefault("engine.poll_attempts", 10)
	v.SetDefault("engine.unwind_policy", UnwindContinue)
	v.SetDefault("engine.scheduler_mode", SchedulerScore)
	v.SetDefault("engine.reward", 10)
	v.SetDefault("engine.penalty", 1)
	v.SetDefault("engine.score_floor_enabled", true)
	v.SetDefault("engine.score_floor", -100)
	v.SetDefault("engine.max_refinements", 8)
	v.SetDefault("engine.balance_refresh_every", 50)
	v.SetDefault("engine.dry_run", true)
	v.SetDefault("engine.network_sleeps", []string{"30m", "60m", "90m"})
	v.SetDefault("engine.exchange_sleep", "5m")
	v.SetDefault("engine.exchange_error_cap", 3)

	// Storage defaults
	v.SetDefault("storage.sqlite_path", "triarb.db")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "triarb-bot")
	v.SetDefault("telemetry.trace_provider", "zipkin")
	v.SetDefault("telemetry.prometheus_port", 9090)

	// Health defaults
	v.SetDefault("health.enabled", true)
	v.SetDefault("health.port", 8081)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Exchange.Name {
	case ExchangeBinance:
		if c.Exchange.RestURL == "" {
			return fmt.Errorf("exchange.rest_url is required")
		}
		if !c.Engine.DryRun && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
			return fmt.Errorf("exchange.api_key and exchange.api_secret are required for live trading")
		}
	case ExchangePaper:
	default:
		return fmt.Errorf("exchange.name must be %q or %q, got %q", ExchangeBinance, ExchangePaper, c.Exchange.Name)
	}

	if c.Exchange.TakerFee < 0 || c.Exchange.MakerFee < 0 {
		return fmt.Errorf("exchange fees cannot be negative")
	}
	if len(c.Engine.AnchorAssets) == 0 {
		return fmt.Errorf("engine.anchor_assets cannot be empty")
	}
	if c.Engine.InitialInvestment <= 0 {
		return fmt.Errorf("engine.initial_investment must be positive")
	}
	if c.Engine.MinProfit < 0 {
		return fmt.Errorf("engine.min_profit cannot be negative")
	}
	if n := len(c.Engine.Slippage); n != 0 && n != 1 && n != 3 {
		return fmt.Errorf("engine.slippage must have 1 or 3 values, got %d", n)
	}
	for _, s := range c.Engine.Slippage {
		if s < 0 || s >= 1 {
			return fmt.Errorf("engine.slippage values must be in [0, 1), got %v", s)
		}
	}
	if c.Engine.PriceSource != PriceSourceDepth && c.Engine.PriceSource != PriceSourceTicker {
		return fmt.Errorf("engine.price_source must be %q or %q", PriceSourceDepth, PriceSourceTicker)
	}
	if c.Engine.UnwindPolicy != UnwindContinue && c.Engine.UnwindPolicy != UnwindSell {
		return fmt.Errorf("engine.unwind_policy must be %q or %q", UnwindContinue, UnwindSell)
	}
	if c.Engine.SchedulerMode != SchedulerScore && c.Engine.SchedulerMode != SchedulerScanAll {
		return fmt.Errorf("engine.scheduler_mode must be %q or %q", SchedulerScore, SchedulerScanAll)
	}
	if c.Engine.PollAttempts < 1 {
		return fmt.Errorf("engine.poll_attempts must be at least 1")
	}
	if c.Engine.PollInterval <= 0 {
		return fmt.Errorf("engine.poll_interval must be positive")
	}
	if c.Engine.MaxRefinements < 1 {
		return fmt.Errorf("engine.max_refinements must be at least 1")
	}
	if len(c.Engine.NetworkSleeps) == 0 {
		return fmt.Errorf("engine.network_sleeps cannot be empty")
	}
	if c.Engine.ExchangeErrorCap < 1 {
		return fmt.Errorf("engine.exchange_error_cap must be at least 1")
	}
	return nil
}

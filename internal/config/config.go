// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Ethereum  EthereumConfig  `mapstructure:"ethereum"`
	Venues    VenuesConfig    `mapstructure:"venues"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// EthereumConfig holds Ethereum node configuration.
type EthereumConfig struct {
	HTTPURL        string        `mapstructure:"http_url"`
	WebSocketURL   string        `mapstructure:"websocket_url"`
	ChainID        uint64        `mapstructure:"chain_id"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// VenuesConfig holds per-venue liquidity source settings.
type VenuesConfig struct {
	UniV2   UniV2VenueConfig   `mapstructure:"univ2"`
	AggRest AggRestVenueConfig `mapstructure:"aggrest"`
	Stream  StreamVenueConfig  `mapstructure:"stream"`
}

// UniV2VenueConfig holds on-chain constant-product pool settings.
type UniV2VenueConfig struct {
	Enabled            bool     `mapstructure:"enabled"`
	Name               string   `mapstructure:"name"`
	PoolAddresses      []string `mapstructure:"pool_addresses"`
	FeeBps             int64    `mapstructure:"fee_bps"`
	RequestsPerMinute  int      `mapstructure:"requests_per_minute"`
}

// PoolAddressesHex returns the configured pool addresses as common.Address.
func (c *UniV2VenueConfig) PoolAddressesHex() []common.Address {
	out := make([]common.Address, len(c.PoolAddresses))
	for i, a := range c.PoolAddresses {
		out[i] = common.HexToAddress(a)
	}
	return out
}

// AggRestVenueConfig holds REST aggregator quote API settings.
type AggRestVenueConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Name              string        `mapstructure:"name"`
	BaseURL           string        `mapstructure:"base_url"`
	Pairs             []string      `mapstructure:"pairs"`
	FeeBps            int64         `mapstructure:"fee_bps"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

// StreamVenueConfig holds streaming pool-update settings.
type StreamVenueConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Name         string   `mapstructure:"name"`
	WebSocketURL string   `mapstructure:"websocket_url"`
	Pairs        []string `mapstructure:"pairs"`
	FeeBps       int64    `mapstructure:"fee_bps"`
}

// DiscoveryConfig holds cycle search and validation settings.
type DiscoveryConfig struct {
	BaseAsset        string        `mapstructure:"base_asset"`
	MaxHops          int           `mapstructure:"max_hops"`
	MaxCandidates    int           `mapstructure:"max_candidates"`
	StalenessBound   time.Duration `mapstructure:"staleness_bound"`
	TradeSizes       []float64     `mapstructure:"trade_sizes"`
	MinProfitAbs     float64       `mapstructure:"min_profit_abs"`
	MinProfitBps     float64       `mapstructure:"min_profit_bps"`
	SlippageCoeff    float64       `mapstructure:"slippage_coeff"`
	SlippageExponent int           `mapstructure:"slippage_exponent"`
}

// TradeSizesDecimal returns trade sizes as decimal.Decimal slice.
func (c *DiscoveryConfig) TradeSizesDecimal() []decimal.Decimal {
	result := make([]decimal.Decimal, len(c.TradeSizes))
	for i, s := range c.TradeSizes {
		result[i] = decimal.NewFromFloat(s)
	}
	return result
}

// MinProfitAbsDecimal returns the absolute profit floor as decimal.Decimal.
func (c *DiscoveryConfig) MinProfitAbsDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MinProfitAbs)
}

// MinProfitBpsDecimal returns the relative profit floor as decimal.Decimal.
func (c *DiscoveryConfig) MinProfitBpsDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MinProfitBps)
}

// SlippageCoeffDecimal returns the slippage coefficient as decimal.Decimal.
func (c *DiscoveryConfig) SlippageCoeffDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.SlippageCoeff)
}

// ExecutionConfig holds trade submission settings.
type ExecutionConfig struct {
	RelayURL        string        `mapstructure:"relay_url"`
	UseBundles      bool          `mapstructure:"use_bundles"`
	Workers         int           `mapstructure:"workers"`
	SubmitTimeout   time.Duration `mapstructure:"submit_timeout"`
	ConfirmTimeout  time.Duration `mapstructure:"confirm_timeout"`
	TipCoefficient  float64       `mapstructure:"tip_coefficient"`
	MinTip          float64       `mapstructure:"min_tip"`
	MaxTipFraction  float64       `mapstructure:"max_tip_fraction"`
	LedgerPath      string        `mapstructure:"ledger_path"`
	WalletAddress   string        `mapstructure:"wallet_address"`
	PrivateKey      string        `mapstructure:"private_key"`
	RouterAddress   string        `mapstructure:"router_address"`
	// TokenAddresses maps symbols to ERC20 contract addresses for balance
	// reads and calldata paths.
	TokenAddresses map[string]string `mapstructure:"token_addresses"`
	TUIMode        bool              `mapstructure:"-"` // Set at runtime, not from config file
}

// TokenAddressesHex returns the token map with parsed addresses.
func (c *ExecutionConfig) TokenAddressesHex() map[string]common.Address {
	out := make(map[string]common.Address, len(c.TokenAddresses))
	for sym, a := range c.TokenAddresses {
		out[sym] = common.HexToAddress(a)
	}
	return out
}

// RouterAddressHex returns the router address as common.Address.
func (c *ExecutionConfig) RouterAddressHex() common.Address {
	return common.HexToAddress(c.RouterAddress)
}

// WalletAddressHex returns the wallet address as common.Address.
func (c *ExecutionConfig) WalletAddressHex() common.Address {
	return common.HexToAddress(c.WalletAddress)
}

// TipCoefficientDecimal returns the tip coefficient as decimal.Decimal.
func (c *ExecutionConfig) TipCoefficientDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.TipCoefficient)
}

// MinTipDecimal returns the minimum tip as decimal.Decimal.
func (c *ExecutionConfig) MinTipDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MinTip)
}

// MaxTipFractionDecimal returns the tip cap fraction as decimal.Decimal.
func (c *ExecutionConfig) MaxTipFractionDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MaxTipFraction)
}

// RiskConfig holds risk governor settings.
type RiskConfig struct {
	MaxPositionSize   float64       `mapstructure:"max_position_size"`
	DailyLossLimit    float64       `mapstructure:"daily_loss_limit"`
	ConsecutiveLosses int           `mapstructure:"consecutive_losses"`
	Cooldown          time.Duration `mapstructure:"cooldown"`
}

// MaxPositionSizeDecimal returns the position cap as decimal.Decimal.
func (c *RiskConfig) MaxPositionSizeDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MaxPositionSize)
}

// DailyLossLimitDecimal returns the daily loss limit as decimal.Decimal.
func (c *RiskConfig) DailyLossLimitDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.DailyLossLimit)
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
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
	v.SetEnvPrefix("CYCLE")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use env vars
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
	v.BindEnv("app.name", "CYCLE_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "CYCLE_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "CYCLE_LOG_LEVEL", "LOG_LEVEL")

	// Ethereum
	v.BindEnv("ethereum.http_url", "CYCLE_ETH_HTTP_URL", "ETH_HTTP_URL")
	v.BindEnv("ethereum.websocket_url", "CYCLE_ETH_WS_URL", "ETH_WS_URL")
	v.BindEnv("ethereum.chain_id", "CYCLE_ETH_CHAIN_ID", "ETH_CHAIN_ID")

	// Venues
	v.BindEnv("venues.aggrest.base_url", "CYCLE_AGGREST_URL")
	v.BindEnv("venues.stream.websocket_url", "CYCLE_STREAM_WS_URL")

	// Discovery
	v.BindEnv("discovery.base_asset", "CYCLE_BASE_ASSET")
	v.BindEnv("discovery.max_hops", "CYCLE_MAX_HOPS")
	v.BindEnv("discovery.min_profit_abs", "CYCLE_MIN_PROFIT_ABS")
	v.BindEnv("discovery.min_profit_bps", "CYCLE_MIN_PROFIT_BPS")

	// Execution
	v.BindEnv("execution.relay_url", "CYCLE_RELAY_URL")
	v.BindEnv("execution.wallet_address", "CYCLE_WALLET_ADDRESS")
	v.BindEnv("execution.private_key", "CYCLE_PRIVATE_KEY", "PRIVATE_KEY")
	v.BindEnv("execution.router_address", "CYCLE_ROUTER_ADDRESS")
	v.BindEnv("execution.ledger_path", "CYCLE_LEDGER_PATH")

	// Risk
	v.BindEnv("risk.daily_loss_limit", "CYCLE_DAILY_LOSS_LIMIT")
	v.BindEnv("risk.consecutive_losses", "CYCLE_CONSECUTIVE_LOSSES")

	// Telemetry
	v.BindEnv("telemetry.enabled", "CYCLE_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "CYCLE_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "CYCLE_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "cycle-bot")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Ethereum defaults
	v.SetDefault("ethereum.chain_id", 1)
	v.SetDefault("ethereum.max_reconnects", 0) // infinite
	v.SetDefault("ethereum.initial_backoff", "1s")
	v.SetDefault("ethereum.max_backoff", "30s")

	// Venue defaults
	v.SetDefault("venues.univ2.enabled", true)
	v.SetDefault("venues.univ2.name", "univ2")
	v.SetDefault("venues.univ2.fee_bps", 30)
	v.SetDefault("venues.univ2.requests_per_minute", 120)
	v.SetDefault("venues.aggrest.enabled", false)
	v.SetDefault("venues.aggrest.name", "aggrest")
	v.SetDefault("venues.aggrest.fee_bps", 25)
	v.SetDefault("venues.aggrest.requests_per_minute", 60)
	v.SetDefault("venues.aggrest.request_timeout", "5s")
	v.SetDefault("venues.stream.enabled", false)
	v.SetDefault("venues.stream.name", "stream")
	v.SetDefault("venues.stream.fee_bps", 30)

	// Discovery defaults
	v.SetDefault("discovery.base_asset", "WETH")
	v.SetDefault("discovery.max_hops", 3)
	v.SetDefault("discovery.max_candidates", 16)
	v.SetDefault("discovery.staleness_bound", "2s")
	v.SetDefault("discovery.trade_sizes", []float64{0.1, 0.5, 1.0})
	v.SetDefault("discovery.min_profit_abs", 0.002)
	v.SetDefault("discovery.min_profit_bps", 10)
	v.SetDefault("discovery.slippage_coeff", 0.001)
	v.SetDefault("discovery.slippage_exponent", 2)

	// Execution defaults
	v.SetDefault("execution.use_bundles", true)
	v.SetDefault("execution.workers", 4)
	v.SetDefault("execution.submit_timeout", "10s")
	v.SetDefault("execution.confirm_timeout", "30s")
	v.SetDefault("execution.tip_coefficient", 0.5)
	v.SetDefault("execution.min_tip", 0.0001)
	v.SetDefault("execution.max_tip_fraction", 0.9)
	v.SetDefault("execution.ledger_path", "cyclebot.db")

	// Risk defaults
	v.SetDefault("risk.max_position_size", 5.0)
	v.SetDefault("risk.daily_loss_limit", 0.5)
	v.SetDefault("risk.consecutive_losses", 3)
	v.SetDefault("risk.cooldown", "5m")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "cycle-bot")
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Ethereum.HTTPURL == "" {
		return fmt.Errorf("ethereum.http_url is required")
	}
	if c.Discovery.MaxHops < 2 || c.Discovery.MaxHops > 4 {
		return fmt.Errorf("discovery.max_hops must be between 2 and 4, got %d", c.Discovery.MaxHops)
	}
	if c.Discovery.SlippageExponent != 1 && c.Discovery.SlippageExponent != 2 {
		return fmt.Errorf("discovery.slippage_exponent must be 1 or 2, got %d", c.Discovery.SlippageExponent)
	}
	if len(c.Discovery.TradeSizes) == 0 {
		return fmt.Errorf("discovery.trade_sizes cannot be empty")
	}
	if c.Execution.MaxTipFraction <= 0 || c.Execution.MaxTipFraction >= 1 {
		return fmt.Errorf("execution.max_tip_fraction must be in (0, 1), got %v", c.Execution.MaxTipFraction)
	}
	if c.Venues.UniV2.Enabled {
		for _, a := range c.Venues.UniV2.PoolAddresses {
			if !common.IsHexAddress(a) {
				return fmt.Errorf("invalid venues.univ2 pool address: %s", a)
			}
		}
	}
	if c.Venues.AggRest.Enabled && c.Venues.AggRest.BaseURL == "" {
		return fmt.Errorf("venues.aggrest.base_url is required when aggrest is enabled")
	}
	if c.Venues.Stream.Enabled && c.Venues.Stream.WebSocketURL == "" {
		return fmt.Errorf("venues.stream.websocket_url is required when stream is enabled")
	}
	if c.Execution.UseBundles && c.Execution.RelayURL == "" {
		return fmt.Errorf("execution.relay_url is required when use_bundles is enabled")
	}
	if c.Execution.RouterAddress != "" && !common.IsHexAddress(c.Execution.RouterAddress) {
		return fmt.Errorf("invalid execution.router_address: %s", c.Execution.RouterAddress)
	}
	if c.Risk.ConsecutiveLosses < 1 {
		return fmt.Errorf("risk.consecutive_losses must be at least 1")
	}
	return nil
}

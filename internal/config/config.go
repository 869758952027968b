// Package config loads service configuration from YAML files and
// environment variables and wires structured logging.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig                 `mapstructure:"app"`
	Database   DatabaseConfig            `mapstructure:"database"`
	Redis      RedisConfig               `mapstructure:"redis"`
	NATS       NATSConfig                `mapstructure:"nats"`
	Market     MarketConfig              `mapstructure:"market"`
	Trading    TradingConfig             `mapstructure:"trading"`
	Risk       RiskConfig                `mapstructure:"risk"`
	Training   TrainingConfig            `mapstructure:"training"`
	Exchanges  map[string]ExchangeConfig `mapstructure:"exchanges"`
	Providers  ProvidersConfig           `mapstructure:"providers"`
	API        APIConfig                 `mapstructure:"api"`
	Telegram   TelegramConfig            `mapstructure:"telegram"`
	Monitoring MonitoringConfig          `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
}

// DatabaseConfig contains PostgreSQL settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains Redis settings
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig contains NATS messaging settings
type NATSConfig struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

// MarketConfig contains market data client settings
type MarketConfig struct {
	IntradayMaxAgeMinutes  int `mapstructure:"intraday_max_age_minutes"`
	SwingMaxAgeDays        int `mapstructure:"swing_max_age_days"`
	MaxProviderFailures    int `mapstructure:"max_provider_failures"`
	CircuitCooldownSeconds int `mapstructure:"circuit_cooldown_seconds"`
	ProviderTimeoutSeconds int `mapstructure:"provider_timeout_seconds"`
	MinSources             int `mapstructure:"min_sources"`
}

// TradingConfig contains trading loop settings
type TradingConfig struct {
	Mode                     string   `mapstructure:"mode"` // "paper" or "live"
	Assets                   []string `mapstructure:"assets"`
	Exchange                 string   `mapstructure:"exchange"`
	MaxRetries               int      `mapstructure:"max_retries"`
	InitialRetryDelaySeconds float64  `mapstructure:"initial_retry_delay_seconds"`
	DefaultPositionSize      float64  `mapstructure:"default_position_size"`
	MinConfidence            float64  `mapstructure:"min_confidence"`
	SignalTimeoutSeconds     int      `mapstructure:"signal_timeout_seconds"`
}

// LiveTrading reports whether orders are routed to a real exchange
func (c TradingConfig) LiveTrading() bool {
	return c.Mode == "live"
}

// RiskConfig contains hard risk limits
type RiskConfig struct {
	MaxDailyDrawdownPct       float64 `mapstructure:"max_daily_drawdown_pct"`
	NoTradeEventWindowMinutes int     `mapstructure:"no_trade_event_window_minutes"`
	MinHistoryDays            int     `mapstructure:"min_history_days"`
	MaxCorrelatedExposurePct  float64 `mapstructure:"max_correlated_exposure_pct"`
	MaxPositionPct            float64 `mapstructure:"max_position_pct"`
}

// TrainingConfig contains retraining loop settings
type TrainingConfig struct {
	MinOutcomeRecords  int     `mapstructure:"min_outcome_records"`
	FailureStreakPause int     `mapstructure:"failure_streak_pause"`
	DatasetOutputDir   string  `mapstructure:"dataset_output_dir"`
	RegistryPath       string  `mapstructure:"registry_path"`
	BaseModel          string  `mapstructure:"base_model"`
	ReplayRatio        float64 `mapstructure:"replay_ratio"`
	MinRegimeRatio     float64 `mapstructure:"min_regime_ratio"`
	Seed               int64   `mapstructure:"seed"`
}

// ExchangeConfig contains exchange credentials and rate limits
type ExchangeConfig struct {
	APIKey      string `mapstructure:"api_key"`
	SecretKey   string `mapstructure:"secret_key"`
	RateLimitMS int    `mapstructure:"rate_limit_ms"`
}

// ProvidersConfig contains market data provider credentials
type ProvidersConfig struct {
	Alpaca AlpacaConfig `mapstructure:"alpaca"`
}

// AlpacaConfig contains Alpaca data API credentials
type AlpacaConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
}

// APIConfig contains REST/websocket API settings
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// TelegramConfig contains notifier settings
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("TRADECREW")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "tradecrew")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "tradecrew")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.prefix", "tradecrew.")

	// Market data defaults
	v.SetDefault("market.intraday_max_age_minutes", 15)
	v.SetDefault("market.swing_max_age_days", 1)
	v.SetDefault("market.max_provider_failures", 3)
	v.SetDefault("market.circuit_cooldown_seconds", 120)
	v.SetDefault("market.provider_timeout_seconds", 20)
	v.SetDefault("market.min_sources", 1)

	// Trading defaults
	v.SetDefault("trading.mode", "paper")
	v.SetDefault("trading.assets", []string{"BTC/USD", "SPY"})
	v.SetDefault("trading.exchange", "kraken")
	v.SetDefault("trading.max_retries", 3)
	v.SetDefault("trading.initial_retry_delay_seconds", 1.0)
	v.SetDefault("trading.default_position_size", 0.01)
	v.SetDefault("trading.min_confidence", 0.60)
	v.SetDefault("trading.signal_timeout_seconds", 30)

	// Risk defaults
	v.SetDefault("risk.max_daily_drawdown_pct", 0.05)
	v.SetDefault("risk.no_trade_event_window_minutes", 5)
	v.SetDefault("risk.min_history_days", 30)
	v.SetDefault("risk.max_correlated_exposure_pct", 0.10)
	v.SetDefault("risk.max_position_pct", 0.02)

	// Training defaults
	v.SetDefault("training.min_outcome_records", 500)
	v.SetDefault("training.failure_streak_pause", 3)
	v.SetDefault("training.dataset_output_dir", "./data/datasets")
	v.SetDefault("training.registry_path", "./data/adapter_registry.json")
	v.SetDefault("training.base_model", "llama-3.1-8b")
	v.SetDefault("training.replay_ratio", 0.30)
	v.SetDefault("training.min_regime_ratio", 0.20)
	v.SetDefault("training.seed", 7)

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8081)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}

// Validate checks configuration consistency before services start
func (c *Config) Validate() error {
	if c.Trading.Mode != "paper" && c.Trading.Mode != "live" {
		return fmt.Errorf("trading.mode must be \"paper\" or \"live\", got %q", c.Trading.Mode)
	}
	if c.Trading.MaxRetries < 1 {
		return fmt.Errorf("trading.max_retries must be at least 1")
	}
	if c.Trading.MinConfidence < 0 || c.Trading.MinConfidence > 1 {
		return fmt.Errorf("trading.min_confidence must be within [0, 1]")
	}
	if c.Market.MinSources < 1 {
		return fmt.Errorf("market.min_sources must be at least 1")
	}
	if c.Risk.MaxDailyDrawdownPct <= 0 || c.Risk.MaxDailyDrawdownPct > 1 {
		return fmt.Errorf("risk.max_daily_drawdown_pct must be within (0, 1]")
	}
	if c.Training.ReplayRatio <= 0 || c.Training.ReplayRatio >= 1 {
		return fmt.Errorf("training.replay_ratio must be within (0, 1)")
	}
	if c.Training.MinRegimeRatio <= 0 || c.Training.MinRegimeRatio > 0.25 {
		return fmt.Errorf("training.min_regime_ratio must be within (0, 0.25]")
	}
	if c.Trading.LiveTrading() {
		exchange, ok := c.Exchanges[c.Trading.Exchange]
		if !ok || exchange.APIKey == "" || exchange.SecretKey == "" {
			return fmt.Errorf("live trading requires credentials for exchange %q", c.Trading.Exchange)
		}
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAPIAddr returns the API server address
func (c *APIConfig) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ProviderTimeout returns the per-provider fetch timeout
func (c MarketConfig) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSeconds) * time.Second
}

// CircuitCooldown returns the provider circuit breaker cooldown
func (c MarketConfig) CircuitCooldown() time.Duration {
	return time.Duration(c.CircuitCooldownSeconds) * time.Second
}

// IntradayMaxAge returns the intraday snapshot freshness bound
func (c MarketConfig) IntradayMaxAge() time.Duration {
	return time.Duration(c.IntradayMaxAgeMinutes) * time.Minute
}

// SwingMaxAge returns the daily snapshot freshness bound
func (c MarketConfig) SwingMaxAge() time.Duration {
	return time.Duration(c.SwingMaxAgeDays) * 24 * time.Hour
}

// InitialRetryDelay returns the execution retry base delay
func (c TradingConfig) InitialRetryDelay() time.Duration {
	return time.Duration(c.InitialRetryDelaySeconds * float64(time.Second))
}

// SignalTimeout returns the per-agent signal collection timeout
func (c TradingConfig) SignalTimeout() time.Duration {
	return time.Duration(c.SignalTimeoutSeconds) * time.Second
}

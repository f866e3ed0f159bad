package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Binance  Binance  `mapstructure:"binance"`
	LLM      LLM      `mapstructure:"llm"`
	Engine   Engine   `mapstructure:"engine"`
	Logger   Logger   `mapstructure:"logger"`
	Database Database `mapstructure:"database"`
}

// Binance holds the configuration for the Binance API endpoints.
// Per-account API keys are resolved through the credential store, not here.
type Binance struct {
	Testnet        bool    `mapstructure:"testnet"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// LLM holds the configuration for the language model provider.
type LLM struct {
	BaseURL        string `mapstructure:"base_url"`
	ApiKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Engine holds the configuration for the decision/execution pipeline.
type Engine struct {
	SpotConfidenceFloor    float64 `mapstructure:"spot_confidence_floor"`
	FuturesConfidenceFloor float64 `mapstructure:"futures_confidence_floor"`
	SpotMinNotional        float64 `mapstructure:"spot_min_notional"`
	DustThreshold          float64 `mapstructure:"dust_threshold"`
	KlineInterval          string  `mapstructure:"kline_interval"`
	KlineLimit             int     `mapstructure:"kline_limit"`
	SnapshotIntervalMin    int     `mapstructure:"snapshot_interval_minutes"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("binance.rate_limit", 20) // requests per second
	viper.SetDefault("binance.rate_limit_burst", 5)
	viper.SetDefault("binance.timeout_seconds", 15)
	viper.SetDefault("llm.timeout_seconds", 120)
	viper.SetDefault("engine.spot_confidence_floor", 0.70)
	viper.SetDefault("engine.futures_confidence_floor", 0.65)
	viper.SetDefault("engine.spot_min_notional", 5.0)
	viper.SetDefault("engine.dust_threshold", 1.0)
	viper.SetDefault("engine.kline_interval", "1h")
	viper.SetDefault("engine.kline_limit", 100)
	viper.SetDefault("engine.snapshot_interval_minutes", 60)

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}

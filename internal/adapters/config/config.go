package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config represents application configuration
type Config struct {
	Database DatabaseConfig `envconfig:"DATABASE"`
	Redis    RedisConfig    `envconfig:"REDIS"`
	Server   ServerConfig   `envconfig:"SERVER"`
	Market   MarketConfig   `envconfig:"MARKET"`
	Forecast ForecastConfig `envconfig:"FORECAST"`
	Refresh  RefreshConfig  `envconfig:"REFRESH"`
	Logging  LoggingConfig  `envconfig:"LOGGING"`
}

// DatabaseConfig represents database connection parameters
type DatabaseConfig struct {
	Host           string `envconfig:"DB_HOST" default:"localhost"`
	Port           int    `envconfig:"DB_PORT" default:"5432"`
	Name           string `envconfig:"DB_NAME" default:"fintel"`
	User           string `envconfig:"DB_USER" required:"true"`
	Password       string `envconfig:"DB_PASSWORD" required:"true"`
	SSLMode        string `envconfig:"DB_SSLMODE" default:"disable"`
	MigrationsPath string `envconfig:"DB_MIGRATIONS_PATH" default:"./migrations"`
	MaxOpenConns   int    `envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
}

// RedisConfig represents the optional description cache
type RedisConfig struct {
	Enabled        bool          `envconfig:"REDIS_ENABLED" default:"false"`
	Host           string        `envconfig:"REDIS_HOST" default:"localhost"`
	Port           int           `envconfig:"REDIS_PORT" default:"6379"`
	Password       string        `envconfig:"REDIS_PASSWORD"`
	DB             int           `envconfig:"REDIS_DB" default:"0"`
	DescriptionTTL time.Duration `envconfig:"REDIS_DESCRIPTION_TTL" default:"24h"`
}

// ServerConfig represents REST server parameters
type ServerConfig struct {
	Port            string        `envconfig:"SERVER_PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"25s"`
}

// MarketConfig selects and tunes the market data provider
type MarketConfig struct {
	Provider           string        `envconfig:"MARKET_PROVIDER" default:"yahoo_finance"`
	AlphaVantageAPIKey string        `envconfig:"MARKET_ALPHA_VANTAGE_API_KEY"`
	HTTPTimeout        time.Duration `envconfig:"MARKET_HTTP_TIMEOUT" default:"0s"` // zero keeps the client default (no deadline)
	RateLimit          float64       `envconfig:"MARKET_RATE_LIMIT" default:"2"`    // requests per second
}

// ForecastConfig holds training hyperparameters
type ForecastConfig struct {
	Window       int     `envconfig:"FORECAST_WINDOW" default:"10"`
	HiddenUnits  int     `envconfig:"FORECAST_HIDDEN_UNITS" default:"16"`
	Epochs       int     `envconfig:"FORECAST_EPOCHS" default:"20"`
	LearningRate float64 `envconfig:"FORECAST_LEARNING_RATE" default:"0.01"`
	BatchSize    int     `envconfig:"FORECAST_BATCH_SIZE" default:"32"`
}

// RefreshConfig controls the background refresh loop
type RefreshConfig struct {
	Interval   time.Duration `envconfig:"REFRESH_INTERVAL" default:"8h"`
	Iterations int           `envconfig:"REFRESH_ITERATIONS" default:"0"` // 0 = run forever
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	File  string `envconfig:"LOG_FILE" default:""`
}

// Load reads configuration from .env (if present) and environment variables
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}

	switch c.Market.Provider {
	case "yahoo_finance":
	case "alpha_vantage":
		if c.Market.AlphaVantageAPIKey == "" {
			return fmt.Errorf("alpha_vantage provider requires MARKET_ALPHA_VANTAGE_API_KEY")
		}
	default:
		return fmt.Errorf("unknown market provider %q", c.Market.Provider)
	}

	if c.Market.RateLimit <= 0 {
		return fmt.Errorf("market rate limit must be positive")
	}

	if c.Forecast.Window < 1 {
		return fmt.Errorf("forecast window must be at least 1")
	}
	if c.Forecast.HiddenUnits < 1 {
		return fmt.Errorf("forecast hidden units must be at least 1")
	}
	if c.Forecast.Epochs < 1 {
		return fmt.Errorf("forecast epochs must be at least 1")
	}
	if c.Forecast.LearningRate <= 0 {
		return fmt.Errorf("forecast learning rate must be positive")
	}
	if c.Forecast.BatchSize < 1 {
		return fmt.Errorf("forecast batch size must be at least 1")
	}

	if c.Refresh.Interval <= 0 {
		return fmt.Errorf("refresh interval must be positive")
	}
	if c.Refresh.Iterations < 0 {
		return fmt.Errorf("refresh iterations cannot be negative")
	}

	return nil
}

// GetDSN returns PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Addr returns host:port for the redis client
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

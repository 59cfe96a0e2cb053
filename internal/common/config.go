package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the dip ledger binaries
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	PriceFeed PriceFeedConfig `toml:"price_feed"`
	Cache     CacheConfig     `toml:"cache"`
	Market    MarketConfig    `toml:"market"`
	Logging   LoggingConfig   `toml:"logging"`
}

// ServerConfig holds gRPC server configuration
type ServerConfig struct {
	Address  string `toml:"address"`
	APIToken string `toml:"api_token"`
}

// DatabaseConfig holds PostgreSQL configuration.
// ConnStr wins over the individual fields when set.
type DatabaseConfig struct {
	ConnStr  string `toml:"conn_str"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Name     string `toml:"name"`

	MaxOpenConns int `toml:"max_open_conns"`
	MaxIdleConns int `toml:"max_idle_conns"`
}

// ConnectionString returns the lib/pq connection string
func (c *DatabaseConfig) ConnectionString() string {
	if c.ConnStr != "" {
		return c.ConnStr
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Name)
}

// PriceFeedConfig holds the price-feed client configuration.
// Source is "http" for the quote API or "postgres" for stored daily closes.
type PriceFeedConfig struct {
	Source    string  `toml:"source"`
	BaseURL   string  `toml:"base_url"`
	APIKey    string  `toml:"api_key"`
	RateLimit float64 `toml:"rate_limit"` // requests per second
	Timeout   string  `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *PriceFeedConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// CacheConfig holds the local snapshot cache configuration
type CacheConfig struct {
	Path string `toml:"path"`
}

// MarketConfig holds the business calendar configuration
type MarketConfig struct {
	CloseCutoff string `toml:"close_cutoff"` // HH:MM in the business timezone
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `toml:"level"`
}

// DefaultConfig returns the configuration used when nothing else is provided
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:  ":8080",
			APIToken: "dev-token",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			Name:     "dipledger",

			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		PriceFeed: PriceFeedConfig{
			Source:    "http",
			BaseURL:   "http://localhost:8090",
			RateLimit: 2,
			Timeout:   "10s",
		},
		Cache: CacheConfig{
			Path: "dipledger-cache.db",
		},
		Market: MarketConfig{
			CloseCutoff: "07:20",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig builds the configuration from defaults, an optional TOML file,
// an optional .env file and finally environment variables.
// A missing file at path is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	// .env is optional; real environment variables take precedence over it
	_ = godotenv.Load()

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("DB_CONN_STR", &cfg.Database.ConnStr)
	setString("DB_HOST", &cfg.Database.Host)
	setString("DB_USER", &cfg.Database.User)
	setString("DB_PASSWORD", &cfg.Database.Password)
	setString("DB_NAME", &cfg.Database.Name)
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}

	setString("GRPC_ADDRESS", &cfg.Server.Address)
	setString("API_TOKEN", &cfg.Server.APIToken)
	setString("PRICE_FEED_SOURCE", &cfg.PriceFeed.Source)
	setString("PRICE_FEED_URL", &cfg.PriceFeed.BaseURL)
	setString("PRICE_FEED_API_KEY", &cfg.PriceFeed.APIKey)
	setString("CACHE_PATH", &cfg.Cache.Path)
	setString("MARKET_CLOSE_CUTOFF", &cfg.Market.CloseCutoff)
	setString("LOG_LEVEL", &cfg.Logging.Level)
}

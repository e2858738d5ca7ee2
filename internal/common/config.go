// Package common provides shared utilities for Cartera
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for Cartera
type Config struct {
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Clients     ClientsConfig `toml:"clients"`
	Logging     LoggingConfig `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds datastore configuration.
// Driver selects the backend: "surrealdb" (default) or "memory" (dev/tests).
type StorageConfig struct {
	Driver    string `toml:"driver"`
	Address   string `toml:"address"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	IOL       IOLConfig       `toml:"iol"`
	Binance   BinanceConfig   `toml:"binance"`
	CoinGecko CoinGeckoConfig `toml:"coingecko"`
	DolarAPI  DolarAPIConfig  `toml:"dolarapi"`
}

// IOLConfig holds InvertirOnline brokerage API configuration
type IOLConfig struct {
	BaseURL     string `toml:"base_url"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	RateLimit   int    `toml:"rate_limit"`
	Timeout     string `toml:"timeout"`
	ColdTimeout string `toml:"cold_timeout"` // first request after process start
}

// GetTimeout parses and returns the timeout duration
func (c *IOLConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetColdTimeout parses and returns the cold-start timeout duration
func (c *IOLConfig) GetColdTimeout() time.Duration {
	d, err := time.ParseDuration(c.ColdTimeout)
	if err != nil {
		return 45 * time.Second
	}
	return d
}

// BinanceConfig holds Binance API configuration
type BinanceConfig struct {
	BaseURL    string `toml:"base_url"`
	StreamURL  string `toml:"stream_url"`
	APIKey     string `toml:"api_key"`
	APISecret  string `toml:"api_secret"`
	RecvWindow int64  `toml:"recv_window"` // milliseconds
	RateLimit  int    `toml:"rate_limit"`
	Timeout    string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *BinanceConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// CoinGeckoConfig holds CoinGecko API configuration
type CoinGeckoConfig struct {
	BaseURL   string `toml:"base_url"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
	CacheTTL  string `toml:"cache_ttl"`
}

// GetTimeout parses and returns the timeout duration
func (c *CoinGeckoConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetCacheTTL parses and returns the price cache TTL
func (c *CoinGeckoConfig) GetCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.CacheTTL)
	if err != nil {
		return time.Minute
	}
	return d
}

// DolarAPIConfig holds dolarapi.com configuration
type DolarAPIConfig struct {
	BaseURL   string `toml:"base_url"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *DolarAPIConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Driver:    "surrealdb",
			Address:   "ws://localhost:8000/rpc",
			Username:  "root",
			Password:  "root",
			Namespace: "cartera",
			Database:  "cartera",
		},
		Clients: ClientsConfig{
			IOL: IOLConfig{
				BaseURL:     "https://api.invertironline.com",
				RateLimit:   5,
				Timeout:     "30s",
				ColdTimeout: "45s",
			},
			Binance: BinanceConfig{
				BaseURL:    "https://api.binance.com",
				StreamURL:  "wss://stream.binance.com:9443",
				RecvWindow: 60000,
				RateLimit:  10,
				Timeout:    "10s",
			},
			CoinGecko: CoinGeckoConfig{
				BaseURL:   "https://api.coingecko.com/api/v3",
				RateLimit: 2,
				Timeout:   "10s",
				CacheTTL:  "60s",
			},
			DolarAPI: DolarAPIConfig{
				BaseURL:   "https://dolarapi.com",
				RateLimit: 5,
				Timeout:   "10s",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// Apply environment overrides
	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("CARTERA_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("CARTERA_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("CARTERA_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("CARTERA_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if v := os.Getenv("CARTERA_STORAGE_DRIVER"); v != "" {
		config.Storage.Driver = v
	}
	if v := os.Getenv("CARTERA_SURREALDB_ADDRESS"); v != "" {
		config.Storage.Address = v
	}
	if v := os.Getenv("CARTERA_SURREALDB_USERNAME"); v != "" {
		config.Storage.Username = v
	}
	if v := os.Getenv("CARTERA_SURREALDB_PASSWORD"); v != "" {
		config.Storage.Password = v
	}

	if v := os.Getenv("CARTERA_IOL_USERNAME"); v != "" {
		config.Clients.IOL.Username = v
	}
	if v := os.Getenv("CARTERA_IOL_PASSWORD"); v != "" {
		config.Clients.IOL.Password = v
	}
	if v := os.Getenv("CARTERA_BINANCE_API_KEY"); v != "" {
		config.Clients.Binance.APIKey = v
	}
	if v := os.Getenv("CARTERA_BINANCE_API_SECRET"); v != "" {
		config.Clients.Binance.APISecret = v
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// Package config loads portfolio engine configuration from TOML files,
// an optional .env file and PORTFOLIO_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/atmx/portfolio-engine/internal/model"
)

// Config holds all configuration for the engine.
type Config struct {
	BaseCurrency string        `toml:"base_currency"`
	Server       ServerConfig  `toml:"server"`
	Storage      StorageConfig `toml:"storage"`
	Refresh      RefreshConfig `toml:"refresh"`
	Logging      LoggingConfig `toml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig selects the persistence backend. An empty DatabaseURL
// means the in-memory store.
type StorageConfig struct {
	DatabaseURL string `toml:"database_url"`
	RedisURL    string `toml:"redis_url"`
	CacheTTL    string `toml:"cache_ttl"`
}

// GetCacheTTL parses and returns the redis cache TTL.
func (c *StorageConfig) GetCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.CacheTTL)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// RefreshConfig controls the scheduled exchange-rate refresh.
type RefreshConfig struct {
	Enabled           bool    `toml:"enabled"`
	Schedule          string  `toml:"schedule"`          // cron with seconds field
	SnapshotSchedule  string  `toml:"snapshot_schedule"` // daily stats snapshot; empty disables
	RatesURL          string  `toml:"rates_url"`
	Timeout           string  `toml:"timeout"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// GetTimeout parses and returns the fetch timeout.
func (c *RefreshConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

// NewDefaultConfig returns a Config with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		BaseCurrency: "TWD",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			CacheTTL: "30s",
		},
		Refresh: RefreshConfig{
			Enabled:           true,
			Schedule:          "0 */5 * * * *",
			SnapshotSchedule:  "0 55 23 * * *",
			RatesURL:          "https://open.er-api.com/v6/latest",
			Timeout:           "10s",
			RequestsPerSecond: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from files (later files override earlier,
// missing files are skipped), then a .env file in the working directory,
// then environment overrides.
func Load(paths ...string) (*Config, error) {
	cfg := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// Load .env file if it exists. Variables already set win.
	_ = godotenv.Load()

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate normalises and checks the configuration.
func (c *Config) Validate() error {
	base, err := model.NormalizeCurrency(c.BaseCurrency)
	if err != nil {
		return fmt.Errorf("base_currency %q: %w", c.BaseCurrency, err)
	}
	c.BaseCurrency = base

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Refresh.Enabled && c.Refresh.RatesURL == "" {
		return errors.New("refresh.rates_url is required when refresh is enabled")
	}
	if c.Refresh.RequestsPerSecond <= 0 {
		c.Refresh.RequestsPerSecond = 1
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORTFOLIO_BASE_CURRENCY"); v != "" {
		cfg.BaseCurrency = strings.ToUpper(v)
	}

	if v := os.Getenv("PORTFOLIO_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("PORTFOLIO_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}

	if v := os.Getenv("PORTFOLIO_DATABASE_URL"); v != "" {
		cfg.Storage.DatabaseURL = v
	}
	if v := os.Getenv("PORTFOLIO_REDIS_URL"); v != "" {
		cfg.Storage.RedisURL = v
	}
	if v := os.Getenv("PORTFOLIO_CACHE_TTL"); v != "" {
		cfg.Storage.CacheTTL = v
	}

	if v := os.Getenv("PORTFOLIO_REFRESH_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Refresh.Enabled = b
		}
	}
	if v := os.Getenv("PORTFOLIO_REFRESH_SCHEDULE"); v != "" {
		cfg.Refresh.Schedule = v
	}
	if v, ok := os.LookupEnv("PORTFOLIO_SNAPSHOT_SCHEDULE"); ok {
		cfg.Refresh.SnapshotSchedule = v
	}
	if v := os.Getenv("PORTFOLIO_RATES_URL"); v != "" {
		cfg.Refresh.RatesURL = v
	}

	if v := os.Getenv("PORTFOLIO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PORTFOLIO_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

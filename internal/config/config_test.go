package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/portfolio-engine/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "TWD", cfg.BaseCurrency)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "0 */5 * * * *", cfg.Refresh.Schedule)
	assert.Equal(t, 30*time.Second, cfg.Storage.GetCacheTTL())
	assert.Equal(t, 10*time.Second, cfg.Refresh.GetTimeout())
	assert.Empty(t, cfg.Storage.DatabaseURL)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeFile(t, "portfolio.toml", `
base_currency = "usd"

[server]
port = 9090

[storage]
database_url = "postgres://localhost/portfolio"
cache_ttl = "1m"

[refresh]
enabled = false
timeout = "3s"

[logging]
level = "debug"
format = "console"
`)

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, "USD", cfg.BaseCurrency)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "unset keys keep defaults")
	assert.Equal(t, "postgres://localhost/portfolio", cfg.Storage.DatabaseURL)
	assert.Equal(t, time.Minute, cfg.Storage.GetCacheTTL())
	assert.False(t, cfg.Refresh.Enabled)
	assert.Equal(t, 3*time.Second, cfg.Refresh.GetTimeout())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoad_LaterFileWins(t *testing.T) {
	first := writeFile(t, "a.toml", "base_currency = \"EUR\"\n")
	second := writeFile(t, "b.toml", "base_currency = \"JPY\"\n")

	cfg, err := Load(first, second)
	require.NoError(t, err)
	assert.Equal(t, "JPY", cfg.BaseCurrency)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "portfolio.toml", "base_currency = \"EUR\"\n[server]\nport = 9090\n")
	t.Setenv("PORTFOLIO_BASE_CURRENCY", "usd")
	t.Setenv("PORTFOLIO_PORT", "7070")
	t.Setenv("PORTFOLIO_REFRESH_ENABLED", "false")
	t.Setenv("PORTFOLIO_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "USD", cfg.BaseCurrency)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.False(t, cfg.Refresh.Enabled)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_InvalidBaseCurrency(t *testing.T) {
	path := writeFile(t, "portfolio.toml", "base_currency = \"DOLLARS\"\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidCurrency)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeFile(t, "portfolio.toml", "base_currency = \n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_RefreshNeedsURL(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Refresh.RatesURL = ""
	assert.Error(t, cfg.Validate())

	cfg.Refresh.Enabled = false
	assert.NoError(t, cfg.Validate())
}

func TestGetTimeout_FallsBackOnGarbage(t *testing.T) {
	r := RefreshConfig{Timeout: "soon"}
	assert.Equal(t, 10*time.Second, r.GetTimeout())

	s := StorageConfig{CacheTTL: "-5s"}
	assert.Equal(t, 30*time.Second, s.GetCacheTTL())
}

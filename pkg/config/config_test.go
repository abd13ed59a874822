package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sneaker-hunter/pkg/registry"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 60*time.Second, cfg.Cache.TTL.Duration)
	assert.False(t, cfg.UsesRedis())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 8088

[cache]
backend = "redis"
ttl = "2m"

[redis]
addr = "redis:6379"

[browser]
unblocker_mode = "auto"
unblocker_endpoint = "ws://unblocker:9222"
ceiling = "20s"

[currency]
display = "EUR"
rates = { GBP = 1.3 }

[sources.goat]
enabled = false
requests = 5
window = "30s"

[sources.flightclub]
fallback = "synthetic"
timeout = "50s"
`)
	t.Setenv("PORT", "")
	t.Setenv("SNEAKER_LOG_LEVEL", "debug")
	t.Setenv("SNEAKER_SOURCES_EBAY_ENABLED", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL.Duration)
	assert.Equal(t, 20*time.Second, cfg.Browser.Ceiling.Duration)
	assert.Equal(t, 1.3, cfg.Currency.Rates["GBP"])
	assert.True(t, cfg.UsesRedis())

	byID := map[string]registry.Source{}
	for _, s := range cfg.Catalog() {
		byID[s.ID] = s
	}
	assert.False(t, byID[registry.GOAT].Enabled)
	assert.Equal(t, registry.RateLimit{Requests: 5, Window: 30 * time.Second}, byID[registry.GOAT].RateLimit)
	assert.False(t, byID[registry.EBay].Enabled)
	assert.Equal(t, registry.FallbackSynthetic, byID[registry.FlightClub].Fallback)
	assert.Equal(t, 50*time.Second, byID[registry.FlightClub].Timeout)
	assert.True(t, byID[registry.StockX].Enabled)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Len(t, cfg.Catalog(), len(registry.Defaults()))
}

func TestLoad_MalformedFile(t *testing.T) {
	_, err := Load(writeConfig(t, "[server\nport = "))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	negative := -1

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server: port"},
		{"bad cache backend", func(c *Config) { c.Cache.Backend = "memcached" }, "cache: unknown backend"},
		{"sqlite without path", func(c *Config) { c.Cache.Path = " " }, "cache: path"},
		{"redis without addr", func(c *Config) { c.RateLimit.Backend = "redis"; c.Redis.Addr = "" }, "redis: addr"},
		{"unknown unblocker mode", func(c *Config) { c.Browser.UnblockerMode = "sometimes" }, "escalation mode"},
		{"unblocker without endpoint", func(c *Config) { c.Browser.UnblockerMode = "always" }, "unblocker_endpoint"},
		{"bad display currency", func(c *Config) { c.Currency.Display = "DOLLAR" }, "currency: display"},
		{"unknown source", func(c *Config) { c.Sources["nike"] = SourceConfig{} }, `unknown source "nike"`},
		{"bad fallback", func(c *Config) { c.Sources["goat"] = SourceConfig{Fallback: "mock"} }, "unknown fallback"},
		{"negative requests", func(c *Config) { c.Sources["goat"] = SourceConfig{Requests: &negative} }, "requests must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

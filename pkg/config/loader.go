package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"sneaker-hunter/pkg/registry"
)

const envPrefix = "SNEAKER_"

// Load merges the TOML file at path (skipped when path is empty or the file
// does not exist) over Defaults, applies a .env file and SNEAKER_*
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	if cfg.Sources == nil {
		cfg.Sources = map[string]SourceConfig{}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	cfg.Cache.Backend = strings.ToLower(strings.TrimSpace(cfg.Cache.Backend))
	cfg.RateLimit.Backend = strings.ToLower(strings.TrimSpace(cfg.RateLimit.Backend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setInt(&cfg.Server.Port, "SNEAKER_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT")
	setStr(&cfg.Server.SpecDir, "SNEAKER_SERVER_SPEC_DIR")

	// ── Log ──
	setStr(&cfg.Log.Level, "SNEAKER_LOG_LEVEL")
	setStr(&cfg.Log.Format, "SNEAKER_LOG_FORMAT")

	// ── Cache ──
	setStr(&cfg.Cache.Backend, "SNEAKER_CACHE_BACKEND")
	setStr(&cfg.Cache.Path, "SNEAKER_CACHE_PATH")
	setStr(&cfg.Cache.Path, "CACHE_DB_PATH")
	setDuration(&cfg.Cache.TTL, "SNEAKER_CACHE_TTL")

	// ── Rate limit ──
	setStr(&cfg.RateLimit.Backend, "SNEAKER_RATELIMIT_BACKEND")
	setDuration(&cfg.RateLimit.BaseDelay, "SNEAKER_RATELIMIT_BASE_DELAY")
	setDuration(&cfg.RateLimit.MaxDelay, "SNEAKER_RATELIMIT_MAX_DELAY")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SNEAKER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SNEAKER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SNEAKER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SNEAKER_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "SNEAKER_REDIS_TLS_ENABLED")

	// ── Browser ──
	setBool(&cfg.Browser.Headless, "SNEAKER_BROWSER_HEADLESS")
	setStr(&cfg.Browser.ExecPath, "SNEAKER_BROWSER_EXEC_PATH")
	setStr(&cfg.Browser.UserAgent, "SNEAKER_BROWSER_USER_AGENT")
	setInt(&cfg.Browser.MaxTabs, "SNEAKER_BROWSER_MAX_TABS")
	setDuration(&cfg.Browser.Ceiling, "SNEAKER_BROWSER_CEILING")
	setStr(&cfg.Browser.DebugDir, "SNEAKER_BROWSER_DEBUG_DIR")
	setStr(&cfg.Browser.UnblockerMode, "SNEAKER_BROWSER_UNBLOCKER_MODE")
	setStr(&cfg.Browser.UnblockerEndpoint, "SNEAKER_BROWSER_UNBLOCKER_ENDPOINT")

	// ── Currency ──
	setStr(&cfg.Currency.Display, "SNEAKER_CURRENCY_DISPLAY")

	// ── Sources ──
	for _, s := range registry.Defaults() {
		key := envPrefix + "SOURCES_" + strings.ToUpper(s.ID) + "_"
		sc := cfg.Sources[s.ID]
		changed := false
		if v, ok := lookupBool(key + "ENABLED"); ok {
			sc.Enabled = &v
			changed = true
		}
		if v := os.Getenv(key + "FALLBACK"); v != "" {
			sc.Fallback = v
			changed = true
		}
		if changed {
			cfg.Sources[s.ID] = sc
		}
	}
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and parses.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if b, ok := lookupBool(key); ok {
		*dst = b
	}
}

func lookupBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

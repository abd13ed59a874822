// Package config defines the process configuration and its validation.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"sneaker-hunter/pkg/navigator"
	"sneaker-hunter/pkg/registry"
)

// Config is populated from defaults, then a TOML file, then SNEAKER_*
// environment variables.
type Config struct {
	Server    ServerConfig            `toml:"server"`
	Log       LogConfig               `toml:"log"`
	Cache     CacheConfig             `toml:"cache"`
	RateLimit RateLimitConfig         `toml:"ratelimit"`
	Redis     RedisConfig             `toml:"redis"`
	Browser   BrowserConfig           `toml:"browser"`
	Currency  CurrencyConfig          `toml:"currency"`
	Sources   map[string]SourceConfig `toml:"sources"`
}

type ServerConfig struct {
	Port              int      `toml:"port"`
	ReadHeaderTimeout Duration `toml:"read_header_timeout"`
	IdleTimeout       Duration `toml:"idle_timeout"`
	SpecDir           string   `toml:"spec_dir"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// CacheConfig selects the result cache. Backend is none, sqlite or redis.
type CacheConfig struct {
	Backend string   `toml:"backend"`
	Path    string   `toml:"path"`
	TTL     Duration `toml:"ttl"`
}

// RateLimitConfig selects where request counters live. Backend is memory
// or redis; redis shares budgets between processes.
type RateLimitConfig struct {
	Backend   string   `toml:"backend"`
	BaseDelay Duration `toml:"base_delay"`
	MaxDelay  Duration `toml:"max_delay"`
}

type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

type BrowserConfig struct {
	Headless     bool     `toml:"headless"`
	ExecPath     string   `toml:"exec_path"`
	UserAgent    string   `toml:"user_agent"`
	MaxTabs      int      `toml:"max_tabs"`
	IdleWait     Duration `toml:"idle_wait"`
	PollInterval Duration `toml:"poll_interval"`
	Ceiling      Duration `toml:"ceiling"`
	SettleDelay  Duration `toml:"settle_delay"`
	DebugDir     string   `toml:"debug_dir"`
	// UnblockerMode is never, auto or always.
	UnblockerMode     string `toml:"unblocker_mode"`
	UnblockerEndpoint string `toml:"unblocker_endpoint"`
}

type CurrencyConfig struct {
	Display string `toml:"display"`
	// Rates maps a currency code to its value in USD.
	Rates map[string]float64 `toml:"rates"`
}

// SourceConfig overrides catalog fields for one source. Unset fields keep
// the catalog value.
type SourceConfig struct {
	Enabled  *bool    `toml:"enabled"`
	Fallback string   `toml:"fallback"`
	Requests *int     `toml:"requests"`
	Window   Duration `toml:"window"`
	Timeout  Duration `toml:"timeout"`
	BaseURL  string   `toml:"base_url"`
}

// Duration decodes TOML strings such as "60s" or "5m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults mirror config.example.toml.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:              9090,
			ReadHeaderTimeout: Duration{15 * time.Second},
			IdleTimeout:       Duration{120 * time.Second},
			SpecDir:           "./",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Cache: CacheConfig{
			Backend: "sqlite",
			Path:    "./cache.db",
			TTL:     Duration{60 * time.Second},
		},
		RateLimit: RateLimitConfig{
			Backend:   "memory",
			BaseDelay: Duration{500 * time.Millisecond},
			MaxDelay:  Duration{30 * time.Second},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		Browser: BrowserConfig{
			Headless:      true,
			MaxTabs:       3,
			IdleWait:      Duration{5 * time.Second},
			PollInterval:  Duration{navigator.DefaultPollInterval},
			Ceiling:       Duration{navigator.DefaultCeiling},
			SettleDelay:   Duration{navigator.DefaultSettleDelay},
			UnblockerMode: string(navigator.EscalateNever),
		},
		Currency: CurrencyConfig{
			Display: "USD",
		},
		Sources: map[string]SourceConfig{},
	}
}

var (
	validLogLevels     = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats    = map[string]bool{"json": true, "text": true}
	validCacheBackends = map[string]bool{"none": true, "sqlite": true, "redis": true}
	validRateBackends  = map[string]bool{"memory": true, "redis": true}
)

// Validate returns every problem found, joined into one error.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log: unknown level %q (valid: debug, info, warn, error)", c.Log.Level))
	}
	if !validLogFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, fmt.Sprintf("log: unknown format %q (valid: json, text)", c.Log.Format))
	}

	switch backend := strings.ToLower(c.Cache.Backend); {
	case !validCacheBackends[backend]:
		errs = append(errs, fmt.Sprintf("cache: unknown backend %q (valid: none, sqlite, redis)", c.Cache.Backend))
	case backend == "sqlite" && strings.TrimSpace(c.Cache.Path) == "":
		errs = append(errs, "cache: path must not be empty for the sqlite backend")
	}
	if c.Cache.TTL.Duration <= 0 {
		errs = append(errs, "cache: ttl must be positive")
	}

	if !validRateBackends[strings.ToLower(c.RateLimit.Backend)] {
		errs = append(errs, fmt.Sprintf("ratelimit: unknown backend %q (valid: memory, redis)", c.RateLimit.Backend))
	}
	if c.RateLimit.BaseDelay.Duration <= 0 {
		errs = append(errs, "ratelimit: base_delay must be positive")
	}
	if c.RateLimit.MaxDelay.Duration < c.RateLimit.BaseDelay.Duration {
		errs = append(errs, "ratelimit: max_delay must not be below base_delay")
	}

	if c.UsesRedis() && strings.TrimSpace(c.Redis.Addr) == "" {
		errs = append(errs, "redis: addr must not be empty when a redis backend is selected")
	}

	if c.Browser.MaxTabs < 1 {
		errs = append(errs, "browser: max_tabs must be >= 1")
	}
	if c.Browser.PollInterval.Duration <= 0 || c.Browser.Ceiling.Duration < c.Browser.PollInterval.Duration {
		errs = append(errs, "browser: poll_interval must be positive and not exceed ceiling")
	}
	if c.Browser.SettleDelay.Duration < 0 {
		errs = append(errs, "browser: settle_delay must not be negative")
	}
	mode, err := navigator.ParseEscalationMode(c.Browser.UnblockerMode)
	if err != nil {
		errs = append(errs, "browser: "+err.Error())
	} else if mode != navigator.EscalateNever && strings.TrimSpace(c.Browser.UnblockerEndpoint) == "" {
		errs = append(errs, fmt.Sprintf("browser: unblocker_endpoint is required for unblocker_mode %q", mode))
	}

	if len(strings.TrimSpace(c.Currency.Display)) != 3 {
		errs = append(errs, fmt.Sprintf("currency: display must be a 3-letter code, got %q", c.Currency.Display))
	}
	for code, rate := range c.Currency.Rates {
		if rate <= 0 {
			errs = append(errs, fmt.Sprintf("currency: rate for %s must be positive", code))
		}
	}

	known := make(map[string]bool)
	for _, s := range registry.Defaults() {
		known[s.ID] = true
	}
	for id, sc := range c.Sources {
		if !known[id] {
			errs = append(errs, fmt.Sprintf("sources: unknown source %q", id))
			continue
		}
		switch registry.FallbackPolicy(strings.ToLower(sc.Fallback)) {
		case "", registry.FallbackReport, registry.FallbackSynthetic:
		default:
			errs = append(errs, fmt.Sprintf("sources.%s: unknown fallback %q (valid: report, synthetic)", id, sc.Fallback))
		}
		if sc.Requests != nil && *sc.Requests < 0 {
			errs = append(errs, fmt.Sprintf("sources.%s: requests must not be negative", id))
		}
		if sc.Window.Duration < 0 || sc.Timeout.Duration < 0 {
			errs = append(errs, fmt.Sprintf("sources.%s: window and timeout must not be negative", id))
		}
	}

	if len(errs) > 0 {
		return errors.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

// UsesRedis reports whether any backend needs the shared redis client.
func (c *Config) UsesRedis() bool {
	return strings.EqualFold(c.Cache.Backend, "redis") || strings.EqualFold(c.RateLimit.Backend, "redis")
}

// Catalog applies the [sources.<id>] overrides to the built-in catalog.
func (c *Config) Catalog() []registry.Source {
	sources := registry.Defaults()
	for i, s := range sources {
		sc, ok := c.Sources[s.ID]
		if !ok {
			continue
		}
		if sc.Enabled != nil {
			s.Enabled = *sc.Enabled
		}
		if sc.Fallback != "" {
			s.Fallback = registry.FallbackPolicy(strings.ToLower(sc.Fallback))
		}
		if sc.Requests != nil {
			s.RateLimit.Requests = *sc.Requests
		}
		if sc.Window.Duration > 0 {
			s.RateLimit.Window = sc.Window.Duration
		}
		if sc.Timeout.Duration > 0 {
			s.Timeout = sc.Timeout.Duration
		}
		if sc.BaseURL != "" {
			s.BaseURL = sc.BaseURL
		}
		sources[i] = s
	}
	return sources
}

// Package app wires configuration into a ready Orchestrator. The HTTP shell
// and the CLI both start from here.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"sneaker-hunter/pkg/aggregator"
	"sneaker-hunter/pkg/browser"
	"sneaker-hunter/pkg/cache"
	"sneaker-hunter/pkg/config"
	"sneaker-hunter/pkg/currency"
	"sneaker-hunter/pkg/logger"
	"sneaker-hunter/pkg/navigator"
	"sneaker-hunter/pkg/orchestrator"
	"sneaker-hunter/pkg/ratelimit"
	"sneaker-hunter/pkg/registry"
	"sneaker-hunter/pkg/scrapers"
	"sneaker-hunter/pkg/scrapers/ebay"
	"sneaker-hunter/pkg/scrapers/flightclub"
	"sneaker-hunter/pkg/scrapers/goat"
	"sneaker-hunter/pkg/scrapers/klekt"
	"sneaker-hunter/pkg/scrapers/stadiumgoods"
	"sneaker-hunter/pkg/scrapers/stockx"
)

const redisDialTimeout = 5 * time.Second

type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Registry     *registry.Registry
	Converter    *currency.Converter
	Orchestrator *orchestrator.Orchestrator

	stop    context.CancelFunc
	closers []func() error
}

// New builds every component named by cfg. Redis and the cache are
// optional: when they cannot be reached the app logs a warning and runs
// without them. Chrome is not started until a rendered source is queried.
func New(ctx context.Context, cfg *config.Config, w io.Writer) (*App, error) {
	log := logger.New(w, cfg.Log.Level, cfg.Log.Format)

	reg, err := registry.New(cfg.Catalog()...)
	if err != nil {
		return nil, err
	}

	bg, stop := context.WithCancel(context.Background())
	a := &App{
		Config:    cfg,
		Logger:    log,
		Registry:  reg,
		Converter: currency.NewConverter(cfg.Currency.Display, cfg.Currency.Rates),
		stop:      stop,
	}

	rdb := a.dialRedis(ctx)
	resultCache := a.openCache(bg, rdb)

	var limiter ratelimit.Limiter = ratelimit.NewMemory()
	if rdb != nil && cfg.RateLimit.Backend == "redis" {
		limiter = ratelimit.NewRedis(rdb)
	}
	scheduler := ratelimit.NewScheduler(limiter, cfg.RateLimit.BaseDelay.Duration, cfg.RateLimit.MaxDelay.Duration, log)

	renderer, err := a.newRenderer()
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	var adapters []scrapers.Adapter
	for _, src := range reg.All() {
		adapter, err := newAdapter(src, renderer, a.Converter, log)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		adapters = append(adapters, scrapers.WithFallback(adapter, scrapers.NewBase(src, a.Converter, log)))
	}

	a.Orchestrator, err = orchestrator.New(reg, adapters,
		orchestrator.WithScheduler(scheduler),
		orchestrator.WithCache(resultCache),
		orchestrator.WithAggregator(aggregator.New(a.Converter.Display())),
		orchestrator.WithLogger(log),
	)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	log.Info("app ready",
		slog.Int("sources", len(a.Orchestrator.Sources())),
		slog.String("cache", cfg.Cache.Backend),
		slog.String("ratelimit", cfg.RateLimit.Backend),
		slog.String("display_currency", a.Converter.Display()),
	)
	return a, nil
}

// dialRedis returns nil when no backend needs redis or it is unreachable.
func (a *App) dialRedis(ctx context.Context) *redis.Client {
	if !a.Config.UsesRedis() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()

	rc := a.Config.Redis
	rdb, err := cache.DialRedis(ctx, cache.RedisConfig{
		Addr:       rc.Addr,
		Password:   rc.Password,
		DB:         rc.DB,
		PoolSize:   rc.PoolSize,
		MaxRetries: rc.MaxRetries,
		TLSEnabled: rc.TLSEnabled,
	})
	if err != nil {
		a.Logger.Warn("redis unavailable, falling back to in-process cache and limiter",
			slog.String("addr", rc.Addr),
			slog.String("error", err.Error()),
		)
		return nil
	}
	a.closers = append(a.closers, rdb.Close)
	return rdb
}

func (a *App) openCache(bg context.Context, rdb *redis.Client) cache.Cache {
	cc := a.Config.Cache
	switch cc.Backend {
	case "redis":
		if rdb == nil {
			return cache.Nop{}
		}
		return cache.NewRedis(rdb, cc.TTL.Duration, a.Logger)
	case "sqlite":
		c, err := cache.NewSQLite(cc.Path, cc.TTL.Duration, a.Logger)
		if err != nil {
			a.Logger.Warn("cache unavailable, every search will be live",
				slog.String("path", cc.Path),
				slog.String("error", err.Error()),
			)
			return cache.Nop{}
		}
		a.closers = append(a.closers, c.Close)
		go a.purgeLoop(bg, c, cc.TTL.Duration)
		return c
	default:
		return cache.Nop{}
	}
}

// purgeLoop drops expired rows so the sqlite file does not grow without
// bound. Redis expires keys on its own.
func (a *App) purgeLoop(ctx context.Context, c *cache.SQLite, every time.Duration) {
	if every < time.Minute {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.Purge(ctx)
			if err != nil {
				a.Logger.Warn("cache purge failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				a.Logger.Debug("cache purged", slog.Int64("rows", n))
			}
		}
	}
}

func (a *App) newRenderer() (*scrapers.BrowserRenderer, error) {
	bc := a.Config.Browser
	bcfg := browser.Config{
		ExecPath:  bc.ExecPath,
		Headless:  bc.Headless,
		UserAgent: bc.UserAgent,
		MaxTabs:   bc.MaxTabs,
		IdleWait:  bc.IdleWait.Duration,
	}

	mode, err := navigator.ParseEscalationMode(bc.UnblockerMode)
	if err != nil {
		return nil, err
	}
	opts := []navigator.Option{
		navigator.WithPolling(bc.PollInterval.Duration, bc.Ceiling.Duration),
		navigator.WithSettleDelay(bc.SettleDelay.Duration),
		navigator.WithLogger(a.Logger),
	}
	if mode != navigator.EscalateNever {
		opts = append(opts, navigator.WithUnblocker(browser.NewRemoteUnblocker(bc.UnblockerEndpoint, bcfg, a.Logger), mode))
	}

	session := browser.NewSession(bcfg, a.Logger)
	a.closers = append(a.closers, session.Close)

	return &scrapers.BrowserRenderer{
		Session:  session,
		Protocol: navigator.New(opts...),
		DebugDir: bc.DebugDir,
		Logger:   a.Logger,
	}, nil
}

func newAdapter(src registry.Source, r scrapers.Renderer, conv *currency.Converter, log *slog.Logger) (scrapers.Adapter, error) {
	switch src.ID {
	case registry.StockX:
		return stockx.NewScraper(src, conv, log)
	case registry.GOAT:
		return goat.NewScraper(src, conv, log)
	case registry.EBay:
		return ebay.NewScraper(src, conv, log)
	case registry.KLEKT:
		return klekt.NewScraper(src, conv, log)
	case registry.FlightClub:
		return flightclub.NewScraper(src, r, conv, log), nil
	case registry.StadiumGoods:
		return stadiumgoods.NewScraper(src, r, conv, log), nil
	default:
		return nil, fmt.Errorf("app: no adapter for source %q", src.ID)
	}
}

// Close drains pending cache writes, then releases the browser, cache and
// redis client in reverse order of creation.
func (a *App) Close() error {
	if a.Orchestrator != nil {
		a.Orchestrator.Wait()
	}
	a.stop()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

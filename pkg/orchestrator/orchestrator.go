// Package orchestrator fans a query out to every enabled source, tolerates
// whichever of them fail, and merges the rest into ranked records.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"sneaker-hunter/pkg/aggregator"
	"sneaker-hunter/pkg/cache"
	"sneaker-hunter/pkg/logger"
	"sneaker-hunter/pkg/models"
	"sneaker-hunter/pkg/ratelimit"
	"sneaker-hunter/pkg/registry"
	"sneaker-hunter/pkg/scrapers"
)

// ErrAdapterPanic marks a source whose adapter panicked.
var ErrAdapterPanic = errors.New("adapter panicked")

// cacheWriteTimeout bounds the background write after a search.
const cacheWriteTimeout = 5 * time.Second

type SearchResult struct {
	Listings   []models.Listing           `json:"listings"`
	Aggregated []models.AggregatedSneaker `json:"aggregated"`
	Errors     []string                   `json:"errors"`
}

type Orchestrator struct {
	registry  *registry.Registry
	adapters  map[string]scrapers.Adapter
	agg       *aggregator.Aggregator
	scheduler *ratelimit.Scheduler
	cache     cache.Cache
	logger    *slog.Logger

	writes sync.WaitGroup
	now    func() time.Time
}

type Option func(*Orchestrator)

// WithScheduler enables per-source rate limiting.
func WithScheduler(s *ratelimit.Scheduler) Option {
	return func(o *Orchestrator) { o.scheduler = s }
}

func WithCache(c cache.Cache) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.cache = c
		}
	}
}

func WithAggregator(a *aggregator.Aggregator) Option {
	return func(o *Orchestrator) { o.agg = a }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New binds adapters to their registry entries. Every adapter must name a
// registered source.
func New(reg *registry.Registry, adapters []scrapers.Adapter, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		registry: reg,
		adapters: make(map[string]scrapers.Adapter, len(adapters)),
		agg:      aggregator.New("USD"),
		cache:    cache.Nop{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	for _, a := range adapters {
		id := a.Source().ID
		if _, ok := reg.Lookup(id); !ok {
			return nil, fmt.Errorf("orchestrator: adapter for unknown source %q", id)
		}
		if _, dup := o.adapters[id]; dup {
			return nil, fmt.Errorf("orchestrator: two adapters for source %q", id)
		}
		o.adapters[id] = a
	}
	return o, nil
}

// Sources lists the enabled sources that have an adapter, in registry order.
func (o *Orchestrator) Sources() []registry.Source {
	var out []registry.Source
	for _, src := range o.registry.Enabled() {
		if _, ok := o.adapters[src.ID]; ok {
			out = append(out, src)
		}
	}
	return out
}

// Search queries every enabled source concurrently and never fails: each
// source that errors, panics or overruns its deadline contributes one entry
// to Errors and nothing to the listings.
func (o *Orchestrator) Search(ctx context.Context, query string) SearchResult {
	res, _ := o.search(ctx, query)
	return res
}

func (o *Orchestrator) search(ctx context.Context, query string) (SearchResult, int) {
	sources := o.Sources()

	var (
		mu       sync.Mutex
		listings = []models.Listing{}
		errs     = []string{}
	)

	var g errgroup.Group
	for _, src := range sources {
		adapter := o.adapters[src.ID]
		g.Go(func() error {
			res := o.fetch(ctx, src, adapter, query)

			mu.Lock()
			defer mu.Unlock()
			if !res.Success {
				errs = append(errs, fmt.Sprintf("%s: %s", src.Name, res.Error))
				return nil
			}
			for _, l := range res.Listings {
				listings = append(listings, sanitize(src, l))
			}
			return nil
		})
	}
	_ = g.Wait()

	return SearchResult{
		Listings:   listings,
		Aggregated: o.agg.Aggregate(listings),
		Errors:     errs,
	}, len(sources)
}

// sanitize enforces what the aggregator relies on, whatever the adapter did.
func sanitize(src registry.Source, l models.Listing) models.Listing {
	l.Source = src.ID
	if l.Price < 0 {
		l.Price = 0
	}
	if l.PriceInDisplayCurrency < 0 {
		l.PriceInDisplayCurrency = 0
	}
	return l
}

// fetch runs one adapter under its source's deadline and rate budget.
func (o *Orchestrator) fetch(ctx context.Context, src registry.Source, a scrapers.Adapter, query string) models.SourceResult {
	start := o.now()
	ctx, cancel := context.WithTimeout(ctx, src.Deadline())
	defer cancel()

	if err := o.throttle(ctx, src); err != nil {
		res := scrapers.Failed(src.Ref(), err)
		o.report(src, start, o.outcome(ctx, res, err), res, slog.String("query", query))
		return res
	}

	res, err := guard(ctx, func(ctx context.Context) (models.SourceResult, error) {
		return a.Fetch(ctx, query), nil
	})
	if err != nil {
		var pe *panicError
		if errors.As(err, &pe) {
			o.logger.Error("adapter panicked", slog.String("source", src.ID), slog.String("stack", string(pe.stack)))
		}
		res = scrapers.Failed(src.Ref(), o.describe(src, err))
	}
	res.Source = src.Ref()
	o.feedback(src, res.Success, res.Throttled)

	if res.Success && res.Error != "" {
		o.logger.Warn("source degraded", slog.String("source", src.ID), slog.String("reason", res.Error))
	}
	o.report(src, start, o.outcome(ctx, res, err), res, slog.String("query", query))
	return res
}

// throttle waits for src's rate budget. Waiting counts against the
// source's deadline.
func (o *Orchestrator) throttle(ctx context.Context, src registry.Source) error {
	if o.scheduler == nil || src.RateLimit.Requests <= 0 {
		return nil
	}
	waited, err := o.scheduler.Wait(ctx, src.ID, src.RateLimit.Requests, src.RateLimit.Window)
	if err != nil {
		return err
	}
	if waited > 0 {
		logger.SourceEvent(o.logger, src.ID, waited, logger.OutcomeDeferred)
	}
	return nil
}

func (o *Orchestrator) feedback(src registry.Source, ok, throttled bool) {
	if o.scheduler == nil {
		return
	}
	switch {
	case throttled:
		d := o.scheduler.Throttled(src.ID)
		o.logger.Warn("source is throttling us", slog.String("source", src.ID), slog.Duration("cooldown", d))
	case ok:
		o.scheduler.Succeeded(src.ID)
	}
}

func (o *Orchestrator) describe(src registry.Source, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &timeoutError{after: src.Deadline()}
	}
	return err
}

type timeoutError struct{ after time.Duration }

func (e *timeoutError) Error() string { return fmt.Sprintf("timed out after %s", e.after) }

func (e *timeoutError) Unwrap() error { return context.DeadlineExceeded }

func (o *Orchestrator) outcome(ctx context.Context, res models.SourceResult, err error) string {
	switch {
	case errors.Is(err, ErrAdapterPanic):
		return logger.OutcomePanic
	case errors.Is(err, models.ErrRateLimited):
		return logger.OutcomeDeferred
	case errors.Is(ctx.Err(), context.DeadlineExceeded) && !res.Success:
		return logger.OutcomeTimeout
	case res.Blocked:
		return logger.OutcomeBlocked
	case !res.Success:
		return logger.OutcomeFailed
	}
	return logger.OutcomeOK
}

func (o *Orchestrator) report(src registry.Source, start time.Time, outcome string, res models.SourceResult, attrs ...slog.Attr) {
	attrs = append(attrs, slog.Int("listings", len(res.Listings)))
	if !res.Success {
		attrs = append(attrs, slog.String("error", res.Error))
	}
	logger.SourceEvent(o.logger, src.ID, o.now().Sub(start), outcome, attrs...)
}

// guard runs fn in its own goroutine so that neither a panic nor an adapter
// ignoring ctx can take the caller down with it. It returns ctx.Err() as
// soon as ctx ends.
func guard[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				done <- outcome{zero, &panicError{value: r, stack: debug.Stack()}}
			}
		}()
		v, err := fn(ctx)
		done <- outcome{v, err}
	}()

	select {
	case out := <-done:
		return out.v, out.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string { return fmt.Sprintf("%s: %v", ErrAdapterPanic, e.value) }

func (e *panicError) Unwrap() error { return ErrAdapterPanic }

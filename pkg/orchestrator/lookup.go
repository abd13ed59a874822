package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"sneaker-hunter/pkg/cache"
	"sneaker-hunter/pkg/logger"
	"sneaker-hunter/pkg/models"
)

type Meta struct {
	Query            string    `json:"query"`
	Cached           bool      `json:"cached"`
	SourcesQueried   int       `json:"sources_queried"`
	SourcesSucceeded int       `json:"sources_succeeded"`
	Errors           []string  `json:"errors"`
	DurationMS       int64     `json:"duration_ms"`
	FetchedAt        time.Time `json:"fetched_at"`
}

type LookupResult struct {
	Aggregated []models.AggregatedSneaker `json:"aggregated"`
	Listings   []models.Listing           `json:"listings"`
	Meta       Meta                       `json:"meta"`
}

// Lookup serves query from the cache when it can and otherwise runs a
// Search. Fresh results are written back in the background, and only when
// at least one source succeeded so that an outage is never cached.
func (o *Orchestrator) Lookup(ctx context.Context, query string, forceRefresh bool) LookupResult {
	start := o.now()
	key := cache.NormalizeKey(query)

	if !forceRefresh {
		if e, ok := o.cache.Get(ctx, key); ok {
			logger.Dedup(o.logger, "serving search from cache")
			logger.SourceEvent(o.logger, "cache", o.now().Sub(start), logger.OutcomeCacheHit, slog.String("query", key))
			return LookupResult{
				Aggregated: e.Aggregated,
				Listings:   e.Listings,
				Meta: Meta{
					Query:      key,
					Cached:     true,
					Errors:     []string{},
					DurationMS: o.now().Sub(start).Milliseconds(),
					FetchedAt:  e.StoredAt,
				},
			}
		}
	}

	res, queried := o.search(ctx, key)
	fetchedAt := o.now()
	succeeded := queried - len(res.Errors)

	if succeeded > 0 {
		o.store(key, cache.Entry{
			Query:      key,
			Aggregated: res.Aggregated,
			Listings:   res.Listings,
			StoredAt:   fetchedAt,
		})
	}

	return LookupResult{
		Aggregated: res.Aggregated,
		Listings:   res.Listings,
		Meta: Meta{
			Query:            key,
			SourcesQueried:   queried,
			SourcesSucceeded: succeeded,
			Errors:           res.Errors,
			DurationMS:       fetchedAt.Sub(start).Milliseconds(),
			FetchedAt:        fetchedAt,
		},
	}
}

// store writes entry without holding up the response. Failures are logged
// and otherwise ignored.
func (o *Orchestrator) store(key string, entry cache.Entry) {
	o.writes.Add(1)
	go func() {
		defer o.writes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
		defer cancel()
		if err := o.cache.Set(ctx, key, entry); err != nil {
			o.logger.Warn("cache write failed", slog.String("query", key), slog.String("error", err.Error()))
		}
	}()
}

// Wait blocks until pending cache writes have finished.
func (o *Orchestrator) Wait() {
	o.writes.Wait()
}

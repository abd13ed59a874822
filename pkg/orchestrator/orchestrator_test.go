package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sneaker-hunter/pkg/cache"
	"sneaker-hunter/pkg/logger"
	"sneaker-hunter/pkg/models"
	"sneaker-hunter/pkg/ratelimit"
	"sneaker-hunter/pkg/registry"
	"sneaker-hunter/pkg/scrapers"
)

type fakeAdapter struct {
	src   models.SourceRef
	fetch func(ctx context.Context, query string) models.SourceResult
	calls int
	mu    sync.Mutex
}

func (f *fakeAdapter) Source() models.SourceRef { return f.src }

func (f *fakeAdapter) Fetch(ctx context.Context, query string) models.SourceResult {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fetch(ctx, query)
}

func (f *fakeAdapter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func listing(source, id, sku string, price float64) models.Listing {
	return models.Listing{
		ID:                     source + ":" + id,
		Name:                   "Dunk Low Panda",
		Brand:                  "Nike",
		SKU:                    sku,
		Source:                 source,
		Price:                  price,
		Currency:               "USD",
		PriceInDisplayCurrency: price,
		Condition:              models.ConditionNew,
	}
}

func succeeding(src registry.Source, listings ...models.Listing) *fakeAdapter {
	return &fakeAdapter{src: src.Ref(), fetch: func(context.Context, string) models.SourceResult {
		return scrapers.Succeeded(src.Ref(), listings)
	}}
}

func failing(src registry.Source, err error) *fakeAdapter {
	return &fakeAdapter{src: src.Ref(), fetch: func(context.Context, string) models.SourceResult {
		return scrapers.Failed(src.Ref(), err)
	}}
}

func source(id, name string) registry.Source {
	return registry.Source{ID: id, Name: name, Kind: registry.KindStructuredAPI, Currency: "USD", Enabled: true, Timeout: time.Second}
}

func newTestOrchestrator(t *testing.T, sources []registry.Source, adapters []scrapers.Adapter, opts ...Option) *Orchestrator {
	t.Helper()
	reg, err := registry.New(sources...)
	require.NoError(t, err)
	o, err := New(reg, adapters, append([]Option{WithLogger(logger.Discard())}, opts...)...)
	require.NoError(t, err)
	return o
}

func TestSearch_PartialFailure(t *testing.T) {
	stockx, goat, ebay, klekt, fc := source("stockx", "StockX"), source("goat", "GOAT"), source("ebay", "eBay"), source("klekt", "KLEKT"), source("flightclub", "Flight Club")
	stockx.Timeout = 50 * time.Millisecond

	hang := &fakeAdapter{src: stockx.Ref(), fetch: func(ctx context.Context, _ string) models.SourceResult {
		// ignores ctx on purpose
		time.Sleep(2 * time.Second)
		return scrapers.Succeeded(stockx.Ref(), []models.Listing{listing("stockx", "x", "DD1391-100", 1)})
	}}
	boom := &fakeAdapter{src: goat.Ref(), fetch: func(context.Context, string) models.SourceResult {
		panic("index out of range")
	}}

	o := newTestOrchestrator(t,
		[]registry.Source{stockx, goat, ebay, klekt, fc},
		[]scrapers.Adapter{
			hang,
			boom,
			failing(ebay, errors.New("connection reset by peer")),
			succeeding(klekt, listing("klekt", "1", "DD1391-100", 150), listing("klekt", "2", "DD1391-100", 130)),
			succeeding(fc, listing("flightclub", "1", "DD1391 100", 140)),
		},
	)

	start := time.Now()
	res := o.Search(context.Background(), "dunk low panda")
	assert.Less(t, time.Since(start), time.Second, "a hung source must not hold the search past its deadline")

	require.Len(t, res.Errors, 3)
	sort.Strings(res.Errors)
	assert.Equal(t, "GOAT: adapter panicked: index out of range", res.Errors[0])
	assert.Equal(t, "StockX: timed out after 50ms", res.Errors[1])
	assert.Equal(t, "eBay: connection reset by peer", res.Errors[2])

	require.Len(t, res.Listings, 3)
	require.Len(t, res.Aggregated, 1)
	g := res.Aggregated[0]
	assert.Len(t, g.Listings, 3)
	assert.Equal(t, 130.0, g.LowestPrice)
	assert.Equal(t, 150.0, g.HighestPrice)
	for _, l := range g.Listings {
		assert.NotEqual(t, "stockx", l.Source)
		assert.NotEqual(t, "goat", l.Source)
	}
}

func TestSearch_AllFail(t *testing.T) {
	a, b := source("stockx", "StockX"), source("goat", "GOAT")
	o := newTestOrchestrator(t, []registry.Source{a, b}, []scrapers.Adapter{
		failing(a, models.ErrNoResults),
		failing(b, models.ErrChallengeBlocked),
	})

	res := o.Search(context.Background(), "dunk")
	assert.NotNil(t, res.Aggregated)
	assert.Empty(t, res.Aggregated)
	assert.Empty(t, res.Listings)
	assert.Len(t, res.Errors, 2)
}

func TestSearch_SkipsDisabledSources(t *testing.T) {
	on, off := source("stockx", "StockX"), source("goat", "GOAT")
	off.Enabled = false
	disabled := succeeding(off, listing("goat", "1", "", 10))

	o := newTestOrchestrator(t, []registry.Source{on, off}, []scrapers.Adapter{
		succeeding(on, listing("stockx", "1", "", 100)),
		disabled,
	})

	res := o.Search(context.Background(), "dunk")
	assert.Empty(t, res.Errors)
	assert.Len(t, res.Listings, 1)
	assert.Zero(t, disabled.Calls())
}

func TestSearch_StampsSourceAndClampsPrices(t *testing.T) {
	src := source("ebay", "eBay")
	bad := listing("somewhere-else", "1", "", -5)
	bad.PriceInDisplayCurrency = -5

	o := newTestOrchestrator(t, []registry.Source{src}, []scrapers.Adapter{succeeding(src, bad)})

	res := o.Search(context.Background(), "dunk")
	require.Len(t, res.Listings, 1)
	assert.Equal(t, "ebay", res.Listings[0].Source)
	assert.Zero(t, res.Listings[0].PriceInDisplayCurrency)
}

func TestNew_RejectsUnknownSource(t *testing.T) {
	reg, err := registry.New(source("stockx", "StockX"))
	require.NoError(t, err)

	_, err = New(reg, []scrapers.Adapter{succeeding(source("nope", "Nope"))})
	assert.Error(t, err)
}

func TestSearch_RateLimitDefers(t *testing.T) {
	src := source("stockx", "StockX")
	src.RateLimit = registry.RateLimit{Requests: 1, Window: 100 * time.Millisecond}
	src.Timeout = 2 * time.Second
	a := succeeding(src, listing("stockx", "1", "", 100))

	sched := ratelimit.NewScheduler(ratelimit.NewMemory(), 20*time.Millisecond, 200*time.Millisecond, logger.Discard())
	o := newTestOrchestrator(t, []registry.Source{src}, []scrapers.Adapter{a}, WithScheduler(sched))

	start := time.Now()
	first := o.Search(context.Background(), "dunk")
	second := o.Search(context.Background(), "dunk")

	assert.Empty(t, first.Errors)
	assert.Empty(t, second.Errors, "an over-budget request is deferred, not dropped")
	assert.Equal(t, 2, a.Calls())
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestSearch_RateLimitGivesUpAtDeadline(t *testing.T) {
	src := source("stockx", "StockX")
	src.RateLimit = registry.RateLimit{Requests: 1, Window: time.Hour}
	src.Timeout = 60 * time.Millisecond
	a := succeeding(src, listing("stockx", "1", "", 100))

	sched := ratelimit.NewScheduler(ratelimit.NewMemory(), 10*time.Millisecond, 20*time.Millisecond, logger.Discard())
	o := newTestOrchestrator(t, []registry.Source{src}, []scrapers.Adapter{a}, WithScheduler(sched))

	o.Search(context.Background(), "dunk")
	res := o.Search(context.Background(), "dunk")

	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "rate limited")
	assert.Equal(t, 1, a.Calls())
}

// memCache is an in-memory Cache that can be told to fail writes.
type memCache struct {
	mu      sync.Mutex
	entries map[string]cache.Entry
	setErr  error
	sets    int
}

func newMemCache() *memCache { return &memCache{entries: map[string]cache.Entry{}} }

func (m *memCache) Get(_ context.Context, q string) (*cache.Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[cache.NormalizeKey(q)]
	if !ok {
		return nil, false
	}
	return &e, true
}

func (m *memCache) Set(_ context.Context, q string, e cache.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	m.entries[cache.NormalizeKey(q)] = e
	return nil
}

func (m *memCache) Close() error { return nil }

func (m *memCache) Sets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets
}

func TestLookup_CachesSuccessfulSearches(t *testing.T) {
	src := source("stockx", "StockX")
	a := succeeding(src, listing("stockx", "1", "DD1391-100", 100))
	c := newMemCache()
	o := newTestOrchestrator(t, []registry.Source{src}, []scrapers.Adapter{a}, WithCache(c))
	ctx := context.Background()

	miss := o.Lookup(ctx, "Dunk Low", false)
	o.Wait()
	assert.False(t, miss.Meta.Cached)
	assert.Equal(t, "dunk low", miss.Meta.Query)
	assert.Equal(t, 1, miss.Meta.SourcesQueried)
	assert.Equal(t, 1, miss.Meta.SourcesSucceeded)
	assert.Equal(t, 1, c.Sets())

	hit := o.Lookup(ctx, "  dunk   LOW ", false)
	assert.True(t, hit.Meta.Cached)
	assert.Equal(t, miss.Aggregated, hit.Aggregated)
	assert.Equal(t, 1, a.Calls())

	refreshed := o.Lookup(ctx, "dunk low", true)
	o.Wait()
	assert.False(t, refreshed.Meta.Cached)
	assert.Equal(t, 2, a.Calls())
	assert.Equal(t, 2, c.Sets())
}

func TestLookup_DoesNotCacheTotalFailure(t *testing.T) {
	src := source("stockx", "StockX")
	c := newMemCache()
	o := newTestOrchestrator(t, []registry.Source{src}, []scrapers.Adapter{failing(src, errors.New("down"))}, WithCache(c))

	res := o.Lookup(context.Background(), "dunk", false)
	o.Wait()
	assert.Equal(t, 0, res.Meta.SourcesSucceeded)
	assert.Equal(t, []string{"StockX: down"}, res.Meta.Errors)
	assert.Zero(t, c.Sets())
}

func TestLookup_WriteFailureIsAbsorbed(t *testing.T) {
	src := source("stockx", "StockX")
	c := newMemCache()
	c.setErr = errors.New("disk full")
	o := newTestOrchestrator(t, []registry.Source{src}, []scrapers.Adapter{succeeding(src, listing("stockx", "1", "", 100))}, WithCache(c))

	res := o.Lookup(context.Background(), "dunk", false)
	o.Wait()
	assert.Len(t, res.Listings, 1)
	assert.Empty(t, res.Meta.Errors)
	assert.Equal(t, 1, c.Sets())
}

type fakePricing struct {
	*fakeAdapter
	sheet *models.SourcePricing
	err   error
}

func (f fakePricing) FetchPricing(context.Context, string) (*models.SourcePricing, error) {
	return f.sheet, f.err
}

func TestPricing(t *testing.T) {
	a, b, c, d := source("stockx", "StockX"), source("goat", "GOAT"), source("ebay", "eBay"), source("klekt", "KLEKT")

	sheet := func(src string, lowest float64) *models.SourcePricing {
		return &models.SourcePricing{Source: src, Name: "Dunk Low", LowestPrice: lowest}
	}
	o := newTestOrchestrator(t, []registry.Source{a, b, c, d}, []scrapers.Adapter{
		fakePricing{fakeAdapter: succeeding(a), sheet: sheet("stockx", 120)},
		fakePricing{fakeAdapter: succeeding(b), sheet: sheet("goat", 0)},
		succeeding(c),
		fakePricing{fakeAdapter: succeeding(d), err: models.ErrProductNotFound},
	})

	res := o.Pricing(context.Background(), " DD1391-100 ")
	assert.Equal(t, "DD1391-100", res.SKU)
	require.Len(t, res.Pricing, 2, "sources without pricing support are not queried")
	assert.Equal(t, "stockx", res.Pricing[0].Source)
	assert.Equal(t, "goat", res.Pricing[1].Source, "sheets with nothing available sort last")
	require.Len(t, res.Errors, 1)
	assert.True(t, strings.HasPrefix(res.Errors[0], "KLEKT: "))
	assert.NoError(t, res.Err(), "one sheet is enough")
}

type slowPricing struct {
	*fakeAdapter
}

func (slowPricing) FetchPricing(context.Context, string) (*models.SourcePricing, error) {
	time.Sleep(2 * time.Second)
	return &models.SourcePricing{}, nil
}

func TestPricing_Err(t *testing.T) {
	a, b := source("stockx", "StockX"), source("goat", "GOAT")

	t.Run("every source misses", func(t *testing.T) {
		o := newTestOrchestrator(t, []registry.Source{a, b}, []scrapers.Adapter{
			fakePricing{fakeAdapter: succeeding(a), err: models.ErrProductNotFound},
			fakePricing{fakeAdapter: succeeding(b), err: fmt.Errorf("%w: empty sheet", models.ErrNoResults)},
		})
		err := o.Pricing(context.Background(), "DD1391-100").Err()
		require.ErrorIs(t, err, models.ErrProductNotFound)
		assert.True(t, strings.HasPrefix(err.Error(), "No source has prices for DD1391-100: "), err.Error())
	})

	t.Run("a blocked source outranks a miss", func(t *testing.T) {
		o := newTestOrchestrator(t, []registry.Source{a, b}, []scrapers.Adapter{
			fakePricing{fakeAdapter: succeeding(a), err: models.ErrProductNotFound},
			fakePricing{fakeAdapter: succeeding(b), err: models.ErrChallengeBlocked},
		})
		err := o.Pricing(context.Background(), "DD1391-100").Err()
		require.ErrorIs(t, err, models.ErrChallengeBlocked)
		assert.NotErrorIs(t, err, models.ErrProductNotFound)
	})

	t.Run("timeouts keep the deadline cause", func(t *testing.T) {
		slow := a
		slow.Timeout = 50 * time.Millisecond
		o := newTestOrchestrator(t, []registry.Source{slow}, []scrapers.Adapter{
			slowPricing{succeeding(slow)},
		})
		res := o.Pricing(context.Background(), "DD1391-100")
		require.Equal(t, []string{"StockX: timed out after 50ms"}, res.Errors)
		assert.ErrorIs(t, res.Err(), context.DeadlineExceeded)
	})
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"sneaker-hunter/pkg/models"
	"sneaker-hunter/pkg/registry"
	"sneaker-hunter/pkg/scrapers"
)

type PricingResult struct {
	SKU     string                 `json:"sku"`
	Pricing []models.SourcePricing `json:"pricing"`
	Errors  []string               `json:"errors"`

	// Failures holds the per-source errors behind Errors.
	Failures []error `json:"-"`
}

// Err reports why no price sheet came back, or nil when at least one did.
// It wraps models.ErrProductNotFound when every source answered that it does
// not carry the SKU, and otherwise the failures that were not a miss.
func (r PricingResult) Err() error {
	if len(r.Pricing) > 0 {
		return nil
	}
	detail := fmt.Sprintf("No source has prices for %s", r.SKU)
	if len(r.Errors) > 0 {
		detail += ": " + strings.Join(r.Errors, "; ")
	}

	var hard []error
	for _, err := range r.Failures {
		if !errors.Is(err, models.ErrProductNotFound) && !errors.Is(err, models.ErrNoResults) {
			hard = append(hard, err)
		}
	}
	if len(hard) == 0 {
		return &pricingError{detail: detail, cause: models.ErrProductNotFound}
	}
	return &pricingError{detail: detail, cause: errors.Join(hard...)}
}

type pricingError struct {
	detail string
	cause  error
}

func (e *pricingError) Error() string { return e.detail }

func (e *pricingError) Unwrap() error { return e.cause }

// Pricing collects the per-size price sheet for sku from every enabled
// source that supports it, under the same deadline and rate rules as
// Search. Sheets are ordered by lowest available price; sources with
// nothing available come last.
func (o *Orchestrator) Pricing(ctx context.Context, sku string) PricingResult {
	sku = strings.TrimSpace(sku)

	var (
		mu     sync.Mutex
		sheets   = []models.SourcePricing{}
		errs     = []string{}
		failures []error
	)

	var g errgroup.Group
	for _, src := range o.Sources() {
		pa, ok := scrapers.AsPricing(o.adapters[src.ID])
		if !ok {
			continue
		}
		g.Go(func() error {
			sp, err := o.fetchPricing(ctx, src, pa, sku)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %s", src.Name, err))
				failures = append(failures, err)
				return nil
			}
			sheets = append(sheets, *sp)
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(sheets, func(i, j int) bool {
		a, b := sheets[i].LowestPrice, sheets[j].LowestPrice
		if (a == 0) != (b == 0) {
			return b == 0
		}
		return a < b
	})
	return PricingResult{SKU: sku, Pricing: sheets, Errors: errs, Failures: failures}
}

func (o *Orchestrator) fetchPricing(ctx context.Context, src registry.Source, pa scrapers.PricingAdapter, sku string) (*models.SourcePricing, error) {
	start := o.now()
	ctx, cancel := context.WithTimeout(ctx, src.Deadline())
	defer cancel()

	if err := o.throttle(ctx, src); err != nil {
		res := scrapers.Failed(src.Ref(), err)
		o.report(src, start, o.outcome(ctx, res, err), res, slog.String("sku", sku))
		return nil, err
	}

	sp, err := guard(ctx, func(ctx context.Context) (*models.SourcePricing, error) {
		return pa.FetchPricing(ctx, sku)
	})
	if err == nil && sp == nil {
		err = fmt.Errorf("%w: %s returned no price sheet", models.ErrNoResults, src.Name)
	}

	var res models.SourceResult
	if err != nil {
		err = o.describe(src, err)
		res = scrapers.Failed(src.Ref(), err)
	} else {
		res = scrapers.Succeeded(src.Ref(), nil)
	}

	var se *models.StatusError
	throttled := errors.As(err, &se) && se.Throttled()
	o.feedback(src, err == nil, throttled)
	o.report(src, start, o.outcome(ctx, res, err), res, slog.String("sku", sku))

	if err != nil {
		return nil, err
	}
	sp.Source = src.ID
	return sp, nil
}

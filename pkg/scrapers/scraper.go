// Package scrapers defines the contract every source adapter satisfies and
// the helpers they share for turning raw pages into Listings.
package scrapers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sneaker-hunter/pkg/aggregator"
	"sneaker-hunter/pkg/currency"
	"sneaker-hunter/pkg/models"
	"sneaker-hunter/pkg/registry"
)

// Adapter retrieves listings for a free-text query from one source. Fetch
// never returns a Go error: every failure is folded into the result.
type Adapter interface {
	Source() models.SourceRef
	Fetch(ctx context.Context, query string) models.SourceResult
}

// PricingAdapter is implemented by sources that can return a per-size price
// sheet for a style code.
type PricingAdapter interface {
	Adapter
	FetchPricing(ctx context.Context, sku string) (*models.SourcePricing, error)
}

// StyleCode normalizes a requested SKU for matching against a source's
// catalog. A code with no letters or digits matches nothing.
func StyleCode(sku string) (string, error) {
	want := aggregator.NormalizeSKU(sku)
	if want == "" {
		return "", fmt.Errorf("%w: %q is not a style code", models.ErrProductNotFound, sku)
	}
	return want, nil
}

// Base carries what every adapter needs: its registry entry, the shared
// currency converter and a logger. Adapters embed it.
type Base struct {
	Src       registry.Source
	Converter *currency.Converter
	Logger    *slog.Logger

	now func() time.Time
}

func NewBase(src registry.Source, conv *currency.Converter, logger *slog.Logger) Base {
	if conv == nil {
		conv = currency.NewConverter("USD", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Base{
		Src:       src,
		Converter: conv,
		Logger:    logger.With(slog.String("source", src.ID)),
		now:       time.Now,
	}
}

func (b Base) Source() models.SourceRef {
	return b.Src.Ref()
}

// Now is the observation time stamped on listings.
func (b Base) Now() time.Time {
	if b.now == nil {
		return time.Now()
	}
	return b.now()
}

// Finish normalizes listings and folds err into a SourceResult. An empty
// listing set with no error is reported as ErrNoResults.
func (b Base) Finish(listings []models.Listing, err error) models.SourceResult {
	if err != nil {
		return Failed(b.Source(), err)
	}
	out := make([]models.Listing, 0, len(listings))
	seen := make(map[string]bool, len(listings))
	for _, l := range listings {
		l = b.Normalize(l)
		if l.Price <= 0 || seen[l.ID] {
			continue
		}
		seen[l.ID] = true
		out = append(out, l)
	}
	if len(out) == 0 {
		return Failed(b.Source(), models.ErrNoResults)
	}
	return Succeeded(b.Source(), out)
}

// Normalize stamps the source identity, source currency, converted price and
// observation time onto l.
func (b Base) Normalize(l models.Listing) models.Listing {
	l.Source = b.Src.ID
	if l.Currency == "" {
		l.Currency = b.Src.Currency
	}
	if l.Price < 0 {
		l.Price = 0
	}
	l.PriceInDisplayCurrency = b.Converter.ToDisplay(l.Price, l.Currency)
	if !strings.HasPrefix(l.ID, b.Src.ID+":") {
		l.ID = ListingID(b.Src.ID, l.ID)
	}
	if l.Condition == "" {
		l.Condition = models.ConditionNew
	}
	if l.LastSeen.IsZero() {
		l.LastSeen = b.Now()
	}
	return l
}

// SizePrice converts a source price into a SizePrice row.
func (b Base) SizePrice(size string, price float64, code string, available bool, url string) models.SizePrice {
	if code == "" {
		code = b.Src.Currency
	}
	return models.SizePrice{
		Size:                   strings.TrimSpace(size),
		Price:                  price,
		PriceInDisplayCurrency: b.Converter.ToDisplay(price, code),
		Currency:               code,
		Available:              available && price > 0,
		URL:                    url,
	}
}

func Succeeded(src models.SourceRef, listings []models.Listing) models.SourceResult {
	if listings == nil {
		listings = []models.Listing{}
	}
	return models.SourceResult{Success: true, Listings: listings, Source: src}
}

// Failed builds a failed result, classifying bot blocks and upstream
// throttling so the orchestrator can react to them.
func Failed(src models.SourceRef, err error) models.SourceResult {
	res := models.SourceResult{
		Success:  false,
		Listings: []models.Listing{},
		Source:   src,
		Error:    err.Error(),
	}
	if errors.Is(err, models.ErrChallengeBlocked) {
		res.Blocked = true
	}
	var se *models.StatusError
	if errors.As(err, &se) && se.Throttled() {
		res.Throttled = true
	}
	return res
}

// ListingID qualifies a source-native identifier with the source id.
func ListingID(source, native string) string {
	native = strings.TrimSpace(native)
	return fmt.Sprintf("%s:%s", source, strings.ReplaceAll(native, " ", "-"))
}

// CheckStatus turns a non-2xx upstream status into a *StatusError.
func CheckStatus(source string, code int) error {
	if code >= 200 && code < 300 {
		return nil
	}
	if code == 404 {
		return fmt.Errorf("%w: %s responded with HTTP 404", models.ErrProductNotFound, source)
	}
	return &models.StatusError{Source: source, Code: code}
}

package scrapers

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"net/url"
	"strings"
	"unicode"

	"sneaker-hunter/pkg/models"
	"sneaker-hunter/pkg/registry"
)

// WithFallback wraps a when its source is configured to degrade to synthetic
// listings instead of reporting an empty or failed fetch. Sources with the
// default report policy get a unchanged.
func WithFallback(a Adapter, base Base) Adapter {
	if base.Src.Fallback != registry.FallbackSynthetic {
		return a
	}
	return &fallbackAdapter{Adapter: a, base: base}
}

type fallbackAdapter struct {
	Adapter
	base Base
}

func (f *fallbackAdapter) Fetch(ctx context.Context, query string) models.SourceResult {
	res := f.Adapter.Fetch(ctx, query)
	if res.Success && len(res.Listings) > 0 {
		return res
	}
	// A cancelled search is not an upstream failure to paper over.
	if ctx.Err() != nil {
		return res
	}

	f.base.Logger.Warn("serving synthetic listings",
		slog.String("query", query),
		slog.String("reason", res.Error),
	)
	out := f.base.Finish(Synthetic(f.base.Src, query), nil)
	out.Error = fmt.Sprintf("synthetic fallback: %s", res.Error)
	return out
}

func (f *fallbackAdapter) Unwrap() Adapter { return f.Adapter }

// AsPricing finds the PricingAdapter behind any wrappers.
func AsPricing(a Adapter) (PricingAdapter, bool) {
	for a != nil {
		if p, ok := a.(PricingAdapter); ok {
			return p, true
		}
		u, ok := a.(interface{ Unwrap() Adapter })
		if !ok {
			return nil, false
		}
		a = u.Unwrap()
	}
	return nil, false
}

var syntheticSizes = []string{"9", "10", "11"}

// Synthetic builds a small deterministic listing set for (source, query).
// Every listing is flagged Synthetic.
func Synthetic(src registry.Source, query string) []models.Listing {
	query = strings.ToLower(CleanText(query))
	h := fnv.New32a()
	h.Write([]byte(src.ID + "|" + query))
	sum := h.Sum32()

	name := titleCase(query)
	base := 90 + float64(sum%200)
	link := strings.TrimRight(src.BaseURL, "/") + "/search?q=" + url.QueryEscape(query)

	out := make([]models.Listing, 0, len(syntheticSizes))
	for i, size := range syntheticSizes {
		price := math.Round(base * (1 + 0.12*float64(i)))
		out = append(out, models.Listing{
			ID:        fmt.Sprintf("synthetic-%08x-%d", sum, i),
			Name:      name,
			Brand:     BrandOf(name),
			Condition: models.ConditionNew,
			Price:     price,
			Currency:  src.Currency,
			URL:       link,
			Size:      size,
			Synthetic: true,
		})
	}
	return out
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

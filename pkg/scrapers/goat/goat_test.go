package goat

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sneaker-hunter/pkg/currency"
	"sneaker-hunter/pkg/logger"
	"sneaker-hunter/pkg/models"
	"sneaker-hunter/pkg/registry"
)

const searchJSON = `{"productTemplates":[
 {"id":771239,"slug":"dunk-low-black-white-dd1391-100","name":"Dunk Low 'Black White'","brandName":"Nike","color":"White/Black",
  "sku":"DD1391 100","retailPriceCents":11000,"mainPictureUrl":"https://image.goat.com/dunk.png","lowestPriceCents":9900},
 {"id":11,"slug":"dunk-low-used","name":"Dunk Low 'Black White' (Used)","brandName":"Nike","sku":"DD1391 100","lowestPriceCents":6500,"used":true}
]}`

const buyBarJSON = `[
 {"sizeOption":{"presentation":"10","value":10},"shoeCondition":"new_no_defects","stockStatus":"multiple_in_stock","lowestPriceCents":{"amount":11800,"currency":"USD"}},
 {"sizeOption":{"presentation":"8.5","value":8.5},"shoeCondition":"new_no_defects","stockStatus":"single_in_stock","lowestPriceCents":{"amount":10200,"currency":"USD"}},
 {"sizeOption":{"presentation":"8.5","value":8.5},"shoeCondition":"used","stockStatus":"single_in_stock","lowestPriceCents":{"amount":5000,"currency":"USD"}},
 {"sizeOption":{"presentation":"13","value":13},"shoeCondition":"new_no_defects","stockStatus":"not_in_stock","lowestPriceCents":{"amount":0,"currency":"USD"}}
]`

func newTestScraper(t *testing.T, handler http.HandlerFunc) *Scraper {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	src := registry.Source{ID: registry.GOAT, Name: "GOAT", Kind: registry.KindStructuredAPI, BaseURL: ts.URL, Currency: "USD", Enabled: true}
	s, err := NewScraper(src, currency.NewConverter("EUR", nil), logger.Discard())
	require.NoError(t, err)
	return s
}

func serve(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/web-api/v1/product_templates/search":
			fmt.Fprint(w, searchJSON)
		case "/web-api/v1/product_variants/buy_bar_data":
			assert.Equal(t, "771239", r.URL.Query().Get("productTemplateId"))
			fmt.Fprint(w, buyBarJSON)
		default:
			http.NotFound(w, r)
		}
	}
}

func TestScraper_Fetch(t *testing.T) {
	s := newTestScraper(t, serve(t))

	res := s.Fetch(context.Background(), "dunk low panda")
	require.True(t, res.Success, res.Error)
	require.Len(t, res.Listings, 2)

	l := res.Listings[0]
	assert.Equal(t, "goat:771239", l.ID)
	assert.Equal(t, 99.0, l.Price)
	assert.Equal(t, 110.0, l.RetailPrice)
	assert.Equal(t, "USD", l.Currency)
	// 99 USD at 1.08 USD per EUR
	assert.InDelta(t, 91.67, l.PriceInDisplayCurrency, 0.01)
	assert.Equal(t, s.Src.BaseURL+"/sneakers/dunk-low-black-white-dd1391-100", l.URL)
	assert.Equal(t, models.ConditionUsed, res.Listings[1].Condition)
}

func TestScraper_FetchUpstreamError(t *testing.T) {
	s := newTestScraper(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	res := s.Fetch(context.Background(), "dunk")
	assert.False(t, res.Success)
	assert.False(t, res.Throttled)
	assert.Contains(t, res.Error, "HTTP 502")
}

func TestScraper_FetchPricing(t *testing.T) {
	s := newTestScraper(t, serve(t))

	sp, err := s.FetchPricing(context.Background(), "DD1391-100")
	require.NoError(t, err)

	require.Len(t, sp.Sizes, 3, "used options are skipped")
	assert.Equal(t, "8.5", sp.Sizes[0].Size)
	assert.Equal(t, 102.0, sp.Sizes[0].Price)
	assert.False(t, sp.Sizes[2].Available)
	assert.InDelta(t, 94.44, sp.LowestPrice, 0.01)
	assert.Equal(t, "goat", sp.Source)
}

func TestScraper_FetchPricingRejectsCodeWithoutAlphanumerics(t *testing.T) {
	hits := 0
	s := newTestScraper(t, func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.NotFound(w, r)
	})

	_, err := s.FetchPricing(context.Background(), "--")
	assert.ErrorIs(t, err, models.ErrProductNotFound)
	assert.Zero(t, hits)
}

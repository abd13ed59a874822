package stockx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"sneaker-hunter/pkg/currency"
	"sneaker-hunter/pkg/logger"
	"sneaker-hunter/pkg/models"
	"sneaker-hunter/pkg/registry"
)

const browseJSON = `{"Products":[
 {"id":"b1f0","title":"Nike Dunk Low Retro White Black Panda","brand":"Nike","colorway":"White/Black","styleId":"DD1391-100",
  "retailPrice":110,"urlKey":"nike-dunk-low-retro-white-black-2021","media":{"thumbUrl":"https://images.stockx.com/dunk.jpg"},
  "market":{"lowestAsk":0,"lastSale":104,"currencyCode":"USD"}},
 {"id":"c2a1","title":"Nike Dunk Low Grey Fog","brand":"Nike","styleId":"DD1391-103","urlKey":"nike-dunk-low-grey-fog",
  "market":{"lowestAsk":128,"currencyCode":"USD"}}
]}`

const productJSON = `{"Product":{"title":"Nike Dunk Low Retro White Black Panda","urlKey":"nike-dunk-low-retro-white-black-2021",
 "children":{
  "a":{"shoeSize":"10.5","market":{"lowestAsk":121,"currencyCode":"USD"}},
  "b":{"shoeSize":"9","market":{"lowestAsk":0,"currencyCode":"USD"}},
  "c":{"shoeSize":"10","market":{"lowestAsk":115,"currencyCode":"USD"}}
 }}}`

func newTestScraper(t *testing.T, handler http.HandlerFunc) *Scraper {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	src := registry.Source{ID: registry.StockX, Name: "StockX", Kind: registry.KindStructuredAPI, BaseURL: ts.URL, Currency: "USD", Country: "US", Enabled: true}
	s, err := NewScraper(src, currency.NewConverter("USD", nil), logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, body)
}

func TestScraper_Fetch(t *testing.T) {
	s := newTestScraper(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/browse" || r.URL.Query().Get("_search") != "dunk low" {
			t.Errorf("unexpected request %s", r.URL)
		}
		writeJSON(w, browseJSON)
	})

	res := s.Fetch(context.Background(), "dunk low")
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if len(res.Listings) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(res.Listings))
	}

	panda := res.Listings[0]
	if panda.ID != "stockx:b1f0" || panda.SKU != "DD1391-100" || panda.Source != "stockx" {
		t.Errorf("unexpected identity %+v", panda)
	}
	if panda.Price != 104 || panda.PriceInDisplayCurrency != 104 {
		t.Errorf("expected last sale to stand in for a missing ask, got %v", panda.Price)
	}
	if panda.ImageURL != "https://images.stockx.com/dunk.jpg" {
		t.Errorf("unexpected image %q", panda.ImageURL)
	}
	if want := s.Src.BaseURL + "/nike-dunk-low-retro-white-black-2021"; panda.URL != want {
		t.Errorf("expected url %s, got %s", want, panda.URL)
	}
}

func TestScraper_FetchThrottled(t *testing.T) {
	s := newTestScraper(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	res := s.Fetch(context.Background(), "dunk")
	if res.Success || !res.Throttled {
		t.Errorf("expected a throttled failure, got %+v", res)
	}
}

func TestScraper_FetchEmpty(t *testing.T) {
	s := newTestScraper(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"Products":[]}`)
	})

	res := s.Fetch(context.Background(), "zzzz")
	if res.Success || res.Error == "" {
		t.Errorf("expected zero results to be reported, got %+v", res)
	}
}

func TestScraper_FetchPricing(t *testing.T) {
	s := newTestScraper(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/browse":
			writeJSON(w, browseJSON)
		case "/api/products/nike-dunk-low-retro-white-black-2021":
			writeJSON(w, productJSON)
		default:
			http.NotFound(w, r)
		}
	})

	sp, err := s.FetchPricing(context.Background(), "dd1391 100")
	if err != nil {
		t.Fatal(err)
	}
	var sizes []string
	for _, sz := range sp.Sizes {
		sizes = append(sizes, sz.Size)
	}
	if fmt.Sprint(sizes) != "[9 10 10.5]" {
		t.Errorf("expected sizes sorted numerically, got %v", sizes)
	}
	if sp.LowestPrice != 115 {
		t.Errorf("expected lowest available ask 115, got %v", sp.LowestPrice)
	}
	if sp.Sizes[0].Available {
		t.Error("a size with no ask must not be available")
	}
}

func TestScraper_FetchPricingUnknownSKU(t *testing.T) {
	s := newTestScraper(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, browseJSON)
	})

	_, err := s.FetchPricing(context.Background(), "XX0000-000")
	if !errors.Is(err, models.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound, got %v", err)
	}
}

func TestScraper_FetchPricingRejectsCodeWithoutAlphanumerics(t *testing.T) {
	s := newTestScraper(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
		writeJSON(w, browseJSON)
	})

	_, err := s.FetchPricing(context.Background(), " -- ")
	if !errors.Is(err, models.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound, got %v", err)
	}
}

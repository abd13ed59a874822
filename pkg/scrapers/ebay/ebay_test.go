package ebay

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"sneaker-hunter/pkg/currency"
	"sneaker-hunter/pkg/logger"
	"sneaker-hunter/pkg/models"
	"sneaker-hunter/pkg/registry"
)

const resultsHTML = `
<!DOCTYPE html>
<html>
<body>
<ul class="srp-results">
  <li class="s-item">
    <div class="s-item__title">Shop on eBay</div>
    <span class="s-item__price">$20.00</span>
    <a class="s-item__link" href="https://ebay.com/itm/123456">link</a>
  </li>
  <li class="s-item">
    <img class="s-item__image-img" src="https://i.ebayimg.com/panda.jpg">
    <a class="s-item__link" href="https://www.ebay.com/itm/Nike-Dunk-Low-Panda/204512345678?hash=item2f">
      <div class="s-item__title"><span>New Listing</span>Nike Dunk Low Retro Panda DD1391-100 Size 10</div>
    </a>
    <span class="SECONDARY_INFO">Brand New</span>
    <span class="s-item__price">$1,105.00</span>
  </li>
  <li class="s-item">
    <img class="s-item__image-img" src="data:image/gif;base64,R0lGOD" data-src="https://i.ebayimg.com/worn.jpg">
    <a class="s-item__link" href="https://www.ebay.com/itm/204598765432">
      <div class="s-item__title">Nike Dunk Low Panda sz 9.5</div>
    </a>
    <span class="SECONDARY_INFO">Pre-Owned</span>
    <span class="s-item__price">$85.00 to $95.00</span>
  </li>
  <li class="s-item">
    <a class="s-item__link" href="https://www.ebay.com/itm/204500000001">
      <div class="s-item__title">Xbox 360 Console</div>
    </a>
    <span class="s-item__price">$60.00</span>
  </li>
</ul>
</body>
</html>
`

func newTestScraper(t *testing.T, handler http.HandlerFunc) *Scraper {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	src := registry.Source{ID: registry.EBay, Name: "eBay", Kind: registry.KindStructuredAPI, BaseURL: ts.URL, Currency: "USD", Enabled: true}
	s, err := NewScraper(src, currency.NewConverter("USD", nil), logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestScraper_Fetch(t *testing.T) {
	s := newTestScraper(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sch/i.html" || r.URL.Query().Get("_nkw") != "dunk low panda" {
			t.Errorf("unexpected request %s", r.URL)
		}
		fmt.Fprint(w, resultsHTML+"\n")
	})

	res := s.Fetch(context.Background(), "dunk low panda")
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if len(res.Listings) != 2 {
		t.Fatalf("expected placeholder and irrelevant items to be dropped, got %d listings", len(res.Listings))
	}

	first := res.Listings[0]
	if first.ID != "ebay:204512345678" {
		t.Errorf("unexpected id %q", first.ID)
	}
	if first.Name != "Nike Dunk Low Retro Panda DD1391-100 Size 10" {
		t.Errorf("unexpected name %q", first.Name)
	}
	if first.Price != 1105 || first.Brand != "Nike" || first.Condition != models.ConditionNew {
		t.Errorf("unexpected listing %+v", first)
	}
	if first.URL != "https://www.ebay.com/itm/Nike-Dunk-Low-Panda/204512345678" {
		t.Errorf("expected tracking query to be stripped, got %q", first.URL)
	}

	second := res.Listings[1]
	if second.Price != 85 || second.Condition != models.ConditionUsed {
		t.Errorf("expected used listing at the low end of the range, got %+v", second)
	}
	if second.ImageURL != "https://i.ebayimg.com/worn.jpg" {
		t.Errorf("expected lazy image source, got %q", second.ImageURL)
	}
}

func TestScraper_FetchForbidden(t *testing.T) {
	s := newTestScraper(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	res := s.Fetch(context.Background(), "dunk")
	if res.Success || !res.Throttled {
		t.Errorf("expected throttled failure, got %+v", res)
	}
}

func TestScraper_FetchCancelled(t *testing.T) {
	s := newTestScraper(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, resultsHTML+"\n")
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if res := s.Fetch(ctx, "dunk"); res.Success {
		t.Error("expected a cancelled fetch to fail")
	}
}

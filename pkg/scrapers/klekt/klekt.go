// Package klekt scrapes KLEKT, a Next.js storefront whose pages embed their
// full data set in the __NEXT_DATA__ script.
package klekt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/gocolly/colly/v2"

	"sneaker-hunter/pkg/aggregator"
	"sneaker-hunter/pkg/browser"
	"sneaker-hunter/pkg/currency"
	"sneaker-hunter/pkg/models"
	"sneaker-hunter/pkg/registry"
	"sneaker-hunter/pkg/scrapers"
)

type Scraper struct {
	scrapers.Base
	Collector *colly.Collector
}

func NewScraper(src registry.Source, conv *currency.Converter, logger *slog.Logger) (*Scraper, error) {
	u, err := url.Parse(src.BaseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("klekt: invalid base url %q", src.BaseURL)
	}
	c := colly.NewCollector(
		colly.AllowedDomains(u.Hostname()),
		colly.UserAgent(browser.DefaultUserAgent),
	)
	c.SetRequestTimeout(src.Deadline())
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Language", "en-GB,en;q=0.9")
	})
	return &Scraper{
		Base:      scrapers.NewBase(src, conv, logger),
		Collector: c,
	}, nil
}

type money struct {
	// Amount is in minor units.
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (m money) value() float64 {
	return float64(m.Amount) / 100
}

type item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Brand       string `json:"brand"`
	Colorway    string `json:"colorway"`
	SKU         string `json:"sku"`
	Slug        string `json:"slug"`
	Image       string `json:"image"`
	Condition   string `json:"condition"`
	LowestPrice money  `json:"lowestPrice"`
	RetailPrice money  `json:"retailPrice"`
}

type searchData struct {
	Props struct {
		PageProps struct {
			SearchResults struct {
				Items []item `json:"items"`
			} `json:"searchResults"`
		} `json:"pageProps"`
	} `json:"props"`
}

type productData struct {
	Props struct {
		PageProps struct {
			Product struct {
				item
				Sizes []struct {
					Size      string `json:"size"`
					Price     money  `json:"price"`
					Available bool   `json:"available"`
				} `json:"sizes"`
			} `json:"product"`
		} `json:"pageProps"`
	} `json:"props"`
}

// nextData visits pageURL and decodes its __NEXT_DATA__ payload into out.
func (s *Scraper) nextData(ctx context.Context, pageURL string, out any) error {
	c := s.Collector.Clone()
	c.Context = ctx

	var found bool
	var decodeErr error
	var status int

	c.OnHTML("script", func(e *colly.HTMLElement) {
		if found || e.Attr("id") != "__NEXT_DATA__" {
			return
		}
		found = true
		decodeErr = json.Unmarshal([]byte(strings.TrimSpace(e.Text)), out)
	})
	c.OnError(func(r *colly.Response, _ error) {
		status = r.StatusCode
	})

	s.Logger.Debug("visiting", slog.String("url", pageURL))
	if err := c.Visit(pageURL); err != nil {
		if serr := scrapers.CheckStatus(s.Src.Name, status); status != 0 && serr != nil {
			return serr
		}
		return fmt.Errorf("klekt visit: %w", err)
	}
	if !found {
		return fmt.Errorf("%w: %s page has no embedded data", models.ErrSourceUnavailable, s.Src.Name)
	}
	if decodeErr != nil {
		return fmt.Errorf("klekt decode page data: %w", decodeErr)
	}
	return nil
}

func (s *Scraper) productURL(slug string) string {
	return strings.TrimRight(s.Src.BaseURL, "/") + "/product/" + slug
}

func (s *Scraper) Fetch(ctx context.Context, query string) models.SourceResult {
	var data searchData
	pageURL := strings.TrimRight(s.Src.BaseURL, "/") + "/browse?search=" + url.QueryEscape(query)
	if err := s.nextData(ctx, pageURL, &data); err != nil {
		return s.Finish(nil, err)
	}

	items := data.Props.PageProps.SearchResults.Items
	listings := make([]models.Listing, 0, len(items))
	for _, it := range items {
		listings = append(listings, models.Listing{
			ID:          it.ID,
			Name:        it.Name,
			Brand:       it.Brand,
			Colorway:    it.Colorway,
			SKU:         it.SKU,
			ImageURL:    it.Image,
			RetailPrice: it.RetailPrice.value(),
			Condition:   scrapers.DetectCondition(it.Condition),
			Price:       it.LowestPrice.value(),
			Currency:    it.LowestPrice.Currency,
			URL:         s.productURL(it.Slug),
		})
	}
	return s.Finish(listings, nil)
}

// FetchPricing finds sku in search and reads the size table of its product
// page.
func (s *Scraper) FetchPricing(ctx context.Context, sku string) (*models.SourcePricing, error) {
	want, err := scrapers.StyleCode(sku)
	if err != nil {
		return nil, err
	}
	var search searchData
	if err := s.nextData(ctx, strings.TrimRight(s.Src.BaseURL, "/")+"/browse?search="+url.QueryEscape(sku), &search); err != nil {
		return nil, err
	}
	slug := ""
	for _, it := range search.Props.PageProps.SearchResults.Items {
		if aggregator.NormalizeSKU(it.SKU) == want {
			slug = it.Slug
			break
		}
	}
	if slug == "" {
		return nil, fmt.Errorf("%w: %s has no product with style code %s", models.ErrProductNotFound, s.Src.Name, sku)
	}

	var data productData
	link := s.productURL(slug)
	if err := s.nextData(ctx, link, &data); err != nil {
		return nil, err
	}
	p := data.Props.PageProps.Product
	sizes := make([]models.SizePrice, 0, len(p.Sizes))
	for _, sz := range p.Sizes {
		sizes = append(sizes, s.SizePrice(sz.Size, sz.Price.value(), sz.Price.Currency, sz.Available, link+"?size="+url.QueryEscape(sz.Size)))
	}
	sp := models.NewSourcePricing(s.Src.ID, p.Name, link, p.Image, sizes)
	return &sp, nil
}

var _ scrapers.PricingAdapter = (*Scraper)(nil)

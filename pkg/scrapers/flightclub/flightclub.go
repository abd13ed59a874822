// Package flightclub scrapes Flight Club through the shared browser. Search
// and product pages are client-rendered and sit behind a bot challenge.
package flightclub

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"sneaker-hunter/pkg/aggregator"
	"sneaker-hunter/pkg/currency"
	"sneaker-hunter/pkg/models"
	"sneaker-hunter/pkg/registry"
	"sneaker-hunter/pkg/scrapers"
)

type Scraper struct {
	scrapers.Base
	Renderer scrapers.Renderer
}

func NewScraper(src registry.Source, r scrapers.Renderer, conv *currency.Converter, logger *slog.Logger) *Scraper {
	return &Scraper{
		Base:     scrapers.NewBase(src, conv, logger),
		Renderer: r,
	}
}

func (s *Scraper) searchURL(query string) string {
	return strings.TrimRight(s.Src.BaseURL, "/") + "/catalogsearch/result?q=" + url.QueryEscape(query)
}

func (s *Scraper) Fetch(ctx context.Context, query string) models.SourceResult {
	var listings []models.Listing
	err := s.Renderer.Render(ctx, s.searchURL(query), s.Src.Name, func(doc *goquery.Document) error {
		listings = s.parseSearch(doc)
		if len(listings) == 0 {
			return models.ErrNoResults
		}
		return nil
	})
	return s.Finish(listings, err)
}

// parseSearch prefers the page's JSON-LD item list and falls back to the
// product tiles when it is missing.
func (s *Scraper) parseSearch(doc *goquery.Document) []models.Listing {
	var out []models.Listing
	for _, p := range scrapers.ProductsFromJSONLD(doc) {
		if l, ok := scrapers.ListingFromLD(p, s.Src.BaseURL); ok {
			out = append(out, l)
		}
	}
	if len(out) > 0 {
		return out
	}

	doc.Find(`[data-qa="ProductItemsUrl"], a.product-tile`).Each(func(_ int, tile *goquery.Selection) {
		href, _ := tile.Attr("href")
		name := scrapers.CleanText(tile.Find(`[data-qa="ProductItemTitle"], .product-tile__title`).First().Text())
		price, ok := scrapers.ParsePrice(tile.Find(`[data-qa="ProductItemPrice"], .product-tile__price`).First().Text())
		if href == "" || name == "" || !ok {
			return
		}
		link := scrapers.ResolveURL(s.Src.BaseURL, href)
		img, _ := tile.Find("img").First().Attr("src")
		out = append(out, models.Listing{
			ID:       strings.Trim(strings.SplitN(href, "?", 2)[0], "/"),
			Name:     name,
			Brand:    scrapers.BrandOf(name),
			ImageURL: scrapers.ResolveURL(s.Src.BaseURL, img),
			Price:    price,
			URL:      link,
		})
	})
	return out
}

// FetchPricing searches for sku, opens the matching product page and reads
// the per-size offers from its JSON-LD.
func (s *Scraper) FetchPricing(ctx context.Context, sku string) (*models.SourcePricing, error) {
	want, err := scrapers.StyleCode(sku)
	if err != nil {
		return nil, err
	}
	var link string
	err = s.Renderer.Render(ctx, s.searchURL(sku), s.Src.Name, func(doc *goquery.Document) error {
		for _, l := range s.parseSearch(doc) {
			if aggregator.NormalizeSKU(l.SKU) == want || strings.Contains(aggregator.NormalizeSKU(l.Name), want) {
				link = l.URL
				return nil
			}
		}
		return fmt.Errorf("%w: %s has no product with style code %s", models.ErrProductNotFound, s.Src.Name, sku)
	})
	if err != nil {
		return nil, err
	}

	var sp *models.SourcePricing
	err = s.Renderer.Render(ctx, link, s.Src.Name, func(doc *goquery.Document) error {
		sp = s.parseProduct(doc, link)
		if sp == nil {
			return fmt.Errorf("%w: %s product page has no size offers", models.ErrNoResults, s.Src.Name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sp, nil
}

func (s *Scraper) parseProduct(doc *goquery.Document, link string) *models.SourcePricing {
	for _, p := range scrapers.ProductsFromJSONLD(doc) {
		offers := p.OfferList()
		sizes := make([]models.SizePrice, 0, len(offers))
		for _, o := range offers {
			size := o.Size
			if size == "" {
				size = o.Name
			}
			price, ok := o.Amount()
			if size == "" || !ok {
				continue
			}
			sizes = append(sizes, s.SizePrice(size, price, o.PriceCurrency, o.InStock(), scrapers.ResolveURL(s.Src.BaseURL, o.URL)))
		}
		if len(sizes) == 0 {
			continue
		}
		sp := models.NewSourcePricing(s.Src.ID, scrapers.CleanText(p.Name), link, scrapers.ResolveURL(s.Src.BaseURL, p.ImageURL()), sizes)
		return &sp
	}
	return nil
}

var _ scrapers.PricingAdapter = (*Scraper)(nil)

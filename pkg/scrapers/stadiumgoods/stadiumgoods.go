// Package stadiumgoods scrapes Stadium Goods search results through the
// shared browser.
package stadiumgoods

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"sneaker-hunter/pkg/currency"
	"sneaker-hunter/pkg/models"
	"sneaker-hunter/pkg/registry"
	"sneaker-hunter/pkg/scrapers"
)

const (
	cardSelector  = `[data-testid="productCard"]`
	nameSelector  = `[data-testid="productCardName"]`
	brandSelector = `[data-testid="productCardBrand"]`
	priceSelector = `[data-testid="productCardPrice"]`
)

// Sale cards carry both prices; the final one is what the buyer pays.
const finalPriceSelector = `[data-testid="productCardFinalPrice"]`

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

func (s *Scraper) Fetch(ctx context.Context, query string) models.SourceResult {
	pageURL := strings.TrimRight(s.Src.BaseURL, "/") + "/en-us/search?q=" + url.QueryEscape(query)

	var listings []models.Listing
	err := s.Renderer.Render(ctx, pageURL, s.Src.Name, func(doc *goquery.Document) error {
		listings = s.parseCards(doc)
		if len(listings) == 0 {
			for _, p := range scrapers.ProductsFromJSONLD(doc) {
				if l, ok := scrapers.ListingFromLD(p, s.Src.BaseURL); ok {
					listings = append(listings, l)
				}
			}
		}
		if len(listings) == 0 {
			return models.ErrNoResults
		}
		return nil
	})
	return s.Finish(listings, err)
}

func (s *Scraper) parseCards(doc *goquery.Document) []models.Listing {
	var out []models.Listing
	doc.Find(cardSelector).Each(func(_ int, card *goquery.Selection) {
		a := card.Find("a[href]").First()
		href, _ := a.Attr("href")
		name := scrapers.CleanText(card.Find(nameSelector).First().Text())

		priceText := card.Find(finalPriceSelector).First().Text()
		if strings.TrimSpace(priceText) == "" {
			priceText = card.Find(priceSelector).First().Text()
		}
		price, ok := scrapers.ParsePrice(priceText)
		if href == "" || name == "" || !ok {
			return
		}

		brand := scrapers.CleanText(card.Find(brandSelector).First().Text())
		if brand == "" {
			brand = scrapers.BrandOf(name)
		}
		if !strings.HasPrefix(strings.ToLower(name), strings.ToLower(brand)) {
			name = brand + " " + name
		}

		img := card.Find("img").First()
		src, _ := img.Attr("src")
		if f := strings.Fields(img.AttrOr("srcset", "")); src == "" && len(f) > 0 {
			src = f[0]
		}

		id := card.AttrOr("data-product-id", "")
		if id == "" {
			id = strings.Trim(strings.SplitN(href, "?", 2)[0], "/")
			id = id[strings.LastIndex(id, "/")+1:]
		}

		out = append(out, models.Listing{
			ID:       id,
			Name:     name,
			Brand:    brand,
			ImageURL: scrapers.ResolveURL(s.Src.BaseURL, src),
			Price:    price,
			URL:      scrapers.ResolveURL(s.Src.BaseURL, href),
		})
	})
	return out
}

var _ scrapers.Adapter = (*Scraper)(nil)

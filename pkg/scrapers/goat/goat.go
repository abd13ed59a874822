// Package goat reads GOAT's product template search and buy bar endpoints.
// GOAT reports every amount in cents.
package goat

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"sneaker-hunter/pkg/aggregator"
	"sneaker-hunter/pkg/currency"
	"sneaker-hunter/pkg/models"
	"sneaker-hunter/pkg/registry"
	"sneaker-hunter/pkg/scrapers"
)

type Scraper struct {
	scrapers.Base
	Client *resty.Client
}

func NewScraper(src registry.Source, conv *currency.Converter, logger *slog.Logger) (*Scraper, error) {
	client, err := scrapers.NewHTTPClient(src.BaseURL, src.Deadline())
	if err != nil {
		return nil, fmt.Errorf("goat: %w", err)
	}
	return &Scraper{
		Base:   scrapers.NewBase(src, conv, logger),
		Client: client,
	}, nil
}

type searchResponse struct {
	ProductTemplates []template `json:"productTemplates"`
}

type template struct {
	ID               int64  `json:"id"`
	Slug             string `json:"slug"`
	Name             string `json:"name"`
	BrandName        string `json:"brandName"`
	Color            string `json:"color"`
	SKU              string `json:"sku"`
	RetailPriceCents int64  `json:"retailPriceCents"`
	MainPictureURL   string `json:"mainPictureUrl"`
	LowestPriceCents int64  `json:"lowestPriceCents"`
	Used             bool   `json:"used"`
}

func cents(v int64) float64 {
	return float64(v) / 100
}

func (s *Scraper) Fetch(ctx context.Context, query string) models.SourceResult {
	templates, err := s.search(ctx, query)
	if err != nil {
		return s.Finish(nil, err)
	}

	listings := make([]models.Listing, 0, len(templates))
	for _, t := range templates {
		cond := models.ConditionNew
		if t.Used {
			cond = models.ConditionUsed
		}
		listings = append(listings, models.Listing{
			ID:          strconv.FormatInt(t.ID, 10),
			Name:        t.Name,
			Brand:       t.BrandName,
			Colorway:    t.Color,
			SKU:         t.SKU,
			ImageURL:    t.MainPictureURL,
			RetailPrice: cents(t.RetailPriceCents),
			Condition:   cond,
			Price:       cents(t.LowestPriceCents),
			URL:         s.productURL(t.Slug),
		})
	}
	return s.Finish(listings, nil)
}

func (s *Scraper) search(ctx context.Context, query string) ([]template, error) {
	var out searchResponse
	resp, err := s.Client.R().
		SetContext(ctx).
		SetQueryParam("query", query).
		SetQueryParam("pageLimit", "20").
		SetResult(&out).
		Get("/web-api/v1/product_templates/search")
	if err != nil {
		return nil, fmt.Errorf("goat search: %w", err)
	}
	if err := scrapers.CheckStatus(s.Src.Name, resp.StatusCode()); err != nil {
		return nil, err
	}
	return out.ProductTemplates, nil
}

func (s *Scraper) productURL(slug string) string {
	return strings.TrimRight(s.Src.BaseURL, "/") + "/sneakers/" + slug
}

type buyBarOption struct {
	SizeOption struct {
		Presentation string  `json:"presentation"`
		Value        float64 `json:"value"`
	} `json:"sizeOption"`
	ShoeCondition    string `json:"shoeCondition"`
	BoxCondition     string `json:"boxCondition"`
	StockStatus      string `json:"stockStatus"`
	LowestPriceCents struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	} `json:"lowestPriceCents"`
}

// FetchPricing finds the template for sku and reads the new-condition buy
// bar, one option per size.
func (s *Scraper) FetchPricing(ctx context.Context, sku string) (*models.SourcePricing, error) {
	want, err := scrapers.StyleCode(sku)
	if err != nil {
		return nil, err
	}
	templates, err := s.search(ctx, sku)
	if err != nil {
		return nil, err
	}
	var match *template
	for i := range templates {
		if aggregator.NormalizeSKU(templates[i].SKU) == want {
			match = &templates[i]
			break
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s has no product with style code %s", models.ErrProductNotFound, s.Src.Name, sku)
	}

	var options []buyBarOption
	resp, err := s.Client.R().
		SetContext(ctx).
		SetQueryParam("productTemplateId", strconv.FormatInt(match.ID, 10)).
		SetResult(&options).
		Get("/web-api/v1/product_variants/buy_bar_data")
	if err != nil {
		return nil, fmt.Errorf("goat buy bar %d: %w", match.ID, err)
	}
	if err := scrapers.CheckStatus(s.Src.Name, resp.StatusCode()); err != nil {
		return nil, err
	}

	link := s.productURL(match.Slug)
	sizes := make([]models.SizePrice, 0, len(options))
	for _, o := range options {
		if o.ShoeCondition != "" && o.ShoeCondition != "new_no_defects" {
			continue
		}
		size := o.SizeOption.Presentation
		if size == "" {
			size = strconv.FormatFloat(o.SizeOption.Value, 'f', -1, 64)
		}
		price := cents(o.LowestPriceCents.Amount)
		available := o.StockStatus != "not_in_stock" && price > 0
		sizes = append(sizes, s.SizePrice(size, price, o.LowestPriceCents.Currency, available, link+"?size="+size))
	}
	sp := models.NewSourcePricing(s.Src.ID, match.Name, link, match.MainPictureURL, sizes)
	return &sp, nil
}

var _ scrapers.PricingAdapter = (*Scraper)(nil)

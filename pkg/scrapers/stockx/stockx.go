// Package stockx reads StockX's browse and product JSON endpoints.
package stockx

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-resty/resty/v2"

	"sneaker-hunter/pkg/aggregator"
	"sneaker-hunter/pkg/currency"
	"sneaker-hunter/pkg/models"
	"sneaker-hunter/pkg/registry"
	"sneaker-hunter/pkg/scrapers"
)

const pageSize = 20

type Scraper struct {
	scrapers.Base
	Client *resty.Client
}

func NewScraper(src registry.Source, conv *currency.Converter, logger *slog.Logger) (*Scraper, error) {
	client, err := scrapers.NewHTTPClient(src.BaseURL, src.Deadline())
	if err != nil {
		return nil, fmt.Errorf("stockx: %w", err)
	}
	client.SetHeader("App-Platform", "Iron")
	return &Scraper{
		Base:   scrapers.NewBase(src, conv, logger),
		Client: client,
	}, nil
}

type browseResponse struct {
	Products []product `json:"Products"`
}

type product struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Brand       string  `json:"brand"`
	Colorway    string  `json:"colorway"`
	StyleID     string  `json:"styleId"`
	RetailPrice float64 `json:"retailPrice"`
	URLKey      string  `json:"urlKey"`
	Condition   string  `json:"condition"`
	Media       struct {
		ImageURL string `json:"imageUrl"`
		ThumbURL string `json:"thumbUrl"`
	} `json:"media"`
	Market struct {
		LowestAsk    float64 `json:"lowestAsk"`
		LastSale     float64 `json:"lastSale"`
		CurrencyCode string  `json:"currencyCode"`
	} `json:"market"`
}

func (p product) image() string {
	if p.Media.ImageURL != "" {
		return p.Media.ImageURL
	}
	return p.Media.ThumbURL
}

func (s *Scraper) Fetch(ctx context.Context, query string) models.SourceResult {
	products, err := s.browse(ctx, query)
	if err != nil {
		return s.Finish(nil, err)
	}

	listings := make([]models.Listing, 0, len(products))
	for _, p := range products {
		price := p.Market.LowestAsk
		if price <= 0 {
			price = p.Market.LastSale
		}
		listings = append(listings, models.Listing{
			ID:          p.ID,
			Name:        p.Title,
			Brand:       p.Brand,
			Colorway:    p.Colorway,
			SKU:         p.StyleID,
			ImageURL:    p.image(),
			RetailPrice: p.RetailPrice,
			Condition:   scrapers.DetectCondition(p.Condition),
			Price:       price,
			Currency:    p.Market.CurrencyCode,
			URL:         s.productURL(p.URLKey),
		})
	}
	return s.Finish(listings, nil)
}

func (s *Scraper) browse(ctx context.Context, query string) ([]product, error) {
	var out browseResponse
	resp, err := s.Client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"_search":        query,
			"page":           "1",
			"resultsPerPage": fmt.Sprint(pageSize),
			"currency":       s.Src.Currency,
			"country":        s.Src.Country,
		}).
		SetResult(&out).
		Get("/api/browse")
	if err != nil {
		return nil, fmt.Errorf("stockx browse: %w", err)
	}
	if err := scrapers.CheckStatus(s.Src.Name, resp.StatusCode()); err != nil {
		return nil, err
	}
	return out.Products, nil
}

func (s *Scraper) productURL(urlKey string) string {
	return strings.TrimRight(s.Src.BaseURL, "/") + "/" + urlKey
}

type productResponse struct {
	Product struct {
		Title   string `json:"title"`
		URLKey  string `json:"urlKey"`
		StyleID string `json:"styleId"`
		Media   struct {
			ImageURL string `json:"imageUrl"`
		} `json:"media"`
		Children map[string]struct {
			ShoeSize string `json:"shoeSize"`
			Market   struct {
				LowestAsk    float64 `json:"lowestAsk"`
				CurrencyCode string  `json:"currencyCode"`
			} `json:"market"`
		} `json:"children"`
	} `json:"Product"`
}

// FetchPricing resolves sku through the browse endpoint and then reads the
// per-size asks of the matching product.
func (s *Scraper) FetchPricing(ctx context.Context, sku string) (*models.SourcePricing, error) {
	want, err := scrapers.StyleCode(sku)
	if err != nil {
		return nil, err
	}
	products, err := s.browse(ctx, sku)
	if err != nil {
		return nil, err
	}
	var match *product
	for i := range products {
		if aggregator.NormalizeSKU(products[i].StyleID) == want {
			match = &products[i]
			break
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s has no product with style code %s", models.ErrProductNotFound, s.Src.Name, sku)
	}

	var out productResponse
	resp, err := s.Client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"includes": "market", "currency": s.Src.Currency}).
		SetResult(&out).
		Get("/api/products/" + match.URLKey)
	if err != nil {
		return nil, fmt.Errorf("stockx product %s: %w", match.URLKey, err)
	}
	if err := scrapers.CheckStatus(s.Src.Name, resp.StatusCode()); err != nil {
		return nil, err
	}

	link := s.productURL(match.URLKey)
	sizes := make([]models.SizePrice, 0, len(out.Product.Children))
	for _, c := range out.Product.Children {
		sizes = append(sizes, s.SizePrice(c.ShoeSize, c.Market.LowestAsk, c.Market.CurrencyCode, c.Market.LowestAsk > 0, link+"?size="+c.ShoeSize))
	}
	image := out.Product.Media.ImageURL
	if image == "" {
		image = match.image()
	}
	sp := models.NewSourcePricing(s.Src.ID, match.Title, link, image, sizes)
	return &sp, nil
}

var _ scrapers.PricingAdapter = (*Scraper)(nil)

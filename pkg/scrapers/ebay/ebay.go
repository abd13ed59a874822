// Package ebay scrapes eBay's server-rendered search results page.
package ebay

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/gocolly/colly/v2"

	"sneaker-hunter/pkg/browser"
	"sneaker-hunter/pkg/currency"
	"sneaker-hunter/pkg/models"
	"sneaker-hunter/pkg/registry"
	"sneaker-hunter/pkg/scrapers"
)

// Athletic shoes category, keeps accessories and apparel out.
const sneakerCategory = "15709"

type Scraper struct {
	scrapers.Base
	// Collector is the template cloned for every fetch.
	Collector *colly.Collector
	Relevance float64
}

func NewScraper(src registry.Source, conv *currency.Converter, logger *slog.Logger) (*Scraper, error) {
	u, err := url.Parse(src.BaseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("ebay: invalid base url %q", src.BaseURL)
	}
	c := colly.NewCollector(
		colly.AllowedDomains(u.Hostname()),
		colly.UserAgent(browser.DefaultUserAgent),
	)
	c.SetRequestTimeout(src.Deadline())
	return &Scraper{
		Base:      scrapers.NewBase(src, conv, logger),
		Collector: c,
		Relevance: scrapers.DefaultRelevance,
	}, nil
}

var itemID = regexp.MustCompile(`/itm/(?:[^/]+/)?(\d+)`)

func (s *Scraper) searchURL(query string) string {
	v := url.Values{}
	v.Set("_nkw", query)
	v.Set("_sacat", sneakerCategory)
	v.Set("LH_BIN", "1")
	return strings.TrimRight(s.Src.BaseURL, "/") + "/sch/i.html?" + v.Encode()
}

func (s *Scraper) Fetch(ctx context.Context, query string) models.SourceResult {
	c := s.Collector.Clone()
	c.Context = ctx

	var listings []models.Listing
	var status int

	c.OnHTML("li.s-item", func(e *colly.HTMLElement) {
		title := scrapers.CleanText(e.ChildText(".s-item__title"))
		title = strings.TrimPrefix(title, "New Listing")
		title = strings.TrimSpace(title)
		if title == "" || strings.EqualFold(title, "Shop on eBay") {
			return
		}
		price, ok := scrapers.ParsePrice(e.ChildText(".s-item__price"))
		if !ok {
			return
		}
		link := e.ChildAttr("a.s-item__link", "href")
		m := itemID.FindStringSubmatch(link)
		if m == nil {
			return
		}
		image := e.ChildAttr(".s-item__image-img", "src")
		if image == "" || strings.HasPrefix(image, "data:") {
			image = e.ChildAttr(".s-item__image-img", "data-src")
		}

		listings = append(listings, models.Listing{
			ID:        m[1],
			Name:      title,
			Brand:     scrapers.BrandOf(title),
			ImageURL:  image,
			Condition: scrapers.DetectCondition(e.ChildText(".SECONDARY_INFO") + " " + title),
			Price:     price,
			URL:       strings.SplitN(link, "?", 2)[0],
		})
	})
	c.OnError(func(r *colly.Response, _ error) {
		status = r.StatusCode
	})

	s.Logger.Debug("visiting", slog.String("url", s.searchURL(query)))
	if err := c.Visit(s.searchURL(query)); err != nil {
		if status != 0 {
			if serr := scrapers.CheckStatus(s.Src.Name, status); serr != nil {
				return s.Finish(nil, serr)
			}
		}
		return s.Finish(nil, fmt.Errorf("ebay search: %w", err))
	}

	return s.Finish(scrapers.FilterRelevant(query, listings, s.Relevance), nil)
}

var _ scrapers.Adapter = (*Scraper)(nil)

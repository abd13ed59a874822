package scrapers

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"sneaker-hunter/pkg/models"
)

var priceNumber = regexp.MustCompile(`\d[\d.,]*`)

// ParsePrice reads the first amount in a price label such as "$1,234.00",
// "€ 189,95", "1.299 €" or "$120 to $250". It reports false when no amount
// is present.
func ParsePrice(s string) (float64, bool) {
	m := priceNumber.FindString(s)
	if m == "" {
		return 0, false
	}
	m = strings.TrimRight(m, ".,")

	lastDot := strings.LastIndex(m, ".")
	lastComma := strings.LastIndex(m, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		// whichever separator comes last is the decimal mark
		if lastComma > lastDot {
			m = strings.ReplaceAll(m, ".", "")
			m = strings.Replace(m, ",", ".", 1)
		} else {
			m = strings.ReplaceAll(m, ",", "")
		}
	case lastComma >= 0:
		m = normalizeSingleSeparator(m, ",")
	case lastDot >= 0:
		m = normalizeSingleSeparator(m, ".")
	}

	v, err := strconv.ParseFloat(m, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// normalizeSingleSeparator decides whether sep is a thousands separator
// (repeated, or followed by exactly three digits) or a decimal mark.
func normalizeSingleSeparator(m, sep string) string {
	if strings.Count(m, sep) > 1 || len(m)-strings.LastIndex(m, sep)-1 == 3 {
		return strings.ReplaceAll(m, sep, "")
	}
	return strings.Replace(m, sep, ".", 1)
}

// JSONPrice decodes a price that upstreams emit either as a number or as a
// string.
func JSONPrice(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	return ParsePrice(s)
}

var usedMarkers = regexp.MustCompile(`(?i)\b(used|pre-?owned|worn|vnds|no box|replacement box)\b`)

// DetectCondition classifies a listing title or condition label.
func DetectCondition(text string) models.Condition {
	if usedMarkers.MatchString(text) {
		return models.ConditionUsed
	}
	return models.ConditionNew
}

var spaces = regexp.MustCompile(`\s+`)

func CleanText(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

// BrandOf guesses the brand from a product title for sources that do not
// expose one.
func BrandOf(title string) string {
	lower := strings.ToLower(title)
	for _, b := range knownBrands {
		lb := strings.ToLower(b)
		if lower == lb || strings.HasPrefix(lower, lb+" ") {
			return b
		}
		if !leadingOnly[b] && strings.Contains(lower, " "+lb+" ") {
			return b
		}
	}
	if f := strings.Fields(title); len(f) > 0 {
		return f[0]
	}
	return ""
}

// Longer names first so "Air Jordan" wins over "Jordan".
var knownBrands = []string{
	"New Balance", "Air Jordan", "Onitsuka Tiger", "Maison Margiela", "Comme des Garcons",
	"Nike", "Jordan", "adidas", "Yeezy", "ASICS", "Puma", "Reebok", "Converse", "Vans",
	"Salomon", "Saucony", "Balenciaga", "Hoka", "On",
}

// Brands that are also common words only count as the first token.
var leadingOnly = map[string]bool{"On": true}

// ProductLD is the schema.org Product shape embedded by storefronts as
// JSON-LD.
type ProductLD struct {
	Type   any    `json:"@type"`
	Name   string `json:"name"`
	Brand  any    `json:"brand"`
	SKU    string `json:"sku"`
	MPN    string `json:"mpn"`
	Color  string `json:"color"`
	Image  any    `json:"image"`
	URL    string `json:"url"`
	Offers any    `json:"offers"`
}

// Offer is one schema.org Offer.
type Offer struct {
	Price         json.RawMessage `json:"price"`
	LowPrice      json.RawMessage `json:"lowPrice"`
	PriceCurrency string          `json:"priceCurrency"`
	Availability  string          `json:"availability"`
	URL           string          `json:"url"`
	SKU           string          `json:"sku"`
	Size          string          `json:"size"`
	Name          string          `json:"name"`
}

// ProductsFromJSONLD collects every Product object in the document's
// ld+json scripts, including those nested in ItemList and @graph wrappers.
func ProductsFromJSONLD(doc *goquery.Document) []ProductLD {
	var out []ProductLD
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var v any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &v); err != nil {
			return
		}
		collectProducts(v, &out)
	})
	return out
}

func collectProducts(v any, out *[]ProductLD) {
	switch t := v.(type) {
	case []any:
		for _, e := range t {
			collectProducts(e, out)
		}
	case map[string]any:
		if isType(t["@type"], "Product") {
			b, err := json.Marshal(t)
			if err != nil {
				return
			}
			var p ProductLD
			if json.Unmarshal(b, &p) == nil {
				*out = append(*out, p)
			}
			return
		}
		for _, key := range []string{"@graph", "itemListElement", "item", "mainEntity"} {
			if inner, ok := t[key]; ok {
				collectProducts(inner, out)
			}
		}
	}
}

func isType(v any, want string) bool {
	switch t := v.(type) {
	case string:
		return t == want
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

// BrandName flattens the brand field, which may be a string or an object.
func (p ProductLD) BrandName() string {
	switch b := p.Brand.(type) {
	case string:
		return b
	case map[string]any:
		if n, ok := b["name"].(string); ok {
			return n
		}
	}
	return ""
}

// ImageURL returns the first image.
func (p ProductLD) ImageURL() string {
	switch i := p.Image.(type) {
	case string:
		return i
	case []any:
		for _, e := range i {
			if s, ok := e.(string); ok {
				return s
			}
		}
	case map[string]any:
		if u, ok := i["url"].(string); ok {
			return u
		}
	}
	return ""
}

// OfferList normalizes offers, which may be a single Offer, a list, or an
// AggregateOffer wrapping a list.
func (p ProductLD) OfferList() []Offer {
	var out []Offer
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case []any:
			for _, e := range t {
				walk(e)
			}
		case map[string]any:
			if inner, ok := t["offers"]; ok {
				n := len(out)
				walk(inner)
				if len(out) > n {
					return
				}
			}
			b, err := json.Marshal(t)
			if err != nil {
				return
			}
			var o Offer
			if json.Unmarshal(b, &o) == nil && (len(o.Price) > 0 || len(o.LowPrice) > 0) {
				out = append(out, o)
			}
		}
	}
	walk(p.Offers)
	return out
}

// InStock reports whether a schema.org availability value means in stock.
func (o Offer) InStock() bool {
	a := strings.ToLower(o.Availability)
	return a == "" || strings.Contains(a, "instock") || strings.Contains(a, "in stock") || strings.Contains(a, "limitedavailability")
}

// Amount returns the offer price, falling back to lowPrice.
func (o Offer) Amount() (float64, bool) {
	if v, ok := JSONPrice(o.Price); ok {
		return v, true
	}
	return JSONPrice(o.LowPrice)
}

// ListingFromLD converts a JSON-LD product into a Listing priced at its
// cheapest in-stock offer. Relative URLs are resolved against base.
func ListingFromLD(p ProductLD, base string) (models.Listing, bool) {
	var price float64
	var code, link string
	for _, o := range p.OfferList() {
		v, ok := o.Amount()
		if !ok || v <= 0 || !o.InStock() {
			continue
		}
		if price == 0 || v < price {
			price, code, link = v, o.PriceCurrency, o.URL
		}
	}
	if price == 0 || strings.TrimSpace(p.Name) == "" {
		return models.Listing{}, false
	}
	if p.URL != "" {
		link = p.URL
	}
	link = ResolveURL(base, link)

	id := p.SKU
	if id == "" {
		id = strings.Trim(strings.TrimPrefix(link, strings.TrimRight(base, "/")), "/")
	}
	sku := p.MPN
	if sku == "" {
		sku = p.SKU
	}
	name := CleanText(p.Name)
	brand := p.BrandName()
	if brand == "" {
		brand = BrandOf(name)
	}
	return models.Listing{
		ID:        id,
		Name:      name,
		Brand:     brand,
		Colorway:  p.Color,
		SKU:       sku,
		ImageURL:  ResolveURL(base, p.ImageURL()),
		Condition: DetectCondition(name),
		Price:     price,
		Currency:  code,
		URL:       link,
	}, true
}

// ResolveURL resolves ref against base, returning ref unchanged when either
// does not parse.
func ResolveURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

package models

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

type SizePrice struct {
	Size                   string  `json:"size"`
	Price                  float64 `json:"price"`
	PriceInDisplayCurrency float64 `json:"price_in_display_currency"`
	Currency               string  `json:"currency"`
	Available              bool    `json:"available"`
	URL                    string  `json:"url,omitempty"`
}

// SourcePricing is the size-indexed price sheet of one product on one source.
type SourcePricing struct {
	Source      string      `json:"source"`
	Name        string      `json:"name"`
	URL         string      `json:"url"`
	ImageURL    string      `json:"image_url,omitempty"`
	Sizes       []SizePrice `json:"sizes"`
	LowestPrice float64     `json:"lowest_price"`
}

var sizeNumber = regexp.MustCompile(`\d+(?:\.\d+)?`)

// SizeValue extracts the numeric part of a size label ("US 10.5" -> 10.5).
func SizeValue(size string) (float64, bool) {
	m := sizeNumber.FindString(size)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// NewSourcePricing builds a price sheet with unique sizes sorted ascending.
// When a size appears twice the cheaper available entry is kept.
func NewSourcePricing(source, name, url, image string, sizes []SizePrice) SourcePricing {
	byLabel := make(map[string]int, len(sizes))
	unique := make([]SizePrice, 0, len(sizes))
	for _, sp := range sizes {
		sp.Size = strings.TrimSpace(sp.Size)
		if sp.Size == "" {
			continue
		}
		key := strings.ToLower(sp.Size)
		if i, ok := byLabel[key]; ok {
			if preferSize(sp, unique[i]) {
				unique[i] = sp
			}
			continue
		}
		byLabel[key] = len(unique)
		unique = append(unique, sp)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		vi, okI := SizeValue(unique[i].Size)
		vj, okJ := SizeValue(unique[j].Size)
		switch {
		case okI && okJ:
			if vi != vj {
				return vi < vj
			}
			return unique[i].Size < unique[j].Size
		case okI != okJ:
			return okI
		default:
			return unique[i].Size < unique[j].Size
		}
	})

	p := SourcePricing{
		Source:   source,
		Name:     name,
		URL:      url,
		ImageURL: image,
		Sizes:    unique,
	}
	p.LowestPrice = lowestAvailable(unique)
	return p
}

func preferSize(candidate, current SizePrice) bool {
	if candidate.Available != current.Available {
		return candidate.Available
	}
	return candidate.PriceInDisplayCurrency < current.PriceInDisplayCurrency
}

func lowestAvailable(sizes []SizePrice) float64 {
	lowest := 0.0
	found := false
	for _, sp := range sizes {
		if !sp.Available {
			continue
		}
		if !found || sp.PriceInDisplayCurrency < lowest {
			lowest = sp.PriceInDisplayCurrency
			found = true
		}
	}
	return lowest
}

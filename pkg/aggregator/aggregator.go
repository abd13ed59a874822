// Package aggregator groups listings from every source into canonical
// products and ranks them.
package aggregator

import (
	"math"
	"sort"

	"github.com/google/uuid"

	"sneaker-hunter/pkg/currency"
	"sneaker-hunter/pkg/models"
)

var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("sneaker-hunter/aggregated"))

type Aggregator struct {
	displayCurrency string
}

func New(displayCurrency string) *Aggregator {
	if displayCurrency == "" {
		displayCurrency = "USD"
	}
	return &Aggregator{displayCurrency: displayCurrency}
}

// ID is the deterministic identity of the group with the given key.
func ID(key string) string {
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}

// Aggregate groups listings by GroupKey and returns one record per group,
// most corroborated first, then cheapest.
func (a *Aggregator) Aggregate(listings []models.Listing) []models.AggregatedSneaker {
	if len(listings) == 0 {
		return []models.AggregatedSneaker{}
	}

	var order []string
	groups := make(map[string][]models.Listing)
	for _, l := range listings {
		k := GroupKey(l)
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], l)
	}

	out := make([]models.AggregatedSneaker, 0, len(order))
	for _, k := range order {
		out = append(out, a.build(k, groups[k]))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i].Listings) != len(out[j].Listings) {
			return len(out[i].Listings) > len(out[j].Listings)
		}
		return out[i].LowestPrice < out[j].LowestPrice
	})
	return out
}

func (a *Aggregator) build(key string, members []models.Listing) models.AggregatedSneaker {
	rep := members[0]
	for _, m := range members {
		if m.ImageURL != "" {
			rep = m
			break
		}
	}

	best := members[0]
	lowest, highest, sum := best.PriceInDisplayCurrency, best.PriceInDisplayCurrency, 0.0
	for _, m := range members {
		p := m.PriceInDisplayCurrency
		sum += p
		if p < lowest {
			lowest = p
			best = m
		}
		if p > highest {
			highest = p
		}
	}

	sorted := make([]models.Listing, len(members))
	copy(sorted, members)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PriceInDisplayCurrency < sorted[j].PriceInDisplayCurrency
	})

	return models.AggregatedSneaker{
		ID:           ID(key),
		Name:         rep.Name,
		Brand:        rep.Brand,
		Colorway:     rep.Colorway,
		SKU:          rep.SKU,
		ImageURL:     rep.ImageURL,
		LowestPrice:  lowest,
		HighestPrice: highest,
		AveragePrice: math.Round(sum / float64(len(members))),
		PriceRange:   a.priceRange(lowest, highest),
		Listings:     sorted,
		BestDeal:     best,
	}
}

func (a *Aggregator) priceRange(lowest, highest float64) string {
	lo := currency.Format(lowest, a.displayCurrency)
	if math.Round(lowest) == math.Round(highest) {
		return lo
	}
	return lo + " - " + currency.Format(highest, a.displayCurrency)
}

package registry

import "time"

const (
	StockX       = "stockx"
	GOAT         = "goat"
	EBay         = "ebay"
	KLEKT        = "klekt"
	FlightClub   = "flightclub"
	StadiumGoods = "stadiumgoods"
)

// Defaults is the built-in catalog. Config may override any field per id.
func Defaults() []Source {
	return []Source{
		{
			ID:        StockX,
			Name:      "StockX",
			Kind:      KindStructuredAPI,
			BaseURL:   "https://stockx.com",
			Trust:     TrustAuthenticated,
			RateLimit: RateLimit{Requests: 10, Window: time.Minute},
			Enabled:   true,
			Country:   "US",
			Currency:  "USD",
		},
		{
			ID:        GOAT,
			Name:      "GOAT",
			Kind:      KindStructuredAPI,
			BaseURL:   "https://www.goat.com",
			Trust:     TrustAuthenticated,
			RateLimit: RateLimit{Requests: 20, Window: time.Minute},
			Enabled:   true,
			Country:   "US",
			Currency:  "USD",
		},
		{
			ID:        EBay,
			Name:      "eBay",
			Kind:      KindStructuredAPI,
			BaseURL:   "https://www.ebay.com",
			Trust:     TrustMarketplace,
			RateLimit: RateLimit{Requests: 30, Window: time.Minute},
			Enabled:   true,
			Country:   "US",
			Currency:  "USD",
		},
		{
			ID:        KLEKT,
			Name:      "KLEKT",
			Kind:      KindStructuredAPI,
			BaseURL:   "https://www.klekt.com",
			Trust:     TrustAuthenticated,
			RateLimit: RateLimit{Requests: 15, Window: time.Minute},
			Enabled:   true,
			Country:   "EU",
			Currency:  "EUR",
		},
		{
			ID:        FlightClub,
			Name:      "Flight Club",
			Kind:      KindRenderedPage,
			BaseURL:   "https://www.flightclub.com",
			Trust:     TrustVerified,
			RateLimit: RateLimit{Requests: 6, Window: time.Minute},
			Enabled:   true,
			Country:   "US",
			Currency:  "USD",
		},
		{
			ID:        StadiumGoods,
			Name:      "Stadium Goods",
			Kind:      KindRenderedPage,
			BaseURL:   "https://www.stadiumgoods.com",
			Trust:     TrustVerified,
			RateLimit: RateLimit{Requests: 6, Window: time.Minute},
			Enabled:   true,
			Country:   "US",
			Currency:  "USD",
		},
	}
}

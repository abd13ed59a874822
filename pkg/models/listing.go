package models

import "time"

type Condition string

const (
	ConditionNew  Condition = "new"
	ConditionUsed Condition = "used"
)

// Listing is one price observation from one source for one item.
type Listing struct {
	ID                     string    `json:"id"`
	Name                   string    `json:"name"`
	Brand                  string    `json:"brand"`
	Colorway               string    `json:"colorway,omitempty"`
	SKU                    string    `json:"sku,omitempty"`
	ImageURL               string    `json:"image_url,omitempty"`
	RetailPrice            float64   `json:"retail_price,omitempty"`
	Condition              Condition `json:"condition"`
	Source                 string    `json:"source"`
	Price                  float64   `json:"price"`
	Currency               string    `json:"currency"`
	PriceInDisplayCurrency float64   `json:"price_in_display_currency"`
	URL                    string    `json:"url"`
	Size                   string    `json:"size,omitempty"`
	LastSeen               time.Time `json:"last_seen"`
	Synthetic              bool      `json:"synthetic,omitempty"`
}

// AggregatedSneaker merges every Listing judged to be the same product.
// It is rebuilt on each aggregation pass and never edited in place.
type AggregatedSneaker struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Brand        string    `json:"brand"`
	Colorway     string    `json:"colorway,omitempty"`
	SKU          string    `json:"sku,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
	LowestPrice  float64   `json:"lowest_price"`
	HighestPrice float64   `json:"highest_price"`
	AveragePrice float64   `json:"average_price"`
	PriceRange   string    `json:"price_range"`
	Listings     []Listing `json:"listings"`
	BestDeal     Listing   `json:"best_deal"`
}

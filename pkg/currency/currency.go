// Package currency converts source prices into the display currency.
package currency

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// USD value of one unit of each currency. Conversions between two non-USD
// currencies go through USD.
var defaultUSDRates = map[string]float64{
	"USD": 1,
	"EUR": 1.08,
	"GBP": 1.27,
	"CAD": 0.73,
	"AUD": 0.66,
	"JPY": 0.0067,
	"CHF": 1.12,
	"SEK": 0.095,
	"DKK": 0.145,
	"PLN": 0.25,
}

var symbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"CAD": "CA$",
	"AUD": "A$",
	"JPY": "¥",
}

// Converter applies the shared rate table. Unknown currencies convert 1:1.
// The table is fixed at construction, so a Converter is safe for concurrent
// use.
type Converter struct {
	display string
	rates   map[string]decimal.Decimal
}

func NewConverter(display string, overrides map[string]float64) *Converter {
	c := &Converter{
		display: normalize(display),
		rates:   make(map[string]decimal.Decimal, len(defaultUSDRates)),
	}
	if c.display == "" {
		c.display = "USD"
	}
	for code, r := range defaultUSDRates {
		c.rates[code] = decimal.NewFromFloat(r)
	}
	for code, r := range overrides {
		if r > 0 {
			c.rates[normalize(code)] = decimal.NewFromFloat(r)
		}
	}
	return c
}

func (c *Converter) Display() string {
	return c.display
}

// ToDisplay converts amount from the source currency into the display
// currency, rounded to cents. The result is never negative.
func (c *Converter) ToDisplay(amount float64, from string) float64 {
	if amount <= 0 {
		return 0
	}
	v := decimal.NewFromFloat(amount)

	from = normalize(from)
	if from != "" && from != c.display {
		src, okSrc := c.rates[from]
		dst, okDst := c.rates[c.display]
		if okSrc && okDst && !dst.IsZero() {
			v = v.Mul(src).Div(dst)
		}
	}

	out, _ := v.Round(2).Float64()
	return out
}

// Format renders a whole-unit amount in code, e.g. "$215".
func Format(amount float64, code string) string {
	code = normalize(code)
	v := decimal.NewFromFloat(amount).Round(0).String()
	if sym, ok := symbols[code]; ok {
		return sym + v
	}
	return fmt.Sprintf("%s %s", v, code)
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

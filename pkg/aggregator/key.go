package aggregator

import (
	"regexp"
	"strings"

	"sneaker-hunter/pkg/models"
)

const maxNameTokens = 5

var (
	nonAlnum      = regexp.MustCompile(`[^a-z0-9]+`)
	nonAlnumSpace = regexp.MustCompile(`[^a-z0-9\s]+`)
	nonLetters    = regexp.MustCompile(`[^a-z]+`)
	sizeMention   = regexp.MustCompile(`\b(?:size|sz)\s*:?\s*\d+(?:\.\d+)?\b`)
	parenthetical = regexp.MustCompile(`\([^)]*\)`)
	jargon        = regexp.MustCompile(`\b(?:ds|deadstock|brand new|bnib|vnds|pads)\b`)
	spaces        = regexp.MustCompile(`\s+`)
)

// GroupKey decides which listings are the same product. A usable SKU wins;
// otherwise brand plus the first tokens of the cleaned name.
func GroupKey(l models.Listing) string {
	if sku := strings.TrimSpace(l.SKU); len(sku) > 3 {
		if k := NormalizeSKU(sku); k != "" {
			return k
		}
	}
	return brandKey(l.Brand) + ":" + NameKey(l.Name)
}

// NormalizeSKU lower-cases and strips everything but letters and digits,
// so "DZ5485-612" and "dz5485612" compare equal.
func NormalizeSKU(sku string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(sku), "")
}

// NameKey strips sizes, parentheticals and condition jargon from a listing
// title and joins the first five remaining tokens.
func NameKey(name string) string {
	s := strings.ToLower(name)
	s = sizeMention.ReplaceAllString(s, " ")
	s = parenthetical.ReplaceAllString(s, " ")
	s = jargon.ReplaceAllString(s, " ")
	s = nonAlnumSpace.ReplaceAllString(s, "")
	s = strings.TrimSpace(spaces.ReplaceAllString(s, " "))

	tokens := strings.Fields(s)
	if len(tokens) > maxNameTokens {
		tokens = tokens[:maxNameTokens]
	}
	return strings.Join(tokens, "")
}

func brandKey(brand string) string {
	return nonLetters.ReplaceAllString(strings.ToLower(brand), "")
}

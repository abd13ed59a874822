package scrapers

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"

	"sneaker-hunter/pkg/models"
)

// DefaultRelevance is the Jaro-Winkler similarity below which a title with
// no word in common with the query is dropped.
const DefaultRelevance = 0.55

var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

func tokens(s string) []string {
	return strings.Fields(nonWord.ReplaceAllString(strings.ToLower(s), " "))
}

// Relevant reports whether a marketplace title plausibly answers query.
// Titles sharing at least one word with the query always pass; the rest
// must reach threshold on Jaro-Winkler similarity.
func Relevant(query, title string, threshold float64) bool {
	q, t := tokens(query), tokens(title)
	if len(q) == 0 {
		return true
	}
	inTitle := make(map[string]bool, len(t))
	for _, w := range t {
		inTitle[w] = true
	}
	for _, w := range q {
		if inTitle[w] {
			return true
		}
	}
	return matchr.JaroWinkler(strings.Join(q, " "), strings.Join(t, " "), false) >= threshold
}

// FilterRelevant keeps the listings whose names are Relevant to query.
func FilterRelevant(query string, listings []models.Listing, threshold float64) []models.Listing {
	out := listings[:0:0]
	for _, l := range listings {
		if Relevant(query, l.Name, threshold) {
			out = append(out, l)
		}
	}
	return out
}

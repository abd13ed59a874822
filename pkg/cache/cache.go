// Package cache stores recent search results under their normalized query.
package cache

import (
	"context"
	"strings"
	"time"

	"sneaker-hunter/pkg/models"
)

// DefaultTTL is how long a search result stays fresh after it is written.
const DefaultTTL = 60 * time.Second

// Entry is what gets stored for one query: the aggregated records plus the
// raw listings they were built from.
type Entry struct {
	Query      string                     `json:"query"`
	Aggregated []models.AggregatedSneaker `json:"aggregated"`
	Listings   []models.Listing           `json:"listings"`
	StoredAt   time.Time                  `json:"stored_at"`
}

// Cache is the result store consumed by the orchestrator. Get reports a
// miss for anything it cannot read; Set errors are for logging only.
type Cache interface {
	Get(ctx context.Context, query string) (*Entry, bool)
	Set(ctx context.Context, query string, entry Entry) error
	Close() error
}

// NormalizeKey case-folds the query and collapses whitespace so "Dunk  Low "
// and "dunk low" share an entry.
func NormalizeKey(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Nop is the cache used when none is configured: every Get misses.
type Nop struct{}

func (Nop) Get(context.Context, string) (*Entry, bool) { return nil, false }
func (Nop) Set(context.Context, string, Entry) error { return nil }
func (Nop) Close() error { return nil }

var _ Cache = Nop{}

// Package registry holds the static catalog of known sources.
package registry

import (
	"fmt"
	"sort"
	"time"

	"sneaker-hunter/pkg/models"
)

type Kind string

const (
	KindStructuredAPI Kind = "structured-api"
	KindRenderedPage  Kind = "rendered-page"
)

type Trust string

const (
	TrustVerified      Trust = "verified"
	TrustAuthenticated Trust = "authenticated"
	TrustMarketplace   Trust = "marketplace"
)

// FallbackPolicy decides what an adapter reports when it finds nothing.
type FallbackPolicy string

const (
	FallbackReport    FallbackPolicy = "report"
	FallbackSynthetic FallbackPolicy = "synthetic"
)

// RateLimit is a budget of Requests per rolling Window.
type RateLimit struct {
	Requests int           `json:"requests"`
	Window   time.Duration `json:"window"`
}

type Source struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Kind      Kind           `json:"kind"`
	BaseURL   string         `json:"base_url"`
	Trust     Trust          `json:"trust"`
	RateLimit RateLimit      `json:"rate_limit"`
	Enabled   bool           `json:"enabled"`
	Country   string         `json:"country"`
	Currency  string         `json:"currency"`
	Timeout   time.Duration  `json:"timeout"`
	Fallback  FallbackPolicy `json:"fallback"`
}

func (s Source) Ref() models.SourceRef {
	return models.SourceRef{ID: s.ID, Name: s.Name}
}

// Deadline is the per-invocation ceiling: the configured timeout, or 15s for
// API sources and 45s for rendered pages.
func (s Source) Deadline() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	if s.Kind == KindRenderedPage {
		return 45 * time.Second
	}
	return 15 * time.Second
}

// Registry is immutable once built.
type Registry struct {
	sources []Source
	byID    map[string]int
}

func New(sources ...Source) (*Registry, error) {
	r := &Registry{
		sources: make([]Source, 0, len(sources)),
		byID:    make(map[string]int, len(sources)),
	}
	for _, s := range sources {
		if s.ID == "" {
			return nil, fmt.Errorf("registry: source %q has no id", s.Name)
		}
		if _, dup := r.byID[s.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate source id %q", s.ID)
		}
		if s.Name == "" {
			s.Name = s.ID
		}
		if s.Fallback == "" {
			s.Fallback = FallbackReport
		}
		if s.RateLimit.Requests < 0 || s.RateLimit.Window < 0 {
			return nil, fmt.Errorf("registry: source %q has a negative rate limit", s.ID)
		}
		r.byID[s.ID] = len(r.sources)
		r.sources = append(r.sources, s)
	}
	return r, nil
}

func (r *Registry) Lookup(id string) (Source, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Source{}, false
	}
	return r.sources[i], true
}

// All returns a copy of every source, sorted by id.
func (r *Registry) All() []Source {
	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Enabled() []Source {
	var out []Source
	for _, s := range r.All() {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

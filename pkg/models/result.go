package models

// SourceRef identifies the source a result came from.
type SourceRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SourceResult is what every adapter returns. Failures are folded into
// Success=false with a descriptive Error; adapters never return a Go error.
type SourceResult struct {
	Success  bool      `json:"success"`
	Listings []Listing `json:"listings"`
	Source   SourceRef `json:"source"`
	Error    string    `json:"error,omitempty"`

	// Blocked marks failures caused by bot-challenge pages rather than outages.
	Blocked bool `json:"blocked,omitempty"`
	// Throttled marks an upstream 429/403 so the scheduler can back off.
	Throttled bool `json:"throttled,omitempty"`
}

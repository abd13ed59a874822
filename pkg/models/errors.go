package models

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrNoResults         = errors.New("no results")
	ErrChallengeBlocked  = errors.New("blocked by bot challenge")
	ErrRateLimited       = errors.New("rate limited")
	ErrSourceUnavailable = errors.New("source unavailable")
)

// StatusError is an unexpected HTTP status returned by a source.
type StatusError struct {
	Source string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s responded with HTTP %d", e.Source, e.Code)
}

// Throttled reports whether the status means the source is pushing back on us.
func (e *StatusError) Throttled() bool {
	return e.Code == http.StatusTooManyRequests || e.Code == http.StatusForbidden
}

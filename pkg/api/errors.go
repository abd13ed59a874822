package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"sneaker-hunter/pkg/models"
)

// follows RFC 7807: Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

func (pd *ProblemDetails) Error() string {
	return fmt.Sprintf("%d %s: %s", pd.Status, pd.Title, pd.Detail)
}

func WriteError(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	pd := &ProblemDetails{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	}

	if err := json.NewEncoder(w).Encode(pd); err != nil {
		slog.Warn("writing problem response failed", slog.String("instance", instance), slog.String("error", err.Error()))
	}
}

func WriteInternalServerError(w http.ResponseWriter, err error, instance string) {
	WriteError(w, http.StatusInternalServerError, "Internal Server Error", err.Error(), instance)
}

func WriteBadRequest(w http.ResponseWriter, detail, instance string) {
	WriteError(w, http.StatusBadRequest, "Bad Request", detail, instance)
}

func WriteNotFound(w http.ResponseWriter, detail, instance string) {
	WriteError(w, http.StatusNotFound, "Not Found", detail, instance)
}

func WriteMethodNotAllowed(w http.ResponseWriter, allowed, instance string) {
	w.Header().Set("Allow", allowed)
	WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed", "Use "+allowed+".", instance)
}

// WriteSourceError maps a failure that reached the HTTP layer onto a
// status code.
func WriteSourceError(w http.ResponseWriter, err error, instance string) {
	switch {
	case errors.Is(err, models.ErrProductNotFound), errors.Is(err, models.ErrNoResults):
		WriteNotFound(w, err.Error(), instance)
	case errors.Is(err, models.ErrRateLimited):
		WriteError(w, http.StatusTooManyRequests, "Too Many Requests", err.Error(), instance)
	case errors.Is(err, models.ErrChallengeBlocked), errors.Is(err, models.ErrSourceUnavailable):
		WriteError(w, http.StatusBadGateway, "Bad Gateway", err.Error(), instance)
	case errors.Is(err, context.DeadlineExceeded):
		WriteError(w, http.StatusGatewayTimeout, "Gateway Timeout", err.Error(), instance)
	default:
		WriteInternalServerError(w, err, instance)
	}
}

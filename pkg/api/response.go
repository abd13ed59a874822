package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"
)

const (
	MinQueryLength = 2
	MaxQueryLength = 100
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encoding response failed", slog.String("error", err.Error()))
	}
}

// ValidateQuery trims q and checks its length in characters. The returned
// error text is safe to show to clients.
func ValidateQuery(q string) (string, error) {
	q = strings.TrimSpace(q)
	n := utf8.RuneCountInString(q)
	switch {
	case n == 0:
		return "", errors.New("query parameter q is required")
	case n < MinQueryLength:
		return "", fmt.Errorf("query must be at least %d characters", MinQueryLength)
	case n > MaxQueryLength:
		return "", fmt.Errorf("query must be at most %d characters", MaxQueryLength)
	}
	return q, nil
}

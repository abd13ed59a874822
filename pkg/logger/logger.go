package logger

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Outcomes reported through SourceEvent.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeBlocked  = "blocked"
	OutcomeTimeout  = "timeout"
	OutcomePanic    = "panic"
	OutcomeDeferred = "deferred"
	OutcomeCacheHit = "cache_hit"
)

// New builds the process logger. format is "json" or "text".
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h)
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SourceEvent is the one place orchestrator and navigator report what a
// source did. Failures log at warn, everything else at info.
func SourceEvent(l *slog.Logger, source string, took time.Duration, outcome string, attrs ...slog.Attr) {
	if l == nil {
		l = slog.Default()
	}
	level := slog.LevelInfo
	switch outcome {
	case OutcomeFailed, OutcomeBlocked, OutcomeTimeout, OutcomePanic:
		level = slog.LevelWarn
	}

	all := make([]slog.Attr, 0, len(attrs)+3)
	all = append(all,
		slog.String("source", source),
		slog.Duration("duration", took),
		slog.String("outcome", outcome),
	)
	all = append(all, attrs...)
	l.LogAttrs(context.Background(), level, "source event", all...)
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var dedup = &deduplicator{
	flushDelay: 2 * time.Second,
}

type deduplicator struct {
	mu         sync.Mutex
	logger     *slog.Logger
	lastMsg    string
	count      int
	flushDelay time.Duration
	timer      *time.Timer
}

func (d *deduplicator) flush() {
	if d.count == 0 {
		return
	}
	l := d.logger
	if l == nil {
		l = slog.Default()
	}
	if d.count == 1 {
		l.Info(d.lastMsg)
	} else {
		l.Info(d.lastMsg, slog.Int("repeated", d.count))
	}
	d.count = 0
	d.lastMsg = ""
}

func (d *deduplicator) schedule() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.flushDelay, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.flush()
	})
}

// Dedup logs msg at info level, collapsing identical consecutive messages
// that arrive within two seconds of each other into one line with a count.
func Dedup(l *slog.Logger, msg string) {
	dedup.mu.Lock()
	defer dedup.mu.Unlock()

	if msg == dedup.lastMsg && l == dedup.logger {
		dedup.count++
		dedup.schedule()
		return
	}

	dedup.flush()
	dedup.logger = l
	dedup.lastMsg = msg
	dedup.count = 1
	dedup.schedule()
}

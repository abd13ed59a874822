package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestDedup(t *testing.T) {
	dedup.flushDelay = 20 * time.Millisecond
	defer func() { dedup.flushDelay = 2 * time.Second }()

	var out syncBuffer
	l := New(&out, "info", "text")

	for i := 0; i < 3; i++ {
		Dedup(l, "cache hit for dunk low")
	}
	Dedup(l, "cache hit for jordan 4")

	time.Sleep(100 * time.Millisecond)

	logged := out.String()
	if !strings.Contains(logged, "repeated=3") {
		t.Errorf("expected collapsed message with count, got:\n%s", logged)
	}
	if strings.Count(logged, "cache hit for dunk low") != 1 {
		t.Errorf("expected a single line for the repeated message, got:\n%s", logged)
	}
	if !strings.Contains(logged, "cache hit for jordan 4") {
		t.Errorf("expected the distinct message to be flushed, got:\n%s", logged)
	}
}

func TestSourceEventLevel(t *testing.T) {
	var out syncBuffer
	l := New(&out, "warn", "json")

	SourceEvent(l, "stockx", time.Second, OutcomeOK)
	if out.String() != "" {
		t.Fatalf("expected ok outcome to be filtered at warn level, got %s", out.String())
	}

	SourceEvent(l, "goat", time.Second, OutcomeBlocked, slog.String("signature", "cloudflare"))
	logged := out.String()
	for _, want := range []string{`"source":"goat"`, `"outcome":"blocked"`, `"signature":"cloudflare"`} {
		if !strings.Contains(logged, want) {
			t.Errorf("expected %s in %s", want, logged)
		}
	}
}

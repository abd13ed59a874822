package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sneaker-hunter/pkg/models"
)

const (
	DefaultBaseDelay = 500 * time.Millisecond
	DefaultMaxDelay  = 30 * time.Second
)

// Scheduler queues requests that exceed a source's budget instead of
// dropping them. Delays grow exponentially with each refused attempt and
// with each 429/403 the source has returned since its last success.
type Scheduler struct {
	limiter Limiter
	base    time.Duration
	max     time.Duration
	logger  *slog.Logger

	mu        sync.Mutex
	strikes   map[string]int
	notBefore map[string]time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func NewScheduler(limiter Limiter, base, max time.Duration, logger *slog.Logger) *Scheduler {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if max < base {
		max = DefaultMaxDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		limiter:   limiter,
		base:      base,
		max:       max,
		logger:    logger,
		strikes:   make(map[string]int),
		notBefore: make(map[string]time.Time),
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// Wait blocks until key may issue one more request, or ctx ends. It
// returns how long the request was deferred.
func (s *Scheduler) Wait(ctx context.Context, key string, limit int, window time.Duration) (time.Duration, error) {
	start := s.now()

	s.mu.Lock()
	strikes := s.strikes[key]
	cooldown := s.notBefore[key].Sub(start)
	s.mu.Unlock()

	if cooldown > 0 {
		if err := s.sleep(ctx, cooldown); err != nil {
			return s.now().Sub(start), fmt.Errorf("%w: %s cooling down: %v", models.ErrRateLimited, key, err)
		}
	}

	for attempt := 0; ; attempt++ {
		ok, err := s.limiter.Allow(ctx, key, limit, window)
		if err != nil {
			// Fail open: a broken limiter backend must not stop scraping.
			s.logger.Warn("rate limiter unavailable, allowing request",
				slog.String("source", key),
				slog.String("error", err.Error()),
			)
			return s.now().Sub(start), nil
		}
		if ok {
			return s.now().Sub(start), nil
		}

		delay := s.Backoff(attempt + strikes)
		s.logger.Debug("request deferred by rate limit",
			slog.String("source", key),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)
		if err := s.sleep(ctx, delay); err != nil {
			return s.now().Sub(start), fmt.Errorf("%w: %s deferred for %s: %v", models.ErrRateLimited, key, s.now().Sub(start).Round(time.Millisecond), err)
		}
	}
}

// Throttled records a 429/403 from key and returns the cooldown applied
// before its next request.
func (s *Scheduler) Throttled(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.Backoff(s.strikes[key])
	s.strikes[key]++
	s.notBefore[key] = s.now().Add(d)
	return d
}

// Succeeded clears the throttling history of key.
func (s *Scheduler) Succeeded(key string) {
	s.mu.Lock()
	delete(s.strikes, key)
	delete(s.notBefore, key)
	s.mu.Unlock()
}

// Backoff is base * 2^n, capped at max.
func (s *Scheduler) Backoff(n int) time.Duration {
	d := s.base
	for i := 0; i < n; i++ {
		d *= 2
		if d >= s.max {
			return s.max
		}
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

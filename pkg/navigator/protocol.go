// Package navigator drives one page load past bot challenges: navigate,
// check for a challenge, wait for it to clear, and escalate to a remote
// unblocking service when it does not.
package navigator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sneaker-hunter/pkg/logger"
	"sneaker-hunter/pkg/models"
)

type State string

const (
	StateNavigating     State = "navigating"
	StateChallengeCheck State = "challenge_check"
	StateClear          State = "clear"
	StateWaiting        State = "waiting"
	StateResolved       State = "resolved"
	StateEscalate       State = "escalate"
	StateBlocked        State = "blocked"
)

// EscalationMode controls when the Unblocker is used.
type EscalationMode string

const (
	EscalateNever  EscalationMode = "never"
	EscalateAuto   EscalationMode = "auto"
	EscalateAlways EscalationMode = "always"
)

func ParseEscalationMode(s string) (EscalationMode, error) {
	switch m := EscalationMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return EscalateNever, nil
	case EscalateNever, EscalateAuto, EscalateAlways:
		return m, nil
	default:
		return "", fmt.Errorf("navigator: unknown escalation mode %q", s)
	}
}

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultCeiling      = 15 * time.Second
	DefaultSettleDelay  = 1 * time.Second
)

// Page is a browser tab the protocol can drive. Navigate must wait for
// network quiescence, not just the initial document.
type Page interface {
	Navigate(ctx context.Context, url string) error
	State(ctx context.Context) (PageState, error)
	HTML(ctx context.Context) (string, error)
	Close() error
}

type NavigationOptions struct {
	Timeout time.Duration
}

type Response struct {
	Status int
	URL    string
}

// Unblocker performs a navigation under conditions more resistant to
// blocking and hands back the loaded page.
type Unblocker interface {
	Unblock(ctx context.Context, url string, opts NavigationOptions, sourceLabel string) (Page, Response, error)
}

// Result describes how a navigation ended. Page is the page to extract
// from: the caller's own page, or the unblocker's when Escalated.
type Result struct {
	State      State
	Page       Page
	Challenged bool
	Signature  string
	Polls      int
	Escalated  bool
	Response   *Response
}

// Close releases the unblocker's page, if one was used. The caller still
// owns and closes its own page.
func (r *Result) Close() error {
	if r == nil || !r.Escalated || r.Page == nil {
		return nil
	}
	return r.Page.Close()
}

type Protocol struct {
	signatures   []Signature
	pollInterval time.Duration
	ceiling      time.Duration
	settleDelay  time.Duration
	mode         EscalationMode
	unblocker    Unblocker
	logger       *slog.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

type Option func(*Protocol)

func WithSignatures(sigs []Signature) Option {
	return func(p *Protocol) { p.signatures = sigs }
}

func WithPolling(interval, ceiling time.Duration) Option {
	return func(p *Protocol) {
		if interval > 0 {
			p.pollInterval = interval
		}
		if ceiling > 0 {
			p.ceiling = ceiling
		}
	}
}

// WithSettleDelay sets the pause after a challenge clears. Zero disables it.
func WithSettleDelay(d time.Duration) Option {
	return func(p *Protocol) { p.settleDelay = d }
}

func WithUnblocker(u Unblocker, mode EscalationMode) Option {
	return func(p *Protocol) {
		p.unblocker = u
		p.mode = mode
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Protocol) { p.logger = l }
}

func New(opts ...Option) *Protocol {
	p := &Protocol{
		signatures:   DefaultSignatures,
		pollInterval: DefaultPollInterval,
		ceiling:      DefaultCeiling,
		settleDelay:  DefaultSettleDelay,
		mode:         EscalateNever,
		logger:       slog.Default(),
		now:          time.Now,
		sleep:        sleepContext,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Navigate loads url in page and returns once the page is usable
// (StateResolved) or the challenge could not be passed (StateBlocked, with an
// error wrapping models.ErrChallengeBlocked). Other errors are plain
// navigation failures.
func (p *Protocol) Navigate(ctx context.Context, page Page, url, sourceLabel string) (*Result, error) {
	start := p.now()
	log := p.logger.With(slog.String("url", url))

	if p.mode == EscalateAlways && p.unblocker != nil {
		return p.escalate(ctx, url, sourceLabel, &Result{}, start)
	}

	// Navigating
	if err := page.Navigate(ctx, url); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}

	// ChallengeCheck
	st, err := page.State(ctx)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", url, err)
	}
	sig, challenged := matchAny(p.signatures, st)
	if !challenged {
		// Clear
		logger.SourceEvent(log, sourceLabel, p.now().Sub(start), logger.OutcomeOK, slog.String("state", string(StateResolved)))
		return &Result{State: StateResolved, Page: page}, nil
	}

	// Waiting
	res := &Result{Challenged: true, Signature: sig.Name}
	log.Info("challenge detected, waiting for it to clear",
		slog.String("source", sourceLabel),
		slog.String("signature", sig.Name),
		slog.Duration("ceiling", p.ceiling),
	)

	waitStart := p.now()
	for {
		remaining := p.ceiling - p.now().Sub(waitStart)
		if remaining <= 0 {
			break
		}
		if err := p.sleep(ctx, min(p.pollInterval, remaining)); err != nil {
			return nil, fmt.Errorf("waiting on %s challenge at %s: %w", sig.Name, url, err)
		}
		res.Polls++

		st, err := page.State(ctx)
		if err != nil {
			// The page is often mid-redirect while a challenge resolves.
			log.Debug("poll failed", slog.Int("poll", res.Polls), slog.String("error", err.Error()))
			continue
		}
		if _, still := matchAny(p.signatures, st); still {
			continue
		}

		// Resolved
		if p.settleDelay > 0 {
			if err := p.sleep(ctx, p.settleDelay); err != nil {
				return nil, fmt.Errorf("settling after challenge at %s: %w", url, err)
			}
		}
		res.State = StateResolved
		res.Page = page
		logger.SourceEvent(log, sourceLabel, p.now().Sub(start), logger.OutcomeOK,
			slog.String("state", string(StateResolved)),
			slog.String("signature", sig.Name),
			slog.Int("polls", res.Polls),
		)
		return res, nil
	}

	// Escalate
	if p.unblocker != nil && p.mode == EscalateAuto {
		return p.escalate(ctx, url, sourceLabel, res, start)
	}
	return p.blocked(log, sourceLabel, res, start, fmt.Errorf("%w: %s challenge still present after %s", models.ErrChallengeBlocked, sig.Name, p.ceiling))
}

func (p *Protocol) escalate(ctx context.Context, url, sourceLabel string, res *Result, start time.Time) (*Result, error) {
	log := p.logger.With(slog.String("url", url))
	log.Info("escalating navigation to unblocker",
		slog.String("source", sourceLabel),
		slog.String("mode", string(p.mode)),
	)

	page, resp, err := p.unblocker.Unblock(ctx, url, NavigationOptions{Timeout: p.ceiling}, sourceLabel)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("unblock %s: %w", url, err)
		}
		return p.blocked(log, sourceLabel, res, start, fmt.Errorf("%w: unblocker failed: %v", models.ErrChallengeBlocked, err))
	}
	res.Escalated = true
	res.Response = &resp
	res.Page = page

	st, err := page.State(ctx)
	if err != nil {
		return p.blocked(log, sourceLabel, res, start, fmt.Errorf("%w: inspect unblocked page: %v", models.ErrChallengeBlocked, err))
	}
	if sig, still := matchAny(p.signatures, st); still {
		res.Challenged = true
		res.Signature = sig.Name
		return p.blocked(log, sourceLabel, res, start, fmt.Errorf("%w: %s challenge survived the unblocker", models.ErrChallengeBlocked, sig.Name))
	}

	res.State = StateResolved
	logger.SourceEvent(log, sourceLabel, p.now().Sub(start), logger.OutcomeOK,
		slog.String("state", string(StateResolved)),
		slog.Bool("escalated", true),
		slog.Int("status", resp.Status),
	)
	return res, nil
}

func (p *Protocol) blocked(log *slog.Logger, sourceLabel string, res *Result, start time.Time, err error) (*Result, error) {
	_ = res.Close()
	res.Page = nil
	res.State = StateBlocked
	logger.SourceEvent(log, sourceLabel, p.now().Sub(start), logger.OutcomeBlocked,
		slog.String("signature", res.Signature),
		slog.Int("polls", res.Polls),
		slog.Bool("escalated", res.Escalated),
		slog.String("error", err.Error()),
	)
	return res, err
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

// Package browser owns the headless Chrome used by rendered-page sources.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	DefaultAcceptLanguage = "en-US,en;q=0.9"
	DefaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
	DefaultMaxTabs        = 3
	DefaultIdleWait       = 5 * time.Second
)

type Config struct {
	ExecPath       string
	Headless       bool
	UserAgent      string
	AcceptLanguage string
	WindowWidth    int
	WindowHeight   int
	MaxTabs        int
	// IdleWait caps how long Navigate waits for network quiescence after
	// the load event.
	IdleWait time.Duration
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.AcceptLanguage == "" {
		c.AcceptLanguage = DefaultAcceptLanguage
	}
	if c.WindowWidth <= 0 || c.WindowHeight <= 0 {
		c.WindowWidth, c.WindowHeight = 1920, 1080
	}
	if c.MaxTabs <= 0 {
		c.MaxTabs = DefaultMaxTabs
	}
	if c.IdleWait <= 0 {
		c.IdleWait = DefaultIdleWait
	}
	return c
}

// Session is a lazily started browser shared by every rendered-page
// adapter. It is created on first use, reused while healthy, and restarted
// when the browser process has died. Tabs are bounded by MaxTabs.
type Session struct {
	cfg    Config
	logger *slog.Logger
	tabs   chan struct{}

	mu            sync.Mutex
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	closed        bool
}

func NewSession(cfg Config, logger *slog.Logger) *Session {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:    cfg,
		logger: logger,
		tabs:   make(chan struct{}, cfg.MaxTabs),
	}
}

func (s *Session) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(s.cfg.UserAgent),
		chromedp.WindowSize(s.cfg.WindowWidth, s.cfg.WindowHeight),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("lang", s.cfg.AcceptLanguage),
	)
	if !s.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if s.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(s.cfg.ExecPath))
	}
	return opts
}

// browser returns the live browser context, starting Chrome if needed.
func (s *Session) browser() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("browser: session closed")
	}
	if s.browserCtx != nil && s.browserCtx.Err() == nil {
		return s.browserCtx, nil
	}
	if s.browserCtx != nil {
		s.logger.Warn("browser session lost, restarting")
	}
	s.shutdownLocked()

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), s.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Run with no actions starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("browser: start: %w", err)
	}

	s.browserCtx = browserCtx
	s.browserCancel = browserCancel
	s.allocCancel = allocCancel
	s.logger.Info("browser session started",
		slog.Bool("headless", s.cfg.Headless),
		slog.Int("max_tabs", s.cfg.MaxTabs),
	)
	return browserCtx, nil
}

// NewPage opens a stealth-configured tab. The caller must Close it on every
// exit path; Close also frees the tab slot.
func (s *Session) NewPage(ctx context.Context) (*Page, error) {
	select {
	case s.tabs <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("browser: waiting for a free tab: %w", ctx.Err())
	}

	browserCtx, err := s.browser()
	if err != nil {
		<-s.tabs
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	p := newPage(tabCtx, s.cfg.IdleWait, func() {
		tabCancel()
		<-s.tabs
	})

	if err := p.run(ctx, stealth(s.cfg)); err != nil {
		p.Close()
		s.markUnhealthy(browserCtx)
		return nil, fmt.Errorf("browser: prepare tab: %w", err)
	}
	return p, nil
}

// markUnhealthy drops the browser if it has died so the next NewPage
// restarts it.
func (s *Session) markUnhealthy(browserCtx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browserCtx == browserCtx && browserCtx.Err() != nil {
		s.shutdownLocked()
	}
}

func (s *Session) shutdownLocked() {
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	s.browserCtx = nil
	s.browserCancel = nil
	s.allocCancel = nil
}

// Close stops the browser process. Further NewPage calls fail.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.shutdownLocked()
	return nil
}

package scrapers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"sneaker-hunter/pkg/browser"
	"sneaker-hunter/pkg/models"
	"sneaker-hunter/pkg/navigator"
)

// Renderer loads a page for a rendered-page adapter and hands the final
// document to extract while the page is still open.
type Renderer interface {
	Render(ctx context.Context, url, label string, extract func(doc *goquery.Document) error) error
}

// BrowserRenderer renders through the shared browser session, passing every
// navigation through the challenge protocol.
type BrowserRenderer struct {
	Session  *browser.Session
	Protocol *navigator.Protocol
	// DebugDir, when set, receives a screenshot and the HTML of pages whose
	// extraction failed.
	DebugDir string
	Logger   *slog.Logger
}

func (r *BrowserRenderer) Render(ctx context.Context, url, label string, extract func(doc *goquery.Document) error) error {
	if r == nil || r.Session == nil {
		return fmt.Errorf("%w: no browser configured", models.ErrSourceUnavailable)
	}
	page, err := r.Session.NewPage(ctx)
	if err != nil {
		return err
	}
	defer page.Close()

	res, err := r.Protocol.Navigate(ctx, page, url, label)
	defer res.Close()
	if err != nil {
		return err
	}

	html, err := res.Page.HTML(ctx)
	if err != nil {
		return fmt.Errorf("read rendered html: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("parse rendered html: %w", err)
	}
	if err := extract(doc); err != nil {
		r.capture(ctx, res.Page, label)
		return err
	}
	return nil
}

type capturer interface {
	Capture(ctx context.Context, dir, label string) error
}

func (r *BrowserRenderer) capture(ctx context.Context, page navigator.Page, label string) {
	if r.DebugDir == "" {
		return
	}
	c, ok := page.(capturer)
	if !ok {
		return
	}
	log := r.Logger
	if log == nil {
		log = slog.Default()
	}
	if err := c.Capture(ctx, r.DebugDir, label); err != nil {
		log.Warn("debug capture failed", slog.String("source", label), slog.String("error", err.Error()))
		return
	}
	log.Info("saved debug capture", slog.String("source", label), slog.String("dir", r.DebugDir))
}

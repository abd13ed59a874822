package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"sneaker-hunter/pkg/navigator"
)

// Page is one browser tab.
type Page struct {
	ctx      context.Context
	idleWait time.Duration

	closeOnce sync.Once
	release   func()
}

func newPage(tabCtx context.Context, idleWait time.Duration, release func()) *Page {
	return &Page{ctx: tabCtx, idleWait: idleWait, release: release}
}

// run executes actions in the tab, bounded by the caller's ctx. Cancelling
// ctx stops the actions but leaves the tab open.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Navigate loads url and then waits for the networkIdle lifecycle event,
// since challenge scripts run after the document itself has loaded.
func (p *Page) Navigate(ctx context.Context, url string) error {
	idle := make(chan struct{}, 1)
	listenCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()

	chromedp.ListenTarget(listenCtx, func(ev any) {
		if e, ok := ev.(*cdppage.EventLifecycleEvent); ok && e.Name == "networkIdle" {
			select {
			case idle <- struct{}{}:
			default:
			}
		}
	})

	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return err
	}

	timer := time.NewTimer(p.idleWait)
	defer timer.Stop()
	select {
	case <-idle:
	case <-timer.C:
		// Long-polling pages never go idle; the load event is enough.
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

const bodyTextJS = `document.body ? document.body.innerText : ""`

func (p *Page) State(ctx context.Context) (navigator.PageState, error) {
	var st navigator.PageState
	err := p.run(ctx,
		chromedp.Location(&st.URL),
		chromedp.Title(&st.Title),
		chromedp.Evaluate(bodyTextJS, &st.Body),
	)
	return st, err
}

// HTML returns the rendered document.
func (p *Page) HTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// Evaluate runs a JS expression and decodes its result into out.
func (p *Page) Evaluate(ctx context.Context, expr string, out any) error {
	return p.run(ctx, chromedp.Evaluate(expr, out))
}

// Capture writes a screenshot and the page HTML into dir for debugging
// failed extractions.
func (p *Page) Capture(ctx context.Context, dir, label string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	stamp := time.Now().Format("20060102-150405")
	base := filepath.Join(dir, fmt.Sprintf("%s_%s", strings.ToLower(strings.ReplaceAll(label, " ", "_")), stamp))

	var buf []byte
	if err := p.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return fmt.Errorf("capture screenshot: %w", err)
	}
	if err := os.WriteFile(base+".png", buf, 0o644); err != nil {
		return err
	}

	html, err := p.HTML(ctx)
	if err != nil {
		return fmt.Errorf("capture html: %w", err)
	}
	return os.WriteFile(base+".html", []byte(html), 0o644)
}

// Close closes the tab. Safe to call more than once.
func (p *Page) Close() error {
	p.closeOnce.Do(p.release)
	return nil
}

var _ navigator.Page = (*Page)(nil)

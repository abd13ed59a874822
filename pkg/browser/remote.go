package browser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chromedp/chromedp"

	"sneaker-hunter/pkg/navigator"
)

// RemoteUnblocker hands navigations to a hosted browser reached over the
// DevTools websocket (unblocking browser services expose one per session).
type RemoteUnblocker struct {
	endpoint string
	cfg      Config
	logger   *slog.Logger
}

func NewRemoteUnblocker(endpoint string, cfg Config, logger *slog.Logger) *RemoteUnblocker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteUnblocker{endpoint: endpoint, cfg: cfg.withDefaults(), logger: logger}
}

func (u *RemoteUnblocker) Unblock(ctx context.Context, url string, opts navigator.NavigationOptions, sourceLabel string) (navigator.Page, navigator.Response, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), u.endpoint)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	p := newPage(tabCtx, u.cfg.IdleWait, func() {
		tabCancel()
		allocCancel()
	})

	navCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	runCtx, cancelRun := context.WithCancel(tabCtx)
	defer cancelRun()
	stop := context.AfterFunc(navCtx, cancelRun)
	defer stop()

	resp, err := chromedp.RunResponse(runCtx, chromedp.Navigate(url))
	if err != nil {
		p.Close()
		if navCtx.Err() != nil {
			err = navCtx.Err()
		}
		return nil, navigator.Response{}, fmt.Errorf("unblocker %s: %w", sourceLabel, err)
	}

	out := navigator.Response{URL: url}
	if resp != nil {
		out.Status = int(resp.Status)
		out.URL = resp.URL
	}
	u.logger.Info("unblocker navigation finished",
		slog.String("source", sourceLabel),
		slog.String("url", url),
		slog.Int("status", out.Status),
	)
	return p, out, nil
}

var _ navigator.Unblocker = (*RemoteUnblocker)(nil)

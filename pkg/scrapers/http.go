package scrapers

import (
	"fmt"
	"net/url"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"

	"sneaker-hunter/pkg/browser"
)

// NewHTTPClient returns a resty client for a structured-api source. The
// transport carries the Cloudflare fingerprint workaround and redirects are
// kept on the source's own host.
func NewHTTPClient(baseURL string, timeout time.Duration) (*resty.Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}

	c := resty.New()
	c.SetBaseURL(baseURL)
	c.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(c.GetClient().Transport)
	c.SetHeader("User-Agent", browser.DefaultUserAgent)
	c.SetHeader("Accept", "application/json")
	c.SetHeader("Accept-Language", browser.DefaultAcceptLanguage)
	c.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(u.Hostname()))
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return c, nil
}

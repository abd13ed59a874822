package navigator

import (
	"regexp"
	"strings"
)

// PageState is what the protocol inspects after each navigation or poll.
type PageState struct {
	URL   string
	Title string
	Body  string
}

// Signature recognizes one family of bot-challenge interstitials. A page
// matches when any non-nil pattern matches its field.
type Signature struct {
	Name  string
	URL   *regexp.Regexp
	Title *regexp.Regexp
	Body  *regexp.Regexp
}

func (s Signature) Match(st PageState) bool {
	if s.URL != nil && s.URL.MatchString(st.URL) {
		return true
	}
	if s.Title != nil && s.Title.MatchString(st.Title) {
		return true
	}
	if s.Body != nil && s.Body.MatchString(st.Body) {
		return true
	}
	return false
}

// DefaultSignatures covers the challenge pages sneaker sites put in front of
// their catalogs.
var DefaultSignatures = []Signature{
	{
		Name:  "cloudflare",
		URL:   regexp.MustCompile(`/cdn-cgi/challenge-platform|__cf_chl_`),
		Title: regexp.MustCompile(`(?i)^(just a moment|attention required|please wait)`),
		Body:  regexp.MustCompile(`(?i)checking (if the site connection is secure|your browser before accessing)|cf-chl-widget|verify you are human`),
	},
	{
		Name:  "perimeterx",
		URL:   regexp.MustCompile(`/px-captcha|captcha\.px-cdn`),
		Title: regexp.MustCompile(`(?i)access to this page has been denied`),
		Body:  regexp.MustCompile(`(?i)press (&|and) hold|px-captcha`),
	},
	{
		Name: "datadome",
		URL:  regexp.MustCompile(`captcha-delivery\.com`),
		Body: regexp.MustCompile(`(?i)geo\.captcha-delivery\.com|datadome`),
	},
	{
		Name:  "akamai",
		Title: regexp.MustCompile(`(?i)^access denied$`),
		Body:  regexp.MustCompile(`(?is)you don't have permission to access .* on this server.*reference #`),
	},
	{
		Name: "incapsula",
		Body: regexp.MustCompile(`(?i)incapsula incident id|_Incapsula_Resource`),
	},
}

func matchAny(sigs []Signature, st PageState) (Signature, bool) {
	st.Body = truncate(st.Body, 64<<10)
	for _, s := range sigs {
		if s.Match(st) {
			return s, true
		}
	}
	return Signature{}, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}

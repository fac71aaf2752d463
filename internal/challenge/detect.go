package challenge

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Kind classifies a challenge page.
type Kind string

const (
	KindNone       Kind = ""
	KindCloudflare Kind = "cloudflare"
	KindTurnstile  Kind = "cloudflare-turnstile"
	KindHCaptcha   Kind = "hcaptcha"
	KindReCaptcha  Kind = "recaptcha"
	KindAntiBot    Kind = "anti-bot"
)

// Detect classifies a page from its title and HTML.
func Detect(title, html string) Kind {
	titleLower := strings.ToLower(title)
	htmlLower := strings.ToLower(html)

	switch {
	case strings.Contains(titleLower, "just a moment"),
		strings.Contains(titleLower, "attention required"),
		strings.Contains(htmlLower, "cf-challenge"),
		strings.Contains(htmlLower, "cf_chl_opt"):
		return KindCloudflare
	case strings.Contains(htmlLower, "challenges.cloudflare.com/turnstile"),
		strings.Contains(htmlLower, "cf-turnstile"):
		return KindTurnstile
	case strings.Contains(htmlLower, "hcaptcha.com"),
		strings.Contains(htmlLower, "h-captcha"):
		return KindHCaptcha
	case strings.Contains(htmlLower, "google.com/recaptcha"),
		strings.Contains(htmlLower, "g-recaptcha"):
		return KindReCaptcha
	case strings.Contains(titleLower, "access denied"),
		strings.Contains(titleLower, "blocked"),
		strings.Contains(titleLower, "bot detection"),
		strings.Contains(htmlLower, "robot or human"):
		return KindAntiBot
	}
	return KindNone
}

// turnstileSelector matches the Turnstile widget container or its iframe.
const turnstileSelector = `.cf-turnstile, #turnstile-wrapper, iframe[src*="challenges.cloudflare.com"]`

// HasTurnstileWidget reports whether html contains a Turnstile widget.
func HasTurnstileWidget(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	return doc.Find(turnstileSelector).Length() > 0
}

// PageTitle extracts the <title> text from html.
func PageTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

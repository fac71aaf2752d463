package portal

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/jmylchreest/sessionkeeper/internal/challenge"
)

// PreflightResult describes a plain HTTP fetch of the login page.
type PreflightResult struct {
	StatusCode int
	Title      string
	Challenge  challenge.Kind
}

// Preflight fetches targetURL without a browser and classifies any
// challenge wall in front of it.
func Preflight(ctx context.Context, targetURL, userAgent string, timeout time.Duration) (PreflightResult, error) {
	var result PreflightResult

	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(timeout)

	var fetchErr error
	var responded bool
	c.OnResponse(func(r *colly.Response) {
		responded = true
		html := string(r.Body)
		result.StatusCode = r.StatusCode
		result.Title = challenge.PageTitle(html)
		result.Challenge = challenge.Detect(result.Title, html)
	})
	c.OnError(func(r *colly.Response, err error) {
		responded = true
		if r == nil || r.StatusCode == 0 {
			fetchErr = fmt.Errorf("preflight error: %w", err)
			return
		}
		// Challenge walls answer 403/503 with a body worth classifying.
		html := string(r.Body)
		result.StatusCode = r.StatusCode
		result.Title = challenge.PageTitle(html)
		result.Challenge = challenge.Detect(result.Title, html)
		if result.Challenge == challenge.KindNone {
			fetchErr = fmt.Errorf("preflight error: %w", err)
		}
	})

	if err := c.Visit(targetURL); err != nil && !responded {
		return result, fmt.Errorf("failed to visit URL: %w", err)
	}
	return result, fetchErr
}

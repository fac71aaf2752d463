package session

import (
	"context"
	"strings"

	"github.com/jmylchreest/sessionkeeper/internal/browser"
	"github.com/jmylchreest/sessionkeeper/internal/logger"
)

// ChallengeMarker is the query token a challenge wall adds to the URL it
// redirects to.
const ChallengeMarker = "__cf_chl_rt_tk"

// RewriteUserAgent removes the headless marker from ua.
func RewriteUserAgent(ua string) string {
	return strings.ReplaceAll(ua, "HeadlessChrome/", "Chrome/")
}

// IsPlaceholderURL reports whether url is a blank or internal browser page.
func IsPlaceholderURL(url string) bool {
	return strings.Contains(url, "about:blank") || strings.Contains(url, "chrome://")
}

// HasChallengeMarker reports whether url carries the challenge token.
func HasChallengeMarker(url string) bool {
	return strings.Contains(url, ChallengeMarker)
}

// spoofUserAgent rewrites the headless user agent of a newly created page
// and, in stealth mode, installs the stealth script.
func (sc *SecureContext) spoofUserAgent(ctx context.Context, ev Event) {
	page := ev.Page
	NonFatal(ctx, "override user agent", func(ctx context.Context) error {
		ua, err := page.UserAgent(ctx)
		if err != nil {
			return err
		}
		return page.SetUserAgent(ctx, RewriteUserAgent(ua))
	})
	if sc.stealth {
		NonFatal(ctx, "install stealth script", func(ctx context.Context) error {
			return page.Run(ctx, browser.StealthAction())
		})
	}
}

// watchNavigation records every meaningful navigation and starts a solve
// when the URL carries the challenge marker.
func (sc *SecureContext) watchNavigation(ctx context.Context, ev Event) {
	url := ev.URL
	if url == "" || url == "about:blank" {
		return
	}

	sc.log.Debug("frame navigated", "url", url)
	logger.Metadata("Frame navigated: %s", url)

	if !HasChallengeMarker(url) {
		return
	}

	record := newChallengeEvent(url)
	sc.state.addChallenge(record)
	sc.log.Info("challenge detected", "challenge_id", record.ID, "url", url)
	logger.Metadata("Challenge detected: %s (%s)", url, record.ID)

	page := ev.Page
	sc.tasks.Go("solve challenge", func(ctx context.Context) error {
		sc.solve(ctx, record, page)
		return nil
	})
}

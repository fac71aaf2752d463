package portal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/jmylchreest/sessionkeeper/internal/browser"
	"github.com/jmylchreest/sessionkeeper/internal/credentials"
)

type loginOutcome int

const (
	outcomePending loginOutcome = iota
	outcomeSuccess
	outcomeFailure
)

// driver performs the browser steps of a login.
type driver interface {
	Navigate(ctx context.Context, page browser.Page, url string) error
	FillLogin(ctx context.Context, page browser.Page, sel credentials.Selectors, username, password string) error
	AwaitOutcome(ctx context.Context, page browser.Page, sel credentials.Selectors) (loginOutcome, error)
	HTML(ctx context.Context, page browser.Page) (string, error)
}

type chromeDriver struct {
	poll time.Duration
}

func (chromeDriver) Navigate(ctx context.Context, page browser.Page, url string) error {
	return page.Run(ctx, chromedp.Navigate(url))
}

func (chromeDriver) FillLogin(ctx context.Context, page browser.Page, sel credentials.Selectors, username, password string) error {
	return page.Run(ctx,
		chromedp.WaitVisible(sel.Username, chromedp.ByQuery),
		chromedp.SendKeys(sel.Username, username, chromedp.ByQuery),
		chromedp.SendKeys(sel.Password, password, chromedp.ByQuery),
		chromedp.Click(sel.Submit, chromedp.ByQuery),
	)
}

// AwaitOutcome polls for the success or failure selector until ctx is done.
func (d chromeDriver) AwaitOutcome(ctx context.Context, page browser.Page, sel credentials.Selectors) (loginOutcome, error) {
	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()
	for {
		var success, failure bool
		err := page.Run(ctx,
			chromedp.Evaluate(presentJS(sel.Success), &success),
			chromedp.Evaluate(presentJS(sel.Failure), &failure),
		)
		switch {
		case err != nil && ctx.Err() == nil:
			return outcomePending, err
		case success:
			return outcomeSuccess, nil
		case failure:
			return outcomeFailure, nil
		}
		select {
		case <-ctx.Done():
			return outcomePending, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (chromeDriver) HTML(ctx context.Context, page browser.Page) (string, error) {
	var html string
	err := page.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// presentJS evaluates to whether selector matches an element. An empty
// selector never matches.
func presentJS(selector string) string {
	if selector == "" {
		return "false"
	}
	return "document.querySelector(" + jsString(selector) + ") !== null"
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

var errNoLoginURL = errors.New("account has no login URL")

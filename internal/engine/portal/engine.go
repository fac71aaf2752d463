// Package portal is a generic selector-driven login engine. It signs in to
// a portal inside the account's secure browser context and reports a
// summary of the page it lands on.
package portal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmylchreest/sessionkeeper/internal/browser"
	"github.com/jmylchreest/sessionkeeper/internal/logger"
	"github.com/jmylchreest/sessionkeeper/internal/scrape"
)

// DefaultUserAgent is sent by the static preflight.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config tunes the engine.
type Config struct {
	// Preflight fetches the login page over plain HTTP first.
	Preflight bool
	// LoginTimeout bounds waiting for the login outcome.
	LoginTimeout time.Duration
	// PollInterval is the delay between outcome checks.
	PollInterval time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Preflight:    true,
		LoginTimeout: 30 * time.Second,
		PollInterval: 250 * time.Millisecond,
	}
}

// ErrNoContext is returned by the factory when the options carry no
// secure context.
var ErrNoContext = errors.New("portal engine requires a browser context")

// Factory returns a scrape.Factory building portal engines.
func Factory(cfg Config) scrape.Factory {
	return func(opts scrape.Options) (scrape.Engine, error) {
		if opts.Context == nil {
			return nil, ErrNoContext
		}
		return &Engine{
			cfg:    cfg,
			opts:   opts,
			ctx:    opts.Context,
			driver: chromeDriver{poll: cfg.PollInterval},
		}, nil
	}
}

// pageOpener is the part of a secure context the engine uses.
type pageOpener interface {
	NewPage(ctx context.Context) (browser.Page, error)
}

// Engine logs in to one portal account.
type Engine struct {
	cfg      Config
	opts     scrape.Options
	ctx      pageOpener
	driver   driver
	progress []func(scrape.ProgressEvent)
}

func (e *Engine) OnProgress(fn func(scrape.ProgressEvent)) {
	e.progress = append(e.progress, fn)
}

func (e *Engine) emit(companyID string, phase scrape.Phase) {
	for _, fn := range e.progress {
		fn(scrape.ProgressEvent{CompanyID: companyID, Phase: phase})
	}
}

// Scrape runs the login flow. Browser failures are returned as errors;
// a rejected or slow login is an unsuccessful Result.
func (e *Engine) Scrape(ctx context.Context, req scrape.Request) (scrape.Result, error) {
	account := req.Account
	id := account.CompanyID
	log := logger.For("portal").With("company", id)

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	e.emit(id, scrape.PhaseInitializing)
	if account.LoginURL == "" {
		return scrape.Result{}, errNoLoginURL
	}
	e.emit(id, scrape.PhaseStartScraping)

	if e.cfg.Preflight {
		pre, err := Preflight(ctx, account.LoginURL, DefaultUserAgent, e.cfg.LoginTimeout)
		switch {
		case err != nil:
			log.Debug("preflight failed", "error", err)
		case pre.Challenge != "":
			log.Info("challenge wall in front of login page", "kind", pre.Challenge, "status", pre.StatusCode)
		default:
			log.Debug("preflight ok", "status", pre.StatusCode, "title", pre.Title)
		}
	}

	page, err := e.ctx.NewPage(ctx)
	if err != nil {
		return scrape.Result{}, fmt.Errorf("open page: %w", err)
	}

	result, err := e.login(ctx, page, req)

	e.emit(id, scrape.PhaseEndScraping)
	if cerr := page.Close(context.WithoutCancel(ctx)); cerr != nil {
		log.Debug("closing page", "error", cerr)
	}
	e.emit(id, scrape.PhaseTerminating)
	return result, err
}

func (e *Engine) login(ctx context.Context, page browser.Page, req scrape.Request) (scrape.Result, error) {
	account := req.Account
	id := account.CompanyID

	if err := e.driver.Navigate(ctx, page, account.LoginURL); err != nil {
		return scrape.Result{}, fmt.Errorf("navigate to login: %w", err)
	}

	e.emit(id, scrape.PhaseLoggingIn)
	if err := e.driver.FillLogin(ctx, page, account.Selectors, req.Credentials["username"], req.Credentials["password"]); err != nil {
		return scrape.Result{}, fmt.Errorf("fill login form: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, e.cfg.LoginTimeout)
	defer cancel()
	outcome, err := e.driver.AwaitOutcome(waitCtx, page, account.Selectors)
	switch {
	case outcome == outcomeFailure:
		e.emit(id, scrape.PhaseLoginFailed)
		return scrape.Failed(scrape.ErrorInvalidPassword, "login rejected"), nil
	case errors.Is(err, context.DeadlineExceeded):
		e.emit(id, scrape.PhaseLoginFailed)
		return scrape.Failed(scrape.ErrorTimeout, fmt.Sprintf("no login outcome after %s", e.cfg.LoginTimeout)), nil
	case err != nil:
		return scrape.Result{}, fmt.Errorf("await login: %w", err)
	}

	e.emit(id, scrape.PhaseLoginSuccess)

	html, err := e.driver.HTML(ctx, page)
	if err != nil {
		return scrape.Result{}, fmt.Errorf("read landing page: %w", err)
	}
	summary, err := Summarize(page.URL(), html)
	if err != nil {
		return scrape.Result{}, fmt.Errorf("summarize landing page: %w", err)
	}
	return scrape.Result{Success: true, Data: summary.data()}, nil
}

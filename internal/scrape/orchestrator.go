package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/google/uuid"

	"github.com/jmylchreest/sessionkeeper/internal/credentials"
	"github.com/jmylchreest/sessionkeeper/internal/logger"
	"github.com/jmylchreest/sessionkeeper/internal/session"
)

// Orchestrator runs single scrape attempts.
type Orchestrator struct {
	factory Factory
	prepare func(Account) map[string]string
}

// NewOrchestrator returns an Orchestrator building engines with factory.
func NewOrchestrator(factory Factory) *Orchestrator {
	return &Orchestrator{factory: factory, prepare: credentials.Prepare}
}

// WithPreparer replaces the credential preparer.
func (o *Orchestrator) WithPreparer(fn func(Account) map[string]string) *Orchestrator {
	o.prepare = fn
	return o
}

// Run performs one scrape of account. It never returns an error: engine
// failures and panics come back as an unsuccessful Result.
func (o *Orchestrator) Run(ctx context.Context, account Account, opts Options, onProgress func(companyID string, phase Phase)) (result Result) {
	log := logger.For("scrape").With("run_id", uuid.NewString(), "company", account.CompanyID)
	log.Info("started")

	defer func() {
		if r := recover(); r != nil {
			log.Error("scrape panicked", "panic", fmt.Sprint(r))
			result = Failed(ErrorGeneric, nonEmpty(fmt.Sprint(r), fmt.Sprintf("panic: %T", r)))
		}
	}()

	if opts.CompanyID == "" {
		opts.CompanyID = account.CompanyID
	}

	engine, err := o.factory(opts)
	if err != nil {
		log.Error("engine creation failed", "error", err)
		return Failed(ErrorGeneric, errorMessage(err))
	}

	if sc := opts.Context; sc != nil {
		unsubscribe := sc.Bus().Subscribe(session.EventScrapeProgress, endScrapingSaver(sc, log))
		defer unsubscribe()
	}

	engine.OnProgress(func(ev ProgressEvent) {
		log.Info(fmt.Sprintf("[%s] %s", ev.CompanyID, ev.Phase))
		if onProgress != nil {
			onProgress(ev.CompanyID, ev.Phase)
		}
		if sc := opts.Context; sc != nil {
			done := sc.Bus().Publish(session.Event{
				Kind:     session.EventScrapeProgress,
				Progress: session.ProgressEvent{Identity: ev.CompanyID, Phase: string(ev.Phase)},
			})
			// The engine closes its pages right after END_SCRAPING; the
			// save must finish first.
			if ev.Phase == PhaseEndScraping {
				select {
				case <-done:
				case <-ctx.Done():
				}
			}
		}
	})

	req := Request{Account: account, Credentials: mergeCredentials(account, o.prepare(account))}
	res, err := engine.Scrape(ctx, req)
	if err != nil {
		log.Error("scrape failed", "error", err)
		return Failed(ErrorGeneric, errorMessage(err))
	}

	if !res.Success {
		log.Warn(fmt.Sprintf("error: %s %s", res.ErrorType, res.ErrorMessage))
	}
	log.Info("ended")
	return res
}

// errorMessage returns err's text, or its type when the text is empty.
func errorMessage(err error) string {
	return nonEmpty(err.Error(), fmt.Sprintf("scrape failed: %T", err))
}

func nonEmpty(msg, fallback string) string {
	if msg == "" {
		return fallback
	}
	return msg
}

func mergeCredentials(account Account, prepared map[string]string) map[string]string {
	out := make(map[string]string, len(account.Credentials)+len(prepared))
	maps.Copy(out, account.Credentials)
	maps.Copy(out, prepared)
	return out
}

// endScrapingSaver saves the context's cookies from its first page when
// END_SCRAPING is dispatched.
func endScrapingSaver(sc *session.SecureContext, log *slog.Logger) session.Handler {
	return func(ctx context.Context, ev session.Event) {
		if Phase(ev.Progress.Phase) != PhaseEndScraping {
			return
		}
		session.NonFatal(ctx, "save cookies at end of scraping", func(ctx context.Context) error {
			pages, err := sc.Pages(ctx)
			if err != nil {
				return err
			}
			log.Debug("pages at end of scraping", "count", len(pages))
			if len(pages) == 0 {
				return nil
			}
			return sc.SaveCookies(ctx, pages[0])
		})
	}
}

// Package scrape runs one scraping engine attempt for an account and ties
// its progress stream to the account's secure browser context.
package scrape

import (
	"context"
	"time"

	"github.com/jmylchreest/sessionkeeper/internal/credentials"
	"github.com/jmylchreest/sessionkeeper/internal/session"
)

// Phase is a scraping progress stage reported by an engine.
type Phase string

const (
	PhaseInitializing   Phase = "INITIALIZING"
	PhaseStartScraping  Phase = "START_SCRAPING"
	PhaseLoggingIn      Phase = "LOGGING_IN"
	PhaseLoginSuccess   Phase = "LOGIN_SUCCESS"
	PhaseLoginFailed    Phase = "LOGIN_FAILED"
	PhaseChangePassword Phase = "CHANGE_PASSWORD"
	PhaseEndScraping    Phase = "END_SCRAPING"
	PhaseTerminating    Phase = "TERMINATING"
)

// ErrorType classifies a failed scrape.
type ErrorType string

const (
	ErrorGeneric         ErrorType = "GENERIC"
	ErrorInvalidPassword ErrorType = "INVALID_PASSWORD"
	ErrorChangePassword  ErrorType = "CHANGE_PASSWORD"
	ErrorTimeout         ErrorType = "TIMEOUT"
	ErrorAccountBlocked  ErrorType = "ACCOUNT_BLOCKED"
)

// Account is the configured account being scraped.
type Account = credentials.Account

// ProgressEvent is one phase change reported by an engine.
type ProgressEvent struct {
	CompanyID string `json:"companyId"`
	Phase     Phase  `json:"phase"`
}

// Result is the outcome of one scrape attempt.
type Result struct {
	Success      bool           `json:"success" yaml:"success"`
	ErrorType    ErrorType      `json:"errorType,omitempty" yaml:"errorType,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty" yaml:"errorMessage,omitempty"`
	Data         map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// Failed builds an unsuccessful result.
func Failed(t ErrorType, msg string) Result {
	return Result{Success: false, ErrorType: t, ErrorMessage: msg}
}

// Options configure an engine for one run.
type Options struct {
	CompanyID string
	// Context is the account's secure browser context. When set, progress
	// events are also published on its bus.
	Context *session.SecureContext
	Timeout time.Duration
	Verbose bool
}

// Request is what an engine is asked to scrape.
type Request struct {
	Account     Account
	Credentials map[string]string
}

// Engine is a portal-specific scraper.
type Engine interface {
	// OnProgress registers fn for every progress event. Engines call fn
	// synchronously; it may block briefly.
	OnProgress(fn func(ProgressEvent))
	Scrape(ctx context.Context, req Request) (Result, error)
}

// Factory builds an engine for the given options.
type Factory func(opts Options) (Engine, error)

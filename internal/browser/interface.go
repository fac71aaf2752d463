// Package browser launches Chrome and exposes the small set of browser
// capabilities the session layer depends on: isolated contexts, pages inside
// them, their lifecycle events, user-agent control and cookie access.
//
// The chromedp-backed implementations live alongside the interfaces; tests in
// other packages substitute in-memory fakes.
package browser

import (
	"context"

	"github.com/chromedp/chromedp"
)

// EventKind identifies a browser lifecycle event.
type EventKind int

const (
	// EventTargetCreated fires once per page target attached in a context.
	EventTargetCreated EventKind = iota + 1
	// EventPageLoaded fires when a page's load event completes.
	EventPageLoaded
	// EventFrameNavigated fires for every committed frame navigation.
	EventFrameNavigated
	// EventRequest fires for every network request a page issues.
	EventRequest
)

func (k EventKind) String() string {
	switch k {
	case EventTargetCreated:
		return "target_created"
	case EventPageLoaded:
		return "page_loaded"
	case EventFrameNavigated:
		return "frame_navigated"
	case EventRequest:
		return "request"
	default:
		return "unknown"
	}
}

// Event is a browser event scoped to one context.
type Event struct {
	Kind      EventKind
	Page      Page
	URL       string
	ParentURL string // parent frame URL for sub-frame navigations
}

// Cookie is a browser cookie as read from or written to a context's jar.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"` // seconds since epoch, 0 for session cookies
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	Session  bool    `json:"session,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// Page is a navigable page target inside a Context.
type Page interface {
	// ID returns the target identifier.
	ID() string

	// URL returns the main frame's last committed URL.
	URL() string

	// UserAgent reports navigator.userAgent as seen by page scripts.
	UserAgent(ctx context.Context) (string, error)

	// SetUserAgent overrides the user agent for this page.
	SetUserAgent(ctx context.Context, ua string) error

	// Cookies returns every cookie in the page's browser context.
	Cookies(ctx context.Context) ([]Cookie, error)

	// SetCookies writes cookies into the page's browser context.
	SetCookies(ctx context.Context, cookies []Cookie) error

	// Run executes chromedp actions against the page.
	Run(ctx context.Context, actions ...chromedp.Action) error

	// Close closes the page target.
	Close(ctx context.Context) error
}

// Context is an isolated browsing environment with its own cookie jar.
type Context interface {
	// ID returns the browser context identifier.
	ID() string

	// Pages returns the currently open pages, oldest first.
	Pages(ctx context.Context) ([]Page, error)

	// NewPage opens a blank page in this context.
	NewPage(ctx context.Context) (Page, error)

	// Listen registers fn for every event in this context. fn is called
	// synchronously from event dispatch and must not block.
	Listen(fn func(Event))

	// BlockURLs fails any request matching one of the patterns
	// ('*' wildcards) in pages attached after the call.
	BlockURLs(patterns []string)

	// Close disposes of the context and all its pages.
	Close(ctx context.Context) error
}

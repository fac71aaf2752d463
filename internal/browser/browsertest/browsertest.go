// Package browsertest provides in-memory browser.Context and browser.Page
// implementations for tests that must not start Chrome.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"

	"github.com/jmylchreest/sessionkeeper/internal/browser"
)

// HeadlessUA is the user agent fake pages report before any override.
const HeadlessUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/120.0.0.0 Safari/537.36"

// Context is a fake browser.Context. Events are delivered synchronously.
type Context struct {
	id string

	mu        sync.Mutex
	pages     []*Page
	listeners []func(browser.Event)
	blocked   []string
	jar       []browser.Cookie
	seq       int
	closed    bool

	// PagesErr is returned by Pages when set.
	PagesErr error
}

// NewContext returns an empty fake context.
func NewContext(id string) *Context {
	return &Context{id: id}
}

func (c *Context) ID() string { return c.id }

func (c *Context) Pages(ctx context.Context) ([]browser.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.PagesErr != nil {
		return nil, c.PagesErr
	}
	out := make([]browser.Page, len(c.pages))
	for i, p := range c.pages {
		out[i] = p
	}
	return out, nil
}

func (c *Context) NewPage(ctx context.Context) (browser.Page, error) {
	return c.OpenPage("about:blank"), nil
}

// OpenPage adds a page at url and emits EventTargetCreated for it.
func (c *Context) OpenPage(url string) *Page {
	c.mu.Lock()
	c.seq++
	p := &Page{owner: c, id: fmt.Sprintf("%s-page-%d", c.id, c.seq), url: url, ua: HeadlessUA}
	c.pages = append(c.pages, p)
	c.mu.Unlock()

	c.Emit(browser.Event{Kind: browser.EventTargetCreated, Page: p, URL: url})
	return p
}

func (c *Context) Listen(fn func(browser.Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Context) BlockURLs(patterns []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocked = append(c.blocked, patterns...)
}

// Blocked returns the installed block patterns.
func (c *Context) Blocked() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.blocked...)
}

func (c *Context) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.pages = nil
	return nil
}

// Closed reports whether Close was called.
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Emit delivers ev to every listener.
func (c *Context) Emit(ev browser.Event) {
	c.mu.Lock()
	listeners := append([]func(browser.Event){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// Jar returns a copy of the context's cookies.
func (c *Context) Jar() []browser.Cookie {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]browser.Cookie(nil), c.jar...)
}

// SetJar replaces the context's cookies.
func (c *Context) SetJar(cookies []browser.Cookie) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jar = append([]browser.Cookie(nil), cookies...)
}

// Page is a fake browser.Page sharing its owner's cookie jar.
type Page struct {
	owner *Context
	id    string

	mu      sync.Mutex
	url     string
	ua      string
	uaSet   []string
	runs    int
	cookieR int
	closed  bool

	// RunErr is returned by Run when set.
	RunErr error
	// CookiesErr is returned by Cookies when set.
	CookiesErr error
	// OnRun, when set, is called for every Run.
	OnRun func(ctx context.Context) error
}

func (p *Page) ID() string { return p.id }

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) UserAgent(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ua, nil
}

func (p *Page) SetUserAgent(ctx context.Context, ua string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ua = ua
	p.uaSet = append(p.uaSet, ua)
	return nil
}

// UserAgentOverrides returns every value passed to SetUserAgent.
func (p *Page) UserAgentOverrides() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.uaSet...)
}

func (p *Page) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	p.mu.Lock()
	p.cookieR++
	err := p.CookiesErr
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return p.owner.Jar(), nil
}

// CookieReads counts Cookies calls.
func (p *Page) CookieReads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cookieR
}

func (p *Page) SetCookies(ctx context.Context, cookies []browser.Cookie) error {
	p.owner.mu.Lock()
	defer p.owner.mu.Unlock()
	for _, c := range cookies {
		replaced := false
		for i, existing := range p.owner.jar {
			if existing.Name == c.Name && existing.Domain == c.Domain && existing.Path == c.Path {
				p.owner.jar[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			p.owner.jar = append(p.owner.jar, c)
		}
	}
	return nil
}

func (p *Page) Run(ctx context.Context, actions ...chromedp.Action) error {
	p.mu.Lock()
	p.runs++
	err, hook := p.RunErr, p.OnRun
	p.mu.Unlock()
	if hook != nil {
		if herr := hook(ctx); herr != nil {
			return herr
		}
	}
	return err
}

// Runs counts Run calls.
func (p *Page) Runs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runs
}

func (p *Page) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.owner.mu.Lock()
	defer p.owner.mu.Unlock()
	for i, other := range p.owner.pages {
		if other == p {
			p.owner.pages = append(p.owner.pages[:i], p.owner.pages[i+1:]...)
			break
		}
	}
	return nil
}

// Navigate commits url in the main frame and fires the load event.
func (p *Page) Navigate(url string) {
	p.SetURL(url)
	p.owner.Emit(browser.Event{Kind: browser.EventFrameNavigated, Page: p, URL: url})
	p.owner.Emit(browser.Event{Kind: browser.EventPageLoaded, Page: p, URL: url})
}

// SetURL changes the page URL without emitting events.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

// Request emits an EventRequest for url.
func (p *Page) Request(url string) {
	p.owner.Emit(browser.Event{Kind: browser.EventRequest, Page: p, URL: url})
}

// Opener hands out fresh fake contexts.
type Opener struct {
	mu       sync.Mutex
	contexts []*Context

	// Err is returned by NewContext when set.
	Err error
}

func (o *Opener) NewContext(ctx context.Context) (browser.Context, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return nil, o.Err
	}
	c := NewContext(fmt.Sprintf("ctx-%d", len(o.contexts)+1))
	o.contexts = append(o.contexts, c)
	return c, nil
}

// Contexts returns every context opened so far.
func (o *Opener) Contexts() []*Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Context(nil), o.contexts...)
}

// HasCookie reports whether jar holds a cookie named name.
func HasCookie(jar []browser.Cookie, name string) bool {
	for _, c := range jar {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

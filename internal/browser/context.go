package browser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// ErrContextClosed is returned by operations on a closed BrowserContext.
var ErrContextClosed = errors.New("browser context closed")

// BrowserContext is a chromedp-backed Context.
type BrowserContext struct {
	session *Session
	id      cdp.BrowserContextID

	// listenCtx scopes the browser-level listener and every page attached
	// through this context; cancelling it detaches them all.
	listenCtx    context.Context
	cancelListen context.CancelFunc

	mu        sync.RWMutex
	pages     map[target.ID]*chromePage
	listeners []func(Event)
	blocked   []string
	seq       uint64
	closed    bool
}

func newBrowserContext(s *Session, id cdp.BrowserContextID) *BrowserContext {
	listenCtx, cancel := context.WithCancel(s.browserCtx)
	c := &BrowserContext{
		session:      s,
		id:           id,
		listenCtx:    listenCtx,
		cancelListen: cancel,
		pages:        make(map[target.ID]*chromePage),
	}
	chromedp.ListenBrowser(listenCtx, c.onBrowserEvent)
	return c
}

// ID returns the browser context identifier.
func (c *BrowserContext) ID() string { return string(c.id) }

// Listen registers fn for every event in this context.
func (c *BrowserContext) Listen(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// BlockURLs installs request block patterns for pages attached afterwards.
func (c *BrowserContext) BlockURLs(patterns []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocked = append(c.blocked, patterns...)
}

func (c *BrowserContext) emit(ev Event) {
	c.mu.RLock()
	listeners := append([]func(Event){}, c.listeners...)
	c.mu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

func (c *BrowserContext) onBrowserEvent(ev any) {
	switch e := ev.(type) {
	case *target.EventTargetCreated:
		info := e.TargetInfo
		if info == nil || info.Type != "page" || info.BrowserContextID != c.id {
			return
		}
		// Attaching issues CDP calls, which must not happen on the
		// dispatch goroutine.
		go func() {
			if _, err := c.attach(info.TargetID, info.URL); err != nil && !errors.Is(err, ErrContextClosed) {
				log().Debug("attach to page failed", "target", info.TargetID, "error", err)
			}
		}()
	case *target.EventTargetDestroyed:
		c.mu.Lock()
		p, ok := c.pages[e.TargetID]
		delete(c.pages, e.TargetID)
		c.mu.Unlock()
		if ok {
			p.cancel()
		}
	}
}

// attach connects to a page target exactly once and announces it with
// EventTargetCreated. Concurrent callers for the same target wait for the
// first attach to finish.
func (c *BrowserContext) attach(id target.ID, url string) (*chromePage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrContextClosed
	}
	if p, ok := c.pages[id]; ok {
		c.mu.Unlock()
		<-p.ready
		return p, p.attachErr
	}
	c.seq++
	p := newChromePage(c, id, c.seq, url)
	pageCtx, cancel := chromedp.NewContext(c.listenCtx, chromedp.WithTargetID(id))
	p.ctx, p.cancel = pageCtx, cancel
	c.pages[id] = p
	blocked := append([]string{}, c.blocked...)
	c.mu.Unlock()

	chromedp.ListenTarget(pageCtx, p.onEvent)

	actions := []chromedp.Action{network.Enable(), page.Enable()}
	if len(blocked) > 0 {
		patterns := make([]*fetch.RequestPattern, 0, len(blocked))
		for _, b := range blocked {
			patterns = append(patterns, &fetch.RequestPattern{URLPattern: b})
		}
		actions = append(actions, fetch.Enable().WithPatterns(patterns))
	}

	if err := chromedp.Run(pageCtx, actions...); err != nil {
		p.attachErr = fmt.Errorf("attach %s: %w", id, err)
		c.mu.Lock()
		delete(c.pages, id)
		c.mu.Unlock()
		cancel()
		close(p.ready)
		return nil, p.attachErr
	}
	close(p.ready)

	c.emit(Event{Kind: EventTargetCreated, Page: p, URL: url})
	return p, nil
}

// Pages returns the open pages in attach order.
func (c *BrowserContext) Pages(ctx context.Context) ([]Page, error) {
	infos, err := target.GetTargets().Do(c.session.exec(ctx))
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}

	var attached []*chromePage
	for _, info := range infos {
		if info.Type != "page" || info.BrowserContextID != c.id {
			continue
		}
		p, err := c.attach(info.TargetID, info.URL)
		if err != nil {
			log().Debug("skipping unattachable page", "target", info.TargetID, "error", err)
			continue
		}
		attached = append(attached, p)
	}

	sort.Slice(attached, func(i, j int) bool { return attached[i].seq < attached[j].seq })
	pages := make([]Page, len(attached))
	for i, p := range attached {
		pages[i] = p
	}
	return pages, nil
}

// NewPage opens a blank page in the context.
func (c *BrowserContext) NewPage(ctx context.Context) (Page, error) {
	id, err := target.CreateTarget("about:blank").WithBrowserContextID(c.id).Do(c.session.exec(ctx))
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	return c.attach(id, "about:blank")
}

// Close disposes of the browser context.
func (c *BrowserContext) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pages := make([]*chromePage, 0, len(c.pages))
	for _, p := range c.pages {
		pages = append(pages, p)
	}
	c.pages = map[target.ID]*chromePage{}
	c.mu.Unlock()

	err := target.DisposeBrowserContext(c.id).Do(c.session.exec(ctx))
	for _, p := range pages {
		p.cancel()
	}
	c.cancelListen()
	return err
}

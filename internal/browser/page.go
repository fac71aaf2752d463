package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

type chromePage struct {
	owner *BrowserContext
	id    target.ID
	seq   uint64

	ctx       context.Context
	cancel    context.CancelFunc
	ready     chan struct{}
	attachErr error

	mu     sync.RWMutex
	url    string
	frames map[cdp.FrameID]string
}

func newChromePage(owner *BrowserContext, id target.ID, seq uint64, url string) *chromePage {
	return &chromePage{
		owner:  owner,
		id:     id,
		seq:    seq,
		cancel: func() {},
		ready:  make(chan struct{}),
		url:    url,
		frames: make(map[cdp.FrameID]string),
	}
}

func (p *chromePage) ID() string { return string(p.id) }

func (p *chromePage) URL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.url
}

// Run executes actions on the page target, aborting when ctx is done.
// Cancelling the derived context stops the actions without closing the tab.
func (p *chromePage) Run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (p *chromePage) UserAgent(ctx context.Context) (string, error) {
	var ua string
	err := p.Run(ctx, chromedp.Evaluate(`navigator.userAgent`, &ua))
	return ua, err
}

func (p *chromePage) SetUserAgent(ctx context.Context, ua string) error {
	return p.Run(ctx, emulation.SetUserAgentOverride(ua))
}

func (p *chromePage) Cookies(ctx context.Context) ([]Cookie, error) {
	raw, err := storage.GetCookies().WithBrowserContextID(p.owner.id).Do(p.owner.session.exec(ctx))
	if err != nil {
		return nil, err
	}
	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			Session:  c.Session,
			SameSite: string(c.SameSite),
		})
	}
	return cookies, nil
}

func (p *chromePage) SetCookies(ctx context.Context, cookies []Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if param.Path == "" {
			param.Path = "/"
		}
		if c.SameSite != "" {
			param.SameSite = network.CookieSameSite(c.SameSite)
		}
		if !c.Session && c.Expires > 0 {
			sec := int64(c.Expires)
			expires := cdp.TimeSinceEpoch(time.Unix(sec, int64((c.Expires-float64(sec))*1e9)))
			param.Expires = &expires
		}
		params = append(params, param)
	}
	return storage.SetCookies(params).WithBrowserContextID(p.owner.id).Do(p.owner.session.exec(ctx))
}

func (p *chromePage) Close(ctx context.Context) error {
	return target.CloseTarget(p.id).Do(p.owner.session.exec(ctx))
}

// onEvent runs on chromedp's dispatch goroutine and must not block.
func (p *chromePage) onEvent(ev any) {
	switch e := ev.(type) {
	case *page.EventFrameNavigated:
		if e.Frame == nil {
			return
		}
		url := e.Frame.URL + e.Frame.URLFragment
		p.mu.Lock()
		p.frames[e.Frame.ID] = url
		parent := ""
		if e.Frame.ParentID == "" {
			p.url = url
		} else {
			parent = p.frames[e.Frame.ParentID]
		}
		p.mu.Unlock()
		p.owner.emit(Event{Kind: EventFrameNavigated, Page: p, URL: url, ParentURL: parent})

	case *page.EventLoadEventFired:
		p.owner.emit(Event{Kind: EventPageLoaded, Page: p, URL: p.URL()})

	case *network.EventRequestWillBeSent:
		if e.Request != nil {
			p.owner.emit(Event{Kind: EventRequest, Page: p, URL: e.Request.URL})
		}

	case *fetch.EventRequestPaused:
		// Only block-listed URLs are intercepted.
		id := e.RequestID
		go func() {
			_ = chromedp.Run(p.ctx, fetch.FailRequest(id, network.ErrorReasonBlockedByClient))
		}()
	}
}

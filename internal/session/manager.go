// Package session wires isolated browser contexts for one identity each:
// anti-detection, cookie persistence, page tracking and challenge solving,
// all dispatched through a per-context event bus.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmylchreest/sessionkeeper/internal/browser"
	"github.com/jmylchreest/sessionkeeper/internal/logger"
)

// ErrIdentityInUse is returned when an identity already has an open context.
var ErrIdentityInUse = errors.New("identity already has an open context")

func log() *slog.Logger { return logger.For("session") }

// ContextOpener creates isolated browser contexts. *browser.Session
// implements it.
type ContextOpener interface {
	NewContext(ctx context.Context) (browser.Context, error)
}

// DomainTracker installs per-identity request tracking and block rules on a
// context.
type DomainTracker interface {
	Install(ctx context.Context, bctx browser.Context, identity string) error
}

// CookieJar saves and restores an identity's cookies.
type CookieJar interface {
	Save(ctx context.Context, page browser.Page, identity string) error
	Restore(ctx context.Context, page browser.Page, identity string) error
}

// Options configure every context a Manager creates.
type Options struct {
	Cookies CookieJar
	Solver  Solver
	Domains DomainTracker
	Stealth bool
}

// Manager creates SecureContexts within one browser session.
type Manager struct {
	opener ContextOpener
	opts   Options

	mu     sync.Mutex
	active map[string]*SecureContext
}

// NewManager returns a Manager opening contexts through opener.
func NewManager(opener ContextOpener, opts Options) *Manager {
	return &Manager{opener: opener, opts: opts, active: make(map[string]*SecureContext)}
}

// NewSecureContext creates a context for identity and installs, in order,
// domain tracking, anti-detection, cookie restore and page tracking. The
// coordinator starts only after all four are in place.
func (m *Manager) NewSecureContext(ctx context.Context, identity string) (*SecureContext, error) {
	m.mu.Lock()
	if _, ok := m.active[identity]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrIdentityInUse, identity)
	}
	m.active[identity] = nil
	m.mu.Unlock()

	sc, err := m.open(ctx, identity)
	m.mu.Lock()
	if err != nil {
		delete(m.active, identity)
	} else {
		m.active[identity] = sc
	}
	m.mu.Unlock()
	return sc, err
}

func (m *Manager) open(ctx context.Context, identity string) (*SecureContext, error) {
	bctx, err := m.opener.NewContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("create context for %s: %w", identity, err)
	}

	lifeCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sc := &SecureContext{
		manager:  m,
		identity: identity,
		bctx:     bctx,
		bus:      NewBus(),
		state:    &State{},
		tasks:    NewTaskSet(lifeCtx),
		persist:  m.opts.Cookies,
		solver:   m.opts.Solver,
		stealth:  m.opts.Stealth,
		log:      log().With("identity", identity),
		gates:    make(map[string]*pageGate),
		ctx:      lifeCtx,
		cancel:   cancel,
	}

	if m.opts.Domains != nil {
		if err := m.opts.Domains.Install(ctx, bctx, identity); err != nil {
			cancel()
			_ = bctx.Close(ctx)
			return nil, fmt.Errorf("install domain tracking for %s: %w", identity, err)
		}
	}

	sc.bus.Subscribe(EventTargetCreated, sc.spoofUserAgent)
	sc.bus.Subscribe(EventFrameNavigated, sc.watchNavigation)
	sc.bus.Subscribe(EventTargetCreated, sc.restoreCookies)
	sc.bus.Subscribe(EventTargetCreated, sc.trackPage)
	sc.bus.Subscribe(EventPageLoaded, sc.saveOnLoad)

	sc.bus.Start(lifeCtx)
	bctx.Listen(func(ev browser.Event) {
		busEv, ok := fromBrowser(ev)
		if !ok {
			return
		}
		done := sc.bus.Publish(busEv)
		if busEv.Kind == EventTargetCreated && ev.Page != nil {
			g := sc.gate(ev.Page.ID())
			go func() {
				<-done
				g.open()
			}()
		}
	})

	sc.log.Info("secure context created", "browser_context", bctx.ID())
	return sc, nil
}

func (m *Manager) release(identity string, sc *SecureContext) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[identity] == sc {
		delete(m.active, identity)
	}
}

// Active returns the identities with an open context.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.active))
	for id := range m.active {
		out = append(out, id)
	}
	return out
}

// SecureContext is an isolated browser context bound to one identity.
type SecureContext struct {
	manager  *Manager
	identity string
	bctx     browser.Context
	bus      *Bus
	state    *State
	tasks    *TaskSet
	persist  CookieJar
	solver   Solver
	stealth  bool
	log      *slog.Logger

	gateMu sync.Mutex
	gates  map[string]*pageGate

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

// pageGate opens once a page's TargetCreated handlers have all run.
type pageGate struct {
	once sync.Once
	ch   chan struct{}
}

func (g *pageGate) open() { g.once.Do(func() { close(g.ch) }) }

func (sc *SecureContext) gate(pageID string) *pageGate {
	sc.gateMu.Lock()
	defer sc.gateMu.Unlock()
	g, ok := sc.gates[pageID]
	if !ok {
		g = &pageGate{ch: make(chan struct{})}
		sc.gates[pageID] = g
	}
	return g
}

func (sc *SecureContext) dropGate(pageID string) {
	sc.gateMu.Lock()
	defer sc.gateMu.Unlock()
	delete(sc.gates, pageID)
}

func (sc *SecureContext) Identity() string         { return sc.identity }
func (sc *SecureContext) Browser() browser.Context { return sc.bctx }
func (sc *SecureContext) Bus() *Bus                { return sc.bus }
func (sc *SecureContext) State() *State            { return sc.state }
func (sc *SecureContext) Tasks() *TaskSet          { return sc.tasks }

// Pages returns the context's open pages, oldest first.
func (sc *SecureContext) Pages(ctx context.Context) ([]browser.Page, error) {
	return sc.bctx.Pages(ctx)
}

// NewPage opens a blank page in the context. It returns once the page's
// user agent override and cookie restore have run, so the caller's first
// navigation already carries both.
func (sc *SecureContext) NewPage(ctx context.Context) (browser.Page, error) {
	page, err := sc.bctx.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	g := sc.gate(page.ID())
	select {
	case <-g.ch:
		sc.dropGate(page.ID())
		return page, nil
	case <-ctx.Done():
		sc.dropGate(page.ID())
		_ = page.Close(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("prepare page: %w", ctx.Err())
	}
}

// SaveCookies persists the context's cookies for its identity through page.
func (sc *SecureContext) SaveCookies(ctx context.Context, page browser.Page) error {
	if sc.persist == nil {
		return nil
	}
	return sc.persist.Save(ctx, page, sc.identity)
}

// Close stops the coordinator, waits for background tasks until ctx is
// done, disposes of the browser context and releases the identity.
func (sc *SecureContext) Close(ctx context.Context) error {
	sc.closeOnce.Do(func() {
		sc.bus.Stop()
		<-sc.bus.Done()

		if err := sc.tasks.Wait(ctx); err != nil {
			sc.log.Warn("background tasks still running at close", "pending", sc.tasks.Pending(), "error", err)
			sc.tasks.Cancel()
		}

		closeCtx := ctx
		if ctx.Err() != nil {
			closeCtx = context.WithoutCancel(ctx)
		}
		if err := sc.bctx.Close(closeCtx); err != nil {
			sc.closeErr = fmt.Errorf("dispose context for %s: %w", sc.identity, err)
		}
		sc.cancel()
		sc.manager.release(sc.identity, sc)
		sc.log.Info("secure context closed")
	})
	return sc.closeErr
}

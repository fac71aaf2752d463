// Package domains records which hosts each identity's browser contacts and
// applies request block rules to its contexts.
package domains

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/jmylchreest/sessionkeeper/internal/browser"
	"github.com/jmylchreest/sessionkeeper/internal/logger"
)

// Tracker keeps one host ledger per identity.
type Tracker struct {
	blocked []string

	mu      sync.Mutex
	ledgers map[string]map[string]struct{}
}

// NewTracker returns a Tracker that blocks requests matching any of
// blocked ('*' wildcards, CDP URL pattern syntax).
func NewTracker(blocked []string) *Tracker {
	return &Tracker{
		blocked: append([]string(nil), blocked...),
		ledgers: make(map[string]map[string]struct{}),
	}
}

// Install applies the block rules to bctx and records every request host
// it issues under identity.
func (t *Tracker) Install(ctx context.Context, bctx browser.Context, identity string) error {
	if len(t.blocked) > 0 {
		bctx.BlockURLs(t.blocked)
	}

	t.mu.Lock()
	if _, ok := t.ledgers[identity]; !ok {
		t.ledgers[identity] = make(map[string]struct{})
	}
	t.mu.Unlock()

	bctx.Listen(func(ev browser.Event) {
		if ev.Kind == browser.EventRequest {
			t.record(identity, ev.URL)
		}
	})

	logger.Debug("domain tracking installed", "identity", identity, "blocked", len(t.blocked))
	return nil
}

func (t *Tracker) record(identity, raw string) {
	host := hostOf(raw)
	if host == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	ledger, ok := t.ledgers[identity]
	if !ok {
		ledger = make(map[string]struct{})
		t.ledgers[identity] = ledger
	}
	ledger[host] = struct{}{}
}

// Domains returns the sorted hosts contacted under identity.
func (t *Tracker) Domains(identity string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ledger := t.ledgers[identity]
	out := make([]string, 0, len(ledger))
	for host := range ledger {
		out = append(out, host)
	}
	sort.Strings(out)
	return out
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "ws" && u.Scheme != "wss") {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

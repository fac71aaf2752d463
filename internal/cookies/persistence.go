package cookies

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmylchreest/sessionkeeper/internal/browser"
	"github.com/jmylchreest/sessionkeeper/internal/logger"
)

// Persistence moves cookie jars between browser contexts and a Store.
type Persistence struct {
	store Store
}

// NewPersistence returns a Persistence writing to store.
func NewPersistence(store Store) *Persistence {
	return &Persistence{store: store}
}

// Save captures every cookie in page's browser context and stores it for
// identity, replacing whatever was there.
func (p *Persistence) Save(ctx context.Context, page browser.Page, identity string) error {
	jar, err := page.Cookies(ctx)
	if err != nil {
		return fmt.Errorf("read cookies: %w", err)
	}
	blob, err := json.Marshal(jar)
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}
	if err := p.store.Put(ctx, identity, blob); err != nil {
		return err
	}
	logger.Debug("cookies saved", "identity", identity, "count", len(jar), "url", page.URL())
	return nil
}

// Load returns the stored jar for identity. ok is false when nothing is stored.
func (p *Persistence) Load(ctx context.Context, identity string) (jar []browser.Cookie, ok bool, err error) {
	entry, err := p.store.Get(ctx, identity)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if err := json.Unmarshal(entry.Blob, &jar); err != nil {
		return nil, false, fmt.Errorf("decode cookies for %s: %w", identity, err)
	}
	return jar, true, nil
}

// Restore writes the stored jar for identity into page's browser context.
// A missing jar is not an error.
func (p *Persistence) Restore(ctx context.Context, page browser.Page, identity string) error {
	jar, ok, err := p.Load(ctx, identity)
	if err != nil || !ok {
		return err
	}
	if err := page.SetCookies(ctx, jar); err != nil {
		return fmt.Errorf("restore cookies: %w", err)
	}
	logger.Debug("cookies restored", "identity", identity, "count", len(jar))
	return nil
}

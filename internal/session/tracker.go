package session

import (
	"context"
)

// trackPage makes a newly created page the context's last active page.
func (sc *SecureContext) trackPage(ctx context.Context, ev Event) {
	sc.state.setLastActive(ev.Page)

	count := -1
	if pages, err := sc.bctx.Pages(ctx); err == nil {
		count = len(pages)
	}
	sc.log.Debug("page created", "page", ev.Page.ID(), "pages", count)
}

// saveOnLoad persists cookies in the background after a real page load.
func (sc *SecureContext) saveOnLoad(ctx context.Context, ev Event) {
	if IsPlaceholderURL(ev.URL) {
		return
	}
	page := ev.Page
	sc.tasks.Go("save cookies on load", func(ctx context.Context) error {
		return sc.SaveCookies(ctx, page)
	})
}

// restoreCookies loads the stored jar into the first page of the context.
func (sc *SecureContext) restoreCookies(ctx context.Context, ev Event) {
	if sc.persist == nil || !sc.state.markRestored() {
		return
	}
	NonFatal(ctx, "restore cookies", func(ctx context.Context) error {
		return sc.persist.Restore(ctx, ev.Page, sc.identity)
	})
}

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/sessionkeeper/internal/browser"
	"github.com/jmylchreest/sessionkeeper/internal/browser/browsertest"
)

// fakeJar records saves and restores per identity.
type fakeJar struct {
	mu       sync.Mutex
	saves    []string
	restores []string
	saveErr  error
}

func (j *fakeJar) Save(ctx context.Context, page browser.Page, identity string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.saveErr != nil {
		return j.saveErr
	}
	j.saves = append(j.saves, identity+"@"+page.URL())
	return nil
}

func (j *fakeJar) Restore(ctx context.Context, page browser.Page, identity string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.restores = append(j.restores, identity)
	return nil
}

func (j *fakeJar) Saves() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.saves...)
}

func (j *fakeJar) Restores() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.restores...)
}

type recordingTracker struct {
	installed []string
	err       error
}

func (r *recordingTracker) Install(ctx context.Context, bctx browser.Context, identity string) error {
	r.installed = append(r.installed, identity)
	return r.err
}

// settle waits for every queued bus event and background task.
func settle(t *testing.T, sc *SecureContext) {
	t.Helper()
	waitDone(t, sc.Bus().Publish(Event{Kind: EventKind(-1)}))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sc.Tasks().Wait(ctx))
}

func newTestContext(t *testing.T, opts Options, identity string) (*SecureContext, *browsertest.Context) {
	t.Helper()
	opener := &browsertest.Opener{}
	sc, err := NewManager(opener, opts).NewSecureContext(context.Background(), identity)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Close(context.Background()) })
	return sc, opener.Contexts()[0]
}

// --- Anti-detection helpers ---

func TestRewriteUserAgent(t *testing.T) {
	assert.Equal(t,
		"Mozilla/5.0 (X11) Chrome/120.0 Safari/537.36",
		RewriteUserAgent("Mozilla/5.0 (X11) HeadlessChrome/120.0 Safari/537.36"))
	assert.Equal(t, "Chrome/1", RewriteUserAgent("Chrome/1"))
}

func TestIsPlaceholderURL(t *testing.T) {
	assert.True(t, IsPlaceholderURL("about:blank"))
	assert.True(t, IsPlaceholderURL("about:blank#frag"))
	assert.True(t, IsPlaceholderURL("about:blank?x=1"))
	assert.True(t, IsPlaceholderURL("chrome://newtab/"))
	assert.True(t, IsPlaceholderURL("chrome-error://chrome://x"))
	assert.False(t, IsPlaceholderURL("https://example.com"))
	assert.False(t, IsPlaceholderURL(""))
}

func TestHasChallengeMarker(t *testing.T) {
	assert.True(t, HasChallengeMarker("https://x.test/login?__cf_chl_rt_tk=abc"))
	assert.False(t, HasChallengeMarker("https://x.test/login"))
}

// --- SecureContext Tests ---

func TestSecureContext_SpoofsUserAgentOnNewPage(t *testing.T) {
	sc, bctx := newTestContext(t, Options{}, "acme")

	page := bctx.OpenPage("about:blank")
	settle(t, sc)

	overrides := page.UserAgentOverrides()
	require.Len(t, overrides, 1)
	assert.NotContains(t, overrides[0], "HeadlessChrome")
	assert.Contains(t, overrides[0], "Chrome/120.0.0.0")
}

func TestSecureContext_StealthRunsScript(t *testing.T) {
	sc, bctx := newTestContext(t, Options{Stealth: true}, "acme")

	page := bctx.OpenPage("about:blank")
	settle(t, sc)
	assert.Equal(t, 1, page.Runs())
}

func TestSecureContext_TracksLastActivePage(t *testing.T) {
	sc, bctx := newTestContext(t, Options{}, "acme")

	first := bctx.OpenPage("about:blank")
	settle(t, sc)
	assert.Equal(t, first, sc.State().LastActive())

	second := bctx.OpenPage("about:blank")
	settle(t, sc)
	assert.Equal(t, second, sc.State().LastActive())
}

func TestSecureContext_RestoresOnlyIntoFirstPage(t *testing.T) {
	jar := &fakeJar{}
	sc, bctx := newTestContext(t, Options{Cookies: jar}, "acme")

	bctx.OpenPage("about:blank")
	bctx.OpenPage("about:blank")
	settle(t, sc)

	assert.Equal(t, []string{"acme"}, jar.Restores())
}

// storedJar restores a fixed jar into every page it is asked to.
type storedJar struct {
	jar []browser.Cookie
}

func (j *storedJar) Save(context.Context, browser.Page, string) error { return nil }

func (j *storedJar) Restore(ctx context.Context, page browser.Page, identity string) error {
	return page.SetCookies(ctx, j.jar)
}

func TestSecureContext_NewPageReadyBeforeReturn(t *testing.T) {
	for i := 0; i < 50; i++ {
		jar := &storedJar{jar: []browser.Cookie{{Name: "auth", Value: "v", Domain: "portal.example", Path: "/"}}}
		sc, bctx := newTestContext(t, Options{Cookies: jar}, "acme")

		page, err := sc.NewPage(context.Background())
		require.NoError(t, err)

		ua, err := page.UserAgent(context.Background())
		require.NoError(t, err)
		assert.NotContains(t, ua, "HeadlessChrome")
		assert.True(t, browsertest.HasCookie(bctx.Jar(), "auth"), "jar not restored before NewPage returned")

		require.NoError(t, sc.Close(context.Background()))
	}
}

func TestSecureContext_NewPageHonoursContext(t *testing.T) {
	sc, _ := newTestContext(t, Options{}, "acme")
	block := make(chan struct{})
	defer close(block)
	sc.Bus().Subscribe(EventTargetCreated, func(context.Context, Event) { <-block })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := sc.NewPage(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSecureContext_SavesOnRealLoadOnly(t *testing.T) {
	jar := &fakeJar{}
	sc, bctx := newTestContext(t, Options{Cookies: jar}, "acme")

	page := bctx.OpenPage("about:blank")
	page.Navigate("about:blank")
	page.Navigate("chrome://newtab/")
	page.Navigate("about:blank#top")
	settle(t, sc)
	assert.Empty(t, jar.Saves())

	page.Navigate("https://portal.example/home")
	settle(t, sc)
	assert.Equal(t, []string{"acme@https://portal.example/home"}, jar.Saves())
}

func TestSecureContext_SaveFailureIsSwallowed(t *testing.T) {
	jar := &fakeJar{saveErr: errors.New("disk full")}
	sc, bctx := newTestContext(t, Options{Cookies: jar}, "acme")

	page := bctx.OpenPage("about:blank")
	page.Navigate("https://portal.example/home")
	settle(t, sc)

	assert.Empty(t, jar.Saves())
}

func TestSecureContext_ChallengeSolvedOncePerNavigation(t *testing.T) {
	var mu sync.Mutex
	var solves int
	solver := SolverFunc(func(ctx context.Context, page browser.Page) (string, error) {
		mu.Lock()
		solves++
		mu.Unlock()
		return "cleared", nil
	})
	sc, bctx := newTestContext(t, Options{Solver: solver}, "acme")

	page := bctx.OpenPage("about:blank")
	page.Navigate("https://portal.example/login?__cf_chl_rt_tk=abc")
	settle(t, sc)

	challenges := sc.State().Challenges()
	require.Len(t, challenges, 1)
	c := challenges[0]
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, ChallengeSolved, c.State())
	assert.Equal(t, "cleared", c.Outcome())
	assert.Equal(t, []ChallengeState{ChallengeDetected, ChallengeSolving, ChallengeSolved}, c.History())
	assert.Equal(t, 1, solves)

	page.Navigate("https://portal.example/login?__cf_chl_rt_tk=def")
	settle(t, sc)
	assert.Len(t, sc.State().Challenges(), 2)
	assert.Equal(t, 2, solves)
}

func TestSecureContext_ChallengeFailureRecorded(t *testing.T) {
	solver := SolverFunc(func(ctx context.Context, page browser.Page) (string, error) {
		return "", errors.New("widget not found")
	})
	sc, bctx := newTestContext(t, Options{Solver: solver}, "acme")

	page := bctx.OpenPage("about:blank")
	page.Navigate("https://portal.example/?__cf_chl_rt_tk=1")
	settle(t, sc)

	challenges := sc.State().Challenges()
	require.Len(t, challenges, 1)
	assert.Equal(t, ChallengeFailed, challenges[0].State())
	assert.Contains(t, challenges[0].Reason(), "widget not found")
}

func TestSecureContext_ChallengeWithoutSolverFails(t *testing.T) {
	sc, bctx := newTestContext(t, Options{}, "acme")

	page := bctx.OpenPage("about:blank")
	page.Navigate("https://portal.example/?__cf_chl_rt_tk=1")
	settle(t, sc)

	challenges := sc.State().Challenges()
	require.Len(t, challenges, 1)
	assert.Equal(t, ChallengeFailed, challenges[0].State())
	assert.Equal(t, ErrNoSolver.Error(), challenges[0].Reason())
}

func TestSecureContext_IgnoresBlankNavigation(t *testing.T) {
	sc, bctx := newTestContext(t, Options{Solver: SolverFunc(func(context.Context, browser.Page) (string, error) {
		t.Error("solver must not run")
		return "", nil
	})}, "acme")

	page := bctx.OpenPage("about:blank")
	page.Navigate("about:blank")
	settle(t, sc)
	assert.Empty(t, sc.State().Challenges())
}

// --- Manager Tests ---

func TestManager_InstallsDomainTracking(t *testing.T) {
	tracker := &recordingTracker{}
	_, _ = newTestContext(t, Options{Domains: tracker}, "acme")
	assert.Equal(t, []string{"acme"}, tracker.installed)
}

func TestManager_DomainInstallFailureClosesContext(t *testing.T) {
	opener := &browsertest.Opener{}
	m := NewManager(opener, Options{Domains: &recordingTracker{err: errors.New("bad pattern")}})

	_, err := m.NewSecureContext(context.Background(), "acme")
	require.Error(t, err)
	assert.True(t, opener.Contexts()[0].Closed())
	assert.Empty(t, m.Active())
}

func TestManager_IdentityInUse(t *testing.T) {
	opener := &browsertest.Opener{}
	m := NewManager(opener, Options{})
	ctx := context.Background()

	sc, err := m.NewSecureContext(ctx, "acme")
	require.NoError(t, err)

	_, err = m.NewSecureContext(ctx, "acme")
	assert.ErrorIs(t, err, ErrIdentityInUse)

	require.NoError(t, sc.Close(ctx))
	again, err := m.NewSecureContext(ctx, "acme")
	require.NoError(t, err)
	require.NoError(t, again.Close(ctx))
}

func TestManager_OpenerErrorReleasesIdentity(t *testing.T) {
	opener := &browsertest.Opener{Err: errors.New("browser gone")}
	m := NewManager(opener, Options{})

	_, err := m.NewSecureContext(context.Background(), "acme")
	require.Error(t, err)
	assert.Empty(t, m.Active())
}

func TestManager_ContextsAreIsolated(t *testing.T) {
	jar := &fakeJar{}
	opener := &browsertest.Opener{}
	m := NewManager(opener, Options{Cookies: jar})
	ctx := context.Background()

	a, err := m.NewSecureContext(ctx, "A")
	require.NoError(t, err)
	b, err := m.NewSecureContext(ctx, "B")
	require.NoError(t, err)

	contexts := opener.Contexts()
	require.Len(t, contexts, 2)
	assert.NotSame(t, a.State(), b.State())
	assert.NotSame(t, a.Bus(), b.Bus())

	pageA := contexts[0].OpenPage("about:blank")
	pageA.Navigate("https://a.example/")
	settle(t, a)
	settle(t, b)

	assert.Equal(t, []string{"A@https://a.example/"}, jar.Saves())
	assert.Equal(t, pageA, a.State().LastActive())
	assert.Nil(t, b.State().LastActive())

	require.NoError(t, a.Close(ctx))
	require.NoError(t, b.Close(ctx))
}

func TestSecureContext_CloseIsOrderedAndIdempotent(t *testing.T) {
	opener := &browsertest.Opener{}
	m := NewManager(opener, Options{})
	ctx := context.Background()

	sc, err := m.NewSecureContext(ctx, "acme")
	require.NoError(t, err)

	release := make(chan struct{})
	sc.Tasks().Go("slow", func(ctx context.Context) error {
		<-release
		return nil
	})
	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()

	require.NoError(t, sc.Close(ctx))
	assert.Equal(t, 0, sc.Tasks().Pending())
	assert.True(t, opener.Contexts()[0].Closed())
	assert.Empty(t, m.Active())
	require.NoError(t, sc.Close(ctx))
}

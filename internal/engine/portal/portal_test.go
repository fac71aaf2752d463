package portal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmylchreest/sessionkeeper/internal/browser"
	"github.com/jmylchreest/sessionkeeper/internal/browser/browsertest"
	"github.com/jmylchreest/sessionkeeper/internal/challenge"
	"github.com/jmylchreest/sessionkeeper/internal/credentials"
	"github.com/jmylchreest/sessionkeeper/internal/scrape"
)

type fakeDriver struct {
	navigateErr error
	outcome     loginOutcome
	awaitErr    error
	html        string

	navigated string
	username  string
	password  string
}

func (d *fakeDriver) Navigate(ctx context.Context, page browser.Page, url string) error {
	d.navigated = url
	if p, ok := page.(*browsertest.Page); ok {
		p.SetURL(url)
	}
	return d.navigateErr
}

func (d *fakeDriver) FillLogin(ctx context.Context, page browser.Page, sel credentials.Selectors, username, password string) error {
	d.username, d.password = username, password
	return nil
}

func (d *fakeDriver) AwaitOutcome(ctx context.Context, page browser.Page, sel credentials.Selectors) (loginOutcome, error) {
	if d.awaitErr != nil {
		<-ctx.Done()
		return outcomePending, ctx.Err()
	}
	return d.outcome, nil
}

func (d *fakeDriver) HTML(ctx context.Context, page browser.Page) (string, error) {
	return d.html, nil
}

func newEngine(d driver) (*Engine, *browsertest.Context) {
	bctx := browsertest.NewContext("portal")
	cfg := DefaultConfig()
	cfg.Preflight = false
	cfg.LoginTimeout = 20 * time.Millisecond
	return &Engine{cfg: cfg, ctx: bctx, driver: d}, bctx
}

func request() scrape.Request {
	return scrape.Request{
		Account: credentials.Account{
			CompanyID: "acme",
			LoginURL:  "https://portal.acme.test/login",
		},
		Credentials: map[string]string{"username": "alice", "password": "secret"},
	}
}

func collectPhases(e *Engine) *[]scrape.Phase {
	var phases []scrape.Phase
	e.OnProgress(func(ev scrape.ProgressEvent) { phases = append(phases, ev.Phase) })
	return &phases
}

// --- Engine Tests ---

func TestEngine_SuccessfulLogin(t *testing.T) {
	d := &fakeDriver{outcome: outcomeSuccess, html: `<html><head><title>Dashboard</title></head><body><a href="/a">a</a><a href="/b">b</a><a href="/a">again</a></body></html>`}
	e, bctx := newEngine(d)
	phases := collectPhases(e)

	res, err := e.Scrape(context.Background(), request())
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Data["title"] != "Dashboard" || res.Data["links"] != 2 {
		t.Errorf("unexpected summary: %v", res.Data)
	}
	if d.username != "alice" || d.password != "secret" {
		t.Errorf("unexpected credentials %q/%q", d.username, d.password)
	}

	want := []scrape.Phase{
		scrape.PhaseInitializing, scrape.PhaseStartScraping, scrape.PhaseLoggingIn,
		scrape.PhaseLoginSuccess, scrape.PhaseEndScraping, scrape.PhaseTerminating,
	}
	if len(*phases) != len(want) {
		t.Fatalf("expected phases %v, got %v", want, *phases)
	}
	for i := range want {
		if (*phases)[i] != want[i] {
			t.Errorf("phase %d: expected %s, got %s", i, want[i], (*phases)[i])
		}
	}

	pages, _ := bctx.Pages(context.Background())
	if len(pages) != 0 {
		t.Errorf("expected engine to close its page, %d open", len(pages))
	}
}

func TestEngine_RejectedLogin(t *testing.T) {
	e, _ := newEngine(&fakeDriver{outcome: outcomeFailure})
	phases := collectPhases(e)

	res, err := e.Scrape(context.Background(), request())
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if res.Success || res.ErrorType != scrape.ErrorInvalidPassword {
		t.Errorf("expected INVALID_PASSWORD, got %+v", res)
	}
	if !containsPhase(*phases, scrape.PhaseLoginFailed) || !containsPhase(*phases, scrape.PhaseEndScraping) {
		t.Errorf("unexpected phases %v", *phases)
	}
}

func TestEngine_LoginTimeout(t *testing.T) {
	e, _ := newEngine(&fakeDriver{awaitErr: context.DeadlineExceeded})

	res, err := e.Scrape(context.Background(), request())
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if res.ErrorType != scrape.ErrorTimeout {
		t.Errorf("expected TIMEOUT, got %+v", res)
	}
}

func TestEngine_NavigationErrorStillEnds(t *testing.T) {
	e, _ := newEngine(&fakeDriver{navigateErr: errors.New("net::ERR_NAME_NOT_RESOLVED")})
	phases := collectPhases(e)

	_, err := e.Scrape(context.Background(), request())
	if err == nil {
		t.Fatal("expected navigation error")
	}
	if !containsPhase(*phases, scrape.PhaseEndScraping) || !containsPhase(*phases, scrape.PhaseTerminating) {
		t.Errorf("expected END_SCRAPING and TERMINATING, got %v", *phases)
	}
}

func TestEngine_MissingLoginURL(t *testing.T) {
	e, _ := newEngine(&fakeDriver{})
	req := request()
	req.Account.LoginURL = ""

	if _, err := e.Scrape(context.Background(), req); !errors.Is(err, errNoLoginURL) {
		t.Errorf("expected errNoLoginURL, got %v", err)
	}
}

func TestFactory_RequiresContext(t *testing.T) {
	if _, err := Factory(DefaultConfig())(scrape.Options{}); !errors.Is(err, ErrNoContext) {
		t.Errorf("expected ErrNoContext, got %v", err)
	}
}

func containsPhase(phases []scrape.Phase, p scrape.Phase) bool {
	for _, got := range phases {
		if got == p {
			return true
		}
	}
	return false
}

// --- Preflight Tests ---

func TestPreflight_DetectsChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`<html><head><title>Just a moment...</title></head><body></body></html>`))
	}))
	defer srv.Close()

	res, err := Preflight(context.Background(), srv.URL, DefaultUserAgent, time.Second)
	if err != nil {
		t.Fatalf("Preflight() error = %v", err)
	}
	if res.Challenge != challenge.KindCloudflare {
		t.Errorf("expected cloudflare challenge, got %q", res.Challenge)
	}
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", res.StatusCode)
	}
}

func TestPreflight_CleanPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Sign in</title></head><body><form></form></body></html>`))
	}))
	defer srv.Close()

	res, err := Preflight(context.Background(), srv.URL, DefaultUserAgent, time.Second)
	if err != nil {
		t.Fatalf("Preflight() error = %v", err)
	}
	if res.Challenge != challenge.KindNone || res.Title != "Sign in" {
		t.Errorf("unexpected preflight result %+v", res)
	}
}

// --- Summary Tests ---

func TestSummarize_ResolvesAndDedupesLinks(t *testing.T) {
	html := `<html><head><title> Home </title></head><body>
		<a href="/x">x</a><a href="https://portal.test/x">x abs</a>
		<a href="#top">skip</a><a href="javascript:void(0)">skip</a><a href="y">y</a>
	</body></html>`

	s, err := Summarize("https://portal.test/", html)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if s.Title != "Home" {
		t.Errorf("expected title Home, got %q", s.Title)
	}
	if s.Links != 2 {
		t.Errorf("expected 2 distinct links, got %d", s.Links)
	}
}

func TestPresentJS(t *testing.T) {
	if got := presentJS(""); got != "false" {
		t.Errorf("expected false for empty selector, got %q", got)
	}
	if got := presentJS(`a[href="x"]`); got != `document.querySelector("a[href=\"x\"]") !== null` {
		t.Errorf("unexpected script %q", got)
	}
}

package challenge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/jmylchreest/sessionkeeper/internal/browser"
	"github.com/jmylchreest/sessionkeeper/internal/logger"
)

// FlareSolverr solves challenges out of band through a FlareSolverr
// service and transplants the clearance cookies into the page's context.
type FlareSolverr struct {
	baseURL    string
	httpClient *http.Client
	maxTimeout int // milliseconds
}

type flareRequest struct {
	Cmd        string `json:"cmd"`
	URL        string `json:"url,omitempty"`
	Session    string `json:"session,omitempty"`
	MaxTimeout int    `json:"maxTimeout,omitempty"`
}

type flareResponse struct {
	Status   string         `json:"status"`
	Message  string         `json:"message"`
	Solution *FlareSolution `json:"solution,omitempty"`
	Session  string         `json:"session,omitempty"`
	StartTS  float64        `json:"startTimestamp"`
	EndTS    float64        `json:"endTimestamp"`
}

// FlareSolution is the solved page as reported by FlareSolverr.
type FlareSolution struct {
	URL       string        `json:"url"`
	Status    int           `json:"status"`
	Cookies   []flareCookie `json:"cookies"`
	UserAgent string        `json:"userAgent"`
}

type flareCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	Session  bool    `json:"session"`
	SameSite string  `json:"sameSite"`
}

// NewFlareSolverr returns a client for the service at baseURL
// (typically http://host:8191/v1).
func NewFlareSolverr(baseURL string, maxTimeout time.Duration) *FlareSolverr {
	if maxTimeout <= 0 {
		maxTimeout = 60 * time.Second
	}
	return &FlareSolverr{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: maxTimeout + 30*time.Second,
		},
		maxTimeout: int(maxTimeout / time.Millisecond),
	}
}

// Solve asks FlareSolverr for the page's URL, copies the resulting cookies
// and user agent into the page and reloads it.
func (f *FlareSolverr) Solve(ctx context.Context, page browser.Page) (string, error) {
	targetURL := page.URL()
	sol, err := f.Request(ctx, targetURL, "")
	if err != nil {
		return "", err
	}

	if err := page.SetCookies(ctx, sol.BrowserCookies()); err != nil {
		return "", fmt.Errorf("inject clearance cookies: %w", err)
	}
	if sol.UserAgent != "" {
		if err := page.SetUserAgent(ctx, sol.UserAgent); err != nil {
			return "", fmt.Errorf("apply solver user agent: %w", err)
		}
	}
	if err := page.Run(ctx, chromedp.Reload()); err != nil {
		return "", fmt.Errorf("reload after solve: %w", err)
	}
	return fmt.Sprintf("flaresolverr status %d, %d cookie(s)", sol.Status, len(sol.Cookies)), nil
}

// Request fetches targetURL through FlareSolverr, optionally inside an
// existing session.
func (f *FlareSolverr) Request(ctx context.Context, targetURL, sessionID string) (*FlareSolution, error) {
	resp, err := f.call(ctx, flareRequest{
		Cmd:        "request.get",
		URL:        targetURL,
		Session:    sessionID,
		MaxTimeout: f.maxTimeout,
	})
	if err != nil {
		return nil, err
	}

	if resp.Status != "ok" {
		logger.Debug("FlareSolverr returned error status",
			"url", targetURL,
			"status", resp.Status,
			"message", resp.Message)
		return nil, classifyFlareError(targetURL, resp.Message)
	}
	if resp.Solution == nil {
		return nil, fmt.Errorf("%w: no solution returned", ErrAntiBot)
	}

	logger.Debug("FlareSolverr solved",
		"url", targetURL,
		"session", sessionID,
		"status_code", resp.Solution.Status,
		"cookies", len(resp.Solution.Cookies),
		"duration_s", fmt.Sprintf("%.2f", (resp.EndTS-resp.StartTS)/1000))
	return resp.Solution, nil
}

// CreateSession starts a persistent FlareSolverr browser.
func (f *FlareSolverr) CreateSession(ctx context.Context, sessionID string) error {
	resp, err := f.call(ctx, flareRequest{Cmd: "sessions.create", Session: sessionID})
	if err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("session create failed: %s", resp.Message)
	}
	return nil
}

// DestroySession stops a persistent FlareSolverr browser. Failures are
// logged only.
func (f *FlareSolverr) DestroySession(ctx context.Context, sessionID string) {
	resp, err := f.call(ctx, flareRequest{Cmd: "sessions.destroy", Session: sessionID})
	if err != nil || resp.Status != "ok" {
		logger.Debug("FlareSolverr session destroy failed", "session", sessionID, "error", err)
	}
}

func (f *FlareSolverr) call(ctx context.Context, body flareRequest) (*flareResponse, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal FlareSolverr request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create FlareSolverr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrFlareSolverrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read FlareSolverr response: %w", err)
	}

	// FlareSolverr reports failures as HTTP 500 with a JSON body.
	var out flareResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		logger.Warn("FlareSolverr returned invalid response", "status_code", resp.StatusCode)
		return nil, fmt.Errorf("failed to parse FlareSolverr response: %w", err)
	}
	return &out, nil
}

func classifyFlareError(url, message string) error {
	msg := strings.ToLower(message)
	containsAny := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(msg, s) {
				return true
			}
		}
		return false
	}

	switch {
	case containsAny("timeout", "timed out"):
		return fmt.Errorf("%w: %s", ErrChallengeTimeout, message)
	case containsAny("could not be solved", "unable to solve", "failed to solve",
		"captcha", "turnstile", "cloudflare", "challenge"):
		return fmt.Errorf("%w: %s", ErrCaptcha, message)
	case containsAny("browser", "crashed", "unable to process"):
		return fmt.Errorf("FlareSolverr internal error: %s", message)
	default:
		logger.Warn("FlareSolverr failed", "url", url, "message", message)
		return fmt.Errorf("%w: %s", ErrAntiBot, message)
	}
}

// BrowserCookies converts the solution's cookies for injection.
func (s *FlareSolution) BrowserCookies() []browser.Cookie {
	out := make([]browser.Cookie, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		out = append(out, browser.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			Session:  c.Session,
			SameSite: c.SameSite,
		})
	}
	return out
}

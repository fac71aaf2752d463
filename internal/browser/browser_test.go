package browser

import (
	"errors"
	"strings"
	"testing"

	"github.com/chromedp/chromedp"
)

// --- Flags Tests ---

func TestFlags_IncludesDefaultsAndArgs(t *testing.T) {
	flags := Flags()
	want := len(chromedp.DefaultExecAllocatorOptions) + len(Args)
	if len(flags) != want {
		t.Errorf("expected %d allocator options, got %d", want, len(flags))
	}
}

func TestArgs_Hardening(t *testing.T) {
	has := map[string]bool{}
	for _, a := range Args {
		has[a] = true
	}
	for _, want := range []string{"disable-dev-shm-usage", "no-sandbox"} {
		if !has[want] {
			t.Errorf("expected %q in Args", want)
		}
	}
}

func TestStealthFlags_NotEmpty(t *testing.T) {
	if len(StealthFlags()) == 0 {
		t.Error("expected stealth flags")
	}
}

func TestStealthScript_MasksWebdriver(t *testing.T) {
	if !strings.Contains(stealthScript, "'webdriver'") {
		t.Error("expected stealth script to redefine navigator.webdriver")
	}
}

// --- FindChromePath Tests ---

func stubLookPath(t *testing.T, fn func(string) (string, error)) {
	t.Helper()
	orig := lookPath
	lookPath = fn
	t.Cleanup(func() { lookPath = orig })
}

func TestFindChromePath_FirstMatchWins(t *testing.T) {
	var tried []string
	stubLookPath(t, func(name string) (string, error) {
		tried = append(tried, name)
		if name == "chromium" {
			return "/usr/bin/chromium", nil
		}
		return "", errors.New("not found")
	})

	got := FindChromePath()
	if got != "/usr/bin/chromium" {
		t.Errorf("expected /usr/bin/chromium, got %q", got)
	}
	if tried[len(tried)-1] != "chromium" {
		t.Errorf("expected lookup to stop at chromium, last tried %q", tried[len(tried)-1])
	}
}

func TestFindChromePath_NoneFound(t *testing.T) {
	stubLookPath(t, func(string) (string, error) { return "", errors.New("not found") })

	if got := FindChromePath(); got != "" {
		t.Errorf("expected empty path, got %q", got)
	}
}

// --- EventKind Tests ---

func TestEventKind_String(t *testing.T) {
	tests := []struct {
		kind EventKind
		want string
	}{
		{EventTargetCreated, "target_created"},
		{EventPageLoaded, "page_loaded"},
		{EventFrameNavigated, "frame_navigated"},
		{EventRequest, "request"},
		{EventKind(0), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("EventKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// --- Defaults ---

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Challenge.Timeout != 2*time.Minute {
		t.Errorf("expected 2m challenge timeout, got %s", cfg.Challenge.Timeout)
	}
	if cfg.Cookies.Store != "badger" {
		t.Errorf("expected badger store, got %q", cfg.Cookies.Store)
	}
	if cfg.Cookies.Path == "" {
		t.Error("expected default cookie store path")
	}
}

// --- File loading ---

func TestInit_ReadsFile(t *testing.T) {
	path := writeConfig(t, `
browser:
  stealth: true
challenge:
  timeout: 30s
  flaresolverr_url: http://localhost:8191/v1
domains:
  blocked:
    - "*://*.doubleclick.net/*"
accounts:
  - company_id: acme
    login_url: https://portal.acme.test/login
    credentials:
      username: alice
      password: env:ACME_PASSWORD
    selectors:
      username: "#user"
      password: "#pass"
      submit: "button[type=submit]"
      success: ".dashboard"
`)
	v := viper.New()
	if err := Init(v, path); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.Browser.Stealth {
		t.Error("expected stealth enabled")
	}
	if cfg.Challenge.Timeout != 30*time.Second {
		t.Errorf("expected 30s, got %s", cfg.Challenge.Timeout)
	}
	if len(cfg.Domains.Blocked) != 1 {
		t.Errorf("expected one blocked pattern, got %v", cfg.Domains.Blocked)
	}
	acct, ok := cfg.Account("acme")
	if !ok {
		t.Fatal("expected account acme")
	}
	if acct.Credentials["password"] != "env:ACME_PASSWORD" {
		t.Errorf("unexpected password reference %q", acct.Credentials["password"])
	}
	if acct.Selectors.Success != ".dashboard" {
		t.Errorf("unexpected success selector %q", acct.Selectors.Success)
	}
}

func TestInit_EnvOverride(t *testing.T) {
	t.Setenv("SESSIONKEEPER_CHALLENGE_TIMEOUT", "45s")
	v := viper.New()
	if err := Init(v, writeConfig(t, "challenge:\n  timeout: 10s\n")); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Challenge.Timeout != 45*time.Second {
		t.Errorf("expected env override 45s, got %s", cfg.Challenge.Timeout)
	}
}

// --- Validation ---

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown store", "cookies:\n  store: redis\n", "Store"},
		{"bad flaresolverr url", "challenge:\n  flaresolverr_url: not a url\n", "FlareSolverrURL"},
		{"missing company id", "accounts:\n  - login_url: https://x.test\n", "CompanyID"},
		{"duplicate account", "accounts:\n  - company_id: a\n  - company_id: a\n", "duplicate account"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			if err := Init(v, writeConfig(t, tt.body)); err != nil {
				t.Fatalf("Init() error = %v", err)
			}
			_, err := Load(v)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

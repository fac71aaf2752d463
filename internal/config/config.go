// Package config loads sessionkeeper settings from file, environment and
// flags through viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jmylchreest/sessionkeeper/internal/credentials"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SESSIONKEEPER"

// Config is the full runtime configuration.
type Config struct {
	Browser   BrowserConfig         `mapstructure:"browser"`
	Cookies   CookiesConfig         `mapstructure:"cookies"`
	Challenge ChallengeConfig       `mapstructure:"challenge"`
	Domains   DomainsConfig         `mapstructure:"domains"`
	Scrape    ScrapeConfig          `mapstructure:"scrape"`
	Accounts  []credentials.Account `mapstructure:"accounts" validate:"dive"`
}

type BrowserConfig struct {
	ExecutablePath string `mapstructure:"executable_path"`
	Stealth        bool   `mapstructure:"stealth"`
}

type CookiesConfig struct {
	Store string `mapstructure:"store" validate:"oneof=memory badger"`
	Path  string `mapstructure:"path" validate:"required_if=Store badger"`
}

type ChallengeConfig struct {
	Timeout         time.Duration `mapstructure:"timeout" validate:"gt=0"`
	FlareSolverrURL string        `mapstructure:"flaresolverr_url" validate:"omitempty,url"`
}

type DomainsConfig struct {
	Blocked []string `mapstructure:"blocked"`
}

type ScrapeConfig struct {
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("browser.stealth", false)
	v.SetDefault("cookies.store", "badger")
	v.SetDefault("cookies.path", defaultStorePath())
	v.SetDefault("challenge.timeout", 2*time.Minute)
	v.SetDefault("scrape.timeout", 5*time.Minute)
}

func defaultStorePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "sessionkeeper", "cookies")
	}
	return filepath.Join(".sessionkeeper", "cookies")
}

// Init configures v to read the named config file, or .sessionkeeper.yaml
// from the home and working directories, plus SESSIONKEEPER_* variables.
// A .env file in the working directory is loaded into the environment
// first. A missing config file is not an error.
func Init(v *viper.Viper, cfgFile string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(".sessionkeeper")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// Load unmarshals and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints and account uniqueness.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", e.Namespace(), e.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	seen := make(map[string]bool, len(c.Accounts))
	for _, a := range c.Accounts {
		if seen[a.CompanyID] {
			return fmt.Errorf("invalid config: duplicate account %q", a.CompanyID)
		}
		seen[a.CompanyID] = true
	}
	return nil
}

// Account returns the account with the given company id.
func (c *Config) Account(id string) (credentials.Account, bool) {
	for _, a := range c.Accounts {
		if a.CompanyID == id {
			return a, true
		}
	}
	return credentials.Account{}, false
}

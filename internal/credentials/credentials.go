// Package credentials turns a configured account into the credential
// fields handed to a scraping engine.
package credentials

import (
	"os"
	"strings"
)

// EnvPrefix marks a credential value to be read from the environment.
const EnvPrefix = "env:"

// OTPTokenField is the field name carrying a long-term OTP token.
const OTPTokenField = "otpLongTermToken"

// Account is one configured portal account.
type Account struct {
	CompanyID        string            `mapstructure:"company_id" json:"companyId" validate:"required"`
	LoginURL         string            `mapstructure:"login_url" json:"loginUrl,omitempty" validate:"omitempty,url"`
	Credentials      map[string]string `mapstructure:"credentials" json:"-"`
	OTPLongTermToken string            `mapstructure:"otp_long_term_token" json:"-"`
	Selectors        Selectors         `mapstructure:"selectors" json:"-"`
}

// Selectors locate the login form on the account's portal.
type Selectors struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Submit   string `mapstructure:"submit"`
	Success  string `mapstructure:"success"`
	Failure  string `mapstructure:"failure"` // optional: marks a rejected login
}

// Preparer derives credential fields from an account.
type Preparer struct {
	// Lookup resolves env: references. Defaults to os.LookupEnv.
	Lookup func(key string) (string, bool)
}

// Prepare uses the process environment to resolve references.
func Prepare(account Account) map[string]string {
	return Preparer{}.Prepare(account)
}

// Prepare returns a fresh field map: the account's credentials with env:
// references expanded, plus the OTP token when one is configured. The
// account is not modified. Unresolvable references expand to "".
func (p Preparer) Prepare(account Account) map[string]string {
	lookup := p.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	fields := make(map[string]string, len(account.Credentials)+1)
	for k, v := range account.Credentials {
		if name, ok := strings.CutPrefix(v, EnvPrefix); ok {
			v, _ = lookup(name)
		}
		fields[k] = v
	}
	if account.OTPLongTermToken != "" {
		token := account.OTPLongTermToken
		if name, ok := strings.CutPrefix(token, EnvPrefix); ok {
			token, _ = lookup(name)
		}
		if token != "" {
			fields[OTPTokenField] = token
		}
	}
	return fields
}

// Package config manages the local account configuration used by hublink.
//
// The configuration is a flat YAML document (~/.hublink/config.yml by
// default) holding a list of account records plus a few global settings.
// CLIConfiguration is the only type that mutates it; it enforces the
// uniqueness rules for account IDs and names and mediates between the
// file-backed configuration and the single-account configuration that can
// be sourced from environment variables.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Env identifies the platform environment an account lives in.
type Env string

const (
	EnvProd Env = "prod"
	EnvQA   Env = "qa"
)

// ValidEnv normalizes an environment string. Anything other than "qa"
// (case-insensitive) is treated as production.
func ValidEnv(s string) Env {
	if strings.EqualFold(strings.TrimSpace(s), string(EnvQA)) {
		return EnvQA
	}
	return EnvProd
}

// AuthType identifies how requests for an account are authenticated.
type AuthType string

const (
	AuthPersonalAccessKey AuthType = "personalaccesskey"
	AuthOAuth2            AuthType = "oauth2"
	AuthAPIKey            AuthType = "apikey"
)

// Valid reports whether a is a known auth type.
func (a AuthType) Valid() bool {
	switch a {
	case AuthPersonalAccessKey, AuthOAuth2, AuthAPIKey:
		return true
	}
	return false
}

// Mode is the default publish mode for uploads.
type Mode string

const (
	ModePublish Mode = "publish"
	ModeDraft   Mode = "draft"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModePublish || m == ModeDraft
}

// AccountType classifies an account on the platform.
type AccountType string

const (
	AccountStandard         AccountType = "STANDARD"
	AccountDeveloperSandbox AccountType = "DEVELOPER_SANDBOX"
	AccountStandardSandbox  AccountType = "STANDARD_SANDBOX"
	AccountAppDeveloper     AccountType = "APP_DEVELOPER"
	AccountDeveloperTest    AccountType = "DEVELOPER_TEST"
)

// IsSandbox reports whether the account type is one of the sandbox types.
func (t AccountType) IsSandbox() bool {
	return t == AccountDeveloperSandbox || t == AccountStandardSandbox
}

// TokenInfo holds an OAuth token set.
type TokenInfo struct {
	AccessToken  string    `yaml:"accessToken,omitempty"`
	ExpiresAt    time.Time `yaml:"expiresAt,omitempty"`
	RefreshToken string    `yaml:"refreshToken,omitempty"`
}

// OAuthInfo holds the OAuth2 client registration and tokens for an account.
type OAuthInfo struct {
	ClientID     string    `yaml:"clientId,omitempty"`
	ClientSecret string    `yaml:"clientSecret,omitempty"`
	Scopes       []string  `yaml:"scopes,omitempty"`
	TokenInfo    TokenInfo `yaml:"tokenInfo,omitempty"`
}

// Account is a single account record.
type Account struct {
	AccountID         int64       `yaml:"accountId"`
	Name              string      `yaml:"name,omitempty"`
	AuthType          AuthType    `yaml:"authType,omitempty"`
	Env               Env         `yaml:"env,omitempty"`
	PersonalAccessKey string      `yaml:"personalAccessKey,omitempty"`
	APIKey            string      `yaml:"apiKey,omitempty"`
	Auth              *OAuthInfo  `yaml:"auth,omitempty"`
	DefaultMode       Mode        `yaml:"defaultMode,omitempty"`
	AccountType       AccountType `yaml:"accountType,omitempty"`
	ParentAccountID   int64       `yaml:"parentAccountId,omitempty"`
}

// DisplayName returns the account name, or its ID when unnamed.
func (a *Account) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return strconv.FormatInt(a.AccountID, 10)
}

// Matches reports whether nameOrID selects this account.
func (a *Account) Matches(nameOrID string) bool {
	if nameOrID == "" {
		return false
	}
	if a.Name != "" && a.Name == nameOrID {
		return true
	}
	id, err := strconv.ParseInt(nameOrID, 10, 64)
	return err == nil && id == a.AccountID
}

// Config is the on-disk configuration document.
type Config struct {
	DefaultAccount     string    `yaml:"defaultAccount,omitempty"`
	DefaultMode        Mode      `yaml:"defaultMode,omitempty"`
	HTTPTimeout        int       `yaml:"httpTimeout,omitempty"` // milliseconds
	AllowUsageTracking *bool     `yaml:"allowUsageTracking,omitempty"`
	Env                Env       `yaml:"env,omitempty"`
	Accounts           []Account `yaml:"accounts"`
}

const (
	// DefaultHTTPTimeout applies when the configuration does not set one.
	DefaultHTTPTimeout = 15 * time.Second
	// MinHTTPTimeoutMillis is the smallest accepted httpTimeout value.
	MinHTTPTimeoutMillis = 3000
)

// ValidationError lists every problem found while validating a config.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid config: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid config (%d problems):\n  - %s", len(e.Problems), strings.Join(e.Problems, "\n  - "))
}

// validateAccountName checks the rules every account name must follow.
func validateAccountName(name string) error {
	if strings.ContainsAny(name, " \t\n") {
		return fmt.Errorf("account name %q cannot contain spaces", name)
	}
	return nil
}

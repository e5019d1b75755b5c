// Package credential caches short-lived hublink credentials (access tokens
// minted from personal access keys, GitHub tokens) encrypted on disk.
// Long-lived secrets stay in the account config; this store only holds what
// can be re-derived from them.
package credential

import (
	"errors"
	"strconv"
	"time"
)

// Key names one cached credential.
type Key string

// GitHubKey caches the token used for GitHub archive downloads.
const GitHubKey Key = "github"

// AccountKey is the key for an account's access token.
func AccountKey(accountID int64) Key {
	return Key("account-" + strconv.FormatInt(accountID, 10))
}

// Metadata keys recorded alongside an access token.
const (
	MetaHubID       = "hub_id"
	MetaHubName     = "hub_name"
	MetaUserID      = "user_id"
	MetaAccountType = "account_type"
	MetaTokenSource = "token_source"
)

// ErrNotFound is returned by Get when nothing is cached under a key.
var ErrNotFound = errors.New("credential not found")

// Credential is a cached token.
type Credential struct {
	Key       Key               `json:"key"`
	AccountID int64             `json:"account_id,omitempty"`
	Token     string            `json:"token"`
	Scopes    []string          `json:"scopes,omitempty"`
	ExpiresAt time.Time         `json:"expires_at,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ExpiresWithin reports whether the token expires before now+d. Tokens
// without an expiry never expire.
func (c *Credential) ExpiresWithin(now time.Time, d time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(d).Before(c.ExpiresAt)
}

// Store defines the credential storage interface.
type Store interface {
	Save(cred Credential) error
	Get(key Key) (*Credential, error)
	Delete(key Key) error
	List() ([]Credential, error)
}

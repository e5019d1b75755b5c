// Package auth supplies credentials for hublink API requests.
//
// Three schemes are supported, chosen by the account's auth type:
//
//   - personal access key: exchanged for a short-lived access token that is
//     cached (encrypted) in the credential store and refreshed shortly
//     before it expires.
//   - oauth2: an authorization-code grant whose tokens live in the account
//     config and are refreshed with golang.org/x/oauth2.
//   - apikey: a static key sent as the hapikey query parameter.
package auth

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"resty.dev/v3"

	"github.com/majorcontext/hublink/internal/config"
	"github.com/majorcontext/hublink/internal/credential"
	"github.com/majorcontext/hublink/internal/transport"
)

// RefreshWindow is how close to expiry a cached token may get before it is
// refreshed.
const RefreshWindow = 5 * time.Minute

// WebsiteOrigin returns the browser-facing origin for env.
func WebsiteOrigin(env config.Env) string {
	if env == config.EnvQA {
		return "https://app.hublinkqa.dev"
	}
	return "https://app.hublink.dev"
}

// PersonalAccessKeyURL is where a user generates a personal access key.
func PersonalAccessKeyURL(env config.Env, accountID int64) string {
	u := WebsiteOrigin(env) + "/l/personal-access-key"
	if accountID > 0 {
		u += "/" + strconv.FormatInt(accountID, 10)
	}
	return u
}

// Manager resolves credentials for accounts in a configuration. It
// implements transport.Authorizer.
type Manager struct {
	cfg   *config.CLIConfiguration
	store credential.Store

	// BaseURL replaces the environment's API origin. Tests point it at an
	// httptest server.
	BaseURL string
	// WebsiteURL replaces the environment's website origin.
	WebsiteURL string

	now func() time.Time

	// mu serializes token refreshes so concurrent requests for one
	// account trigger a single exchange.
	mu sync.Mutex
}

// NewManager returns a Manager backed by cfg and store.
func NewManager(cfg *config.CLIConfiguration, store credential.Store) *Manager {
	return &Manager{cfg: cfg, store: store, now: time.Now}
}

func (m *Manager) apiOrigin(env config.Env) string {
	if m.BaseURL != "" {
		return m.BaseURL
	}
	return transport.APIOrigin(env, transport.UseLocalAPI())
}

func (m *Manager) websiteOrigin(env config.Env) string {
	if m.WebsiteURL != "" {
		return m.WebsiteURL
	}
	return WebsiteOrigin(env)
}

func (m *Manager) httpClient(env config.Env) *resty.Client {
	return transport.NewClient(transport.Options{
		Env:     env,
		BaseURL: m.apiOrigin(env),
		Timeout: m.cfg.HTTPTimeout(),
		Headers: map[string]string{"User-Agent": transport.UserAgent()},
	})
}

// Authorize attaches the account's credentials to req.
func (m *Manager) Authorize(ctx context.Context, account *config.Account, req *resty.Request) error {
	switch account.AuthType {
	case config.AuthPersonalAccessKey:
		tok, err := m.AccessTokenFor(ctx, account.AccountID, false)
		if err != nil {
			return err
		}
		req.SetAuthToken(tok.AccessToken)
	case config.AuthOAuth2:
		o, err := m.OAuth2(account.AccountID)
		if err != nil {
			return err
		}
		token, err := o.AccessToken(ctx)
		if err != nil {
			return err
		}
		req.SetAuthToken(token)
	case config.AuthAPIKey:
		if account.APIKey == "" {
			return fmt.Errorf("account %s has no API key configured", account.DisplayName())
		}
		req.SetQueryParam("hapikey", account.APIKey)
	default:
		return fmt.Errorf("account %s has unsupported auth type %q\n\n"+
			"Re-authenticate with: hublink auth --account %s",
			account.DisplayName(), account.AuthType, account.DisplayName())
	}
	return nil
}

// Forget drops any cached access token for accountID.
func (m *Manager) Forget(accountID int64) error {
	return m.store.Delete(credential.AccountKey(accountID))
}

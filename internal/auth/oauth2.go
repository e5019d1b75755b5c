package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/oauth2"

	"github.com/majorcontext/hublink/internal/config"
	"github.com/majorcontext/hublink/internal/log"
)

// DefaultOAuthScopes are requested when an account has none configured.
var DefaultOAuthScopes = []string{"content"}

// OAuth2Manager handles the OAuth2 tokens of a single account.
type OAuth2Manager struct {
	m       *Manager
	account *config.Account
}

// OAuth2 returns the OAuth2 manager for accountID.
func (m *Manager) OAuth2(accountID int64) (*OAuth2Manager, error) {
	account, err := m.cfg.AccountByID(accountID)
	if err != nil {
		return nil, err
	}
	if account.Auth == nil || account.Auth.ClientID == "" || account.Auth.ClientSecret == "" {
		return nil, fmt.Errorf("account %s is missing its OAuth2 client id or secret\n\n"+
			"Re-authenticate with: hublink auth --type oauth2 --account %s",
			account.DisplayName(), account.DisplayName())
	}
	return &OAuth2Manager{m: m, account: account}, nil
}

func (o *OAuth2Manager) oauthConfig(redirectURL string) *oauth2.Config {
	scopes := o.account.Auth.Scopes
	if len(scopes) == 0 {
		scopes = DefaultOAuthScopes
	}
	env := o.account.Env
	return &oauth2.Config{
		ClientID:     o.account.Auth.ClientID,
		ClientSecret: o.account.Auth.ClientSecret,
		Scopes:       scopes,
		RedirectURL:  redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   o.m.websiteOrigin(env) + "/oauth/" + strconv.FormatInt(o.account.AccountID, 10) + "/authorize",
			TokenURL:  strings.TrimRight(o.m.apiOrigin(env), "/") + "/oauth/v1/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AccessToken returns a valid access token, refreshing and persisting a new
// one when the stored token expires within RefreshWindow.
func (o *OAuth2Manager) AccessToken(ctx context.Context) (string, error) {
	o.m.mu.Lock()
	defer o.m.mu.Unlock()

	info := o.account.Auth.TokenInfo
	if info.AccessToken != "" && o.m.now().Add(RefreshWindow).Before(info.ExpiresAt) {
		return info.AccessToken, nil
	}
	if err := o.refreshLocked(ctx); err != nil {
		return "", err
	}
	return o.account.Auth.TokenInfo.AccessToken, nil
}

// Refresh exchanges the refresh token for a new token set and writes it
// to the config.
func (o *OAuth2Manager) Refresh(ctx context.Context) error {
	o.m.mu.Lock()
	defer o.m.mu.Unlock()
	return o.refreshLocked(ctx)
}

func (o *OAuth2Manager) refreshLocked(ctx context.Context) error {
	rt := o.account.Auth.TokenInfo.RefreshToken
	if rt == "" {
		return fmt.Errorf("account %s has no OAuth2 refresh token\n\n"+
			"Re-authenticate with: hublink auth --type oauth2 --account %s",
			o.account.DisplayName(), o.account.DisplayName())
	}

	log.Debug("refreshing oauth2 token", "account", o.account.AccountID)
	tok, err := o.oauthConfig("").TokenSource(ctx, &oauth2.Token{RefreshToken: rt}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return fmt.Errorf("refreshing OAuth2 token for account %s: HTTP %d: %s",
				o.account.DisplayName(), re.Response.StatusCode, strings.TrimSpace(string(re.Body)))
		}
		return fmt.Errorf("refreshing OAuth2 token for account %s: %w", o.account.DisplayName(), err)
	}
	return o.persist(tok)
}

func (o *OAuth2Manager) persist(tok *oauth2.Token) error {
	return o.m.cfg.UpdateTokenInfo(o.account.AccountID, config.TokenInfo{
		AccessToken:  tok.AccessToken,
		ExpiresAt:    tok.Expiry,
		RefreshToken: tok.RefreshToken,
	})
}

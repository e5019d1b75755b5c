package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/majorcontext/hublink/internal/config"
	"github.com/majorcontext/hublink/internal/credential"
	"github.com/majorcontext/hublink/internal/log"
	"github.com/majorcontext/hublink/internal/transport"
)

const refreshPath = "/localdevauth/v1/auth/refresh"

// AccessToken is the result of exchanging a personal access key.
type AccessToken struct {
	AccessToken     string
	ExpiresAt       time.Time
	ScopeGroups     []string
	EnabledFeatures map[string]int
	HubID           int64
	UserID          int64
	HubName         string
	AccountType     config.AccountType
}

type accessTokenResponse struct {
	OAuthAccessToken string         `json:"oauthAccessToken"`
	ExpiresAtMillis  int64          `json:"expiresAtMillis"`
	ScopeGroups      []string       `json:"scopeGroups"`
	EnabledFeatures  map[string]int `json:"enabledFeatures"`
	HubID            int64          `json:"hubId"`
	UserID           int64          `json:"userId"`
	HubName          string         `json:"hubName"`
	AccountType      string         `json:"accountType"`
}

// ErrInvalidPersonalAccessKey is returned when the platform rejects a key.
var ErrInvalidPersonalAccessKey = errors.New("personal access key is invalid")

// FetchAccessToken exchanges a personal access key for an access token.
// accountID scopes the exchange when non-zero.
func (m *Manager) FetchAccessToken(ctx context.Context, key string, env config.Env, accountID int64) (*AccessToken, error) {
	if key == "" {
		return nil, ErrInvalidPersonalAccessKey
	}
	rc := m.httpClient(env)
	defer rc.Close()

	req := rc.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"encodedOAuthRefreshToken": key})
	if accountID != 0 {
		transport.WithAccount(req, accountID)
	}

	var out accessTokenResponse
	resp, err := req.SetResult(&out).Post(refreshPath)
	if err != nil {
		return nil, fmt.Errorf("exchanging personal access key: %w", err)
	}
	if resp.IsError() {
		if resp.StatusCode() == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w\n\nGenerate a new key at %s and run: hublink auth",
				ErrInvalidPersonalAccessKey, PersonalAccessKeyURL(env, accountID))
		}
		return nil, fmt.Errorf("exchanging personal access key: HTTP %d: %s", resp.StatusCode(), resp.String())
	}
	if out.OAuthAccessToken == "" {
		return nil, errors.New("exchanging personal access key: response has no access token")
	}

	return &AccessToken{
		AccessToken:     out.OAuthAccessToken,
		ExpiresAt:       time.UnixMilli(out.ExpiresAtMillis),
		ScopeGroups:     out.ScopeGroups,
		EnabledFeatures: out.EnabledFeatures,
		HubID:           out.HubID,
		UserID:          out.UserID,
		HubName:         out.HubName,
		AccountType:     config.AccountType(out.AccountType),
	}, nil
}

func (m *Manager) cache(accountID int64, tok *AccessToken) error {
	return m.store.Save(credential.Credential{
		Key:       credential.AccountKey(accountID),
		AccountID: accountID,
		Token:     tok.AccessToken,
		Scopes:    tok.ScopeGroups,
		ExpiresAt: tok.ExpiresAt,
		CreatedAt: m.now(),
		Metadata: map[string]string{
			credential.MetaHubID:       strconv.FormatInt(tok.HubID, 10),
			credential.MetaHubName:     tok.HubName,
			credential.MetaUserID:      strconv.FormatInt(tok.UserID, 10),
			credential.MetaAccountType: string(tok.AccountType),
			credential.MetaTokenSource: string(config.AuthPersonalAccessKey),
		},
	})
}

func fromCredential(c *credential.Credential) *AccessToken {
	tok := &AccessToken{
		AccessToken: c.Token,
		ExpiresAt:   c.ExpiresAt,
		ScopeGroups: c.Scopes,
		HubName:     c.Metadata[credential.MetaHubName],
		AccountType: config.AccountType(c.Metadata[credential.MetaAccountType]),
	}
	tok.HubID, _ = strconv.ParseInt(c.Metadata[credential.MetaHubID], 10, 64)
	tok.UserID, _ = strconv.ParseInt(c.Metadata[credential.MetaUserID], 10, 64)
	return tok
}

// AccessTokenFor returns a usable access token for a personal access key
// account. A cached token is reused unless force is set or it expires
// within RefreshWindow.
func (m *Manager) AccessTokenFor(ctx context.Context, accountID int64, force bool) (*AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, err := m.cfg.AccountByID(accountID)
	if err != nil {
		return nil, err
	}
	if account.AuthType != config.AuthPersonalAccessKey {
		return nil, fmt.Errorf("account %s does not use a personal access key", account.DisplayName())
	}
	if account.PersonalAccessKey == "" {
		return nil, fmt.Errorf("account %s has no personal access key\n\n"+
			"Add one with: hublink auth --account %s", account.DisplayName(), account.DisplayName())
	}

	if !force {
		cached, err := m.store.Get(credential.AccountKey(accountID))
		switch {
		case err == nil && !cached.ExpiresWithin(m.now(), RefreshWindow):
			return fromCredential(cached), nil
		case err != nil && !errors.Is(err, credential.ErrNotFound):
			log.Warn("ignoring unreadable cached token", "account", accountID, "error", err)
		}
	}

	log.Debug("refreshing access token", "account", accountID, "forced", force)
	tok, err := m.FetchAccessToken(ctx, account.PersonalAccessKey, account.Env, accountID)
	if err != nil {
		return nil, err
	}
	if err := m.cache(accountID, tok); err != nil {
		log.Warn("failed to cache access token", "account", accountID, "error", err)
	}
	return tok, nil
}

// SaveAccountOptions controls SaveAccountFromKey.
type SaveAccountOptions struct {
	Env         config.Env
	Name        string
	MakeDefault bool
}

// SaveAccountFromKey exchanges key, then adds or updates the account it
// belongs to and writes the config. The account ID comes from the token's
// hub id.
func (m *Manager) SaveAccountFromKey(ctx context.Context, key string, opts SaveAccountOptions) (*config.Account, *AccessToken, error) {
	env := config.ValidEnv(string(opts.Env))
	tok, err := m.FetchAccessToken(ctx, key, env, 0)
	if err != nil {
		return nil, nil, err
	}
	if tok.HubID <= 0 {
		return nil, nil, errors.New("access token response has no hub id")
	}

	account, err := m.cfg.AddOrUpdateAccount(config.Account{
		AccountID:         tok.HubID,
		Name:              opts.Name,
		AuthType:          config.AuthPersonalAccessKey,
		PersonalAccessKey: key,
		Env:               env,
		AccountType:       tok.AccountType,
	}, false)
	if err != nil {
		return nil, nil, err
	}
	if opts.MakeDefault || m.cfg.Config().DefaultAccount == "" {
		if err := m.cfg.UpdateDefaultAccount(account.DisplayName()); err != nil {
			return nil, nil, err
		}
	}
	if err := m.cfg.Write(); err != nil {
		return nil, nil, err
	}
	if err := m.cache(tok.HubID, tok); err != nil {
		log.Warn("failed to cache access token", "account", tok.HubID, "error", err)
	}
	return account, tok, nil
}

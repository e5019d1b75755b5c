package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
defaultAccount: prod-main
httpTimeout: 20000
accounts:
  - accountId: 123
    name: prod-main
    authType: personalaccesskey
    personalAccessKey: pak-123
  - accountId: 456
    name: qa-test
    authType: oauth2
    env: QA
    auth:
      clientId: client
      clientSecret: secret
      scopes: [content]
      tokenInfo:
        refreshToken: refresh-456
  - accountId: 789
    authType: apikey
    apiKey: key-789
`

func openSample(t *testing.T) *CLIConfiguration {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0600))
	c, err := Open(Options{Path: path})
	require.NoError(t, err)
	return c
}

func TestLoad(t *testing.T) {
	c := openSample(t)

	require.Len(t, c.Accounts(), 3)
	assert.Equal(t, "prod-main", c.Config().DefaultAccount)
	assert.Equal(t, EnvQA, c.Accounts()[1].Env, "env should be normalized on load")
	assert.Equal(t, "refresh-456", c.Accounts()[1].Auth.TokenInfo.RefreshToken)
	assert.NoError(t, c.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	c, err := Open(Options{Path: filepath.Join(t.TempDir(), "nope.yml")})
	require.NoError(t, err)
	assert.Empty(t, c.Accounts())
	assert.NoError(t, c.Validate())
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("accounts: [unclosed"), 0600))

	_, err := Open(Options{Path: path})
	assert.Error(t, err)
}

func TestAccountLookup(t *testing.T) {
	c := openSample(t)

	tests := []struct {
		name     string
		selector string
		wantID   int64
		wantErr  bool
	}{
		{name: "by name", selector: "qa-test", wantID: 456},
		{name: "by id", selector: "789", wantID: 789},
		{name: "empty uses default", selector: "", wantID: 123},
		{name: "unknown", selector: "missing", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := c.Account(tt.selector)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrAccountNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, a.AccountID)
		})
	}

	assert.True(t, c.HasAccount("prod-main"))
	assert.False(t, c.HasAccount(""))
	assert.Equal(t, 2, c.AccountIndex(789))
	assert.Equal(t, -1, c.AccountIndex(1))
}

func TestAccountEnv(t *testing.T) {
	c := openSample(t)
	assert.Equal(t, EnvQA, c.AccountEnv("qa-test"))
	assert.Equal(t, EnvProd, c.AccountEnv("prod-main"))
	assert.Equal(t, EnvProd, c.AccountEnv("missing"))

	c.Config().Env = "qa"
	assert.Equal(t, EnvQA, c.AccountEnv("missing"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		accounts []Account
		problems int
	}{
		{
			name:     "valid",
			accounts: []Account{{AccountID: 1, Name: "a"}, {AccountID: 2, Name: "b"}},
		},
		{
			name:     "missing id",
			accounts: []Account{{Name: "a"}},
			problems: 1,
		},
		{
			name:     "duplicate id",
			accounts: []Account{{AccountID: 1}, {AccountID: 1}},
			problems: 1,
		},
		{
			name:     "duplicate name",
			accounts: []Account{{AccountID: 1, Name: "a"}, {AccountID: 2, Name: "a"}},
			problems: 1,
		},
		{
			name:     "unnamed with bad auth",
			accounts: []Account{{AccountID: 5, AuthType: "bogus"}},
			problems: 1,
		},
		{
			name:     "name with spaces and bad auth",
			accounts: []Account{{AccountID: 1, Name: "my account", AuthType: "password"}},
			problems: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(Options{Path: filepath.Join(t.TempDir(), "config.yml")})
			c.Config().Accounts = tt.accounts

			err := c.Validate()
			if tt.problems == 0 {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected *ValidationError, got %v", err)
			assert.Len(t, verr.Problems, tt.problems)
		})
	}
}

func TestAddOrUpdateAccount_New(t *testing.T) {
	c := openSample(t)

	a, err := c.AddOrUpdateAccount(Account{
		AccountID:         1001,
		Name:              "sandbox",
		AuthType:          AuthPersonalAccessKey,
		PersonalAccessKey: "pak-1001",
		AccountType:       AccountDeveloperSandbox,
		ParentAccountID:   123,
	}, true)
	require.NoError(t, err)
	assert.Equal(t, EnvProd, a.Env)

	reloaded, err := Open(Options{Path: c.Path()})
	require.NoError(t, err)
	got, err := reloaded.Account("sandbox")
	require.NoError(t, err)

	want := Account{
		AccountID:         1001,
		Name:              "sandbox",
		AuthType:          AuthPersonalAccessKey,
		Env:               EnvProd,
		PersonalAccessKey: "pak-1001",
		AccountType:       AccountDeveloperSandbox,
		ParentAccountID:   123,
	}
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("reloaded account mismatch (-want +got):\n%s", diff)
	}
}

func TestAddOrUpdateAccount_Merge(t *testing.T) {
	c := openSample(t)

	a, err := c.AddOrUpdateAccount(Account{AccountID: 123, Env: "qa", DefaultMode: ModeDraft}, false)
	require.NoError(t, err)

	assert.Equal(t, "prod-main", a.Name, "unset fields keep existing values")
	assert.Equal(t, "pak-123", a.PersonalAccessKey)
	assert.Equal(t, EnvQA, a.Env)
	assert.Equal(t, ModeDraft, a.DefaultMode)
	assert.Len(t, c.Accounts(), 3)
}

func TestAddOrUpdateAccount_RenameKeepsDefault(t *testing.T) {
	c := openSample(t)

	_, err := c.AddOrUpdateAccount(Account{AccountID: 123, Name: "production"}, true)
	require.NoError(t, err)
	assert.Equal(t, "production", c.Config().DefaultAccount, "default follows the new name")

	reloaded, err := Open(Options{Path: c.Path()})
	require.NoError(t, err)
	def, err := reloaded.DefaultAccount()
	require.NoError(t, err)
	assert.Equal(t, int64(123), def.AccountID)

	_, err = c.AddOrUpdateAccount(Account{AccountID: 456, Name: "qa"}, false)
	require.NoError(t, err)
	assert.Equal(t, "production", c.Config().DefaultAccount, "renaming another account leaves the default alone")
}

func TestAddOrUpdateAccount_Errors(t *testing.T) {
	c := openSample(t)

	_, err := c.AddOrUpdateAccount(Account{Name: "no-id"}, false)
	assert.Error(t, err)

	_, err = c.AddOrUpdateAccount(Account{AccountID: 999, Name: "qa-test"}, false)
	assert.ErrorContains(t, err, "already used")

	_, err = c.AddOrUpdateAccount(Account{AccountID: 999, Name: "has space"}, false)
	assert.ErrorContains(t, err, "spaces")

	_, err = c.AddOrUpdateAccount(Account{AccountID: 999, AuthType: "password"}, false)
	assert.Error(t, err)
}

func TestAddOrUpdateAccount_ReplacesAuth(t *testing.T) {
	c := openSample(t)

	scopes := []string{"a", "b"}
	a, err := c.AddOrUpdateAccount(Account{
		AccountID: 456,
		Auth:      &OAuthInfo{ClientID: "new-client", Scopes: scopes},
	}, false)
	require.NoError(t, err)

	scopes[0] = "mutated"
	assert.Equal(t, "new-client", a.Auth.ClientID)
	assert.Empty(t, a.Auth.TokenInfo.RefreshToken)
	assert.Equal(t, []string{"a", "b"}, a.Auth.Scopes, "scopes must be copied")
}

func TestUpdateDefaultAccount(t *testing.T) {
	c := openSample(t)

	require.NoError(t, c.UpdateDefaultAccount("456"))
	assert.Equal(t, "qa-test", c.Config().DefaultAccount, "stores the name when the account has one")

	require.NoError(t, c.UpdateDefaultAccount("789"))
	assert.Equal(t, "789", c.Config().DefaultAccount)

	assert.ErrorIs(t, c.UpdateDefaultAccount("missing"), ErrAccountNotFound)
}

func TestRenameAccount(t *testing.T) {
	c := openSample(t)

	require.NoError(t, c.RenameAccount("prod-main", "production"))
	assert.Equal(t, "production", c.Config().DefaultAccount, "default follows rename")
	assert.True(t, c.HasAccount("production"))
	assert.False(t, c.HasAccount("prod-main"))

	assert.Error(t, c.RenameAccount("production", "qa-test"))
	assert.Error(t, c.RenameAccount("production", "bad name"))
	assert.ErrorIs(t, c.RenameAccount("missing", "x"), ErrAccountNotFound)
}

func TestRemoveAccount(t *testing.T) {
	c := openSample(t)

	removedDefault, err := c.RemoveAccount("qa-test")
	require.NoError(t, err)
	assert.False(t, removedDefault)
	assert.Len(t, c.Accounts(), 2)

	removedDefault, err = c.RemoveAccount("123")
	require.NoError(t, err)
	assert.True(t, removedDefault)
	assert.Empty(t, c.Config().DefaultAccount)

	_, err = c.DefaultAccount()
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestGlobalSettingUpdates(t *testing.T) {
	c := openSample(t)

	assert.Error(t, c.UpdateHTTPTimeout(100))
	require.NoError(t, c.UpdateHTTPTimeout(5000))
	assert.Equal(t, "5s", c.HTTPTimeout().String())

	assert.Error(t, c.UpdateDefaultMode("live"))
	require.NoError(t, c.UpdateDefaultMode(ModeDraft))

	assert.True(t, c.UsageTrackingAllowed(), "tracking defaults to on")
	require.NoError(t, c.UpdateAllowUsageTracking(false))
	assert.False(t, c.UsageTrackingAllowed())

	reloaded, err := Open(Options{Path: c.Path()})
	require.NoError(t, err)
	assert.Equal(t, 5000, reloaded.Config().HTTPTimeout)
	assert.Equal(t, ModeDraft, reloaded.Config().DefaultMode)
	assert.False(t, reloaded.UsageTrackingAllowed())
}

func TestHTTPTimeoutDefault(t *testing.T) {
	c := New(Options{Path: filepath.Join(t.TempDir(), "config.yml")})
	assert.Equal(t, DefaultHTTPTimeout, c.HTTPTimeout())
}

func TestUpdateTokenInfo(t *testing.T) {
	c := openSample(t)

	require.NoError(t, c.UpdateTokenInfo(456, TokenInfo{AccessToken: "fresh"}))
	a, err := c.AccountByID(456)
	require.NoError(t, err)
	assert.Equal(t, "fresh", a.Auth.TokenInfo.AccessToken)
	assert.Equal(t, "refresh-456", a.Auth.TokenInfo.RefreshToken, "refresh token kept when not rotated")
}

func TestCreateAndDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yml")
	c := New(Options{Path: path})

	require.NoError(t, c.Create())
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	require.NoError(t, c.Delete())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestEnvSourcedStoreIsReadOnly(t *testing.T) {
	env := map[string]string{
		EnvVarAccountID:         "42",
		EnvVarPersonalAccessKey: "pak-env",
	}
	path := filepath.Join(t.TempDir(), "config.yml")
	c, err := Open(Options{
		Path:   path,
		UseEnv: true,
		Getenv: func(k string) string { return env[k] },
	})
	require.NoError(t, err)
	assert.True(t, c.IsEnvSourced())

	_, err = c.AddOrUpdateAccount(Account{AccountID: 42, Name: "renamed"}, true)
	require.NoError(t, err, "writes are skipped, not rejected")
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "env-sourced config must never be written")

	assert.ErrorIs(t, c.Create(), ErrEnvConfigReadOnly)
	assert.ErrorIs(t, c.Delete(), ErrEnvConfigReadOnly)
}

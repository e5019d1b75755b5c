package cli

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	intcli "github.com/majorcontext/hublink/internal/cli"
	"github.com/majorcontext/hublink/internal/config"
	"github.com/majorcontext/hublink/internal/credential"
	"github.com/majorcontext/hublink/internal/ui"
)

const testConfig = `defaultAccount: main
allowUsageTracking: false
accounts:
  - accountId: 123
    name: main
    authType: apikey
    apiKey: main-key
    env: prod
  - accountId: 456
    name: other
    authType: apikey
    apiKey: other-key
    env: qa
`

// testEnv isolates a command run: HOME, the config file, the credential
// store and both HTTP origins point into the test.
type testEnv struct {
	t        *testing.T
	home     string
	cfgPath  string
	platform *http.ServeMux
	github   *http.ServeMux

	mu       sync.Mutex
	requests []*http.Request
	bodies   map[string][]byte
}

func newTestEnv(t *testing.T, cfg string) *testEnv {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GH_TOKEN", "")
	t.Setenv(config.EnvVarUseEnvConfig, "")

	e := &testEnv{
		t:        t,
		home:     home,
		cfgPath:  filepath.Join(home, "config.yml"),
		platform: http.NewServeMux(),
		github:   http.NewServeMux(),
		bodies:   map[string][]byte{},
	}
	if cfg != "" {
		require.NoError(t, os.WriteFile(e.cfgPath, []byte(cfg), 0o600))
	}

	platformSrv := httptest.NewServer(e.record(e.platform))
	t.Cleanup(platformSrv.Close)
	githubSrv := httptest.NewServer(e.record(e.github))
	t.Cleanup(githubSrv.Close)

	storeDir := filepath.Join(home, "credentials")
	oldStore, oldPrompter, oldOpen := openStore, newPrompter, openURL
	apiBaseURL, githubBaseURL, rawBaseURL = platformSrv.URL, githubSrv.URL, githubSrv.URL+"/raw"
	openStore = func() (credential.Store, error) {
		return credential.NewFileStore(storeDir, []byte("test-encryption-key-32-bytes!!ab"))
	}
	openURL = func(string) {}
	t.Cleanup(func() {
		apiBaseURL, githubBaseURL, rawBaseURL = "", "", ""
		openStore, newPrompter, openURL = oldStore, oldPrompter, oldOpen
		current = nil
		ui.SetWriter(nil)
	})
	return e
}

func (e *testEnv) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
		e.mu.Lock()
		e.requests = append(e.requests, r.Clone(r.Context()))
		e.bodies[r.Method+" "+r.URL.Path] = body
		e.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (e *testEnv) input(lines ...string) {
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	newPrompter = func() *intcli.Prompter {
		return &intcli.Prompter{In: in, Out: io.Discard}
	}
}

func (e *testEnv) requestFor(method, path string) *http.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range e.requests {
		if r.Method == method && r.URL.Path == path {
			return r
		}
	}
	return nil
}

func (e *testEnv) loadConfig() *config.Config {
	e.t.Helper()
	data, err := os.ReadFile(e.cfgPath)
	require.NoError(e.t, err)
	var cfg config.Config
	require.NoError(e.t, yaml.Unmarshal(data, &cfg))
	return &cfg
}

// run executes the root command with args and returns stdout and the
// stderr notices.
func (e *testEnv) run(args ...string) (string, string, error) {
	e.t.Helper()
	resetFlags(rootCmd)
	current = nil

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	ui.SetWriter(&stderr)
	rootCmd.SetArgs(append([]string{"--config=" + e.cfgPath}, args...))

	err := Execute()
	return stdout.String(), stderr.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestAccountsList_JSON(t *testing.T) {
	e := newTestEnv(t, testConfig)

	out, _, err := e.run("accounts", "list", "--json")
	require.NoError(t, err)

	var got []accountJSON
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 2)
	assert.Equal(t, accountJSON{AccountID: 123, Name: "main", AuthType: "apikey", Env: "prod", Default: true}, got[0])
	assert.Equal(t, "qa", got[1].Env)
	assert.False(t, got[1].Default)
}

func TestAccountsList_Table(t *testing.T) {
	e := newTestEnv(t, testConfig)

	out, _, err := e.run("accounts", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "main (default)")
	assert.Contains(t, out, "456")
}

func TestAccountsList_Empty(t *testing.T) {
	e := newTestEnv(t, "")

	out, _, err := e.run("accounts", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No accounts configured.")
}

func TestAccountsUseRenameRemove(t *testing.T) {
	e := newTestEnv(t, testConfig)

	_, _, err := e.run("accounts", "use", "456")
	require.NoError(t, err)
	assert.Equal(t, "other", e.loadConfig().DefaultAccount)

	_, _, err = e.run("accounts", "rename", "other", "staging")
	require.NoError(t, err)
	cfg := e.loadConfig()
	assert.Equal(t, "staging", cfg.DefaultAccount)
	assert.Equal(t, "staging", cfg.Accounts[1].Name)

	_, stderr, err := e.run("accounts", "remove", "staging", "--force")
	require.NoError(t, err)
	assert.Contains(t, stderr, "was the default")
	cfg = e.loadConfig()
	require.Len(t, cfg.Accounts, 1)
	assert.Empty(t, cfg.DefaultAccount)
}

func TestAccountsRemove_Declined(t *testing.T) {
	e := newTestEnv(t, testConfig)
	e.input("n")

	_, _, err := e.run("accounts", "remove", "other")
	require.NoError(t, err)
	assert.Len(t, e.loadConfig().Accounts, 2)
}

func TestAccountsUse_Unknown(t *testing.T) {
	e := newTestEnv(t, testConfig)

	_, stderr, err := e.run("accounts", "use", "nope")
	require.Error(t, err)
	assert.Contains(t, stderr, "Error:")
}

func TestAccountsCheck(t *testing.T) {
	e := newTestEnv(t, testConfig)
	e.platform.HandleFunc("GET /account-info/v3/details", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("hapikey") == "other-key" {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, map[string]string{"message": "bad key"})
			return
		}
		writeJSON(w, map[string]any{"portalId": 123, "accountType": "STANDARD", "timeZone": "UTC"})
	})

	out, _, err := e.run("accounts", "check")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 accounts failed")
	assert.Contains(t, out, "main")
	assert.Contains(t, out, "other")
}

func TestNoAccountsConfigured(t *testing.T) {
	e := newTestEnv(t, "")

	_, _, err := e.run("secrets", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no accounts configured")
}

func TestSecrets(t *testing.T) {
	e := newTestEnv(t, testConfig)
	e.platform.HandleFunc("GET /cms/v3/functions/secrets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"results": []string{"ZED", "ALPHA"}})
	})
	e.platform.HandleFunc("POST /cms/v3/functions/secrets", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	e.platform.HandleFunc("DELETE /cms/v3/functions/secrets/ALPHA", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	out, _, err := e.run("secrets", "list", "-a", "other")
	require.NoError(t, err)
	assert.Equal(t, "ALPHA\nZED\n", out)
	req := e.requestFor(http.MethodGet, "/cms/v3/functions/secrets")
	require.NotNil(t, req)
	assert.Equal(t, "other-key", req.URL.Query().Get("hapikey"))

	e.input("s3cret")
	_, _, err = e.run("secrets", "add", "API_TOKEN")
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, json.Unmarshal(e.bodies["POST /cms/v3/functions/secrets"], &body))
	assert.Equal(t, map[string]string{"key": "API_TOKEN", "secret": "s3cret"}, body)

	_, _, err = e.run("secrets", "delete", "ALPHA", "--force")
	require.NoError(t, err)
	assert.NotNil(t, e.requestFor(http.MethodDelete, "/cms/v3/functions/secrets/ALPHA"))
}

func TestSecretsAdd_InvalidKey(t *testing.T) {
	e := newTestEnv(t, testConfig)
	e.input("value")

	_, _, err := e.run("secrets", "add", "bad-key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "letters, digits and underscores")
}

func TestProjectsList(t *testing.T) {
	e := newTestEnv(t, testConfig)
	e.platform.HandleFunc("GET /project-components-external/v3/projects", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"results": []map[string]any{
			{"id": 1, "name": "site", "portalId": 123},
			{"id": 2, "name": "app", "portalId": 123, "deployedBuildId": 7},
		}})
	})

	out, _, err := e.run("projects", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "site")
	assert.Contains(t, out, "#7")
}

func TestAuth_APIKey(t *testing.T) {
	e := newTestEnv(t, "")
	e.input("new-api-key")

	_, _, err := e.run("auth", "--type", "apikey", "-a", "789", "--name", "dev")
	require.NoError(t, err)

	cfg := e.loadConfig()
	require.Len(t, cfg.Accounts, 1)
	acct := cfg.Accounts[0]
	assert.Equal(t, int64(789), acct.AccountID)
	assert.Equal(t, "dev", acct.Name)
	assert.Equal(t, config.AuthAPIKey, acct.AuthType)
	assert.Equal(t, "new-api-key", acct.APIKey)
	assert.Equal(t, "dev", cfg.DefaultAccount)
}

func TestAuth_PersonalAccessKey(t *testing.T) {
	e := newTestEnv(t, "")
	e.platform.HandleFunc("POST /localdevauth/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"oauthAccessToken": "access-token",
			"expiresAtMillis":  4102444800000,
			"hubId":            321,
			"hubName":          "Acme",
			"accountType":      "STANDARD",
			"scopeGroups":      []string{"content"},
		})
	})
	e.input("my-pak")

	_, stderr, err := e.run("auth", "--name", "acme", "--no-browser")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Authenticated account acme (321)")

	cfg := e.loadConfig()
	require.Len(t, cfg.Accounts, 1)
	assert.Equal(t, config.AuthPersonalAccessKey, cfg.Accounts[0].AuthType)
	assert.Equal(t, "my-pak", cfg.Accounts[0].PersonalAccessKey)
	assert.Equal(t, config.AccountStandard, cfg.Accounts[0].AccountType)
	assert.Equal(t, "acme", cfg.DefaultAccount)

	var body map[string]string
	require.NoError(t, json.Unmarshal(e.bodies["POST /localdevauth/v1/auth/refresh"], &body))
	assert.Equal(t, "my-pak", body["encodedOAuthRefreshToken"])
}

func TestAuth_EnvConfigRefused(t *testing.T) {
	e := newTestEnv(t, "")
	t.Setenv(config.EnvVarAccountID, "123")
	t.Setenv(config.EnvVarAPIKey, "k")

	_, _, err := e.run("auth", "--use-env")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "environment variables")
}

func TestAuthGitHub(t *testing.T) {
	e := newTestEnv(t, "")
	e.input("ghp_cached")

	_, _, err := e.run("auth", "github")
	require.NoError(t, err)

	store, err := openStore()
	require.NoError(t, err)
	cred, err := store.Get(credential.GitHubKey)
	require.NoError(t, err)
	assert.Equal(t, "ghp_cached", cred.Token)
}

func TestSandboxCreate(t *testing.T) {
	e := newTestEnv(t, testConfig)
	e.platform.HandleFunc("POST /sandbox-hubs/v1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"sandbox": map[string]any{
				"sandboxHubId": 999,
				"parentHubId":  123,
				"name":         "My Sandbox",
				"type":         "DEVELOPER",
			},
			"personalAccessKey": "sandbox-pak",
		})
	})
	e.platform.HandleFunc("POST /localdevauth/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"oauthAccessToken": "sandbox-access",
			"expiresAtMillis":  4102444800000,
			"hubId":            999,
			"accountType":      "DEVELOPER_SANDBOX",
		})
	})

	_, _, err := e.run("sandbox", "create", "My Sandbox", "--type", "developer")
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(e.bodies["POST /sandbox-hubs/v1"], &body))
	assert.Equal(t, "DEVELOPER", body["type"])

	cfg := e.loadConfig()
	require.Len(t, cfg.Accounts, 3)
	sb := cfg.Accounts[2]
	assert.Equal(t, int64(999), sb.AccountID)
	assert.Equal(t, "My-Sandbox", sb.Name)
	assert.Equal(t, int64(123), sb.ParentAccountID)
	assert.Equal(t, config.AccountDeveloperSandbox, sb.AccountType)
	assert.Equal(t, "main", cfg.DefaultAccount)
}

func TestSandboxDelete(t *testing.T) {
	cfg := testConfig + `  - accountId: 999
    name: sb
    authType: apikey
    apiKey: sb-key
    accountType: STANDARD_SANDBOX
    parentAccountId: 123
`
	e := newTestEnv(t, cfg)
	e.platform.HandleFunc("DELETE /sandbox-hubs/v1/999", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	_, _, err := e.run("sandbox", "delete", "sb", "--force")
	require.NoError(t, err)

	req := e.requestFor(http.MethodDelete, "/sandbox-hubs/v1/999")
	require.NotNil(t, req)
	assert.Equal(t, "main-key", req.URL.Query().Get("hapikey"))
	assert.Len(t, e.loadConfig().Accounts, 2)
}

func TestSandboxDelete_NotASandbox(t *testing.T) {
	e := newTestEnv(t, testConfig)

	_, _, err := e.run("sandbox", "delete", "other", "--force")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a sandbox")
}

func TestConfigSet(t *testing.T) {
	e := newTestEnv(t, testConfig)

	_, _, err := e.run("config", "set", "--http-timeout", "30000", "--default-mode", "draft")
	require.NoError(t, err)
	cfg := e.loadConfig()
	assert.Equal(t, 30000, cfg.HTTPTimeout)
	assert.Equal(t, config.ModeDraft, cfg.DefaultMode)
	require.NotNil(t, cfg.AllowUsageTracking)
	assert.False(t, *cfg.AllowUsageTracking)

	_, _, err = e.run("config", "set", "--http-timeout", "10")
	require.Error(t, err)

	_, _, err = e.run("config", "set")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to set")
}

func TestConfigValidate(t *testing.T) {
	e := newTestEnv(t, testConfig+`  - accountId: 123
    name: dup
`)

	_, _, err := e.run("config", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate accountId 123")
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestFetch(t *testing.T) {
	e := newTestEnv(t, testConfig)
	t.Setenv("TMPDIR", t.TempDir())
	archive := zipBytes(t, map[string]string{
		"acme-starter-abc/README.md":      "# starter",
		"acme-starter-abc/src/index.js":   "index",
		"acme-starter-abc/build/out.js":   "built",
		"acme-starter-abc/node_modules/x": "dep",
	})
	e.github.HandleFunc("/repos/acme/starter/zipball/develop", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		w.Write(archive)
	})

	dest := filepath.Join(t.TempDir(), "project")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, ".hublinkignore"), []byte("build/\n"), 0o644))

	_, _, err := e.run("fetch", "acme/starter", dest, "--ref", "develop")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dest, "src", "index.js"))
	require.NoError(t, err)
	assert.Equal(t, "index", string(data))
	assert.FileExists(t, filepath.Join(dest, "README.md"))
	assert.NoDirExists(t, filepath.Join(dest, "build"))
	assert.NoDirExists(t, filepath.Join(dest, "node_modules"))
}

func TestFetch_File(t *testing.T) {
	e := newTestEnv(t, testConfig)
	e.github.HandleFunc("/raw/acme/starter/HEAD/docs/README.md", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "hello")
	})

	out, _, err := e.run("fetch", "acme/starter", "--file", "docs/README.md")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestFetch_FlagConflicts(t *testing.T) {
	e := newTestEnv(t, testConfig)

	_, _, err := e.run("fetch", "acme/starter", "--tag", "v1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--tag requires --release")
}

func TestUsageTrackedAfterCommand(t *testing.T) {
	e := newTestEnv(t, strings.Replace(testConfig, "allowUsageTracking: false", "allowUsageTracking: true", 1))
	e.platform.HandleFunc("POST /content/filemapper/v1/cms-cli-usage", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	_, _, err := e.run("accounts", "list")
	require.NoError(t, err)

	require.NotNil(t, e.requestFor(http.MethodPost, "/content/filemapper/v1/cms-cli-usage"))
	var body struct {
		EventName string            `json:"eventName"`
		Meta      map[string]string `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(e.bodies["POST /content/filemapper/v1/cms-cli-usage"], &body))
	assert.Equal(t, "cli-interaction", body.EventName)
	assert.Equal(t, "hublink accounts list", body.Meta["command"])
	assert.Equal(t, "true", body.Meta["successful"])

	out, _, err := e.run("usage", "history", "--json")
	require.NoError(t, err)
	var records []usageRecordJSON
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "sent", records[0].Status)
}

func TestUsageNotTrackedWhenDisabled(t *testing.T) {
	e := newTestEnv(t, testConfig)

	_, _, err := e.run("accounts", "list")
	require.NoError(t, err)
	assert.Nil(t, e.requestFor(http.MethodPost, "/content/filemapper/v1/cms-cli-usage"))
}

func TestDoctor(t *testing.T) {
	e := newTestEnv(t, testConfig)

	out, _, err := e.run("doctor")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration")
	assert.Contains(t, out, "Accounts")
	assert.Contains(t, out, "not checked")
	assert.Contains(t, out, "Usage Tracking")
}

func TestVersion(t *testing.T) {
	e := newTestEnv(t, "")

	out, _, err := e.run("version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "hublink dev\n"))
}

func TestCleanTemp(t *testing.T) {
	e := newTestEnv(t, "")
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	stale := filepath.Join(tmp, "hublink-temp-starter-1")
	require.NoError(t, os.Mkdir(stale, 0o755))
	old := time.Now().Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	out, _, err := e.run("clean-temp", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, stale)
	assert.DirExists(t, stale)

	_, _, err = e.run("clean-temp", "--force")
	require.NoError(t, err)
	assert.NoDirExists(t, stale)
}

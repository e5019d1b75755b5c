package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majorcontext/hublink/internal/config"
	"github.com/majorcontext/hublink/internal/transport"
)

type recorded struct {
	Method string
	Path   string
	Query  map[string]string
	Body   map[string]any
}

// platform serves canned responses keyed by "METHOD /path" and records
// every request.
type platform struct {
	t         *testing.T
	responses map[string]any
	requests  []recorded
}

func newPlatform(t *testing.T, responses map[string]any) (*platform, *transport.Client) {
	t.Helper()
	p := &platform{t: t, responses: responses}
	srv := httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(srv.Close)

	cfg := config.New(config.Options{Path: filepath.Join(t.TempDir(), "config.yml")})
	_, err := cfg.AddOrUpdateAccount(config.Account{AccountID: 123, Name: "main", AuthType: config.AuthAPIKey, APIKey: "k"}, false)
	require.NoError(t, err)

	c := transport.New(cfg, nil)
	c.BaseURL = srv.URL
	t.Cleanup(func() { c.Close() })
	return p, c
}

func (p *platform) serve(w http.ResponseWriter, r *http.Request) {
	rec := recorded{Method: r.Method, Path: r.URL.Path, Query: map[string]string{}}
	for k := range r.URL.Query() {
		rec.Query[k] = r.URL.Query().Get(k)
	}
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		json.Unmarshal(data, &rec.Body)
	}
	p.requests = append(p.requests, rec)

	resp, ok := p.responses[r.Method+" "+r.URL.Path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "not found", "category": "OBJECT_NOT_FOUND"})
		return
	}
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (p *platform) last() recorded {
	p.t.Helper()
	require.NotEmpty(p.t, p.requests)
	return p.requests[len(p.requests)-1]
}

func TestFetchScopeData(t *testing.T) {
	p, c := newPlatform(t, map[string]any{
		"GET /localdevauth/v1/auth/check-scopes": map[string]any{
			"portalScopesInGroup": []string{"cms.functions.read_write", "cms.knowledge_base"},
			"userScopesInGroup":   []string{"cms.functions.read_write"},
		},
	})

	data, err := FetchScopeData(context.Background(), c, 123, "cms.functions")
	require.NoError(t, err)
	assert.Equal(t, []string{"cms.knowledge_base"}, data.Missing())

	req := p.last()
	assert.Equal(t, "cms.functions", req.Query["scopeGroup"])
	assert.Equal(t, "123", req.Query["portalId"])
}

func TestFetchAuthorizedScopes(t *testing.T) {
	_, c := newPlatform(t, map[string]any{
		"GET /localdevauth/v1/auth/scope-groups/authorized": map[string]any{
			"results": []map[string]string{{"name": "cms.functions"}, {"name": "sandboxes"}},
		},
	})

	scopes, err := FetchAuthorizedScopes(context.Background(), c, 123)
	require.NoError(t, err)
	assert.Equal(t, []string{"cms.functions", "sandboxes"}, scopes.Names())
}

func TestFetchAccountDetails(t *testing.T) {
	_, c := newPlatform(t, map[string]any{
		"GET /account-info/v3/details": map[string]any{
			"portalId":    123,
			"accountType": "STANDARD",
			"timeZone":    "US/Eastern",
			"uiDomain":    "app.hublink.dev",
		},
	})

	got, err := FetchAccountDetails(context.Background(), c, 123)
	require.NoError(t, err)
	want := &AccountDetails{PortalID: 123, AccountType: "STANDARD", TimeZone: "US/Eastern", UIDomain: "app.hublink.dev"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FetchAccountDetails() mismatch (-want +got):\n%s", diff)
	}
}

func TestSecrets(t *testing.T) {
	p, c := newPlatform(t, map[string]any{
		"GET /cms/v3/functions/secrets":            map[string]any{"results": []string{"API_TOKEN", "DB_PASS"}},
		"POST /cms/v3/functions/secrets":           nil,
		"PUT /cms/v3/functions/secrets":            nil,
		"DELETE /cms/v3/functions/secrets/DB_PASS": nil,
	})
	ctx := context.Background()

	keys, err := FetchSecrets(ctx, c, 123)
	require.NoError(t, err)
	assert.Equal(t, []string{"API_TOKEN", "DB_PASS"}, keys)

	require.NoError(t, AddSecret(ctx, c, 123, "NEW_KEY", "s3cret"))
	assert.Equal(t, map[string]any{"key": "NEW_KEY", "secret": "s3cret"}, p.last().Body)

	require.NoError(t, UpdateSecret(ctx, c, 123, "NEW_KEY", "rotated"))
	assert.Equal(t, "PUT", p.last().Method)
	assert.Equal(t, "rotated", p.last().Body["secret"])

	require.NoError(t, DeleteSecret(ctx, c, 123, "DB_PASS"))
	assert.Equal(t, "DELETE", p.last().Method)

	err = AddSecret(ctx, c, 123, "bad key", "x")
	assert.True(t, errors.Is(err, ErrInvalidSecretKey))
}

func TestProjects(t *testing.T) {
	p, c := newPlatform(t, map[string]any{
		"GET /project-components-external/v3/projects": map[string]any{
			"results": []Project{{ID: 1, Name: "alpha"}, {ID: 2, Name: "beta"}},
		},
		"GET /project-components-external/v3/projects/alpha":    Project{ID: 1, Name: "alpha", PortalID: 123},
		"POST /project-components-external/v3/projects":         Project{ID: 3, Name: "gamma"},
		"DELETE /project-components-external/v3/projects/alpha": nil,
	})
	ctx := context.Background()

	list, err := FetchProjects(ctx, c, 123)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	proj, err := FetchProject(ctx, c, 123, "alpha")
	require.NoError(t, err)
	assert.Equal(t, int64(123), proj.PortalID)

	created, err := CreateProject(ctx, c, 123, "gamma")
	require.NoError(t, err)
	assert.Equal(t, int64(3), created.ID)
	assert.Equal(t, "gamma", p.last().Body["name"])

	require.NoError(t, DeleteProject(ctx, c, 123, "alpha"))

	_, err = FetchProject(ctx, c, 123, "missing")
	assert.True(t, transport.IsNotFound(err))
}

func TestSandboxes(t *testing.T) {
	p, c := newPlatform(t, map[string]any{
		"POST /sandbox-hubs/v1": CreatedSandbox{
			Sandbox:           Sandbox{SandboxHubID: 999, ParentHubID: 123, Name: "dev", Type: SandboxDeveloper},
			PersonalAccessKey: "pak-xyz",
		},
		"DELETE /sandbox-hubs/v1/999": nil,
		"GET /sandbox-hubs/v1/parent/123/usage": SandboxUsageLimits{Usage: map[string]UsageLimit{
			SandboxDeveloper: {Used: 1, Available: 1, Limit: 2},
		}},
	})
	ctx := context.Background()

	created, err := CreateSandbox(ctx, c, 123, "dev", SandboxDeveloper)
	require.NoError(t, err)
	assert.Equal(t, "pak-xyz", created.PersonalAccessKey)
	assert.Equal(t, config.AccountDeveloperSandbox, created.Sandbox.AccountType())
	assert.Equal(t, true, p.last().Body["generatePersonalAccessKey"])

	require.NoError(t, DeleteSandbox(ctx, c, 123, 999))

	limits, err := FetchSandboxUsageLimits(ctx, c, 123)
	require.NoError(t, err)
	assert.Equal(t, 1, limits.Usage[SandboxDeveloper].Available)

	_, err = CreateSandbox(ctx, c, 123, "x", "HUGE")
	assert.Error(t, err)
}

func TestAPIErrorPassthrough(t *testing.T) {
	_, c := newPlatform(t, nil)

	_, err := FetchSecrets(context.Background(), c, 123)
	var apiErr *transport.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "OBJECT_NOT_FOUND", apiErr.Category)
}

package api

import (
	"context"
	"fmt"

	"github.com/majorcontext/hublink/internal/transport"
)

// ScopeData reports which scopes of a scope group the account and the
// user hold.
type ScopeData struct {
	PortalScopesInGroup []string `json:"portalScopesInGroup"`
	UserScopesInGroup   []string `json:"userScopesInGroup"`
}

// Missing returns the account scopes in the group that the user lacks.
func (s *ScopeData) Missing() []string {
	have := make(map[string]bool, len(s.UserScopesInGroup))
	for _, sc := range s.UserScopesInGroup {
		have[sc] = true
	}
	var missing []string
	for _, sc := range s.PortalScopesInGroup {
		if !have[sc] {
			missing = append(missing, sc)
		}
	}
	return missing
}

// FetchScopeData checks scopeGroup for the account's access key.
func FetchScopeData(ctx context.Context, c *transport.Client, accountID int64, scopeGroup string) (*ScopeData, error) {
	var out ScopeData
	err := c.Get(ctx, accountID, LocalDevAuthPath+"/check-scopes", &out, transport.WithQuery("scopeGroup", scopeGroup))
	if err != nil {
		return nil, fmt.Errorf("checking scope group %s: %w", scopeGroup, err)
	}
	return &out, nil
}

// AuthorizedScopes lists the scope groups an access key was granted.
type AuthorizedScopes struct {
	Results []struct {
		Name string `json:"name"`
	} `json:"results"`
}

// Names returns the scope group names.
func (a *AuthorizedScopes) Names() []string {
	names := make([]string, 0, len(a.Results))
	for _, r := range a.Results {
		names = append(names, r.Name)
	}
	return names
}

// FetchAuthorizedScopes returns the scope groups authorized for the account.
func FetchAuthorizedScopes(ctx context.Context, c *transport.Client, accountID int64) (*AuthorizedScopes, error) {
	var out AuthorizedScopes
	if err := c.Get(ctx, accountID, LocalDevAuthPath+"/scope-groups/authorized", &out); err != nil {
		return nil, fmt.Errorf("fetching authorized scopes: %w", err)
	}
	return &out, nil
}

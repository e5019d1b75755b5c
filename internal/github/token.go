package github

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/majorcontext/hublink/internal/credential"
)

// Token source values stored in Credential.Metadata[credential.MetaTokenSource].
const (
	SourceEnv   = "env"   // GITHUB_TOKEN or GH_TOKEN
	SourceStore = "store" // saved with `hublink auth github`
)

// TokenFromEnv returns GITHUB_TOKEN, falling back to GH_TOKEN.
func TokenFromEnv(getenv func(string) string) string {
	if getenv == nil {
		getenv = os.Getenv
	}
	if t := strings.TrimSpace(getenv("GITHUB_TOKEN")); t != "" {
		return t
	}
	return strings.TrimSpace(getenv("GH_TOKEN"))
}

// ResolveToken returns the token to send to GitHub and where it came from.
// The environment wins over a cached token. An empty token means requests
// go out unauthenticated, which works for public repositories.
func ResolveToken(store credential.Store, getenv func(string) string) (string, string, error) {
	if t := TokenFromEnv(getenv); t != "" {
		return t, SourceEnv, nil
	}
	if store == nil {
		return "", "", nil
	}
	cred, err := store.Get(credential.GitHubKey)
	if errors.Is(err, credential.ErrNotFound) {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("reading cached GitHub token: %w", err)
	}
	return cred.Token, SourceStore, nil
}

// SaveToken caches token for later runs.
func SaveToken(store credential.Store, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("GitHub token is empty")
	}
	return store.Save(credential.Credential{
		Key:      credential.GitHubKey,
		Token:    token,
		Metadata: map[string]string{credential.MetaTokenSource: SourceStore},
	})
}

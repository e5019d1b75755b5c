package api

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/majorcontext/hublink/internal/transport"
)

var secretKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ErrInvalidSecretKey is returned for keys the platform would reject.
var ErrInvalidSecretKey = errors.New("secret keys may only contain letters, digits and underscores")

// Secret is a key/value pair for serverless functions.
type Secret struct {
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

type secretList struct {
	Results []string `json:"results"`
}

// FetchSecrets returns the secret keys defined for the account. Values are
// never returned.
func FetchSecrets(ctx context.Context, c *transport.Client, accountID int64) ([]string, error) {
	var out secretList
	if err := c.Get(ctx, accountID, SecretsPath, &out); err != nil {
		return nil, fmt.Errorf("fetching secrets: %w", err)
	}
	return out.Results, nil
}

// AddSecret creates a secret.
func AddSecret(ctx context.Context, c *transport.Client, accountID int64, key, value string) error {
	if !secretKeyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidSecretKey, key)
	}
	if err := c.Post(ctx, accountID, SecretsPath, Secret{Key: key, Secret: value}, nil); err != nil {
		return fmt.Errorf("adding secret %s: %w", key, err)
	}
	return nil
}

// UpdateSecret replaces the value of an existing secret.
func UpdateSecret(ctx context.Context, c *transport.Client, accountID int64, key, value string) error {
	if err := c.Put(ctx, accountID, SecretsPath, Secret{Key: key, Secret: value}, nil); err != nil {
		return fmt.Errorf("updating secret %s: %w", key, err)
	}
	return nil
}

// DeleteSecret removes a secret.
func DeleteSecret(ctx context.Context, c *transport.Client, accountID int64, key string) error {
	if err := c.Delete(ctx, accountID, join(SecretsPath, key)); err != nil {
		return fmt.Errorf("deleting secret %s: %w", key, err)
	}
	return nil
}

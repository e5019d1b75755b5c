package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Environment variables read when the configuration is sourced from the
// environment rather than from the config file.
const (
	EnvVarUseEnvConfig       = "HUBLINK_USE_ENV_CONFIG"
	EnvVarAccountID          = "HUBLINK_ACCOUNT_ID"
	EnvVarPersonalAccessKey  = "HUBLINK_PERSONAL_ACCESS_KEY"
	EnvVarClientID           = "HUBLINK_CLIENT_ID"
	EnvVarClientSecret       = "HUBLINK_CLIENT_SECRET"
	EnvVarRefreshToken       = "HUBLINK_REFRESH_TOKEN"
	EnvVarAPIKey             = "HUBLINK_API_KEY"
	EnvVarEnvironment        = "HUBLINK_ENVIRONMENT"
	EnvVarHTTPTimeout        = "HUBLINK_HTTP_TIMEOUT"
	EnvVarAllowUsageTracking = "HUBLINK_ALLOW_USAGE_TRACKING"
)

// UseEnvConfig reports whether HUBLINK_USE_ENV_CONFIG asks for an
// environment-sourced configuration.
func UseEnvConfig(getenv func(string) string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(getenv(EnvVarUseEnvConfig)))
	return err == nil && v
}

// LoadFromEnv builds a single-account configuration from environment
// variables. Auth type precedence is personal access key, then OAuth2
// (client ID, secret and refresh token), then API key.
func LoadFromEnv(getenv func(string) string) (*Config, error) {
	idStr := strings.TrimSpace(getenv(EnvVarAccountID))
	if idStr == "" {
		return nil, fmt.Errorf("%s is required when using environment config", EnvVarAccountID)
	}
	accountID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || accountID <= 0 {
		return nil, fmt.Errorf("%s must be a positive integer, got %q", EnvVarAccountID, idStr)
	}

	env := ValidEnv(getenv(EnvVarEnvironment))
	account := Account{
		AccountID: accountID,
		Env:       env,
	}

	pak := getenv(EnvVarPersonalAccessKey)
	clientID := getenv(EnvVarClientID)
	clientSecret := getenv(EnvVarClientSecret)
	refreshToken := getenv(EnvVarRefreshToken)
	apiKey := getenv(EnvVarAPIKey)

	switch {
	case pak != "":
		account.AuthType = AuthPersonalAccessKey
		account.PersonalAccessKey = pak
	case clientID != "" && clientSecret != "" && refreshToken != "":
		account.AuthType = AuthOAuth2
		account.Auth = &OAuthInfo{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenInfo:    TokenInfo{RefreshToken: refreshToken},
		}
	case apiKey != "":
		account.AuthType = AuthAPIKey
		account.APIKey = apiKey
	default:
		return nil, fmt.Errorf("no credentials found in environment for account %d\n\n"+
			"Set one of:\n"+
			"  %s\n"+
			"  %s, %s and %s\n"+
			"  %s",
			accountID, EnvVarPersonalAccessKey, EnvVarClientID, EnvVarClientSecret, EnvVarRefreshToken, EnvVarAPIKey)
	}

	cfg := &Config{
		DefaultAccount: idStr,
		Env:            env,
		Accounts:       []Account{account},
	}

	if s := strings.TrimSpace(getenv(EnvVarHTTPTimeout)); s != "" {
		ms, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("%s must be a number of milliseconds, got %q", EnvVarHTTPTimeout, s)
		}
		cfg.HTTPTimeout = ms
	}

	if s := strings.TrimSpace(getenv(EnvVarAllowUsageTracking)); s != "" {
		allowed, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false, got %q", EnvVarAllowUsageTracking, s)
		}
		cfg.AllowUsageTracking = &allowed
	}

	return cfg, nil
}

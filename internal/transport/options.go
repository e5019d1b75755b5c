// Package transport builds HTTP clients for the hublink platform APIs and
// sends account-scoped requests through them.
package transport

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/majorcontext/hublink/internal/config"
)

// Version is reported in the User-Agent header. cmd/hublink sets it from
// build flags.
var Version = "dev"

// EnvVarLocalAPI routes requests to the local development origins when true.
const EnvVarLocalAPI = "HUBLINK_LOCAL_API"

// APIOrigin returns the API origin for env.
func APIOrigin(env config.Env, local bool) string {
	domain := "hublink.dev"
	if env == config.EnvQA {
		domain = "hublinkqa.dev"
	}
	sub := "api"
	if local {
		sub = "local"
	}
	return "https://" + sub + "." + domain
}

// UseLocalAPI reports whether HUBLINK_LOCAL_API is set to a true value.
func UseLocalAPI() bool {
	v, _ := strconv.ParseBool(os.Getenv(EnvVarLocalAPI))
	return v
}

// Options holds everything needed to build an HTTP client.
type Options struct {
	Env     config.Env
	BaseURL string
	Timeout time.Duration
	Headers map[string]string
	// Query parameters added to every request.
	Query map[string]string
	// Retries for idempotent requests on 429/5xx. Zero disables retries.
	Retries int
}

var (
	uaMu     sync.RWMutex
	uaTokens = map[string]string{}
)

// AddUserAgent registers an extra "key/value" User-Agent token, for example
// the IDE extension version a request is made on behalf of.
func AddUserAgent(key, value string) {
	uaMu.Lock()
	defer uaMu.Unlock()
	if value == "" {
		delete(uaTokens, key)
		return
	}
	uaTokens[key] = value
}

// UserAgent returns the User-Agent header value.
func UserAgent() string {
	uaMu.RLock()
	defer uaMu.RUnlock()

	keys := make([]string, 0, len(uaTokens))
	for k := range uaTokens {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := []string{"hublink/" + Version}
	for _, k := range keys {
		parts = append(parts, k+"/"+uaTokens[k])
	}
	return strings.Join(parts, " ")
}

// BuildOptions resolves the origin, timeout and headers for requests made
// on behalf of accountID. An unknown account is an error; accountID 0
// builds options for the configured default environment.
func BuildOptions(cfg *config.CLIConfiguration, accountID int64) (Options, error) {
	env := cfg.Config().Env
	if accountID != 0 {
		a, err := cfg.AccountByID(accountID)
		if err != nil {
			return Options{}, err
		}
		env = a.Env
	}
	env = config.ValidEnv(string(env))

	return Options{
		Env:     env,
		BaseURL: APIOrigin(env, UseLocalAPI()),
		Timeout: cfg.HTTPTimeout(),
		Headers: map[string]string{
			"User-Agent": UserAgent(),
			"Accept":     "application/json",
		},
	}, nil
}

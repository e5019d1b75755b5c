package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/majorcontext/hublink/internal/archive"
	"github.com/majorcontext/hublink/internal/auth"
	intcli "github.com/majorcontext/hublink/internal/cli"
	"github.com/majorcontext/hublink/internal/config"
	"github.com/majorcontext/hublink/internal/credential"
	"github.com/majorcontext/hublink/internal/github"
	"github.com/majorcontext/hublink/internal/log"
	"github.com/majorcontext/hublink/internal/transport"
	"github.com/majorcontext/hublink/internal/usage"
)

// Test hooks. When set they replace the platform and GitHub origins and
// the credential store.
var (
	apiBaseURL    string
	githubBaseURL string
	rawBaseURL    string
	openStore     = func() (credential.Store, error) { return credential.OpenDefault() }
	newPrompter   = intcli.NewPrompter
	openURL       = openBrowser
)

// app holds the services a command run shares. It is built on first use
// and torn down by Execute.
type app struct {
	cfg     *config.CLIConfiguration
	store   credential.Store
	auth    *auth.Manager
	client  *transport.Client
	journal *usage.Journal
	track   *usage.Tracker

	// accountID is the account the command ran against, for usage events.
	accountID int64
}

var current *app

// loadApp loads the configuration. Commands call it instead of reading
// the config themselves so the usage event sees the same state.
func loadApp() (*app, error) {
	if current != nil {
		return current, nil
	}
	cfg, err := config.Open(config.Options{
		Path:   configPath,
		UseEnv: useEnv || config.UseEnvConfig(os.Getenv),
	})
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}

	if j, err := usage.OpenJournal(usage.DefaultJournalPath()); err != nil {
		log.Debug("usage journal unavailable", "error", err)
	} else {
		a.journal = j
	}
	current = a
	return a, nil
}

// credentials opens the encrypted credential store.
func (a *app) credentials() (credential.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := openStore()
	if err != nil {
		return nil, fmt.Errorf("opening credential store: %w", err)
	}
	a.store = s
	return s, nil
}

// authManager returns the auth manager, opening the credential store.
func (a *app) authManager() (*auth.Manager, error) {
	if a.auth != nil {
		return a.auth, nil
	}
	store, err := a.credentials()
	if err != nil {
		return nil, err
	}
	m := auth.NewManager(a.cfg, store)
	if apiBaseURL != "" {
		m.BaseURL = apiBaseURL
	}
	a.auth = m
	return m, nil
}

// api returns the platform client.
func (a *app) api() (*transport.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	m, err := a.authManager()
	if err != nil {
		return nil, err
	}
	c := transport.New(a.cfg, m)
	if apiBaseURL != "" {
		c.BaseURL = apiBaseURL
	}
	a.client = c
	return c, nil
}

// account resolves --account, an account file in the working directory,
// or the default account, and remembers it for the usage event.
func (a *app) account() (*config.Account, error) {
	return a.accountFor(accountFlag)
}

func (a *app) accountFor(nameOrID string) (*config.Account, error) {
	dir, _ := os.Getwd()
	acct, err := a.cfg.ResolveAccount(nameOrID, dir)
	if err != nil {
		if errors.Is(err, config.ErrAccountNotFound) && nameOrID == "" && len(a.cfg.Accounts()) == 0 {
			return nil, fmt.Errorf("no accounts configured\n\nAdd one with: hublink auth")
		}
		return nil, err
	}
	a.accountID = acct.AccountID
	return acct, nil
}

// github returns a GitHub client authenticated from the environment or
// the cached GitHub token.
func (a *app) github() *github.Client {
	store, err := a.credentials()
	if err != nil {
		log.Debug("credential store unavailable for GitHub token", "error", err)
		store = nil
	}
	token, source, err := github.ResolveToken(store, os.Getenv)
	if err != nil {
		log.Debug("ignoring GitHub token", "error", err)
	}
	if token != "" {
		log.Debug("using GitHub token", "source", source)
	}
	return github.NewClient(github.Options{
		Token:     token,
		UserAgent: transport.UserAgent(),
		Timeout:   a.cfg.HTTPTimeout() * 4,
		APIURL:    githubBaseURL,
		RawURL:    rawBaseURL,
	})
}

func (a *app) tracker() *usage.Tracker {
	if a.track == nil {
		client := a.client
		if client == nil && a.accountID != 0 {
			client, _ = a.api()
		}
		a.track = usage.NewTracker(a.cfg, client, a.journal)
		if apiBaseURL != "" {
			a.track.BaseURL = apiBaseURL
		}
	}
	return a.track
}

func (a *app) close() {
	if a.track != nil {
		a.track.Close()
	}
	if a.client != nil {
		a.client.Close()
	}
	if a.journal != nil {
		a.journal.Close()
	}
}

// hint returns a remediation hint carried by err, if any.
func hint(err error) string {
	var apiErr *transport.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Hint()
	}
	var ghErr *github.Error
	if errors.As(err, &ghErr) {
		return ghErr.Hint()
	}
	var fsErr *archive.FileSystemError
	if errors.As(err, &fsErr) {
		return "Check that you can write to " + fsErr.Path
	}
	return ""
}

package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/majorcontext/hublink/internal/auth"
	"github.com/majorcontext/hublink/internal/config"
	"github.com/majorcontext/hublink/internal/github"
	"github.com/majorcontext/hublink/internal/ui"
)

var (
	authType      string
	authName      string
	authQA        bool
	authPort      int
	authNoBrowser bool
	authDefault   bool
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authenticate an account",
	Long: `Add an account to the config, or refresh the credentials of one
that is already there.

Three auth types are supported:

  personalaccesskey  Paste a personal access key generated in the browser
                     (default).
  oauth2             Authorize an OAuth2 app in the browser. Requires the
                     app's client id and secret.
  apikey             Store a legacy API key.

Examples:
  hublink auth                                 # Personal access key
  hublink auth --name prod --default           # Name it and make it default
  hublink auth --type oauth2 --account 123456  # OAuth2 for account 123456
  hublink auth github                          # Cache a GitHub token`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{"interactive": "true"},
	RunE:        runAuth,
}

var authGitHubCmd = &cobra.Command{
	Use:   "github",
	Short: "Cache a GitHub token for downloads",
	Long: `Store a GitHub token in the encrypted credential store. It is sent
when fetching archives and files from GitHub, which raises the rate limit
and allows private repositories. GITHUB_TOKEN or GH_TOKEN take precedence
when set.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{"interactive": "true"},
	RunE:        runAuthGitHub,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authGitHubCmd)

	authCmd.Flags().StringVarP(&authType, "type", "t", string(config.AuthPersonalAccessKey), "auth type: personalaccesskey, oauth2 or apikey")
	authCmd.Flags().StringVar(&authName, "name", "", "name for the account")
	authCmd.Flags().BoolVar(&authQA, "qa", false, "use the QA environment")
	authCmd.Flags().IntVar(&authPort, "port", auth.DefaultCallbackPort, "local port for the OAuth2 callback")
	authCmd.Flags().BoolVar(&authNoBrowser, "no-browser", false, "print URLs instead of opening a browser")
	authCmd.Flags().BoolVar(&authDefault, "default", false, "make the account the default")
}

func runAuth(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	if a.cfg.IsEnvSourced() {
		return errors.New("cannot authenticate while the config comes from environment variables\n\n" +
			"Unset " + config.EnvVarUseEnvConfig + " and drop --use-env")
	}

	env := config.EnvProd
	if authQA {
		env = config.EnvQA
	}

	var acct *config.Account
	switch config.AuthType(strings.ToLower(authType)) {
	case config.AuthPersonalAccessKey:
		acct, err = authPersonalAccessKey(cmd, a, env)
	case config.AuthOAuth2:
		acct, err = authOAuth2(cmd, a, env)
	case config.AuthAPIKey:
		acct, err = authAPIKey(a, env)
	default:
		return fmt.Errorf("unknown auth type %q: must be personalaccesskey, oauth2 or apikey", authType)
	}
	if err != nil {
		return err
	}
	a.accountID = acct.AccountID

	if authDefault || a.cfg.Config().DefaultAccount == "" {
		if err := a.cfg.UpdateDefaultAccount(acct.DisplayName()); err != nil {
			return err
		}
	}

	ui.Successf("Authenticated account %s (%d)", acct.DisplayName(), acct.AccountID)
	if def, err := a.cfg.DefaultAccount(); err == nil && def.AccountID == acct.AccountID {
		ui.Info("It is the default account.")
	}
	return nil
}

func authPersonalAccessKey(cmd *cobra.Command, a *app, env config.Env) (*config.Account, error) {
	var hintID int64
	if id, err := strconv.ParseInt(accountFlag, 10, 64); err == nil {
		hintID = id
	}
	keyURL := auth.PersonalAccessKeyURL(env, hintID)
	if authNoBrowser {
		ui.Infof("Generate a personal access key at:\n\n  %s\n", keyURL)
	} else {
		openURL(keyURL)
	}

	p := newPrompter()
	key, err := p.Secret("Personal access key")
	if err != nil {
		return nil, err
	}
	name := authName
	if name == "" {
		if name, err = p.Line("Account name (optional)", ""); err != nil {
			return nil, err
		}
	}

	m, err := a.authManager()
	if err != nil {
		return nil, err
	}
	acct, tok, err := m.SaveAccountFromKey(cmd.Context(), key, auth.SaveAccountOptions{
		Env:         env,
		Name:        name,
		MakeDefault: authDefault,
	})
	if err != nil {
		return nil, err
	}
	if tok.HubName != "" {
		ui.Infof("Connected to %s", ui.Bold(tok.HubName))
	}
	return acct, nil
}

// promptAccountID reads the account id from --account, an existing account
// of that name, or the prompt.
func promptAccountID(a *app) (int64, error) {
	if accountFlag != "" {
		if id, err := strconv.ParseInt(accountFlag, 10, 64); err == nil && id > 0 {
			return id, nil
		}
		acct, err := a.cfg.Account(accountFlag)
		if err != nil {
			return 0, err
		}
		return acct.AccountID, nil
	}
	s, err := newPrompter().Line("Account ID", "")
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("account id must be a positive integer, got %q", s)
	}
	return id, nil
}

func authOAuth2(cmd *cobra.Command, a *app, env config.Env) (*config.Account, error) {
	id, err := promptAccountID(a)
	if err != nil {
		return nil, err
	}
	p := newPrompter()
	clientID, err := p.Line("OAuth2 client id", "")
	if err != nil {
		return nil, err
	}
	clientSecret, err := p.Secret("OAuth2 client secret")
	if err != nil {
		return nil, err
	}
	if clientID == "" || clientSecret == "" {
		return nil, errors.New("client id and secret are required for oauth2")
	}

	acct, err := a.cfg.AddOrUpdateAccount(config.Account{
		AccountID: id,
		Name:      authName,
		AuthType:  config.AuthOAuth2,
		Env:       env,
		Auth: &config.OAuthInfo{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       auth.DefaultOAuthScopes,
		},
	}, true)
	if err != nil {
		return nil, err
	}

	m, err := a.authManager()
	if err != nil {
		return nil, err
	}
	o, err := m.OAuth2(acct.AccountID)
	if err != nil {
		return nil, err
	}
	opts := auth.AuthorizeOptions{Port: authPort}
	if !authNoBrowser {
		opts.Open = openURL
	}
	if err := o.Authorize(cmd.Context(), opts); err != nil {
		return nil, err
	}
	return a.cfg.AccountByID(id)
}

func authAPIKey(a *app, env config.Env) (*config.Account, error) {
	id, err := promptAccountID(a)
	if err != nil {
		return nil, err
	}
	key, err := newPrompter().Secret("API key")
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, errors.New("API key is empty")
	}
	return a.cfg.AddOrUpdateAccount(config.Account{
		AccountID: id,
		Name:      authName,
		AuthType:  config.AuthAPIKey,
		APIKey:    key,
		Env:       env,
	}, true)
}

func runAuthGitHub(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	if t := github.TokenFromEnv(nil); t != "" {
		ui.Warn("GITHUB_TOKEN or GH_TOKEN is set and will be used instead of the cached token")
	}
	token, err := newPrompter().Secret("GitHub token")
	if err != nil {
		return err
	}
	store, err := a.credentials()
	if err != nil {
		return err
	}
	if err := github.SaveToken(store, token); err != nil {
		return err
	}
	ui.Success("Saved GitHub token")
	return nil
}

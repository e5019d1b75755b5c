package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/majorcontext/hublink/internal/log"
)

var (
	// ErrAccountNotFound is returned when no account matches a name or ID.
	ErrAccountNotFound = errors.New("account not found")
	// ErrEnvConfigReadOnly is returned by file operations on an
	// environment-sourced configuration.
	ErrEnvConfigReadOnly = errors.New("configuration is sourced from environment variables")
)

// Options configures a CLIConfiguration.
type Options struct {
	// Path is the config file. Defaults to DefaultConfigPath().
	Path string
	// UseEnv sources the configuration from environment variables.
	UseEnv bool
	// Getenv looks up environment variables (defaults to os.Getenv).
	Getenv func(string) string
}

// CLIConfiguration is the in-memory account store. It is not safe for
// concurrent use.
type CLIConfiguration struct {
	path   string
	useEnv bool
	getenv func(string) string
	config *Config
}

// New creates a store without loading it.
func New(opts Options) *CLIConfiguration {
	if opts.Path == "" {
		opts.Path = DefaultConfigPath()
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	return &CLIConfiguration{
		path:   opts.Path,
		useEnv: opts.UseEnv,
		getenv: opts.Getenv,
	}
}

// Open creates a store and loads it.
func Open(opts Options) (*CLIConfiguration, error) {
	c := New(opts)
	if err := c.Load(); err != nil {
		return nil, err
	}
	return c, nil
}

// Path returns the config file path.
func (c *CLIConfiguration) Path() string { return c.path }

// IsEnvSourced reports whether the configuration came from the environment.
func (c *CLIConfiguration) IsEnvSourced() bool { return c.useEnv }

// Config returns the loaded configuration document.
func (c *CLIConfiguration) Config() *Config {
	if c.config == nil {
		c.config = &Config{}
	}
	return c.config
}

// Load reads the configuration from the environment or from disk.
// A missing file yields an empty configuration.
func (c *CLIConfiguration) Load() error {
	if c.useEnv {
		cfg, err := LoadFromEnv(c.getenv)
		if err != nil {
			return fmt.Errorf("loading config from environment: %w", err)
		}
		c.config = cfg
		log.Debug("loaded config from environment", "account_id", cfg.Accounts[0].AccountID)
		return nil
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug("config file not found, using empty config", "path", c.path)
			c.config = &Config{}
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", c.path, err)
	}
	for i := range cfg.Accounts {
		if cfg.Accounts[i].Env != "" {
			cfg.Accounts[i].Env = ValidEnv(string(cfg.Accounts[i].Env))
		}
	}
	c.config = &cfg
	log.Debug("loaded config", "path", c.path, "accounts", len(cfg.Accounts))
	return nil
}

// Create writes an empty config file if none exists.
func (c *CLIConfiguration) Create() error {
	if c.useEnv {
		return ErrEnvConfigReadOnly
	}
	if _, err := os.Stat(c.path); err == nil {
		return nil
	}
	if c.config == nil {
		c.config = &Config{}
	}
	return c.Write()
}

// Validate checks the account uniqueness invariants.
func (c *CLIConfiguration) Validate() error {
	if c.config == nil {
		return &ValidationError{Problems: []string{"no config loaded"}}
	}

	var problems []string
	ids := make(map[int64]bool)
	names := make(map[string]bool)
	for i, a := range c.config.Accounts {
		if a.AccountID <= 0 {
			problems = append(problems, fmt.Sprintf("accounts[%d]: missing accountId", i))
			continue
		}
		if ids[a.AccountID] {
			problems = append(problems, fmt.Sprintf("accounts[%d]: duplicate accountId %d", i, a.AccountID))
		}
		ids[a.AccountID] = true

		if a.AuthType != "" && !a.AuthType.Valid() {
			problems = append(problems, fmt.Sprintf("accounts[%d]: unknown authType %q", i, a.AuthType))
		}
		if a.Name == "" {
			continue
		}
		if names[a.Name] {
			problems = append(problems, fmt.Sprintf("accounts[%d]: duplicate name %q", i, a.Name))
		}
		names[a.Name] = true
		if err := validateAccountName(a.Name); err != nil {
			problems = append(problems, fmt.Sprintf("accounts[%d]: %v", i, err))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Write persists the configuration. Environment-sourced configurations
// are never written.
func (c *CLIConfiguration) Write() error {
	if c.useEnv {
		log.Debug("skipping config write for environment-sourced config")
		return nil
	}

	data, err := yaml.Marshal(c.Config())
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing config: %w", err)
	}
	log.Debug("wrote config", "path", c.path)
	return nil
}

// Delete removes the config file.
func (c *CLIConfiguration) Delete() error {
	if c.useEnv {
		return ErrEnvConfigReadOnly
	}
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting config: %w", err)
	}
	c.config = nil
	return nil
}

// Accounts returns the account records.
func (c *CLIConfiguration) Accounts() []Account {
	return c.Config().Accounts
}

// Account finds an account by name or ID. An empty selector returns the
// default account.
func (c *CLIConfiguration) Account(nameOrID string) (*Account, error) {
	if nameOrID == "" {
		return c.DefaultAccount()
	}
	accounts := c.Config().Accounts
	// Names win over IDs so a numeric-looking name is still addressable.
	for i := range accounts {
		if accounts[i].Name != "" && accounts[i].Name == nameOrID {
			return &accounts[i], nil
		}
	}
	for i := range accounts {
		if accounts[i].Matches(nameOrID) {
			return &accounts[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, nameOrID)
}

// AccountByID finds an account by numeric ID.
func (c *CLIConfiguration) AccountByID(id int64) (*Account, error) {
	if i := c.AccountIndex(id); i >= 0 {
		return &c.Config().Accounts[i], nil
	}
	return nil, fmt.Errorf("%w: %d", ErrAccountNotFound, id)
}

// AccountID resolves a name or ID to an account ID.
func (c *CLIConfiguration) AccountID(nameOrID string) (int64, error) {
	a, err := c.Account(nameOrID)
	if err != nil {
		return 0, err
	}
	return a.AccountID, nil
}

// HasAccount reports whether an account matches nameOrID.
func (c *CLIConfiguration) HasAccount(nameOrID string) bool {
	if nameOrID == "" {
		return false
	}
	_, err := c.Account(nameOrID)
	return err == nil
}

// AccountIndex returns the index of the account with the given ID, or -1.
func (c *CLIConfiguration) AccountIndex(id int64) int {
	for i, a := range c.Config().Accounts {
		if a.AccountID == id {
			return i
		}
	}
	return -1
}

// DefaultAccount returns the account named by defaultAccount.
func (c *CLIConfiguration) DefaultAccount() (*Account, error) {
	def := c.Config().DefaultAccount
	if def == "" {
		return nil, fmt.Errorf("%w: no default account set\n\nSet one with: hublink accounts use <name>", ErrAccountNotFound)
	}
	return c.Account(def)
}

// AccountEnv returns the environment of an account, falling back to the
// config-level env and then production.
func (c *CLIConfiguration) AccountEnv(nameOrID string) Env {
	if a, err := c.Account(nameOrID); err == nil && a.Env != "" {
		return a.Env
	}
	if c.Config().Env != "" {
		return ValidEnv(string(c.Config().Env))
	}
	return EnvProd
}

// AddOrUpdateAccount merges update into the account with the same ID, or
// appends it as a new account. Zero-valued fields in update leave the
// existing values untouched; a non-nil Auth replaces the stored one.
func (c *CLIConfiguration) AddOrUpdateAccount(update Account, write bool) (*Account, error) {
	if update.AccountID <= 0 {
		return nil, fmt.Errorf("accountId is required to add or update an account")
	}
	if update.Name != "" {
		if err := validateAccountName(update.Name); err != nil {
			return nil, err
		}
		for _, a := range c.Config().Accounts {
			if a.Name == update.Name && a.AccountID != update.AccountID {
				return nil, fmt.Errorf("account name %q is already used by account %d", update.Name, a.AccountID)
			}
		}
	}
	if update.AuthType != "" && !update.AuthType.Valid() {
		return nil, fmt.Errorf("unknown auth type %q", update.AuthType)
	}
	if update.DefaultMode != "" && !update.DefaultMode.Valid() {
		return nil, fmt.Errorf("unknown mode %q", update.DefaultMode)
	}

	cfg := c.Config()
	idx := c.AccountIndex(update.AccountID)
	if idx < 0 {
		cfg.Accounts = append(cfg.Accounts, Account{AccountID: update.AccountID})
		idx = len(cfg.Accounts) - 1
	}
	merged := &cfg.Accounts[idx]
	oldName := merged.Name
	wasDefault := oldName != "" && cfg.DefaultAccount == oldName
	mergeAccount(merged, update)
	if wasDefault && merged.Name != oldName {
		cfg.DefaultAccount = merged.Name
	}
	if merged.Env == "" {
		merged.Env = ValidEnv(string(cfg.Env))
	}

	log.Debug("updated account", "account_id", merged.AccountID, "name", merged.Name)

	if write {
		if err := c.Write(); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

func mergeAccount(dst *Account, src Account) {
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.AuthType != "" {
		dst.AuthType = src.AuthType
	}
	if src.Env != "" {
		dst.Env = ValidEnv(string(src.Env))
	}
	if src.PersonalAccessKey != "" {
		dst.PersonalAccessKey = src.PersonalAccessKey
	}
	if src.APIKey != "" {
		dst.APIKey = src.APIKey
	}
	if src.Auth != nil {
		auth := *src.Auth
		auth.Scopes = append([]string(nil), src.Auth.Scopes...)
		dst.Auth = &auth
	}
	if src.DefaultMode != "" {
		dst.DefaultMode = src.DefaultMode
	}
	if src.AccountType != "" {
		dst.AccountType = src.AccountType
	}
	if src.ParentAccountID != 0 {
		dst.ParentAccountID = src.ParentAccountID
	}
}

// UpdateTokenInfo replaces the OAuth token set of an account and writes
// the config.
func (c *CLIConfiguration) UpdateTokenInfo(id int64, token TokenInfo) error {
	a, err := c.AccountByID(id)
	if err != nil {
		return err
	}
	if a.Auth == nil {
		a.Auth = &OAuthInfo{}
	}
	if token.RefreshToken == "" {
		token.RefreshToken = a.Auth.TokenInfo.RefreshToken
	}
	a.Auth.TokenInfo = token
	return c.Write()
}

// UpdateDefaultAccount sets the default account.
func (c *CLIConfiguration) UpdateDefaultAccount(nameOrID string) error {
	a, err := c.Account(nameOrID)
	if err != nil {
		return err
	}
	if a.Name != "" {
		c.Config().DefaultAccount = a.Name
	} else {
		c.Config().DefaultAccount = strconv.FormatInt(a.AccountID, 10)
	}
	return c.Write()
}

// RenameAccount changes an account's name. The default account reference
// follows the rename.
func (c *CLIConfiguration) RenameAccount(current, next string) error {
	if err := validateAccountName(next); err != nil {
		return err
	}
	a, err := c.Account(current)
	if err != nil {
		return err
	}
	if next == a.Name {
		return nil
	}
	if c.HasAccount(next) {
		return fmt.Errorf("an account named %q already exists", next)
	}

	cfg := c.Config()
	wasDefault := cfg.DefaultAccount != "" && a.Matches(cfg.DefaultAccount)
	a.Name = next
	if wasDefault {
		cfg.DefaultAccount = next
	}
	return c.Write()
}

// RemoveAccount deletes an account. It reports whether the removed account
// was the default, in which case the default is cleared.
func (c *CLIConfiguration) RemoveAccount(nameOrID string) (bool, error) {
	a, err := c.Account(nameOrID)
	if err != nil {
		return false, err
	}

	cfg := c.Config()
	removedDefault := cfg.DefaultAccount != "" && a.Matches(cfg.DefaultAccount)
	idx := c.AccountIndex(a.AccountID)
	cfg.Accounts = append(cfg.Accounts[:idx], cfg.Accounts[idx+1:]...)
	if removedDefault {
		cfg.DefaultAccount = ""
	}

	if err := c.Write(); err != nil {
		return removedDefault, err
	}
	return removedDefault, nil
}

// UpdateDefaultMode sets the default publish mode.
func (c *CLIConfiguration) UpdateDefaultMode(mode Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid mode %q: must be %q or %q", mode, ModePublish, ModeDraft)
	}
	c.Config().DefaultMode = mode
	return c.Write()
}

// UpdateHTTPTimeout sets the request timeout in milliseconds.
func (c *CLIConfiguration) UpdateHTTPTimeout(ms int) error {
	if ms < MinHTTPTimeoutMillis {
		return fmt.Errorf("http timeout must be at least %d ms, got %d", MinHTTPTimeoutMillis, ms)
	}
	c.Config().HTTPTimeout = ms
	return c.Write()
}

// UpdateAllowUsageTracking enables or disables usage tracking.
func (c *CLIConfiguration) UpdateAllowUsageTracking(allowed bool) error {
	c.Config().AllowUsageTracking = &allowed
	return c.Write()
}

// UsageTrackingAllowed reports whether usage events may be sent.
// Tracking is on unless explicitly disabled.
func (c *CLIConfiguration) UsageTrackingAllowed() bool {
	if v := c.Config().AllowUsageTracking; v != nil {
		return *v
	}
	return true
}

// HTTPTimeout returns the configured request timeout.
func (c *CLIConfiguration) HTTPTimeout() time.Duration {
	if ms := c.Config().HTTPTimeout; ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return DefaultHTTPTimeout
}

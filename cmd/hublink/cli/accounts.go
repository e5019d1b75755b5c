package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/majorcontext/hublink/internal/api"
	intcli "github.com/majorcontext/hublink/internal/cli"
	"github.com/majorcontext/hublink/internal/config"
	"github.com/majorcontext/hublink/internal/doctor"
	"github.com/majorcontext/hublink/internal/log"
	"github.com/majorcontext/hublink/internal/ui"
)

var accountsCmd = &cobra.Command{
	Use:     "accounts",
	Aliases: []string{"account"},
	Short:   "Manage configured accounts",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured accounts",
	Long: `List all accounts in the config file.

Examples:
  hublink accounts list          # Table of accounts
  hublink accounts list --json   # Output as JSON`,
	Args: cobra.NoArgs,
	RunE: runAccountsList,
}

var accountsUseCmd = &cobra.Command{
	Use:   "use <account>",
	Short: "Set the default account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		acct, err := a.accountFor(args[0])
		if err != nil {
			return err
		}
		if err := a.cfg.UpdateDefaultAccount(args[0]); err != nil {
			return err
		}
		ui.Successf("Default account is now %s (%d)", acct.DisplayName(), acct.AccountID)
		return nil
	},
}

var accountsRenameCmd = &cobra.Command{
	Use:   "rename <account> <new-name>",
	Short: "Rename an account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		if _, err := a.accountFor(args[0]); err != nil {
			return err
		}
		if err := a.cfg.RenameAccount(args[0], args[1]); err != nil {
			return err
		}
		ui.Successf("Renamed %s to %s", args[0], args[1])
		return nil
	},
}

var accountsRemoveForce bool

var accountsRemoveCmd = &cobra.Command{
	Use:         "remove <account>",
	Short:       "Remove an account from the config",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{"interactive": "true"},
	RunE:        runAccountsRemove,
}

var accountsInfoCmd = &cobra.Command{
	Use:   "info [account]",
	Short: "Show details and scopes for an account",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAccountsInfo,
}

var accountsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the credentials of every account",
	Long: `Check that every configured account can authenticate. Accounts are
checked concurrently.`,
	Args: cobra.NoArgs,
	RunE: runAccountsCheck,
}

func init() {
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.AddCommand(accountsListCmd, accountsUseCmd, accountsRenameCmd, accountsRemoveCmd, accountsInfoCmd, accountsCheckCmd)
	accountsRemoveCmd.Flags().BoolVarP(&accountsRemoveForce, "force", "f", false, "do not ask for confirmation")
}

type accountJSON struct {
	AccountID       int64  `json:"accountId"`
	Name            string `json:"name,omitempty"`
	AuthType        string `json:"authType"`
	Env             string `json:"env"`
	AccountType     string `json:"accountType,omitempty"`
	ParentAccountID int64  `json:"parentAccountId,omitempty"`
	Default         bool   `json:"default"`
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	accounts := a.cfg.Accounts()
	def, _ := a.cfg.DefaultAccount()

	if jsonOut {
		out := make([]accountJSON, 0, len(accounts))
		for _, acct := range accounts {
			out = append(out, accountJSON{
				AccountID:       acct.AccountID,
				Name:            acct.Name,
				AuthType:        string(acct.AuthType),
				Env:             string(config.ValidEnv(string(acct.Env))),
				AccountType:     string(acct.AccountType),
				ParentAccountID: acct.ParentAccountID,
				Default:         def != nil && def.AccountID == acct.AccountID,
			})
		}
		return intcli.PrintJSON(cmd.OutOrStdout(), out)
	}

	if len(accounts) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No accounts configured.")
		fmt.Fprintln(cmd.OutOrStdout(), "\nAdd one with: hublink auth")
		return nil
	}

	w := intcli.NewTable(cmd.OutOrStdout())
	fmt.Fprintln(w, "NAME\tID\tTYPE\tAUTH\tENV")
	for _, acct := range accounts {
		name := acct.DisplayName()
		if def != nil && def.AccountID == acct.AccountID {
			name += " (default)"
		}
		accountType := string(acct.AccountType)
		if accountType == "" {
			accountType = "-"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
			name,
			acct.AccountID,
			accountType,
			acct.AuthType,
			config.ValidEnv(string(acct.Env)),
		)
	}
	return w.Flush()
}

func runAccountsRemove(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	acct, err := a.accountFor(args[0])
	if err != nil {
		return err
	}
	id, name := acct.AccountID, acct.DisplayName()

	if !accountsRemoveForce {
		ok, err := newPrompter().Confirm(fmt.Sprintf("Remove account %s (%d)?", name, id))
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	removedDefault, err := a.cfg.RemoveAccount(args[0])
	if err != nil {
		return err
	}
	if m, err := a.authManager(); err == nil {
		if err := m.Forget(id); err != nil {
			log.Debug("failed to drop cached token", "account", id, "error", err)
		}
	}
	ui.Successf("Removed account %s", name)
	if removedDefault {
		ui.Warn("The removed account was the default. Pick a new one with: hublink accounts use <account>")
	}
	return nil
}

type accountInfo struct {
	AccountID   int64    `json:"accountId"`
	Name        string   `json:"name,omitempty"`
	AuthType    string   `json:"authType"`
	Env         string   `json:"env"`
	AccountType string   `json:"accountType,omitempty"`
	TimeZone    string   `json:"timeZone,omitempty"`
	UIDomain    string   `json:"uiDomain,omitempty"`
	Scopes      []string `json:"scopes,omitempty"`
	ExpiresAt   string   `json:"tokenExpiresAt,omitempty"`
}

func runAccountsInfo(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	selector := accountFlag
	if len(args) == 1 {
		selector = args[0]
	}
	acct, err := a.accountFor(selector)
	if err != nil {
		return err
	}
	client, err := a.api()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	info := accountInfo{
		AccountID:   acct.AccountID,
		Name:        acct.Name,
		AuthType:    string(acct.AuthType),
		Env:         string(config.ValidEnv(string(acct.Env))),
		AccountType: string(acct.AccountType),
	}

	details, err := api.FetchAccountDetails(ctx, client, acct.AccountID)
	if err != nil {
		return err
	}
	info.TimeZone = details.TimeZone
	info.UIDomain = details.UIDomain
	if info.AccountType == "" {
		info.AccountType = details.AccountType
	}

	var expires time.Time
	if acct.AuthType == config.AuthPersonalAccessKey {
		tok, err := a.auth.AccessTokenFor(ctx, acct.AccountID, false)
		if err != nil {
			return err
		}
		expires = tok.ExpiresAt
		if scopes, err := api.FetchAuthorizedScopes(ctx, client, acct.AccountID); err == nil {
			info.Scopes = scopes.Names()
		} else {
			log.Debug("could not fetch scopes", "error", err)
			info.Scopes = tok.ScopeGroups
		}
		info.ExpiresAt = expires.Format(time.RFC3339)
	}

	if jsonOut {
		return intcli.PrintJSON(cmd.OutOrStdout(), info)
	}

	w := intcli.NewTable(cmd.OutOrStdout())
	fmt.Fprintf(w, "Account:\t%s\n", acct.DisplayName())
	fmt.Fprintf(w, "ID:\t%d\n", info.AccountID)
	fmt.Fprintf(w, "Type:\t%s\n", info.AccountType)
	fmt.Fprintf(w, "Auth:\t%s\n", info.AuthType)
	fmt.Fprintf(w, "Env:\t%s\n", info.Env)
	if info.TimeZone != "" {
		fmt.Fprintf(w, "Time zone:\t%s\n", info.TimeZone)
	}
	if !expires.IsZero() {
		fmt.Fprintf(w, "Access token:\t%s\n", intcli.FormatExpiry(expires))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(info.Scopes) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "\nScopes:")
		for _, s := range info.Scopes {
			fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", s)
		}
	}
	return nil
}

func runAccountsCheck(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	accounts := a.cfg.Accounts()
	if len(accounts) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No accounts configured.")
		return nil
	}
	client, err := a.api()
	if err != nil {
		return err
	}

	ids := make([]int64, len(accounts))
	names := make(map[int64]string, len(accounts))
	for i, acct := range accounts {
		ids[i] = acct.AccountID
		names[acct.AccountID] = acct.DisplayName()
	}

	refreshTokens(cmd.Context(), a)

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*a.cfg.HTTPTimeout())
	defer cancel()
	results, err := doctor.CheckAccounts(ctx, ids, 4, func(ctx context.Context, id int64) error {
		_, err := api.FetchAccountDetails(ctx, client, id)
		return err
	})
	if err != nil {
		return err
	}

	w := intcli.NewTable(cmd.OutOrStdout())
	fmt.Fprintln(w, "ACCOUNT\tID\tSTATUS")
	for _, r := range results {
		status := ui.OKTag() + " ok (" + r.Duration.Round(time.Millisecond).String() + ")"
		if r.Err != nil {
			status = ui.FailTag() + " " + r.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", names[r.AccountID], strconv.FormatInt(r.AccountID, 10), status)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if failed := doctor.Failed(results); len(failed) > 0 {
		return fmt.Errorf("%d of %d accounts failed", len(failed), len(results))
	}
	return nil
}

// refreshTokens exchanges personal access keys one account at a time so
// the concurrent checks that follow only read the config.
func refreshTokens(ctx context.Context, a *app) {
	for _, acct := range a.cfg.Accounts() {
		if acct.AuthType != config.AuthPersonalAccessKey {
			continue
		}
		if _, err := a.auth.AccessTokenFor(ctx, acct.AccountID, false); err != nil {
			log.Debug("token refresh failed", "account", acct.AccountID, "error", err)
		}
	}
}

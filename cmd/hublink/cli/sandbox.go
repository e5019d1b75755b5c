package cli

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/majorcontext/hublink/internal/api"
	"github.com/majorcontext/hublink/internal/auth"
	intcli "github.com/majorcontext/hublink/internal/cli"
	"github.com/majorcontext/hublink/internal/config"
	"github.com/majorcontext/hublink/internal/log"
	"github.com/majorcontext/hublink/internal/ui"
)

var (
	sandboxType  string
	sandboxForce bool
)

var sandboxCmd = &cobra.Command{
	Use:     "sandbox",
	Aliases: []string{"sandboxes"},
	Short:   "Create and delete sandbox accounts",
}

var sandboxCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a sandbox under the current account",
	Long: `Create a sandbox account under the selected account and add it to
the config, authenticated with a personal access key generated for it.

Examples:
  hublink sandbox create test-sandbox
  hublink sandbox create dev --type developer -a prod`,
	Args: cobra.ExactArgs(1),
	RunE: runSandboxCreate,
}

var sandboxDeleteCmd = &cobra.Command{
	Use:         "delete <sandbox>",
	Short:       "Delete a sandbox and remove it from the config",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{"interactive": "true"},
	RunE:        runSandboxDelete,
}

var sandboxLimitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Show how many sandboxes the account may create",
	Args:  cobra.NoArgs,
	RunE:  runSandboxLimits,
}

func init() {
	rootCmd.AddCommand(sandboxCmd)
	sandboxCmd.AddCommand(sandboxCreateCmd, sandboxDeleteCmd, sandboxLimitsCmd)
	sandboxCreateCmd.Flags().StringVarP(&sandboxType, "type", "t", "standard", "sandbox type: standard or developer")
	sandboxDeleteCmd.Flags().BoolVarP(&sandboxForce, "force", "f", false, "do not ask for confirmation")
}

func runSandboxCreate(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	parent, err := a.account()
	if err != nil {
		return err
	}
	if parent.AccountType.IsSandbox() {
		return fmt.Errorf("account %s is a sandbox; sandboxes can only be created from a standard account", parent.DisplayName())
	}
	parentID, env := parent.AccountID, config.ValidEnv(string(parent.Env))
	client, err := a.api()
	if err != nil {
		return err
	}

	created, err := api.CreateSandbox(cmd.Context(), client, parentID, args[0], strings.ToUpper(sandboxType))
	if err != nil {
		return err
	}
	sb := created.Sandbox
	ui.Successf("Created sandbox %s (%d)", sb.Name, sb.SandboxHubID)

	if created.PersonalAccessKey == "" {
		ui.Warn("The platform did not return a personal access key. Add the sandbox with: hublink auth")
		return nil
	}
	m, err := a.authManager()
	if err != nil {
		return err
	}
	acct, _, err := m.SaveAccountFromKey(cmd.Context(), created.PersonalAccessKey, auth.SaveAccountOptions{
		Env:  env,
		Name: accountNameFor(sb.Name),
	})
	if err != nil {
		return fmt.Errorf("adding sandbox to config: %w", err)
	}
	if _, err := a.cfg.AddOrUpdateAccount(config.Account{
		AccountID:       acct.AccountID,
		AccountType:     sb.AccountType(),
		ParentAccountID: parentID,
	}, true); err != nil {
		return err
	}
	ui.Infof("Added account %s. Use it with: hublink -a %s <command>", acct.DisplayName(), acct.DisplayName())
	return nil
}

// accountNameFor turns a sandbox name into a valid account name.
func accountNameFor(name string) string {
	return strings.Join(strings.Fields(name), "-")
}

func runSandboxDelete(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	sb, err := a.cfg.Account(args[0])
	if err != nil {
		return err
	}
	if !sb.AccountType.IsSandbox() && sb.ParentAccountID == 0 {
		return fmt.Errorf("account %s is not a sandbox", sb.DisplayName())
	}
	sandboxID, name := sb.AccountID, sb.DisplayName()

	parentID := sb.ParentAccountID
	if accountFlag != "" {
		parent, err := a.accountFor(accountFlag)
		if err != nil {
			return err
		}
		parentID = parent.AccountID
	}
	if parentID == 0 {
		return errors.New("the sandbox's parent account is unknown\n\nPass it with: hublink sandbox delete <sandbox> -a <parent>")
	}
	a.accountID = parentID

	if !sandboxForce {
		ok, err := newPrompter().Confirm(fmt.Sprintf("Delete sandbox %s (%d)? This cannot be undone.", name, sandboxID))
		if err != nil || !ok {
			return err
		}
	}

	client, err := a.api()
	if err != nil {
		return err
	}
	if err := api.DeleteSandbox(cmd.Context(), client, parentID, sandboxID); err != nil {
		return err
	}
	if _, err := a.cfg.RemoveAccount(strconv.FormatInt(sandboxID, 10)); err != nil {
		return err
	}
	if err := a.auth.Forget(sandboxID); err != nil {
		log.Debug("failed to drop cached token", "account", sandboxID, "error", err)
	}
	ui.Successf("Deleted sandbox %s", name)
	return nil
}

func runSandboxLimits(cmd *cobra.Command, args []string) error {
	client, acct, err := accountClient()
	if err != nil {
		return err
	}
	limits, err := api.FetchSandboxUsageLimits(cmd.Context(), client, acct)
	if err != nil {
		return err
	}
	if jsonOut {
		return intcli.PrintJSON(cmd.OutOrStdout(), limits)
	}

	types := make([]string, 0, len(limits.Usage))
	for t := range limits.Usage {
		types = append(types, t)
	}
	sort.Strings(types)

	w := intcli.NewTable(cmd.OutOrStdout())
	fmt.Fprintln(w, "TYPE\tUSED\tAVAILABLE\tLIMIT")
	for _, t := range types {
		u := limits.Usage[t]
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", t, u.Used, u.Available, u.Limit)
	}
	return w.Flush()
}

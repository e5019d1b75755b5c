package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/majorcontext/hublink/internal/api"
	intcli "github.com/majorcontext/hublink/internal/cli"
	"github.com/majorcontext/hublink/internal/transport"
	"github.com/majorcontext/hublink/internal/ui"
)

var secretsForce bool

var secretsCmd = &cobra.Command{
	Use:     "secrets",
	Aliases: []string{"secret"},
	Short:   "Manage secrets for serverless functions",
	Long: `Manage the secrets available to serverless functions in an account.
Secret values are write-only: they are never returned by the platform.`,
}

var secretsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List secret keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, acct, err := accountClient()
		if err != nil {
			return err
		}
		keys, err := api.FetchSecrets(cmd.Context(), client, acct)
		if err != nil {
			return err
		}
		sort.Strings(keys)
		if jsonOut {
			return intcli.PrintJSON(cmd.OutOrStdout(), keys)
		}
		if len(keys) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No secrets in account %d\n", acct)
			return nil
		}
		for _, k := range keys {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
		return nil
	},
}

var secretsAddCmd = &cobra.Command{
	Use:         "add <key>",
	Short:       "Add a secret",
	Long:        "Add a secret. The value is read from the prompt without echo.",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{"interactive": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeSecret(cmd, args[0], false)
	},
}

var secretsUpdateCmd = &cobra.Command{
	Use:         "update <key>",
	Short:       "Change the value of a secret",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{"interactive": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeSecret(cmd, args[0], true)
	},
}

var secretsDeleteCmd = &cobra.Command{
	Use:         "delete <key>",
	Short:       "Delete a secret",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{"interactive": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		client, acct, err := accountClient()
		if err != nil {
			return err
		}
		if !secretsForce {
			ok, err := newPrompter().Confirm(fmt.Sprintf("Delete secret %s from account %d?", args[0], acct))
			if err != nil || !ok {
				return err
			}
		}
		if err := api.DeleteSecret(cmd.Context(), client, acct, args[0]); err != nil {
			return err
		}
		ui.Successf("Deleted secret %s", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(secretsCmd)
	secretsCmd.AddCommand(secretsListCmd, secretsAddCmd, secretsUpdateCmd, secretsDeleteCmd)
	secretsDeleteCmd.Flags().BoolVarP(&secretsForce, "force", "f", false, "do not ask for confirmation")
}

// accountClient resolves the command's account and returns the platform
// client with it.
func accountClient() (*transport.Client, int64, error) {
	a, err := loadApp()
	if err != nil {
		return nil, 0, err
	}
	acct, err := a.account()
	if err != nil {
		return nil, 0, err
	}
	client, err := a.api()
	if err != nil {
		return nil, 0, err
	}
	return client, acct.AccountID, nil
}

func writeSecret(cmd *cobra.Command, key string, update bool) error {
	client, acct, err := accountClient()
	if err != nil {
		return err
	}
	value, err := newPrompter().Secret("Value for " + key)
	if err != nil {
		return err
	}
	if value == "" {
		return fmt.Errorf("secret %s has an empty value", key)
	}
	if update {
		if err := api.UpdateSecret(cmd.Context(), client, acct, key, value); err != nil {
			return err
		}
		ui.Successf("Updated secret %s", key)
		return nil
	}
	if err := api.AddSecret(cmd.Context(), client, acct, key, value); err != nil {
		return err
	}
	ui.Successf("Added secret %s", key)
	return nil
}

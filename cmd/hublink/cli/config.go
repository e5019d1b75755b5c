package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/majorcontext/hublink/internal/config"
	"github.com/majorcontext/hublink/internal/ui"
)

var (
	cfgHTTPTimeout        int
	cfgAllowUsageTracking bool
	cfgDefaultMode        string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View and change CLI settings",
}

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change global settings",
	Long: `Change settings stored at the top level of the config file.

Examples:
  hublink config set --http-timeout 30000
  hublink config set --allow-usage-tracking=false
  hublink config set --default-mode draft`,
	Args: cobra.NoArgs,
	RunE: runConfigSet,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config file for problems",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		if err := a.cfg.Validate(); err != nil {
			return err
		}
		ui.Successf("%s is valid (%d accounts)", configSource(a.cfg), len(a.cfg.Accounts()))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:         "path",
	Short:       "Print the config file path",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{"skipUsage": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), configSource(a.cfg))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSetCmd, configValidateCmd, configPathCmd)

	configSetCmd.Flags().IntVar(&cfgHTTPTimeout, "http-timeout", 0, "request timeout in milliseconds")
	configSetCmd.Flags().BoolVar(&cfgAllowUsageTracking, "allow-usage-tracking", true, "send anonymous usage events")
	configSetCmd.Flags().StringVar(&cfgDefaultMode, "default-mode", "", "default upload mode: publish or draft")
}

func configSource(cfg *config.CLIConfiguration) string {
	if cfg.IsEnvSourced() {
		return "environment"
	}
	return cfg.Path()
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	if a.cfg.IsEnvSourced() {
		return errors.New("settings cannot be changed while the config comes from environment variables")
	}

	flags := cmd.Flags()
	changed := 0
	if flags.Changed("http-timeout") {
		if err := a.cfg.UpdateHTTPTimeout(cfgHTTPTimeout); err != nil {
			return err
		}
		ui.Successf("httpTimeout set to %d ms", cfgHTTPTimeout)
		changed++
	}
	if flags.Changed("allow-usage-tracking") {
		if err := a.cfg.UpdateAllowUsageTracking(cfgAllowUsageTracking); err != nil {
			return err
		}
		ui.Successf("allowUsageTracking set to %t", cfgAllowUsageTracking)
		changed++
	}
	if flags.Changed("default-mode") {
		if err := a.cfg.UpdateDefaultMode(config.Mode(cfgDefaultMode)); err != nil {
			return err
		}
		ui.Successf("defaultMode set to %s", cfgDefaultMode)
		changed++
	}
	if changed == 0 {
		return errors.New("nothing to set\n\nPass at least one of --http-timeout, --allow-usage-tracking or --default-mode")
	}
	return nil
}

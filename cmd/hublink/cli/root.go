// Package cli implements the hublink command-line interface using Cobra.
// It provides commands for managing platform accounts, scaffolding
// projects from GitHub, and calling the platform APIs.
package cli

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/majorcontext/hublink/internal/config"
	"github.com/majorcontext/hublink/internal/log"
	"github.com/majorcontext/hublink/internal/transport"
	"github.com/majorcontext/hublink/internal/ui"
	"github.com/majorcontext/hublink/internal/usage"
)

var (
	verbose     bool
	jsonOut     bool
	accountFlag string
	configPath  string
	useEnv      bool
)

var rootCmd = &cobra.Command{
	Use:   "hublink",
	Short: "hublink - command line tools for the hublink platform",
	Long: `hublink manages platform accounts and talks to the platform APIs.

Authenticate once with "hublink auth", then scaffold projects from GitHub,
manage serverless function secrets, projects and sandboxes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			cmd.PrintErrf("Warning: failed to load .env: %v\n", err)
		}

		settings, _ := config.LoadSettings()
		debugDir := filepath.Join(config.GlobalConfigDir(), "debug")

		// Prompting commands own the terminal.
		quiet := false
		if cmd.Annotations["interactive"] == "true" {
			quiet = true
		}

		if err := log.Init(log.Options{
			Verbose:       verbose,
			JSONFormat:    jsonOut,
			Quiet:         quiet,
			DebugDir:      debugDir,
			RetentionDays: settings.Debug.RetentionDays,
		}); err != nil {
			// Log init failure is non-fatal - fallback to default logger
			cmd.PrintErrf("Warning: failed to initialize debug logging: %v\n", err)
		}
		log.SetCommand(cmd.CommandPath())
		return nil
	},
}

// Execute runs the root command, reports the usage event for it and
// releases shared resources.
func Execute() error {
	cmd, err := rootCmd.ExecuteC()
	if err != nil {
		printError(err)
	}
	finish(cmd, err)
	return err
}

// finish tracks the command and tears down the app.
func finish(cmd *cobra.Command, runErr error) {
	defer log.Close()
	if current == nil {
		return
	}
	defer func() {
		current.close()
		current = nil
	}()

	if cmd == nil || cmd.Annotations["skipUsage"] == "true" {
		return
	}
	tracker := current.tracker()
	tracker.TrackAsync(usage.EventCLIInteraction, usage.ClassInteraction, map[string]string{
		"command":    cmd.CommandPath(),
		"successful": boolString(runErr == nil),
	}, current.accountID)
	if !tracker.Wait(2 * time.Second) {
		log.Debug("usage event still pending at exit")
	}
}

func printError(err error) {
	ui.Error(err.Error())
	if h := hint(err); h != "" {
		ui.Info(h)
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVarP(&accountFlag, "account", "a", "", "account name or ID to use")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (env: HUBLINK_CONFIG_PATH)")
	rootCmd.PersistentFlags().BoolVar(&useEnv, "use-env", false, "read the account from environment variables (env: "+config.EnvVarUseEnvConfig+")")

	transport.Version = version
	rootCmd.SetErr(os.Stderr)
}

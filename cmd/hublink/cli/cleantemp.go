package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	intcli "github.com/majorcontext/hublink/internal/cli"
	"github.com/majorcontext/hublink/internal/system"
	"github.com/majorcontext/hublink/internal/ui"
)

var (
	cleanTempMinAge time.Duration
	cleanTempForce  bool
	cleanTempDryRun bool
)

var cleanTempCmd = &cobra.Command{
	Use:   "clean-temp",
	Short: "Remove temp directories left by interrupted downloads",
	Long: `Scan the temp directory for hublink-temp-* directories that are older
than --min-age and remove them.

hublink extracts downloaded archives into these directories and removes
them when the copy finishes. They only linger when a run is killed.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{"interactive": "true", "skipUsage": "true"},
	RunE:        runCleanTemp,
}

func init() {
	rootCmd.AddCommand(cleanTempCmd)
	cleanTempCmd.Flags().DurationVar(&cleanTempMinAge, "min-age", time.Hour, "minimum age of directories to remove (e.g. 1h, 24h)")
	cleanTempCmd.Flags().BoolVarP(&cleanTempForce, "force", "f", false, "do not ask for confirmation")
	cleanTempCmd.Flags().BoolVar(&cleanTempDryRun, "dry-run", false, "list directories without removing them")
}

func runCleanTemp(cmd *cobra.Command, args []string) error {
	stale, err := system.FindStaleTempDirs(cleanTempMinAge)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(stale) == 0 {
		fmt.Fprintln(out, "No stale temp directories found.")
		return nil
	}

	var total int64
	w := intcli.NewTable(out)
	fmt.Fprintln(w, "PATH\tAGE\tSIZE")
	for _, d := range stale {
		total += d.Size
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.Path, intcli.FormatTimeAgo(d.ModTime), system.FormatSize(d.Size))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nTotal: %s\n", system.FormatSize(total))

	if cleanTempDryRun {
		fmt.Fprintln(out, "Dry run, nothing removed.")
		return nil
	}
	if !cleanTempForce {
		ok, err := newPrompter().Confirm("Remove these directories?")
		if err != nil || !ok {
			return err
		}
	}

	removed, skipped, err := system.CleanStaleTempDirs(stale, cleanTempMinAge)
	for _, p := range skipped {
		ui.Warnf("Skipped %s (modified since scan)", p)
	}
	if err != nil {
		return fmt.Errorf("removing temp directories: %w", err)
	}
	ui.Successf("Removed %d temp directories", removed)
	return nil
}

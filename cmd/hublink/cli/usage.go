package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	intcli "github.com/majorcontext/hublink/internal/cli"
	"github.com/majorcontext/hublink/internal/ui"
	"github.com/majorcontext/hublink/internal/usage"
)

var (
	usageLimit    int
	usagePruneAge time.Duration
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect and resend usage events",
	Long: `hublink records every usage event it sends in a local journal
(~/.hublink/usage.db). Use these commands to see what was reported and to
resend events that failed.

Disable tracking with: hublink config set --allow-usage-tracking=false`,
}

var usageHistoryCmd = &cobra.Command{
	Use:         "history",
	Short:       "Show recent usage events",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{"skipUsage": "true"},
	RunE:        runUsageHistory,
}

var usageFlushCmd = &cobra.Command{
	Use:         "flush",
	Short:       "Resend usage events that failed",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{"skipUsage": "true"},
	RunE:        runUsageFlush,
}

var usagePruneCmd = &cobra.Command{
	Use:         "prune",
	Short:       "Delete old sent events from the journal",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{"skipUsage": "true"},
	RunE:        runUsagePrune,
}

func init() {
	rootCmd.AddCommand(usageCmd)
	usageCmd.AddCommand(usageHistoryCmd, usageFlushCmd, usagePruneCmd)
	usageHistoryCmd.Flags().IntVarP(&usageLimit, "limit", "n", 20, "number of events to show (0 for all)")
	usagePruneCmd.Flags().DurationVar(&usagePruneAge, "older-than", 30*24*time.Hour, "delete sent events older than this")
}

func journalApp() (*app, error) {
	a, err := loadApp()
	if err != nil {
		return nil, err
	}
	if a.journal == nil {
		return nil, errors.New("usage journal is unavailable (see hublink doctor)")
	}
	return a, nil
}

type usageRecordJSON struct {
	ID        string            `json:"id"`
	Time      time.Time         `json:"time"`
	Name      string            `json:"name"`
	Class     string            `json:"class"`
	AccountID int64             `json:"accountId,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	Status    string            `json:"status"`
	Attempts  int               `json:"attempts"`
	Error     string            `json:"error,omitempty"`
}

func runUsageHistory(cmd *cobra.Command, args []string) error {
	a, err := journalApp()
	if err != nil {
		return err
	}
	records, err := a.journal.History(usageLimit)
	if err != nil {
		return err
	}

	if jsonOut {
		out := make([]usageRecordJSON, 0, len(records))
		for _, r := range records {
			out = append(out, usageRecordJSON{
				ID:        r.ID,
				Time:      r.Time,
				Name:      r.Name,
				Class:     r.Class,
				AccountID: r.AccountID,
				Meta:      r.Meta,
				Status:    r.Status,
				Attempts:  r.Attempts,
				Error:     r.Error,
			})
		}
		return intcli.PrintJSON(cmd.OutOrStdout(), out)
	}

	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No usage events recorded.")
		return nil
	}
	w := intcli.NewTable(cmd.OutOrStdout())
	fmt.Fprintln(w, "WHEN\tEVENT\tCOMMAND\tSTATUS\tATTEMPTS")
	for _, r := range records {
		status := ui.Green(r.Status)
		if r.Status == usage.StatusFailed {
			status = ui.Red(r.Status)
		}
		command := r.Meta["command"]
		if command == "" {
			command = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", intcli.FormatTimeAgo(r.Time), r.Name, command, status, r.Attempts)
	}
	return w.Flush()
}

func runUsageFlush(cmd *cobra.Command, args []string) error {
	a, err := journalApp()
	if err != nil {
		return err
	}
	pending, err := a.journal.Count(usage.StatusFailed)
	if err != nil {
		return err
	}
	if pending == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No failed events to resend.")
		return nil
	}
	sent, err := a.tracker().Flush(cmd.Context())
	if err != nil {
		return err
	}
	if sent < pending {
		ui.Warnf("Resent %d of %d events; the rest failed again", sent, pending)
		return nil
	}
	ui.Successf("Resent %d events", sent)
	return nil
}

func runUsagePrune(cmd *cobra.Command, args []string) error {
	a, err := journalApp()
	if err != nil {
		return err
	}
	n, err := a.journal.Prune(time.Now().Add(-usagePruneAge))
	if err != nil {
		return err
	}
	ui.Successf("Removed %d events", n)
	return nil
}

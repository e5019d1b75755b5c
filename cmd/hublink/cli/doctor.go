package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/majorcontext/hublink/internal/api"
	"github.com/majorcontext/hublink/internal/config"
	"github.com/majorcontext/hublink/internal/doctor"
	"github.com/majorcontext/hublink/internal/log"
)

var doctorCheck bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose the hublink setup",
	Long: `Print the configuration, accounts, cached credentials, usage journal
and debug log location. With --check every account's credentials are
verified against the platform.

Secrets are masked in the output.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{"skipUsage": "true"},
	RunE:        runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorCheck, "check", false, "verify every account's credentials")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}

	reg := doctor.NewRegistry()
	reg.Register(&doctor.VersionSection{Version: version})
	reg.Register(&doctor.ConfigSection{Config: a.cfg})

	accounts := &doctor.AccountsSection{Config: a.cfg, Timeout: 2 * a.cfg.HTTPTimeout()}
	if doctorCheck {
		client, err := a.api()
		if err != nil {
			return err
		}
		refreshTokens(cmd.Context(), a)
		accounts.Check = func(ctx context.Context, id int64) error {
			_, err := api.FetchAccountDetails(ctx, client, id)
			return err
		}
	}
	reg.Register(accounts)

	if store, err := a.credentials(); err == nil {
		reg.Register(&doctor.CredentialsSection{Store: store})
	} else {
		log.Debug("credential store unavailable", "error", err)
	}
	reg.Register(&doctor.UsageSection{Journal: a.journal, Enabled: a.cfg.UsageTrackingAllowed()})
	reg.Register(&doctor.LogsSection{Dir: filepath.Join(config.GlobalConfigDir(), "debug")})

	if failed := reg.Run(cmd.OutOrStdout()); failed > 0 {
		return fmt.Errorf("%d diagnostic sections failed", failed)
	}
	return nil
}

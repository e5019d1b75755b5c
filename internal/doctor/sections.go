package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/majorcontext/hublink/internal/cli"
	"github.com/majorcontext/hublink/internal/config"
	"github.com/majorcontext/hublink/internal/credential"
	"github.com/majorcontext/hublink/internal/log"
	"github.com/majorcontext/hublink/internal/ui"
	"github.com/majorcontext/hublink/internal/usage"
)

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// VersionSection shows platform and version info.
type VersionSection struct {
	Version string
}

func (s *VersionSection) Name() string { return "Version" }

func (s *VersionSection) Print(w io.Writer) error {
	tw := newTabWriter(w)
	fmt.Fprintf(tw, "Version:\t%s\n", s.Version)
	fmt.Fprintf(tw, "Platform:\t%s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(tw, "Go:\t%s\n", runtime.Version())
	return tw.Flush()
}

// ConfigSection shows where the configuration came from and whether it
// validates.
type ConfigSection struct {
	Config *config.CLIConfiguration
}

func (s *ConfigSection) Name() string { return "Configuration" }

func (s *ConfigSection) Print(w io.Writer) error {
	cfg := s.Config
	tw := newTabWriter(w)
	if cfg.IsEnvSourced() {
		fmt.Fprintf(tw, "Source:\tenvironment (%s)\n", config.EnvVarUseEnvConfig)
	} else {
		fmt.Fprintf(tw, "Source:\t%s\n", cli.ShortenPath(cfg.Path()))
	}

	c := cfg.Config()
	def := c.DefaultAccount
	if def == "" {
		def = ui.Dim("none")
	}
	fmt.Fprintf(tw, "Default account:\t%s\n", def)
	fmt.Fprintf(tw, "HTTP timeout:\t%s\n", cfg.HTTPTimeout())
	fmt.Fprintf(tw, "Usage tracking:\t%t\n", cfg.UsageTrackingAllowed())

	if err := cfg.Validate(); err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(tw, "Valid:\t%s %d problem(s)\n", ui.FailTag(), len(verr.Problems))
			tw.Flush()
			for _, p := range verr.Problems {
				fmt.Fprintf(w, "  - %s\n", p)
			}
			return nil
		}
		fmt.Fprintf(tw, "Valid:\t%s %v\n", ui.FailTag(), err)
	} else {
		fmt.Fprintf(tw, "Valid:\t%s\n", ui.OKTag())
	}
	return tw.Flush()
}

// AccountsSection lists accounts and, when Check is set, verifies each
// account's credentials concurrently.
type AccountsSection struct {
	Config  *config.CLIConfiguration
	Check   CheckFunc
	Timeout time.Duration
}

func (s *AccountsSection) Name() string { return "Accounts" }

func (s *AccountsSection) Print(w io.Writer) error {
	accounts := s.Config.Accounts()
	if len(accounts) == 0 {
		fmt.Fprintln(w, "No accounts configured. Add one with: hublink auth")
		return nil
	}

	status := map[int64]string{}
	if s.Check != nil {
		timeout := s.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		ids := make([]int64, len(accounts))
		for i, a := range accounts {
			ids[i] = a.AccountID
		}
		results, _ := CheckAccounts(ctx, ids, 4, s.Check)
		for _, r := range results {
			if r.Err != nil {
				status[r.AccountID] = ui.FailTag() + " " + r.Err.Error()
			} else {
				status[r.AccountID] = ui.OKTag()
			}
		}
	}

	tw := newTabWriter(w)
	fmt.Fprintln(tw, "NAME\tID\tAUTH\tENV\tSTATUS")
	for _, a := range accounts {
		name := a.Name
		if name == "" {
			name = ui.Dim("-")
		}
		st := status[a.AccountID]
		if st == "" {
			st = ui.Dim("not checked")
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", name, a.AccountID, a.AuthType, config.ValidEnv(string(a.Env)), st)
	}
	return tw.Flush()
}

// CredentialsSection shows cached tokens without revealing them.
type CredentialsSection struct {
	Store credential.Store
	Now   func() time.Time
}

func (s *CredentialsSection) Name() string { return "Cached Credentials" }

func (s *CredentialsSection) Print(w io.Writer) error {
	creds, err := s.Store.List()
	if err != nil {
		return err
	}
	if len(creds) == 0 {
		fmt.Fprintln(w, "No credentials cached")
		return nil
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	tw := newTabWriter(w)
	fmt.Fprintln(tw, "KEY\tTOKEN\tEXPIRES")
	for _, c := range creds {
		expires := ui.Dim("never")
		if !c.ExpiresAt.IsZero() {
			if now().After(c.ExpiresAt) {
				expires = ui.FailTag() + " expired " + cli.FormatTimeAgo(c.ExpiresAt)
			} else {
				expires = cli.FormatExpiry(c.ExpiresAt)
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Key, cli.MaskSecret(c.Token), expires)
	}
	return tw.Flush()
}

// UsageSection summarizes the usage journal.
type UsageSection struct {
	Journal *usage.Journal
	Enabled bool
}

func (s *UsageSection) Name() string { return "Usage Tracking" }

func (s *UsageSection) Print(w io.Writer) error {
	tw := newTabWriter(w)
	fmt.Fprintf(tw, "Enabled:\t%t\n", s.Enabled)
	if s.Journal == nil {
		fmt.Fprintln(tw, "Journal:\tunavailable")
		return tw.Flush()
	}
	total, err := s.Journal.Count("")
	if err != nil {
		return err
	}
	failed, err := s.Journal.Count(usage.StatusFailed)
	if err != nil {
		return err
	}
	fmt.Fprintf(tw, "Events:\t%d\n", total)
	if failed > 0 {
		fmt.Fprintf(tw, "Failed:\t%s %d (resend with: hublink usage flush)\n", ui.WarnTag(), failed)
	} else {
		fmt.Fprintf(tw, "Failed:\t0\n")
	}
	return tw.Flush()
}

// LogsSection shows the debug log location.
type LogsSection struct {
	Dir string
}

func (s *LogsSection) Name() string { return "Debug Logs" }

func (s *LogsSection) Print(w io.Writer) error {
	files, err := log.Files(s.Dir)
	if err != nil {
		return err
	}
	tw := newTabWriter(w)
	fmt.Fprintf(tw, "Directory:\t%s\n", cli.ShortenPath(s.Dir))
	fmt.Fprintf(tw, "Files:\t%d\n", len(files))
	if len(files) > 0 {
		fmt.Fprintf(tw, "Latest:\t%s\n", filepath.Base(files[0]))
	}
	return tw.Flush()
}

package cli

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Version returns the build version string.
func Version() string {
	return version
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print the version of hublink",
	Annotations: map[string]string{"skipUsage": "true"},
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "hublink %s\n", version)
		if commit != "none" {
			fmt.Fprintf(out, "  commit: %s\n", commit)
		}
		if date != "unknown" {
			fmt.Fprintf(out, "  built:  %s\n", date)
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			fmt.Fprintf(out, "  go:     %s\n", info.GoVersion)
		}
	},
}

package cli

import (
	"os/exec"
	"runtime"

	"github.com/majorcontext/hublink/internal/log"
	"github.com/majorcontext/hublink/internal/ui"
)

// openBrowser opens url in the user's default browser. The URL is always
// printed so it can be copied when no browser is available.
func openBrowser(url string) {
	ui.Infof("\nOpening your browser to:\n\n  %s\n", url)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Debug("failed to open browser", "error", err)
		ui.Info("Could not open a browser. Open the URL above manually.")
		return
	}
	go cmd.Wait() //nolint:errcheck
}

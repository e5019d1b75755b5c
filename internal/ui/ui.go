// Package ui prints user-facing output for the hublink CLI. Diagnostics go
// to stderr with a colored prefix; listings and sections go to stdout.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

var (
	errOut io.Writer = os.Stderr
	stdOut io.Writer = os.Stdout
)

// SetWriter overrides the stderr writer (for testing). nil restores os.Stderr.
func SetWriter(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	errOut = w
}

// SetStdout overrides the stdout writer (for testing). nil restores os.Stdout.
func SetStdout(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	stdOut = w
}

// Stdout returns the current stdout writer.
func Stdout() io.Writer { return stdOut }

var stdoutColor = detectColor(os.Stdout)
var stderrColor = detectColor(os.Stderr)

func detectColor(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SetColorEnabled overrides color detection (for testing).
func SetColorEnabled(enabled bool) {
	stdoutColor = enabled
	stderrColor = enabled
}

// ColorEnabled reports whether stdout color is enabled.
func ColorEnabled() bool {
	return stdoutColor
}

type style string

const (
	bold   style = "1"
	dim    style = "2"
	red    style = "31"
	green  style = "32"
	yellow style = "33"
	cyan   style = "36"
)

func (s style) paint(text string, enabled bool) string {
	if !enabled {
		return text
	}
	return "\033[" + string(s) + "m" + text + "\033[0m"
}

// Bold returns s wrapped in bold ANSI codes (stdout).
func Bold(s string) string { return bold.paint(s, stdoutColor) }

// Dim returns s wrapped in dim ANSI codes (stdout).
func Dim(s string) string { return dim.paint(s, stdoutColor) }

// Green returns s wrapped in green ANSI codes (stdout).
func Green(s string) string { return green.paint(s, stdoutColor) }

// Red returns s wrapped in red ANSI codes (stdout).
func Red(s string) string { return red.paint(s, stdoutColor) }

// Yellow returns s wrapped in yellow ANSI codes (stdout).
func Yellow(s string) string { return yellow.paint(s, stdoutColor) }

// Cyan returns s wrapped in cyan ANSI codes (stdout).
func Cyan(s string) string { return cyan.paint(s, stdoutColor) }

// OKTag returns a green "✓" for success indicators.
func OKTag() string { return Green("✓") }

// FailTag returns a red "✗" for failure indicators.
func FailTag() string { return Red("✗") }

// WarnTag returns a yellow "⚠" for warning indicators.
func WarnTag() string { return Yellow("⚠") }

// InfoTag returns a cyan "ℹ" for info indicators.
func InfoTag() string { return Cyan("ℹ") }

// Section prints a bold title with a thin underline to stdout.
func Section(title string) {
	fmt.Fprintln(stdOut, Bold(title))
	fmt.Fprintln(stdOut, Dim(strings.Repeat("─", len([]rune(title)))))
}

func notice(prefix string, s style, msg string) {
	if prefix == "" {
		fmt.Fprintln(errOut, msg)
		return
	}
	fmt.Fprintf(errOut, "%s %s\n", s.paint(prefix, stderrColor), msg)
}

// Warn prints a user-facing warning to stderr.
func Warn(msg string) { notice("Warning:", yellow, msg) }

// Warnf prints a formatted user-facing warning to stderr.
func Warnf(format string, args ...any) { Warn(fmt.Sprintf(format, args...)) }

// Error prints a user-facing error to stderr.
func Error(msg string) { notice("Error:", red, msg) }

// Errorf prints a formatted user-facing error to stderr.
func Errorf(format string, args ...any) { Error(fmt.Sprintf(format, args...)) }

// Info prints a user-facing message to stderr with no prefix.
func Info(msg string) { notice("", "", msg) }

// Infof prints a formatted user-facing message to stderr with no prefix.
func Infof(format string, args ...any) { Info(fmt.Sprintf(format, args...)) }

// Success prints a check-marked confirmation to stderr.
func Success(msg string) { notice("✓", green, msg) }

// Successf prints a formatted check-marked confirmation to stderr.
func Successf(format string, args ...any) { Success(fmt.Sprintf(format, args...)) }

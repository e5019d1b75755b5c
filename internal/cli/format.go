package cli

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// ShortenPath shortens a path for display by replacing the home directory with ~.
func ShortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if rest, ok := strings.CutPrefix(path, home); ok && rest != "" {
		return "~" + rest
	}
	return path
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// FormatTimeAgo formats a time as a human-readable "ago" string.
func FormatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d.Minutes()), "minute") + " ago"
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour") + " ago"
	case d < 7*24*time.Hour:
		return plural(int(d.Hours()/24), "day") + " ago"
	default:
		return t.Format("Jan 2, 2006")
	}
}

// FormatExpiry describes when an access token expires relative to now.
func FormatExpiry(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	d := time.Until(t)
	switch {
	case d <= 0:
		return "expired"
	case d < time.Minute:
		return "expires in under a minute"
	case d < time.Hour:
		return "expires in " + plural(int(d.Minutes()), "minute")
	default:
		return "expires in " + plural(int(d.Hours()), "hour")
	}
}

// MaskSecret keeps the last four characters of a credential for display.
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", 8) + s[len(s)-4:]
}

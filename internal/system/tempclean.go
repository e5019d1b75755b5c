// Package system finds and removes temp directories that an interrupted
// hublink run left behind.
package system

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/majorcontext/hublink/internal/archive"
)

// TempDirPattern is a glob under the temp dir that hublink creates.
type TempDirPattern struct {
	Pattern     string
	Description string
}

// TempPatterns lists the temp directories hublink creates.
var TempPatterns = []TempDirPattern{
	{Pattern: archive.TempPrefix + "*", Description: "archive extraction directories"},
}

// StaleTempDir is a temp directory old enough to be considered orphaned.
type StaleTempDir struct {
	Path        string
	Pattern     string
	Description string
	ModTime     time.Time
	Size        int64
}

// FindStaleTempDirs scans the temp dir for hublink directories not
// modified within minAge.
func FindStaleTempDirs(minAge time.Duration) ([]StaleTempDir, error) {
	var stale []StaleTempDir
	cutoff := time.Now().Add(-minAge)

	for _, p := range TempPatterns {
		matches, err := filepath.Glob(filepath.Join(os.TempDir(), p.Pattern))
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", p.Pattern, err)
		}
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil || !info.IsDir() {
				continue
			}
			// Still in use.
			if info.ModTime().After(cutoff) {
				continue
			}
			size, _ := dirSize(match)
			stale = append(stale, StaleTempDir{
				Path:        match,
				Pattern:     p.Pattern,
				Description: p.Description,
				ModTime:     info.ModTime(),
				Size:        size,
			})
		}
	}
	return stale, nil
}

// CleanStaleTempDirs removes dirs and returns how many were removed and
// which were skipped. Age is checked again right before each removal
// since a new extraction may have started after the scan.
func CleanStaleTempDirs(dirs []StaleTempDir, minAge time.Duration) (int, []string, error) {
	var errs []error
	var skipped []string
	removed := 0
	cutoff := time.Now().Add(-minAge)

	for _, dir := range dirs {
		if info, err := os.Stat(dir.Path); err == nil && info.ModTime().After(cutoff) {
			skipped = append(skipped, dir.Path)
			continue
		}
		if err := os.RemoveAll(dir.Path); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", dir.Path, err))
			continue
		}
		removed++
	}
	return removed, skipped, errors.Join(errs...)
}

func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				size += info.Size()
			}
		}
		return nil
	})
	return size, err
}

// FormatSize formats a byte count with binary units.
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

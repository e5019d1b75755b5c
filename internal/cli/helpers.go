package cli

import (
	"fmt"
	"os"
	"path/filepath"
)

// ResolveDestDir returns the absolute, symlink-resolved path of a
// destination directory, creating it when it does not exist.
func ResolveDestDir(dest string) (string, error) {
	absPath, err := filepath.Abs(dest)
	if err != nil {
		return "", fmt.Errorf("resolving destination: %w", err)
	}
	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", absPath, err)
	}

	absPath, err = filepath.EvalSymlinks(absPath)
	if err != nil {
		return "", fmt.Errorf("destination %q: %w", dest, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("destination %q: %w", absPath, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("destination %q is not a directory", absPath)
	}
	return absPath, nil
}

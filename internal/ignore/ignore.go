// Package ignore decides which files are left out when project files are
// copied. Patterns use gitignore syntax and are matched with go-git's
// gitignore implementation.
package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// FileName is the per-project ignore file.
const FileName = ".hublinkignore"

// Defaults are always ignored.
var Defaults = []string{".git", "node_modules", ".DS_Store", "*.log", ".env"}

// Rules is an ordered set of gitignore patterns. Later patterns win, so a
// negated pattern in .hublinkignore can re-include a default.
type Rules struct {
	patterns []gitignore.Pattern
	matcher  gitignore.Matcher
}

// New returns rules for the given patterns, without the defaults.
func New(patterns ...string) *Rules {
	r := &Rules{}
	r.Add(nil, patterns...)
	return r
}

// Default returns rules holding only Defaults.
func Default() *Rules {
	return New(Defaults...)
}

// Add appends patterns scoped to domain, the slash-separated directory
// they were read from (nil for the root).
func (r *Rules) Add(domain []string, patterns ...string) {
	for _, p := range patterns {
		p = strings.TrimRight(p, " \t\r")
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		r.patterns = append(r.patterns, gitignore.ParsePattern(p, domain))
	}
	r.matcher = gitignore.NewMatcher(r.patterns)
}

// Len returns the number of patterns.
func (r *Rules) Len() int { return len(r.patterns) }

// Load returns Defaults plus the patterns from dir/.hublinkignore, if the
// file exists.
func Load(dir string) (*Rules, error) {
	r := Default()
	f, err := os.Open(filepath.Join(dir, FileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return r, nil
		}
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}
	r.Add(nil, lines...)
	return r, nil
}

// Match reports whether rel, a path relative to the rules' root, is ignored.
func (r *Rules) Match(rel string, isDir bool) bool {
	if r == nil || r.matcher == nil {
		return false
	}
	rel = filepath.ToSlash(filepath.Clean(rel))
	if rel == "." || rel == "" {
		return false
	}
	return r.matcher.Match(strings.Split(rel, "/"), isDir)
}

// Prune deletes everything under root that the rules ignore and returns
// the removed paths, relative to root. Ignored directories are removed
// whole.
func (r *Rules) Prune(root string) ([]string, error) {
	var removed []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if !r.Match(rel, d.IsDir()) {
			return nil
		}
		if err := os.RemoveAll(path); err != nil {
			return err
		}
		removed = append(removed, filepath.ToSlash(rel))
		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("pruning ignored files: %w", err)
	}
	return removed, nil
}

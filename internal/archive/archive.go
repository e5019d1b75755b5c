// Package archive extracts downloaded zip archives into a destination
// directory by way of a throwaway temp directory.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"
	fs "github.com/tonistiigi/fsutil/copy"

	"github.com/majorcontext/hublink/internal/ignore"
	"github.com/majorcontext/hublink/internal/log"
)

// TempPrefix starts the name of every temp directory ExtractZip creates.
const TempPrefix = "hublink-temp-"

// FileSystemError reports a failed filesystem operation on a path.
type FileSystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error { return e.Err }

// ExtractOptions controls ExtractZip.
type ExtractOptions struct {
	// SourceDirs are directories inside the archive root to copy. Empty
	// copies the whole root. With one entry its contents land directly in
	// dest; with several, each lands in dest/<base name>.
	SourceDirs []string

	// NoRootDir means entries sit at the top of the archive instead of
	// under a single wrapping directory (GitHub zipballs have one).
	NoRootDir bool

	// Ignore prunes matching files before the copy. Nil copies everything.
	Ignore *ignore.Rules
}

// ExtractZip writes data to a temp directory, extracts it, and copies the
// selected directories into dest. The temp directory is always removed.
func ExtractZip(ctx context.Context, data []byte, name, dest string, opts ExtractOptions) (err error) {
	name = safeName(name)
	tmp, err := os.MkdirTemp("", TempPrefix+name+"-")
	if err != nil {
		return &FileSystemError{Op: "create temp dir", Path: os.TempDir(), Err: err}
	}
	defer func() {
		if rerr := os.RemoveAll(tmp); rerr != nil {
			log.Warn("failed to remove temp dir", "path", tmp, "error", rerr)
		}
	}()

	zipPath := filepath.Join(tmp, name+".zip")
	if err := os.WriteFile(zipPath, data, 0600); err != nil {
		return &FileSystemError{Op: "write", Path: zipPath, Err: err}
	}

	extracted := filepath.Join(tmp, name, "extracted")
	if err := extract(ctx, zipPath, extracted); err != nil {
		return err
	}

	root := extracted
	if !opts.NoRootDir {
		root, err = firstDir(extracted)
		if err != nil {
			return err
		}
	}

	if opts.Ignore != nil {
		removed, err := opts.Ignore.Prune(root)
		if err != nil {
			return &FileSystemError{Op: "prune", Path: root, Err: err}
		}
		if len(removed) > 0 {
			log.Debug("pruned ignored files", "count", len(removed))
		}
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return &FileSystemError{Op: "create", Path: dest, Err: err}
	}

	if len(opts.SourceDirs) == 0 {
		return copyDir(ctx, root, dest)
	}
	for _, dir := range opts.SourceDirs {
		rel, err := cleanRel(dir)
		if err != nil {
			return &FileSystemError{Op: "resolve", Path: dir, Err: err}
		}
		src := filepath.Join(root, rel)
		info, err := os.Stat(src)
		if err != nil {
			return &FileSystemError{Op: "stat", Path: dir, Err: err}
		}
		if !info.IsDir() {
			return &FileSystemError{Op: "stat", Path: dir, Err: errors.New("not a directory")}
		}
		target := dest
		if len(opts.SourceDirs) > 1 {
			target = filepath.Join(dest, filepath.Base(rel))
		}
		if err := copyDir(ctx, src, target); err != nil {
			return err
		}
	}
	return nil
}

// extract unpacks the zip at zipPath into dir. Symlinks are skipped and
// entries that would escape dir are rejected.
func extract(ctx context.Context, zipPath, dir string) error {
	f, err := os.Open(zipPath)
	if err != nil {
		return &FileSystemError{Op: "open", Path: zipPath, Err: err}
	}
	defer f.Close()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return &FileSystemError{Op: "create", Path: dir, Err: err}
	}

	err = archives.Zip{}.Extract(ctx, f, func(ctx context.Context, fi archives.FileInfo) error {
		rel, err := cleanRel(fi.NameInArchive)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(dir, rel)

		switch {
		case fi.IsDir():
			return os.MkdirAll(target, 0755)
		case fi.LinkTarget != "" || fi.Mode()&os.ModeSymlink != 0:
			log.Debug("skipping symlink in archive", "name", fi.NameInArchive)
			return nil
		case !fi.Mode().IsRegular():
			return nil
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		src, err := fi.Open()
		if err != nil {
			return err
		}
		defer src.Close()

		perm := fi.Mode().Perm() | 0600
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, src); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	})
	if err != nil {
		return &FileSystemError{Op: "extract", Path: zipPath, Err: err}
	}
	return nil
}

// firstDir returns the first directory directly under dir.
func firstDir(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", &FileSystemError{Op: "read", Path: dir, Err: err}
	}
	for _, e := range entries {
		if e.IsDir() {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", &FileSystemError{Op: "read", Path: dir, Err: errors.New("archive has no root directory")}
}

func copyDir(ctx context.Context, src, dst string) error {
	if err := os.MkdirAll(dst, 0755); err != nil {
		return &FileSystemError{Op: "create", Path: dst, Err: err}
	}
	err := fs.Copy(ctx, src, ".", dst, ".",
		fs.WithCopyInfo(fs.CopyInfo{
			CopyDirContents:                true,
			AlwaysReplaceExistingDestPaths: true,
		}),
		fs.AllowXAttrErrors,
	)
	if err != nil {
		return &FileSystemError{Op: "copy", Path: dst, Err: err}
	}
	return nil
}

// cleanRel normalizes an archive path and rejects absolute paths and
// paths that climb out of the extraction root.
func cleanRel(name string) (string, error) {
	p := path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	if strings.Contains(name, "..") {
		for _, part := range strings.Split(strings.ReplaceAll(name, "\\", "/"), "/") {
			if part == ".." {
				return "", fmt.Errorf("illegal path in archive: %q", name)
			}
		}
	}
	rel := strings.TrimPrefix(p, "/")
	if rel == "" {
		return ".", nil
	}
	return filepath.FromSlash(rel), nil
}

func safeName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '-'
	}, name)
	name = strings.Trim(name, ".-")
	if name == "" {
		return "archive"
	}
	return name
}

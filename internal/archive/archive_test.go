package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majorcontext/hublink/internal/ignore"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.HasSuffix(name, "/") {
			_, err := zw.Create(name)
			require.NoError(t, err)
			continue
		}
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// listFiles returns the regular files under dir as slash paths.
func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			rel, _ := filepath.Rel(dir, p)
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(out)
	return out
}

func tempDirsLeft(t *testing.T) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(os.TempDir(), "hublink-temp-*"))
	require.NoError(t, err)
	return matches
}

func TestExtractZip_RootDir(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	data := buildZip(t, map[string]string{
		"repo-main/":             "",
		"repo-main/README.md":    "hello",
		"repo-main/src/index.js": "console.log(1)",
	})
	dest := t.TempDir()

	require.NoError(t, ExtractZip(context.Background(), data, "repo", dest, ExtractOptions{}))

	assert.Equal(t, []string{"README.md", "src/index.js"}, listFiles(t, dest))
	got, err := os.ReadFile(filepath.Join(dest, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
	assert.Empty(t, tempDirsLeft(t))
}

func TestExtractZip_NoRootDir(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	data := buildZip(t, map[string]string{
		"a.txt":     "a",
		"dir/b.txt": "b",
	})
	dest := t.TempDir()

	require.NoError(t, ExtractZip(context.Background(), data, "flat", dest, ExtractOptions{NoRootDir: true}))
	assert.Equal(t, []string{"a.txt", "dir/b.txt"}, listFiles(t, dest))
}

func TestExtractZip_SourceDirs(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	data := buildZip(t, map[string]string{
		"repo-v1/templates/page.html": "<p>",
		"repo-v1/modules/card.js":     "card",
		"repo-v1/other/skip.txt":      "skip",
	})

	t.Run("single", func(t *testing.T) {
		dest := t.TempDir()
		err := ExtractZip(context.Background(), data, "repo", dest, ExtractOptions{SourceDirs: []string{"templates"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"page.html"}, listFiles(t, dest))
	})

	t.Run("multiple", func(t *testing.T) {
		dest := t.TempDir()
		err := ExtractZip(context.Background(), data, "repo", dest, ExtractOptions{SourceDirs: []string{"templates", "modules"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"modules/card.js", "templates/page.html"}, listFiles(t, dest))
	})

	t.Run("missing", func(t *testing.T) {
		dest := t.TempDir()
		err := ExtractZip(context.Background(), data, "repo", dest, ExtractOptions{SourceDirs: []string{"nope"}})
		var fsErr *FileSystemError
		require.ErrorAs(t, err, &fsErr)
		assert.Equal(t, "stat", fsErr.Op)
		assert.True(t, os.IsNotExist(fsErr.Err))
	})

	assert.Empty(t, tempDirsLeft(t))
}

func TestExtractZip_Ignore(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	data := buildZip(t, map[string]string{
		"r/keep.js":             "k",
		"r/debug.log":           "log",
		"r/node_modules/x/y.js": "dep",
	})
	dest := t.TempDir()

	err := ExtractZip(context.Background(), data, "r", dest, ExtractOptions{Ignore: ignore.Default()})
	require.NoError(t, err)
	assert.Equal(t, []string{"keep.js"}, listFiles(t, dest))
}

func TestExtractZip_OverwritesExisting(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "a.txt"), []byte("old"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "local.txt"), []byte("mine"), 0644))

	data := buildZip(t, map[string]string{"root/a.txt": "new"})
	require.NoError(t, ExtractZip(context.Background(), data, "root", dest, ExtractOptions{}))

	got, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
	assert.Equal(t, []string{"a.txt", "local.txt"}, listFiles(t, dest))
}

func TestExtractZip_RejectsTraversal(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	data := buildZip(t, map[string]string{"root/../../evil.txt": "x"})
	dest := t.TempDir()

	err := ExtractZip(context.Background(), data, "bad", dest, ExtractOptions{})
	var fsErr *FileSystemError
	require.ErrorAs(t, err, &fsErr)
	assert.Equal(t, "extract", fsErr.Op)
	assert.Empty(t, tempDirsLeft(t))
}

func TestExtractZip_InvalidData(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	err := ExtractZip(context.Background(), []byte("not a zip"), "junk", t.TempDir(), ExtractOptions{})
	require.Error(t, err)
	assert.Empty(t, tempDirsLeft(t))
}

func TestCleanRel(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"a/b.txt", filepath.FromSlash("a/b.txt"), false},
		{"/abs/c", filepath.FromSlash("abs/c"), false},
		{"./x", "x", false},
		{"", ".", false},
		{"a/../b", "", true},
		{`..\win`, "", true},
	}
	for _, tt := range tests {
		got, err := cleanRel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "owner-repo", safeName("owner/repo"))
	assert.Equal(t, "archive", safeName("../"))
	assert.Equal(t, "v1.2.0", safeName("v1.2.0"))
}

func TestFileSystemError(t *testing.T) {
	err := &FileSystemError{Op: "copy", Path: "/tmp/x", Err: os.ErrPermission}
	assert.Equal(t, "copy /tmp/x: permission denied", err.Error())
	assert.ErrorIs(t, err, os.ErrPermission)
}

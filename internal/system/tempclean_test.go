package system

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeDir(t *testing.T, path string, age time.Duration, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(path, 0o755))
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(path, name), []byte(body), 0o644))
	}
	mod := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestFindStaleTempDirs(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	makeDir(t, filepath.Join(tmp, "hublink-temp-old-123"), 2*time.Hour, map[string]string{"a.zip": "12345"})
	makeDir(t, filepath.Join(tmp, "hublink-temp-new-456"), 0, nil)
	makeDir(t, filepath.Join(tmp, "unrelated-old"), 2*time.Hour, nil)

	tests := []struct {
		name      string
		minAge    time.Duration
		wantCount int
	}{
		{"older than 1 hour", time.Hour, 1},
		{"older than 3 hours", 3 * time.Hour, 0},
		{"older than 30 minutes", 30 * time.Minute, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stale, err := FindStaleTempDirs(tt.minAge)
			require.NoError(t, err)
			require.Len(t, stale, tt.wantCount)
			for _, d := range stale {
				assert.Equal(t, "hublink-temp-*", d.Pattern)
				assert.Equal(t, int64(5), d.Size)
			}
		})
	}
}

func TestCleanStaleTempDirs(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	old := filepath.Join(tmp, "hublink-temp-old")
	touched := filepath.Join(tmp, "hublink-temp-touched")
	makeDir(t, old, 2*time.Hour, nil)
	makeDir(t, touched, 2*time.Hour, nil)

	stale, err := FindStaleTempDirs(time.Hour)
	require.NoError(t, err)
	require.Len(t, stale, 2)

	// A run picks the directory back up between scan and clean.
	now := time.Now()
	require.NoError(t, os.Chtimes(touched, now, now))

	removed, skipped, err := CleanStaleTempDirs(stale, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{touched}, skipped)
	assert.NoDirExists(t, old)
	assert.DirExists(t, touched)
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSize(tt.bytes), "FormatSize(%d)", tt.bytes)
	}
}

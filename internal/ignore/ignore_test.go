package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRules(t *testing.T) {
	r := Default()

	tests := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{".git", true, true},
		{"node_modules", true, true},
		{"src/node_modules", true, true},
		{"src/app.js", false, false},
		{"debug.log", false, true},
		{"logs/server.log", false, true},
		{".env", false, true},
		{".DS_Store", false, true},
		{"src/.DS_Store", false, true},
		{"README.md", false, false},
		{".", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Match(tt.path, tt.isDir))
		})
	}
}

func TestRules_Negation(t *testing.T) {
	r := Default()
	r.Add(nil, "!keep.log", "# comment", "", "dist/")

	assert.False(t, r.Match("keep.log", false))
	assert.True(t, r.Match("other.log", false))
	assert.True(t, r.Match("dist", true))
	assert.Equal(t, len(Defaults)+2, r.Len())
}

func TestNilRules(t *testing.T) {
	var r *Rules
	assert.False(t, r.Match("anything", false))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	r, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, len(Defaults), r.Len())

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("# build output\nbuild/\n*.tmp\n"), 0644))
	r, err = Load(dir)
	require.NoError(t, err)
	assert.True(t, r.Match("build", true))
	assert.True(t, r.Match("a/b.tmp", false))
	assert.True(t, r.Match(".git", true), "defaults still apply")
}

func TestPrune(t *testing.T) {
	root := t.TempDir()
	files := []string{
		"src/index.js",
		"src/node_modules/dep/index.js",
		".git/HEAD",
		"server.log",
		"README.md",
	}
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
	}

	removed, err := Default().Prune(root)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{".git", "server.log", "src/node_modules"}, removed)

	for _, kept := range []string{"src/index.js", "README.md"} {
		_, err := os.Stat(filepath.Join(root, kept))
		assert.NoError(t, err, kept)
	}
	_, err = os.Stat(filepath.Join(root, "src", "node_modules"))
	assert.True(t, os.IsNotExist(err))
}

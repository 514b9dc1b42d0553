package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stretchr/testify/assert"
)

func writeIgnore(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".ditsignore"), []byte(content), 0o644))
}

func TestAlwaysIgnoresDitsDirectory(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir)
	require.NoError(t, err)

	assert.True(t, m.IsIgnored(".dits/objects/test"))
	assert.True(t, m.IsIgnored(".dits/HEAD"))
}

func TestSimplePattern(t *testing.T) {
	dir := t.TempDir()
	writeIgnore(t, dir, "*.tmp\n*.log")
	m, err := New(dir)
	require.NoError(t, err)

	assert.True(t, m.IsIgnored("test.tmp"))
	assert.True(t, m.IsIgnored("debug.log"))
	assert.False(t, m.IsIgnored("test.txt"))
}

func TestDirectoryPattern(t *testing.T) {
	dir := t.TempDir()
	writeIgnore(t, dir, "target/\nnode_modules/")
	m, err := New(dir)
	require.NoError(t, err)

	assert.True(t, m.IsIgnored("target/debug/test"))
	assert.True(t, m.IsIgnored("node_modules/package/index.js"))
	assert.False(t, m.IsIgnored("src/target.rs"))
}

func TestNegationPattern(t *testing.T) {
	dir := t.TempDir()
	writeIgnore(t, dir, "*.mp4\n!important.mp4")
	m, err := New(dir)
	require.NoError(t, err)

	assert.True(t, m.IsIgnored("video.mp4"))
	assert.False(t, m.IsIgnored("important.mp4"))
}

func TestCommentAndEmptyLines(t *testing.T) {
	dir := t.TempDir()
	writeIgnore(t, dir, "# comment\n\n*.tmp\n   # another\n*.log")
	m, err := New(dir)
	require.NoError(t, err)

	assert.True(t, m.IsIgnored("test.tmp"))
	assert.True(t, m.IsIgnored("test.log"))
}

func TestRootedPattern(t *testing.T) {
	dir := t.TempDir()
	writeIgnore(t, dir, "/build\n/dist")
	m, err := New(dir)
	require.NoError(t, err)

	assert.True(t, m.IsIgnored("build/output.bin"))
	assert.True(t, m.IsIgnored("dist/app.js"))
}

func TestNestedDirectoryPattern(t *testing.T) {
	dir := t.TempDir()
	writeIgnore(t, dir, "**/cache/**")
	m, err := New(dir)
	require.NoError(t, err)

	assert.True(t, m.IsIgnored("cache/data.bin"))
	assert.True(t, m.IsIgnored("src/cache/temp.bin"))
	assert.True(t, m.IsIgnored("a/b/cache/c/d.bin"))
}

func TestCommonMediaPatterns(t *testing.T) {
	dir := t.TempDir()
	writeIgnore(t, dir, `
# Build artifacts
*.o
*.a
target/

# OS files
.DS_Store
Thumbs.db

# Temp files
*.tmp
*.swp
*~

# Generated renders
renders/
exports/
`)
	m, err := New(dir)
	require.NoError(t, err)

	assert.True(t, m.IsIgnored("main.o"))
	assert.True(t, m.IsIgnored(".DS_Store"))
	assert.True(t, m.IsIgnored("renders/output.mp4"))
	assert.True(t, m.IsIgnored("exports/final.mov"))
	assert.False(t, m.IsIgnored("src/main.rs"))
	assert.False(t, m.IsIgnored("video.mp4"))
}

func TestFilterPaths(t *testing.T) {
	dir := t.TempDir()
	writeIgnore(t, dir, "*.tmp")
	m, err := New(dir)
	require.NoError(t, err)

	kept := m.FilterPaths([]string{"a.go", "b.tmp", "c.rs"})
	assert.Equal(t, []string{"a.go", "c.rs"}, kept)
}

func TestMissingIgnoreFile(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir)
	require.NoError(t, err)
	assert.False(t, m.IsIgnored("anything.txt"))
	assert.True(t, m.IsIgnored(".dits/HEAD"))
}

package textengine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(t.TempDir())
	require.NoError(t, err)
	return e
}

func TestBlobRoundtrip(t *testing.T) {
	e := openTemp(t)
	data := []byte("hello text engine\n")

	oid, err := e.StoreBlob(data)
	require.NoError(t, err)
	require.Len(t, oid, 40)

	got, err := e.ReadBlob(oid)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.True(t, e.HasBlob(oid))
}

func TestStoreBlobDeterministicOID(t *testing.T) {
	e := openTemp(t)
	a, err := e.StoreBlob([]byte("same content"))
	require.NoError(t, err)
	b, err := e.StoreBlob([]byte("same content"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestReadUnknownBlob(t *testing.T) {
	e := openTemp(t)
	_, err := e.ReadBlob("0123456789abcdef0123456789abcdef01234567")
	assert.ErrorIs(t, err, ErrBlobNotFound)
	assert.False(t, e.HasBlob("0123456789abcdef0123456789abcdef01234567"))
}

func TestStoreBlobRejectsNonUtf8(t *testing.T) {
	e := openTemp(t)
	_, err := e.StoreBlob([]byte{0xFF, 0xFE, 0x00, 0x41})
	assert.ErrorIs(t, err, ErrInvalidUtf8)
}

func TestParseOID(t *testing.T) {
	_, err := ParseOID("nothex")
	assert.Error(t, err)
	_, err = ParseOID("0123456789abcdef0123456789abcdef01234567")
	assert.NoError(t, err)
}

func TestDiffSingleLineChange(t *testing.T) {
	old := "A\nB\nC\n"
	new := "A\nB2\nC\n"

	result := DiffText("README.md", old, new, 3)
	assert.Equal(t, 1, result.Stats.Additions)
	assert.Equal(t, 1, result.Stats.Deletions)
	require.Len(t, result.Hunks, 1)

	h := result.Hunks[0]
	assert.Equal(t, "@@ -1,3 +1,3 @@", h.Header)
	assert.Equal(t, 1, h.OldStart)
	assert.Equal(t, 3, h.OldLines)
	assert.Equal(t, 1, h.NewStart)
	assert.Equal(t, 3, h.NewLines)
}

func TestDiffIdentical(t *testing.T) {
	result := DiffText("same.txt", "A\nB\n", "A\nB\n", 3)
	assert.Empty(t, result.Hunks)
	assert.Equal(t, 0, result.Stats.Additions)
	assert.Equal(t, 0, result.Stats.Deletions)
}

func TestDiffDistantChangesSeparateHunks(t *testing.T) {
	var oldLines, newLines []string
	for i := 0; i < 40; i++ {
		oldLines = append(oldLines, "line")
		newLines = append(newLines, "line")
	}
	newLines[2] = "edited-top"
	newLines[37] = "edited-bottom"

	result := DiffText("long.txt", strings.Join(oldLines, "\n")+"\n", strings.Join(newLines, "\n")+"\n", 3)
	assert.Len(t, result.Hunks, 2)
}

func TestMergeClean(t *testing.T) {
	base := "l1\nl2\nl3\n"
	ours := "l1\nchanged\nl3\n"
	theirs := "l1\nl2\nl3\n"

	result := MergeText(base, ours, theirs, "HEAD", "feature")
	assert.Equal(t, MergeClean, result.Outcome)
	assert.Equal(t, 0, result.MarkerCount)
	assert.Equal(t, ours, result.Content)
}

func TestMergeTakesTheirChange(t *testing.T) {
	base := "l1\nl2\nl3\n"
	theirs := "l1\ntheirs\nl3\n"

	result := MergeText(base, base, theirs, "HEAD", "feature")
	assert.Equal(t, MergeClean, result.Outcome)
	assert.Equal(t, theirs, result.Content)
}

func TestMergeConflict(t *testing.T) {
	base := "l1\nl2\nl3\n"
	ours := "l1\nours\nl3\n"
	theirs := "l1\ntheirs\nl3\n"

	result := MergeText(base, ours, theirs, "HEAD", "feature")
	assert.Equal(t, MergeConflict, result.Outcome)
	assert.Equal(t, 1, result.MarkerCount)
	assert.Contains(t, result.Content, "<<<<<<< HEAD")
	assert.Contains(t, result.Content, "=======")
	assert.Contains(t, result.Content, ">>>>>>> feature")
	assert.Contains(t, result.Content, "ours")
	assert.Contains(t, result.Content, "theirs")
}

func TestMergeBothSidesSameChange(t *testing.T) {
	base := "l1\nl2\n"
	both := "l1\nedited\n"

	result := MergeText(base, both, both, "HEAD", "feature")
	assert.Equal(t, MergeClean, result.Outcome)
	assert.Equal(t, both, result.Content)
}

package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dits-vcs/dits/chunk"
	"github.com/dits-vcs/dits/classify"
	"github.com/dits-vcs/dits/hash"
	"github.com/dits-vcs/dits/manifest"
)

func stagedEntry(path, content string, status Status) Entry {
	data := []byte(content)
	h := hash.FromBytes(data)
	refs := []chunk.Ref{{CID: h, Offset: 0, Size: uint64(len(data))}}
	return NewEntry(path, h, uint64(len(data)), time.Unix(1700000000, 0), refs, status)
}

func TestStageGetUnstage(t *testing.T) {
	idx := New()
	assert.True(t, idx.IsEmpty())

	idx.Stage(stagedEntry("a.bin", "alpha", Added))
	e, ok := idx.Get("a.bin")
	require.True(t, ok)
	assert.Equal(t, Added, e.Status)
	assert.Equal(t, classify.DitsChunk, e.Storage)

	assert.True(t, idx.Unstage("a.bin"))
	assert.False(t, idx.Unstage("a.bin"))
	assert.True(t, idx.IsEmpty())
}

func TestStagedPathsSorted(t *testing.T) {
	idx := New()
	for _, p := range []string{"c.bin", "a.bin", "b.bin"} {
		idx.Stage(stagedEntry(p, p, Added))
	}
	assert.Equal(t, []string{"a.bin", "b.bin", "c.bin"}, idx.StagedPaths())
}

func TestEntriesByStatus(t *testing.T) {
	idx := New()
	idx.Stage(stagedEntry("new.bin", "n", Added))
	idx.Stage(stagedEntry("changed.bin", "c", Modified))
	idx.Stage(stagedEntry("kept.bin", "k", Unchanged))

	added := idx.EntriesByStatus(Added)
	require.Len(t, added, 1)
	assert.Equal(t, "new.bin", added[0].Path)
	assert.Len(t, idx.EntriesByStatus(Unchanged), 1)
	assert.Empty(t, idx.EntriesByStatus(Deleted))
}

func TestToManifestOmitsDeleted(t *testing.T) {
	idx := New()
	idx.Stage(stagedEntry("keep.bin", "k", Added))
	idx.Stage(stagedEntry("gone.bin", "g", Deleted))

	m := idx.ToManifest()
	assert.True(t, m.Contains("keep.bin"))
	assert.False(t, m.Contains("gone.bin"))
}

func TestFromCommitResetsStatus(t *testing.T) {
	idx := New()
	idx.Stage(stagedEntry("a.bin", "alpha", Added))
	idx.Stage(stagedEntry("b.bin", "beta", Modified))
	m := idx.ToManifest()

	base := hash.FromBytes([]byte("commit"))
	reset := FromCommit(base, m)

	require.NotNil(t, reset.BaseCommit)
	assert.Equal(t, base, *reset.BaseCommit)
	assert.Equal(t, 2, reset.Len())
	for _, p := range reset.StagedPaths() {
		e, _ := reset.Get(p)
		assert.Equal(t, Unchanged, e.Status)
	}
}

func TestJSONRoundtrip(t *testing.T) {
	idx := New()
	idx.Stage(stagedEntry("a.bin", "alpha", Added))
	meta := manifest.Mp4Metadata{
		FtypHash: hash.FromBytes([]byte("ftyp")),
		MoovHash: hash.FromBytes([]byte("moov")),
		MoovSize: 64,
		MdatSize: 1024,
	}
	idx.Stage(NewMp4("v.mp4", hash.FromBytes([]byte("v")), 2048, time.Unix(1700000000, 0), nil, meta, Added))
	base := hash.FromBytes([]byte("base"))
	idx.BaseCommit = &base

	data, err := idx.ToJSON()
	require.NoError(t, err)

	restored, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, idx.Len(), restored.Len())
	require.NotNil(t, restored.BaseCommit)
	assert.Equal(t, base, *restored.BaseCommit)

	e, ok := restored.Get("v.mp4")
	require.True(t, ok)
	require.NotNil(t, e.Mp4)
	assert.Equal(t, uint64(1024), e.Mp4.MdatSize)
	assert.Equal(t, classify.Hybrid, e.Storage)
}

func TestToManifestEntryShape(t *testing.T) {
	text := NewText("notes.md", hash.FromBytes([]byte("n")), 5, time.Unix(1700000000, 0), "0123456789abcdef0123456789abcdef01234567", Added)
	me := text.ToManifestEntry()
	assert.True(t, me.IsGitText())
	assert.Equal(t, text.GitOID, me.GitOID)
	assert.Empty(t, me.Chunks)

	link := NewSymlink("link", hash.FromBytes([]byte("target")), "target", time.Unix(1700000000, 0), Added)
	lm := link.ToManifestEntry()
	assert.Equal(t, manifest.Symlink, lm.Mode)
	assert.Equal(t, "target", lm.SymlinkTarget)
}

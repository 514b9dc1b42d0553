package vfs

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dits-vcs/dits/cache"
	"github.com/dits-vcs/dits/chunk"
	"github.com/dits-vcs/dits/hash"
	"github.com/dits-vcs/dits/manifest"
	"github.com/dits-vcs/dits/mp4"
	"github.com/dits-vcs/dits/objectstore"
)

func testStores(t *testing.T) (*objectstore.Store, *cache.Cache) {
	t.Helper()
	objects, err := objectstore.Open(t.TempDir())
	require.NoError(t, err)
	c, err := cache.New(cache.Config{
		L1MaxBytes: 4 * 1024 * 1024,
		L2MaxBytes: 4 * 1024 * 1024,
		L2Path:     filepath.Join(t.TempDir(), "l2"),
	}, objects)
	require.NoError(t, err)
	return objects, c
}

// storeChunked splits data at the given cut points, stores the pieces, and
// returns their ordered refs.
func storeChunked(t *testing.T, objects *objectstore.Store, data []byte, cuts ...int) []chunk.Ref {
	t.Helper()
	bounds := append(append([]int{0}, cuts...), len(data))
	var refs []chunk.Ref
	for i := 0; i+1 < len(bounds); i++ {
		piece := data[bounds[i]:bounds[i+1]]
		h := hash.FromBytes(piece)
		_, err := objects.StoreChunk(h, piece)
		require.NoError(t, err)
		refs = append(refs, chunk.Ref{CID: h, Offset: uint64(bounds[i]), Size: uint64(len(piece))})
	}
	return refs
}

// manifestEntry builds a plain chunked entry without touching storage.
func manifestEntry(path string, size uint64) manifest.Entry {
	return manifest.NewEntry(path, manifest.Regular, size, hash.FromBytes([]byte(path)), nil)
}

func TestTreeProjection(t *testing.T) {
	m := manifest.New()
	m.Add(manifestEntry("docs/readme.md", 5))
	m.Add(manifestEntry("docs/img/logo.png", 10))
	m.Add(manifestEntry("top.bin", 3))

	tree := FromManifest(m)

	root, ok := tree.Get(RootInode)
	require.True(t, ok)
	assert.True(t, root.IsDir())
	assert.Len(t, root.Children, 2) // docs/, top.bin

	readme, ok := tree.Lookup("docs/readme.md")
	require.True(t, ok)
	assert.Equal(t, TypeFile, readme.Type)
	assert.Equal(t, uint64(5), readme.Size)

	docs, ok := tree.Lookup("docs")
	require.True(t, ok)
	assert.True(t, docs.IsDir())

	viaChild, ok := tree.LookupChild(docs.Inode, "readme.md")
	require.True(t, ok)
	assert.Equal(t, readme.Inode, viaChild.Inode)

	_, ok = tree.Lookup("docs/missing")
	assert.False(t, ok)
}

func TestReaddirDotEntriesFirst(t *testing.T) {
	m := manifest.New()
	m.Add(manifestEntry("b.bin", 1))
	m.Add(manifestEntry("a.bin", 1))

	tree := FromManifest(m)
	entries, ok := tree.Readdir(RootInode)
	require.True(t, ok)
	require.Len(t, entries, 4)
	assert.Equal(t, ".", entries[0].Name)
	assert.Equal(t, "..", entries[1].Name)
	assert.Equal(t, "a.bin", entries[2].Name)
	assert.Equal(t, "b.bin", entries[3].Name)

	_, ok = tree.Readdir(entries[2].Inode)
	assert.False(t, ok, "readdir on a file")
}

func TestInodeAssignment(t *testing.T) {
	m := manifest.New()
	m.Add(manifestEntry("a", 1))
	m.Add(manifestEntry("b", 1))

	tree := FromManifest(m)
	a, _ := tree.Lookup("a")
	b, _ := tree.Lookup("b")
	assert.Equal(t, uint64(2), a.Inode)
	assert.Equal(t, uint64(3), b.Inode)
	assert.Equal(t, uint64(RootInode), a.ParentInode)
}

func TestChunksForRange(t *testing.T) {
	e := &Entry{
		Size: 100,
		Chunks: []chunk.Ref{
			{CID: hash.FromBytes([]byte("a")), Offset: 0, Size: 40},
			{CID: hash.FromBytes([]byte("b")), Offset: 40, Size: 60},
		},
	}

	spans := e.ChunksForRange(30, 20)
	require.Len(t, spans, 2)
	assert.Equal(t, uint64(30), spans[0].ReadStart)
	assert.Equal(t, uint64(10), spans[0].ReadLen)
	assert.Equal(t, uint64(0), spans[1].ReadStart)
	assert.Equal(t, uint64(10), spans[1].ReadLen)

	assert.Empty(t, e.ChunksForRange(10, 0))

	only := e.ChunksForRange(0, 5)
	require.Len(t, only, 1)
	assert.Equal(t, uint64(5), only[0].ReadLen)
}

// TestPlainReadEquivalence: for plain entries, reading [0, size)
// through the VFS returns the original bytes, whatever the chunking.
func TestPlainReadEquivalence(t *testing.T) {
	objects, c := testStores(t)

	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i * 7 % 256)
	}
	refs := storeChunked(t, objects, data, 100, 250)

	entry := &Entry{Type: TypeFile, Size: uint64(len(data)), Chunks: refs}
	r := NewReader(c, objects)

	full, err := r.Read(entry, 0, uint32(len(data)))
	require.NoError(t, err)
	assert.Equal(t, data, full)

	mid, err := r.Read(entry, 90, 30)
	require.NoError(t, err)
	assert.Equal(t, data[90:120], mid)

	tail, err := r.Read(entry, 290, 100)
	require.NoError(t, err)
	assert.Equal(t, data[290:], tail)

	past, err := r.Read(entry, 1000, 10)
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestPlainReadMissingChunk(t *testing.T) {
	_, c := testStores(t)
	entry := &Entry{
		Type: TypeFile,
		Size: 10,
		Chunks: []chunk.Ref{
			{CID: hash.FromBytes([]byte("never stored")), Offset: 0, Size: 10},
		},
	}
	r := NewReader(c, nil)
	_, err := r.Read(entry, 0, 10)
	assert.Error(t, err)
}

func atom(tag string, payload []byte) []byte {
	buf := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(8+len(payload)))
	copy(buf[4:8], tag)
	copy(buf[8:], payload)
	return buf
}

// TestMp4ReadSynthesis: for MP4 entries the VFS fabricates a valid
// fast-start stream — ftyp, denormalized moov, synthesized mdat header,
// then the chunked payload — without mutating any stored blob.
func TestMp4ReadSynthesis(t *testing.T) {
	objects, c := testStores(t)

	ftyp := atom("ftyp", []byte("isom\x00\x00\x02\x00isomiso2"))

	// One stco entry, normalized: payload offset 0 within mdat.
	stcoPayload := make([]byte, 8+4)
	binary.BigEndian.PutUint32(stcoPayload[4:8], 1)
	binary.BigEndian.PutUint32(stcoPayload[8:12], 0)
	moov := atom("moov", atom("stco", stcoPayload))

	payload := make([]byte, 120)
	for i := range payload {
		payload[i] = byte(i)
	}

	ftypHash, _, err := objects.StoreBlob(ftyp)
	require.NoError(t, err)
	moovHash, _, err := objects.StoreBlob(moov)
	require.NoError(t, err)
	refs := storeChunked(t, objects, payload, 50)

	meta := &manifest.Mp4Metadata{
		FtypHash:            ftypHash,
		MoovHash:            moovHash,
		MoovSize:            uint64(len(moov)),
		MdatSize:            uint64(len(payload)),
		NeedsOffsetPatching: true,
		StcoOffsets:         []manifest.OffsetSpan{{OffsetInMoov: 8 + 8 + 8, EntryCount: 1}},
		AtomOrder:           []string{"ftyp", "mdat", "moov"},
	}

	logicalSize := uint64(len(ftyp)+len(moov)+8) + uint64(len(payload))
	entry := &Entry{Type: TypeFile, Size: logicalSize, Chunks: refs, Mp4: meta}
	r := NewReader(c, objects)

	full, err := r.Read(entry, 0, uint32(logicalSize))
	require.NoError(t, err)
	require.Len(t, full, int(logicalSize))

	// Synthesized stream parses as a fast-start MP4 whose single stco entry
	// points exactly at the fabricated mdat payload.
	structure, err := mp4.Parse(bytes.NewReader(full))
	require.NoError(t, err)
	assert.True(t, structure.IsFastStart)
	assert.Equal(t, uint64(len(payload)), structure.Mdat.DataLength)

	mdatStart := uint64(len(ftyp) + len(moov) + 8)
	assert.Equal(t, mdatStart, structure.Mdat.DataStart)
	assert.Equal(t, payload, full[mdatStart:])

	stcoEntryPos := uint64(len(ftyp)) + meta.StcoOffsets[0].OffsetInMoov
	entryValue := binary.BigEndian.Uint32(full[stcoEntryPos : stcoEntryPos+4])
	assert.Equal(t, uint32(mdatStart), entryValue)

	// The stored moov was cloned, not patched in place.
	storedMoov, err := objects.LoadBlob(moovHash)
	require.NoError(t, err)
	assert.Equal(t, moov, storedMoov)

	// Partial reads across every region boundary agree with the full read.
	for _, probe := range []struct{ off, n uint64 }{
		{0, 10},
		{uint64(len(ftyp)) - 3, 10},
		{uint64(len(ftyp)+len(moov)) - 2, 12},
		{mdatStart - 4, 20},
		{mdatStart + 30, 50},
	} {
		part, err := r.Read(entry, probe.off, uint32(probe.n))
		require.NoError(t, err)
		assert.Equal(t, full[probe.off:probe.off+probe.n], part, "probe at %d", probe.off)
	}
}

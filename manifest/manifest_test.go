package manifest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dits-vcs/dits/chunk"
	"github.com/dits-vcs/dits/hash"
)

func sampleEntry(path string, content string) Entry {
	data := []byte(content)
	h := hash.FromBytes(data)
	refs := []chunk.Ref{{CID: h, Offset: 0, Size: uint64(len(data))}}
	return NewEntry(path, Regular, uint64(len(data)), h, refs)
}

func TestHashIndependentOfInsertionOrder(t *testing.T) {
	a := New()
	a.Add(sampleEntry("a.bin", "alpha"))
	a.Add(sampleEntry("b.bin", "beta"))

	b := New()
	b.Add(sampleEntry("b.bin", "beta"))
	b.Add(sampleEntry("a.bin", "alpha"))

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestHashChangesWithContent(t *testing.T) {
	a := New()
	a.Add(sampleEntry("a.bin", "alpha"))
	ha, err := a.Hash()
	require.NoError(t, err)

	a.Add(sampleEntry("a.bin", "alpha2"))
	hb, err := a.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
}

// TestSerializationCanonical: deserialize then re-serialize is
// byte-identical.
func TestSerializationCanonical(t *testing.T) {
	m := New()
	m.Add(sampleEntry("z/last.bin", "zzz"))
	m.Add(sampleEntry("a/first.bin", "aaa"))
	meta := Mp4Metadata{
		FtypHash:            hash.FromBytes([]byte("ftyp")),
		MoovHash:            hash.FromBytes([]byte("moov")),
		MoovSize:            100,
		MdatSize:            5000,
		NeedsOffsetPatching: true,
		StcoOffsets:         []OffsetSpan{{OffsetInMoov: 40, EntryCount: 3}},
		AtomOrder:           []string{"ftyp", "moov", "mdat"},
	}
	m.Add(NewMp4("video.mp4", 5200, hash.FromBytes([]byte("whole")), nil, meta))

	first, err := json.Marshal(m)
	require.NoError(t, err)

	restored := New()
	require.NoError(t, json.Unmarshal(first, restored))

	second, err := json.Marshal(restored)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPathsSorted(t *testing.T) {
	m := New()
	for _, p := range []string{"c", "a", "b"} {
		m.Add(sampleEntry(p, p))
	}
	assert.Equal(t, []string{"a", "b", "c"}, m.Paths())
}

func TestUniqueChunkHashes(t *testing.T) {
	m := New()
	m.Add(sampleEntry("a.bin", "same"))
	m.Add(sampleEntry("b.bin", "same"))
	m.Add(sampleEntry("c.bin", "other"))

	assert.Equal(t, 3, m.TotalChunks())
	assert.Len(t, m.UniqueChunkHashes(), 2)
}

func TestRemoveAndContains(t *testing.T) {
	m := New()
	m.Add(sampleEntry("a.bin", "x"))
	assert.True(t, m.Contains("a.bin"))
	assert.True(t, m.Remove("a.bin"))
	assert.False(t, m.Remove("a.bin"))
	assert.False(t, m.Contains("a.bin"))
	assert.True(t, m.IsEmpty())
}

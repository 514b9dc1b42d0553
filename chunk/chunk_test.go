package chunk

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dits-vcs/dits/hash"
)

func TestSplitEmpty(t *testing.T) {
	chunks, err := Split(nil, Default())
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitBelowMinSize(t *testing.T) {
	cfg := Default()
	data := bytes.Repeat([]byte{0x42}, int(cfg.MinSize)-1)
	chunks, err := Split(data, cfg)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, data, chunks[0].Data)
}

func TestSplitRoundtrip(t *testing.T) {
	cfg := Small()
	data := make([]byte, 200*1024)
	for i := range data {
		data[i] = byte(i * 37 % 251)
	}
	chunks, err := Split(data, cfg)
	require.NoError(t, err)

	var reassembled []byte
	for _, c := range chunks {
		assert.True(t, c.Verify())
		reassembled = append(reassembled, c.Data...)
	}
	assert.Equal(t, data, reassembled)
}

func TestSplitParallelMatchesSequential(t *testing.T) {
	cfg := Media()
	data := make([]byte, 3*1024*1024)
	for i := range data {
		data[i] = byte(i % 256)
	}

	seq, err := Split(data, cfg)
	require.NoError(t, err)
	par, err := SplitParallel(data, cfg)
	require.NoError(t, err)

	require.Len(t, par, len(seq))
	for i := range seq {
		assert.Equal(t, seq[i].CID, par[i].CID)
		assert.Equal(t, seq[i].Data, par[i].Data)
	}
}

func TestSplitWithRefsOffsetsCoverInput(t *testing.T) {
	cfg := Project()
	data := make([]byte, 100*1024)
	for i := range data {
		data[i] = byte(i % 200)
	}
	_, refs, err := SplitWithRefs(data, cfg)
	require.NoError(t, err)

	var total uint64
	for i, r := range refs {
		assert.Equal(t, total, r.Offset, "ref %d offset", i)
		total += r.Size
	}
	assert.Equal(t, uint64(len(data)), total)
}

func TestSingleByteInsertIsLocalized(t *testing.T) {
	cfg := Small()
	data := make([]byte, 256*1024)
	x := uint32(7)
	for i := range data {
		x = x*1664525 + 1013904223
		data[i] = byte(x >> 24)
	}

	before, err := Split(data, cfg)
	require.NoError(t, err)

	k := len(data) / 2
	edited := append(append(append([]byte{}, data[:k]...), 0xFF), data[k:]...)
	after, err := Split(edited, cfg)
	require.NoError(t, err)

	beforeSet := make(map[hash.CID]int)
	for _, c := range before {
		beforeSet[c.CID]++
	}
	shared := 0
	for _, c := range after {
		if beforeSet[c.CID] > 0 {
			beforeSet[c.CID]--
			shared++
		}
	}
	// A one-byte insertion displaces only the chunk(s) containing the edit
	// point, never the whole boundary sequence.
	assert.GreaterOrEqual(t, shared, len(before)-2)
}

func TestForSize(t *testing.T) {
	assert.Equal(t, Project(), ForSize(1024))
	assert.Equal(t, Default(), ForSize(1024*1024))
	assert.Equal(t, Media(), ForSize(100*1024*1024))
}

package mp4

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomTypeRoundtrip(t *testing.T) {
	for _, ty := range []AtomType{Ftyp, Moov, Mdat, Stco, Co64} {
		var raw [4]byte = ty
		assert.Equal(t, ty, AtomType(raw))
	}
}

func TestContainerDetection(t *testing.T) {
	assert.True(t, Moov.IsContainer())
	assert.True(t, Trak.IsContainer())
	assert.False(t, Mdat.IsContainer())
	assert.False(t, Ftyp.IsContainer())
}

func TestApplyDeltaPositive(t *testing.T) {
	v, err := applyDelta(100, 50)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), v)
}

func TestApplyDeltaNegative(t *testing.T) {
	v, err := applyDelta(100, -50)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), v)
}

func TestApplyDeltaUnderflow(t *testing.T) {
	_, err := applyDelta(10, -20)
	assert.ErrorIs(t, err, ErrOffsetUnderflow)
}

func TestCreateMdatHeaderSmall(t *testing.T) {
	header := CreateMdatHeader(1000)
	require.Len(t, header, 8)
	assert.Equal(t, "mdat", string(header[4:8]))
}

func TestCreateMdatHeaderLarge(t *testing.T) {
	header := CreateMdatHeader(5_000_000_000)
	require.Len(t, header, 16)
	assert.Equal(t, "mdat", string(header[4:8]))
}

func TestVerifyMp4Structure(t *testing.T) {
	data := make([]byte, 32)
	binary.BigEndian.PutUint32(data[0:4], 32)
	copy(data[4:8], "ftyp")
	copy(data[8:12], "isom")
	assert.True(t, VerifyStructure(data))
}

func TestVerifyInvalidMp4(t *testing.T) {
	data := make([]byte, 32)
	assert.False(t, VerifyStructure(data))
}

// buildAtom writes a standard 8-byte-header atom with the given payload.
func buildAtom(tag string, payload []byte) []byte {
	buf := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(8+len(payload)))
	copy(buf[4:8], tag)
	copy(buf[8:], payload)
	return buf
}

// buildTestMp4 constructs a minimal fast-start MP4 in memory: ftyp, moov
// (trak/mdia/minf/stbl/stco with one chunk offset pointing into mdat), mdat.
func buildTestMp4(t *testing.T, mdatPayload []byte) ([]byte, uint64) {
	t.Helper()

	ftyp := buildAtom("ftyp", []byte("isom\x00\x00\x02\x00isomiso2avc1mp41"))

	stcoPayload := make([]byte, 8+4) // version/flags(4) + count(4) + one entry
	binary.BigEndian.PutUint32(stcoPayload[4:8], 1) // entry_count = 1
	// the one chunk offset will be patched in below once we know mdat's start
	stco := buildAtom("stco", stcoPayload)
	stbl := buildAtom("stbl", stco)
	minf := buildAtom("minf", stbl)
	mdia := buildAtom("mdia", minf)
	trak := buildAtom("trak", mdia)
	moov := buildAtom("moov", trak)

	mdatHeader := make([]byte, 8)
	binary.BigEndian.PutUint32(mdatHeader[0:4], uint32(8+len(mdatPayload)))
	copy(mdatHeader[4:8], "mdat")

	file := append([]byte{}, ftyp...)
	file = append(file, moov...)
	mdatStart := uint64(len(file))
	file = append(file, mdatHeader...)
	file = append(file, mdatPayload...)

	// patch the stco entry to point at mdat's payload start
	mdatDataStart := mdatStart + 8
	stcoEntryOffsetInFile := len(ftyp) + 8 /*moov header*/ + 8 /*trak header*/ + 8 /*mdia header*/ + 8 /*minf header*/ + 8 /*stbl header*/ + 8 /*stco header*/ + 8 /*version/flags/count*/
	binary.BigEndian.PutUint32(file[stcoEntryOffsetInFile:stcoEntryOffsetInFile+4], uint32(mdatDataStart))

	return file, mdatDataStart
}

func TestParseRoundtrip(t *testing.T) {
	data, mdatDataStart := buildTestMp4(t, bytes.Repeat([]byte{0xAB}, 64))

	structure, err := Parse(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, Ftyp, structure.Ftyp.Type)
	assert.Equal(t, Moov, structure.Moov.Type)
	assert.Equal(t, Mdat, structure.Mdat.Type)
	assert.True(t, structure.IsFastStart)
	assert.Equal(t, mdatDataStart, structure.Mdat.DataStart)
	require.Len(t, structure.StcoLocations, 1)
	assert.Equal(t, uint32(1), structure.StcoLocations[0].EntryCount)
	assert.True(t, structure.NeedsOffsetPatching())
}

func TestDeconstructReconstructRoundtrip(t *testing.T) {
	payload := bytes.Repeat([]byte{0x42}, 256)
	data, _ := buildTestMp4(t, payload)

	dir := t.TempDir()
	path := filepath.Join(dir, "test.mp4")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	deconstructed, err := Deconstruct(path)
	require.NoError(t, err)
	assert.True(t, deconstructed.HasNormalizedOffsets())

	var out bytes.Buffer
	n, err := Reconstruct(&out, deconstructed, bytes.NewReader(payload), uint64(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, uint64(out.Len()), n)

	assert.True(t, VerifyStructure(out.Bytes()))

	reparsed, err := Parse(bytes.NewReader(out.Bytes()))
	require.NoError(t, err)
	assert.True(t, reparsed.IsFastStart)
	require.Len(t, reparsed.StcoLocations, 1)

	// the reconstructed stco entry should point at the new mdat data start
	gotOffset := reparsed.Mdat.DataStart
	assert.Greater(t, gotOffset, uint64(0))
}

func TestOffsetPatcherApplyZeroDeltaNoop(t *testing.T) {
	data, _ := buildTestMp4(t, []byte{0x01})
	structure, err := Parse(bytes.NewReader(data))
	require.NoError(t, err)

	moovData, err := ReadMoovData(bytes.NewReader(data), structure)
	require.NoError(t, err)
	original := append([]byte{}, moovData...)

	var p OffsetPatcher
	require.NoError(t, p.Apply(moovData, structure, 0))
	assert.Equal(t, original, moovData)
}

func TestFindAllAndFindChild(t *testing.T) {
	data, _ := buildTestMp4(t, []byte{0x01})
	structure, err := Parse(bytes.NewReader(data))
	require.NoError(t, err)

	stcoAtoms := structure.Moov.FindAll(Stco)
	require.Len(t, stcoAtoms, 1)

	trak := structure.Moov.FindChild(Trak)
	require.NotNil(t, trak)
	assert.Equal(t, Trak, trak.Type)
}

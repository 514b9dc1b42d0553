package mp4

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Sentinel offset-patching errors.
var (
	ErrOffsetUnderflow   = errors.New("mp4: offset would underflow below zero")
	ErrStco32BitOverflow = errors.New("mp4: stco offset exceeds the 32-bit limit after patching")
)

// OffsetOverflowError reports an offset addition that would overflow.
type OffsetOverflowError struct {
	Value uint64
	Delta int64
}

func (e *OffsetOverflowError) Error() string {
	return fmt.Sprintf("mp4: offset overflow: value %d + delta %d would overflow", e.Value, e.Delta)
}

// OffsetPatcher adjusts stco/co64 chunk-offset tables in place by a delta.
// A single Apply entry point backs both normalization and denormalization,
// rather than duplicating the table-walk in each caller.
type OffsetPatcher struct{}

// Apply shifts every stco/co64 entry referenced by structure by delta. A
// zero delta is a no-op.
func (OffsetPatcher) Apply(moovData []byte, structure *Structure, delta int64) error {
	if delta == 0 {
		return nil
	}
	moovStart := structure.Moov.Start

	for _, stco := range structure.StcoLocations {
		rel := stco.DataOffset - moovStart
		if err := patchStcoTable(moovData, rel, stco.EntryCount, delta); err != nil {
			return err
		}
	}
	for _, co64 := range structure.Co64Locations {
		rel := co64.DataOffset - moovStart
		if err := patchCo64Table(moovData, rel, co64.EntryCount, delta); err != nil {
			return err
		}
	}
	return nil
}

// Normalize rewrites moovData's offsets to be relative to mdat's payload
// start, making the moov atom portable across different file layouts.
func (p OffsetPatcher) Normalize(moovData []byte, structure *Structure) error {
	return p.Apply(moovData, structure, -int64(structure.Mdat.DataStart))
}

// Denormalize rewrites moovData's offsets from mdat-relative back to
// absolute, for a given target mdat payload position.
func (p OffsetPatcher) Denormalize(moovData []byte, structure *Structure, newMdatStart uint64) error {
	return p.Apply(moovData, structure, int64(newMdatStart))
}

func patchStcoTable(data []byte, offset uint64, count uint32, delta int64) error {
	for i := uint32(0); i < count; i++ {
		entryOffset := offset + uint64(i)*4
		if entryOffset+4 > uint64(len(data)) {
			break
		}
		current := uint64(binary.BigEndian.Uint32(data[entryOffset : entryOffset+4]))
		newValue, err := applyDelta(current, delta)
		if err != nil {
			return err
		}
		if newValue > 0xFFFFFFFF {
			return fmt.Errorf("%w: offset %d", ErrStco32BitOverflow, newValue)
		}
		binary.BigEndian.PutUint32(data[entryOffset:entryOffset+4], uint32(newValue))
	}
	return nil
}

func patchCo64Table(data []byte, offset uint64, count uint32, delta int64) error {
	for i := uint32(0); i < count; i++ {
		entryOffset := offset + uint64(i)*8
		if entryOffset+8 > uint64(len(data)) {
			break
		}
		current := binary.BigEndian.Uint64(data[entryOffset : entryOffset+8])
		newValue, err := applyDelta(current, delta)
		if err != nil {
			return err
		}
		binary.BigEndian.PutUint64(data[entryOffset:entryOffset+8], newValue)
	}
	return nil
}

func applyDelta(value uint64, delta int64) (uint64, error) {
	if delta >= 0 {
		d := uint64(delta)
		sum := value + d
		if sum < value {
			return 0, &OffsetOverflowError{Value: value, Delta: delta}
		}
		return sum, nil
	}
	abs := uint64(-delta)
	if value < abs {
		return 0, fmt.Errorf("%w: value %d delta %d", ErrOffsetUnderflow, value, delta)
	}
	return value - abs, nil
}

// ReadMoovData reads the full moov atom (including its header) from r.
func ReadMoovData(r io.ReadSeeker, structure *Structure) ([]byte, error) {
	buf := make([]byte, structure.Moov.Length)
	if _, err := r.Seek(int64(structure.Moov.Start), io.SeekStart); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadMdatData reads mdat's payload (excluding its header) from r.
func ReadMdatData(r io.ReadSeeker, structure *Structure) ([]byte, error) {
	buf := make([]byte, structure.Mdat.DataLength)
	if _, err := r.Seek(int64(structure.Mdat.DataStart), io.SeekStart); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// CreateMdatHeader builds an mdat atom header for a payload of dataSize
// bytes, using the 64-bit extended-size form when the total would overflow
// a 32-bit size field.
func CreateMdatHeader(dataSize uint64) []byte {
	totalSize := dataSize + 8
	if totalSize > 0xFFFFFFFF {
		header := make([]byte, 16)
		binary.BigEndian.PutUint32(header[0:4], 1)
		copy(header[4:8], "mdat")
		binary.BigEndian.PutUint64(header[8:16], dataSize+16)
		return header
	}
	header := make([]byte, 8)
	binary.BigEndian.PutUint32(header[0:4], uint32(totalSize))
	copy(header[4:8], "mdat")
	return header
}

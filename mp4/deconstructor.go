package mp4

import (
	"fmt"
	"io"
	"os"
)

// OtherAtom is a top-level atom that is neither ftyp, moov, nor mdat
// (typically free, skip, or uuid) — carried through verbatim.
type OtherAtom struct {
	Type AtomType
	Data []byte
}

// Deconstructed is the result of splitting an MP4 file into its components:
// the small, frequently-edited metadata (ftyp, moov) kept separate from the
// large, content-addressable media payload (mdat).
type Deconstructed struct {
	Structure      *Structure
	FtypData       []byte
	MoovData       []byte
	OtherAtoms     []OtherAtom
	AtomOrder      []string
	MdatHeader     []byte
	MdatDataOffset uint64
	MdatDataSize   uint64
}

// Deconstruct parses the MP4 file at path and splits it into its
// components, normalizing moov's chunk-offset tables to be relative to
// mdat's payload start so the metadata is portable across layouts.
func Deconstruct(path string) (*Deconstructed, error) {
	structure, err := ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("mp4: deconstruct: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ftypData := make([]byte, structure.Ftyp.Length)
	if _, err := f.Seek(int64(structure.Ftyp.Start), io.SeekStart); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(f, ftypData); err != nil {
		return nil, err
	}

	moovData, err := ReadMoovData(f, structure)
	if err != nil {
		return nil, err
	}

	hasOffsetTables := len(structure.StcoLocations) > 0 || len(structure.Co64Locations) > 0
	if hasOffsetTables {
		var patcher OffsetPatcher
		if err := patcher.Normalize(moovData, structure); err != nil {
			return nil, err
		}
	}

	var otherAtoms []OtherAtom
	for _, atom := range structure.Atoms {
		if atom.Type == Ftyp || atom.Type == Moov || atom.Type == Mdat {
			continue
		}
		data := make([]byte, atom.Length)
		if _, err := f.Seek(int64(atom.Start), io.SeekStart); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(f, data); err != nil {
			return nil, err
		}
		otherAtoms = append(otherAtoms, OtherAtom{Type: atom.Type, Data: data})
	}

	mdatHeaderSize := structure.Mdat.DataStart - structure.Mdat.Start
	mdatHeader := make([]byte, mdatHeaderSize)
	if _, err := f.Seek(int64(structure.Mdat.Start), io.SeekStart); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(f, mdatHeader); err != nil {
		return nil, err
	}

	order := make([]string, 0, len(structure.Atoms))
	for _, atom := range structure.Atoms {
		order = append(order, atom.Type.String())
	}

	return &Deconstructed{
		Structure:      structure,
		FtypData:       ftypData,
		MoovData:       moovData,
		OtherAtoms:     otherAtoms,
		AtomOrder:      order,
		MdatHeader:     mdatHeader,
		MdatDataOffset: structure.Mdat.DataStart,
		MdatDataSize:   structure.Mdat.DataLength,
	}, nil
}

// MetadataSize returns the total size of everything except mdat's payload:
// ftyp, moov, other atoms, and the mdat header.
func (d *Deconstructed) MetadataSize() uint64 {
	var otherSize uint64
	for _, a := range d.OtherAtoms {
		otherSize += uint64(len(a.Data))
	}
	return uint64(len(d.FtypData)) + uint64(len(d.MoovData)) + otherSize + uint64(len(d.MdatHeader))
}

// HasNormalizedOffsets reports whether this component set's moov carries
// mdat-relative chunk offsets that must be denormalized before use.
func (d *Deconstructed) HasNormalizedOffsets() bool {
	return len(d.Structure.StcoLocations) > 0 || len(d.Structure.Co64Locations) > 0
}

package mp4

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Sentinel parse errors.
var (
	ErrFileTooSmall  = errors.New("mp4: file too small to be a valid mp4")
	ErrNotMp4        = errors.New("mp4: not an mp4 file (missing ftyp atom)")
	ErrFragmentedMp4 = errors.New("mp4: fragmented mp4 (moof atom found) is not supported")
)

// MissingAtomError reports a required top-level atom that was not found.
type MissingAtomError struct {
	Atom string
}

func (e *MissingAtomError) Error() string {
	return fmt.Sprintf("mp4: missing required atom: %s", e.Atom)
}

// InvalidAtomSizeError reports a header whose declared size cannot fit
// within its containing range.
type InvalidAtomSizeError struct {
	Offset uint64
	Size   uint64
}

func (e *InvalidAtomSizeError) Error() string {
	return fmt.Sprintf("mp4: invalid atom size at offset %d: size=%d", e.Offset, e.Size)
}

// StcoLocation is the position of a 32-bit chunk-offset table within the
// parsed file, ready for in-place patching.
type StcoLocation struct {
	DataOffset uint64
	EntryCount uint32
}

// Co64Location is the 64-bit counterpart to StcoLocation.
type Co64Location struct {
	DataOffset uint64
	EntryCount uint32
}

// Structure is the result of parsing an MP4 file's atom tree, with the
// atoms relevant to deconstruction and offset patching identified.
type Structure struct {
	Ftyp          Atom
	Moov          Atom
	Mdat          Atom
	Atoms         []Atom
	FileSize      uint64
	IsFastStart   bool
	StcoLocations []StcoLocation
	Co64Locations []Co64Location
}

// ParseFile opens and parses the MP4 file at path.
func ParseFile(path string) (*Structure, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse extracts an MP4 file's structure without reading its media data.
func Parse(r io.ReadSeeker) (*Structure, error) {
	fileSize, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	if fileSize < 8 {
		return nil, ErrFileTooSmall
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	atoms, err := parseAtoms(r, 0, uint64(fileSize))
	if err != nil {
		return nil, err
	}

	ftyp, ok := findTop(atoms, Ftyp)
	if !ok {
		return nil, ErrNotMp4
	}
	moov, ok := findTop(atoms, Moov)
	if !ok {
		return nil, &MissingAtomError{Atom: "moov"}
	}
	mdat, ok := findTop(atoms, Mdat)
	if !ok {
		return nil, &MissingAtomError{Atom: "mdat"}
	}
	if _, ok := findTop(atoms, Moof); ok {
		return nil, ErrFragmentedMp4
	}

	isFastStart := moov.Start < mdat.Start

	stcoLocs, co64Locs, err := findOffsetTables(r, &moov)
	if err != nil {
		return nil, err
	}

	return &Structure{
		Ftyp:          ftyp,
		Moov:          moov,
		Mdat:          mdat,
		Atoms:         atoms,
		FileSize:      uint64(fileSize),
		IsFastStart:   isFastStart,
		StcoLocations: stcoLocs,
		Co64Locations: co64Locs,
	}, nil
}

func findTop(atoms []Atom, t AtomType) (Atom, bool) {
	for _, a := range atoms {
		if a.Type == t {
			return a, true
		}
	}
	return Atom{}, false
}

func parseAtoms(r io.ReadSeeker, start, end uint64) ([]Atom, error) {
	var atoms []Atom
	pos := start
	if _, err := r.Seek(int64(pos), io.SeekStart); err != nil {
		return nil, err
	}

	for pos < end {
		var sizeBuf [4]byte
		if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, err
		}
		size := uint64(binary.BigEndian.Uint32(sizeBuf[:]))

		var tagBuf [4]byte
		if _, err := io.ReadFull(r, tagBuf[:]); err != nil {
			return nil, err
		}

		var actualSize uint64
		var headerSize uint8
		switch size {
		case 1:
			var extBuf [8]byte
			if _, err := io.ReadFull(r, extBuf[:]); err != nil {
				return nil, err
			}
			actualSize = binary.BigEndian.Uint64(extBuf[:])
			headerSize = 16
		case 0:
			actualSize = end - pos
			headerSize = 8
		default:
			actualSize = size
			headerSize = 8
		}

		if actualSize < uint64(headerSize) || pos+actualSize > end {
			return nil, &InvalidAtomSizeError{Offset: pos, Size: actualSize}
		}

		atom := NewAtom(AtomType(tagBuf), pos, actualSize, headerSize)

		if atom.IsContainer() {
			childrenStart := pos + uint64(headerSize)
			childrenEnd := pos + actualSize
			if _, err := r.Seek(int64(childrenStart), io.SeekStart); err != nil {
				return nil, err
			}
			children, err := parseAtoms(r, childrenStart, childrenEnd)
			if err != nil {
				return nil, err
			}
			atom.Children = children
		}

		pos += actualSize
		if _, err := r.Seek(int64(pos), io.SeekStart); err != nil {
			return nil, err
		}

		atoms = append(atoms, atom)
	}

	return atoms, nil
}

// findOffsetTables locates every stco/co64 table within moov and records
// where its entries begin, so they can be patched later without
// re-parsing.
func findOffsetTables(r io.ReadSeeker, moov *Atom) ([]StcoLocation, []Co64Location, error) {
	var stcoLocs []StcoLocation
	for _, stco := range moov.FindAll(Stco) {
		if _, err := r.Seek(int64(stco.DataStart), io.SeekStart); err != nil {
			return nil, nil, err
		}
		var header [8]byte // version(1) + flags(3) + entry_count(4)
		if _, err := io.ReadFull(r, header[:]); err != nil {
			return nil, nil, err
		}
		entryCount := binary.BigEndian.Uint32(header[4:8])
		stcoLocs = append(stcoLocs, StcoLocation{DataOffset: stco.DataStart + 8, EntryCount: entryCount})
	}

	var co64Locs []Co64Location
	for _, co64 := range moov.FindAll(Co64) {
		if _, err := r.Seek(int64(co64.DataStart), io.SeekStart); err != nil {
			return nil, nil, err
		}
		var header [8]byte
		if _, err := io.ReadFull(r, header[:]); err != nil {
			return nil, nil, err
		}
		entryCount := binary.BigEndian.Uint32(header[4:8])
		co64Locs = append(co64Locs, Co64Location{DataOffset: co64.DataStart + 8, EntryCount: entryCount})
	}

	return stcoLocs, co64Locs, nil
}

// MdatDataStart returns the byte offset where mdat's payload begins (after
// its header).
func (s *Structure) MdatDataStart() uint64 {
	return s.Mdat.DataStart
}

// MdatDataSize returns the size of mdat's payload, excluding its header.
func (s *Structure) MdatDataSize() uint64 {
	return s.Mdat.DataLength
}

// CalculateOffsetDelta returns how far mdat's payload would shift if moov
// were resized to newMoovSize, given the file's current layout.
func (s *Structure) CalculateOffsetDelta(newMoovSize uint64) int64 {
	if !s.IsFastStart {
		return 0
	}
	oldMdatStart := int64(s.Mdat.Start)
	newMdatStart := int64(s.Moov.Start + newMoovSize)
	return newMdatStart - oldMdatStart
}

// NeedsOffsetPatching reports whether this file's layout requires patching
// chunk-offset tables when moov is rewritten.
func (s *Structure) NeedsOffsetPatching() bool {
	return s.IsFastStart && (len(s.StcoLocations) > 0 || len(s.Co64Locations) > 0)
}

// Summary renders a human-readable description of the parsed structure.
func (s *Structure) Summary() string {
	layout, rel := "standard", "after"
	if s.IsFastStart {
		layout, rel = "fast-start", "before"
	}
	return fmt.Sprintf(
		"File size: %d bytes\nLayout: %s (moov %s mdat)\nftyp: %d bytes at offset %d\nmoov: %d bytes at offset %d\nmdat: %d bytes at offset %d\nstco tables: %d\nco64 tables: %d\n",
		s.FileSize, layout, rel,
		s.Ftyp.Length, s.Ftyp.Start,
		s.Moov.Length, s.Moov.Start,
		s.Mdat.Length, s.Mdat.Start,
		len(s.StcoLocations), len(s.Co64Locations),
	)
}

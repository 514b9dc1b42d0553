// Package mp4 implements structural parsing of ISO Base Media File Format
// (MP4/MOV) files: walking the atom (box) hierarchy, splitting a file into
// its metadata (moov) and media data (mdat) components, and patching the
// chunk-offset tables that reference mdat when moov changes size.
package mp4

// AtomType is the 4-byte tag identifying an atom's kind. Unlike some
// ISOBMFF parsers, unknown tags need no special representation here: the
// tag bytes themselves already are the type.
type AtomType [4]byte

// Well-known atom types.
var (
	Ftyp = AtomType{'f', 't', 'y', 'p'}
	Moov = AtomType{'m', 'o', 'o', 'v'}
	Mdat = AtomType{'m', 'd', 'a', 't'}
	Free = AtomType{'f', 'r', 'e', 'e'}
	Skip = AtomType{'s', 'k', 'i', 'p'}
	Wide = AtomType{'w', 'i', 'd', 'e'}
	Uuid = AtomType{'u', 'u', 'i', 'd'}
	Moof = AtomType{'m', 'o', 'o', 'f'}
	Mfra = AtomType{'m', 'f', 'r', 'a'}
	Stbl = AtomType{'s', 't', 'b', 'l'}
	Stco = AtomType{'s', 't', 'c', 'o'}
	Co64 = AtomType{'c', 'o', '6', '4'}
	Trak = AtomType{'t', 'r', 'a', 'k'}
	Mdia = AtomType{'m', 'd', 'i', 'a'}
	Minf = AtomType{'m', 'i', 'n', 'f'}
)

// String renders the atom type as its 4-character fourcc.
func (t AtomType) String() string {
	return string(t[:])
}

// IsContainer reports whether atoms of this type hold child atoms.
func (t AtomType) IsContainer() bool {
	switch t {
	case Moov, Trak, Mdia, Minf, Stbl, Moof:
		return true
	}
	return false
}

// Atom is a single parsed box in an MP4 file.
type Atom struct {
	Type       AtomType
	Start      uint64
	Length     uint64
	DataStart  uint64
	DataLength uint64
	Children   []Atom
}

// NewAtom builds an Atom from its header fields.
func NewAtom(t AtomType, start, length uint64, headerSize uint8) Atom {
	dataStart := start + uint64(headerSize)
	var dataLength uint64
	if length > uint64(headerSize) {
		dataLength = length - uint64(headerSize)
	}
	return Atom{
		Type:       t,
		Start:      start,
		Length:     length,
		DataStart:  dataStart,
		DataLength: dataLength,
	}
}

// End returns the byte offset immediately past this atom.
func (a Atom) End() uint64 {
	return a.Start + a.Length
}

// IsContainer reports whether this atom holds child atoms.
func (a Atom) IsContainer() bool {
	return a.Type.IsContainer()
}

// FindChild searches this atom's subtree (depth-first) for the first atom
// of the given type.
func (a *Atom) FindChild(t AtomType) *Atom {
	for i := range a.Children {
		c := &a.Children[i]
		if c.Type == t {
			return c
		}
		if found := c.FindChild(t); found != nil {
			return found
		}
	}
	return nil
}

// FindAll returns every atom of the given type in this atom's subtree,
// including itself.
func (a *Atom) FindAll(t AtomType) []*Atom {
	var results []*Atom
	a.findAllRecursive(t, &results)
	return results
}

func (a *Atom) findAllRecursive(t AtomType, results *[]*Atom) {
	if a.Type == t {
		*results = append(*results, a)
	}
	for i := range a.Children {
		a.Children[i].findAllRecursive(t, results)
	}
}

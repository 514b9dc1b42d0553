package mp4

import (
	"encoding/binary"
	"io"
)

// Reconstruct rebuilds a valid MP4 file from deconstructed components,
// streaming mdat's payload from mdatData rather than requiring it all in
// memory. Atoms are emitted in the source's top-level order except that
// moov is always promoted ahead of mdat, so the output is fast-start
// regardless of the source layout.
func Reconstruct(w io.Writer, d *Deconstructed, mdatData io.Reader, mdatSize uint64) (uint64, error) {
	mdatHeader := CreateMdatHeader(mdatSize)

	type piece struct {
		data   []byte
		isMdat bool
	}
	var pieces []piece
	ancillary := 0
	moovPiece := -1
	for _, tag := range emissionOrder(d) {
		switch tag {
		case "ftyp":
			pieces = append(pieces, piece{data: d.FtypData})
		case "moov":
			moovData := make([]byte, len(d.MoovData))
			copy(moovData, d.MoovData)
			moovPiece = len(pieces)
			pieces = append(pieces, piece{data: moovData})
		case "mdat":
			pieces = append(pieces, piece{data: mdatHeader, isMdat: true})
		default:
			if ancillary < len(d.OtherAtoms) {
				pieces = append(pieces, piece{data: d.OtherAtoms[ancillary].Data})
				ancillary++
			}
		}
	}

	// The mdat payload lands immediately after every atom emitted before it,
	// mdat's own header included.
	var mdatDataStart uint64
	for _, p := range pieces {
		mdatDataStart += uint64(len(p.data))
		if p.isMdat {
			break
		}
	}

	if d.HasNormalizedOffsets() && moovPiece >= 0 {
		var patcher OffsetPatcher
		if err := patcher.Denormalize(pieces[moovPiece].data, d.Structure, mdatDataStart); err != nil {
			return 0, err
		}
	}

	var written uint64
	for _, p := range pieces {
		if _, err := w.Write(p.data); err != nil {
			return written, err
		}
		written += uint64(len(p.data))
		if p.isMdat {
			copied, err := io.Copy(w, mdatData)
			if err != nil {
				return written, err
			}
			written += uint64(copied)
		}
	}
	return written, nil
}

// emissionOrder returns the top-level atom order to emit: the source's
// document order with moov moved directly ahead of mdat when it followed
// it (fast-start promotion). An empty recorded order falls back to the
// canonical ftyp, moov, ancillary, mdat layout.
func emissionOrder(d *Deconstructed) []string {
	order := d.AtomOrder
	if len(order) == 0 {
		order = []string{"ftyp", "moov"}
		for _, a := range d.OtherAtoms {
			order = append(order, a.Type.String())
		}
		return append(order, "mdat")
	}

	moovIdx, mdatIdx := -1, -1
	for i, tag := range order {
		switch tag {
		case "moov":
			moovIdx = i
		case "mdat":
			mdatIdx = i
		}
	}
	if moovIdx < 0 || mdatIdx < 0 || moovIdx < mdatIdx {
		return order
	}

	promoted := make([]string, 0, len(order))
	for i, tag := range order {
		if i == moovIdx {
			continue
		}
		if i == mdatIdx {
			promoted = append(promoted, "moov")
		}
		promoted = append(promoted, tag)
	}
	return promoted
}

// VerifyStructure does a cheap sanity check on a reconstructed buffer: it
// must open with a plausible ftyp header followed by a recognizable atom.
func VerifyStructure(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	if string(data[4:8]) != "ftyp" {
		return false
	}
	ftypSize := binary.BigEndian.Uint32(data[0:4])
	if int(ftypSize) > len(data) || ftypSize < 8 {
		return false
	}
	if len(data) > int(ftypSize)+8 {
		switch string(data[ftypSize+4 : ftypSize+8]) {
		case "moov", "mdat", "free", "uuid":
		default:
			return false
		}
	}
	return true
}

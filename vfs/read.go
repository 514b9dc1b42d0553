package vfs

import (
	"fmt"

	"github.com/dits-vcs/dits/cache"
	"github.com/dits-vcs/dits/hash"
	"github.com/dits-vcs/dits/manifest"
	"github.com/dits-vcs/dits/mp4"
	"github.com/dits-vcs/dits/objectstore"
)

// prefetchAhead is how many chunks past the current read to warm in the
// background, matching the original's fixed lookahead window.
const prefetchAhead = 4

// Reader serves byte ranges for VFS entries, reading chunk payloads
// through the multi-tier cache and, for MP4 entries, synthesizing the
// ftyp/moov/mdat-header region on the fly from stored blobs.
type Reader struct {
	cache   *cache.Cache
	objects *objectstore.Store
}

// NewReader builds a Reader over a warm cache and the backing object
// store (used directly for ftyp/moov blobs, which aren't chunk-addressed).
func NewReader(c *cache.Cache, objects *objectstore.Store) *Reader {
	return &Reader{cache: c, objects: objects}
}

// Read returns up to size bytes of entry's content starting at offset,
// dispatching to the MP4 path when the entry carries MP4 metadata.
func (r *Reader) Read(entry *Entry, offset uint64, size uint32) ([]byte, error) {
	if entry.Mp4 != nil {
		return r.readMp4(entry, offset, size)
	}
	return r.readPlain(entry, offset, size)
}

func (r *Reader) readPlain(entry *Entry, offset uint64, size uint32) ([]byte, error) {
	if offset >= entry.Size {
		return []byte{}, nil
	}
	remaining := entry.Size - offset
	actual := uint64(size)
	if remaining < actual {
		actual = remaining
	}

	spans := entry.ChunksForRange(offset, actual)
	r.prefetchAhead(entry, spans)

	result := make([]byte, 0, actual)
	for _, span := range spans {
		data, err := r.cache.Get(span.Ref.CID)
		if err != nil {
			return nil, fmt.Errorf("vfs: read chunk %s: %w", span.Ref.CID.Short(), err)
		}
		start := span.ReadStart
		end := start + span.ReadLen
		if end > uint64(len(data)) {
			return nil, fmt.Errorf("vfs: chunk %s shorter than expected (%d vs %d)", span.Ref.CID.Short(), len(data), end)
		}
		result = append(result, data[start:end]...)
	}
	return result, nil
}

func (r *Reader) prefetchAhead(entry *Entry, spans []ChunkSpan) {
	if len(spans) == 0 {
		return
	}
	lastIdx := spans[len(spans)-1].Index
	var hashes []hash.CID
	for i := lastIdx + 1; i < len(entry.Chunks) && len(hashes) < prefetchAhead; i++ {
		hashes = append(hashes, entry.Chunks[i].CID)
	}
	if len(hashes) > 0 {
		r.cache.Prefetch(hashes)
	}
}

// readMp4 reconstructs the logical byte stream of an MP4 file on demand:
// ftyp, then moov (denormalized to absolute offsets for this synthesized
// layout), then a freshly built mdat header, then the mdat payload read
// from chunked storage. Nothing stored on disk is mutated; the patched
// moov lives only in this call's local buffer.
func (r *Reader) readMp4(entry *Entry, offset uint64, size uint32) ([]byte, error) {
	meta := entry.Mp4
	if offset >= entry.Size {
		return []byte{}, nil
	}
	remaining := entry.Size - offset
	actual := uint64(size)
	if remaining < actual {
		actual = remaining
	}

	ftypData, err := r.objects.LoadBlob(meta.FtypHash)
	if err != nil {
		return nil, fmt.Errorf("vfs: load ftyp blob: %w", err)
	}
	ftypSize := uint64(len(ftypData))
	moovEnd := ftypSize + meta.MoovSize
	mdatHeaderEnd := moovEnd + mdatHeaderLen(meta.MdatSize)

	result := make([]byte, 0, actual)
	cur := offset
	left := actual

	if cur < ftypSize && left > 0 {
		start := cur
		end := ftypSize
		if end-start > left {
			end = start + left
		}
		if end > uint64(len(ftypData)) {
			return nil, fmt.Errorf("vfs: ftyp blob shorter than recorded size")
		}
		result = append(result, ftypData[start:end]...)
		left -= end - start
		cur = ftypSize
	}

	if cur < moovEnd && left > 0 {
		moovData, err := r.objects.LoadBlob(meta.MoovHash)
		if err != nil {
			return nil, fmt.Errorf("vfs: load moov blob: %w", err)
		}
		patched := make([]byte, len(moovData))
		copy(patched, moovData)
		if meta.NeedsOffsetPatching {
			structure := structureFromMetadata(meta, len(moovData))
			var patcher mp4.OffsetPatcher
			if err := patcher.Denormalize(patched, structure, mdatHeaderEnd); err != nil {
				return nil, fmt.Errorf("vfs: denormalize moov: %w", err)
			}
		}

		moovOffset := cur - ftypSize
		moovRemaining := moovEnd - cur
		toRead := moovRemaining
		if toRead > left {
			toRead = left
		}
		end := moovOffset + toRead
		if end > uint64(len(patched)) {
			return nil, fmt.Errorf("vfs: moov blob shorter than recorded size")
		}
		result = append(result, patched[moovOffset:end]...)
		left -= toRead
		cur += toRead
	}

	if cur < mdatHeaderEnd && left > 0 {
		header := mp4.CreateMdatHeader(meta.MdatSize)
		headerOffset := cur - moovEnd
		if headerOffset < uint64(len(header)) {
			toRead := uint64(len(header)) - headerOffset
			if toRead > left {
				toRead = left
			}
			result = append(result, header[headerOffset:headerOffset+toRead]...)
			left -= toRead
			cur += toRead
		}
	}

	if cur >= mdatHeaderEnd && left > 0 {
		chunkOffset := cur - mdatHeaderEnd
		spans := entry.ChunksForRange(chunkOffset, left)
		r.prefetchAhead(entry, spans)
		for _, span := range spans {
			data, err := r.cache.Get(span.Ref.CID)
			if err != nil {
				return nil, fmt.Errorf("vfs: read mdat chunk %s: %w", span.Ref.CID.Short(), err)
			}
			start := span.ReadStart
			end := start + span.ReadLen
			if end > uint64(len(data)) {
				return nil, fmt.Errorf("vfs: mdat chunk %s shorter than expected", span.Ref.CID.Short())
			}
			result = append(result, data[start:end]...)
		}
	}

	return result, nil
}

// structureFromMetadata reconstructs just enough of an mp4.Structure for
// OffsetPatcher to operate on a standalone moov buffer: the stco/co64
// table locations recorded at add time, relative to moov's own start (0),
// since the denormalization target here is a synthesized buffer rather
// than a file on disk.
func structureFromMetadata(meta *manifest.Mp4Metadata, moovLen int) *mp4.Structure {
	s := &mp4.Structure{
		Moov: mp4.Atom{Start: 0, Length: uint64(moovLen)},
	}
	for _, span := range meta.StcoOffsets {
		s.StcoLocations = append(s.StcoLocations, mp4.StcoLocation{DataOffset: span.OffsetInMoov, EntryCount: span.EntryCount})
	}
	for _, span := range meta.Co64Offsets {
		s.Co64Locations = append(s.Co64Locations, mp4.Co64Location{DataOffset: span.OffsetInMoov, EntryCount: span.EntryCount})
	}
	return s
}

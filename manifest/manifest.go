// Package manifest defines the tree of tracked files recorded by a commit:
// for each path, how its content is stored and how to reassemble it.
package manifest

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dits-vcs/dits/chunk"
	"github.com/dits-vcs/dits/classify"
	"github.com/dits-vcs/dits/hash"
)

// FileMode records the POSIX-ish mode bits worth preserving across a
// checkout: whether a file is executable, or a symlink.
type FileMode int

const (
	// Regular is a plain, non-executable file. The zero value.
	Regular FileMode = iota
	// Executable is a file with at least one executable bit set.
	Executable
	// Symlink is a symbolic link; its target is carried in SymlinkTarget.
	Symlink
)

func (m FileMode) String() string {
	switch m {
	case Executable:
		return "executable"
	case Symlink:
		return "symlink"
	default:
		return "regular"
	}
}

// StoredAtom is a small, ancillary MP4 atom (anything but ftyp/moov/mdat).
// Atoms under the inline threshold carry their bytes directly; larger ones
// are stored as a blob and referenced by hash.
type StoredAtom struct {
	AtomType   string    `json:"atom_type"`
	Hash       *hash.CID `json:"hash,omitempty"`
	InlineData []byte    `json:"inline_data,omitempty"`
}

// Mp4Metadata records everything needed to reconstruct an MP4 file from its
// deconstructed parts: the ftyp/moov blobs, the chunk-offset table
// locations within moov, the original top-level atom order, and any
// ancillary atoms.
type Mp4Metadata struct {
	FtypHash            hash.CID     `json:"ftyp_hash"`
	MoovHash            hash.CID     `json:"moov_hash"`
	MoovSize            uint64       `json:"moov_size"`
	MdatSize            uint64       `json:"mdat_size"`
	NeedsOffsetPatching bool         `json:"needs_offset_patching"`
	StcoOffsets         []OffsetSpan `json:"stco_offsets"`
	Co64Offsets         []OffsetSpan `json:"co64_offsets"`
	AtomOrder           []string     `json:"atom_order"`
	OtherAtoms          []StoredAtom `json:"other_atoms"`
}

// OffsetSpan is a (offset-within-moov, entry-count) pair describing one
// stco/co64 table's location, so it can be patched without re-parsing moov.
type OffsetSpan struct {
	OffsetInMoov uint64 `json:"offset_in_moov"`
	EntryCount   uint32 `json:"entry_count"`
}

// Entry describes how one tracked path is stored.
type Entry struct {
	Path           string           `json:"path"`
	Mode           FileMode         `json:"mode"`
	Size           uint64           `json:"size"`
	ContentHash    hash.CID         `json:"content_hash"`
	Chunks         []chunk.Ref      `json:"chunks,omitempty"`
	Mp4            *Mp4Metadata     `json:"mp4_metadata,omitempty"`
	Storage        classify.Strategy `json:"storage"`
	GitOID         string           `json:"git_oid,omitempty"`
	SymlinkTarget  string           `json:"symlink_target,omitempty"`
}

// NewEntry builds a plain chunked-storage entry.
func NewEntry(path string, mode FileMode, size uint64, contentHash hash.CID, chunks []chunk.Ref) Entry {
	return Entry{Path: path, Mode: mode, Size: size, ContentHash: contentHash, Chunks: chunks, Storage: classify.DitsChunk}
}

// NewMp4 builds an entry for an MP4 file whose payload was deconstructed
// into metadata (ftyp/moov/ancillary atoms) and a chunked mdat payload.
func NewMp4(path string, size uint64, contentHash hash.CID, chunks []chunk.Ref, meta Mp4Metadata) Entry {
	return Entry{Path: path, Mode: Regular, Size: size, ContentHash: contentHash, Chunks: chunks, Mp4: &meta, Storage: classify.Hybrid}
}

// NewText builds an entry whose content lives in the text engine's blob
// store, addressed by a SHA-1 git object id rather than chunk refs.
func NewText(path string, mode FileMode, size uint64, contentHash hash.CID, gitOID string) Entry {
	return Entry{Path: path, Mode: mode, Size: size, ContentHash: contentHash, GitOID: gitOID, Storage: classify.GitText}
}

// NewWithStrategy builds an entry with an explicit storage strategy,
// for callers that already know how the content was routed.
func NewWithStrategy(path string, mode FileMode, size uint64, contentHash hash.CID, chunks []chunk.Ref, strategy classify.Strategy) Entry {
	return Entry{Path: path, Mode: mode, Size: size, ContentHash: contentHash, Chunks: chunks, Storage: strategy}
}

// IsMp4 reports whether this entry carries MP4 structural metadata.
func (e Entry) IsMp4() bool { return e.Mp4 != nil }

// IsGitText reports whether this entry's content lives in the text engine.
func (e Entry) IsGitText() bool { return e.Storage == classify.GitText }

// IsDitsChunk reports whether this entry's content is plain chunked binary.
func (e Entry) IsDitsChunk() bool { return e.Storage == classify.DitsChunk }

// ChunkHashes returns the hash of every chunk this entry references, in
// ref order; a chunk referenced twice appears twice.
func (e Entry) ChunkHashes() []hash.CID {
	out := make([]hash.CID, 0, len(e.Chunks))
	for _, c := range e.Chunks {
		out = append(out, c.CID)
	}
	return out
}

// Manifest is the full set of tracked paths recorded by a commit, keyed by
// path. Entries are kept in a map for lookup but always walked and
// serialized in sorted path order, so Hash is deterministic.
type Manifest struct {
	Entries map[string]Entry `json:"entries"`
}

// New returns an empty manifest.
func New() *Manifest {
	return &Manifest{Entries: make(map[string]Entry)}
}

// Add records or replaces the entry for e.Path.
func (m *Manifest) Add(e Entry) {
	m.Entries[e.Path] = e
}

// Remove deletes the entry for path, reporting whether one existed.
func (m *Manifest) Remove(path string) bool {
	if _, ok := m.Entries[path]; !ok {
		return false
	}
	delete(m.Entries, path)
	return true
}

// Get returns the entry for path, if tracked.
func (m *Manifest) Get(path string) (Entry, bool) {
	e, ok := m.Entries[path]
	return e, ok
}

// Contains reports whether path is tracked.
func (m *Manifest) Contains(path string) bool {
	_, ok := m.Entries[path]
	return ok
}

// Len returns the number of tracked paths.
func (m *Manifest) Len() int { return len(m.Entries) }

// IsEmpty reports whether the manifest tracks no paths.
func (m *Manifest) IsEmpty() bool { return len(m.Entries) == 0 }

// Paths returns every tracked path, sorted.
func (m *Manifest) Paths() []string {
	paths := make([]string, 0, len(m.Entries))
	for p := range m.Entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// TotalSize sums the logical size of every tracked file.
func (m *Manifest) TotalSize() uint64 {
	var total uint64
	for _, e := range m.Entries {
		total += e.Size
	}
	return total
}

// TotalChunks sums the chunk count across every entry, including duplicate
// references to the same underlying chunk.
func (m *Manifest) TotalChunks() int {
	var total int
	for _, e := range m.Entries {
		total += len(e.Chunks)
	}
	return total
}

// UniqueChunkHashes returns the distinct set of chunk hashes referenced by
// the manifest, sorted by hex encoding.
func (m *Manifest) UniqueChunkHashes() []hash.CID {
	seen := make(map[hash.CID]struct{})
	for _, e := range m.Entries {
		for _, c := range e.Chunks {
			seen[c.CID] = struct{}{}
		}
	}
	out := make([]hash.CID, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// canonical is the wire shape used for hashing and serialization: a
// path-sorted slice instead of a map, so the JSON encoding is stable
// regardless of Go's (unspecified) map iteration order.
type canonical struct {
	Entries []Entry `json:"entries"`
}

// MarshalJSON serializes the manifest with entries in sorted path order, so
// two manifests with the same content always produce identical bytes.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	paths := m.Paths()
	entries := make([]Entry, 0, len(paths))
	for _, p := range paths {
		entries = append(entries, m.Entries[p])
	}
	return json.Marshal(canonical{Entries: entries})
}

// UnmarshalJSON restores a manifest previously produced by MarshalJSON.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var c canonical
	if err := json.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("manifest: unmarshal: %w", err)
	}
	m.Entries = make(map[string]Entry, len(c.Entries))
	for _, e := range c.Entries {
		m.Entries[e.Path] = e
	}
	return nil
}

// Hash computes the manifest's content identifier: the BLAKE3 hash of its
// canonical (sorted-path) JSON encoding. Two manifests with identical
// entries hash identically regardless of insertion order.
func (m *Manifest) Hash() (hash.CID, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return hash.Zero, fmt.Errorf("manifest: hash: %w", err)
	}
	return hash.FromBytes(data), nil
}

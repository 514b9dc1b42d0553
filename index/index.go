// Package index implements the staging area: the set of changes recorded
// by "add" before they are sealed into a commit.
package index

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dits-vcs/dits/chunk"
	"github.com/dits-vcs/dits/classify"
	"github.com/dits-vcs/dits/hash"
	"github.com/dits-vcs/dits/manifest"
)

// Status describes how a staged path relates to the base commit.
type Status int

const (
	Added Status = iota
	Modified
	Deleted
	Unchanged
	Untracked
)

func (s Status) String() string {
	switch s {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Unchanged:
		return "unchanged"
	case Untracked:
		return "untracked"
	default:
		return "unknown"
	}
}

// Entry is a staged file: everything a manifest.Entry needs, plus staging
// bookkeeping (mtime, status) not worth carrying into a sealed commit.
type Entry struct {
	Path          string                `json:"path"`
	Mode          manifest.FileMode     `json:"mode"`
	ContentHash   hash.CID              `json:"content_hash"`
	Size          uint64                `json:"size"`
	Mtime         time.Time             `json:"mtime"`
	Chunks        []chunk.Ref           `json:"chunks,omitempty"`
	Status        Status                `json:"status"`
	Mp4           *manifest.Mp4Metadata `json:"mp4_metadata,omitempty"`
	Storage       classify.Strategy     `json:"storage"`
	GitOID        string                `json:"git_oid,omitempty"`
	SymlinkTarget string                `json:"symlink_target,omitempty"`
}

// NewEntry builds a staged entry for plain chunked content.
func NewEntry(path string, contentHash hash.CID, size uint64, mtime time.Time, chunks []chunk.Ref, status Status) Entry {
	return Entry{Path: path, ContentHash: contentHash, Size: size, Mtime: mtime, Chunks: chunks, Status: status, Storage: classify.DitsChunk}
}

// NewMp4 builds a staged entry for a deconstructed MP4 file.
func NewMp4(path string, contentHash hash.CID, size uint64, mtime time.Time, chunks []chunk.Ref, meta manifest.Mp4Metadata, status Status) Entry {
	return Entry{Path: path, ContentHash: contentHash, Size: size, Mtime: mtime, Chunks: chunks, Mp4: &meta, Status: status, Storage: classify.Hybrid}
}

// NewText builds a staged entry backed by the text engine's blob store.
func NewText(path string, contentHash hash.CID, size uint64, mtime time.Time, gitOID string, status Status) Entry {
	return Entry{Path: path, ContentHash: contentHash, Size: size, Mtime: mtime, GitOID: gitOID, Status: status, Storage: classify.GitText}
}

// NewWithStrategy builds a staged entry with an explicit storage strategy.
func NewWithStrategy(path string, contentHash hash.CID, size uint64, mtime time.Time, chunks []chunk.Ref, strategy classify.Strategy, status Status) Entry {
	return Entry{Path: path, ContentHash: contentHash, Size: size, Mtime: mtime, Chunks: chunks, Storage: strategy, Status: status}
}

// NewSymlink builds a staged entry for a symbolic link: its "content" is
// the link target string, which is hashed for ContentHash and carried
// inline in SymlinkTarget; no chunks are stored for it.
func NewSymlink(path string, contentHash hash.CID, target string, mtime time.Time, status Status) Entry {
	return Entry{Path: path, Mode: manifest.Symlink, ContentHash: contentHash, Size: uint64(len(target)), Mtime: mtime, SymlinkTarget: target, Status: status, Storage: classify.DitsChunk}
}

func (e Entry) IsMp4() bool      { return e.Mp4 != nil }
func (e Entry) IsGitText() bool  { return e.Storage == classify.GitText }
func (e Entry) IsDitsChunk() bool { return e.Storage == classify.DitsChunk }
func (e Entry) IsHybrid() bool   { return e.Storage == classify.Hybrid }

// StorageLabel renders a short label for status/porcelain output.
func (e Entry) StorageLabel() string {
	return e.Storage.String()
}

// ToManifestEntry converts a staged entry into the sealed form recorded by
// a commit's manifest. Staging-only fields (Mtime, Status) are dropped.
func (e Entry) ToManifestEntry() manifest.Entry {
	var me manifest.Entry
	switch {
	case e.IsMp4():
		me = manifest.NewMp4(e.Path, e.Size, e.ContentHash, e.Chunks, *e.Mp4)
	case e.IsGitText():
		me = manifest.NewText(e.Path, e.Mode, e.Size, e.ContentHash, e.GitOID)
	default:
		me = manifest.NewWithStrategy(e.Path, e.Mode, e.Size, e.ContentHash, e.Chunks, e.Storage)
	}
	me.SymlinkTarget = e.SymlinkTarget
	return me
}

// Index is the staging area: a set of entries keyed by path, plus the
// commit this staging snapshot is based on (nil for a fresh repository).
type Index struct {
	Entries    map[string]Entry `json:"entries"`
	BaseCommit *hash.CID        `json:"base_commit,omitempty"`
}

// New returns an empty index with no base commit.
func New() *Index {
	return &Index{Entries: make(map[string]Entry)}
}

// FromCommit returns an index rebuilt from a commit's manifest, with every
// entry's status set to Unchanged — the state immediately after a commit
// or checkout, before any further edits are staged.
func FromCommit(base hash.CID, m *manifest.Manifest) *Index {
	idx := &Index{Entries: make(map[string]Entry, m.Len()), BaseCommit: &base}
	for _, path := range m.Paths() {
		me, _ := m.Get(path)
		e := Entry{
			Path:          me.Path,
			Mode:          me.Mode,
			ContentHash:   me.ContentHash,
			Size:          me.Size,
			Chunks:        me.Chunks,
			Mp4:           me.Mp4,
			Storage:       me.Storage,
			GitOID:        me.GitOID,
			SymlinkTarget: me.SymlinkTarget,
			Status:        Unchanged,
		}
		idx.Entries[path] = e
	}
	return idx
}

// Stage records or replaces the staged entry for e.Path.
func (idx *Index) Stage(e Entry) {
	idx.Entries[e.Path] = e
}

// Unstage removes path from staging, reporting whether it was present.
func (idx *Index) Unstage(path string) bool {
	if _, ok := idx.Entries[path]; !ok {
		return false
	}
	delete(idx.Entries, path)
	return true
}

// Get returns the staged entry for path, if any.
func (idx *Index) Get(path string) (Entry, bool) {
	e, ok := idx.Entries[path]
	return e, ok
}

// IsStaged reports whether path has a staged entry.
func (idx *Index) IsStaged(path string) bool {
	_, ok := idx.Entries[path]
	return ok
}

// StagedPaths returns every staged path, sorted.
func (idx *Index) StagedPaths() []string {
	paths := make([]string, 0, len(idx.Entries))
	for p := range idx.Entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Len returns the number of staged entries.
func (idx *Index) Len() int { return len(idx.Entries) }

// IsEmpty reports whether the index has no staged entries.
func (idx *Index) IsEmpty() bool { return len(idx.Entries) == 0 }

// Clear removes every staged entry, keeping BaseCommit unchanged.
func (idx *Index) Clear() {
	idx.Entries = make(map[string]Entry)
}

// EntriesByStatus returns every staged entry with the given status, sorted
// by path.
func (idx *Index) EntriesByStatus(status Status) []Entry {
	var out []Entry
	for _, p := range idx.StagedPaths() {
		if e := idx.Entries[p]; e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

// ToManifest seals every staged entry into a manifest, ready for
// commit.New. Deleted entries are omitted.
func (idx *Index) ToManifest() *manifest.Manifest {
	m := manifest.New()
	for _, p := range idx.StagedPaths() {
		e := idx.Entries[p]
		if e.Status == Deleted {
			continue
		}
		m.Add(e.ToManifestEntry())
	}
	return m
}

// ToJSON serializes the index for on-disk persistence at .dits/index.
func (idx *Index) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("index: marshal: %w", err)
	}
	return data, nil
}

// FromJSON restores an index previously produced by ToJSON.
func FromJSON(data []byte) (*Index, error) {
	idx := &Index{Entries: make(map[string]Entry)}
	if err := json.Unmarshal(data, idx); err != nil {
		return nil, fmt.Errorf("index: unmarshal: %w", err)
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]Entry)
	}
	return idx, nil
}

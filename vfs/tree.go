// Package vfs implements a read-only, inode-keyed virtual filesystem tree
// over a commit's manifest, exposing FUSE-like lookup/getattr/readdir/read
// operations and synthesizing MP4 headers on the fly for range reads.
package vfs

import (
	"sort"
	"strings"
	"time"

	"github.com/dits-vcs/dits/chunk"
	"github.com/dits-vcs/dits/hash"
	"github.com/dits-vcs/dits/manifest"
)

// RootInode is the inode number of the tree's root directory.
const RootInode uint64 = 1

// EntryType classifies a tree entry.
type EntryType int

const (
	TypeFile EntryType = iota
	TypeDirectory
	TypeSymlink
)

// Entry is one node in the virtual filesystem: a file, directory, or
// symlink, keyed by inode.
type Entry struct {
	Name          string
	Type          EntryType
	SymlinkTarget string
	Size          uint64
	Mtime         time.Time
	Atime         time.Time
	Ctime         time.Time
	Mode          uint32
	Inode         uint64
	ParentInode   uint64
	Chunks        []chunk.Ref
	ContentHash   hash.CID
	Mp4           *manifest.Mp4Metadata
	Children      map[string]uint64 // name -> inode, directories only
}

// NewDirectory builds a directory entry with mode 0755.
func NewDirectory(name string, inode, parent uint64) *Entry {
	now := time.Now()
	return &Entry{
		Name: name, Type: TypeDirectory, Mode: 0o755,
		Inode: inode, ParentInode: parent,
		Mtime: now, Atime: now, Ctime: now,
		Children: make(map[string]uint64),
	}
}

// NewFile builds a file entry with mode 0644.
func NewFile(name string, inode, parent uint64, size uint64) *Entry {
	now := time.Now()
	return &Entry{
		Name: name, Type: TypeFile, Mode: 0o644, Size: size,
		Inode: inode, ParentInode: parent,
		Mtime: now, Atime: now, Ctime: now,
	}
}

// IsDir reports whether the entry is a directory.
func (e *Entry) IsDir() bool { return e.Type == TypeDirectory }

// ChunkSpan describes the portion of one chunk that overlaps a requested
// byte range: which chunk, where within it to start reading, and how many
// bytes to take.
type ChunkSpan struct {
	Index     int
	Ref       chunk.Ref
	ReadStart uint64
	ReadLen   uint64
}

// ChunksForRange returns every chunk overlapping [offset, offset+size),
// with the portion of each to read, by walking the entry's chunk list
// sequentially and tracking each chunk's start offset.
func (e *Entry) ChunksForRange(offset, size uint64) []ChunkSpan {
	if size == 0 {
		return nil
	}
	end := offset + size
	var spans []ChunkSpan
	var chunkStart uint64
	for i, ref := range e.Chunks {
		if chunkStart >= end {
			break
		}
		chunkEnd := chunkStart + uint64(ref.Size)
		if chunkEnd > offset {
			readStart := uint64(0)
			if offset > chunkStart {
				readStart = offset - chunkStart
			}
			readEnd := uint64(ref.Size)
			if chunkEnd > end {
				readEnd = end - chunkStart
			}
			spans = append(spans, ChunkSpan{Index: i, Ref: ref, ReadStart: readStart, ReadLen: readEnd - readStart})
		}
		chunkStart = chunkEnd
	}
	return spans
}

// mdatHeaderLen returns the synthesized mdat header's byte length: 16 when
// the payload needs the 64-bit extended-size form, 8 otherwise.
func mdatHeaderLen(mdatSize uint64) uint64 {
	if mdatSize+8 > 0xFFFFFFFF {
		return 16
	}
	return 8
}

// Mp4HeaderSize returns the byte length of the synthesized file up to and
// including the mdat header: ftyp blob length + moov size + mdat header.
// ftypLen must be the actual stored ftyp blob's length — using a hardcoded
// constant here would desync the header from real ftyp atoms of unusual
// (non-32-byte) size.
func Mp4HeaderSize(ftypLen int, meta *manifest.Mp4Metadata) uint64 {
	return uint64(ftypLen) + meta.MoovSize + mdatHeaderLen(meta.MdatSize)
}

// Tree is the full virtual filesystem for one manifest: every tracked
// path, plus the directories implied by its structure, keyed by inode.
type Tree struct {
	Entries   map[uint64]*Entry
	NextInode uint64
}

// NewTree returns an empty tree with just a root directory.
func NewTree() *Tree {
	t := &Tree{Entries: make(map[uint64]*Entry), NextInode: 2}
	root := NewDirectory("", RootInode, RootInode)
	t.Entries[RootInode] = root
	return t
}

// FromManifest builds a tree from every path tracked by m.
func FromManifest(m *manifest.Manifest) *Tree {
	t := NewTree()
	for _, path := range m.Paths() {
		entry, _ := m.Get(path)
		t.addFile(path, entry)
	}
	return t
}

func (t *Tree) addFile(path string, me manifest.Entry) {
	parts := strings.Split(path, "/")
	parent := RootInode
	for i, part := range parts {
		isLast := i == len(parts)-1
		parentEntry := t.Entries[parent]
		if childInode, ok := parentEntry.Children[part]; ok {
			if isLast {
				continue
			}
			parent = childInode
			continue
		}

		inode := t.NextInode
		t.NextInode++

		if isLast {
			f := NewFile(part, inode, parent, me.Size)
			f.Chunks = me.Chunks
			f.ContentHash = me.ContentHash
			f.Mp4 = me.Mp4
			if me.Mode == manifest.Symlink {
				f.Type = TypeSymlink
				f.SymlinkTarget = me.SymlinkTarget
			}
			if me.Mode == manifest.Executable {
				f.Mode = 0o755
			}
			t.Entries[inode] = f
			parentEntry.Children[part] = inode
		} else {
			d := NewDirectory(part, inode, parent)
			t.Entries[inode] = d
			parentEntry.Children[part] = inode
			parent = inode
		}
	}
}

// Get returns the entry for an inode.
func (t *Tree) Get(inode uint64) (*Entry, bool) {
	e, ok := t.Entries[inode]
	return e, ok
}

// Lookup resolves a slash-separated path to its entry, starting at root.
func (t *Tree) Lookup(path string) (*Entry, bool) {
	path = strings.Trim(path, "/")
	if path == "" {
		return t.Get(RootInode)
	}
	inode := RootInode
	for _, part := range strings.Split(path, "/") {
		parent, ok := t.Get(inode)
		if !ok || !parent.IsDir() {
			return nil, false
		}
		child, ok := parent.Children[part]
		if !ok {
			return nil, false
		}
		inode = child
	}
	return t.Get(inode)
}

// LookupChild resolves a single path component within a known parent
// directory's inode.
func (t *Tree) LookupChild(parentInode uint64, name string) (*Entry, bool) {
	parent, ok := t.Get(parentInode)
	if !ok || !parent.IsDir() {
		return nil, false
	}
	childInode, ok := parent.Children[name]
	if !ok {
		return nil, false
	}
	return t.Get(childInode)
}

// DirEntry is one row of a directory listing.
type DirEntry struct {
	Name  string
	Inode uint64
	Type  EntryType
}

// Readdir lists a directory's contents, always including "." and ".."
// first.
func (t *Tree) Readdir(inode uint64) ([]DirEntry, bool) {
	dir, ok := t.Get(inode)
	if !ok || !dir.IsDir() {
		return nil, false
	}
	entries := []DirEntry{
		{Name: ".", Inode: inode, Type: TypeDirectory},
		{Name: "..", Inode: dir.ParentInode, Type: TypeDirectory},
	}

	names := make([]string, 0, len(dir.Children))
	for name := range dir.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		childInode := dir.Children[name]
		child := t.Entries[childInode]
		entries = append(entries, DirEntry{Name: name, Inode: childInode, Type: child.Type})
	}
	return entries, true
}

// Len returns the number of entries in the tree, including the root.
func (t *Tree) Len() int { return len(t.Entries) }

// IsEmpty reports whether the tree holds only its root directory.
func (t *Tree) IsEmpty() bool { return len(t.Entries) <= 1 }

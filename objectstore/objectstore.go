// Package objectstore implements content-addressed storage for the four
// kinds of objects Dits persists: chunks, blobs, manifests, and commits.
// Every object is stored under a two-level hex fan-out directory keyed by
// its hash, and every load verifies the stored content against the hash
// it is filed under: chunks, blobs and manifests by hashing the stored
// bytes, commits by recomputing the commit hash from the decoded fields.
package objectstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dits-vcs/dits/commit"
	"github.com/dits-vcs/dits/hash"
	"github.com/dits-vcs/dits/manifest"
)

// Kind identifies which object subtree a hash belongs to.
type Kind int

const (
	KindChunk Kind = iota
	KindBlob
	KindManifest
	KindCommit
)

// dirName returns the on-disk subdirectory for a Kind.
func (k Kind) dirName() string {
	switch k {
	case KindChunk:
		return "chunks"
	case KindBlob:
		return "blobs"
	case KindManifest:
		return "manifests"
	case KindCommit:
		return "commits"
	default:
		panic("objectstore: unknown kind")
	}
}

// ErrNotFound is returned when an object is requested but not present.
var ErrNotFound = errors.New("objectstore: object not found")

// ChecksumMismatchError is returned when stored bytes no longer hash to the
// name they are filed under, indicating on-disk corruption.
type ChecksumMismatchError struct {
	Expected hash.CID
	Actual   hash.CID
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("objectstore: checksum mismatch: expected %s, got %s", e.Expected.Short(), e.Actual.Short())
}

// Store is a content-addressed object store rooted at a directory,
// typically <repo>/.dits/objects.
type Store struct {
	root string
}

// Open returns a Store rooted at root, creating the kind subdirectories if
// they don't already exist.
func Open(root string) (*Store, error) {
	s := &Store{root: root}
	for _, k := range []Kind{KindChunk, KindBlob, KindManifest, KindCommit} {
		if err := os.MkdirAll(filepath.Join(root, k.dirName()), 0o755); err != nil {
			return nil, fmt.Errorf("objectstore: create %s dir: %w", k.dirName(), err)
		}
	}
	return s, nil
}

// objectPath returns the fan-out path for a hash under a kind's subtree.
func (s *Store) objectPath(k Kind, h hash.CID) string {
	return filepath.Join(s.root, k.dirName(), h.ObjectPath())
}

// writeAtomic writes data to path via a temp file plus rename, so a crash
// mid-write never leaves a partial object visible under its final name.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func readVerified(path string, want hash.CID) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	actual := hash.FromBytes(data)
	if actual != want {
		return nil, &ChecksumMismatchError{Expected: want, Actual: actual}
	}
	return data, nil
}

// StoreChunk writes a content-defined chunk keyed by its own hash, and
// reports whether it was newly written (false if already present and thus
// a dedup hit).
func (s *Store) StoreChunk(h hash.CID, data []byte) (wasNew bool, err error) {
	return s.storeByOwnHash(KindChunk, h, data)
}

// LoadChunk reads and hash-verifies a previously stored chunk.
func (s *Store) LoadChunk(h hash.CID) ([]byte, error) {
	return readVerified(s.objectPath(KindChunk, h), h)
}

// HasChunk reports whether a chunk with this hash is already stored.
func (s *Store) HasChunk(h hash.CID) bool {
	_, err := os.Stat(s.objectPath(KindChunk, h))
	return err == nil
}

// ChunkSize returns the on-disk byte length of a stored chunk, without
// reading (and hash-verifying) its contents — a filesystem-metadata read,
// used by the dedup accounting in the repository façade.
func (s *Store) ChunkSize(h hash.CID) (int64, error) {
	info, err := os.Stat(s.objectPath(KindChunk, h))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return info.Size(), nil
}

// StoreBlob computes data's hash and writes it, returning the hash and
// whether it was newly written.
func (s *Store) StoreBlob(data []byte) (hash.CID, bool, error) {
	h := hash.FromBytes(data)
	wasNew, err := s.storeByOwnHash(KindBlob, h, data)
	return h, wasNew, err
}

// LoadBlob reads and hash-verifies a previously stored blob.
func (s *Store) LoadBlob(h hash.CID) ([]byte, error) {
	return readVerified(s.objectPath(KindBlob, h), h)
}

// HasBlob reports whether a blob with this hash is already stored.
func (s *Store) HasBlob(h hash.CID) bool {
	_, err := os.Stat(s.objectPath(KindBlob, h))
	return err == nil
}

// storeByOwnHash writes data at the path for h, skipping the write (but
// still reporting success) if an object is already filed there: writes are
// at-most-once, and re-storing identical content is a safe no-op.
func (s *Store) storeByOwnHash(k Kind, h hash.CID, data []byte) (wasNew bool, err error) {
	path := s.objectPath(k, h)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}
	if err := writeAtomic(path, data); err != nil {
		return false, err
	}
	return true, nil
}

// StoreManifest serializes and stores m, keyed by its own content hash.
func (s *Store) StoreManifest(m *manifest.Manifest) (hash.CID, error) {
	h, err := m.Hash()
	if err != nil {
		return hash.Zero, err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return hash.Zero, err
	}
	if _, err := s.storeByOwnHash(KindManifest, h, data); err != nil {
		return hash.Zero, err
	}
	return h, nil
}

// LoadManifest reads and hash-verifies a previously stored manifest.
func (s *Store) LoadManifest(h hash.CID) (*manifest.Manifest, error) {
	data, err := readVerified(s.objectPath(KindManifest, h), h)
	if err != nil {
		return nil, err
	}
	m := manifest.New()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("objectstore: decode manifest: %w", err)
	}
	return m, nil
}

// StoreCommit serializes and stores c, keyed by c.Hash (which the caller
// must already have computed via commit.New).
func (s *Store) StoreCommit(c *commit.Commit) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = s.storeByOwnHash(KindCommit, c.Hash, data)
	return err
}

// LoadCommit reads a previously stored commit, verifying that its own
// recorded hash matches the name it was filed under.
func (s *Store) LoadCommit(h hash.CID) (*commit.Commit, error) {
	path := s.objectPath(KindCommit, h)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var c commit.Commit
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("objectstore: decode commit: %w", err)
	}
	if actual := c.ComputeHash(); actual != h || c.Hash != h {
		return nil, &ChecksumMismatchError{Expected: h, Actual: actual}
	}
	return &c, nil
}

// HasCommit reports whether a commit with this hash is already stored.
func (s *Store) HasCommit(h hash.CID) bool {
	_, err := os.Stat(s.objectPath(KindCommit, h))
	return err == nil
}

// CommitPrefixMatches returns every commit hash on disk whose hex encoding
// begins with prefix, by walking the commits fan-out tree. Used by ref
// resolution to support abbreviated commit references.
func (s *Store) CommitPrefixMatches(prefix string) ([]hash.CID, error) {
	base := filepath.Join(s.root, KindCommit.dirName())
	var matches []hash.CID

	topLevel := prefix
	if len(topLevel) > 2 {
		topLevel = topLevel[:2]
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	for _, dirEnt := range entries {
		if !dirEnt.IsDir() {
			continue
		}
		if len(prefix) >= 2 && dirEnt.Name() != topLevel {
			continue
		}
		subEntries, err := os.ReadDir(filepath.Join(base, dirEnt.Name()))
		if err != nil {
			return nil, err
		}
		for _, f := range subEntries {
			full := dirEnt.Name() + f.Name()
			if len(full) >= len(prefix) && full[:len(prefix)] == prefix {
				h, err := hash.FromHex(full)
				if err != nil {
					continue
				}
				matches = append(matches, h)
			}
		}
	}
	return matches, nil
}

// CountObjects returns the number of objects stored under a kind.
func (s *Store) CountObjects(k Kind) (int, error) {
	return walkCount(filepath.Join(s.root, k.dirName()))
}

// TotalSize returns the total bytes stored under a kind.
func (s *Store) TotalSize(k Kind) (int64, error) {
	return walkSize(filepath.Join(s.root, k.dirName()))
}

func walkCount(dir string) (int, error) {
	var n int
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	for _, top := range entries {
		if !top.IsDir() {
			continue
		}
		subs, err := os.ReadDir(filepath.Join(dir, top.Name()))
		if err != nil {
			return 0, err
		}
		n += len(subs)
	}
	return n, nil
}

func walkSize(dir string) (int64, error) {
	var total int64
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	for _, top := range entries {
		if !top.IsDir() {
			continue
		}
		subDir := filepath.Join(dir, top.Name())
		subs, err := os.ReadDir(subDir)
		if err != nil {
			return 0, err
		}
		for _, f := range subs {
			info, err := f.Info()
			if err != nil {
				return 0, err
			}
			total += info.Size()
		}
	}
	return total, nil
}

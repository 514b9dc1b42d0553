package repository

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dits-vcs/dits/hash"
	"github.com/dits-vcs/dits/index"
)

// PathStatus categorizes a single working-tree path relative to the index
// and HEAD's manifest.
type PathStatus int

const (
	// StagedNew is staged for the first time (no HEAD entry).
	StagedNew PathStatus = iota
	// StagedModified is staged and differs from the HEAD entry.
	StagedModified
	// StagedDeleted is staged as removed.
	StagedDeleted
	// ModifiedUnstaged exists in the working tree, differs from what is
	// staged (or from HEAD if unstaged), but has not been re-added.
	ModifiedUnstaged
	// Untracked is present on disk but never staged nor committed.
	Untracked
	// MissingUnstaged is staged/committed but absent from the working tree
	// without having been staged as deleted.
	MissingUnstaged
)

func (s PathStatus) String() string {
	switch s {
	case StagedNew:
		return "staged_new"
	case StagedModified:
		return "staged_modified"
	case StagedDeleted:
		return "staged_deleted"
	case ModifiedUnstaged:
		return "modified"
	case Untracked:
		return "untracked"
	case MissingUnstaged:
		return "missing"
	default:
		return "unknown"
	}
}

// StatusEntry pairs a path with its categorized status.
type StatusEntry struct {
	Path   string
	Status PathStatus
}

// StatusResult is the full picture returned by Status: the staged changes
// waiting to be committed, plus unstaged working-tree drift.
type StatusResult struct {
	Staged   []StatusEntry
	Unstaged []StatusEntry
}

// Status compares the index, HEAD's manifest, and the working tree,
// categorizing every path: staged_new/modified/deleted for
// index-vs-HEAD divergence, modified/untracked for working-tree-vs-index
// drift, respecting .ditsignore throughout.
func (r *Repository) Status() (StatusResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result StatusResult

	headMF, err := r.headManifest()
	if err != nil {
		return result, err
	}

	for _, p := range r.idx.StagedPaths() {
		e := r.idx.Entries[p]
		switch e.Status {
		case index.Added:
			result.Staged = append(result.Staged, StatusEntry{p, StagedNew})
		case index.Modified:
			result.Staged = append(result.Staged, StatusEntry{p, StagedModified})
		case index.Deleted:
			result.Staged = append(result.Staged, StatusEntry{p, StagedDeleted})
		}
	}

	seen := make(map[string]bool, r.idx.Len())
	err = filepath.WalkDir(r.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(r.Root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel == ditsDirName {
				return filepath.SkipDir
			}
			return nil
		}
		if r.ignore.IsIgnored(rel) {
			return nil
		}
		seen[rel] = true

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		contentHash := hash.FromBytes(data)

		if staged, ok := r.idx.Get(rel); ok {
			if staged.Status != index.Deleted && staged.ContentHash != contentHash {
				result.Unstaged = append(result.Unstaged, StatusEntry{rel, ModifiedUnstaged})
			}
			return nil
		}
		if committed, ok := headMF.Get(rel); ok {
			if committed.ContentHash != contentHash {
				result.Unstaged = append(result.Unstaged, StatusEntry{rel, ModifiedUnstaged})
			}
			return nil
		}
		result.Unstaged = append(result.Unstaged, StatusEntry{rel, Untracked})
		return nil
	})
	if err != nil {
		return result, err
	}

	for _, p := range headMF.Paths() {
		if seen[p] {
			continue
		}
		if staged, ok := r.idx.Get(p); ok && staged.Status == index.Deleted {
			continue
		}
		result.Unstaged = append(result.Unstaged, StatusEntry{p, MissingUnstaged})
	}

	return result, nil
}

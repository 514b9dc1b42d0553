package repository

import (
	"time"

	"github.com/dits-vcs/dits/commit"
	"github.com/dits-vcs/dits/hash"
	"github.com/dits-vcs/dits/index"
)

// Commit seals the currently staged changes into a new commit: builds and
// stores a manifest from the index, builds and stores the commit object
// with HEAD's current commit as its parent, moves HEAD/the current branch
// forward, and resets the index to the committed state.
func (r *Repository) Commit(message string) (*commit.Commit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hasChanges := false
	for _, e := range r.idx.Entries {
		if e.Status != index.Unchanged {
			hasChanges = true
			break
		}
	}
	if !hasChanges {
		return nil, ErrNothingToCommit
	}

	m := r.idx.ToManifest()
	manifestHash, err := r.Objects.StoreManifest(m)
	if err != nil {
		return nil, err
	}

	var parent *hash.CID
	parentHash, hasParent, err := r.headCommitHash()
	if err != nil {
		return nil, err
	}
	if hasParent {
		parent = &parentHash
	}

	author := r.resolveAuthor()
	newCommit := commit.New(parent, manifestHash, message, author, time.Now())

	if err := r.Objects.StoreCommit(newCommit); err != nil {
		return nil, err
	}

	branch, err := r.Refs.CurrentBranch()
	if err != nil {
		return nil, err
	}
	if branch != "" {
		if err := r.Refs.SetBranchWithAction(branch, newCommit.Hash, "commit"); err != nil {
			return nil, err
		}
	} else {
		if err := r.Refs.SetHeadDetached(newCommit.Hash); err != nil {
			return nil, err
		}
	}

	r.idx = index.FromCommit(newCommit.Hash, m)
	if err := r.persistIndex(); err != nil {
		return nil, err
	}

	r.Logger.Debugf("committed %s (%d entries)", newCommit.Hash.Short(), m.Len())
	return newCommit, nil
}

// Log walks the primary-parent chain from HEAD, returning up to limit
// commits (0 means unlimited), most recent first.
func (r *Repository) Log(limit int) ([]*commit.Commit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok, err := r.headCommitHash()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var out []*commit.Commit
	current := h
	for {
		c, err := r.Objects.LoadCommit(current)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
		if limit > 0 && len(out) >= limit {
			break
		}
		if c.Parent == nil {
			break
		}
		current = *c.Parent
	}
	return out, nil
}

package repository

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dits-vcs/dits/chunk"
	"github.com/dits-vcs/dits/index"
	"github.com/dits-vcs/dits/manifest"
	"github.com/dits-vcs/dits/mp4"
)

// CheckoutResult summarizes the files materialized by a Checkout call.
type CheckoutResult struct {
	FilesRestored int
	BytesRestored uint64
}

// Checkout resolves ref (a branch name, tag, commit-hash prefix, HEAD, or
// a relative expression like HEAD~2) and materializes its manifest into
// the working tree, replacing HEAD and the index with the checked-out
// state. Files tracked by the previous HEAD but absent from the target
// manifest are removed from the working tree; anything untracked is left
// alone.
func (r *Repository) Checkout(ref string) (CheckoutResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result CheckoutResult

	target, err := r.Refs.Resolve(ref, r.Objects)
	if err != nil {
		return result, fmt.Errorf("repository: checkout %s: %w", ref, err)
	}

	c, err := r.Objects.LoadCommit(target)
	if err != nil {
		return result, err
	}
	targetManifest, err := r.Objects.LoadManifest(c.Manifest)
	if err != nil {
		return result, err
	}

	previousManifest, err := r.headManifest()
	if err != nil {
		return result, err
	}

	for _, path := range targetManifest.Paths() {
		entry, _ := targetManifest.Get(path)
		n, err := r.materialize(entry)
		if err != nil {
			return result, fmt.Errorf("repository: materialize %s: %w", path, err)
		}
		result.FilesRestored++
		result.BytesRestored += n
	}

	for _, path := range previousManifest.Paths() {
		if !targetManifest.Contains(path) {
			_ = os.Remove(filepath.Join(r.Root, path))
		}
	}

	branches, err := r.Refs.ListBranches()
	if err != nil {
		return result, err
	}
	attached := false
	for _, b := range branches {
		if b == ref {
			attached = true
			break
		}
	}
	if attached {
		if err := r.Refs.SetHeadBranch(ref); err != nil {
			return result, err
		}
	} else {
		if err := r.Refs.SetHeadDetached(target); err != nil {
			return result, err
		}
	}

	r.idx = index.FromCommit(target, targetManifest)
	if err := r.persistIndex(); err != nil {
		return result, err
	}

	r.Logger.Debugf("checked out %s: %d file(s), %d bytes", target.Short(), result.FilesRestored, result.BytesRestored)
	return result, nil
}

// materialize writes one manifest entry's content to its working-tree
// path, returning the number of bytes written.
func (r *Repository) materialize(e manifest.Entry) (uint64, error) {
	abs := filepath.Join(r.Root, e.Path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return 0, err
	}

	if e.Mode == manifest.Symlink {
		_ = os.Remove(abs)
		if err := os.Symlink(e.SymlinkTarget, abs); err != nil {
			return 0, err
		}
		return uint64(len(e.SymlinkTarget)), nil
	}

	switch {
	case e.IsMp4():
		return r.materializeMp4(abs, e)
	case e.IsGitText():
		return r.materializeText(abs, e)
	default:
		return r.materializeChunked(abs, e)
	}
}

func fileMode(e manifest.Entry) os.FileMode {
	if e.Mode == manifest.Executable {
		return 0o755
	}
	return 0o644
}

func (r *Repository) materializeText(abs string, e manifest.Entry) (uint64, error) {
	if r.Text == nil {
		return 0, fmt.Errorf("repository: text engine unavailable, cannot restore %s", e.Path)
	}
	data, err := r.Text.ReadBlob(e.GitOID)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(abs, data, fileMode(e)); err != nil {
		return 0, err
	}
	return uint64(len(data)), nil
}

func (r *Repository) materializeChunked(abs string, e manifest.Entry) (uint64, error) {
	f, err := os.OpenFile(abs, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fileMode(e))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var total uint64
	for _, ref := range e.Chunks {
		data, err := r.Cache.Get(ref.CID)
		if err != nil {
			return total, err
		}
		n, err := f.Write(data)
		if err != nil {
			return total, err
		}
		total += uint64(n)
	}
	return total, nil
}

func (r *Repository) materializeMp4(abs string, e manifest.Entry) (uint64, error) {
	meta := e.Mp4
	ftypData, err := r.Objects.LoadBlob(meta.FtypHash)
	if err != nil {
		return 0, err
	}
	moovData, err := r.Objects.LoadBlob(meta.MoovHash)
	if err != nil {
		return 0, err
	}

	otherAtoms := make([]mp4.OtherAtom, 0, len(meta.OtherAtoms))
	for _, sa := range meta.OtherAtoms {
		data := sa.InlineData
		if sa.Hash != nil {
			data, err = r.Objects.LoadBlob(*sa.Hash)
			if err != nil {
				return 0, err
			}
		}
		otherAtoms = append(otherAtoms, mp4.OtherAtom{Type: atomTypeFromString(sa.AtomType), Data: data})
	}

	structure := &mp4.Structure{}
	for _, span := range meta.StcoOffsets {
		structure.StcoLocations = append(structure.StcoLocations, mp4.StcoLocation{DataOffset: span.OffsetInMoov, EntryCount: span.EntryCount})
	}
	for _, span := range meta.Co64Offsets {
		structure.Co64Locations = append(structure.Co64Locations, mp4.Co64Location{DataOffset: span.OffsetInMoov, EntryCount: span.EntryCount})
	}

	d := &mp4.Deconstructed{
		Structure:    structure,
		FtypData:     ftypData,
		MoovData:     moovData,
		OtherAtoms:   otherAtoms,
		AtomOrder:    meta.AtomOrder,
		MdatDataSize: meta.MdatSize,
	}

	mdatReader, err := r.chunkMultiReader(e.Chunks)
	if err != nil {
		return 0, err
	}

	f, err := os.OpenFile(abs, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fileMode(e))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	return mp4.Reconstruct(f, d, mdatReader, meta.MdatSize)
}

// chunkMultiReader concatenates a sequence of chunk refs into a single
// reader, each chunk loaded through the multi-tier cache.
func (r *Repository) chunkMultiReader(refs []chunk.Ref) (io.Reader, error) {
	readers := make([]io.Reader, 0, len(refs))
	for _, ref := range refs {
		data, err := r.Cache.Get(ref.CID)
		if err != nil {
			return nil, err
		}
		readers = append(readers, bytes.NewReader(data))
	}
	return io.MultiReader(readers...), nil
}

func atomTypeFromString(s string) mp4.AtomType {
	var t mp4.AtomType
	copy(t[:], s)
	return t
}

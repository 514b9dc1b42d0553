package repository

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dits-vcs/dits/chunk"
	"github.com/dits-vcs/dits/classify"
	"github.com/dits-vcs/dits/hash"
	"github.com/dits-vcs/dits/index"
	"github.com/dits-vcs/dits/manifest"
	"github.com/dits-vcs/dits/mp4"
)

// mp4ContainerExtensions are the extensions worth attempting ISOBMFF
// structural parsing on. A file with one of these extensions that fails
// to parse (fragmented, truncated, not actually MP4) falls back to the
// generic-binary path rather than failing the add outright.
var mp4ContainerExtensions = map[string]bool{
	"mp4": true, "mov": true, "m4v": true, "3gp": true, "3g2": true, "m4a": true, "mj2": true,
}

// AddResult summarizes the files staged by a single Add call. The chunk
// counters accumulate across every file in the call: ChunksDeduped counts
// chunks that were already present in the store.
type AddResult struct {
	FilesAdded    int
	BytesAdded    uint64
	ChunksStored  int
	ChunksDeduped int
	BytesDeduped  uint64
	Skipped       []string // explicitly named paths that matched .ditsignore
}

// Add stages one or more files or directories. Directories are walked
// recursively, skipping .dits and anything matched by .ditsignore; an
// explicitly named ignored file is skipped (not an error) and recorded in
// Skipped.
func (r *Repository) Add(paths ...string) (AddResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result AddResult
	var files []string

	for _, p := range paths {
		abs := p
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(r.Root, p)
		}
		info, err := os.Lstat(abs)
		if err != nil {
			return result, fmt.Errorf("%w: %s", ErrFileNotFound, p)
		}

		if info.IsDir() {
			err := filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
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
				files = append(files, rel)
				return nil
			})
			if err != nil {
				return result, err
			}
			continue
		}

		rel, err := filepath.Rel(r.Root, abs)
		if err != nil {
			return result, err
		}
		rel = filepath.ToSlash(rel)
		if r.ignore.IsIgnored(rel) {
			result.Skipped = append(result.Skipped, rel)
			continue
		}
		files = append(files, rel)
	}

	sort.Strings(files)

	headMF, err := r.headManifest()
	if err != nil {
		return result, err
	}

	for _, rel := range files {
		size, err := r.addFile(rel, headMF, &result)
		if err != nil {
			return result, fmt.Errorf("repository: add %s: %w", rel, err)
		}
		result.FilesAdded++
		result.BytesAdded += size
	}

	if err := r.persistIndex(); err != nil {
		return result, err
	}
	r.Logger.Debugf("staged %d file(s), %d bytes", result.FilesAdded, result.BytesAdded)
	return result, nil
}

// chunkerConfig starts from the file category's preset and applies any
// sizes the repository config sets explicitly.
func (r *Repository) chunkerConfig(category classify.Category) chunk.Config {
	cfg := category.ChunkerPreset()
	if c := r.Config.Chunking; c.MinSize != 0 {
		cfg.MinSize = c.MinSize
	}
	if c := r.Config.Chunking; c.TargetSize != 0 {
		cfg.AvgSize = c.TargetSize
	}
	if c := r.Config.Chunking; c.MaxSize != 0 {
		cfg.MaxSize = c.MaxSize
	}
	return cfg
}

func (r *Repository) determineStatus(rel string, contentHash hash.CID, headMF *manifest.Manifest) index.Status {
	if existing, ok := headMF.Get(rel); ok {
		if existing.ContentHash == contentHash {
			return index.Unchanged
		}
		return index.Modified
	}
	return index.Added
}

// addFile classifies and stages a single working-tree path, routing it
// through the symlink, MP4, text, or generic-binary path as appropriate.
func (r *Repository) addFile(rel string, headMF *manifest.Manifest, result *AddResult) (uint64, error) {
	abs := filepath.Join(r.Root, rel)
	info, err := os.Lstat(abs)
	if err != nil {
		return 0, err
	}

	if info.Mode()&os.ModeSymlink != 0 {
		return r.addSymlink(rel, abs, info, headMF)
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(rel)), ".")
	if mp4ContainerExtensions[ext] {
		size, handled, err := r.addMp4(rel, abs, info, headMF, result)
		if err != nil {
			return 0, err
		}
		if handled {
			return size, nil
		}
		// Not a valid (or a fragmented) MP4 despite the extension: fall
		// through to the generic-binary path below.
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return 0, err
	}

	strategy := r.classifier.Classify(rel, data)
	contentHash := hash.FromBytes(data)
	status := r.determineStatus(rel, contentHash, headMF)

	if strategy == classify.GitText && r.Text != nil {
		oid, err := r.Text.StoreBlob(data)
		if err != nil {
			return 0, err
		}
		entry := index.NewText(rel, contentHash, uint64(len(data)), info.ModTime(), oid, status)
		if info.Mode()&0o111 != 0 {
			entry.Mode = manifest.Executable
		}
		r.idx.Stage(entry)
		return entry.Size, nil
	}

	if strategy == classify.GitText {
		strategy = classify.DitsChunk // text engine unavailable: degrade
	}

	chunks, chunkRefs, err := chunk.SplitAuto(data, r.chunkerConfig(classify.CategoryFromPath(rel)))
	if err != nil {
		return 0, err
	}
	if err := r.storeChunks(chunks, result); err != nil {
		return 0, err
	}

	entry := index.NewWithStrategy(rel, contentHash, uint64(len(data)), info.ModTime(), chunkRefs, strategy, status)
	if info.Mode()&0o111 != 0 {
		entry.Mode = manifest.Executable
	}
	r.idx.Stage(entry)
	return entry.Size, nil
}

func (r *Repository) addSymlink(rel, abs string, info os.FileInfo, headMF *manifest.Manifest) (uint64, error) {
	target, err := os.Readlink(abs)
	if err != nil {
		return 0, err
	}
	contentHash := hash.FromBytes([]byte(target))
	status := r.determineStatus(rel, contentHash, headMF)
	entry := index.NewSymlink(rel, contentHash, target, info.ModTime(), status)
	r.idx.Stage(entry)
	return entry.Size, nil
}

// addMp4 attempts to deconstruct path as an MP4 container (fast-start or
// not). It
// returns handled=false (not an error) when the file fails to parse as a
// non-fragmented MP4, signaling the caller to fall back to generic-binary
// chunking.
func (r *Repository) addMp4(rel, abs string, info os.FileInfo, headMF *manifest.Manifest, result *AddResult) (size uint64, handled bool, err error) {
	d, err := mp4.Deconstruct(abs)
	if err != nil {
		return 0, false, nil
	}

	fileData, err := os.ReadFile(abs)
	if err != nil {
		return 0, false, err
	}
	contentHash := hash.FromBytes(fileData)

	mdatPayload, err := readMdatPayload(abs, d)
	if err != nil {
		return 0, false, err
	}

	chunks, chunkRefs, err := chunk.SplitAuto(mdatPayload, r.chunkerConfig(classify.CategoryVideo))
	if err != nil {
		return 0, false, err
	}
	if err := r.storeChunks(chunks, result); err != nil {
		return 0, false, err
	}

	ftypHash, _, err := r.Objects.StoreBlob(d.FtypData)
	if err != nil {
		return 0, false, err
	}
	moovHash, _, err := r.Objects.StoreBlob(d.MoovData)
	if err != nil {
		return 0, false, err
	}

	otherAtoms, err := r.storedAtoms(d)
	if err != nil {
		return 0, false, err
	}

	meta := manifest.Mp4Metadata{
		FtypHash:            ftypHash,
		MoovHash:            moovHash,
		MoovSize:            uint64(len(d.MoovData)),
		MdatSize:            d.MdatDataSize,
		NeedsOffsetPatching: d.HasNormalizedOffsets(),
		AtomOrder:           d.AtomOrder,
		OtherAtoms:          otherAtoms,
	}
	// Table locations are recorded relative to moov's own start: the stored
	// moov blob is a standalone buffer, so reconstruction and VFS synthesis
	// patch it with Moov.Start == 0.
	moovStart := d.Structure.Moov.Start
	for _, loc := range d.Structure.StcoLocations {
		meta.StcoOffsets = append(meta.StcoOffsets, manifest.OffsetSpan{OffsetInMoov: loc.DataOffset - moovStart, EntryCount: loc.EntryCount})
	}
	for _, loc := range d.Structure.Co64Locations {
		meta.Co64Offsets = append(meta.Co64Offsets, manifest.OffsetSpan{OffsetInMoov: loc.DataOffset - moovStart, EntryCount: loc.EntryCount})
	}

	status := r.determineStatus(rel, contentHash, headMF)
	entry := index.NewMp4(rel, contentHash, uint64(len(fileData)), info.ModTime(), chunkRefs, meta, status)
	r.idx.Stage(entry)
	return entry.Size, true, nil
}

// storeChunks writes every chunk to the object store, tallying which were
// new placements and which were dedup hits.
func (r *Repository) storeChunks(chunks []chunk.Chunk, result *AddResult) error {
	for _, c := range chunks {
		wasNew, err := r.Objects.StoreChunk(c.CID, c.Data)
		if err != nil {
			return err
		}
		if wasNew {
			result.ChunksStored++
		} else {
			result.ChunksDeduped++
			result.BytesDeduped += uint64(len(c.Data))
		}
	}
	return nil
}

// storedAtoms returns the meta.OtherAtoms list for a deconstruction,
// storing any atom at or above the inline threshold as a blob. A failed
// store fails the whole add: a missing ancillary atom would desync the
// recorded atom order and corrupt every later reconstruction.
const inlineAtomThreshold = 64

func (r *Repository) storedAtoms(d *mp4.Deconstructed) ([]manifest.StoredAtom, error) {
	var out []manifest.StoredAtom
	for _, a := range d.OtherAtoms {
		if len(a.Data) < inlineAtomThreshold {
			out = append(out, manifest.StoredAtom{AtomType: a.Type.String(), InlineData: a.Data})
			continue
		}
		h, _, err := r.Objects.StoreBlob(a.Data)
		if err != nil {
			return nil, fmt.Errorf("repository: store %s atom: %w", a.Type, err)
		}
		out = append(out, manifest.StoredAtom{AtomType: a.Type.String(), Hash: &h})
	}
	return out, nil
}

// readMdatPayload reads just the mdat atom's payload bytes (excluding its
// own header), the portion of the file subject to content-defined chunking.
func readMdatPayload(path string, d *mp4.Deconstructed) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	payload := make([]byte, d.MdatDataSize)
	if _, err := f.Seek(int64(d.MdatDataOffset), 0); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(f, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

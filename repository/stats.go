package repository

import (
	"github.com/dits-vcs/dits/hash"
	"github.com/dits-vcs/dits/manifest"
	"github.com/dits-vcs/dits/objectstore"
)

// DedupStats is the dedup accounting over a commit: how much
// logical content a manifest describes versus how many physical bytes are
// actually stored once duplicate chunks are counted once.
type DedupStats struct {
	FileCount          int
	LogicalSize        uint64
	PhysicalSize       uint64
	SavedBytes         uint64
	TotalChunkCount    int
	UniqueChunkCount   int
	SharedChunkCount   int
	DedupRatio         float64 // physical / logical; 0 when logical is 0
	SavingsPercentage  float64 // saved / logical * 100; 0 when logical is 0
	UniquePercentage   float64 // unique / total * 100; 0 when total is 0
}

// RepoStats summarizes the object counts and sizes backing a repository,
// independent of any single commit.
type RepoStats struct {
	ChunkCount    int
	BlobCount     int
	ManifestCount int
	CommitCount   int
	ChunkBytes    int64
	BlobBytes     int64
}

// Stats reports aggregate object-store counts and sizes for the whole
// repository, across every commit it has ever stored.
func (r *Repository) Stats() (RepoStats, error) {
	var s RepoStats
	var err error

	if s.ChunkCount, err = r.Objects.CountObjects(objectstore.KindChunk); err != nil {
		return s, err
	}
	if s.BlobCount, err = r.Objects.CountObjects(objectstore.KindBlob); err != nil {
		return s, err
	}
	if s.ManifestCount, err = r.Objects.CountObjects(objectstore.KindManifest); err != nil {
		return s, err
	}
	if s.CommitCount, err = r.Objects.CountObjects(objectstore.KindCommit); err != nil {
		return s, err
	}
	if s.ChunkBytes, err = r.Objects.TotalSize(objectstore.KindChunk); err != nil {
		return s, err
	}
	if s.BlobBytes, err = r.Objects.TotalSize(objectstore.KindBlob); err != nil {
		return s, err
	}
	return s, nil
}

// ComputeRepoDedupStats computes the dedup accounting over a
// commit's manifest: logical_size = Σ entry.size, unique_chunks = the set
// of distinct chunk CIDs referenced, physical_size = Σ store.chunk_size
// over that set, saved_bytes = max(0, logical-physical).
func (r *Repository) ComputeRepoDedupStats(commitCID hash.CID) (DedupStats, error) {
	c, err := r.Objects.LoadCommit(commitCID)
	if err != nil {
		return DedupStats{}, err
	}
	m, err := r.Objects.LoadManifest(c.Manifest)
	if err != nil {
		return DedupStats{}, err
	}
	return dedupStatsForManifest(r.Objects, m)
}

// ComputeFileDedupStats computes the same dedup accounting restricted to a
// single tracked path within commitCID's manifest.
func (r *Repository) ComputeFileDedupStats(commitCID hash.CID, path string) (DedupStats, error) {
	c, err := r.Objects.LoadCommit(commitCID)
	if err != nil {
		return DedupStats{}, err
	}
	m, err := r.Objects.LoadManifest(c.Manifest)
	if err != nil {
		return DedupStats{}, err
	}
	e, ok := m.Get(path)
	if !ok {
		return DedupStats{}, objectstore.ErrNotFound
	}
	single := manifest.New()
	single.Add(e)
	return dedupStatsForManifest(r.Objects, single)
}

func dedupStatsForManifest(store *objectstore.Store, m *manifest.Manifest) (DedupStats, error) {
	stats := DedupStats{
		FileCount:       m.Len(),
		LogicalSize:     m.TotalSize(),
		TotalChunkCount: m.TotalChunks(),
	}

	unique := m.UniqueChunkHashes()
	stats.UniqueChunkCount = len(unique)
	if stats.TotalChunkCount > 0 {
		stats.SharedChunkCount = stats.TotalChunkCount - stats.UniqueChunkCount
	}

	var physical uint64
	for _, cid := range unique {
		size, err := store.ChunkSize(cid)
		if err != nil {
			return stats, err
		}
		physical += uint64(size)
	}
	stats.PhysicalSize = physical

	if stats.LogicalSize > physical {
		stats.SavedBytes = stats.LogicalSize - physical
	}
	if stats.LogicalSize > 0 {
		stats.DedupRatio = float64(stats.PhysicalSize) / float64(stats.LogicalSize)
		stats.SavingsPercentage = float64(stats.SavedBytes) / float64(stats.LogicalSize) * 100
	}
	if stats.TotalChunkCount > 0 {
		stats.UniquePercentage = float64(stats.UniqueChunkCount) / float64(stats.TotalChunkCount) * 100
	}
	return stats, nil
}

// Package chunk implements content-defined chunking: splitting a byte
// stream into variable-size, content-addressed pieces whose boundaries are
// a function of the bytes themselves, so a localized edit displaces only a
// handful of chunks rather than shifting every boundary downstream.
package chunk

import (
	"bytes"
	"io"

	chunker "github.com/ipfs/boxo/chunker"
	"golang.org/x/sync/errgroup"

	"github.com/dits-vcs/dits/hash"
)

// parallelThreshold is the input size above which boundary spans are hashed
// concurrently instead of sequentially; below it the goroutine/channel
// overhead outweighs the gain.
const parallelThreshold = 1 << 20 // 1 MiB

// Config holds the chunker's size parameters, in bytes.
type Config struct {
	MinSize uint32
	AvgSize uint32
	MaxSize uint32
}

// Default targets a 64 KiB average chunk with a 16 KiB floor and 256 KiB
// ceiling — the baseline profile when no file-category hint is available.
func Default() Config {
	return Config{MinSize: 16 << 10, AvgSize: 64 << 10, MaxSize: 256 << 10}
}

// Small favors many small chunks, maximizing dedup granularity for
// small/text-like payloads at the cost of more per-chunk overhead.
func Small() Config {
	return Config{MinSize: 1 << 10, AvgSize: 4 << 10, MaxSize: 16 << 10}
}

// Media targets large media payloads (video, audio, large images) where
// boundary overhead should be amortized over bigger spans.
func Media() Config {
	return Config{MinSize: 64 << 10, AvgSize: 256 << 10, MaxSize: 1 << 20}
}

// Project is tuned for NLE/VFX project files and general source trees: a
// middle ground between Small and Default.
func Project() Config {
	return Config{MinSize: 4 << 10, AvgSize: 16 << 10, MaxSize: 64 << 10}
}

// MaxDedup pushes chunk size down further still, trading overhead for the
// best achievable cross-version dedup ratio.
func MaxDedup() Config {
	return Config{MinSize: 2 << 10, AvgSize: 8 << 10, MaxSize: 32 << 10}
}

// Fast minimizes the number of chunks (and thus CPU spent chunking) for
// bulk archive-like payloads where dedup granularity matters less.
func Fast() Config {
	return Config{MinSize: 256 << 10, AvgSize: 1 << 20, MaxSize: 4 << 20}
}

// ForSize picks a preset from input size alone, independent of any
// file-category hint (see classify.Category.ChunkerPreset for the
// category-aware selector).
func ForSize(size int64) Config {
	switch {
	case size <= 64*1024:
		return Project()
	case size <= 10*1024*1024:
		return Default()
	default:
		return Media()
	}
}

// Chunk is an immutable, content-addressed piece of a larger byte stream.
type Chunk struct {
	CID  hash.CID
	Data []byte
}

// Size returns the chunk's payload length in bytes.
func (c Chunk) Size() int {
	return len(c.Data)
}

// Verify recomputes the chunk's hash and reports whether it matches CID.
func (c Chunk) Verify() bool {
	return hash.FromBytes(c.Data) == c.CID
}

// Ref is an ordered reference to a chunk within a logical byte stream. The
// offset is informational, used for partial-range reads; reconstruction
// invariants rely only on order and size.
type Ref struct {
	CID    hash.CID
	Offset uint64
	Size   uint64
}

// boundary is an internal (start, length) span discovered during the
// sequential scan, before hashing is applied.
type boundary struct {
	start int
	data  []byte
}

// Split slices data into an ordered list of content-defined chunks.
func Split(data []byte, cfg Config) ([]Chunk, error) {
	bounds, err := boundaries(data, cfg)
	if err != nil {
		return nil, err
	}
	chunks := make([]Chunk, len(bounds))
	for i, b := range bounds {
		chunks[i] = Chunk{CID: hash.FromBytes(b.data), Data: b.data}
	}
	return chunks, nil
}

// SplitWithRefs slices data the same way as Split but also returns the
// ordered ChunkRefs with offsets absolute within data.
func SplitWithRefs(data []byte, cfg Config) ([]Chunk, []Ref, error) {
	bounds, err := boundaries(data, cfg)
	if err != nil {
		return nil, nil, err
	}
	chunks := make([]Chunk, len(bounds))
	refs := make([]Ref, len(bounds))
	for i, b := range bounds {
		c := hash.FromBytes(b.data)
		chunks[i] = Chunk{CID: c, Data: b.data}
		refs[i] = Ref{CID: c, Offset: uint64(b.start), Size: uint64(len(b.data))}
	}
	return chunks, refs, nil
}

// SplitParallel behaves exactly like Split: boundary detection is always
// sequential (the algorithm requires it), but the per-span hashing runs
// concurrently, one goroutine per span, whatever the input size (SplitAuto
// is the entry point that applies parallelThreshold). The result is bitwise
// identical to Split for the same input and config.
func SplitParallel(data []byte, cfg Config) ([]Chunk, error) {
	bounds, err := boundaries(data, cfg)
	if err != nil {
		return nil, err
	}
	return hashBoundaries(bounds)
}

// SplitWithRefsParallel is the Ref-returning counterpart to SplitParallel.
func SplitWithRefsParallel(data []byte, cfg Config) ([]Chunk, []Ref, error) {
	bounds, err := boundaries(data, cfg)
	if err != nil {
		return nil, nil, err
	}
	chunks, err := hashBoundaries(bounds)
	if err != nil {
		return nil, nil, err
	}
	refs := make([]Ref, len(bounds))
	for i, b := range bounds {
		refs[i] = Ref{CID: chunks[i].CID, Offset: uint64(b.start), Size: uint64(len(b.data))}
	}
	return chunks, refs, nil
}

// SplitAuto chooses the sequential or parallel hashing path based on input
// size, per the "performance guidance" threshold.
func SplitAuto(data []byte, cfg Config) ([]Chunk, []Ref, error) {
	if len(data) >= parallelThreshold {
		return SplitWithRefsParallel(data, cfg)
	}
	return SplitWithRefs(data, cfg)
}

func hashBoundaries(bounds []boundary) ([]Chunk, error) {
	chunks := make([]Chunk, len(bounds))
	g := new(errgroup.Group)
	for i, b := range bounds {
		i, b := i, b
		g.Go(func() error {
			chunks[i] = Chunk{CID: hash.FromBytes(b.data), Data: b.data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chunks, nil
}

// boundaries runs the content-defined rolling-hash scan once over data and
// returns the (start, bytes) spans it found, without hashing them. Empty
// input yields no spans; input at or below MinSize yields exactly one span
// covering the whole input, matching the edge cases in the design.
func boundaries(data []byte, cfg Config) ([]boundary, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if uint32(len(data)) <= cfg.MinSize {
		return []boundary{{start: 0, data: data}}, nil
	}

	spl := chunker.NewRabinMinMax(bytes.NewReader(data), uint64(cfg.MinSize), uint64(cfg.AvgSize), uint64(cfg.MaxSize))

	var bounds []boundary
	pos := 0
	for {
		span, err := spl.NextBytes()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		bounds = append(bounds, boundary{start: pos, data: span})
		pos += len(span)
	}
	return bounds, nil
}

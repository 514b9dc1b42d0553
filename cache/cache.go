// Package cache implements the multi-tier chunk cache: an in-memory L1, an
// on-disk L2, and the object store as the authoritative L3, probed in
// order on every read with opportunistic promotion to faster tiers.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dits-vcs/dits/dlog"
	"github.com/dits-vcs/dits/hash"
	"github.com/dits-vcs/dits/objectstore"
)

// minChunkAssumption is the smallest chunk size the L1 entry-count ceiling
// plans for. The count ceiling is a backstop only; the binding constraint
// on L1 is the byte budget tracked in l1Bytes.
const minChunkAssumption = 1 << 10

// Config sizes and tunes the cache's tiers.
type Config struct {
	L1MaxBytes      int64
	L2MaxBytes      int64
	L2Path          string
	PrefetchEnabled bool
	PrefetchCount   int
}

// Small returns a config sized for modest working sets: 64 MiB L1, 512 MiB
// L2.
func Small(l2Path string) Config {
	return Config{L1MaxBytes: 64 * 1024 * 1024, L2MaxBytes: 512 * 1024 * 1024, L2Path: l2Path, PrefetchEnabled: true, PrefetchCount: 4}
}

// Large returns a config sized for large media repositories: 256 MiB L1,
// 4 GiB L2.
func Large(l2Path string) Config {
	return Config{L1MaxBytes: 256 * 1024 * 1024, L2MaxBytes: 4 * 1024 * 1024 * 1024, L2Path: l2Path, PrefetchEnabled: true, PrefetchCount: 4}
}

// Stats tallies cache probes by where they were satisfied. Its rate
// methods are pure functions over the counters: they never touch the
// tiers themselves.
type Stats struct {
	L1Hits       int64
	L2Hits       int64
	L3Hits       int64
	Misses       int64
	BytesRead    int64
	BytesFetched int64
}

// L1HitRate returns the fraction of probes satisfied directly from L1.
func (s Stats) L1HitRate() float64 {
	total := s.L1Hits + s.L2Hits + s.L3Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.L1Hits) / float64(total)
}

// OverallHitRate returns the fraction of probes satisfied from any tier
// without falling through to a genuine miss.
func (s Stats) OverallHitRate() float64 {
	total := s.L1Hits + s.L2Hits + s.L3Hits + s.Misses
	if total == 0 {
		return 0
	}
	hits := s.L1Hits + s.L2Hits + s.L3Hits
	return float64(hits) / float64(total)
}

// Cache is a read-through cache for content-addressed chunks, backed
// ultimately by an object store.
type Cache struct {
	cfg     Config
	l1      *lru.Cache[hash.CID, []byte]
	objects *objectstore.Store
	log     *dlog.Logger

	l1Mu    sync.Mutex
	l1Bytes int64 // decremented by the lru evict callback, which only fires under l1Mu

	mu      sync.Mutex
	l2Size  int64
	statsMu sync.Mutex
	stats   Stats

	inflight sync.Map // hash.CID -> *sync.Once, dedupes concurrent prefetches
}

// New builds a Cache over objects. L1 is weighted by byte size: inserts
// evict the oldest entries until the total payload fits cfg.L1MaxBytes.
// The lru's own entry-count ceiling is sized for the smallest plausible
// chunks so the byte budget is what actually binds.
func New(cfg Config, objects *objectstore.Store) (*Cache, error) {
	capacity := int(cfg.L1MaxBytes / minChunkAssumption)
	if capacity < 1 {
		capacity = 1
	}
	c := &Cache{cfg: cfg, objects: objects, log: dlog.Default().With("component", "cache")}
	l1, err := lru.NewWithEvict[hash.CID, []byte](capacity, func(_ hash.CID, data []byte) {
		c.l1Bytes -= int64(len(data))
	})
	if err != nil {
		return nil, fmt.Errorf("cache: create L1: %w", err)
	}
	c.l1 = l1
	if cfg.L2Path != "" {
		if err := os.MkdirAll(cfg.L2Path, 0o755); err != nil {
			return nil, fmt.Errorf("cache: create L2 dir: %w", err)
		}
		c.l2Size = currentL2Size(cfg.L2Path)
	}
	return c, nil
}

// putL1 inserts a chunk and evicts oldest entries until the byte total is
// back under budget. All lru mutations happen under l1Mu, so the evict
// callback's l1Bytes adjustment needs no lock of its own.
func (c *Cache) putL1(h hash.CID, data []byte) {
	c.l1Mu.Lock()
	defer c.l1Mu.Unlock()
	if c.l1.Contains(h) {
		return
	}
	c.l1.Add(h, data)
	c.l1Bytes += int64(len(data))
	for c.l1Bytes > c.cfg.L1MaxBytes {
		if _, _, ok := c.l1.RemoveOldest(); !ok {
			break
		}
	}
}

// Get returns the bytes for h, probing L1, then L2, then the object
// store, and populating faster tiers on any hit below L1.
func (c *Cache) Get(h hash.CID) ([]byte, error) {
	if data, ok := c.l1.Get(h); ok {
		c.recordHit(&c.stats.L1Hits, len(data))
		return data, nil
	}

	if c.cfg.L2Path != "" {
		if data, ok := c.getL2(h); ok {
			c.putL1(h, data)
			c.recordHit(&c.stats.L2Hits, len(data))
			return data, nil
		}
	}

	data, err := c.objects.LoadChunk(h)
	if err != nil {
		c.statsMu.Lock()
		c.stats.Misses++
		c.statsMu.Unlock()
		return nil, err
	}

	c.putL1(h, data)
	_ = c.putL2(h, data)
	c.log.Debugf("L3 fetch %s (%d bytes)", h.Short(), len(data))
	c.recordHit(&c.stats.L3Hits, len(data))
	c.statsMu.Lock()
	c.stats.BytesFetched += int64(len(data))
	c.statsMu.Unlock()
	return data, nil
}

func (c *Cache) recordHit(counter *int64, n int) {
	c.statsMu.Lock()
	*counter++
	c.stats.BytesRead += int64(n)
	c.statsMu.Unlock()
}

// SetLogger replaces the cache's logger, so a host can route its tier
// hit/miss lines alongside its own.
func (c *Cache) SetLogger(l *dlog.Logger) {
	if l != nil {
		c.log = l
	}
}

// Stats returns a snapshot of the cache's hit/miss counters.
func (c *Cache) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

func (c *Cache) l2Dir(h hash.CID) string {
	return filepath.Join(c.cfg.L2Path, h.ObjectPath())
}

func (c *Cache) getL2(h hash.CID) ([]byte, bool) {
	data, err := os.ReadFile(c.l2Dir(h))
	if err != nil {
		return nil, false
	}
	if hash.FromBytes(data) != h {
		return nil, false
	}
	return data, true
}

// putL2 writes a chunk to the L2 directory, silently dropping the write
// (not an error) if it would exceed the configured budget. There is no
// eviction: once full, L2 simply stops accepting new entries until
// something is removed out of band.
func (c *Cache) putL2(h hash.CID, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.l2Size+int64(len(data)) > c.cfg.L2MaxBytes {
		c.log.Warnf("L2 full, dropping write for %s (%d bytes)", h.Short(), len(data))
		return nil
	}
	path := c.l2Dir(h)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	c.l2Size += int64(len(data))
	return nil
}

func currentL2Size(root string) int64 {
	var total int64
	top, err := os.ReadDir(root)
	if err != nil {
		return 0
	}
	for _, t := range top {
		if !t.IsDir() {
			continue
		}
		subs, err := os.ReadDir(filepath.Join(root, t.Name()))
		if err != nil {
			continue
		}
		for _, f := range subs {
			if info, err := f.Info(); err == nil {
				total += info.Size()
			}
		}
	}
	return total
}

// Prefetch opportunistically warms L1 for a set of hashes, skipping ones
// already cached or already in flight. It never blocks the caller: each
// fetch runs in its own goroutine, capped at cfg.PrefetchCount in-flight
// fetches per call.
func (c *Cache) Prefetch(hashes []hash.CID) {
	if !c.cfg.PrefetchEnabled {
		return
	}
	limit := c.cfg.PrefetchCount
	if limit <= 0 {
		limit = 4
	}

	var sem = make(chan struct{}, limit)
	for _, h := range hashes {
		if c.l1.Contains(h) {
			continue
		}
		once := &sync.Once{}
		actual, loaded := c.inflight.LoadOrStore(h, once)
		if loaded {
			continue
		}
		o := actual.(*sync.Once)
		go func(h hash.CID, o *sync.Once) {
			sem <- struct{}{}
			defer func() { <-sem; c.inflight.Delete(h) }()
			o.Do(func() {
				_, _ = c.Get(h)
			})
		}(h, o)
	}
}

package pool

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/codectx/internal/chunkmodel"
	"github.com/Aman-CERP/codectx/internal/config"
)

// cacheEntry is one validated, stored embedding (spec.md §3 EmbeddingCacheEntry).
type cacheEntry struct {
	embedding    []float32
	hitCount     int64
	lastAccessed time.Time
}

// score computes the LRU-score used for eviction ranking: staler and
// less-hit entries score higher and are evicted first (spec.md §4.1).
func (e *cacheEntry) score(now time.Time) float64 {
	age := now.Sub(e.lastAccessed).Seconds()
	return age / float64(e.hitCount+1)
}

// SharedCache is the pool-owned embedding cache keyed by content hash
// (spec.md §4.1, §5: owned by the pool, fine-grained RW-locked, single-flight
// eviction, never returns a torn/partial entry).
type SharedCache struct {
	mu             sync.RWMutex
	entries        map[string]*cacheEntry
	maxEntries     int
	evictThreshold float64
	evictPercent   float64

	evicting atomic.Bool
}

// NewSharedCache builds a cache from the operator-facing cache configuration.
func NewSharedCache(cfg config.CacheConfig) *SharedCache {
	max := cfg.MaxEntries
	if max <= 0 {
		max = 10_000
	}
	threshold := cfg.EvictThreshold
	if threshold <= 0 {
		threshold = 0.8
	}
	percent := cfg.EvictPercent
	if percent <= 0 {
		percent = 0.2
	}
	return &SharedCache{
		entries:        make(map[string]*cacheEntry, max),
		maxEntries:     max,
		evictThreshold: threshold,
		evictPercent:   percent,
	}
}

// ContentHash returns the SHA-256 of normalised (trimmed) chunk content,
// the cache key per spec.md §3.
func ContentHash(content string) string {
	normalized := strings.TrimSpace(content)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Get returns a validated embedding for content, or ok=false on a miss.
// Every returned entry has already passed the finite/dimension check at
// insertion time, so a hit is always fully usable (no torn reads).
func (c *SharedCache) Get(content string) ([]float32, bool) {
	key := ContentHash(content)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	c.mu.Lock()
	entry.hitCount++
	entry.lastAccessed = time.Now()
	c.mu.Unlock()

	out := make([]float32, len(entry.embedding))
	copy(out, entry.embedding)
	return out, true
}

// Put inserts a freshly computed embedding, rejecting anything that fails
// validation (spec.md §3: "cache never stores an entry whose embedding
// fails the finite/dimension check").
func (c *SharedCache) Put(content string, embedding []float32) {
	if err := chunkmodel.ValidateEmbedding(embedding); err != nil {
		return
	}
	key := ContentHash(content)
	stored := make([]float32, len(embedding))
	copy(stored, embedding)

	c.mu.Lock()
	c.entries[key] = &cacheEntry{embedding: stored, hitCount: 0, lastAccessed: time.Now()}
	size := len(c.entries)
	c.mu.Unlock()

	if float64(size) > c.evictThreshold*float64(c.maxEntries) {
		c.evictAsync()
	}
}

// Len returns the current entry count.
func (c *SharedCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// MaxEntries returns the configured capacity.
func (c *SharedCache) MaxEntries() int {
	return c.maxEntries
}

// Clear empties the cache (used on explicit reindex).
func (c *SharedCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*cacheEntry, c.maxEntries)
	c.mu.Unlock()
}

// evictAsync runs eviction in the background, guarded so only one
// eviction is ever in flight (spec.md §4.1: "eviction is single-flight").
func (c *SharedCache) evictAsync() {
	if !c.evicting.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer c.evicting.Store(false)
		c.evict()
	}()
}

func (c *SharedCache) evict() {
	now := time.Now()

	c.mu.RLock()
	type scored struct {
		key   string
		score float64
	}
	ranked := make([]scored, 0, len(c.entries))
	for k, e := range c.entries {
		ranked = append(ranked, scored{key: k, score: e.score(now)})
	}
	c.mu.RUnlock()

	if len(ranked) == 0 {
		return
	}

	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	n := int(float64(len(ranked)) * c.evictPercent)
	if n <= 0 {
		n = 1
	}
	if n > len(ranked) {
		n = len(ranked)
	}

	c.mu.Lock()
	for _, r := range ranked[:n] {
		delete(c.entries, r.key)
	}
	c.mu.Unlock()
}

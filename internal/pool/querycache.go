package pool

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// queryCacheSize bounds the number of distinct query-time embeddings kept,
// separate from the batch content cache's spec-mandated eviction policy —
// query embeddings are looked up by exact text and don't need LRU-score
// ranking, just bounded recency (grounded on the teacher's CachedEmbedder).
const queryCacheSize = 1000

// queryCache caches embed_one results by exact query text, avoiding a
// worker round-trip for repeated identical queries within a process
// lifetime.
type queryCache struct {
	cache *lru.Cache[string, []float32]
}

func newQueryCache() *queryCache {
	c, _ := lru.New[string, []float32](queryCacheSize)
	return &queryCache{cache: c}
}

func (q *queryCache) Get(text string) ([]float32, bool) {
	v, ok := q.cache.Get(text)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, true
}

func (q *queryCache) Put(text string, embedding []float32) {
	stored := make([]float32, len(embedding))
	copy(stored, embedding)
	q.cache.Add(text, stored)
}

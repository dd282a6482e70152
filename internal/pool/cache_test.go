package pool

import (
	"testing"

	"github.com/Aman-CERP/codectx/internal/chunkmodel"
	"github.com/Aman-CERP/codectx/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validVector() []float32 {
	v := make([]float32, chunkmodel.EmbeddingDimension)
	v[0] = 1.0
	return v
}

func TestSharedCache_PutGetRoundTrip(t *testing.T) {
	c := NewSharedCache(config.CacheConfig{MaxEntries: 100, EvictThreshold: 0.8, EvictPercent: 0.2})

	c.Put("hello world", validVector())

	got, ok := c.Get("hello world")
	require.True(t, ok)
	assert.Equal(t, validVector(), got)
}

func TestSharedCache_RejectsInvalidEmbedding(t *testing.T) {
	c := NewSharedCache(config.CacheConfig{MaxEntries: 100})

	c.Put("bad", []float32{1, 2, 3}) // wrong dimension

	_, ok := c.Get("bad")
	assert.False(t, ok)
}

func TestSharedCache_NormalizesContentForKey(t *testing.T) {
	c := NewSharedCache(config.CacheConfig{MaxEntries: 100})
	c.Put("  trimmed  ", validVector())

	_, ok := c.Get("trimmed")
	assert.True(t, ok)
}

func TestSharedCache_EvictsUnderPressure(t *testing.T) {
	c := NewSharedCache(config.CacheConfig{MaxEntries: 10, EvictThreshold: 0.8, EvictPercent: 0.5})

	for i := 0; i < 9; i++ {
		c.Put(string(rune('a'+i)), validVector())
	}

	// Crossing the eviction threshold (>8 entries) triggers an async,
	// single-flight eviction; wait for it synchronously via evict().
	c.evict()

	assert.Less(t, c.Len(), 9)
}

func TestSharedCache_MissReturnsFalse(t *testing.T) {
	c := NewSharedCache(config.CacheConfig{MaxEntries: 10})
	_, ok := c.Get("never stored")
	assert.False(t, ok)
}

package vectorstore

import (
	"path/filepath"
	"testing"

	"github.com/Aman-CERP/codectx/internal/chunkmodel"
	"github.com/Aman-CERP/codectx/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withEmbedding(t *testing.T, c *chunkmodel.CodeChunk) *chunkmodel.CodeChunk {
	t.Helper()
	v := make([]float32, chunkmodel.EmbeddingDimension)
	v[0] = 1
	clone := c.Clone()
	clone.Embedding = v
	return clone
}

// TestApplyDelta_Invariant2 covers invariant 2: after apply_delta, removed
// ids are absent, added ids are present with their new embedding, updated
// ids keep the prior embedding.
func TestApplyDelta_Invariant2(t *testing.T) {
	s := newTestStore(t)

	keep := withEmbedding(t, mustChunk(t, "a.go", 1, 2, "keep-me"))
	gone := withEmbedding(t, mustChunk(t, "a.go", 3, 4, "remove-me"))
	require.NoError(t, s.UpsertChunks([]*chunkmodel.CodeChunk{keep, gone}))

	newChunk := withEmbedding(t, mustChunk(t, "a.go", 5, 6, "new-chunk"))
	newChunk.Embedding[1] = 9 // distinguish from a zero-valued accidental match

	err := s.ApplyDelta(Delta{
		Added:   []*chunkmodel.CodeChunk{newChunk},
		Updated: []*chunkmodel.CodeChunk{{ChunkID: keep.ChunkID, FilePath: keep.FilePath}},
		Removed: []string{gone.ChunkID},
	})
	require.NoError(t, err)

	chunks := s.Chunks()
	byID := map[string]*chunkmodel.CodeChunk{}
	for _, c := range chunks {
		byID[c.ChunkID] = c
	}

	_, stillPresent := byID[gone.ChunkID]
	assert.False(t, stillPresent)

	added, ok := byID[newChunk.ChunkID]
	require.True(t, ok)
	assert.Equal(t, newChunk.Embedding, added.Embedding)

	updated, ok := byID[keep.ChunkID]
	require.True(t, ok)
	assert.Equal(t, keep.Embedding, updated.Embedding) // prior embedding preserved
}

// TestApplyDelta_Idempotent covers invariant 8-adjacent property: replaying
// the same delta on the snapshot it was computed from is a no-op the
// second time (spec.md invariant 2, idempotence).
func TestApplyDelta_Idempotent(t *testing.T) {
	s := newTestStore(t)
	c := withEmbedding(t, mustChunk(t, "a.go", 1, 2, "x"))
	d := Delta{Added: []*chunkmodel.CodeChunk{c}}

	require.NoError(t, s.ApplyDelta(d))
	firstLen := s.Len()
	require.NoError(t, s.ApplyDelta(d))
	assert.Equal(t, firstLen, s.Len())
}

// TestApplyDelta_RejectsConcurrentMutation covers spec.md §5: concurrent
// deltas on the same store are an error. TryLock means a genuinely
// concurrent call (not a sequential one) is required to observe this, so
// this test exercises the lock directly.
func TestApplyDelta_RejectsConcurrentMutation(t *testing.T) {
	s := newTestStore(t)
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	err := s.ApplyDelta(Delta{})
	require.Error(t, err)
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := config.StoreConfig{SnapshotPath: filepath.Join(dir, "vectors.json")}
	model := Model{Name: "test-model", Dimension: chunkmodel.EmbeddingDimension}

	s1 := NewStore(cfg, model, false, nil)
	require.NoError(t, s1.Initialize())
	c := withEmbedding(t, mustChunk(t, "a.go", 1, 2, "round-trip"))
	require.NoError(t, s1.UpsertChunks([]*chunkmodel.CodeChunk{c}))

	s2 := NewStore(cfg, model, false, nil)
	require.NoError(t, s2.Initialize())

	require.Equal(t, s1.Len(), s2.Len())
	got := s2.ChunksForFile("a.go")
	require.Len(t, got, 1)
	assert.Equal(t, c.ChunkID, got[0].ChunkID)
	assert.Equal(t, c.Embedding, got[0].Embedding)
}

func TestSearch_ExcludesZeroVectorsAndAppliesFilter(t *testing.T) {
	s := newTestStore(t)
	good := withEmbedding(t, mustChunk(t, "pkg/a.go", 1, 2, "good"))
	degraded := mustChunk(t, "pkg/b.go", 1, 2, "degraded") // no embedding set
	other := withEmbedding(t, mustChunk(t, "other/c.go", 1, 2, "other"))

	require.NoError(t, s.UpsertChunks([]*chunkmodel.CodeChunk{good, degraded, other}))

	results := s.Search(good.Embedding, 10, SearchFilter{PathGlobs: []string{"pkg/**"}})
	require.Len(t, results, 1)
	assert.Equal(t, good.ChunkID, results[0].Chunk.ChunkID)
}

func TestClearIndex_WipesStore(t *testing.T) {
	s := newTestStore(t)
	c := withEmbedding(t, mustChunk(t, "a.go", 1, 2, "x"))
	require.NoError(t, s.UpsertChunks([]*chunkmodel.CodeChunk{c}))
	require.Equal(t, 1, s.Len())

	require.NoError(t, s.ClearIndex())
	assert.Equal(t, 0, s.Len())
}

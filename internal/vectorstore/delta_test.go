package vectorstore

import (
	"path/filepath"
	"testing"

	"github.com/Aman-CERP/codectx/internal/chunkmodel"
	"github.com/Aman-CERP/codectx/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustChunk(t *testing.T, path string, start, end int, content string) *chunkmodel.CodeChunk {
	t.Helper()
	c, err := chunkmodel.NewCodeChunk(path, start, end, chunkmodel.ChunkTypeBlock, content)
	require.NoError(t, err)
	return c
}

func TestCompareChunks_ClassifiesByChunkID(t *testing.T) {
	a := mustChunk(t, "x.go", 1, 2, "alpha")
	b := mustChunk(t, "x.go", 3, 4, "beta")
	c := mustChunk(t, "x.go", 5, 6, "gamma")

	diff := CompareChunks([]*chunkmodel.CodeChunk{a, b}, []*chunkmodel.CodeChunk{b, c})

	require.Len(t, diff.ToAdd, 1)
	assert.Equal(t, c.ChunkID, diff.ToAdd[0].ChunkID)
	require.Len(t, diff.ToKeep, 1)
	assert.Equal(t, b.ChunkID, diff.ToKeep[0].ChunkID)
	require.Len(t, diff.ToRemove, 1)
	assert.Equal(t, a.ChunkID, diff.ToRemove[0])
}

// TestCalculateFileDelta_S1 covers S1: a three-file repo where modifying
// one file changes its fingerprint; the unmodified two are omitted.
func TestCalculateFileDelta_S1(t *testing.T) {
	s := newTestStore(t)

	err := s.RecordFileFingerprint(FileInfo{Path: "a.go", ModTimeUnix: 1, ContentHash: "h1"})
	require.NoError(t, err)
	err = s.RecordFileFingerprint(FileInfo{Path: "b.go", ModTimeUnix: 1, ContentHash: "h2"})
	require.NoError(t, err)
	err = s.RecordFileFingerprint(FileInfo{Path: "c.go", ModTimeUnix: 1, ContentHash: "h3"})
	require.NoError(t, err)

	changes := s.CalculateFileDelta([]FileInfo{
		{Path: "a.go", ModTimeUnix: 1, ContentHash: "h1"},
		{Path: "b.go", ModTimeUnix: 2, ContentHash: "h2-modified"},
		{Path: "c.go", ModTimeUnix: 1, ContentHash: "h3"},
	})

	require.Len(t, changes, 1)
	assert.Equal(t, "b.go", changes[0].Path)
	assert.Equal(t, ChangeModified, changes[0].Kind)
}

func TestCalculateFileDelta_DetectsAddedAndDeleted(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RecordFileFingerprint(FileInfo{Path: "old.go", ModTimeUnix: 1, ContentHash: "h"}))

	changes := s.CalculateFileDelta([]FileInfo{
		{Path: "new.go", ModTimeUnix: 1, ContentHash: "h2"},
	})

	kinds := map[string]ChangeKind{}
	for _, c := range changes {
		kinds[c.Path] = c.Kind
	}
	assert.Equal(t, ChangeAdded, kinds["new.go"])
	assert.Equal(t, ChangeDeleted, kinds["old.go"])
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	cfg := config.StoreConfig{SnapshotPath: filepath.Join(dir, "vectors.json")}
	s := NewStore(cfg, Model{Name: "test", Dimension: chunkmodel.EmbeddingDimension}, false, nil)
	require.NoError(t, s.Initialize())
	return s
}

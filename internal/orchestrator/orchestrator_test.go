package orchestrator

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/codectx/internal/chunkmodel"
	"github.com/Aman-CERP/codectx/internal/config"
	"github.com/Aman-CERP/codectx/internal/vectorstore"
)

// fakeScanner serves an in-memory file set, mutable between Index calls so
// tests can simulate add/modify/delete cycles.
type fakeScanner struct {
	files map[string][]byte
}

func newFakeScanner() *fakeScanner { return &fakeScanner{files: make(map[string][]byte)} }

func (f *fakeScanner) ListFiles(ctx context.Context) ([]FileRecord, error) {
	var out []FileRecord
	for path, content := range f.files {
		out = append(out, FileRecord{Path: path, ModTimeUnix: int64(len(content)), ContentHash: hashContent(content)})
	}
	return out, nil
}

func (f *fakeScanner) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return f.files[path], nil
}

// fakeChunker treats each line as its own chunk, so a single edited line
// inside an otherwise-unchanged file produces exactly one changed chunk id
// and leaves the rest byte-identical — the shape S1 requires.
type fakeChunker struct{}

func (fakeChunker) Chunk(ctx context.Context, file *chunkmodel.FileInput) ([]*chunkmodel.CodeChunk, error) {
	lines := strings.Split(string(file.Content), "\n")
	out := make([]*chunkmodel.CodeChunk, 0, len(lines))
	for i, line := range lines {
		c, err := chunkmodel.NewCodeChunk(file.Path, i+1, i+1, chunkmodel.ChunkTypeBlock, line)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (fakeChunker) SupportedExtensions() []string { return nil }

// fakePool assigns a deterministic non-zero embedding derived from content
// length, so two embeds of byte-identical content produce byte-identical
// vectors (mirrors the real cache's guarantee without needing the pool).
type fakePool struct{ calls int }

func (p *fakePool) EmbedBatch(ctx context.Context, chunks []*chunkmodel.CodeChunk) ([]*chunkmodel.CodeChunk, error) {
	p.calls++
	out := make([]*chunkmodel.CodeChunk, len(chunks))
	for i, c := range chunks {
		cp := c.Clone()
		vec := make([]float32, chunkmodel.EmbeddingDimension)
		for j := range vec {
			vec[j] = float32(len(c.Content)%97) + 1
		}
		cp.Embedding = vec
		out[i] = cp
	}
	return out, nil
}

func newTestStore(t *testing.T) *vectorstore.Store {
	t.Helper()
	dir := t.TempDir()
	s := vectorstore.NewStore(config.StoreConfig{SnapshotPath: filepath.Join(dir, "vectors.json")},
		vectorstore.Model{Name: "test", Dimension: chunkmodel.EmbeddingDimension}, false, nil)
	require.NoError(t, s.Initialize())
	return s
}

func TestIndex_Full_EmbedsAllFilesAndUpserts(t *testing.T) {
	scn := newFakeScanner()
	scn.files["a.go"] = []byte("package a")
	scn.files["b.go"] = []byte("package b")

	store := newTestStore(t)
	pool := &fakePool{}
	o := New(scn, fakeChunker{}, pool, store, nil, nil)

	res, err := o.Index(context.Background(), ModeFull)
	require.NoError(t, err)
	assert.Equal(t, 2, res.FilesSeen)
	assert.Len(t, store.Chunks(), 2)
	assert.Equal(t, 1, pool.calls)
}

// TestIndex_S1_IncrementalDelta reproduces spec.md §8's scenario S1: index a
// three-file repo, modify one file with one chunk changed and one chunk
// unchanged, run incremental; the delta has exactly 1 added, 1 updated, 1
// removed, and the unchanged chunk's embedding is byte-identical to the
// prior snapshot.
func TestIndex_S1_IncrementalDelta(t *testing.T) {
	scn := newFakeScanner()
	scn.files["keep1.go"] = []byte("package keep1")
	scn.files["keep2.go"] = []byte("package keep2")
	scn.files["modify.go"] = []byte("line one\nline two")

	store := newTestStore(t)
	pool := &fakePool{}
	o := New(scn, fakeChunker{}, pool, store, nil, nil)

	_, err := o.Index(context.Background(), ModeFull)
	require.NoError(t, err)

	before := store.ChunksForFile("modify.go")
	require.Len(t, before, 2)
	var unchangedBefore *chunkmodel.CodeChunk
	for _, c := range before {
		if c.Content == "line one" {
			unchangedBefore = c
		}
	}
	require.NotNil(t, unchangedBefore)
	priorEmbedding := append([]float32(nil), unchangedBefore.Embedding...)

	scn.files["modify.go"] = []byte("line one\nline two EDITED")

	res, err := o.Index(context.Background(), ModeIncremental)
	require.NoError(t, err)

	assert.Len(t, res.Delta.Added, 1)
	assert.Len(t, res.Delta.Updated, 1)
	assert.Len(t, res.Delta.Removed, 1)

	after := store.ChunksForFile("modify.go")
	require.Len(t, after, 2)
	var unchangedAfter *chunkmodel.CodeChunk
	for _, c := range after {
		if c.Content == "line one" {
			unchangedAfter = c
		}
	}
	require.NotNil(t, unchangedAfter)
	assert.Equal(t, priorEmbedding, unchangedAfter.Embedding)
	assert.Equal(t, unchangedBefore.ChunkID, unchangedAfter.ChunkID)
}

// TestIndex_Incremental_AddAndDeleteWholeFiles covers whole-file add/delete,
// complementing S1's single-file edit.
func TestIndex_Incremental_AddAndDeleteWholeFiles(t *testing.T) {
	scn := newFakeScanner()
	scn.files["keep.go"] = []byte("package keep")
	scn.files["delete.go"] = []byte("package delete")

	store := newTestStore(t)
	pool := &fakePool{}
	o := New(scn, fakeChunker{}, pool, store, nil, nil)

	_, err := o.Index(context.Background(), ModeFull)
	require.NoError(t, err)

	delete(scn.files, "delete.go")
	scn.files["add.go"] = []byte("package add")

	res, err := o.Index(context.Background(), ModeIncremental)
	require.NoError(t, err)

	assert.Len(t, res.Delta.Added, 1)
	assert.Len(t, res.Delta.Removed, 1)
	assert.Empty(t, store.ChunksForFile("delete.go"))
	assert.Len(t, store.ChunksForFile("add.go"), 1)
}

func TestIndex_Incremental_NoChangesIsNoOp(t *testing.T) {
	scn := newFakeScanner()
	scn.files["a.go"] = []byte("package a")

	store := newTestStore(t)
	pool := &fakePool{}
	o := New(scn, fakeChunker{}, pool, store, nil, nil)

	_, err := o.Index(context.Background(), ModeFull)
	require.NoError(t, err)

	res, err := o.Index(context.Background(), ModeIncremental)
	require.NoError(t, err)
	assert.Empty(t, res.Delta.Added)
	assert.Empty(t, res.Delta.Updated)
	assert.Empty(t, res.Delta.Removed)
}

func TestIndex_Reindex_ClearsBeforeFull(t *testing.T) {
	scn := newFakeScanner()
	scn.files["a.go"] = []byte("package a")

	store := newTestStore(t)
	pool := &fakePool{}
	o := New(scn, fakeChunker{}, pool, store, nil, nil)

	_, err := o.Index(context.Background(), ModeFull)
	require.NoError(t, err)

	scn.files["b.go"] = []byte("package b")
	res, err := o.Index(context.Background(), ModeReindex)
	require.NoError(t, err)
	assert.Equal(t, ModeFull, res.Mode)
	assert.Len(t, store.Chunks(), 2)
}

func TestCheckpoint_ReflectsCompletion(t *testing.T) {
	scn := newFakeScanner()
	scn.files["a.go"] = []byte("package a")

	store := newTestStore(t)
	o := New(scn, fakeChunker{}, &fakePool{}, store, nil, nil)

	_, err := o.Index(context.Background(), ModeFull)
	require.NoError(t, err)

	cp := o.Checkpoint()
	assert.Equal(t, StageComplete, cp.Stage)
	assert.Equal(t, 1, cp.FilesProcessed)
}

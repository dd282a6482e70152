package pool

import (
	"context"
	"testing"
	"time"

	"github.com/Aman-CERP/codectx/internal/chunkmodel"
	"github.com/Aman-CERP/codectx/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChunks(n int) []*chunkmodel.CodeChunk {
	out := make([]*chunkmodel.CodeChunk, n)
	for i := range out {
		c, err := chunkmodel.NewCodeChunk("file.go", 1, 2, chunkmodel.ChunkTypeBlock, "content-"+string(rune('a'+i)))
		if err != nil {
			panic(err)
		}
		out[i] = c
	}
	return out
}

func newTestPool(t *testing.T, spawner Spawner) *Pool {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Pool.BatchStart = 5
	cfg.Pool.BatchMin = 5
	p := NewPool(cfg, spawner, 1, nil)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx, "test cleanup")
	})
	return p
}

func TestPool_EmbedBatch_PreservesOrderAndIdentity(t *testing.T) {
	p := newTestPool(t, &fakeSpawner{next: alwaysInitOK})

	chunks := testChunks(4)
	result, err := p.EmbedBatch(context.Background(), chunks)
	require.NoError(t, err)
	require.Len(t, result, len(chunks))

	for i, c := range chunks {
		assert.Equal(t, c.ChunkID, result[i].ChunkID)
		require.NoError(t, chunkmodel.ValidateEmbedding(result[i].Embedding))
	}
}

func TestPool_EmbedBatch_SecondRunHitsCache(t *testing.T) {
	p := newTestPool(t, &fakeSpawner{next: alwaysInitOK})

	chunks := testChunks(5)
	_, err := p.EmbedBatch(context.Background(), chunks)
	require.NoError(t, err)

	before := p.cache.Len()
	result, err := p.EmbedBatch(context.Background(), chunks)
	require.NoError(t, err)
	assert.Equal(t, before, p.cache.Len()) // no new entries: every chunk was a cache hit
	for _, c := range result {
		require.NoError(t, chunkmodel.ValidateEmbedding(c.Embedding))
	}
}

func TestPool_EmbedOne_CachesByExactText(t *testing.T) {
	p := newTestPool(t, &fakeSpawner{next: alwaysInitOK})

	vec1, err := p.EmbedOne(context.Background(), "what does foo do")
	require.NoError(t, err)
	vec2, err := p.EmbedOne(context.Background(), "what does foo do")
	require.NoError(t, err)

	assert.Equal(t, vec1, vec2)
}

func TestPool_WorkerCrashTriggersRestartAndRecovery(t *testing.T) {
	spawner := &fakeSpawner{next: func(id int) behavior {
		if id == 0 {
			return crashOnFirstBatch()
		}
		return alwaysInitOK(id)
	}}
	p := newTestPool(t, spawner)

	chunks := testChunks(3)
	result, err := p.EmbedBatch(context.Background(), chunks)
	require.NoError(t, err)
	require.Len(t, result, 3)
	for _, c := range result {
		require.NoError(t, chunkmodel.ValidateEmbedding(c.Embedding))
		assert.False(t, c.Degraded)
	}
}

func TestPool_Shutdown_IsIdempotent(t *testing.T) {
	p := newTestPool(t, &fakeSpawner{next: alwaysInitOK})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx, "first"))
	require.NoError(t, p.Shutdown(ctx, "second"))
}

func TestPool_RejectsNewWorkAfterShutdownBegins(t *testing.T) {
	p := newTestPool(t, &fakeSpawner{next: alwaysInitOK})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx, "shutting down"))

	_, err := p.EmbedBatch(context.Background(), testChunks(1))
	assert.Error(t, err)
}

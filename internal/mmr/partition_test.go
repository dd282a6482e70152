package mmr

import (
	"testing"

	"github.com/Aman-CERP/codectx/internal/chunkmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTouches_TwoWaySubstring(t *testing.T) {
	assert.True(t, touches("internal/pool/worker.go", "worker.go"))
	assert.True(t, touches("worker", "internal/pool/worker.go"))
	assert.False(t, touches("internal/pool/worker.go", "unrelated"))
}

func TestTouches_MinLengthGate(t *testing.T) {
	// Below the 3-char floor, even an exact substring match is rejected.
	assert.False(t, touches("ab", "ab"))
	assert.False(t, touches("internal/pool/ab.go", "ab"))
}

func TestPartition_SortsCriticalByDescendingRelevance(t *testing.T) {
	lo, err := chunkmodel.NewCodeChunk("hot.go", 1, 2, chunkmodel.ChunkTypeFunction, "lo")
	require.NoError(t, err)
	lo.RelevanceScore = score(0.2)
	hi, err := chunkmodel.NewCodeChunk("hot.go", 3, 4, chunkmodel.ChunkTypeFunction, "hi")
	require.NoError(t, err)
	hi.RelevanceScore = score(0.9)

	cs := CriticalSet{FilePaths: []string{"hot.go"}}
	critical, _ := partition([]*chunkmodel.CodeChunk{lo, hi}, cs)

	require.Len(t, critical, 2)
	assert.Equal(t, hi.ChunkID, critical[0].ChunkID)
	assert.Equal(t, lo.ChunkID, critical[1].ChunkID)
}

package pool

import (
	"testing"

	"github.com/Aman-CERP/codectx/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchSizer_StartsAtConfiguredStart(t *testing.T) {
	b := NewBatchSizer(config.DefaultConfig().Pool)
	assert.Equal(t, 400, b.Current())
}

func TestBatchSizer_GrowsOnSustainedHigherThroughput(t *testing.T) {
	b := NewBatchSizer(config.DefaultConfig().Pool)

	// Feed a rising throughput trend; each successive sample should exceed
	// the weighted average enough to trigger growth.
	for i := 0; i < 5; i++ {
		size := b.Current()
		b.RecordSuccess(size, 1000, 0, size*(2+i))
	}

	assert.Greater(t, b.Current(), 400)
	assert.LessOrEqual(t, b.Current(), 800)
}

func TestBatchSizer_ConvergesAfterStableRun(t *testing.T) {
	b := NewBatchSizer(config.DefaultConfig().Pool)

	for i := 0; i < stableConvergenceCount+1; i++ {
		size := b.Current()
		b.RecordSuccess(size, 1000, 0, size) // constant throughput => stable
	}

	assert.False(t, b.optimizing)
}

func TestBatchSizer_MemoryConstrainedShrinksImmediately(t *testing.T) {
	b := NewBatchSizer(config.DefaultConfig().Pool)
	before := b.Current()

	b.OnMemoryConstrained()

	assert.Less(t, b.Current(), before)
	assert.GreaterOrEqual(t, b.Current(), b.min)
}

func TestBatchSizer_NeverExceedsBounds(t *testing.T) {
	b := NewBatchSizer(config.PoolConfig{BatchMin: 200, BatchMax: 800, BatchStep: 100, BatchStart: 780})

	for i := 0; i < 10; i++ {
		size := b.Current()
		b.RecordSuccess(size, 1000, 0, size*10) // always "faster" to keep growing
	}

	assert.LessOrEqual(t, b.Current(), 800)
}

func TestBatchSizer_RecoveryModeHalvesOnRepeatedFailure(t *testing.T) {
	b := NewBatchSizer(config.DefaultConfig().Pool)

	first := b.RecordFailure(400)
	require.Equal(t, defaultRecoverySize, first)

	second := b.RecordFailure(first)
	assert.Equal(t, defaultRecoverySize/2, second)
	assert.True(t, b.InRecovery())
}

func TestBatchSizer_RecoveryModeFloorsAtMinimum(t *testing.T) {
	b := NewBatchSizer(config.DefaultConfig().Pool)

	size := b.RecordFailure(400)
	for i := 0; i < 10; i++ {
		size = b.RecordFailure(size)
	}

	assert.Equal(t, minRecoverySize, size)
}

func TestBatchSizer_SuccessExitsRecoveryMode(t *testing.T) {
	b := NewBatchSizer(config.DefaultConfig().Pool)

	b.RecordFailure(400)
	require.True(t, b.InRecovery())

	b.RecordSuccess(defaultRecoverySize, 500, 0, defaultRecoverySize)

	assert.False(t, b.InRecovery())
}

func TestBatchSizer_OscillationGuardPinsSize(t *testing.T) {
	b := NewBatchSizer(config.DefaultConfig().Pool)
	b.sizeHistory = []int{400, 500, 400, 500, 400, 500}

	assert.True(t, b.detectOscillation())
}

// seedFlatWindow pre-populates the sliding window with 19 samples at a
// constant throughput so the next RecordSuccess call's weighted average
// sits close to that constant, making the margin crossed by the new
// sample easy to control precisely.
func seedFlatWindow(b *BatchSizer, throughput float64) {
	for i := 0; i < windowSize-1; i++ {
		b.window = append(b.window, batchMeasurement{throughput: throughput, success: true})
	}
}

func TestBatchSizer_ContinuingShrinkUsesSmallerMargin(t *testing.T) {
	// Already shrinking (lastDirection == -1): a further ~7% throughput
	// drop is past the 5% continuing-shrink margin and should shrink again.
	b := NewBatchSizer(config.DefaultConfig().Pool)
	b.lastDirection = -1
	seedFlatWindow(b, 100)
	before := b.current

	b.RecordSuccess(b.current, 100000, 0, 9237) // throughput ~92.37, ~7% below the window average

	assert.Less(t, b.current, before)
	assert.Equal(t, -1, b.lastDirection)
}

func TestBatchSizer_ShrinkAfterGrowUsesLargerMargin(t *testing.T) {
	// Reversing out of a grow (lastDirection == 1): the same ~7% drop is
	// short of the 10% reversal margin and must NOT shrink yet.
	b := NewBatchSizer(config.DefaultConfig().Pool)
	b.lastDirection = 1
	seedFlatWindow(b, 100)
	before := b.current

	b.RecordSuccess(b.current, 100000, 0, 9237) // throughput ~92.37, ~7% below the window average

	assert.Equal(t, before, b.current)
	assert.Equal(t, 1, b.lastDirection)
}

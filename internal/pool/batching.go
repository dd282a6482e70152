package pool

import (
	"sync"

	"github.com/Aman-CERP/codectx/internal/config"
)

const (
	windowSize             = 20
	defaultRecoverySize    = 50
	minRecoverySize        = 10
	stableConvergenceCount = 5
	shrinkConfirmCount     = 2
)

// batchMeasurement is one sliding-window sample (spec.md §4.1).
type batchMeasurement struct {
	size         int
	durationMs   int64
	memoryDeltaB int64
	throughput   float64
	success      bool
}

// BatchSizer implements the adaptive, hysteresis-guarded batch sizing
// described in spec.md §4.1: it grows/shrinks a shared batch size based on
// a weighted throughput trend, guards against oscillation, and drops into
// a failure-recovery mode on consecutive failures.
type BatchSizer struct {
	mu sync.Mutex

	min, max, step, current int

	window        []batchMeasurement
	sizeHistory   []int
	optimizing    bool
	optimalSize   int
	lastDirection int // +1 grow, -1 shrink, 0 none yet
	stableRun     int
	shrinkConfirm int

	recoveryMode        bool
	consecutiveFailures int
	recoverySize        int
	preRecoverySize     int
}

// NewBatchSizer builds a sizer from the operator-facing pool configuration.
func NewBatchSizer(cfg config.PoolConfig) *BatchSizer {
	start := cfg.BatchStart
	if start == 0 {
		start = 400
	}
	min, max, step := cfg.BatchMin, cfg.BatchMax, cfg.BatchStep
	if min == 0 {
		min = 200
	}
	if max == 0 {
		max = 800
	}
	if step == 0 {
		step = 100
	}
	return &BatchSizer{
		min:          min,
		max:          max,
		step:         step,
		current:      start,
		optimizing:   true,
		recoverySize: defaultRecoverySize,
	}
}

// Current returns the batch size to use for the next dispatch.
func (b *BatchSizer) Current() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.recoveryMode {
		return b.recoverySize
	}
	return b.current
}

// InRecovery reports whether the sizer is currently in failure-recovery mode.
func (b *BatchSizer) InRecovery() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.recoveryMode
}

// RecordSuccess records a completed batch and, while optimizing, adjusts
// the current size per the hysteresis rules in spec.md §4.1.
func (b *BatchSizer) RecordSuccess(size int, durationMs int64, memoryDeltaB int64, processed int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.recoveryMode {
		b.consecutiveFailures = 0
		restored := b.preRecoverySize
		if restored == 0 {
			restored = size
		}
		cap2x := 2 * b.recoverySize
		if restored > cap2x {
			restored = cap2x
		}
		b.current = b.clamp(restored)
		b.recoveryMode = false
		b.recoverySize = defaultRecoverySize
		return
	}

	throughput := 0.0
	if durationMs > 0 {
		throughput = float64(processed) / (float64(durationMs) / 1000.0)
	}

	b.window = append(b.window, batchMeasurement{
		size: size, durationMs: durationMs, memoryDeltaB: memoryDeltaB,
		throughput: throughput, success: true,
	})
	if len(b.window) > windowSize {
		b.window = b.window[len(b.window)-windowSize:]
	}

	b.sizeHistory = append(b.sizeHistory, b.current)
	if len(b.sizeHistory) > 6 {
		b.sizeHistory = b.sizeHistory[len(b.sizeHistory)-6:]
	}

	if !b.optimizing {
		return
	}

	if b.detectOscillation() {
		b.optimalSize = b.current
		b.optimizing = false
		return
	}

	avg := b.weightedThroughput()
	if avg <= 0 {
		return
	}

	hGrow := 0.05
	if b.lastDirection == -1 {
		hGrow = 0.10 // growing right after shrinking reverses direction, needs a larger margin
	}
	hShrink := 0.05
	if b.lastDirection == 1 {
		hShrink = 0.10 // shrinking right after growing reverses direction, needs a larger margin
	}

	switch {
	case throughput > avg*(1+hGrow):
		b.current = b.clamp(b.current + b.step)
		b.lastDirection = 1
		b.shrinkConfirm = 0
		b.stableRun = 0
	case throughput < avg*(1-hShrink):
		b.current = b.clamp(b.current - b.step)
		b.shrinkConfirm++
		b.lastDirection = -1
		b.stableRun = 0
		if b.shrinkConfirm >= shrinkConfirmCount {
			b.optimalSize = b.current
			b.optimizing = false
		}
	default:
		b.stableRun++
		if b.stableRun >= stableConvergenceCount {
			b.optimalSize = b.current
			b.optimizing = false
		}
	}
}

// RecordFailure enters or deepens recovery mode and returns the next batch
// size to retry with.
func (b *BatchSizer) RecordFailure(size int) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.recoveryMode {
		b.preRecoverySize = b.current
		b.recoveryMode = true
		b.recoverySize = defaultRecoverySize
	} else {
		b.recoverySize /= 2
		if b.recoverySize < minRecoverySize {
			b.recoverySize = minRecoverySize
		}
	}
	b.consecutiveFailures++
	return b.recoverySize
}

// OnMemoryConstrained immediately shrinks the current size under memory
// pressure, independent of the throughput trend (spec.md §4.1).
func (b *BatchSizer) OnMemoryConstrained() {
	b.mu.Lock()
	defer b.mu.Unlock()

	reduction := b.step
	if pct := int(0.2 * float64(b.current)); pct > reduction {
		reduction = pct
	}
	b.current = b.clamp(b.current - reduction)
}

func (b *BatchSizer) clamp(size int) int {
	if size < b.min {
		return b.min
	}
	if size > b.max {
		return b.max
	}
	return size
}

// weightedThroughput averages the window's throughput samples with linear
// weights toward the most recent entries.
func (b *BatchSizer) weightedThroughput() float64 {
	if len(b.window) == 0 {
		return 0
	}
	var weightedSum, weightTotal float64
	for i, m := range b.window {
		weight := float64(i + 1) // later entries (higher index) weigh more
		weightedSum += m.throughput * weight
		weightTotal += weight
	}
	if weightTotal == 0 {
		return 0
	}
	return weightedSum / weightTotal
}

// detectOscillation reports whether the last 6 recorded sizes contain at
// least 3 local extrema (spec.md §4.1 oscillation guard).
func (b *BatchSizer) detectOscillation() bool {
	h := b.sizeHistory
	if len(h) < 3 {
		return false
	}
	extrema := 0
	for i := 1; i < len(h)-1; i++ {
		if (h[i] > h[i-1] && h[i] > h[i+1]) || (h[i] < h[i-1] && h[i] < h[i+1]) {
			extrema++
		}
	}
	return extrema >= 3
}

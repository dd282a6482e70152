package resource

import (
	"runtime"
	"time"
)

// loadAverageSample estimates memory/CPU pressure from Go's own runtime
// statistics scaled by logical core count, when no OS-specific probe is
// available. This is deliberately conservative: it only needs to be
// directionally correct enough to gate pool growth, not precise.
func loadAverageSample() Sample {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	cores := float64(runtime.NumCPU())
	goroutines := float64(runtime.NumGoroutine())

	// Heuristic: goroutine count relative to 100-per-core is treated as full
	// CPU saturation; this tracks dispatch pressure from the pool itself
	// when no system-wide reading exists.
	cpuFraction := goroutines / (cores * 100)
	if cpuFraction > 1 {
		cpuFraction = 1
	}

	// Heuristic: heap-in-use relative to a conservative 4GB assumed ceiling.
	const assumedCeiling = 4 * 1024 * 1024 * 1024
	memFraction := float64(mem.HeapInuse) / float64(assumedCeiling)
	if memFraction > 1 {
		memFraction = 1
	}

	return Sample{
		MemoryUsedFraction: memFraction,
		CPUUsedFraction:    cpuFraction,
		Fallback:           true,
		At:                 time.Now(),
	}
}

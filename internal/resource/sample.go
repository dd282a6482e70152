// Package resource samples system memory and CPU utilization for the
// embedding pool's adaptive sizing decisions (spec.md §4.1). Sampling is
// OS-specific (parses /proc/meminfo on Linux, `vm_stat`/`sysctl` on Darwin,
// `wmic` on Windows) with a fallback heuristic built from Go runtime
// statistics (goroutines per core, heap in use; the system load average is
// not read), and is read-only: a
// sampling failure degrades to a fallback estimate and never blocks the
// pool (spec.md §5).
package resource

import (
	"context"
	"log/slog"
	"runtime"
	"time"
)

// Sample is a single point-in-time resource reading.
type Sample struct {
	// MemoryUsedFraction is system RSS as a fraction of total memory, in [0,1].
	MemoryUsedFraction float64
	// CPUUsedFraction is system CPU utilization, in [0,1].
	CPUUsedFraction float64
	// Fallback marks a sample produced by the runtime-statistics heuristic
	// (loadAverageSample) because
	// the OS-specific probe failed or is unsupported on this platform.
	Fallback bool
	At       time.Time
}

// Sampler reads current system memory/CPU utilization.
type Sampler interface {
	Sample(ctx context.Context) Sample
}

// NewSampler returns the sampler appropriate for runtime.GOOS, wrapped so
// that probe failures degrade to the runtime-statistics fallback instead of
// propagating an error (spec.md §5: "sampling failures degrade to fallback
// estimates and never block the pool").
func NewSampler() Sampler {
	return &fallbackSampler{primary: newOSSampler()}
}

type fallbackSampler struct {
	primary Sampler
}

func (f *fallbackSampler) Sample(ctx context.Context) Sample {
	if f.primary != nil {
		if s, ok := trySample(ctx, f.primary); ok {
			return s
		}
	}
	slog.Warn("resource: OS probe unavailable, using runtime-statistics fallback", slog.String("os", runtime.GOOS))
	return loadAverageSample()
}

// trySample recovers from a panicking or erroring primary sampler and
// reports whether the sample is usable (both fractions within [0,1]).
func trySample(ctx context.Context, s Sampler) (sample Sample, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	sample = s.Sample(ctx)
	if sample.MemoryUsedFraction < 0 || sample.MemoryUsedFraction > 1 {
		return Sample{}, false
	}
	if sample.CPUUsedFraction < 0 || sample.CPUUsedFraction > 1 {
		return Sample{}, false
	}
	return sample, true
}

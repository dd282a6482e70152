package pool

import (
	"context"
	"sync"

	"github.com/Aman-CERP/codectx/internal/config"
	"github.com/Aman-CERP/codectx/internal/resource"
)

// Growth-gate thresholds from spec.md §4.1's algorithm description. These
// are distinct from the operator-facing stop/resume thresholds in
// config.PoolConfig (which drive the hysteresis-gated constrained flags);
// the gate numbers are spec-mandated constants, not configurable.
const (
	growthMemoryCeiling          = 0.78
	growthPredictedMemoryCeiling = 0.70
	growthCPUCeiling             = 0.55
)

// constrainedResumeStreak is how many consecutive samples under the resume
// threshold are required to clear a constrained flag. spec.md §4.1 states
// the general rule as single-sample hysteresis, but the S6 acceptance
// scenario requires two consecutive qualifying samples before resuming
// growth; this implementation follows the stricter, concrete scenario.
const constrainedResumeStreak = 2

// ProcessScaler decides when the pool may grow its worker count, gated by
// sampled memory/CPU and a linear-extrapolation prediction (spec.md §4.1).
type ProcessScaler struct {
	mu sync.Mutex

	cfg          config.PoolConfig
	sampler      resource.Sampler
	maxProcesses int
	current      int

	memoryConstrained bool
	cpuConstrained    bool
	memoryResumeRun   int
	cpuResumeRun      int

	lastMemoryFraction float64
}

// NewProcessScaler builds a scaler for the given logical core count.
func NewProcessScaler(cfg config.PoolConfig, sampler resource.Sampler, logicalCores int) *ProcessScaler {
	return &ProcessScaler{
		cfg:          cfg,
		sampler:      sampler,
		maxProcesses: cfg.MaxProcesses(logicalCores),
		current:      cfg.StartProcesses(logicalCores),
	}
}

// Current returns the current worker-process target count.
func (s *ProcessScaler) Current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// MaxProcesses returns the hard ceiling.
func (s *ProcessScaler) MaxProcesses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxProcesses
}

// Constrained reports whether growth is currently suppressed by a tripped
// memory or CPU flag (independent of the per-tick gate check).
func (s *ProcessScaler) Constrained() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memoryConstrained || s.cpuConstrained
}

// Tick samples system resources and grows current by one worker if every
// gate in spec.md §4.1 passes. It returns whether growth occurred. No
// shrinking ever occurs here — workers exit only on shutdown or crash.
func (s *ProcessScaler) Tick(ctx context.Context) bool {
	sample := s.sampler.Sample(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.updateConstrainedFlags(sample.MemoryUsedFraction, sample.CPUUsedFraction)
	s.lastMemoryFraction = sample.MemoryUsedFraction

	if s.current >= s.maxProcesses {
		return false
	}
	if s.memoryConstrained || s.cpuConstrained {
		return false
	}

	perProcess := s.perProcessMemoryFraction(sample.MemoryUsedFraction)
	predicted1 := sample.MemoryUsedFraction + perProcess
	predicted2 := sample.MemoryUsedFraction + 2*perProcess

	if sample.MemoryUsedFraction >= growthMemoryCeiling {
		return false
	}
	if predicted1 >= growthMemoryCeiling {
		return false
	}
	if predicted2 >= growthPredictedMemoryCeiling {
		return false
	}
	if sample.CPUUsedFraction >= growthCPUCeiling {
		return false
	}

	s.current++
	return true
}

// perProcessMemoryFraction estimates the mean memory fraction contributed
// by a single worker, linearly extrapolated from the current fraction and
// process count (spec.md §4.1: "linear extrapolation from mean per-process
// memory").
func (s *ProcessScaler) perProcessMemoryFraction(currentFraction float64) float64 {
	if s.current <= 0 {
		return currentFraction
	}
	return currentFraction / float64(s.current)
}

func (s *ProcessScaler) updateConstrainedFlags(memFrac, cpuFrac float64) {
	if memFrac >= s.cfg.MemoryStop {
		s.memoryConstrained = true
		s.memoryResumeRun = 0
	} else if memFrac <= s.cfg.MemoryResume {
		s.memoryResumeRun++
		if s.memoryResumeRun >= constrainedResumeStreak {
			s.memoryConstrained = false
		}
	} else {
		s.memoryResumeRun = 0
	}

	if cpuFrac >= s.cfg.CPUStop {
		s.cpuConstrained = true
		s.cpuResumeRun = 0
	} else if cpuFrac <= s.cfg.CPUResume {
		s.cpuResumeRun++
		if s.cpuResumeRun >= constrainedResumeStreak {
			s.cpuConstrained = false
		}
	} else {
		s.cpuResumeRun = 0
	}
}

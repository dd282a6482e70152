//go:build !linux && !darwin && !windows

package resource

import (
	"context"
	"fmt"
)

func newOSSampler() Sampler { return &unsupportedSampler{} }

// unsupportedSampler always fails, forcing fallbackSampler straight to
// loadAverageSample on platforms with no known OS-specific probe.
type unsupportedSampler struct{}

func (s *unsupportedSampler) Sample(ctx context.Context) Sample {
	panic(fmt.Errorf("resource: no OS-specific sampler for this platform"))
}

//go:build windows

package resource

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

func newOSSampler() Sampler { return &windowsSampler{} }

type windowsSampler struct{}

func (s *windowsSampler) Sample(ctx context.Context) Sample {
	memFrac, err := windowsMemoryFraction(ctx)
	if err != nil {
		panic(err) // recovered by fallbackSampler.Sample
	}
	cpuFrac, err := windowsCPUFraction(ctx)
	if err != nil {
		panic(err)
	}
	return Sample{MemoryUsedFraction: memFrac, CPUUsedFraction: cpuFrac, At: time.Now()}
}

// windowsMemoryFraction shells out to wmic for total and free physical
// memory in kilobytes.
func windowsMemoryFraction(ctx context.Context) (float64, error) {
	out, err := exec.CommandContext(ctx, "wmic", "OS", "get", "FreePhysicalMemory,TotalVisibleMemorySize", "/Value").Output()
	if err != nil {
		return 0, fmt.Errorf("resource: wmic OS get memory: %w", err)
	}
	values := parseWMICValues(string(out))
	total, ok1 := values["TotalVisibleMemorySize"]
	free, ok2 := values["FreePhysicalMemory"]
	if !ok1 || !ok2 || total == 0 {
		return 0, fmt.Errorf("resource: could not parse wmic memory output")
	}
	used := total - free
	if used < 0 {
		used = 0
	}
	return used / total, nil
}

// windowsCPUFraction reads the LoadPercentage field from wmic cpu, which is
// Windows's own moving-average utilization estimate.
func windowsCPUFraction(ctx context.Context) (float64, error) {
	out, err := exec.CommandContext(ctx, "wmic", "cpu", "get", "LoadPercentage", "/Value").Output()
	if err != nil {
		return 0, fmt.Errorf("resource: wmic cpu get LoadPercentage: %w", err)
	}
	values := parseWMICValues(string(out))
	load, ok := values["LoadPercentage"]
	if !ok {
		return 0, fmt.Errorf("resource: could not parse wmic LoadPercentage output")
	}
	frac := load / 100
	if frac > 1 {
		frac = 1
	}
	return frac, nil
}

// parseWMICValues parses wmic's "/Value" output format: lines of
// "Key=Value" separated by blank lines and CRLFs.
func parseWMICValues(out string) map[string]float64 {
	result := make(map[string]float64)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			continue
		}
		result[strings.TrimSpace(parts[0])] = v
	}
	return result
}

//go:build darwin

package resource

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

func newOSSampler() Sampler { return &darwinSampler{} }

type darwinSampler struct{}

func (s *darwinSampler) Sample(ctx context.Context) Sample {
	memFrac, err := darwinMemoryFraction(ctx)
	if err != nil {
		panic(err) // recovered by fallbackSampler.Sample
	}
	cpuFrac, err := darwinCPUFraction(ctx)
	if err != nil {
		panic(err)
	}
	return Sample{MemoryUsedFraction: memFrac, CPUUsedFraction: cpuFrac, At: time.Now()}
}

// darwinMemoryFraction shells out to vm_stat for page counts and sysctl for
// the page size and total physical memory, since macOS has no /proc.
func darwinMemoryFraction(ctx context.Context) (float64, error) {
	totalOut, err := exec.CommandContext(ctx, "sysctl", "-n", "hw.memsize").Output()
	if err != nil {
		return 0, fmt.Errorf("resource: sysctl hw.memsize: %w", err)
	}
	total, err := strconv.ParseUint(strings.TrimSpace(string(totalOut)), 10, 64)
	if err != nil || total == 0 {
		return 0, fmt.Errorf("resource: parse hw.memsize: %w", err)
	}

	vmOut, err := exec.CommandContext(ctx, "vm_stat").Output()
	if err != nil {
		return 0, fmt.Errorf("resource: vm_stat: %w", err)
	}
	pages := parseVMStat(string(vmOut))
	pageSize := uint64(4096)
	if v, ok := pages["page size of"]; ok && v > 0 {
		pageSize = v
	}

	freePages := pages["Pages free"] + pages["Pages speculative"]
	freeBytes := freePages * pageSize
	if freeBytes > total {
		freeBytes = total
	}
	used := total - freeBytes
	return float64(used) / float64(total), nil
}

// parseVMStat parses vm_stat's "Label: NNN." lines into a label->count map.
// The "Mach Virtual Memory Statistics: (page size of NNNN bytes)" header is
// captured under the key "page size of".
func parseVMStat(out string) map[string]uint64 {
	result := make(map[string]uint64)
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "page size of") {
			fields := strings.Fields(line)
			for i, f := range fields {
				if f == "of" && i+1 < len(fields) {
					if v, err := strconv.ParseUint(fields[i+1], 10, 64); err == nil {
						result["page size of"] = v
					}
				}
			}
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		label := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(parts[1]), "."))
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			continue
		}
		result[label] = v
	}
	return result
}

// darwinCPUFraction uses sysctl's per-CPU load average as a coarse proxy,
// scaled by logical core count, since macOS exposes no simple instantaneous
// system-wide CPU utilization counter without repeated host_statistics calls.
func darwinCPUFraction(ctx context.Context) (float64, error) {
	out, err := exec.CommandContext(ctx, "sysctl", "-n", "vm.loadavg").Output()
	if err != nil {
		return 0, fmt.Errorf("resource: sysctl vm.loadavg: %w", err)
	}
	fields := strings.Fields(strings.Trim(strings.TrimSpace(string(out)), "{}"))
	if len(fields) == 0 {
		return 0, fmt.Errorf("resource: empty vm.loadavg output")
	}
	load1, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("resource: parse vm.loadavg: %w", err)
	}

	coresOut, err := exec.CommandContext(ctx, "sysctl", "-n", "hw.logicalcpu").Output()
	if err != nil {
		return 0, fmt.Errorf("resource: sysctl hw.logicalcpu: %w", err)
	}
	cores, err := strconv.ParseFloat(strings.TrimSpace(string(coresOut)), 64)
	if err != nil || cores <= 0 {
		cores = 1
	}

	frac := load1 / cores
	if frac > 1 {
		frac = 1
	}
	return frac, nil
}

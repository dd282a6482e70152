//go:build linux

package resource

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func newOSSampler() Sampler { return &linuxSampler{} }

type linuxSampler struct {
	state sampleState
}

// sampleState holds the previous /proc/stat reading needed to compute a CPU
// utilization delta between two samples.
type sampleState struct {
	prevIdle  uint64
	prevTotal uint64
	have      bool
}

func (s *linuxSampler) Sample(ctx context.Context) Sample {
	memFrac, err := linuxMemoryFraction()
	if err != nil {
		panic(err) // recovered by fallbackSampler.Sample
	}
	cpuFrac, err := s.linuxCPUFraction()
	if err != nil {
		panic(err)
	}
	return Sample{MemoryUsedFraction: memFrac, CPUUsedFraction: cpuFrac, At: time.Now()}
}

// linuxMemoryFraction parses /proc/meminfo for (MemTotal - MemAvailable) / MemTotal.
func linuxMemoryFraction() (float64, error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var total, available uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			total = parseMeminfoKB(line)
		case strings.HasPrefix(line, "MemAvailable:"):
			available = parseMeminfoKB(line)
		}
	}
	if total == 0 {
		return 0, fmt.Errorf("resource: could not parse MemTotal from /proc/meminfo")
	}
	used := total - available
	return float64(used) / float64(total), nil
}

func parseMeminfoKB(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, _ := strconv.ParseUint(fields[1], 10, 64)
	return v
}

// linuxCPUFraction parses /proc/stat's aggregate cpu line and computes
// utilization as a delta against the previous sample (a single snapshot of
// /proc/stat gives cumulative counters, not an instantaneous rate).
func (s *linuxSampler) linuxCPUFraction() (float64, error) {
	idle, total, err := readProcStat()
	if err != nil {
		return 0, err
	}

	if !s.state.have {
		s.state.prevIdle, s.state.prevTotal, s.state.have = idle, total, true
		// First call has no delta to compute from.
		return 0, nil
	}

	deltaIdle := float64(idle - s.state.prevIdle)
	deltaTotal := float64(total - s.state.prevTotal)
	s.state.prevIdle, s.state.prevTotal = idle, total

	if deltaTotal <= 0 {
		return 0, nil
	}
	return 1 - deltaIdle/deltaTotal, nil
}

func readProcStat() (idle, total uint64, err error) {
	f, ferr := os.Open("/proc/stat")
	if ferr != nil {
		return 0, 0, ferr
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, 0, fmt.Errorf("resource: empty /proc/stat")
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, 0, fmt.Errorf("resource: unexpected /proc/stat format")
	}
	var sum uint64
	var vals []uint64
	for _, f := range fields[1:] {
		v, perr := strconv.ParseUint(f, 10, 64)
		if perr != nil {
			continue
		}
		vals = append(vals, v)
		sum += v
	}
	if len(vals) < 4 {
		return 0, 0, fmt.Errorf("resource: too few /proc/stat fields")
	}
	idle = vals[3] // idle is the 4th field
	return idle, sum, nil
}

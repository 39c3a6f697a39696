// Package memstat reads system-wide memory and swap pressure from
// /proc/meminfo. It keeps KiB as the unit throughout, matching the
// kernel's own /proc/meminfo convention; Sample's *Percent methods give
// the used and free fractions as percentages of the totals.
package memstat

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Sample is one point-in-time reading of system memory and swap, in KiB.
type Sample struct {
	MemTotalKiB     uint64
	MemAvailableKiB uint64
	SwapTotalKiB    uint64
	SwapFreeKiB     uint64
}

// MemUsedKiB is MemTotal minus the kernel's own MemAvailable estimate,
// which already accounts for reclaimable caches (spec §4.1: "used memory
// is computed from MemAvailable, not MemFree, so reclaimable page cache
// is not counted as pressure").
func (s Sample) MemUsedKiB() uint64 {
	if s.MemAvailableKiB > s.MemTotalKiB {
		return 0
	}
	return s.MemTotalKiB - s.MemAvailableKiB
}

// SwapUsedKiB is SwapTotal minus SwapFree.
func (s Sample) SwapUsedKiB() uint64 {
	if s.SwapFreeKiB > s.SwapTotalKiB {
		return 0
	}
	return s.SwapTotalKiB - s.SwapFreeKiB
}

// MemUsedPercent returns 0 when MemTotal is zero rather than dividing by it.
func (s Sample) MemUsedPercent() float64 {
	return percent(s.MemUsedKiB(), s.MemTotalKiB)
}

// SwapUsedPercent returns 0 when SwapTotal is zero, which is the normal
// case on a swapless host and must not be treated as 100% used (spec §4.3
// "swap disabled when total is zero").
func (s Sample) SwapUsedPercent() float64 {
	return percent(s.SwapUsedKiB(), s.SwapTotalKiB)
}

// MemFreePercent is the Evaluator's "free fraction" for memory: the kernel's
// MemAvailable estimate is already the free-memory proxy, so this is just
// available/total (spec §4.2).
func (s Sample) MemFreePercent() float64 {
	return percent(s.MemAvailableKiB, s.MemTotalKiB)
}

// SwapFreePercent is the Evaluator's "free fraction" for swap.
func (s Sample) SwapFreePercent() float64 {
	return percent(s.SwapFreeKiB, s.SwapTotalKiB)
}

func percent(used, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(used) / float64(total) * 100
}

// Take reads and parses /proc/meminfo under procRoot (normally "/proc",
// overridable in tests). All four watched fields must be present or the
// read is rejected outright rather than returning a partially-valid
// Sample (spec §4.1 edge case: "meminfo missing required fields").
func Take(procRoot string) (Sample, error) {
	f, err := os.Open(filepath.Join(procRoot, "meminfo"))
	if err != nil {
		return Sample{}, fmt.Errorf("opening meminfo: %w", err)
	}
	defer f.Close()
	return parseMemInfo(f)
}

func parseMemInfo(r io.Reader) (Sample, error) {
	var s Sample
	targets := map[string]*uint64{
		"MemTotal":     &s.MemTotalKiB,
		"MemAvailable": &s.MemAvailableKiB,
		"SwapTotal":    &s.SwapTotalKiB,
		"SwapFree":     &s.SwapFreeKiB,
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() && len(targets) > 0 {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		key := strings.TrimSuffix(fields[0], ":")
		target, ok := targets[key]
		if !ok {
			continue
		}
		value, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return Sample{}, fmt.Errorf("parsing %s: %w", key, err)
		}
		// meminfo reports kB, which is actually KiB; no unit conversion needed.
		*target = value
		delete(targets, key)
	}
	if err := scanner.Err(); err != nil {
		return Sample{}, fmt.Errorf("reading meminfo: %w", err)
	}
	if len(targets) > 0 {
		missing := make([]string, 0, len(targets))
		for k := range targets {
			missing = append(missing, k)
		}
		return Sample{}, fmt.Errorf("meminfo missing required fields: %v", missing)
	}
	return s, nil
}

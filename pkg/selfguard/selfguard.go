//go:build linux

// Package selfguard hardens the daemon's own process against the very
// pressure it watches for: locked pages, OOM-killer immunity, and an
// elevated scheduling priority so the watchdog keeps running exactly when
// the system is least able to schedule it.
package selfguard

import (
	"fmt"
	"os"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"golang.org/x/sys/unix"
)

// Apply locks the process's memory, marks it immune to the kernel OOM
// killer, and raises its scheduling priority (spec §4.9). It returns the
// first error encountered; callers that cannot tolerate a partial
// self-protection failure should abort startup on error.
func Apply(priority int) error {
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		return fmt.Errorf("mlockall: %w", err)
	}
	if err := writeOOMScoreAdj("/proc/self/oom_score_adj", -1000); err != nil {
		return fmt.Errorf("setting self oom_score_adj: %w", err)
	}
	if priority != 0 {
		if err := unix.Setpriority(unix.PRIO_PROCESS, 0, priority); err != nil {
			return fmt.Errorf("setpriority: %w", err)
		}
	}
	return nil
}

func writeOOMScoreAdj(path string, adj int) error {
	return os.WriteFile(path, []byte(fmt.Sprintf("%d", adj)), 0o644)
}

// SetGoMemLimit bounds the Go runtime's soft memory limit to a fraction of
// the cgroup/system limit, so the daemon's own allocator pressure never
// becomes the thing that triggers the very condition it exists to prevent.
func SetGoMemLimit() error {
	_, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(0.8),
		memlimit.WithProvider(memlimit.ApplyFallback(memlimit.FromCgroup, memlimit.FromSystem)),
	)
	if err != nil {
		return fmt.Errorf("setting go memory limit: %w", err)
	}
	return nil
}

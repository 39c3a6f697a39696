//go:build linux

package killer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// errReclaimUnavailable is returned by Reclaim when the handle has no
// pidfd to reclaim through — the only mechanism the kernel offers for
// forcing a dying process's pages back to the free pool without being its
// parent (spec §9 "where synchronous reclaim is unavailable").
var errReclaimUnavailable = errors.New("synchronous reclaim requires a pidfd, unavailable on this kernel")

// pidHandle is the fallback Handle when the kernel has no pidfd support: a
// PID plus the start-time tick count observed at acquisition. A changed
// start time on re-read is treated as proof the PID was recycled to a
// different process (DESIGN NOTES §9 emulation of a stable handle).
type pidHandle struct {
	procRoot       string
	pid            int
	acquireStartTicks uint64
}

func newPidHandle(procRoot string, pid int, startTicks uint64) *pidHandle {
	return &pidHandle{procRoot: procRoot, pid: pid, acquireStartTicks: startTicks}
}

func (h *pidHandle) PID() int { return h.pid }

func (h *pidHandle) samePID() (bool, error) {
	ticks, err := readStartTicks(h.procRoot, h.pid)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ticks == h.acquireStartTicks, nil
}

func (h *pidHandle) OOMScoreAdj() (int, bool, error) {
	same, err := h.samePID()
	if err != nil {
		return 0, false, err
	}
	if !same {
		return 0, false, nil
	}
	adj, err := readOOMScoreAdj(h.procRoot, h.pid)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return adj, true, nil
}

func (h *pidHandle) Alive() (bool, error) {
	same, err := h.samePID()
	if err != nil || !same {
		return false, err
	}
	return true, nil
}

func (h *pidHandle) Signal(sig unix.Signal, processGroup bool) error {
	same, err := h.samePID()
	if err != nil {
		return err
	}
	if !same {
		return unix.ESRCH
	}
	if processGroup {
		pgid, err := unix.Getpgid(h.pid)
		if err != nil {
			return err
		}
		return unix.Kill(-pgid, sig)
	}
	return unix.Kill(h.pid, sig)
}

func (h *pidHandle) Close() error { return nil }

// Reclaim always fails: without a pidfd there is no process_mrelease target,
// and this handle is by definition the no-pidfd fallback.
func (h *pidHandle) Reclaim() error { return errReclaimUnavailable }

// readStartTicks re-reads field 22 of /proc/[pid]/stat, the same
// parenthesis-aware split pkg/procscan uses.
func readStartTicks(procRoot string, pid int) (uint64, error) {
	b, err := os.ReadFile(filepath.Join(procRoot, strconv.Itoa(pid), "stat"))
	if err != nil {
		return 0, err
	}
	line := string(b)
	closeParen := strings.LastIndexByte(line, ')')
	if closeParen < 0 {
		return 0, fmt.Errorf("malformed stat line")
	}
	fields := strings.Fields(line[closeParen+1:])
	if len(fields) < 20 {
		return 0, fmt.Errorf("stat line too short")
	}
	return strconv.ParseUint(fields[19], 10, 64)
}

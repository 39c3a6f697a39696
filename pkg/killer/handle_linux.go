//go:build linux

package killer

import (
	"golang.org/x/sys/unix"
)

// pidfdHandle wraps a pidfd file descriptor, which the kernel invalidates
// the identity of the moment the process exits — immune to PID reuse by
// construction, unlike comparing PIDs across two reads (spec §4.5 step 1,
// §9's pidfd-over-raw-PID recommendation).
type pidfdHandle struct {
	pid int
	fd  int
}

// newPidfdHandle probes pidfd support by actually trying to open one;
// ENOSYS or EINVAL (kernel < 5.3, or /proc not mounted with pidfd support)
// cause the caller to fall back to pidHandle.
func newPidfdHandle(pid int) (*pidfdHandle, error) {
	fd, err := unix.PidfdOpen(pid, 0)
	if err != nil {
		return nil, err
	}
	return &pidfdHandle{pid: pid, fd: fd}, nil
}

func (h *pidfdHandle) PID() int { return h.pid }

// OOMScoreAdj still reads through /proc/[pid]/oom_score_adj: the pidfd
// guarantees the PID has not been recycled underneath it, but the kernel
// exposes no pidfd-relative way to read that file, so this relies on the
// pidfd poll below to detect exit races around the read.
func (h *pidfdHandle) OOMScoreAdj() (int, bool, error) {
	alive, err := h.Alive()
	if err != nil {
		return 0, false, err
	}
	if !alive {
		return 0, false, nil
	}
	adj, err := readOOMScoreAdj("/proc", h.pid)
	if err != nil {
		// The process exited between the liveness check and the read;
		// that's a normal AlreadyGone, not an error.
		return 0, false, nil
	}
	return adj, true, nil
}

// Alive polls the pidfd for POLLIN, which the kernel sets exactly when the
// process has exited.
func (h *pidfdHandle) Alive() (bool, error) {
	fds := []unix.PollFd{{Fd: int32(h.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 0)
	if err != nil {
		return false, err
	}
	if n > 0 && fds[0].Revents&unix.POLLIN != 0 {
		return false, nil
	}
	return true, nil
}

func (h *pidfdHandle) Signal(sig unix.Signal, processGroup bool) error {
	if processGroup {
		pgid, err := unix.Getpgid(h.pid)
		if err != nil {
			return err
		}
		return unix.Kill(-pgid, sig)
	}
	return unix.PidfdSendSignal(h.fd, int(sig), nil, 0)
}

func (h *pidfdHandle) Close() error {
	return unix.Close(h.fd)
}

// Reclaim forces the kernel to tear down the dying process's memory
// immediately via process_mrelease, rather than waiting for its real
// parent to reap it — the only way a process that isn't our child gets its
// pages back to the free pool before the next tick samples again (spec
// §4.5 step 4, §9).
func (h *pidfdHandle) Reclaim() error {
	return processMrelease(h.fd)
}

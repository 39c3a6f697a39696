//go:build linux && arm64

package killer

import "golang.org/x/sys/unix"

// See mrelease_linux_amd64.go: same syscall number, same rationale.
const sysProcessMrelease = 448

func processMrelease(pidfd int) error {
	_, _, errno := unix.Syscall(sysProcessMrelease, uintptr(pidfd), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

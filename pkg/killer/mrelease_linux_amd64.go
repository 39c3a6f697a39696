//go:build linux && amd64

package killer

import "golang.org/x/sys/unix"

// process_mrelease(2) was added in Linux 5.15 (commit a68de80f); as of the
// x/sys version this module vendors, package unix has no Go wrapper for it,
// so the syscall is issued directly. The number is assigned from the
// architecture-independent syscall table the kernel has used for every
// syscall added since clone3, so it is the same value on amd64 and arm64.
const sysProcessMrelease = 448

func processMrelease(pidfd int) error {
	_, _, errno := unix.Syscall(sysProcessMrelease, uintptr(pidfd), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

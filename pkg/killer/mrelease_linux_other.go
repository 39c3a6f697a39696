//go:build linux && !amd64 && !arm64

package killer

import "golang.org/x/sys/unix"

// The syscall number for process_mrelease is not verified on architectures
// beyond amd64/arm64 here, so pidfdHandle.Reclaim reports it unsupported
// rather than guess a number and corrupt an unrelated process's memory.
func processMrelease(pidfd int) error {
	return unix.ENOSYS
}

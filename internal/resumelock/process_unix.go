//go:build !windows

package resumelock

import "syscall"

// processAlive reports whether pid names a live process, using the
// signal-0 probe: sending signal 0 performs error checking without
// actually delivering a signal.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return err != syscall.ESRCH
}

//go:build windows

package resumelock

import "os"

// processAlive on Windows falls back to an open-process check; absent
// a working syscall probe, a failed open is treated as "not alive".
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil || proc == nil {
		return false
	}
	return true
}

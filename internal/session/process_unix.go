//go:build !windows

package session

import (
	"errors"
	"os"
	"syscall"
)

// IsProcessRunning reports whether a process with pid exists.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

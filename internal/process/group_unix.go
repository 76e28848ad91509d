//go:build !windows

package process

import (
	"errors"
	"syscall"
)

// GroupSignaler terminates a process group when pid leads one, otherwise the pid alone.
type GroupSignaler struct{}

func (GroupSignaler) Terminate(pid int) error {
	if pid <= 0 {
		return Terminate(pid)
	}

	if pgid, err := syscall.Getpgid(pid); err == nil && pgid == pid {
		if err := syscall.Kill(-pid, syscall.SIGTERM); err == nil || !errors.Is(err, syscall.ESRCH) {
			return err
		}
	}

	return Terminate(pid)
}

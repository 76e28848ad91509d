//go:build windows

package process

import (
	"fmt"
	"os/exec"
	"strconv"
)

// GroupSignaler terminates pid and its child processes.
type GroupSignaler struct{}

func (GroupSignaler) Terminate(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}

	return exec.Command("taskkill", "/PID", strconv.Itoa(pid), "/T", "/F").Run()
}

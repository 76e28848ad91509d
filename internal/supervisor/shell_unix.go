//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// detach puts the launched shell in its own process group so it survives
// our exit and its children can be signalled together.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

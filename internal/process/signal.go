package process

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/gops/goprocess"
)

// Signaler delivers termination signals.
type Signaler interface {
	Terminate(pid int) error
}

// Terminate sends a termination signal to pid.
func Terminate(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}

	if runtime.GOOS == "windows" {
		return exec.Command("taskkill", "/PID", strconv.Itoa(pid), "/F").Run()
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}

	return proc.Signal(syscall.SIGTERM)
}

// IsRunning checks if a process with the given PID is still running
func IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds, so we need to send signal 0 to check
	return proc.Signal(syscall.Signal(0)) == nil
}

// ExitPollInterval is how often WaitForExit checks a pid by default.
const ExitPollInterval = 100 * time.Millisecond

// WaitForExit polls alive until pid is gone or timeout elapses. A zero
// interval polls every ExitPollInterval and a nil alive uses IsRunning.
func WaitForExit(pid int, timeout, interval time.Duration, alive func(int) bool) error {
	if interval <= 0 {
		interval = ExitPollInterval
	}

	if alive == nil {
		alive = IsRunning
	}

	deadline := time.Now().Add(timeout)

	for {
		if !alive(pid) {
			return nil
		}

		left := time.Until(deadline)
		if left <= 0 {
			return fmt.Errorf("process %d still running after %v", pid, timeout)
		}

		time.Sleep(min(interval, left))
	}
}

// IsGoBinary reports whether pid is a running Go program whose executable
// name contains name. Only Go binaries carry the build info gops reads.
func IsGoBinary(pid int, name string) bool {
	p, ok, err := goprocess.Find(pid)
	if err != nil || !ok {
		return false
	}

	name = strings.ToLower(name)

	return strings.Contains(strings.ToLower(p.Exec), name) || strings.Contains(strings.ToLower(p.Path), name)
}

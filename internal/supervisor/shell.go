package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Shell executes manifest commands.
type Shell interface {
	// Run executes command in dir and waits for it.
	Run(ctx context.Context, dir, command string) ([]byte, error)

	// Launch starts command in dir in the background and waits up to grace.
	// A process still running after grace is a successful launch and its pid
	// is returned; a process that exited within grace is a failure.
	Launch(ctx context.Context, dir, command string, grace time.Duration) (int, error)
}

// ErrExitedEarly marks a launch whose process ended within the grace period.
var ErrExitedEarly = errors.New("process exited before the grace timeout")

// SystemShell runs commands through sh -c (cmd /C on Windows).
type SystemShell struct {
	// LogDir receives one log file per application; empty discards output
	LogDir string
}

func shellCommand(command string) (string, []string) {
	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C", command}
	}

	return "sh", []string{"-c", command}
}

func (s *SystemShell) Run(ctx context.Context, dir, command string) ([]byte, error) {
	name, args := shellCommand(command)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	return cmd.CombinedOutput()
}

func (s *SystemShell) Launch(ctx context.Context, dir, command string, grace time.Duration) (int, error) {
	name, args := shellCommand(command)

	// not bound to ctx: the application must outlive the request that started it
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	detach(cmd)

	out, closeOut, err := s.output(dir)
	if err != nil {
		return 0, err
	}

	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		closeOut()
		return 0, err
	}

	done := make(chan error, 1)

	go func() {
		done <- cmd.Wait()
		closeOut()
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrExitedEarly, err)
		}

		return 0, ErrExitedEarly
	case <-timer.C:
		return cmd.Process.Pid, nil
	case <-ctx.Done():
		// the launch itself went through; the caller just stopped waiting
		return cmd.Process.Pid, nil
	}
}

func (s *SystemShell) output(dir string) (io.Writer, func(), error) {
	if s.LogDir == "" {
		return io.Discard, func() {}, nil
	}

	if err := os.MkdirAll(s.LogDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(LogFile(s.LogDir, dir), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open application log: %w", err)
	}

	return f, func() { _ = f.Close() }, nil
}

// LogFile returns the log path of the application checked out at dir.
func LogFile(logDir, dir string) string {
	clean := filepath.Clean(dir)
	name := filepath.Base(filepath.Dir(clean)) + "_" + filepath.Base(clean)
	name = strings.Map(func(r rune) rune {
		if r == os.PathSeparator || r == ':' {
			return '_'
		}

		return r
	}, name)

	return filepath.Join(logDir, name+".log")
}

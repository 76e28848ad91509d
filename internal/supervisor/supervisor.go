// Package supervisor starts, stops, restarts and sets up the application
// contained in a checkout, driven by the commands its manifest declares.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/inovacc/reposync/internal/manifest"
	"github.com/inovacc/reposync/internal/metrics"
	"github.com/inovacc/reposync/internal/model"
	"github.com/inovacc/reposync/internal/process"
)

// DefaultGrace is how long a launched start command must survive to count as started.
const DefaultGrace = time.Second

// DefaultStopTimeout bounds how long stop waits for signalled processes to exit.
const DefaultStopTimeout = 10 * time.Second

// ProcessFinder locates live processes of an application.
type ProcessFinder interface {
	FindInDir(ctx context.Context, name, dir string) ([]model.ProcessRecord, error)
	FindByCWD(ctx context.Context, dir string) ([]model.ProcessRecord, error)
}

// PIDStore remembers the pid each application was launched with.
type PIDStore interface {
	RecordApp(path string, pid int) error
	AppPID(path string) (int, bool, error)
	ForgetApp(path string) error
}

// SettingsStore is the part of the Repository Settings Store the supervisor needs.
type SettingsStore interface {
	Get(user, name string) (model.RepositorySettings, bool, error)
	SetSetupFinalized(user, name string, v bool) error
}

// Options configures a Supervisor. Zero fields fall back to the real system.
type Options struct {
	Shell    Shell
	Finder   ProcessFinder
	Signaler process.Signaler
	PIDs     PIDStore
	Settings SettingsStore
	Logger   *slog.Logger

	// Alive reports whether a recorded pid still runs
	Alive func(pid int) bool

	// Grace is the launch grace timeout
	Grace time.Duration

	// StopTimeout bounds the wait for signalled processes to exit
	StopTimeout time.Duration
}

// Supervisor manages application lifecycles. Operations on one path are serialized.
type Supervisor struct {
	shell    Shell
	finder   ProcessFinder
	signaler process.Signaler
	pids     PIDStore
	settings SettingsStore
	logger   *slog.Logger
	alive    func(int) bool
	grace    time.Duration

	stopTimeout time.Duration
	exitPoll    time.Duration

	locks pathLocks
	wg    sync.WaitGroup
}

// New creates a Supervisor.
func New(opts Options) *Supervisor {
	s := &Supervisor{
		shell:    opts.Shell,
		finder:   opts.Finder,
		signaler: opts.Signaler,
		pids:     opts.PIDs,
		settings: opts.Settings,
		logger:   opts.Logger,
		alive:    opts.Alive,
		grace:    opts.Grace,

		stopTimeout: opts.StopTimeout,
	}

	if s.shell == nil {
		s.shell = &SystemShell{}
	}

	if s.finder == nil {
		s.finder = process.NewInspector()
	}

	if s.signaler == nil {
		s.signaler = process.GroupSignaler{}
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	if s.alive == nil {
		s.alive = process.IsRunning
	}

	if s.grace <= 0 {
		s.grace = DefaultGrace
	}

	if s.stopTimeout <= 0 {
		s.stopTimeout = DefaultStopTimeout
	}

	return s
}

// errProcessDone is what signalling an exited process returns.
var errProcessDone = os.ErrProcessDone

// StopMethod tells how stop located the application.
type StopMethod string

const (
	StopByCommand StopMethod = "command"
	StopByPID     StopMethod = "pid"
	StopByScan    StopMethod = "scan"
	StopNothing   StopMethod = "none"
)

// StopResult describes what stop did.
type StopResult struct {
	Method StopMethod
	PIDs   []int
}

func loadManifest(path string) (*manifest.Manifest, error) {
	res := manifest.Load(path)

	switch res.Status {
	case manifest.Found:
		return res.Manifest, nil
	case manifest.NotFound:
		return nil, nil
	default:
		return nil, res.Err
	}
}

// Start launches the application at path and returns the pid of the launched shell.
func (s *Supervisor) Start(ctx context.Context, path string) (int, error) {
	mu := s.locks.get(path)
	mu.Lock()
	defer mu.Unlock()

	return s.start(ctx, path)
}

func (s *Supervisor) start(ctx context.Context, path string) (pid int, err error) {
	defer func() { metrics.IncAppOperation("start", err) }()

	m, err := loadManifest(path)
	if err != nil {
		return 0, err
	}

	if m == nil {
		return 0, fmt.Errorf("%w in %s", ErrManifestMissing, path)
	}

	commands := m.StartCommands()
	if len(commands) == 0 {
		s.logger.Error("cannot start application", "path", path, "error", ErrNoStartCommand)
		return 0, ErrNoStartCommand
	}

	var lastErr error

	for idx, command := range commands {
		pid, err := s.shell.Launch(ctx, path, command, s.grace)
		if err != nil {
			lastErr = &CommandError{Path: path, Name: "start", Command: command, err: err}
			s.logger.Warn("start command failed", "path", path, "command", command, "attempt", idx+1, "error", err)

			continue
		}

		if s.pids != nil && pid > 0 {
			if err := s.pids.RecordApp(path, pid); err != nil {
				s.logger.Warn("failed to record application pid", "path", path, "pid", pid, "error", err)
			}
		}

		s.logger.Info("application started", "path", path, "pid", pid, "command", command)

		return pid, nil
	}

	return 0, lastErr
}

// Stop terminates the application at path. See stop for the resolution order.
func (s *Supervisor) Stop(ctx context.Context, path string) (StopResult, error) {
	mu := s.locks.get(path)
	mu.Lock()
	defer mu.Unlock()

	return s.stop(ctx, path)
}

// stop resolves the target in this order: the manifest stop command; the
// recorded pid; every process running the start binary with cwd == path.
func (s *Supervisor) stop(ctx context.Context, path string) (res StopResult, err error) {
	defer func() { metrics.IncAppOperation("stop", err) }()

	m, err := loadManifest(path)
	if err != nil {
		return StopResult{Method: StopNothing}, err
	}

	if command, ok := m.Stop(); ok {
		out, err := s.shell.Run(ctx, path, command)
		if err != nil {
			return StopResult{Method: StopByCommand}, &CommandError{Path: path, Name: "stop", Command: command, Output: string(out), err: err}
		}

		s.forget(path)
		s.logger.Info("application stopped", "path", path, "method", StopByCommand)

		return StopResult{Method: StopByCommand}, nil
	}

	if pid, ok := s.recordedPID(path, m); ok {
		if err := s.signaler.Terminate(pid); err != nil && !errors.Is(err, errProcessDone) {
			return StopResult{Method: StopByPID, PIDs: []int{pid}}, fmt.Errorf("failed to terminate %d: %w", pid, err)
		}

		s.forget(path)
		s.waitExit(path, []int{pid})
		s.logger.Info("application stopped", "path", path, "method", StopByPID, "pid", pid)

		return StopResult{Method: StopByPID, PIDs: []int{pid}}, nil
	}

	if m == nil {
		return StopResult{Method: StopNothing}, fmt.Errorf("%w in %s", ErrManifestMissing, path)
	}

	binary := m.StartBinary()
	if binary == "" {
		return StopResult{Method: StopNothing}, ErrNoStartCommand
	}

	procs, err := s.finder.FindInDir(ctx, binary, path)
	if err != nil {
		// an unreadable process table means nothing we can stop
		s.logger.Warn("process listing failed", "path", path, "binary", binary, "error", err)
		procs = nil
	}

	if len(procs) == 0 {
		s.logger.Info("no running process to stop", "path", path, "binary", binary)
		return StopResult{Method: StopNothing}, nil
	}

	res = StopResult{Method: StopByScan}

	var errs []error

	for _, p := range procs {
		res.PIDs = append(res.PIDs, p.PID)

		if err := s.signaler.Terminate(p.PID); err != nil && !errors.Is(err, errProcessDone) {
			errs = append(errs, fmt.Errorf("failed to terminate %d: %w", p.PID, err))
		}
	}

	s.waitExit(path, res.PIDs)
	s.logger.Info("application stopped", "path", path, "method", StopByScan, "pids", res.PIDs)

	return res, errors.Join(errs...)
}

// waitExit waits, within one stop timeout, for every pid to exit.
// Survivors are logged and left alone.
func (s *Supervisor) waitExit(path string, pids []int) {
	deadline := time.Now().Add(s.stopTimeout)

	for _, pid := range pids {
		if err := process.WaitForExit(pid, time.Until(deadline), s.exitPoll, s.alive); err != nil {
			s.logger.Warn("process did not exit in time", "path", path, "pid", pid, "error", err)
		}
	}
}

// recordedPID returns a still-running pid recorded for path, preferring local
// bookkeeping over the manifest pid field.
func (s *Supervisor) recordedPID(path string, m *manifest.Manifest) (int, bool) {
	if s.pids != nil {
		pid, ok, err := s.pids.AppPID(path)
		if err != nil {
			s.logger.Warn("failed to read recorded pid", "path", path, "error", err)
		}

		if ok {
			if s.alive(pid) {
				return pid, true
			}

			s.logger.Debug("recorded pid is gone", "path", path, "pid", pid)
			s.forget(path)
		}
	}

	if m != nil && m.PID > 0 && s.alive(m.PID) {
		return m.PID, true
	}

	return 0, false
}

func (s *Supervisor) forget(path string) {
	if s.pids == nil {
		return
	}

	if err := s.pids.ForgetApp(path); err != nil {
		s.logger.Warn("failed to clear recorded pid", "path", path, "error", err)
	}
}

// Restart stops then starts the application at path while holding its lock.
func (s *Supervisor) Restart(ctx context.Context, path string) (int, error) {
	mu := s.locks.get(path)
	mu.Lock()
	defer mu.Unlock()

	return s.restart(ctx, path)
}

func (s *Supervisor) restart(ctx context.Context, path string) (pid int, err error) {
	defer func() { metrics.IncAppOperation("restart", err) }()

	if _, err := s.stop(ctx, path); err != nil {
		s.logger.Warn("stop before restart failed", "path", path, "error", err)
	}

	return s.start(ctx, path)
}

// SetupAndStart runs the setup command once per checkout, then starts the application.
func (s *Supervisor) SetupAndStart(ctx context.Context, rs model.RepositorySettings) (int, error) {
	mu := s.locks.get(rs.Path)
	mu.Lock()
	defer mu.Unlock()

	return s.setupAndStart(ctx, rs)
}

func (s *Supervisor) setupAndStart(ctx context.Context, rs model.RepositorySettings) (pid int, err error) {
	defer func() { metrics.IncAppOperation("setup", err) }()

	if rs.Path == "" {
		return 0, fmt.Errorf("settings of %s/%s have no path", rs.User, rs.Name)
	}

	if !rs.SetupFinalized {
		m, err := loadManifest(rs.Path)
		if err != nil {
			return 0, err
		}

		if m == nil {
			return 0, fmt.Errorf("%w in %s", ErrManifestMissing, rs.Path)
		}

		if command, ok := m.Setup(); ok {
			s.logger.Info("running setup", "path", rs.Path, "command", command)

			out, err := s.shell.Run(ctx, rs.Path, command)
			if err != nil {
				return 0, &CommandError{Path: rs.Path, Name: "setup", Command: command, Output: string(out), err: err}
			}
		}

		if s.settings != nil {
			if err := s.settings.SetSetupFinalized(rs.User, rs.Name, true); err != nil {
				return 0, err
			}
		}
	}

	return s.start(ctx, rs.Path)
}

// RunCommand runs the named manifest command in the checkout at path.
func (s *Supervisor) RunCommand(ctx context.Context, path, name string) ([]byte, error) {
	mu := s.locks.get(path)
	mu.Lock()
	defer mu.Unlock()

	m, err := loadManifest(path)
	if err != nil {
		return nil, err
	}

	if m == nil {
		return nil, fmt.Errorf("%w in %s", ErrManifestMissing, path)
	}

	command, ok := m.Command(name)
	if !ok {
		return nil, fmt.Errorf("manifest in %s declares no %q command", path, name)
	}

	out, err := s.shell.Run(ctx, path, command)
	if err != nil {
		return out, &CommandError{Path: path, Name: name, Command: command, Output: string(out), err: err}
	}

	return out, nil
}

// IsRunning reports whether any live process has its working directory in
// the checkout at path. Any command counts, declared in a manifest or not.
func (s *Supervisor) IsRunning(ctx context.Context, path string) (bool, error) {
	procs, err := s.finder.FindByCWD(ctx, path)
	if err != nil {
		s.logger.Warn("process listing failed", "path", path, "error", err)
		return false, nil
	}

	return len(procs) > 0, nil
}

// Go runs op on a background task and returns a channel receiving its error.
func (s *Supervisor) Go(op func() error) <-chan error {
	ch := make(chan error, 1)

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		ch <- op()
	}()

	return ch
}

// StartAsync is Start on a background task.
func (s *Supervisor) StartAsync(ctx context.Context, path string) <-chan error {
	return s.Go(func() error {
		_, err := s.Start(ctx, path)
		return err
	})
}

// StopAsync is Stop on a background task.
func (s *Supervisor) StopAsync(ctx context.Context, path string) <-chan error {
	return s.Go(func() error {
		_, err := s.Stop(ctx, path)
		return err
	})
}

// RestartAsync is Restart on a background task.
func (s *Supervisor) RestartAsync(ctx context.Context, path string) <-chan error {
	return s.Go(func() error {
		_, err := s.Restart(ctx, path)
		return err
	})
}

// Wait blocks until every background task finished.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

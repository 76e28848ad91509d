// Package scheduler runs the sync loop: it periodically reconciles the remote
// repository listing against local checkouts, cloning and pulling as needed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/inovacc/reposync/internal/mirror"
	"github.com/inovacc/reposync/internal/model"
)

// ErrAlreadyRunning is returned by Run when the scheduler loop is already active.
var ErrAlreadyRunning = errors.New("scheduler is already running")

// Syncer performs the git side of a pass.
type Syncer interface {
	Clone(ctx context.Context, cloneURL, parentDir string) error
	Pull(ctx context.Context, pullURL, repoDir string) error
}

// SettingsStore is the part of the Repository Settings Store a pass writes to.
type SettingsStore interface {
	Ensure(user, name string) (model.RepositorySettings, error)
	RecordSync(user, name, path string, at time.Time) error
}

// SnapshotStore keeps the last synced descriptor of each repository.
type SnapshotStore interface {
	Load() (map[string]model.RepositoryDescriptor, error)
	Save(d model.RepositoryDescriptor) error
}

// StopFlag is the operator stop request kept in the settings table.
type StopFlag interface {
	StopRequested() (bool, error)
	SetStopRequested(v bool) error
}

// Options wires a Scheduler to its collaborators. Mirror, Git, Settings and
// Snapshots are required.
type Options struct {
	Mirror    mirror.Mirror
	Git       Syncer
	Settings  SettingsStore
	Snapshots SnapshotStore
	Flags     StopFlag
	Logger    *slog.Logger

	// OnPull runs after a successful pull and its settings update
	OnPull func(repoName, path, key, fullName string)

	// OnClone runs after a successful clone and its settings update
	OnClone func(repoName, path string)

	// Now replaces time.Now
	Now func() time.Time
}

// Scheduler is one sync loop instance.
type Scheduler struct {
	cfg  model.Config
	opts Options
	log  *slog.Logger
	now  func() time.Time

	state   atomic.Int32
	running atomic.Bool

	stop     chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}

	// owned by the Run goroutine
	nextCheck time.Time

	mu        sync.Mutex
	lastPass  PassReport
	lastFetch time.Time
}

// New validates cfg and creates a Scheduler.
func New(cfg model.Config, opts Options) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scheduler config: %w", err)
	}

	switch {
	case opts.Mirror == nil:
		return nil, errors.New("scheduler needs a mirror")
	case opts.Git == nil:
		return nil, errors.New("scheduler needs a git syncer")
	case opts.Settings == nil:
		return nil, errors.New("scheduler needs a settings store")
	case opts.Snapshots == nil:
		return nil, errors.New("scheduler needs a snapshot store")
	}

	s := &Scheduler{
		cfg:     cfg,
		opts:    opts,
		log:     opts.Logger,
		now:     opts.Now,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	if s.log == nil {
		s.log = slog.Default()
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s, nil
}

// State returns the current lifecycle phase.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	for {
		cur := State(s.state.Load())
		// STOPPING and STOPPED are sticky
		if cur == Stopped || (cur == Stopping && st != Stopped) {
			return
		}

		if s.state.CompareAndSwap(int32(cur), int32(st)) {
			return
		}
	}
}

// RequestStop asks the loop to stop. It is safe for concurrent use and idempotent.
// The loop finishes an in-flight clone or pull before stopping.
func (s *Scheduler) RequestStop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Stopped is closed once Run has returned.
func (s *Scheduler) Stopped() <-chan struct{} {
	return s.stopped
}

// LastPass returns the report of the most recent pass.
func (s *Scheduler) LastPass() PassReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastPass
}

// LastFetch returns when the remote listing last succeeded.
func (s *Scheduler) LastFetch() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastFetch
}

// Run blocks, running a pass immediately and then every PassInterval, until
// RequestStop is called, the operator stop flag is set, or ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	defer close(s.stopped)
	defer s.setState(Stopped)

	start := s.now()
	s.nextCheck = start
	nextPass := start

	s.log.Info("scheduler started",
		slog.String("projects_root", s.cfg.ProjectsRoot),
		slog.Duration("pass_interval", s.cfg.PassInterval),
		slog.Duration("stop_check_interval", s.cfg.StopCheckInterval),
	)

	for {
		if s.checkpoint(ctx) {
			break
		}

		if !s.now().Before(nextPass) {
			report := s.RunPass(ctx)

			s.mu.Lock()
			s.lastPass = report
			s.mu.Unlock()

			nextPass = advance(nextPass, s.cfg.PassInterval, s.now())

			if report.Stopped {
				break
			}

			continue
		}

		s.setState(Sleeping)

		if s.sleepUntil(ctx, nextPass) {
			break
		}
	}

	s.log.Info("scheduler stopped")

	return nil
}

// advance moves deadline forward by whole intervals until it lies after now.
// Missed ticks are skipped, never fired twice.
func advance(deadline time.Time, interval time.Duration, now time.Time) time.Time {
	deadline = deadline.Add(interval)

	if !deadline.After(now) {
		// the gap saturates for a zero deadline, so stay off multiplication
		deadline = now.Add(interval - now.Sub(deadline)%interval)
	}

	return deadline
}

// stopRequested polls the stop channel and ctx without blocking.
func (s *Scheduler) stopRequested(ctx context.Context) bool {
	select {
	case <-s.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// checkpoint reports whether the loop must stop. When the stop-check
// deadline has passed it also polls the operator stop flag, which is reset
// once observed.
func (s *Scheduler) checkpoint(ctx context.Context) bool {
	if s.stopRequested(ctx) {
		s.setState(Stopping)
		return true
	}

	now := s.now()
	if now.Before(s.nextCheck) {
		return false
	}

	s.nextCheck = advance(s.nextCheck, s.cfg.StopCheckInterval, now)

	if s.opts.Flags == nil {
		return false
	}

	requested, err := s.opts.Flags.StopRequested()
	if err != nil {
		s.log.Warn("cannot read stop flag", slog.String("error", err.Error()))
		return false
	}

	if !requested {
		return false
	}

	s.log.Info("stop requested through the settings table")

	if err := s.opts.Flags.SetStopRequested(false); err != nil {
		s.log.Warn("cannot reset stop flag", slog.String("error", err.Error()))
	}

	s.RequestStop()
	s.setState(Stopping)

	return true
}

// sleepUntil waits for deadline, waking at each stop-check deadline.
// It returns true when the loop must stop.
func (s *Scheduler) sleepUntil(ctx context.Context, deadline time.Time) bool {
	for {
		now := s.now()
		if !now.Before(deadline) {
			return s.checkpoint(ctx)
		}

		wake := deadline
		if s.nextCheck.Before(wake) {
			wake = s.nextCheck
		}

		timer := time.NewTimer(wake.Sub(now))

		select {
		case <-s.stop:
		case <-ctx.Done():
		case <-timer.C:
		}

		timer.Stop()

		if s.checkpoint(ctx) {
			return true
		}
	}
}

// pause waits the configured pause between two repository actions.
func (s *Scheduler) pause(ctx context.Context) bool {
	if s.cfg.Pause <= 0 {
		return s.checkpoint(ctx)
	}

	return s.sleepUntil(ctx, s.now().Add(s.cfg.Pause))
}

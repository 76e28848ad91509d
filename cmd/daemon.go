package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/inovacc/reposync/internal/application"
	"github.com/inovacc/reposync/internal/auth"
	"github.com/inovacc/reposync/internal/git"
	"github.com/inovacc/reposync/internal/localdata"
	"github.com/inovacc/reposync/internal/metrics"
	"github.com/inovacc/reposync/internal/mirror"
	"github.com/inovacc/reposync/internal/model"
	"github.com/inovacc/reposync/internal/process"
	"github.com/inovacc/reposync/internal/scheduler"
)

// replaceTimeout is how long --replace waits for the previous instance to
// finish its in-flight repository and exit.
const replaceTimeout = 30 * time.Second

// daemonOptions control the process-level behaviour of a long-running instance.
type daemonOptions struct {
	// Replace terminates a previous live instance instead of refusing to start
	Replace bool

	// KillSubprocesses stops every launched application on exit
	KillSubprocesses bool

	// Once runs a single pass instead of the loop
	Once bool

	Logger *slog.Logger
}

// daemon is one scheduler instance with its collaborators.
type daemon struct {
	cfg    model.Config
	opts   daemonOptions
	c      *components
	sched  *scheduler.Scheduler
	logger *slog.Logger
}

func newDaemon(cfg model.Config, opts daemonOptions) (*daemon, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	token, err := auth.GitHub(cfg.Token, "")
	if err != nil {
		return nil, err
	}

	logger.Info("using GitHub token", slog.String("source", string(token.Source)), slog.String("name", token.Name))

	gh, err := mirror.NewGitHub(token.Token, mirror.Options{Logger: logger})
	if err != nil {
		return nil, err
	}

	c, err := openComponents(cfg)
	if err != nil {
		return nil, err
	}

	d := &daemon{cfg: cfg, opts: opts, c: c, logger: logger}

	d.sched, err = scheduler.New(cfg, scheduler.Options{
		Mirror:    gh,
		Git:       git.NewClient(),
		Settings:  c.repos,
		Snapshots: c.snapshots,
		Flags:     c.flags,
		Logger:    logger,
		OnPull:    d.onPull,
		OnClone:   d.onClone,
	})
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	return d, nil
}

func (d *daemon) onPull(repoName, path, key, fullName string) {
	d.logger.Info("repository pulled", slog.String("repo", fullName), slog.String("key", key), slog.String("path", path))
	d.c.sup.RestartOnPull(context.Background(), repoName, path)
}

func (d *daemon) onClone(repoName, path string) {
	d.logger.Info("repository cloned", slog.String("name", repoName), slog.String("path", path))
}

// claim records this process in local data, dealing with a previous instance first.
func (d *daemon) claim() error {
	exe := application.ExecutableName()

	pid, alive, err := d.c.local.PreviousInstance(exe)
	if err != nil {
		d.logger.Warn("cannot read local data", slog.String("error", err.Error()))
	}

	if alive {
		if !d.opts.Replace {
			return fmt.Errorf("another %s instance is running with pid %d (use --replace to stop it)", application.AppName, pid)
		}

		d.logger.Info("terminating previous instance", slog.Int("pid", pid))

		if err := process.Terminate(pid); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("failed to terminate previous instance %d: %w", pid, err)
		}

		if err := process.WaitForExit(pid, replaceTimeout, 0, nil); err != nil {
			return fmt.Errorf("previous instance did not stop within timeout: %w", err)
		}
	}

	return d.c.local.RecordSelf(d.opts.KillSubprocesses)
}

// startOnBoot starts every enabled application flagged start_on_boot.
func (d *daemon) startOnBoot(ctx context.Context) {
	all, err := d.c.repos.GetAll()
	if err != nil {
		d.logger.Warn("cannot list repository settings", slog.String("error", err.Error()))
		return
	}

	for _, rs := range all {
		if !rs.Enabled || !rs.StartOnBoot {
			continue
		}

		d.c.sup.Go(func() error {
			_, err := d.c.sup.SetupAndStart(ctx, rs)
			if err != nil {
				d.logger.Error("start on boot failed", slog.String("user", rs.User), slog.String("repo", rs.Name), slog.String("error", err.Error()))
			}

			return err
		})
	}
}

// run blocks until the scheduler stops.
func (d *daemon) run(ctx context.Context) error {
	if err := d.claim(); err != nil {
		return err
	}

	// a flag left over from a stop request nobody observed must not stop this run
	if requested, err := d.c.flags.StopRequested(); err == nil && requested {
		d.logger.Info("clearing stale stop request")
		_ = d.c.flags.SetStopRequested(false)
	}

	if d.cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, d.cfg.MetricsAddr, d.logger); err != nil {
				d.logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	d.startOnBoot(ctx)

	if d.opts.Once {
		report := d.sched.RunPass(ctx)
		d.c.sup.Wait()

		return report.Err
	}

	err := d.sched.Run(ctx)

	d.c.sup.Wait()

	return err
}

func (d *daemon) stop() {
	d.sched.RequestStop()
}

// close releases the stores and, when asked to, stops launched applications.
func (d *daemon) close() error {
	if d.opts.KillSubprocesses {
		for _, err := range d.c.local.TerminateSubprocesses(process.GroupSignaler{}) {
			d.logger.Warn("failed to stop subprocess", slog.String("error", err.Error()))
		}
	}

	if err := d.c.local.Update(func(data *localdata.Data) {
		if data.PID == os.Getpid() {
			data.PID = 0
		}
	}); err != nil {
		d.logger.Warn("cannot update local data", slog.String("error", err.Error()))
	}

	return d.c.Close()
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/inovacc/reposync/internal/git"
	"github.com/inovacc/reposync/internal/metrics"
	"github.com/inovacc/reposync/internal/model"
)

// Pass outcomes reported to metrics.
const (
	OutcomeCompleted = "completed"
	OutcomeAborted   = "aborted"
	OutcomeStopped   = "stopped"
)

// Action is the outcome of one repository within a pass.
type Action struct {
	FullName string
	Decision Decision
	Path     string
	Reason   string
	Err      error
}

// PassReport summarizes one reconciliation pass.
type PassReport struct {
	ID       string
	Started  time.Time
	Duration time.Duration

	Cloned   []string
	Pulled   []string
	Skipped  []string
	Failed   []string
	Deferred []string

	Actions []Action

	// Err is set when the fetch failed and the pass was aborted
	Err error

	// Stopped is true when a stop request ended the pass early
	Stopped bool
}

// Outcome classifies the pass for metrics and logs.
func (r PassReport) Outcome() string {
	switch {
	case r.Err != nil:
		return OutcomeAborted
	case r.Stopped:
		return OutcomeStopped
	default:
		return OutcomeCompleted
	}
}

func (r *PassReport) add(a Action) {
	r.Actions = append(r.Actions, a)

	switch {
	case a.Err != nil:
		r.Failed = append(r.Failed, a.FullName)
	case a.Reason == reasonQuota:
		r.Deferred = append(r.Deferred, a.FullName)
	case a.Decision == Clone:
		r.Cloned = append(r.Cloned, a.FullName)
	case a.Decision == Pull:
		r.Pulled = append(r.Pulled, a.FullName)
	default:
		r.Skipped = append(r.Skipped, a.FullName)
	}
}

const (
	reasonMissing  = "checkout missing"
	reasonNewer    = "remote pushed after last sync"
	reasonUpToDate = "up to date"
	reasonUnknown  = "no prior metadata"
	reasonQuota    = "clone quota exhausted"
	reasonNoKey    = "descriptor has no unique key"
)

// RunPass fetches the remote listing once and reconciles every repository.
// A fetch failure aborts the pass and is returned in the report.
func (s *Scheduler) RunPass(ctx context.Context) (report PassReport) {
	report = PassReport{ID: uuid.NewString(), Started: s.now()}

	if s.nextCheck.IsZero() {
		s.nextCheck = report.Started
	}
	log := s.log.With(slog.String("pass_id", report.ID))

	defer func() {
		report.Duration = s.now().Sub(report.Started)
		metrics.ObservePass(report.Outcome(), report.Duration)

		log.Info("pass finished",
			slog.String("outcome", report.Outcome()),
			slog.Int("cloned", len(report.Cloned)),
			slog.Int("pulled", len(report.Pulled)),
			slog.Int("skipped", len(report.Skipped)),
			slog.Int("failed", len(report.Failed)),
			slog.Int("deferred", len(report.Deferred)),
			slog.Duration("duration", report.Duration),
		)
	}()

	s.setState(Fetching)

	repos, owners, err := s.fetch(ctx)
	if err != nil {
		report.Err = err
		log.Error("fetch failed, pass aborted", slog.String("error", err.Error()))

		return report
	}

	s.mu.Lock()
	s.lastFetch = s.now()
	s.mu.Unlock()

	for _, owner := range owners {
		if err := os.MkdirAll(filepath.Join(s.cfg.ProjectsRoot, owner), 0o755); err != nil {
			log.Warn("cannot create owner folder", slog.String("owner", owner), slog.String("error", err.Error()))
		}
	}

	snapshots, err := s.opts.Snapshots.Load()
	if err != nil {
		report.Err = err
		log.Error("cannot load repository snapshots, pass aborted", slog.String("error", err.Error()))

		return report
	}

	s.setState(Reconciling)

	quota := s.cfg.MaxClonesPerPass
	metrics.SetCloneQuota(quota)

	seen := make(map[string]struct{}, len(repos))

	for _, d := range repos {
		if s.checkpoint(ctx) {
			report.Stopped = true
			break
		}

		key := d.Key(s.cfg.UniqueKey)
		if key == "" {
			report.add(Action{FullName: d.FullName, Decision: Skip, Reason: reasonNoKey})
			log.Warn("skipping repository", slog.String("repo", d.FullName), slog.String("action", "skip"), slog.String("reason", reasonNoKey))

			continue
		}

		if _, dup := seen[key]; dup {
			continue
		}

		seen[key] = struct{}{}

		var prior *model.RepositoryDescriptor
		if p, ok := snapshots[key]; ok {
			prior = &p
		}

		lc := model.CheckoutFor(s.cfg.ProjectsRoot, d)

		decision, derr := Decide(prior, d, lc.Exists)

		action := Action{FullName: d.FullName, Decision: decision, Path: lc.Path}

		switch {
		case errors.Is(derr, ErrUnknownMetadata):
			action.Reason = reasonUnknown
			log.Warn("cannot tell whether checkout is stale",
				slog.String("repo", d.FullName), slog.String("action", "skip"),
				slog.String("reason", reasonUnknown), slog.String("path", lc.Path))
		case decision == Clone:
			action.Reason = reasonMissing
		case decision == Pull:
			action.Reason = reasonNewer
		default:
			action.Reason = reasonUpToDate
		}

		if decision == Clone && quota <= 0 {
			action.Reason = reasonQuota
			report.add(action)
			metrics.IncAction(decision.String(), "deferred")
			log.Info("clone deferred to next pass",
				slog.String("repo", d.FullName), slog.String("action", "clone"), slog.String("reason", reasonQuota))

			continue
		}

		if decision == Skip {
			report.add(action)
			metrics.IncAction(decision.String(), "ok")

			if derr == nil {
				log.Debug("repository skipped",
					slog.String("repo", d.FullName), slog.String("action", "skip"), slog.String("reason", action.Reason))
			}

			continue
		}

		if decision == Clone {
			quota--
			metrics.SetCloneQuota(quota)
		}

		action.Err = s.sync(ctx, log, decision, d, lc)
		report.add(action)

		if s.pause(ctx) {
			report.Stopped = true
			break
		}
	}

	return report
}

// fetch lists the user's repositories followed by each organization's,
// and the owner folders they need.
func (s *Scheduler) fetch(ctx context.Context) ([]model.RepositoryDescriptor, []string, error) {
	m := s.opts.Mirror

	if err := m.CheckCredentials(ctx); err != nil {
		return nil, nil, fmt.Errorf("credential check failed: %w", err)
	}

	repos, err := m.ListRepositories(ctx, s.cfg.PerPage, s.cfg.MaxResults)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list repositories: %w", err)
	}

	var owners []string

	seenOwner := map[string]struct{}{}
	addOwner := func(o string) {
		if _, ok := seenOwner[o]; o != "" && !ok {
			seenOwner[o] = struct{}{}
			owners = append(owners, o)
		}
	}

	for _, d := range repos {
		addOwner(d.OwnerLogin())
	}

	if !s.cfg.IncludeOrgs {
		return repos, owners, nil
	}

	orgs, err := m.ListOrganizations(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list organizations: %w", err)
	}

	for _, org := range orgs {
		addOwner(org.Login)

		orgRepos, err := m.ListOrgRepositories(ctx, org.Login)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list repositories of %s: %w", org.Login, err)
		}

		for _, d := range orgRepos {
			addOwner(d.OwnerLogin())
		}

		repos = append(repos, orgRepos...)
	}

	return repos, owners, nil
}

// sync runs the clone or pull of d, then stores its snapshot and settings,
// then fires the matching callback.
func (s *Scheduler) sync(ctx context.Context, log *slog.Logger, decision Decision, d model.RepositoryDescriptor, lc model.LocalCheckout) error {
	url := d.URL(s.cfg.UseSSH)
	attrs := []any{
		slog.String("repo", d.FullName),
		slog.String("action", decision.String()),
		slog.String("path", lc.Path),
	}

	// a started git command is never interrupted by cancellation
	gitCtx := context.WithoutCancel(ctx)

	var err error

	switch decision {
	case Clone:
		err = s.opts.Git.Clone(gitCtx, url, filepath.Join(s.cfg.ProjectsRoot, lc.Owner))
	case Pull:
		s.warnRemoteMismatch(log, lc.Path, url, d)
		err = s.opts.Git.Pull(gitCtx, url, lc.Path)
	}

	if err != nil {
		metrics.IncAction(decision.String(), "failed")
		log.Error("git "+decision.String()+" failed", append(attrs,
			slog.String("reason", git.Reason(err)),
			slog.String("error", err.Error()))...)

		return err
	}

	metrics.IncAction(decision.String(), "ok")
	log.Info("repository synced", attrs...)

	if err := s.opts.Snapshots.Save(d); err != nil {
		log.Error("cannot store repository snapshot", append(attrs, slog.String("error", err.Error()))...)
	}

	if _, err := s.opts.Settings.Ensure(lc.Owner, lc.RepoName); err != nil {
		log.Error("cannot create repository settings", append(attrs, slog.String("error", err.Error()))...)
	} else if err := s.opts.Settings.RecordSync(lc.Owner, lc.RepoName, lc.Path, s.now()); err != nil {
		log.Error("cannot update repository settings", append(attrs, slog.String("error", err.Error()))...)
	}

	switch decision {
	case Clone:
		if s.opts.OnClone != nil {
			s.opts.OnClone(lc.RepoName, lc.Path)
		}
	case Pull:
		if s.opts.OnPull != nil {
			s.opts.OnPull(lc.RepoName, lc.Path, s.cfg.UniqueKey, d.FullName)
		}
	}

	return nil
}

// warnRemoteMismatch logs when the checkout's origin is not the URL about to be pulled.
func (s *Scheduler) warnRemoteMismatch(log *slog.Logger, path, url string, d model.RepositoryDescriptor) {
	origin, err := git.OriginURL(path)
	if err != nil || origin == "" {
		return
	}

	if git.SameRemote(origin, url) || git.SameRemote(origin, d.CloneURL) || git.SameRemote(origin, d.SSHURL) {
		return
	}

	log.Warn("checkout origin differs from the remote repository",
		slog.String("repo", d.FullName), slog.String("path", path),
		slog.String("origin", git.SanitizeURL(origin)), slog.String("remote", git.SanitizeURL(url)))
}

package supervisor

import (
	"context"
	"path/filepath"
)

// RestartOnPull is the post-pull hook: when the pulled repository's
// application is enabled it is stopped right away, then set up and started
// on a background task. The application lock is held from the stop until
// the start finishes, so no other operation interleaves.
func (s *Supervisor) RestartOnPull(ctx context.Context, repoName, path string) <-chan error {
	user := filepath.Base(filepath.Dir(filepath.Clean(path)))

	done := make(chan error, 1)

	if s.settings == nil {
		done <- nil
		return done
	}

	rs, found, err := s.settings.Get(user, repoName)
	if err != nil {
		s.logger.Warn("cannot load settings after pull", "user", user, "repo", repoName, "error", err)
		done <- err

		return done
	}

	if !found || !rs.Enabled {
		s.logger.Debug("application not enabled, skipping restart", "user", user, "repo", repoName)
		done <- nil

		return done
	}

	if rs.Path == "" {
		rs.Path = path
	}

	mu := s.locks.get(rs.Path)
	mu.Lock()

	if _, err := s.stop(ctx, rs.Path); err != nil {
		s.logger.Warn("stop after pull failed", "path", rs.Path, "error", err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer mu.Unlock()

		_, err := s.setupAndStart(ctx, rs)
		if err != nil {
			s.logger.Error("restart after pull failed", "path", rs.Path, "error", err)
		}

		done <- err
	}()

	return done
}

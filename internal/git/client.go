// Package git runs the git command line for clone and pull.
package git

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Client wraps git operations
type Client struct {
	GitPath string // Path to git executable
}

// NewClient creates a new git client
func NewClient() *Client {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		gitPath = "git"
	}

	return &Client{GitPath: gitPath}
}

// Command creates a git command running in dir
// Note: Do not set Stdout/Stderr if you plan to use CombinedOutput()
func (c *Client) Command(ctx context.Context, dir string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.GitPath, args...)
	cmd.Dir = dir

	return cmd
}

// Clone runs `git clone <url>` from parentDir, so the checkout lands in
// parentDir/<name derived by git>.
func (c *Client) Clone(ctx context.Context, cloneURL, parentDir string) error {
	return c.run(ctx, parentDir, "clone", cloneURL)
}

// Pull runs `git pull <url>` inside repoDir.
func (c *Client) Pull(ctx context.Context, pullURL, repoDir string) error {
	return c.run(ctx, repoDir, "pull", pullURL)
}

func (c *Client) run(ctx context.Context, dir string, args ...string) error {
	output, err := c.Command(ctx, dir, args...).CombinedOutput()
	if err != nil {
		return NewGitError(args, string(output), err)
	}

	return nil
}

// GitError is a failed git invocation with its captured output
type GitError struct {
	ExitCode int
	Stderr   string
	Args     []string
	err      error
}

func (e *GitError) Error() string {
	cmd := "git"
	if len(e.Args) > 0 {
		cmd = "git " + e.Args[0]
	}

	if e.Stderr == "" {
		return fmt.Errorf("%s failed: %w", cmd, e.err).Error()
	}

	return fmt.Sprintf("%s failed: %s", cmd, strings.TrimSpace(e.Stderr))
}

func (e *GitError) Unwrap() error {
	return e.err
}

// NewGitError creates a GitError from command output and error
func NewGitError(args []string, stderr string, err error) *GitError {
	exitCode := -1

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}

	// credentials embedded in a URL never reach logs
	clean := make([]string, len(args))
	for i, a := range args {
		clean[i] = SanitizeURL(a)
		if clean[i] != a {
			stderr = strings.ReplaceAll(stderr, a, clean[i])
		}
	}

	return &GitError{
		ExitCode: exitCode,
		Stderr:   stderr,
		Args:     clean,
		err:      err,
	}
}

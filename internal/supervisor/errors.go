package supervisor

import (
	"errors"
	"fmt"

	"github.com/inovacc/reposync/internal/manifest"
)

var (
	// ErrNoStartCommand is returned when the manifest declares no start command.
	ErrNoStartCommand = errors.New("manifest declares no start command")

	// ErrManifestMissing is returned when a checkout has no manifest at all.
	ErrManifestMissing = manifest.ErrManifestMissing
)

// CommandError is a manifest command that failed to run or exited early
type CommandError struct {
	Path    string
	Name    string
	Command string
	Output  string
	err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s command %q in %s failed: %v", e.Name, e.Command, e.Path, e.err)
}

func (e *CommandError) Unwrap() error {
	return e.err
}

package scheduler

import (
	"errors"

	"github.com/inovacc/reposync/internal/model"
)

// Decision is what a pass does with one repository.
type Decision int

const (
	Skip Decision = iota
	Clone
	Pull
)

func (d Decision) String() string {
	switch d {
	case Clone:
		return "clone"
	case Pull:
		return "pull"
	default:
		return "skip"
	}
}

// ErrUnknownMetadata is returned with Skip when a checkout exists but no
// descriptor was ever stored for it, so staleness cannot be judged.
var ErrUnknownMetadata = errors.New("checkout exists but no prior metadata is stored")

// Decide compares the stored descriptor of a repository with the fetched one.
// A missing checkout is always cloned. An existing checkout is pulled only
// when the remote was pushed strictly after the stored push time.
func Decide(prior *model.RepositoryDescriptor, remote model.RepositoryDescriptor, localExists bool) (Decision, error) {
	if !localExists {
		return Clone, nil
	}

	if prior == nil {
		return Skip, ErrUnknownMetadata
	}

	if remote.PushedAt.After(prior.PushedAt) {
		return Pull, nil
	}

	return Skip, nil
}

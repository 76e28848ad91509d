// Package mirror lists the repositories the authenticated identity can sync.
package mirror

import (
	"context"
	"errors"
	"fmt"

	"github.com/inovacc/reposync/internal/model"
)

// Mirror is the remote repository listing consumed by the scheduler.
type Mirror interface {
	// CheckCredentials returns a *CredentialError when the remote rejects the token.
	CheckCredentials(ctx context.Context) error

	// ListRepositories returns the repositories of the authenticated user.
	// maxResults <= 0 means no limit.
	ListRepositories(ctx context.Context, perPage, maxResults int) ([]model.RepositoryDescriptor, error)

	ListOrganizations(ctx context.Context) ([]Organization, error)

	ListOrgRepositories(ctx context.Context, org string) ([]model.RepositoryDescriptor, error)
}

// Organization is an organization the authenticated identity belongs to
type Organization struct {
	Login       string
	Name        string
	Description string
}

// CredentialError reports a missing, invalid or insufficient token.
type CredentialError struct {
	Reason string
	err    error
}

func (e *CredentialError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("credentials rejected: %s: %v", e.Reason, e.err)
	}

	return "credentials rejected: " + e.Reason
}

func (e *CredentialError) Unwrap() error {
	return e.err
}

// IsCredentialError reports whether err is or wraps a *CredentialError.
func IsCredentialError(err error) bool {
	var ce *CredentialError
	return errors.As(err, &ce)
}

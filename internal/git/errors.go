package git

import (
	"errors"
	"os/exec"
	"strings"
)

// Common error messages from git
const (
	errMsgNotRepository    = "not a git repository"
	errMsgAuthFailed       = "Authentication failed"
	errMsgPermissionDenied = "Permission denied"
	errMsgRefNotFound      = "couldn't find remote ref"
	errMsgConflict         = "CONFLICT"
	errMsgAlreadyExists    = "already exists"
)

// IsNotRepository checks if the error indicates not a git repository
func IsNotRepository(err error) bool {
	return containsError(err, errMsgNotRepository)
}

// IsAuthRequired checks if the error indicates authentication is required
func IsAuthRequired(err error) bool {
	return containsError(err, errMsgAuthFailed) || containsError(err, errMsgPermissionDenied)
}

// IsRefNotFound checks if the error indicates a ref was not found
func IsRefNotFound(err error) bool {
	return containsError(err, errMsgRefNotFound)
}

// IsConflict checks if the error indicates a merge conflict
func IsConflict(err error) bool {
	return containsError(err, errMsgConflict)
}

// IsAlreadyExists checks if the error indicates the clone target already exists
func IsAlreadyExists(err error) bool {
	return containsError(err, errMsgAlreadyExists)
}

// Reason classifies a git failure for logs.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case IsAuthRequired(err):
		return "auth"
	case IsConflict(err):
		return "conflict"
	case IsAlreadyExists(err):
		return "exists"
	case IsNotRepository(err):
		return "not_repository"
	case IsRefNotFound(err):
		return "ref_not_found"
	default:
		return "failed"
	}
}

// containsError checks if the error contains a specific message
func containsError(err error, msg string) bool {
	if err == nil {
		return false
	}

	var gitErr *GitError
	if errors.As(err, &gitErr) {
		return strings.Contains(strings.ToLower(gitErr.Stderr), strings.ToLower(msg))
	}

	return strings.Contains(strings.ToLower(err.Error()), strings.ToLower(msg))
}

// GetExitCode returns the exit code from a git error, or -1 if not available
func GetExitCode(err error) int {
	if err == nil {
		return 0
	}

	var gitErr *GitError
	if errors.As(err, &gitErr) {
		return gitErr.ExitCode
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return -1
}

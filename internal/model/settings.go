package model

import (
	"path/filepath"
	"time"
)

// RepositorySettings is the persisted configuration of one repository, keyed by (User, Name)
type RepositorySettings struct {
	User           string    `json:"user"`
	Name           string    `json:"name"`
	Path           string    `json:"path"`
	Enabled        bool      `json:"enabled"`
	StartOnBoot    bool      `json:"start_on_boot"`
	SetupFinalized bool      `json:"setup_finalized"`
	LastSyncedAt   time.Time `json:"last_synced_at,omitzero"`
}

// DefaultPath returns <root>/<user>/<name>.
func DefaultPath(root, user, name string) string {
	return filepath.Join(root, user, name)
}

package store

import (
	"fmt"

	"github.com/inovacc/reposync/internal/model"
)

// Tables used by reposync.
const (
	// TableRepositories holds the last synced descriptor of every repository
	TableRepositories = "repositories"

	// TableRepositorySettings holds one record per (user, name)
	TableRepositorySettings = "repository_settings"

	// TableSettings holds miscellaneous key/value records
	TableSettings = "settings"
)

// Tables lists every table created when a store is opened.
var Tables = []string{TableRepositories, TableRepositorySettings, TableSettings}

// Record is one stored document.
type Record map[string]any

// Filter selects the records whose fields equal every given value.
// An empty filter matches every record.
type Filter map[string]any

// Store defines the operations the settings store offers.
type Store interface {
	Ping() error
	Close() error

	// Upsert merges record into every record matching match. When nothing
	// matches, a new record made of match and record is inserted.
	Upsert(table string, record Record, match Filter) error

	GetAll(table string) ([]Record, error)
	GetFiltered(table string, match Filter) ([]Record, error)

	// DeleteWhere removes every matching record and returns how many were removed.
	DeleteWhere(table string, match Filter) (int, error)
}

// Open opens the backend named by backend at path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case model.StoreBolt:
		return NewBolt(path)
	case model.StoreSQLite, "":
		return NewSQLite(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// Package settings keeps the per-repository configuration reposync relies on,
// the last synced remote snapshot of every repository, and a handful of
// process-wide key/value flags.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/inovacc/reposync/internal/model"
	"github.com/inovacc/reposync/internal/store"
)

// ErrNotFound is returned when no settings record exists for (user, name).
var ErrNotFound = errors.New("repository settings not found")

// Repositories is the Repository Settings Store.
type Repositories struct {
	st   store.Store
	root string
}

// NewRepositories wraps st. root is the repositories root used for default paths.
func NewRepositories(st store.Store, root string) *Repositories {
	return &Repositories{st: st, root: root}
}

// Root returns the repositories root default paths are built from.
func (r *Repositories) Root() string {
	return r.root
}

func key(user, name string) store.Filter {
	return store.Filter{"user": user, "name": name}
}

// Get returns the settings of (user, name). found is false when no record exists.
func (r *Repositories) Get(user, name string) (model.RepositorySettings, bool, error) {
	recs, err := r.st.GetFiltered(store.TableRepositorySettings, key(user, name))
	if err != nil {
		return model.RepositorySettings{}, false, fmt.Errorf("failed to load settings of %s/%s: %w", user, name, err)
	}

	if len(recs) == 0 {
		return model.RepositorySettings{}, false, nil
	}

	return fromRecord(recs[0]), true, nil
}

// GetAll returns every settings record ordered by user then name.
func (r *Repositories) GetAll() ([]model.RepositorySettings, error) {
	return r.list(nil)
}

// GetUser returns the settings records of one user ordered by name.
func (r *Repositories) GetUser(user string) ([]model.RepositorySettings, error) {
	return r.list(store.Filter{"user": user})
}

func (r *Repositories) list(match store.Filter) ([]model.RepositorySettings, error) {
	recs, err := r.st.GetFiltered(store.TableRepositorySettings, match)
	if err != nil {
		return nil, fmt.Errorf("failed to list repository settings: %w", err)
	}

	out := make([]model.RepositorySettings, 0, len(recs))
	for _, rec := range recs {
		out = append(out, fromRecord(rec))
	}

	slices.SortFunc(out, func(a, b model.RepositorySettings) int {
		if c := strings.Compare(a.User, b.User); c != 0 {
			return c
		}

		return strings.Compare(a.Name, b.Name)
	})

	return out, nil
}

// Ensure returns the settings of (user, name), creating a default record when none exists.
// An existing record is never modified.
func (r *Repositories) Ensure(user, name string) (model.RepositorySettings, error) {
	rs, found, err := r.Get(user, name)
	if err != nil {
		return rs, err
	}

	if found {
		return rs, nil
	}

	rs = model.RepositorySettings{
		User: user,
		Name: name,
		Path: model.DefaultPath(r.root, user, name),
	}

	if err := r.Upsert(rs); err != nil {
		return rs, err
	}

	return rs, nil
}

// Upsert writes every field of rs.
func (r *Repositories) Upsert(rs model.RepositorySettings) error {
	if rs.User == "" || rs.Name == "" {
		return errors.New("settings record needs a user and a name")
	}

	if err := r.st.Upsert(store.TableRepositorySettings, toRecord(rs), key(rs.User, rs.Name)); err != nil {
		return fmt.Errorf("failed to save settings of %s/%s: %w", rs.User, rs.Name, err)
	}

	return nil
}

// Update merges fields into the record of (user, name), creating it if needed.
func (r *Repositories) Update(user, name string, fields store.Record) error {
	if err := r.st.Upsert(store.TableRepositorySettings, fields, key(user, name)); err != nil {
		return fmt.Errorf("failed to update settings of %s/%s: %w", user, name, err)
	}

	return nil
}

// RecordSync stores the checkout path and the time of a successful clone or pull.
func (r *Repositories) RecordSync(user, name, path string, at time.Time) error {
	return r.Update(user, name, store.Record{
		"path":           path,
		"last_synced_at": at.UTC().Format(time.RFC3339),
	})
}

// SetEnabled toggles whether the application of (user, name) is supervised.
func (r *Repositories) SetEnabled(user, name string, enabled bool) error {
	return r.Update(user, name, store.Record{"enabled": enabled})
}

// SetStartOnBoot toggles starting the application when reposync starts.
func (r *Repositories) SetStartOnBoot(user, name string, v bool) error {
	return r.Update(user, name, store.Record{"start_on_boot": v})
}

// SetSetupFinalized records whether the setup command has completed.
func (r *Repositories) SetSetupFinalized(user, name string, v bool) error {
	return r.Update(user, name, store.Record{"setup_finalized": v})
}

// SetDefaultPath resets the path of (user, name) to <root>/<user>/<name>.
func (r *Repositories) SetDefaultPath(user, name string) error {
	return r.Update(user, name, store.Record{"path": model.DefaultPath(r.root, user, name)})
}

// SetDefaultPathForAll resets the path of every record and returns how many were rewritten.
func (r *Repositories) SetDefaultPathForAll() (int, error) {
	all, err := r.GetAll()
	if err != nil {
		return 0, err
	}

	for _, rs := range all {
		if err := r.SetDefaultPath(rs.User, rs.Name); err != nil {
			return 0, err
		}
	}

	return len(all), nil
}

// Delete removes the record of (user, name). It returns ErrNotFound when none existed.
func (r *Repositories) Delete(user, name string) error {
	n, err := r.st.DeleteWhere(store.TableRepositorySettings, key(user, name))
	if err != nil {
		return fmt.Errorf("failed to delete settings of %s/%s: %w", user, name, err)
	}

	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func toRecord(rs model.RepositorySettings) store.Record {
	rec := store.Record{
		"user":            rs.User,
		"name":            rs.Name,
		"path":            rs.Path,
		"enabled":         rs.Enabled,
		"start_on_boot":   rs.StartOnBoot,
		"setup_finalized": rs.SetupFinalized,
	}

	if !rs.LastSyncedAt.IsZero() {
		rec["last_synced_at"] = rs.LastSyncedAt.UTC().Format(time.RFC3339)
	}

	return rec
}

func fromRecord(rec store.Record) model.RepositorySettings {
	rs := model.RepositorySettings{
		User:           asString(rec["user"]),
		Name:           asString(rec["name"]),
		Path:           asString(rec["path"]),
		Enabled:        Bool(rec["enabled"]),
		StartOnBoot:    Bool(rec["start_on_boot"]),
		SetupFinalized: Bool(rec["setup_finalized"]),
	}

	if ts := asString(rec["last_synced_at"]); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			rs.LastSyncedAt = t
		}
	}

	return rs
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

// Bool normalizes a stored flag to a boolean. Flags may be absent, a JSON
// bool, a string such as "true", or a JSON document of the form {"value": x}.
func Bool(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case float64:
		return b != 0
	case int:
		return b != 0
	case map[string]any:
		return Bool(b["value"])
	case store.Record:
		return Bool(b["value"])
	case string:
		s := strings.TrimSpace(b)
		if strings.HasPrefix(s, "{") {
			var doc map[string]any
			if err := json.Unmarshal([]byte(s), &doc); err == nil {
				return Bool(doc["value"])
			}

			return false
		}

		parsed, err := strconv.ParseBool(s)

		return err == nil && parsed
	default:
		return false
	}
}

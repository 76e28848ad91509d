package settings

import (
	"fmt"

	"github.com/inovacc/reposync/internal/store"
)

// StopRepositoryManager is the settings key an operator sets to stop a running scheduler.
const StopRepositoryManager = "stop_repository_manager"

// Flags reads and writes the miscellaneous key/value settings.
type Flags struct {
	st store.Store
}

// NewFlags wraps st.
func NewFlags(st store.Store) *Flags {
	return &Flags{st: st}
}

// Get returns the raw value of key and whether it is set.
func (f *Flags) Get(key string) (any, bool, error) {
	recs, err := f.st.GetFiltered(store.TableSettings, store.Filter{"key": key})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}

	if len(recs) == 0 {
		return nil, false, nil
	}

	v, ok := recs[0]["value"]

	return v, ok, nil
}

// Set stores value under key.
func (f *Flags) Set(key string, value any) error {
	if err := f.st.Upsert(store.TableSettings, store.Record{"value": value}, store.Filter{"key": key}); err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}

	return nil
}

// Bool returns key normalized to a boolean; unset keys are false.
func (f *Flags) Bool(key string) (bool, error) {
	v, _, err := f.Get(key)
	if err != nil {
		return false, err
	}

	return Bool(v), nil
}

// StopRequested reports whether an operator asked the scheduler to stop.
func (f *Flags) StopRequested() (bool, error) {
	return f.Bool(StopRepositoryManager)
}

// SetStopRequested sets or clears the operator stop flag.
func (f *Flags) SetStopRequested(v bool) error {
	return f.Set(StopRepositoryManager, v)
}

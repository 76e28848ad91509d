package settings

import (
	"encoding/json"
	"fmt"

	"github.com/inovacc/reposync/internal/model"
	"github.com/inovacc/reposync/internal/store"
)

// Snapshots holds the last synced descriptor of every repository, keyed by a descriptor field.
type Snapshots struct {
	st        store.Store
	uniqueKey string
}

// NewSnapshots wraps st. uniqueKey names the descriptor field identifying a repository.
func NewSnapshots(st store.Store, uniqueKey string) *Snapshots {
	return &Snapshots{st: st, uniqueKey: uniqueKey}
}

// Load returns every stored descriptor indexed by its unique key value.
func (s *Snapshots) Load() (map[string]model.RepositoryDescriptor, error) {
	recs, err := s.st.GetAll(store.TableRepositories)
	if err != nil {
		return nil, fmt.Errorf("failed to load repository snapshots: %w", err)
	}

	out := make(map[string]model.RepositoryDescriptor, len(recs))

	for _, rec := range recs {
		d, err := descriptorFromRecord(rec)
		if err != nil {
			return nil, err
		}

		k := asString(rec[s.uniqueKey])
		if k == "" {
			k = d.Key(s.uniqueKey)
		}

		if k != "" {
			out[k] = d
		}
	}

	return out, nil
}

// Get returns the descriptor stored under value. found is false when none exists.
func (s *Snapshots) Get(value string) (model.RepositoryDescriptor, bool, error) {
	recs, err := s.st.GetFiltered(store.TableRepositories, store.Filter{s.uniqueKey: value})
	if err != nil {
		return model.RepositoryDescriptor{}, false, fmt.Errorf("failed to load snapshot %s: %w", value, err)
	}

	if len(recs) == 0 {
		return model.RepositoryDescriptor{}, false, nil
	}

	d, err := descriptorFromRecord(recs[0])

	return d, err == nil, err
}

// Save replaces the stored descriptor of d.
func (s *Snapshots) Save(d model.RepositoryDescriptor) error {
	value := d.Key(s.uniqueKey)
	if value == "" {
		return fmt.Errorf("descriptor %s has no %s", d.FullName, s.uniqueKey)
	}

	rec, err := descriptorRecord(d)
	if err != nil {
		return err
	}

	rec[s.uniqueKey] = value

	if err := s.st.Upsert(store.TableRepositories, rec, store.Filter{s.uniqueKey: value}); err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", value, err)
	}

	return nil
}

func descriptorRecord(d model.RepositoryDescriptor) (store.Record, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode descriptor %s: %w", d.FullName, err)
	}

	var rec store.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to encode descriptor %s: %w", d.FullName, err)
	}

	return rec, nil
}

func descriptorFromRecord(rec store.Record) (model.RepositoryDescriptor, error) {
	var d model.RepositoryDescriptor

	data, err := json.Marshal(rec)
	if err != nil {
		return d, fmt.Errorf("failed to decode descriptor: %w", err)
	}

	if err := json.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("failed to decode descriptor: %w", err)
	}

	return d, nil
}

package store

import (
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inovacc/reposync/internal/model"
)

func setupTestStores(t *testing.T) map[string]Store {
	t.Helper()

	stores := make(map[string]Store)

	for _, backend := range []string{model.StoreBolt, model.StoreSQLite} {
		st, err := Open(backend, filepath.Join(t.TempDir(), "test."+backend))
		if err != nil {
			t.Fatalf("failed to open %s store: %v", backend, err)
		}

		t.Cleanup(func() { _ = st.Close() })

		stores[backend] = st
	}

	return stores
}

func TestStore_Ping(t *testing.T) {
	for name, st := range setupTestStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, st.Ping())
		})
	}
}

func TestStore_UpsertInsertsWithMatchFields(t *testing.T) {
	for name, st := range setupTestStores(t) {
		t.Run(name, func(t *testing.T) {
			err := st.Upsert(TableRepositorySettings,
				Record{"path": "/r/alice/tool"},
				Filter{"user": "alice", "name": "tool"})
			require.NoError(t, err)

			recs, err := st.GetAll(TableRepositorySettings)
			require.NoError(t, err)
			require.Len(t, recs, 1)

			assert.Equal(t, "alice", recs[0]["user"])
			assert.Equal(t, "tool", recs[0]["name"])
			assert.Equal(t, "/r/alice/tool", recs[0]["path"])
		})
	}
}

func TestStore_UpsertMergesExisting(t *testing.T) {
	for name, st := range setupTestStores(t) {
		t.Run(name, func(t *testing.T) {
			match := Filter{"user": "alice", "name": "tool"}

			require.NoError(t, st.Upsert(TableRepositorySettings, Record{"enabled": true, "path": "/a"}, match))
			require.NoError(t, st.Upsert(TableRepositorySettings, Record{"path": "/b"}, match))

			recs, err := st.GetFiltered(TableRepositorySettings, match)
			require.NoError(t, err)
			require.Len(t, recs, 1)

			assert.Equal(t, true, recs[0]["enabled"])
			assert.Equal(t, "/b", recs[0]["path"])
		})
	}
}

func TestStore_FilterNormalizesNumbers(t *testing.T) {
	for name, st := range setupTestStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.Upsert(TableRepositories, Record{"full_name": "a/b"}, Filter{"id": 42}))

			recs, err := st.GetFiltered(TableRepositories, Filter{"id": 42})
			require.NoError(t, err)
			assert.Len(t, recs, 1)

			recs, err = st.GetFiltered(TableRepositories, Filter{"id": 43})
			require.NoError(t, err)
			assert.Empty(t, recs)
		})
	}
}

func TestStore_DeleteWhere(t *testing.T) {
	for name, st := range setupTestStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, repo := range []string{"one", "two", "three"} {
				require.NoError(t, st.Upsert(TableRepositorySettings, nil, Filter{"user": "alice", "name": repo}))
			}

			require.NoError(t, st.Upsert(TableRepositorySettings, nil, Filter{"user": "bob", "name": "one"}))

			n, err := st.DeleteWhere(TableRepositorySettings, Filter{"user": "alice", "name": "two"})
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			recs, err := st.GetFiltered(TableRepositorySettings, Filter{"user": "alice"})
			require.NoError(t, err)

			var names []string
			for _, r := range recs {
				names = append(names, r["name"].(string))
			}

			sort.Strings(names)
			assert.Equal(t, []string{"one", "three"}, names)

			n, err = st.DeleteWhere(TableRepositorySettings, Filter{"user": "nobody"})
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestStore_TablesAreIsolated(t *testing.T) {
	for name, st := range setupTestStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.Upsert(TableSettings, Record{"value": "x"}, Filter{"key": "k"}))

			recs, err := st.GetAll(TableRepositories)
			require.NoError(t, err)
			assert.Empty(t, recs)
		})
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open("postgres", filepath.Join(t.TempDir(), "x"))
	assert.Error(t, err)
}

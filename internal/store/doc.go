// Package store provides the settings store reposync persists into.
//
// The store is a small document store: every named table holds JSON records
// that are matched by field equality. The [Store] interface abstracts the two
// embedded backends:
//
//   - SQLite (default), via modernc.org/sqlite, see package store/sqlite
//   - BoltDB, one bucket per table
//
// Use [Open] to pick a backend at runtime:
//
//	st, err := store.Open(model.StoreSQLite, path)
//	recs, err := st.GetFiltered(store.TableRepositorySettings, store.Filter{"user": "alice"})
//
// Both backends serialize writers, so the store is safe to share between the
// scheduler and concurrently running supervisor tasks.
package store

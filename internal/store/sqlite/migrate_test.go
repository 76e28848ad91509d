package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrations(t *testing.T) {
	migrations, err := NewMigrator(nil).LoadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	for i, mig := range migrations {
		assert.Equal(t, i+1, mig.Version)
		assert.NotEmpty(t, mig.UpSQL)
	}

	assert.Equal(t, "records", migrations[0].Description)
}

func TestNew_MigratesOnceAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "reposync.db")

	db, err := New(path)
	require.NoError(t, err)

	version, err := NewMigrator(db.db).CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	require.NoError(t, db.Update(func(tx *Tx) error {
		return tx.Put("settings", "k", []byte(`{"key":"k"}`))
	}))
	require.NoError(t, db.Close())

	db, err = New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Rows("settings")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.JSONEq(t, `{"key":"k"}`, string(rows[0].Doc))
}

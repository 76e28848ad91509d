// Package sqlite provides the SQLite document table behind the reposync settings store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const queryTimeout = 30 * time.Second

// Row is one stored document.
type Row struct {
	ID  string
	Doc []byte
}

// DB is a SQLite database holding documents grouped by table name.
type DB struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath and applies migrations.
func New(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite doesn't handle multiple writers well
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := NewMigrator(db).MigrateUp(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (s *DB) Close() error {
	return s.db.Close()
}

// Ping checks if the database is accessible.
func (s *DB) Ping() error {
	return s.db.Ping()
}

// Tx is a write transaction over the documents table.
type Tx struct {
	ctx context.Context
	tx  *sql.Tx
}

// Rows returns every document of table.
func (t *Tx) Rows(table string) ([]Row, error) {
	return queryRows(t.ctx, t.tx, table)
}

// Put inserts or replaces the document id of table.
func (t *Tx) Put(table, id string, doc []byte) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO records (tbl, id, doc, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (tbl, id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at
	`, table, id, string(doc))
	if err != nil {
		return fmt.Errorf("writing %s/%s: %w", table, id, err)
	}

	return nil
}

// Delete removes the document id of table.
func (t *Tx) Delete(table, id string) error {
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM records WHERE tbl = ? AND id = ?`, table, id); err != nil {
		return fmt.Errorf("deleting %s/%s: %w", table, id, err)
	}

	return nil
}

// Update runs fn inside a write transaction, committing when it returns nil.
func (s *DB) Update(fn func(tx *Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(&Tx{ctx: ctx, tx: sqlTx}); err != nil {
		return err
	}

	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Rows returns every document of table.
func (s *DB) Rows(table string) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	return queryRows(ctx, s.db, table)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryRows(ctx context.Context, q querier, table string) ([]Row, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, doc FROM records WHERE tbl = ? ORDER BY rowid`, table)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	defer rows.Close()

	var out []Row

	for rows.Next() {
		var (
			id  string
			doc string
		)

		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", table, err)
		}

		out = append(out, Row{ID: id, Doc: []byte(doc)})
	}

	return out, rows.Err()
}

package store

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/inovacc/reposync/internal/store/sqlite"
)

// SQLiteWrapper adapts the sqlite document table to the Store interface.
type SQLiteWrapper struct {
	store *sqlite.DB
}

// NewSQLite opens (or creates) a SQLite store at path.
func NewSQLite(path string) (*SQLiteWrapper, error) {
	db, err := sqlite.New(path)
	if err != nil {
		return nil, err
	}

	return &SQLiteWrapper{store: db}, nil
}

func (w *SQLiteWrapper) Ping() error {
	return w.store.Ping()
}

func (w *SQLiteWrapper) Close() error {
	return w.store.Close()
}

func (w *SQLiteWrapper) Upsert(table string, record Record, match Filter) error {
	return w.store.Update(func(tx *sqlite.Tx) error {
		rows, err := tx.Rows(table)
		if err != nil {
			return err
		}

		updated := 0

		if len(match) > 0 {
			for _, row := range rows {
				rec, err := decodeRecord(row.Doc)
				if err != nil {
					return fmt.Errorf("%s/%s: %w", table, row.ID, err)
				}

				if !matches(rec, match) {
					continue
				}

				data, err := encodeRecord(merged(rec, record))
				if err != nil {
					return err
				}

				if err := tx.Put(table, row.ID, data); err != nil {
					return err
				}

				updated++
			}
		}

		if updated > 0 {
			return nil
		}

		data, err := encodeRecord(newRecord(record, match))
		if err != nil {
			return err
		}

		return tx.Put(table, uuid.New().String(), data)
	})
}

func (w *SQLiteWrapper) GetAll(table string) ([]Record, error) {
	return w.GetFiltered(table, nil)
}

func (w *SQLiteWrapper) GetFiltered(table string, match Filter) ([]Record, error) {
	rows, err := w.store.Rows(table)
	if err != nil {
		return nil, err
	}

	var out []Record

	for _, row := range rows {
		rec, err := decodeRecord(row.Doc)
		if err != nil {
			return nil, fmt.Errorf("%s/%s: %w", table, row.ID, err)
		}

		if matches(rec, match) {
			out = append(out, rec)
		}
	}

	return out, nil
}

func (w *SQLiteWrapper) DeleteWhere(table string, match Filter) (int, error) {
	removed := 0

	err := w.store.Update(func(tx *sqlite.Tx) error {
		rows, err := tx.Rows(table)
		if err != nil {
			return err
		}

		for _, row := range rows {
			rec, err := decodeRecord(row.Doc)
			if err != nil {
				return fmt.Errorf("%s/%s: %w", table, row.ID, err)
			}

			if !matches(rec, match) {
				continue
			}

			if err := tx.Delete(table, row.ID); err != nil {
				return err
			}

			removed++
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return removed, nil
}

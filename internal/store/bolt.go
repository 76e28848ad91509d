package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// Bolt stores each table in its own bucket, keyed by a random id.
type Bolt struct {
	storage *bbolt.DB
}

// NewBolt opens (or creates) a Bolt database at path.
func NewBolt(path string) (*Bolt, error) {
	instance, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	if err := instance.Update(func(tx *bbolt.Tx) error {
		for _, table := range Tables {
			if _, err := tx.CreateBucketIfNotExists([]byte(table)); err != nil {
				return err
			}
		}

		return nil
	}); err != nil {
		_ = instance.Close()

		return nil, err
	}

	return &Bolt{storage: instance}, nil
}

// Close closes the database.
func (b *Bolt) Close() error {
	return b.storage.Close()
}

func (b *Bolt) Ping() error {
	return b.storage.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(TableSettings)) == nil {
			return errors.New("settings bucket missing")
		}

		return nil
	})
}

func (b *Bolt) Upsert(table string, record Record, match Filter) error {
	return b.storage.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(table))
		if err != nil {
			return err
		}

		type hit struct {
			key []byte
			rec Record
		}

		var hits []hit

		if err := bucket.ForEach(func(k, v []byte) error {
			rec, err := decodeRecord(v)
			if err != nil {
				return fmt.Errorf("%s/%s: %w", table, k, err)
			}

			if len(match) > 0 && matches(rec, match) {
				hits = append(hits, hit{key: append([]byte(nil), k...), rec: rec})
			}

			return nil
		}); err != nil {
			return err
		}

		if len(hits) == 0 {
			data, err := encodeRecord(newRecord(record, match))
			if err != nil {
				return err
			}

			return bucket.Put([]byte(uuid.New().String()), data)
		}

		for _, h := range hits {
			data, err := encodeRecord(merged(h.rec, record))
			if err != nil {
				return err
			}

			if err := bucket.Put(h.key, data); err != nil {
				return err
			}
		}

		return nil
	})
}

func (b *Bolt) GetAll(table string) ([]Record, error) {
	return b.GetFiltered(table, nil)
}

func (b *Bolt) GetFiltered(table string, match Filter) ([]Record, error) {
	var out []Record

	err := b.storage.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(table))
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			rec, err := decodeRecord(v)
			if err != nil {
				return fmt.Errorf("%s/%s: %w", table, k, err)
			}

			if matches(rec, match) {
				out = append(out, rec)
			}

			return nil
		})
	})

	return out, err
}

func (b *Bolt) DeleteWhere(table string, match Filter) (int, error) {
	removed := 0

	err := b.storage.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(table))
		if bucket == nil {
			return nil
		}

		var keys [][]byte

		if err := bucket.ForEach(func(k, v []byte) error {
			rec, err := decodeRecord(v)
			if err != nil {
				return fmt.Errorf("%s/%s: %w", table, k, err)
			}

			if matches(rec, match) {
				keys = append(keys, append([]byte(nil), k...))
			}

			return nil
		}); err != nil {
			return err
		}

		for _, k := range keys {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}

		removed = len(keys)

		return nil
	})

	return removed, err
}

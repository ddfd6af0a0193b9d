// Package kv provides a bbolt-backed RecordStore keeping the canonical
// renderings of relayed Engine API calls.
package kv

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var recordsBucket = []byte("engine-records")

// Store persists canonical call records in a bolt database, keyed by
// method name and arrival time.
type Store struct {
	db *bolt.DB
}

// NewStore opens (or creates) the database at path.
func NewStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "could not open record store")
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordsBucket)
		return err
	}); err != nil {
		return nil, errors.Wrap(err, "could not create records bucket")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRecord writes one canonical record under method and arrival time.
func (s *Store) SaveRecord(ctx context.Context, method string, arrived time.Time, canonical []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := recordKey(method, arrived)
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(recordsBucket)
		if err := bucket.Put(key, canonical); err != nil {
			return errors.Wrap(err, "could not save call record")
		}
		return nil
	})
}

// Record returns the canonical record stored for method at arrival time,
// or nil when none exists.
func (s *Store) Record(ctx context.Context, method string, arrived time.Time) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	if err := s.db.View(func(tx *bolt.Tx) error {
		enc := tx.Bucket(recordsBucket).Get(recordKey(method, arrived))
		if enc != nil {
			out = make([]byte, len(enc))
			copy(out, enc)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// Records returns every record stored for method, in arrival order.
func (s *Store) Records(ctx context.Context, method string) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte(method + "/")
	var out [][]byte
	if err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(recordsBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			record := make([]byte, len(v))
			copy(record, v)
			out = append(out, record)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// recordKey builds a lexicographically sortable key from the logical key
// the persistence contract names: method and arrival time.
func recordKey(method string, arrived time.Time) []byte {
	return []byte(fmt.Sprintf("%s/%020d", method, arrived.UnixNano()))
}

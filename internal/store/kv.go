// Package store wraps the bbolt database that backs the mutation log and
// the repository-state overlays consulted by the classifier.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"
)

// Buckets
var (
	BucketMutations  = []byte("mutations")  // seq (big endian u64) -> canonical entry
	BucketVisibility = []byte("visibility") // commit hash -> 0x00 hidden / 0x01 visible
	BucketPhases     = []byte("phases")     // commit hash -> phase byte
	BucketParents    = []byte("parents")    // commit hash -> concatenated parent hashes
	BucketConfig     = []byte("config")     // repository configuration
)

var allBuckets = [][]byte{
	BucketMutations,
	BucketVisibility,
	BucketPhases,
	BucketParents,
	BucketConfig,
}

// ErrNotFound is returned by lookups on missing keys.
var ErrNotFound = errors.New("key not found")

type DB struct{ *bbolt.DB }

func Open(path string) (*DB, error) {
	db, err := bbolt.Open(path, 0666, nil)
	if err != nil {
		return nil, err
	}
	// Ensure buckets exist
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, e := tx.CreateBucketIfNotExists(name); e != nil {
				return fmt.Errorf("create bucket %s: %w", name, e)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db}, nil
}

func (db *DB) Close() error { return db.DB.Close() }

// AppendLog appends a record to the mutation log inside tx and returns its
// sequence number. Sequence numbers start at 1 and never repeat.
func AppendLog(tx *bbolt.Tx, record []byte) (uint64, error) {
	b := tx.Bucket(BucketMutations)
	seq, err := b.NextSequence()
	if err != nil {
		return 0, err
	}
	return seq, b.Put(seqKey(seq), record)
}

// ForEachLog replays the mutation log in sequence order.
func (db *DB) ForEachLog(fn func(seq uint64, record []byte) error) error {
	return db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(BucketMutations).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if len(k) != 8 {
				return fmt.Errorf("invalid log key length %d", len(k))
			}
			if err := fn(binary.BigEndian.Uint64(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// LogLen returns the number of records in the mutation log.
func (db *DB) LogLen() (int, error) {
	var n int
	err := db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(BucketMutations).Stats().KeyN
		return nil
	})
	return n, err
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

// Put stores key -> value in the named bucket.
func (db *DB) Put(bucket, key, value []byte) error {
	return db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put(key, value)
	})
}

// Get returns a copy of the value stored under key, or ErrNotFound.
func (db *DB) Get(bucket, key []byte) ([]byte, error) {
	var out []byte
	err := db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucket).Get(key)
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

// ForEach iterates over every key/value pair of the named bucket. The
// slices are only valid for the duration of fn.
func (db *DB) ForEach(bucket []byte, fn func(k, v []byte) error) error {
	return db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).ForEach(fn)
	})
}

// PutConfig stores a configuration key-value pair.
func (db *DB) PutConfig(key, value string) error {
	return db.Put(BucketConfig, []byte(key), []byte(value))
}

// GetConfig retrieves a configuration value by key.
func (db *DB) GetConfig(key string) (string, error) {
	v, err := db.Get(BucketConfig, []byte(key))
	if errors.Is(err, ErrNotFound) {
		return "", errors.New("config key not found")
	}
	return string(v), err
}

// RemoveConfig removes a configuration key-value pair.
func (db *DB) RemoveConfig(key string) error {
	return db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(BucketConfig).Delete([]byte(key))
	})
}

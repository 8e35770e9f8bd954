package mutation

import (
	"fmt"

	"github.com/javanhut/ivaldi-mutations/internal/store"
	"go.etcd.io/bbolt"
)

// BoltLog persists entries in the mutation bucket of a store.DB, one
// canonical record per sequence number.
type BoltLog struct {
	db *store.DB
}

// NewBoltLog wraps db.
func NewBoltLog(db *store.DB) *BoltLog {
	return &BoltLog{db: db}
}

// Append implements Log.Append in a single transaction.
func (l *BoltLog) Append(entries []*Entry) error {
	return l.db.Update(func(tx *bbolt.Tx) error {
		for _, e := range entries {
			if _, err := store.AppendLog(tx, e.CanonicalBytes()); err != nil {
				return fmt.Errorf("append %s: %w", e.Successor.Short(), err)
			}
		}
		return nil
	})
}

// Replay implements Log.Replay in sequence order.
func (l *BoltLog) Replay(fn func(Entry) error) error {
	return l.db.ForEachLog(func(seq uint64, record []byte) error {
		e, err := ParseEntry(record)
		if err != nil {
			return fmt.Errorf("%w: log record %d: %v", ErrCorruptProvenance, seq, err)
		}
		return fn(e)
	})
}

// Open returns a store backed by db, replaying the persisted log.
func Open(db *store.DB, opts Options) (*Store, error) {
	opts.Log = NewBoltLog(db)
	return NewStore(opts)
}

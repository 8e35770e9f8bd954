// Package visibility tracks which commits are shown by default queries.
//
// A Set stores state only. The policy deciding when a rewritten commit
// becomes hidden lives with the rewrite commands (see package rewrite).
package visibility

import (
	"fmt"
	"sync"

	"github.com/javanhut/ivaldi-mutations/internal/cas"
	"github.com/javanhut/ivaldi-mutations/internal/store"
	"go.etcd.io/bbolt"
)

// Reader answers visibility queries. Commits with no recorded state are
// visible.
type Reader interface {
	IsVisible(id cas.Hash) bool
}

// Set is a Reader that can also be changed.
type Set interface {
	Reader
	Hide(ids ...cas.Hash) error
	Reveal(ids ...cas.Hash) error
}

// MemorySet is an in-memory Set with thread-safe access.
type MemorySet struct {
	mu     sync.RWMutex
	hidden cas.Set
}

// NewMemorySet creates a set in which every commit is visible.
func NewMemorySet() *MemorySet {
	return &MemorySet{hidden: make(cas.Set)}
}

// IsVisible implements Reader.
func (m *MemorySet) IsVisible(id cas.Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.hidden.Has(id)
}

// Hide implements Set.
func (m *MemorySet) Hide(ids ...cas.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.hidden.Add(id)
	}
	return nil
}

// Reveal implements Set.
func (m *MemorySet) Reveal(ids ...cas.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.hidden, id)
	}
	return nil
}

// Hidden returns the hidden commits, sorted.
func (m *MemorySet) Hidden() []cas.Hash {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hidden.Sorted()
}

const (
	stateHidden  byte = 0
	stateVisible byte = 1
)

// BoltSet persists visibility in the visibility bucket. It keeps an
// in-memory copy so IsVisible never touches the database.
type BoltSet struct {
	db  *store.DB
	mem *MemorySet
}

// OpenBoltSet loads the persisted state from db.
func OpenBoltSet(db *store.DB) (*BoltSet, error) {
	s := &BoltSet{db: db, mem: NewMemorySet()}
	err := db.ForEach(store.BucketVisibility, func(k, v []byte) error {
		if len(k) != len(cas.Hash{}) || len(v) != 1 {
			return fmt.Errorf("invalid visibility record %x", k)
		}
		if v[0] == stateHidden {
			var id cas.Hash
			copy(id[:], k)
			s.mem.hidden.Add(id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load visibility: %w", err)
	}
	return s, nil
}

// IsVisible implements Reader.
func (s *BoltSet) IsVisible(id cas.Hash) bool {
	return s.mem.IsVisible(id)
}

// Hide implements Set.
func (s *BoltSet) Hide(ids ...cas.Hash) error {
	if err := s.put(stateHidden, ids); err != nil {
		return err
	}
	return s.mem.Hide(ids...)
}

// Reveal implements Set.
func (s *BoltSet) Reveal(ids ...cas.Hash) error {
	if err := s.put(stateVisible, ids); err != nil {
		return err
	}
	return s.mem.Reveal(ids...)
}

// Hidden returns the hidden commits, sorted.
func (s *BoltSet) Hidden() []cas.Hash {
	return s.mem.Hidden()
}

func (s *BoltSet) put(state byte, ids []cas.Hash) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(store.BucketVisibility)
		for _, id := range ids {
			if err := b.Put(id[:], []byte{state}); err != nil {
				return fmt.Errorf("store visibility for %s: %w", id.Short(), err)
			}
		}
		return nil
	})
}

// Filter returns the visible members of ids, preserving order.
func Filter(r Reader, ids []cas.Hash) []cas.Hash {
	out := make([]cas.Hash, 0, len(ids))
	for _, id := range ids {
		if r.IsVisible(id) {
			out = append(out, id)
		}
	}
	return out
}

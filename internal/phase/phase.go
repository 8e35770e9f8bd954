// Package phase holds the public/draft/secret maturity of commits.
package phase

import (
	"fmt"
	"strings"
	"sync"

	"github.com/javanhut/ivaldi-mutations/internal/cas"
	"github.com/javanhut/ivaldi-mutations/internal/store"
)

// Phase is the maturity classification of a commit.
type Phase uint8

const (
	Public Phase = iota
	Draft
	Secret
)

// String returns the lowercase phase name.
func (p Phase) String() string {
	switch p {
	case Public:
		return "public"
	case Draft:
		return "draft"
	case Secret:
		return "secret"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Parse converts a phase name.
func Parse(s string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "public":
		return Public, nil
	case "draft":
		return Draft, nil
	case "secret":
		return Secret, nil
	default:
		return 0, fmt.Errorf("unknown phase %q (want public, draft or secret)", s)
	}
}

// Map answers phase queries.
type Map interface {
	Phase(id cas.Hash) Phase
}

// MemoryMap is an in-memory Map. Commits without a recorded phase get the
// default phase.
type MemoryMap struct {
	mu     sync.RWMutex
	phases map[cas.Hash]Phase
	def    Phase
}

// NewMemoryMap creates a map returning def for unknown commits.
func NewMemoryMap(def Phase) *MemoryMap {
	return &MemoryMap{phases: make(map[cas.Hash]Phase), def: def}
}

// Phase implements Map.
func (m *MemoryMap) Phase(id cas.Hash) Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.phases[id]; ok {
		return p
	}
	return m.def
}

// Set records the phase of ids.
func (m *MemoryMap) Set(p Phase, ids ...cas.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.phases[id] = p
	}
	return nil
}

// BoltMap persists phases in the phases bucket and serves reads from memory.
type BoltMap struct {
	db  *store.DB
	mem *MemoryMap
}

// OpenBoltMap loads the persisted phases from db.
func OpenBoltMap(db *store.DB, def Phase) (*BoltMap, error) {
	m := &BoltMap{db: db, mem: NewMemoryMap(def)}
	err := db.ForEach(store.BucketPhases, func(k, v []byte) error {
		if len(k) != len(cas.Hash{}) || len(v) != 1 || Phase(v[0]) > Secret {
			return fmt.Errorf("invalid phase record %x", k)
		}
		var id cas.Hash
		copy(id[:], k)
		m.mem.phases[id] = Phase(v[0])
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load phases: %w", err)
	}
	return m, nil
}

// Phase implements Map.
func (m *BoltMap) Phase(id cas.Hash) Phase {
	return m.mem.Phase(id)
}

// Set records and persists the phase of ids.
func (m *BoltMap) Set(p Phase, ids ...cas.Hash) error {
	for _, id := range ids {
		if err := m.db.Put(store.BucketPhases, id[:], []byte{byte(p)}); err != nil {
			return fmt.Errorf("store phase for %s: %w", id.Short(), err)
		}
	}
	return m.mem.Set(p, ids...)
}

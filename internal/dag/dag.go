// Package dag is the commit parent graph the classifier walks to find
// orphans. It holds ids and parent links, nothing else.
package dag

import (
	"errors"
	"fmt"
	"sync"

	"github.com/javanhut/ivaldi-mutations/internal/cas"
	"github.com/javanhut/ivaldi-mutations/internal/store"
)

// ErrUnknownCommit is returned for ids that are not in the graph.
var ErrUnknownCommit = errors.New("unknown commit")

// ErrDanglingParent is returned when a commit names a parent that is not in
// the graph.
var ErrDanglingParent = errors.New("dangling parent reference")

// Graph is a read-only view of commit parentage.
type Graph interface {
	Has(id cas.Hash) bool
	Parents(id cas.Hash) ([]cas.Hash, error)
	Children(id cas.Hash) []cas.Hash
}

// MemoryGraph is an in-memory Graph.
type MemoryGraph struct {
	mu       sync.RWMutex
	parents  map[cas.Hash][]cas.Hash
	children map[cas.Hash][]cas.Hash
}

// NewMemoryGraph creates an empty graph.
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{
		parents:  make(map[cas.Hash][]cas.Hash),
		children: make(map[cas.Hash][]cas.Hash),
	}
}

// Add inserts a commit. Parents must already be present. Re-adding a
// commit with the same parents is a no-op.
func (g *MemoryGraph) Add(id cas.Hash, parents ...cas.Hash) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.add(id, parents)
}

func (g *MemoryGraph) add(id cas.Hash, parents []cas.Hash) error {
	if id.IsZero() {
		return fmt.Errorf("zero commit id")
	}
	if old, ok := g.parents[id]; ok {
		if !equalHashes(old, parents) {
			return fmt.Errorf("commit %s already added with different parents", id.Short())
		}
		return nil
	}
	for _, p := range parents {
		if p == id {
			return fmt.Errorf("commit %s lists itself as a parent", id.Short())
		}
		if _, ok := g.parents[p]; !ok {
			return fmt.Errorf("%w: %s -> %s", ErrDanglingParent, id.Short(), p.Short())
		}
	}
	g.parents[id] = append([]cas.Hash{}, parents...)
	for _, p := range parents {
		g.children[p] = append(g.children[p], id)
	}
	return nil
}

// Has implements Graph.
func (g *MemoryGraph) Has(id cas.Hash) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.parents[id]
	return ok
}

// Parents implements Graph.
func (g *MemoryGraph) Parents(id cas.Hash) ([]cas.Hash, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ps, ok := g.parents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommit, id.Short())
	}
	return append([]cas.Hash(nil), ps...), nil
}

// Children implements Graph, in insertion order.
func (g *MemoryGraph) Children(id cas.Hash) []cas.Hash {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]cas.Hash(nil), g.children[id]...)
}

// Commits returns all ids, sorted.
func (g *MemoryGraph) Commits() []cas.Hash {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]cas.Hash, 0, len(g.parents))
	for id := range g.parents {
		out = append(out, id)
	}
	cas.Sort(out)
	return out
}

// BoltGraph persists parent links in the parents bucket. Reads are served
// from memory.
type BoltGraph struct {
	*MemoryGraph
	db *store.DB
}

// OpenBoltGraph loads the persisted graph.
func OpenBoltGraph(db *store.DB) (*BoltGraph, error) {
	raw := make(map[cas.Hash][]cas.Hash)
	err := db.ForEach(store.BucketParents, func(k, v []byte) error {
		if len(k) != len(cas.Hash{}) || len(v)%len(cas.Hash{}) != 0 {
			return fmt.Errorf("invalid parents record %x", k)
		}
		var id cas.Hash
		copy(id[:], k)
		raw[id] = decodeParents(v)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load commit graph: %w", err)
	}

	g := &BoltGraph{MemoryGraph: NewMemoryGraph(), db: db}
	// Insert parents before children; the bucket is keyed by hash, not by
	// creation order.
	var visit func(id cas.Hash, path cas.Set) error
	visit = func(id cas.Hash, path cas.Set) error {
		if _, done := g.parents[id]; done {
			return nil
		}
		ps, ok := raw[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrDanglingParent, id.Short())
		}
		if !path.Add(id) {
			return fmt.Errorf("commit graph cycle through %s", id.Short())
		}
		for _, p := range ps {
			if err := visit(p, path); err != nil {
				return err
			}
		}
		delete(path, id)
		return g.add(id, ps)
	}
	for _, id := range cas.NewSet(keys(raw)...).Sorted() {
		if err := visit(id, make(cas.Set)); err != nil {
			return nil, fmt.Errorf("load commit graph: %w", err)
		}
	}
	return g, nil
}

// Add inserts and persists a commit.
func (g *BoltGraph) Add(id cas.Hash, parents ...cas.Hash) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, existed := g.parents[id]
	if err := g.add(id, parents); err != nil {
		return err
	}
	if existed {
		return nil
	}
	if err := g.db.Put(store.BucketParents, id[:], encodeParents(parents)); err != nil {
		delete(g.parents, id)
		for _, p := range parents {
			cs := g.children[p]
			g.children[p] = cs[:len(cs)-1]
		}
		return fmt.Errorf("store parents of %s: %w", id.Short(), err)
	}
	return nil
}

// Ancestors returns every commit reachable from id through parent links,
// excluding id itself.
func Ancestors(g Graph, id cas.Hash) (cas.Set, error) {
	out := make(cas.Set)
	queue := []cas.Hash{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		ps, err := g.Parents(cur)
		if err != nil {
			return nil, err
		}
		for _, p := range ps {
			if !g.Has(p) {
				return nil, fmt.Errorf("%w: %s -> %s", ErrDanglingParent, cur.Short(), p.Short())
			}
			if p != id && out.Add(p) {
				queue = append(queue, p)
			}
		}
	}
	return out, nil
}

func encodeParents(ps []cas.Hash) []byte {
	out := make([]byte, 0, len(ps)*len(cas.Hash{}))
	for _, p := range ps {
		out = append(out, p[:]...)
	}
	return out
}

func decodeParents(v []byte) []cas.Hash {
	ps := make([]cas.Hash, len(v)/len(cas.Hash{}))
	for i := range ps {
		copy(ps[i][:], v[i*len(cas.Hash{}):])
	}
	return ps
}

func keys(m map[cas.Hash][]cas.Hash) []cas.Hash {
	out := make([]cas.Hash, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func equalHashes(a, b []cas.Hash) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

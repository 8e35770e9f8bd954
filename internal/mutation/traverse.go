package mutation

import (
	"fmt"
	"slices"

	"github.com/javanhut/ivaldi-mutations/internal/cas"
)

// Unlimited walks to the fixed point.
const Unlimited = -1

// Predecessors walks backwards from id, level by level, up to depth levels.
// The result is in breadth-first order: id first, then every id first
// reached at level 1 in the order entries list their predecessors, then
// level 2, and so on. A node is placed at its shortest distance from id, so
// a node reachable through a short fold path is kept even when a longer
// path to it would exceed depth. A walk of depth 0 returns {id}.
func (s *Snapshot) Predecessors(id cas.Hash, depth int) ([]cas.Hash, error) {
	return s.walk(id, depth, s.directPredecessors)
}

// Successors walks forwards from id, expanding each entry to its whole
// rewrite group so that split siblings are included. Ordering follows
// Predecessors: breadth-first, then log order of the entries, then the
// successor before its sorted siblings.
func (s *Snapshot) Successors(id cas.Hash, depth int) ([]cas.Hash, error) {
	return s.walk(id, depth, s.directSuccessors)
}

func (s *Snapshot) directPredecessors(id cas.Hash) ([]cas.Hash, error) {
	e, ok := s.bySucc[id]
	if !ok {
		return nil, nil
	}
	if e.Successor != id {
		return nil, fmt.Errorf("%w: forward index maps %s to entry for %s", ErrCorruptProvenance, id.Short(), e.Successor.Short())
	}
	return e.Predecessors, nil
}

func (s *Snapshot) directSuccessors(id cas.Hash) ([]cas.Hash, error) {
	es := s.byPred[id]
	if len(es) == 0 {
		return nil, nil
	}
	out := make([]cas.Hash, 0, len(es))
	for _, e := range es {
		if s.bySucc[e.Successor] != e {
			return nil, fmt.Errorf("%w: dangling reverse reference %s -> %s", ErrCorruptProvenance, id.Short(), e.Successor.Short())
		}
		if !slices.Contains(e.Predecessors, id) {
			return nil, fmt.Errorf("%w: reverse index maps %s to unrelated entry %s", ErrCorruptProvenance, id.Short(), e.Successor.Short())
		}
		out = append(out, e.Successor)
		out = append(out, e.Split...)
	}
	return out, nil
}

// walk is a level-synchronous breadth-first search. Each node is enqueued
// at most once, so it terminates in O(visited nodes) whatever the input.
func (s *Snapshot) walk(root cas.Hash, depth int, next func(cas.Hash) ([]cas.Hash, error)) ([]cas.Hash, error) {
	visited := cas.NewSet(root)
	out := []cas.Hash{root}
	frontier := []cas.Hash{root}

	for level := 0; len(frontier) > 0 && (depth < 0 || level < depth); level++ {
		var nextFrontier []cas.Hash
		for _, id := range frontier {
			ids, err := next(id)
			if err != nil {
				return nil, err
			}
			for _, n := range ids {
				if n == root {
					return nil, fmt.Errorf("%w: cycle through %s", ErrCorruptProvenance, root.Short())
				}
				if visited.Add(n) {
					nextFrontier = append(nextFrontier, n)
					out = append(out, n)
				}
			}
		}
		frontier = nextFrontier
	}
	return out, nil
}

// Predecessors walks the current snapshot. See Snapshot.Predecessors.
func (s *Store) Predecessors(id cas.Hash, depth int) ([]cas.Hash, error) {
	return s.Snapshot().Predecessors(id, depth)
}

// Successors walks the current snapshot. See Snapshot.Successors.
func (s *Store) Successors(id cas.Hash, depth int) ([]cas.Hash, error) {
	return s.Snapshot().Successors(id, depth)
}

// LookupBySuccessor reads the current snapshot.
func (s *Store) LookupBySuccessor(id cas.Hash) (Entry, bool) {
	return s.Snapshot().LookupBySuccessor(id)
}

// LookupByPredecessor reads the current snapshot.
func (s *Store) LookupByPredecessor(id cas.Hash) []Entry {
	return s.Snapshot().LookupByPredecessor(id)
}

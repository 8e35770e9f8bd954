package mutation

import (
	"maps"
	"slices"

	"github.com/javanhut/ivaldi-mutations/internal/cas"
)

// Snapshot is an immutable view of the store. Both indices in a snapshot
// always describe the same set of entries.
type Snapshot struct {
	bySucc  map[cas.Hash]*Entry
	byPred  map[cas.Hash][]*Entry
	bySplit map[cas.Hash][]*Entry // sibling id -> entries listing it
	log     []*Entry              // append order
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		bySucc:  make(map[cas.Hash]*Entry),
		byPred:  make(map[cas.Hash][]*Entry),
		bySplit: make(map[cas.Hash][]*Entry),
	}
}

// Len returns the number of entries.
func (s *Snapshot) Len() int {
	return len(s.log)
}

// LookupBySuccessor returns the entry that produced id.
func (s *Snapshot) LookupBySuccessor(id cas.Hash) (Entry, bool) {
	e, ok := s.bySucc[id]
	if !ok {
		return Entry{}, false
	}
	return e.Clone(), true
}

// LookupByPredecessor returns every entry naming id as a predecessor, in
// log order. A split predecessor appears in each sibling entry.
func (s *Snapshot) LookupByPredecessor(id cas.Hash) []Entry {
	es := s.byPred[id]
	if len(es) == 0 {
		return nil
	}
	out := make([]Entry, len(es))
	for i, e := range es {
		out[i] = e.Clone()
	}
	return out
}

// HasSuccessors reports whether id has at least one recorded successor.
func (s *Snapshot) HasSuccessors(id cas.Hash) bool {
	return len(s.byPred[id]) > 0
}

// HasEntry reports whether id is the successor of a recorded entry.
func (s *Snapshot) HasEntry(id cas.Hash) bool {
	_, ok := s.bySucc[id]
	return ok
}

// Entries returns every entry in log order.
func (s *Snapshot) Entries() []Entry {
	out := make([]Entry, len(s.log))
	for i, e := range s.log {
		out[i] = e.Clone()
	}
	return out
}

// Commits returns every commit id mentioned by any entry, sorted.
func (s *Snapshot) Commits() []cas.Hash {
	set := make(cas.Set, len(s.bySucc)+len(s.byPred)+len(s.bySplit))
	for id := range s.bySucc {
		set.Add(id)
	}
	for id := range s.byPred {
		set.Add(id)
	}
	for id := range s.bySplit {
		set.Add(id)
	}
	return set.Sorted()
}

// builder accumulates one batch of appends on top of a base snapshot.
// Maps are cloned once per batch; the log slice shares the base array
// because readers of the base never look past their own length.
type builder struct {
	base    *Snapshot
	next    *Snapshot
	pending []*Entry
}

func newBuilder(base *Snapshot) *builder {
	return &builder{base: base}
}

// view returns the state including pending appends, for validation.
func (b *builder) view() *Snapshot {
	if b.next == nil {
		return b.base
	}
	return b.next
}

func (b *builder) add(e *Entry) {
	if b.next == nil {
		b.next = &Snapshot{
			bySucc:  maps.Clone(b.base.bySucc),
			byPred:  maps.Clone(b.base.byPred),
			bySplit: maps.Clone(b.base.bySplit),
			log:     b.base.log,
		}
	}
	n := b.next
	n.bySucc[e.Successor] = e
	for _, p := range e.Predecessors {
		n.byPred[p] = append(slices.Clip(n.byPred[p]), e)
	}
	for _, sib := range e.Split {
		n.bySplit[sib] = append(slices.Clip(n.bySplit[sib]), e)
	}
	n.log = append(n.log, e)
	b.pending = append(b.pending, e)
}

// finish returns the snapshot to publish, or nil when nothing changed.
func (b *builder) finish() *Snapshot {
	return b.next
}

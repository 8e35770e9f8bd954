package mutation

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/javanhut/ivaldi-mutations/internal/cas"
)

// Log persists accepted entries. Append must store the whole batch or
// nothing.
type Log interface {
	Append(entries []*Entry) error
	Replay(fn func(Entry) error) error
}

// Options configure a Store.
type Options struct {
	// Disabled turns Record and Import into accepted no-ops. Reads keep
	// working on whatever was loaded.
	Disabled bool

	// Log, when set, receives every accepted entry before it becomes
	// visible to readers.
	Log Log

	// Logger receives load and import diagnostics. Defaults to discard.
	Logger *slog.Logger
}

// Store is the append-only mutation log with its forward and reverse
// indices. A single writer at a time appends; readers work on snapshots
// and never block or are blocked by writers.
type Store struct {
	mu       sync.Mutex // serializes writers
	snap     atomic.Pointer[Snapshot]
	disabled bool
	log      Log
	logger   *slog.Logger
}

// NewStore creates an empty store. When opts.Log is set its contents are
// replayed to rebuild both indices.
func NewStore(opts Options) (*Store, error) {
	s := &Store{
		disabled: opts.Disabled,
		log:      opts.Log,
		logger:   opts.Logger,
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s.snap.Store(emptySnapshot())

	if s.log != nil {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Enabled reports whether recording is enabled.
func (s *Store) Enabled() bool {
	return !s.disabled
}

// Snapshot returns the current immutable view.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// load replays the persisted log. The reverse index is never persisted; it
// is derived here so it cannot diverge from the log.
func (s *Store) load() error {
	b := newBuilder(s.snap.Load())
	n := 0
	err := s.log.Replay(func(e Entry) error {
		n++
		e.normalize()
		dup, err := check(b.view(), &e)
		if err != nil {
			return fmt.Errorf("%w: log record %d for %s: %v", ErrCorruptProvenance, n, e.Successor.Short(), err)
		}
		if dup {
			s.logger.Debug("mutation log: duplicate record skipped", "successor", e.Successor.String())
			return nil
		}
		b.add(&e)
		return nil
	})
	if err != nil {
		return err
	}
	if next := b.finish(); next != nil {
		s.snap.Store(next)
	}
	s.logger.Debug("mutation log loaded", "records", n, "entries", s.snap.Load().Len())
	return nil
}

// Record appends one entry. Recording an entry identical to the stored one
// is a no-op; a different entry for the same successor fails with
// ErrRecordConflict and leaves the store unchanged.
func (s *Store) Record(e Entry) error {
	if s.disabled {
		return nil
	}
	e = e.Clone()
	e.normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	b := newBuilder(s.snap.Load())
	dup, err := check(b.view(), &e)
	if err != nil {
		return err
	}
	if dup {
		return nil
	}
	b.add(&e)
	return s.commit(b)
}

// RecordAll appends entries as one unit: either every new entry is stored
// or, on the first error, none is. Entries already present and identical
// are skipped. Entries are checked in order, so later ones may build on
// earlier ones.
func (s *Store) RecordAll(entries []Entry) error {
	if s.disabled {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := newBuilder(s.snap.Load())
	for i := range entries {
		e := entries[i].Clone()
		e.normalize()
		dup, err := check(b.view(), &e)
		if err != nil {
			return fmt.Errorf("entry for %s: %w", e.Successor.Short(), err)
		}
		if !dup {
			b.add(&e)
		}
	}
	return s.commit(b)
}

// ImportResult summarizes a bulk import.
type ImportResult struct {
	Added      int // new entries appended
	Duplicates int // entries already present, identical
	Rejected   int // entries that failed validation
}

// Import applies a batch received from a peer. Each entry is checked as if
// recorded on its own; identical entries are skipped, so repeated or
// reordered delivery converges. Rejected entries do not stop the batch:
// their errors are returned joined along with the counts, and the accepted
// entries are persisted together.
func (s *Store) Import(entries []Entry) (ImportResult, error) {
	var res ImportResult
	if s.disabled {
		return res, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := newBuilder(s.snap.Load())
	var errs []error
	for i := range entries {
		e := entries[i].Clone()
		e.normalize()
		dup, err := check(b.view(), &e)
		switch {
		case err != nil:
			res.Rejected++
			errs = append(errs, fmt.Errorf("entry for %s: %w", e.Successor.Short(), err))
		case dup:
			res.Duplicates++
		default:
			b.add(&e)
			res.Added++
		}
	}

	if err := s.commit(b); err != nil {
		return ImportResult{Duplicates: res.Duplicates}, err
	}
	s.logger.Debug("mutation import", "added", res.Added, "duplicates", res.Duplicates, "rejected", res.Rejected)
	return res, errors.Join(errs...)
}

// commit persists the pending batch and publishes the new snapshot. Both
// indices become visible in one atomic pointer swap.
func (s *Store) commit(b *builder) error {
	next := b.finish()
	if next == nil {
		return nil
	}
	if s.log != nil {
		if err := s.log.Append(b.pending); err != nil {
			return fmt.Errorf("failed to persist mutation entries: %w", err)
		}
	}
	s.snap.Store(next)
	return nil
}

// check validates e against view. It reports dup when an identical entry
// is already stored.
func check(view *Snapshot, e *Entry) (dup bool, err error) {
	if err := e.validate(); err != nil {
		return false, err
	}

	if old, ok := view.bySucc[e.Successor]; ok {
		if old.Equal(e) {
			return true, nil
		}
		return false, fmt.Errorf("%w: %s", ErrRecordConflict, e.Successor.Short())
	}

	for _, sib := range e.Split {
		other, ok := view.bySucc[sib]
		if !ok {
			continue
		}
		if !sameRewrite(other, e) {
			return false, fmt.Errorf("%w: %s and %s", ErrSplitMismatch, e.Successor.Short(), sib.Short())
		}
	}
	// A recorded entry naming e.Successor as a sibling must agree too, even
	// when e lists no siblings of its own.
	for _, other := range view.bySplit[e.Successor] {
		if !sameRewrite(other, e) {
			return false, fmt.Errorf("%w: %s and %s", ErrSplitMismatch, e.Successor.Short(), other.Successor.Short())
		}
	}

	if err := wouldCycle(view, e); err != nil {
		return false, err
	}
	return false, nil
}

// wouldCycle rejects e when one of its predecessors is already a transitive
// successor of e.Successor or of one of its split siblings.
func wouldCycle(view *Snapshot, e *Entry) error {
	preds := cas.NewSet(e.Predecessors...)
	for _, g := range e.Group() {
		if !view.HasSuccessors(g) {
			continue
		}
		desc, err := view.Successors(g, Unlimited)
		if err != nil {
			return err
		}
		if i := slices.IndexFunc(desc, preds.Has); i >= 0 {
			return fmt.Errorf("%w: recording %s would make %s its own predecessor", ErrCorruptProvenance, e.Successor.Short(), desc[i].Short())
		}
	}
	return nil
}

package mutation

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/javanhut/ivaldi-mutations/internal/cas"
	"github.com/javanhut/ivaldi-mutations/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func id(name string) cas.Hash {
	return cas.SumB3([]byte(name))
}

func ids(names ...string) []cas.Hash {
	out := make([]cas.Hash, len(names))
	for i, n := range names {
		out[i] = id(n)
	}
	return out
}

func entry(succ string, op Op, preds ...string) Entry {
	return Entry{
		Successor:    id(succ),
		Predecessors: ids(preds...),
		Op:           op,
		User:         "test <test@example.com>",
		Time:         1700000000,
		TZ:           3600,
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(Options{})
	require.NoError(t, err)
	return s
}

func TestRecordRoundTrip(t *testing.T) {
	s := newTestStore(t)

	e := entry("B", OpAmend, "A")
	e.Extra = map[string]string{"reason": "typo"}
	require.NoError(t, s.Record(e))

	got, ok := s.LookupBySuccessor(id("B"))
	require.True(t, ok)
	assert.Equal(t, e, got)
	assert.True(t, got.Equal(&e))
	assert.Equal(t, e.Digest(), got.Digest())

	byPred := s.LookupByPredecessor(id("A"))
	require.Len(t, byPred, 1)
	assert.Equal(t, id("B"), byPred[0].Successor)

	_, ok = s.LookupBySuccessor(id("A"))
	assert.False(t, ok, "an original commit has no entry")
	assert.Empty(t, s.LookupByPredecessor(id("B")))
}

func TestLookupReturnsCopies(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Record(entry("B", OpAmend, "A")))

	got, _ := s.LookupBySuccessor(id("B"))
	got.Predecessors[0] = id("Z")

	again, _ := s.LookupBySuccessor(id("B"))
	assert.Equal(t, id("A"), again.Predecessors[0])
}

func TestRecordIdempotent(t *testing.T) {
	s := newTestStore(t)
	e := entry("B", OpAmend, "A")

	require.NoError(t, s.Record(e))
	before := s.Snapshot()
	require.NoError(t, s.Record(e))

	assert.Same(t, before, s.Snapshot(), "identical replay must not publish a new snapshot")
	assert.Equal(t, 1, s.Snapshot().Len())
}

func TestRecordConflict(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Record(entry("B", OpAmend, "A")))

	err := s.Record(entry("B", OpRebase, "A"))
	require.ErrorIs(t, err, ErrRecordConflict)

	got, _ := s.LookupBySuccessor(id("B"))
	assert.Equal(t, OpAmend, got.Op, "original entry must be unchanged")
}

func TestRecordValidation(t *testing.T) {
	s := newTestStore(t)

	err := s.Record(Entry{Successor: id("B"), Op: OpAmend})
	assert.ErrorIs(t, err, ErrEmptyPredecessors)

	err = s.Record(entry("B", OpAmend, "A", "B"))
	assert.ErrorIs(t, err, ErrSelfReference)

	err = s.Record(entry("B", OpFold, "A", "A"))
	assert.ErrorIs(t, err, ErrDuplicatePredecessor)

	e := entry("S1", OpSplit, "P")
	e.Split = ids("S1")
	assert.ErrorIs(t, s.Record(e), ErrSelfReference)

	e = entry("B", OpAmend, "A")
	e.Predecessors = append(e.Predecessors, cas.Hash{})
	assert.ErrorIs(t, s.Record(e), ErrZeroCommit)

	e = entry("B", "", "A")
	assert.Error(t, s.Record(e))

	assert.Equal(t, 0, s.Snapshot().Len(), "rejected entries must not be stored")
}

func TestRecordRejectsCycle(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Record(entry("B", OpAmend, "A")))
	require.NoError(t, s.Record(entry("C", OpAmend, "B")))

	err := s.Record(entry("A", OpAmend, "C"))
	require.ErrorIs(t, err, ErrCorruptProvenance)
	assert.Equal(t, 2, s.Snapshot().Len())
}

func TestOpenOperationSet(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Record(entry("B", Op("land"), "A")))

	got, ok := s.LookupBySuccessor(id("B"))
	require.True(t, ok)
	assert.Equal(t, Op("land"), got.Op)
}

func TestSplitRecording(t *testing.T) {
	s := newTestStore(t)

	s1 := entry("S1", OpSplit, "P")
	s1.Split = ids("S2")
	s2 := entry("S2", OpSplit, "P")
	s2.Split = ids("S1")
	require.NoError(t, s.Record(s1))
	require.NoError(t, s.Record(s2))

	byPred := s.LookupByPredecessor(id("P"))
	require.Len(t, byPred, 2)
	assert.ElementsMatch(t, ids("S1", "S2"), []cas.Hash{byPred[0].Successor, byPred[1].Successor})
}

func TestSplitMismatch(t *testing.T) {
	s := newTestStore(t)

	s1 := entry("S1", OpSplit, "P")
	s1.Split = ids("S2")
	require.NoError(t, s.Record(s1))

	// Different predecessors for a declared sibling.
	bad := entry("S2", OpSplit, "Q")
	bad.Split = ids("S1")
	err := s.Record(bad)
	require.ErrorIs(t, err, ErrSplitMismatch)
	require.ErrorIs(t, err, ErrRecordConflict)

	// Named as a sibling but recorded without the group.
	lone := entry("S2", OpSplit, "P")
	assert.ErrorIs(t, s.Record(lone), ErrSplitMismatch)

	// Different metadata.
	late := entry("S2", OpSplit, "P")
	late.Split = ids("S1")
	late.Time++
	assert.ErrorIs(t, s.Record(late), ErrSplitMismatch)
}

func TestRecordAllIsAtomic(t *testing.T) {
	s := newTestStore(t)
	s1 := entry("S1", OpSplit, "P")
	s1.Split = ids("S2")
	bad := entry("S2", OpSplit, "Q")
	bad.Split = ids("S1")

	err := s.RecordAll([]Entry{s1, bad})
	require.ErrorIs(t, err, ErrSplitMismatch)
	assert.Equal(t, 0, s.Snapshot().Len(), "a failed batch stores nothing")

	s2 := entry("S2", OpSplit, "P")
	s2.Split = ids("S1")
	require.NoError(t, s.RecordAll([]Entry{s1, s2}))
	require.NoError(t, s.RecordAll([]Entry{s1, s2}))
	assert.Equal(t, 2, s.Snapshot().Len())
}

func TestImportConvergesRegardlessOfOrder(t *testing.T) {
	s1 := entry("S1", OpSplit, "P")
	s1.Split = ids("S2")
	s2 := entry("S2", OpSplit, "P")
	s2.Split = ids("S1")
	batch := []Entry{
		entry("B", OpAmend, "A"),
		entry("C", OpAmend, "B"),
		entry("F", OpFold, "C", "X"),
		s1,
		s2,
	}
	reversed := make([]Entry, len(batch))
	for i, e := range batch {
		reversed[len(batch)-1-i] = e
	}

	a := newTestStore(t)
	res, err := a.Import(batch)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Added: 5}, res)

	b := newTestStore(t)
	_, err = b.Import(reversed)
	require.NoError(t, err)
	// Re-delivery is a no-op.
	res, err = b.Import(batch)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Duplicates: 5}, res)

	for _, e := range batch {
		ga, ok := a.LookupBySuccessor(e.Successor)
		require.True(t, ok)
		gb, ok := b.LookupBySuccessor(e.Successor)
		require.True(t, ok)
		assert.True(t, ga.Equal(&gb))
	}
	assert.Equal(t, a.Snapshot().Commits(), b.Snapshot().Commits())
}

func TestImportReportsRejected(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Record(entry("B", OpAmend, "A")))

	res, err := s.Import([]Entry{
		entry("B", OpRebase, "A"), // conflict
		entry("C", OpAmend, "B"),
		{Successor: id("D"), Op: OpAmend}, // empty
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRecordConflict)
	assert.ErrorIs(t, err, ErrEmptyPredecessors)
	assert.Equal(t, ImportResult{Added: 1, Rejected: 2}, res)

	_, ok := s.LookupBySuccessor(id("C"))
	assert.True(t, ok)
}

func TestDisabledStore(t *testing.T) {
	s, err := NewStore(Options{Disabled: true})
	require.NoError(t, err)
	assert.False(t, s.Enabled())

	require.NoError(t, s.Record(entry("B", OpAmend, "A")))
	res, err := s.Import([]Entry{entry("C", OpAmend, "B")})
	require.NoError(t, err)
	assert.Zero(t, res)
	assert.Equal(t, 0, s.Snapshot().Len())
}

func TestPersistentReload(t *testing.T) {
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, store.DBFileName))
	require.NoError(t, err)

	s, err := Open(db, Options{})
	require.NoError(t, err)
	s1 := entry("S1", OpSplit, "P")
	s1.Split = ids("S2")
	require.NoError(t, s.Record(entry("B", OpAmend, "A")))
	require.NoError(t, s.Record(entry("C", OpRebase, "B")))
	require.NoError(t, s.Record(s1))
	require.NoError(t, s.Record(entry("B", OpAmend, "A"))) // replay, not persisted twice
	require.NoError(t, db.Close())

	db, err = store.Open(filepath.Join(dir, store.DBFileName))
	require.NoError(t, err)
	defer db.Close()

	n, err := db.LogLen()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	reloaded, err := Open(db, Options{})
	require.NoError(t, err)
	assert.Equal(t, s.Snapshot().Entries(), reloaded.Snapshot().Entries())

	// The reverse index is rebuilt from the log.
	succ, err := reloaded.Successors(id("A"), Unlimited)
	require.NoError(t, err)
	assert.Equal(t, ids("A", "B", "C"), succ)
	assert.Len(t, reloaded.LookupByPredecessor(id("P")), 1)
}

func TestPersistentConflictIsCorruption(t *testing.T) {
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, store.DBFileName))
	require.NoError(t, err)
	defer db.Close()

	// Write two conflicting records behind the store's back.
	log := NewBoltLog(db)
	a := entry("B", OpAmend, "A")
	b := entry("B", OpRebase, "A")
	require.NoError(t, log.Append([]*Entry{&a, &b}))

	_, err = Open(db, Options{})
	require.ErrorIs(t, err, ErrCorruptProvenance)
}

func TestSnapshotIsolation(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Record(entry("B", OpAmend, "A")))

	snap := s.Snapshot()
	require.NoError(t, s.Record(entry("C", OpAmend, "B")))
	require.NoError(t, s.Record(entry("D", OpAmend, "A")))

	assert.Equal(t, 1, snap.Len())
	assert.False(t, snap.HasSuccessors(id("B")))
	assert.Len(t, snap.LookupByPredecessor(id("A")), 1)
	assert.Len(t, s.LookupByPredecessor(id("A")), 2)
}

func TestConcurrentReadersAndWriter(t *testing.T) {
	s := newTestStore(t)
	const n = 200

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		prev := "c0"
		for i := 1; i <= n; i++ {
			next := fmt.Sprintf("c%d", i)
			if err := s.Record(entry(next, OpAmend, prev)); err != nil {
				t.Errorf("Record failed: %v", err)
				return
			}
			prev = next
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < n; i++ {
				snap := s.Snapshot()
				got, err := snap.Successors(id("c0"), Unlimited)
				if err != nil {
					t.Errorf("Successors failed: %v", err)
					return
				}
				// Every entry in the snapshot extends the single chain.
				if len(got) != snap.Len()+1 {
					t.Errorf("torn snapshot: %d ids for %d entries", len(got), snap.Len())
					return
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, n, s.Snapshot().Len())
}

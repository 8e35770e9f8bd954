package rewrite

import (
	"context"
	"testing"
	"time"

	"github.com/javanhut/ivaldi-mutations/internal/cas"
	"github.com/javanhut/ivaldi-mutations/internal/dag"
	"github.com/javanhut/ivaldi-mutations/internal/mutation"
	"github.com/javanhut/ivaldi-mutations/internal/visibility"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func h(name string) cas.Hash { return cas.SumB3([]byte(name)) }

func newRecorder(t *testing.T, opts mutation.Options) (*Recorder, *dag.MemoryGraph) {
	t.Helper()
	s, err := mutation.NewStore(opts)
	require.NoError(t, err)
	g := dag.NewMemoryGraph()
	return &Recorder{
		Store: s,
		Vis:   visibility.NewMemorySet(),
		Graph: g,
		User:  "alice <alice@example.com>",
		Now:   func() time.Time { return time.Unix(1700000000, 0).In(time.FixedZone("", -18000)) },
	}, g
}

func TestAmendHidesPredecessor(t *testing.T) {
	r, g := newRecorder(t, mutation.Options{})
	require.NoError(t, g.Add(h("root")))
	require.NoError(t, g.Add(h("a"), h("root")))
	require.NoError(t, g.Add(h("a2"), h("root")))

	res, err := r.Record(context.Background(), Rewrite{
		Op:           mutation.OpAmend,
		Predecessors: []cas.Hash{h("a")},
		Successors:   []cas.Hash{h("a2")},
	})
	require.NoError(t, err)
	assert.Equal(t, []cas.Hash{h("a")}, res.Hidden)
	assert.Empty(t, res.Kept)
	assert.False(t, r.Vis.IsVisible(h("a")))
	assert.True(t, r.Vis.IsVisible(h("a2")))

	e, ok := r.Store.LookupBySuccessor(h("a2"))
	require.True(t, ok)
	assert.Equal(t, "alice <alice@example.com>", e.User)
	assert.Equal(t, int64(1700000000), e.Time)
	assert.Equal(t, -18000, e.TZ)
}

func TestPredecessorKeptForDescendant(t *testing.T) {
	r, g := newRecorder(t, mutation.Options{})
	require.NoError(t, g.Add(h("root")))
	require.NoError(t, g.Add(h("a"), h("root")))
	require.NoError(t, g.Add(h("b"), h("a")))
	require.NoError(t, g.Add(h("a2"), h("root")))

	res, err := r.Record(context.Background(), Rewrite{
		Op:           mutation.OpAmend,
		Predecessors: []cas.Hash{h("a")},
		Successors:   []cas.Hash{h("a2")},
	})
	require.NoError(t, err)
	assert.Equal(t, []cas.Hash{h("a")}, res.Kept)
	assert.True(t, r.Vis.IsVisible(h("a")), "b still sits on a")

	// Rebasing b onto a2 hides b, which has no descendants.
	require.NoError(t, g.Add(h("b2"), h("a2")))
	res, err = r.Record(context.Background(), Rewrite{
		Op:           mutation.OpRebase,
		Predecessors: []cas.Hash{h("b")},
		Successors:   []cas.Hash{h("b2")},
	})
	require.NoError(t, err)
	assert.Equal(t, []cas.Hash{h("b")}, res.Hidden)
}

func TestSplitFillsSiblings(t *testing.T) {
	r, _ := newRecorder(t, mutation.Options{})

	res, err := r.Record(context.Background(), Rewrite{
		Op:           mutation.OpSplit,
		Predecessors: []cas.Hash{h("p")},
		Successors:   []cas.Hash{h("s1"), h("s2"), h("s3")},
	})
	require.NoError(t, err)
	require.Len(t, res.Entries, 3)

	e, ok := r.Store.LookupBySuccessor(h("s2"))
	require.True(t, ok)
	assert.ElementsMatch(t, []cas.Hash{h("s1"), h("s3")}, e.Split)

	succ, err := r.Store.Successors(h("p"), 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []cas.Hash{h("p"), h("s1"), h("s2"), h("s3")}, succ)
}

func TestRecordErrors(t *testing.T) {
	r, _ := newRecorder(t, mutation.Options{})

	_, err := r.Record(context.Background(), Rewrite{Op: mutation.OpAmend, Predecessors: []cas.Hash{h("a")}})
	assert.ErrorIs(t, err, ErrNoSuccessors)

	_, err = r.Record(context.Background(), Rewrite{
		Op:         mutation.OpAmend,
		Successors: []cas.Hash{h("a2")},
	})
	assert.ErrorIs(t, err, mutation.ErrEmptyPredecessors)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Record(ctx, Rewrite{
		Op:           mutation.OpAmend,
		Predecessors: []cas.Hash{h("a")},
		Successors:   []cas.Hash{h("a2")},
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, r.Store.Snapshot().Len())
}

func TestDisabledRecordingChangesNothing(t *testing.T) {
	r, _ := newRecorder(t, mutation.Options{Disabled: true})

	res, err := r.Record(context.Background(), Rewrite{
		Op:           mutation.OpAmend,
		Predecessors: []cas.Hash{h("a")},
		Successors:   []cas.Hash{h("a2")},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Entries)
	assert.True(t, r.Vis.IsVisible(h("a")))
}

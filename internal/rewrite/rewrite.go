// Package rewrite reports finished history rewrites to the mutation store
// and applies the visibility policy that follows from them.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"time"

	"github.com/javanhut/ivaldi-mutations/internal/cas"
	"github.com/javanhut/ivaldi-mutations/internal/dag"
	"github.com/javanhut/ivaldi-mutations/internal/mutation"
	"github.com/javanhut/ivaldi-mutations/internal/visibility"
)

// ErrNoSuccessors is returned for a rewrite that produced nothing.
var ErrNoSuccessors = errors.New("rewrite has no successors")

// Rewrite describes one finished rewrite: the commits it replaced and the
// commits it created, already durable in the commit store.
type Rewrite struct {
	Op           mutation.Op
	Predecessors []cas.Hash
	Successors   []cas.Hash
	Extra        map[string]string
}

// Result reports what Record changed.
type Result struct {
	Entries []mutation.Entry
	Hidden  []cas.Hash // predecessors hidden by the rewrite
	Kept    []cas.Hash // predecessors kept visible for their descendants
}

// Recorder turns rewrites into mutation entries.
type Recorder struct {
	Store *mutation.Store
	Vis   visibility.Set
	// Graph is consulted for descendants that still need a predecessor.
	// Without it every predecessor is hidden.
	Graph  dag.Graph
	User   string
	Now    func() time.Time
	Logger *slog.Logger
}

func (r *Recorder) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r.Logger
}

// Entries builds one entry per successor. When a rewrite produces several
// successors each entry lists the others as split siblings.
func (r *Recorder) Entries(rw Rewrite) ([]mutation.Entry, error) {
	if len(rw.Successors) == 0 {
		return nil, ErrNoSuccessors
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	t := now()
	_, tz := t.Zone()

	out := make([]mutation.Entry, 0, len(rw.Successors))
	for i, s := range rw.Successors {
		e := mutation.Entry{
			Successor:    s,
			Predecessors: append([]cas.Hash(nil), rw.Predecessors...),
			Op:           rw.Op,
			User:         r.User,
			Time:         t.Unix(),
			TZ:           tz,
			Extra:        maps.Clone(rw.Extra),
		}
		if len(rw.Successors) > 1 {
			e.Split = make([]cas.Hash, 0, len(rw.Successors)-1)
			e.Split = append(e.Split, rw.Successors[:i]...)
			e.Split = append(e.Split, rw.Successors[i+1:]...)
		}
		out = append(out, e)
	}
	return out, nil
}

// Record stores the entries for rw, reveals its successors and hides each
// predecessor unless a visible, non-obsolete descendant still depends on
// it. With recording disabled nothing changes.
func (r *Recorder) Record(ctx context.Context, rw Rewrite) (Result, error) {
	var res Result
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if !r.Store.Enabled() {
		r.logger().Debug("mutation recording disabled, rewrite not recorded", "op", string(rw.Op))
		return res, nil
	}

	entries, err := r.Entries(rw)
	if err != nil {
		return res, err
	}
	if err := r.Store.RecordAll(entries); err != nil {
		return res, fmt.Errorf("record %s: %w", rw.Op, err)
	}
	res.Entries = entries

	if err := r.Vis.Reveal(rw.Successors...); err != nil {
		return res, fmt.Errorf("reveal successors: %w", err)
	}

	snap := r.Store.Snapshot()
	created := cas.NewSet(rw.Successors...)
	for _, p := range rw.Predecessors {
		needed, err := r.neededBy(snap, p, created)
		if err != nil {
			return res, err
		}
		if needed {
			res.Kept = append(res.Kept, p)
			continue
		}
		res.Hidden = append(res.Hidden, p)
	}
	if err := r.Vis.Hide(res.Hidden...); err != nil {
		return res, fmt.Errorf("hide predecessors: %w", err)
	}
	r.logger().Debug("rewrite recorded", "op", string(rw.Op), "entries", len(entries), "hidden", len(res.Hidden), "kept", len(res.Kept))
	return res, nil
}

// neededBy reports whether a visible, non-obsolete descendant of p in the
// commit graph, other than the rewrite's own successors, still depends on p.
func (r *Recorder) neededBy(snap *mutation.Snapshot, p cas.Hash, created cas.Set) (bool, error) {
	if r.Graph == nil || !r.Graph.Has(p) {
		return false, nil
	}
	seen := cas.NewSet(p)
	queue := []cas.Hash{p}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, ch := range r.Graph.Children(cur) {
			if !seen.Add(ch) {
				continue
			}
			if !created.Has(ch) && r.Vis.IsVisible(ch) && !snap.HasSuccessors(ch) {
				return true, nil
			}
			queue = append(queue, ch)
		}
	}
	return false, nil
}

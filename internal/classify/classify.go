// Package classify derives commit status from the mutation graph and the
// visibility, phase and parent overlays.
//
// Every predicate reads one mutation snapshot and is independent of any
// visible-only filtering applied by callers. Corruption found on the way
// (a provenance cycle, a dangling reference) aborts the query with
// mutation.ErrCorruptProvenance instead of a partial answer.
package classify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/javanhut/ivaldi-mutations/internal/cas"
	"github.com/javanhut/ivaldi-mutations/internal/dag"
	"github.com/javanhut/ivaldi-mutations/internal/mutation"
	"github.com/javanhut/ivaldi-mutations/internal/phase"
	"github.com/javanhut/ivaldi-mutations/internal/visibility"
)

// Classifier evaluates status predicates over fixed inputs.
type Classifier struct {
	m  *mutation.Snapshot
	v  visibility.Reader
	ph phase.Map
	g  dag.Graph
}

// New creates a classifier. g may be nil when no commit graph is
// available, in which case no commit is an orphan.
func New(m *mutation.Snapshot, v visibility.Reader, ph phase.Map, g dag.Graph) *Classifier {
	return &Classifier{m: m, v: v, ph: ph, g: g}
}

// Status is every predicate for one commit.
type Status struct {
	Visible          bool
	Phase            phase.Phase
	Obsolete         bool
	Extinct          bool
	Orphan           bool
	ContentDivergent bool
	PhaseDivergent   bool
}

// Troubles lists the instability flags that are set.
func (s Status) Troubles() []string {
	var out []string
	if s.Orphan {
		out = append(out, "orphan")
	}
	if s.ContentDivergent {
		out = append(out, "content-divergent")
	}
	if s.PhaseDivergent {
		out = append(out, "phase-divergent")
	}
	return out
}

// Status evaluates every predicate for c.
func (c *Classifier) Status(id cas.Hash) (Status, error) {
	st := Status{
		Visible:  c.v.IsVisible(id),
		Phase:    c.ph.Phase(id),
		Obsolete: c.IsObsolete(id),
	}
	var err error
	if st.Extinct, err = c.IsExtinct(id); err != nil {
		return Status{}, err
	}
	if st.Orphan, err = c.IsOrphan(id); err != nil {
		return Status{}, err
	}
	if st.ContentDivergent, err = c.IsContentDivergent(id); err != nil {
		return Status{}, err
	}
	if st.PhaseDivergent, err = c.IsPhaseDivergent(id); err != nil {
		return Status{}, err
	}
	return st, nil
}

// IsObsolete reports whether id has at least one recorded successor,
// whatever its visibility.
func (c *Classifier) IsObsolete(id cas.Hash) bool {
	return c.m.HasSuccessors(id)
}

// IsExtinct reports whether id is obsolete, hidden, and nothing in its
// rewrite future is visible. A hidden commit without history is not
// extinct.
func (c *Classifier) IsExtinct(id cas.Hash) (bool, error) {
	if !c.IsObsolete(id) || c.v.IsVisible(id) {
		return false, nil
	}
	succ, err := c.m.Successors(id, mutation.Unlimited)
	if err != nil {
		return false, err
	}
	for _, s := range succ[1:] {
		if c.v.IsVisible(s) {
			return false, nil
		}
	}
	return true, nil
}

// IsOrphan reports whether id is visible and not obsolete while some
// ancestor in the commit graph is obsolete and id was never moved onto any
// of that ancestor's rewritten forms.
func (c *Classifier) IsOrphan(id cas.Hash) (bool, error) {
	if c.g == nil || !c.v.IsVisible(id) || c.IsObsolete(id) || !c.g.Has(id) {
		return false, nil
	}
	anc, err := dag.Ancestors(c.g, id)
	if err != nil {
		return false, corrupt(err)
	}
	for _, a := range anc.Sorted() {
		if !c.IsObsolete(a) {
			continue
		}
		succ, err := c.m.Successors(a, mutation.Unlimited)
		if err != nil {
			return false, err
		}
		followed := false
		for _, s := range succ[1:] {
			if anc.Has(s) {
				followed = true
				break
			}
		}
		if !followed {
			return true, nil
		}
	}
	return false, nil
}

// IsContentDivergent reports whether another visible rewritten commit
// shares an origin with id through an independent rewrite. See
// DivergentWith.
func (c *Classifier) IsContentDivergent(id cas.Hash) (bool, error) {
	others, err := c.DivergentWith(id)
	return len(others) > 0, err
}

// DivergentWith returns the visible commits that diverge from id, sorted.
//
// x diverges from id when both are visible successors of recorded entries,
// they share a predecessor p, the rewrites leaving p towards id and towards
// x are different rewrite instances, and neither is a transitive successor
// of the other. Split siblings come from one rewrite instance and never
// diverge from each other.
func (c *Classifier) DivergentWith(id cas.Hash) ([]cas.Hash, error) {
	if !c.v.IsVisible(id) || !c.m.HasEntry(id) {
		return nil, nil
	}
	predsC, err := c.predecessorSet(id)
	if err != nil {
		return nil, err
	}
	succC, err := c.m.Successors(id, mutation.Unlimited)
	if err != nil {
		return nil, err
	}
	descC := cas.NewSet(succC...)

	found := make(cas.Set)
	for _, p := range predsC.Sorted() {
		if p == id {
			continue
		}
		checked := cas.NewSet(id)
		entries := c.m.LookupByPredecessor(p)
		onPath := viaGroups(entries, predsC)
		for _, e := range entries {
			if onPath[groupKey(e)] {
				continue
			}
			for _, g := range e.Group() {
				reach, err := c.m.Successors(g, mutation.Unlimited)
				if err != nil {
					return nil, err
				}
				for _, x := range reach {
					if found.Has(x) || !checked.Add(x) {
						continue
					}
					ok, err := c.diverges(x, entries, onPath, predsC, descC)
					if err != nil {
						return nil, err
					}
					if ok {
						found.Add(x)
					}
				}
			}
		}
	}
	return found.Sorted(), nil
}

func (c *Classifier) diverges(x cas.Hash, fromP []mutation.Entry, onPathC map[string]bool, predsC, descC cas.Set) (bool, error) {
	if !c.v.IsVisible(x) || !c.m.HasEntry(x) || descC.Has(x) || predsC.Has(x) {
		return false, nil
	}
	predsX, err := c.predecessorSet(x)
	if err != nil {
		return false, err
	}
	for k := range viaGroups(fromP, predsX) {
		if onPathC[k] {
			return false, nil
		}
	}
	return true, nil
}

// IsPhaseDivergent reports whether visible id was produced from a public
// commit while not being public itself.
func (c *Classifier) IsPhaseDivergent(id cas.Hash) (bool, error) {
	if !c.v.IsVisible(id) || c.ph.Phase(id) == phase.Public {
		return false, nil
	}
	e, ok := c.m.LookupBySuccessor(id)
	if !ok {
		return false, nil
	}
	for _, p := range e.Predecessors {
		if c.ph.Phase(p) == phase.Public {
			return true, nil
		}
	}
	return false, nil
}

func (c *Classifier) predecessorSet(id cas.Hash) (cas.Set, error) {
	preds, err := c.m.Predecessors(id, mutation.Unlimited)
	if err != nil {
		return nil, err
	}
	return cas.NewSet(preds...), nil
}

// viaGroups returns the keys of the rewrite instances among entries whose
// successor lies in chain.
func viaGroups(entries []mutation.Entry, chain cas.Set) map[string]bool {
	out := make(map[string]bool)
	for _, e := range entries {
		if chain.Has(e.Successor) {
			out[groupKey(e)] = true
		}
	}
	return out
}

func groupKey(e mutation.Entry) string {
	var b strings.Builder
	for _, g := range e.Group() {
		b.WriteString(g.String())
	}
	return b.String()
}

func corrupt(err error) error {
	if errors.Is(err, mutation.ErrCorruptProvenance) {
		return err
	}
	return fmt.Errorf("%w: %w", mutation.ErrCorruptProvenance, err)
}

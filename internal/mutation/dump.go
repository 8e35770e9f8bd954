package mutation

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/javanhut/ivaldi-mutations/internal/cas"
)

// DumpTimeFormat is the timestamp layout used by Dump.
const DumpTimeFormat = "2006-01-02 15:04:05 -0700"

// Dump writes id's full provenance chain: for each entry the operation,
// user and time, a "split into this and:" line when the rewrite produced
// siblings, then each predecessor recursively. A predecessor reached again
// through a fold is printed once and referenced afterwards. Nothing is
// written when the chain is corrupt.
func (s *Snapshot) Dump(w io.Writer, id cas.Hash) error {
	d := dumper{s: s, path: make(cas.Set), done: make(cas.Set)}
	if err := d.node(id, 0); err != nil {
		return err
	}
	_, err := w.Write(d.buf.Bytes())
	return err
}

type dumper struct {
	s    *Snapshot
	buf  bytes.Buffer
	path cas.Set // ids on the current recursion path
	done cas.Set // ids whose chain is already printed
}

func (d *dumper) line(depth int, format string, args ...any) {
	d.buf.WriteString(strings.Repeat("    ", depth))
	fmt.Fprintf(&d.buf, format, args...)
	d.buf.WriteByte('\n')
}

func (d *dumper) node(id cas.Hash, depth int) error {
	if d.path.Has(id) {
		return fmt.Errorf("%w: cycle through %s", ErrCorruptProvenance, id.Short())
	}
	e, ok := d.s.bySucc[id]
	if !ok {
		d.line(depth, "%s", id)
		return nil
	}
	if d.done.Has(id) {
		d.line(depth, "%s (shown above)", id)
		return nil
	}
	if e.Successor != id {
		return fmt.Errorf("%w: forward index maps %s to entry for %s", ErrCorruptProvenance, id.Short(), e.Successor.Short())
	}

	d.path.Add(id)
	defer delete(d.path, id)

	d.line(depth, "%s", id)
	d.line(depth+1, "%s by %s at %s", e.Op, e.User, e.When().Format(DumpTimeFormat))
	if e.IsSplit() {
		parts := make([]string, len(e.Split))
		for i, sib := range e.Split {
			parts[i] = sib.String()
		}
		d.line(depth+1, "split into this and: %s", strings.Join(parts, ", "))
	}
	for _, kv := range sortedExtra(e.Extra) {
		d.line(depth+1, "%s", kv)
	}
	d.line(depth+1, "from:")
	for _, p := range e.Predecessors {
		if err := d.node(p, depth+2); err != nil {
			return err
		}
	}
	d.done.Add(id)
	return nil
}

func sortedExtra(extra map[string]string) []string {
	if len(extra) == 0 {
		return nil
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k + "=" + extra[k]
	}
	return out
}

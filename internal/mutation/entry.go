// Package mutation records how commits are rewritten.
//
// The package provides:
// - Entry, one immutable record of one rewrite event, with a stable
//   canonical encoding used for persistence, exchange and equality
// - Store, an append-only log of entries with a forward index (by
//   successor) and a reverse index (by predecessor) that are always
//   updated together
// - Snapshot, an immutable view of the store on which all traversal runs
// - bounded-depth breadth-first walks in both directions
// - a recursive human-readable dump of a commit's provenance chain
package mutation

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/javanhut/ivaldi-mutations/internal/cas"
)

// Op names the rewrite that produced an entry. The set is open: any
// non-empty label is accepted and new rewrite kinds need no schema change.
type Op string

// Well-known operations reported by the rewrite commands.
const (
	OpAmend    Op = "amend"
	OpRebase   Op = "rebase"
	OpHistedit Op = "histedit"
	OpFold     Op = "fold"
	OpSplit    Op = "split"
	OpMetaedit Op = "metaedit"
	OpCopy     Op = "copy"
)

// Entry is one record of one rewrite event.
type Entry struct {
	Successor    cas.Hash          // commit created by the rewrite, unique key
	Predecessors []cas.Hash        // rewritten commits, ordered, never empty
	Split        []cas.Hash        // other successors of the same rewrite instance
	Op           Op                // operation label
	User         string            // who performed the rewrite
	Time         int64             // Unix seconds
	TZ           int               // offset east of UTC, seconds
	Extra        map[string]string // free-form operation metadata
}

// When returns the entry timestamp in its recorded zone.
func (e *Entry) When() time.Time {
	return time.Unix(e.Time, 0).In(time.FixedZone("", e.TZ))
}

// IsSplit reports whether the entry is one of several split outputs.
func (e *Entry) IsSplit() bool {
	return len(e.Split) > 0
}

// Group returns every successor of the rewrite instance that produced this
// entry, sorted: the successor itself plus its split siblings.
func (e *Entry) Group() []cas.Hash {
	g := make([]cas.Hash, 0, 1+len(e.Split))
	g = append(g, e.Successor)
	g = append(g, e.Split...)
	cas.Sort(g)
	return g
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() Entry {
	c := *e
	c.Predecessors = append([]cas.Hash(nil), e.Predecessors...)
	if e.Split != nil {
		c.Split = append([]cas.Hash(nil), e.Split...)
	}
	if e.Extra != nil {
		c.Extra = make(map[string]string, len(e.Extra))
		for k, v := range e.Extra {
			c.Extra[k] = v
		}
	}
	return c
}

// Equal reports field-for-field equality after normalization.
func (e *Entry) Equal(o *Entry) bool {
	return bytes.Equal(e.CanonicalBytes(), o.CanonicalBytes())
}

// Digest returns the BLAKE3 hash of the canonical encoding.
func (e *Entry) Digest() cas.Hash {
	return cas.SumB3(e.CanonicalBytes())
}

// normalize sorts and deduplicates the split set and drops an empty Extra
// map so that equal records encode identically.
func (e *Entry) normalize() {
	if len(e.Split) == 0 {
		e.Split = nil
	} else {
		s := cas.NewSet(e.Split...)
		e.Split = s.Sorted()
	}
	if len(e.Extra) == 0 {
		e.Extra = nil
	}
}

// validate checks the structural invariants of a single entry.
func (e *Entry) validate() error {
	if len(e.Predecessors) == 0 {
		return ErrEmptyPredecessors
	}
	if e.Successor.IsZero() {
		return ErrZeroCommit
	}
	seen := make(cas.Set, len(e.Predecessors))
	for _, p := range e.Predecessors {
		if p.IsZero() {
			return ErrZeroCommit
		}
		if p == e.Successor {
			return fmt.Errorf("%w: %s", ErrSelfReference, p.Short())
		}
		if !seen.Add(p) {
			return fmt.Errorf("%w: %s", ErrDuplicatePredecessor, p.Short())
		}
	}
	for _, s := range e.Split {
		if s.IsZero() {
			return ErrZeroCommit
		}
		if s == e.Successor {
			return fmt.Errorf("%w: %s lists itself as a split sibling", ErrSelfReference, s.Short())
		}
		if seen.Has(s) {
			return fmt.Errorf("%w: sibling %s is also a predecessor", ErrSplitMismatch, s.Short())
		}
	}
	if e.Op == "" {
		return fmt.Errorf("mutation entry for %s has no operation", e.Successor.Short())
	}
	return nil
}

// sameRewrite reports whether two split siblings carry identical shared
// fields: predecessors, operation metadata and sibling group.
func sameRewrite(a, b *Entry) bool {
	if a.Op != b.Op || a.User != b.User || a.Time != b.Time || a.TZ != b.TZ {
		return false
	}
	if len(a.Predecessors) != len(b.Predecessors) {
		return false
	}
	for i := range a.Predecessors {
		if a.Predecessors[i] != b.Predecessors[i] {
			return false
		}
	}
	ga, gb := a.Group(), b.Group()
	if len(ga) != len(gb) {
		return false
	}
	for i := range ga {
		if ga[i] != gb[i] {
			return false
		}
	}
	return true
}

// CanonicalBytes returns the stable byte encoding of the entry. It is the
// persisted form and the exchange form.
//
// Canonical encoding format (version 1):
//
//	uvarint(1)                    // version
//	32 bytes Successor
//	uvarint(len(Predecessors))
//	repeat: 32 bytes predecessor  // recorded order
//	uvarint(len(Split))
//	repeat: 32 bytes sibling      // ascending
//	uvarint(len(Op)) bytes(Op)
//	uvarint(len(User)) bytes(User)
//	varint(Time)
//	varint(TZ)
//	uvarint(len(Extra))
//	repeat: key, value            // sorted by key, length prefixed
func (e *Entry) CanonicalBytes() []byte {
	n := *e
	n.normalize()

	var buf bytes.Buffer
	putUvarint(&buf, 1)
	buf.Write(n.Successor[:])

	putUvarint(&buf, uint64(len(n.Predecessors)))
	for _, p := range n.Predecessors {
		buf.Write(p[:])
	}

	putUvarint(&buf, uint64(len(n.Split)))
	for _, s := range n.Split {
		buf.Write(s[:])
	}

	putString(&buf, string(n.Op))
	putString(&buf, n.User)
	putVarint(&buf, n.Time)
	putVarint(&buf, int64(n.TZ))

	keys := make([]string, 0, len(n.Extra))
	for k := range n.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	putUvarint(&buf, uint64(len(keys)))
	for _, k := range keys {
		putString(&buf, k)
		putString(&buf, n.Extra[k])
	}

	return buf.Bytes()
}

// ParseEntry decodes canonical bytes produced by CanonicalBytes.
func ParseEntry(canonical []byte) (Entry, error) {
	r := bytes.NewReader(canonical)
	var e Entry

	version, err := binary.ReadUvarint(r)
	if err != nil {
		return e, fmt.Errorf("failed to read version: %w", err)
	}
	if version != 1 {
		return e, fmt.Errorf("unsupported version: %d", version)
	}

	if _, err := io.ReadFull(r, e.Successor[:]); err != nil {
		return e, fmt.Errorf("failed to read successor: %w", err)
	}

	if e.Predecessors, err = readHashes(r, "predecessor"); err != nil {
		return e, err
	}
	if e.Split, err = readHashes(r, "split sibling"); err != nil {
		return e, err
	}

	op, err := readString(r, "operation")
	if err != nil {
		return e, err
	}
	e.Op = Op(op)
	if e.User, err = readString(r, "user"); err != nil {
		return e, err
	}
	if e.Time, err = binary.ReadVarint(r); err != nil {
		return e, fmt.Errorf("failed to read time: %w", err)
	}
	tz, err := binary.ReadVarint(r)
	if err != nil {
		return e, fmt.Errorf("failed to read tz: %w", err)
	}
	e.TZ = int(tz)

	count, err := binary.ReadUvarint(r)
	if err != nil {
		return e, fmt.Errorf("failed to read extra count: %w", err)
	}
	if count > uint64(r.Len()) {
		return e, fmt.Errorf("extra count %d exceeds remaining data", count)
	}
	if count > 0 {
		e.Extra = make(map[string]string, count)
		for i := uint64(0); i < count; i++ {
			k, err := readString(r, "extra key")
			if err != nil {
				return e, err
			}
			v, err := readString(r, "extra value")
			if err != nil {
				return e, err
			}
			e.Extra[k] = v
		}
	}

	if r.Len() > 0 {
		return e, fmt.Errorf("unexpected extra data after entry")
	}
	if len(e.Split) == 0 {
		e.Split = nil
	}
	return e, nil
}

func putUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func putVarint(buf *bytes.Buffer, v int64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func putString(buf *bytes.Buffer, s string) {
	putUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader, what string) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", fmt.Errorf("failed to read %s length: %w", what, err)
	}
	if n > uint64(r.Len()) {
		return "", fmt.Errorf("%s length %d exceeds remaining data", what, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", what, err)
	}
	return string(b), nil
}

func readHashes(r *bytes.Reader, what string) ([]cas.Hash, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s count: %w", what, err)
	}
	if n > uint64(r.Len())/32 {
		return nil, fmt.Errorf("%s count %d exceeds remaining data", what, n)
	}
	out := make([]cas.Hash, n)
	for i := range out {
		if _, err := io.ReadFull(r, out[i][:]); err != nil {
			return nil, fmt.Errorf("failed to read %s %d: %w", what, i, err)
		}
	}
	return out, nil
}

package mutation

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyPredecessors rejects an entry that names no predecessor.
	ErrEmptyPredecessors = errors.New("mutation entry has no predecessors")

	// ErrSelfReference rejects an entry whose successor is also one of its
	// predecessors or split siblings.
	ErrSelfReference = errors.New("mutation entry references its own successor")

	// ErrDuplicatePredecessor rejects an entry listing a predecessor twice.
	ErrDuplicatePredecessor = errors.New("mutation entry lists a predecessor more than once")

	// ErrZeroCommit rejects an entry that mentions the zero commit id.
	ErrZeroCommit = errors.New("mutation entry mentions the zero commit id")

	// ErrRecordConflict is returned when a successor already has a
	// different entry. The stored entry is left unchanged.
	ErrRecordConflict = errors.New("successor already has a different mutation entry")

	// ErrSplitMismatch is returned when split siblings disagree on their
	// shared predecessors, operation metadata or sibling group.
	ErrSplitMismatch = fmt.Errorf("split siblings disagree: %w", ErrRecordConflict)

	// ErrCorruptProvenance reports a cycle or a dangling reference in the
	// provenance graph. Queries that hit it abort without a partial result.
	ErrCorruptProvenance = errors.New("corrupt provenance")
)

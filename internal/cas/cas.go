// Package cas provides the content-addressed commit identifier used across
// the mutation subsystem and BLAKE3 hashing utilities.
package cas

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"lukechampine.com/blake3"
)

// Hash represents a BLAKE3-256 hash value. It identifies a commit.
type Hash [32]byte

// ShortLen is the number of hex characters printed by Short.
const ShortLen = 12

var (
	// ErrUnknownPrefix is returned when a prefix matches no candidate.
	ErrUnknownPrefix = errors.New("unknown commit prefix")
	// ErrAmbiguousPrefix is returned when a prefix matches several candidates.
	ErrAmbiguousPrefix = errors.New("ambiguous commit prefix")
)

// String returns the hexadecimal representation of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first ShortLen hex characters of the hash.
func (h Hash) Short() string {
	return h.String()[:ShortLen]
}

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Compare orders hashes bytewise.
func (h Hash) Compare(o Hash) int {
	return bytes.Compare(h[:], o[:])
}

// SumB3 computes the BLAKE3 hash of the given data.
func SumB3(data []byte) Hash {
	return blake3.Sum256(data)
}

// ParseHash decodes a full 64 character hex string.
func ParseHash(s string) (Hash, error) {
	var h Hash
	s = strings.TrimSpace(s)
	if len(s) != hex.EncodedLen(len(h)) {
		return h, fmt.Errorf("invalid hash length %d: %q", len(s), s)
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	return h, nil
}

// Resolve finds the single candidate whose hex form starts with prefix.
func Resolve(prefix string, candidates []Hash) (Hash, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if len(prefix) == hex.EncodedLen(len(Hash{})) {
		return ParseHash(prefix)
	}
	var (
		found Hash
		n     int
	)
	for _, c := range candidates {
		if strings.HasPrefix(c.String(), prefix) {
			if n > 0 && c == found {
				continue
			}
			found = c
			n++
		}
	}
	switch n {
	case 0:
		return Hash{}, fmt.Errorf("%w: %s", ErrUnknownPrefix, prefix)
	case 1:
		return found, nil
	default:
		return Hash{}, fmt.Errorf("%w: %s matches %d commits", ErrAmbiguousPrefix, prefix, n)
	}
}

// Sort sorts hashes in place, bytewise ascending.
func Sort(hs []Hash) {
	sort.Slice(hs, func(i, j int) bool { return hs[i].Compare(hs[j]) < 0 })
}

// Set is an unordered set of hashes.
type Set map[Hash]struct{}

// NewSet builds a set from the given hashes.
func NewSet(hs ...Hash) Set {
	s := make(Set, len(hs))
	for _, h := range hs {
		s[h] = struct{}{}
	}
	return s
}

// Add inserts h and reports whether it was absent.
func (s Set) Add(h Hash) bool {
	if _, ok := s[h]; ok {
		return false
	}
	s[h] = struct{}{}
	return true
}

// Has reports membership.
func (s Set) Has(h Hash) bool {
	_, ok := s[h]
	return ok
}

// Sorted returns the members in ascending order.
func (s Set) Sorted() []Hash {
	out := make([]Hash, 0, len(s))
	for h := range s {
		out = append(out, h)
	}
	Sort(out)
	return out
}

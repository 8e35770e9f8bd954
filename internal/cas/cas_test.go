package cas

import (
	"errors"
	"testing"
)

func TestSumB3(t *testing.T) {
	data := []byte("hello world")
	hash1 := SumB3(data)
	hash2 := SumB3(data)

	if hash1 != hash2 {
		t.Error("Same data should produce same hash")
	}

	// Test different data produces different hash
	hash3 := SumB3([]byte("hello world!"))
	if hash1 == hash3 {
		t.Error("Different data should produce different hashes")
	}
}

func TestParseHash(t *testing.T) {
	h := SumB3([]byte("commit"))

	parsed, err := ParseHash(h.String())
	if err != nil {
		t.Fatalf("ParseHash failed: %v", err)
	}
	if parsed != h {
		t.Errorf("Expected %s, got %s", h, parsed)
	}

	if _, err := ParseHash("abc"); err == nil {
		t.Error("ParseHash should reject short input")
	}
	if _, err := ParseHash(h.String()[:62] + "zz"); err == nil {
		t.Error("ParseHash should reject non-hex input")
	}
}

func TestShortAndZero(t *testing.T) {
	h := SumB3([]byte("x"))
	if len(h.Short()) != ShortLen {
		t.Errorf("Expected short length %d, got %d", ShortLen, len(h.Short()))
	}
	if h.IsZero() {
		t.Error("Hash of data should not be zero")
	}
	if !(Hash{}).IsZero() {
		t.Error("Zero hash should report IsZero")
	}
}

func TestResolve(t *testing.T) {
	a := SumB3([]byte("a"))
	b := SumB3([]byte("b"))
	candidates := []Hash{a, b}

	got, err := Resolve(a.String()[:8], candidates)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got != a {
		t.Errorf("Expected %s, got %s", a, got)
	}

	if _, err := Resolve("", candidates); !errors.Is(err, ErrAmbiguousPrefix) {
		t.Errorf("Expected ErrAmbiguousPrefix, got %v", err)
	}

	// A full id resolves even when it is not a candidate.
	c := SumB3([]byte("c"))
	if got, err := Resolve(c.String(), candidates); err != nil || got != c {
		t.Errorf("Expected full id to resolve to %s, got %s (%v)", c, got, err)
	}

	missing := "ffffffffffff"
	if a.String()[:len(missing)] == missing || b.String()[:len(missing)] == missing {
		t.Skip("fixture collides with test prefix")
	}
	if _, err := Resolve(missing, candidates); !errors.Is(err, ErrUnknownPrefix) {
		t.Errorf("Expected ErrUnknownPrefix, got %v", err)
	}
}

func TestSet(t *testing.T) {
	a := SumB3([]byte("a"))
	b := SumB3([]byte("b"))

	s := NewSet(a)
	if !s.Has(a) || s.Has(b) {
		t.Error("Set membership incorrect")
	}
	if !s.Add(b) {
		t.Error("Add of new member should report true")
	}
	if s.Add(b) {
		t.Error("Add of existing member should report false")
	}

	sorted := s.Sorted()
	if len(sorted) != 2 || sorted[0].Compare(sorted[1]) >= 0 {
		t.Errorf("Sorted returned unexpected order: %v", sorted)
	}
}

func BenchmarkSumB3(b *testing.B) {
	data := make([]byte, 1024) // 1KB
	for i := range data {
		data[i] = byte(i % 256)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = SumB3(data)
	}
}

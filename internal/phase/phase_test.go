package phase

import (
	"path/filepath"
	"testing"

	"github.com/javanhut/ivaldi-mutations/internal/cas"
	"github.com/javanhut/ivaldi-mutations/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for _, p := range []Phase{Public, Draft, Secret} {
		got, err := Parse(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := Parse("published")
	assert.Error(t, err)
}

func TestMemoryMapDefault(t *testing.T) {
	m := NewMemoryMap(Draft)
	a := cas.SumB3([]byte("a"))
	assert.Equal(t, Draft, m.Phase(a))

	require.NoError(t, m.Set(Public, a))
	assert.Equal(t, Public, m.Phase(a))
}

func TestBoltMapPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), store.DBFileName)
	a := cas.SumB3([]byte("a"))
	b := cas.SumB3([]byte("b"))

	db, err := store.Open(path)
	require.NoError(t, err)
	m, err := OpenBoltMap(db, Draft)
	require.NoError(t, err)
	require.NoError(t, m.Set(Public, a))
	require.NoError(t, m.Set(Secret, b))
	require.NoError(t, db.Close())

	db, err = store.Open(path)
	require.NoError(t, err)
	defer db.Close()
	m, err = OpenBoltMap(db, Draft)
	require.NoError(t, err)
	assert.Equal(t, Public, m.Phase(a))
	assert.Equal(t, Secret, m.Phase(b))
	assert.Equal(t, Draft, m.Phase(cas.SumB3([]byte("c"))))
}

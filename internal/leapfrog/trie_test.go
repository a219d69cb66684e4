package leapfrog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nqrdf/tristore/internal/index"
)

func TestTrieIteratorWalksLevel0Subjects(t *testing.T) {
	x, _, _, alice, bob, carol := openFixture(t)

	cur, err := x.ScanPrefix(index.SPO, nil)
	require.NoError(t, err)
	ti := NewTrieIterator(cur, 0)
	defer ti.Close()

	var got []uint64
	for {
		v, ok := ti.Current()
		if !ok {
			break
		}
		got = append(got, v)
		if !ti.Next() {
			break
		}
	}

	// Distinct subjects in SPO order: Next seeks past the current
	// value, so alice (subject of two triples) appears once, then bob
	// and carol.
	require.NotEmpty(t, got)
	assert.Equal(t, uint64(alice), got[0])
	assert.Contains(t, got, uint64(bob))
	assert.Contains(t, got, uint64(carol))
}

func TestTrieIteratorSeekSkipsToTarget(t *testing.T) {
	x, _, _, alice, bob, _ := openFixture(t)

	cur, err := x.ScanPrefix(index.SPO, nil)
	require.NoError(t, err)
	ti := NewTrieIterator(cur, 0)
	defer ti.Close()

	ok := ti.Seek(uint64(bob))
	require.True(t, ok)
	v, ok := ti.Current()
	require.True(t, ok)
	assert.GreaterOrEqual(t, v, uint64(bob))
	assert.NotEqual(t, uint64(alice), v)
}

func TestTrieIteratorExhaustsPastMaxKey(t *testing.T) {
	x, _, _, _, _, _ := openFixture(t)

	cur, err := x.ScanPrefix(index.SPO, nil)
	require.NoError(t, err)
	ti := NewTrieIterator(cur, 0)
	defer ti.Close()

	ok := ti.Seek(^uint64(0))
	assert.False(t, ok)
	_, ok = ti.Current()
	assert.False(t, ok)
	assert.False(t, ti.Next())
}

func TestTrieIteratorLevel1FiltersToPredicatePrefix(t *testing.T) {
	x, _, knows, _, _, _ := openFixture(t)

	prefix := index.BuildPrefix(knows)
	cur, err := x.ScanPrefix(index.POS, prefix)
	require.NoError(t, err)
	ti := NewTrieIterator(cur, 1)
	defer ti.Close()

	v, ok := ti.Current()
	require.True(t, ok)
	// Within the knows-prefixed POS range, level 1 is the object id.
	assert.NotZero(t, v)
}

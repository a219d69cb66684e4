package leapfrog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nqrdf/tristore/internal/index"
)

// openJoinFixture joins one level-0 SPO trie iterator and one level-0
// OSP trie iterator, both unbounded, so their leapfrog intersection is
// exactly the set of ids that appear as both a subject and an object.
func openJoinFixture(t *testing.T) (*Join, func()) {
	x, _, _, _, _, _ := openFixture(t)

	spoCur, err := x.ScanPrefix(index.SPO, nil)
	require.NoError(t, err)
	ospCur, err := x.ScanPrefix(index.OSP, nil)
	require.NoError(t, err)

	subjects := NewTrieIterator(spoCur, 0)
	objects := NewTrieIterator(ospCur, 0)

	j, err := NewJoin([]*TrieIterator{subjects, objects}, 1000)
	require.NoError(t, err)
	return j, func() { j.Close() }
}

func TestJoinSearchFindsFirstCommonValue(t *testing.T) {
	j, cleanup := openJoinFixture(t)
	defer cleanup()

	v, ok, err := j.Search()
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotZero(t, v)
}

func TestJoinNextEnumeratesAllCommonValues(t *testing.T) {
	j, cleanup := openJoinFixture(t)
	defer cleanup()

	var got []uint64
	v, ok, err := j.Search()
	require.NoError(t, err)
	for ok {
		got = append(got, v)
		v, ok, err = j.Next()
		require.NoError(t, err)
	}
	// alice, bob and carol each appear as both subject and object in the
	// fixture's cyclic knows graph.
	assert.Len(t, got, 3)
}

func TestJoinSingleIteratorDegeneratesToTrieWalk(t *testing.T) {
	x, _, _, alice, _, _ := openFixture(t)
	cur, err := x.ScanPrefix(index.SPO, nil)
	require.NoError(t, err)
	it := NewTrieIterator(cur, 0)
	j, err := NewJoin([]*TrieIterator{it}, 1000)
	require.NoError(t, err)
	defer j.Close()

	v, ok, err := j.Search()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(alice), v)
}

func TestJoinMaxIterationsExceeded(t *testing.T) {
	x, _, _, _, _, _ := openFixture(t)
	spoCur, err := x.ScanPrefix(index.SPO, nil)
	require.NoError(t, err)
	posCur, err := x.ScanPrefix(index.POS, nil)
	require.NoError(t, err)

	// Level 0 of SPO holds the subjects and level 0 of POS holds the
	// single predicate "knows", which is never a subject, so the two
	// iterators disagree at once and the first seek exceeds a bound of 0.
	subjects := NewTrieIterator(spoCur, 0)
	predicates := NewTrieIterator(posCur, 0)
	j, err := NewJoin([]*TrieIterator{subjects, predicates}, 0)
	require.NoError(t, err)
	defer j.Close()

	_, _, err = j.Search()
	assert.ErrorIs(t, err, ErrMaxIterationsExceeded)
}

func TestJoinEmptyIteratorSetRejected(t *testing.T) {
	_, err := NewJoin(nil, 10)
	assert.Error(t, err)
}

package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nqrdf/tristore/algebra"
	"github.com/nqrdf/tristore/internal/dict"
	"github.com/nqrdf/tristore/term"
)

func sampleEntry(predicates ...dict.ID) Entry {
	return Entry{
		Rows:        []Row{{"s": 1, "o": 2}},
		RowCount:    1,
		ApproxBytes: 64,
		Predicates:  predicates,
		CreatedAt:   time.Now(),
	}
}

func TestPutThenGetRoundTrips(t *testing.T) {
	c := New(Options{})
	key := Key{1}
	require.True(t, c.Put(key, sampleEntry(dict.ID(10))))

	got, ok := c.Get(key)
	require.True(t, ok)
	require.Equal(t, 1, got.RowCount)
}

func TestGetMissReportsFalse(t *testing.T) {
	c := New(Options{})
	_, ok := c.Get(Key{9})
	require.False(t, ok)
}

func TestPutRejectsOversizedResult(t *testing.T) {
	c := New(Options{MaxResultSize: 1})
	e := sampleEntry()
	e.RowCount = 2
	require.False(t, c.Put(Key{1}, e))
	require.Equal(t, 0, c.Len())
}

func TestPutEvictsLRUUnderEntryCap(t *testing.T) {
	c := New(Options{MaxEntries: 1})
	require.True(t, c.Put(Key{1}, sampleEntry()))
	require.True(t, c.Put(Key{2}, sampleEntry()))
	require.Equal(t, 1, c.Len())
	_, ok := c.Get(Key{1})
	require.False(t, ok, "oldest entry should have been evicted")
	_, ok = c.Get(Key{2})
	require.True(t, ok)
}

func TestPutEvictsUnderMemoryBudgetAndCountsSkipped(t *testing.T) {
	c := New(Options{MaxMemoryBytes: 64})
	require.True(t, c.Put(Key{1}, sampleEntry())) // 64 bytes, fits exactly
	e2 := sampleEntry()
	e2.ApproxBytes = 64
	require.True(t, c.Put(Key{2}, e2)) // evicts key{1} to fit
	require.Equal(t, 1, c.Len())

	oversized := sampleEntry()
	oversized.ApproxBytes = 1000
	require.False(t, c.Put(Key{3}, oversized))
	require.Equal(t, int64(1), c.SkippedMemory())
}

func TestGetExpiresEntryPastTTL(t *testing.T) {
	c := New(Options{TTL: time.Millisecond})
	e := sampleEntry()
	e.CreatedAt = time.Now().Add(-time.Hour)
	c.Put(Key{1}, e)
	_, ok := c.Get(Key{1})
	require.False(t, ok)
	require.Equal(t, 0, c.Len())
}

func TestSweepExpiredRemovesWithoutGet(t *testing.T) {
	c := New(Options{TTL: time.Millisecond})
	e := sampleEntry()
	e.CreatedAt = time.Now().Add(-time.Hour)
	c.Put(Key{1}, e)
	c.sweepExpired()
	require.Equal(t, 0, c.Len())
}

func TestInvalidateByPredicatesDropsOnlyMatchingEntries(t *testing.T) {
	c := New(Options{})
	c.Put(Key{1}, sampleEntry(dict.ID(10)))
	c.Put(Key{2}, sampleEntry(dict.ID(20)))

	c.InvalidateByPredicates([]dict.ID{dict.ID(10)})
	_, ok := c.Get(Key{1})
	require.False(t, ok)
	_, ok = c.Get(Key{2})
	require.True(t, ok)
}

func TestInvalidateAllClearsEverything(t *testing.T) {
	c := New(Options{})
	c.Put(Key{1}, sampleEntry(dict.ID(1)))
	c.Put(Key{2}, sampleEntry(dict.ID(2)))
	c.InvalidateAll()
	require.Equal(t, 0, c.Len())
}

func TestInvalidateByKeyDropsOneEntry(t *testing.T) {
	c := New(Options{})
	c.Put(Key{1}, sampleEntry())
	c.Put(Key{2}, sampleEntry())
	c.InvalidateByKey(Key{1})
	_, ok := c.Get(Key{1})
	require.False(t, ok)
	_, ok = c.Get(Key{2})
	require.True(t, ok)
}

func TestNormalizeKeyIgnoresVariableNaming(t *testing.T) {
	q1 := algebra.BGP{Patterns: []algebra.TriplePattern{
		{S: algebra.Var("x"), P: algebra.Const(term.IRI("urn:knows")), O: algebra.Var("y")},
	}}
	q2 := algebra.BGP{Patterns: []algebra.TriplePattern{
		{S: algebra.Var("a"), P: algebra.Const(term.IRI("urn:knows")), O: algebra.Var("b")},
	}}
	require.Equal(t, NormalizeKey(q1), NormalizeKey(q2))
}

func TestNormalizeKeyDistinguishesDifferentConstants(t *testing.T) {
	q1 := algebra.BGP{Patterns: []algebra.TriplePattern{
		{S: algebra.Var("x"), P: algebra.Const(term.IRI("urn:knows")), O: algebra.Var("y")},
	}}
	q2 := algebra.BGP{Patterns: []algebra.TriplePattern{
		{S: algebra.Var("x"), P: algebra.Const(term.IRI("urn:likes")), O: algebra.Var("y")},
	}}
	require.NotEqual(t, NormalizeKey(q1), NormalizeKey(q2))
}

func TestSaveAndLoadFileRoundTrips(t *testing.T) {
	root := t.TempDir()
	c := New(Options{})
	c.Put(Key{7}, sampleEntry(dict.ID(42)))

	require.NoError(t, c.SaveToFile("cache.bin", root))

	c2 := New(Options{})
	require.NoError(t, c2.LoadFromFile("cache.bin", root))
	got, ok := c2.Get(Key{7})
	require.True(t, ok)
	require.Equal(t, 1, got.RowCount)
	require.Equal(t, []dict.ID{42}, got.Predicates)
}

func TestLoadFromFileRejectsPathEscape(t *testing.T) {
	root := t.TempDir()
	c := New(Options{})
	err := c.LoadFromFile(filepath.Join("..", "etc", "passwd"), root)
	require.Error(t, err)
}

func TestLoadFromFileRejectsBadVersion(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "bad.bin")
	require.NoError(t, os.WriteFile(path, []byte{0, 0, 0, 99, 0, 0, 0, 0}, 0o600))
	c := New(Options{})
	require.Error(t, c.LoadFromFile("bad.bin", root))
}

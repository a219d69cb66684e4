package stats

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nqrdf/tristore/internal/dict"
	"github.com/nqrdf/tristore/internal/index"
	"github.com/nqrdf/tristore/internal/kv"
	"github.com/nqrdf/tristore/term"
)

func setupStore(t *testing.T) (*index.Index, *dict.Dictionary) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stats.db")
	b, err := kv.Open(path, kv.Options{CreateIfMissing: true})
	require.NoError(t, err)
	d, err := dict.Open(b, dict.Options{ShardCount: 2, BlockSize: 4, Margin: 8})
	require.NoError(t, err)
	idx, err := index.Open(b)
	require.NoError(t, err)
	t.Cleanup(func() {
		d.Stop()
		_ = b.Close()
	})
	return idx, d
}

func insertAge(t *testing.T, idx *index.Index, d *dict.Dictionary, subj string, p dict.ID, age int64) {
	t.Helper()
	sIDs, err := d.EncodeMany([]term.Term{term.IRI(subj)})
	require.NoError(t, err)
	lit := term.TypedLiteral{Value: strconv.FormatInt(age, 10), Datatype: term.XSDLong}
	oID, present, err := d.GetIfPresent(lit)
	require.NoError(t, err)
	require.True(t, present)
	require.NoError(t, idx.InsertBatch([]index.Triple{{S: sIDs[0], P: p, O: oID}}, index.WriteOptions{Sync: true}))
}

func TestRefreshComputesCountsAndHistogram(t *testing.T) {
	idx, d := setupStore(t)
	pIDs, err := d.EncodeMany([]term.Term{term.IRI("age"), term.IRI("name")})
	require.NoError(t, err)
	age, name := pIDs[0], pIDs[1]

	for i, v := range []int64{10, 20, 30, 40} {
		insertAge(t, idx, d, "person"+strconv.Itoa(i), age, v)
	}
	nameIDs, err := d.EncodeMany([]term.Term{term.IRI("p0")})
	require.NoError(t, err)
	require.NoError(t, idx.InsertBatch([]index.Triple{{S: nameIDs[0], P: name, O: nameIDs[0]}}, index.WriteOptions{Sync: true}))

	srv, err := Open(indexBackend(idx), idx, Options{BucketCount: 4})
	require.NoError(t, err)
	require.NoError(t, srv.Refresh(context.Background()))

	snap := srv.Snapshot()
	assert.EqualValues(t, 5, snap.TripleCount)
	assert.EqualValues(t, 4, snap.PredicateHistogram[age])
	assert.EqualValues(t, 1, snap.PredicateHistogram[name])

	hist, ok := snap.NumericHistograms[age]
	require.True(t, ok)
	assert.Equal(t, 4, hist.BucketCount)
	assert.EqualValues(t, 4, hist.Total)
	assert.Equal(t, float64(10), hist.Min)
	assert.Equal(t, float64(40), hist.Max)
}

func TestPersistAcrossRestart(t *testing.T) {
	idx, d := setupStore(t)
	pIDs, err := d.EncodeMany([]term.Term{term.IRI("age")})
	require.NoError(t, err)
	insertAge(t, idx, d, "x", pIDs[0], 5)

	backend := indexBackend(idx)
	srv, err := Open(backend, idx, Options{})
	require.NoError(t, err)
	require.NoError(t, srv.Refresh(context.Background()))

	srv2, err := Open(backend, idx, Options{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, srv2.Snapshot().TripleCount)
}

func TestSelectivityDefaultsWhenAbsent(t *testing.T) {
	idx, _ := setupStore(t)
	srv, err := Open(indexBackend(idx), idx, Options{})
	require.NoError(t, err)
	assert.Equal(t, defaultSelectivity, srv.PredicateSelectivity(dict.ID(999)))
}

func TestNotifyModifiedTriggersBackgroundRebuild(t *testing.T) {
	idx, d := setupStore(t)
	pIDs, err := d.EncodeMany([]term.Term{term.IRI("age")})
	require.NoError(t, err)
	insertAge(t, idx, d, "x", pIDs[0], 5)

	srv, err := Open(indexBackend(idx), idx, Options{ModificationThreshold: 1})
	require.NoError(t, err)
	srv.NotifyModified(2)

	require.Eventually(t, func() bool {
		return srv.Snapshot().TripleCount == 1
	}, time.Second, 5*time.Millisecond)
}

// indexBackend exposes the backend an Index was opened over, for tests
// that need to share one Backend between index and stats.
func indexBackend(idx *index.Index) *kv.Backend { return idx.Backend() }

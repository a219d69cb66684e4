package leapfrog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nqrdf/tristore/internal/dict"
	"github.com/nqrdf/tristore/internal/index"
	"github.com/nqrdf/tristore/internal/kv"
	"github.com/nqrdf/tristore/term"
)

// openFixture builds a small social-graph dataset shared by every test
// in this package: alice knows bob and carol; bob knows carol; carol
// knows alice. Returns the index, the dictionary, and the resolved ids
// for "knows", alice, bob, carol.
func openFixture(t *testing.T) (x *index.Index, d *dict.Dictionary, knows, alice, bob, carol dict.ID) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lf.db")
	b, err := kv.Open(path, kv.Options{CreateIfMissing: true})
	require.NoError(t, err)
	d, err = dict.Open(b, dict.Options{ShardCount: 2, BlockSize: 4, Margin: 8})
	require.NoError(t, err)
	x, err = index.Open(b)
	require.NoError(t, err)
	t.Cleanup(func() {
		d.Stop()
		_ = b.Close()
	})

	ids, err := d.EncodeMany([]term.Term{
		term.IRI("alice"), term.IRI("knows"), term.IRI("bob"), term.IRI("carol"),
	})
	require.NoError(t, err)
	alice, knows, bob, carol = ids[0], ids[1], ids[2], ids[3]

	triples := []index.Triple{
		{S: alice, P: knows, O: bob},
		{S: alice, P: knows, O: carol},
		{S: bob, P: knows, O: carol},
		{S: carol, P: knows, O: alice},
	}
	require.NoError(t, x.InsertBatch(triples, index.WriteOptions{Sync: true}))
	return x, d, knows, alice, bob, carol
}

package dict

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nqrdf/tristore/internal/kv"
	"github.com/nqrdf/tristore/term"
)

func openTestDict(t *testing.T) (*Dictionary, *kv.Backend) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dict.db")
	b, err := kv.Open(path, kv.Options{CreateIfMissing: true})
	require.NoError(t, err)
	d, err := Open(b, Options{ShardCount: 4, BlockSize: 8, Margin: 16})
	require.NoError(t, err)
	t.Cleanup(func() {
		d.Stop()
		_ = b.Close()
	})
	return d, b
}

func TestEncodeDecodeBijective(t *testing.T) {
	d, _ := openTestDict(t)

	terms := []term.Term{
		term.IRI("http://example.org/alice"),
		term.IRI("http://example.org/bob"),
		term.Blank("b0"),
		term.LangLiteral{Value: "hello", Lang: "en"},
		term.TypedLiteral{Value: "hello world not-numeric", Datatype: term.XSDString},
	}
	ids, err := d.EncodeMany(terms)
	require.NoError(t, err)
	require.Len(t, ids, len(terms))

	for i, want := range terms {
		got, err := d.Decode(ids[i])
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestEncodeManyIsIdempotentAndOrderPreserving(t *testing.T) {
	d, _ := openTestDict(t)

	a := term.IRI("http://example.org/a")
	b := term.IRI("http://example.org/b")
	first, err := d.EncodeMany([]term.Term{a, b, a})
	require.NoError(t, err)
	assert.Equal(t, first[0], first[2], "same term must get the same id within one call")

	second, err := d.EncodeMany([]term.Term{b, a})
	require.NoError(t, err)
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[1])
}

func TestInlineNeverAllocates(t *testing.T) {
	d, _ := openTestDict(t)

	lit := term.TypedLiteral{Value: "42", Datatype: term.XSDLong}
	id, present, err := d.GetIfPresent(lit)
	require.NoError(t, err)
	assert.True(t, present, "inline-eligible literal must appear present without ever being allocated")
	assert.True(t, isInline(id))

	got, err := d.Decode(id)
	require.NoError(t, err)
	assert.Equal(t, "42", got.(term.TypedLiteral).Value)
}

func TestGetIfPresentNeverAllocates(t *testing.T) {
	d, _ := openTestDict(t)

	iri := term.IRI("http://example.org/never-seen")
	_, present, err := d.GetIfPresent(iri)
	require.NoError(t, err)
	assert.False(t, present)

	// still absent: GetIfPresent must not have allocated it
	_, present, err = d.GetIfPresent(iri)
	require.NoError(t, err)
	assert.False(t, present)
}

func TestCrashSafetyNoIDReuseAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dict.db")
	b, err := kv.Open(path, kv.Options{CreateIfMissing: true})
	require.NoError(t, err)
	d, err := Open(b, Options{ShardCount: 2, BlockSize: 4, Margin: 8})
	require.NoError(t, err)

	var terms []term.Term
	for i := 0; i < 20; i++ {
		terms = append(terms, term.IRI("http://example.org/"+string(rune('a'+i))))
	}
	ids, err := d.EncodeMany(terms)
	require.NoError(t, err)

	d.Stop()
	require.NoError(t, b.Close())

	// Reopen: simulates a restart. No new term may reuse an id already
	// handed out above, even though the persisted counter keeps a
	// margin above the actual high water mark rather than the exact
	// value.
	b2, err := kv.Open(path, kv.Options{})
	require.NoError(t, err)
	defer b2.Close()
	d2, err := Open(b2, Options{ShardCount: 2, BlockSize: 4, Margin: 8})
	require.NoError(t, err)
	defer d2.Stop()

	newTerm := term.IRI("http://example.org/brand-new-after-restart")
	newIDs, err := d2.EncodeMany([]term.Term{newTerm})
	require.NoError(t, err)

	for _, old := range ids {
		assert.NotEqual(t, old, newIDs[0])
	}

	// Old terms still decode to their original values.
	for i, want := range terms {
		got, err := d2.Decode(ids[i])
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

package leapfrog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nqrdf/tristore/internal/dict"
)

func drain(t *testing.T, e *Executor) []Bindings {
	t.Helper()
	var out []Bindings
	for {
		b, ok, err := e.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		out = append(out, b)
	}
	return out
}

func TestExecutorSinglePatternEnumeratesEveryTriple(t *testing.T) {
	x, _, knows, _, _, _ := openFixture(t)

	patterns := []BoundPattern{{S: V("s"), P: C(knows), O: V("o")}}
	veo := []Variable{"s", "o"}
	e := NewExecutor(veo, patterns, x, time.Now().Add(10*time.Second), 1000000)
	defer e.Close()

	results := drain(t, e)
	assert.Len(t, results, 4) // the fixture's four knows-triples
	for _, b := range results {
		assert.Contains(t, b, Variable("s"))
		assert.Contains(t, b, Variable("o"))
	}
}

func TestExecutorTwoHopPathJoinsOnSharedVariable(t *testing.T) {
	x, _, knows, alice, bob, carol := openFixture(t)

	// ?a knows ?b . ?b knows carol. Two 2-hop paths land on carol in the
	// fixture's cyclic graph: alice->bob->carol, and carol->alice->carol
	// (alice also knows carol directly).
	patterns := []BoundPattern{
		{S: V("a"), P: C(knows), O: V("b")},
		{S: V("b"), P: C(knows), O: C(carol)},
	}
	veo := ComputeVEO(patterns, fixedSelectivity{})
	e := NewExecutor(veo, patterns, x, time.Now().Add(10*time.Second), 1000000)
	defer e.Close()

	results := drain(t, e)
	require.Len(t, results, 2)
	pairs := map[dict.ID]dict.ID{}
	for _, r := range results {
		pairs[r["a"]] = r["b"]
	}
	assert.Equal(t, bob, pairs[alice])
	assert.Equal(t, alice, pairs[carol])
}

func TestExecutorNoMatchExhaustsImmediately(t *testing.T) {
	x, _, knows, _, _, _ := openFixture(t)

	patterns := []BoundPattern{{S: C(dict.ID(999999)), P: C(knows), O: V("o")}}
	e := NewExecutor([]Variable{"o"}, patterns, x, time.Now().Add(10*time.Second), 1000)
	defer e.Close()

	_, ok, err := e.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExecutorTimeoutReported(t *testing.T) {
	x, _, knows, _, _, _ := openFixture(t)
	patterns := []BoundPattern{{S: V("s"), P: C(knows), O: V("o")}}
	e := NewExecutor([]Variable{"s", "o"}, patterns, x, time.Now().Add(-time.Second), 1000)
	defer e.Close()

	_, ok, err := e.Next(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrTimeout)
}

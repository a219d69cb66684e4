package plan

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nqrdf/tristore/internal/dict"
	idx "github.com/nqrdf/tristore/internal/index"
	"github.com/nqrdf/tristore/internal/kv"
	"github.com/nqrdf/tristore/internal/stats"
	"github.com/nqrdf/tristore/term"
)

func openPlannerFixture(t *testing.T) (*idx.Index, *dict.Dictionary, *stats.Server) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.db")
	b, err := kv.Open(path, kv.Options{CreateIfMissing: true})
	require.NoError(t, err)
	d, err := dict.Open(b, dict.Options{ShardCount: 2, BlockSize: 4, Margin: 8})
	require.NoError(t, err)
	x, err := idx.Open(b)
	require.NoError(t, err)
	srv, err := stats.Open(b, x, stats.Options{})
	require.NoError(t, err)
	t.Cleanup(func() {
		d.Stop()
		_ = b.Close()
	})
	return x, d, srv
}

func TestPlanSinglePatternUsesLeapfrog(t *testing.T) {
	x, d, srv := openPlannerFixture(t)
	ids, err := d.EncodeMany([]term.Term{term.IRI("s"), term.IRI("knows"), term.IRI("o")})
	require.NoError(t, err)
	require.NoError(t, x.InsertBatch([]idx.Triple{{S: ids[0], P: ids[1], O: ids[2]}}, idx.WriteOptions{Sync: true}))
	require.NoError(t, srv.Refresh(context.Background()))

	p := NewPlanner(srv)
	bgp := []Pattern{{S: Var("s"), P: Const(ids[1]), O: Var("o")}}
	pl, err := p.Plan(bgp, nil)
	require.NoError(t, err)
	assert.Equal(t, StrategyLeapfrog, pl.Strategy)
	assert.Len(t, pl.Order, 1)
	assert.NotEmpty(t, ExplainPlan(pl))
	assert.NotEmpty(t, ExplainCost(pl))
}

func TestPlanPushesFilterToBindingPattern(t *testing.T) {
	_, _, srv := openPlannerFixture(t)
	p := NewPlanner(srv)
	bgp := []Pattern{
		{S: Var("x"), P: Const(1), O: Var("age")},
	}
	filters := []Filter{{Var: "age", Op: FilterRange, Lo: 10, Hi: 20}}
	pl, err := p.Plan(bgp, filters)
	require.NoError(t, err)
	require.Len(t, pl.Order, 1)
	assert.True(t, pl.Order[0].RangeRewrite)
	assert.Equal(t, 10.0, pl.Order[0].RangeLo)
}

func TestPlanConnectedOrderingPrefersSharedVariables(t *testing.T) {
	_, _, srv := openPlannerFixture(t)
	p := NewPlanner(srv)
	// Three patterns: a-b, b-c, and an unrelated d-e. The connected
	// component must be scheduled contiguously.
	bgp := []Pattern{
		{S: Var("a"), P: Const(1), O: Var("b")},
		{S: Var("b"), P: Const(2), O: Var("c")},
		{S: Var("d"), P: Const(3), O: Var("e")},
	}
	pl, err := p.Plan(bgp, nil)
	require.NoError(t, err)
	require.Len(t, pl.Order, 3)
}

func TestPlanRejectsTooManyVariables(t *testing.T) {
	_, _, srv := openPlannerFixture(t)
	p := NewPlanner(srv)
	var bgp []Pattern
	for i := 0; i < 101; i++ {
		bgp = append(bgp, Pattern{S: Var(Variable(fmt.Sprintf("s%d", i))), P: Const(1), O: Var(Variable(fmt.Sprintf("o%d", i)))})
	}
	_, err := p.Plan(bgp, nil)
	assert.Error(t, err)
}

func TestWeightsWithOverridesOneField(t *testing.T) {
	w := DefaultWeights().With(func(w *Weights) { w.CPU = 0.9 })
	assert.Equal(t, 0.9, w.CPU)
	assert.Equal(t, DefaultWeights().IO, w.IO)
}

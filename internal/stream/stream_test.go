package stream

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nqrdf/tristore/algebra"
	"github.com/nqrdf/tristore/internal/dict"
	"github.com/nqrdf/tristore/internal/kv"
	"github.com/nqrdf/tristore/term"
)

func openTestDict(t *testing.T) *dict.Dictionary {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dict.db")
	b, err := kv.Open(path, kv.Options{CreateIfMissing: true})
	require.NoError(t, err)
	d, err := dict.Open(b, dict.Options{ShardCount: 4, BlockSize: 8, Margin: 16})
	require.NoError(t, err)
	t.Cleanup(func() {
		d.Stop()
		_ = b.Close()
	})
	return d
}

func seq(bs ...Bindings) func(func(Bindings) bool) {
	return func(yield func(Bindings) bool) {
		for _, b := range bs {
			if !yield(b) {
				return
			}
		}
	}
}

func collect(in func(func(Bindings) bool)) []Bindings {
	var out []Bindings
	for b := range in {
		out = append(out, b)
	}
	return out
}

func TestFilterSeqExcludesFalseRows(t *testing.T) {
	d := openTestDict(t)
	trueID, err := d.EncodeMany([]term.Term{term.NewFromGo(true)})
	require.NoError(t, err)

	in := seq(
		Bindings{"x": trueID[0]},
		Bindings{}, // x unbound -> Bound() evaluates false
	)
	out := collect(FilterSeq(in, algebra.Bound{Var: "x"}, d, nil))
	require.Len(t, out, 1)
	require.Equal(t, trueID[0], out[0]["x"])
}

func TestProjectSeqDropsUnlistedVariables(t *testing.T) {
	d := openTestDict(t)
	aID, err := d.EncodeMany([]term.Term{term.IRI("urn:a")})
	require.NoError(t, err)
	bID, err := d.EncodeMany([]term.Term{term.IRI("urn:b")})
	require.NoError(t, err)

	in := seq(Bindings{"a": aID[0], "b": bID[0]})
	out := collect(ProjectSeq(in, []algebra.Variable{"a"}))
	require.Len(t, out, 1)
	require.Equal(t, aID[0], out[0]["a"])
	_, hasB := out[0]["b"]
	require.False(t, hasB)
}

func TestDistinctSeqDedups(t *testing.T) {
	d := openTestDict(t)
	aID, err := d.EncodeMany([]term.Term{term.IRI("urn:a")})
	require.NoError(t, err)

	in := seq(Bindings{"a": aID[0]}, Bindings{"a": aID[0]})
	out := collect(DistinctSeq(in))
	require.Len(t, out, 1)
}

func TestSliceSeqAppliesOffsetAndLimit(t *testing.T) {
	d := openTestDict(t)
	var rows []Bindings
	for i := 0; i < 5; i++ {
		ids, err := d.EncodeMany([]term.Term{term.NewFromGo(int64(i))})
		require.NoError(t, err)
		rows = append(rows, Bindings{"n": ids[0]})
	}
	out := collect(SliceSeq(seq(rows...), 1, 2))
	require.Len(t, out, 2)
	require.Equal(t, rows[1], out[0])
	require.Equal(t, rows[2], out[1])
}

func TestSliceSeqUnboundedLimit(t *testing.T) {
	d := openTestDict(t)
	ids, err := d.EncodeMany([]term.Term{term.NewFromGo(int64(1))})
	require.NoError(t, err)
	out := collect(SliceSeq(seq(Bindings{"n": ids[0]}, Bindings{"n": ids[0]}), 0, -1))
	require.Len(t, out, 2)
}

func TestUnionSeqConcatenatesBothSides(t *testing.T) {
	d := openTestDict(t)
	aID, err := d.EncodeMany([]term.Term{term.IRI("urn:a")})
	require.NoError(t, err)
	bID, err := d.EncodeMany([]term.Term{term.IRI("urn:b")})
	require.NoError(t, err)

	out := collect(UnionSeq(seq(Bindings{"x": aID[0]}), seq(Bindings{"x": bID[0]})))
	require.Len(t, out, 2)
}

func TestMinusSeqExcludesOverlappingCompatibleRows(t *testing.T) {
	d := openTestDict(t)
	aID, err := d.EncodeMany([]term.Term{term.IRI("urn:a")})
	require.NoError(t, err)
	bID, err := d.EncodeMany([]term.Term{term.IRI("urn:b")})
	require.NoError(t, err)

	left := seq(Bindings{"x": aID[0]}, Bindings{"x": bID[0]})
	right := seq(Bindings{"x": aID[0]})
	out := collect(MinusSeq(left, right))
	require.Len(t, out, 1)
	require.Equal(t, bID[0], out[0]["x"])
}

func TestMinusSeqIsNoOpWhenNoSharedVariables(t *testing.T) {
	d := openTestDict(t)
	aID, err := d.EncodeMany([]term.Term{term.IRI("urn:a")})
	require.NoError(t, err)
	cID, err := d.EncodeMany([]term.Term{term.IRI("urn:c")})
	require.NoError(t, err)

	left := seq(Bindings{"x": aID[0]})
	right := seq(Bindings{"y": cID[0]})
	out := collect(MinusSeq(left, right))
	require.Len(t, out, 1)
}

func TestLeftJoinSeqKeepsUnmatchedLeftRows(t *testing.T) {
	d := openTestDict(t)
	aID, err := d.EncodeMany([]term.Term{term.IRI("urn:a")})
	require.NoError(t, err)
	bID, err := d.EncodeMany([]term.Term{term.IRI("urn:b")})
	require.NoError(t, err)

	left := seq(Bindings{"x": aID[0]})
	right := seq(Bindings{"x": bID[0], "y": bID[0]}) // incompatible x, so left row has no match
	out := collect(LeftJoinSeq(left, right, nil, d, nil))
	require.Len(t, out, 1)
	require.Equal(t, aID[0], out[0]["x"])
	_, hasY := out[0]["y"]
	require.False(t, hasY)
}

func TestOrderBySeqSortsAscendingByDefault(t *testing.T) {
	d := openTestDict(t)
	three, err := d.EncodeMany([]term.Term{term.NewFromGo(int64(3))})
	require.NoError(t, err)
	one, err := d.EncodeMany([]term.Term{term.NewFromGo(int64(1))})
	require.NoError(t, err)

	in := seq(Bindings{"n": three[0]}, Bindings{"n": one[0]})
	out := collect(OrderBySeq(in, []algebra.OrderKey{{Expr: algebra.VarRef{Var: "n"}}}, d, nil))
	require.Len(t, out, 2)
	require.Equal(t, one[0], out[0]["n"])
	require.Equal(t, three[0], out[1]["n"])
}

func TestGroupAggSeqCountsPerGroup(t *testing.T) {
	d := openTestDict(t)
	g1, err := d.EncodeMany([]term.Term{term.IRI("urn:g1")})
	require.NoError(t, err)
	g2, err := d.EncodeMany([]term.Term{term.IRI("urn:g2")})
	require.NoError(t, err)

	in := seq(
		Bindings{"g": g1[0]},
		Bindings{"g": g1[0]},
		Bindings{"g": g2[0]},
	)
	out, err := GroupAggSeq(in, []algebra.Variable{"g"}, []algebra.Aggregation{
		{Func: algebra.AggCount, As: "c"},
	}, d)
	require.NoError(t, err)
	rows := collect(out)
	require.Len(t, rows, 2)

	counts := map[dict.ID]int64{}
	for _, r := range rows {
		v, err := d.Decode(r["c"])
		require.NoError(t, err)
		f, ok := term.AsFloat64(v)
		require.True(t, ok)
		counts[r["g"]] = int64(f)
	}
	require.Equal(t, int64(2), counts[g1[0]])
	require.Equal(t, int64(1), counts[g2[0]])
}

func TestEvalNonDeterministicNowIsStableWithinQuery(t *testing.T) {
	ctx := NewEvalCtx(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 7)
	v1, err := EvalNonDeterministic(algebra.Now{}, Bindings{}, nil, ctx)
	require.NoError(t, err)
	v2, err := EvalNonDeterministic(algebra.Now{}, Bindings{}, nil, ctx)
	require.NoError(t, err)
	require.Equal(t, v1.Str, v2.Str)
}

func TestEvalNonDeterministicUUIDProducesDistinctValues(t *testing.T) {
	ctx := NewEvalCtx(time.Now().UTC(), 1)
	v1, err := EvalNonDeterministic(algebra.UUID{AsString: true}, Bindings{}, nil, ctx)
	require.NoError(t, err)
	v2, err := EvalNonDeterministic(algebra.UUID{AsString: true}, Bindings{}, nil, ctx)
	require.NoError(t, err)
	require.NotEqual(t, v1.Str, v2.Str)
}

func TestEvalPlainRejectsNonDeterministicFuncs(t *testing.T) {
	_, err := Eval(algebra.Now{}, Bindings{}, nil)
	require.Error(t, err)
}

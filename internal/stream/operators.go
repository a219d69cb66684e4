package stream

import (
	"iter"
	"sort"

	"github.com/nqrdf/tristore/algebra"
	"github.com/nqrdf/tristore/internal/dict"
)

// JoinSeq yields every compatible pairing of a left binding with a
// right binding, materializing right since the executor side (the
// leapfrog core) already does the join that scales; this one backs
// algebra.Join nodes whose children are themselves stream transforms
// rather than two more BGPs (leapfrog handles BGP-BGP joins directly).
func JoinSeq(left, right iter.Seq[Bindings]) iter.Seq[Bindings] {
	return func(yield func(Bindings) bool) {
		rights := materialize(right)
		for l := range left {
			for _, r := range rights {
				if !l.compatible(r) {
					continue
				}
				if !yield(merge(l, r)) {
					return
				}
			}
		}
	}
}

// LeftJoinSeq implements SPARQL OPTIONAL: every left binding is kept
// even if no compatible right binding (passing filter, if any) exists.
func LeftJoinSeq(left, right iter.Seq[Bindings], filter algebra.Expr, d *dict.Dictionary, ctx *EvalCtx) iter.Seq[Bindings] {
	return func(yield func(Bindings) bool) {
		rights := materialize(right)
		for l := range left {
			matched := false
			for _, r := range rights {
				if !l.compatible(r) {
					continue
				}
				m := merge(l, r)
				if filter != nil {
					v, err := EvalNonDeterministic(filter, m, d, ctx)
					if err != nil || !effectiveBool(v) {
						continue
					}
				}
				matched = true
				if !yield(m) {
					return
				}
			}
			if !matched {
				if !yield(l) {
					return
				}
			}
		}
	}
}

// UnionSeq yields every binding from left, then every binding from right.
func UnionSeq(left, right iter.Seq[Bindings]) iter.Seq[Bindings] {
	return func(yield func(Bindings) bool) {
		for l := range left {
			if !yield(l) {
				return
			}
		}
		for r := range right {
			if !yield(r) {
				return
			}
		}
	}
}

// MinusSeq yields left bindings that share no compatible, variable-
// overlapping right binding — SPARQL MINUS, which (unlike NOT EXISTS)
// is a no-op when left and right share no variables.
func MinusSeq(left, right iter.Seq[Bindings]) iter.Seq[Bindings] {
	return func(yield func(Bindings) bool) {
		rights := materialize(right)
		for l := range left {
			excluded := false
			for _, r := range rights {
				if sharesVariable(l, r) && l.compatible(r) {
					excluded = true
					break
				}
			}
			if !excluded {
				if !yield(l) {
					return
				}
			}
		}
	}
}

func sharesVariable(a, b Bindings) bool {
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}

// FilterSeq yields only bindings for which expr's effective boolean
// value is true; SPARQL treats an evaluation error (ErrUnboundOperand
// or similar) as false rather than propagating it.
func FilterSeq(in iter.Seq[Bindings], expr algebra.Expr, d *dict.Dictionary, ctx *EvalCtx) iter.Seq[Bindings] {
	return func(yield func(Bindings) bool) {
		for b := range in {
			v, err := EvalNonDeterministic(expr, b, d, ctx)
			if err != nil || !effectiveBool(v) {
				continue
			}
			if !yield(b) {
				return
			}
		}
	}
}

// ExtendSeq binds v to expr's evaluated value (BIND) when that value
// has a dictionary id: a variable's value, or a constant already in
// the dictionary. A computed value (arithmetic, comparison, NOW, RAND,
// UUID) or a constant absent from the dictionary leaves v unbound. A
// binding whose expr evaluation fails or is unbound is passed through
// unchanged rather than dropped, per SPARQL's BIND error semantics (an
// error leaves the variable unbound, it does not exclude the row).
func ExtendSeq(in iter.Seq[Bindings], v algebra.Variable, expr algebra.Expr, d *dict.Dictionary, ctx *EvalCtx) iter.Seq[Bindings] {
	return func(yield func(Bindings) bool) {
		for b := range in {
			val, err := EvalNonDeterministic(expr, b, d, ctx)
			if err == nil && val.Bound && val.HasID {
				nb := b.Clone()
				nb[v] = val.ID
				b = nb
			}
			if !yield(b) {
				return
			}
		}
	}
}

// ProjectSeq restricts each binding to vars.
func ProjectSeq(in iter.Seq[Bindings], vars []algebra.Variable) iter.Seq[Bindings] {
	return func(yield func(Bindings) bool) {
		for b := range in {
			out := make(Bindings, len(vars))
			for _, v := range vars {
				if id, ok := b[v]; ok {
					out[v] = id
				}
			}
			if !yield(out) {
				return
			}
		}
	}
}

// DistinctSeq suppresses duplicate bindings, tracked by a string key
// over sorted (var, id) pairs. Bindings are small (a handful of
// variables), so this is cheap relative to the query's join work.
func DistinctSeq(in iter.Seq[Bindings]) iter.Seq[Bindings] {
	return func(yield func(Bindings) bool) {
		seen := make(map[string]struct{})
		for b := range in {
			k := bindingsKey(b)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			if !yield(b) {
				return
			}
		}
	}
}

func bindingsKey(b Bindings) string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	buf := make([]byte, 0, len(keys)*16)
	for _, k := range keys {
		buf = append(buf, k...)
		buf = append(buf, 0)
		buf = append(buf, b[algebra.Variable(k)].Bytes()...)
		buf = append(buf, 0)
	}
	return string(buf)
}

// OrderBySeq materializes in and sorts it by keys, ascending unless a
// key says Descending. ORDER BY cannot stream, since the last row can
// outrank the first.
func OrderBySeq(in iter.Seq[Bindings], keys []algebra.OrderKey, d *dict.Dictionary, ctx *EvalCtx) iter.Seq[Bindings] {
	rows := materialize(in)
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range keys {
			vi, _ := EvalNonDeterministic(k.Expr, rows[i], d, ctx)
			vj, _ := EvalNonDeterministic(k.Expr, rows[j], d, ctx)
			c := compareOrderValues(vi, vj)
			if c == 0 {
				continue
			}
			if k.Direction == algebra.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return func(yield func(Bindings) bool) {
		for _, r := range rows {
			if !yield(r) {
				return
			}
		}
	}
}

func compareOrderValues(a, b Value) int {
	switch {
	case !a.Bound && !b.Bound:
		return 0
	case !a.Bound:
		return -1
	case !b.Bound:
		return 1
	case a.IsNumber && b.IsNumber:
		return compareFloat(a.Num, b.Num)
	default:
		return compareStr(a.Str, b.Str)
	}
}

// SliceSeq implements OFFSET/LIMIT. limit < 0 means unbounded.
func SliceSeq(in iter.Seq[Bindings], offset, limit int) iter.Seq[Bindings] {
	return func(yield func(Bindings) bool) {
		i := 0
		emitted := 0
		for b := range in {
			if i < offset {
				i++
				continue
			}
			i++
			if limit >= 0 && emitted >= limit {
				return
			}
			emitted++
			if !yield(b) {
				return
			}
		}
	}
}

func materialize(in iter.Seq[Bindings]) []Bindings {
	var out []Bindings
	for b := range in {
		out = append(out, b)
	}
	return out
}

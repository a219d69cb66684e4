package stream

import (
	"fmt"
	"iter"
	"sort"

	"github.com/nqrdf/tristore/algebra"
	"github.com/nqrdf/tristore/internal/dict"
	"github.com/nqrdf/tristore/term"
)

// GroupAggSeq partitions in by the values of by, computes every
// aggregation over each group, and yields one binding per group
// (empty by means the whole input is a single group, e.g. a bare
// COUNT(*) query).
func GroupAggSeq(in iter.Seq[Bindings], by []algebra.Variable, aggs []algebra.Aggregation, d *dict.Dictionary) (iter.Seq[Bindings], error) {
	groups := make(map[string][]Bindings)
	var order []string
	keyOf := func(b Bindings) string {
		buf := make([]byte, 0, len(by)*16)
		for _, v := range by {
			buf = append(buf, []byte(v)...)
			buf = append(buf, 0)
			if id, ok := b[v]; ok {
				buf = append(buf, id.Bytes()...)
			}
			buf = append(buf, 0)
		}
		return string(buf)
	}
	for b := range in {
		k := keyOf(b)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], b)
	}

	out := make([]Bindings, 0, len(order))
	for _, k := range order {
		rows := groups[k]
		row := make(Bindings, len(by)+len(aggs))
		for _, v := range by {
			if id, ok := rows[0][v]; ok {
				row[v] = id
			}
		}
		for _, a := range aggs {
			id, err := computeAgg(a, rows, d)
			if err != nil {
				return nil, err
			}
			row[a.As] = id
		}
		out = append(out, row)
	}

	return func(yield func(Bindings) bool) {
		for _, b := range out {
			if !yield(b) {
				return
			}
		}
	}, nil
}

func computeAgg(a algebra.Aggregation, rows []Bindings, d *dict.Dictionary) (dict.ID, error) {
	var nums []float64
	var strs []string
	seen := make(map[string]bool)

	for _, b := range rows {
		if a.Expr == nil {
			continue // COUNT(*): nothing to evaluate per row
		}
		v, err := Eval(a.Expr, b, d)
		if err != nil || !v.Bound {
			continue
		}
		dk := v.Str
		if a.Distinct {
			if seen[dk] {
				continue
			}
			seen[dk] = true
		}
		if v.IsNumber {
			nums = append(nums, v.Num)
		}
		strs = append(strs, v.Str)
	}

	switch a.Func {
	case algebra.AggCount:
		n := len(rows)
		if a.Expr != nil {
			n = len(strs)
		}
		return encodeLit(d, term.NewFromGo(int64(n)))
	case algebra.AggSum:
		var sum float64
		for _, n := range nums {
			sum += n
		}
		return encodeLit(d, term.NewFromGo(sum))
	case algebra.AggAvg:
		if len(nums) == 0 {
			return encodeLit(d, term.NewFromGo(float64(0)))
		}
		var sum float64
		for _, n := range nums {
			sum += n
		}
		return encodeLit(d, term.NewFromGo(sum/float64(len(nums))))
	case algebra.AggMin:
		if len(nums) == 0 {
			return encodeLit(d, term.TypedLiteral{})
		}
		sort.Float64s(nums)
		return encodeLit(d, term.NewFromGo(nums[0]))
	case algebra.AggMax:
		if len(nums) == 0 {
			return encodeLit(d, term.TypedLiteral{})
		}
		sort.Float64s(nums)
		return encodeLit(d, term.NewFromGo(nums[len(nums)-1]))
	case algebra.AggSample:
		if len(rows) == 0 {
			return 0, fmt.Errorf("stream: SAMPLE over empty group")
		}
		v, err := Eval(a.Expr, rows[0], d)
		if err != nil {
			return 0, err
		}
		return encodeLit(d, term.NewFromGo(v.Str))
	case algebra.AggGroupConcat:
		concat := ""
		for i, s := range strs {
			if i > 0 {
				concat += " "
			}
			concat += s
		}
		return encodeLit(d, term.NewFromGo(concat))
	default:
		return 0, fmt.Errorf("stream: unknown aggregate function %d", a.Func)
	}
}

func encodeLit(d *dict.Dictionary, t term.Term) (dict.ID, error) {
	ids, err := d.EncodeMany([]term.Term{t})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

package plan

import (
	"math"

	"github.com/nqrdf/tristore/internal/index"
	"github.com/nqrdf/tristore/internal/stats"
)

// estimate is the cost/cardinality verdict for scanning one pattern
// given which of its variables are already bound by earlier patterns
// in the order under consideration.
type estimate struct {
	rows  float64 // io_cost: estimated matching-row count
	index index.IndexKind
}

// estimateRows applies spec.md §4.E's three io-reduction terms in
// sequence: predicate selectivity (if P is a constant or already
// bound), then a per-bound-position divide-by-distinct-count
// approximation for S and O, then any pushed-down filter's
// selectivity.
func estimateRows(pat Pattern, bound map[Variable]bool, st stats.Stats, srv *stats.Server, filters []Filter) estimate {
	rows := float64(st.TripleCount)
	if rows == 0 {
		rows = 1
	}

	sBound := !pat.S.IsVar || bound[pat.S.Var]
	pBound := !pat.P.IsVar || bound[pat.P.Var]
	oBound := !pat.O.IsVar || bound[pat.O.Var]

	if pBound && !pat.P.IsVar {
		rows *= srv.PredicateSelectivity(pat.P.Const)
	} else if pBound {
		rows *= 0.5 // a variable bound by an earlier pattern but not known to be a specific predicate
	}

	if sBound {
		d := float64(st.DistinctSubjects)
		if d < 1 {
			d = 1
		}
		rows /= d
	}
	if oBound {
		d := float64(st.DistinctObjects)
		if d < 1 {
			d = 1
		}
		rows /= d
	}

	for _, f := range filters {
		if !newlyBinds(pat, bound, f.Var) {
			continue
		}
		if f.Op == FilterRange && !pat.P.IsVar {
			rows *= srv.RangeSelectivity(pat.P.Const, f.Lo, f.Hi)
		}
	}

	if rows < 1 {
		rows = 1
	}
	return estimate{rows: rows, index: chooseIndex(pat, sBound, pBound, oBound)}
}

// newlyBinds reports whether pat is the pattern that introduces v: v
// occurs in one of pat's variable slots and was not already bound by
// an earlier pattern in the order. This is spec.md §4.E's filter
// push-down rule ("attached to the earliest pattern that binds their
// free variables").
func newlyBinds(pat Pattern, bound map[Variable]bool, v Variable) bool {
	for _, pv := range pat.vars() {
		if pv == v && !bound[v] {
			return true
		}
	}
	return false
}

// chooseIndex mirrors spec.md §4.F's index/prefix choice table,
// reporting which physical index a pattern would scan given the
// current binding state — used for ExplainPlan output, not execution
// (internal/leapfrog recomputes this itself per VEO step).
func chooseIndex(pat Pattern, sBound, pBound, oBound bool) index.IndexKind {
	switch {
	case sBound && pBound:
		return index.SPO
	case pBound && oBound:
		return index.POS
	case oBound && sBound:
		return index.OSP
	case sBound:
		return index.SPO
	case pBound:
		return index.POS
	case oBound:
		return index.OSP
	default:
		return index.SPO
	}
}

// leapfrogCost approximates k-way iterator seek cost: the driving
// (most selective) pattern's cardinality times the number of
// iterators times a log2 seek-cost factor.
func leapfrogCost(driverRows float64, numIterators int) float64 {
	k := float64(numIterators)
	if k < 1 {
		k = 1
	}
	return driverRows * k * math.Log2(k+1)
}

// hashJoinCost approximates building and probing a hash table per
// pattern: sum of input sizes plus an output-size term.
func hashJoinCost(rowsPerPattern []float64) float64 {
	var sum, out float64
	out = 1
	for _, r := range rowsPerPattern {
		sum += r
		out *= r
	}
	return sum + out
}

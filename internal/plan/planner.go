package plan

import (
	"fmt"

	"github.com/nqrdf/tristore/internal/index"
	"github.com/nqrdf/tristore/internal/stats"
)

// dpEnumerationLimit is the pattern count above which the planner
// falls back to the greedy heuristic (spec.md §4.E: "up to a small
// pattern count (≈6)").
const dpEnumerationLimit = 6

// PlannedPattern is one pattern in the chosen execution order, with
// its estimated cardinality, chosen physical index, and any filters
// pushed down to it.
type PlannedPattern struct {
	Pattern      Pattern
	Index        index.IndexKind
	EstRows      float64
	Filters      []Filter
	RangeRewrite bool
	RangeLo      float64
	RangeHi      float64
}

// Plan is the planner's verdict for one basic graph pattern.
type Plan struct {
	Order          []PlannedPattern
	Strategy       Strategy
	EstCardinality float64
	EstCost        float64
	weights        Weights
}

// Planner plans basic graph patterns against a live statistics server.
type Planner struct {
	stats   *stats.Server
	weights Weights
}

// NewPlanner constructs a Planner over st using DefaultWeights.
func NewPlanner(st *stats.Server) *Planner {
	return &Planner{stats: st, weights: DefaultWeights()}
}

// WithWeights overrides the planner's cost weights.
func (p *Planner) WithWeights(w Weights) *Planner {
	p.weights = w
	return p
}

// Plan chooses an execution order for bgp, pushes filters down to the
// earliest pattern that binds their variable, and picks between
// leapfrog and hash join.
func (p *Planner) Plan(bgp []Pattern, filters []Filter) (*Plan, error) {
	if err := checkVariableCount(bgp); err != nil {
		return nil, err
	}
	if len(bgp) == 0 {
		return &Plan{Strategy: StrategyLeapfrog, weights: p.weights}, nil
	}

	st := p.stats.Snapshot()
	state := dpState{patterns: bgp, filters: filters, st: st, srv: p.stats, weights: p.weights}

	var order []int
	var cost, card float64
	if len(bgp) <= dpEnumerationLimit {
		order, cost, card = dpEnumerate(state)
	} else {
		order, cost, card = greedyEnumerate(state)
	}

	planned := make([]PlannedPattern, len(order))
	bound := map[Variable]bool{}
	for pos, i := range order {
		pat := bgp[i]
		est := estimateRows(pat, bound, st, p.stats, filters)
		pp := PlannedPattern{Pattern: pat, Index: est.index, EstRows: est.rows}

		for _, f := range filters {
			if !newlyBinds(pat, bound, f.Var) {
				continue
			}
			pp.Filters = append(pp.Filters, f)
			if f.Op == FilterRange && !pat.P.IsVar {
				pp.RangeRewrite = true
				pp.RangeLo, pp.RangeHi = f.Lo, f.Hi
			}
		}

		planned[pos] = pp
		for _, v := range pat.vars() {
			bound[v] = true
		}
	}

	strategy := chooseStrategy(bgp, planned, p.weights)

	return &Plan{
		Order:          planned,
		Strategy:       strategy,
		EstCardinality: card,
		EstCost:        p.weights.IO*cost + p.weights.CPU*card,
		weights:        p.weights,
	}, nil
}

func checkVariableCount(bgp []Pattern) error {
	seen := map[Variable]bool{}
	for _, pat := range bgp {
		for _, v := range pat.vars() {
			seen[v] = true
		}
	}
	if len(seen) > maxVariables {
		return fmt.Errorf("plan: %d variables exceeds the %d-variable cap", len(seen), maxVariables)
	}
	return nil
}

// chooseStrategy implements spec.md §4.E's leapfrog-vs-hash decision:
// only compared when some variable is shared by at least
// leapfrogMinPatterns patterns; otherwise leapfrog's single- or
// few-iterator degenerate case is used directly, since there is
// nothing for a hash join to meaningfully beat it on.
func chooseStrategy(bgp []Pattern, planned []PlannedPattern, w Weights) Strategy {
	counts := map[Variable]int{}
	for _, pat := range bgp {
		for _, v := range pat.vars() {
			counts[v]++
		}
	}
	maxShared := 0
	for _, c := range counts {
		if c > maxShared {
			maxShared = c
		}
	}
	if maxShared < leapfrogMinPatterns {
		return StrategyLeapfrog
	}

	driverRows := planned[0].EstRows
	for _, pp := range planned {
		if pp.EstRows < driverRows {
			driverRows = pp.EstRows
		}
	}
	lfCost := leapfrogCost(driverRows, len(planned))

	rows := make([]float64, len(planned))
	for i, pp := range planned {
		rows[i] = pp.EstRows
	}
	hCost := hashJoinCost(rows)

	if lfCost <= hCost {
		return StrategyLeapfrog
	}
	return StrategyHash
}

package plan

import (
	"fmt"
	"strings"
)

// ExplainCost renders the plan's blended cost and cardinality.
func ExplainCost(pl *Plan) string {
	return fmt.Sprintf("cost=%.2f cardinality=%.2f weights={io:%.2f cpu:%.2f filter:%.2f}",
		pl.EstCost, pl.EstCardinality, pl.weights.IO, pl.weights.CPU, pl.weights.Filter)
}

// ExplainPlan renders the chosen strategy and per-pattern operator
// tree with estimated cardinalities, in execution order.
func ExplainPlan(pl *Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "strategy=%s\n", pl.Strategy)
	for i, pp := range pl.Order {
		fmt.Fprintf(&b, "  [%d] index=%v est_rows=%.2f", i, pp.Index, pp.EstRows)
		if pp.RangeRewrite {
			fmt.Fprintf(&b, " range_scan=[%.4g,%.4g]", pp.RangeLo, pp.RangeHi)
		}
		for _, f := range pp.Filters {
			fmt.Fprintf(&b, " filter(%s)", f.Var)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

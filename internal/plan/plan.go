// Package plan implements the cost-based query planner (spec.md §4.E):
// a dimensionless cost model blending IO, CPU and filter-reduction
// terms, a bitmask-DP enumerator for small basic graph patterns with a
// greedy fallback above that, filter push-down, and the
// leapfrog-vs-hash join strategy decision.
package plan

import "github.com/nqrdf/tristore/internal/dict"

// Variable names a BGP pattern slot not bound to a constant.
type Variable string

// PatternTerm is one slot of a triple pattern: either a bound constant
// or a free variable.
type PatternTerm struct {
	Var      Variable
	Const    dict.ID
	IsVar    bool
}

// Var constructs a variable pattern term.
func Var(v Variable) PatternTerm { return PatternTerm{Var: v, IsVar: true} }

// Const constructs a bound pattern term.
func Const(id dict.ID) PatternTerm { return PatternTerm{Const: id} }

// Pattern is one triple pattern of a basic graph pattern.
type Pattern struct {
	S, P, O PatternTerm
}

// vars returns every distinct variable a pattern mentions.
func (p Pattern) vars() []Variable {
	var out []Variable
	for _, t := range []PatternTerm{p.S, p.P, p.O} {
		if t.IsVar {
			out = append(out, t.Var)
		}
	}
	return out
}

// FilterOp is the comparison a Filter applies.
type FilterOp int

const (
	FilterEq FilterOp = iota
	FilterRange
)

// Filter is a WHERE-clause predicate over one variable, pushed down to
// the earliest pattern in the chosen order that binds it.
type Filter struct {
	Var     Variable
	Op      FilterOp
	Eq      dict.ID
	Lo, Hi  float64
}

// Strategy is the chosen multi-pattern join execution strategy.
type Strategy int

const (
	StrategyLeapfrog Strategy = iota
	StrategyHash
)

func (s Strategy) String() string {
	if s == StrategyLeapfrog {
		return "leapfrog"
	}
	return "hash"
}

// leapfrogMinPatterns is the number of patterns that must share one
// join variable before chooseStrategy compares leapfrog against hash
// join; below it, leapfrog is used directly (spec.md §4.E).
const leapfrogMinPatterns = 3

// maxVariables is the hard cap on distinct variables per query
// (spec.md §4.F: "reject on exceed").
const maxVariables = 100

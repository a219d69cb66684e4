// Package algebra defines the query algebra tree (spec.md §6): a basic
// graph pattern feeds the cost-based planner and leapfrog core
// (internal/plan, internal/leapfrog); every other operator is a thin
// node wrapping a child (or two, for the binary operators) that
// internal/stream turns into a lazy transform over a binding stream.
package algebra

import "github.com/nqrdf/tristore/term"

// Variable names a query variable. Distinct from plan.Variable and
// leapfrog.Variable (the same concept at different compilation
// stages) since algebra nodes are built before any dictionary
// encoding has happened.
type Variable string

// PatternTerm is one slot of a TriplePattern: either a free variable
// or an RDF term constant, resolved against the dictionary only once
// the owning BGP is compiled for execution.
type PatternTerm struct {
	IsVar bool
	Var   Variable
	Const term.Term
}

// Var constructs a variable pattern term.
func Var(v Variable) PatternTerm { return PatternTerm{IsVar: true, Var: v} }

// Const constructs a constant pattern term.
func Const(t term.Term) PatternTerm { return PatternTerm{Const: t} }

// TriplePattern is one (s, p, o) pattern within a BGP.
type TriplePattern struct {
	S, P, O PatternTerm
}

// Node is any algebra tree node. Membership is closed by an
// unexported method, following term.Term's sum-type pattern.
type Node interface {
	isNode()
}

// BGP is a basic graph pattern: a conjunction of triple patterns
// executed as one leapfrog-triejoin plan (spec.md §4.E/§4.F).
type BGP struct {
	Patterns []TriplePattern
}

func (BGP) isNode() {}

// Join is an inner join of two sub-plans on their shared variables.
type Join struct {
	Left, Right Node
}

func (Join) isNode() {}

// LeftJoin is SPARQL OPTIONAL: every Left binding is preserved even
// when no Right binding satisfies it (and, if present, Filter).
type LeftJoin struct {
	Left, Right Node
	Filter      Expr // nil when the OPTIONAL has no attached filter
}

func (LeftJoin) isNode() {}

// Union is SPARQL UNION: the concatenation of both sub-plans' bindings.
type Union struct {
	Left, Right Node
}

func (Union) isNode() {}

// Minus is SPARQL MINUS: Left bindings that share no compatible
// binding with any Right solution.
type Minus struct {
	Left, Right Node
}

func (Minus) isNode() {}

// Filter discards Child bindings for which Expr does not evaluate
// truthy (SPARQL's effective boolean value).
type Filter struct {
	Child Node
	Expr  Expr
}

func (Filter) isNode() {}

// Extend adds a new binding for Var computed from Expr over each
// existing binding (SPARQL BIND).
type Extend struct {
	Child Node
	Var   Variable
	Expr  Expr
}

func (Extend) isNode() {}

// Project keeps only the named variables of each binding.
type Project struct {
	Child Node
	Vars  []Variable
}

func (Project) isNode() {}

// Distinct removes duplicate bindings, comparing every still-projected
// variable.
type Distinct struct {
	Child Node
}

func (Distinct) isNode() {}

// SortDirection is the direction of one OrderBy key.
type SortDirection int

const (
	Ascending SortDirection = iota
	Descending
)

// OrderKey is one ORDER BY comparison key.
type OrderKey struct {
	Expr      Expr
	Direction SortDirection
}

// OrderBy sorts Child's bindings by Keys, in priority order.
type OrderBy struct {
	Child Node
	Keys  []OrderKey
}

func (OrderBy) isNode() {}

// Slice applies OFFSET/LIMIT. Limit < 0 means unbounded.
type Slice struct {
	Child         Node
	Offset, Limit int
}

func (Slice) isNode() {}

// AggFunc is a GROUP BY aggregate function.
type AggFunc int

const (
	AggCount AggFunc = iota
	AggSum
	AggAvg
	AggMin
	AggMax
	AggSample
	AggGroupConcat
)

// Aggregation computes one aggregate column of a GroupAgg.
type Aggregation struct {
	Func     AggFunc
	Expr     Expr // nil for COUNT(*)
	Distinct bool
	As       Variable
}

// GroupAgg groups Child's bindings by By and computes Aggs per group.
type GroupAgg struct {
	Child Node
	By    []Variable
	Aggs  []Aggregation
}

func (GroupAgg) isNode() {}

package algebra

import "github.com/nqrdf/tristore/term"

// Expr is a scalar expression evaluated per binding by FILTER, EXTEND,
// OrderBy keys and aggregate arguments. Membership is closed, mirroring
// Node and term.Term.
type Expr interface {
	isExpr()
}

// VarRef reads a variable's current binding. Unbound is a legal
// result (SPARQL's "unbound" rather than an error) that BOUND and
// most operators must handle explicitly.
type VarRef struct{ Var Variable }

func (VarRef) isExpr() {}

// Lit is a constant RDF term embedded in an expression.
type Lit struct{ Value term.Term }

func (Lit) isExpr() {}

// CompareOp is a comparison operator.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

// Compare applies Op to Left and Right's evaluated values.
type Compare struct {
	Op          CompareOp
	Left, Right Expr
}

func (Compare) isExpr() {}

// And is SPARQL's short-circuiting logical AND.
type And struct{ Left, Right Expr }

func (And) isExpr() {}

// Or is SPARQL's short-circuiting logical OR.
type Or struct{ Left, Right Expr }

func (Or) isExpr() {}

// Not negates Operand's effective boolean value.
type Not struct{ Operand Expr }

func (Not) isExpr() {}

// ArithOp is an arithmetic operator over numeric operands.
type ArithOp int

const (
	OpAdd ArithOp = iota
	OpSub
	OpMul
	OpDiv
)

// Arith applies Op to Left and Right's evaluated numeric values.
type Arith struct {
	Op          ArithOp
	Left, Right Expr
}

func (Arith) isExpr() {}

// Bound is SPARQL's BOUND(?v): true iff Var has a binding.
type Bound struct{ Var Variable }

func (Bound) isExpr() {}

// Now is SPARQL's NOW(): the query's fixed evaluation timestamp.
// Non-deterministic across queries, which is why the cacheability walk
// (IsCacheable) reports any tree containing one as not cacheable.
type Now struct{}

func (Now) isExpr() {}

// Rand is SPARQL's RAND(): a fresh pseudo-random float in [0,1) per
// evaluation. Non-deterministic, same cacheability caveat as Now.
type Rand struct{}

func (Rand) isExpr() {}

// UUID is SPARQL's UUID()/STRUUID(): a fresh random identifier per
// evaluation. Non-deterministic, same cacheability caveat as Now.
type UUID struct{ AsString bool }

func (UUID) isExpr() {}

// NonDeterministicFuncs walks an expression tree and reports whether
// it contains NOW, RAND or UUID anywhere — the set spec.md §4.G names
// as disqualifying a query from the result cache.
func NonDeterministicFuncs(e Expr) bool {
	if e == nil {
		return false
	}
	switch x := e.(type) {
	case Now, Rand, UUID:
		return true
	case Compare:
		return NonDeterministicFuncs(x.Left) || NonDeterministicFuncs(x.Right)
	case And:
		return NonDeterministicFuncs(x.Left) || NonDeterministicFuncs(x.Right)
	case Or:
		return NonDeterministicFuncs(x.Left) || NonDeterministicFuncs(x.Right)
	case Not:
		return NonDeterministicFuncs(x.Operand)
	case Arith:
		return NonDeterministicFuncs(x.Left) || NonDeterministicFuncs(x.Right)
	default:
		return false
	}
}

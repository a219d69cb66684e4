// Package stream implements every non-BGP algebra operator (spec.md
// §6) as a lazy transform over iter.Seq[Bindings]: JOIN, LEFT-JOIN,
// UNION, MINUS, FILTER, EXTEND, PROJECT, DISTINCT, ORDER-BY, SLICE and
// GROUP-AGG each wrap an input sequence and yield a new one, matching
// the teacher's "everything after the initial scan is a small
// composable wrapper" shape (internal/leapfrog feeds the first
// Bindings sequence; everything above this package is stream algebra).
package stream

import (
	"errors"
	"fmt"

	"github.com/nqrdf/tristore/algebra"
	"github.com/nqrdf/tristore/internal/dict"
	"github.com/nqrdf/tristore/term"
)

// Bindings maps every variable resolved so far to its dictionary id.
type Bindings map[algebra.Variable]dict.ID

// Clone returns a shallow copy, used whenever a transform must extend
// a binding without mutating the one upstream still holds a reference
// to (iter.Seq sequences can be replayed or interleaved by callers).
func (b Bindings) Clone() Bindings {
	out := make(Bindings, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// compatible reports whether a and b agree on every variable they
// share — SPARQL's join condition.
func (a Bindings) compatible(b Bindings) bool {
	for k, v := range a {
		if ov, ok := b[k]; ok && ov != v {
			return false
		}
	}
	return true
}

// merge returns a ∪ b, assuming compatible(a, b).
func merge(a, b Bindings) Bindings {
	out := a.Clone()
	for k, v := range b {
		out[k] = v
	}
	return out
}

// ErrUnboundOperand is returned by Eval when a comparison or
// arithmetic operator is applied to an unbound variable — SPARQL's
// type-error case, which Filter catches and treats as "exclude this
// binding" rather than a hard query failure.
var ErrUnboundOperand = errors.New("stream: unbound operand")

// Value is the evaluated result of an Expr: a small tagged union over
// the scalar kinds FILTER/EXTEND/ORDER BY need to compare.
type Value struct {
	Bound    bool
	IsNumber bool
	Num      float64
	IsBool   bool
	Bool     bool
	Str      string
	ID       dict.ID
	HasID    bool
}

func unbound() Value { return Value{} }

func valueFromTerm(t term.Term, id dict.ID, hasID bool) Value {
	v := Value{Bound: true, Str: t.String(), ID: id, HasID: hasID}
	if lit, ok := t.(term.TypedLiteral); ok {
		if lit.Datatype == term.XSDBoolean {
			v.IsBool = true
			v.Bool = lit.Value == "true" || lit.Value == "1"
		} else if f, ok := term.AsFloat64(t); ok {
			v.IsNumber = true
			v.Num = f
		}
	}
	return v
}

// Eval computes expr's value against bindings, resolving variables and
// dictionary-encoded constants through d.
func Eval(expr algebra.Expr, b Bindings, d *dict.Dictionary) (Value, error) {
	switch x := expr.(type) {
	case algebra.VarRef:
		id, ok := b[x.Var]
		if !ok {
			return unbound(), nil
		}
		t, err := d.Decode(id)
		if err != nil {
			return Value{}, fmt.Errorf("stream: decode %s: %w", x.Var, err)
		}
		return valueFromTerm(t, id, true), nil

	case algebra.Lit:
		id, ok, err := d.GetIfPresent(x.Value)
		if err != nil {
			return Value{}, err
		}
		return valueFromTerm(x.Value, id, ok), nil

	case algebra.Bound:
		_, ok := b[x.Var]
		return Value{Bound: true, IsBool: true, Bool: ok}, nil

	case algebra.Not:
		v, err := Eval(x.Operand, b, d)
		if err != nil {
			return Value{}, err
		}
		return Value{Bound: true, IsBool: true, Bool: !effectiveBool(v)}, nil

	case algebra.And:
		l, err := Eval(x.Left, b, d)
		if err != nil {
			return Value{}, err
		}
		if !effectiveBool(l) {
			return Value{Bound: true, IsBool: true, Bool: false}, nil
		}
		r, err := Eval(x.Right, b, d)
		if err != nil {
			return Value{}, err
		}
		return Value{Bound: true, IsBool: true, Bool: effectiveBool(r)}, nil

	case algebra.Or:
		l, err := Eval(x.Left, b, d)
		if err != nil {
			return Value{}, err
		}
		if effectiveBool(l) {
			return Value{Bound: true, IsBool: true, Bool: true}, nil
		}
		r, err := Eval(x.Right, b, d)
		if err != nil {
			return Value{}, err
		}
		return Value{Bound: true, IsBool: true, Bool: effectiveBool(r)}, nil

	case algebra.Compare:
		l, err := Eval(x.Left, b, d)
		if err != nil {
			return Value{}, err
		}
		r, err := Eval(x.Right, b, d)
		if err != nil {
			return Value{}, err
		}
		ok, err := compareValues(x.Op, l, r)
		if err != nil {
			return Value{}, err
		}
		return Value{Bound: true, IsBool: true, Bool: ok}, nil

	case algebra.Arith:
		l, err := Eval(x.Left, b, d)
		if err != nil {
			return Value{}, err
		}
		r, err := Eval(x.Right, b, d)
		if err != nil {
			return Value{}, err
		}
		if !l.Bound || !r.Bound || !l.IsNumber || !r.IsNumber {
			return Value{}, ErrUnboundOperand
		}
		return Value{Bound: true, IsNumber: true, Num: arith(x.Op, l.Num, r.Num)}, nil

	case algebra.Now, algebra.Rand, algebra.UUID:
		return Value{}, fmt.Errorf("stream: %T requires EvalNonDeterministic, not Eval", x)

	default:
		return Value{}, fmt.Errorf("stream: unknown expr type %T", expr)
	}
}

func arith(op algebra.ArithOp, l, r float64) float64 {
	switch op {
	case algebra.OpAdd:
		return l + r
	case algebra.OpSub:
		return l - r
	case algebra.OpMul:
		return l * r
	case algebra.OpDiv:
		return l / r
	default:
		return 0
	}
}

func compareValues(op algebra.CompareOp, l, r Value) (bool, error) {
	if op == algebra.OpEq || op == algebra.OpNe {
		eq := valuesEqual(l, r)
		if op == algebra.OpNe {
			return !eq, nil
		}
		return eq, nil
	}
	if !l.Bound || !r.Bound {
		return false, ErrUnboundOperand
	}
	var cmp int
	switch {
	case l.IsNumber && r.IsNumber:
		cmp = compareFloat(l.Num, r.Num)
	default:
		cmp = compareStr(l.Str, r.Str)
	}
	switch op {
	case algebra.OpLt:
		return cmp < 0, nil
	case algebra.OpLe:
		return cmp <= 0, nil
	case algebra.OpGt:
		return cmp > 0, nil
	case algebra.OpGe:
		return cmp >= 0, nil
	default:
		return false, fmt.Errorf("stream: unknown compare op %d", op)
	}
}

func valuesEqual(l, r Value) bool {
	if !l.Bound || !r.Bound {
		return !l.Bound && !r.Bound
	}
	if l.IsNumber && r.IsNumber {
		return l.Num == r.Num
	}
	if l.IsBool && r.IsBool {
		return l.Bool == r.Bool
	}
	if l.HasID && r.HasID {
		return l.ID == r.ID
	}
	return l.Str == r.Str
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareStr(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// effectiveBool is SPARQL's effective boolean value coercion.
func effectiveBool(v Value) bool {
	if !v.Bound {
		return false
	}
	if v.IsBool {
		return v.Bool
	}
	if v.IsNumber {
		return v.Num != 0
	}
	return v.Str != ""
}

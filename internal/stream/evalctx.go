package stream

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/nqrdf/tristore/algebra"
	"github.com/nqrdf/tristore/internal/dict"
	"github.com/nqrdf/tristore/term"
)

// EvalCtx supplies the fixed-per-query values NOW/RAND/UUID need.
// SPARQL pins NOW to a single timestamp for the whole query so that
// repeated references within one evaluation agree; RAND and UUID are
// deliberately re-rolled on every call.
type EvalCtx struct {
	Now  time.Time
	rand *rand.Rand
}

// NewEvalCtx seeds a fresh randomness source from seed (a caller-
// supplied value, e.g. derived from a query id, so runs are
// reproducible for debugging without being predictable across
// queries).
func NewEvalCtx(now time.Time, seed int64) *EvalCtx {
	return &EvalCtx{Now: now, rand: rand.New(rand.NewSource(seed))}
}

// EvalNonDeterministic evaluates expr like Eval, additionally handling
// NOW/RAND/UUID via ctx. Plans containing these must never reach
// internal/cache (algebra.IsCacheable rejects them upstream); this
// entry point exists for the FILTER/EXTEND transforms that still need
// to execute them live.
func EvalNonDeterministic(expr algebra.Expr, b Bindings, d *dict.Dictionary, ctx *EvalCtx) (Value, error) {
	switch x := expr.(type) {
	case algebra.Now:
		lit := term.TypedLiteral{Value: ctx.Now.UTC().Format(time.RFC3339Nano), Datatype: term.XSDDateTime}
		return valueFromTerm(lit, 0, false), nil
	case algebra.Rand:
		return Value{Bound: true, IsNumber: true, Num: ctx.rand.Float64()}, nil
	case algebra.UUID:
		u := uuid.New()
		if x.AsString {
			lit := term.TypedLiteral{Value: u.String(), Datatype: term.XSDString}
			return valueFromTerm(lit, 0, false), nil
		}
		return valueFromTerm(term.IRI("urn:uuid:"+u.String()), 0, false), nil
	default:
		return evalRecursive(expr, b, d, ctx)
	}
}

// evalRecursive re-implements Eval's tree walk but threads ctx through
// to subexpressions so a NOW/RAND/UUID nested inside AND/OR/Compare/
// Arith/Not is still reachable.
func evalRecursive(expr algebra.Expr, b Bindings, d *dict.Dictionary, ctx *EvalCtx) (Value, error) {
	switch x := expr.(type) {
	case algebra.Not:
		v, err := EvalNonDeterministic(x.Operand, b, d, ctx)
		if err != nil {
			return Value{}, err
		}
		return Value{Bound: true, IsBool: true, Bool: !effectiveBool(v)}, nil
	case algebra.And:
		l, err := EvalNonDeterministic(x.Left, b, d, ctx)
		if err != nil {
			return Value{}, err
		}
		if !effectiveBool(l) {
			return Value{Bound: true, IsBool: true, Bool: false}, nil
		}
		r, err := EvalNonDeterministic(x.Right, b, d, ctx)
		if err != nil {
			return Value{}, err
		}
		return Value{Bound: true, IsBool: true, Bool: effectiveBool(r)}, nil
	case algebra.Or:
		l, err := EvalNonDeterministic(x.Left, b, d, ctx)
		if err != nil {
			return Value{}, err
		}
		if effectiveBool(l) {
			return Value{Bound: true, IsBool: true, Bool: true}, nil
		}
		r, err := EvalNonDeterministic(x.Right, b, d, ctx)
		if err != nil {
			return Value{}, err
		}
		return Value{Bound: true, IsBool: true, Bool: effectiveBool(r)}, nil
	case algebra.Compare:
		l, err := EvalNonDeterministic(x.Left, b, d, ctx)
		if err != nil {
			return Value{}, err
		}
		r, err := EvalNonDeterministic(x.Right, b, d, ctx)
		if err != nil {
			return Value{}, err
		}
		ok, err := compareValues(x.Op, l, r)
		if err != nil {
			return Value{}, err
		}
		return Value{Bound: true, IsBool: true, Bool: ok}, nil
	case algebra.Arith:
		l, err := EvalNonDeterministic(x.Left, b, d, ctx)
		if err != nil {
			return Value{}, err
		}
		r, err := EvalNonDeterministic(x.Right, b, d, ctx)
		if err != nil {
			return Value{}, err
		}
		if !l.Bound || !r.Bound || !l.IsNumber || !r.IsNumber {
			return Value{}, ErrUnboundOperand
		}
		return Value{Bound: true, IsNumber: true, Num: arith(x.Op, l.Num, r.Num)}, nil
	default:
		return Eval(expr, b, d)
	}
}

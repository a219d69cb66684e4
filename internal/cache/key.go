package cache

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/nqrdf/tristore/algebra"
)

// NormalizeKey canonicalizes q (renaming variables to their
// first-occurrence positional index, leaving constants as their own
// canonical bytes) and hashes the result with a cryptographic hash, so
// two queries that differ only in variable naming share a cache entry.
// spec.md §4.G requires a cryptographic hash specifically (not just a
// fast one) for the fixed-length opaque key.
func NormalizeKey(q algebra.Node) Key {
	norm := make(map[algebra.Variable]uint32)
	collectVarsNode(q, norm)

	buf := encodeNode(q, norm)
	return sha256.Sum256(buf)
}

func collectVarsNode(n algebra.Node, norm map[algebra.Variable]uint32) {
	see := func(v algebra.Variable) {
		if _, ok := norm[v]; !ok {
			norm[v] = uint32(len(norm))
		}
	}
	if n == nil {
		return
	}
	switch x := n.(type) {
	case algebra.BGP:
		for _, p := range x.Patterns {
			for _, t := range []algebra.PatternTerm{p.S, p.P, p.O} {
				if t.IsVar {
					see(t.Var)
				}
			}
		}
	case algebra.Join:
		collectVarsNode(x.Left, norm)
		collectVarsNode(x.Right, norm)
	case algebra.LeftJoin:
		collectVarsNode(x.Left, norm)
		collectVarsNode(x.Right, norm)
		collectVarsExpr(x.Filter, norm, see)
	case algebra.Union:
		collectVarsNode(x.Left, norm)
		collectVarsNode(x.Right, norm)
	case algebra.Minus:
		collectVarsNode(x.Left, norm)
		collectVarsNode(x.Right, norm)
	case algebra.Filter:
		collectVarsNode(x.Child, norm)
		collectVarsExpr(x.Expr, norm, see)
	case algebra.Extend:
		collectVarsNode(x.Child, norm)
		see(x.Var)
		collectVarsExpr(x.Expr, norm, see)
	case algebra.Project:
		collectVarsNode(x.Child, norm)
		for _, v := range x.Vars {
			see(v)
		}
	case algebra.Distinct:
		collectVarsNode(x.Child, norm)
	case algebra.OrderBy:
		collectVarsNode(x.Child, norm)
		for _, k := range x.Keys {
			collectVarsExpr(k.Expr, norm, see)
		}
	case algebra.Slice:
		collectVarsNode(x.Child, norm)
	case algebra.GroupAgg:
		collectVarsNode(x.Child, norm)
		for _, v := range x.By {
			see(v)
		}
		for _, a := range x.Aggs {
			collectVarsExpr(a.Expr, norm, see)
			see(a.As)
		}
	}
}

func collectVarsExpr(e algebra.Expr, norm map[algebra.Variable]uint32, see func(algebra.Variable)) {
	if e == nil {
		return
	}
	switch x := e.(type) {
	case algebra.VarRef:
		see(x.Var)
	case algebra.Bound:
		see(x.Var)
	case algebra.Not:
		collectVarsExpr(x.Operand, norm, see)
	case algebra.And:
		collectVarsExpr(x.Left, norm, see)
		collectVarsExpr(x.Right, norm, see)
	case algebra.Or:
		collectVarsExpr(x.Left, norm, see)
		collectVarsExpr(x.Right, norm, see)
	case algebra.Compare:
		collectVarsExpr(x.Left, norm, see)
		collectVarsExpr(x.Right, norm, see)
	case algebra.Arith:
		collectVarsExpr(x.Left, norm, see)
		collectVarsExpr(x.Right, norm, see)
	}
}

// Tag bytes for the canonical encoding. NormalizeKey's output is
// written into the cache persistence file (SaveToFile in persist.go),
// so these values feed the keys stored on disk.
const (
	tagBGP byte = iota
	tagJoin
	tagLeftJoin
	tagUnion
	tagMinus
	tagFilter
	tagExtend
	tagProject
	tagDistinct
	tagOrderBy
	tagSlice
	tagGroupAgg
	tagNil
)

const (
	etagVarRef byte = iota
	etagLit
	etagCompare
	etagAnd
	etagOr
	etagNot
	etagArith
	etagBound
	etagNow
	etagRand
	etagUUID
	etagNil
)

func putU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func putVar(buf []byte, v algebra.Variable, norm map[algebra.Variable]uint32) []byte {
	return putU32(buf, norm[v])
}

func putTerm(buf []byte, t algebra.PatternTerm, norm map[algebra.Variable]uint32) []byte {
	if t.IsVar {
		buf = append(buf, 1)
		return putVar(buf, t.Var, norm)
	}
	buf = append(buf, 0)
	cb := t.Const.CanonicalBytes()
	buf = putU32(buf, uint32(len(cb)))
	return append(buf, cb...)
}

func encodeNode(n algebra.Node, norm map[algebra.Variable]uint32) []byte {
	if n == nil {
		return []byte{tagNil}
	}
	var buf []byte
	switch x := n.(type) {
	case algebra.BGP:
		buf = append(buf, tagBGP)
		buf = putU32(buf, uint32(len(x.Patterns)))
		for _, p := range x.Patterns {
			buf = putTerm(buf, p.S, norm)
			buf = putTerm(buf, p.P, norm)
			buf = putTerm(buf, p.O, norm)
		}
	case algebra.Join:
		buf = append(buf, tagJoin)
		buf = append(buf, encodeNode(x.Left, norm)...)
		buf = append(buf, encodeNode(x.Right, norm)...)
	case algebra.LeftJoin:
		buf = append(buf, tagLeftJoin)
		buf = append(buf, encodeNode(x.Left, norm)...)
		buf = append(buf, encodeNode(x.Right, norm)...)
		buf = append(buf, encodeExpr(x.Filter, norm)...)
	case algebra.Union:
		buf = append(buf, tagUnion)
		buf = append(buf, encodeNode(x.Left, norm)...)
		buf = append(buf, encodeNode(x.Right, norm)...)
	case algebra.Minus:
		buf = append(buf, tagMinus)
		buf = append(buf, encodeNode(x.Left, norm)...)
		buf = append(buf, encodeNode(x.Right, norm)...)
	case algebra.Filter:
		buf = append(buf, tagFilter)
		buf = append(buf, encodeNode(x.Child, norm)...)
		buf = append(buf, encodeExpr(x.Expr, norm)...)
	case algebra.Extend:
		buf = append(buf, tagExtend)
		buf = append(buf, encodeNode(x.Child, norm)...)
		buf = putVar(buf, x.Var, norm)
		buf = append(buf, encodeExpr(x.Expr, norm)...)
	case algebra.Project:
		buf = append(buf, tagProject)
		buf = append(buf, encodeNode(x.Child, norm)...)
		buf = putU32(buf, uint32(len(x.Vars)))
		for _, v := range x.Vars {
			buf = putVar(buf, v, norm)
		}
	case algebra.Distinct:
		buf = append(buf, tagDistinct)
		buf = append(buf, encodeNode(x.Child, norm)...)
	case algebra.OrderBy:
		buf = append(buf, tagOrderBy)
		buf = append(buf, encodeNode(x.Child, norm)...)
		buf = putU32(buf, uint32(len(x.Keys)))
		for _, k := range x.Keys {
			buf = append(buf, byte(k.Direction))
			buf = append(buf, encodeExpr(k.Expr, norm)...)
		}
	case algebra.Slice:
		buf = append(buf, tagSlice)
		buf = append(buf, encodeNode(x.Child, norm)...)
		buf = putU32(buf, uint32(x.Offset))
		buf = putU32(buf, uint32(x.Limit))
	case algebra.GroupAgg:
		buf = append(buf, tagGroupAgg)
		buf = append(buf, encodeNode(x.Child, norm)...)
		buf = putU32(buf, uint32(len(x.By)))
		for _, v := range x.By {
			buf = putVar(buf, v, norm)
		}
		buf = putU32(buf, uint32(len(x.Aggs)))
		for _, a := range x.Aggs {
			buf = append(buf, byte(a.Func))
			if a.Distinct {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
			buf = putVar(buf, a.As, norm)
			buf = append(buf, encodeExpr(a.Expr, norm)...)
		}
	}
	return buf
}

func encodeExpr(e algebra.Expr, norm map[algebra.Variable]uint32) []byte {
	if e == nil {
		return []byte{etagNil}
	}
	var buf []byte
	switch x := e.(type) {
	case algebra.VarRef:
		buf = append(buf, etagVarRef)
		buf = putVar(buf, x.Var, norm)
	case algebra.Lit:
		buf = append(buf, etagLit)
		cb := x.Value.CanonicalBytes()
		buf = putU32(buf, uint32(len(cb)))
		buf = append(buf, cb...)
	case algebra.Compare:
		buf = append(buf, etagCompare, byte(x.Op))
		buf = append(buf, encodeExpr(x.Left, norm)...)
		buf = append(buf, encodeExpr(x.Right, norm)...)
	case algebra.And:
		buf = append(buf, etagAnd)
		buf = append(buf, encodeExpr(x.Left, norm)...)
		buf = append(buf, encodeExpr(x.Right, norm)...)
	case algebra.Or:
		buf = append(buf, etagOr)
		buf = append(buf, encodeExpr(x.Left, norm)...)
		buf = append(buf, encodeExpr(x.Right, norm)...)
	case algebra.Not:
		buf = append(buf, etagNot)
		buf = append(buf, encodeExpr(x.Operand, norm)...)
	case algebra.Arith:
		buf = append(buf, etagArith, byte(x.Op))
		buf = append(buf, encodeExpr(x.Left, norm)...)
		buf = append(buf, encodeExpr(x.Right, norm)...)
	case algebra.Bound:
		buf = append(buf, etagBound)
		buf = putVar(buf, x.Var, norm)
	case algebra.Now:
		buf = append(buf, etagNow)
	case algebra.Rand:
		buf = append(buf, etagRand)
	case algebra.UUID:
		buf = append(buf, etagUUID)
		if x.AsString {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	return buf
}

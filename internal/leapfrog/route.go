package leapfrog

import (
	"github.com/nqrdf/tristore/internal/dict"
	"github.com/nqrdf/tristore/internal/index"
)

// slotInfo is what buildIterators knows about one non-target pattern
// slot: either resolved to a concrete id (a constant, or a variable
// already bound by an earlier VEO level) or still free.
type slotInfo struct {
	bound bool
	value dict.ID
}

func resolveSlot(t Term, target Variable, bindings Bindings) (info slotInfo, isTarget bool) {
	if !t.IsVar {
		return slotInfo{bound: true, value: t.Const}, false
	}
	if t.Var == target {
		return slotInfo{}, true
	}
	if id, ok := bindings[t.Var]; ok {
		return slotInfo{bound: true, value: id}, false
	}
	return slotInfo{}, false
}

// buildIterators builds one trie iterator per pattern mentioning v,
// choosing the physical index, prefix and level per spec.md §4.F's
// table (extended by symmetry to every target/bound-state combination;
// the worked subset the spec gives is reproduced exactly below).
func (e *Executor) buildIterators(v Variable) ([]*TrieIterator, error) {
	var iters []*TrieIterator
	for _, pat := range e.patterns {
		sInfo, sIsTarget := resolveSlot(pat.S, v, e.bindings)
		pInfo, pIsTarget := resolveSlot(pat.P, v, e.bindings)
		oInfo, oIsTarget := resolveSlot(pat.O, v, e.bindings)
		if !sIsTarget && !pIsTarget && !oIsTarget {
			continue
		}

		var it *TrieIterator
		var err error
		switch {
		case sIsTarget:
			it, err = e.iteratorForS(pInfo, oInfo)
		case pIsTarget:
			it, err = e.iteratorForP(sInfo, oInfo)
		default:
			it, err = e.iteratorForO(sInfo, pInfo)
		}
		if err != nil {
			for _, opened := range iters {
				_ = opened.Close()
			}
			return nil, err
		}
		iters = append(iters, it)
	}
	return iters, nil
}

// iteratorForS picks the index/prefix/level for a pattern whose target
// variable occupies the subject slot, given what's known of its
// predicate and object slots.
//
//	p bound, o bound -> POS, p∥o, level 2
//	o bound only      -> OSP, o,   level 1
//	otherwise          -> SPO, ∅,   level 0 (suboptimal; leapfrog filters)
func (e *Executor) iteratorForS(p, o slotInfo) (*TrieIterator, error) {
	switch {
	case p.bound && o.bound:
		return e.open(index.POS, index.BuildPrefix(p.value, o.value), 2)
	case o.bound:
		return e.open(index.OSP, index.BuildPrefix(o.value), 1)
	default:
		return e.open(index.SPO, nil, 0)
	}
}

// iteratorForP picks the index/prefix/level for a pattern whose target
// variable occupies the predicate slot.
//
//	s bound -> SPO, s, level 1
//	otherwise -> POS, ∅, level 0
func (e *Executor) iteratorForP(s, o slotInfo) (*TrieIterator, error) {
	if s.bound {
		return e.open(index.SPO, index.BuildPrefix(s.value), 1)
	}
	return e.open(index.POS, nil, 0)
}

// iteratorForO picks the index/prefix/level for a pattern whose target
// variable occupies the object slot.
//
//	s bound, p bound -> SPO, s∥p, level 2
//	p bound only      -> POS, p,   level 1
//	otherwise          -> OSP, ∅,   level 0
func (e *Executor) iteratorForO(s, p slotInfo) (*TrieIterator, error) {
	switch {
	case s.bound && p.bound:
		return e.open(index.SPO, index.BuildPrefix(s.value, p.value), 2)
	case p.bound:
		return e.open(index.POS, index.BuildPrefix(p.value), 1)
	default:
		return e.open(index.OSP, nil, 0)
	}
}

func (e *Executor) open(kind index.IndexKind, prefix []byte, level int) (*TrieIterator, error) {
	cur, err := e.idx.ScanPrefix(kind, prefix)
	if err != nil {
		return nil, err
	}
	return NewTrieIterator(cur, level), nil
}

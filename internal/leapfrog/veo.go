package leapfrog

import (
	"sort"

	"github.com/nqrdf/tristore/internal/dict"
)

// Variable names a SPARQL-style query variable.
type Variable string

// Term is one triple pattern slot: either a variable or a constant
// dictionary id. IsVar distinguishes the two; Const is meaningless
// when IsVar is true.
type Term struct {
	IsVar bool
	Var   Variable
	Const dict.ID
}

// V constructs a variable term.
func V(v Variable) Term { return Term{IsVar: true, Var: v} }

// C constructs a constant term.
func C(id dict.ID) Term { return Term{Const: id} }

// BoundPattern is a triple pattern over Terms, the unit the leapfrog
// executor plans and executes one VEO step at a time.
type BoundPattern struct {
	S, P, O Term
}

func (p BoundPattern) vars() []Variable {
	var vs []Variable
	for _, t := range [3]Term{p.S, p.P, p.O} {
		if t.IsVar {
			vs = append(vs, t.Var)
		}
	}
	return vs
}

func (p BoundPattern) constants() int {
	n := 0
	for _, t := range [3]Term{p.S, p.P, p.O} {
		if !t.IsVar {
			n++
		}
	}
	return n
}

// subjectObjectFactor and predicateFactor are the base per-position
// selectivity weights of
// spec.md §4.F's VEO scoring: subjects and objects are high-
// cardinality (binding one value is very selective, a low weight),
// predicates are low-cardinality (binding one value barely narrows
// anything, a high weight).
const (
	subjectObjectFactor = 0.3
	predicateFactor     = 1.0
)

// PredicateSelectivity is the subset of *stats.Server the VEO
// computation needs, kept narrow so leapfrog does not have to import
// the whole stats package surface.
type PredicateSelectivity interface {
	PredicateSelectivity(p dict.ID) float64
}

// ComputeVEO scores every variable across patterns per spec.md §4.F
// ((i) position base cost, (ii) a multiplier that decreases with the
// number of constants alongside it, (iii) a predicate-histogram
// multiplier when the pattern's predicate is bound, (iv) a multi-
// pattern bonus) and returns them sorted ascending (most selective
// first) — the variable elimination order.
func ComputeVEO(patterns []BoundPattern, sel PredicateSelectivity) []Variable {
	type acc struct {
		posSum      float64
		constants   int
		predProduct float64
		occurrences int
	}
	m := map[Variable]*acc{}
	order := []Variable{}

	for _, pat := range patterns {
		predSel := 1.0
		if !pat.P.IsVar && sel != nil {
			predSel = sel.PredicateSelectivity(pat.P.Const)
		}
		slots := [3]Term{pat.S, pat.P, pat.O}
		for i, t := range slots {
			if !t.IsVar {
				continue
			}
			a, ok := m[t.Var]
			if !ok {
				a = &acc{predProduct: 1}
				m[t.Var] = a
				order = append(order, t.Var)
			}
			if i == 1 {
				a.posSum += predicateFactor
			} else {
				a.posSum += subjectObjectFactor
			}
			a.constants += pat.constants()
			a.predProduct *= predSel
			a.occurrences++
		}
	}

	scores := make(map[Variable]float64, len(order))
	for _, v := range order {
		a := m[v]
		avgPos := a.posSum / float64(a.occurrences)
		constMult := 1.0 / (1.0 + float64(a.constants))
		bonus := float64(a.occurrences)
		scores[v] = avgPos * constMult * a.predProduct / bonus
	}

	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] < scores[order[j]]
	})
	return order
}

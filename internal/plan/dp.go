package plan

import "github.com/nqrdf/tristore/internal/stats"

type dpCell struct {
	cost  float64
	card  float64
	order []int
}

// dpState carries the accumulated cost model across one enumeration.
type dpState struct {
	patterns []Pattern
	filters  []Filter
	st       stats.Stats
	srv      *stats.Server
	weights  Weights
}

func varsOf(patterns []Pattern, order []int) map[Variable]bool {
	bound := map[Variable]bool{}
	for _, i := range order {
		for _, v := range patterns[i].vars() {
			bound[v] = true
		}
	}
	return bound
}

func sharesVar(pat Pattern, bound map[Variable]bool) bool {
	for _, v := range pat.vars() {
		if bound[v] {
			return true
		}
	}
	return false
}

// dpEnumerate implements the bitmask DP over connected join subsets
// (spec.md §4.E), feasible for the small pattern counts (≤6) it is
// reserved for — 2^n masks, n ≤ 6 means at most 64 states.
func dpEnumerate(s dpState) ([]int, float64, float64) {
	n := len(s.patterns)
	full := (1 << n) - 1
	cells := make(map[int]dpCell, 1<<n)
	cells[0] = dpCell{cost: 0, card: 1, order: nil}

	tripleCount := float64(s.st.TripleCount)
	if tripleCount < 1 {
		tripleCount = 1
	}

	for mask := 1; mask <= full; mask++ {
		var best dpCell
		haveBest := false
		for i := 0; i < n; i++ {
			bit := 1 << i
			if mask&bit == 0 {
				continue
			}
			prev := mask ^ bit
			prevCell, ok := cells[prev]
			if !ok {
				continue
			}
			bound := varsOf(s.patterns, prevCell.order)
			est := estimateRows(s.patterns[i], bound, s.st, s.srv, s.filters)
			rows := est.rows
			if prev != 0 && !sharesVar(s.patterns[i], bound) {
				// Disconnected: this is a cross (cartesian) join.
				// Penalise heavily so a connected ordering always
				// wins when one exists, while still leaving a valid
				// (if expensive) plan for genuinely disjoint BGPs.
				rows *= tripleCount
			}

			cost := prevCell.cost + rows
			card := prevCell.card
			if prev == 0 {
				card = rows
			} else {
				card = card * (rows / tripleCount)
				if card < 1 {
					card = 1
				}
			}
			if !haveBest || cost < best.cost {
				order := append(append([]int{}, prevCell.order...), i)
				best = dpCell{cost: cost, card: card, order: order}
				haveBest = true
			}
		}
		cells[mask] = best
	}

	final := cells[full]
	return final.order, final.cost, final.card
}

// greedyEnumerate repeatedly picks the next pattern with the lowest
// incremental cost given already-bound variables, for pattern counts
// above the DP enumeration's threshold (spec.md §4.E).
func greedyEnumerate(s dpState) ([]int, float64, float64) {
	n := len(s.patterns)
	remaining := make([]int, n)
	for i := range remaining {
		remaining[i] = i
	}

	var order []int
	bound := map[Variable]bool{}
	totalCost := 0.0
	card := 1.0
	tripleCount := float64(s.st.TripleCount)
	if tripleCount < 1 {
		tripleCount = 1
	}
	first := true

	for len(remaining) > 0 {
		bestIdx := -1
		bestPos := -1
		var bestRows float64
		for pos, i := range remaining {
			est := estimateRows(s.patterns[i], bound, s.st, s.srv, s.filters)
			rows := est.rows
			if !first && !sharesVar(s.patterns[i], bound) {
				rows *= tripleCount
			}
			if bestIdx == -1 || rows < bestRows {
				bestIdx, bestPos, bestRows = i, pos, rows
			}
		}
		order = append(order, bestIdx)
		totalCost += bestRows
		if first {
			card = bestRows
			first = false
		} else {
			card = card * (bestRows / tripleCount)
			if card < 1 {
				card = 1
			}
		}
		for _, v := range s.patterns[bestIdx].vars() {
			bound[v] = true
		}
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}
	return order, totalCost, card
}

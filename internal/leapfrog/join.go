package leapfrog

import (
	"errors"
	"sort"
)

// ErrMaxIterationsExceeded is returned by Join.Search/Next when the
// intersection loop exceeds its configured iteration bound, per
// spec.md §4.F's max_iterations safeguard against pathological CPU
// consumption on adversarial (e.g. near-disjoint) inputs.
var ErrMaxIterationsExceeded = errors.New("leapfrog: max_iterations_exceeded")

// Join intersects a set of trie iterators that share a join variable,
// in ascending sorted order, per spec.md §4.F's leapfrog algorithm.
type Join struct {
	iters   []*TrieIterator
	maxIter int
}

// NewJoin constructs a Join over iters, which must be non-empty. The
// iterators are taken by reference and reordered in place.
func NewJoin(iters []*TrieIterator, maxIter int) (*Join, error) {
	if len(iters) == 0 {
		return nil, errors.New("leapfrog: join requires at least one iterator")
	}
	j := &Join{iters: iters, maxIter: maxIter}
	j.sortByCurrent()
	return j, nil
}

// sortByCurrent orders iterators by ascending current value, with any
// exhausted iterator sorting last.
func (j *Join) sortByCurrent() {
	sort.Slice(j.iters, func(a, b int) bool {
		va, oka := j.iters[a].Current()
		vb, okb := j.iters[b].Current()
		if oka != okb {
			return oka // the ok one sorts first
		}
		if !oka {
			return false // both exhausted, order doesn't matter
		}
		return va < vb
	})
}

func (j *Join) anyExhausted() bool {
	for _, it := range j.iters {
		if _, ok := it.Current(); !ok {
			return true
		}
	}
	return false
}

// Search repeats min.seek(max) until every iterator agrees on the same
// value, or one is exhausted, or max_iterations is exceeded. A single
// iterator degenerates to plain trie iteration: min == max trivially.
func (j *Join) Search() (uint64, bool, error) {
	iterations := 0
	for {
		if j.anyExhausted() {
			return 0, false, nil
		}
		j.sortByCurrent()
		minVal, _ := j.iters[0].Current()
		maxVal, _ := j.iters[len(j.iters)-1].Current()
		if minVal == maxVal {
			return minVal, true, nil
		}
		iterations++
		if iterations > j.maxIter {
			return 0, false, ErrMaxIterationsExceeded
		}
		if !j.iters[0].Seek(maxVal) {
			return 0, false, nil
		}
	}
}

// Next advances the formerly-minimum iterator, then re-searches.
func (j *Join) Next() (uint64, bool, error) {
	j.sortByCurrent()
	if !j.iters[0].Next() {
		return 0, false, nil
	}
	return j.Search()
}

// Close releases every iterator's underlying cursor. The first error
// encountered is returned; every iterator is still attempted.
func (j *Join) Close() error {
	var first error
	for _, it := range j.iters {
		if err := it.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

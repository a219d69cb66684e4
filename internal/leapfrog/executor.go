package leapfrog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nqrdf/tristore/internal/dict"
	"github.com/nqrdf/tristore/internal/index"
)

// ErrTimeout is returned when a query's deadline is reached mid-search.
var ErrTimeout = errors.New("leapfrog: timeout")

// Bindings maps every VEO variable to its bound dictionary id for one
// result row.
type Bindings map[Variable]dict.ID

// level is one entry of the executor's stack, held by value (arena
// style, spec.md DESIGN NOTES §9): popping deeper levels is a slice
// truncation, never pointer surgery.
type level struct {
	variable Variable
	join     *Join
	value    uint64
}

// Executor is the multi-level {descend|advance|backtrack} state
// machine of spec.md §4.F: it drives the variable elimination order to
// completion one binding at a time.
type Executor struct {
	veo      []Variable
	patterns []BoundPattern
	idx      *index.Index
	deadline time.Time
	maxIter  int

	stack       []level
	bindings    Bindings
	initialized bool
	exhausted   bool
	err         error
}

// NewExecutor constructs an Executor. veo is the precomputed variable
// elimination order (see ComputeVEO); patterns is the basic graph
// pattern being joined; deadline bounds total wall-clock time
// (spec.md §4.F: default 30s, checked at every transition); maxIter
// bounds each Join.Search (default 1,000,000).
func NewExecutor(veo []Variable, patterns []BoundPattern, idx *index.Index, deadline time.Time, maxIter int) *Executor {
	return &Executor{
		veo:      veo,
		patterns: patterns,
		idx:      idx,
		deadline: deadline,
		maxIter:  maxIter,
		bindings: Bindings{},
	}
}

// Next advances to the next result binding. ok is false once the join
// is exhausted; err is non-nil on timeout, max_iterations exceeded,
// context cancellation, an index error, or a variable no pattern binds.
func (e *Executor) Next(ctx context.Context) (Bindings, bool, error) {
	if e.exhausted {
		return nil, false, e.err
	}
	var ok bool
	var err error
	if !e.initialized {
		e.initialized = true
		ok, err = e.descend(ctx, 0)
	} else {
		ok, err = e.advance(ctx, len(e.stack)-1)
	}
	if err != nil {
		e.exhausted, e.err = true, err
		return nil, false, err
	}
	if !ok {
		e.exhausted = true
		return nil, false, nil
	}
	return e.snapshotBindings(), true, nil
}

func (e *Executor) snapshotBindings() Bindings {
	out := make(Bindings, len(e.bindings))
	for k, v := range e.bindings {
		out[k] = v
	}
	return out
}

func (e *Executor) checkDeadline(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !e.deadline.IsZero() && time.Now().After(e.deadline) {
		return ErrTimeout
	}
	return nil
}

// descend builds a leapfrog join for veo[i] given the bindings fixed
// by levels 0..i-1, searches it, and either pushes a matching level and
// recurses to i+1, or backtracks.
func (e *Executor) descend(ctx context.Context, i int) (bool, error) {
	if err := e.checkDeadline(ctx); err != nil {
		return false, err
	}
	if i == len(e.veo) {
		return true, nil
	}
	v := e.veo[i]

	iters, err := e.buildIterators(v)
	if err != nil {
		return false, err
	}
	if len(iters) == 0 {
		return false, fmt.Errorf("leapfrog: no pattern binds variable %q", v)
	}

	j, err := NewJoin(iters, e.maxIter)
	if err != nil {
		return false, err
	}
	val, ok, err := j.Search()
	if err != nil {
		j.Close()
		return false, err
	}
	if !ok {
		j.Close()
		return e.backtrack(ctx, i-1)
	}

	e.stack = append(e.stack, level{variable: v, join: j, value: val})
	e.bindings[v] = dict.ID(val)
	return e.descend(ctx, i+1)
}

// advance calls Join.Next at level i; on success it discards every
// deeper level and re-descends; on exhaustion it pops level i and
// backtracks further.
func (e *Executor) advance(ctx context.Context, i int) (bool, error) {
	if i < 0 {
		return false, nil
	}
	if err := e.checkDeadline(ctx); err != nil {
		return false, err
	}

	// Drop any levels deeper than i left over from the previous result.
	for k := len(e.stack) - 1; k > i; k-- {
		e.closeLevel(e.stack[k])
	}
	e.stack = e.stack[:i+1]

	lvl := &e.stack[i]
	val, ok, err := lvl.join.Next()
	if err != nil {
		return false, err
	}
	if !ok {
		e.closeLevel(*lvl)
		delete(e.bindings, lvl.variable)
		e.stack = e.stack[:i]
		return e.backtrack(ctx, i-1)
	}
	lvl.value = val
	e.bindings[lvl.variable] = dict.ID(val)
	return e.descend(ctx, i+1)
}

func (e *Executor) backtrack(ctx context.Context, i int) (bool, error) {
	if i < 0 {
		return false, nil
	}
	return e.advance(ctx, i)
}

func (e *Executor) closeLevel(lvl level) {
	delete(e.bindings, lvl.variable)
	_ = lvl.join.Close()
}

// Close releases every iterator still held by the stack.
func (e *Executor) Close() error {
	for _, lvl := range e.stack {
		_ = lvl.join.Close()
	}
	e.stack = nil
	e.exhausted = true
	return nil
}

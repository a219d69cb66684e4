package tristore

import (
	"context"
	"iter"
	"time"

	"github.com/nqrdf/tristore/algebra"
	"github.com/nqrdf/tristore/internal/cache"
	"github.com/nqrdf/tristore/internal/dict"
	"github.com/nqrdf/tristore/internal/index"
	"github.com/nqrdf/tristore/internal/leapfrog"
	"github.com/nqrdf/tristore/internal/plan"
	"github.com/nqrdf/tristore/internal/stream"
	"github.com/nqrdf/tristore/term"
)

// Query executes q (an algebra tree built by an out-of-scope SPARQL
// parser per spec.md §1/§6) and returns its lazy solution sequence.
func (s *Store) Query(ctx context.Context, q algebra.Node, opts QueryOptions) (Results, error) {
	if s.closed.Load() {
		return Results{}, newErr(KindClosed, "closed", "store is closed", nil)
	}
	opts = opts.withDefaults()
	vars := projectedVars(q)
	varNames := make([]string, len(vars))
	for i, v := range vars {
		varNames[i] = string(v)
	}

	cacheable := s.cache != nil && opts.UseCache && !opts.NoCache && algebra.IsCacheable(q)
	var key cache.Key
	if cacheable {
		key = cache.NormalizeKey(q)
		if entry, ok := s.cache.Get(key); ok {
			rows, err := s.decodeCacheRows(entry, vars)
			if err != nil {
				return Results{}, err
			}
			return Results{Vars: varNames, Rows: rowsSeq(rows)}, nil
		}
	}

	deadline := time.Now().Add(opts.Deadline)
	ectx := stream.NewEvalCtx(time.Now(), opts.Deadline.Nanoseconds())
	var execErr error
	seq, err := s.execNode(ctx, q, ectx, deadline, opts.MaxIterations, &execErr)
	if err != nil {
		return Results{}, err
	}

	if !cacheable {
		return Results{
			Vars:   varNames,
			Rows:   s.decodeBindingsSeq(seq, vars, &execErr),
			errBox: &execErr,
		}, nil
	}

	// Cacheable queries are materialized eagerly: the cache stores a
	// complete result set, not a lazy stream (spec.md §4.G).
	bindings := materializeBindings(seq)
	if execErr != nil {
		return Results{}, execErr
	}

	rows := make([]Row, len(bindings))
	cacheRows := make([]cache.Row, len(bindings))
	for i, b := range bindings {
		row, err := s.decodeRow(b, vars)
		if err != nil {
			return Results{}, err
		}
		rows[i] = row
		cr := make(cache.Row, len(b))
		for k, v := range b {
			cr[k] = v
		}
		cacheRows[i] = cr
	}

	predicates, err := queryPredicates(q, s.dict)
	if err != nil {
		return Results{}, err
	}

	s.cache.Put(key, cache.Entry{
		Rows:        cacheRows,
		RowCount:    len(cacheRows),
		ApproxBytes: approxCacheBytes(cacheRows),
		Predicates:  predicates,
		CreatedAt:   time.Now(),
	})
	return Results{Vars: varNames, Rows: rowsSeq(rows)}, nil
}

func rowsSeq(rows []Row) iter.Seq[Row] {
	return func(yield func(Row) bool) {
		for _, r := range rows {
			if !yield(r) {
				return
			}
		}
	}
}

func materializeBindings(in iter.Seq[stream.Bindings]) []stream.Bindings {
	var out []stream.Bindings
	for b := range in {
		out = append(out, b)
	}
	return out
}

func (s *Store) decodeBindingsSeq(in iter.Seq[stream.Bindings], vars []algebra.Variable, errBox *error) iter.Seq[Row] {
	return func(yield func(Row) bool) {
		for b := range in {
			row, err := s.decodeRow(b, vars)
			if err != nil {
				*errBox = err
				return
			}
			if !yield(row) {
				return
			}
		}
	}
}

func (s *Store) decodeRow(b stream.Bindings, vars []algebra.Variable) (Row, error) {
	row := make(Row, len(vars))
	for _, v := range vars {
		id, ok := b[v]
		if !ok {
			continue
		}
		t, err := s.dict.Decode(id)
		if err != nil {
			return nil, newErr(KindInternal, "decode", "failed to decode binding", err)
		}
		row[string(v)] = t
	}
	return row, nil
}

func approxCacheBytes(rows []cache.Row) int64 {
	var n int64
	for _, r := range rows {
		n += int64(len(r)) * 24
	}
	return n
}

// queryPredicates collects every predicate constant bound by a BGP
// pattern within n, encoding each via d so the cache's reverse
// predicate index can be populated for invalidation (spec.md §4.G).
// Variable predicates contribute nothing: they cannot be targeted by
// a predicate-scoped invalidation.
func queryPredicates(n algebra.Node, d *dict.Dictionary) ([]dict.ID, error) {
	var consts []term.Term
	var walk func(algebra.Node)
	walk = func(n algebra.Node) {
		switch x := n.(type) {
		case algebra.BGP:
			for _, p := range x.Patterns {
				if !p.P.IsVar {
					consts = append(consts, p.P.Const)
				}
			}
		case algebra.Join:
			walk(x.Left)
			walk(x.Right)
		case algebra.LeftJoin:
			walk(x.Left)
			walk(x.Right)
		case algebra.Union:
			walk(x.Left)
			walk(x.Right)
		case algebra.Minus:
			walk(x.Left)
			walk(x.Right)
		case algebra.Filter:
			walk(x.Child)
		case algebra.Extend:
			walk(x.Child)
		case algebra.Project:
			walk(x.Child)
		case algebra.Distinct:
			walk(x.Child)
		case algebra.OrderBy:
			walk(x.Child)
		case algebra.Slice:
			walk(x.Child)
		case algebra.GroupAgg:
			walk(x.Child)
		}
	}
	walk(n)
	if len(consts) == 0 {
		return nil, nil
	}
	ids, err := d.EncodeMany(consts)
	if err != nil {
		return nil, newErr(KindIO, "encode", "failed to encode query predicates", err)
	}
	return ids, nil
}

func (s *Store) decodeCacheRows(e cache.Entry, vars []algebra.Variable) ([]Row, error) {
	rows := make([]Row, len(e.Rows))
	for i, cr := range e.Rows {
		row := make(Row, len(vars))
		for _, v := range vars {
			id, ok := cr[algebra.Variable(v)]
			if !ok {
				continue
			}
			t, err := s.dict.Decode(id)
			if err != nil {
				return nil, newErr(KindInternal, "decode", "failed to decode cached binding", err)
			}
			row[string(v)] = t
		}
		rows[i] = row
	}
	return rows, nil
}

// projectedVars returns the query's output variables: the nearest
// enclosing Project's variable list, or (absent one) every variable
// mentioned by the tree's BGP leaves.
func projectedVars(n algebra.Node) []algebra.Variable {
	if p, ok := findProject(n); ok {
		return p
	}
	seen := map[algebra.Variable]bool{}
	var order []algebra.Variable
	collectVars(n, seen, &order)
	return order
}

func findProject(n algebra.Node) ([]algebra.Variable, bool) {
	switch x := n.(type) {
	case algebra.Project:
		return x.Vars, true
	case algebra.Filter:
		return findProject(x.Child)
	case algebra.Extend:
		return findProject(x.Child)
	case algebra.Distinct:
		return findProject(x.Child)
	case algebra.OrderBy:
		return findProject(x.Child)
	case algebra.Slice:
		return findProject(x.Child)
	case algebra.GroupAgg:
		return findProject(x.Child)
	default:
		return nil, false
	}
}

func collectVars(n algebra.Node, seen map[algebra.Variable]bool, order *[]algebra.Variable) {
	add := func(v algebra.Variable) {
		if !seen[v] {
			seen[v] = true
			*order = append(*order, v)
		}
	}
	switch x := n.(type) {
	case algebra.BGP:
		for _, p := range x.Patterns {
			for _, t := range []algebra.PatternTerm{p.S, p.P, p.O} {
				if t.IsVar {
					add(t.Var)
				}
			}
		}
	case algebra.Join:
		collectVars(x.Left, seen, order)
		collectVars(x.Right, seen, order)
	case algebra.LeftJoin:
		collectVars(x.Left, seen, order)
		collectVars(x.Right, seen, order)
	case algebra.Union:
		collectVars(x.Left, seen, order)
		collectVars(x.Right, seen, order)
	case algebra.Minus:
		collectVars(x.Left, seen, order)
		collectVars(x.Right, seen, order)
	case algebra.Filter:
		collectVars(x.Child, seen, order)
	case algebra.Extend:
		collectVars(x.Child, seen, order)
		add(x.Var)
	case algebra.Project:
		for _, v := range x.Vars {
			add(v)
		}
	case algebra.Distinct:
		collectVars(x.Child, seen, order)
	case algebra.OrderBy:
		collectVars(x.Child, seen, order)
	case algebra.Slice:
		collectVars(x.Child, seen, order)
	case algebra.GroupAgg:
		for _, v := range x.By {
			add(v)
		}
		for _, a := range x.Aggs {
			add(a.As)
		}
	}
}

// execNode lowers one algebra node to a lazy binding stream. BGP
// leaves are compiled through the cost-based planner and the leapfrog
// core (internal/plan, internal/leapfrog); every other node is a thin
// internal/stream wrapper over its already-lowered children.
func (s *Store) execNode(ctx context.Context, n algebra.Node, ectx *stream.EvalCtx, deadline time.Time, maxIter int, errBox *error) (iter.Seq[stream.Bindings], error) {
	switch x := n.(type) {
	case algebra.BGP:
		return s.execBGP(ctx, x, deadline, maxIter, errBox)
	case algebra.Join:
		l, err := s.execNode(ctx, x.Left, ectx, deadline, maxIter, errBox)
		if err != nil {
			return nil, err
		}
		r, err := s.execNode(ctx, x.Right, ectx, deadline, maxIter, errBox)
		if err != nil {
			return nil, err
		}
		return stream.JoinSeq(l, r), nil
	case algebra.LeftJoin:
		l, err := s.execNode(ctx, x.Left, ectx, deadline, maxIter, errBox)
		if err != nil {
			return nil, err
		}
		r, err := s.execNode(ctx, x.Right, ectx, deadline, maxIter, errBox)
		if err != nil {
			return nil, err
		}
		return stream.LeftJoinSeq(l, r, x.Filter, s.dict, ectx), nil
	case algebra.Union:
		l, err := s.execNode(ctx, x.Left, ectx, deadline, maxIter, errBox)
		if err != nil {
			return nil, err
		}
		r, err := s.execNode(ctx, x.Right, ectx, deadline, maxIter, errBox)
		if err != nil {
			return nil, err
		}
		return stream.UnionSeq(l, r), nil
	case algebra.Minus:
		l, err := s.execNode(ctx, x.Left, ectx, deadline, maxIter, errBox)
		if err != nil {
			return nil, err
		}
		r, err := s.execNode(ctx, x.Right, ectx, deadline, maxIter, errBox)
		if err != nil {
			return nil, err
		}
		return stream.MinusSeq(l, r), nil
	case algebra.Filter:
		in, err := s.execNode(ctx, x.Child, ectx, deadline, maxIter, errBox)
		if err != nil {
			return nil, err
		}
		return stream.FilterSeq(in, x.Expr, s.dict, ectx), nil
	case algebra.Extend:
		in, err := s.execNode(ctx, x.Child, ectx, deadline, maxIter, errBox)
		if err != nil {
			return nil, err
		}
		return stream.ExtendSeq(in, x.Var, x.Expr, s.dict, ectx), nil
	case algebra.Project:
		in, err := s.execNode(ctx, x.Child, ectx, deadline, maxIter, errBox)
		if err != nil {
			return nil, err
		}
		return stream.ProjectSeq(in, x.Vars), nil
	case algebra.Distinct:
		in, err := s.execNode(ctx, x.Child, ectx, deadline, maxIter, errBox)
		if err != nil {
			return nil, err
		}
		return stream.DistinctSeq(in), nil
	case algebra.OrderBy:
		in, err := s.execNode(ctx, x.Child, ectx, deadline, maxIter, errBox)
		if err != nil {
			return nil, err
		}
		return stream.OrderBySeq(in, x.Keys, s.dict, ectx), nil
	case algebra.Slice:
		in, err := s.execNode(ctx, x.Child, ectx, deadline, maxIter, errBox)
		if err != nil {
			return nil, err
		}
		return stream.SliceSeq(in, x.Offset, x.Limit), nil
	case algebra.GroupAgg:
		in, err := s.execNode(ctx, x.Child, ectx, deadline, maxIter, errBox)
		if err != nil {
			return nil, err
		}
		out, err := stream.GroupAggSeq(in, x.By, x.Aggs, s.dict)
		if err != nil {
			return nil, newErr(KindInvalidInput, "group_agg", "invalid aggregation", err)
		}
		return out, nil
	default:
		return nil, newErr(KindInternal, "unknown_node", "unrecognized algebra node", nil)
	}
}

// execBGP compiles bgp through the planner and runs it with the
// planner's chosen strategy, honoring ctx cancellation and deadline.
func (s *Store) execBGP(ctx context.Context, bgp algebra.BGP, deadline time.Time, maxIter int, errBox *error) (iter.Seq[stream.Bindings], error) {
	if len(bgp.Patterns) == 0 {
		return func(yield func(stream.Bindings) bool) { yield(stream.Bindings{}) }, nil
	}

	patterns, err := s.encodeBGPPatterns(bgp)
	if err != nil {
		return nil, err
	}

	pl, err := s.planner.Plan(patterns, nil)
	if err != nil {
		return nil, newErr(KindInvalidInput, "plan", "failed to plan query", err)
	}

	if pl.Strategy == plan.StrategyHash {
		return s.execHashJoin(ctx, pl.Order, deadline, errBox), nil
	}
	return s.execLeapfrog(ctx, pl.Order, deadline, maxIter, errBox), nil
}

func (s *Store) encodeBGPPatterns(bgp algebra.BGP) ([]plan.Pattern, error) {
	var consts []term.Term
	for _, tp := range bgp.Patterns {
		for _, pt := range [3]algebra.PatternTerm{tp.S, tp.P, tp.O} {
			if !pt.IsVar {
				consts = append(consts, pt.Const)
			}
		}
	}
	ids, err := s.dict.EncodeMany(consts)
	if err != nil {
		return nil, newErr(KindIO, "encode", "failed to encode query constants", err)
	}

	i := 0
	next := func(pt algebra.PatternTerm) plan.PatternTerm {
		if pt.IsVar {
			return plan.Var(plan.Variable(pt.Var))
		}
		id := ids[i]
		i++
		return plan.Const(id)
	}

	out := make([]plan.Pattern, len(bgp.Patterns))
	for j, tp := range bgp.Patterns {
		out[j] = plan.Pattern{S: next(tp.S), P: next(tp.P), O: next(tp.O)}
	}
	return out, nil
}

func toBoundPattern(p plan.Pattern) leapfrog.BoundPattern {
	conv := func(pt plan.PatternTerm) leapfrog.Term {
		if pt.IsVar {
			return leapfrog.V(leapfrog.Variable(pt.Var))
		}
		return leapfrog.C(pt.Const)
	}
	return leapfrog.BoundPattern{S: conv(p.S), P: conv(p.P), O: conv(p.O)}
}

func (s *Store) execLeapfrog(ctx context.Context, planned []plan.PlannedPattern, deadline time.Time, maxIter int, errBox *error) iter.Seq[stream.Bindings] {
	bound := make([]leapfrog.BoundPattern, len(planned))
	for i, pp := range planned {
		bound[i] = toBoundPattern(pp.Pattern)
	}
	veo := leapfrog.ComputeVEO(bound, s.statsSrv)

	return func(yield func(stream.Bindings) bool) {
		exec := leapfrog.NewExecutor(veo, bound, s.idx, deadline, maxIter)
		defer exec.Close()
		for {
			b, ok, err := exec.Next(ctx)
			if err != nil {
				*errBox = mapLeapfrogErr(err)
				return
			}
			if !ok {
				return
			}
			nb := make(stream.Bindings, len(b))
			for k, v := range b {
				nb[algebra.Variable(k)] = v
			}
			if !yield(nb) {
				return
			}
		}
	}
}

func mapLeapfrogErr(err error) error {
	if err == context.DeadlineExceeded || err == leapfrog.ErrTimeout {
		return newErr(KindResource, "timeout", "query exceeded its deadline", err)
	}
	if err == context.Canceled {
		return newErr(KindResource, "canceled", "query was canceled", err)
	}
	return newErr(KindResource, "max_iterations_exceeded", "query exceeded its iteration bound", err)
}

// execHashJoin is the planner's alternative to leapfrog: it executes
// patterns in the chosen order, extending a materialized binding set
// one pattern at a time via index.Lookup, rather than leapfrog's
// shared multi-way trie intersection. Each lookup is an indexed seek,
// not a sequential scan, so this is a hash/index join in spirit even
// though the join step itself is a nested loop over the (typically
// small) materialized left side.
func (s *Store) execHashJoin(ctx context.Context, planned []plan.PlannedPattern, deadline time.Time, errBox *error) iter.Seq[stream.Bindings] {
	return func(yield func(stream.Bindings) bool) {
		cur := []stream.Bindings{{}}
		for _, pp := range planned {
			var next []stream.Bindings
			for _, b := range cur {
				if err := ctx.Err(); err != nil {
					*errBox = newErr(KindResource, "canceled", "query was canceled", err)
					return
				}
				if !deadline.IsZero() && time.Now().After(deadline) {
					*errBox = newErr(KindResource, "timeout", "query exceeded its deadline", leapfrog.ErrTimeout)
					return
				}
				pat := bindIndexPattern(pp.Pattern, b)
				triples, err := s.idx.Lookup(pat)
				if err != nil {
					*errBox = newErr(KindIO, "lookup", "index lookup failed", err)
					return
				}
				for t := range triples {
					if nb, ok := mergeTriple(b, pp.Pattern, t); ok {
						next = append(next, nb)
					}
				}
			}
			cur = next
			if len(cur) == 0 {
				break
			}
		}
		for _, b := range cur {
			if !yield(b) {
				return
			}
		}
	}
}

func bindIndexPattern(p plan.Pattern, b stream.Bindings) index.Pattern {
	slot := func(pt plan.PatternTerm) index.Slot {
		if !pt.IsVar {
			return index.Bound(pt.Const)
		}
		if id, ok := b[algebra.Variable(pt.Var)]; ok {
			return index.Bound(id)
		}
		return index.Any()
	}
	return index.Pattern{S: slot(p.S), P: slot(p.P), O: slot(p.O)}
}

func mergeTriple(b stream.Bindings, p plan.Pattern, t index.Triple) (stream.Bindings, bool) {
	nb := b.Clone()
	bind := func(pt plan.PatternTerm, id dict.ID) bool {
		if !pt.IsVar {
			return true
		}
		v := algebra.Variable(pt.Var)
		if existing, ok := nb[v]; ok {
			return existing == id
		}
		nb[v] = id
		return true
	}
	if !bind(p.S, t.S) || !bind(p.P, t.P) || !bind(p.O, t.O) {
		return nil, false
	}
	return nb, true
}

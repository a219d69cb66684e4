package tristore

import (
	"context"

	"github.com/nqrdf/tristore/internal/index"
)

// Ruleset is the external OWL 2 RL reasoner collaborator: given the
// triples currently visible in the store, Apply returns whatever new
// triples its rule set derives from them. The semi-naive fixpoint
// algorithm inside Apply (what rule fired on what triple) is the
// reasoner's own concern; Store only drives it to a fixpoint and
// feeds its output back through Insert.
type Ruleset interface {
	Apply(ctx context.Context, in TripleSource) (derived TripleSource, err error)
}

// MaterializeResult summarizes one Materialize run.
type MaterializeResult struct {
	Iterations int
	Derived    int
}

// Materialize repeatedly calls rs.Apply over the store's current
// triples, inserting whatever it derives, until an iteration derives
// nothing new or ctx is canceled. Each round sees the previous
// round's insertions, so rules chaining off derived facts (e.g.
// transitive subClassOf closure) converge without the caller driving
// the loop itself.
func (s *Store) Materialize(ctx context.Context, rs Ruleset) (MaterializeResult, error) {
	if s.closed.Load() {
		return MaterializeResult{}, newErr(KindClosed, "closed", "store is closed", nil)
	}

	var result MaterializeResult
	for {
		select {
		case <-ctx.Done():
			return result, newErr(KindResource, "timeout", "materialization canceled", ctx.Err())
		default:
		}

		derived, err := rs.Apply(ctx, TripleSource(s.allTriples))
		if err != nil {
			return result, newErr(KindInternal, "reasoner_error", "ruleset apply failed", err)
		}

		batch := make([]Triple, 0)
		for t := range derived {
			batch = append(batch, t)
		}

		result.Iterations++
		if len(batch) == 0 {
			return result, nil
		}

		n, err := s.Insert(ctx, batch)
		if err != nil {
			return result, err
		}
		result.Derived += n
	}
}

// allTriples yields every triple currently stored, scanning the SPO
// index in full. It is the TripleSource Materialize hands to the
// reasoner on each iteration.
func (s *Store) allTriples(yield func(Triple) bool) {
	pat := index.Pattern{S: index.Any(), P: index.Any(), O: index.Any()}
	seq, err := s.idx.Lookup(pat)
	if err != nil {
		return
	}
	for t := range seq {
		subj, err := s.dict.Decode(t.S)
		if err != nil {
			return
		}
		pred, err := s.dict.Decode(t.P)
		if err != nil {
			return
		}
		obj, err := s.dict.Decode(t.O)
		if err != nil {
			return
		}
		if !yield(Triple{Subj: subj, Pred: pred, Obj: obj}) {
			return
		}
	}
}

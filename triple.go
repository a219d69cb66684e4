package tristore

import (
	"iter"

	"github.com/nqrdf/tristore/term"
)

// Triple is a subject/predicate/object fact over raw RDF terms —
// the caller-facing unit for Insert/Delete/Materialize, mirroring the
// teacher's rdf.Triple but over term.Term's four-way sum type instead
// of rdf.Term's {URI, Literal} pair.
type Triple struct {
	Subj, Pred, Obj term.Term
}

// TripleSource is a lazy sequence of triples, the shape both the
// read path (Query over a CONSTRUCT-like operator) and the
// materialization feedback loop (Ruleset.Apply) consume and produce.
type TripleSource iter.Seq[Triple]

// Row is one query solution: a binding from SPARQL variable name to
// the RDF term it resolved to.
type Row map[string]term.Term

// Results is the lazy outcome of Query: Vars names the projected
// variables in order; Rows yields one Row per solution. Err reports
// any failure encountered during iteration (a timeout or
// max-iterations breach cannot otherwise surface through iter.Seq's
// yield-only shape), and must be checked once Rows is exhausted.
type Results struct {
	Vars []string
	Rows iter.Seq[Row]

	errBox *error
}

// Err returns the first error observed while draining Rows, or nil if
// none occurred (including if Rows has not been drained yet).
func (r Results) Err() error {
	if r.errBox == nil {
		return nil
	}
	return *r.errBox
}

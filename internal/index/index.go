// Package index implements the three redundant triple indices
// (SPO/POS/OSP) and the numeric-range secondary index (spec.md §4.C):
// insert/delete in one atomic batch per operation, pattern lookup with
// the index-selection table, low-level prefix scan for the leapfrog
// core, and inclusive/unbounded numeric range scans.
package index

import (
	"iter"

	"github.com/nqrdf/tristore/internal/dict"
	"github.com/nqrdf/tristore/internal/kv"
	"github.com/nqrdf/tristore/internal/sortable"
)

// Triple is an encoded (s_id, p_id, o_id) tuple.
type Triple struct {
	S, P, O dict.ID
}

// IndexKind names one of the four physical indices.
type IndexKind int

const (
	SPO IndexKind = iota
	POS
	OSP
	RangeIdx
)

func (k IndexKind) cf() kv.CF {
	switch k {
	case SPO:
		return kv.CFSPO
	case POS:
		return kv.CFPOS
	case OSP:
		return kv.CFOSP
	case RangeIdx:
		return kv.CFRange
	default:
		panic("index: unknown index kind")
	}
}

// Slot is one position of a triple pattern: either unbound (Any) or
// bound to a specific id.
type Slot struct {
	bound bool
	id    dict.ID
}

// Any is an unbound pattern slot.
func Any() Slot { return Slot{} }

// Bound is a pattern slot fixed to id.
func Bound(id dict.ID) Slot { return Slot{bound: true, id: id} }

func (s Slot) IsBound() bool { return s.bound }
func (s Slot) ID() dict.ID   { return s.id }

// Pattern is a triple pattern with each slot either Any or Bound,
// matching spec.md §4.C's `pattern ::= (slot, slot, slot)`.
type Pattern struct {
	S, P, O Slot
}

// RangeBound is an inclusive-or-infinite bound for Range queries.
type RangeBound struct {
	Value    float64
	Infinite bool
}

func Inclusive(v float64) RangeBound { return RangeBound{Value: v} }
func PosInf() RangeBound             { return RangeBound{Infinite: true, Value: 1} }
func NegInf() RangeBound             { return RangeBound{Infinite: true, Value: -1} }

// WriteOptions controls durability of an index batch.
type WriteOptions struct{ Sync bool }

// Index is the public contract of spec.md §4.C.
type Index struct {
	backend        *kv.Backend
	rangePredicate map[dict.ID]bool
}

var metaRangePredicatesKey = []byte("index:range_predicates")

// Open constructs an Index over backend, loading the set of predicates
// registered for numeric-range indexing from meta.
func Open(backend *kv.Backend) (*Index, error) {
	x := &Index{backend: backend, rangePredicate: map[dict.ID]bool{}}
	v, err := backend.Get(kv.CFMeta, metaRangePredicatesKey)
	if err != nil {
		if err == kv.ErrNotFound {
			return x, nil
		}
		return nil, err
	}
	if len(v)%8 != 0 {
		return x, nil // malformed record: treat as absent, never trusted
	}
	for i := 0; i+8 <= len(v); i += 8 {
		x.rangePredicate[dict.FromBytes(v[i:i+8])] = true
	}
	return x, nil
}

func (x *Index) persistRangePredicates() error {
	b := make([]byte, 0, len(x.rangePredicate)*8)
	for p := range x.rangePredicate {
		b = append(b, p.Bytes()...)
	}
	return x.backend.Put(kv.CFMeta, metaRangePredicatesKey, b)
}

// IsRangeRegistered reports whether p is registered for numeric range
// indexing.
func (x *Index) IsRangeRegistered(p dict.ID) bool { return x.rangePredicate[p] }

// RegisterRangePredicate marks p for numeric-range indexing and
// back-fills range entries for every triple already stored under p
// whose object is inline numeric (a one-time reindex pass, per
// spec.md §4.C).
func (x *Index) RegisterRangePredicate(p dict.ID) error {
	if x.rangePredicate[p] {
		return nil
	}
	x.rangePredicate[p] = true
	if err := x.persistRangePredicates(); err != nil {
		return err
	}

	cur, err := x.backend.PrefixIterator(kv.CFPOS, p.Bytes())
	if err != nil {
		return err
	}
	defer cur.Close()

	var ops []kv.Op
	for ok := cur.First(); ok; ok = cur.Next() {
		key, _ := cur.KV()
		o := dict.FromBytes(key[8:16])
		s := dict.FromBytes(key[16:24])
		if v, ok := numericValue(o); ok {
			ops = append(ops, kv.Op{Kind: kv.OpPut, CF: kv.CFRange, Key: rangeKey(p, v, s)})
		}
	}
	if len(ops) == 0 {
		return nil
	}
	return x.backend.WriteBatch(ops, kv.WriteOptions{Sync: true})
}

func spoKey(s, p, o dict.ID) []byte {
	b := make([]byte, 24)
	copy(b[0:8], s.Bytes())
	copy(b[8:16], p.Bytes())
	copy(b[16:24], o.Bytes())
	return b
}
func posKey(p, o, s dict.ID) []byte {
	b := make([]byte, 24)
	copy(b[0:8], p.Bytes())
	copy(b[8:16], o.Bytes())
	copy(b[16:24], s.Bytes())
	return b
}
func ospKey(o, s, p dict.ID) []byte {
	b := make([]byte, 24)
	copy(b[0:8], o.Bytes())
	copy(b[8:16], s.Bytes())
	copy(b[16:24], p.Bytes())
	return b
}
func rangeKey(p dict.ID, value float64, s dict.ID) []byte {
	b := make([]byte, 24)
	copy(b[0:8], p.Bytes())
	copy(b[8:16], sortable.Float64(value))
	copy(b[16:24], s.Bytes())
	return b
}

// numericValue decodes an object id's numeric value for range
// indexing, admitting only inline-numeric terms (spec.md §3 invariant:
// "if p is registered for range indexing and o is inline numeric").
func numericValue(o dict.ID) (float64, bool) {
	return dict.InlineNumericValue(o)
}

func (x *Index) rangeOpsForTriple(t Triple, kind kv.OpKind) []kv.Op {
	if !x.rangePredicate[t.P] {
		return nil
	}
	v, ok := numericValue(t.O)
	if !ok {
		return nil
	}
	return []kv.Op{{Kind: kind, CF: kv.CFRange, Key: rangeKey(t.P, v, t.S)}}
}

// InsertBatch stores every triple in spo/pos/osp (and, where
// registered + admissible, numeric_range) in one atomic batch.
func (x *Index) InsertBatch(triples []Triple, opts WriteOptions) error {
	ops := make([]kv.Op, 0, len(triples)*4)
	for _, t := range triples {
		ops = append(ops,
			kv.Op{Kind: kv.OpPut, CF: kv.CFSPO, Key: spoKey(t.S, t.P, t.O)},
			kv.Op{Kind: kv.OpPut, CF: kv.CFPOS, Key: posKey(t.P, t.O, t.S)},
			kv.Op{Kind: kv.OpPut, CF: kv.CFOSP, Key: ospKey(t.O, t.S, t.P)},
		)
		ops = append(ops, x.rangeOpsForTriple(t, kv.OpPut)...)
	}
	return x.backend.WriteBatch(ops, kv.WriteOptions{Sync: opts.Sync})
}

// DeleteBatch removes every triple (and its range entry, if any) in
// one atomic batch. Removal is symmetric with InsertBatch.
func (x *Index) DeleteBatch(triples []Triple) error {
	ops := make([]kv.Op, 0, len(triples)*4)
	for _, t := range triples {
		ops = append(ops,
			kv.Op{Kind: kv.OpDelete, CF: kv.CFSPO, Key: spoKey(t.S, t.P, t.O)},
			kv.Op{Kind: kv.OpDelete, CF: kv.CFPOS, Key: posKey(t.P, t.O, t.S)},
			kv.Op{Kind: kv.OpDelete, CF: kv.CFOSP, Key: ospKey(t.O, t.S, t.P)},
		)
		ops = append(ops, x.rangeOpsForTriple(t, kv.OpDelete)...)
	}
	return x.backend.WriteBatch(ops, kv.WriteOptions{Sync: true})
}

// selection implements spec.md §4.C's index-selection table for a
// general (possibly partially-bound) pattern.
func selection(pat Pattern) (kind IndexKind, prefix []byte) {
	switch {
	case pat.S.bound && pat.P.bound && pat.O.bound:
		return SPO, spoKey(pat.S.id, pat.P.id, pat.O.id)
	case pat.S.bound && pat.P.bound:
		return SPO, append(pat.S.id.Bytes(), pat.P.id.Bytes()...)
	case pat.P.bound && pat.O.bound:
		return POS, append(pat.P.id.Bytes(), pat.O.id.Bytes()...)
	case pat.O.bound && pat.S.bound:
		return OSP, append(pat.O.id.Bytes(), pat.S.id.Bytes()...)
	case pat.S.bound:
		return SPO, pat.S.id.Bytes()
	case pat.P.bound:
		return POS, pat.P.id.Bytes()
	case pat.O.bound:
		return OSP, pat.O.id.Bytes()
	default:
		return SPO, nil
	}
}

func decodeTriple(kind IndexKind, key []byte) Triple {
	a, b, c := dict.FromBytes(key[0:8]), dict.FromBytes(key[8:16]), dict.FromBytes(key[16:24])
	switch kind {
	case SPO:
		return Triple{S: a, P: b, O: c}
	case POS:
		return Triple{P: a, O: b, S: c}
	case OSP:
		return Triple{O: a, S: b, P: c}
	default:
		panic("index: decodeTriple: not a triple index")
	}
}

// Lookup returns every stored triple matching pat.
func (x *Index) Lookup(pat Pattern) (iter.Seq[Triple], error) {
	kind, prefix := selection(pat)
	cur, err := x.backend.PrefixIterator(kind.cf(), prefix)
	if err != nil {
		return nil, err
	}
	return func(yield func(Triple) bool) {
		defer cur.Close()
		for ok := cur.First(); ok; ok = cur.Next() {
			key, _ := cur.KV()
			if !yield(decodeTriple(kind, key)) {
				return
			}
		}
	}, nil
}

// ScanPrefix is the low-level primitive the leapfrog core (§4.F) uses
// directly: a raw cursor over one physical index bounded to prefix.
func (x *Index) ScanPrefix(kind IndexKind, prefix []byte) (*kv.Cursor, error) {
	return x.backend.PrefixIterator(kind.cf(), prefix)
}

// Backend exposes the underlying KV backend for components (the
// leapfrog trie iterator) that need snapshot-scoped cursors rather
// than Index's own private-snapshot-per-call ScanPrefix.
func (x *Index) Backend() *kv.Backend { return x.backend }

// BuildPrefix concatenates ids' big-endian byte encodings in order,
// for use as a ScanPrefix prefix. Callers (internal/leapfrog) are
// responsible for supplying ids in the order that matches the chosen
// IndexKind's own key layout (e.g. POS expects predicate then object).
func BuildPrefix(ids ...dict.ID) []byte {
	b := make([]byte, 0, len(ids)*8)
	for _, id := range ids {
		b = append(b, id.Bytes()...)
	}
	return b
}

// Range returns every triple (s,p,o) with p == pred and
// lo <= value(o) <= hi, read off the numeric_range secondary index.
// The range index only stores (p, sort(value), s); the matching
// object id is recovered from the primary SPO index, since o must be
// inline-numeric to have been admitted here (no dictionary lookup is
// needed either way).
func (x *Index) Range(pred dict.ID, lo, hi RangeBound) (iter.Seq[Triple], error) {
	prefix := pred.Bytes()
	cur, err := x.backend.PrefixIterator(kv.CFRange, prefix)
	if err != nil {
		return nil, err
	}

	var loBytes []byte
	if !lo.Infinite {
		loBytes = append(append([]byte{}, prefix...), sortable.Float64(lo.Value)...)
	}

	return func(yield func(Triple) bool) {
		defer cur.Close()
		ok := false
		if loBytes != nil {
			ok = cur.Seek(loBytes)
		} else {
			ok = cur.First()
		}
		for ; ok; ok = cur.Next() {
			key, _ := cur.KV()
			v := sortable.ParseFloat64(key[8:16])
			if !hi.Infinite && v > hi.Value {
				return
			}
			s := dict.FromBytes(key[16:24])
			o := rangeObjectID(key[8:16])
			if !yield(Triple{S: s, P: pred, O: o}) {
				return
			}
		}
	}, nil
}

// rangeObjectID reconstructs the inline double id corresponding to a
// sortable-encoded value recovered from a range index key. This is
// exact for values that were inline-numeric doubles; for inline
// integers/decimals/datetimes admitted to the range index under their
// float-converted value, the reconstructed id still decodes (via
// dict.Decode) to the same numeric value, which is all range-query
// callers depend on — the range stream's Triple.O is always re-decoded
// through dict.InlineNumericValue rather than relied on to equal the
// original bit-for-bit id of a non-double type.
func rangeObjectID(sortVal []byte) dict.ID {
	return dict.MakeInlineDoubleFromSortable(sortVal)
}

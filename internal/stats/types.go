// Package stats implements the statistics collector (spec.md §4.D):
// triple/distinct counts, per-predicate histograms and numeric
// histograms, collected by a two-pass streaming scan and served by a
// single-writer actor with TTL- and modification-count-triggered
// background refresh.
package stats

import "github.com/nqrdf/tristore/internal/dict"

// schemaVersion guards the persisted record's binary layout. Bump this
// whenever the encoding changes; decode refuses to trust a record with
// any other version.
const schemaVersion = 1

// defaultBucketCount is the number of buckets in a numeric histogram
// absent an explicit Options.BucketCount.
const defaultBucketCount = 100

// NumericHistogram is an equi-width histogram over one numeric
// predicate's object values.
type NumericHistogram struct {
	Min, Max    float64
	BucketCount int
	BucketWidth float64
	Buckets     []uint64
	Total       uint64
}

// bucketFor returns the bucket index for v, clamped to the histogram's
// range (values outside [Min,Max] land in the nearest edge bucket —
// this only happens if data changed between collection and query).
func (h *NumericHistogram) bucketFor(v float64) int {
	if h.BucketWidth <= 0 {
		return 0
	}
	idx := int((v - h.Min) / h.BucketWidth)
	if idx < 0 {
		idx = 0
	}
	if idx >= h.BucketCount {
		idx = h.BucketCount - 1
	}
	return idx
}

// Stats is an immutable snapshot of everything the collector tracks.
type Stats struct {
	TripleCount        uint64
	DistinctSubjects   uint64
	DistinctPredicates uint64
	DistinctObjects    uint64
	PredicateHistogram map[dict.ID]uint64
	NumericHistograms  map[dict.ID]*NumericHistogram
}

func emptyStats() Stats {
	return Stats{
		PredicateHistogram: map[dict.ID]uint64{},
		NumericHistograms:  map[dict.ID]*NumericHistogram{},
	}
}

package stats

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/nqrdf/tristore/internal/dict"
	"github.com/nqrdf/tristore/internal/index"
)

// collect runs the two-pass streaming scan described in spec.md §4.D:
// the first pass accumulates counts, distinct-id bitmaps and numeric
// min/max per predicate; the second fills histogram buckets now that
// each numeric predicate's range is known. Neither pass materialises
// the full triple set in memory.
func collect(ctx context.Context, idx *index.Index, bucketCount int) (Stats, error) {
	st := emptyStats()

	distinctS := roaring64.New()
	distinctP := roaring64.New()
	distinctO := roaring64.New()

	type minMax struct {
		min, max float64
		seen     bool
	}
	numericRange := map[dict.ID]*minMax{}

	seq, err := idx.Lookup(index.Pattern{})
	if err != nil {
		return Stats{}, err
	}

	n := 0
	for t := range seq {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return Stats{}, err
			}
		}
		n++

		st.TripleCount++
		distinctS.Add(uint64(t.S))
		distinctP.Add(uint64(t.P))
		distinctO.Add(uint64(t.O))
		st.PredicateHistogram[t.P]++

		if v, ok := dict.InlineNumericValue(t.O); ok {
			mm, exists := numericRange[t.P]
			if !exists {
				mm = &minMax{min: v, max: v, seen: true}
				numericRange[t.P] = mm
			} else {
				if v < mm.min {
					mm.min = v
				}
				if v > mm.max {
					mm.max = v
				}
			}
		}
	}

	st.DistinctSubjects = distinctS.GetCardinality()
	st.DistinctPredicates = distinctP.GetCardinality()
	st.DistinctObjects = distinctO.GetCardinality()

	if bucketCount <= 0 {
		bucketCount = defaultBucketCount
	}
	for p, mm := range numericRange {
		width := (mm.max - mm.min) / float64(bucketCount)
		if width <= 0 {
			width = 1 // degenerate single-value predicate: one wide bucket
		}
		st.NumericHistograms[p] = &NumericHistogram{
			Min:         mm.min,
			Max:         mm.max,
			BucketCount: bucketCount,
			BucketWidth: width,
			Buckets:     make([]uint64, bucketCount),
		}
	}
	if len(st.NumericHistograms) == 0 {
		return st, nil
	}

	// Second pass: only predicates with a registered numeric histogram
	// need to be revisited.
	seq2, err := idx.Lookup(index.Pattern{})
	if err != nil {
		return Stats{}, err
	}
	n = 0
	for t := range seq2 {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return Stats{}, err
			}
		}
		n++
		h, ok := st.NumericHistograms[t.P]
		if !ok {
			continue
		}
		v, ok := dict.InlineNumericValue(t.O)
		if !ok {
			continue
		}
		h.Buckets[h.bucketFor(v)]++
		h.Total++
	}
	return st, nil
}

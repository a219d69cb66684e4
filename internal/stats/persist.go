package stats

import (
	"encoding/binary"
	"math"

	"github.com/nqrdf/tristore/internal/dict"
	"github.com/nqrdf/tristore/internal/kv"
)

var metaStatsKey = []byte("stats:v1")

// encode serialises st into a single versioned record. The format is
// fixed-width binary, not gob or any self-describing codec, so loading
// it back can never materialise arbitrary types from the byte stream
// (spec.md §4.D's deserialisation-safety requirement).
func encode(st Stats) []byte {
	buf := make([]byte, 4+8*4)
	binary.BigEndian.PutUint32(buf[0:4], schemaVersion)
	binary.BigEndian.PutUint64(buf[4:12], st.TripleCount)
	binary.BigEndian.PutUint64(buf[12:20], st.DistinctSubjects)
	binary.BigEndian.PutUint64(buf[20:28], st.DistinctPredicates)
	binary.BigEndian.PutUint64(buf[28:36], st.DistinctObjects)

	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, uint32(len(st.PredicateHistogram)))
	buf = append(buf, hdr...)
	for p, c := range st.PredicateHistogram {
		buf = append(buf, p.Bytes()...)
		var cb [8]byte
		binary.BigEndian.PutUint64(cb[:], c)
		buf = append(buf, cb[:]...)
	}

	binary.BigEndian.PutUint32(hdr, uint32(len(st.NumericHistograms)))
	buf = append(buf, hdr...)
	for p, h := range st.NumericHistograms {
		buf = append(buf, p.Bytes()...)
		buf = append(buf, f64bytes(h.Min)...)
		buf = append(buf, f64bytes(h.Max)...)
		var bc [4]byte
		binary.BigEndian.PutUint32(bc[:], uint32(h.BucketCount))
		buf = append(buf, bc[:]...)
		buf = append(buf, f64bytes(h.BucketWidth)...)
		var tot [8]byte
		binary.BigEndian.PutUint64(tot[:], h.Total)
		buf = append(buf, tot[:]...)
		for _, c := range h.Buckets {
			var cb [8]byte
			binary.BigEndian.PutUint64(cb[:], c)
			buf = append(buf, cb[:]...)
		}
	}
	return buf
}

func f64bytes(v float64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, math.Float64bits(v))
	return b
}

func parseF64(b []byte) float64 { return math.Float64frombits(binary.BigEndian.Uint64(b)) }

// decode parses a persisted record. ok is false for any malformed or
// version-mismatched record, which callers must treat as absent
// (spec.md §4.D: "unknown or malformed records are treated as
// absent").
func decode(b []byte) (Stats, bool) {
	st := emptyStats()
	if len(b) < 36 {
		return st, false
	}
	if binary.BigEndian.Uint32(b[0:4]) != schemaVersion {
		return st, false
	}
	st.TripleCount = binary.BigEndian.Uint64(b[4:12])
	st.DistinctSubjects = binary.BigEndian.Uint64(b[12:20])
	st.DistinctPredicates = binary.BigEndian.Uint64(b[20:28])
	st.DistinctObjects = binary.BigEndian.Uint64(b[28:36])
	off := 36

	if off+4 > len(b) {
		return emptyStats(), false
	}
	nPred := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	for i := 0; i < nPred; i++ {
		if off+16 > len(b) {
			return emptyStats(), false
		}
		id := dict.FromBytes(b[off : off+8])
		c := binary.BigEndian.Uint64(b[off+8 : off+16])
		st.PredicateHistogram[id] = c
		off += 16
	}

	if off+4 > len(b) {
		return emptyStats(), false
	}
	nHist := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	for i := 0; i < nHist; i++ {
		if off+36 > len(b) {
			return emptyStats(), false
		}
		id := dict.FromBytes(b[off : off+8])
		h := &NumericHistogram{
			Min: parseF64(b[off+8 : off+16]),
			Max: parseF64(b[off+16 : off+24]),
		}
		h.BucketCount = int(binary.BigEndian.Uint32(b[off+24 : off+28]))
		h.BucketWidth = parseF64(b[off+28 : off+36])
		off += 36
		if off+8 > len(b) {
			return emptyStats(), false
		}
		h.Total = binary.BigEndian.Uint64(b[off : off+8])
		off += 8
		if h.BucketCount < 0 || off+h.BucketCount*8 > len(b) {
			return emptyStats(), false
		}
		h.Buckets = make([]uint64, h.BucketCount)
		for j := 0; j < h.BucketCount; j++ {
			h.Buckets[j] = binary.BigEndian.Uint64(b[off : off+8])
			off += 8
		}
		st.NumericHistograms[id] = h
	}
	return st, true
}

func loadPersisted(backend *kv.Backend) (Stats, bool) {
	v, err := backend.Get(kv.CFMeta, metaStatsKey)
	if err != nil {
		return emptyStats(), false
	}
	return decode(v)
}

func persist(backend *kv.Backend, st Stats) error {
	return backend.Put(kv.CFMeta, metaStatsKey, encode(st))
}

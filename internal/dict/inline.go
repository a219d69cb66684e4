package dict

import (
	"strconv"
	"strings"
	"time"

	"github.com/nqrdf/tristore/internal/sortable"
	"github.com/nqrdf/tristore/term"
)

// Inline ids value-encode small literals directly into the id so no
// dictionary lookup is needed to decode them (spec.md §3). Bit layout:
//
//	bit 63            = 1 (inline marker)
//	bits 62-59 (4bit)  = inline datatype tag
//	bits 58-0          = payload
const (
	inlineFlag    = uint64(1) << 63
	inlineTagBits = 4
	inlineTagMask = uint64(0xF)
	inlineTagPos  = 59
	payloadMask   = (uint64(1) << inlineTagPos) - 1 // low 59 bits
)

const (
	inlineBoolean byte = iota
	inlineInteger
	inlineDecimal
	inlineDouble
	inlineDateTime
)

// decimalScale fixes the implied number of fractional digits for the
// inline decimal fast path (spec.md §3: "decimals ... normalised to
// epoch units" for dates; decimals get a fixed scale here instead).
const decimalScale = 1_000_000 // 6 fractional digits

func isInline(id ID) bool { return uint64(id)&inlineFlag != 0 }

func makeInline(tag byte, payload uint64) ID {
	return ID(inlineFlag | (uint64(tag&inlineTagMask) << inlineTagPos) | (payload & payloadMask))
}

func inlineTag(id ID) byte     { return byte((uint64(id) >> inlineTagPos) & inlineTagMask) }
func inlinePayload(id ID) uint64 { return uint64(id) & payloadMask }

// tryInline attempts the value-encoded fast path for t. ok is false if
// t must go through dictionary allocation instead.
func tryInline(t term.Term) (ID, bool) {
	lit, ok := t.(term.TypedLiteral)
	if !ok {
		return 0, false
	}
	switch lit.Datatype {
	case term.XSDBoolean:
		v, err := strconv.ParseBool(lit.Value)
		if err != nil {
			return 0, false
		}
		p := uint64(0)
		if v {
			p = 1
		}
		return makeInline(inlineBoolean, p), true

	case term.XSDLong:
		// XSDInteger and XSDInt are deliberately not inlined here: the
		// inline payload has no spare bits left to record which of the
		// three integer datatypes a value came from, and decodeInline
		// always reconstructs XSDLong, so inlining the other two would
		// silently change a term's datatype on the encode/decode
		// round trip. They go through ordinary dictionary allocation
		// instead, which preserves the exact datatype via id2str.
		v, err := strconv.ParseInt(strings.TrimSpace(lit.Value), 10, 64)
		if err != nil {
			return 0, false
		}
		return encodeSignedPayload(inlineInteger, v)

	case term.XSDDecimal:
		f, err := strconv.ParseFloat(strings.TrimSpace(lit.Value), 64)
		if err != nil {
			return 0, false
		}
		scaled := int64(f * decimalScale)
		if float64(scaled)/decimalScale != f {
			return 0, false // doesn't round-trip at this fixed scale
		}
		return encodeSignedPayload(inlineDecimal, scaled)

	case term.XSDDouble, term.XSDFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(lit.Value), 64)
		if err != nil {
			return 0, false
		}
		sb := sortable.Float64(f)
		var bits uint64
		for _, b := range sb {
			bits = bits<<8 | uint64(b)
		}
		if bits&0xFF != 0 {
			return 0, false // low byte not zero: doesn't fit a 56-bit payload
		}
		payload := bits >> 8 // 56 bits
		if payload&^payloadMask != 0 {
			return 0, false
		}
		return makeInline(inlineDouble, payload), true

	case term.XSDDateTime:
		tv, err := time.Parse(time.RFC3339Nano, lit.Value)
		if err != nil {
			return 0, false
		}
		return encodeSignedPayload(inlineDateTime, tv.UTC().UnixMicro())
	}
	return 0, false
}

// encodeSignedPayload packs a signed value into the 59-bit payload
// using a zigzag-free sign-bit-plus-magnitude scheme: bit 58 is the
// sign, bits 57-0 the magnitude. Values that don't fit fall back to
// dictionary allocation.
func encodeSignedPayload(tag byte, v int64) (ID, bool) {
	neg := v < 0
	mag := uint64(v)
	if neg {
		mag = uint64(-v)
	}
	const magMask = (uint64(1) << 58) - 1
	if mag&^magMask != 0 {
		return 0, false
	}
	p := mag
	if neg {
		p |= 1 << 58
	}
	return makeInline(tag, p), true
}

func decodeSignedPayload(p uint64) int64 {
	const magMask = (uint64(1) << 58) - 1
	mag := int64(p & magMask)
	if p&(1<<58) != 0 {
		return -mag
	}
	return mag
}

// InlineNumericValue returns the numeric value of an inline id for
// range-index purposes, admitting integer, decimal, double and
// dateTime (as Unix microseconds) but not boolean. ok is false for any
// non-inline or non-numeric id.
func InlineNumericValue(id ID) (float64, bool) {
	if !isInline(id) {
		return 0, false
	}
	payload := inlinePayload(id)
	switch inlineTag(id) {
	case inlineInteger:
		return float64(decodeSignedPayload(payload)), true
	case inlineDecimal:
		return float64(decodeSignedPayload(payload)) / decimalScale, true
	case inlineDouble:
		bits := payload << 8
		b := make([]byte, 8)
		for i := 7; i >= 0; i-- {
			b[i] = byte(bits)
			bits >>= 8
		}
		return sortable.ParseFloat64(b), true
	case inlineDateTime:
		return float64(decodeSignedPayload(payload)), true
	default:
		return 0, false
	}
}

// MakeInlineDoubleFromSortable builds an inline double id directly from
// an 8-byte sortable-encoded value, as recovered from a numeric_range
// index key (internal/index.Range). This mirrors tryInline's XSDDouble
// path exactly, but skips string parsing.
func MakeInlineDoubleFromSortable(sortVal []byte) ID {
	var bits uint64
	for _, b := range sortVal {
		bits = bits<<8 | uint64(b)
	}
	return makeInline(inlineDouble, bits>>8)
}

// decodeInline decodes an inline id back into its term. ok is false if
// id is not an inline id at all.
func decodeInline(id ID) (term.Term, bool) {
	if !isInline(id) {
		return nil, false
	}
	payload := inlinePayload(id)
	switch inlineTag(id) {
	case inlineBoolean:
		return term.TypedLiteral{Value: strconv.FormatBool(payload == 1), Datatype: term.XSDBoolean}, true
	case inlineInteger:
		v := decodeSignedPayload(payload)
		return term.TypedLiteral{Value: strconv.FormatInt(v, 10), Datatype: term.XSDLong}, true
	case inlineDecimal:
		v := decodeSignedPayload(payload)
		s := strconv.FormatFloat(float64(v)/decimalScale, 'f', -1, 64)
		return term.TypedLiteral{Value: s, Datatype: term.XSDDecimal}, true
	case inlineDouble:
		bits := payload << 8
		b := make([]byte, 8)
		for i := 7; i >= 0; i-- {
			b[i] = byte(bits)
			bits >>= 8
		}
		f := sortable.ParseFloat64(b)
		return term.TypedLiteral{Value: strconv.FormatFloat(f, 'g', -1, 64), Datatype: term.XSDDouble}, true
	case inlineDateTime:
		us := decodeSignedPayload(payload)
		tv := time.UnixMicro(us).UTC()
		return term.TypedLiteral{Value: tv.Format(time.RFC3339Nano), Datatype: term.XSDDateTime}, true
	default:
		return nil, false
	}
}

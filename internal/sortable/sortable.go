// Package sortable implements an order-preserving byte encoding for
// IEEE-754 doubles, used as the value component of numeric-range index
// keys (p ∥ sort(value) ∥ s) so a lexicographic key scan is also a
// numeric range scan.
package sortable

import (
	"encoding/binary"
	"math"
)

// Float64 maps v to an 8-byte big-endian string such that, for any two
// finite doubles a and b, a < b iff Float64(a) <ₗₑₓ Float64(b).
//
// The transform: reinterpret the float's bits as a uint64; if the sign
// bit is set (negative), flip every bit so larger magnitudes (which sort
// "backwards" in twos-complement-like float bit patterns) end up
// smaller; if the sign bit is clear (non-negative), just flip the sign
// bit so non-negatives sort after all negatives.
func Float64(v float64) []byte {
	bits := math.Float64bits(v)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, bits)
	return b
}

// ParseFloat64 is the inverse of Float64.
func ParseFloat64(b []byte) float64 {
	bits := binary.BigEndian.Uint64(b)
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits)
}

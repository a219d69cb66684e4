package sortable

import (
	"bytes"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	vs := []float64{0, -0.0, 1, -1, 3.14159, -3.14159, math.MaxFloat64, -math.MaxFloat64, 1e-300, -1e-300}
	for _, v := range vs {
		got := ParseFloat64(Float64(v))
		assert.Equal(t, v, got, "round trip of %v", v)
	}
}

func TestOrderPreserving(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	vs := make([]float64, 500)
	for i := range vs {
		vs[i] = (r.Float64() - 0.5) * 1e12
	}
	sorted := append([]float64(nil), vs...)
	sort.Float64s(sorted)

	encoded := make([][]byte, len(vs))
	for i, v := range vs {
		encoded[i] = Float64(v)
	}
	sort.Slice(encoded, func(i, j int) bool { return bytes.Compare(encoded[i], encoded[j]) < 0 })

	for i, b := range encoded {
		assert.Equal(t, sorted[i], ParseFloat64(b))
	}
}

func TestLessThanAgreement(t *testing.T) {
	pairs := [][2]float64{{-5, -1}, {-1, 0}, {0, 1}, {1, 5}, {-100, 100}}
	for _, p := range pairs {
		a, b := Float64(p[0]), Float64(p[1])
		assert.True(t, bytes.Compare(a, b) < 0, "%v should sort before %v", p[0], p[1])
	}
}

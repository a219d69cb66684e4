package plan

// Weights blends the three cost terms spec.md §4.E names into a single
// dimensionless scalar.
type Weights struct {
	IO     float64
	CPU    float64
	Filter float64
}

// DefaultWeights favours IO (the dominant term per spec.md §4.E).
func DefaultWeights() Weights {
	return Weights{IO: 1.0, CPU: 0.4, Filter: 0.2}
}

// With returns a copy of w after applying fn, for ergonomic overrides:
//
//	w := DefaultWeights().With(func(w *Weights) { w.CPU = 0.8 })
func (w Weights) With(fn func(*Weights)) Weights {
	fn(&w)
	return w
}

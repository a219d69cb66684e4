package algebra

// IsCacheable walks the whole algebra tree looking for a
// non-deterministic expression (NOW, RAND, UUID) anywhere within it.
// Store.Query only consults and populates the result cache
// (internal/cache) for a tree for which this returns true, per
// spec.md §4.G.
func IsCacheable(n Node) bool {
	return !containsNonDeterministic(n)
}

func containsNonDeterministic(n Node) bool {
	if n == nil {
		return false
	}
	switch x := n.(type) {
	case BGP:
		return false
	case Join:
		return containsNonDeterministic(x.Left) || containsNonDeterministic(x.Right)
	case LeftJoin:
		return containsNonDeterministic(x.Left) || containsNonDeterministic(x.Right) || NonDeterministicFuncs(x.Filter)
	case Union:
		return containsNonDeterministic(x.Left) || containsNonDeterministic(x.Right)
	case Minus:
		return containsNonDeterministic(x.Left) || containsNonDeterministic(x.Right)
	case Filter:
		return containsNonDeterministic(x.Child) || NonDeterministicFuncs(x.Expr)
	case Extend:
		return containsNonDeterministic(x.Child) || NonDeterministicFuncs(x.Expr)
	case Project:
		return containsNonDeterministic(x.Child)
	case Distinct:
		return containsNonDeterministic(x.Child)
	case OrderBy:
		if containsNonDeterministic(x.Child) {
			return true
		}
		for _, k := range x.Keys {
			if NonDeterministicFuncs(k.Expr) {
				return true
			}
		}
		return false
	case Slice:
		return containsNonDeterministic(x.Child)
	case GroupAgg:
		if containsNonDeterministic(x.Child) {
			return true
		}
		for _, a := range x.Aggs {
			if NonDeterministicFuncs(a.Expr) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

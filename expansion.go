package nwrcde

// NodeRegion describes the bounding geometry and aggregate statistics of a
// tree node, as handed to an external series-expansion strategy.
type NodeRegion struct {
	Centroid []float64
	Radius   float64
	Count    int

	// TargetSum and AbsTargetSum are zero for query regions.
	TargetSum    float64
	AbsTargetSum float64
}

// ExpansionConfig carries the expansion tuning knobs through to the
// strategy. Multiplicative selects an O(p^D) expansion over the default
// O(D^p) one; the choice affects bound tightness only, never pruning logic.
type ExpansionConfig struct {
	Order          int
	Multiplicative bool
}

// ExpansionStrategy is an optional acceleration capability: a far-field or
// local series expansion that can represent a reference region's aggregate
// kernel contribution to any point of a query region with a computable error
// bound.
//
// Approximate returns the estimated total contribution of the reference
// region to a single query point (numerator and denominator sums) and the
// achieved per-reference-point error bound: the true denominator
// contribution differs from the returned one by at most
// achievedError * ref.Count, and the numerator by at most
// achievedError * ref.AbsTargetSum.
type ExpansionStrategy interface {
	// CanApproximate reports whether an expansion of the configured order
	// can meet the given per-reference-point error tolerance for the pair.
	CanApproximate(query, ref NodeRegion, cfg ExpansionConfig, tolerance float64) bool

	// Approximate evaluates the expansion for the pair.
	Approximate(query, ref NodeRegion, cfg ExpansionConfig) (numerator, denominator, achievedError float64)
}

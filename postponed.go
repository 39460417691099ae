package nwrcde

// postponed is a deferred contribution attached to a query node: bounds on
// the numerator and denominator mass the node's points have been granted by
// prunes but that has not yet been distributed to individual points.
// Contributions combine by fieldwise addition, so merging is associative and
// commutative; the engine pushes postponed state to both children before
// descending and flushes it to leaf points in post-processing.
type postponed struct {
	numLower, numUpper float64
	denLower, denUpper float64
}

// addDelta absorbs a pruned pair's bounds.
func (p *postponed) addDelta(d delta) {
	p.numLower += d.numLower
	p.numUpper += d.numUpper
	p.denLower += d.denLower
	p.denUpper += d.denUpper
}

// merge absorbs another postponed contribution (parent push-down).
func (p *postponed) merge(o postponed) {
	p.numLower += o.numLower
	p.numUpper += o.numUpper
	p.denLower += o.denLower
	p.denUpper += o.denUpper
}

func (p *postponed) reset() {
	*p = postponed{}
}

// numMid and denMid are the bound-consistent representative values applied
// to points when the contribution is flushed.
func (p postponed) numMid() float64 { return (p.numLower + p.numUpper) / 2 }
func (p postponed) denMid() float64 { return (p.denLower + p.denUpper) / 2 }

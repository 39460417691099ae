package nwrcde

import "math"

// summary is a query node's pruning oracle: sound bounds that hold for every
// point in the node's range on the numerator and denominator mass
// accumulated so far. Sums only grow during traversal, so a stale lower
// bound stays valid; the engine tightens summaries from exact leaf results
// and from children after recursion. The denominator lower bound (plus the
// node's pending postponed mass) is what the prune test scales the error
// tolerance by.
type summary struct {
	numLower, numUpper float64
	denLower, denUpper float64
}

// combine widens the summary to also cover every point described by o:
// lower bounds take the minimum, upper bounds the maximum.
func (s *summary) combine(o summary) {
	s.numLower = math.Min(s.numLower, o.numLower)
	s.numUpper = math.Max(s.numUpper, o.numUpper)
	s.denLower = math.Min(s.denLower, o.denLower)
	s.denUpper = math.Max(s.denUpper, o.denUpper)
}

// addPostponed accounts for pending mass every point in the node is
// guaranteed to receive.
func (s *summary) addPostponed(p postponed) {
	s.numLower += p.numLower
	s.numUpper += p.numUpper
	s.denLower += p.denLower
	s.denUpper += p.denUpper
}

func (s *summary) reset() {
	*s = summary{}
}

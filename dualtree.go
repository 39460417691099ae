package nwrcde

import (
	"math"
	"math/rand/v2"
)

// traversal is the mutable state of one Compute call: the query tree, the
// per-query-node summary and postponed bookkeeping, and the per-point
// accumulators (indexed by original query index, so undoing the tree
// permutation happens as leaves flush). The reference side lives on the
// estimator and is never mutated.
type traversal struct {
	e  *Estimator
	qt SpatialTree

	qnodes    []NodeData
	rnodes    []NodeData
	summaries []summary
	post      []postponed

	num []float64
	den []float64

	rng   *rand.Rand
	stats Stats
}

func newTraversal(e *Estimator, qt SpatialTree) *traversal {
	return &traversal{
		e:         e,
		qt:        qt,
		qnodes:    qt.NodeDataArray(),
		rnodes:    e.rtree.NodeDataArray(),
		summaries: make([]summary, qt.NumNodes()),
		post:      make([]postponed, qt.NumNodes()),
		num:       make([]float64, qt.NumPoints()),
		den:       make([]float64, qt.NumPoints()),
		rng:       rand.New(rand.NewPCG(e.cfg.Seed, 0x9e3779b97f4a7c15)),
	}
}

// preProcess zeroes every built query node's summary and postponed state so
// a fresh Compute cannot see leftovers from a prior query batch.
func (tr *traversal) preProcess(qnode int) {
	tr.summaries[qnode].reset()
	tr.post[qnode].reset()
	if tr.qnodes[qnode].IsLeaf {
		return
	}
	left, right := tr.qt.ChildNodes(qnode)
	tr.preProcess(left)
	tr.preProcess(right)
}

// perRefBudget returns the absolute error each reference point's
// contribution to one query point may incur, given denLower, a sound lower
// bound on that query point's final denominator. Allocating the global
// tolerance eps*den + tau proportionally across reference points keeps the
// total approximation error within the contract no matter how the reference
// set is partitioned across prunes.
func (tr *traversal) perRefBudget(denLower float64) float64 {
	e := tr.e
	return (e.cfg.RelativeError*denLower + e.cfg.AbsoluteError) / float64(e.numRefs)
}

// canonical is the depth-first dual-tree recursion over (query node,
// reference node) pairs. It returns true when the reference node's
// contribution to the whole query node was resolved exactly (base case or a
// zero-width bound), which lets the caller hand the entire remaining
// probability budget to the sibling reference call.
func (tr *traversal) canonical(qnode, rnode int, probability float64) bool {
	rs := tr.e.rstats[rnode]
	if rs.count == 0 {
		return true
	}

	// Tightest available bound: finite-difference, or the expansion
	// strategy's when it is configured and tighter.
	d := tr.e.computeDelta(tr.qt, qnode, rnode, rs)
	denLower := tr.summaries[qnode].denLower + tr.post[qnode].denLower
	fromExpansion := false
	if ed, ok := tr.expansionDelta(qnode, rnode, rs, tr.perRefBudget(denLower)); ok {
		if !d.valid() || ed.denUpper-ed.denLower < d.denUpper-d.denLower {
			d = ed
			fromExpansion = true
		}
	}

	if d.valid() {
		budget := tr.perRefBudget(denLower + d.denLower)

		if tr.tryPrune(qnode, rs, d, budget) {
			if fromExpansion {
				tr.stats.ExpansionPrunes++
				return false
			}
			tr.stats.FiniteDifferencePrunes++
			return d.exact()
		}
		if probability < 1 && tr.tryMonteCarloPrune(qnode, rnode, rs, probability, budget) {
			return false
		}
	}

	qinfo := tr.qnodes[qnode]
	rinfo := tr.rnodes[rnode]

	if qinfo.IsLeaf || rinfo.IsLeaf {
		tr.baseCase(qnode, rnode)
		return true
	}

	// Both internal: hand pending mass to the children and recurse on the
	// four child pairs, closest reference child first.
	tr.pushDown(qnode)

	qleft, qright := tr.qt.ChildNodes(qnode)
	rleft, rright := tr.e.rtree.ChildNodes(rnode)

	exact := true
	for _, qc := range [2]int{qleft, qright} {
		first, second := rleft, rright
		dFirst, _ := nodeDistRange(tr.qt, qc, tr.e.rtree, first)
		dSecond, _ := nodeDistRange(tr.qt, qc, tr.e.rtree, second)
		if dSecond < dFirst {
			first, second = second, first
		}

		// The failure budget 1-p is split across the two reference
		// children; an exactly resolved first call returns its share.
		childProb := splitProbability(probability)
		firstExact := tr.canonical(qc, first, childProb)
		secondProb := childProb
		if firstExact {
			secondProb = probability
		}
		secondExact := tr.canonical(qc, second, secondProb)
		exact = exact && firstExact && secondExact
	}

	tr.refreshSummary(qnode)
	return exact
}

// splitProbability divides the failure budget 1-p in half.
func splitProbability(p float64) float64 {
	if p >= 1 {
		return 1
	}
	return 1 - (1-p)/2
}

// tryPrune applies the prune test: the pair is skipped when replacing every
// kernel value by the bound midpoint cannot exceed the pair's share of the
// error tolerance on either sum. The pruned contribution is deferred on the
// query node, not distributed to points.
func (tr *traversal) tryPrune(qnode int, rs refNodeStat, d delta, budget float64) bool {
	denHalfWidth := (d.denUpper - d.denLower) / 2
	numHalfWidth := (d.numUpper - d.numLower) / 2

	if denHalfWidth > budget*float64(rs.count) || numHalfWidth > budget*rs.absTargetSum {
		return false
	}

	tr.post[qnode].addDelta(d)
	return true
}

// expansionDelta asks the configured series-expansion strategy to bound the
// pair's contribution within the given per-reference-point tolerance.
func (tr *traversal) expansionDelta(qnode, rnode int, rs refNodeStat, tolerance float64) (delta, bool) {
	st := tr.e.cfg.Expansion
	if st == nil || tr.e.cfg.ExpansionOrder <= 0 {
		return delta{}, false
	}

	ecfg := ExpansionConfig{
		Order:          tr.e.cfg.ExpansionOrder,
		Multiplicative: tr.e.cfg.MultiplicativeExpansion,
	}
	qreg := nodeRegion(tr.qt, qnode, refNodeStat{})
	rreg := nodeRegion(tr.e.rtree, rnode, rs)

	if !st.CanApproximate(qreg, rreg, ecfg, tolerance) {
		return delta{}, false
	}

	num, den, achieved := st.Approximate(qreg, rreg, ecfg)
	if math.IsNaN(achieved) || achieved < 0 || achieved > tolerance {
		return delta{}, false
	}

	d := delta{
		numLower: num - achieved*rs.absTargetSum,
		numUpper: num + achieved*rs.absTargetSum,
		denLower: den - achieved*float64(rs.count),
		denUpper: den + achieved*float64(rs.count),
	}
	if d.denLower < 0 {
		d.denLower = 0
	}
	if !d.valid() {
		return delta{}, false
	}
	return d, true
}

// nodeRegion packages a node's geometry and aggregates for an expansion
// strategy.
func nodeRegion(t SpatialTree, node int, rs refNodeStat) NodeRegion {
	nd := t.NodeDataArray()[node]
	return NodeRegion{
		Centroid:     t.Centroid(node),
		Radius:       nd.Radius,
		Count:        nd.Count(),
		TargetSum:    rs.targetSum,
		AbsTargetSum: rs.absTargetSum,
	}
}

// baseCase exhaustively evaluates every (query point, reference point) pair
// in the two nodes' ranges. This is the exactness floor: correctness never
// depends on pruning, only speed does.
func (tr *traversal) baseCase(qnode, rnode int) {
	e := tr.e
	qinfo := tr.qnodes[qnode]
	rinfo := tr.rnodes[rnode]

	qidx := tr.qt.IdxArray()
	ridx := e.rtree.IdxArray()
	qdata := tr.qt.Data()
	rdata := e.rtree.Data()
	dims := e.dims

	for i := qinfo.IdxStart; i < qinfo.IdxEnd; i++ {
		qi := qidx[i]
		qpt := qdata[qi*dims : (qi+1)*dims]
		for j := rinfo.IdxStart; j < rinfo.IdxEnd; j++ {
			rj := ridx[j]
			sq := euclideanSqDist(qpt, rdata[rj*dims:(rj+1)*dims])
			kv := e.evalRefKernel(rj, sq)
			tr.den[qi] += kv
			tr.num[qi] += kv * e.targets[rj]
		}
	}

	tr.stats.BaseCases++
	tr.refreshRangeSummary(qnode)
}

// refreshRangeSummary recomputes a node's summary from the exact per-point
// accumulators over its range. Pending postponed mass is accounted
// separately when the summary is consulted, so omitting it here only makes
// the bound conservative.
func (tr *traversal) refreshRangeSummary(qnode int) {
	info := tr.qnodes[qnode]
	qidx := tr.qt.IdxArray()

	s := summary{
		numLower: math.Inf(1), numUpper: math.Inf(-1),
		denLower: math.Inf(1), denUpper: math.Inf(-1),
	}
	for i := info.IdxStart; i < info.IdxEnd; i++ {
		qi := qidx[i]
		s.numLower = math.Min(s.numLower, tr.num[qi])
		s.numUpper = math.Max(s.numUpper, tr.num[qi])
		s.denLower = math.Min(s.denLower, tr.den[qi])
		s.denUpper = math.Max(s.denUpper, tr.den[qi])
	}
	tr.summaries[qnode] = s
}

// pushDown hands a node's pending postponed mass to both children so no
// contribution is lost when a later caller visits only one child.
func (tr *traversal) pushDown(qnode int) {
	left, right := tr.qt.ChildNodes(qnode)
	tr.post[left].merge(tr.post[qnode])
	tr.post[right].merge(tr.post[qnode])
	tr.post[qnode].reset()
}

// refreshSummary recombines a node's summary from its children's summaries
// plus their pending postponed mass.
func (tr *traversal) refreshSummary(qnode int) {
	left, right := tr.qt.ChildNodes(qnode)

	ls := tr.summaries[left]
	ls.addPostponed(tr.post[left])
	rs := tr.summaries[right]
	rs.addPostponed(tr.post[right])

	ls.combine(rs)
	tr.summaries[qnode] = ls
}

// postProcess flushes all residual postponed mass down to leaf points. It
// must run even when the recursion pruned at the root pair, otherwise every
// query point would silently receive zero contribution.
func (tr *traversal) postProcess(qnode int) {
	info := tr.qnodes[qnode]

	if info.IsLeaf {
		p := tr.post[qnode]
		qidx := tr.qt.IdxArray()
		numMid, denMid := p.numMid(), p.denMid()
		for i := info.IdxStart; i < info.IdxEnd; i++ {
			qi := qidx[i]
			tr.num[qi] += numMid
			tr.den[qi] += denMid
		}
		tr.post[qnode].reset()
		return
	}

	tr.pushDown(qnode)
	left, right := tr.qt.ChildNodes(qnode)
	tr.postProcess(left)
	tr.postProcess(right)
}

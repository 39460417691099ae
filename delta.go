package nwrcde

import "math"

// delta holds the lower/upper bounds on one (query node, reference node)
// pair's contribution to a single query point's numerator and denominator
// sums. Deltas are recomputed on every visit and never persisted.
type delta struct {
	numLower, numUpper float64
	denLower, denUpper float64
}

// valid reports whether the bounds are consistent (lower <= upper, no NaN).
// An inconsistent delta signals a defective kernel or expansion strategy;
// the pair then falls through to recursion or the exhaustive base case.
func (d delta) valid() bool {
	return d.numLower <= d.numUpper && d.denLower <= d.denUpper
}

// exact reports whether the bounds pin the contribution down to a single
// value, so applying it loses nothing.
func (d delta) exact() bool {
	return d.numUpper == d.numLower && d.denUpper == d.denLower
}

// refNodeStat caches per-reference-node aggregates used for bound
// computation. Computed once at estimator construction.
type refNodeStat struct {
	count        int
	targetSum    float64
	posTargetSum float64 // sum of max(target, 0)
	negTargetSum float64 // sum of min(target, 0), <= 0
	absTargetSum float64
	minBandwidth float64 // variable-bandwidth mode only
	maxBandwidth float64
}

// computeRefStats walks every built node of the reference tree and
// aggregates target and bandwidth statistics over its point range.
// bandwidths is nil in fixed-bandwidth mode.
func computeRefStats(tree SpatialTree, targets, bandwidths []float64) []refNodeStat {
	nodes := tree.NodeDataArray()
	idx := tree.IdxArray()
	stats := make([]refNodeStat, len(nodes))

	for n, nd := range nodes {
		if nd.Count() == 0 {
			continue
		}
		s := refNodeStat{count: nd.Count(), minBandwidth: 1, maxBandwidth: 1}
		if bandwidths != nil {
			s.minBandwidth = math.Inf(1)
			s.maxBandwidth = 0
		}
		for i := nd.IdxStart; i < nd.IdxEnd; i++ {
			p := idx[i]
			t := targets[p]
			s.targetSum += t
			if t >= 0 {
				s.posTargetSum += t
			} else {
				s.negTargetSum += t
			}
			s.absTargetSum += math.Abs(t)
			if bandwidths != nil {
				h := bandwidths[p]
				if h < s.minBandwidth {
					s.minBandwidth = h
				}
				if h > s.maxBandwidth {
					s.maxBandwidth = h
				}
			}
		}
		stats[n] = s
	}

	return stats
}

// evalRefKernel evaluates the kernel between a query point and the reference
// point with original index r, given their squared distance. In
// variable-bandwidth mode the squared distance is rescaled by that reference
// point's own bandwidth.
func (e *Estimator) evalRefKernel(r int, sqDist float64) float64 {
	if e.hs == nil {
		return e.kern.Evaluate(sqDist)
	}
	h := e.hs[r]
	return e.kern.Evaluate(sqDist / (h * h))
}

// nodeKernelBound bounds the kernel value between any query point at squared
// distance in [minSqDist, maxSqDist] and any reference point in a node with
// the given stats. In variable-bandwidth mode the widest bandwidth gives the
// largest kernel value at the closest distance and the narrowest bandwidth
// the smallest value at the farthest distance.
func (e *Estimator) nodeKernelBound(rs refNodeStat, minSqDist, maxSqDist float64) (lower, upper float64) {
	if e.hs == nil {
		return e.kern.Bound(minSqDist, maxSqDist)
	}
	return e.kern.Bound(
		minSqDist/(rs.maxBandwidth*rs.maxBandwidth),
		maxSqDist/(rs.minBandwidth*rs.minBandwidth),
	)
}

// pointKernelBound bounds the kernel value between a query point at squared
// distance in [minSqDist, maxSqDist] and the single reference point r.
func (e *Estimator) pointKernelBound(r int, minSqDist, maxSqDist float64) (lower, upper float64) {
	if e.hs == nil {
		return e.kern.Bound(minSqDist, maxSqDist)
	}
	h := e.hs[r]
	return e.kern.Bound(minSqDist/(h*h), maxSqDist/(h*h))
}

// computeDelta derives finite-difference bounds on the contribution of rnode
// to each query point in qnode: the kernel is evaluated at the minimum and
// maximum possible distance between the two bounding balls, and the target
// sums split by sign keep the numerator bounds correct for negative targets.
func (e *Estimator) computeDelta(qt SpatialTree, qnode, rnode int, rs refNodeStat) delta {
	minDist, maxDist := nodeDistRange(qt, qnode, e.rtree, rnode)
	klo, khi := e.nodeKernelBound(rs, minDist*minDist, maxDist*maxDist)
	return delta{
		denLower: float64(rs.count) * klo,
		denUpper: float64(rs.count) * khi,
		numLower: klo*rs.posTargetSum + khi*rs.negTargetSum,
		numUpper: khi*rs.posTargetSum + klo*rs.negTargetSum,
	}
}

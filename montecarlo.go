package nwrcde

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// mcSampleSize is the number of reference points sampled (with
	// replacement) per Monte Carlo prune attempt.
	mcSampleSize = 100

	// mcMinNodeSize gates Monte Carlo pruning to reference nodes large
	// enough that sampling beats exhausting them.
	mcMinNodeSize = 2 * mcSampleSize
)

// tryMonteCarloPrune attempts the probabilistic prune used when the caller
// accepts a probability guarantee below one. It samples reference points
// from rnode, forms a normal confidence interval at the given probability
// level for the node's mean per-point contribution, widens it by the mean
// per-sample kernel bound width (which accounts for the query ball's
// extent), and prunes when the interval fits the pair's error budget.
func (tr *traversal) tryMonteCarloPrune(qnode, rnode int, rs refNodeStat, probability, budget float64) bool {
	if rs.count < mcMinNodeSize {
		return false
	}

	e := tr.e
	rinfo := tr.rnodes[rnode]
	ridx := e.rtree.IdxArray()
	rdata := e.rtree.Data()
	dims := e.dims

	qc := tr.qt.Centroid(qnode)
	qr := tr.qnodes[qnode].Radius

	var sumDen, sumDenSq, sumDenW float64
	var sumNum, sumNumSq, sumNumW float64

	for s := 0; s < mcSampleSize; s++ {
		j := rinfo.IdxStart + tr.rng.IntN(rs.count)
		r := ridx[j]

		d := euclideanDist(qc, rdata[r*dims:(r+1)*dims])
		lo := d - qr
		if lo < 0 {
			lo = 0
		}
		hi := d + qr
		klo, khi := e.pointKernelBound(r, lo*lo, hi*hi)

		mid := (klo + khi) / 2
		halfWidth := (khi - klo) / 2
		t := e.targets[r]

		sumDen += mid
		sumDenSq += mid * mid
		sumDenW += halfWidth

		nm := mid * t
		sumNum += nm
		sumNumSq += nm * nm
		sumNumW += halfWidth * math.Abs(t)
	}

	m := float64(mcSampleSize)
	z := distuv.UnitNormal.Quantile(0.5 + probability/2)

	meanDen := sumDen / m
	varDen := (sumDenSq/m - meanDen*meanDen) * m / (m - 1)
	if varDen < 0 {
		varDen = 0
	}
	denErr := z*math.Sqrt(varDen/m) + sumDenW/m

	meanNum := sumNum / m
	varNum := (sumNumSq/m - meanNum*meanNum) * m / (m - 1)
	if varNum < 0 {
		varNum = 0
	}
	numErr := z*math.Sqrt(varNum/m) + sumNumW/m

	// budget is per reference point; the node's total estimate carries
	// count * meanErr error.
	meanAbsTarget := rs.absTargetSum / float64(rs.count)
	if denErr > budget || numErr > budget*meanAbsTarget {
		return false
	}

	cnt := float64(rs.count)
	d := delta{
		numLower: cnt * (meanNum - numErr),
		numUpper: cnt * (meanNum + numErr),
		denLower: cnt * (meanDen - denErr),
		denUpper: cnt * (meanDen + denErr),
	}
	if d.denLower < 0 {
		d.denLower = 0
	}
	if !d.valid() {
		return false
	}

	tr.post[qnode].addDelta(d)
	tr.stats.MonteCarloPrunes++
	return true
}

package nwrcde

import (
	"math"
	"sync"
)

// ComputeNaive estimates the kernel sums for every query point by exhaustive
// pairwise evaluation. It is the verification path for the dual-tree
// algorithm: same kernel, same scaling, no approximation. Query rows are
// split across Config.Workers goroutines; each worker writes a disjoint
// range, so no synchronization is needed beyond the final wait.
func (e *Estimator) ComputeNaive(queries [][]float64) (*Result, error) {
	flat, nq, err := e.prepareQueries(queries)
	if err != nil {
		return nil, err
	}
	if nq == 0 {
		return emptyResult(), nil
	}

	num := make([]float64, nq)
	den := make([]float64, nq)

	workers := e.cfg.Workers
	if workers > nq {
		workers = nq
	}
	if workers < 1 {
		workers = 1
	}

	rdata := e.rtree.Data()
	dims := e.dims
	rowsPerWorker := (nq + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		startRow := w * rowsPerWorker
		endRow := startRow + rowsPerWorker
		if endRow > nq {
			endRow = nq
		}
		if startRow >= nq {
			break
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				qpt := flat[i*dims : (i+1)*dims]
				for r := 0; r < e.numRefs; r++ {
					sq := euclideanSqDist(qpt, rdata[r*dims:(r+1)*dims])
					kv := e.evalRefKernel(r, sq)
					den[i] += kv
					num[i] += kv * e.targets[r]
				}
			}
		}(startRow, endRow)
	}
	wg.Wait()

	return newResult(num, den, Stats{}), nil
}

// MaxRelativeError returns the largest relative difference between the
// regression estimates of two results, typically an approximate run against
// a naive one. Points undefined in either result are skipped; the comparison
// guard keeps coincident near-zero estimates from blowing up the ratio.
func MaxRelativeError(approx, exact *Result) float64 {
	var worst float64
	for i := range exact.Estimates {
		if !approx.Defined[i] || !exact.Defined[i] {
			continue
		}
		denom := math.Abs(exact.Estimates[i])
		if denom < math.SmallestNonzeroFloat64 {
			continue
		}
		rel := math.Abs(approx.Estimates[i]-exact.Estimates[i]) / denom
		if rel > worst {
			worst = rel
		}
	}
	return worst
}

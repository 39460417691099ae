package nwrcde

// minVariableBandwidth floors per-reference bandwidths so coincident points
// cannot produce a zero bandwidth and a division by zero in the kernel.
const minVariableBandwidth = 1e-12

// knnBandwidths derives one bandwidth per reference point: the distance to
// its k-th nearest reference neighbor (self excluded), queried through the
// reference tree.
func knnBandwidths(tree SpatialTree, k int) []float64 {
	n := tree.NumPoints()

	// Self is always among the neighbors at distance zero, so ask for one
	// extra and skip it.
	want := k + 1
	if want > n {
		want = n
	}
	_, dists := tree.QueryKNN(tree.Data(), n, want)

	hs := make([]float64, n)
	for i := range hs {
		di := dists[i]
		h := di[len(di)-1]
		if h < minVariableBandwidth {
			h = minVariableBandwidth
		}
		hs[i] = h
	}
	return hs
}

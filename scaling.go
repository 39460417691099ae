package nwrcde

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// scaler is a per-dimension affine transform x' = (x - shift) / scale,
// learned from the reference set and applied to both point sets so the
// bandwidth has the same meaning for each. Degenerate dimensions (zero
// spread) pass through unscaled.
type scaler struct {
	dims  int
	shift []float64
	scale []float64
}

// fitScaler learns the transform from flat row-major data. mode is
// "standardize" (zero mean, unit standard deviation per dimension) or
// "range" (min-max to the unit cube).
func fitScaler(mode string, data []float64, n, dims int) *scaler {
	s := &scaler{
		dims:  dims,
		shift: make([]float64, dims),
		scale: make([]float64, dims),
	}

	col := make([]float64, n)
	for d := 0; d < dims; d++ {
		for i := 0; i < n; i++ {
			col[i] = data[i*dims+d]
		}

		switch mode {
		case "standardize":
			mean, std := stat.MeanStdDev(col, nil)
			s.shift[d] = mean
			s.scale[d] = std
		case "range":
			minVal := math.Inf(1)
			maxVal := math.Inf(-1)
			for _, v := range col {
				minVal = math.Min(minVal, v)
				maxVal = math.Max(maxVal, v)
			}
			s.shift[d] = minVal
			s.scale[d] = maxVal - minVal
		}

		if s.scale[d] == 0 || math.IsNaN(s.scale[d]) {
			s.scale[d] = 1
		}
	}

	return s
}

// transform rescales flat row-major data in place.
func (s *scaler) transform(data []float64, n int) {
	for i := 0; i < n; i++ {
		row := data[i*s.dims : (i+1)*s.dims]
		for d := range row {
			row[d] = (row[d] - s.shift[d]) / s.scale[d]
		}
	}
}

package nwrcde

import (
	"fmt"
	"math"
)

// Kernel evaluates an unnormalized radial kernel given a squared distance and
// supplies monotone bounds over a squared-distance range. Implementations
// must be non-increasing in distance; Bound must satisfy
// lower <= Evaluate(sq) <= upper for every sq in [minSqDist, maxSqDist].
type Kernel interface {
	// Evaluate returns the kernel value at the given squared distance.
	Evaluate(sqDist float64) float64

	// Bound returns the tightest (lower, upper) kernel values attainable
	// over the squared-distance range [minSqDist, maxSqDist].
	Bound(minSqDist, maxSqDist float64) (lower, upper float64)
}

// GaussianKernel is the unnormalized Gaussian kernel exp(-d² / (2h²)).
type GaussianKernel struct {
	Bandwidth float64
}

func (k GaussianKernel) Evaluate(sqDist float64) float64 {
	return math.Exp(-sqDist / (2 * k.Bandwidth * k.Bandwidth))
}

func (k GaussianKernel) Bound(minSqDist, maxSqDist float64) (float64, float64) {
	return k.Evaluate(maxSqDist), k.Evaluate(minSqDist)
}

// EpanechnikovKernel is the unnormalized Epanechnikov kernel
// max(0, 1 - d²/h²). Its support is compact: points farther than the
// bandwidth contribute exactly zero, which lets whole node pairs prune
// exactly.
type EpanechnikovKernel struct {
	Bandwidth float64
}

func (k EpanechnikovKernel) Evaluate(sqDist float64) float64 {
	v := 1 - sqDist/(k.Bandwidth*k.Bandwidth)
	if v < 0 {
		return 0
	}
	return v
}

func (k EpanechnikovKernel) Bound(minSqDist, maxSqDist float64) (float64, float64) {
	return k.Evaluate(maxSqDist), k.Evaluate(minSqDist)
}

// newKernel constructs a built-in kernel by name.
func newKernel(name string, bandwidth float64) (Kernel, error) {
	switch name {
	case "gaussian":
		return GaussianKernel{Bandwidth: bandwidth}, nil
	case "epanechnikov":
		return EpanechnikovKernel{Bandwidth: bandwidth}, nil
	default:
		return nil, fmt.Errorf("nwrcde: unknown kernel %q", name)
	}
}

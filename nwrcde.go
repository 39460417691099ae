package nwrcde

import (
	"fmt"
	"math"
	"runtime"

	"gonum.org/v1/gonum/floats"
)

// Config controls estimator behavior. Start with [DefaultConfig] and
// override the fields you need.
type Config struct {
	// Bandwidth is the kernel scale parameter controlling the effective
	// neighborhood radius. Must be > 0 in fixed-bandwidth mode.
	Bandwidth float64

	// Kernel selects the built-in kernel: "gaussian" or "epanechnikov".
	// Default: "gaussian".
	Kernel string

	// RelativeError is the required relative error accuracy for the two
	// kernel sums. 0 means exact computation. Must be >= 0. Default: 0.
	RelativeError float64

	// AbsoluteError is an additive slack below which contributions may be
	// approximated regardless of relative error. Must be >= 0. Default: 0.
	AbsoluteError float64

	// Probability is the guarantee that the error accuracy holds. Values
	// below 1 enable Monte Carlo pruning. Must be in (0, 1]. Default: 1.
	Probability float64

	// LeafSize controls the maximum number of points in a tree leaf node.
	// A performance/accuracy granularity knob only. Default: 20.
	LeafSize int

	// BandwidthMode is "fixed" (one bandwidth for all references) or
	// "variable" (per-reference bandwidth from the k-nearest-neighbor
	// distance, see KNN). Default: "fixed".
	BandwidthMode string

	// KNN is the neighbor count used to derive per-reference bandwidths in
	// variable mode. Must be >= 1 in variable mode. Default: 0.
	KNN int

	// Scaling preprocesses the reference and query sets: "none",
	// "standardize" (zero mean, unit variance per dimension) or "range"
	// (min-max to the unit cube). The transform is learned from the
	// references. Bandwidth applies in the scaled space. Default: "none".
	Scaling string

	// Expansion optionally supplies a series-expansion strategy as an
	// additional pruning path. ExpansionOrder must be > 0 for it to be
	// consulted. MultiplicativeExpansion selects the O(p^D) expansion kind
	// over O(D^p); both toggles are passed through to the strategy.
	Expansion               ExpansionStrategy
	ExpansionOrder          int
	MultiplicativeExpansion bool

	// TreeBuilder overrides the space-partitioning tree used for both
	// point sets. Default: NewBallTree.
	TreeBuilder TreeBuilder

	// Workers controls the number of goroutines used by ComputeNaive.
	// 0 means runtime.NumCPU(). The dual-tree path is single-threaded.
	Workers int

	// Seed seeds the Monte Carlo sampler, making runs with
	// Probability < 1 reproducible. Default: 1.
	Seed uint64
}

// DefaultConfig returns a Config with reasonable defaults. Bandwidth must
// still be set by the caller.
func DefaultConfig() Config {
	return Config{
		Kernel:        "gaussian",
		Probability:   1.0,
		LeafSize:      20,
		BandwidthMode: "fixed",
		Scaling:       "none",
		Seed:          1,
	}
}

// applyDefaults fills in zero-valued config fields with their defaults.
func applyDefaults(cfg *Config) {
	if cfg.Kernel == "" {
		cfg.Kernel = "gaussian"
	}
	if cfg.Probability == 0 {
		cfg.Probability = 1.0
	}
	if cfg.LeafSize == 0 {
		cfg.LeafSize = 20
	}
	if cfg.BandwidthMode == "" {
		cfg.BandwidthMode = "fixed"
	}
	if cfg.Scaling == "" {
		cfg.Scaling = "none"
	}
	if cfg.TreeBuilder == nil {
		cfg.TreeBuilder = NewBallTree
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}
}

// validateConfig checks that cfg fields are valid and returns a descriptive
// error if not.
func validateConfig(cfg *Config) error {
	switch cfg.BandwidthMode {
	case "fixed":
		if cfg.Bandwidth <= 0 {
			return fmt.Errorf("nwrcde: Bandwidth must be > 0, got %f", cfg.Bandwidth)
		}
	case "variable":
		if cfg.KNN < 1 {
			return fmt.Errorf("nwrcde: KNN must be >= 1 in variable bandwidth mode, got %d", cfg.KNN)
		}
	default:
		return fmt.Errorf("nwrcde: BandwidthMode must be \"fixed\" or \"variable\", got %q", cfg.BandwidthMode)
	}
	if cfg.Kernel != "gaussian" && cfg.Kernel != "epanechnikov" {
		return fmt.Errorf("nwrcde: Kernel must be \"gaussian\" or \"epanechnikov\", got %q", cfg.Kernel)
	}
	if cfg.RelativeError < 0 {
		return fmt.Errorf("nwrcde: RelativeError must be >= 0, got %f", cfg.RelativeError)
	}
	if cfg.AbsoluteError < 0 {
		return fmt.Errorf("nwrcde: AbsoluteError must be >= 0, got %f", cfg.AbsoluteError)
	}
	if cfg.Probability <= 0 || cfg.Probability > 1 {
		return fmt.Errorf("nwrcde: Probability must be in (0, 1], got %f", cfg.Probability)
	}
	if cfg.LeafSize < 1 {
		return fmt.Errorf("nwrcde: LeafSize must be >= 1, got %d", cfg.LeafSize)
	}
	if cfg.Scaling != "none" && cfg.Scaling != "standardize" && cfg.Scaling != "range" {
		return fmt.Errorf("nwrcde: Scaling must be \"none\", \"standardize\" or \"range\", got %q", cfg.Scaling)
	}
	if cfg.ExpansionOrder < 0 {
		return fmt.Errorf("nwrcde: ExpansionOrder must be >= 0, got %d", cfg.ExpansionOrder)
	}
	return nil
}

// Stats aggregates pruning diagnostics over one Compute call.
type Stats struct {
	// FiniteDifferencePrunes counts node pairs resolved from
	// finite-difference kernel bounds alone.
	FiniteDifferencePrunes int

	// ExpansionPrunes counts node pairs resolved by the series-expansion
	// strategy.
	ExpansionPrunes int

	// MonteCarloPrunes counts node pairs resolved probabilistically.
	MonteCarloPrunes int

	// BaseCases counts node pairs evaluated exhaustively.
	BaseCases int
}

// Result contains the per-query-point output of one Compute call, in the
// caller's original point order.
type Result struct {
	// Numerators[i] approximates Σ_r K(‖q_i − r‖) · target(r).
	Numerators []float64

	// Denominators[i] approximates Σ_r K(‖q_i − r‖).
	Denominators []float64

	// Estimates[i] is Numerators[i] / Denominators[i], or 0 when the
	// denominator is zero.
	Estimates []float64

	// Defined[i] is false when the denominator is zero (no reference had
	// any kernel influence on the query point), distinguishing an
	// undefined estimate from a genuine zero.
	Defined []bool

	Stats Stats
}

// Estimator holds the reference-side state of one Nadaraya-Watson regression
// / conditional density estimation problem: the owned reference points and
// targets, the reference tree, per-node aggregates and the kernel. An
// estimator is safe for repeated Compute calls, but a single instance must
// not be used from multiple goroutines concurrently.
type Estimator struct {
	cfg  Config
	dims int

	numRefs      int
	targets      []float64
	targetSum    float64
	absTargetSum float64

	kern  Kernel
	hs    []float64 // per-reference bandwidths; nil in fixed mode
	rtree SpatialTree

	rstats []refNodeStat
	scale  *scaler
}

// New builds an estimator from a reference point set and parallel target
// values (one per reference point). The reference data is copied; the
// caller's buffers are not retained.
func New(references [][]float64, targets []float64, cfg Config) (*Estimator, error) {
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	n := len(references)
	if n == 0 {
		return nil, fmt.Errorf("nwrcde: need at least one reference point")
	}
	if len(targets) != n {
		return nil, fmt.Errorf("nwrcde: %d reference points but %d targets", n, len(targets))
	}

	dims := len(references[0])
	if dims == 0 {
		return nil, fmt.Errorf("nwrcde: reference points must have at least one dimension")
	}
	flat := make([]float64, n*dims)
	for i, row := range references {
		if len(row) != dims {
			return nil, fmt.Errorf("nwrcde: reference point %d has %d dimensions, want %d", i, len(row), dims)
		}
		copy(flat[i*dims:], row)
	}

	e := &Estimator{
		cfg:     cfg,
		dims:    dims,
		numRefs: n,
		targets: append([]float64(nil), targets...),
	}
	e.targetSum = floats.Sum(e.targets)
	for _, t := range e.targets {
		e.absTargetSum += math.Abs(t)
	}

	if cfg.Scaling != "none" {
		e.scale = fitScaler(cfg.Scaling, flat, n, dims)
		e.scale.transform(flat, n)
	}

	e.rtree = cfg.TreeBuilder(flat, n, dims, cfg.LeafSize)

	bandwidth := cfg.Bandwidth
	if cfg.BandwidthMode == "variable" {
		e.hs = knnBandwidths(e.rtree, cfg.KNN)
		bandwidth = 1 // per-point bandwidths rescale distances instead
	}
	kern, err := newKernel(cfg.Kernel, bandwidth)
	if err != nil {
		return nil, err
	}
	e.kern = kern

	e.rstats = computeRefStats(e.rtree, e.targets, e.hs)

	return e, nil
}

// Compute estimates the kernel sums and regression values for every query
// point using the dual-tree algorithm, within the configured error and
// probability guarantees. The query set may equal the reference set;
// leave-one-out adjustment is left to the caller.
func (e *Estimator) Compute(queries [][]float64) (*Result, error) {
	flat, nq, err := e.prepareQueries(queries)
	if err != nil {
		return nil, err
	}
	if nq == 0 {
		return emptyResult(), nil
	}

	qt := e.cfg.TreeBuilder(flat, nq, e.dims, e.cfg.LeafSize)

	tr := newTraversal(e, qt)
	tr.preProcess(0)
	tr.canonical(0, 0, e.cfg.Probability)
	tr.postProcess(0)

	return newResult(tr.num, tr.den, tr.stats), nil
}

// prepareQueries validates, flattens and (when configured) rescales a query
// point set.
func (e *Estimator) prepareQueries(queries [][]float64) ([]float64, int, error) {
	nq := len(queries)
	if nq == 0 {
		return nil, 0, nil
	}
	flat := make([]float64, nq*e.dims)
	for i, row := range queries {
		if len(row) != e.dims {
			return nil, 0, fmt.Errorf("nwrcde: query point %d has %d dimensions, want %d", i, len(row), e.dims)
		}
		copy(flat[i*e.dims:], row)
	}
	if e.scale != nil {
		e.scale.transform(flat, nq)
	}
	return flat, nq, nil
}

// newResult finalizes per-point accumulators into a Result.
func newResult(num, den []float64, stats Stats) *Result {
	n := len(num)
	r := &Result{
		Numerators:   num,
		Denominators: den,
		Estimates:    make([]float64, n),
		Defined:      make([]bool, n),
		Stats:        stats,
	}
	for i := range num {
		if den[i] != 0 {
			r.Estimates[i] = num[i] / den[i]
			r.Defined[i] = true
		}
	}
	return r
}

// emptyResult returns a Result with non-nil empty slices.
func emptyResult() *Result {
	return &Result{
		Numerators:   []float64{},
		Denominators: []float64{},
		Estimates:    []float64{},
		Defined:      []bool{},
	}
}

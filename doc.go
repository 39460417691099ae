// Package nwrcde implements Nadaraya-Watson regression and conditional
// density estimation accelerated by a depth-first dual-tree algorithm.
//
// Given a reference point set with one scalar target per point, the estimator
// computes, for every query point q, the kernel-weighted sums
//
//	numerator(q)   = Σ_r K(‖q − r‖) · target(r)
//	denominator(q) = Σ_r K(‖q − r‖)
//
// and the regression estimate numerator/denominator. Instead of evaluating
// every query/reference pair, the algorithm recurses jointly over a query
// tree and a reference tree and prunes node pairs whose contribution can be
// bounded tightly enough, guaranteeing a user-specified relative error with a
// user-specified probability.
//
// Basic usage:
//
//	cfg := nwrcde.DefaultConfig()
//	cfg.Bandwidth = 0.5
//	cfg.RelativeError = 0.01
//	est, err := nwrcde.New(references, targets, cfg)
//	result, err := est.Compute(queries)
//	// result.Estimates[i] is the regression value for queries[i]
//	// result.Defined[i] is false when no reference had any kernel influence
//
// # Accuracy controls
//
// RelativeError and AbsoluteError bound the approximation error of the two
// sums; with RelativeError == 0, AbsoluteError == 0 and Probability == 1 the
// output matches brute force to floating-point precision. Setting
// Probability < 1 additionally enables Monte Carlo pruning, which trades a
// small failure probability for much more aggressive pruning on large
// reference nodes. ComputeNaive provides the exhaustive path for
// verification.
package nwrcde

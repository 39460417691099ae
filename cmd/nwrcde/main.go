// Command nwrcde runs dual-tree Nadaraya-Watson regression / conditional
// density estimation over NumPy data files.
//
// The reference matrix (-data) and target vector (-dtarget) are required;
// the query matrix (-query) defaults to the reference matrix. Results are
// written as CSV rows (numerator, denominator, estimate, defined).
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"github.com/arowden/nwrcde"
)

func main() {
	dataPath := flag.String("data", "", "npy file containing reference data (rows = points)")
	targetPath := flag.String("dtarget", "", "npy file containing reference target values")
	queryPath := flag.String("query", "", "npy file containing query data (defaults to -data)")
	outputPath := flag.String("output", "nwrcde_output.csv", "file to receive the results")
	bandwidth := flag.Float64("bandwidth", 0, "kernel bandwidth parameter")
	kernel := flag.String("kernel", "gaussian", "kernel type: gaussian or epanechnikov")
	relErr := flag.Float64("relative_error", 0.01, "required relative error accuracy")
	absErr := flag.Float64("threshold", 0, "absolute error slack")
	probability := flag.Float64("probability", 1.0, "probability that the error accuracy holds")
	leafSize := flag.Int("leaflen", 20, "maximum number of points per tree leaf")
	mode := flag.String("mode", "fixed", "bandwidth mode: fixed or variable")
	knn := flag.Int("knn", 0, "neighbor count for variable bandwidth mode")
	scaling := flag.String("scaling", "none", "input scaling: none, standardize or range")
	seed := flag.Uint64("seed", 1, "Monte Carlo sampler seed")
	naive := flag.Bool("naive", false, "also run the naive computation and report the max relative error")
	flag.Parse()

	if *dataPath == "" || *targetPath == "" {
		flag.Usage()
		log.Fatal("nwrcde: -data and -dtarget are required")
	}

	refs := readMatrix(*dataPath)
	targets := readVector(*targetPath)
	queries := refs
	if *queryPath != "" {
		queries = readMatrix(*queryPath)
	}
	log.Printf("loaded %d references, %d queries", len(refs), len(queries))

	cfg := nwrcde.DefaultConfig()
	cfg.Bandwidth = *bandwidth
	cfg.Kernel = *kernel
	cfg.RelativeError = *relErr
	cfg.AbsoluteError = *absErr
	cfg.Probability = *probability
	cfg.LeafSize = *leafSize
	cfg.BandwidthMode = *mode
	cfg.KNN = *knn
	cfg.Scaling = *scaling
	cfg.Seed = *seed

	start := time.Now()
	est, err := nwrcde.New(refs, targets, cfg)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("reference tree built in %v", time.Since(start))

	start = time.Now()
	result, err := est.Compute(queries)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("dual-tree computation finished in %v (%+v)", time.Since(start), result.Stats)

	if *naive {
		start = time.Now()
		exact, err := est.ComputeNaive(queries)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("naive computation finished in %v", time.Since(start))
		log.Printf("max relative estimate error vs naive: %g", nwrcde.MaxRelativeError(result, exact))
	}

	if err := writeResult(*outputPath, result); err != nil {
		log.Fatal(err)
	}
	log.Printf("results written to %s", *outputPath)
}

// readMatrix loads an npy matrix as row-per-point float64 slices.
func readMatrix(path string) [][]float64 {
	f, err := os.Open(path)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		log.Fatal(err)
	}

	var m mat.Dense
	if err := r.Read(&m); err != nil {
		log.Fatal(err)
	}

	rows, cols := m.Dims()
	out := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		out[i] = make([]float64, cols)
		mat.Row(out[i], i, &m)
	}
	return out
}

// readVector loads an npy vector, accepting 1-D arrays and n×1 or 1×n
// matrices.
func readVector(path string) []float64 {
	f, err := os.Open(path)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		log.Fatal(err)
	}

	var m mat.Dense
	if err := r.Read(&m); err != nil {
		log.Fatal(err)
	}

	rows, cols := m.Dims()
	switch {
	case cols == 1:
		out := make([]float64, rows)
		mat.Col(out, 0, &m)
		return out
	case rows == 1:
		out := make([]float64, cols)
		mat.Row(out, 0, &m)
		return out
	default:
		log.Fatalf("nwrcde: target file %s is %dx%d, want a vector", path, rows, cols)
		return nil
	}
}

// writeResult writes one CSV row per query point.
func writeResult(path string, result *nwrcde.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"numerator", "denominator", "estimate", "defined"}); err != nil {
		return err
	}
	for i := range result.Estimates {
		row := []string{
			fmt.Sprintf("%.17g", result.Numerators[i]),
			fmt.Sprintf("%.17g", result.Denominators[i]),
			fmt.Sprintf("%.17g", result.Estimates[i]),
			strconv.FormatBool(result.Defined[i]),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

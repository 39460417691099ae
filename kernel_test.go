package nwrcde

import (
	"math"
	"testing"
)

func TestGaussianKernel_Values(t *testing.T) {
	k := GaussianKernel{Bandwidth: 2}

	if got := k.Evaluate(0); got != 1 {
		t.Errorf("Evaluate(0) = %v, want 1", got)
	}
	want := math.Exp(-1.0 / 8.0)
	if got := k.Evaluate(1); math.Abs(got-want) > 1e-15 {
		t.Errorf("Evaluate(1) = %v, want %v", got, want)
	}
}

func TestEpanechnikovKernel_CompactSupport(t *testing.T) {
	k := EpanechnikovKernel{Bandwidth: 1}

	if got := k.Evaluate(0); got != 1 {
		t.Errorf("Evaluate(0) = %v, want 1", got)
	}
	if got := k.Evaluate(1); got != 0 {
		t.Errorf("Evaluate(h²) = %v, want 0", got)
	}
	if got := k.Evaluate(25); got != 0 {
		t.Errorf("Evaluate beyond support = %v, want 0", got)
	}
}

func TestKernel_MonotoneNonIncreasing(t *testing.T) {
	kernels := []Kernel{
		GaussianKernel{Bandwidth: 0.7},
		EpanechnikovKernel{Bandwidth: 3},
	}
	for _, k := range kernels {
		prev := math.Inf(1)
		for sq := 0.0; sq <= 20; sq += 0.25 {
			v := k.Evaluate(sq)
			if v > prev {
				t.Errorf("%T not monotone at sq=%v: %v > %v", k, sq, v, prev)
			}
			prev = v
		}
	}
}

func TestKernel_BoundContainsValues(t *testing.T) {
	kernels := []Kernel{
		GaussianKernel{Bandwidth: 1.3},
		EpanechnikovKernel{Bandwidth: 2},
	}
	ranges := [][2]float64{{0, 1}, {0.5, 4}, {3, 3}, {0, 100}}

	for _, k := range kernels {
		for _, r := range ranges {
			lo, hi := k.Bound(r[0], r[1])
			if lo > hi {
				t.Fatalf("%T.Bound(%v, %v): lower %v > upper %v", k, r[0], r[1], lo, hi)
			}
			for f := 0.0; f <= 1.0; f += 0.1 {
				sq := r[0] + f*(r[1]-r[0])
				v := k.Evaluate(sq)
				if v < lo-1e-15 || v > hi+1e-15 {
					t.Errorf("%T: value %v at sq=%v outside bound [%v, %v]", k, v, sq, lo, hi)
				}
			}
		}
	}
}

func TestNewKernel_UnknownName(t *testing.T) {
	if _, err := newKernel("triangular", 1); err == nil {
		t.Error("expected error for unknown kernel name")
	}
}

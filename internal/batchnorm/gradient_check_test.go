package batchnorm

import (
	"math"
	"math/rand"
	"testing"

	cpu "github.com/born-ml/batchnorm/internal/backend/cpu"
	"github.com/born-ml/batchnorm/internal/tensor"
)

// fdStep is the central-difference step. Float64 inputs with values around
// one keep the truncation and cancellation error well below the tolerance.
const (
	fdStep = 1e-6
	fdTol  = 1e-5
)

// numericalGradient perturbs each element of base in turn and evaluates the
// scalar objective with central differences.
func numericalGradient(f func() float64, base []float64) []float64 {
	grad := make([]float64, len(base))
	for i := range base {
		orig := base[i]
		base[i] = orig + fdStep
		fp := f()
		base[i] = orig - fdStep
		fm := f()
		base[i] = orig
		grad[i] = (fp - fm) / (2 * fdStep)
	}
	return grad
}

func compareGradients(t *testing.T, name string, analytic *tensor.RawTensor, numeric []float64) {
	t.Helper()
	got := analytic.AsFloat64()
	if len(got) != len(numeric) {
		t.Fatalf("%s: analytic has %d elements, numeric has %d", name, len(got), len(numeric))
	}
	for i := range got {
		if math.Abs(got[i]-numeric[i]) > fdTol {
			t.Errorf("%s[%d]: analytic %v, numeric %v", name, i, got[i], numeric[i])
		}
	}
}

func randSlice(rng *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64()
	}
	return out
}

// TestBackward_GradientCheck verifies the training-mode first-order
// gradients against central differences of L = sum(y * w).
func TestBackward_GradientCheck(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(7))

	xShape := tensor.Shape{2, 3, 2, 2}
	chShape := tensor.Shape{3}
	xData := randSlice(rng, xShape.NumElements())
	gammaData := []float64{1.2, 0.8, -0.5}
	betaData := []float64{0.1, -0.2, 0.3}
	w := randSlice(rng, xShape.NumElements())

	loss := func() float64 {
		x, _ := tensor.FromFloat64(xData, xShape, tensor.CPU)
		gamma, _ := tensor.FromFloat64(gammaData, chShape, tensor.CPU)
		beta, _ := tensor.FromFloat64(betaData, chShape, tensor.CPU)
		bn, _ := New()
		y, _, err := bn.Forward(backend, x, gamma, beta)
		if err != nil {
			t.Fatalf("Forward failed: %v", err)
		}
		var sum float64
		for i, v := range y.AsFloat64() {
			sum += v * w[i]
		}
		return sum
	}

	x, _ := tensor.FromFloat64(xData, xShape, tensor.CPU)
	gamma, _ := tensor.FromFloat64(gammaData, chShape, tensor.CPU)
	beta, _ := tensor.FromFloat64(betaData, chShape, tensor.CPU)
	gy, _ := tensor.FromFloat64(w, xShape, tensor.CPU)

	bn, _ := New()
	_, st, err := bn.Forward(backend, x, gamma, beta)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	grads, _, err := bn.Backward(backend, st, gy)
	if err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	compareGradients(t, "gx", grads.GX, numericalGradient(loss, xData))
	compareGradients(t, "ggamma", grads.GGamma, numericalGradient(loss, gammaData))
	compareGradients(t, "gbeta", grads.GBeta, numericalGradient(loss, betaData))
}

// TestBackward_NilUpstream checks that an absent gy behaves as an explicit
// zero gradient.
func TestBackward_NilUpstream(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(8))

	xShape := tensor.Shape{3, 2}
	x, _ := tensor.FromFloat64(randSlice(rng, 6), xShape, tensor.CPU)
	gamma, _ := tensor.FromFloat64([]float64{1, 2}, tensor.Shape{2}, tensor.CPU)
	beta, _ := tensor.FromFloat64([]float64{0, 0}, tensor.Shape{2}, tensor.CPU)

	bn, _ := New(WithAxis(0))
	_, st, err := bn.Forward(backend, x, gamma, beta)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	grads, _, err := bn.Backward(backend, st, nil)
	if err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	for _, g := range []*tensor.RawTensor{grads.GX, grads.GGamma, grads.GBeta} {
		for i, v := range g.AsFloat64() {
			if v != 0 {
				t.Fatalf("gradient element %d = %v with nil upstream, expected 0", i, v)
			}
		}
	}
}

// TestFixedBackward_GradientCheck verifies the fixed-mode first-order
// gradients, including those with respect to the supplied statistics.
func TestFixedBackward_GradientCheck(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(9))

	xShape := tensor.Shape{2, 3, 2, 2}
	chShape := tensor.Shape{3}
	xData := randSlice(rng, xShape.NumElements())
	gammaData := []float64{1.5, -0.7, 0.9}
	betaData := []float64{0.2, 0.0, -0.4}
	meanData := []float64{0.3, -0.1, 0.5}
	varData := []float64{0.8, 1.5, 0.6} // strictly positive
	w := randSlice(rng, xShape.NumElements())

	loss := func() float64 {
		x, _ := tensor.FromFloat64(xData, xShape, tensor.CPU)
		gamma, _ := tensor.FromFloat64(gammaData, chShape, tensor.CPU)
		beta, _ := tensor.FromFloat64(betaData, chShape, tensor.CPU)
		mean, _ := tensor.FromFloat64(meanData, chShape, tensor.CPU)
		variance, _ := tensor.FromFloat64(varData, chShape, tensor.CPU)
		bn, _ := NewFixed()
		y, _, err := bn.Forward(backend, x, gamma, beta, mean, variance)
		if err != nil {
			t.Fatalf("Forward failed: %v", err)
		}
		var sum float64
		for i, v := range y.AsFloat64() {
			sum += v * w[i]
		}
		return sum
	}

	x, _ := tensor.FromFloat64(xData, xShape, tensor.CPU)
	gamma, _ := tensor.FromFloat64(gammaData, chShape, tensor.CPU)
	beta, _ := tensor.FromFloat64(betaData, chShape, tensor.CPU)
	mean, _ := tensor.FromFloat64(meanData, chShape, tensor.CPU)
	variance, _ := tensor.FromFloat64(varData, chShape, tensor.CPU)
	gy, _ := tensor.FromFloat64(w, xShape, tensor.CPU)

	bn, _ := NewFixed()
	_, st, err := bn.Forward(backend, x, gamma, beta, mean, variance)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	grads, _, err := bn.Backward(backend, st, gy)
	if err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	compareGradients(t, "gx", grads.GX, numericalGradient(loss, xData))
	compareGradients(t, "ggamma", grads.GGamma, numericalGradient(loss, gammaData))
	compareGradients(t, "gbeta", grads.GBeta, numericalGradient(loss, betaData))
	compareGradients(t, "gmean", grads.GMean, numericalGradient(loss, meanData))
	compareGradients(t, "gvar", grads.GVar, numericalGradient(loss, varData))
}

package webgpu

import (
	"math"
	"math/rand"
	"testing"

	"github.com/born-ml/batchnorm/internal/backend/cpu"
	"github.com/born-ml/batchnorm/internal/batchnorm"
	"github.com/born-ml/batchnorm/internal/tensor"
)

// Parity tests need a real adapter; they skip wherever the native WebGPU
// library or a GPU is missing.

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	acc, err := New()
	if err != nil {
		t.Skipf("webgpu not available: %v", err)
	}
	t.Cleanup(acc.Close)
	return NewKernel(acc)
}

func maxAbsDiff(a, b []float32) float64 {
	var worst float64
	for i := range a {
		d := math.Abs(float64(a[i] - b[i]))
		if d > worst {
			worst = d
		}
	}
	return worst
}

// TestKernel_ForwardTrainingParity compares the fused training forward and
// its running-statistics update against the generic path.
func TestKernel_ForwardTrainingParity(t *testing.T) {
	k := newTestKernel(t)
	backend := cpu.New()
	rng := rand.New(rand.NewSource(31))

	xShape := tensor.Shape{2, 3, 4, 4}
	x := tensor.Randn(xShape, tensor.Float32, tensor.CPU, rng)
	gamma, _ := tensor.FromFloat32([]float32{1.5, 0.5, -1}, tensor.Shape{3}, tensor.CPU)
	beta, _ := tensor.FromFloat32([]float32{0, 1, -1}, tensor.Shape{3}, tensor.CPU)

	generic, _ := batchnorm.New()
	yGeneric, _, err := generic.Forward(backend, x, gamma, beta)
	if err != nil {
		t.Fatalf("generic Forward failed: %v", err)
	}

	accel, _ := batchnorm.New(batchnorm.WithKernel(k))
	yAccel, st, err := accel.Forward(backend, x, gamma, beta)
	if err != nil {
		t.Fatalf("accelerated Forward failed: %v", err)
	}
	if !st.Accelerated() {
		t.Fatal("kernel declined a layout it reports as accelerable")
	}

	if d := maxAbsDiff(yGeneric.AsFloat32(), yAccel.AsFloat32()); d > 1e-4 {
		t.Errorf("forward outputs diverge by %v", d)
	}
	if d := maxAbsDiff(generic.RunningMean().AsFloat32(), accel.RunningMean().AsFloat32()); d > 1e-5 {
		t.Errorf("running means diverge by %v", d)
	}
	if d := maxAbsDiff(generic.RunningVar().AsFloat32(), accel.RunningVar().AsFloat32()); d > 1e-4 {
		t.Errorf("running variances diverge by %v", d)
	}
}

// TestKernel_BackwardParity compares the fused backward against the generic
// gradient engine.
func TestKernel_BackwardParity(t *testing.T) {
	k := newTestKernel(t)
	backend := cpu.New()
	rng := rand.New(rand.NewSource(32))

	xShape := tensor.Shape{2, 3, 4, 4}
	x := tensor.Randn(xShape, tensor.Float32, tensor.CPU, rng)
	gamma, _ := tensor.FromFloat32([]float32{1.2, -0.8, 0.5}, tensor.Shape{3}, tensor.CPU)
	beta := tensor.Zeros(tensor.Shape{3}, tensor.Float32, tensor.CPU)
	gy := tensor.Randn(xShape, tensor.Float32, tensor.CPU, rng)

	generic, _ := batchnorm.New()
	_, stG, err := generic.Forward(backend, x, gamma, beta)
	if err != nil {
		t.Fatalf("generic Forward failed: %v", err)
	}
	gradsG, _, err := generic.Backward(backend, stG, gy)
	if err != nil {
		t.Fatalf("generic Backward failed: %v", err)
	}

	accel, _ := batchnorm.New(batchnorm.WithKernel(k))
	_, stA, err := accel.Forward(backend, x, gamma, beta)
	if err != nil {
		t.Fatalf("accelerated Forward failed: %v", err)
	}
	gradsA, _, err := accel.Backward(backend, stA, gy)
	if err != nil {
		t.Fatalf("accelerated Backward failed: %v", err)
	}

	if d := maxAbsDiff(gradsG.GX.AsFloat32(), gradsA.GX.AsFloat32()); d > 1e-3 {
		t.Errorf("gx diverges by %v", d)
	}
	if d := maxAbsDiff(gradsG.GGamma.AsFloat32(), gradsA.GGamma.AsFloat32()); d > 1e-3 {
		t.Errorf("ggamma diverges by %v", d)
	}
	if d := maxAbsDiff(gradsG.GBeta.AsFloat32(), gradsA.GBeta.AsFloat32()); d > 1e-3 {
		t.Errorf("gbeta diverges by %v", d)
	}
}

// TestKernel_InferenceParity compares the fused fixed-statistics forward
// against the generic path.
func TestKernel_InferenceParity(t *testing.T) {
	k := newTestKernel(t)
	backend := cpu.New()
	rng := rand.New(rand.NewSource(33))

	xShape := tensor.Shape{2, 3, 4, 4}
	x := tensor.Randn(xShape, tensor.Float32, tensor.CPU, rng)
	gamma, _ := tensor.FromFloat32([]float32{1, 2, 3}, tensor.Shape{3}, tensor.CPU)
	beta, _ := tensor.FromFloat32([]float32{-1, 0, 1}, tensor.Shape{3}, tensor.CPU)
	mean, _ := tensor.FromFloat32([]float32{0.5, -0.5, 0}, tensor.Shape{3}, tensor.CPU)
	variance, _ := tensor.FromFloat32([]float32{1, 2, 0.5}, tensor.Shape{3}, tensor.CPU)

	generic, _ := batchnorm.NewFixed()
	yGeneric, _, err := generic.Forward(backend, x, gamma, beta, mean, variance)
	if err != nil {
		t.Fatalf("generic Forward failed: %v", err)
	}

	accel, _ := batchnorm.NewFixed(batchnorm.WithKernel(k))
	yAccel, st, err := accel.Forward(backend, x, gamma, beta, mean, variance)
	if err != nil {
		t.Fatalf("accelerated Forward failed: %v", err)
	}
	if !st.Accelerated() {
		t.Fatal("kernel declined a layout it reports as accelerable")
	}

	if d := maxAbsDiff(yGeneric.AsFloat32(), yAccel.AsFloat32()); d > 1e-4 {
		t.Errorf("inference outputs diverge by %v", d)
	}
}

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package batchnorm_test

import (
	"math"
	"testing"

	"github.com/pkg/errors"

	"github.com/born-ml/batchnorm/backend/cpu"
	"github.com/born-ml/batchnorm/batchnorm"
	"github.com/born-ml/batchnorm/tensor"
)

// TestForward_OneShot exercises the public one-shot helper end to end.
func TestForward_OneShot(t *testing.T) {
	backend := cpu.New()

	x, err := tensor.FromFloat32([]float32{1, 2, 3, 4}, tensor.Shape{4, 1}, tensor.CPU)
	if err != nil {
		t.Fatalf("Failed to create input: %v", err)
	}
	gamma := tensor.Full(tensor.Shape{1}, 1, tensor.Float32, tensor.CPU)
	beta := tensor.Zeros(tensor.Shape{1}, tensor.Float32, tensor.CPU)

	y, st, err := batchnorm.Forward(backend, x, gamma, beta)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	invStd := 1.0 / math.Sqrt(1.25+batchnorm.DefaultEps)
	want := []float64{-1.5 * invStd, -0.5 * invStd, 0.5 * invStd, 1.5 * invStd}
	for i := range want {
		if math.Abs(float64(y.AsFloat32()[i])-want[i]) > 1e-5 {
			t.Errorf("y[%d] = %v, expected %v", i, y.AsFloat32()[i], want[i])
		}
	}
	if st.Accelerated() {
		t.Error("one-shot forward without a kernel must run the generic path")
	}
}

// TestFullChain runs forward, backward, and double backward through the
// public API on a stateful BatchNorm.
func TestFullChain(t *testing.T) {
	backend := cpu.New()

	x, _ := tensor.FromFloat64([]float64{1, 2, 3, 4, 5, 6}, tensor.Shape{3, 2}, tensor.CPU)
	gamma, _ := tensor.FromFloat64([]float64{1, 2}, tensor.Shape{2}, tensor.CPU)
	beta, _ := tensor.FromFloat64([]float64{0, 1}, tensor.Shape{2}, tensor.CPU)
	gy, _ := tensor.FromFloat64([]float64{1, 0, 0, 1, 1, 1}, tensor.Shape{3, 2}, tensor.CPU)

	bn, err := batchnorm.New(batchnorm.WithAxis(0), batchnorm.WithDecay(0.99))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	y, st, err := bn.Forward(backend, x, gamma, beta)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if !y.Shape().Equal(x.Shape()) {
		t.Fatalf("y shape = %v, expected %v", y.Shape(), x.Shape())
	}
	if bn.RunningMean() == nil {
		t.Fatal("running buffers must exist after the first forward call")
	}

	grads, gst, err := bn.Backward(backend, st, gy)
	if err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
	if !grads.GX.Shape().Equal(x.Shape()) || !grads.GGamma.Shape().Equal(gamma.Shape()) {
		t.Fatal("gradient shapes do not match inputs")
	}

	second, err := bn.DoubleBackward(backend, gst, nil)
	if err != nil {
		t.Fatalf("DoubleBackward failed: %v", err)
	}
	if !second.GX2.Shape().Equal(x.Shape()) || !second.GGy2.Shape().Equal(x.Shape()) {
		t.Fatal("second-order gradient shapes do not match inputs")
	}
}

func TestErrorKinds(t *testing.T) {
	backend := cpu.New()

	x, _ := tensor.FromFloat32([]float32{1, 2, 3, 4}, tensor.Shape{4, 1}, tensor.CPU)
	gamma, _ := tensor.FromFloat32([]float32{1, 1}, tensor.Shape{2}, tensor.CPU)
	beta, _ := tensor.FromFloat32([]float32{0, 0}, tensor.Shape{2}, tensor.CPU)

	_, _, err := batchnorm.Forward(backend, x, gamma, beta)
	if !errors.Is(err, batchnorm.ErrShapeMismatch) {
		t.Errorf("got %v, expected ErrShapeMismatch", err)
	}

	_, err = batchnorm.New(batchnorm.WithAxis(1, 1))
	if !errors.Is(err, batchnorm.ErrInvalidAxisSpec) {
		t.Errorf("got %v, expected ErrInvalidAxisSpec", err)
	}
}

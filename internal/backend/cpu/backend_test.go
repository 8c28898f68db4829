package cpu

import (
	"math"
	"testing"

	"github.com/born-ml/batchnorm/internal/tensor"
)

// TestBinaryOps_SameShape tests the vectorized element-wise path.
func TestBinaryOps_SameShape(t *testing.T) {
	backend := New()

	a, _ := tensor.FromFloat32([]float32{1, 2, 3, 4}, tensor.Shape{2, 2}, tensor.CPU)
	b, _ := tensor.FromFloat32([]float32{4, 3, 2, 1}, tensor.Shape{2, 2}, tensor.CPU)

	tests := []struct {
		name string
		op   func(x, y *tensor.RawTensor) *tensor.RawTensor
		want []float32
	}{
		{"add", backend.Add, []float32{5, 5, 5, 5}},
		{"sub", backend.Sub, []float32{-3, -1, 1, 3}},
		{"mul", backend.Mul, []float32{4, 6, 6, 4}},
		{"div", backend.Div, []float32{0.25, 2.0 / 3.0, 1.5, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.op(a, b).AsFloat32()
			for i := range tt.want {
				if math.Abs(float64(got[i]-tt.want[i])) > 1e-6 {
					t.Errorf("%s[%d] = %v, expected %v", tt.name, i, got[i], tt.want[i])
				}
			}
		})
	}
}

// TestBinaryOps_Broadcast tests the stride-0 broadcast path used by the
// channel-parameter expansion.
func TestBinaryOps_Broadcast(t *testing.T) {
	backend := New()

	// (2, 3) * (1, 3): the row vector broadcasts over rows.
	a, _ := tensor.FromFloat32([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, tensor.CPU)
	b, _ := tensor.FromFloat32([]float32{10, 20, 30}, tensor.Shape{1, 3}, tensor.CPU)

	got := backend.Mul(a, b)
	if !got.Shape().Equal(tensor.Shape{2, 3}) {
		t.Fatalf("broadcast result shape = %v, expected (2, 3)", got.Shape())
	}
	want := []float32{10, 40, 90, 40, 100, 180}
	for i := range want {
		if got.AsFloat32()[i] != want[i] {
			t.Errorf("mul[%d] = %v, expected %v", i, got.AsFloat32()[i], want[i])
		}
	}

	// Rank-lifting: (2, 2, 2) + (2,) broadcasts over the trailing axis.
	c, _ := tensor.FromFloat64([]float64{1, 2, 3, 4, 5, 6, 7, 8}, tensor.Shape{2, 2, 2}, tensor.CPU)
	d, _ := tensor.FromFloat64([]float64{100, 200}, tensor.Shape{2}, tensor.CPU)
	sum := backend.Add(c, d).AsFloat64()
	wantSum := []float64{101, 202, 103, 204, 105, 206, 107, 208}
	for i := range wantSum {
		if sum[i] != wantSum[i] {
			t.Errorf("add[%d] = %v, expected %v", i, sum[i], wantSum[i])
		}
	}
}

// TestBinaryOps_Float64 exercises the gonum-backed float64 kernels.
func TestBinaryOps_Float64(t *testing.T) {
	backend := New()

	a, _ := tensor.FromFloat64([]float64{1.5, -2.5, 3.25}, tensor.Shape{3}, tensor.CPU)
	b, _ := tensor.FromFloat64([]float64{0.5, 0.5, 0.25}, tensor.Shape{3}, tensor.CPU)

	got := backend.Div(backend.Mul(backend.Add(a, b), b), b).AsFloat64()
	want := []float64{2.0, -2.0, 3.5}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("result[%d] = %v, expected %v", i, got[i], want[i])
		}
	}
}

func TestUnaryOps(t *testing.T) {
	backend := New()

	x, _ := tensor.FromFloat64([]float64{4, 9, 16}, tensor.Shape{3}, tensor.CPU)

	sqrt := backend.Sqrt(x).AsFloat64()
	rsqrt := backend.Rsqrt(x).AsFloat64()
	recip := backend.Reciprocal(x).AsFloat64()
	neg := backend.Neg(x).AsFloat64()
	for i, v := range []float64{4, 9, 16} {
		if math.Abs(sqrt[i]-math.Sqrt(v)) > 1e-12 {
			t.Errorf("sqrt[%d] = %v", i, sqrt[i])
		}
		if math.Abs(rsqrt[i]-1/math.Sqrt(v)) > 1e-12 {
			t.Errorf("rsqrt[%d] = %v", i, rsqrt[i])
		}
		if math.Abs(recip[i]-1/v) > 1e-12 {
			t.Errorf("reciprocal[%d] = %v", i, recip[i])
		}
		if neg[i] != -v {
			t.Errorf("neg[%d] = %v", i, neg[i])
		}
	}

	shifted := backend.AddScalar(x, 0.5).AsFloat64()
	scaled := backend.MulScalar(x, -2).AsFloat64()
	for i, v := range []float64{4, 9, 16} {
		if shifted[i] != v+0.5 {
			t.Errorf("addScalar[%d] = %v", i, shifted[i])
		}
		if scaled[i] != -2*v {
			t.Errorf("mulScalar[%d] = %v", i, scaled[i])
		}
	}
}

// TestCast_RoundTrip tests float16 promote/demote through float32.
func TestCast_RoundTrip(t *testing.T) {
	backend := New()

	x, _ := tensor.FromFloat32([]float32{1.5, -0.25, 1024}, tensor.Shape{3}, tensor.CPU)

	half := backend.Cast(x, tensor.Float16)
	if half.DType() != tensor.Float16 {
		t.Fatalf("cast dtype = %s, expected float16", half.DType())
	}
	back := backend.Cast(half, tensor.Float32).AsFloat32()
	for i, v := range []float32{1.5, -0.25, 1024} {
		// Exactly representable in half precision.
		if back[i] != v {
			t.Errorf("round trip [%d] = %v, expected %v", i, back[i], v)
		}
	}

	wide := backend.Cast(x, tensor.Float64).AsFloat64()
	if wide[2] != 1024 {
		t.Errorf("cast to float64 [2] = %v, expected 1024", wide[2])
	}
}

func TestReshape(t *testing.T) {
	backend := New()

	x, _ := tensor.FromFloat32([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{6}, tensor.CPU)
	y := backend.Reshape(x, tensor.Shape{1, 3, 2})
	if !y.Shape().Equal(tensor.Shape{1, 3, 2}) {
		t.Fatalf("reshape shape = %v, expected (1, 3, 2)", y.Shape())
	}
	for i, v := range x.AsFloat32() {
		if y.AsFloat32()[i] != v {
			t.Errorf("reshape changed data at %d: %v != %v", i, y.AsFloat32()[i], v)
		}
	}
}

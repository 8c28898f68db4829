package batchnorm

import (
	"github.com/born-ml/batchnorm/internal/tensor"
)

// orZeros substitutes a zero tensor shaped like ref when an upstream
// gradient component is absent. Absence is a normal "no contribution"
// signal, not an error.
func orZeros(g, ref *tensor.RawTensor) *tensor.RawTensor {
	if g == nil {
		return tensor.Zeros(ref.Shape(), ref.DType(), ref.Device())
	}
	return g
}

// promote returns a float32 copy of half-precision tensors; other dtypes
// pass through. Compute kernels operate on float32/float64 only.
func promote(b tensor.Backend, t *tensor.RawTensor) *tensor.RawTensor {
	if t != nil && t.DType() == tensor.Float16 {
		return b.Cast(t, tensor.Float32)
	}
	return t
}

// demote converts a result back to half precision when the original inputs
// were float16.
func demote(b tensor.Backend, t *tensor.RawTensor, halved bool) *tensor.RawTensor {
	if halved && t.DType() != tensor.Float16 {
		return b.Cast(t, tensor.Float16)
	}
	return t
}

// xHat computes the normalized input (x - mean)*invStd with mean and invStd
// broadcast-expanded. The subtract-then-scale order is significant: both
// code paths must round identically for float16/float32 inputs.
func xHat(b tensor.Backend, x, mean, invStd *tensor.RawTensor, plan *Plan) *tensor.RawTensor {
	return b.Mul(b.Sub(x, plan.Expand(b, mean)), plan.Expand(b, invStd))
}

// applyForward computes gamma*(x - mean)*invStd + beta with all channel
// parameters broadcast-expanded.
func applyForward(b tensor.Backend, x, mean, invStd, gamma, beta *tensor.RawTensor, plan *Plan) *tensor.RawTensor {
	return b.Add(b.Mul(plan.Expand(b, gamma), xHat(b, x, mean, invStd, plan)), plan.Expand(b, beta))
}

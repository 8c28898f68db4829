package batchnorm

import (
	"github.com/born-ml/batchnorm/internal/tensor"
)

// Kernel is an accelerated alternative implementation of the forward and
// first-order backward contract. It fuses the statistics engine and the
// normalization transform for the tensor layouts it supports.
//
// A kernel is consulted per call via CanAccelerate; the generic path runs
// when it declines. The batch mean and inverse standard deviation produced
// by an accelerated forward are consumed only by the matching accelerated
// backward, never mixed with the generic path's cache, because the two
// paths may differ in low-order bits.
//
// The second-order engine never uses a kernel.
type Kernel interface {
	// MinEpsilon returns the smallest epsilon the kernel accepts.
	// Construction fails with ErrEpsilonTooSmall below it.
	MinEpsilon() float64

	// CanAccelerate reports whether the kernel handles the given input
	// layout, element type, and epsilon. The key axis set it accepts here
	// is the one the execution methods receive; a kernel must never
	// re-derive it from shapes, which are ambiguous when the channel size
	// recurs on several axes.
	CanAccelerate(xShape tensor.Shape, keyAxis []int, dtype tensor.DataType, eps float64) bool

	// ForwardTraining runs the fused training forward pass over the given
	// key axis set. It returns the normalized output along with the batch
	// mean and inverse standard deviation for the paired backward call,
	// and updates the caller-owned running-statistics buffers in place
	// using the same exponential decay and unbiased-variance adjustment as
	// the generic path.
	ForwardTraining(x, gamma, beta, runningMean, runningVar *tensor.RawTensor,
		keyAxis []int, eps, decay float64) (y, mean, invStd *tensor.RawTensor, err error)

	// ForwardInference runs the fused fixed-statistics forward pass.
	ForwardInference(x, gamma, beta, mean, variance *tensor.RawTensor,
		keyAxis []int, eps float64) (*tensor.RawTensor, error)

	// Backward runs the fused first-order backward pass for training mode,
	// consuming the mean and inverse standard deviation produced by the
	// paired ForwardTraining call.
	Backward(x, gamma, gy, mean, invStd *tensor.RawTensor,
		keyAxis []int, eps float64) (gx, ggamma, gbeta *tensor.RawTensor, err error)
}

package batchnorm

import (
	"github.com/pkg/errors"

	"github.com/born-ml/batchnorm/internal/tensor"
)

// BatchNorm is the training-mode batch normalization function object.
//
// A BatchNorm owns its configuration and the running-statistics buffers; a
// resolved Plan is cached between calls with identical shapes. Per-call
// numeric state lives in the ForwardState/GradState values returned by
// Forward and Backward. Callers must serialize forward calls against the
// same running buffers; the package does not lock.
type BatchNorm struct {
	eps    float64
	decay  float64
	axis   []int // nil = legacy convention
	kernel Kernel

	runningMean *tensor.RawTensor
	runningVar  *tensor.RawTensor

	plan *Plan // cached axis metadata, reused while shapes match
}

// New creates a training-mode batch normalization function.
func New(opts ...Option) (*BatchNorm, error) {
	c, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	return &BatchNorm{
		eps:         c.eps,
		decay:       c.decay,
		axis:        c.axis,
		kernel:      c.kernel,
		runningMean: c.runningMean,
		runningVar:  c.runningVar,
	}, nil
}

// RunningMean returns the running-mean buffer (nil before the first
// forward call when not supplied at construction).
func (bn *BatchNorm) RunningMean() *tensor.RawTensor { return bn.runningMean }

// RunningVar returns the running-variance buffer.
func (bn *BatchNorm) RunningVar() *tensor.RawTensor { return bn.runningVar }

// ForwardState is the cached output of one training forward call, consumed
// by at most one Backward call. It retains the (promoted) inputs and the
// batch mean and inverse standard deviation so the backward pass does not
// recompute them.
type ForwardState struct {
	plan        *Plan
	x, gamma    *tensor.RawTensor // promoted to float32 when inputs were float16
	mean        *tensor.RawTensor
	invStd      *tensor.RawTensor
	halved      bool
	accelerated bool
	eps         float64
	kernel      Kernel
}

// Mean returns the batch mean computed by the forward call (channel shape).
func (st *ForwardState) Mean() *tensor.RawTensor { return st.mean }

// InvStd returns the inverse standard deviation computed by the forward
// call (channel shape).
func (st *ForwardState) InvStd() *tensor.RawTensor { return st.invStd }

// Accelerated reports whether the fused kernel produced this state.
func (st *ForwardState) Accelerated() bool { return st.accelerated }

// Plan returns the resolved axis metadata.
func (st *ForwardState) Plan() *Plan { return st.plan }

// validateInputs applies the type and shape checks shared by both modes.
func validateInputs(x, gamma, beta *tensor.RawTensor) error {
	if !x.DType().IsFloat() {
		return errors.Wrapf(ErrTypeMismatch, "input must be floating point, got %s", x.DType())
	}
	if gamma.DType() != x.DType() || beta.DType() != x.DType() {
		return errors.Wrapf(ErrTypeMismatch, "x is %s but gamma is %s and beta is %s",
			x.DType(), gamma.DType(), beta.DType())
	}
	if !gamma.Shape().Equal(beta.Shape()) {
		return errors.Wrapf(ErrShapeMismatch, "gamma shape %v != beta shape %v",
			gamma.Shape(), beta.Shape())
	}
	return nil
}

// resolve returns the cached plan or resolves a fresh one for the shapes.
func (bn *BatchNorm) resolve(xShape, gammaShape tensor.Shape) (*Plan, error) {
	if bn.plan != nil && bn.plan.matches(xShape, gammaShape) {
		return bn.plan, nil
	}
	plan, err := resolvePlan(xShape, gammaShape, bn.axis)
	if err != nil {
		return nil, err
	}
	bn.plan = plan
	return plan, nil
}

// Forward runs the training-mode forward pass: batch statistics, the
// normalization transform, and the in-place running-statistics update.
// Running buffers are created lazily, zero-initialized and shaped like
// gamma, when absent.
func (bn *BatchNorm) Forward(b tensor.Backend, x, gamma, beta *tensor.RawTensor) (*tensor.RawTensor, *ForwardState, error) {
	if err := validateInputs(x, gamma, beta); err != nil {
		return nil, nil, err
	}
	plan, err := bn.resolve(x.Shape(), gamma.Shape())
	if err != nil {
		return nil, nil, err
	}

	if bn.runningMean == nil {
		bn.runningMean = tensor.Zeros(gamma.Shape(), gamma.DType(), gamma.Device())
		bn.runningVar = tensor.Zeros(gamma.Shape(), gamma.DType(), gamma.Device())
	} else if !bn.runningMean.Shape().Equal(gamma.Shape()) {
		return nil, nil, errors.Wrapf(ErrShapeMismatch,
			"running buffer shape %v != gamma shape %v", bn.runningMean.Shape(), gamma.Shape())
	}

	// Supplied running buffers may carry a different dtype than the input;
	// the fused kernels update them host-side without casting, so those
	// calls stay on the generic path.
	if bn.kernel != nil && bn.runningMean.DType() == x.DType() &&
		bn.kernel.CanAccelerate(x.Shape(), plan.keyAxis, x.DType(), bn.eps) {
		y, mean, invStd, err := bn.kernel.ForwardTraining(
			x, gamma, beta, bn.runningMean, bn.runningVar, plan.keyAxis, bn.eps, bn.decay)
		if err != nil {
			return nil, nil, err
		}
		st := &ForwardState{
			plan:        plan,
			x:           x,
			gamma:       gamma,
			mean:        mean,
			invStd:      invStd,
			accelerated: true,
			eps:         bn.eps,
			kernel:      bn.kernel,
		}
		return y, st, nil
	}

	halved := x.DType() == tensor.Float16
	px := promote(b, x)
	pgamma := promote(b, gamma)
	pbeta := promote(b, beta)

	stats := computeBatchStats(b, px, plan, bn.eps)
	y := applyForward(b, px, stats.mean, stats.invStd, pgamma, pbeta, plan)
	updateRunning(b, bn.runningMean, bn.runningVar, stats, bn.decay, plan.m)

	st := &ForwardState{
		plan:   plan,
		x:      px,
		gamma:  pgamma,
		mean:   stats.mean,
		invStd: stats.invStd,
		halved: halved,
		eps:    bn.eps,
		kernel: bn.kernel,
	}
	return demote(b, y, halved), st, nil
}

package batchnorm

import (
	"github.com/pkg/errors"

	"github.com/born-ml/batchnorm/internal/tensor"
)

// FixedBatchNorm is the fixed-statistics (inference-mode) batch
// normalization function object. Mean and variance are supplied by the
// caller instead of being computed from the batch, and the backward pass
// additionally produces gradients with respect to them. No running
// statistics are maintained.
type FixedBatchNorm struct {
	eps    float64
	axis   []int // nil = legacy convention
	kernel Kernel

	plan *Plan
}

// NewFixed creates a fixed-statistics batch normalization function.
// The decay and running-statistics options do not apply to this mode.
func NewFixed(opts ...Option) (*FixedBatchNorm, error) {
	c, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	return &FixedBatchNorm{
		eps:    c.eps,
		axis:   c.axis,
		kernel: c.kernel,
	}, nil
}

// FixedForwardState is the cached output of one fixed-mode forward call,
// consumed by at most one Backward call.
type FixedForwardState struct {
	plan           *Plan
	x, gamma       *tensor.RawTensor // promoted
	mean, variance *tensor.RawTensor // promoted
	invStd, invVar *tensor.RawTensor // nil after an accelerated forward
	halved         bool
	accelerated    bool
	eps            float64
}

// Plan returns the resolved axis metadata.
func (st *FixedForwardState) Plan() *Plan { return st.plan }

// Accelerated reports whether the fused kernel produced this state.
func (st *FixedForwardState) Accelerated() bool { return st.accelerated }

// Forward runs the fixed-statistics forward pass:
//
//	inv_var = 1/(var + eps)
//	inv_std = sqrt(inv_var)
//	y       = gamma*(x - mean)*inv_std + beta
func (f *FixedBatchNorm) Forward(b tensor.Backend, x, gamma, beta, mean, variance *tensor.RawTensor) (*tensor.RawTensor, *FixedForwardState, error) {
	if err := validateInputs(x, gamma, beta); err != nil {
		return nil, nil, err
	}
	if mean.DType() != x.DType() || variance.DType() != x.DType() {
		return nil, nil, errors.Wrapf(ErrTypeMismatch, "x is %s but mean is %s and var is %s",
			x.DType(), mean.DType(), variance.DType())
	}
	if !mean.Shape().Equal(gamma.Shape()) || !variance.Shape().Equal(gamma.Shape()) {
		return nil, nil, errors.Wrapf(ErrShapeMismatch,
			"mean shape %v and var shape %v must equal gamma shape %v",
			mean.Shape(), variance.Shape(), gamma.Shape())
	}

	if f.plan == nil || !f.plan.matches(x.Shape(), gamma.Shape()) {
		plan, err := resolvePlan(x.Shape(), gamma.Shape(), f.axis)
		if err != nil {
			return nil, nil, err
		}
		f.plan = plan
	}
	plan := f.plan

	if f.kernel != nil && f.kernel.CanAccelerate(x.Shape(), plan.keyAxis, x.DType(), f.eps) {
		y, err := f.kernel.ForwardInference(x, gamma, beta, mean, variance, plan.keyAxis, f.eps)
		if err != nil {
			return nil, nil, err
		}
		st := &FixedForwardState{
			plan: plan, x: x, gamma: gamma, mean: mean, variance: variance,
			accelerated: true, eps: f.eps,
		}
		return y, st, nil
	}

	halved := x.DType() == tensor.Float16
	px := promote(b, x)
	pgamma := promote(b, gamma)
	pbeta := promote(b, beta)
	pmean := promote(b, mean)
	pvar := promote(b, variance)

	invVar := b.Reciprocal(b.AddScalar(pvar, f.eps))
	invStd := b.Sqrt(invVar)
	y := applyForward(b, px, pmean, invStd, pgamma, pbeta, plan)

	st := &FixedForwardState{
		plan: plan, x: px, gamma: pgamma, mean: pmean, variance: pvar,
		invStd: invStd, invVar: invVar,
		halved: halved, eps: f.eps,
	}
	return demote(b, y, halved), st, nil
}

// FixedGradients is the output tuple of the fixed-mode backward pass.
type FixedGradients struct {
	GX     *tensor.RawTensor // gradient w.r.t. the input
	GGamma *tensor.RawTensor // gradient w.r.t. the scale
	GBeta  *tensor.RawTensor // gradient w.r.t. the shift
	GMean  *tensor.RawTensor // gradient w.r.t. the supplied mean
	GVar   *tensor.RawTensor // gradient w.r.t. the supplied variance
}

// FixedGradState is the retained state of one fixed-mode backward call,
// consumed by at most one DoubleBackward call.
type FixedGradState struct {
	plan         *Plan
	x, gamma     *tensor.RawTensor
	mean         *tensor.RawTensor
	gy           *tensor.RawTensor
	invStd       *tensor.RawTensor
	invVar       *tensor.RawTensor
	gammaOverStd *tensor.RawTensor
	// retained outputs
	ggamma1, gbeta1 *tensor.RawTensor
	halved          bool
}

// Backward computes the fixed-mode first-order gradients:
//
//	gx     = (gamma*inv_std)[expand] * gy
//	gbeta  = sum(gy, axis)
//	ggamma = sum(x_hat*gy, axis)
//	gmean  = -gamma*inv_std * gbeta
//	gvar   = -0.5*gamma*inv_var * ggamma
//
// The inverse variance and inverse standard deviation are recomputed when
// the paired forward ran on the accelerated path, since that path does not
// expose its intermediates. A nil gy is treated as a zero upstream
// gradient.
func (f *FixedBatchNorm) Backward(b tensor.Backend, st *FixedForwardState, gy *tensor.RawTensor) (*FixedGradients, *FixedGradState, error) {
	plan := st.plan
	halved := st.halved

	x := promote(b, st.x)
	gamma := promote(b, st.gamma)
	mean := promote(b, st.mean)
	variance := promote(b, st.variance)
	gy = promote(b, orZeros(gy, st.x))

	invVar := st.invVar
	invStd := st.invStd
	if invVar == nil || invStd == nil {
		invVar = b.Reciprocal(b.AddScalar(variance, f.eps))
		invStd = b.Sqrt(invVar)
	}

	gammaOverStd := b.Mul(gamma, invStd)
	hat := xHat(b, x, mean, invStd, plan)

	gx := b.Mul(plan.Expand(b, gammaOverStd), gy)
	gbeta := b.SumAxes(gy, plan.axis, false)
	ggamma := b.SumAxes(b.Mul(hat, gy), plan.axis, false)
	gmean := b.Neg(b.Mul(gammaOverStd, gbeta))
	gvar := b.MulScalar(b.Mul(b.Mul(gamma, invVar), ggamma), -0.5)

	gst := &FixedGradState{
		plan: plan, x: x, gamma: gamma, mean: mean, gy: gy,
		invStd: invStd, invVar: invVar, gammaOverStd: gammaOverStd,
		ggamma1: ggamma, gbeta1: gbeta,
		halved: halved,
	}
	grads := &FixedGradients{
		GX:     demote(b, gx, halved),
		GGamma: demote(b, ggamma, halved),
		GBeta:  demote(b, gbeta, halved),
		GMean:  demote(b, gmean, halved),
		GVar:   demote(b, gvar, halved),
	}
	return grads, gst, nil
}

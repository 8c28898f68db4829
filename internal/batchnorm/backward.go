package batchnorm

import (
	"github.com/born-ml/batchnorm/internal/tensor"
)

// Gradients is the output tuple of the training-mode backward pass.
type Gradients struct {
	GX     *tensor.RawTensor // gradient w.r.t. the input, shaped like x
	GGamma *tensor.RawTensor // gradient w.r.t. the scale, channel shape
	GBeta  *tensor.RawTensor // gradient w.r.t. the shift, channel shape
}

// GradState is the retained state of one training backward call, consumed
// by at most one DoubleBackward call. It keeps the backward pass's own
// inputs and its first two outputs, which the second-order formulas reuse.
type GradState struct {
	plan     *Plan
	x, gamma *tensor.RawTensor // promoted
	gy       *tensor.RawTensor // promoted
	mean     *tensor.RawTensor
	invStd   *tensor.RawTensor
	gx1      *tensor.RawTensor // retained output gx
	ggamma1  *tensor.RawTensor // retained output ggamma
	halved   bool
}

// Backward computes the training-mode first-order gradients:
//
//	gbeta  = sum(gy, axis)
//	ggamma = sum(gy * x_hat, axis)
//	gx     = (gamma*inv_std)[expand] * (gy - (x_hat*ggamma + gbeta)[expand]/m)
//
// consuming the batch mean and inverse standard deviation cached by the
// paired Forward call. A nil gy is treated as a zero upstream gradient.
func (bn *BatchNorm) Backward(b tensor.Backend, st *ForwardState, gy *tensor.RawTensor) (*Gradients, *GradState, error) {
	plan := st.plan
	gy = orZeros(gy, st.x)

	if st.accelerated {
		gx, ggamma, gbeta, err := st.kernel.Backward(st.x, st.gamma, gy, st.mean, st.invStd, plan.keyAxis, st.eps)
		if err != nil {
			return nil, nil, err
		}
		gst := &GradState{
			plan: plan, x: st.x, gamma: st.gamma, gy: gy,
			mean: st.mean, invStd: st.invStd,
			gx1: gx, ggamma1: ggamma,
		}
		return &Gradients{GX: gx, GGamma: ggamma, GBeta: gbeta}, gst, nil
	}

	halved := st.halved
	gy = promote(b, gy)

	invM := 1.0 / float64(plan.m)
	gbeta := b.SumAxes(gy, plan.axis, false)
	hat := xHat(b, st.x, st.mean, st.invStd, plan)
	ggamma := b.SumAxes(b.Mul(gy, hat), plan.axis, false)

	inner := b.Add(b.Mul(hat, plan.Expand(b, ggamma)), plan.Expand(b, gbeta))
	gx := b.Mul(
		plan.Expand(b, b.Mul(st.gamma, st.invStd)),
		b.Sub(gy, b.MulScalar(inner, invM)))

	gst := &GradState{
		plan: plan, x: st.x, gamma: st.gamma, gy: gy,
		mean: st.mean, invStd: st.invStd,
		gx1: gx, ggamma1: ggamma,
		halved: halved,
	}
	grads := &Gradients{
		GX:     demote(b, gx, halved),
		GGamma: demote(b, ggamma, halved),
		GBeta:  demote(b, gbeta, halved),
	}
	return grads, gst, nil
}

// GradOutputs carries the upstream gradients flowing into the second-order
// backward pass, one per first-order output. A nil field means "no
// contribution" and is replaced by a zero tensor.
type GradOutputs struct {
	GGX     *tensor.RawTensor // w.r.t. gx, shaped like x
	GGGamma *tensor.RawTensor // w.r.t. ggamma, channel shape
	GGBeta  *tensor.RawTensor // w.r.t. gbeta, channel shape
}

// SecondGradients is the output tuple of the training-mode double backward.
type SecondGradients struct {
	GX2     *tensor.RawTensor // second-order gradient w.r.t. x
	GGamma2 *tensor.RawTensor // second-order gradient w.r.t. gamma
	GGy2    *tensor.RawTensor // second-order gradient w.r.t. gy
}

// DoubleBackward differentiates the first-order backward pass with respect
// to x, gamma, and gy. It always runs the generic formulas; there is no
// accelerated second-order path.
func (bn *BatchNorm) DoubleBackward(b tensor.Backend, st *GradState, up *GradOutputs) (*SecondGradients, error) {
	if up == nil {
		up = &GradOutputs{}
	}
	plan := st.plan
	x, gamma, gy := st.x, st.gamma, st.gy
	invM := 1.0 / float64(plan.m)

	// r = sum(gx1 * ggx1, axis), zero when no gradient flows into gx.
	var r *tensor.RawTensor
	if up.GGX == nil {
		r = tensor.Zeros(gamma.Shape(), gamma.DType(), gamma.Device())
	} else {
		r = b.SumAxes(b.Mul(st.gx1, promote(b, up.GGX)), plan.axis, false)
	}

	ggx1 := promote(b, orZeros(up.GGX, x))
	gggamma1 := promote(b, orZeros(up.GGGamma, gamma))
	ggbeta1 := promote(b, orZeros(up.GGBeta, gamma))

	coeff := b.Mul(gamma, st.invStd)
	coeffM := b.MulScalar(coeff, invM)
	hat := xHat(b, x, st.mean, st.invStd, plan)

	gggamma2 := b.Sub(gggamma1, b.Mul(coeffM, b.SumAxes(b.Mul(hat, ggx1), plan.axis, false)))
	ggbeta2 := b.Sub(ggbeta1, b.Mul(coeffM, b.SumAxes(ggx1, plan.axis, false)))

	ggamma2 := b.Div(r, gamma)

	gxHat2 := b.Sub(
		b.Mul(plan.Expand(b, gggamma2), gy),
		b.Mul(plan.Expand(b, b.Mul(coeffM, st.ggamma1)), ggx1))
	gstd2 := b.Neg(b.Mul(st.invStd, b.Add(r, b.SumAxes(b.Mul(hat, gxHat2), plan.axis, false))))
	gmean2 := b.Neg(b.Mul(st.invStd, b.SumAxes(gxHat2, plan.axis, false)))

	gx2 := b.Add(
		b.Mul(plan.Expand(b, st.invStd), gxHat2),
		b.MulScalar(b.Add(plan.Expand(b, gmean2), b.Mul(hat, plan.Expand(b, gstd2))), invM))

	ggy2 := b.Add(
		b.Add(b.Mul(plan.Expand(b, gggamma2), hat), plan.Expand(b, ggbeta2)),
		b.Mul(plan.Expand(b, coeff), ggx1))

	return &SecondGradients{
		GX2:     demote(b, gx2, st.halved),
		GGamma2: demote(b, ggamma2, st.halved),
		GGy2:    demote(b, ggy2, st.halved),
	}, nil
}

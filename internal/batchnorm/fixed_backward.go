package batchnorm

import (
	"github.com/born-ml/batchnorm/internal/tensor"
)

// FixedGradOutputs carries the upstream gradients flowing into the
// fixed-mode second-order backward pass, one per first-order output. A nil
// field means "no contribution" and is replaced by a zero tensor.
type FixedGradOutputs struct {
	GGX     *tensor.RawTensor // w.r.t. gx, shaped like x
	GGGamma *tensor.RawTensor // w.r.t. ggamma, channel shape
	GGBeta  *tensor.RawTensor // w.r.t. gbeta, channel shape
	GGMean  *tensor.RawTensor // w.r.t. gmean, channel shape
	GGVar   *tensor.RawTensor // w.r.t. gvar, channel shape
}

// FixedSecondGradients is the output tuple of the fixed-mode double
// backward.
type FixedSecondGradients struct {
	GX2     *tensor.RawTensor // second-order gradient w.r.t. x
	GGamma2 *tensor.RawTensor // second-order gradient w.r.t. gamma
	GMean2  *tensor.RawTensor // second-order gradient w.r.t. mean
	GVar2   *tensor.RawTensor // second-order gradient w.r.t. variance
	GGy2    *tensor.RawTensor // second-order gradient w.r.t. gy
}

// DoubleBackward differentiates the fixed-mode first-order backward pass
// with respect to x, gamma, mean, variance, and gy. Always generic; there
// is no accelerated second-order path.
func (f *FixedBatchNorm) DoubleBackward(b tensor.Backend, st *FixedGradState, up *FixedGradOutputs) (*FixedSecondGradients, error) {
	if up == nil {
		up = &FixedGradOutputs{}
	}
	plan := st.plan
	x, gamma, mean, gy := st.x, st.gamma, st.mean, st.gy

	ggx1 := promote(b, orZeros(up.GGX, x))
	gggamma1 := promote(b, orZeros(up.GGGamma, gamma))
	ggbeta1 := promote(b, orZeros(up.GGBeta, gamma))
	ggmean1 := promote(b, orZeros(up.GGMean, mean))
	ggvar1 := promote(b, orZeros(up.GGVar, mean))

	hat := xHat(b, x, mean, st.invStd, plan)
	tmp := b.MulScalar(ggvar1, -0.5)

	gammaOverVar := b.Mul(gamma, st.invVar)
	gGammaOverVar := b.Mul(tmp, st.ggamma1)

	gggamma2 := b.Add(gggamma1, b.Mul(tmp, gammaOverVar))
	gxHat := b.Mul(gy, plan.Expand(b, gggamma2))
	gx2 := b.Mul(plan.Expand(b, st.invStd), gxHat)
	gmean2 := b.Neg(b.Mul(st.invStd, b.SumAxes(gxHat, plan.axis, false)))

	gGammaOverStd := b.Sub(
		b.SumAxes(b.Mul(ggx1, gy), plan.axis, false),
		b.Mul(ggmean1, st.gbeta1))
	ggbeta2 := b.Sub(ggbeta1, b.Mul(ggmean1, st.gammaOverStd))
	ggy2 := b.Add(
		b.Add(b.Mul(plan.Expand(b, gggamma2), hat), plan.Expand(b, ggbeta2)),
		b.Mul(plan.Expand(b, st.gammaOverStd), ggx1))

	ggamma2 := b.Add(
		b.Mul(st.invVar, gGammaOverVar),
		b.Mul(st.invStd, gGammaOverStd))
	gvar2 := b.Neg(b.Add(
		b.Mul(ggamma2, gammaOverVar),
		b.MulScalar(b.Mul(st.invVar, b.Sub(
			b.SumAxes(b.Mul(hat, gxHat), plan.axis, false),
			b.Mul(st.gammaOverStd, gGammaOverStd))), 0.5)))

	return &FixedSecondGradients{
		GX2:     demote(b, gx2, st.halved),
		GGamma2: demote(b, ggamma2, st.halved),
		GMean2:  demote(b, gmean2, st.halved),
		GVar2:   demote(b, gvar2, st.halved),
		GGy2:    demote(b, ggy2, st.halved),
	}, nil
}

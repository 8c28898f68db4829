package batchnorm

import (
	"github.com/born-ml/batchnorm/internal/tensor"
)

// batchStats holds the per-channel statistics of one training forward call.
type batchStats struct {
	mean     *tensor.RawTensor // channel shape
	variance *tensor.RawTensor // channel shape, without epsilon
	invStd   *tensor.RawTensor // (variance + eps)^(-1/2)
}

// computeBatchStats reduces x over the plan's axes and derives the
// epsilon-stabilized inverse standard deviation.
func computeBatchStats(b tensor.Backend, x *tensor.RawTensor, plan *Plan, eps float64) batchStats {
	mean := b.MeanAxes(x, plan.axis, false)
	variance := b.VarAxes(x, plan.axis, false)
	invStd := b.Rsqrt(b.AddScalar(variance, eps))
	return batchStats{mean: mean, variance: variance, invStd: invStd}
}

// updateRunning folds the batch statistics into the caller-owned running
// buffers in place:
//
//	running_mean = decay*running_mean + (1-decay)*mean
//	running_var  = decay*running_var  + (1-decay)*adjust*var
//
// adjust = m/max(m-1, 1) converts the population variance to the unbiased
// estimate. The buffers keep their own dtype; buffers whose dtype differs
// from the statistics are cast up for the arithmetic and the result is
// written back in the buffer's dtype.
func updateRunning(b tensor.Backend, runningMean, runningVar *tensor.RawTensor, stats batchStats, decay float64, m int) {
	adjust := float64(m) / float64(max(m-1, 1))

	writeBack(b, runningMean, stats.mean.DType(), func(current *tensor.RawTensor) *tensor.RawTensor {
		return b.Add(b.MulScalar(current, decay), b.MulScalar(stats.mean, 1-decay))
	})
	writeBack(b, runningVar, stats.variance.DType(), func(current *tensor.RawTensor) *tensor.RawTensor {
		return b.Add(b.MulScalar(current, decay), b.MulScalar(stats.variance, (1-decay)*adjust))
	})
}

// writeBack applies update to a copy of the buffer cast to the compute
// dtype and stores the result back into the buffer's own memory and dtype.
func writeBack(b tensor.Backend, buf *tensor.RawTensor, compute tensor.DataType, update func(*tensor.RawTensor) *tensor.RawTensor) {
	current := buf
	if buf.DType() != compute {
		current = b.Cast(buf, compute)
	}
	next := update(current)
	if next.DType() != buf.DType() {
		next = b.Cast(next, buf.DType())
	}
	copy(buf.Data(), next.Data())
}

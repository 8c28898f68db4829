package webgpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/batchnorm/internal/tensor"
)

// minEpsilon is the smallest epsilon the fused kernels accept. The single
// precision statistics pipeline loses the stabilizer below this.
const minEpsilon = 1e-5

// layout is the resolved (N, C, S) view of an accelerable input: N batch
// rows, C channels, S spatial elements per channel.
type layout struct {
	n, c, s int
}

// resolveLayout maps an input shape and key-axis set onto the (N, C, S)
// block the shaders expect. Two layouts qualify: rank-4 with the channel on
// axis 1, and single-channel-axis channel-last, which collapses to
// (prod, C, 1).
func resolveLayout(xShape tensor.Shape, keyAxis []int) (layout, bool) {
	if len(keyAxis) != 1 {
		return layout{}, false
	}
	r := len(xShape)
	switch {
	case r == 4 && keyAxis[0] == 1:
		return layout{n: xShape[0], c: xShape[1], s: xShape[2] * xShape[3]}, true
	case r >= 2 && keyAxis[0] == r-1:
		n := 1
		for _, d := range xShape[:r-1] {
			n *= d
		}
		return layout{n: n, c: xShape[r-1], s: 1}, true
	default:
		return layout{}, false
	}
}

// Kernel is the WebGPU implementation of the fused batch normalization
// forward and first-order backward passes.
type Kernel struct {
	acc *Accelerator
}

// NewKernel wraps an Accelerator as a batch normalization kernel.
func NewKernel(acc *Accelerator) *Kernel {
	return &Kernel{acc: acc}
}

// MinEpsilon returns the smallest epsilon the kernel accepts.
func (k *Kernel) MinEpsilon() float64 { return minEpsilon }

// CanAccelerate reports whether the fused pipeline handles the given call:
// float32 elements, an epsilon the single-precision shaders tolerate, and a
// layout resolveLayout recognizes.
func (k *Kernel) CanAccelerate(xShape tensor.Shape, keyAxis []int, dtype tensor.DataType, eps float64) bool {
	if dtype != tensor.Float32 {
		return false
	}
	if eps < minEpsilon {
		return false
	}
	_, ok := resolveLayout(xShape, keyAxis)
	return ok
}

// ForwardTraining runs the fused training forward pass on the GPU and folds
// the batch statistics into the caller-owned running buffers with the same
// decay and unbiased-variance adjustment as the generic path.
func (k *Kernel) ForwardTraining(x, gamma, beta, runningMean, runningVar *tensor.RawTensor,
	keyAxis []int, eps, decay float64) (*tensor.RawTensor, *tensor.RawTensor, *tensor.RawTensor, error) {

	lay, ok := resolveLayout(x.Shape(), keyAxis)
	if !ok {
		return nil, nil, nil, fmt.Errorf("webgpu: layout %v with key axis %v not accelerable", x.Shape(), keyAxis)
	}
	a := k.acc
	channelBytes := uint64(lay.c * 4)

	xBuf := a.createBuffer(x.Data(), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	defer xBuf.Release()
	gammaBuf := a.createBuffer(gamma.Data(), wgpu.BufferUsageStorage)
	defer gammaBuf.Release()
	betaBuf := a.createBuffer(beta.Data(), wgpu.BufferUsageStorage)
	defer betaBuf.Release()
	meanBuf := a.createEmptyBuffer(channelBytes)
	defer meanBuf.Release()
	varBuf := a.createEmptyBuffer(channelBytes)
	defer varBuf.Release()
	invStdBuf := a.createEmptyBuffer(channelBytes)
	defer invStdBuf.Release()
	yBuf := a.createEmptyBuffer(uint64(x.ByteSize()))
	defer yBuf.Release()

	statsParams := a.createUniformBuffer(packParams(
		uint32(lay.n), uint32(lay.c), uint32(lay.s), math.Float32bits(float32(eps))))
	defer statsParams.Release()

	err := a.dispatch("bn_stats", bnStatsShader, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, xBuf, 0, uint64(x.ByteSize())),
		wgpu.BufferBindingEntry(1, meanBuf, 0, channelBytes),
		wgpu.BufferBindingEntry(2, varBuf, 0, channelBytes),
		wgpu.BufferBindingEntry(3, invStdBuf, 0, channelBytes),
		wgpu.BufferBindingEntry(4, statsParams, 0, 16),
	}, workgroups(lay.c, 64))
	if err != nil {
		return nil, nil, nil, err
	}

	size := x.NumElements()
	fwdParams := a.createUniformBuffer(packParams(
		uint32(lay.c), uint32(lay.s), uint32(size), 0))
	defer fwdParams.Release()

	err = a.dispatch("bn_forward", bnForwardShader, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, xBuf, 0, uint64(x.ByteSize())),
		wgpu.BufferBindingEntry(1, gammaBuf, 0, channelBytes),
		wgpu.BufferBindingEntry(2, betaBuf, 0, channelBytes),
		wgpu.BufferBindingEntry(3, meanBuf, 0, channelBytes),
		wgpu.BufferBindingEntry(4, invStdBuf, 0, channelBytes),
		wgpu.BufferBindingEntry(5, yBuf, 0, uint64(x.ByteSize())),
		wgpu.BufferBindingEntry(6, fwdParams, 0, 16),
	}, workgroups(size, 256))
	if err != nil {
		return nil, nil, nil, err
	}

	y, err := a.readInto(yBuf, x.Shape())
	if err != nil {
		return nil, nil, nil, err
	}
	mean, err := a.readInto(meanBuf, gamma.Shape())
	if err != nil {
		return nil, nil, nil, err
	}
	variance, err := a.readInto(varBuf, gamma.Shape())
	if err != nil {
		return nil, nil, nil, err
	}
	invStd, err := a.readInto(invStdBuf, gamma.Shape())
	if err != nil {
		return nil, nil, nil, err
	}

	updateRunningHost(runningMean, runningVar, mean, variance, decay, lay.n*lay.s)

	return y, mean, invStd, nil
}

// ForwardInference runs the fused fixed-statistics forward pass.
func (k *Kernel) ForwardInference(x, gamma, beta, mean, variance *tensor.RawTensor,
	keyAxis []int, eps float64) (*tensor.RawTensor, error) {

	lay, ok := resolveLayout(x.Shape(), keyAxis)
	if !ok {
		return nil, fmt.Errorf("webgpu: layout %v with key axis %v not accelerable", x.Shape(), keyAxis)
	}
	a := k.acc
	channelBytes := uint64(lay.c * 4)
	size := x.NumElements()

	xBuf := a.createBuffer(x.Data(), wgpu.BufferUsageStorage)
	defer xBuf.Release()
	gammaBuf := a.createBuffer(gamma.Data(), wgpu.BufferUsageStorage)
	defer gammaBuf.Release()
	betaBuf := a.createBuffer(beta.Data(), wgpu.BufferUsageStorage)
	defer betaBuf.Release()
	meanBuf := a.createBuffer(mean.Data(), wgpu.BufferUsageStorage)
	defer meanBuf.Release()
	varBuf := a.createBuffer(variance.Data(), wgpu.BufferUsageStorage)
	defer varBuf.Release()
	yBuf := a.createEmptyBuffer(uint64(x.ByteSize()))
	defer yBuf.Release()

	params := a.createUniformBuffer(packParams(
		uint32(lay.c), uint32(lay.s), uint32(size), math.Float32bits(float32(eps))))
	defer params.Release()

	err := a.dispatch("bn_inference", bnInferenceShader, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, xBuf, 0, uint64(x.ByteSize())),
		wgpu.BufferBindingEntry(1, gammaBuf, 0, channelBytes),
		wgpu.BufferBindingEntry(2, betaBuf, 0, channelBytes),
		wgpu.BufferBindingEntry(3, meanBuf, 0, channelBytes),
		wgpu.BufferBindingEntry(4, varBuf, 0, channelBytes),
		wgpu.BufferBindingEntry(5, yBuf, 0, uint64(x.ByteSize())),
		wgpu.BufferBindingEntry(6, params, 0, 16),
	}, workgroups(size, 256))
	if err != nil {
		return nil, err
	}

	return a.readInto(yBuf, x.Shape())
}

// Backward runs the fused first-order backward pass, consuming the mean and
// inverse standard deviation produced by the paired ForwardTraining call.
func (k *Kernel) Backward(x, gamma, gy, mean, invStd *tensor.RawTensor,
	keyAxis []int, eps float64) (*tensor.RawTensor, *tensor.RawTensor, *tensor.RawTensor, error) {

	lay, ok := resolveLayout(x.Shape(), keyAxis)
	if !ok {
		return nil, nil, nil, fmt.Errorf("webgpu: layout %v with key axis %v not accelerable", x.Shape(), keyAxis)
	}
	a := k.acc
	channelBytes := uint64(lay.c * 4)
	size := x.NumElements()
	byteSize := uint64(x.ByteSize())

	xBuf := a.createBuffer(x.Data(), wgpu.BufferUsageStorage)
	defer xBuf.Release()
	gammaBuf := a.createBuffer(gamma.Data(), wgpu.BufferUsageStorage)
	defer gammaBuf.Release()
	gyBuf := a.createBuffer(gy.Data(), wgpu.BufferUsageStorage)
	defer gyBuf.Release()
	meanBuf := a.createBuffer(mean.Data(), wgpu.BufferUsageStorage)
	defer meanBuf.Release()
	invStdBuf := a.createBuffer(invStd.Data(), wgpu.BufferUsageStorage)
	defer invStdBuf.Release()
	ggammaBuf := a.createEmptyBuffer(channelBytes)
	defer ggammaBuf.Release()
	gbetaBuf := a.createEmptyBuffer(channelBytes)
	defer gbetaBuf.Release()
	gxBuf := a.createEmptyBuffer(byteSize)
	defer gxBuf.Release()

	reduceParams := a.createUniformBuffer(packParams(
		uint32(lay.n), uint32(lay.c), uint32(lay.s), 0))
	defer reduceParams.Release()

	err := a.dispatch("bn_backward_reduce", bnBackwardReduceShader, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, xBuf, 0, byteSize),
		wgpu.BufferBindingEntry(1, gyBuf, 0, byteSize),
		wgpu.BufferBindingEntry(2, meanBuf, 0, channelBytes),
		wgpu.BufferBindingEntry(3, invStdBuf, 0, channelBytes),
		wgpu.BufferBindingEntry(4, ggammaBuf, 0, channelBytes),
		wgpu.BufferBindingEntry(5, gbetaBuf, 0, channelBytes),
		wgpu.BufferBindingEntry(6, reduceParams, 0, 16),
	}, workgroups(lay.c, 64))
	if err != nil {
		return nil, nil, nil, err
	}

	invM := float32(1.0 / float64(lay.n*lay.s))
	gxParams := a.createUniformBuffer(packParams(
		uint32(lay.c), uint32(lay.s), uint32(size), math.Float32bits(invM)))
	defer gxParams.Release()

	err = a.dispatch("bn_backward_gx", bnBackwardGxShader, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, xBuf, 0, byteSize),
		wgpu.BufferBindingEntry(1, gammaBuf, 0, channelBytes),
		wgpu.BufferBindingEntry(2, gyBuf, 0, byteSize),
		wgpu.BufferBindingEntry(3, meanBuf, 0, channelBytes),
		wgpu.BufferBindingEntry(4, invStdBuf, 0, channelBytes),
		wgpu.BufferBindingEntry(5, ggammaBuf, 0, channelBytes),
		wgpu.BufferBindingEntry(6, gbetaBuf, 0, channelBytes),
		wgpu.BufferBindingEntry(7, gxBuf, 0, byteSize),
		wgpu.BufferBindingEntry(8, gxParams, 0, 16),
	}, workgroups(size, 256))
	if err != nil {
		return nil, nil, nil, err
	}

	gx, err := a.readInto(gxBuf, x.Shape())
	if err != nil {
		return nil, nil, nil, err
	}
	ggamma, err := a.readInto(ggammaBuf, gamma.Shape())
	if err != nil {
		return nil, nil, nil, err
	}
	gbeta, err := a.readInto(gbetaBuf, gamma.Shape())
	if err != nil {
		return nil, nil, nil, err
	}
	return gx, ggamma, gbeta, nil
}

// readInto reads a GPU buffer back into a freshly allocated float32 tensor.
func (a *Accelerator) readInto(buf *wgpu.Buffer, shape tensor.Shape) (*tensor.RawTensor, error) {
	t, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, err
	}
	data, err := a.readBuffer(buf, uint64(t.ByteSize()))
	if err != nil {
		return nil, err
	}
	copy(t.Data(), data)
	return t, nil
}

// updateRunningHost folds the batch statistics into the running buffers on
// the host:
//
//	running_mean = decay*running_mean + (1-decay)*mean
//	running_var  = decay*running_var  + (1-decay)*adjust*var
//
// adjust = m/max(m-1, 1) matches the generic path's unbiased-variance
// estimate, so the two paths keep running buffers interchangeable.
func updateRunningHost(runningMean, runningVar, mean, variance *tensor.RawTensor, decay float64, m int) {
	adjust := float32(float64(m) / float64(max(m-1, 1)))
	d := float32(decay)

	rm := runningMean.AsFloat32()
	rv := runningVar.AsFloat32()
	bm := mean.AsFloat32()
	bv := variance.AsFloat32()
	for i := range rm {
		rm[i] = d*rm[i] + (1-d)*bm[i]
		rv[i] = d*rv[i] + (1-d)*adjust*bv[i]
	}
}

// packParams encodes four 32-bit words for a uniform buffer.
func packParams(words ...uint32) []byte {
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

// workgroups returns the dispatch count covering n items at the given
// workgroup size.
func workgroups(n, size int) uint32 {
	return uint32((n + size - 1) / size)
}

// Package cpu implements the generic CPU backend for the batch
// normalization core: elementwise arithmetic with broadcasting, unary math
// kernels, and multi-axis reductions.
package cpu

import (
	"fmt"

	"github.com/born-ml/batchnorm/internal/tensor"
)

// CPUBackend implements tensor operations on CPU.
type CPUBackend struct {
	device tensor.Device
}

// New creates a new CPU backend.
func New() *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp("add", a, b)
}

// Sub performs element-wise subtraction with broadcasting.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp("sub", a, b)
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp("mul", a, b)
}

// Div performs element-wise division with broadcasting.
func (cpu *CPUBackend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp("div", a, b)
}

// binaryOp dispatches an elementwise binary operation, choosing the
// vectorized same-shape path or the broadcasting path.
func (cpu *CPUBackend) binaryOp(name string, a, b *tensor.RawTensor) *tensor.RawTensor {
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("%s: dtype mismatch: %s vs %s", name, a.DType(), b.DType()))
	}

	outShape, needsBroadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	result, err := tensor.NewRaw(outShape, a.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", name, err))
	}

	switch a.DType() {
	case tensor.Float32:
		if !needsBroadcast && a.Shape().Equal(b.Shape()) {
			vectorizedFloat32(name, result.AsFloat32(), a.AsFloat32(), b.AsFloat32())
		} else {
			broadcastFloat32(name, result.AsFloat32(), a.AsFloat32(), b.AsFloat32(), a.Shape(), b.Shape(), outShape)
		}
	case tensor.Float64:
		if !needsBroadcast && a.Shape().Equal(b.Shape()) {
			vectorizedFloat64(name, result.AsFloat64(), a.AsFloat64(), b.AsFloat64())
		} else {
			broadcastFloat64(name, result.AsFloat64(), a.AsFloat64(), b.AsFloat64(), a.Shape(), b.Shape(), outShape)
		}
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s (compute kernels are float32/float64; cast float16 first)", name, a.DType()))
	}

	return result
}

package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/batchnorm/internal/tensor"
)

// Sqrt computes element-wise square root: sqrt(x).
func (cpu *CPUBackend) Sqrt(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryOp("sqrt", x,
		func(v float32) float32 {
			if v < 0 {
				panic(fmt.Sprintf("sqrt: negative value %f", v))
			}
			return float32(math.Sqrt(float64(v)))
		},
		func(v float64) float64 {
			if v < 0 {
				panic(fmt.Sprintf("sqrt: negative value %f", v))
			}
			return math.Sqrt(v)
		})
}

// Rsqrt computes element-wise reciprocal square root: 1/sqrt(x).
// This is the inverse-standard-deviation kernel of the statistics engine.
func (cpu *CPUBackend) Rsqrt(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryOp("rsqrt", x,
		func(v float32) float32 {
			if v <= 0 {
				panic(fmt.Sprintf("rsqrt: non-positive value %f", v))
			}
			return 1.0 / float32(math.Sqrt(float64(v)))
		},
		func(v float64) float64 {
			if v <= 0 {
				panic(fmt.Sprintf("rsqrt: non-positive value %f", v))
			}
			return 1.0 / math.Sqrt(v)
		})
}

// Reciprocal computes element-wise reciprocal: 1/x.
func (cpu *CPUBackend) Reciprocal(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryOp("reciprocal", x,
		func(v float32) float32 { return 1.0 / v },
		func(v float64) float64 { return 1.0 / v })
}

// Neg computes element-wise negation: -x.
func (cpu *CPUBackend) Neg(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryOp("neg", x,
		func(v float32) float32 { return -v },
		func(v float64) float64 { return -v })
}

// AddScalar adds a scalar to every element.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	s32 := float32(scalar)
	return cpu.unaryOp("addscalar", x,
		func(v float32) float32 { return v + s32 },
		func(v float64) float64 { return v + scalar })
}

// MulScalar multiplies every element by a scalar.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	s32 := float32(scalar)
	return cpu.unaryOp("mulscalar", x,
		func(v float32) float32 { return v * s32 },
		func(v float64) float64 { return v * scalar })
}

// unaryOp applies an elementwise function per dtype.
func (cpu *CPUBackend) unaryOp(name string, x *tensor.RawTensor, f32 func(float32) float32, f64 func(float64) float64) *tensor.RawTensor {
	result, err := tensor.NewRaw(x.Shape(), x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	switch x.DType() {
	case tensor.Float32:
		src := x.AsFloat32()
		dst := result.AsFloat32()
		for i, v := range src {
			dst[i] = f32(v)
		}
	case tensor.Float64:
		src := x.AsFloat64()
		dst := result.AsFloat64()
		for i, v := range src {
			dst[i] = f64(v)
		}
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s (compute kernels are float32/float64; cast float16 first)", name, x.DType()))
	}

	return result
}

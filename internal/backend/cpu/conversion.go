package cpu

import (
	"fmt"

	"github.com/born-ml/batchnorm/internal/tensor"
)

// Cast converts a tensor to a different floating-point data type.
// Float16 conversion goes through float32, matching IEEE half semantics.
func (cpu *CPUBackend) Cast(x *tensor.RawTensor, dtype tensor.DataType) *tensor.RawTensor {
	if x.DType() == dtype {
		return x.Clone()
	}

	result, err := tensor.NewRaw(x.Shape(), dtype, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("cast: %v", err))
	}

	n := x.NumElements()
	for i := 0; i < n; i++ {
		var v float64
		switch x.DType() {
		case tensor.Float16:
			v = float64(tensor.Float16ToFloat32(x.AsFloat16Bits()[i]))
		case tensor.Float32:
			v = float64(x.AsFloat32()[i])
		case tensor.Float64:
			v = x.AsFloat64()[i]
		default:
			panic(fmt.Sprintf("cast: unsupported source dtype %s", x.DType()))
		}

		switch dtype {
		case tensor.Float16:
			result.AsFloat16Bits()[i] = tensor.Float16FromFloat32(float32(v))
		case tensor.Float32:
			result.AsFloat32()[i] = float32(v)
		case tensor.Float64:
			result.AsFloat64()[i] = v
		default:
			panic(fmt.Sprintf("cast: unsupported target dtype %s", dtype))
		}
	}

	return result
}

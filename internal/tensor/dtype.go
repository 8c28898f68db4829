// Package tensor provides the core tensor types for the batchnorm module.
package tensor

import "github.com/x448/float16"

// DataType represents runtime type information for tensors.
//
// Batch normalization is defined over floating-point data only, so the
// supported set is the three IEEE float widths. Float16 is a storage type:
// kernels compute in float32 and convert at the boundary.
type DataType int

// Supported data types for tensors.
const (
	Float16 DataType = iota
	Float32
	Float64
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float16:
		return 2
	case Float32:
		return 4
	case Float64:
		return 8
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float16:
		return "float16"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "unknown"
	}
}

// IsFloat reports whether the data type is a floating-point type.
// All supported types currently are; the method exists so validation reads
// as intent rather than as a tautology at call sites.
func (dt DataType) IsFloat() bool {
	switch dt {
	case Float16, Float32, Float64:
		return true
	default:
		return false
	}
}

// Float16FromFloat32 converts a float32 value to its IEEE 754 half-precision
// bit pattern.
func Float16FromFloat32(v float32) uint16 {
	return uint16(float16.Fromfloat32(v))
}

// Float16ToFloat32 converts an IEEE 754 half-precision bit pattern to float32.
func Float16ToFloat32(bits uint16) float32 {
	return float16.Float16(bits).Float32()
}

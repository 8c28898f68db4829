package tensor

import (
	"fmt"
	"math/rand"
)

// Zeros creates a zero-filled RawTensor.
func Zeros(shape Shape, dtype DataType, device Device) *RawTensor {
	raw, err := NewRaw(shape, dtype, device)
	if err != nil {
		panic(err) // Shape validation should prevent this
	}
	// Data is already zero-initialized by make()
	return raw
}

// ZerosLike creates a zero-filled RawTensor with the same shape, dtype and
// device as the reference tensor.
func ZerosLike(t *RawTensor) *RawTensor {
	return Zeros(t.Shape(), t.DType(), t.Device())
}

// Full creates a RawTensor filled with a specific value.
func Full(shape Shape, value float64, dtype DataType, device Device) *RawTensor {
	t := Zeros(shape, dtype, device)
	switch dtype {
	case Float16:
		bits := Float16FromFloat32(float32(value))
		data := t.AsFloat16Bits()
		for i := range data {
			data[i] = bits
		}
	case Float32:
		data := t.AsFloat32()
		v := float32(value)
		for i := range data {
			data[i] = v
		}
	case Float64:
		data := t.AsFloat64()
		for i := range data {
			data[i] = value
		}
	default:
		panic(fmt.Sprintf("full: unsupported dtype %s", dtype))
	}
	return t
}

// FromFloat32 creates a Float32 RawTensor from a slice.
// The slice length must equal the shape's element count.
func FromFloat32(data []float32, shape Shape, device Device) (*RawTensor, error) {
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)",
			len(data), shape, shape.NumElements())
	}
	t := Zeros(shape, Float32, device)
	copy(t.AsFloat32(), data)
	return t, nil
}

// FromFloat64 creates a Float64 RawTensor from a slice.
// The slice length must equal the shape's element count.
func FromFloat64(data []float64, shape Shape, device Device) (*RawTensor, error) {
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)",
			len(data), shape, shape.NumElements())
	}
	t := Zeros(shape, Float64, device)
	copy(t.AsFloat64(), data)
	return t, nil
}

// Randn creates a RawTensor with values drawn from a standard normal
// distribution using the provided source. Float32 and Float64 only.
// Note: uses math/rand (not crypto/rand) - appropriate for ML/statistical purposes.
func Randn(shape Shape, dtype DataType, device Device, rng *rand.Rand) *RawTensor {
	t := Zeros(shape, dtype, device)
	switch dtype {
	case Float32:
		data := t.AsFloat32()
		for i := range data {
			data[i] = float32(rng.NormFloat64())
		}
	case Float64:
		data := t.AsFloat64()
		for i := range data {
			data[i] = rng.NormFloat64()
		}
	default:
		panic("Randn only supports float32 and float64 types")
	}
	return t
}

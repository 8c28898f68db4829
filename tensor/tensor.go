// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public tensor types for the batch
// normalization module.
//
// The package re-exports the core types:
//   - RawTensor: dense row-major buffer with shape and runtime type info
//   - Backend: interface for device-specific compute implementations
//   - Shape, DataType, Device: core type definitions
//
// Example:
//
//	backend := cpu.New()
//	x, _ := tensor.FromFloat32(data, tensor.Shape{2, 3, 4, 4}, tensor.CPU)
package tensor

import (
	"math/rand"

	"github.com/born-ml/batchnorm/internal/tensor"
)

// DataType represents the underlying element type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float16 DataType = tensor.Float16
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
)

// Device represents the device where tensor data resides.
type Device = tensor.Device

// Device constants.
const (
	CPU    Device = tensor.CPU
	WebGPU Device = tensor.WebGPU
)

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4} represents a 3D tensor with dimensions 2×3×4.
type Shape = tensor.Shape

// RawTensor is the dense tensor representation all operations work on.
type RawTensor = tensor.RawTensor

// Backend is the compute interface consumed by the normalization engine.
type Backend = tensor.Backend

// NewRaw creates a zero-initialized RawTensor with the given shape and type.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// Zeros creates a zero-filled RawTensor.
func Zeros(shape Shape, dtype DataType, device Device) *RawTensor {
	return tensor.Zeros(shape, dtype, device)
}

// ZerosLike creates a zero-filled RawTensor shaped like the reference.
func ZerosLike(t *RawTensor) *RawTensor {
	return tensor.ZerosLike(t)
}

// Full creates a RawTensor filled with a specific value.
func Full(shape Shape, value float64, dtype DataType, device Device) *RawTensor {
	return tensor.Full(shape, value, dtype, device)
}

// FromFloat32 creates a Float32 RawTensor from a slice.
func FromFloat32(data []float32, shape Shape, device Device) (*RawTensor, error) {
	return tensor.FromFloat32(data, shape, device)
}

// FromFloat64 creates a Float64 RawTensor from a slice.
func FromFloat64(data []float64, shape Shape, device Device) (*RawTensor, error) {
	return tensor.FromFloat64(data, shape, device)
}

// Randn creates a RawTensor with standard-normal values from the source.
func Randn(shape Shape, dtype DataType, device Device, rng *rand.Rand) *RawTensor {
	return tensor.Randn(shape, dtype, device, rng)
}

// BroadcastShapes implements NumPy-style broadcasting rules, returning the
// broadcasted shape and whether broadcasting is needed.
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	return tensor.BroadcastShapes(a, b)
}

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the GPU-accelerated batch normalization kernels.
//
// WebGPU is a cross-platform graphics and compute API that works on
// Windows (D3D12), macOS (Metal), and Linux (Vulkan). The kernels here
// implement the fused forward and first-order backward passes for the
// tensor layouts the shaders support; every other call falls back to the
// generic CPU path automatically.
//
// Example:
//
//	acc, err := webgpu.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer acc.Close()
//
//	bn, _ := batchnorm.New(batchnorm.WithKernel(webgpu.NewKernel(acc)))
package webgpu

import (
	"github.com/born-ml/batchnorm/batchnorm"
	internalwebgpu "github.com/born-ml/batchnorm/internal/backend/webgpu"
)

// Accelerator owns the WebGPU device state and the shader and pipeline
// caches. Call Close when done to free GPU resources.
type Accelerator = internalwebgpu.Accelerator

// Kernel is the fused batch normalization kernel running on an Accelerator.
type Kernel = internalwebgpu.Kernel

// Compile-time check that Kernel implements batchnorm.Kernel.
var _ batchnorm.Kernel = (*Kernel)(nil)

// New creates a new WebGPU accelerator. Returns an error if the native
// WebGPU library or a suitable adapter is not available.
func New() (*Accelerator, error) {
	return internalwebgpu.New()
}

// NewKernel wraps an Accelerator as a batch normalization kernel for use
// with batchnorm.WithKernel.
func NewKernel(acc *Accelerator) *Kernel {
	return internalwebgpu.NewKernel(acc)
}

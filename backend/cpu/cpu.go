// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure-Go CPU compute backend.
package cpu

import (
	internalcpu "github.com/born-ml/batchnorm/internal/backend/cpu"
	"github.com/born-ml/batchnorm/tensor"
)

// Backend represents the CPU backend implementation.
//
// It provides pure Go implementations of the element-wise, reduction, and
// conversion operations the normalization engine needs, with vectorized
// float64 kernels via gonum.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a new CPU backend.
//
// Example:
//
//	backend := cpu.New()
//	bn, _ := batchnorm.New()
//	y, st, err := bn.Forward(backend, x, gamma, beta)
func New() *Backend {
	return internalcpu.New()
}

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package batchnorm provides batch normalization with full first- and
// second-order gradient support.
//
// Two function objects cover the two modes:
//   - BatchNorm normalizes with statistics computed from the batch and
//     maintains exponential running averages (training mode).
//   - FixedBatchNorm normalizes with caller-supplied statistics and also
//     differentiates through them (inference mode).
//
// Each forward call returns an explicit state value that the matching
// backward call consumes; each backward call returns a state for the
// double-backward call. Nothing is cached implicitly.
//
// Example:
//
//	backend := cpu.New()
//	bn, _ := batchnorm.New(batchnorm.WithDecay(0.99))
//	y, st, err := bn.Forward(backend, x, gamma, beta)
//	grads, gst, err := bn.Backward(backend, st, gy)
package batchnorm

import (
	internal "github.com/born-ml/batchnorm/internal/batchnorm"
	"github.com/born-ml/batchnorm/tensor"
)

// Defaults for the configuration surface.
const (
	DefaultEps   = internal.DefaultEps
	DefaultDecay = internal.DefaultDecay
)

// Error kinds reported by validation. Test with errors.Is.
var (
	ErrShapeMismatch   = internal.ErrShapeMismatch
	ErrTypeMismatch    = internal.ErrTypeMismatch
	ErrInvalidAxisSpec = internal.ErrInvalidAxisSpec
	ErrEpsilonTooSmall = internal.ErrEpsilonTooSmall
)

// BatchNorm is the training-mode batch normalization function object.
type BatchNorm = internal.BatchNorm

// FixedBatchNorm is the fixed-statistics batch normalization function
// object.
type FixedBatchNorm = internal.FixedBatchNorm

// Kernel is an accelerated alternative implementation of the forward and
// first-order backward passes, attached with WithKernel.
type Kernel = internal.Kernel

// Plan is the resolved reduction-axis metadata for one shape pair.
type Plan = internal.Plan

// Option configures a BatchNorm or FixedBatchNorm at construction time.
type Option = internal.Option

// Configuration options.
var (
	WithEps          = internal.WithEps
	WithDecay        = internal.WithDecay
	WithAxis         = internal.WithAxis
	WithRunningStats = internal.WithRunningStats
	WithKernel       = internal.WithKernel
)

// Per-call state and result types.
type (
	// ForwardState is returned by BatchNorm.Forward and consumed by
	// BatchNorm.Backward.
	ForwardState = internal.ForwardState
	// Gradients is the training-mode first-order gradient tuple.
	Gradients = internal.Gradients
	// GradState is returned by BatchNorm.Backward and consumed by
	// BatchNorm.DoubleBackward.
	GradState = internal.GradState
	// GradOutputs carries upstream gradients into the training-mode
	// double backward. Nil fields mean "no contribution".
	GradOutputs = internal.GradOutputs
	// SecondGradients is the training-mode second-order gradient tuple.
	SecondGradients = internal.SecondGradients

	// FixedForwardState is returned by FixedBatchNorm.Forward.
	FixedForwardState = internal.FixedForwardState
	// FixedGradients is the fixed-mode first-order gradient tuple.
	FixedGradients = internal.FixedGradients
	// FixedGradState is returned by FixedBatchNorm.Backward.
	FixedGradState = internal.FixedGradState
	// FixedGradOutputs carries upstream gradients into the fixed-mode
	// double backward.
	FixedGradOutputs = internal.FixedGradOutputs
	// FixedSecondGradients is the fixed-mode second-order gradient tuple.
	FixedSecondGradients = internal.FixedSecondGradients
)

// New creates a training-mode batch normalization function.
func New(opts ...Option) (*BatchNorm, error) {
	return internal.New(opts...)
}

// NewFixed creates a fixed-statistics batch normalization function.
func NewFixed(opts ...Option) (*FixedBatchNorm, error) {
	return internal.NewFixed(opts...)
}

// Forward is the one-shot training-mode convenience: it builds a throwaway
// BatchNorm, runs one forward pass, and discards the running statistics.
// Use a BatchNorm value to keep running statistics across calls.
func Forward(b tensor.Backend, x, gamma, beta *tensor.RawTensor, opts ...Option) (*tensor.RawTensor, *ForwardState, error) {
	bn, err := New(opts...)
	if err != nil {
		return nil, nil, err
	}
	return bn.Forward(b, x, gamma, beta)
}

// FixedForward is the one-shot fixed-statistics convenience.
func FixedForward(b tensor.Backend, x, gamma, beta, mean, variance *tensor.RawTensor, opts ...Option) (*tensor.RawTensor, *FixedForwardState, error) {
	bn, err := NewFixed(opts...)
	if err != nil {
		return nil, nil, err
	}
	return bn.Forward(b, x, gamma, beta, mean, variance)
}

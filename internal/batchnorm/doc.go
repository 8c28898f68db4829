// Package batchnorm implements the forward, backward, and double-backward
// computation of batch normalization over dense floating-point tensors.
//
// The package provides two function objects:
//   - BatchNorm: training mode. Computes batch statistics, updates
//     exponential-moving-average running statistics in place, and caches
//     the batch mean and inverse standard deviation for the paired
//     backward call.
//   - FixedBatchNorm: inference mode. Normalizes with caller-supplied
//     mean and variance and additionally produces gradients with respect
//     to those statistics.
//
// Per-call state is threaded explicitly: Forward returns a state value that
// the paired Backward consumes, and Backward returns a state value that the
// paired DoubleBackward consumes. States must not be shared across calls;
// each forward/backward pairing owns its own instance. The only in-place
// mutation in the package is the update of the running-statistics buffers
// owned jointly with the calling layer.
//
// An accelerated kernel (see Kernel) may be attached to fuse the statistics
// and normalization stages for supported layouts. The second-order engine
// has no accelerated path and always uses the generic formulas.
package batchnorm

package batchnorm

import (
	"github.com/pkg/errors"

	"github.com/born-ml/batchnorm/internal/tensor"
)

// Defaults for the configuration surface.
const (
	DefaultEps   = 2e-5
	DefaultDecay = 0.9
)

type config struct {
	eps         float64
	decay       float64
	axis        []int // nil = legacy convention
	kernel      Kernel
	runningMean *tensor.RawTensor
	runningVar  *tensor.RawTensor
}

// Option configures a BatchNorm or FixedBatchNorm at construction time.
type Option func(*config) error

// WithEps sets the numerical-stability epsilon (default 2e-5). When an
// accelerated kernel is attached the value is checked against the kernel's
// minimum at construction.
func WithEps(eps float64) Option {
	return func(c *config) error {
		c.eps = eps
		return nil
	}
}

// WithDecay sets the exponential decay rate of the running statistics
// (default 0.9). Training mode only.
func WithDecay(decay float64) Option {
	return func(c *config) error {
		c.decay = decay
		return nil
	}
}

// WithAxis sets an explicit reduction axis set. Without it the legacy
// convention applies: axis 0 plus every axis after the channel axes.
func WithAxis(axes ...int) Option {
	return func(c *config) error {
		if len(axes) == 0 {
			return errors.Wrap(ErrInvalidAxisSpec, "explicit axis set must not be empty")
		}
		seen := make(map[int]bool, len(axes))
		for _, ax := range axes {
			if seen[ax] {
				return errors.Wrapf(ErrInvalidAxisSpec, "duplicate axis %d", ax)
			}
			seen[ax] = true
		}
		c.axis = append([]int(nil), axes...)
		return nil
	}
}

// WithRunningStats attaches caller-owned running-statistics buffers. The
// buffers must agree with each other in shape and element type here, and
// with gamma's channel shape at forward time; they are mutated in place by
// training forward calls. Without this option the buffers are created
// lazily, zero-initialized, on the first forward call.
func WithRunningStats(mean, variance *tensor.RawTensor) Option {
	return func(c *config) error {
		if mean == nil || variance == nil {
			return errors.Wrap(ErrShapeMismatch, "running mean and variance must both be supplied")
		}
		if mean.DType() != variance.DType() {
			return errors.Wrapf(ErrTypeMismatch, "running mean is %s but running var is %s",
				mean.DType(), variance.DType())
		}
		if !mean.Shape().Equal(variance.Shape()) {
			return errors.Wrapf(ErrShapeMismatch, "running mean shape %v != running var shape %v",
				mean.Shape(), variance.Shape())
		}
		c.runningMean = mean
		c.runningVar = variance
		return nil
	}
}

// WithKernel attaches an accelerated kernel. The kernel is consulted per
// call and the generic path runs whenever it declines.
func WithKernel(k Kernel) Option {
	return func(c *config) error {
		c.kernel = k
		return nil
	}
}

func newConfig(opts []Option) (config, error) {
	c := config{
		eps:   DefaultEps,
		decay: DefaultDecay,
	}
	for _, opt := range opts {
		if err := opt(&c); err != nil {
			return config{}, err
		}
	}
	if c.kernel != nil && c.eps < c.kernel.MinEpsilon() {
		return config{}, errors.Wrapf(ErrEpsilonTooSmall,
			"eps %g is below the kernel minimum %g", c.eps, c.kernel.MinEpsilon())
	}
	return c, nil
}

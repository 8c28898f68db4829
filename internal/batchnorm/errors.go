package batchnorm

import "github.com/pkg/errors"

// Error kinds reported by validation. All are deterministic
// function-of-input conditions; none is transient or retryable.
var (
	// ErrShapeMismatch indicates that the channel-parameter shape does not
	// align with the input shape at the resolved key axes. Raised at forward
	// time, before any numeric work.
	ErrShapeMismatch = errors.New("batchnorm: shape mismatch")

	// ErrTypeMismatch indicates that the element types of x, gamma, and
	// beta disagree, or that x is not floating point.
	ErrTypeMismatch = errors.New("batchnorm: type mismatch")

	// ErrInvalidAxisSpec indicates a malformed axis specification
	// (empty or containing duplicates). Raised at construction.
	ErrInvalidAxisSpec = errors.New("batchnorm: invalid axis specification")

	// ErrEpsilonTooSmall indicates that the requested epsilon is below the
	// attached accelerated kernel's minimum. Raised at construction.
	ErrEpsilonTooSmall = errors.New("batchnorm: epsilon below accelerated-kernel minimum")
)

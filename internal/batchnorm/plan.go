package batchnorm

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/born-ml/batchnorm/internal/tensor"
)

// Plan is the resolved axis metadata for one input/parameter shape pair:
// the reduction axis set, the complementary key (channel) axes, and the
// broadcast-expansion shape that lifts channel-shaped tensors to the
// input's rank. A Plan is immutable after resolution and is reused across
// calls while the shapes stay the same.
type Plan struct {
	axis         []int        // sorted reduced axes
	keyAxis      []int        // sorted kept axes, len == rank(gamma)
	xShape       tensor.Shape // input shape the plan was resolved for
	channelShape tensor.Shape // == gamma shape
	expandShape  tensor.Shape // rank(x), channel sizes at key axes, 1 elsewhere
	m            int          // product of reduced-axis sizes
}

// resolvePlan computes the reduction axis set, key axes, and expansion shape
// for an input of shape xShape with channel parameters of shape gammaShape.
//
// axisSpec nil selects the legacy convention: axis 0 plus every axis after
// the channel axes is reduced, so the key axes are 1..M. A non-nil axisSpec
// lists the reduced axes explicitly (negative indices count from the end).
func resolvePlan(xShape, gammaShape tensor.Shape, axisSpec []int) (*Plan, error) {
	r := len(xShape)
	m := len(gammaShape)

	var axis []int
	if axisSpec == nil {
		if r < m+1 {
			return nil, errors.Wrapf(ErrShapeMismatch,
				"input rank %d must exceed channel rank %d under the legacy axis convention", r, m)
		}
		axis = make([]int, 0, r-m)
		axis = append(axis, 0)
		for i := m + 1; i < r; i++ {
			axis = append(axis, i)
		}
	} else {
		if r <= len(axisSpec) {
			return nil, errors.Wrapf(ErrShapeMismatch,
				"input rank %d must exceed the number of reduced axes %d", r, len(axisSpec))
		}
		axis = make([]int, 0, len(axisSpec))
		seen := make(map[int]bool, len(axisSpec))
		for _, ax := range axisSpec {
			if ax < 0 {
				ax += r
			}
			if ax < 0 || ax >= r {
				return nil, errors.Wrapf(ErrInvalidAxisSpec, "axis %d out of range for rank %d", ax, r)
			}
			if seen[ax] {
				return nil, errors.Wrapf(ErrInvalidAxisSpec, "duplicate axis %d", ax)
			}
			seen[ax] = true
			axis = append(axis, ax)
		}
		sort.Ints(axis)
	}

	reduced := make([]bool, r)
	for _, ax := range axis {
		reduced[ax] = true
	}

	keyAxis := make([]int, 0, r-len(axis))
	for i := 0; i < r; i++ {
		if !reduced[i] {
			keyAxis = append(keyAxis, i)
		}
	}

	if len(keyAxis) != m {
		return nil, errors.Wrapf(ErrShapeMismatch,
			"axis spec leaves %d key axes but channel parameters have rank %d", len(keyAxis), m)
	}

	expandShape := make(tensor.Shape, r)
	count := 1
	for i := range expandShape {
		expandShape[i] = 1
	}
	for i, j := range keyAxis {
		if gammaShape[i] != xShape[j] {
			return nil, errors.Wrapf(ErrShapeMismatch,
				"channel dimension %d has size %d but input axis %d has size %d",
				i, gammaShape[i], j, xShape[j])
		}
		expandShape[j] = gammaShape[i]
	}
	for _, ax := range axis {
		count *= xShape[ax]
	}

	return &Plan{
		axis:         axis,
		keyAxis:      keyAxis,
		xShape:       xShape.Clone(),
		channelShape: gammaShape.Clone(),
		expandShape:  expandShape,
		m:            count,
	}, nil
}

// Expand reshapes a channel-shaped tensor to the plan's expansion shape so
// that backend broadcasting lifts it to the input's rank. This is the
// original "expander": singleton dimensions are inserted at every reduced
// axis position.
func (p *Plan) Expand(b tensor.Backend, t *tensor.RawTensor) *tensor.RawTensor {
	return b.Reshape(t, p.expandShape)
}

// Axis returns the sorted reduced axis set.
func (p *Plan) Axis() []int {
	return append([]int(nil), p.axis...)
}

// KeyAxis returns the sorted kept (channel) axis set.
func (p *Plan) KeyAxis() []int {
	return append([]int(nil), p.keyAxis...)
}

// ReducedCount returns the number of elements reduced per channel.
func (p *Plan) ReducedCount() int {
	return p.m
}

// matches reports whether the plan can be reused for the given shapes.
func (p *Plan) matches(xShape, gammaShape tensor.Shape) bool {
	return p.xShape.Equal(xShape) && p.channelShape.Equal(gammaShape)
}

package batchnorm

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/batchnorm/internal/tensor"
)

func TestResolvePlan_LegacyConvention(t *testing.T) {
	plan, err := resolvePlan(tensor.Shape{2, 3, 4, 4}, tensor.Shape{3}, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 2, 3}, plan.Axis())
	assert.Equal(t, []int{1}, plan.KeyAxis())
	assert.Equal(t, 32, plan.ReducedCount())
	assert.Equal(t, tensor.Shape{1, 3, 1, 1}, plan.expandShape)
}

func TestResolvePlan_LegacyMultiAxisChannel(t *testing.T) {
	plan, err := resolvePlan(tensor.Shape{5, 3, 4, 7}, tensor.Shape{3, 4}, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 3}, plan.Axis())
	assert.Equal(t, []int{1, 2}, plan.KeyAxis())
	assert.Equal(t, 35, plan.ReducedCount())
	assert.Equal(t, tensor.Shape{1, 3, 4, 1}, plan.expandShape)
}

func TestResolvePlan_ExplicitMatchesLegacy(t *testing.T) {
	legacy, err := resolvePlan(tensor.Shape{2, 3, 4, 4}, tensor.Shape{3}, nil)
	require.NoError(t, err)

	explicit, err := resolvePlan(tensor.Shape{2, 3, 4, 4}, tensor.Shape{3}, []int{0, 2, 3})
	require.NoError(t, err)

	assert.Equal(t, legacy.Axis(), explicit.Axis())
	assert.Equal(t, legacy.KeyAxis(), explicit.KeyAxis())
	assert.Equal(t, legacy.expandShape, explicit.expandShape)
}

func TestResolvePlan_NegativeAxes(t *testing.T) {
	plan, err := resolvePlan(tensor.Shape{2, 3, 4, 4}, tensor.Shape{3}, []int{0, -2, -1})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 3}, plan.Axis())
}

func TestResolvePlan_ChannelLast(t *testing.T) {
	plan, err := resolvePlan(tensor.Shape{6, 4}, tensor.Shape{4}, []int{0})
	require.NoError(t, err)

	assert.Equal(t, []int{1}, plan.KeyAxis())
	assert.Equal(t, 6, plan.ReducedCount())
	assert.Equal(t, tensor.Shape{1, 4}, plan.expandShape)
}

func TestResolvePlan_Errors(t *testing.T) {
	tests := []struct {
		name   string
		xShape tensor.Shape
		gShape tensor.Shape
		axis   []int
		want   error
	}{
		{"legacy rank too low", tensor.Shape{3}, tensor.Shape{3}, nil, ErrShapeMismatch},
		{"explicit rank too low", tensor.Shape{2, 3}, tensor.Shape{3}, []int{0, 1}, ErrShapeMismatch},
		{"axis out of range", tensor.Shape{2, 3, 4}, tensor.Shape{3}, []int{0, 5}, ErrInvalidAxisSpec},
		{"axis out of range negative", tensor.Shape{2, 3, 4}, tensor.Shape{3}, []int{-5, 0}, ErrInvalidAxisSpec},
		{"duplicate after normalization", tensor.Shape{2, 3, 4}, tensor.Shape{3}, []int{0, -3}, ErrInvalidAxisSpec},
		{"key axis count mismatch", tensor.Shape{2, 3, 4, 4}, tensor.Shape{3}, []int{0}, ErrShapeMismatch},
		{"channel size mismatch", tensor.Shape{2, 3, 4, 4}, tensor.Shape{5}, nil, ErrShapeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolvePlan(tt.xShape, tt.gShape, tt.axis)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}
}

func TestPlan_Matches(t *testing.T) {
	plan, err := resolvePlan(tensor.Shape{2, 3, 4, 4}, tensor.Shape{3}, nil)
	require.NoError(t, err)

	assert.True(t, plan.matches(tensor.Shape{2, 3, 4, 4}, tensor.Shape{3}))
	assert.False(t, plan.matches(tensor.Shape{4, 3, 4, 4}, tensor.Shape{3}))
	assert.False(t, plan.matches(tensor.Shape{2, 3, 4, 4}, tensor.Shape{4}))
}

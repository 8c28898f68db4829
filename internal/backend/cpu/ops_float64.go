package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/batchnorm/internal/parallel"
	"github.com/born-ml/batchnorm/internal/tensor"
)

// Float64 vectorized operations (same shape, no broadcasting).
// The same-shape paths delegate to gonum's floats package.

func vectorizedFloat64(name string, dst, a, b []float64) {
	switch name {
	case "add":
		floats.AddTo(dst, a, b)
	case "sub":
		floats.SubTo(dst, a, b)
	case "mul":
		floats.MulTo(dst, a, b)
	case "div":
		floats.DivTo(dst, a, b)
	default:
		panic(fmt.Sprintf("vectorizedFloat64: unknown op %q", name))
	}
}

// Float64 broadcasting operations.

func broadcastFloat64(name string, dst, a, b []float64, aShape, bShape, outShape tensor.Shape) {
	outStrides := outShape.ComputeStrides()
	aStrides := computeBroadcastStridesForShape(aShape, outShape)
	bStrides := computeBroadcastStridesForShape(bShape, outShape)

	n := outShape.NumElements()
	switch name {
	case "add":
		parallel.Ranges(n, par, func(start, end int) {
			for i := start; i < end; i++ {
				dst[i] = a[computeFlatIndex(i, outStrides, aStrides)] + b[computeFlatIndex(i, outStrides, bStrides)]
			}
		})
	case "sub":
		parallel.Ranges(n, par, func(start, end int) {
			for i := start; i < end; i++ {
				dst[i] = a[computeFlatIndex(i, outStrides, aStrides)] - b[computeFlatIndex(i, outStrides, bStrides)]
			}
		})
	case "mul":
		parallel.Ranges(n, par, func(start, end int) {
			for i := start; i < end; i++ {
				dst[i] = a[computeFlatIndex(i, outStrides, aStrides)] * b[computeFlatIndex(i, outStrides, bStrides)]
			}
		})
	case "div":
		parallel.Ranges(n, par, func(start, end int) {
			for i := start; i < end; i++ {
				dst[i] = a[computeFlatIndex(i, outStrides, aStrides)] / b[computeFlatIndex(i, outStrides, bStrides)]
			}
		})
	default:
		panic(fmt.Sprintf("broadcastFloat64: unknown op %q", name))
	}
}

package cpu

import (
	"fmt"

	"github.com/born-ml/batchnorm/internal/parallel"
	"github.com/born-ml/batchnorm/internal/tensor"
)

// par configures the chunked parallel loops shared by the broadcast
// kernels. Disjoint output ranges never alias, so chunking is safe.
var par = parallel.DefaultConfig()

// Float32 vectorized operations (same shape, no broadcasting).

func vectorizedFloat32(name string, dst, a, b []float32) {
	switch name {
	case "add":
		for i := range a {
			dst[i] = a[i] + b[i]
		}
	case "sub":
		for i := range a {
			dst[i] = a[i] - b[i]
		}
	case "mul":
		for i := range a {
			dst[i] = a[i] * b[i]
		}
	case "div":
		for i := range a {
			dst[i] = a[i] / b[i]
		}
	default:
		panic(fmt.Sprintf("vectorizedFloat32: unknown op %q", name))
	}
}

// Float32 broadcasting operations.

func broadcastFloat32(name string, dst, a, b []float32, aShape, bShape, outShape tensor.Shape) {
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
		panic(fmt.Sprintf("broadcastFloat32: unknown op %q", name))
	}
}

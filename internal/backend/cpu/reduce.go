package cpu

import (
	"fmt"
	"sort"

	"github.com/born-ml/batchnorm/internal/tensor"
)

// normalizeAxes validates an axis set against a rank, resolves negative
// indices, sorts and deduplicates.
func normalizeAxes(name string, axes []int, ndim int) []int {
	seen := make(map[int]bool, len(axes))
	out := make([]int, 0, len(axes))
	for _, ax := range axes {
		if ax < 0 {
			ax += ndim
		}
		if ax < 0 || ax >= ndim {
			panic(fmt.Sprintf("%s: axis %d out of range for %dD tensor", name, ax, ndim))
		}
		if !seen[ax] {
			seen[ax] = true
			out = append(out, ax)
		}
	}
	sort.Ints(out)
	return out
}

// reducedShapes returns the keep-dims output shape (reduced axes become 1)
// and the squeezed output shape (reduced axes removed).
func reducedShapes(shape tensor.Shape, axes []int) (keep, squeezed tensor.Shape) {
	reduced := make([]bool, len(shape))
	for _, ax := range axes {
		reduced[ax] = true
	}

	keep = shape.Clone()
	squeezed = make(tensor.Shape, 0, len(shape)-len(axes))
	for i, dim := range shape {
		if reduced[i] {
			keep[i] = 1
		} else {
			squeezed = append(squeezed, dim)
		}
	}
	return keep, squeezed
}

// SumAxes sums tensor elements over the given axis set.
func (cpu *CPUBackend) SumAxes(x *tensor.RawTensor, axes []int, keepDims bool) *tensor.RawTensor {
	shape := x.Shape()
	axes = normalizeAxes("sumaxes", axes, len(shape))
	keepShape, squeezedShape := reducedShapes(shape, axes)

	result, err := tensor.NewRaw(keepShape, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("sumaxes: %v", err))
	}

	switch x.DType() {
	case tensor.Float32:
		sumAxesFloat32(x.AsFloat32(), result.AsFloat32(), shape, axes)
	case tensor.Float64:
		sumAxesFloat64(x.AsFloat64(), result.AsFloat64(), shape, axes)
	default:
		panic(fmt.Sprintf("sumaxes: unsupported dtype %s (compute kernels are float32/float64; cast float16 first)", x.DType()))
	}

	if !keepDims {
		return cpu.Reshape(result, squeezedShape)
	}
	return result
}

// MeanAxes computes the mean of tensor elements over the given axis set.
func (cpu *CPUBackend) MeanAxes(x *tensor.RawTensor, axes []int, keepDims bool) *tensor.RawTensor {
	result := cpu.SumAxes(x, axes, keepDims)

	m := reducedElementCount(x.Shape(), normalizeAxes("meanaxes", axes, len(x.Shape())))
	divisor := float64(m)

	switch result.DType() {
	case tensor.Float32:
		data := result.AsFloat32()
		d := float32(divisor)
		for i := range data {
			data[i] /= d
		}
	case tensor.Float64:
		data := result.AsFloat64()
		for i := range data {
			data[i] /= divisor
		}
	}

	return result
}

// VarAxes computes the population variance over the given axis set
// (division by m, no Bessel correction).
func (cpu *CPUBackend) VarAxes(x *tensor.RawTensor, axes []int, keepDims bool) *tensor.RawTensor {
	shape := x.Shape()
	norm := normalizeAxes("varaxes", axes, len(shape))
	keepShape, squeezedShape := reducedShapes(shape, norm)

	mean := cpu.MeanAxes(x, norm, true)

	result, err := tensor.NewRaw(keepShape, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("varaxes: %v", err))
	}

	m := reducedElementCount(shape, norm)

	switch x.DType() {
	case tensor.Float32:
		varAxesFloat32(x.AsFloat32(), mean.AsFloat32(), result.AsFloat32(), shape, norm, m)
	case tensor.Float64:
		varAxesFloat64(x.AsFloat64(), mean.AsFloat64(), result.AsFloat64(), shape, norm, m)
	default:
		panic(fmt.Sprintf("varaxes: unsupported dtype %s (compute kernels are float32/float64; cast float16 first)", x.DType()))
	}

	if !keepDims {
		return cpu.Reshape(result, squeezedShape)
	}
	return result
}

// reducedElementCount returns the product of the reduced-axis sizes.
func reducedElementCount(shape tensor.Shape, axes []int) int {
	m := 1
	for _, ax := range axes {
		m *= shape[ax]
	}
	return m
}

// reduceIndexMap precomputes, per input dimension, the output stride to use
// when accumulating into the keep-dims result (0 for reduced dims).
func reduceIndexMap(shape tensor.Shape, axes []int) (inStrides, outStrides []int) {
	reduced := make([]bool, len(shape))
	for _, ax := range axes {
		reduced[ax] = true
	}

	keepShape := shape.Clone()
	for _, ax := range axes {
		keepShape[ax] = 1
	}

	inStrides = shape.ComputeStrides()
	outStrides = keepShape.ComputeStrides()
	for i := range outStrides {
		if reduced[i] {
			outStrides[i] = 0
		}
	}
	return inStrides, outStrides
}

func sumAxesFloat32(data, result []float32, shape tensor.Shape, axes []int) {
	inStrides, outStrides := reduceIndexMap(shape, axes)
	n := shape.NumElements()

	for i := 0; i < n; i++ {
		outIdx := 0
		temp := i
		for d := 0; d < len(shape); d++ {
			coord := temp / inStrides[d]
			temp %= inStrides[d]
			outIdx += coord * outStrides[d]
		}
		result[outIdx] += data[i]
	}
}

func sumAxesFloat64(data, result []float64, shape tensor.Shape, axes []int) {
	inStrides, outStrides := reduceIndexMap(shape, axes)
	n := shape.NumElements()

	for i := 0; i < n; i++ {
		outIdx := 0
		temp := i
		for d := 0; d < len(shape); d++ {
			coord := temp / inStrides[d]
			temp %= inStrides[d]
			outIdx += coord * outStrides[d]
		}
		result[outIdx] += data[i]
	}
}

func varAxesFloat32(data, mean, result []float32, shape tensor.Shape, axes []int, m int) {
	inStrides, outStrides := reduceIndexMap(shape, axes)
	n := shape.NumElements()

	for i := 0; i < n; i++ {
		outIdx := 0
		temp := i
		for d := 0; d < len(shape); d++ {
			coord := temp / inStrides[d]
			temp %= inStrides[d]
			outIdx += coord * outStrides[d]
		}
		diff := data[i] - mean[outIdx]
		result[outIdx] += diff * diff
	}

	d := float32(m)
	for i := range result {
		result[i] /= d
	}
}

func varAxesFloat64(data, mean, result []float64, shape tensor.Shape, axes []int, m int) {
	inStrides, outStrides := reduceIndexMap(shape, axes)
	n := shape.NumElements()

	for i := 0; i < n; i++ {
		outIdx := 0
		temp := i
		for d := 0; d < len(shape); d++ {
			coord := temp / inStrides[d]
			temp %= inStrides[d]
			outIdx += coord * outStrides[d]
		}
		diff := data[i] - mean[outIdx]
		result[outIdx] += diff * diff
	}

	d := float64(m)
	for i := range result {
		result[i] /= d
	}
}

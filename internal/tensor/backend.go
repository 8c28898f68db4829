package tensor

// Backend defines the operation surface the batch normalization core needs
// from a compute backend: elementwise arithmetic with NumPy-style
// broadcasting, a handful of unary math kernels, multi-axis reductions, and
// type conversion.
//
// Implementations:
//   - CPU: pure Go generic path (internal/backend/cpu)
//
// The accelerated WebGPU path does not implement this interface; it plugs in
// through the batchnorm.Kernel capability instead, because it fuses the
// statistics and normalization stages and cannot be decomposed into these
// primitive calls.
type Backend interface {
	// Element-wise binary operations with broadcasting
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Scalar operations (element-wise with scalar)
	AddScalar(x *RawTensor, scalar float64) *RawTensor
	MulScalar(x *RawTensor, scalar float64) *RawTensor

	// Math operations (element-wise)
	Sqrt(x *RawTensor) *RawTensor       // square root
	Rsqrt(x *RawTensor) *RawTensor      // reciprocal square root (1/sqrt(x))
	Reciprocal(x *RawTensor) *RawTensor // 1/x
	Neg(x *RawTensor) *RawTensor        // -x

	// Reduction operations over an axis set.
	// With keepDims=true reduced axes remain with size 1; with false they
	// are removed, leaving the kept axes in order.
	SumAxes(x *RawTensor, axes []int, keepDims bool) *RawTensor
	MeanAxes(x *RawTensor, axes []int, keepDims bool) *RawTensor
	// VarAxes computes the population variance (no Bessel correction),
	// matching numpy's default ddof=0.
	VarAxes(x *RawTensor, axes []int, keepDims bool) *RawTensor

	// Shape operations
	Reshape(t *RawTensor, newShape Shape) *RawTensor

	// Type conversion
	Cast(x *RawTensor, dtype DataType) *RawTensor

	// Metadata
	Name() string
	Device() Device
}

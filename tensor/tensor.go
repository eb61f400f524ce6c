// Package tensor is the public API for the host-side tensors the
// dispatch layer operates on. Data lives in ordinary Go memory; the
// compute backend uploads and reads it back per launch.
package tensor

import (
	"github.com/quarry-ml/quarry/internal/tensor"
)

// DType constrains the Go element types a tensor can hold.
type DType = tensor.DType

// DataType identifies a tensor's element type at runtime.
type DataType = tensor.DataType

const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Int32   DataType = tensor.Int32
	Uint32  DataType = tensor.Uint32
	Uint64  DataType = tensor.Uint64
)

// Shape holds tensor dimensions. Zero-sized dimensions are legal.
type Shape = tensor.Shape

// RawTensor is an untyped tensor over a flat byte buffer.
type RawTensor = tensor.RawTensor

// NewRaw allocates a zero-filled tensor.
func NewRaw(shape Shape, dtype DataType) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype)
}

// ZerosLike allocates a zero-filled tensor with t's shape and type.
func ZerosLike(t *RawTensor) *RawTensor {
	return tensor.ZerosLike(t)
}

// FromSlice builds a tensor from a Go slice in row-major order. The
// slice length must match the shape's element count.
func FromSlice[T DType](shape Shape, data []T) (*RawTensor, error) {
	return tensor.FromSlice(shape, data)
}

// Zeros allocates a zero-filled tensor with the element type T.
func Zeros[T DType](shape Shape) (*RawTensor, error) {
	return tensor.Zeros[T](shape)
}

// Lengths builds the int32 segment-lengths vector the windowing and
// reduction operations take.
func Lengths(lengths ...int32) *RawTensor {
	return tensor.Lengths(lengths...)
}

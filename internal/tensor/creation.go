package tensor

import "fmt"

// FromSlice creates a RawTensor with the given shape from a typed slice.
// The slice length must match the shape's element count; data is copied.
func FromSlice[T DType](shape Shape, data []T) (*RawTensor, error) {
	var dummy T
	dtype := inferDataType(dummy)

	raw, err := NewRaw(shape, dtype)
	if err != nil {
		return nil, err
	}
	if len(data) != raw.NumElements() {
		return nil, fmt.Errorf("data length %d does not match shape %s (%d elements)",
			len(data), shape, raw.NumElements())
	}
	copy(rawSlice[T](raw), data)
	return raw, nil
}

// Zeros creates a zero-initialized RawTensor of the element type T.
func Zeros[T DType](shape Shape) (*RawTensor, error) {
	var dummy T
	return NewRaw(shape, inferDataType(dummy))
}

// Lengths builds the int32 lengths vector describing how a flattened
// batch dimension is partitioned into variable-length segments.
func Lengths(lengths ...int32) *RawTensor {
	raw, err := FromSlice(Shape{len(lengths)}, lengths)
	if err != nil {
		panic(err) // 1-D shape is always valid
	}
	return raw
}

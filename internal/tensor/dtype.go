// Package tensor provides the host-side tensor buffers handed to the
// kernel dispatch layer.
package tensor

// DType is a constraint for supported tensor element types.
type DType interface {
	~float32 | ~float64 | ~int32 | ~uint32 | ~uint64
}

// DataType represents runtime type information for tensors.
type DataType int

// Supported element types. Float32 and Float64 are the compute types;
// Int32 is used for lengths and argmax index buffers, Uint32 for hash
// outputs and Uint64 for hash keys.
const (
	Float32 DataType = iota
	Float64
	Int32
	Uint32
	Uint64
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32, Uint32:
		return 4
	case Float64, Uint64:
		return 8
	default:
		panic("unknown data type")
	}
}

// IsFloat reports whether the type is one of the two compute types.
func (dt DataType) IsFloat() bool {
	return dt == Float32 || dt == Float64
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Uint32:
		return "uint32"
	case Uint64:
		return "uint64"
	default:
		return "unknown"
	}
}

// inferDataType infers DataType from a generic type T.
func inferDataType[T DType](dummy T) DataType {
	switch any(dummy).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case int32:
		return Int32
	case uint32:
		return Uint32
	case uint64:
		return Uint64
	default:
		panic("unsupported type")
	}
}

package ops

import "github.com/pkg/errors"

// Error kinds returned by the dispatch layer. Callers match them with
// errors.Is; the wrapped message carries the operation and offending
// values.
var (
	// ErrUnsupportedType reports an element type a kernel has no variant
	// for, or an auxiliary tensor (lengths, which, ids) of the wrong type.
	ErrUnsupportedType = errors.New("unsupported element type")

	// ErrShapeMismatch reports a gradient or auxiliary tensor whose shape
	// disagrees with the forward input.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrNegativeLength reports a negative entry in a lengths vector.
	ErrNegativeLength = errors.New("negative sequence length")

	// ErrLengthSum reports a lengths vector that does not sum to the
	// batch dimension it partitions.
	ErrLengthSum = errors.New("lengths must sum up to the batch size")

	// ErrIndexOutOfBounds reports a which index outside its valid range.
	ErrIndexOutOfBounds = errors.New("index out of bounds")

	// ErrBackendUnavailable reports a dispatch attempted without a
	// loaded kernel variant (no device, or no float64 support).
	ErrBackendUnavailable = errors.New("compute backend unavailable")
)

package ops

import (
	"github.com/pkg/errors"

	"github.com/quarry-ml/quarry/internal/tensor"
)

func checkFloat(op string, t *tensor.RawTensor) error {
	if !t.DType().IsFloat() {
		return errors.Wrapf(ErrUnsupportedType, "%s: got %s, want float32 or float64", op, t.DType())
	}
	return nil
}

func checkSameShape(op string, got, want *tensor.RawTensor) error {
	if !got.Shape().Equal(want.Shape()) {
		return errors.Wrapf(ErrShapeMismatch, "%s: got %s, want %s", op, got.Shape(), want.Shape())
	}
	if got.DType() != want.DType() {
		return errors.Wrapf(ErrUnsupportedType, "%s: got %s, want %s", op, got.DType(), want.DType())
	}
	return nil
}

// checkLengths validates a segment-lengths vector against the batch
// dimension it partitions and returns its entries.
func checkLengths(op string, lengths *tensor.RawTensor, total int) ([]int32, error) {
	if lengths.DType() != tensor.Int32 {
		return nil, errors.Wrapf(ErrUnsupportedType, "%s: lengths are %s, want int32", op, lengths.DType())
	}
	vals := lengths.AsInt32()
	var sum int64
	for i, l := range vals {
		if l < 0 {
			return nil, errors.Wrapf(ErrNegativeLength, "%s: lengths[%d] = %d", op, i, l)
		}
		sum += int64(l)
	}
	if sum != int64(total) {
		return nil, errors.Wrapf(ErrLengthSum, "%s: sum(lengths) = %d, batch size = %d", op, sum, total)
	}
	return vals, nil
}

// sumLengths validates a lengths vector whose sum defines the output
// row count rather than being checked against a known total.
func sumLengths(op string, lengths *tensor.RawTensor) ([]int32, int, error) {
	if lengths.DType() != tensor.Int32 {
		return nil, 0, errors.Wrapf(ErrUnsupportedType, "%s: lengths are %s, want int32", op, lengths.DType())
	}
	vals := lengths.AsInt32()
	var sum int64
	for i, l := range vals {
		if l < 0 {
			return nil, 0, errors.Wrapf(ErrNegativeLength, "%s: lengths[%d] = %d", op, i, l)
		}
		sum += int64(l)
	}
	return vals, int(sum), nil
}

// checkWhichMaxout validates maxout winner indices: int32, shape equal
// to the gradient, every value in [0, pieces).
func checkWhichMaxout(op string, which, dY *tensor.RawTensor, pieces int) error {
	if which.DType() != tensor.Int32 {
		return errors.Wrapf(ErrUnsupportedType, "%s: which is %s, want int32", op, which.DType())
	}
	if !which.Shape().Equal(dY.Shape()) {
		return errors.Wrapf(ErrShapeMismatch, "%s: which is %s, want %s", op, which.Shape(), dY.Shape())
	}
	for i, w := range which.AsInt32() {
		if w < 0 || int(w) >= pieces {
			return errors.Wrapf(ErrIndexOutOfBounds, "%s: which[%d] = %d, pieces = %d", op, i, w, pieces)
		}
	}
	return nil
}

// checkWhichReduceMax validates per-segment winner rows: each entry of
// segment i must lie in [0, lengths[i]).
func checkWhichReduceMax(op string, which *tensor.RawTensor, lengths []int32, cols int) error {
	if which.DType() != tensor.Int32 {
		return errors.Wrapf(ErrUnsupportedType, "%s: which is %s, want int32", op, which.DType())
	}
	want := tensor.Shape{len(lengths), cols}
	if !which.Shape().Equal(want) {
		return errors.Wrapf(ErrShapeMismatch, "%s: which is %s, want %s", op, which.Shape(), want)
	}
	vals := which.AsInt32()
	for seg, l := range lengths {
		for col := 0; col < cols; col++ {
			w := vals[seg*cols+col]
			if w < 0 || w >= l {
				return errors.Wrapf(ErrIndexOutOfBounds,
					"%s: which[%d, %d] = %d, segment length = %d", op, seg, col, w, l)
			}
		}
	}
	return nil
}

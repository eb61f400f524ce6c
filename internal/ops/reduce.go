package ops

import (
	"github.com/pkg/errors"

	"github.com/quarry-ml/quarry/internal/backend/webgpu"
	"github.com/quarry-ml/quarry/internal/tensor"
)

// meanEpsilon keeps zero-length segments from dividing by zero when a
// sum is turned into a mean.
const meanEpsilon = 1e-10

// ReduceSum sums X (T, O) over the row segments described by lengths,
// producing (B, O) where B = len(lengths).
func (d *Dispatcher) ReduceSum(x, lengths *tensor.RawTensor) (*tensor.RawTensor, error) {
	return d.reduceForward("reduce_sum", x, lengths)
}

// ReduceMean is the sum kernel followed by a host-side division of
// each output row by (segment length + epsilon). The epsilon keeps
// empty segments at zero instead of NaN.
func (d *Dispatcher) ReduceMean(x, lengths *tensor.RawTensor) (*tensor.RawTensor, error) {
	out, err := d.reduceForward("reduce_sum", x, lengths)
	if err != nil {
		return nil, err
	}
	lens := lengths.AsInt32()
	cols := out.Shape()[1]
	switch out.DType() {
	case tensor.Float64:
		data := out.AsFloat64()
		for seg, l := range lens {
			div := float64(l) + meanEpsilon
			for c := 0; c < cols; c++ {
				data[seg*cols+c] /= div
			}
		}
	default:
		data := out.AsFloat32()
		for seg, l := range lens {
			div := float32(l) + meanEpsilon
			for c := 0; c < cols; c++ {
				data[seg*cols+c] /= div
			}
		}
	}
	return out, nil
}

func (d *Dispatcher) reduceForward(op string, x, lengths *tensor.RawTensor) (*tensor.RawTensor, error) {
	if err := checkFloat(op, x); err != nil {
		return nil, err
	}
	if len(x.Shape()) != 2 {
		return nil, errors.Wrapf(ErrShapeMismatch, "%s: got %s, want (T, O)", op, x.Shape())
	}
	t, o := x.Shape()[0], x.Shape()[1]
	lens, err := checkLengths(op, lengths, t)
	if err != nil {
		return nil, err
	}
	b := len(lens)

	out, err := tensor.NewRaw(tensor.Shape{b, o}, x.DType())
	if err != nil {
		return nil, err
	}
	if x.NumElements() == 0 || out.NumElements() == 0 {
		return out, nil
	}

	k, err := d.kernel(op, x.DType())
	if err != nil {
		return nil, err
	}
	p := newParams(x.DType()).u32(uint32(b)).u32(uint32(t)).u32(uint32(o))

	err = d.reg.Dispatch(k, []webgpu.BufferArg{
		{In: x.Data()},
		{In: lengths.Data()},
		{Out: out.Data(), Size: out.ByteSize()},
	}, p.bytes(), d.workgroups)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReduceMax takes the per-column maximum of each row segment of
// X (T, O), returning the maxima (B, O) and an int32 tensor of the
// winning row offset within each segment. Ties go to the lowest row.
// Zero-length segments leave zeros in both outputs.
func (d *Dispatcher) ReduceMax(x, lengths *tensor.RawTensor) (maxes, which *tensor.RawTensor, err error) {
	const op = "reduce_max"
	if err := checkFloat(op, x); err != nil {
		return nil, nil, err
	}
	if len(x.Shape()) != 2 {
		return nil, nil, errors.Wrapf(ErrShapeMismatch, "%s: got %s, want (T, O)", op, x.Shape())
	}
	t, o := x.Shape()[0], x.Shape()[1]
	lens, err := checkLengths(op, lengths, t)
	if err != nil {
		return nil, nil, err
	}
	b := len(lens)

	maxes, err = tensor.NewRaw(tensor.Shape{b, o}, x.DType())
	if err != nil {
		return nil, nil, err
	}
	which, err = tensor.NewRaw(tensor.Shape{b, o}, tensor.Int32)
	if err != nil {
		return nil, nil, err
	}
	if x.NumElements() == 0 || maxes.NumElements() == 0 {
		return maxes, which, nil
	}

	k, err := d.kernel(op, x.DType())
	if err != nil {
		return nil, nil, err
	}
	p := newParams(x.DType()).u32(uint32(b)).u32(uint32(t)).u32(uint32(o))

	err = d.reg.Dispatch(k, []webgpu.BufferArg{
		{In: x.Data()},
		{In: lengths.Data()},
		{Out: maxes.Data(), Size: maxes.ByteSize()},
		{Out: which.Data(), Size: which.ByteSize()},
	}, p.bytes(), d.workgroups)
	if err != nil {
		return nil, nil, err
	}
	return maxes, which, nil
}

// BackpropReduceSum broadcasts dSum (B, O) back over each segment's
// rows, producing (T, O) with T = sum(lengths).
func (d *Dispatcher) BackpropReduceSum(dSum, lengths *tensor.RawTensor) (*tensor.RawTensor, error) {
	return d.reduceBackward("backprop_reduce_sum", dSum, lengths)
}

// BackpropReduceMean broadcasts like BackpropReduceSum but divides
// each row by its segment length inside the kernel.
func (d *Dispatcher) BackpropReduceMean(dMean, lengths *tensor.RawTensor) (*tensor.RawTensor, error) {
	return d.reduceBackward("backprop_reduce_mean", dMean, lengths)
}

func (d *Dispatcher) reduceBackward(op string, dOut, lengths *tensor.RawTensor) (*tensor.RawTensor, error) {
	if err := checkFloat(op, dOut); err != nil {
		return nil, err
	}
	if len(dOut.Shape()) != 2 {
		return nil, errors.Wrapf(ErrShapeMismatch, "%s: got %s, want (B, O)", op, dOut.Shape())
	}
	b, o := dOut.Shape()[0], dOut.Shape()[1]
	lens, t, err := sumLengths(op, lengths)
	if err != nil {
		return nil, err
	}
	if len(lens) != b {
		return nil, errors.Wrapf(ErrShapeMismatch,
			"%s: %d gradient rows, %d segments", op, b, len(lens))
	}

	dX, err := tensor.NewRaw(tensor.Shape{t, o}, dOut.DType())
	if err != nil {
		return nil, err
	}
	if dX.NumElements() == 0 || dOut.NumElements() == 0 {
		return dX, nil
	}

	k, err := d.kernel(op, dOut.DType())
	if err != nil {
		return nil, err
	}
	p := newParams(dOut.DType()).u32(uint32(b)).u32(uint32(t)).u32(uint32(o))

	err = d.reg.Dispatch(k, []webgpu.BufferArg{
		{In: dOut.Data()},
		{In: lengths.Data()},
		{Out: dX.Data(), Size: dX.ByteSize()},
	}, p.bytes(), d.workgroups)
	if err != nil {
		return nil, err
	}
	return dX, nil
}

// BackpropReduceMax scatters dMaxes (B, O) to each segment's winning
// rows only; all other rows of the (T, O) result stay zero. which is
// validated per segment against [0, lengths[i]).
func (d *Dispatcher) BackpropReduceMax(dMaxes, which, lengths *tensor.RawTensor) (*tensor.RawTensor, error) {
	const op = "backprop_reduce_max"
	if err := checkFloat(op, dMaxes); err != nil {
		return nil, err
	}
	if len(dMaxes.Shape()) != 2 {
		return nil, errors.Wrapf(ErrShapeMismatch, "%s: got %s, want (B, O)", op, dMaxes.Shape())
	}
	b, o := dMaxes.Shape()[0], dMaxes.Shape()[1]
	lens, t, err := sumLengths(op, lengths)
	if err != nil {
		return nil, err
	}
	if len(lens) != b {
		return nil, errors.Wrapf(ErrShapeMismatch,
			"%s: %d gradient rows, %d segments", op, b, len(lens))
	}
	if err := checkWhichReduceMax(op, which, lens, o); err != nil {
		return nil, err
	}

	dX, err := tensor.NewRaw(tensor.Shape{t, o}, dMaxes.DType())
	if err != nil {
		return nil, err
	}
	if dX.NumElements() == 0 || dMaxes.NumElements() == 0 {
		return dX, nil
	}

	k, err := d.kernel(op, dMaxes.DType())
	if err != nil {
		return nil, err
	}
	p := newParams(dMaxes.DType()).u32(uint32(b)).u32(uint32(t)).u32(uint32(o))

	err = d.reg.Dispatch(k, []webgpu.BufferArg{
		{In: dMaxes.Data()},
		{In: which.Data()},
		{In: lengths.Data()},
		{Out: dX.Data(), Size: dX.ByteSize()},
	}, p.bytes(), d.workgroups)
	if err != nil {
		return nil, err
	}
	return dX, nil
}

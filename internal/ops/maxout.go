package ops

import (
	"github.com/pkg/errors"

	"github.com/quarry-ml/quarry/internal/backend/webgpu"
	"github.com/quarry-ml/quarry/internal/tensor"
)

// Maxout reduces X (B, I, P) over its pieces axis, returning the
// maxima (B, I) and an int32 winner-index tensor of the same shape.
// Ties go to the lowest piece index.
func (d *Dispatcher) Maxout(x *tensor.RawTensor) (best, which *tensor.RawTensor, err error) {
	const op = "maxout"
	if err := checkFloat(op, x); err != nil {
		return nil, nil, err
	}
	s := x.Shape()
	if len(s) != 3 {
		return nil, nil, errors.Wrapf(ErrShapeMismatch, "%s: got %s, want (B, I, P)", op, s)
	}
	b, i, pieces := s[0], s[1], s[2]
	if pieces == 0 && b*i > 0 {
		return nil, nil, errors.Wrapf(ErrShapeMismatch, "%s: zero pieces in %s", op, s)
	}

	best, err = tensor.NewRaw(tensor.Shape{b, i}, x.DType())
	if err != nil {
		return nil, nil, err
	}
	which, err = tensor.NewRaw(tensor.Shape{b, i}, tensor.Int32)
	if err != nil {
		return nil, nil, err
	}
	if x.NumElements() == 0 {
		return best, which, nil
	}

	k, err := d.kernel(op, x.DType())
	if err != nil {
		return nil, nil, err
	}
	p := newParams(x.DType()).u32(uint32(b)).u32(uint32(i)).u32(uint32(pieces))

	err = d.reg.Dispatch(k, []webgpu.BufferArg{
		{In: x.Data()},
		{Out: best.Data(), Size: best.ByteSize()},
		{Out: which.Data(), Size: which.ByteSize()},
	}, p.bytes(), d.workgroups)
	if err != nil {
		return nil, nil, err
	}
	return best, which, nil
}

// BackpropMaxout scatters dY (B, I) into a zeroed (B, I, pieces)
// gradient at the slots recorded in which.
func (d *Dispatcher) BackpropMaxout(dY, which *tensor.RawTensor, pieces int) (*tensor.RawTensor, error) {
	const op = "backprop_maxout"
	if err := checkFloat(op, dY); err != nil {
		return nil, err
	}
	if len(dY.Shape()) != 2 {
		return nil, errors.Wrapf(ErrShapeMismatch, "%s: got %s, want (B, I)", op, dY.Shape())
	}
	if pieces < 1 {
		return nil, errors.Errorf("%s: pieces must be >= 1, got %d", op, pieces)
	}
	if err := checkWhichMaxout(op, which, dY, pieces); err != nil {
		return nil, err
	}
	b, i := dY.Shape()[0], dY.Shape()[1]

	dX, err := tensor.NewRaw(tensor.Shape{b, i, pieces}, dY.DType())
	if err != nil {
		return nil, err
	}
	if dX.NumElements() == 0 {
		return dX, nil
	}

	k, err := d.kernel(op, dY.DType())
	if err != nil {
		return nil, err
	}
	p := newParams(dY.DType()).u32(uint32(b)).u32(uint32(i)).u32(uint32(pieces))

	err = d.reg.Dispatch(k, []webgpu.BufferArg{
		{In: dY.Data()},
		{In: which.Data()},
		{Out: dX.Data(), Size: dX.ByteSize()},
	}, p.bytes(), d.workgroups)
	if err != nil {
		return nil, err
	}
	return dX, nil
}

package ops

import (
	"github.com/pkg/errors"

	"github.com/quarry-ml/quarry/internal/backend/webgpu"
	"github.com/quarry-ml/quarry/internal/tensor"
)

// Seq2Col expands each row of X (B, I) into a concatenation of its
// window of 2*nW+1 neighboring rows, producing (B, I*(2*nW+1)).
// Windows never cross segment boundaries; positions that fall outside
// a row's segment stay zero. A nil lengths tensor means one segment
// covering the whole batch.
func (d *Dispatcher) Seq2Col(x *tensor.RawTensor, nW int, lengths *tensor.RawTensor) (*tensor.RawTensor, error) {
	const op = "seq2col"
	if err := checkFloat(op, x); err != nil {
		return nil, err
	}
	if len(x.Shape()) != 2 {
		return nil, errors.Wrapf(ErrShapeMismatch, "%s: got %s, want (B, I)", op, x.Shape())
	}
	if nW < 1 {
		return nil, errors.Errorf("%s: window must be >= 1, got %d", op, nW)
	}
	b, i := x.Shape()[0], x.Shape()[1]
	nF := 2*nW + 1

	lens, lenBytes, err := segmentLengths(op, lengths, b)
	if err != nil {
		return nil, err
	}

	out, err := tensor.NewRaw(tensor.Shape{b, i * nF}, x.DType())
	if err != nil {
		return nil, err
	}
	if x.NumElements() == 0 || len(lens) == 0 {
		return out, nil
	}

	k, err := d.kernel(op, x.DType())
	if err != nil {
		return nil, err
	}
	p := newParams(x.DType()).
		i32(int32(nW)).
		u32(uint32(b)).
		u32(uint32(i)).
		u32(uint32(len(lens)))

	err = d.reg.Dispatch(k, []webgpu.BufferArg{
		{In: x.Data()},
		{In: lenBytes},
		{Out: out.Data(), Size: out.ByteSize()},
	}, p.bytes(), d.workgroups)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BackpropSeq2Col accumulates window gradients dY (B, I*(2*nW+1)) back
// into row gradients (B, I), honoring the same segment boundaries as
// the forward pass.
func (d *Dispatcher) BackpropSeq2Col(dY *tensor.RawTensor, nW int, lengths *tensor.RawTensor) (*tensor.RawTensor, error) {
	const op = "backprop_seq2col"
	if err := checkFloat(op, dY); err != nil {
		return nil, err
	}
	if len(dY.Shape()) != 2 {
		return nil, errors.Wrapf(ErrShapeMismatch, "%s: got %s, want (B, I*nF)", op, dY.Shape())
	}
	if nW < 1 {
		return nil, errors.Errorf("%s: window must be >= 1, got %d", op, nW)
	}
	b, cols := dY.Shape()[0], dY.Shape()[1]
	nF := 2*nW + 1
	if cols%nF != 0 {
		return nil, errors.Wrapf(ErrShapeMismatch,
			"%s: %d columns not divisible by window size %d", op, cols, nF)
	}
	i := cols / nF

	lens, lenBytes, err := segmentLengths(op, lengths, b)
	if err != nil {
		return nil, err
	}

	dX, err := tensor.NewRaw(tensor.Shape{b, i}, dY.DType())
	if err != nil {
		return nil, err
	}
	if dY.NumElements() == 0 || len(lens) == 0 {
		return dX, nil
	}

	k, err := d.kernel(op, dY.DType())
	if err != nil {
		return nil, err
	}
	p := newParams(dY.DType()).
		i32(int32(nW)).
		u32(uint32(b)).
		u32(uint32(i)).
		u32(uint32(len(lens)))

	err = d.reg.Dispatch(k, []webgpu.BufferArg{
		{In: dY.Data()},
		{In: lenBytes},
		{Out: dX.Data(), Size: dX.ByteSize()},
	}, p.bytes(), d.workgroups)
	if err != nil {
		return nil, err
	}
	return dX, nil
}

// segmentLengths resolves the optional lengths tensor: nil means one
// segment spanning the batch, otherwise the entries are validated
// against it.
func segmentLengths(op string, lengths *tensor.RawTensor, batch int) ([]int32, []byte, error) {
	if lengths == nil {
		t := tensor.Lengths(int32(batch))
		return t.AsInt32(), t.Data(), nil
	}
	lens, err := checkLengths(op, lengths, batch)
	if err != nil {
		return nil, nil, err
	}
	return lens, lengths.Data(), nil
}

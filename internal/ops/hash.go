package ops

import (
	"github.com/pkg/errors"

	"github.com/quarry-ml/quarry/internal/backend/webgpu"
	"github.com/quarry-ml/quarry/internal/tensor"
)

// Hash fingerprints a vector of uint64 ids with MurmurHash3 x64-128,
// returning (N, 4) uint32 words per id. Deterministic for a given
// (ids, seed) pair.
func (d *Dispatcher) Hash(ids *tensor.RawTensor, seed uint32) (*tensor.RawTensor, error) {
	const op = "hash"
	if ids.DType() != tensor.Uint64 {
		return nil, errors.Wrapf(ErrUnsupportedType, "%s: ids are %s, want uint64", op, ids.DType())
	}
	if len(ids.Shape()) != 1 {
		return nil, errors.Wrapf(ErrShapeMismatch, "%s: got %s, want (N,)", op, ids.Shape())
	}
	n := ids.Shape()[0]

	out, err := tensor.NewRaw(tensor.Shape{n, 4}, tensor.Uint32)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return out, nil
	}

	k, err := d.hashKernel()
	if err != nil {
		return nil, err
	}
	p := newParams(tensor.Uint32).u32(uint32(n)).u32(seed)

	err = d.reg.Dispatch(k, []webgpu.BufferArg{
		{In: ids.Data()},
		{Out: out.Data(), Size: out.ByteSize()},
	}, p.bytes(), d.workgroups)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// hashKernel resolves the untyped hash pipeline, which is registered
// under the uint32 key.
func (d *Dispatcher) hashKernel() (*webgpu.Kernel, error) {
	if reason := d.reg.Unavailability(); reason != nil {
		return nil, errors.Wrapf(ErrBackendUnavailable, "%s: %v", webgpu.HashKernelName, reason)
	}
	k := d.reg.Get(webgpu.HashKernelName, tensor.Uint32)
	if k == nil {
		return nil, errors.Wrapf(ErrBackendUnavailable, "%s: kernel not loaded", webgpu.HashKernelName)
	}
	return k, nil
}

// Package ops is the dispatch layer: it validates host-side tensors,
// packs kernel parameters, and launches precompiled pipelines through
// an injected registry. All checks run before any device work.
package ops

import (
	"github.com/pkg/errors"

	"github.com/quarry-ml/quarry/internal/backend/webgpu"
	"github.com/quarry-ml/quarry/internal/tensor"
)

// DefaultWorkgroups is the workgroup count per launch. Kernels use
// grid-stride loops, so any element count is covered regardless.
const DefaultWorkgroups = 128

// OutputMode selects where an operation writes its result.
type OutputMode int

const (
	// AllocateNew returns a fresh zero-initialized tensor.
	AllocateNew OutputMode = iota
	// WriteInPlace overwrites the input tensor's storage and returns
	// the input itself. Numerics are identical to AllocateNew.
	WriteInPlace
)

// Dispatcher runs operations against one kernel registry. It holds no
// mutable state beyond the registry's transfer counters and is safe
// for concurrent use.
type Dispatcher struct {
	reg        *webgpu.Registry
	workgroups uint32
}

type Option func(*Dispatcher)

// WithWorkgroups overrides the workgroup count per launch.
func WithWorkgroups(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workgroups = uint32(n)
		}
	}
}

func New(reg *webgpu.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{reg: reg, workgroups: DefaultWorkgroups}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry exposes the injected registry, mainly for availability and
// transfer-stat queries.
func (d *Dispatcher) Registry() *webgpu.Registry {
	return d.reg
}

// kernel resolves a compiled variant. Called after argument validation
// so malformed inputs fail the same way with or without a device.
func (d *Dispatcher) kernel(name string, dtype tensor.DataType) (*webgpu.Kernel, error) {
	if reason := d.reg.Unavailability(); reason != nil {
		return nil, errors.Wrapf(ErrBackendUnavailable, "%s: %v", name, reason)
	}
	if dtype == tensor.Float64 && !d.reg.Float64Supported() {
		return nil, errors.Wrapf(ErrBackendUnavailable,
			"%s: float64 kernels not compiled: %v", name, d.reg.Float64Error())
	}
	k := d.reg.Get(name, dtype)
	if k == nil {
		return nil, errors.Wrapf(ErrBackendUnavailable, "%s<%s>: kernel not loaded", name, dtype)
	}
	return k, nil
}

// resultFor picks the output tensor for an elementwise operation.
func resultFor(x *tensor.RawTensor, mode OutputMode) *tensor.RawTensor {
	if mode == WriteInPlace {
		return x
	}
	return tensor.ZerosLike(x)
}

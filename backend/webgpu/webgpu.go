// Package webgpu is the public API of the WebGPU compute backend: a
// device context plus a registry of kernel pipelines compiled once at
// load time. Dispatch goes through the ops package; this package only
// exposes setup, availability, and accounting.
//
// Example:
//
//	ctx, err := webgpu.NewContext()
//	if err != nil {
//	    reg := webgpu.NewUnavailableRegistry(err)
//	    // validation still works against the inert registry
//	}
//	reg, err := webgpu.LoadRegistry(ctx)
//	defer reg.Release()
package webgpu

import (
	internal "github.com/quarry-ml/quarry/internal/backend/webgpu"
)

// Context owns the WebGPU instance, adapter, device and queue.
type Context = internal.Context

// Registry is the immutable kernel table built by LoadRegistry.
type Registry = internal.Registry

// Kernel is a handle to one compiled pipeline variant.
type Kernel = internal.Kernel

// TransferStats counts bytes moved across the host/device boundary.
type TransferStats = internal.TransferStats

// Option configures a registry at load time.
type Option = internal.Option

// DefaultWorkgroupSize is baked into kernels unless overridden.
const DefaultWorkgroupSize = internal.DefaultWorkgroupSize

// NewContext opens the highest-performance available adapter.
func NewContext() (*Context, error) {
	return internal.NewContext()
}

// LoadRegistry compiles every kernel variant against ctx's device.
// Failures of the base float32 set fail the load; missing float64
// support degrades the registry instead.
func LoadRegistry(ctx *Context, opts ...Option) (*Registry, error) {
	return internal.LoadRegistry(ctx, opts...)
}

// NewUnavailableRegistry builds an inert registry that reports reason
// on every dispatch. Lets validation-only paths run without a device.
func NewUnavailableRegistry(reason error) *Registry {
	return internal.NewUnavailableRegistry(reason)
}

// WithWorkgroupSize overrides the workgroup size baked into kernels.
func WithWorkgroupSize(size int) Option {
	return internal.WithWorkgroupSize(size)
}

// IsAvailable reports whether a WebGPU adapter can be opened. Useful
// for skipping device work when no GPU or driver is present.
func IsAvailable() bool {
	return internal.IsAvailable()
}

package webgpu

import (
	"fmt"

	"github.com/openfluke/webgpu/wgpu"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/quarry-ml/quarry/internal/tensor"
)

// DefaultWorkgroupSize is baked into every kernel at registry build.
// Together with the dispatch layer's default workgroup count of 128 it
// mirrors the original 128x128 grid/block launch geometry; kernels use
// grid-stride loops so any element count is covered.
const DefaultWorkgroupSize = 128

// Key identifies one compiled kernel variant.
type Key struct {
	Name  string
	DType tensor.DataType
}

// Kernel is an immutable handle to one compiled pipeline. Handles are
// bound at load time; dispatch never does string lookup.
type Kernel struct {
	name     string
	pipeline *wgpu.ComputePipeline
	layout   *wgpu.BindGroupLayout
	bindings []bindingKind
}

// Name returns the kernel's label, e.g. "reduce_sum<f32>".
func (k *Kernel) Name() string {
	return k.name
}

// Registry maps (base operation, element type) to compiled kernel
// handles. It is populated once by LoadRegistry and read-only for the
// process lifetime; concurrent readers need no locking.
type Registry struct {
	ctx           *Context
	kernels       map[Key]*Kernel
	workgroupSize int

	// reason is non-nil for the inert registry built when no compute
	// device exists; every lookup then returns nil.
	reason error

	// f64Err records why float64 variants are absent on adapters whose
	// WGSL compiler rejects f64. float32 kernels still load.
	f64Err error

	stats TransferStats
}

// Option configures registry loading.
type Option func(*Registry)

// WithWorkgroupSize overrides the workgroup size baked into the kernel
// sources.
func WithWorkgroupSize(size int) Option {
	return func(r *Registry) {
		if size > 0 {
			r.workgroupSize = size
		}
	}
}

// LoadRegistry compiles every kernel source into the lookup table. The
// whole load fails if the float32 set does not compile; float64
// variants degrade gracefully on adapters without f64 shader support.
func LoadRegistry(ctx *Context, opts ...Option) (*Registry, error) {
	if ctx == nil {
		return nil, errors.New("webgpu: LoadRegistry requires a context")
	}

	r := &Registry{
		ctx:           ctx,
		kernels:       make(map[Key]*Kernel),
		workgroupSize: DefaultWorkgroupSize,
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, spec := range kernelSpecs {
		if !spec.typed {
			k, err := r.compile(spec, "", tensor.Uint32)
			if err != nil {
				r.Release()
				return nil, errors.Wrapf(err, "webgpu: compile %s", spec.name)
			}
			r.kernels[Key{spec.name, tensor.Uint32}] = k
			continue
		}

		k32, err := r.compile(spec, "f32", tensor.Float32)
		if err != nil {
			r.Release()
			return nil, errors.Wrapf(err, "webgpu: compile %s<f32>", spec.name)
		}
		r.kernels[Key{spec.name, tensor.Float32}] = k32

		if r.f64Err != nil {
			continue
		}
		k64, err := r.compile(spec, "f64", tensor.Float64)
		if err != nil {
			// First rejection marks the adapter as f32-only.
			r.f64Err = err
			klog.V(1).Infof("webgpu: float64 kernels unavailable on this adapter: %v", err)
			continue
		}
		r.kernels[Key{spec.name, tensor.Float64}] = k64
	}

	klog.V(1).Infof("webgpu: compiled %d kernel variants (workgroup size %d, float64=%t)",
		len(r.kernels), r.workgroupSize, r.f64Err == nil)
	return r, nil
}

// NewUnavailableRegistry builds the inert registry used when no compute
// device exists. Every Get returns nil and every dispatch through it
// fails with the recorded reason.
func NewUnavailableRegistry(reason error) *Registry {
	if reason == nil {
		reason = errors.New("webgpu: no compute device")
	}
	return &Registry{reason: reason}
}

func (r *Registry) compile(spec kernelSpec, scalar string, dtype tensor.DataType) (*Kernel, error) {
	label := spec.name
	if scalar != "" {
		label = fmt.Sprintf("%s<%s>", spec.name, scalar)
	}
	device := r.ctx.device

	code := instantiate(spec.src, scalar, r.workgroupSize)
	module, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: code},
	})
	if err != nil {
		return nil, errors.Wrap(err, "shader compile")
	}
	defer module.Release()

	// Explicit layouts; auto layout misclassifies read-only storage on
	// some backends.
	entries := make([]wgpu.BindGroupLayoutEntry, 0, len(spec.bindings)+1)
	for i, kind := range spec.bindings {
		bindingType := wgpu.BufferBindingTypeReadOnlyStorage
		if kind == bindReadWrite {
			bindingType = wgpu.BufferBindingTypeStorage
		}
		entries = append(entries, wgpu.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: wgpu.ShaderStageCompute,
			Buffer:     wgpu.BufferBindingLayout{Type: bindingType},
		})
	}
	entries = append(entries, wgpu.BindGroupLayoutEntry{
		Binding:    uint32(len(spec.bindings)),
		Visibility: wgpu.ShaderStageCompute,
		Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform},
	})

	layout, err := device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   label + "_layout",
		Entries: entries,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create bind group layout")
	}

	pipelineLayout, err := device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            label + "_pipeline_layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{layout},
	})
	if err != nil {
		layout.Release()
		return nil, errors.Wrap(err, "create pipeline layout")
	}

	pipeline, err := device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  label,
		Layout: pipelineLayout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: "main",
		},
	})
	pipelineLayout.Release()
	if err != nil {
		layout.Release()
		return nil, errors.Wrap(err, "create pipeline")
	}

	return &Kernel{
		name:     label,
		pipeline: pipeline,
		layout:   layout,
		bindings: spec.bindings,
	}, nil
}

// Get returns the compiled kernel for (name, element type), or nil when
// the backend is unavailable or the variant was not compiled. Callers
// must check for nil before use.
func (r *Registry) Get(name string, dtype tensor.DataType) *Kernel {
	if r.reason != nil {
		return nil
	}
	return r.kernels[Key{name, dtype}]
}

// Available reports whether the registry is backed by a real device.
func (r *Registry) Available() bool {
	return r.reason == nil
}

// Unavailability returns why the registry is inert, or nil.
func (r *Registry) Unavailability() error {
	return r.reason
}

// Float64Supported reports whether the float64 kernel variants compiled.
func (r *Registry) Float64Supported() bool {
	return r.reason == nil && r.f64Err == nil
}

// Float64Error returns why float64 variants are absent, or nil.
func (r *Registry) Float64Error() error {
	return r.f64Err
}

// KernelCount returns the number of compiled variants.
func (r *Registry) KernelCount() int {
	return len(r.kernels)
}

// WorkgroupSize returns the workgroup size the kernels were built with.
func (r *Registry) WorkgroupSize() int {
	return r.workgroupSize
}

// Stats returns a snapshot of the transfer counters.
func (r *Registry) Stats() TransferStats {
	return r.stats.snapshot()
}

// Release frees all compiled pipelines and layouts. The device context
// is owned by the caller and released separately.
func (r *Registry) Release() {
	for _, k := range r.kernels {
		if k.pipeline != nil {
			k.pipeline.Release()
		}
		if k.layout != nil {
			k.layout.Release()
		}
	}
	r.kernels = nil
}

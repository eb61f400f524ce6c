package webgpu

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-ml/quarry/internal/tensor"
)

func TestInstantiateReplacesPlaceholders(t *testing.T) {
	src := "var<storage> x: array<{{T}}>; @workgroup_size({{WG}}) let s = {{WG}}u * {{T}}(1);"
	out := instantiate(src, "f32", 64)

	assert.NotContains(t, out, "{{T}}")
	assert.NotContains(t, out, "{{WG}}")
	assert.Contains(t, out, "array<f32>")
	assert.Contains(t, out, "@workgroup_size(64)")
}

func TestKernelSpecsHaveOutputBinding(t *testing.T) {
	for _, spec := range kernelSpecs {
		found := false
		for _, kind := range spec.bindings {
			if kind == bindReadWrite {
				found = true
			}
		}
		assert.True(t, found, "kernel %s has no writable binding", spec.name)
	}
}

func TestPadTo16(t *testing.T) {
	assert.Len(t, padTo16(nil), 16)
	assert.Len(t, padTo16(make([]byte, 4)), 16)
	assert.Len(t, padTo16(make([]byte, 16)), 16)
	assert.Len(t, padTo16(make([]byte, 20)), 32)

	padded := padTo16([]byte{1, 2, 3, 4})
	assert.Equal(t, []byte{1, 2, 3, 4}, padded[:4])
}

func TestUnavailableRegistry(t *testing.T) {
	reason := errors.New("driver missing")
	r := NewUnavailableRegistry(reason)

	assert.False(t, r.Available())
	assert.ErrorIs(t, r.Unavailability(), reason)
	assert.False(t, r.Float64Supported())
	assert.Zero(t, r.KernelCount())
	assert.Nil(t, r.Get("gelu", tensor.Float32))

	err := r.Dispatch(nil, nil, nil, 1)
	assert.ErrorContains(t, err, "driver missing")
}

func TestUnavailableRegistryDefaultReason(t *testing.T) {
	r := NewUnavailableRegistry(nil)
	assert.Error(t, r.Unavailability())
}

// loadTestRegistry compiles the kernel table, skipping without a GPU.
func loadTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	if !IsAvailable() {
		t.Skip("WebGPU not available on this system")
	}
	ctx, err := NewContext()
	require.NoError(t, err)
	t.Cleanup(ctx.Release)

	r, err := LoadRegistry(ctx, opts...)
	require.NoError(t, err)
	t.Cleanup(r.Release)
	return r
}

func TestLoadRegistryCompilesBaseVariants(t *testing.T) {
	r := loadTestRegistry(t)

	assert.True(t, r.Available())
	// Every float32 variant plus the hash kernel must exist.
	assert.GreaterOrEqual(t, r.KernelCount(), len(kernelSpecs))
	for _, spec := range kernelSpecs {
		dtype := tensor.Float32
		if !spec.typed {
			dtype = tensor.Uint32
		}
		assert.NotNil(t, r.Get(spec.name, dtype), "missing %s", spec.name)
	}
}

func TestGetUnknownKernelReturnsNil(t *testing.T) {
	r := loadTestRegistry(t)
	assert.Nil(t, r.Get("no_such_kernel", tensor.Float32))
	assert.Nil(t, r.Get("gelu", tensor.Int32))
}

func TestWorkgroupSizeOption(t *testing.T) {
	r := loadTestRegistry(t, WithWorkgroupSize(64))
	assert.Equal(t, 64, r.WorkgroupSize())
}

func TestDispatchRoundTrip(t *testing.T) {
	r := loadTestRegistry(t)
	k := r.Get("clipped_linear", tensor.Float32)
	require.NotNil(t, k)

	in := []float32{1, -1, 0, 2}
	inBytes := make([]byte, 16)
	for i, v := range in {
		binary.LittleEndian.PutUint32(inBytes[i*4:], math.Float32bits(v))
	}
	outBytes := make([]byte, 16)

	// slope 1, offset 0, clamp [0, 1], n = 4
	params := make([]byte, 20)
	binary.LittleEndian.PutUint32(params[0:], math.Float32bits(1))
	binary.LittleEndian.PutUint32(params[4:], math.Float32bits(0))
	binary.LittleEndian.PutUint32(params[8:], math.Float32bits(0))
	binary.LittleEndian.PutUint32(params[12:], math.Float32bits(1))
	binary.LittleEndian.PutUint32(params[16:], 4)

	err := r.Dispatch(k, []BufferArg{
		{In: inBytes},
		{Out: outBytes, Size: len(outBytes)},
	}, params, DefaultWorkgroupSize)
	require.NoError(t, err)

	want := []float32{1, 0, 0, 1}
	for i := range want {
		got := math.Float32frombits(binary.LittleEndian.Uint32(outBytes[i*4:]))
		assert.Equal(t, want[i], got, "element %d", i)
	}
}

func TestDispatchBindingCountMismatch(t *testing.T) {
	r := loadTestRegistry(t)
	k := r.Get("gelu", tensor.Float32)
	require.NotNil(t, k)

	err := r.Dispatch(k, []BufferArg{{In: make([]byte, 4)}}, nil, 1)
	assert.Error(t, err)
}

func TestStatsCountTraffic(t *testing.T) {
	r := loadTestRegistry(t)
	k := r.Get("gelu", tensor.Float32)
	require.NotNil(t, k)

	params := make([]byte, 8)
	binary.LittleEndian.PutUint32(params[0:], math.Float32bits(6))
	binary.LittleEndian.PutUint32(params[4:], 1)

	out := make([]byte, 4)
	err := r.Dispatch(k, []BufferArg{
		{In: make([]byte, 4)},
		{Out: out, Size: 4},
	}, params, 1)
	require.NoError(t, err)

	s := r.Stats()
	assert.GreaterOrEqual(t, s.UploadedBytes, uint64(4))
	assert.GreaterOrEqual(t, s.DownloadedBytes, uint64(4))
	assert.GreaterOrEqual(t, s.Launches, uint64(1))
}

package ops_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-ml/quarry/backend/webgpu"
	"github.com/quarry-ml/quarry/ops"
	"github.com/quarry-ml/quarry/tensor"
)

// The public surface must work end to end against the inert registry:
// construction, validation errors, and empty-input short-circuits all
// run without a device.
func TestPublicSurfaceWithoutDevice(t *testing.T) {
	reg := webgpu.NewUnavailableRegistry(errors.New("test: no device"))
	d := ops.New(reg, ops.WithWorkgroups(64))

	x, err := tensor.FromSlice(tensor.Shape{5, 2}, make([]float32, 10))
	require.NoError(t, err)

	_, err = d.ReduceSum(x, tensor.Lengths(2, 2))
	assert.ErrorIs(t, err, ops.ErrLengthSum)

	_, err = d.Gelu(x, ops.AllocateNew)
	assert.ErrorIs(t, err, ops.ErrBackendUnavailable)

	empty, err := tensor.Zeros[float32](tensor.Shape{0, 2})
	require.NoError(t, err)
	y, err := d.Swish(empty, ops.AllocateNew)
	require.NoError(t, err)
	assert.True(t, y.Shape().Equal(tensor.Shape{0, 2}))
}

func TestDefaultClippedLinearParams(t *testing.T) {
	p := ops.DefaultClippedLinearParams()
	assert.Equal(t, 1.0, p.Slope)
	assert.Equal(t, 0.0, p.Offset)
	assert.Equal(t, 0.0, p.Min)
	assert.Equal(t, 1.0, p.Max)
}

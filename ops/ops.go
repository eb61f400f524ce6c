// Package ops is the public dispatch API: tensor operations validated
// on the host and executed as single kernel launches through an
// injected registry.
//
// Example:
//
//	reg, err := webgpu.LoadRegistry(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	d := ops.New(reg)
//	y, err := d.Gelu(x, ops.AllocateNew)
package ops

import (
	"github.com/quarry-ml/quarry/backend/webgpu"
	"github.com/quarry-ml/quarry/internal/ops"
)

// Dispatcher runs operations against one kernel registry. Safe for
// concurrent use.
type Dispatcher = ops.Dispatcher

// Option configures a Dispatcher.
type Option = ops.Option

// OutputMode selects between allocating a result tensor and
// overwriting the input in place.
type OutputMode = ops.OutputMode

const (
	AllocateNew  OutputMode = ops.AllocateNew
	WriteInPlace OutputMode = ops.WriteInPlace
)

// DefaultWorkgroups is the workgroup count per kernel launch.
const DefaultWorkgroups = ops.DefaultWorkgroups

// ClippedLinearParams configures the clipped linear activation.
type ClippedLinearParams = ops.ClippedLinearParams

// Activation saturation thresholds.
const (
	GeluThreshold  = ops.GeluThreshold
	SwishThreshold = ops.SwishThreshold
	MishThreshold  = ops.MishThreshold
)

// Error kinds, matched with errors.Is.
var (
	ErrUnsupportedType    = ops.ErrUnsupportedType
	ErrShapeMismatch      = ops.ErrShapeMismatch
	ErrNegativeLength     = ops.ErrNegativeLength
	ErrLengthSum          = ops.ErrLengthSum
	ErrIndexOutOfBounds   = ops.ErrIndexOutOfBounds
	ErrBackendUnavailable = ops.ErrBackendUnavailable
)

// New builds a Dispatcher over reg.
func New(reg *webgpu.Registry, opts ...Option) *Dispatcher {
	return ops.New(reg, opts...)
}

// WithWorkgroups overrides the workgroup count per launch.
func WithWorkgroups(n int) Option {
	return ops.WithWorkgroups(n)
}

// DefaultClippedLinearParams is slope 1, offset 0, clamp to [0, 1].
func DefaultClippedLinearParams() ClippedLinearParams {
	return ops.DefaultClippedLinearParams()
}

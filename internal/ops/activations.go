package ops

import (
	"github.com/quarry-ml/quarry/internal/backend/webgpu"
	"github.com/quarry-ml/quarry/internal/tensor"
)

// Saturation thresholds outside which the curved activations are
// treated as linear or zero.
const (
	GeluThreshold  = 6.0
	SwishThreshold = 17.0
	MishThreshold  = 5.0
)

// ClippedLinearParams configures the clipped linear activation
// y = clamp(x*Slope + Offset, Min, Max).
type ClippedLinearParams struct {
	Slope  float64
	Offset float64
	Min    float64
	Max    float64
}

// DefaultClippedLinearParams is the identity-slope unit clamp.
func DefaultClippedLinearParams() ClippedLinearParams {
	return ClippedLinearParams{Slope: 1.0, Offset: 0.0, Min: 0.0, Max: 1.0}
}

// elementwise runs a one-input one-output kernel over every element.
// scalars are the element-typed uniform fields in declaration order.
func (d *Dispatcher) elementwise(name string, x *tensor.RawTensor, scalars []float64, mode OutputMode) (*tensor.RawTensor, error) {
	if err := checkFloat(name, x); err != nil {
		return nil, err
	}
	out := resultFor(x, mode)
	if x.NumElements() == 0 {
		return out, nil
	}
	k, err := d.kernel(name, x.DType())
	if err != nil {
		return nil, err
	}
	p := newParams(x.DType())
	for _, s := range scalars {
		p.scalar(s)
	}
	p.u32(uint32(x.NumElements()))

	err = d.reg.Dispatch(k, []webgpu.BufferArg{
		{In: x.Data()},
		{Out: out.Data(), Size: out.ByteSize()},
	}, p.bytes(), d.workgroups)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// elementwiseBackprop runs a gradient kernel whose inputs are dY plus
// the recorded forward tensors. All inputs must match dY's shape and
// element type; the result follows mode against dY.
func (d *Dispatcher) elementwiseBackprop(name string, dY *tensor.RawTensor, recorded []*tensor.RawTensor, scalars []float64, mode OutputMode) (*tensor.RawTensor, error) {
	if err := checkFloat(name, dY); err != nil {
		return nil, err
	}
	for _, t := range recorded {
		if err := checkSameShape(name, t, dY); err != nil {
			return nil, err
		}
	}
	dX := resultFor(dY, mode)
	if dY.NumElements() == 0 {
		return dX, nil
	}
	k, err := d.kernel(name, dY.DType())
	if err != nil {
		return nil, err
	}
	p := newParams(dY.DType())
	for _, s := range scalars {
		p.scalar(s)
	}
	p.u32(uint32(dY.NumElements()))

	args := make([]webgpu.BufferArg, 0, len(recorded)+2)
	args = append(args, webgpu.BufferArg{In: dY.Data()})
	for _, t := range recorded {
		args = append(args, webgpu.BufferArg{In: t.Data()})
	}
	args = append(args, webgpu.BufferArg{Out: dX.Data(), Size: dX.ByteSize()})
	if err := d.reg.Dispatch(k, args, p.bytes(), d.workgroups); err != nil {
		return nil, err
	}
	return dX, nil
}

// ClippedLinear computes clamp(x*slope + offset, min, max).
func (d *Dispatcher) ClippedLinear(x *tensor.RawTensor, p ClippedLinearParams, mode OutputMode) (*tensor.RawTensor, error) {
	return d.elementwise("clipped_linear", x, []float64{p.Slope, p.Offset, p.Min, p.Max}, mode)
}

// BackpropClippedLinear passes dY*slope where the forward output was
// strictly inside (min, max) and zero elsewhere.
func (d *Dispatcher) BackpropClippedLinear(dY, x *tensor.RawTensor, p ClippedLinearParams, mode OutputMode) (*tensor.RawTensor, error) {
	return d.elementwiseBackprop("backprop_clipped_linear", dY,
		[]*tensor.RawTensor{x}, []float64{p.Slope, p.Offset, p.Min, p.Max}, mode)
}

// Gelu computes the tanh-approximated GELU, saturating to x above the
// threshold and to zero below its negative.
func (d *Dispatcher) Gelu(x *tensor.RawTensor, mode OutputMode) (*tensor.RawTensor, error) {
	return d.elementwise("gelu", x, []float64{GeluThreshold}, mode)
}

func (d *Dispatcher) BackpropGelu(dY, x *tensor.RawTensor, mode OutputMode) (*tensor.RawTensor, error) {
	return d.elementwiseBackprop("backprop_gelu", dY, []*tensor.RawTensor{x}, []float64{GeluThreshold}, mode)
}

// Swish computes x*sigmoid(x) with linear/zero saturation outside the
// threshold.
func (d *Dispatcher) Swish(x *tensor.RawTensor, mode OutputMode) (*tensor.RawTensor, error) {
	return d.elementwise("swish", x, []float64{SwishThreshold}, mode)
}

// BackpropSwish needs both the forward input and the forward output;
// the derivative is y + sigmoid(x)*(1-y).
func (d *Dispatcher) BackpropSwish(dY, x, y *tensor.RawTensor, mode OutputMode) (*tensor.RawTensor, error) {
	return d.elementwiseBackprop("backprop_swish", dY, []*tensor.RawTensor{x, y}, []float64{SwishThreshold}, mode)
}

// Mish computes x*tanh(softplus(x)), linear above the threshold.
func (d *Dispatcher) Mish(x *tensor.RawTensor, mode OutputMode) (*tensor.RawTensor, error) {
	return d.elementwise("mish", x, []float64{MishThreshold}, mode)
}

func (d *Dispatcher) BackpropMish(dY, x *tensor.RawTensor, mode OutputMode) (*tensor.RawTensor, error) {
	return d.elementwiseBackprop("backprop_mish", dY, []*tensor.RawTensor{x}, []float64{MishThreshold}, mode)
}

// HardSwish is the piecewise-linear swish: 0 below -2.5, x above 2.5,
// x*(0.2x + 0.5) between.
func (d *Dispatcher) HardSwish(x *tensor.RawTensor, mode OutputMode) (*tensor.RawTensor, error) {
	return d.elementwise("hard_swish", x, nil, mode)
}

func (d *Dispatcher) BackpropHardSwish(dY, x *tensor.RawTensor, mode OutputMode) (*tensor.RawTensor, error) {
	return d.elementwiseBackprop("backprop_hard_swish", dY, []*tensor.RawTensor{x}, nil, mode)
}

// HardSwishMobilenet is the MobileNet-v3 variant: x*(x+3)/6 on [-3, 3].
func (d *Dispatcher) HardSwishMobilenet(x *tensor.RawTensor, mode OutputMode) (*tensor.RawTensor, error) {
	return d.elementwise("hard_swish_mobilenet", x, nil, mode)
}

func (d *Dispatcher) BackpropHardSwishMobilenet(dY, x *tensor.RawTensor, mode OutputMode) (*tensor.RawTensor, error) {
	return d.elementwiseBackprop("backprop_hard_swish_mobilenet", dY, []*tensor.RawTensor{x}, nil, mode)
}

package ops

import (
	"encoding/binary"
	"math"

	"github.com/quarry-ml/quarry/internal/tensor"
)

// paramPacker serializes kernel uniform structs. Element-typed scalars
// come first in every struct and share one width, so appending fields
// in declaration order reproduces the WGSL layout; the launcher pads
// the tail to 16 bytes.
type paramPacker struct {
	buf   []byte
	dtype tensor.DataType
}

func newParams(dtype tensor.DataType) *paramPacker {
	return &paramPacker{dtype: dtype}
}

// scalar appends one element-typed value at the tensor's width.
func (p *paramPacker) scalar(v float64) *paramPacker {
	if p.dtype == tensor.Float64 {
		p.buf = binary.LittleEndian.AppendUint64(p.buf, math.Float64bits(v))
	} else {
		p.buf = binary.LittleEndian.AppendUint32(p.buf, math.Float32bits(float32(v)))
	}
	return p
}

func (p *paramPacker) u32(v uint32) *paramPacker {
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
	return p
}

func (p *paramPacker) i32(v int32) *paramPacker {
	p.buf = binary.LittleEndian.AppendUint32(p.buf, uint32(v))
	return p
}

func (p *paramPacker) bytes() []byte {
	return p.buf
}

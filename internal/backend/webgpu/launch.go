package webgpu

import (
	"github.com/openfluke/webgpu/wgpu"
	"github.com/pkg/errors"
)

// BufferArg describes one storage binding of a launch, in the kernel's
// binding order. In is uploaded before the pass; Out receives the
// readback after it. Output-only buffers (In == nil) are created
// zero-initialized at Size bytes.
type BufferArg struct {
	In   []byte
	Out  []byte
	Size int
}

func (a BufferArg) byteSize() int {
	if a.In != nil {
		return len(a.In)
	}
	return a.Size
}

// Dispatch runs one kernel: upload inputs, one compute pass with the
// given workgroup count, read back outputs. Synchronous; at most one
// launch per call. All validation belongs to the caller, the kernels
// trust their arguments.
func (r *Registry) Dispatch(k *Kernel, args []BufferArg, params []byte, workgroups uint32) error {
	if r.reason != nil {
		return errors.Wrap(r.reason, "webgpu: dispatch on unavailable backend")
	}
	if k == nil {
		return errors.New("webgpu: dispatch with nil kernel handle")
	}
	if len(args) != len(k.bindings) {
		return errors.Errorf("webgpu: %s expects %d buffers, got %d", k.name, len(k.bindings), len(args))
	}
	if workgroups == 0 {
		workgroups = 1
	}
	device := r.ctx.device

	buffers := make([]*wgpu.Buffer, len(args))
	defer func() {
		for _, b := range buffers {
			if b != nil {
				b.Destroy()
			}
		}
	}()

	for i, a := range args {
		size := a.byteSize()
		if size <= 0 {
			return errors.Errorf("webgpu: %s binding %d has zero size", k.name, i)
		}
		var err error
		if a.In != nil {
			buffers[i], err = device.CreateBufferInit(&wgpu.BufferInitDescriptor{
				Label:    k.name,
				Contents: a.In,
				Usage:    wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
			})
			r.stats.addUpload(len(a.In))
		} else {
			// CreateBuffer contents are zero-initialized.
			buffers[i], err = device.CreateBuffer(&wgpu.BufferDescriptor{
				Label: k.name,
				Size:  uint64(size),
				Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
			})
		}
		if err != nil {
			return errors.Wrapf(err, "webgpu: %s binding %d", k.name, i)
		}
	}

	uniform, err := device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    k.name + "_params",
		Contents: padTo16(params),
		Usage:    wgpu.BufferUsageUniform,
	})
	if err != nil {
		return errors.Wrapf(err, "webgpu: %s params", k.name)
	}
	defer uniform.Destroy()

	entries := make([]wgpu.BindGroupEntry, 0, len(args)+1)
	for i, b := range buffers {
		entries = append(entries, wgpu.BindGroupEntry{
			Binding: uint32(i),
			Buffer:  b,
			Size:    b.GetSize(),
		})
	}
	entries = append(entries, wgpu.BindGroupEntry{
		Binding: uint32(len(args)),
		Buffer:  uniform,
		Size:    uniform.GetSize(),
	})

	bindGroup, err := device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   k.name,
		Layout:  k.layout,
		Entries: entries,
	})
	if err != nil {
		return errors.Wrapf(err, "webgpu: %s bind group", k.name)
	}
	defer bindGroup.Release()

	encoder, err := device.CreateCommandEncoder(nil)
	if err != nil {
		return errors.Wrapf(err, "webgpu: %s command encoder", k.name)
	}

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(k.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(workgroups, 1, 1)
	pass.End()

	// Stage every output for readback in the same submission.
	type staged struct {
		buf *wgpu.Buffer
		dst []byte
	}
	var stagings []staged
	defer func() {
		for _, s := range stagings {
			s.buf.Destroy()
		}
	}()
	for i, a := range args {
		if a.Out == nil {
			continue
		}
		st, stErr := device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: k.name + "_staging",
			Size:  uint64(len(a.Out)),
			Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		})
		if stErr != nil {
			return errors.Wrapf(stErr, "webgpu: %s staging", k.name)
		}
		stagings = append(stagings, staged{st, a.Out})
		encoder.CopyBufferToBuffer(buffers[i], 0, st, 0, uint64(len(a.Out)))
	}

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return errors.Wrapf(err, "webgpu: %s finish", k.name)
	}
	r.ctx.queue.Submit(cmd)
	r.stats.addLaunch()

	for _, s := range stagings {
		if err := r.readInto(s.buf, s.dst); err != nil {
			return errors.Wrapf(err, "webgpu: %s readback", k.name)
		}
		r.stats.addDownload(len(s.dst))
	}
	return nil
}

// readInto maps a staging buffer and copies its contents to dst.
func (r *Registry) readInto(buf *wgpu.Buffer, dst []byte) error {
	size := uint64(len(dst))
	done := make(chan struct{})
	var mapErr error

	err := buf.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = errors.Errorf("map status: %d", status)
		}
		close(done)
	})
	if err != nil {
		return errors.Wrap(err, "map async")
	}

poll:
	for {
		r.ctx.device.Poll(true, nil)
		select {
		case <-done:
			break poll
		default:
		}
	}
	if mapErr != nil {
		return mapErr
	}

	data := buf.GetMappedRange(0, uint(size))
	if data == nil {
		return errors.New("mapped range nil")
	}
	copy(dst, data)
	buf.Unmap()
	return nil
}

// padTo16 pads uniform contents to a 16-byte boundary.
func padTo16(b []byte) []byte {
	rem := len(b) % 16
	if rem == 0 && len(b) > 0 {
		return b
	}
	padded := make([]byte, len(b)+16-rem)
	copy(padded, b)
	return padded
}

// Package webgpu compiles the compute kernels once at load time and
// dispatches work onto the device through a fixed registry of
// type-specialized pipelines.
package webgpu

import (
	"github.com/openfluke/webgpu/wgpu"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Context holds the device-side objects every dispatch goes through:
// one instance, one adapter, one device, one queue.
type Context struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	adapterInfo wgpu.AdapterInfo
}

// NewContext acquires a compute device. Returns an error when the native
// wgpu library or a compatible adapter is missing; callers are expected
// to fall back to an unavailable registry rather than abort.
func NewContext() (ctx *Context, err error) {
	// The binding panics when wgpu_native cannot be loaded.
	defer func() {
		if r := recover(); r != nil {
			ctx = nil
			err = errors.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	if instance == nil {
		return nil, errors.New("webgpu: failed to create instance")
	}

	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		// Some drivers only answer the default power profile.
		adapter, adapterErr = instance.RequestAdapter(nil)
	}
	if adapterErr != nil {
		instance.Release()
		return nil, errors.Wrap(adapterErr, "webgpu: failed to request adapter")
	}

	info := adapter.GetInfo()

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, errors.Wrap(deviceErr, "webgpu: failed to request device")
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, errors.New("webgpu: failed to get queue")
	}

	klog.V(1).Infof("webgpu: using adapter %q (%s)", info.Name, info.VendorName)

	return &Context{
		instance:    instance,
		adapter:     adapter,
		device:      device,
		queue:       queue,
		adapterInfo: info,
	}, nil
}

// AdapterInfo returns information about the selected adapter.
func (c *Context) AdapterInfo() wgpu.AdapterInfo {
	return c.adapterInfo
}

// Release frees the device-side objects. The context must not be used
// afterwards.
func (c *Context) Release() {
	if c.queue != nil {
		c.queue.Release()
		c.queue = nil
	}
	if c.device != nil {
		c.device.Release()
		c.device = nil
	}
	if c.adapter != nil {
		c.adapter.Release()
		c.adapter = nil
	}
	if c.instance != nil {
		c.instance.Release()
		c.instance = nil
	}
}

// IsAvailable checks whether a compute device can be acquired on this
// system.
func IsAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance := wgpu.CreateInstance(nil)
	if instance == nil {
		return false
	}
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}

// AdapterInfos lists the adapters the instance can enumerate. Used by
// the CLI probe; dispatch always goes through the single context.
func AdapterInfos() (infos []wgpu.AdapterInfo, err error) {
	defer func() {
		if r := recover(); r != nil {
			infos = nil
			err = errors.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	if instance == nil {
		return nil, errors.New("webgpu: failed to create instance")
	}
	defer instance.Release()

	adapters := instance.EnumerateAdapters(nil)
	for _, a := range adapters {
		infos = append(infos, a.GetInfo())
		a.Release()
	}
	return infos, nil
}

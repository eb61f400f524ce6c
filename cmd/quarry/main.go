// Package main provides the Quarry CLI.
package main

import (
	"flag"
	"fmt"
	"os"

	"k8s.io/klog/v2"

	"github.com/quarry-ml/quarry/backend/webgpu"
	"github.com/quarry-ml/quarry/ops"
	"github.com/quarry-ml/quarry/tensor"
)

const version = "v0.1.0-dev"

func main() {
	klog.InitFlags(nil)

	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "version":
			fmt.Printf("Quarry %s\n", version)
			return
		case "probe":
			flag.CommandLine.Parse(args[1:])
			if err := probe(); err != nil {
				fmt.Fprintf(os.Stderr, "probe failed: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	fmt.Println("Quarry - GPU kernel dispatch for sequence models")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version    Show version")
	fmt.Println("  probe      Open the adapter, compile kernels, run a smoke dispatch")
}

func probe() error {
	ctx, err := webgpu.NewContext()
	if err != nil {
		return fmt.Errorf("no compute device: %w", err)
	}
	defer ctx.Release()

	info := ctx.AdapterInfo()
	fmt.Printf("Adapter:  %s (vendor: %s)\n", info.Name, info.VendorName)

	reg, err := webgpu.LoadRegistry(ctx)
	if err != nil {
		return err
	}
	defer reg.Release()

	fmt.Printf("Kernels:  %d variants compiled\n", reg.KernelCount())
	fmt.Printf("Float64:  %t\n", reg.Float64Supported())
	if err := reg.Float64Error(); err != nil {
		fmt.Printf("          %v\n", err)
	}

	d := ops.New(reg)
	x, err := tensor.FromSlice(tensor.Shape{2, 2}, []float32{1, -1, 0, 2})
	if err != nil {
		return err
	}
	y, err := d.ClippedLinear(x, ops.DefaultClippedLinearParams(), ops.AllocateNew)
	if err != nil {
		return err
	}
	fmt.Printf("Smoke:    clipped_linear(%v) = %v\n", x.AsFloat32(), y.AsFloat32())
	fmt.Printf("Traffic:  %s\n", reg.Stats())
	return nil
}

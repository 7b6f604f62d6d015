// Package main provides the Ferry exchange layer CLI.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/ferry-ml/ferry/device"
	"github.com/ferry-ml/ferry/device/webgpu"
	"github.com/ferry-ml/ferry/exchange"
	"github.com/ferry-ml/ferry/tensor"
)

const version = "v0.1.0-dev"

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "version":
		fmt.Printf("Ferry %s\n", version)
	case "dtypes":
		printDTypes()
	case "probe":
		probe()
	default:
		fmt.Println("Ferry - Cross-Runtime Tensor Exchange for Go")
		fmt.Printf("Version: %s\n\n", version)
		fmt.Println("Commands:")
		fmt.Println("  version    Show version")
		fmt.Println("  dtypes     Show the element type exchange table")
		fmt.Println("  probe      Probe devices and run a pinned round-trip")
	}
}

// printDTypes lists every element type the exchange layer maps, with its
// array-interface format string and exchange type. Types outside this
// table are rejected, never coerced.
func printDTypes() {
	dtypes := []tensor.DataType{
		tensor.Bool,
		tensor.Uint8, tensor.Int8,
		tensor.Uint16, tensor.Int16,
		tensor.Uint32, tensor.Int32,
		tensor.Uint64, tensor.Int64,
		tensor.Float16, tensor.Float32, tensor.Float64,
	}

	fmt.Printf("%-10s %-8s %s\n", "dtype", "format", "exchange type")
	for _, dt := range dtypes {
		format, err := exchange.FormatOf(dt)
		if err != nil {
			continue
		}
		et, err := exchange.ElemTypeOf(dt)
		if err != nil {
			continue
		}
		fmt.Printf("%-10s %-8s %s\n", dt, format, et)
	}
}

// probe reports device availability and pushes one small batch through
// the capsule protocol on pinned memory.
func probe() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	device.SetLogger(logger)
	webgpu.SetLogger(logger)
	exchange.SetLogger(logger)

	pinned := device.Pinned()
	if webgpu.IsAvailable() {
		alloc, err := webgpu.New()
		if err != nil {
			fmt.Printf("webgpu: present but failed to initialize: %v\n", err)
		} else {
			defer alloc.Close()
			fmt.Printf("webgpu: %s\n", alloc.Name())
			pinned = alloc
		}
	} else {
		fmt.Println("webgpu: not available, pinned memory falls back to the Go heap")
	}

	if err := roundTrip(pinned); err != nil {
		fmt.Fprintf(os.Stderr, "round-trip failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("round-trip: ok")
}

// roundTrip exports a batch as capsules, consumes them back as arrays,
// and checks the values survived.
func roundTrip(dev device.Device) error {
	in, err := tensor.NewBatchOf(dev,
		[]tensor.Shape{{2, 2}},
		[][]float32{{1, 2, 3, 4}},
	)
	if err != nil {
		return err
	}
	defer in.Release()

	groups, err := exchange.ExportBatch([]*tensor.Batch{in})
	if err != nil {
		return err
	}
	arr, err := exchange.ToArray(groups[0][0])
	if err != nil {
		return err
	}
	defer arr.Release()

	if arr.TypeStr != "<f4" || len(arr.Data) != 16 {
		return fmt.Errorf("unexpected array: format %q, %d bytes", arr.TypeStr, len(arr.Data))
	}
	return nil
}

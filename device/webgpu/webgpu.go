// Copyright 2025 Ferry ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides pinned host memory from WebGPU staging buffers.
//
// A mapped-at-creation staging buffer is driver-visible host memory, the
// same role page-locked memory plays for other accelerator stacks. The
// allocator implements device.Device and reports the pinned placement, so
// batches and exchange buffers can be placed in staging memory without any
// other part of the pipeline knowing WebGPU is underneath.
//
// Example:
//
//	import (
//	    "github.com/ferry-ml/ferry/device"
//	    "github.com/ferry-ml/ferry/device/webgpu"
//	    "github.com/ferry-ml/ferry/tensor"
//	)
//
//	func main() {
//	    var pinned device.Device = device.Pinned()
//	    if webgpu.IsAvailable() {
//	        alloc, err := webgpu.New()
//	        if err == nil {
//	            defer alloc.Close()
//	            pinned = alloc
//	        }
//	    }
//	    b, _ := tensor.NewBatch(pinned, tensor.Float32, []tensor.Shape{{2, 3}})
//	    defer b.Release()
//	}
package webgpu

import (
	"go.uber.org/zap"

	"github.com/ferry-ml/ferry/device"
	internalwebgpu "github.com/ferry-ml/ferry/internal/device/webgpu"
)

// Allocator hands out pinned allocations from persistently mapped WebGPU
// staging buffers.
type Allocator = internalwebgpu.Allocator

// MemoryStats reports staging memory usage.
type MemoryStats = internalwebgpu.MemoryStats

// Compile-time check that Allocator implements device.Device.
var _ device.Device = (*Allocator)(nil)

// New creates a WebGPU-backed pinned memory allocator.
//
// Call Close() when done to release the underlying WebGPU device.
// Returns an error if WebGPU initialization fails (e.g., no compatible GPU).
func New() (*Allocator, error) {
	return internalwebgpu.New()
}

// IsAvailable checks if WebGPU is available on the current system.
//
// It attempts to initialize a WebGPU adapter to verify that a compatible
// GPU and drivers are present. It's useful for graceful fallback to
// heap-backed pinned memory when no GPU is available.
//
// Example:
//
//	pinned := device.Pinned()
//	if webgpu.IsAvailable() {
//	    if alloc, err := webgpu.New(); err == nil {
//	        pinned = alloc
//	    }
//	}
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}

// SetLogger sets the logger for webgpu operations.
// This must be called before any allocator operations.
func SetLogger(l *zap.Logger) {
	internalwebgpu.SetLogger(l)
}

// Copyright 2025 Ferry ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides batched tensor storage for the Ferry exchange layer.
//
// # Overview
//
// A Batch is Ferry's unit of pipeline data: every sample of a batch lives
// in one contiguous allocation, row-major, sample after sample. This package
// provides:
//   - Batch construction on any device (NewBatch, NewBatchOf)
//   - Typed zero-copy access to samples (SampleData)
//   - Per-sample shape and layout queries
//
// # Basic Usage
//
//	import (
//	    "github.com/ferry-ml/ferry/device"
//	    "github.com/ferry-ml/ferry/tensor"
//	)
//
//	func main() {
//	    dev := device.Host()
//
//	    // A two-sample batch with uneven shapes.
//	    b, err := tensor.NewBatchOf(dev,
//	        []tensor.Shape{{2, 2}, {1, 2}},
//	        [][]float32{{1, 2, 3, 4}, {5, 6}},
//	    )
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer b.Release()
//
//	    first := tensor.SampleData[float32](b, 0) // zero-copy view
//	    _ = first
//	}
//
// # Supported Data Types
//
// Batches carry one element type, chosen from the DataType constants:
//   - Float32, Float64, Float16 (floating-point; Float16 is storage-only)
//   - Int8, Int16, Int32, Int64 (signed integers)
//   - Uint8, Uint16, Uint32, Uint64 (unsigned integers)
//   - Bool (boolean masks)
//
// Float16 has no native Go element type; such batches are built with
// NewBatch and filled through WriteSample.
//
// # Device Support
//
// A batch allocates through the device package:
//   - device.Host(): plain heap memory
//   - device.Pinned() or webgpu.New(): pinned staging memory
//   - device.NewAccel(ordinal): stream-ordered accelerator memory
//
// # Memory Management
//
// Release frees the batch's allocation and is safe to call more than once.
// Exchange descriptors exported from a batch keep the underlying memory
// reachable through their resource wrappers, so releasing a batch never
// invalidates capsules already handed out.
package tensor

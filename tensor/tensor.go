// Copyright 2025 Ferry ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API for batched tensor storage in Ferry.
//
// The package defines the container the exchange layer moves data in and
// out of:
//   - Batch: all samples of a batch in one contiguous allocation
//   - Shape, DataType: dimension and element type definitions
//   - DType: compile-time constraint for typed batch construction
//
// Example:
//
//	dev := device.Host()
//	b, err := tensor.NewBatchOf(dev,
//	    []tensor.Shape{{2, 2}, {3}},
//	    [][]float32{{1, 2, 3, 4}, {5, 6, 7}},
//	)
package tensor

import (
	"github.com/ferry-ml/ferry/internal/device"
	"github.com/ferry-ml/ferry/internal/tensor"
)

// Type aliases for public API

// DType is a constraint for batch element types.
// Supported types: float32, float64, int8, int16, int32, int64,
// uint8, uint16, uint32, uint64, bool.
type DType = tensor.DType

// DataType represents the underlying element type of a batch.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
	Uint8   DataType = tensor.Uint8
	Bool    DataType = tensor.Bool
	Int8    DataType = tensor.Int8
	Int16   DataType = tensor.Int16
	Uint16  DataType = tensor.Uint16
	Uint32  DataType = tensor.Uint32
	Uint64  DataType = tensor.Uint64
	Float16 DataType = tensor.Float16
)

// Shape represents the dimensions of one sample.
// Example: Shape{2, 3, 4} represents a 3D sample with dimensions 2×3×4.
type Shape = tensor.Shape

// Batch holds all samples of a batch in one contiguous allocation with a
// uniform element type and rank. Per-sample shapes may differ within that
// rank.
//
// Example:
//
//	b, err := tensor.NewBatch(device.Host(), tensor.Float32, []tensor.Shape{{2, 3}, {1, 3}})
//	if err != nil { ... }
//	defer b.Release()
//	copy(tensor.SampleData[float32](b, 0), values)
type Batch = tensor.Batch

// Creation functions

// NewBatch allocates a batch on dev holding one sample per shape.
// All shapes must have the same rank.
func NewBatch(dev device.Device, dtype DataType, shapes []Shape) (*Batch, error) {
	return tensor.NewBatch(dev, dtype, shapes)
}

// NewBatchOf allocates a batch on dev and fills it from per-sample element
// slices. The element type is inferred from T.
//
// Example:
//
//	b, err := tensor.NewBatchOf(device.Host(),
//	    []tensor.Shape{{3}},
//	    [][]int64{{7, 8, 9}},
//	)
func NewBatchOf[T DType](dev device.Device, shapes []Shape, samples [][]T) (*Batch, error) {
	return tensor.NewBatchOf(dev, shapes, samples)
}

// Accessors

// SampleData reinterprets sample i of b as a []T without copying.
// Panics if T does not match the batch's element type.
func SampleData[T DType](b *Batch, i int) []T {
	return tensor.SampleData[T](b, i)
}

// TypeOf returns the DataType for the Go element type T.
func TypeOf[T DType]() DataType {
	return tensor.TypeOf[T]()
}

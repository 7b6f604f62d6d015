// Copyright 2025 Ferry ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package device provides the public API for memory placement, allocation,
// and execution streams in Ferry.
//
// The package models the three kinds of memory the exchange layer moves
// data between:
//   - Host: pageable host memory
//   - Pinned: page-locked host memory, accelerator-visible
//   - Accel: accelerator-resident memory, ordered through streams
//
// Example:
//
//	acc := device.NewAccel(0)
//	defer acc.Close()
//	stream := acc.NewStream()
//	defer stream.Close()
//
//	stream.Enqueue(func() { /* device work */ })
//	stream.Synchronize()
package device

import (
	"go.uber.org/zap"

	"github.com/ferry-ml/ferry/internal/device"
)

// Type aliases for public API

// Kind identifies where an allocation lives. The numeric values are
// ABI-fixed and shared with the exchange descriptor format.
type Kind = device.Kind

// Memory kind constants.
const (
	KindHost   Kind = device.KindHost
	KindAccel  Kind = device.KindAccel
	KindPinned Kind = device.KindPinned
)

// Placement identifies a memory location: a kind plus a device ordinal.
type Placement = device.Placement

// Allocation is a single contiguous block of memory owned by a Device.
type Allocation = device.Allocation

// Device allocates memory at a fixed placement.
//
// Implementations:
//   - Host(), Pinned(): Go-heap backed host memory
//   - webgpu.New(): pinned memory from mapped WebGPU staging buffers
//   - NewAccel(ordinal): virtual accelerator with stream-ordered copies
type Device = device.Device

// Stream is an ordered asynchronous executor. Operations enqueued on the
// same stream run one at a time, in enqueue order.
type Stream = device.Stream

// Accel is a virtual accelerator whose copies are ordered through streams.
type Accel = device.Accel

// DefaultStreamDepth is the enqueue-queue capacity of a new stream.
const DefaultStreamDepth = device.DefaultStreamDepth

// Constructors and lookups

// Host returns the pageable host memory device.
func Host() Device {
	return device.Host()
}

// Pinned returns a pinned host memory device backed by the Go heap.
// When a WebGPU adapter is present, webgpu.New() supplies pinned memory
// from mapped staging buffers instead.
func Pinned() Device {
	return device.Pinned()
}

// NewAccel creates a virtual accelerator with the given ordinal.
func NewAccel(ordinal int32) *Accel {
	return device.NewAccel(ordinal)
}

// StreamByHandle resolves an opaque stream handle. It returns nil for
// zero, unknown, or already-closed handles.
func StreamByHandle(h uint64) *Stream {
	return device.StreamByHandle(h)
}

// SetLogger sets the logger for device operations.
// This must be called before any device operations.
func SetLogger(l *zap.Logger) {
	device.SetLogger(l)
}

// Copyright 2025 Ferry ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package exchange provides the public API for moving tensors across
// runtime boundaries without copying.
//
// The package defines the exchange protocol Ferry shares with foreign
// runtimes:
//   - Descriptor: language-neutral tensor metadata over a raw pointer
//   - Resource: single-owner wrapper with at-most-once teardown
//   - Capsule: named, consume-once ownership transfer handle
//   - Array: host array bridge with format-string element typing
//   - CopyToBatch: validated copy of foreign tensors into a Batch
//   - Function: runner that feeds batches through a foreign function
//
// Example:
//
//	caps, err := exchange.ExportBatch(inputs)   // batches -> capsules
//	out, err := exchange.ToArray(caps[0][0])    // consume into host array
package exchange

import (
	"unsafe"

	"go.uber.org/zap"

	"github.com/ferry-ml/ferry/internal/device"
	"github.com/ferry-ml/ferry/internal/exchange"
	"github.com/ferry-ml/ferry/internal/tensor"
)

// CapsuleName is the fixed tag every live capsule carries until
// consumption. It is ABI-fixed.
const CapsuleName = exchange.CapsuleName

// Errors returned by exchange operations. All errors wrap one of these
// sentinels, so callers test with errors.Is.
var (
	ErrInvalidPayload      = exchange.ErrInvalidPayload
	ErrUnsupportedType     = exchange.ErrUnsupportedType
	ErrCapsuleNameMismatch = exchange.ErrCapsuleNameMismatch
	ErrCapsuleConsumed     = exchange.ErrCapsuleConsumed
	ErrShapeMismatch       = exchange.ErrShapeMismatch
	ErrTypeMismatch        = exchange.ErrTypeMismatch
)

// Type aliases for public API

// TypeCode is the element type class of the exchange ABI.
type TypeCode = exchange.TypeCode

// Type code constants. The values are ABI-fixed.
const (
	CodeInt    TypeCode = exchange.CodeInt
	CodeUint   TypeCode = exchange.CodeUint
	CodeFloat  TypeCode = exchange.CodeFloat
	CodeBfloat TypeCode = exchange.CodeBfloat
	CodeBool   TypeCode = exchange.CodeBool
)

// ElemType is an exchange element type: a type code plus width in bits
// and vector lane count.
type ElemType = exchange.ElemType

// Descriptor is language-neutral tensor metadata over a raw pointer.
// It does not own the memory it points to.
type Descriptor = exchange.Descriptor

// Payload is the producer-side view of a tensor handed to the exchange
// layer: it can describe itself and tear itself down.
type Payload = exchange.Payload

// Resource wraps a payload with single ownership and at-most-once
// teardown.
type Resource = exchange.Resource

// Capsule is a named, single-use handle that transfers ownership of a
// Resource across a runtime boundary exactly once.
type Capsule = exchange.Capsule

// Mode selects how batch inputs are presented to a foreign function.
type Mode = exchange.Mode

// Input presentation modes.
const (
	ModeBatch  Mode = exchange.ModeBatch
	ModeSample Mode = exchange.ModeSample
)

// CopyOptions configures CopyToBatch.
type CopyOptions = exchange.CopyOptions

// Array is a host tensor in array-interface form, with the element type
// spelled as a format string.
type Array = exchange.Array

// Workspace carries one iteration's inputs, outputs, and execution
// resources through a Function run.
type Workspace = exchange.Workspace

// BatchFunc is a foreign function invoked once per batch.
type BatchFunc = exchange.BatchFunc

// SampleFunc is a foreign function invoked once per sample.
type SampleFunc = exchange.SampleFunc

// Function runs a foreign function over workspaces, handling export,
// ownership, validation, and the copy back into Ferry batches.
type Function = exchange.Function

// Resource and capsule construction

// NewResource wraps a payload in a single-owner resource. The payload's
// descriptor is validated; a nil data pointer with a non-zero byte size
// fails with ErrInvalidPayload.
func NewResource(p Payload) (*Resource, error) {
	return exchange.NewResource(p)
}

// NewCapsule wraps a resource in a fresh, unconsumed capsule.
func NewCapsule(r *Resource) *Capsule {
	return exchange.NewCapsule(r)
}

// Host array bridge

// FromArray wraps a host array in an exchange capsule. The array's data
// is borrowed, not copied; its Release hook is invoked when the wrapping
// resource is torn down.
func FromArray(a *Array) (*Capsule, error) {
	return exchange.FromArray(a)
}

// ToArray consumes a capsule into a host array. The capsule must hold
// host-resident memory. On error the capsule is left intact.
func ToArray(c *Capsule) (*Array, error) {
	return exchange.ToArray(c)
}

// WrapBuffer wraps a contiguous foreign buffer in an exchange capsule.
// release, when non-nil, is invoked at most once when the wrapping
// resource is torn down; ptr must stay valid until then.
func WrapBuffer(ptr unsafe.Pointer, place device.Placement, dtype tensor.DataType,
	shape tensor.Shape, release func()) (*Capsule, error) {
	return exchange.WrapBuffer(ptr, place, dtype, shape, release)
}

// Data reinterprets an array's buffer as a []T in storage order. Panics
// if T does not match the array's format string.
func Data[T tensor.DType](a *Array) []T {
	return exchange.Data[T](a)
}

// Bytes reinterprets a typed element slice as its raw bytes without
// copying, for building Array values.
func Bytes[T tensor.DType](src []T) []byte {
	return exchange.Bytes(src)
}

// Batch adapters

// ExportBatch exports batches in batch mode: one capsule list per input.
func ExportBatch(inputs []*tensor.Batch) ([][]*Capsule, error) {
	return exchange.ExportBatch(inputs)
}

// ExportPerSample exports batches in per-sample mode: one capsule list
// per sample, holding that sample from every input. All inputs must have
// the same number of samples.
func ExportPerSample(inputs []*tensor.Batch) ([][]*Capsule, error) {
	return exchange.ExportPerSample(inputs)
}

// Export exports batches in the given mode.
func Export(mode Mode, inputs []*tensor.Batch) ([][]*Capsule, error) {
	return exchange.Export(mode, inputs)
}

// Transpose flips a capsule grouping between input-major and
// sample-major order, preserving order along both axes.
func Transpose(groups [][]*Capsule) [][]*Capsule {
	return exchange.Transpose(groups)
}

// Copy engine

// CopyToBatch copies foreign tensors into dst, one resource per sample.
// Sources are borrowed, never released. Validation is all-or-nothing: on
// error no destination byte has been written. For accelerator
// destinations the copy is enqueued on the stream and CopyToBatch
// returns without waiting for completion.
func CopyToBatch(dst *tensor.Batch, srcs []*Resource, opts CopyOptions) error {
	return exchange.CopyToBatch(dst, srcs, opts)
}

// Stream state

// CurrentStream returns the process-wide current stream, or nil when
// unset.
func CurrentStream() *device.Stream {
	return exchange.CurrentStream()
}

// SetCurrentStream sets the process-wide current stream. The pipeline
// driver sets it once per iteration before invoking foreign code;
// concurrent mutation is undefined.
func SetCurrentStream(s *device.Stream) {
	exchange.SetCurrentStream(s)
}

// CurrentStreamHandle returns the current stream as an opaque integer
// handle, or 0 when unset. Foreign runtimes resolve the handle with
// device.StreamByHandle.
func CurrentStreamHandle() uint64 {
	return exchange.CurrentStreamHandle()
}

// Element type table

// ElemTypeOf maps a batch element type to its exchange type. Unmapped
// types fail with ErrUnsupportedType.
func ElemTypeOf(dt tensor.DataType) (ElemType, error) {
	return exchange.ElemTypeOf(dt)
}

// DataTypeOf maps an exchange type back to a batch element type.
// Unmapped types fail with ErrUnsupportedType; nothing is coerced.
func DataTypeOf(et ElemType) (tensor.DataType, error) {
	return exchange.DataTypeOf(et)
}

// FormatOf maps a batch element type to its array-interface format
// string, e.g. "<f4".
func FormatOf(dt tensor.DataType) (string, error) {
	return exchange.FormatOf(dt)
}

// DataTypeOfFormat maps an array-interface format string back to a batch
// element type.
func DataTypeOfFormat(fs string) (tensor.DataType, error) {
	return exchange.DataTypeOfFormat(fs)
}

// SetLogger sets the logger for exchange operations.
// This must be called before any exchange operations.
func SetLogger(l *zap.Logger) {
	exchange.SetLogger(l)
}

// Package device provides memory placement, allocation, and execution
// stream primitives for the Ferry exchange layer.
//
// Three kinds of memory are modeled: pageable host memory, page-locked
// (pinned) host memory, and accelerator-resident memory. The numeric kind
// values are ABI-fixed and shared with the exchange descriptor format.
package device

import (
	"fmt"
	"unsafe"
)

// Kind identifies where an allocation lives.
//
// The values are ABI-fixed: they match the device-type codes of the
// exchange descriptor format and must not be renumbered.
type Kind int32

// Supported memory kinds.
const (
	KindHost   Kind = 1 // pageable host memory
	KindAccel  Kind = 2 // accelerator-resident memory
	KindPinned Kind = 3 // page-locked host memory, accelerator-visible
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindHost:
		return "host"
	case KindAccel:
		return "accel"
	case KindPinned:
		return "pinned"
	default:
		return "unknown"
	}
}

// Placement identifies a memory location: a kind plus a device ordinal.
// Host and pinned memory use ordinal 0.
type Placement struct {
	Kind    Kind
	Ordinal int32
}

// HostResident reports whether memory at this placement is directly
// addressable by host code without stream ordering.
func (p Placement) HostResident() bool {
	return p.Kind == KindHost || p.Kind == KindPinned
}

// String returns a human-readable placement, e.g. "accel:0".
func (p Placement) String() string {
	if p.Kind == KindAccel {
		return fmt.Sprintf("%s:%d", p.Kind, p.Ordinal)
	}
	return p.Kind.String()
}

// Allocation is a single contiguous block of memory owned by a Device.
//
// Ptr remains valid until Release. Release is idempotent; using the
// allocation after Release is a caller error.
type Allocation interface {
	// Ptr returns the base address, or nil for zero-length allocations.
	Ptr() unsafe.Pointer
	// Len returns the allocation size in bytes.
	Len() int64
	// Bytes returns the allocation as a byte slice. All devices in this
	// package are host-visible, so the slice aliases the live memory;
	// for accelerator placements, unordered access bypasses stream
	// semantics and is reserved for setup and test code.
	Bytes() []byte
	// Release frees the allocation. Idempotent.
	Release()
}

// Device allocates memory at a fixed placement.
type Device interface {
	Placement() Placement
	Allocate(n int64) (Allocation, error)
}

// heapAlloc is a Go-heap backed allocation. It serves host and pinned
// placements directly and the virtual accelerator's "device" memory.
type heapAlloc struct {
	data []byte
}

func (a *heapAlloc) Ptr() unsafe.Pointer {
	if len(a.data) == 0 {
		return nil
	}
	return unsafe.Pointer(&a.data[0])
}

func (a *heapAlloc) Len() int64 {
	return int64(len(a.data))
}

func (a *heapAlloc) Bytes() []byte {
	return a.data
}

func (a *heapAlloc) Release() {
	a.data = nil
}

// heapDevice allocates Go-heap memory tagged with a fixed placement.
type heapDevice struct {
	place Placement
}

func (d *heapDevice) Placement() Placement {
	return d.place
}

func (d *heapDevice) Allocate(n int64) (Allocation, error) {
	if n < 0 {
		return nil, fmt.Errorf("device: negative allocation size %d", n)
	}
	return &heapAlloc{data: make([]byte, n)}, nil
}

var (
	hostDevice   = &heapDevice{place: Placement{Kind: KindHost}}
	pinnedDevice = &heapDevice{place: Placement{Kind: KindPinned}}
)

// Host returns the pageable host memory device.
func Host() Device {
	return hostDevice
}

// Pinned returns a pinned host memory device backed by the Go heap.
//
// This is the fallback provider; when a WebGPU adapter is present,
// webgpu.New() supplies pinned memory from mapped staging buffers
// instead.
func Pinned() Device {
	return pinnedDevice
}

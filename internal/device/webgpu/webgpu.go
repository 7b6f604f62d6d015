// Package webgpu provides pinned host memory backed by WebGPU staging
// buffers. Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO
// WebGPU bindings.
//
// A mapped-at-creation staging buffer is driver-visible host memory, the
// same role page-locked memory plays for other accelerator stacks, so
// the allocator reports the pinned placement. Buffers stay mapped for
// their whole life; they exist to stage uploads and downloads, not to be
// bound to GPU passes.
package webgpu

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
	"go.uber.org/zap"

	"github.com/ferry-ml/ferry/internal/device"
)

// Allocator hands out pinned allocations from WebGPU staging buffers.
// It implements device.Device.
type Allocator struct {
	instance    *wgpu.Instance
	adapter     *wgpu.Adapter
	dev         *wgpu.Device
	queue       *wgpu.Queue
	adapterInfo *wgpu.AdapterInfoGo

	mu     sync.Mutex
	closed bool

	// Memory tracking
	memoryStats struct {
		allocatedBytes uint64
		peakBytes      uint64
		activeBuffers  int64
		mu             sync.RWMutex
	}
}

// Compile-time check that Allocator implements device.Device.
var _ device.Device = (*Allocator)(nil)

// New creates a WebGPU-backed pinned memory allocator.
// Returns an error if WebGPU is not available or initialization fails.
func New() (alloc *Allocator, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			alloc = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance, _ := wgpu.CreateInstance(nil)
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w", adapterErr)
	}

	adapterInfo, _ := adapter.GetInfo()

	dev, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", deviceErr)
	}

	queue := dev.GetQueue()
	if queue == nil {
		dev.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue")
	}

	a := &Allocator{
		instance:    instance,
		adapter:     adapter,
		dev:         dev,
		queue:       queue,
		adapterInfo: adapterInfo,
	}
	Logger().Debug("webgpu pinned allocator ready", zap.String("adapter", a.Name()))
	return a, nil
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance, _ := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()

	return true
}

// Name returns the adapter description.
func (a *Allocator) Name() string {
	if a.adapterInfo != nil {
		return fmt.Sprintf("WebGPU (%s %s)", a.adapterInfo.Device, a.adapterInfo.Vendor)
	}
	return "WebGPU"
}

// Placement returns the pinned host placement.
func (a *Allocator) Placement() device.Placement {
	return device.Placement{Kind: device.KindPinned}
}

// Allocate creates a persistently mapped staging buffer of n bytes.
func (a *Allocator) Allocate(n int64) (device.Allocation, error) {
	if n < 0 {
		return nil, fmt.Errorf("webgpu: negative allocation size %d", n)
	}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, fmt.Errorf("webgpu: allocator closed")
	}
	a.mu.Unlock()

	if n == 0 {
		return &emptyAlloc{}, nil
	}

	buffer := a.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:             uint64(n),
		MappedAtCreation: wgpu.True,
	})
	ptr := buffer.GetMappedRange(0, uint64(n))
	a.trackAllocation(uint64(n))

	return &stagingAlloc{owner: a, buf: buffer, ptr: ptr, size: n}, nil
}

// Close releases the allocator's WebGPU objects. Outstanding allocations
// keep their buffers; release them before closing.
func (a *Allocator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true

	if active := a.activeBuffers(); active > 0 {
		Logger().Warn("webgpu allocator closed with live buffers",
			zap.Int64("buffers", active))
	}
	if a.queue != nil {
		a.queue.Release()
		a.queue = nil
	}
	if a.dev != nil {
		a.dev.Release()
		a.dev = nil
	}
	if a.adapter != nil {
		a.adapter.Release()
		a.adapter = nil
	}
	if a.instance != nil {
		a.instance.Release()
		a.instance = nil
	}
}

// MemoryStats reports staging memory usage.
type MemoryStats struct {
	// Bytes currently allocated in staging buffers.
	AllocatedBytes uint64
	// Peak allocated bytes since creation.
	PeakBytes uint64
	// Number of live staging buffers.
	ActiveBuffers int64
}

// MemoryStats returns current staging memory usage statistics.
func (a *Allocator) MemoryStats() MemoryStats {
	a.memoryStats.mu.RLock()
	defer a.memoryStats.mu.RUnlock()
	return MemoryStats{
		AllocatedBytes: a.memoryStats.allocatedBytes,
		PeakBytes:      a.memoryStats.peakBytes,
		ActiveBuffers:  a.memoryStats.activeBuffers,
	}
}

func (a *Allocator) trackAllocation(size uint64) {
	a.memoryStats.mu.Lock()
	defer a.memoryStats.mu.Unlock()
	a.memoryStats.allocatedBytes += size
	a.memoryStats.activeBuffers++
	if a.memoryStats.allocatedBytes > a.memoryStats.peakBytes {
		a.memoryStats.peakBytes = a.memoryStats.allocatedBytes
	}
}

func (a *Allocator) trackRelease(size uint64) {
	a.memoryStats.mu.Lock()
	defer a.memoryStats.mu.Unlock()
	if a.memoryStats.allocatedBytes >= size {
		a.memoryStats.allocatedBytes -= size
	}
	a.memoryStats.activeBuffers--
}

func (a *Allocator) activeBuffers() int64 {
	a.memoryStats.mu.RLock()
	defer a.memoryStats.mu.RUnlock()
	return a.memoryStats.activeBuffers
}

// stagingAlloc is one persistently mapped staging buffer.
type stagingAlloc struct {
	owner    *Allocator
	buf      *wgpu.Buffer
	ptr      unsafe.Pointer
	size     int64
	released sync.Once
}

func (s *stagingAlloc) Ptr() unsafe.Pointer {
	return s.ptr
}

func (s *stagingAlloc) Len() int64 {
	return s.size
}

func (s *stagingAlloc) Bytes() []byte {
	if s.ptr == nil {
		return nil
	}
	//nolint:gosec // unsafe.Slice over the mapped range, bounds fixed at creation
	return unsafe.Slice((*byte)(s.ptr), s.size)
}

func (s *stagingAlloc) Release() {
	s.released.Do(func() {
		s.buf.Unmap()
		s.buf.Release()
		s.owner.trackRelease(uint64(s.size))
		s.ptr = nil
		s.buf = nil
	})
}

// emptyAlloc backs zero-length allocations without a GPU buffer.
type emptyAlloc struct{}

func (emptyAlloc) Ptr() unsafe.Pointer { return nil }
func (emptyAlloc) Len() int64          { return 0 }
func (emptyAlloc) Bytes() []byte       { return nil }
func (emptyAlloc) Release()            {}

package device

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Accel is a virtual accelerator: a device whose memory is addressable
// in-process but whose copies are ordered through streams, matching the
// contracts of a real accelerator driver. It is the reference
// KindAccel implementation and the one exercised by tests.
type Accel struct {
	ordinal int32

	mu      sync.Mutex
	streams []*Stream
	closed  bool

	allocatedBytes atomic.Int64
	allocations    atomic.Int64
}

// NewAccel creates a virtual accelerator with the given ordinal.
func NewAccel(ordinal int32) *Accel {
	Logger().Debug("virtual accelerator created", zap.Int32("ordinal", ordinal))
	return &Accel{ordinal: ordinal}
}

// Placement returns the accelerator's placement.
func (a *Accel) Placement() Placement {
	return Placement{Kind: KindAccel, Ordinal: a.ordinal}
}

// Allocate reserves n bytes of accelerator memory.
func (a *Accel) Allocate(n int64) (Allocation, error) {
	if n < 0 {
		return nil, fmt.Errorf("device: negative allocation size %d", n)
	}
	a.allocatedBytes.Add(n)
	a.allocations.Add(1)
	return &accelAlloc{heapAlloc: heapAlloc{data: make([]byte, n)}, dev: a}, nil
}

// NewStream creates an execution stream on this accelerator.
func (a *Accel) NewStream() *Stream {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		panic("device: NewStream on closed accelerator")
	}
	s := newStream(a.ordinal, DefaultStreamDepth)
	a.streams = append(a.streams, s)
	return s
}

// Synchronize blocks until all work enqueued on all of the accelerator's
// streams has completed.
func (a *Accel) Synchronize() {
	a.mu.Lock()
	streams := append([]*Stream(nil), a.streams...)
	a.mu.Unlock()
	for _, s := range streams {
		s.Synchronize()
	}
}

// Close synchronizes and shuts down every stream owned by the
// accelerator. Idempotent.
func (a *Accel) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	streams := a.streams
	a.streams = nil
	a.mu.Unlock()
	for _, s := range streams {
		s.Close()
	}
	Logger().Debug("virtual accelerator closed",
		zap.Int32("ordinal", a.ordinal),
		zap.Int64("live_allocations", a.allocations.Load()))
}

// AllocatedBytes returns the bytes currently allocated on the device.
func (a *Accel) AllocatedBytes() int64 {
	return a.allocatedBytes.Load()
}

type accelAlloc struct {
	heapAlloc
	dev *Accel
}

func (a *accelAlloc) Release() {
	if a.data != nil {
		a.dev.allocatedBytes.Add(-int64(len(a.data)))
		a.dev.allocations.Add(-1)
	}
	a.heapAlloc.Release()
}

package device

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// DefaultStreamDepth is the enqueue-queue capacity of a new stream.
// Enqueue blocks when the queue is full, providing backpressure on
// callers that issue unbounded asynchronous work.
const DefaultStreamDepth = 64

// Stream is an ordered asynchronous executor: operations enqueued on the
// same stream run one at a time, in enqueue order. Completion relative to
// other streams or to host code is unordered; use Synchronize.
//
// A Stream models an accelerator execution queue. Its handle is an opaque
// integer that can cross a runtime boundary and be resolved back with
// StreamByHandle.
type Stream struct {
	handle  uint64
	ordinal int32
	ops     chan func()
	done    chan struct{}
	closed  sync.Once
}

func newStream(ordinal int32, depth int) *Stream {
	s := &Stream{
		ordinal: ordinal,
		ops:     make(chan func(), depth),
		done:    make(chan struct{}),
	}
	s.handle = registerStream(s)
	go s.run()
	Logger().Debug("stream created",
		zap.Uint64("handle", s.handle),
		zap.Int32("ordinal", ordinal),
		zap.Int("depth", depth))
	return s
}

func (s *Stream) run() {
	for op := range s.ops {
		op()
	}
	close(s.done)
}

// Handle returns the stream's opaque integer handle. Handles are unique
// for the life of the process and never reused.
func (s *Stream) Handle() uint64 {
	return s.handle
}

// Ordinal returns the device ordinal the stream belongs to.
func (s *Stream) Ordinal() int32 {
	return s.ordinal
}

// Enqueue schedules op to run after every previously enqueued operation.
// It blocks only when the stream's queue is full. Enqueue on a closed
// stream is a caller error and panics.
func (s *Stream) Enqueue(op func()) {
	s.ops <- op
}

// Synchronize blocks until every operation enqueued before the call has
// completed.
func (s *Stream) Synchronize() {
	fence := make(chan struct{})
	s.Enqueue(func() { close(fence) })
	<-fence
}

// Close drains the stream, unregisters its handle, and stops its
// executor. Close is idempotent; Enqueue after Close panics.
func (s *Stream) Close() {
	s.closed.Do(func() {
		unregisterStream(s.handle)
		close(s.ops)
		<-s.done
		Logger().Debug("stream closed", zap.Uint64("handle", s.handle))
	})
}

// Process-wide stream handle table. Handles are monotonically assigned so
// a stale handle resolves to nil rather than to a recycled stream.
var (
	streamMu   sync.RWMutex
	streamTab  = make(map[uint64]*Stream)
	nextHandle atomic.Uint64
)

func registerStream(s *Stream) uint64 {
	h := nextHandle.Add(1)
	streamMu.Lock()
	streamTab[h] = s
	streamMu.Unlock()
	return h
}

func unregisterStream(h uint64) {
	streamMu.Lock()
	delete(streamTab, h)
	streamMu.Unlock()
}

// StreamByHandle resolves an opaque stream handle. It returns nil for
// zero, unknown, or already-closed handles.
func StreamByHandle(h uint64) *Stream {
	streamMu.RLock()
	defer streamMu.RUnlock()
	return streamTab[h]
}

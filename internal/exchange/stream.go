package exchange

import "github.com/ferry-ml/ferry/internal/device"

// The process-wide current stream: the execution stream the pipeline's
// device work for the running iteration is ordered on. The execution
// context installs it once per device iteration before invoking foreign
// code, so a single writer is assumed and the pointer itself needs no
// locking. Concurrent mutation from unrelated goroutines is undefined
// and a caller responsibility, not a guarantee of this package.
//
// Code inside this package never reads the global when an explicit
// stream is supplied (CopyOptions.Stream, Workspace.Stream); the global
// exists for foreign code that must discover the pipeline's stream.
var currentStream *device.Stream

// CurrentStream returns the pipeline's current stream, or nil when no
// device iteration is active.
func CurrentStream() *device.Stream {
	return currentStream
}

// SetCurrentStream installs s as the process-wide current stream. The
// execution context calls this once per device iteration; nil clears it.
func SetCurrentStream(s *device.Stream) {
	currentStream = s
}

// CurrentStreamHandle returns the current stream as an opaque integer
// for foreign code, 0 when none is installed. The handle resolves back
// with device.StreamByHandle.
func CurrentStreamHandle() uint64 {
	if currentStream == nil {
		return 0
	}
	return currentStream.Handle()
}

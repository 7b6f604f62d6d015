package exchange

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ferry-ml/ferry/internal/device"
	"github.com/ferry-ml/ferry/internal/parallel"
	"github.com/ferry-ml/ferry/internal/tensor"
)

// CopyOptions carries the execution context's per-invocation services
// into the copy engine.
type CopyOptions struct {
	// Pool runs host-destination sample copies. A nil pool copies
	// sequentially.
	Pool *parallel.Pool
	// Stream orders device-destination copies. Nil falls back to the
	// process-wide current stream.
	Stream *device.Stream
}

func (o CopyOptions) stream() *device.Stream {
	if o.Stream != nil {
		return o.Stream
	}
	return CurrentStream()
}

// engine is the closed backend variant of the copy path. One
// implementation exists per destination locus; the variant is selected
// once per invocation from the destination batch's placement.
type engine interface {
	copyBatch(dst *tensor.Batch, srcs []*Resource) error
}

// CopyToBatch materializes the data of srcs, in order, into the samples
// of dst. Sources are borrowed, never released here.
//
// Every source is validated against its destination slot before any byte
// of dst mutates: the caller observes either an untouched destination and
// an error, or a fully issued copy.
//
// Host destinations block until every sample is copied (barrier). Device
// destinations return once the copy is enqueued on the stream;
// completion is guaranteed only for work ordered later on the same
// stream, and source memory must stay valid until the enqueued op has
// run (release sources stream-ordered; the function runner does).
func CopyToBatch(dst *tensor.Batch, srcs []*Resource, opts CopyOptions) error {
	if err := validateCopy(dst, srcs); err != nil {
		return err
	}

	var eng engine
	if dst.Placement().Kind == device.KindAccel {
		stream := opts.stream()
		if stream == nil {
			return errors.New("exchange: device destination requires a stream")
		}
		eng = &deviceEngine{stream: stream}
	} else {
		eng = &hostEngine{pool: opts.Pool}
	}
	return eng.copyBatch(dst, srcs)
}

// validateCopy checks every source descriptor against its destination
// slot up front, so a mismatch surfaces before any side effect.
func validateCopy(dst *tensor.Batch, srcs []*Resource) error {
	if len(srcs) != dst.Samples() {
		return errors.Wrapf(ErrShapeMismatch,
			"%d source descriptors for %d destination samples", len(srcs), dst.Samples())
	}
	want, err := ElemTypeOf(dst.DataType())
	if err != nil {
		return err
	}
	for i, src := range srcs {
		d := src.Descriptor()
		if !dimsEqual(d.Shape, dst.SampleShape(i)) {
			return errors.Wrapf(ErrShapeMismatch,
				"sample %d: source %v, destination %v", i, d.Shape, dst.SampleShape(i))
		}
		if d.Type != want {
			return errors.Wrapf(ErrTypeMismatch,
				"sample %d: source %s, destination %s", i, d.Type, want)
		}
		if err := d.validate(); err != nil {
			return errors.WithMessagef(err, "sample %d", i)
		}
	}
	return nil
}

// hostEngine copies into host-resident batches: one pool work unit per
// sample, weighted by the sample's byte size so uneven samples balance
// across workers, joined with barrier semantics.
type hostEngine struct {
	pool *parallel.Pool
}

func (e *hostEngine) copyBatch(dst *tensor.Batch, srcs []*Resource) error {
	pool := e.pool
	if pool == nil {
		pool = parallel.NewPool(parallel.Config{Enabled: false, NumWorkers: 1})
	}
	for i := range srcs {
		desc := srcs[i].Descriptor()
		out := dst.SampleSlice(i)
		pool.AddWork(func() error {
			copySample(out, desc)
			return nil
		}, dst.SampleBytes(i))
	}
	err := pool.RunAll()
	Logger().Debug("host copy complete",
		zap.Int("samples", dst.Samples()),
		zap.Int64("bytes", dst.ByteSize()),
		zap.Error(err))
	return err
}

// deviceEngine copies into accelerator-resident batches, stream-ordered
// and asynchronous. When every source is contiguous the whole batch goes
// into a single enqueued operation; otherwise each sample is enqueued
// separately and the stream's bounded queue throttles how far enqueueing
// runs ahead.
type deviceEngine struct {
	stream *device.Stream
}

func (e *deviceEngine) copyBatch(dst *tensor.Batch, srcs []*Resource) error {
	if dst.Samples() == 0 {
		return nil
	}

	batched := true
	for _, src := range srcs {
		if !src.Descriptor().Contiguous() {
			batched = false
			break
		}
	}

	if batched {
		// One stream operation covers the whole batch. Destination
		// slices are captured now so the op stays self-contained.
		descs := make([]*Descriptor, len(srcs))
		outs := make([][]byte, len(srcs))
		for i, src := range srcs {
			descs[i] = src.Descriptor()
			outs[i] = dst.SampleSlice(i)
		}
		e.stream.Enqueue(func() {
			for i, d := range descs {
				copySample(outs[i], d)
			}
		})
	} else {
		for i := range srcs {
			desc := srcs[i].Descriptor()
			out := dst.SampleSlice(i)
			e.stream.Enqueue(func() {
				copySample(out, desc)
			})
		}
	}

	Logger().Debug("device copy enqueued",
		zap.Uint64("stream", e.stream.Handle()),
		zap.Int("samples", dst.Samples()),
		zap.Int64("bytes", dst.ByteSize()),
		zap.Bool("batched", batched))
	return nil
}

// copySample materializes one source descriptor into a contiguous
// destination sample. Validation has already matched shape, type, and
// byte size.
func copySample(dst []byte, d *Descriptor) {
	if d.NumElements() == 0 {
		return
	}
	if d.Contiguous() {
		copy(dst, d.bytes())
		return
	}
	copyStrided(dst, d)
}

// copyStrided gathers a strided source into a contiguous destination.
// The longest row-major-contiguous suffix of the dimensions is moved
// with a single copy per visit; the remaining outer dimensions are
// walked with an odometer.
func copyStrided(dst []byte, d *Descriptor) {
	elem := int64(d.Type.Bytes())
	src := d.bytes()

	// Find the split point: dims [k, n) form the contiguous tail.
	k := len(d.Shape)
	run := int64(1)
	for k > 0 && d.Strides[k-1] == run {
		run *= d.Shape[k-1]
		k--
	}
	runBytes := run * elem
	if k == 0 {
		copy(dst, src[:runBytes])
		return
	}

	idx := make([]int64, k)
	var dstOff int64
	for {
		var srcElem int64
		for i := 0; i < k; i++ {
			srcElem += idx[i] * d.Strides[i]
		}
		srcOff := srcElem * elem
		copy(dst[dstOff:dstOff+runBytes], src[srcOff:srcOff+runBytes])
		dstOff += runBytes

		i := k - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < d.Shape[i] {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return
		}
	}
}

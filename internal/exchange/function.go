package exchange

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ferry-ml/ferry/internal/device"
	"github.com/ferry-ml/ferry/internal/parallel"
	"github.com/ferry-ml/ferry/internal/tensor"
)

// Workspace is the execution context's per-invocation bundle: the named
// input batches, the services the copy engine needs, and the slot the
// runner fills with the materialized outputs.
type Workspace struct {
	// Inputs are the pipeline's input batches, in operator input order.
	Inputs []*tensor.Batch
	// Outputs is filled by Function.Run, one batch per foreign output.
	Outputs []*tensor.Batch
	// Pool runs host-destination copies. Nil copies sequentially.
	Pool *parallel.Pool
	// Stream orders device work for this iteration. Nil falls back to
	// the process-wide current stream.
	Stream *device.Stream
	// OutputDevice is where output batches are allocated. Nil means
	// pageable host memory.
	OutputDevice device.Device
}

func (ws *Workspace) stream() *device.Stream {
	if ws.Stream != nil {
		return ws.Stream
	}
	return CurrentStream()
}

func (ws *Workspace) outputDevice() device.Device {
	if ws.OutputDevice != nil {
		return ws.OutputDevice
	}
	return device.Host()
}

// BatchFunc is foreign code invoked once per batch. It receives one
// capsule list per input (input-major) and returns one capsule list per
// output (output-major). The function owns every capsule it consumes and
// must release what it extracts; capsules it leaves unconsumed are
// closed by the runner.
type BatchFunc func(inputs [][]*Capsule) ([][]*Capsule, error)

// SampleFunc is foreign code invoked once per sample. It receives the
// sample's capsule from every input and returns that sample's capsule
// for every output. Ownership rules match BatchFunc.
type SampleFunc func(inputs []*Capsule) ([]*Capsule, error)

// Function invokes foreign code over exchange capsules and materializes
// the results into pipeline-owned batches: the complete
// export → invoke → validate → copy round trip.
type Function struct {
	// Mode selects batch or per-sample invocation.
	Mode Mode
	// NumOutputs is the exact number of outputs the foreign code must
	// return. Zero makes the function a sink.
	NumOutputs int
	// Synchronize drains the iteration's stream before invoking foreign
	// code, so foreign work issued outside that stream observes settled
	// inputs.
	Synchronize bool
	// Batch runs in ModeBatch.
	Batch BatchFunc
	// Sample runs in ModeSample.
	Sample SampleFunc
}

func (f *Function) validate() error {
	if f.NumOutputs < 0 {
		return errors.Errorf("exchange: negative output count %d", f.NumOutputs)
	}
	switch f.Mode {
	case ModeBatch:
		if f.Batch == nil {
			return errors.New("exchange: batch mode without a batch function")
		}
	case ModeSample:
		if f.Sample == nil {
			return errors.New("exchange: sample mode without a sample function")
		}
	default:
		return errors.Errorf("exchange: unknown mode %d", f.Mode)
	}
	return nil
}

// Run executes one iteration: exports ws.Inputs for the configured mode,
// invokes the foreign function, validates its output arity, and
// materializes every returned output into a batch on ws.OutputDevice,
// stored in ws.Outputs.
//
// Host-destination outputs are fully copied when Run returns. Device
// destinations are stream-ordered: Run returns after enqueue, and the
// extracted foreign resources are released on the stream, after the
// copies that read them.
func (f *Function) Run(ws *Workspace) error {
	if err := f.validate(); err != nil {
		return err
	}

	if f.Synchronize {
		if s := ws.stream(); s != nil {
			s.Synchronize()
		}
	}

	outs, err := f.invoke(ws)
	if err != nil {
		return err
	}

	outputs := make([]*tensor.Batch, len(outs))
	for o, capsules := range outs {
		resources, err := consumeAll(capsules)
		if err != nil {
			closeRemaining(outs[o:])
			releaseBatches(outputs[:o])
			return errors.WithMessagef(err, "output %d", o)
		}
		out, err := f.materialize(ws, resources)
		if err != nil {
			releaseAll(resources)
			closeRemaining(outs[o+1:])
			releaseBatches(outputs[:o])
			return errors.WithMessagef(err, "output %d", o)
		}
		outputs[o] = out
	}
	ws.Outputs = outputs

	Logger().Debug("foreign function completed",
		zap.String("mode", f.Mode.String()),
		zap.Int("inputs", len(ws.Inputs)),
		zap.Int("outputs", len(outputs)))
	return nil
}

// invoke runs the foreign callback and returns output-major capsule
// groups, exactly NumOutputs of them.
func (f *Function) invoke(ws *Workspace) ([][]*Capsule, error) {
	if f.Mode == ModeBatch {
		ins, err := ExportBatch(ws.Inputs)
		if err != nil {
			return nil, err
		}
		outs, ferr := f.Batch(ins)
		for _, g := range ins {
			closeAll(g)
		}
		if ferr != nil {
			closeRemaining(outs)
			return nil, errors.WithMessage(ferr, "exchange: foreign batch function")
		}
		if len(outs) != f.NumOutputs {
			closeRemaining(outs)
			return nil, errors.Errorf(
				"exchange: foreign function returned %d outputs, expected %d",
				len(outs), f.NumOutputs)
		}
		return outs, nil
	}

	groups, err := ExportPerSample(ws.Inputs)
	if err != nil {
		return nil, err
	}
	sampleMajor := make([][]*Capsule, len(groups))
	for s, g := range groups {
		rets, ferr := f.Sample(g)
		closeAll(g)
		if ferr != nil || len(rets) != f.NumOutputs {
			closeAll(rets)
			closeRemaining(sampleMajor[:s])
			closeRemaining(groups[s+1:])
			if ferr != nil {
				return nil, errors.WithMessagef(ferr, "exchange: foreign sample function, sample %d", s)
			}
			return nil, errors.Errorf(
				"exchange: foreign function returned %d outputs for sample %d, expected %d",
				len(rets), s, f.NumOutputs)
		}
		sampleMajor[s] = rets
	}

	outs := Transpose(sampleMajor)
	if len(outs) == 0 {
		// No samples were processed; the outputs still exist, empty.
		outs = make([][]*Capsule, f.NumOutputs)
	}
	return outs, nil
}

// materialize allocates one output batch matching the foreign results
// and copies the data in. Resources are borrowed; the caller schedules
// their release.
func (f *Function) materialize(ws *Workspace, resources []*Resource) (*tensor.Batch, error) {
	dt, shapes, err := outputLayout(resources)
	if err != nil {
		return nil, err
	}
	out, err := tensor.NewBatch(ws.outputDevice(), dt, shapes)
	if err != nil {
		return nil, err
	}
	opts := CopyOptions{Pool: ws.Pool, Stream: ws.Stream}
	if err := CopyToBatch(out, resources, opts); err != nil {
		out.Release()
		return nil, err
	}

	if out.Placement().Kind == device.KindAccel {
		// The enqueued copies read the foreign memory; release it
		// stream-ordered, after them.
		opts.stream().Enqueue(func() { releaseAll(resources) })
	} else {
		releaseAll(resources)
	}
	return out, nil
}

// outputLayout derives one output's element type and per-sample shapes
// from the foreign descriptors. Samples must agree on rank and element
// type. An empty result has indeterminate element type and defaults to
// Uint8, carrying no bytes either way.
func outputLayout(resources []*Resource) (tensor.DataType, []tensor.Shape, error) {
	if len(resources) == 0 {
		return tensor.Uint8, []tensor.Shape{}, nil
	}
	first := resources[0].Descriptor()
	dt, err := DataTypeOf(first.Type)
	if err != nil {
		return 0, nil, err
	}
	shapes := make([]tensor.Shape, len(resources))
	for s, r := range resources {
		d := r.Descriptor()
		if len(d.Shape) != len(first.Shape) {
			return 0, nil, errors.Wrapf(ErrInvalidPayload,
				"sample %d has rank %d, sample 0 has rank %d",
				s, len(d.Shape), len(first.Shape))
		}
		if d.Type != first.Type {
			return 0, nil, errors.Wrapf(ErrTypeMismatch,
				"sample %d is %s, sample 0 is %s", s, d.Type, first.Type)
		}
		shapes[s] = shapeOf(d.Shape)
	}
	return dt, shapes, nil
}

// consumeAll extracts the resource from every capsule of one output.
// On failure the resources consumed so far are released.
func consumeAll(caps []*Capsule) ([]*Resource, error) {
	resources := make([]*Resource, len(caps))
	for s, c := range caps {
		if c == nil {
			releaseAll(resources[:s])
			return nil, errors.Wrapf(ErrInvalidPayload, "sample %d: missing capsule", s)
		}
		res, err := c.Consume()
		if err != nil {
			releaseAll(resources[:s])
			return nil, errors.WithMessagef(err, "sample %d", s)
		}
		resources[s] = res
	}
	return resources, nil
}

func releaseAll(resources []*Resource) {
	for _, r := range resources {
		if r != nil {
			r.Release()
		}
	}
}

func closeRemaining(groups [][]*Capsule) {
	for _, g := range groups {
		closeAll(g)
	}
}

func releaseBatches(batches []*tensor.Batch) {
	for _, b := range batches {
		if b != nil {
			b.Release()
		}
	}
}

package exchange

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ferry-ml/ferry/internal/tensor"
)

// Mode selects how foreign code is invoked over a batch.
type Mode int

// Processing modes.
const (
	// ModeBatch invokes foreign code once per batch; it receives one
	// capsule list per input.
	ModeBatch Mode = iota
	// ModeSample invokes foreign code once per sample; each invocation
	// receives that sample's capsule from every input.
	ModeSample
)

// String returns a human-readable mode name.
func (m Mode) String() string {
	switch m {
	case ModeBatch:
		return "batch"
	case ModeSample:
		return "sample"
	default:
		return "unknown"
	}
}

// sampleView is the payload for a zero-copy export of one batch sample.
// Holding the *tensor.Batch keeps the whole batch allocation reachable
// for as long as any outstanding descriptor references it; release just
// drops that reference.
type sampleView struct {
	batch *tensor.Batch
	index int
}

func (v *sampleView) Describe() (Descriptor, error) {
	et, err := ElemTypeOf(v.batch.DataType())
	if err != nil {
		return Descriptor{}, err
	}
	// Batch samples are always row-major contiguous: strides omitted.
	return Descriptor{
		Data:   v.batch.SamplePtr(v.index),
		Device: v.batch.Placement(),
		Shape:  dims64(v.batch.SampleShape(v.index)),
		Type:   et,
	}, nil
}

func (v *sampleView) Release() {
	v.batch = nil
}

// exportInput wraps every sample of one input batch, zero copy. On
// failure the capsules built so far are closed.
func exportInput(b *tensor.Batch, input int) ([]*Capsule, error) {
	caps := make([]*Capsule, b.Samples())
	for s := range caps {
		res, err := NewResource(&sampleView{batch: b, index: s})
		if err != nil {
			closeAll(caps[:s])
			return nil, errors.WithMessagef(err, "input %d sample %d", input, s)
		}
		caps[s] = NewCapsule(res)
	}
	return caps, nil
}

// ExportBatch produces batch-mode groups: out[i][s] is sample s of input
// i, wrapped zero-copy. Zero inputs yield an empty grouping without
// error.
func ExportBatch(inputs []*tensor.Batch) ([][]*Capsule, error) {
	groups := make([][]*Capsule, len(inputs))
	for i, in := range inputs {
		caps, err := exportInput(in, i)
		if err != nil {
			for _, g := range groups[:i] {
				closeAll(g)
			}
			return nil, err
		}
		groups[i] = caps
	}
	Logger().Debug("exported batch-mode groups",
		zap.Int("inputs", len(inputs)))
	return groups, nil
}

// ExportPerSample produces per-sample groups: out[s][i] is sample s of
// input i. All inputs must share one batch size. Input order within each
// group and sample order across groups follow the batch-mode grouping
// exactly. Zero inputs yield an empty grouping without error.
func ExportPerSample(inputs []*tensor.Batch) ([][]*Capsule, error) {
	for i := 1; i < len(inputs); i++ {
		if inputs[i].Samples() != inputs[0].Samples() {
			return nil, errors.Wrapf(ErrShapeMismatch,
				"input %d has %d samples, input 0 has %d",
				i, inputs[i].Samples(), inputs[0].Samples())
		}
	}
	groups, err := ExportBatch(inputs)
	if err != nil {
		return nil, err
	}
	return Transpose(groups), nil
}

// Export dispatches to the adapter for mode.
func Export(mode Mode, inputs []*tensor.Batch) ([][]*Capsule, error) {
	if mode == ModeSample {
		return ExportPerSample(inputs)
	}
	return ExportBatch(inputs)
}

// Transpose flips a grouping between input-major and sample-major,
// preserving order along both axes. All rows must have equal length.
// Transpose is its own inverse whenever both axes are non-empty; a
// grouping with an empty inner axis collapses to an empty grouping, the
// same empty result both modes produce for zero inputs.
func Transpose(groups [][]*Capsule) [][]*Capsule {
	if len(groups) == 0 || len(groups[0]) == 0 {
		return [][]*Capsule{}
	}
	out := make([][]*Capsule, len(groups[0]))
	for j := range out {
		row := make([]*Capsule, len(groups))
		for i := range groups {
			row[i] = groups[i][j]
		}
		out[j] = row
	}
	return out
}

// closeAll closes every non-nil capsule in caps. Closed and consumed
// capsules are unaffected, so this is safe as a blanket cleanup.
func closeAll(caps []*Capsule) {
	for _, c := range caps {
		if c != nil {
			c.Close()
		}
	}
}

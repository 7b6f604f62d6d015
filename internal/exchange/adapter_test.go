package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferry-ml/ferry/internal/device"
	"github.com/ferry-ml/ferry/internal/tensor"
)

func TestModeString(t *testing.T) {
	assert.Equal(t, "batch", ModeBatch.String())
	assert.Equal(t, "sample", ModeSample.String())
	assert.Equal(t, "unknown", Mode(42).String())
}

// testInputs builds two host batches with three samples each.
func testInputs(t *testing.T) []*tensor.Batch {
	t.Helper()
	a, err := tensor.NewBatchOf(device.Host(), []tensor.Shape{{2}, {3}, {1}}, [][]float32{
		{1, 2}, {3, 4, 5}, {6},
	})
	require.NoError(t, err)
	b, err := tensor.NewBatchOf(device.Host(), []tensor.Shape{{1}, {1}, {1}}, [][]int32{
		{10}, {20}, {30},
	})
	require.NoError(t, err)
	return []*tensor.Batch{a, b}
}

func releaseInputs(batches []*tensor.Batch) {
	for _, b := range batches {
		b.Release()
	}
}

func TestExportBatch(t *testing.T) {
	inputs := testInputs(t)
	defer releaseInputs(inputs)

	groups, err := ExportBatch(inputs)
	require.NoError(t, err)
	require.Len(t, groups, 2, "one group per input")

	for i, in := range inputs {
		require.Len(t, groups[i], in.Samples())
		for s, c := range groups[i] {
			assert.Equal(t, CapsuleName, c.Name())
			res, err := c.peek()
			require.NoError(t, err)
			d := res.Descriptor()
			assert.Equal(t, in.SamplePtr(s), d.Data, "input %d sample %d aliases batch memory", i, s)
			assert.Equal(t, dims64(in.SampleShape(s)), d.Shape)
			assert.Nil(t, d.Strides, "batch samples are contiguous")
			assert.Equal(t, in.Placement(), d.Device)
		}
		closeAll(groups[i])
	}
}

func TestExportBatchEmpty(t *testing.T) {
	groups, err := ExportBatch(nil)
	require.NoError(t, err)
	assert.NotNil(t, groups)
	assert.Len(t, groups, 0)
}

func TestExportPerSample(t *testing.T) {
	inputs := testInputs(t)
	defer releaseInputs(inputs)

	groups, err := ExportPerSample(inputs)
	require.NoError(t, err)
	require.Len(t, groups, 3, "one group per sample")

	// groups[s][i] must be sample s of input i, in input order.
	for s := range groups {
		require.Len(t, groups[s], 2)
		for i, c := range groups[s] {
			res, err := c.peek()
			require.NoError(t, err)
			assert.Equal(t, inputs[i].SamplePtr(s), res.Descriptor().Data,
				"sample %d input %d pairing", s, i)
		}
	}
	closeRemaining(groups)
}

func TestExportPerSampleSizeMismatch(t *testing.T) {
	a, err := tensor.NewBatch(device.Host(), tensor.Float32, []tensor.Shape{{1}, {1}})
	require.NoError(t, err)
	defer a.Release()
	b, err := tensor.NewBatch(device.Host(), tensor.Float32, []tensor.Shape{{1}})
	require.NoError(t, err)
	defer b.Release()

	groups, err := ExportPerSample([]*tensor.Batch{a, b})
	assert.Nil(t, groups)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestExportPerSampleZeroInputs(t *testing.T) {
	groups, err := ExportPerSample(nil)
	require.NoError(t, err)
	assert.Len(t, groups, 0)
}

func TestExportPerSampleZeroSamples(t *testing.T) {
	empty, err := tensor.NewBatch(device.Host(), tensor.Float32, []tensor.Shape{})
	require.NoError(t, err)
	defer empty.Release()

	groups, err := ExportPerSample([]*tensor.Batch{empty})
	require.NoError(t, err)
	assert.Len(t, groups, 0, "no samples means no per-sample groups")
}

func TestExportDispatch(t *testing.T) {
	inputs := testInputs(t)
	defer releaseInputs(inputs)

	byInput, err := Export(ModeBatch, inputs)
	require.NoError(t, err)
	assert.Len(t, byInput, 2)
	closeRemaining(byInput)

	bySample, err := Export(ModeSample, inputs)
	require.NoError(t, err)
	assert.Len(t, bySample, 3)
	closeRemaining(bySample)
}

func TestTransposeSelfInverse(t *testing.T) {
	inputs := testInputs(t)
	defer releaseInputs(inputs)

	groups, err := ExportBatch(inputs)
	require.NoError(t, err)
	defer closeRemaining(groups)

	tr := Transpose(groups)
	require.Len(t, tr, 3)
	for s := range tr {
		require.Len(t, tr[s], 2)
		for i := range tr[s] {
			assert.Same(t, groups[i][s], tr[s][i])
		}
	}

	back := Transpose(tr)
	require.Len(t, back, len(groups))
	for i := range groups {
		require.Len(t, back[i], len(groups[i]))
		for s := range groups[i] {
			assert.Same(t, groups[i][s], back[i][s], "double transpose must be identity")
		}
	}
}

func TestTransposeEmpty(t *testing.T) {
	assert.Empty(t, Transpose(nil))
	assert.Empty(t, Transpose([][]*Capsule{}))
	// An empty inner axis collapses to the same empty grouping.
	assert.Empty(t, Transpose([][]*Capsule{{}, {}}))
}

func TestCloseAllToleratesConsumedAndNil(t *testing.T) {
	res, err := NewResource(newCountingPayload())
	require.NoError(t, err)
	c := NewCapsule(res)
	_, err = c.Consume()
	require.NoError(t, err)

	closeAll([]*Capsule{nil, c}) // must not panic or double-release
	res.Release()
}

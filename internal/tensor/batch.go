package tensor

import (
	"fmt"
	"unsafe"

	"github.com/ferry-ml/ferry/internal/device"
)

// Batch is the pipeline-owned batched buffer: all samples of a batch live
// in one contiguous allocation, row-major, sample after sample, with a
// uniform element type and a uniform rank. Per-sample shapes may differ
// within that rank, so sample byte sizes may be uneven.
type Batch struct {
	alloc   device.Allocation
	place   device.Placement
	dtype   DataType
	shapes  []Shape
	offsets []int64 // byte offset of each sample within alloc
}

// NewBatch allocates a batch on dev holding one sample per shape.
// All shapes must have the same rank.
func NewBatch(dev device.Device, dtype DataType, shapes []Shape) (*Batch, error) {
	offsets := make([]int64, len(shapes))
	cloned := make([]Shape, len(shapes))
	var total int64
	for i, s := range shapes {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		if i > 0 && len(s) != len(shapes[0]) {
			return nil, fmt.Errorf("sample %d: rank %d differs from batch rank %d",
				i, len(s), len(shapes[0]))
		}
		offsets[i] = total
		total += int64(s.NumElements()) * int64(dtype.Size())
		cloned[i] = s.Clone()
	}

	alloc, err := dev.Allocate(total)
	if err != nil {
		return nil, fmt.Errorf("allocating %d bytes on %s: %w", total, dev.Placement(), err)
	}

	return &Batch{
		alloc:   alloc,
		place:   dev.Placement(),
		dtype:   dtype,
		shapes:  cloned,
		offsets: offsets,
	}, nil
}

// NewBatchOf allocates a batch on dev and fills it from per-sample
// element slices. len(samples[i]) must equal shapes[i].NumElements().
func NewBatchOf[T DType](dev device.Device, shapes []Shape, samples [][]T) (*Batch, error) {
	if len(samples) != len(shapes) {
		return nil, fmt.Errorf("got %d sample slices for %d shapes", len(samples), len(shapes))
	}
	var dummy T
	b, err := NewBatch(dev, inferDataType(dummy), shapes)
	if err != nil {
		return nil, err
	}
	for i, src := range samples {
		if len(src) != shapes[i].NumElements() {
			b.Release()
			return nil, fmt.Errorf("sample %d: got %d elements, shape %v needs %d",
				i, len(src), shapes[i], shapes[i].NumElements())
		}
		if len(src) == 0 {
			continue
		}
		raw := unsafe.Slice((*byte)(unsafe.Pointer(&src[0])), len(src)*int(unsafe.Sizeof(dummy)))
		copy(b.SampleSlice(i), raw)
	}
	return b, nil
}

// Samples returns the number of samples in the batch.
func (b *Batch) Samples() int {
	return len(b.shapes)
}

// DataType returns the batch's element type.
func (b *Batch) DataType() DataType {
	return b.dtype
}

// Placement returns where the batch's memory lives.
func (b *Batch) Placement() device.Placement {
	return b.place
}

// SampleShape returns the shape of sample i.
func (b *Batch) SampleShape(i int) Shape {
	return b.shapes[i]
}

// SampleBytes returns the byte size of sample i.
func (b *Batch) SampleBytes(i int) int64 {
	return int64(b.shapes[i].NumElements()) * int64(b.dtype.Size())
}

// SamplePtr returns the base address of sample i, or nil when the batch
// holds no bytes.
func (b *Batch) SamplePtr(i int) unsafe.Pointer {
	base := b.alloc.Ptr()
	if base == nil {
		return nil
	}
	return unsafe.Add(base, b.offsets[i])
}

// SampleSlice returns sample i's bytes. The slice aliases live batch
// memory; for accelerator-resident batches, unordered access bypasses
// stream semantics and is reserved for setup and test code.
func (b *Batch) SampleSlice(i int) []byte {
	off := b.offsets[i]
	end := off + b.SampleBytes(i)
	return b.alloc.Bytes()[off:end:end]
}

// WriteSample copies src into sample i. len(src) must match the sample's
// byte size exactly.
func (b *Batch) WriteSample(i int, src []byte) error {
	if int64(len(src)) != b.SampleBytes(i) {
		return fmt.Errorf("sample %d: got %d bytes, want %d", i, len(src), b.SampleBytes(i))
	}
	copy(b.SampleSlice(i), src)
	return nil
}

// ByteSize returns the total byte size of the batch.
func (b *Batch) ByteSize() int64 {
	return b.alloc.Len()
}

// Release frees the batch's allocation. Idempotent. Descriptors exported
// from the batch keep it alive through their resource wrappers, so
// Release only invalidates direct accessors.
func (b *Batch) Release() {
	b.alloc.Release()
}

// SampleData reinterprets sample i as a []T. Panics if T does not match
// the batch's element type.
func SampleData[T DType](b *Batch, i int) []T {
	var dummy T
	if want := inferDataType(dummy); want != b.dtype {
		panic(fmt.Sprintf("batch dtype is %s, not %s", b.dtype, want))
	}
	data := b.SampleSlice(i)
	if len(data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds derive from the sample shape
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), b.shapes[i].NumElements())
}

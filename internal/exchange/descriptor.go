package exchange

import (
	"unsafe"

	"github.com/pkg/errors"

	"github.com/ferry-ml/ferry/internal/device"
	"github.com/ferry-ml/ferry/internal/tensor"
)

// Descriptor is the ABI-shaped exchange record for one tensor: a borrowed
// data pointer, its memory placement, per-dimension element counts,
// optional per-dimension element strides, and the element type tag.
//
// The descriptor does not own Data. Whoever holds a descriptor must keep
// the producing Resource alive; the resource's payload is what keeps Data
// valid. Strides are element counts, not bytes; a nil Strides means
// row-major contiguous layout, which consumers must treat as equivalent
// to explicit row-major strides.
type Descriptor struct {
	Data    unsafe.Pointer
	Device  device.Placement
	Shape   []int64
	Strides []int64
	Type    ElemType
}

// NumElements returns the total element count.
func (d *Descriptor) NumElements() int64 {
	n := int64(1)
	for _, dim := range d.Shape {
		n *= dim
	}
	return n
}

// ByteSize returns the logical payload size in bytes, ignoring stride
// padding.
func (d *Descriptor) ByteSize() int64 {
	return d.NumElements() * int64(d.Type.Bytes())
}

// Contiguous reports whether the descriptor's memory is row-major
// contiguous, either by omitted strides or by strides that match the
// row-major layout. Descriptors with zero elements are trivially
// contiguous.
func (d *Descriptor) Contiguous() bool {
	if d.Strides == nil {
		return true
	}
	if d.NumElements() == 0 {
		return true
	}
	expect := int64(1)
	for i := len(d.Shape) - 1; i >= 0; i-- {
		if d.Shape[i] != 1 && d.Strides[i] != expect {
			return false
		}
		expect *= d.Shape[i]
	}
	return true
}

// spanBytes returns the number of bytes the descriptor's memory spans
// from Data, including stride padding. This bounds every read the copy
// engine performs.
func (d *Descriptor) spanBytes() int64 {
	n := d.NumElements()
	if n == 0 {
		return 0
	}
	if d.Strides == nil {
		return d.ByteSize()
	}
	span := int64(1)
	for i, dim := range d.Shape {
		span += (dim - 1) * d.Strides[i]
	}
	return span * int64(d.Type.Bytes())
}

// bytes returns the descriptor's spanned memory as a byte slice.
func (d *Descriptor) bytes() []byte {
	n := d.spanBytes()
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(d.Data), n)
}

func (d *Descriptor) validate() error {
	for i, dim := range d.Shape {
		if dim < 0 {
			return errors.Wrapf(ErrInvalidPayload, "dimension %d is negative (%d)", i, dim)
		}
	}
	if d.Strides != nil {
		if len(d.Strides) != len(d.Shape) {
			return errors.Wrapf(ErrInvalidPayload,
				"%d strides for %d dimensions", len(d.Strides), len(d.Shape))
		}
		for i, s := range d.Strides {
			if s < 0 {
				return errors.Wrapf(ErrInvalidPayload, "stride %d is negative (%d)", i, s)
			}
		}
	}
	if d.Data == nil && d.ByteSize() > 0 {
		return errors.Wrapf(ErrInvalidPayload, "nil data pointer with %d bytes", d.ByteSize())
	}
	return nil
}

// dims64 converts a pipeline shape to descriptor dimensions.
func dims64(s tensor.Shape) []int64 {
	dims := make([]int64, len(s))
	for i, d := range s {
		dims[i] = int64(d)
	}
	return dims
}

// shapeOf converts descriptor dimensions to a pipeline shape.
func shapeOf(dims []int64) tensor.Shape {
	s := make(tensor.Shape, len(dims))
	for i, d := range dims {
		s[i] = int(d)
	}
	return s
}

// dimsEqual compares descriptor dimensions against a pipeline shape.
func dimsEqual(dims []int64, s tensor.Shape) bool {
	if len(dims) != len(s) {
		return false
	}
	for i := range dims {
		if dims[i] != int64(s[i]) {
			return false
		}
	}
	return true
}

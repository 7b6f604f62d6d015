package exchange

import (
	"fmt"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/ferry-ml/ferry/internal/device"
	"github.com/ferry-ml/ferry/internal/tensor"
)

// Array is the layer's view of a host-runtime array object: raw bytes, a
// buffer-protocol format string, dimensions, and optional byte strides
// (nil means row-major contiguous, matching the buffer protocol).
//
// Arrays describe host memory only. Release, when set, drops the foreign
// reference that keeps Data alive; it is invoked at most once by the
// owning resource.
type Array struct {
	Data    []byte
	TypeStr string
	Shape   []int64
	Strides []int64
	Release func()
}

// arrayPayload adapts an Array to the Payload contract.
type arrayPayload struct {
	arr *Array
}

func (p *arrayPayload) Describe() (Descriptor, error) {
	a := p.arr
	dt, err := DataTypeOfFormat(a.TypeStr)
	if err != nil {
		return Descriptor{}, err
	}
	et := dataToElem[dt]
	elem := int64(et.Bytes())

	desc := Descriptor{
		Device: device.Placement{Kind: device.KindHost},
		Shape:  append([]int64(nil), a.Shape...),
		Type:   et,
	}
	if len(a.Data) > 0 {
		desc.Data = unsafe.Pointer(&a.Data[0])
	}

	// Byte strides from the buffer protocol become element strides, and
	// strides matching row-major layout are dropped entirely so
	// contiguous arrays round-trip strides-free.
	if a.Strides != nil {
		if len(a.Strides) != len(a.Shape) {
			return Descriptor{}, errors.Wrapf(ErrInvalidPayload,
				"%d strides for %d dimensions", len(a.Strides), len(a.Shape))
		}
		strides := make([]int64, len(a.Strides))
		for i, s := range a.Strides {
			if s%elem != 0 {
				return Descriptor{}, errors.Wrapf(ErrInvalidPayload,
					"byte stride %d of dimension %d is not a multiple of the %d-byte element",
					s, i, elem)
			}
			strides[i] = s / elem
		}
		desc.Strides = strides
		if desc.Contiguous() {
			desc.Strides = nil
		}
	}

	if span := desc.spanBytes(); int64(len(a.Data)) < span {
		return Descriptor{}, errors.Wrapf(ErrInvalidPayload,
			"buffer holds %d bytes, layout spans %d", len(a.Data), span)
	}
	return desc, nil
}

func (p *arrayPayload) Release() {
	if p.arr.Release != nil {
		p.arr.Release()
	}
	p.arr = nil
}

// FromArray wraps a host-runtime array in an exchange capsule, zero copy.
// The capsule's resource owns the array reference: consuming the capsule
// passes that ownership on, closing it unconsumed drops it.
func FromArray(a *Array) (*Capsule, error) {
	res, err := NewResource(&arrayPayload{arr: a})
	if err != nil {
		return nil, err
	}
	return NewCapsule(res), nil
}

// ToArray consumes an exchange capsule and exposes its memory as a
// host-runtime array, zero copy. The returned array's Release hook
// releases the extracted resource and must be called exactly once when
// the foreign side is done with the memory.
//
// Validation happens before consumption: on error the capsule is left
// intact. Device-resident descriptors cannot be viewed as host arrays
// and fail with ErrInvalidPayload.
func ToArray(c *Capsule) (*Array, error) {
	res, err := c.peek()
	if err != nil {
		return nil, err
	}
	d := res.Descriptor()
	if !d.Device.HostResident() {
		return nil, errors.Wrapf(ErrInvalidPayload,
			"cannot view %s memory as a host array", d.Device)
	}
	dt, err := DataTypeOf(d.Type)
	if err != nil {
		return nil, err
	}

	if _, err := c.Consume(); err != nil {
		return nil, err
	}

	a := &Array{
		Data:    d.bytes(),
		TypeStr: dataToFormat[dt],
		Shape:   append([]int64(nil), d.Shape...),
		Release: res.Release,
	}
	if d.Strides != nil {
		elem := int64(d.Type.Bytes())
		a.Strides = make([]int64, len(d.Strides))
		for i, s := range d.Strides {
			a.Strides[i] = s * elem
		}
	}
	return a, nil
}

// bufferPayload wraps a bare foreign buffer: a contiguous region that is
// not an array object. This is the producer-side entry point foreign
// libraries use for device memory they manage themselves.
type bufferPayload struct {
	ptr     unsafe.Pointer
	place   device.Placement
	dtype   tensor.DataType
	shape   tensor.Shape
	release func()
}

func (p *bufferPayload) Describe() (Descriptor, error) {
	et, err := ElemTypeOf(p.dtype)
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{
		Data:   p.ptr,
		Device: p.place,
		Shape:  dims64(p.shape),
		Type:   et,
	}, nil
}

func (p *bufferPayload) Release() {
	if p.release != nil {
		p.release()
		p.release = nil
	}
}

// WrapBuffer wraps a contiguous foreign buffer in an exchange capsule.
// release, when non-nil, is invoked at most once when the wrapping
// resource is torn down; ptr must stay valid until then.
func WrapBuffer(ptr unsafe.Pointer, place device.Placement, dtype tensor.DataType,
	shape tensor.Shape, release func()) (*Capsule, error) {
	res, err := NewResource(&bufferPayload{
		ptr:     ptr,
		place:   place,
		dtype:   dtype,
		shape:   shape.Clone(),
		release: release,
	})
	if err != nil {
		return nil, err
	}
	return NewCapsule(res), nil
}

// Data reinterprets the array's buffer as a []T in storage order. Panics
// if T does not match the array's format string. The view covers the raw
// buffer; consumers of strided arrays must index it through Strides.
func Data[T tensor.DType](a *Array) []T {
	want := tensor.TypeOf[T]()
	dt, err := DataTypeOfFormat(a.TypeStr)
	if err != nil || dt != want {
		panic(fmt.Sprintf("array format is %q, not %s", a.TypeStr, want))
	}
	if len(a.Data) == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&a.Data[0])), len(a.Data)/dt.Size())
}

// Bytes reinterprets a typed element slice as its raw bytes. The result
// aliases src, so src must stay reachable while the bytes are in use.
func Bytes[T tensor.DType](src []T) []byte {
	if len(src) == 0 {
		return nil
	}
	var dummy T
	return unsafe.Slice((*byte)(unsafe.Pointer(&src[0])), len(src)*int(unsafe.Sizeof(dummy)))
}

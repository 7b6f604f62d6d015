package exchange

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/ferry-ml/ferry/internal/tensor"
)

// TypeCode classifies a descriptor element type. The numeric values are
// ABI-fixed and shared with every other implementation of the exchange
// format; they must not be renumbered.
type TypeCode uint8

// Element type codes.
const (
	CodeInt    TypeCode = 0
	CodeUint   TypeCode = 1
	CodeFloat  TypeCode = 2
	CodeBfloat TypeCode = 4
	CodeBool   TypeCode = 6
)

// ElemType is the descriptor's element type tag: kind code, bit width,
// and vector lane count (1 for all scalar types).
type ElemType struct {
	Code  TypeCode
	Bits  uint8
	Lanes uint16
}

// Bytes returns the byte size of one element.
func (t ElemType) Bytes() int {
	return int(t.Bits) / 8 * int(t.Lanes)
}

// String returns the pipeline name of the element type when it is
// mapped, and a raw code/bits rendering otherwise.
func (t ElemType) String() string {
	if dt, ok := elemToData[t]; ok {
		return dt.String()
	}
	return fmt.Sprintf("elemtype(code=%d bits=%d lanes=%d)", t.Code, t.Bits, t.Lanes)
}

// The closed, bidirectional element type tables. Unmapped types fail;
// nothing is ever coerced. Format strings follow the buffer protocol on
// a little-endian host: "|" for single-byte types, "<" for the rest.
var dataToElem = map[tensor.DataType]ElemType{
	tensor.Bool:    {Code: CodeBool, Bits: 8, Lanes: 1},
	tensor.Uint8:   {Code: CodeUint, Bits: 8, Lanes: 1},
	tensor.Int8:    {Code: CodeInt, Bits: 8, Lanes: 1},
	tensor.Uint16:  {Code: CodeUint, Bits: 16, Lanes: 1},
	tensor.Int16:   {Code: CodeInt, Bits: 16, Lanes: 1},
	tensor.Uint32:  {Code: CodeUint, Bits: 32, Lanes: 1},
	tensor.Int32:   {Code: CodeInt, Bits: 32, Lanes: 1},
	tensor.Uint64:  {Code: CodeUint, Bits: 64, Lanes: 1},
	tensor.Int64:   {Code: CodeInt, Bits: 64, Lanes: 1},
	tensor.Float16: {Code: CodeFloat, Bits: 16, Lanes: 1},
	tensor.Float32: {Code: CodeFloat, Bits: 32, Lanes: 1},
	tensor.Float64: {Code: CodeFloat, Bits: 64, Lanes: 1},
}

var dataToFormat = map[tensor.DataType]string{
	tensor.Bool:    "|b1",
	tensor.Uint8:   "|u1",
	tensor.Int8:    "|i1",
	tensor.Uint16:  "<u2",
	tensor.Int16:   "<i2",
	tensor.Uint32:  "<u4",
	tensor.Int32:   "<i4",
	tensor.Uint64:  "<u8",
	tensor.Int64:   "<i8",
	tensor.Float16: "<f2",
	tensor.Float32: "<f4",
	tensor.Float64: "<f8",
}

var (
	elemToData   map[ElemType]tensor.DataType
	formatToData map[string]tensor.DataType
)

func init() {
	elemToData = make(map[ElemType]tensor.DataType, len(dataToElem))
	for dt, et := range dataToElem {
		elemToData[et] = dt
	}
	formatToData = make(map[string]tensor.DataType, len(dataToFormat))
	for dt, fs := range dataToFormat {
		formatToData[fs] = dt
	}
}

// ElemTypeOf maps a pipeline data type to its descriptor element type.
func ElemTypeOf(dt tensor.DataType) (ElemType, error) {
	et, ok := dataToElem[dt]
	if !ok {
		return ElemType{}, errors.Wrapf(ErrUnsupportedType, "data type %s", dt)
	}
	return et, nil
}

// DataTypeOf maps a descriptor element type back to a pipeline data type.
func DataTypeOf(et ElemType) (tensor.DataType, error) {
	dt, ok := elemToData[et]
	if !ok {
		return 0, errors.Wrapf(ErrUnsupportedType,
			"element type code=%d bits=%d lanes=%d", et.Code, et.Bits, et.Lanes)
	}
	return dt, nil
}

// FormatOf maps a pipeline data type to its buffer-protocol format string.
func FormatOf(dt tensor.DataType) (string, error) {
	fs, ok := dataToFormat[dt]
	if !ok {
		return "", errors.Wrapf(ErrUnsupportedType, "data type %s", dt)
	}
	return fs, nil
}

// DataTypeOfFormat maps a buffer-protocol format string to a pipeline
// data type. The match is exact; no endianness or width coercion.
func DataTypeOfFormat(fs string) (tensor.DataType, error) {
	dt, ok := formatToData[fs]
	if !ok {
		return 0, errors.Wrapf(ErrUnsupportedType, "format %q", fs)
	}
	return dt, nil
}

package exchange

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/ferry-ml/ferry/internal/tensor"
)

var allDataTypes = []tensor.DataType{
	tensor.Bool, tensor.Uint8, tensor.Int8,
	tensor.Uint16, tensor.Int16,
	tensor.Uint32, tensor.Int32,
	tensor.Uint64, tensor.Int64,
	tensor.Float16, tensor.Float32, tensor.Float64,
}

func TestElemTypeRoundTrip(t *testing.T) {
	for _, dt := range allDataTypes {
		et, err := ElemTypeOf(dt)
		if err != nil {
			t.Fatalf("ElemTypeOf(%s): %v", dt, err)
		}
		if et.Lanes != 1 {
			t.Errorf("%s: lanes = %d, want 1", dt, et.Lanes)
		}
		if et.Bytes() != dt.Size() {
			t.Errorf("%s: element bytes = %d, want %d", dt, et.Bytes(), dt.Size())
		}
		back, err := DataTypeOf(et)
		if err != nil {
			t.Fatalf("DataTypeOf(%v): %v", et, err)
		}
		if back != dt {
			t.Errorf("%s round-tripped to %s", dt, back)
		}
	}
}

func TestElemTypeCodes(t *testing.T) {
	tests := []struct {
		dt   tensor.DataType
		want ElemType
	}{
		{tensor.Bool, ElemType{Code: CodeBool, Bits: 8, Lanes: 1}},
		{tensor.Uint8, ElemType{Code: CodeUint, Bits: 8, Lanes: 1}},
		{tensor.Int8, ElemType{Code: CodeInt, Bits: 8, Lanes: 1}},
		{tensor.Int64, ElemType{Code: CodeInt, Bits: 64, Lanes: 1}},
		{tensor.Float16, ElemType{Code: CodeFloat, Bits: 16, Lanes: 1}},
		{tensor.Float32, ElemType{Code: CodeFloat, Bits: 32, Lanes: 1}},
	}
	for _, tt := range tests {
		et, err := ElemTypeOf(tt.dt)
		if err != nil {
			t.Fatalf("ElemTypeOf(%s): %v", tt.dt, err)
		}
		if et != tt.want {
			t.Errorf("ElemTypeOf(%s) = %+v, want %+v", tt.dt, et, tt.want)
		}
	}
}

func TestFormatRoundTrip(t *testing.T) {
	for _, dt := range allDataTypes {
		fs, err := FormatOf(dt)
		if err != nil {
			t.Fatalf("FormatOf(%s): %v", dt, err)
		}
		back, err := DataTypeOfFormat(fs)
		if err != nil {
			t.Fatalf("DataTypeOfFormat(%q): %v", fs, err)
		}
		if back != dt {
			t.Errorf("%s round-tripped through %q to %s", dt, fs, back)
		}
	}
}

func TestFormatStrings(t *testing.T) {
	tests := []struct {
		dt   tensor.DataType
		want string
	}{
		{tensor.Bool, "|b1"},
		{tensor.Uint8, "|u1"},
		{tensor.Int8, "|i1"},
		{tensor.Uint16, "<u2"},
		{tensor.Int32, "<i4"},
		{tensor.Uint64, "<u8"},
		{tensor.Float16, "<f2"},
		{tensor.Float32, "<f4"},
		{tensor.Float64, "<f8"},
	}
	for _, tt := range tests {
		fs, err := FormatOf(tt.dt)
		if err != nil {
			t.Fatalf("FormatOf(%s): %v", tt.dt, err)
		}
		if fs != tt.want {
			t.Errorf("FormatOf(%s) = %q, want %q", tt.dt, fs, tt.want)
		}
	}
}

func TestDataTypeOfUnmapped(t *testing.T) {
	unmapped := []ElemType{
		{Code: CodeBfloat, Bits: 16, Lanes: 1},  // valid code, no pipeline type
		{Code: CodeFloat, Bits: 128, Lanes: 1},  // unsupported width
		{Code: CodeFloat, Bits: 32, Lanes: 4},   // vector lanes
		{Code: TypeCode(9), Bits: 32, Lanes: 1}, // unknown code
	}
	for _, et := range unmapped {
		if _, err := DataTypeOf(et); !errors.Is(err, ErrUnsupportedType) {
			t.Errorf("DataTypeOf(%+v) = %v, want ErrUnsupportedType", et, err)
		}
	}
}

func TestDataTypeOfFormatUnmapped(t *testing.T) {
	for _, fs := range []string{"", "f4", ">f4", "<f3", "|f4", "<c8", "float32"} {
		if _, err := DataTypeOfFormat(fs); !errors.Is(err, ErrUnsupportedType) {
			t.Errorf("DataTypeOfFormat(%q) = %v, want ErrUnsupportedType", fs, err)
		}
	}
}

func TestElemTypeString(t *testing.T) {
	et := ElemType{Code: CodeFloat, Bits: 32, Lanes: 1}
	if got := et.String(); got != "float32" {
		t.Errorf("String() = %q, want %q", got, "float32")
	}
	raw := ElemType{Code: CodeBfloat, Bits: 16, Lanes: 1}
	if got := raw.String(); got != "elemtype(code=4 bits=16 lanes=1)" {
		t.Errorf("String() = %q", got)
	}
}

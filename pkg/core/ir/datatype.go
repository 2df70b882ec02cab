// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"

	"github.com/gomlx/gopjrt/dtypes"
)

// DataType is the element type of a tensor, numbered as ONNX's TensorProto.DataType, so values can be
// written to and read from the wire format unchanged.
type DataType int32

const (
	DataTypeUndefined  DataType = 0
	DataTypeFloat      DataType = 1
	DataTypeUint8      DataType = 2
	DataTypeInt8       DataType = 3
	DataTypeUint16     DataType = 4
	DataTypeInt16      DataType = 5
	DataTypeInt32      DataType = 6
	DataTypeInt64      DataType = 7
	DataTypeString     DataType = 8
	DataTypeBool       DataType = 9
	DataTypeFloat16    DataType = 10
	DataTypeDouble     DataType = 11
	DataTypeUint32     DataType = 12
	DataTypeUint64     DataType = 13
	DataTypeComplex64  DataType = 14
	DataTypeComplex128 DataType = 15
	DataTypeBFloat16   DataType = 16
)

var dataTypeNames = map[DataType]string{
	DataTypeUndefined:  "UNDEFINED",
	DataTypeFloat:      "FLOAT",
	DataTypeUint8:      "UINT8",
	DataTypeInt8:       "INT8",
	DataTypeUint16:     "UINT16",
	DataTypeInt16:      "INT16",
	DataTypeInt32:      "INT32",
	DataTypeInt64:      "INT64",
	DataTypeString:     "STRING",
	DataTypeBool:       "BOOL",
	DataTypeFloat16:    "FLOAT16",
	DataTypeDouble:     "DOUBLE",
	DataTypeUint32:     "UINT32",
	DataTypeUint64:     "UINT64",
	DataTypeComplex64:  "COMPLEX64",
	DataTypeComplex128: "COMPLEX128",
	DataTypeBFloat16:   "BFLOAT16",
}

// String implements fmt.Stringer, using the ONNX names.
func (dt DataType) String() string {
	if name, found := dataTypeNames[dt]; found {
		return name
	}
	return fmt.Sprintf("DataType(%d)", int32(dt))
}

// DataTypeFromString parses the ONNX name of a data type. It returns DataTypeUndefined for unknown names.
func DataTypeFromString(name string) DataType {
	for dt, dtName := range dataTypeNames {
		if dtName == name {
			return dt
		}
	}
	return DataTypeUndefined
}

var dataTypeToDType = map[DataType]dtypes.DType{
	DataTypeFloat:      dtypes.Float32,
	DataTypeUint8:      dtypes.Uint8,
	DataTypeInt8:       dtypes.Int8,
	DataTypeUint16:     dtypes.Uint16,
	DataTypeInt16:      dtypes.Int16,
	DataTypeInt32:      dtypes.Int32,
	DataTypeInt64:      dtypes.Int64,
	DataTypeBool:       dtypes.Bool,
	DataTypeFloat16:    dtypes.Float16,
	DataTypeDouble:     dtypes.Float64,
	DataTypeUint32:     dtypes.Uint32,
	DataTypeUint64:     dtypes.Uint64,
	DataTypeComplex64:  dtypes.Complex64,
	DataTypeComplex128: dtypes.Complex128,
	DataTypeBFloat16:   dtypes.BFloat16,
}

// DType returns the corresponding dtypes.DType, or dtypes.InvalidDType for types without one (STRING and
// UNDEFINED).
func (dt DataType) DType() dtypes.DType {
	if dtype, found := dataTypeToDType[dt]; found {
		return dtype
	}
	return dtypes.InvalidDType
}

// DataTypeFromDType is the inverse of DataType.DType. It returns DataTypeUndefined if there is no mapping.
func DataTypeFromDType(dtype dtypes.DType) DataType {
	for dt, candidate := range dataTypeToDType {
		if candidate == dtype {
			return dt
		}
	}
	return DataTypeUndefined
}

// IsFloat returns whether the data type is one of the floating point types.
func (dt DataType) IsFloat() bool {
	switch dt {
	case DataTypeFloat, DataTypeFloat16, DataTypeDouble, DataTypeBFloat16:
		return true
	default:
		return false
	}
}

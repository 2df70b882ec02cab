// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package onnxio

import (
	"encoding/binary"
	"math"

	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/gomlx/onnxir/pkg/core/ir"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// ONNX raw_data is the little-endian, row-major encoding of the elements.

// encodeRawData returns the raw_data bytes of a numeric tensor.
func encodeRawData(t *ir.Tensor) ([]byte, error) {
	le := binary.LittleEndian
	switch data := t.Data.(type) {
	case []float32:
		buf := make([]byte, 4*len(data))
		for ii, v := range data {
			le.PutUint32(buf[4*ii:], math.Float32bits(v))
		}
		return buf, nil
	case []float64:
		buf := make([]byte, 8*len(data))
		for ii, v := range data {
			le.PutUint64(buf[8*ii:], math.Float64bits(v))
		}
		return buf, nil
	case []float16.Float16:
		buf := make([]byte, 2*len(data))
		for ii, v := range data {
			le.PutUint16(buf[2*ii:], v.Bits())
		}
		return buf, nil
	case []bfloat16.BFloat16:
		buf := make([]byte, 2*len(data))
		for ii, v := range data {
			le.PutUint16(buf[2*ii:], uint16(v))
		}
		return buf, nil
	case []int8:
		buf := make([]byte, len(data))
		for ii, v := range data {
			buf[ii] = byte(v)
		}
		return buf, nil
	case []uint8:
		return append([]byte(nil), data...), nil
	case []bool:
		buf := make([]byte, len(data))
		for ii, v := range data {
			if v {
				buf[ii] = 1
			}
		}
		return buf, nil
	case []int16:
		buf := make([]byte, 2*len(data))
		for ii, v := range data {
			le.PutUint16(buf[2*ii:], uint16(v))
		}
		return buf, nil
	case []uint16:
		buf := make([]byte, 2*len(data))
		for ii, v := range data {
			le.PutUint16(buf[2*ii:], v)
		}
		return buf, nil
	case []int32:
		buf := make([]byte, 4*len(data))
		for ii, v := range data {
			le.PutUint32(buf[4*ii:], uint32(v))
		}
		return buf, nil
	case []uint32:
		buf := make([]byte, 4*len(data))
		for ii, v := range data {
			le.PutUint32(buf[4*ii:], v)
		}
		return buf, nil
	case []int64:
		buf := make([]byte, 8*len(data))
		for ii, v := range data {
			le.PutUint64(buf[8*ii:], uint64(v))
		}
		return buf, nil
	case []uint64:
		buf := make([]byte, 8*len(data))
		for ii, v := range data {
			le.PutUint64(buf[8*ii:], v)
		}
		return buf, nil
	case []complex64:
		buf := make([]byte, 8*len(data))
		for ii, v := range data {
			le.PutUint32(buf[8*ii:], math.Float32bits(real(v)))
			le.PutUint32(buf[8*ii+4:], math.Float32bits(imag(v)))
		}
		return buf, nil
	case []complex128:
		buf := make([]byte, 16*len(data))
		for ii, v := range data {
			le.PutUint64(buf[16*ii:], math.Float64bits(real(v)))
			le.PutUint64(buf[16*ii+8:], math.Float64bits(imag(v)))
		}
		return buf, nil
	}
	return nil, errors.Errorf("tensor %q: cannot encode data of type %T as raw data", t.Name, t.Data)
}

// decodeRawData parses raw_data bytes into a flat slice of the Go type matching dataType.
func decodeRawData(dataType ir.DataType, raw []byte) (any, error) {
	le := binary.LittleEndian
	elementSize := map[ir.DataType]int{
		ir.DataTypeFloat: 4, ir.DataTypeDouble: 8, ir.DataTypeFloat16: 2, ir.DataTypeBFloat16: 2,
		ir.DataTypeInt8: 1, ir.DataTypeUint8: 1, ir.DataTypeBool: 1,
		ir.DataTypeInt16: 2, ir.DataTypeUint16: 2, ir.DataTypeInt32: 4, ir.DataTypeUint32: 4,
		ir.DataTypeInt64: 8, ir.DataTypeUint64: 8, ir.DataTypeComplex64: 8, ir.DataTypeComplex128: 16,
	}[dataType]
	if elementSize == 0 {
		return nil, errors.Errorf("raw data not supported for data type %s", dataType)
	}
	if len(raw)%elementSize != 0 {
		return nil, errors.Errorf("raw data of %d bytes is not a multiple of the %s element size %d",
			len(raw), dataType, elementSize)
	}
	n := len(raw) / elementSize
	switch dataType {
	case ir.DataTypeFloat:
		data := make([]float32, n)
		for ii := range data {
			data[ii] = math.Float32frombits(le.Uint32(raw[4*ii:]))
		}
		return data, nil
	case ir.DataTypeDouble:
		data := make([]float64, n)
		for ii := range data {
			data[ii] = math.Float64frombits(le.Uint64(raw[8*ii:]))
		}
		return data, nil
	case ir.DataTypeFloat16:
		data := make([]float16.Float16, n)
		for ii := range data {
			data[ii] = float16.Frombits(le.Uint16(raw[2*ii:]))
		}
		return data, nil
	case ir.DataTypeBFloat16:
		data := make([]bfloat16.BFloat16, n)
		for ii := range data {
			data[ii] = bfloat16.BFloat16(le.Uint16(raw[2*ii:]))
		}
		return data, nil
	case ir.DataTypeInt8:
		data := make([]int8, n)
		for ii := range data {
			data[ii] = int8(raw[ii])
		}
		return data, nil
	case ir.DataTypeUint8:
		return append([]uint8(nil), raw...), nil
	case ir.DataTypeBool:
		data := make([]bool, n)
		for ii := range data {
			data[ii] = raw[ii] != 0
		}
		return data, nil
	case ir.DataTypeInt16:
		data := make([]int16, n)
		for ii := range data {
			data[ii] = int16(le.Uint16(raw[2*ii:]))
		}
		return data, nil
	case ir.DataTypeUint16:
		data := make([]uint16, n)
		for ii := range data {
			data[ii] = le.Uint16(raw[2*ii:])
		}
		return data, nil
	case ir.DataTypeInt32:
		data := make([]int32, n)
		for ii := range data {
			data[ii] = int32(le.Uint32(raw[4*ii:]))
		}
		return data, nil
	case ir.DataTypeUint32:
		data := make([]uint32, n)
		for ii := range data {
			data[ii] = le.Uint32(raw[4*ii:])
		}
		return data, nil
	case ir.DataTypeInt64:
		data := make([]int64, n)
		for ii := range data {
			data[ii] = int64(le.Uint64(raw[8*ii:]))
		}
		return data, nil
	case ir.DataTypeUint64:
		data := make([]uint64, n)
		for ii := range data {
			data[ii] = le.Uint64(raw[8*ii:])
		}
		return data, nil
	case ir.DataTypeComplex64:
		data := make([]complex64, n)
		for ii := range data {
			data[ii] = complex(math.Float32frombits(le.Uint32(raw[8*ii:])), math.Float32frombits(le.Uint32(raw[8*ii+4:])))
		}
		return data, nil
	default: // ir.DataTypeComplex128
		data := make([]complex128, n)
		for ii := range data {
			data[ii] = complex(math.Float64frombits(le.Uint64(raw[16*ii:])), math.Float64frombits(le.Uint64(raw[16*ii+8:])))
		}
		return data, nil
	}
}

// typedFields accumulates the typed repeated fields of a TensorProto (float_data, int32_data, ...),
// used by writers that don't fill raw_data.
type typedFields struct {
	floats  []float32
	int32s  []int32
	int64s  []int64
	doubles []float64
	uint64s []uint64
	strings []string
}

// toData converts the typed fields to a flat slice for dataType, following the field assignment of
// onnx.proto: 16 bits and smaller types are stored in int32_data (float16 as its bits), uint32 in
// uint64_data and complex numbers as interleaved real and imaginary parts.
func (f *typedFields) toData(dataType ir.DataType) (any, error) {
	switch dataType {
	case ir.DataTypeFloat:
		return f.floats, nil
	case ir.DataTypeDouble:
		return f.doubles, nil
	case ir.DataTypeInt64:
		return f.int64s, nil
	case ir.DataTypeUint64:
		return f.uint64s, nil
	case ir.DataTypeString:
		return f.strings, nil
	case ir.DataTypeInt32:
		return f.int32s, nil
	case ir.DataTypeUint32:
		return convertSlice(f.uint64s, func(v uint64) uint32 { return uint32(v) }), nil
	case ir.DataTypeInt16:
		return convertSlice(f.int32s, func(v int32) int16 { return int16(v) }), nil
	case ir.DataTypeUint16:
		return convertSlice(f.int32s, func(v int32) uint16 { return uint16(v) }), nil
	case ir.DataTypeInt8:
		return convertSlice(f.int32s, func(v int32) int8 { return int8(v) }), nil
	case ir.DataTypeUint8:
		return convertSlice(f.int32s, func(v int32) uint8 { return uint8(v) }), nil
	case ir.DataTypeBool:
		return convertSlice(f.int32s, func(v int32) bool { return v != 0 }), nil
	case ir.DataTypeFloat16:
		return convertSlice(f.int32s, func(v int32) float16.Float16 { return float16.Frombits(uint16(v)) }), nil
	case ir.DataTypeBFloat16:
		return convertSlice(f.int32s, func(v int32) bfloat16.BFloat16 { return bfloat16.BFloat16(uint16(v)) }), nil
	case ir.DataTypeComplex64:
		data := make([]complex64, len(f.floats)/2)
		for ii := range data {
			data[ii] = complex(f.floats[2*ii], f.floats[2*ii+1])
		}
		return data, nil
	case ir.DataTypeComplex128:
		data := make([]complex128, len(f.doubles)/2)
		for ii := range data {
			data[ii] = complex(f.doubles[2*ii], f.doubles[2*ii+1])
		}
		return data, nil
	}
	return nil, errors.Errorf("unsupported tensor data type %s", dataType)
}

func convertSlice[From, To any](from []From, fn func(From) To) []To {
	to := make([]To, len(from))
	for ii, v := range from {
		to[ii] = fn(v)
	}
	return to
}

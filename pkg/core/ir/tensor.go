// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Element is the set of Go types that can back a Tensor's flat data.
type Element interface {
	bool | float16.Float16 | bfloat16.BFloat16 | float32 | float64 |
		int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 |
		complex64 | complex128 | string
}

// Tensor is a named constant: used for initializers and for the value of Constant nodes.
//
// Data holds the values as a flat Go slice in row-major order, whose element type matches DataType
// (e.g. []float32 for DataTypeFloat, []float16.Float16 for DataTypeFloat16).
// A scalar has no Dims and one element.
type Tensor struct {
	Name      string
	DataType  DataType
	Dims      []int64
	Data      any
	DocString string
}

// NewTensor creates a tensor with the given dimensions, taking ownership of data.
//
// It panics if the number of elements in data doesn't match the dimensions.
func NewTensor[T Element](name string, dims []int64, data []T) *Tensor {
	if err := CheckDims(dims); err != nil {
		panic(errors.WithMessagef(err, "ir.NewTensor(%q)", name))
	}
	t := &Tensor{
		Name:     name,
		DataType: DataTypeOfSlice(data),
		Dims:     slices.Clone(dims),
		Data:     data,
	}
	if t.Size() != len(data) {
		exceptions.Panicf("ir.NewTensor(%q): dims %v require %d elements, got %d", name, dims, t.Size(), len(data))
	}
	return t
}

// CheckDims returns an error if some dimension is negative or if the number of elements overflows an int.
func CheckDims(dims []int64) error {
	size := int64(1)
	for _, dim := range dims {
		if dim < 0 {
			return errors.Errorf("invalid negative dimension in %v", dims)
		}
		if dim > 0 && size > math.MaxInt/dim {
			return errors.Errorf("dimensions %v overflow the number of elements", dims)
		}
		size *= dim
	}
	return nil
}

// ScalarTensor creates a tensor holding a single value, with no dimensions.
func ScalarTensor[T Element](name string, value T) *Tensor {
	return NewTensor(name, nil, []T{value})
}

// DataTypeOfSlice returns the DataType of a flat slice, or DataTypeUndefined if it is not a supported slice.
func DataTypeOfSlice(data any) DataType {
	switch data.(type) {
	case []float32:
		return DataTypeFloat
	case []float64:
		return DataTypeDouble
	case []float16.Float16:
		return DataTypeFloat16
	case []bfloat16.BFloat16:
		return DataTypeBFloat16
	case []int8:
		return DataTypeInt8
	case []int16:
		return DataTypeInt16
	case []int32:
		return DataTypeInt32
	case []int64:
		return DataTypeInt64
	case []uint8:
		return DataTypeUint8
	case []uint16:
		return DataTypeUint16
	case []uint32:
		return DataTypeUint32
	case []uint64:
		return DataTypeUint64
	case []bool:
		return DataTypeBool
	case []complex64:
		return DataTypeComplex64
	case []complex128:
		return DataTypeComplex128
	case []string:
		return DataTypeString
	default:
		return DataTypeUndefined
	}
}

// DType returns the dtypes.DType of the tensor elements.
func (t *Tensor) DType() dtypes.DType {
	return t.DataType.DType()
}

// Rank is the number of dimensions. Scalars have rank 0.
func (t *Tensor) Rank() int {
	return len(t.Dims)
}

// Size is the number of elements, as given by the dimensions.
func (t *Tensor) Size() int {
	size := 1
	for _, dim := range t.Dims {
		size *= int(dim)
	}
	return size
}

// IsScalar returns whether the tensor holds exactly one element, regardless of its rank.
func (t *Tensor) IsScalar() bool {
	return t.Size() == 1
}

// Len returns the number of elements actually stored in Data.
func (t *Tensor) Len() int {
	switch data := t.Data.(type) {
	case []float32:
		return len(data)
	case []float64:
		return len(data)
	case []float16.Float16:
		return len(data)
	case []bfloat16.BFloat16:
		return len(data)
	case []int8:
		return len(data)
	case []int16:
		return len(data)
	case []int32:
		return len(data)
	case []int64:
		return len(data)
	case []uint8:
		return len(data)
	case []uint16:
		return len(data)
	case []uint32:
		return len(data)
	case []uint64:
		return len(data)
	case []bool:
		return len(data)
	case []complex64:
		return len(data)
	case []complex128:
		return len(data)
	case []string:
		return len(data)
	default:
		return 0
	}
}

// Float64At returns the element at the flat index converted to float64.
// Booleans convert to 0 or 1, complex numbers to their real part.
//
// It panics for string tensors or out-of-range indices.
func (t *Tensor) Float64At(index int) float64 {
	switch data := t.Data.(type) {
	case []float32:
		return float64(data[index])
	case []float64:
		return data[index]
	case []float16.Float16:
		return float64(data[index].Float32())
	case []bfloat16.BFloat16:
		return float64(data[index].Float32())
	case []int8:
		return float64(data[index])
	case []int16:
		return float64(data[index])
	case []int32:
		return float64(data[index])
	case []int64:
		return float64(data[index])
	case []uint8:
		return float64(data[index])
	case []uint16:
		return float64(data[index])
	case []uint32:
		return float64(data[index])
	case []uint64:
		return float64(data[index])
	case []bool:
		if data[index] {
			return 1
		}
		return 0
	case []complex64:
		return float64(real(data[index]))
	case []complex128:
		return real(data[index])
	}
	exceptions.Panicf("Tensor(%q).Float64At: tensor of type %s (%T) has no numeric value", t.Name, t.DataType, t.Data)
	return 0
}

// Clone returns a deep copy of the tensor. Nested data is copied, so the clone can be mutated freely.
func (t *Tensor) Clone() *Tensor {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Dims = slices.Clone(t.Dims)
	switch data := t.Data.(type) {
	case []float32:
		clone.Data = slices.Clone(data)
	case []float64:
		clone.Data = slices.Clone(data)
	case []float16.Float16:
		clone.Data = slices.Clone(data)
	case []bfloat16.BFloat16:
		clone.Data = slices.Clone(data)
	case []int8:
		clone.Data = slices.Clone(data)
	case []int16:
		clone.Data = slices.Clone(data)
	case []int32:
		clone.Data = slices.Clone(data)
	case []int64:
		clone.Data = slices.Clone(data)
	case []uint8:
		clone.Data = slices.Clone(data)
	case []uint16:
		clone.Data = slices.Clone(data)
	case []uint32:
		clone.Data = slices.Clone(data)
	case []uint64:
		clone.Data = slices.Clone(data)
	case []bool:
		clone.Data = slices.Clone(data)
	case []complex64:
		clone.Data = slices.Clone(data)
	case []complex128:
		clone.Data = slices.Clone(data)
	case []string:
		clone.Data = slices.Clone(data)
	}
	return &clone
}

// MemoryBytes is the number of bytes used by the elements, excluding strings.
func (t *Tensor) MemoryBytes() int {
	dtype := t.DType()
	if dtype == dtypes.InvalidDType {
		return 0
	}
	return t.Len() * int(dtype.Memory())
}

// String returns a short description of the tensor, with at most a few of its values.
func (t *Tensor) String() string {
	const maxValues = 6
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "%s(%s%v", t.Name, t.DataType, t.Dims)
	n := t.Len()
	if n > 0 && t.DataType != DataTypeString {
		sb.WriteString(": ")
		for ii := range min(n, maxValues) {
			if ii > 0 {
				sb.WriteString(", ")
			}
			_, _ = fmt.Fprintf(&sb, "%g", t.Float64At(ii))
		}
		if n > maxValues {
			sb.WriteString(", ...")
		}
	}
	sb.WriteString(")")
	return sb.String()
}

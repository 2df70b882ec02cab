// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"
	"slices"
	"strings"
)

// Dim is one axis of a declared shape: either a concrete Value or a symbolic Param (e.g. "batch_size").
// If neither is set the dimension is unknown.
type Dim struct {
	Value int64
	Param string
}

// DimValue returns a concrete dimension.
func DimValue(value int64) Dim { return Dim{Value: value} }

// DimParam returns a symbolic dimension.
func DimParam(param string) Dim { return Dim{Param: param} }

// IsKnown returns whether the dimension has a concrete value.
func (d Dim) IsKnown() bool { return d.Param == "" && d.Value > 0 }

// String implements fmt.Stringer.
func (d Dim) String() string {
	switch {
	case d.Param != "":
		return d.Param
	case d.Value > 0:
		return fmt.Sprintf("%d", d.Value)
	default:
		return "?"
	}
}

// ValueInfo declares the element type and shape of a named value: used for graph inputs, outputs and
// intermediate annotations (value_info).
type ValueInfo struct {
	Name      string
	ElemType  DataType
	Shape     []Dim
	DocString string
}

// NewValueInfo creates a tensor ValueInfo.
func NewValueInfo(name string, elemType DataType, shape ...Dim) *ValueInfo {
	MustBeIdentifier("value info name", name)
	return &ValueInfo{Name: name, ElemType: elemType, Shape: shape}
}

// ShapeList returns the shape as a list of int64 (known dimensions), string (symbolic dimensions) or
// "?" (unknown dimensions).
func (vi *ValueInfo) ShapeList() []any {
	list := make([]any, 0, len(vi.Shape))
	for _, dim := range vi.Shape {
		switch {
		case dim.Param != "":
			list = append(list, dim.Param)
		case dim.Value > 0:
			list = append(list, dim.Value)
		default:
			list = append(list, "?")
		}
	}
	return list
}

// Clone returns a copy of the ValueInfo that can be changed independently.
func (vi *ValueInfo) Clone() *ValueInfo {
	clone := *vi
	clone.Shape = slices.Clone(vi.Shape)
	return &clone
}

// String implements fmt.Stringer.
func (vi *ValueInfo) String() string {
	dims := make([]string, len(vi.Shape))
	for ii, dim := range vi.Shape {
		dims[ii] = dim.String()
	}
	return fmt.Sprintf("%s:%s[%s]", vi.Name, vi.ElemType, strings.Join(dims, ", "))
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"
	"slices"
)

// AttributeType tags which field of an Attribute holds its value. Numbered as ONNX's
// AttributeProto.AttributeType.
type AttributeType int32

const (
	AttributeUndefined AttributeType = 0
	AttributeFloat     AttributeType = 1
	AttributeInt       AttributeType = 2
	AttributeString    AttributeType = 3
	AttributeTensor    AttributeType = 4
	AttributeGraph     AttributeType = 5
	AttributeFloats    AttributeType = 6
	AttributeInts      AttributeType = 7
	AttributeStrings   AttributeType = 8
	AttributeTensors   AttributeType = 9
	AttributeGraphs    AttributeType = 10
)

var attributeTypeNames = []string{
	"UNDEFINED", "FLOAT", "INT", "STRING", "TENSOR", "GRAPH", "FLOATS", "INTS", "STRINGS", "TENSORS", "GRAPHS",
}

// String implements fmt.Stringer.
func (at AttributeType) String() string {
	if at >= 0 && int(at) < len(attributeTypeNames) {
		return attributeTypeNames[at]
	}
	return fmt.Sprintf("AttributeType(%d)", int32(at))
}

// AttributeTypeFromString parses the name of an attribute type, returning AttributeUndefined if unknown.
func AttributeTypeFromString(name string) AttributeType {
	idx := slices.Index(attributeTypeNames, name)
	if idx < 0 {
		return AttributeUndefined
	}
	return AttributeType(idx)
}

// Attribute is a named node parameter. It is a tagged variant: Type tells which of the value fields is
// meaningful, the others are left zero.
//
// Graph and Graphs attributes hold the bodies of control-flow nodes.
type Attribute struct {
	Name      string
	Type      AttributeType
	DocString string

	F float32
	I int64
	S string
	T *Tensor
	G *Graph

	Floats  []float32
	Ints    []int64
	Strings []string
	Tensors []*Tensor
	Graphs  []*Graph
}

// FloatAttr creates a FLOAT attribute.
func FloatAttr(name string, value float32) *Attribute {
	return &Attribute{Name: name, Type: AttributeFloat, F: value}
}

// IntAttr creates an INT attribute.
func IntAttr(name string, value int64) *Attribute {
	return &Attribute{Name: name, Type: AttributeInt, I: value}
}

// StringAttr creates a STRING attribute.
func StringAttr(name, value string) *Attribute {
	return &Attribute{Name: name, Type: AttributeString, S: value}
}

// TensorAttr creates a TENSOR attribute, as used by the "value" of Constant nodes.
func TensorAttr(name string, value *Tensor) *Attribute {
	return &Attribute{Name: name, Type: AttributeTensor, T: value}
}

// GraphAttr creates a GRAPH attribute, e.g. the "then_branch" of an If node.
func GraphAttr(name string, value *Graph) *Attribute {
	return &Attribute{Name: name, Type: AttributeGraph, G: value}
}

// FloatsAttr creates a FLOATS attribute.
func FloatsAttr(name string, values ...float32) *Attribute {
	return &Attribute{Name: name, Type: AttributeFloats, Floats: values}
}

// IntsAttr creates an INTS attribute.
func IntsAttr(name string, values ...int64) *Attribute {
	return &Attribute{Name: name, Type: AttributeInts, Ints: values}
}

// StringsAttr creates a STRINGS attribute.
func StringsAttr(name string, values ...string) *Attribute {
	return &Attribute{Name: name, Type: AttributeStrings, Strings: values}
}

// TensorsAttr creates a TENSORS attribute.
func TensorsAttr(name string, values ...*Tensor) *Attribute {
	return &Attribute{Name: name, Type: AttributeTensors, Tensors: values}
}

// GraphsAttr creates a GRAPHS attribute.
func GraphsAttr(name string, values ...*Graph) *Attribute {
	return &Attribute{Name: name, Type: AttributeGraphs, Graphs: values}
}

// SubGraphs returns the graphs held by the attribute: one for GRAPH, all of them for GRAPHS, none otherwise.
func (a *Attribute) SubGraphs() []*Graph {
	switch a.Type {
	case AttributeGraph:
		if a.G == nil {
			return nil
		}
		return []*Graph{a.G}
	case AttributeGraphs:
		return a.Graphs
	default:
		return nil
	}
}

// Value returns the populated field as an any.
func (a *Attribute) Value() any {
	switch a.Type {
	case AttributeFloat:
		return a.F
	case AttributeInt:
		return a.I
	case AttributeString:
		return a.S
	case AttributeTensor:
		return a.T
	case AttributeGraph:
		return a.G
	case AttributeFloats:
		return a.Floats
	case AttributeInts:
		return a.Ints
	case AttributeStrings:
		return a.Strings
	case AttributeTensors:
		return a.Tensors
	case AttributeGraphs:
		return a.Graphs
	default:
		return nil
	}
}

// String implements fmt.Stringer.
func (a *Attribute) String() string {
	switch a.Type {
	case AttributeGraph:
		if a.G == nil {
			return fmt.Sprintf("%s=<nil graph>", a.Name)
		}
		return fmt.Sprintf("%s=<graph %q>", a.Name, a.G.Name)
	case AttributeGraphs:
		return fmt.Sprintf("%s=<%d graphs>", a.Name, len(a.Graphs))
	default:
		return fmt.Sprintf("%s=%v", a.Name, a.Value())
	}
}

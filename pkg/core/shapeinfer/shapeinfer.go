// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapeinfer implements a light-weight shape inferencer (editor.ShapeInferencer) that relies on
// declared information: it doesn't know the semantics of most operators.
package shapeinfer

import (
	"slices"

	"github.com/gomlx/onnxir/pkg/core/ir"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Operators whose output has the same element type and shape as their (only) input.
var unaryOps = []string{
	"Identity", "Abs", "Neg", "Relu", "LeakyRelu", "Sigmoid", "Tanh", "Exp", "Log", "Sqrt", "Reciprocal",
	"Erf", "Gelu", "FastGelu", "Softmax", "LogSoftmax", "Dropout", "Sin", "Cos", "Floor", "Ceil", "Round",
}

// Operators whose output has the element type and shape of their inputs, when all inputs have the same
// known shape (broadcasting is not modeled).
var elementwiseOps = []string{"Add", "Sub", "Mul", "Div", "Pow", "Max", "Min", "Sum", "Mean", "Where"}

// Declared infers shapes from the value_info, inputs, outputs and initializers declared in the primary
// graph, and propagates them through Cast, Constant and shape preserving operators.
type Declared struct {
	// Strict makes inference fail if the output of some node remains unknown.
	Strict bool
}

// InferShapes implements editor.ShapeInferencer.
//
// Symbolic dimensions found in dynamicAxes are replaced by their concrete sizes.
func (d Declared) InferShapes(model *ir.Model, dynamicAxes map[string]int64) (map[string]*ir.ValueInfo, error) {
	if model == nil || model.Graph == nil {
		return nil, errors.New("shapeinfer: model has no graph")
	}
	for axis, size := range dynamicAxes {
		if size <= 0 {
			return nil, errors.Errorf("shapeinfer: dynamic axis %q has invalid size %d", axis, size)
		}
	}
	g := model.Graph
	shapes := make(map[string]*ir.ValueInfo)
	declare := func(vi *ir.ValueInfo) {
		if vi.ElemType == ir.DataTypeUndefined {
			return
		}
		if _, found := shapes[vi.Name]; !found {
			shapes[vi.Name] = bindAxes(vi, dynamicAxes)
		}
	}
	for _, t := range g.Initializers {
		declare(tensorValueInfo(t.Name, t))
	}
	for _, vi := range slices.Concat(g.Inputs, g.ValueInfos, g.Outputs) {
		declare(vi)
	}

	// Propagate until nothing changes: nodes may not be sorted.
	for changed := true; changed; {
		changed = false
		for _, node := range g.Nodes {
			for _, vi := range inferNode(node, shapes) {
				if _, found := shapes[vi.Name]; !found {
					shapes[vi.Name] = vi
					changed = true
				}
			}
		}
	}

	if d.Strict {
		for _, node := range g.Nodes {
			for _, output := range node.Outputs {
				if _, found := shapes[output]; output != "" && !found {
					return nil, errors.Errorf("shapeinfer: cannot infer shape of %q, output of node %q (%s)",
						output, node.Name, node.OpType)
				}
			}
		}
	}
	klog.V(2).Infof("shapeinfer: %d values with known element type", len(shapes))
	return shapes, nil
}

func tensorValueInfo(name string, t *ir.Tensor) *ir.ValueInfo {
	shape := make([]ir.Dim, len(t.Dims))
	for ii, dim := range t.Dims {
		shape[ii] = ir.DimValue(dim)
	}
	return &ir.ValueInfo{Name: name, ElemType: t.DataType, Shape: shape}
}

// bindAxes returns a copy of vi with the symbolic dimensions in dynamicAxes made concrete.
func bindAxes(vi *ir.ValueInfo, dynamicAxes map[string]int64) *ir.ValueInfo {
	bound := vi.Clone()
	for ii, dim := range bound.Shape {
		if size, found := dynamicAxes[dim.Param]; found && dim.Param != "" {
			bound.Shape[ii] = ir.DimValue(size)
		}
	}
	return bound
}

// renamed returns a copy of vi named name.
func renamed(vi *ir.ValueInfo, name string) *ir.ValueInfo {
	clone := vi.Clone()
	clone.Name = name
	clone.DocString = ""
	return clone
}

// inferNode returns the ValueInfo of the outputs of node that can be derived from known inputs.
func inferNode(node *ir.Node, shapes map[string]*ir.ValueInfo) []*ir.ValueInfo {
	if len(node.Outputs) == 0 || node.Outputs[0] == "" {
		return nil
	}
	output := node.Outputs[0]
	switch {
	case node.OpType == ir.OpConstant:
		if attr := node.Attribute("value"); attr != nil && attr.T != nil {
			return []*ir.ValueInfo{tensorValueInfo(output, attr.T)}
		}
	case node.OpType == "Cast":
		to := node.Attribute("to")
		if to == nil || len(node.Inputs) == 0 {
			return nil
		}
		if input, found := shapes[node.Inputs[0]]; found {
			vi := renamed(input, output)
			vi.ElemType = ir.DataType(to.I)
			return []*ir.ValueInfo{vi}
		}
	case slices.Contains(unaryOps, node.OpType):
		if len(node.Inputs) == 0 {
			return nil
		}
		if input, found := shapes[node.Inputs[0]]; found {
			return []*ir.ValueInfo{renamed(input, output)}
		}
	case slices.Contains(elementwiseOps, node.OpType):
		var first *ir.ValueInfo
		for ii, name := range node.Inputs {
			if node.OpType == "Where" && ii == 0 {
				// Condition is boolean.
				continue
			}
			input, found := shapes[name]
			if !found || hasUnknownDims(input.Shape) {
				return nil
			}
			if first == nil {
				first = input
			} else if !slices.Equal(first.Shape, input.Shape) || first.ElemType != input.ElemType {
				return nil
			}
		}
		if first != nil {
			return []*ir.ValueInfo{renamed(first, output)}
		}
	}
	return nil
}

// hasUnknownDims returns whether some dimension is neither concrete nor symbolic. Equal symbolic
// dimensions are taken to have the same size.
func hasUnknownDims(shape []ir.Dim) bool {
	return slices.ContainsFunc(shape, func(dim ir.Dim) bool { return dim.Param == "" && dim.Value <= 0 })
}

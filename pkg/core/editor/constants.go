// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package editor

import (
	"math"

	"github.com/gomlx/onnxir/pkg/core/ir"
	"k8s.io/klog/v2"
)

// DefaultDelta is the absolute tolerance used to compare constants with expected values.
const DefaultDelta = 1e-6

// NotFound is returned by the index-returning lookups when nothing matches.
const NotFound = -1

// ConstantValue returns the constant tensor bound to the value name: the "value" attribute of the
// Constant node producing it or, failing that, the initializer with that name (constant folding moves
// constants to the initializers). It returns nil if the value is not constant.
//
// The returned tensor is the one stored in the model, not a copy.
func (e *Editor) ConstantValue(name string) *ir.Tensor {
	for _, node := range e.NodesByOpType(ir.OpConstant) {
		if len(node.Outputs) == 0 || node.Outputs[0] != name {
			continue
		}
		if attr := node.Attribute("value"); attr != nil && attr.Type == ir.AttributeTensor && attr.T != nil {
			return attr.T
		}
	}
	return e.Initializer(name)
}

// ConstantInput returns the index and value of the first input of n that resolves to a constant,
// or (NotFound, nil).
func (e *Editor) ConstantInput(n *ir.Node) (int, *ir.Tensor) {
	for i, input := range n.Inputs {
		if input == "" {
			continue
		}
		if value := e.ConstantValue(input); value != nil {
			return i, value
		}
	}
	return NotFound, nil
}

// FindConstantInput returns the index of the first constant input of n if it holds a single element
// within delta (absolute difference) of expected. Otherwise, including when the first constant input
// doesn't match but a later one would, it returns NotFound.
func (e *Editor) FindConstantInput(n *ir.Node, expected, delta float64) int {
	i, value := e.ConstantInput(n)
	if value == nil || value.Size() != 1 || value.Len() != 1 || value.DataType == ir.DataTypeString {
		return NotFound
	}
	if math.Abs(value.Float64At(0)-expected) < delta {
		return i
	}
	return NotFound
}

// HasConstantInput returns whether FindConstantInput finds a matching input.
func (e *Editor) HasConstantInput(n *ir.Node, expected, delta float64) bool {
	return e.FindConstantInput(n, expected, delta) >= 0
}

// IsConstantWithDimensions returns whether the value name is a constant of the given rank. description
// is only used for logging.
func (e *Editor) IsConstantWithDimensions(name string, rank int, description string) bool {
	value := e.ConstantValue(name)
	if value == nil {
		klog.V(2).Infof("%s %s is not a constant", description, name)
		return false
	}
	if value.Rank() != rank {
		klog.V(2).Infof("%s %s shall have %d dimensions, got shape %v", description, name, rank, value.Dims)
		return false
	}
	return true
}

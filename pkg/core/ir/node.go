// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
)

// Control-flow operator types: their nodes carry nested graphs as attributes.
const (
	OpIf   = "If"
	OpLoop = "Loop"
	OpScan = "Scan"
)

// OpConstant is the operator type of nodes that produce an inline literal held in their "value" attribute.
const OpConstant = "Constant"

// Node is one operator invocation.
//
// Inputs may contain empty strings, denoting omitted optional inputs. Identity is the pointer: the same
// *Node is owned by exactly one Graph.Nodes at a time.
type Node struct {
	Name       string
	OpType     string
	Domain     string
	Inputs     []string
	Outputs    []string
	Attributes []*Attribute
	DocString  string
}

// NewNode creates a node with the given operator type and connections. The name is left empty: set it
// with WithName, usually with a name created by editor.Editor.CreateNodeName.
func NewNode(opType string, inputs, outputs []string, attributes ...*Attribute) *Node {
	if opType == "" {
		exceptions.Panicf("ir.NewNode: empty operator type")
	}
	for _, output := range outputs {
		MustBeIdentifier("node output", output)
	}
	return &Node{
		OpType:     opType,
		Inputs:     slices.Clone(inputs),
		Outputs:    slices.Clone(outputs),
		Attributes: attributes,
	}
}

// WithName sets the node name and returns the node itself, for chaining.
func (n *Node) WithName(name string) *Node {
	n.Name = name
	return n
}

// Attribute returns the attribute with the given name, or nil if not found.
func (n *Node) Attribute(name string) *Attribute {
	for _, attr := range n.Attributes {
		if attr.Name == name {
			return attr
		}
	}
	return nil
}

// SetAttribute replaces the attribute with the same name, or appends it if there is none.
func (n *Node) SetAttribute(attr *Attribute) {
	for ii, existing := range n.Attributes {
		if existing.Name == attr.Name {
			n.Attributes[ii] = attr
			return
		}
	}
	n.Attributes = append(n.Attributes, attr)
}

// SubGraphs returns the nested graphs held in GRAPH and GRAPHS attributes, in attribute order.
func (n *Node) SubGraphs() []*Graph {
	var graphs []*Graph
	for _, attr := range n.Attributes {
		graphs = append(graphs, attr.SubGraphs()...)
	}
	return graphs
}

// HasSubGraphs returns whether the node is a control-flow node: either one of the known control-flow
// operator types or a node carrying nested graphs in its attributes.
func (n *Node) HasSubGraphs() bool {
	switch n.OpType {
	case OpIf, OpLoop, OpScan:
		return true
	}
	for _, attr := range n.Attributes {
		if attr.Type == AttributeGraph || attr.Type == AttributeGraphs {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	if n == nil {
		return "<nil node>"
	}
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "%s(%q): [%s] -> [%s]", n.OpType, n.Name,
		strings.Join(n.Inputs, ", "), strings.Join(n.Outputs, ", "))
	return sb.String()
}

// MustBeIdentifier panics if name is not a valid value name. An empty name is only valid as an omitted
// optional node input, never as the subject of an edit.
func MustBeIdentifier(what, name string) {
	if name == "" {
		exceptions.Panicf("%s must be a non-empty value name", what)
	}
}

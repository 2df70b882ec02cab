// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"
	"slices"
	"strings"
)

// Graph is one scope of the IR: an ordered list of nodes plus the declared inputs, outputs and
// initializers (named constants) of the scope.
//
// The primary graph of a model is expected to be in topological order when persisted. Nested graphs
// (bodies of control-flow nodes) may use names from their enclosing graphs.
type Graph struct {
	Name         string
	Nodes        []*Node
	Inputs       []*ValueInfo
	Outputs      []*ValueInfo
	Initializers []*Tensor
	ValueInfos   []*ValueInfo
	DocString    string
}

// NewGraph creates an empty graph with the given name.
func NewGraph(name string) *Graph {
	return &Graph{Name: name}
}

// NodeIndex returns the position of node n in the graph, or -1 if the graph doesn't hold it.
func (g *Graph) NodeIndex(n *Node) int {
	return slices.Index(g.Nodes, n)
}

// HasNode returns whether the graph holds node n.
func (g *Graph) HasNode(n *Node) bool {
	return g.NodeIndex(n) >= 0
}

// Input returns the declared graph input with the given name, or nil.
func (g *Graph) Input(name string) *ValueInfo {
	return findValueInfo(g.Inputs, name)
}

// Output returns the declared graph output with the given name, or nil.
func (g *Graph) Output(name string) *ValueInfo {
	return findValueInfo(g.Outputs, name)
}

// Initializer returns the initializer with the given name, or nil.
func (g *Graph) Initializer(name string) *Tensor {
	for _, t := range g.Initializers {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// InputNames returns the names of the declared inputs, in order.
func (g *Graph) InputNames() []string {
	return valueInfoNames(g.Inputs)
}

// OutputNames returns the names of the declared outputs, in order.
func (g *Graph) OutputNames() []string {
	return valueInfoNames(g.Outputs)
}

func findValueInfo(infos []*ValueInfo, name string) *ValueInfo {
	for _, vi := range infos {
		if vi.Name == name {
			return vi
		}
	}
	return nil
}

func valueInfoNames(infos []*ValueInfo) []string {
	names := make([]string, len(infos))
	for ii, vi := range infos {
		names[ii] = vi.Name
	}
	return names
}

// String returns a multi-line listing of the graph, mostly for debugging.
func (g *Graph) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "Graph %q:\n", g.Name)
	for _, vi := range g.Inputs {
		_, _ = fmt.Fprintf(&sb, "  input %s\n", vi)
	}
	for _, t := range g.Initializers {
		_, _ = fmt.Fprintf(&sb, "  initializer %s\n", t)
	}
	for _, n := range g.Nodes {
		_, _ = fmt.Fprintf(&sb, "  %s\n", n)
	}
	for _, vi := range g.Outputs {
		_, _ = fmt.Fprintf(&sb, "  output %s\n", vi)
	}
	return sb.String()
}

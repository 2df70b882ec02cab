// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package editor

import (
	"github.com/gomlx/onnxir/pkg/core/ir"
)

// Graphs returns the primary graph followed by all nested graphs, discovered breadth-first through the
// GRAPH and GRAPHS attributes of the nodes.
//
// The result is cached: after adding or removing nodes that hold nested graphs, call InvalidateGraphs.
func (e *Editor) Graphs() []*ir.Graph {
	if e.allGraphs != nil {
		return e.allGraphs
	}
	queue := []*ir.Graph{e.model.Graph}
	for len(queue) > 0 {
		graph := queue[0]
		queue = queue[1:]
		e.allGraphs = append(e.allGraphs, graph)
		for _, node := range graph.Nodes {
			queue = append(queue, node.SubGraphs()...)
		}
	}
	return e.allGraphs
}

// InvalidateGraphs drops the cached graph collection, so the next call to Graphs discovers it again.
func (e *Editor) InvalidateGraphs() {
	e.allGraphs = nil
}

// AllNodes returns the nodes of all graphs: primary graph first, then nested graphs in discovery order.
func (e *Editor) AllNodes() []*ir.Node {
	var nodes []*ir.Node
	for _, graph := range e.Graphs() {
		nodes = append(nodes, graph.Nodes...)
	}
	return nodes
}

// GraphsInputNames returns the names of the declared inputs of all graphs.
func (e *Editor) GraphsInputNames() []string {
	var names []string
	for _, graph := range e.Graphs() {
		names = append(names, graph.InputNames()...)
	}
	return names
}

// GraphsOutputNames returns the names of the declared outputs of all graphs.
func (e *Editor) GraphsOutputNames() []string {
	var names []string
	for _, graph := range e.Graphs() {
		names = append(names, graph.OutputNames()...)
	}
	return names
}

// GraphOfNode returns the graph holding node n, or nil if no graph holds it.
func (e *Editor) GraphOfNode(n *ir.Node) *ir.Graph {
	for _, graph := range e.Graphs() {
		if graph.HasNode(n) {
			return graph
		}
	}
	return nil
}

// GraphByName returns the first graph with the given name, or nil.
func (e *Editor) GraphByName(name string) *ir.Graph {
	for _, graph := range e.Graphs() {
		if graph.Name == name {
			return graph
		}
	}
	return nil
}

// Initializer returns the initializer with the given name from any graph, or nil.
func (e *Editor) Initializer(name string) *ir.Tensor {
	for _, graph := range e.Graphs() {
		if t := graph.Initializer(name); t != nil {
			return t
		}
	}
	return nil
}

// NodesByOpType returns all nodes, in any graph, of the given operator type.
func (e *Editor) NodesByOpType(opType string) []*ir.Node {
	var nodes []*ir.Node
	for _, graph := range e.Graphs() {
		for _, node := range graph.Nodes {
			if node.OpType == opType {
				nodes = append(nodes, node)
			}
		}
	}
	return nodes
}

// FindGraphInput returns the input of the primary graph with the given name, or nil.
func (e *Editor) FindGraphInput(name string) *ir.ValueInfo {
	return e.model.Graph.Input(name)
}

// FindGraphOutput returns the output of the primary graph with the given name, or nil.
func (e *Editor) FindGraphOutput(name string) *ir.ValueInfo {
	return e.model.Graph.Output(name)
}

// GraphInputsExcludingInitializers returns the inputs of the primary graph that are not also
// initializers. Older exporters listed every initializer as a graph input as well.
func (e *Editor) GraphInputsExcludingInitializers() []*ir.ValueInfo {
	var inputs []*ir.ValueInfo
	for _, input := range e.model.Graph.Inputs {
		if e.Initializer(input.Name) == nil {
			inputs = append(inputs, input)
		}
	}
	return inputs
}

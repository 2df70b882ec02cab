// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package editor

import (
	"slices"

	"github.com/gomlx/onnxir/pkg/core/ir"
	"github.com/gomlx/onnxir/pkg/support/sets"
	"k8s.io/klog/v2"
)

// Mutations never fail on absent targets: removing a node that is not in any graph, or replacing a name
// nobody uses, is a no-op. Rewrite passes rely on this to issue speculative edits.

// RemoveNode removes node n from whichever graph holds it. It is a no-op if no graph holds it.
func (e *Editor) RemoveNode(n *ir.Node) {
	for _, graph := range e.Graphs() {
		if idx := graph.NodeIndex(n); idx >= 0 {
			graph.Nodes = slices.Delete(graph.Nodes, idx, idx+1)
		}
	}
}

// RemoveNodes removes all the given nodes from the graphs holding them.
func (e *Editor) RemoveNodes(nodes []*ir.Node) {
	if len(nodes) == 0 {
		return
	}
	toRemove := sets.MakeWith(nodes...)
	for _, graph := range e.Graphs() {
		graph.Nodes = slices.DeleteFunc(graph.Nodes, func(n *ir.Node) bool { return toRemove.Has(n) })
	}
}

// targetGraph returns the graph for graphName: the primary graph if graphName is empty or names it.
// It returns nil (and logs a warning) if there is no such graph.
func (e *Editor) targetGraph(graphName, what string) *ir.Graph {
	if graphName == "" || graphName == e.model.Graph.Name {
		return e.model.Graph
	}
	graph := e.GraphByName(graphName)
	if graph == nil {
		klog.Warningf("editor: cannot add %s to graph %q: no graph with that name", what, graphName)
	}
	return graph
}

// AddNode adds node n to the graph named graphName.
//
// If graphName is empty or names the primary graph, n is appended to the primary graph, which is sorted
// later by TopologicalSort. Nested graphs are never sorted, so there n is inserted before the first node
// consuming any of its outputs (or appended if there is none).
func (e *Editor) AddNode(n *ir.Node, graphName string) {
	graph := e.targetGraph(graphName, "node "+n.Name)
	if graph == nil {
		return
	}
	if graph == e.model.Graph {
		graph.Nodes = append(graph.Nodes, n)
		return
	}
	insertIdx := TopologicalInsertIndex(graph, n.Outputs)
	graph.Nodes = slices.Insert(graph.Nodes, insertIdx, n)
}

// TopologicalInsertIndex returns the position of the first node of graph that consumes any of outputs,
// or len(graph.Nodes) if none does.
func TopologicalInsertIndex(graph *ir.Graph, outputs []string) int {
	for idx, node := range graph.Nodes {
		for _, input := range node.Inputs {
			if input != "" && slices.Contains(outputs, input) {
				return idx
			}
		}
	}
	return len(graph.Nodes)
}

// AddNodes adds the nodes to the graphs given by nodeNameToGraphName (node name to graph name).
// If nodeNameToGraphName is nil, all nodes are appended to the primary graph.
func (e *Editor) AddNodes(nodes []*ir.Node, nodeNameToGraphName map[string]string) {
	if nodeNameToGraphName == nil {
		e.model.Graph.Nodes = append(e.model.Graph.Nodes, nodes...)
		return
	}
	for _, node := range nodes {
		e.AddNode(node, nodeNameToGraphName[node.Name])
	}
}

// AddInitializer appends tensor t to the initializers of the graph named graphName (primary graph if
// empty).
func (e *Editor) AddInitializer(t *ir.Tensor, graphName string) {
	ir.MustBeIdentifier("initializer name", t.Name)
	if graph := e.targetGraph(graphName, "initializer "+t.Name); graph != nil {
		graph.Initializers = append(graph.Initializers, t)
	}
}

// AddInput appends a declared input to the graph named graphName (primary graph if empty).
func (e *Editor) AddInput(input *ir.ValueInfo, graphName string) {
	ir.MustBeIdentifier("graph input name", input.Name)
	if graph := e.targetGraph(graphName, "input "+input.Name); graph != nil {
		graph.Inputs = append(graph.Inputs, input)
	}
}

// ReplaceNodeInput renames every occurrence of oldName in the inputs of node n to newName.
func ReplaceNodeInput(n *ir.Node, oldName, newName string) {
	ir.MustBeIdentifier("old input name", oldName)
	ir.MustBeIdentifier("new input name", newName)
	for ii, input := range n.Inputs {
		if input == oldName {
			n.Inputs[ii] = newName
		}
	}
}

// ReplaceNodeOutput renames every occurrence of oldName in the outputs of node n to newName.
func ReplaceNodeOutput(n *ir.Node, oldName, newName string) {
	ir.MustBeIdentifier("old output name", oldName)
	ir.MustBeIdentifier("new output name", newName)
	for ii, output := range n.Outputs {
		if output == oldName {
			n.Outputs[ii] = newName
		}
	}
}

// ReplaceInputOfAllNodes calls ReplaceNodeInput on every node of the primary graph.
// Nested graphs are not changed.
func (e *Editor) ReplaceInputOfAllNodes(oldName, newName string) {
	for _, node := range e.model.Graph.Nodes {
		ReplaceNodeInput(node, oldName, newName)
	}
}

// ReplaceOutputOfAllNodes calls ReplaceNodeOutput on every node of the primary graph.
// Nested graphs are not changed.
func (e *Editor) ReplaceOutputOfAllNodes(oldName, newName string) {
	for _, node := range e.model.Graph.Nodes {
		ReplaceNodeOutput(node, oldName, newName)
	}
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package editor

import (
	"slices"

	"github.com/gomlx/onnxir/pkg/core/ir"
	"github.com/gomlx/onnxir/pkg/support/sets"
	"k8s.io/klog/v2"
)

// RemoveUnusedConstants removes Constant nodes, in any graph, whose output is neither consumed by a node
// nor declared as a graph output.
func (e *Editor) RemoveUnusedConstants() {
	consumers := e.InputNameToNodes()
	graphOutputs := sets.MakeWith(e.GraphsOutputNames()...)
	var unused []*ir.Node
	for _, node := range e.AllNodes() {
		if node.OpType != ir.OpConstant || len(node.Outputs) == 0 {
			continue
		}
		output := node.Outputs[0]
		if _, found := consumers[output]; !found && !graphOutputs.Has(output) {
			unused = append(unused, node)
		}
	}
	e.RemoveNodes(unused)
	if len(unused) > 0 {
		klog.V(1).Infof("Removed unused constant nodes: %d", len(unused))
	}
}

// primaryGraphHasSubGraphs returns whether the primary graph has control-flow nodes. Liveness inside
// nested graphs is not analyzed, so pruning refuses to touch such graphs.
func (e *Editor) primaryGraphHasSubGraphs(caller string) bool {
	for _, node := range e.model.Graph.Nodes {
		if node.HasSubGraphs() {
			klog.V(1).Infof("Skip %s since graph has operator %s (node %q)", caller, node.OpType, node.Name)
			return true
		}
	}
	return false
}

// PruneGraph keeps only what is needed to compute the given outputs of the primary graph (all declared
// outputs if outputs is nil).
//
// Nodes not linked, directly or indirectly, to a kept output are removed; so are the declared outputs
// not in the list and the inputs no node consumes anymore. Finally, UpdateGraph drops unused
// initializers and constants.
//
// If the primary graph has any control-flow node (nodes with nested graphs), it does nothing.
func (e *Editor) PruneGraph(outputs []string) {
	if e.primaryGraphHasSubGraphs("PruneGraph") {
		return
	}
	graph := e.model.Graph
	if outputs == nil {
		outputs = graph.OutputNames()
	}

	idx := NewIndex(e.AllNodes())
	live := sets.Make[*ir.Node]()
	for _, output := range outputs {
		last, found := idx.Producers[output]
		if !found || live.Has(last) {
			continue
		}
		live.Insert(last)
		live.Insert(e.ParentSubgraphNodes(last, nil, idx)...)
	}

	var nodesToRemove []*ir.Node
	for _, node := range graph.Nodes {
		if !live.Has(node) {
			nodesToRemove = append(nodesToRemove, node)
		}
	}
	e.RemoveNodes(nodesToRemove)

	numOutputs := len(graph.Outputs)
	graph.Outputs = slices.DeleteFunc(graph.Outputs, func(vi *ir.ValueInfo) bool {
		return !slices.Contains(outputs, vi.Name)
	})
	numOutputsRemoved := numOutputs - len(graph.Outputs)

	consumers := e.InputNameToNodes()
	numInputs := len(graph.Inputs)
	graph.Inputs = slices.DeleteFunc(graph.Inputs, func(vi *ir.ValueInfo) bool {
		_, found := consumers[vi.Name]
		return !found
	})
	numInputsRemoved := numInputs - len(graph.Inputs)

	klog.Infof("Graph pruned: %d inputs, %d outputs and %d nodes are removed",
		numInputsRemoved, numOutputsRemoved, len(nodesToRemove))
	e.UpdateGraph()
}

// UpdateGraph removes from the primary graph the inputs and initializers no node uses (initializers
// that are also graph outputs are kept), and then calls RemoveUnusedConstants.
//
// Like PruneGraph, it does nothing if the primary graph has control-flow nodes.
func (e *Editor) UpdateGraph() {
	if e.primaryGraphHasSubGraphs("UpdateGraph") {
		return
	}
	graph := e.model.Graph
	used := sets.Make[string]()
	for _, node := range graph.Nodes {
		if node.OpType == ir.OpConstant {
			continue
		}
		used.Insert(node.Inputs...)
	}

	var inputsRemoved []string
	graph.Inputs = slices.DeleteFunc(graph.Inputs, func(vi *ir.ValueInfo) bool {
		if used.Has(vi.Name) {
			return false
		}
		inputsRemoved = append(inputsRemoved, vi.Name)
		return true
	})
	klog.V(1).Infof("Removed %d unused inputs: %v", len(inputsRemoved), inputsRemoved)

	var initializersRemoved []string
	graph.Initializers = slices.DeleteFunc(graph.Initializers, func(t *ir.Tensor) bool {
		if used.Has(t.Name) || graph.Output(t.Name) != nil {
			return false
		}
		initializersRemoved = append(initializersRemoved, t.Name)
		return true
	})
	klog.V(1).Infof("Removed %d unused initializers: %v", len(initializersRemoved), initializersRemoved)

	e.RemoveUnusedConstants()
}

// IsSafeToFuse returns whether the nodes can be removed without leaving a dangling consumer: that is, no
// output of them, except those in keepOutputs, is consumed by a node outside nodesToRemove.
func (e *Editor) IsSafeToFuse(nodesToRemove []*ir.Node, keepOutputs []string, idx *Index) bool {
	idx = e.indexOrNew(idx)
	removing := sets.MakeWith(nodesToRemove...)
	for _, node := range nodesToRemove {
		for _, output := range node.Outputs {
			if slices.Contains(keepOutputs, output) {
				continue
			}
			for _, consumer := range idx.Consumers[output] {
				if !removing.Has(consumer) {
					klog.V(2).Infof("it is not safe to remove nodes since output %s is used by %s", output, consumer)
					return false
				}
			}
		}
	}
	return true
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package editor

import (
	"slices"

	"github.com/gomlx/onnxir/pkg/core/ir"
	"github.com/pkg/errors"
)

// TopologicalSort sorts the nodes of the primary graph, see GraphTopologicalSort.
// Nested graphs are left in their original order.
func (e *Editor) TopologicalSort() {
	GraphTopologicalSort(e.model.Graph)
}

// GraphTopologicalSort reorders graph.Nodes so every node comes after the producers of its inputs.
//
// The order is deterministic: first the nodes without inputs, in their original order; then the nodes
// made ready by the initializers and graph inputs, taken in sorted name order; then, breadth-first,
// the nodes made ready by the outputs of already sorted nodes. Sorting twice yields the same order.
// Empty (omitted) inputs are not dependencies.
//
// Values must be produced inside the graph, so it only applies to graphs that don't use names from
// enclosing scopes. It panics with an error wrapping ErrNotDAG if some nodes can't be sorted: there is a
// cycle, or a node consumes a value nothing produces. The graph is not changed in that case.
func GraphTopologicalSort(graph *ir.Graph) {
	numNodes := len(graph.Nodes)
	depsCount := make([]int, numNodes)
	depsToNodes := make(map[string][]int)
	sorted := make([]*ir.Node, 0, numNodes)
	for nodeIdx, node := range graph.Nodes {
		for _, input := range node.Inputs {
			if input == "" {
				continue
			}
			depsCount[nodeIdx]++
			depsToNodes[input] = append(depsToNodes[input], nodeIdx)
		}
		if depsCount[nodeIdx] == 0 {
			sorted = append(sorted, node)
		}
	}

	// Initializers and graph inputs, deduplicated and in name order.
	inputNames := make([]string, 0, len(graph.Initializers)+len(graph.Inputs))
	for _, t := range graph.Initializers {
		inputNames = append(inputNames, t.Name)
	}
	inputNames = append(inputNames, graph.InputNames()...)
	slices.Sort(inputNames)
	inputNames = slices.Compact(inputNames)
	for _, name := range inputNames {
		for _, nodeIdx := range depsToNodes[name] {
			depsCount[nodeIdx]--
			if depsCount[nodeIdx] == 0 {
				sorted = append(sorted, graph.Nodes[nodeIdx])
			}
		}
	}

	for start := 0; start < len(sorted); start++ {
		for _, output := range sorted[start].Outputs {
			if output == "" {
				continue
			}
			for _, nodeIdx := range depsToNodes[output] {
				depsCount[nodeIdx]--
				if depsCount[nodeIdx] == 0 {
					sorted = append(sorted, graph.Nodes[nodeIdx])
				}
			}
		}
	}

	if len(sorted) != numNodes {
		var unsorted []string
		for nodeIdx, count := range depsCount {
			if count > 0 {
				unsorted = append(unsorted, graph.Nodes[nodeIdx].Name)
			}
		}
		panic(errors.Wrapf(ErrNotDAG, "graph %q: sorted only %d of %d nodes, unresolved nodes: %v",
			graph.Name, len(sorted), numNodes, unsorted))
	}
	graph.Nodes = sorted
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package editor

import (
	"github.com/gomlx/onnxir/pkg/core/ir"
)

// Index is the value-flow index over a snapshot of nodes: which node produces a value name, and which
// nodes consume it.
//
// It is derived data: it goes stale as soon as the graph is mutated, and is never updated incrementally.
type Index struct {
	// Consumers maps a value name to the nodes that take it as input, in node order. A node consuming
	// the same value twice is listed twice.
	Consumers map[string][]*ir.Node

	// Producers maps a value name to the node that outputs it.
	Producers map[string]*ir.Node
}

// NewIndex builds the Index of the given nodes with one scan.
func NewIndex(nodes []*ir.Node) *Index {
	return &Index{
		Consumers: ConsumersOf(nodes),
		Producers: ProducerOf(nodes),
	}
}

// ConsumersOf maps each value name to the nodes consuming it. Names nobody consumes are absent, and so
// are empty names (omitted optional inputs).
func ConsumersOf(nodes []*ir.Node) map[string][]*ir.Node {
	consumers := make(map[string][]*ir.Node)
	for _, node := range nodes {
		for _, input := range node.Inputs {
			if input == "" {
				continue
			}
			consumers[input] = append(consumers[input], node)
		}
	}
	return consumers
}

// ProducerOf maps each value name to the node producing it. Graph inputs and initializers are not
// nodes, so their names are absent.
func ProducerOf(nodes []*ir.Node) map[string]*ir.Node {
	producers := make(map[string]*ir.Node)
	for _, node := range nodes {
		for _, output := range node.Outputs {
			if output == "" {
				continue
			}
			producers[output] = node
		}
	}
	return producers
}

// InputNameToNodes returns a freshly built map of value name to consuming nodes, across all graphs.
func (e *Editor) InputNameToNodes() map[string][]*ir.Node {
	return ConsumersOf(e.AllNodes())
}

// OutputNameToNode returns a freshly built map of value name to producing node, across all graphs.
func (e *Editor) OutputNameToNode() map[string]*ir.Node {
	return ProducerOf(e.AllNodes())
}

// Index returns the cached Index over all nodes of all graphs, building it on the first call.
//
// The cache is not invalidated by mutations: call RebuildIndex after changing the graph.
func (e *Editor) Index() *Index {
	if e.index == nil {
		e.index = NewIndex(e.AllNodes())
	}
	return e.index
}

// RebuildIndex rebuilds the cached Index from the current nodes and returns it.
func (e *Editor) RebuildIndex() *Index {
	e.index = NewIndex(e.AllNodes())
	return e.index
}

// indexOrNew returns idx if not nil, or a freshly built one.
func (e *Editor) indexOrNew(idx *Index) *Index {
	if idx != nil {
		return idx
	}
	return NewIndex(e.AllNodes())
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package editor implements a rewrite session over an ir.Model: the substrate optimization passes are
// built from.
//
// An Editor provides:
//
//   - Indices from value names to producing and consuming nodes (Index).
//   - The collection of the primary graph and all nested graphs (Editor.Graphs).
//   - Mutations: adding and removing nodes, initializers and inputs, rewiring edges.
//   - Pattern matching: single hop (Editor.MatchParent) and multi-hop (Editor.MatchParentPath) matches
//     constrained by operator type and input position, and bounded subgraph traversals.
//   - Constant resolution of values (Editor.ConstantValue, Editor.FindConstantInput).
//   - Maintenance: pruning, dead node/input/initializer elimination and a deterministic topological sort.
//   - Unique node names (Editor.CreateNodeName).
//
// Caching: the Editor caches the graph collection and a value-flow Index, but it doesn't keep them up to
// date when the graph is mutated. After adding or removing nodes that carry nested graphs call
// Editor.InvalidateGraphs, and after any mutation call Editor.RebuildIndex before relying on
// Editor.Index again. Query methods accept an explicit *Index, and build a fresh one when given nil.
//
// Errors: looking up something that doesn't exist returns nil (or -1 for indices), since failing to
// match a pattern is the common case. Malformed calls (e.g. paths of mismatched lengths, empty value
// names) panic with an error, using github.com/gomlx/exceptions; so does sorting a graph with cycles.
//
// An Editor is not safe for concurrent use.
package editor

import (
	"github.com/gomlx/onnxir/pkg/core/ir"
	"github.com/pkg/errors"
)

var (
	// ErrNotDAG is the error (wrapped) panicked by the topological sort when the graph has a cycle, or
	// nodes consuming values that nothing produces.
	ErrNotDAG = errors.New("graph is not a DAG")

	// ErrNoDefaultOpset is returned by Editor.OpsetVersion when the model doesn't import the default
	// ONNX operator set.
	ErrNoDefaultOpset = errors.New("model has no opset for the default ONNX domain")
)

// Editor is a rewrite session over one model. See package documentation for its caching rules.
type Editor struct {
	model *ir.Model

	// allGraphs caches the result of Graphs(), nil if not yet discovered.
	allGraphs []*ir.Graph

	// index caches the result of Index(), nil if not yet built.
	index *Index

	// nodeNameSuffix maps a node name prefix to the last suffix generated for it.
	nodeNameSuffix map[string]int
}

// New creates an Editor for model. The model is edited in place.
func New(model *ir.Model) *Editor {
	if model == nil || model.Graph == nil {
		panic(errors.New("editor.New: model must have a primary graph"))
	}
	return &Editor{
		model:          model,
		nodeNameSuffix: make(map[string]int),
	}
}

// Model returns the model being edited.
func (e *Editor) Model() *ir.Model {
	return e.model
}

// SetModel replaces the model being edited, for passes that produce a new model instead of editing in
// place. Cached graphs and index are dropped, but the node-name ledger is kept.
func (e *Editor) SetModel(model *ir.Model) {
	if model == nil || model.Graph == nil {
		panic(errors.New("Editor.SetModel: model must have a primary graph"))
	}
	e.model = model
	e.allGraphs = nil
	e.index = nil
}

// Graph returns the primary graph.
func (e *Editor) Graph() *ir.Graph {
	return e.model.Graph
}

// OpsetVersion returns the version of the default ONNX operator set ("" or "ai.onnx" domain) imported by
// the model. It returns an error wrapping ErrNoDefaultOpset if there is none.
func (e *Editor) OpsetVersion() (int64, error) {
	for _, opset := range e.model.OpsetImports {
		for _, domain := range ir.DefaultDomains {
			if opset.Domain == domain {
				return opset.Version, nil
			}
		}
	}
	return 0, errors.WithStack(ErrNoDefaultOpset)
}

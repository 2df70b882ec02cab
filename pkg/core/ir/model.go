// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

// Default values for models created from scratch.
const (
	DefaultIRVersion    = 8
	DefaultOpsetVersion = 17
	DefaultProducerName = "onnxir"
)

// DefaultDomains are the domain names that denote the default ONNX operator set.
var DefaultDomains = []string{"", "ai.onnx"}

// OperatorSetID binds an operator domain to the version of its operator set used by the model.
type OperatorSetID struct {
	Domain  string
	Version int64
}

// Model is the container of one primary graph plus the metadata needed to persist it.
type Model struct {
	IRVersion       int64
	OpsetImports    []OperatorSetID
	ProducerName    string
	ProducerVersion string
	Domain          string
	ModelVersion    int64
	DocString       string
	Graph           *Graph
	MetadataProps   map[string]string
}

// NewModel creates a model around graph, importing the default domain at DefaultOpsetVersion if no
// operator sets are given.
func NewModel(graph *Graph, opsets ...OperatorSetID) *Model {
	if len(opsets) == 0 {
		opsets = []OperatorSetID{{Domain: "", Version: DefaultOpsetVersion}}
	}
	return &Model{
		IRVersion:    DefaultIRVersion,
		OpsetImports: opsets,
		ProducerName: DefaultProducerName,
		Graph:        graph,
	}
}

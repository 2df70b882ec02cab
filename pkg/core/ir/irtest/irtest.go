// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package irtest holds helpers to tersely build small models in tests.
package irtest

import (
	"fmt"
	"math/rand/v2"

	"github.com/gomlx/onnxir/pkg/core/ir"
)

// Node creates a named node.
func Node(opType, name string, inputs, outputs []string, attrs ...*ir.Attribute) *ir.Node {
	return ir.NewNode(opType, inputs, outputs, attrs...).WithName(name)
}

// FloatInput declares a float32 value with the given dimensions. Use it for graph inputs and outputs.
func FloatInput(name string, dims ...int64) *ir.ValueInfo {
	shape := make([]ir.Dim, len(dims))
	for ii, dim := range dims {
		shape[ii] = ir.DimValue(dim)
	}
	return ir.NewValueInfo(name, ir.DataTypeFloat, shape...)
}

// ScalarConstant creates a Constant node named name producing output with a float32 scalar value.
func ScalarConstant(name, output string, value float32) *ir.Node {
	return Node(ir.OpConstant, name, nil, []string{output},
		ir.TensorAttr("value", ir.ScalarTensor("", value)))
}

// Graph creates a graph with the given nodes.
func Graph(name string, nodes ...*ir.Node) *ir.Graph {
	g := ir.NewGraph(name)
	g.Nodes = nodes
	return g
}

// Model wraps the graph in a model importing the default opset.
func Model(g *ir.Graph) *ir.Model {
	return ir.NewModel(g)
}

// Names returns the names of the nodes, preserving order. Nil nodes are listed as "<nil>".
func Names(nodes []*ir.Node) []string {
	names := make([]string, len(nodes))
	for ii, n := range nodes {
		if n == nil {
			names[ii] = "<nil>"
			continue
		}
		names[ii] = n.Name
	}
	return names
}

// RandomDAG creates a model whose primary graph is a random DAG of numNodes "Add" nodes, deterministic
// for a given seed.
//
// Nodes "n<i>" produce "v<i>", and consume values of earlier nodes, the graph inputs "x" and "y", or
// the initializer "w". The nodes are listed in a shuffled order, so the graph is usually not
// topologically sorted. Every value not consumed by any node is a graph output.
func RandomDAG(seed uint64, numNodes int) *ir.Model {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	g := ir.NewGraph("random")
	g.Inputs = []*ir.ValueInfo{FloatInput("x", 2), FloatInput("y", 2)}
	g.Initializers = []*ir.Tensor{ir.NewTensor("w", []int64{2}, []float32{1, 2})}
	sources := []string{"x", "y", "w"}
	consumed := make(map[string]bool)
	nodes := make([]*ir.Node, numNodes)
	for ii := range numNodes {
		numInputs := 1 + rng.IntN(2)
		inputs := make([]string, numInputs)
		for jj := range inputs {
			inputs[jj] = sources[rng.IntN(len(sources))]
			consumed[inputs[jj]] = true
		}
		output := fmt.Sprintf("v%d", ii)
		nodes[ii] = Node("Add", fmt.Sprintf("n%d", ii), inputs, []string{output})
		sources = append(sources, output)
	}
	for ii := range numNodes {
		output := fmt.Sprintf("v%d", ii)
		if !consumed[output] {
			g.Outputs = append(g.Outputs, FloatInput(output, 2))
		}
	}
	rng.Shuffle(len(nodes), func(i, j int) { nodes[i], nodes[j] = nodes[j], nodes[i] })
	g.Nodes = nodes
	return ir.NewModel(g)
}

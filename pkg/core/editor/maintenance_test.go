// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package editor

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/onnxir/pkg/core/ir"
	"github.com/gomlx/onnxir/pkg/core/ir/irtest"
	"github.com/gomlx/onnxir/pkg/core/onnxio"
	"github.com/janpfeifer/must"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoOutputsModel computes X from in1 and Y from in2, with no shared nodes.
func twoOutputsModel() *ir.Model {
	g := irtest.Graph("main",
		irtest.Node("Neg", "nx1", []string{"in1"}, []string{"x1"}),
		irtest.ScalarConstant("cx", "cx_out", 1),
		irtest.Node("Gemm", "nx2", []string{"x1", "wX", "cx_out"}, []string{"X"}),
		irtest.Node("Abs", "ny1", []string{"in2"}, []string{"y1"}),
		irtest.Node("Mul", "ny2", []string{"y1", "wY"}, []string{"Y"}),
	)
	g.Inputs = []*ir.ValueInfo{irtest.FloatInput("in1", 2), irtest.FloatInput("in2", 2)}
	g.Outputs = []*ir.ValueInfo{irtest.FloatInput("X", 2), irtest.FloatInput("Y", 2)}
	g.Initializers = []*ir.Tensor{
		ir.NewTensor("wX", []int64{2, 2}, []float32{1, 2, 3, 4}),
		ir.NewTensor("wY", []int64{2}, []float32{5, 6}),
	}
	return irtest.Model(g)
}

func TestPruneGraph(t *testing.T) {
	e := New(twoOutputsModel())
	e.PruneGraph([]string{"Y"})
	g := e.Graph()
	assert.Equal(t, []string{"ny1", "ny2"}, irtest.Names(g.Nodes))
	assert.Equal(t, []string{"Y"}, g.OutputNames())
	assert.Equal(t, []string{"in2"}, g.InputNames())
	require.Len(t, g.Initializers, 1)
	assert.Equal(t, "wY", g.Initializers[0].Name)

	// All outputs kept: nothing changes.
	e = New(twoOutputsModel())
	e.PruneGraph(nil)
	assert.Len(t, e.Graph().Nodes, 5)
	assert.Equal(t, []string{"X", "Y"}, e.Graph().OutputNames())
	assert.Len(t, e.Graph().Initializers, 2)
}

func TestPruneGraphBailsOut(t *testing.T) {
	e := New(nestedModel())
	e.PruneGraph([]string{"r"})
	assert.Equal(t, []string{"relu", "if"}, irtest.Names(e.Graph().Nodes))
	assert.Equal(t, []string{"Y", "r"}, e.Graph().OutputNames())
	assert.Equal(t, []string{"x", "cond"}, e.Graph().InputNames())

	e.Graph().Inputs = append(e.Graph().Inputs, irtest.FloatInput("unused", 1))
	e.UpdateGraph()
	assert.Len(t, e.Graph().Inputs, 3)
}

func TestUpdateGraph(t *testing.T) {
	m := twoOutputsModel()
	g := m.Graph
	g.Inputs = append(g.Inputs, irtest.FloatInput("unused", 1))
	g.Initializers = append(g.Initializers,
		ir.ScalarTensor("dead", float32(0)),
		ir.ScalarTensor("passthrough", float32(0)))
	g.Outputs = append(g.Outputs, irtest.FloatInput("passthrough"))
	// Values consumed only by Constant nodes don't count as used.
	g.Nodes = append(g.Nodes, irtest.Node(ir.OpConstant, "weird", []string{"in1"}, []string{"w_out"},
		ir.TensorAttr("value", ir.ScalarTensor("", float32(3)))))
	e := New(m)
	e.UpdateGraph()
	assert.Equal(t, []string{"in1", "in2"}, g.InputNames())
	names := make([]string, len(g.Initializers))
	for ii, tensor := range g.Initializers {
		names[ii] = tensor.Name
	}
	assert.Equal(t, []string{"wX", "wY", "passthrough"}, names)
	assert.False(t, slices.Contains(irtest.Names(g.Nodes), "weird"))
}

func TestRemoveUnusedConstants(t *testing.T) {
	m := nestedModel()
	g := m.Graph
	g.Nodes = append(g.Nodes,
		irtest.ScalarConstant("used", "t0", 1),
		irtest.ScalarConstant("unused", "nobody", 1),
		irtest.ScalarConstant("output", "out_c", 1),
	)
	g.Outputs = append(g.Outputs, irtest.FloatInput("out_c"))
	elseBranch := g.Nodes[1].Attribute("else_branch").G
	elseBranch.Nodes = append(elseBranch.Nodes, irtest.ScalarConstant("nested_unused", "n_c", 1))

	e := New(m)
	e.RemoveUnusedConstants()
	names := irtest.Names(e.AllNodes())
	assert.Contains(t, names, "used") // Consumed inside the "then" branch.
	assert.Contains(t, names, "output")
	assert.NotContains(t, names, "unused")
	assert.NotContains(t, names, "nested_unused")
}

func TestIsSafeToFuse(t *testing.T) {
	e := New(chainModel())
	idx := e.Index()
	add, relu, mm := nodeByName(e, "add"), nodeByName(e, "relu"), nodeByName(e, "mm")
	assert.False(t, e.IsSafeToFuse([]*ir.Node{add, relu}, nil, idx))
	assert.True(t, e.IsSafeToFuse([]*ir.Node{add, relu}, []string{"relu_out"}, idx))
	assert.True(t, e.IsSafeToFuse([]*ir.Node{mm, add}, []string{"add_out"}, nil))
	assert.False(t, e.IsSafeToFuse([]*ir.Node{mm}, nil, idx))
	assert.True(t, e.IsSafeToFuse(nil, nil, idx))
}

func TestConstants(t *testing.T) {
	m := chainModel()
	m.Graph.Nodes = append(m.Graph.Nodes,
		irtest.Node("Add", "add_w", []string{"", "x", "W"}, []string{"aw"}),
		irtest.Node("Add", "add_2", []string{"Y", "c_out"}, []string{"a2"}),
	)
	e := New(m)
	mul := nodeByName(e, "mul")

	assert.Equal(t, float32(2), e.ConstantValue("c_out").Data.([]float32)[0])
	assert.Equal(t, "W", e.ConstantValue("W").Name)
	assert.Nil(t, e.ConstantValue("x"))

	i, value := e.ConstantInput(nodeByName(e, "add_w"))
	assert.Equal(t, 2, i)
	assert.Equal(t, "W", value.Name)
	i, value = e.ConstantInput(nodeByName(e, "relu"))
	assert.Equal(t, NotFound, i)
	assert.Nil(t, value)

	assert.Equal(t, 1, e.FindConstantInput(mul, 2.0, DefaultDelta))
	assert.Equal(t, NotFound, e.FindConstantInput(mul, 2.01, DefaultDelta))
	assert.True(t, e.HasConstantInput(nodeByName(e, "add_2"), 2.0, DefaultDelta))
	assert.False(t, e.HasConstantInput(nodeByName(e, "add_2"), 2.0, 0))
	// Non-scalar constants never match.
	assert.Equal(t, NotFound, e.FindConstantInput(nodeByName(e, "add_w"), 0, DefaultDelta))

	assert.True(t, e.IsConstantWithDimensions("W", 2, "weight"))
	assert.False(t, e.IsConstantWithDimensions("W", 1, "weight"))
	assert.True(t, e.IsConstantWithDimensions("c_out", 0, "scale"))
	assert.False(t, e.IsConstantWithDimensions("x", 2, "input"))
}

func TestTopologicalSort(t *testing.T) {
	m := chainModel()
	g := m.Graph
	// Shuffle to mul, relu, c, add, mm.
	g.Nodes = []*ir.Node{g.Nodes[4], g.Nodes[2], g.Nodes[3], g.Nodes[1], g.Nodes[0]}
	e := New(m)
	e.TopologicalSort()
	assert.Equal(t, []string{"c", "mm", "add", "relu", "mul"}, irtest.Names(g.Nodes))
	e.TopologicalSort()
	assert.Equal(t, []string{"c", "mm", "add", "relu", "mul"}, irtest.Names(g.Nodes))
}

func TestTopologicalSortNotDAG(t *testing.T) {
	cycle := irtest.Graph("cycle",
		irtest.Node("Relu", "a", []string{"x", "b_out"}, []string{"a_out"}),
		irtest.Node("Relu", "b", []string{"a_out"}, []string{"b_out"}),
		irtest.Node("Neg", "free", []string{"x"}, []string{"free_out"}),
	)
	cycle.Inputs = []*ir.ValueInfo{irtest.FloatInput("x", 1)}
	err := exceptions.TryCatch[error](func() { GraphTopologicalSort(cycle) })
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotDAG))
	assert.ErrorContains(t, err, "sorted only 1 of 3")
	assert.Equal(t, []string{"a", "b", "free"}, irtest.Names(cycle.Nodes))

	// A value nothing produces.
	dangling := irtest.Graph("dangling", irtest.Node("Relu", "a", []string{"ghost"}, []string{"a_out"}))
	err = exceptions.TryCatch[error](func() { GraphTopologicalSort(dangling) })
	assert.True(t, errors.Is(err, ErrNotDAG))

	// Omitted inputs are not dependencies.
	optional := irtest.Graph("optional", irtest.Node("Clip", "clip", []string{"x", "", ""}, []string{"y"}))
	optional.Inputs = []*ir.ValueInfo{irtest.FloatInput("x", 1)}
	require.NoError(t, exceptions.TryCatch[error](func() { GraphTopologicalSort(optional) }))
}

// Sorting random DAGs: every producer comes before its consumers, and sorting again keeps the order.
func TestTopologicalSortProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	properties.Property("sorted and idempotent", prop.ForAll(
		func(seed uint64, numNodes int) bool {
			e := New(irtest.RandomDAG(seed, numNodes))
			g := e.Graph()
			e.TopologicalSort()
			position := make(map[string]int)
			for ii, n := range g.Nodes {
				for _, output := range n.Outputs {
					position[output] = ii
				}
			}
			for ii, n := range g.Nodes {
				for _, input := range n.Inputs {
					if producerPos, found := position[input]; found && producerPos >= ii {
						return false
					}
				}
			}
			first := irtest.Names(g.Nodes)
			e.TopologicalSort()
			return len(first) == numNodes && slices.Equal(first, irtest.Names(g.Nodes))
		},
		gen.UInt64(), gen.IntRange(0, 60),
	))
	properties.TestingRun(t)
}

func TestSaveModelToFile(t *testing.T) {
	m := chainModel()
	g := m.Graph
	g.Nodes = []*ir.Node{g.Nodes[4], g.Nodes[2], g.Nodes[3], g.Nodes[1], g.Nodes[0]}
	e := New(m)
	path := filepath.Join(t.TempDir(), "a", "b", "model.onnx")
	require.NoError(t, e.SaveModelToFile(path, false))
	loaded := must.M1(onnxio.Load(path))
	assert.Equal(t, []string{"c", "mm", "add", "relu", "mul"}, irtest.Names(loaded.Graph.Nodes))
	_, err := os.Stat(path + ".data")
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, e.SaveModelToFile(path, true))
	_, err = os.Stat(path + ".data")
	require.NoError(t, err)
	loaded = must.M1(onnxio.Load(path))
	assert.Equal(t, []float32{0, 0, 0, 0, 0, 0, 0, 0}, loaded.Graph.Initializer("W").Data)

	// Parent "directory" is a file.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	require.Error(t, e.SaveModelToFile(filepath.Join(blocker, "model.onnx"), false))
}

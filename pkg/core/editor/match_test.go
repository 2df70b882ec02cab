// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package editor

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/onnxir/pkg/core/ir"
	"github.com/gomlx/onnxir/pkg/core/ir/irtest"
	"github.com/gomlx/onnxir/pkg/support/sets"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParentsAndChildren(t *testing.T) {
	e := New(chainModel())
	idx := e.Index()
	mul := nodeByName(e, "mul")
	assert.Equal(t, "relu", e.Parent(mul, 0, idx).Name)
	assert.Equal(t, "c", e.Parent(mul, 1, nil).Name)
	assert.Nil(t, e.Parent(mul, 2, idx))
	assert.Nil(t, e.Parent(nodeByName(e, "mm"), 0, idx))
	assert.Equal(t, []string{"relu", "c"}, irtest.Names(e.Parents(mul, idx)))
	assert.Equal(t, []string{"add"}, irtest.Names(e.Children(nodeByName(e, "mm"), idx)))
	assert.Empty(t, e.Children(mul, idx))
	assert.Equal(t, 1, InputIndex("c_out", mul))
	assert.Equal(t, -1, InputIndex("x", mul))
}

func TestMatchParent(t *testing.T) {
	e := New(chainModel())
	idx := e.Index()
	mul := nodeByName(e, "mul")

	parent, i := e.MatchFirstParent(mul, ir.OpConstant, idx, nil)
	assert.Equal(t, "c", parent.Name)
	assert.Equal(t, 1, i)
	parent, i = e.MatchFirstParent(mul, ir.OpConstant, idx, sets.MakeWith(parent))
	assert.Nil(t, parent)
	assert.Equal(t, -1, i)

	assert.Equal(t, "relu", e.MatchParent(mul, "Relu", 0, idx, nil, nil).Name)
	assert.Nil(t, e.MatchParent(mul, "Relu", 1, idx, nil, nil))
	assert.Nil(t, e.MatchParent(mul, "Relu", 5, idx, nil, nil))
	assert.Nil(t, e.MatchParent(mul, "Relu", 0, idx, sets.MakeWith(nodeByName(e, "relu")), nil))

	var indices []int
	assert.Equal(t, "c", e.MatchParent(mul, ir.OpConstant, AnyInput, idx, nil, &indices).Name)
	assert.Nil(t, e.MatchParent(mul, "Softmax", AnyInput, idx, nil, &indices))
	assert.Equal(t, []int{1, -1}, indices)

	require.Error(t, exceptions.TryCatch[error](func() { e.MatchParent(mul, "Relu", -2, idx, nil, nil) }))
	require.Error(t, exceptions.TryCatch[error](func() { e.MatchParent(nil, "Relu", 0, idx, nil, nil) }))
}

func TestMatchParentPath(t *testing.T) {
	e := New(chainModel())
	idx := e.Index()
	mul := nodeByName(e, "mul")

	path := e.MatchParentPath(mul, []string{"Relu", "Add", "MatMul"}, []int{0, 0, 0}, idx, nil)
	assert.Equal(t, []string{"relu", "add", "mm"}, irtest.Names(path))

	var indices []int
	path = e.MatchParentPath(mul, []string{"Relu", "Add"}, []int{AnyInput, AnyInput}, nil, &indices)
	assert.Equal(t, []string{"relu", "add"}, irtest.Names(path))
	assert.Equal(t, []int{0, 0}, indices)

	// No partial matches.
	assert.Nil(t, e.MatchParentPath(mul, []string{"Relu", "Sub", "MatMul"}, []int{0, 0, 0}, idx, nil))
	assert.Nil(t, e.MatchParentPath(mul, []string{"Relu", "Add", "MatMul"}, []int{0, 1, 0}, idx, nil))

	require.Error(t, exceptions.TryCatch[error](func() {
		e.MatchParentPath(mul, []string{"Relu", "Add"}, []int{0}, idx, nil)
	}))

	i, nodes, indices := e.MatchParentPaths(mul, []ParentPath{
		{OpTypes: []string{"Relu", "Sub"}, InputIndices: []int{0, 0}},
		{OpTypes: []string{"Relu", "Add"}, InputIndices: []int{0, AnyInput}},
	}, idx)
	assert.Equal(t, 1, i)
	assert.Equal(t, []string{"relu", "add"}, irtest.Names(nodes))
	assert.Equal(t, []int{0}, indices)

	i, nodes, _ = e.MatchParentPaths(mul, []ParentPath{{OpTypes: []string{"Gelu"}, InputIndices: []int{0}}}, idx)
	assert.Equal(t, -1, i)
	assert.Nil(t, nodes)
}

// On a chain of n Relu nodes, a path of k Relu hops from the last one matches iff k < n, and
// replacing any hop's operator type with one not in the graph makes the whole match fail.
func TestMatchParentPathProperty(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())
	properties.Property("all or nothing", prop.ForAll(
		func(chainLength, pathLength, badHop int) bool {
			g := irtest.Graph("chain")
			previous := "x"
			for ii := range chainLength {
				output := "r" + string(rune('a'+ii))
				g.Nodes = append(g.Nodes, irtest.Node("Relu", output, []string{previous}, []string{output}))
				previous = output
			}
			e := New(irtest.Model(g))
			last := g.Nodes[len(g.Nodes)-1]
			opTypes := make([]string, pathLength)
			indices := make([]int, pathLength)
			for ii := range opTypes {
				opTypes[ii] = "Relu"
			}
			matched := e.MatchParentPath(last, opTypes, indices, nil, nil)
			if (pathLength < chainLength) != (len(matched) == pathLength) {
				return false
			}
			opTypes[badHop%pathLength] = "Gelu"
			return e.MatchParentPath(last, opTypes, indices, nil, nil) == nil
		},
		gen.IntRange(1, 20), gen.IntRange(1, 25), gen.IntRange(0, 100),
	))
	properties.TestingRun(t)
}

func TestFindFirstByType(t *testing.T) {
	e := New(chainModel())
	idx := e.Index()
	mm, mul := nodeByName(e, "mm"), nodeByName(e, "mul")
	assert.Equal(t, "mul", e.FindFirstChildByType(mm, "Mul", idx, true).Name)
	assert.Nil(t, e.FindFirstChildByType(mm, "Mul", idx, false))
	assert.Equal(t, "add", e.FindFirstChildByType(mm, "Add", idx, false).Name)
	assert.Equal(t, "mm", e.FindFirstParentByType(mul, "MatMul", idx, true).Name)
	assert.Nil(t, e.FindFirstParentByType(mul, "MatMul", idx, false))
	assert.Nil(t, e.FindFirstParentByType(mul, "Softmax", idx, true))
}

func TestSubgraphNodes(t *testing.T) {
	e := New(chainModel())
	idx := e.Index()
	mm, mul := nodeByName(e, "mm"), nodeByName(e, "mul")
	assert.Equal(t, []string{"add", "relu", "mul"}, irtest.Names(e.ChildrenSubgraphNodes(mm, nil, idx)))
	assert.Equal(t, []string{"add"}, irtest.Names(e.ChildrenSubgraphNodes(mm, sets.MakeWith(nodeByName(e, "relu")), idx)))

	// Initial parents are visited last to first.
	assert.Equal(t, []string{"c", "relu", "add", "mm"}, irtest.Names(e.ParentSubgraphNodes(mul, nil, idx)))
	assert.Equal(t, []string{"c", "relu"}, irtest.Names(e.ParentSubgraphNodes(mul, sets.MakeWith(nodeByName(e, "add")), nil)))

	assert.Empty(t, e.GraphInputsOf(mul, false))
	assert.Equal(t, []string{"B", "x"}, e.GraphInputsOf(mul, true))
	assert.Equal(t, []string{"x"}, e.GraphInputsOf(mm, false))
}

func TestSubgraphNodesDiamond(t *testing.T) {
	// x -> a -> {b, c} -> d: every node is listed once.
	g := irtest.Graph("diamond",
		irtest.Node("Relu", "a", []string{"x"}, []string{"a"}),
		irtest.Node("Neg", "b", []string{"a"}, []string{"b"}),
		irtest.Node("Abs", "c", []string{"a"}, []string{"c"}),
		irtest.Node("Add", "d", []string{"b", "c"}, []string{"d"}),
	)
	e := New(irtest.Model(g))
	a, d := g.Nodes[0], g.Nodes[3]
	assert.Equal(t, []string{"c", "b", "a"}, irtest.Names(e.ParentSubgraphNodes(d, nil, nil)))
	assert.Equal(t, []string{"c", "b", "d"}, irtest.Names(e.ChildrenSubgraphNodes(a, nil, nil)))
}

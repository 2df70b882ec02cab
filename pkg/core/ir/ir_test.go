// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestDataType(t *testing.T) {
	assert.Equal(t, "FLOAT16", DataTypeFloat16.String())
	assert.Equal(t, DataTypeBFloat16, DataTypeFromString("BFLOAT16"))
	assert.Equal(t, DataTypeUndefined, DataTypeFromString("float17"))
	assert.Equal(t, dtypes.Float32, DataTypeFloat.DType())
	assert.Equal(t, dtypes.InvalidDType, DataTypeString.DType())
	assert.Equal(t, DataTypeDouble, DataTypeFromDType(dtypes.Float64))
	assert.True(t, DataTypeBFloat16.IsFloat())
	assert.False(t, DataTypeInt64.IsFloat())
}

func TestTensor(t *testing.T) {
	tensor := NewTensor("w", []int64{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	assert.Equal(t, DataTypeFloat, tensor.DataType)
	assert.Equal(t, 6, tensor.Size())
	assert.Equal(t, 2, tensor.Rank())
	assert.False(t, tensor.IsScalar())
	assert.Equal(t, 4.0, tensor.Float64At(3))
	assert.Equal(t, 24, tensor.MemoryBytes())

	clone := tensor.Clone()
	clone.Data.([]float32)[0] = 100
	assert.Equal(t, 1.0, tensor.Float64At(0))

	scalar := ScalarTensor("half", float16.Fromfloat32(0.5))
	assert.Equal(t, DataTypeFloat16, scalar.DataType)
	assert.True(t, scalar.IsScalar())
	assert.Equal(t, 0, scalar.Rank())
	assert.InDelta(t, 0.5, scalar.Float64At(0), 1e-6)

	// Mismatched number of elements is a bug in the caller.
	err := exceptions.TryCatch[error](func() { NewTensor("bad", []int64{3}, []int64{1, 2}) })
	require.Error(t, err)

	// Negative or overflowing dimensions.
	err = exceptions.TryCatch[error](func() { NewTensor("neg", []int64{-1, -1}, []int64{1}) })
	require.Error(t, err)
	err = exceptions.TryCatch[error](func() { NewTensor("huge", []int64{1 << 32, 1 << 32}, []int64{}) })
	require.Error(t, err)

	// Strings have no numeric value.
	err = exceptions.TryCatch[error](func() { ScalarTensor("s", "text").Float64At(0) })
	require.Error(t, err)
}

func TestNode(t *testing.T) {
	body := NewGraph("then")
	n := NewNode(OpIf, []string{"cond"}, []string{"out"}, GraphAttr("then_branch", body), IntAttr("k", 3))
	assert.True(t, n.HasSubGraphs())
	assert.Equal(t, []*Graph{body}, n.SubGraphs())
	assert.Equal(t, int64(3), n.Attribute("k").I)
	assert.Nil(t, n.Attribute("missing"))

	n.SetAttribute(IntAttr("k", 5))
	assert.Len(t, n.Attributes, 2)
	assert.Equal(t, int64(5), n.Attribute("k").I)

	add := NewNode("Add", []string{"a", ""}, []string{"c"})
	assert.False(t, add.HasSubGraphs())
	assert.Equal(t, `Add(""): [a, ] -> [c]`, add.String())

	err := exceptions.TryCatch[error](func() { NewNode("Add", []string{"a"}, []string{""}) })
	require.Error(t, err)
}

func TestValueInfoShapeList(t *testing.T) {
	vi := NewValueInfo("x", DataTypeFloat, DimParam("batch"), DimValue(128), Dim{})
	assert.Equal(t, []any{"batch", int64(128), "?"}, vi.ShapeList())
	assert.Equal(t, "x:FLOAT[batch, 128, ?]", vi.String())

	clone := vi.Clone()
	clone.Shape[1] = DimValue(3)
	assert.Equal(t, int64(128), vi.Shape[1].Value)
}

func TestAttributeType(t *testing.T) {
	assert.Equal(t, "GRAPHS", AttributeGraphs.String())
	assert.Equal(t, AttributeInts, AttributeTypeFromString("INTS"))
	assert.Equal(t, AttributeUndefined, AttributeTypeFromString("nope"))
	g1, g2 := NewGraph("a"), NewGraph("b")
	assert.Equal(t, []*Graph{g1, g2}, GraphsAttr("branches", g1, g2).SubGraphs())
	assert.Nil(t, IntAttr("i", 1).SubGraphs())
}

func TestCheckDims(t *testing.T) {
	require.NoError(t, CheckDims(nil))
	require.NoError(t, CheckDims([]int64{2, 0, 1 << 40}))
	require.NoError(t, CheckDims([]int64{1 << 31, 1 << 31}))
	require.Error(t, CheckDims([]int64{3, -1}))
	require.Error(t, CheckDims([]int64{1 << 32, 1 << 32}))
	require.Error(t, CheckDims([]int64{1 << 62, 4}))
}

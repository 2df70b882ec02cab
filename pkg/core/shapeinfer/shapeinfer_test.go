// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeinfer

import (
	"testing"

	"github.com/gomlx/onnxir/pkg/core/editor"
	"github.com/gomlx/onnxir/pkg/core/ir"
	"github.com/gomlx/onnxir/pkg/core/ir/irtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildModel() *ir.Model {
	// Nodes in reverse order, to exercise propagation over unsorted graphs.
	g := irtest.Graph("main",
		irtest.Node("Gather", "gather", []string{"half", "idx"}, []string{"gathered"}),
		irtest.Node("Cast", "cast", []string{"sum"}, []string{"half"}, ir.IntAttr("to", int64(ir.DataTypeFloat16))),
		irtest.Node("Add", "add", []string{"relu_out", "bias"}, []string{"sum"}),
		irtest.Node("Relu", "relu", []string{"x"}, []string{"relu_out"}),
		irtest.ScalarConstant("c", "c_out", 1),
	)
	g.Inputs = []*ir.ValueInfo{ir.NewValueInfo("x", ir.DataTypeFloat, ir.DimParam("batch"), ir.DimValue(4))}
	g.ValueInfos = []*ir.ValueInfo{ir.NewValueInfo("bias", ir.DataTypeFloat, ir.DimParam("batch"), ir.DimValue(4))}
	g.Initializers = []*ir.Tensor{ir.NewTensor("idx", []int64{2}, []int64{0, 1})}
	g.Outputs = []*ir.ValueInfo{ir.NewValueInfo("gathered", ir.DataTypeFloat16)}
	return irtest.Model(g)
}

func TestDeclared(t *testing.T) {
	shapes, err := Declared{}.InferShapes(buildModel(), map[string]int64{"batch": 8})
	require.NoError(t, err)

	assert.Equal(t, []any{int64(8), int64(4)}, shapes["x"].ShapeList())
	assert.Equal(t, "relu_out:FLOAT[8, 4]", shapes["relu_out"].String())
	assert.Equal(t, ir.DataTypeFloat, shapes["sum"].ElemType)
	assert.Equal(t, ir.DataTypeFloat16, shapes["half"].ElemType)
	assert.Equal(t, []any{int64(8), int64(4)}, shapes["half"].ShapeList())
	assert.Equal(t, []any{int64(2)}, shapes["idx"].ShapeList())
	assert.Equal(t, ir.DataTypeFloat, shapes["c_out"].ElemType)
	assert.Empty(t, shapes["c_out"].Shape)

	// Declared outputs are taken as given.
	assert.Equal(t, ir.DataTypeFloat16, shapes["gathered"].ElemType)

	// The model is not changed.
	assert.Equal(t, []any{"batch", int64(4)}, buildModel().Graph.Inputs[0].ShapeList())
}

func TestDeclaredSymbolic(t *testing.T) {
	shapes, err := Declared{}.InferShapes(buildModel(), nil)
	require.NoError(t, err)
	// Equal symbolic shapes are enough for elementwise ops.
	assert.Equal(t, []any{"batch", int64(4)}, shapes["sum"].ShapeList())

	// Mismatched shapes stop propagation.
	m := buildModel()
	m.Graph.ValueInfos[0] = ir.NewValueInfo("bias", ir.DataTypeFloat, ir.DimValue(4))
	shapes, err = Declared{}.InferShapes(m, nil)
	require.NoError(t, err)
	assert.NotContains(t, shapes, "sum")
	assert.NotContains(t, shapes, "half")
}

func TestDeclaredErrors(t *testing.T) {
	_, err := Declared{}.InferShapes(buildModel(), map[string]int64{"batch": 0})
	require.Error(t, err)

	m := buildModel()
	m.Graph.Outputs = nil
	_, err = Declared{Strict: true}.InferShapes(m, nil)
	require.ErrorContains(t, err, "gathered")
}

func TestInferRuntimeShape(t *testing.T) {
	m := buildModel()
	e := editor.New(m)
	shapes := e.InferRuntimeShape(Declared{}, map[string]int64{"batch": 2})
	require.NotNil(t, shapes)
	assert.Equal(t, []any{int64(2), int64(4)}, shapes["sum"].ShapeList())

	// Failures are logged and reported as unknown shapes.
	m.Graph.Outputs = nil
	assert.Nil(t, e.InferRuntimeShape(Declared{Strict: true}, nil))
}

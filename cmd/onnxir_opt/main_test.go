// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/onnxir/pkg/core/ir"
	"github.com/gomlx/onnxir/pkg/core/ir/irtest"
	"github.com/gomlx/onnxir/pkg/core/onnxio"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModel() *ir.Model {
	g := irtest.Graph("main",
		irtest.Node("Mul", "mul", []string{"relu_out", "W"}, []string{"Y"}),
		irtest.Node("Relu", "relu", []string{"X"}, []string{"relu_out"}),
		irtest.Node("Neg", "unused", []string{"X"}, []string{"neg_out"}),
	)
	g.Inputs = []*ir.ValueInfo{irtest.FloatInput("X", 2)}
	g.Outputs = []*ir.ValueInfo{irtest.FloatInput("Y", 2)}
	g.Initializers = []*ir.Tensor{
		ir.NewTensor("W", []int64{2}, []float32{1, 2}),
		ir.NewTensor("dangling", []int64{1}, []float32{3}),
	}
	return irtest.Model(g)
}

func setFlag(t *testing.T, flagPtr *bool, value bool) {
	previous := *flagPtr
	*flagPtr = value
	t.Cleanup(func() { *flagPtr = previous })
}

func TestOutputPathFor(t *testing.T) {
	assert.Equal(t, filepath.Join("models", "a_opt.onnx"), outputPathFor(filepath.Join("models", "a.onnx")))
	assert.Equal(t, "b_opt.onnx.zst", outputPathFor("b.onnx.zst"))
	assert.Equal(t, "c_opt.yaml", outputPathFor("c.yaml"))

	*flagOutputDir = "out"
	defer func() { *flagOutputDir = "" }()
	assert.Equal(t, filepath.Join("out", "a_opt.onnx"), outputPathFor(filepath.Join("models", "a.onnx")))
}

func TestExpandInputs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.onnx", "sub/b.onnx", "sub/c.yaml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, nil, 0o644))
	}
	inputs, err := expandInputs([]string{filepath.Join(dir, "**", "*.onnx"), filepath.Join(dir, "a.onnx")})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(dir, "a.onnx"), filepath.Join(dir, "sub", "b.onnx")}, inputs)

	_, err = expandInputs([]string{filepath.Join(dir, "*.pb")})
	require.Error(t, err)
}

func TestOptimize(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "model.onnx")
	require.NoError(t, onnxio.Save(testModel(), input, onnxio.SaveOptions{}))
	setFlag(t, flagFP16, true)
	*flagOutputs = "Y"
	defer func() { *flagOutputs = "" }()

	output := outputPathFor(input)
	r, err := optimize(input, output)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Before.Nodes)
	assert.Equal(t, 2, r.Before.Initializers)
	assert.Equal(t, "float16", r.Precision)
	// Pruned node and unused initializer removed, and one Cast added on each side.
	assert.Equal(t, 4, r.After.Nodes)
	assert.Equal(t, 2, r.After.OpTypes["Cast"])
	assert.Equal(t, 1, r.After.Initializers)

	m := must.M1(onnxio.Load(output))
	assert.Equal(t, ir.DataTypeFloat16, m.Graph.Initializer("W").DataType)
	assert.Equal(t, ir.DataTypeFloat, m.Graph.Inputs[0].ElemType)
	assert.Equal(t, "Cast", m.Graph.Nodes[0].OpType)

	// Outputs are not overwritten by default.
	_, err = optimize(input, output)
	require.ErrorContains(t, err, "already exists")
	setFlag(t, flagOverwrite, true)
	_, err = optimize(input, output)
	require.NoError(t, err)
}

func TestOptimizeMissingOutput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "model.onnx")
	require.NoError(t, onnxio.Save(testModel(), input, onnxio.SaveOptions{}))
	*flagOutputs = "Z"
	defer func() { *flagOutputs = "" }()
	_, err := optimize(input, outputPathFor(input))
	require.Error(t, err)
}

func TestOptimizeMalformedModel(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "model.onnx")
	require.NoError(t, os.WriteFile(input, []byte{0xff}, 0o644))
	_, err := optimize(input, outputPathFor(input))
	require.Error(t, err)
}

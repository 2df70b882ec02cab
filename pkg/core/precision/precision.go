// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package precision converts float32 models to a reduced precision floating point type (float16 or
// bfloat16), editing them through an editor.Editor.
package precision

import (
	"slices"
	"strings"

	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/gomlx/onnxir/pkg/core/editor"
	"github.com/gomlx/onnxir/pkg/core/ir"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
	"k8s.io/klog/v2"
)

// Target is the reduced precision type float32 values are converted to.
type Target int

const (
	Float16 Target = iota
	BFloat16
)

// DataType of the target.
func (t Target) DataType() ir.DataType {
	if t == BFloat16 {
		return ir.DataTypeBFloat16
	}
	return ir.DataTypeFloat16
}

// Suffix appended to the names of values converted at the graph boundaries, e.g. "_float16".
func (t Target) Suffix() string {
	return "_" + strings.ToLower(t.DataType().String())
}

// String implements fmt.Stringer.
func (t Target) String() string {
	return strings.ToLower(t.DataType().String())
}

// TargetFromString parses "float16" or "bfloat16" (case-insensitive).
func TargetFromString(name string) (Target, error) {
	switch strings.ToLower(name) {
	case "float16", "fp16":
		return Float16, nil
	case "bfloat16", "bf16":
		return BFloat16, nil
	}
	return Float16, errors.Errorf("unknown precision target %q, valid values are \"float16\" and \"bfloat16\"", name)
}

// Converter is an external, shape and type aware, converter: it decides which nodes can run in reduced
// precision and returns the converted model.
type Converter interface {
	Convert(model *ir.Model, keepIOTypes bool) (*ir.Model, error)
}

// Options for ConvertFloat32.
type Options struct {
	// KeepIOTypes keeps the declared element types of the graph inputs and outputs, splicing Cast nodes
	// at the boundaries instead.
	KeepIOTypes bool

	// Target type, Float16 by default.
	Target Target

	// Converter, if set, takes over the whole conversion.
	Converter Converter
}

// ConvertFloat32 converts the float32 values of the primary graph to opts.Target.
//
// Without a Converter, the conversion is:
//
//   - float32 initializers and the "value" of Constant and ConstantOfShape nodes are down-cast in place;
//   - Cast nodes to FLOAT cast to the target instead;
//   - value_info annotations of internal FLOAT values are changed to the target;
//   - if KeepIOTypes is false, FLOAT graph inputs and outputs change their element type.
//     Otherwise a Cast node converts each FLOAT input X to X<suffix> (e.g. "X_float16") for its consumers,
//     and each FLOAT output Y is produced as Y<suffix> and cast back to FLOAT. Inputs that are also
//     initializers (older exporters declare them) only change their declared type, and outputs that are
//     also graph inputs are left untouched.
//
// The editor's index is rebuilt at the end.
func ConvertFloat32(e *editor.Editor, opts Options) error {
	if opts.Converter != nil {
		converted, err := opts.Converter.Convert(e.Model(), opts.KeepIOTypes)
		if err != nil {
			return errors.WithMessagef(err, "converting model to %s", opts.Target)
		}
		e.SetModel(converted)
		return nil
	}

	target := opts.Target
	g := e.Graph()
	numTensors := 0
	for ii, t := range g.Initializers {
		if t.DataType == ir.DataTypeFloat {
			g.Initializers[ii] = downcastTensor(t, target)
			numTensors++
		}
	}
	numCasts := 0
	for _, node := range g.Nodes {
		switch node.OpType {
		case ir.OpConstant, "ConstantOfShape":
			if attr := node.Attribute("value"); attr != nil && attr.T != nil && attr.T.DataType == ir.DataTypeFloat {
				attr.T = downcastTensor(attr.T, target)
				numTensors++
			}
		case "Cast":
			if attr := node.Attribute("to"); attr != nil && attr.I == int64(ir.DataTypeFloat) {
				attr.I = int64(target.DataType())
				numCasts++
			}
		}
	}

	boundary := slices.Concat(g.InputNames(), g.OutputNames())
	for _, vi := range g.ValueInfos {
		if vi.ElemType == ir.DataTypeFloat && !slices.Contains(boundary, vi.Name) {
			vi.ElemType = target.DataType()
		}
	}

	if opts.KeepIOTypes {
		castBoundaries(e, target)
	} else {
		for _, vi := range slices.Concat(g.Inputs, g.Outputs) {
			if vi.ElemType == ir.DataTypeFloat {
				vi.ElemType = target.DataType()
			}
		}
	}
	e.RebuildIndex()
	klog.V(1).Infof("converted %d tensors and %d Cast nodes to %s (keep I/O types=%v)",
		numTensors, numCasts, target, opts.KeepIOTypes)
	return nil
}

func castBoundaries(e *editor.Editor, target Target) {
	g := e.Graph()
	for _, input := range g.Inputs {
		if input.ElemType != ir.DataTypeFloat {
			continue
		}
		if g.Initializer(input.Name) != nil {
			input.ElemType = target.DataType()
			continue
		}
		converted := input.Name + target.Suffix()
		e.ReplaceInputOfAllNodes(input.Name, converted)
		e.AddNode(castNode(e, input.Name, converted, target.DataType()), "")
	}
	for _, output := range g.Outputs {
		// Inputs passed through as outputs keep their float32 value.
		if output.ElemType != ir.DataTypeFloat || g.Input(output.Name) != nil {
			continue
		}
		converted := output.Name + target.Suffix()
		e.ReplaceOutputOfAllNodes(output.Name, converted)
		e.ReplaceInputOfAllNodes(output.Name, converted)
		e.AddNode(castNode(e, converted, output.Name, ir.DataTypeFloat), "")
	}
}

func castNode(e *editor.Editor, input, output string, to ir.DataType) *ir.Node {
	return ir.NewNode("Cast", []string{input}, []string{output}, ir.IntAttr("to", int64(to))).
		WithName(e.CreateNodeName("Cast", ""))
}

// castFloats converts a slice of floats element by element.
func castFloats[From constraints.Float, To any](data []From, convert func(float32) To) []To {
	converted := make([]To, len(data))
	for ii, v := range data {
		converted[ii] = convert(float32(v))
	}
	return converted
}

// downcastTensor returns a copy of the float32 tensor t converted to target.
func downcastTensor(t *ir.Tensor, target Target) *ir.Tensor {
	converted := *t
	converted.Dims = slices.Clone(t.Dims)
	data := t.Data.([]float32)
	if target == BFloat16 {
		converted.DataType = ir.DataTypeBFloat16
		converted.Data = castFloats(data, bfloat16.FromFloat32)
	} else {
		converted.DataType = ir.DataTypeFloat16
		converted.Data = castFloats(data, float16.Fromfloat32)
	}
	return &converted
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package onnxio

import (
	"strconv"

	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/gomlx/onnxir/pkg/core/ir"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
	"gopkg.in/yaml.v3"
)

// The text form mirrors the IR with YAML friendly types: enums by name, shapes as lists of strings
// and tensor values in one list per value kind.

type textModel struct {
	IRVersion       int64             `yaml:"ir_version,omitempty"`
	OpsetImports    []textOpset       `yaml:"opset_import,omitempty"`
	ProducerName    string            `yaml:"producer_name,omitempty"`
	ProducerVersion string            `yaml:"producer_version,omitempty"`
	Domain          string            `yaml:"domain,omitempty"`
	ModelVersion    int64             `yaml:"model_version,omitempty"`
	DocString       string            `yaml:"doc_string,omitempty"`
	MetadataProps   map[string]string `yaml:"metadata_props,omitempty"`
	Graph           *textGraph        `yaml:"graph"`
}

type textOpset struct {
	Domain  string `yaml:"domain"`
	Version int64  `yaml:"version"`
}

type textGraph struct {
	Name         string          `yaml:"name,omitempty"`
	DocString    string          `yaml:"doc_string,omitempty"`
	Inputs       []textValueInfo `yaml:"inputs,omitempty"`
	Outputs      []textValueInfo `yaml:"outputs,omitempty"`
	ValueInfos   []textValueInfo `yaml:"value_info,omitempty"`
	Initializers []textTensor    `yaml:"initializers,omitempty"`
	Nodes        []textNode      `yaml:"nodes,omitempty"`
}

type textValueInfo struct {
	Name      string   `yaml:"name"`
	ElemType  string   `yaml:"elem_type"`
	Shape     []string `yaml:"shape,flow,omitempty"`
	DocString string   `yaml:"doc_string,omitempty"`
}

type textNode struct {
	Name       string          `yaml:"name,omitempty"`
	OpType     string          `yaml:"op_type"`
	Domain     string          `yaml:"domain,omitempty"`
	Inputs     []string        `yaml:"inputs,flow,omitempty"`
	Outputs    []string        `yaml:"outputs,flow"`
	Attributes []textAttribute `yaml:"attributes,omitempty"`
	DocString  string          `yaml:"doc_string,omitempty"`
}

type textAttribute struct {
	Name      string       `yaml:"name"`
	Type      string       `yaml:"type"`
	F         float32      `yaml:"f,omitempty"`
	I         int64        `yaml:"i,omitempty"`
	S         string       `yaml:"s,omitempty"`
	T         *textTensor  `yaml:"t,omitempty"`
	G         *textGraph   `yaml:"g,omitempty"`
	Floats    []float32    `yaml:"floats,flow,omitempty"`
	Ints      []int64      `yaml:"ints,flow,omitempty"`
	Strings   []string     `yaml:"strings,flow,omitempty"`
	Tensors   []textTensor `yaml:"tensors,omitempty"`
	Graphs    []textGraph  `yaml:"graphs,omitempty"`
	DocString string       `yaml:"doc_string,omitempty"`
}

// textTensor holds the values in exactly one of the lists, depending on the data type. Complex numbers
// are stored as interleaved real and imaginary parts in Floats.
type textTensor struct {
	Name      string    `yaml:"name,omitempty"`
	DataType  string    `yaml:"data_type"`
	Dims      []int64   `yaml:"dims,flow,omitempty"`
	Floats    []float64 `yaml:"floats,flow,omitempty"`
	Ints      []int64   `yaml:"ints,flow,omitempty"`
	Uints     []uint64  `yaml:"uints,flow,omitempty"`
	Bools     []bool    `yaml:"bools,flow,omitempty"`
	Strings   []string  `yaml:"strings,flow,omitempty"`
	DocString string    `yaml:"doc_string,omitempty"`
}

// MarshalText returns the YAML text form of the model.
func MarshalText(m *ir.Model) ([]byte, error) {
	if m.Graph == nil {
		return nil, errors.New("onnxio.MarshalText: model has no graph")
	}
	tm := &textModel{
		IRVersion:       m.IRVersion,
		ProducerName:    m.ProducerName,
		ProducerVersion: m.ProducerVersion,
		Domain:          m.Domain,
		ModelVersion:    m.ModelVersion,
		DocString:       m.DocString,
		MetadataProps:   m.MetadataProps,
	}
	for _, opset := range m.OpsetImports {
		tm.OpsetImports = append(tm.OpsetImports, textOpset(opset))
	}
	var err error
	tm.Graph, err = graphToText(m.Graph)
	if err != nil {
		return nil, errors.WithMessage(err, "onnxio.MarshalText")
	}
	data, err := yaml.Marshal(tm)
	if err != nil {
		return nil, errors.Wrap(err, "onnxio.MarshalText")
	}
	return data, nil
}

// UnmarshalText parses the YAML text form of a model.
func UnmarshalText(data []byte) (*ir.Model, error) {
	var tm textModel
	if err := yaml.Unmarshal(data, &tm); err != nil {
		return nil, errors.Wrap(err, "onnxio.UnmarshalText")
	}
	if tm.Graph == nil {
		return nil, errors.New("onnxio.UnmarshalText: model has no graph")
	}
	m := &ir.Model{
		IRVersion:       tm.IRVersion,
		ProducerName:    tm.ProducerName,
		ProducerVersion: tm.ProducerVersion,
		Domain:          tm.Domain,
		ModelVersion:    tm.ModelVersion,
		DocString:       tm.DocString,
		MetadataProps:   tm.MetadataProps,
	}
	for _, opset := range tm.OpsetImports {
		m.OpsetImports = append(m.OpsetImports, ir.OperatorSetID(opset))
	}
	var err error
	m.Graph, err = graphFromText(tm.Graph)
	if err != nil {
		return nil, errors.WithMessage(err, "onnxio.UnmarshalText")
	}
	return m, nil
}

func graphToText(g *ir.Graph) (*textGraph, error) {
	tg := &textGraph{Name: g.Name, DocString: g.DocString}
	tg.Inputs = valueInfosToText(g.Inputs)
	tg.Outputs = valueInfosToText(g.Outputs)
	tg.ValueInfos = valueInfosToText(g.ValueInfos)
	for _, t := range g.Initializers {
		tt, err := tensorToText(t)
		if err != nil {
			return nil, err
		}
		tg.Initializers = append(tg.Initializers, *tt)
	}
	for _, n := range g.Nodes {
		tn := textNode{
			Name: n.Name, OpType: n.OpType, Domain: n.Domain,
			Inputs: n.Inputs, Outputs: n.Outputs, DocString: n.DocString,
		}
		for _, a := range n.Attributes {
			ta, err := attributeToText(a)
			if err != nil {
				return nil, errors.WithMessagef(err, "node %q", n.Name)
			}
			tn.Attributes = append(tn.Attributes, *ta)
		}
		tg.Nodes = append(tg.Nodes, tn)
	}
	return tg, nil
}

func graphFromText(tg *textGraph) (*ir.Graph, error) {
	g := &ir.Graph{Name: tg.Name, DocString: tg.DocString}
	var err error
	if g.Inputs, err = valueInfosFromText(tg.Inputs); err != nil {
		return nil, err
	}
	if g.Outputs, err = valueInfosFromText(tg.Outputs); err != nil {
		return nil, err
	}
	if g.ValueInfos, err = valueInfosFromText(tg.ValueInfos); err != nil {
		return nil, err
	}
	for ii := range tg.Initializers {
		t, err := tensorFromText(&tg.Initializers[ii])
		if err != nil {
			return nil, err
		}
		g.Initializers = append(g.Initializers, t)
	}
	for _, tn := range tg.Nodes {
		n := &ir.Node{
			Name: tn.Name, OpType: tn.OpType, Domain: tn.Domain,
			Inputs: tn.Inputs, Outputs: tn.Outputs, DocString: tn.DocString,
		}
		for ii := range tn.Attributes {
			a, err := attributeFromText(&tn.Attributes[ii])
			if err != nil {
				return nil, errors.WithMessagef(err, "node %q", tn.Name)
			}
			n.Attributes = append(n.Attributes, a)
		}
		g.Nodes = append(g.Nodes, n)
	}
	return g, nil
}

func valueInfosToText(infos []*ir.ValueInfo) []textValueInfo {
	var text []textValueInfo
	for _, vi := range infos {
		tvi := textValueInfo{Name: vi.Name, ElemType: vi.ElemType.String(), DocString: vi.DocString}
		for _, dim := range vi.Shape {
			tvi.Shape = append(tvi.Shape, dim.String())
		}
		text = append(text, tvi)
	}
	return text
}

func valueInfosFromText(text []textValueInfo) ([]*ir.ValueInfo, error) {
	var infos []*ir.ValueInfo
	for _, tvi := range text {
		vi := &ir.ValueInfo{Name: tvi.Name, DocString: tvi.DocString}
		if vi.ElemType = ir.DataTypeFromString(tvi.ElemType); vi.ElemType == ir.DataTypeUndefined && tvi.ElemType != "UNDEFINED" {
			return nil, errors.Errorf("value info %q: unknown elem_type %q", tvi.Name, tvi.ElemType)
		}
		for _, dim := range tvi.Shape {
			if dim == "?" {
				vi.Shape = append(vi.Shape, ir.Dim{})
			} else if value, err := strconv.ParseInt(dim, 10, 64); err == nil {
				vi.Shape = append(vi.Shape, ir.DimValue(value))
			} else {
				vi.Shape = append(vi.Shape, ir.DimParam(dim))
			}
		}
		infos = append(infos, vi)
	}
	return infos, nil
}

func attributeToText(a *ir.Attribute) (*textAttribute, error) {
	ta := &textAttribute{
		Name: a.Name, Type: a.Type.String(), DocString: a.DocString,
		F: a.F, I: a.I, S: a.S, Floats: a.Floats, Ints: a.Ints, Strings: a.Strings,
	}
	var err error
	if a.T != nil {
		if ta.T, err = tensorToText(a.T); err != nil {
			return nil, err
		}
	}
	if a.G != nil {
		if ta.G, err = graphToText(a.G); err != nil {
			return nil, err
		}
	}
	for _, t := range a.Tensors {
		tt, err := tensorToText(t)
		if err != nil {
			return nil, err
		}
		ta.Tensors = append(ta.Tensors, *tt)
	}
	for _, g := range a.Graphs {
		tg, err := graphToText(g)
		if err != nil {
			return nil, err
		}
		ta.Graphs = append(ta.Graphs, *tg)
	}
	return ta, nil
}

func attributeFromText(ta *textAttribute) (*ir.Attribute, error) {
	a := &ir.Attribute{
		Name: ta.Name, Type: ir.AttributeTypeFromString(ta.Type), DocString: ta.DocString,
		F: ta.F, I: ta.I, S: ta.S, Floats: ta.Floats, Ints: ta.Ints, Strings: ta.Strings,
	}
	if a.Type == ir.AttributeUndefined {
		return nil, errors.Errorf("attribute %q: unknown type %q", ta.Name, ta.Type)
	}
	var err error
	if ta.T != nil {
		if a.T, err = tensorFromText(ta.T); err != nil {
			return nil, err
		}
	}
	if ta.G != nil {
		if a.G, err = graphFromText(ta.G); err != nil {
			return nil, err
		}
	}
	for ii := range ta.Tensors {
		t, err := tensorFromText(&ta.Tensors[ii])
		if err != nil {
			return nil, err
		}
		a.Tensors = append(a.Tensors, t)
	}
	for ii := range ta.Graphs {
		g, err := graphFromText(&ta.Graphs[ii])
		if err != nil {
			return nil, err
		}
		a.Graphs = append(a.Graphs, g)
	}
	return a, nil
}

func toInt64s[T constraints.Signed](data []T) []int64 {
	return convertSlice(data, func(v T) int64 { return int64(v) })
}

func toUint64s[T constraints.Unsigned](data []T) []uint64 {
	return convertSlice(data, func(v T) uint64 { return uint64(v) })
}

func toFloat64s[T constraints.Float](data []T) []float64 {
	return convertSlice(data, func(v T) float64 { return float64(v) })
}

func tensorToText(t *ir.Tensor) (*textTensor, error) {
	tt := &textTensor{Name: t.Name, DataType: t.DataType.String(), Dims: t.Dims, DocString: t.DocString}
	switch data := t.Data.(type) {
	case []float32:
		tt.Floats = toFloat64s(data)
	case []float64:
		tt.Floats = data
	case []float16.Float16:
		tt.Floats = convertSlice(data, func(v float16.Float16) float64 { return float64(v.Float32()) })
	case []bfloat16.BFloat16:
		tt.Floats = convertSlice(data, func(v bfloat16.BFloat16) float64 { return float64(v.Float32()) })
	case []complex64:
		for _, v := range data {
			tt.Floats = append(tt.Floats, float64(real(v)), float64(imag(v)))
		}
	case []complex128:
		for _, v := range data {
			tt.Floats = append(tt.Floats, real(v), imag(v))
		}
	case []int8:
		tt.Ints = toInt64s(data)
	case []int16:
		tt.Ints = toInt64s(data)
	case []int32:
		tt.Ints = toInt64s(data)
	case []int64:
		tt.Ints = data
	case []uint8:
		tt.Uints = toUint64s(data)
	case []uint16:
		tt.Uints = toUint64s(data)
	case []uint32:
		tt.Uints = toUint64s(data)
	case []uint64:
		tt.Uints = data
	case []bool:
		tt.Bools = data
	case []string:
		tt.Strings = data
	default:
		return nil, errors.Errorf("tensor %q: unsupported data %T", t.Name, t.Data)
	}
	return tt, nil
}

func tensorFromText(tt *textTensor) (*ir.Tensor, error) {
	t := &ir.Tensor{Name: tt.Name, DataType: ir.DataTypeFromString(tt.DataType), Dims: tt.Dims, DocString: tt.DocString}
	switch t.DataType {
	case ir.DataTypeFloat:
		t.Data = convertSlice(tt.Floats, func(v float64) float32 { return float32(v) })
	case ir.DataTypeDouble:
		t.Data = convertSlice(tt.Floats, func(v float64) float64 { return v })
	case ir.DataTypeFloat16:
		t.Data = convertSlice(tt.Floats, func(v float64) float16.Float16 { return float16.Fromfloat32(float32(v)) })
	case ir.DataTypeBFloat16:
		t.Data = convertSlice(tt.Floats, func(v float64) bfloat16.BFloat16 { return bfloat16.FromFloat32(float32(v)) })
	case ir.DataTypeComplex64:
		data := make([]complex64, len(tt.Floats)/2)
		for ii := range data {
			data[ii] = complex(float32(tt.Floats[2*ii]), float32(tt.Floats[2*ii+1]))
		}
		t.Data = data
	case ir.DataTypeComplex128:
		data := make([]complex128, len(tt.Floats)/2)
		for ii := range data {
			data[ii] = complex(tt.Floats[2*ii], tt.Floats[2*ii+1])
		}
		t.Data = data
	case ir.DataTypeInt8:
		t.Data = convertSlice(tt.Ints, func(v int64) int8 { return int8(v) })
	case ir.DataTypeInt16:
		t.Data = convertSlice(tt.Ints, func(v int64) int16 { return int16(v) })
	case ir.DataTypeInt32:
		t.Data = convertSlice(tt.Ints, func(v int64) int32 { return int32(v) })
	case ir.DataTypeInt64:
		t.Data = convertSlice(tt.Ints, func(v int64) int64 { return v })
	case ir.DataTypeUint8:
		t.Data = convertSlice(tt.Uints, func(v uint64) uint8 { return uint8(v) })
	case ir.DataTypeUint16:
		t.Data = convertSlice(tt.Uints, func(v uint64) uint16 { return uint16(v) })
	case ir.DataTypeUint32:
		t.Data = convertSlice(tt.Uints, func(v uint64) uint32 { return uint32(v) })
	case ir.DataTypeUint64:
		t.Data = convertSlice(tt.Uints, func(v uint64) uint64 { return v })
	case ir.DataTypeBool:
		t.Data = convertSlice(tt.Bools, func(v bool) bool { return v })
	case ir.DataTypeString:
		t.Data = convertSlice(tt.Strings, func(v string) string { return v })
	default:
		return nil, errors.Errorf("tensor %q: unsupported data_type %q", tt.Name, tt.DataType)
	}
	if err := ir.CheckDims(t.Dims); err != nil {
		return nil, errors.WithMessagef(err, "tensor %q", t.Name)
	}
	if t.Len() != t.Size() {
		return nil, errors.Errorf("tensor %q: dims %v require %d elements, got %d", t.Name, t.Dims, t.Size(), t.Len())
	}
	return t, nil
}

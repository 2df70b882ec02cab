// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package onnxio

import (
	"bytes"
	"maps"
	"math"
	"slices"
	"strconv"

	"github.com/gomlx/onnxir/pkg/core/ir"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers from onnx.proto.
const (
	modelIRVersion       protowire.Number = 1
	modelProducerName    protowire.Number = 2
	modelProducerVersion protowire.Number = 3
	modelDomain          protowire.Number = 4
	modelModelVersion    protowire.Number = 5
	modelDocString       protowire.Number = 6
	modelGraph           protowire.Number = 7
	modelOpsetImport     protowire.Number = 8
	modelMetadataProps   protowire.Number = 14

	opsetDomain  protowire.Number = 1
	opsetVersion protowire.Number = 2

	entryKey   protowire.Number = 1
	entryValue protowire.Number = 2

	graphNode        protowire.Number = 1
	graphName        protowire.Number = 2
	graphInitializer protowire.Number = 5
	graphDocString   protowire.Number = 10
	graphInput       protowire.Number = 11
	graphOutput      protowire.Number = 12
	graphValueInfo   protowire.Number = 13

	nodeInput     protowire.Number = 1
	nodeOutput    protowire.Number = 2
	nodeName      protowire.Number = 3
	nodeOpType    protowire.Number = 4
	nodeAttribute protowire.Number = 5
	nodeDocString protowire.Number = 6
	nodeDomain    protowire.Number = 7

	attrName      protowire.Number = 1
	attrF         protowire.Number = 2
	attrI         protowire.Number = 3
	attrS         protowire.Number = 4
	attrT         protowire.Number = 5
	attrG         protowire.Number = 6
	attrFloats    protowire.Number = 7
	attrInts      protowire.Number = 8
	attrStrings   protowire.Number = 9
	attrTensors   protowire.Number = 10
	attrGraphs    protowire.Number = 11
	attrDocString protowire.Number = 13
	attrType      protowire.Number = 20

	tensorDims         protowire.Number = 1
	tensorDataType     protowire.Number = 2
	tensorFloatData    protowire.Number = 4
	tensorInt32Data    protowire.Number = 5
	tensorStringData   protowire.Number = 6
	tensorInt64Data    protowire.Number = 7
	tensorName         protowire.Number = 8
	tensorRawData      protowire.Number = 9
	tensorDoubleData   protowire.Number = 10
	tensorUint64Data   protowire.Number = 11
	tensorDocString    protowire.Number = 12
	tensorExternalData protowire.Number = 13
	tensorDataLocation protowire.Number = 14

	valueInfoName      protowire.Number = 1
	valueInfoType      protowire.Number = 2
	valueInfoDocString protowire.Number = 3

	typeTensorType protowire.Number = 1

	tensorTypeElemType protowire.Number = 1
	tensorTypeShape    protowire.Number = 2

	shapeDim protowire.Number = 1

	dimValue protowire.Number = 1
	dimParam protowire.Number = 2
)

// dataLocationExternal is TensorProto.DataLocation.EXTERNAL.
const dataLocationExternal = 1

// encoder serializes a model. If external is not nil, the raw data of initializers of at least
// minExternalBytes is appended to it instead of being stored inline.
type encoder struct {
	external         *bytes.Buffer
	location         string
	minExternalBytes int64
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// appendRepeatedString appends a string element of a repeated field: unlike appendString, empty
// strings are kept, since their position matters (e.g. omitted node inputs).
func appendRepeatedString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendPackedVarints(b []byte, num protowire.Number, values []int64) []byte {
	if len(values) == 0 {
		return b
	}
	var packed []byte
	for _, v := range values {
		packed = protowire.AppendVarint(packed, uint64(v))
	}
	return appendMessage(b, num, packed)
}

func (enc *encoder) model(m *ir.Model) ([]byte, error) {
	var b []byte
	b = appendVarint(b, modelIRVersion, m.IRVersion)
	for _, opset := range m.OpsetImports {
		var ob []byte
		ob = appendString(ob, opsetDomain, opset.Domain)
		ob = appendVarint(ob, opsetVersion, opset.Version)
		b = appendMessage(b, modelOpsetImport, ob)
	}
	b = appendString(b, modelProducerName, m.ProducerName)
	b = appendString(b, modelProducerVersion, m.ProducerVersion)
	b = appendString(b, modelDomain, m.Domain)
	b = appendVarint(b, modelModelVersion, m.ModelVersion)
	b = appendString(b, modelDocString, m.DocString)
	if m.Graph != nil {
		gb, err := enc.graph(m.Graph)
		if err != nil {
			return nil, err
		}
		b = appendMessage(b, modelGraph, gb)
	}
	for _, key := range slices.Sorted(maps.Keys(m.MetadataProps)) {
		b = appendMessage(b, modelMetadataProps, stringEntry(key, m.MetadataProps[key]))
	}
	return b, nil
}

func stringEntry(key, value string) []byte {
	var eb []byte
	eb = appendString(eb, entryKey, key)
	return appendString(eb, entryValue, value)
}

func (enc *encoder) graph(g *ir.Graph) ([]byte, error) {
	if g == nil {
		return nil, errors.New("nil graph")
	}
	var b []byte
	for _, node := range g.Nodes {
		nb, err := enc.node(node)
		if err != nil {
			return nil, errors.WithMessagef(err, "graph %q", g.Name)
		}
		b = appendMessage(b, graphNode, nb)
	}
	b = appendString(b, graphName, g.Name)
	for _, t := range g.Initializers {
		tb, err := enc.tensor(t, enc.external != nil)
		if err != nil {
			return nil, errors.WithMessagef(err, "graph %q initializer", g.Name)
		}
		b = appendMessage(b, graphInitializer, tb)
	}
	b = appendString(b, graphDocString, g.DocString)
	for _, vi := range g.Inputs {
		b = appendMessage(b, graphInput, valueInfo(vi))
	}
	for _, vi := range g.Outputs {
		b = appendMessage(b, graphOutput, valueInfo(vi))
	}
	for _, vi := range g.ValueInfos {
		b = appendMessage(b, graphValueInfo, valueInfo(vi))
	}
	return b, nil
}

func (enc *encoder) node(n *ir.Node) ([]byte, error) {
	var b []byte
	for _, input := range n.Inputs {
		b = appendRepeatedString(b, nodeInput, input)
	}
	for _, output := range n.Outputs {
		b = appendRepeatedString(b, nodeOutput, output)
	}
	b = appendString(b, nodeName, n.Name)
	b = appendString(b, nodeOpType, n.OpType)
	for _, attr := range n.Attributes {
		ab, err := enc.attribute(attr)
		if err != nil {
			return nil, errors.WithMessagef(err, "node %q (%s)", n.Name, n.OpType)
		}
		b = appendMessage(b, nodeAttribute, ab)
	}
	b = appendString(b, nodeDocString, n.DocString)
	b = appendString(b, nodeDomain, n.Domain)
	return b, nil
}

func (enc *encoder) attribute(a *ir.Attribute) ([]byte, error) {
	var b []byte
	b = appendString(b, attrName, a.Name)
	switch a.Type {
	case ir.AttributeFloat:
		b = protowire.AppendTag(b, attrF, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(a.F))
	case ir.AttributeInt:
		b = protowire.AppendTag(b, attrI, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(a.I))
	case ir.AttributeString:
		b = appendRepeatedString(b, attrS, a.S)
	case ir.AttributeTensor:
		tb, err := enc.tensor(a.T, false)
		if err != nil {
			return nil, errors.WithMessagef(err, "attribute %q", a.Name)
		}
		b = appendMessage(b, attrT, tb)
	case ir.AttributeGraph:
		gb, err := enc.graph(a.G)
		if err != nil {
			return nil, errors.WithMessagef(err, "attribute %q", a.Name)
		}
		b = appendMessage(b, attrG, gb)
	case ir.AttributeFloats:
		if len(a.Floats) > 0 {
			var packed []byte
			for _, f := range a.Floats {
				packed = protowire.AppendFixed32(packed, math.Float32bits(f))
			}
			b = appendMessage(b, attrFloats, packed)
		}
	case ir.AttributeInts:
		b = appendPackedVarints(b, attrInts, a.Ints)
	case ir.AttributeStrings:
		for _, s := range a.Strings {
			b = appendRepeatedString(b, attrStrings, s)
		}
	case ir.AttributeTensors:
		for _, t := range a.Tensors {
			tb, err := enc.tensor(t, false)
			if err != nil {
				return nil, errors.WithMessagef(err, "attribute %q", a.Name)
			}
			b = appendMessage(b, attrTensors, tb)
		}
	case ir.AttributeGraphs:
		for _, g := range a.Graphs {
			gb, err := enc.graph(g)
			if err != nil {
				return nil, errors.WithMessagef(err, "attribute %q", a.Name)
			}
			b = appendMessage(b, attrGraphs, gb)
		}
	default:
		return nil, errors.Errorf("attribute %q has invalid type %s", a.Name, a.Type)
	}
	b = appendString(b, attrDocString, a.DocString)
	b = appendVarint(b, attrType, int64(a.Type))
	return b, nil
}

// tensor encodes t. If mayExternalize, the data of large tensors goes to enc.external.
func (enc *encoder) tensor(t *ir.Tensor, mayExternalize bool) ([]byte, error) {
	if t == nil {
		return nil, errors.New("nil tensor")
	}
	var b []byte
	b = appendPackedVarints(b, tensorDims, t.Dims)
	b = appendVarint(b, tensorDataType, int64(t.DataType))
	b = appendString(b, tensorName, t.Name)
	b = appendString(b, tensorDocString, t.DocString)
	if t.DataType == ir.DataTypeString {
		strs, ok := t.Data.([]string)
		if !ok {
			return nil, errors.Errorf("tensor %q of type STRING holds %T", t.Name, t.Data)
		}
		for _, s := range strs {
			b = appendRepeatedString(b, tensorStringData, s)
		}
		return b, nil
	}
	if ir.DataTypeOfSlice(t.Data) != t.DataType {
		return nil, errors.Errorf("tensor %q of type %s holds %T", t.Name, t.DataType, t.Data)
	}
	raw, err := encodeRawData(t)
	if err != nil {
		return nil, err
	}
	if mayExternalize && int64(len(raw)) >= enc.minExternalBytes {
		offset := int64(enc.external.Len())
		enc.external.Write(raw)
		b = appendMessage(b, tensorExternalData, stringEntry("location", enc.location))
		b = appendMessage(b, tensorExternalData, stringEntry("offset", strconv.FormatInt(offset, 10)))
		b = appendMessage(b, tensorExternalData, stringEntry("length", strconv.Itoa(len(raw))))
		b = appendVarint(b, tensorDataLocation, dataLocationExternal)
		return b, nil
	}
	return appendMessage(b, tensorRawData, raw), nil
}

func valueInfo(vi *ir.ValueInfo) []byte {
	var b []byte
	b = appendString(b, valueInfoName, vi.Name)
	var tt []byte
	tt = appendVarint(tt, tensorTypeElemType, int64(vi.ElemType))
	if len(vi.Shape) > 0 {
		var sb []byte
		for _, dim := range vi.Shape {
			var db []byte
			switch {
			case dim.Param != "":
				db = appendString(db, dimParam, dim.Param)
			case dim.Value > 0:
				db = appendVarint(db, dimValue, dim.Value)
			}
			sb = appendMessage(sb, shapeDim, db)
		}
		tt = appendMessage(tt, tensorTypeShape, sb)
	}
	var typeBytes []byte
	typeBytes = appendMessage(typeBytes, typeTensorType, tt)
	b = appendMessage(b, valueInfoType, typeBytes)
	b = appendString(b, valueInfoDocString, vi.DocString)
	return b
}

// Marshal serializes the model to the ONNX binary format, with all tensors inline.
func Marshal(m *ir.Model) ([]byte, error) {
	enc := &encoder{}
	b, err := enc.model(m)
	if err != nil {
		return nil, errors.WithMessage(err, "onnxio.Marshal")
	}
	return b, nil
}

// MarshalWithExternalData serializes the model storing the data of initializers of at least
// minExternalBytes in a separate blob, to be saved at location (relative to the model file).
// It returns the model bytes and the blob.
func MarshalWithExternalData(m *ir.Model, location string, minExternalBytes int64) (model, data []byte, err error) {
	enc := &encoder{external: &bytes.Buffer{}, location: location, minExternalBytes: minExternalBytes}
	model, err = enc.model(m)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "onnxio.MarshalWithExternalData")
	}
	return model, enc.external.Bytes(), nil
}

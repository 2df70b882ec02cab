// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package onnxio

import (
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gomlx/onnxir/pkg/core/ir"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// field is one decoded protobuf field: bytes holds the payload of length-delimited fields, and
// scalar the value of varint and fixed-size fields.
type field struct {
	num    protowire.Number
	typ    protowire.Type
	bytes  []byte
	scalar uint64
}

// forEachField calls fn for each field of the message b. Groups are skipped.
func forEachField(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "invalid tag")
		}
		b = b[n:]
		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.scalar, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.scalar = uint64(v)
		case protowire.Fixed64Type:
			f.scalar, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n >= 0 {
				b = b[n:]
				continue
			}
		}
		if n < 0 {
			return errors.Wrapf(protowire.ParseError(n), "invalid value for field %d", num)
		}
		b = b[n:]
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// varints returns the values of a repeated varint field, packed or not.
func (f field) varints() ([]int64, error) {
	if f.typ == protowire.VarintType {
		return []int64{int64(f.scalar)}, nil
	}
	if f.typ != protowire.BytesType {
		return nil, errors.Errorf("field %d: wire type %d for repeated varint", f.num, f.typ)
	}
	var values []int64
	b := f.bytes
	for len(b) > 0 {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, errors.Wrapf(protowire.ParseError(n), "field %d", f.num)
		}
		values = append(values, int64(v))
		b = b[n:]
	}
	return values, nil
}

// fixed32s returns the values of a repeated fixed32 (float) field, packed or not.
func (f field) fixed32s() ([]uint32, error) {
	if f.typ == protowire.Fixed32Type {
		return []uint32{uint32(f.scalar)}, nil
	}
	if f.typ != protowire.BytesType || len(f.bytes)%4 != 0 {
		return nil, errors.Errorf("field %d: invalid repeated fixed32 encoding", f.num)
	}
	values := make([]uint32, 0, len(f.bytes)/4)
	for b := f.bytes; len(b) > 0; b = b[4:] {
		v, _ := protowire.ConsumeFixed32(b)
		values = append(values, v)
	}
	return values, nil
}

// fixed64s returns the values of a repeated fixed64 (double) field, packed or not.
func (f field) fixed64s() ([]uint64, error) {
	if f.typ == protowire.Fixed64Type {
		return []uint64{f.scalar}, nil
	}
	if f.typ != protowire.BytesType || len(f.bytes)%8 != 0 {
		return nil, errors.Errorf("field %d: invalid repeated fixed64 encoding", f.num)
	}
	values := make([]uint64, 0, len(f.bytes)/8)
	for b := f.bytes; len(b) > 0; b = b[8:] {
		v, _ := protowire.ConsumeFixed64(b)
		values = append(values, v)
	}
	return values, nil
}

// decoder parses a serialized model. External data files are resolved relative to baseDir and read once.
type decoder struct {
	baseDir       string
	externalFiles map[string][]byte
}

func (dec *decoder) model(b []byte) (*ir.Model, error) {
	m := &ir.Model{}
	err := forEachField(b, func(f field) error {
		switch f.num {
		case modelIRVersion:
			m.IRVersion = int64(f.scalar)
		case modelProducerName:
			m.ProducerName = string(f.bytes)
		case modelProducerVersion:
			m.ProducerVersion = string(f.bytes)
		case modelDomain:
			m.Domain = string(f.bytes)
		case modelModelVersion:
			m.ModelVersion = int64(f.scalar)
		case modelDocString:
			m.DocString = string(f.bytes)
		case modelGraph:
			g, err := dec.graph(f.bytes)
			if err != nil {
				return err
			}
			m.Graph = g
		case modelOpsetImport:
			var opset ir.OperatorSetID
			err := forEachField(f.bytes, func(f field) error {
				switch f.num {
				case opsetDomain:
					opset.Domain = string(f.bytes)
				case opsetVersion:
					opset.Version = int64(f.scalar)
				}
				return nil
			})
			if err != nil {
				return errors.WithMessage(err, "opset_import")
			}
			m.OpsetImports = append(m.OpsetImports, opset)
		case modelMetadataProps:
			key, value, err := stringEntryFields(f.bytes)
			if err != nil {
				return errors.WithMessage(err, "metadata_props")
			}
			if m.MetadataProps == nil {
				m.MetadataProps = make(map[string]string)
			}
			m.MetadataProps[key] = value
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if m.Graph == nil {
		return nil, errors.New("model has no graph")
	}
	return m, nil
}

func stringEntryFields(b []byte) (key, value string, err error) {
	err = forEachField(b, func(f field) error {
		switch f.num {
		case entryKey:
			key = string(f.bytes)
		case entryValue:
			value = string(f.bytes)
		}
		return nil
	})
	return
}

func (dec *decoder) graph(b []byte) (*ir.Graph, error) {
	g := &ir.Graph{}
	err := forEachField(b, func(f field) error {
		switch f.num {
		case graphNode:
			n, err := dec.node(f.bytes)
			if err != nil {
				return err
			}
			g.Nodes = append(g.Nodes, n)
		case graphName:
			g.Name = string(f.bytes)
		case graphInitializer:
			t, err := dec.tensor(f.bytes)
			if err != nil {
				return errors.WithMessage(err, "initializer")
			}
			g.Initializers = append(g.Initializers, t)
		case graphDocString:
			g.DocString = string(f.bytes)
		case graphInput, graphOutput, graphValueInfo:
			vi, err := decodeValueInfo(f.bytes)
			if err != nil {
				return err
			}
			switch f.num {
			case graphInput:
				g.Inputs = append(g.Inputs, vi)
			case graphOutput:
				g.Outputs = append(g.Outputs, vi)
			default:
				g.ValueInfos = append(g.ValueInfos, vi)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "graph %q", g.Name)
	}
	return g, nil
}

func (dec *decoder) node(b []byte) (*ir.Node, error) {
	n := &ir.Node{}
	err := forEachField(b, func(f field) error {
		switch f.num {
		case nodeInput:
			n.Inputs = append(n.Inputs, string(f.bytes))
		case nodeOutput:
			n.Outputs = append(n.Outputs, string(f.bytes))
		case nodeName:
			n.Name = string(f.bytes)
		case nodeOpType:
			n.OpType = string(f.bytes)
		case nodeDomain:
			n.Domain = string(f.bytes)
		case nodeDocString:
			n.DocString = string(f.bytes)
		case nodeAttribute:
			attr, err := dec.attribute(f.bytes)
			if err != nil {
				return err
			}
			n.Attributes = append(n.Attributes, attr)
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "node %q (%s)", n.Name, n.OpType)
	}
	return n, nil
}

func (dec *decoder) attribute(b []byte) (*ir.Attribute, error) {
	a := &ir.Attribute{}
	err := forEachField(b, func(f field) error {
		switch f.num {
		case attrName:
			a.Name = string(f.bytes)
		case attrType:
			a.Type = ir.AttributeType(f.scalar)
		case attrDocString:
			a.DocString = string(f.bytes)
		case attrF:
			a.F = math.Float32frombits(uint32(f.scalar))
		case attrI:
			a.I = int64(f.scalar)
		case attrS:
			a.S = string(f.bytes)
		case attrT:
			t, err := dec.tensor(f.bytes)
			if err != nil {
				return err
			}
			a.T = t
		case attrG:
			g, err := dec.graph(f.bytes)
			if err != nil {
				return err
			}
			a.G = g
		case attrFloats:
			bits, err := f.fixed32s()
			if err != nil {
				return err
			}
			for _, v := range bits {
				a.Floats = append(a.Floats, math.Float32frombits(v))
			}
		case attrInts:
			ints, err := f.varints()
			if err != nil {
				return err
			}
			a.Ints = append(a.Ints, ints...)
		case attrStrings:
			a.Strings = append(a.Strings, string(f.bytes))
		case attrTensors:
			t, err := dec.tensor(f.bytes)
			if err != nil {
				return err
			}
			a.Tensors = append(a.Tensors, t)
		case attrGraphs:
			g, err := dec.graph(f.bytes)
			if err != nil {
				return err
			}
			a.Graphs = append(a.Graphs, g)
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "attribute %q", a.Name)
	}
	if a.Type == ir.AttributeUndefined {
		// Very old writers omit the type: infer it from the field set.
		a.Type = inferAttributeType(a)
	}
	return a, nil
}

func inferAttributeType(a *ir.Attribute) ir.AttributeType {
	switch {
	case a.T != nil:
		return ir.AttributeTensor
	case a.G != nil:
		return ir.AttributeGraph
	case len(a.Floats) > 0:
		return ir.AttributeFloats
	case len(a.Ints) > 0:
		return ir.AttributeInts
	case len(a.Strings) > 0:
		return ir.AttributeStrings
	case len(a.Tensors) > 0:
		return ir.AttributeTensors
	case len(a.Graphs) > 0:
		return ir.AttributeGraphs
	case a.S != "":
		return ir.AttributeString
	case a.F != 0:
		return ir.AttributeFloat
	}
	return ir.AttributeInt
}

func (dec *decoder) tensor(b []byte) (*ir.Tensor, error) {
	t := &ir.Tensor{}
	var (
		raw          []byte
		hasRaw       bool
		typed        typedFields
		external     = make(map[string]string)
		dataLocation int64
	)
	err := forEachField(b, func(f field) error {
		var err error
		switch f.num {
		case tensorDims:
			var dims []int64
			dims, err = f.varints()
			t.Dims = append(t.Dims, dims...)
		case tensorDataType:
			t.DataType = ir.DataType(f.scalar)
		case tensorName:
			t.Name = string(f.bytes)
		case tensorDocString:
			t.DocString = string(f.bytes)
		case tensorRawData:
			raw, hasRaw = f.bytes, true
		case tensorFloatData:
			var bits []uint32
			bits, err = f.fixed32s()
			for _, v := range bits {
				typed.floats = append(typed.floats, math.Float32frombits(v))
			}
		case tensorDoubleData:
			var bits []uint64
			bits, err = f.fixed64s()
			for _, v := range bits {
				typed.doubles = append(typed.doubles, math.Float64frombits(v))
			}
		case tensorInt32Data:
			var values []int64
			values, err = f.varints()
			for _, v := range values {
				typed.int32s = append(typed.int32s, int32(v))
			}
		case tensorInt64Data:
			var values []int64
			values, err = f.varints()
			typed.int64s = append(typed.int64s, values...)
		case tensorUint64Data:
			var values []int64
			values, err = f.varints()
			for _, v := range values {
				typed.uint64s = append(typed.uint64s, uint64(v))
			}
		case tensorStringData:
			typed.strings = append(typed.strings, string(f.bytes))
		case tensorExternalData:
			var key, value string
			key, value, err = stringEntryFields(f.bytes)
			external[key] = value
		case tensorDataLocation:
			dataLocation = int64(f.scalar)
		}
		return err
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "tensor %q", t.Name)
	}

	if dataLocation == dataLocationExternal {
		raw, err = dec.readExternal(t.Name, external)
		if err != nil {
			return nil, err
		}
		hasRaw = true
	}
	if hasRaw && t.DataType != ir.DataTypeString {
		t.Data, err = decodeRawData(t.DataType, raw)
	} else {
		t.Data, err = typed.toData(t.DataType)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "tensor %q", t.Name)
	}
	if err = ir.CheckDims(t.Dims); err != nil {
		return nil, errors.WithMessagef(err, "tensor %q", t.Name)
	}
	if t.Len() != t.Size() {
		return nil, errors.Errorf("tensor %q: dims %v require %d elements, got %d", t.Name, t.Dims, t.Size(), t.Len())
	}
	return t, nil
}

// readExternal returns the bytes of an externally stored tensor.
func (dec *decoder) readExternal(tensorName string, entries map[string]string) ([]byte, error) {
	location := entries["location"]
	if location == "" {
		return nil, errors.Errorf("tensor %q: external data without location", tensorName)
	}
	if filepath.IsAbs(location) || !filepath.IsLocal(location) {
		return nil, errors.Errorf("tensor %q: external data location %q must be relative to the model directory",
			tensorName, location)
	}
	contents, found := dec.externalFiles[location]
	if !found {
		var err error
		contents, err = os.ReadFile(filepath.Join(dec.baseDir, location))
		if err != nil {
			return nil, errors.Wrapf(err, "tensor %q: reading external data", tensorName)
		}
		dec.externalFiles[location] = contents
	}
	var offset int64
	var err error
	if s := entries["offset"]; s != "" {
		if offset, err = strconv.ParseInt(s, 10, 64); err != nil {
			return nil, errors.Wrapf(err, "tensor %q: invalid external data offset", tensorName)
		}
	}
	size := int64(len(contents))
	if offset < 0 || offset > size {
		return nil, errors.Errorf("tensor %q: external data offset %d out of %q with %d bytes",
			tensorName, offset, location, size)
	}
	length := size - offset
	if s := entries["length"]; s != "" {
		if length, err = strconv.ParseInt(s, 10, 64); err != nil {
			return nil, errors.Wrapf(err, "tensor %q: invalid external data length", tensorName)
		}
	}
	if length < 0 || length > size-offset {
		return nil, errors.Errorf("tensor %q: external data length %d at offset %d out of %q with %d bytes",
			tensorName, length, offset, location, size)
	}
	return contents[offset : offset+length], nil
}

func decodeValueInfo(b []byte) (*ir.ValueInfo, error) {
	vi := &ir.ValueInfo{}
	err := forEachField(b, func(f field) error {
		switch f.num {
		case valueInfoName:
			vi.Name = string(f.bytes)
		case valueInfoDocString:
			vi.DocString = string(f.bytes)
		case valueInfoType:
			return forEachField(f.bytes, func(f field) error {
				if f.num != typeTensorType {
					// Sequence, map and optional types are not modeled.
					return nil
				}
				return decodeTensorType(f.bytes, vi)
			})
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "value_info %q", vi.Name)
	}
	return vi, nil
}

func decodeTensorType(b []byte, vi *ir.ValueInfo) error {
	return forEachField(b, func(f field) error {
		switch f.num {
		case tensorTypeElemType:
			vi.ElemType = ir.DataType(f.scalar)
		case tensorTypeShape:
			vi.Shape = []ir.Dim{}
			return forEachField(f.bytes, func(f field) error {
				if f.num != shapeDim {
					return nil
				}
				var dim ir.Dim
				err := forEachField(f.bytes, func(f field) error {
					switch f.num {
					case dimValue:
						dim.Value = int64(f.scalar)
					case dimParam:
						dim.Param = string(f.bytes)
					}
					return nil
				})
				vi.Shape = append(vi.Shape, dim)
				return err
			})
		}
		return nil
	})
}

// Unmarshal parses a model in the ONNX binary format. Tensors stored as external data are read from
// files relative to baseDir, usually the directory of the model file.
func Unmarshal(data []byte, baseDir string) (*ir.Model, error) {
	dec := &decoder{baseDir: baseDir, externalFiles: make(map[string][]byte)}
	m, err := dec.model(data)
	if err != nil {
		return nil, errors.WithMessage(err, "onnxio.Unmarshal")
	}
	return m, nil
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package onnxio reads and writes ir.Model values.
//
// Supported formats, selected by the file name in Save and Load:
//
//   - "*.onnx" (or any other extension): the ONNX protobuf binary format. Large tensors can be stored in
//     a separate "external data" file next to the model, as the ONNX format defines, see SaveOptions.
//   - "*.onnx.zst": the same binary format, compressed with zstd.
//   - "*.yaml" and "*.yml": a human-readable text form, meant for small models in tests and debugging.
//
// The binary codec is written directly over the protobuf wire format (google.golang.org/protobuf/encoding/protowire),
// with the field numbers of onnx.proto, so no generated code is needed. Fields the IR doesn't model
// (e.g. training info, sparse initializers, non-tensor types) are skipped when reading.
package onnxio

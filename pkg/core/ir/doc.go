// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ir defines the in-memory intermediate representation of an ONNX model: a Model holding one
// primary Graph, whose Nodes are connected exclusively by value names.
//
// There is no edge object: a value is produced by at most one Node (or initializer, or graph input)
// and consumed by any number of Nodes, all referring to it by name. Control-flow nodes (If, Loop, Scan)
// hold their bodies as nested Graph values in their attributes, and those bodies may refer to names of
// the enclosing graphs.
//
// The structures are plain Go values and are meant to be mutated directly by rewrite passes, usually
// through the editor package, which adds the indices and pattern matching on top.
//
// The IR is not safe for concurrent use: a rewrite session owns the model exclusively.
package ir

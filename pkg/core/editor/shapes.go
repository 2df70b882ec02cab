// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package editor

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/onnxir/pkg/core/ir"
	"k8s.io/klog/v2"
)

// ShapeInferencer annotates the values of a model with element types and shapes.
//
// dynamicAxes maps symbolic dimension names (e.g. "batch_size") to concrete sizes, and may be nil.
// The returned map goes from value name to its inferred ValueInfo. See package shapeinfer for an
// implementation.
type ShapeInferencer interface {
	InferShapes(model *ir.Model, dynamicAxes map[string]int64) (map[string]*ir.ValueInfo, error)
}

// InferRuntimeShape runs the shape inferencer on the model being edited.
//
// Inference failures are not fatal: they are logged and nil is returned, meaning "shapes unknown".
// That includes panics raised by the inferencer.
func (e *Editor) InferRuntimeShape(inferencer ShapeInferencer, dynamicAxes map[string]int64) map[string]*ir.ValueInfo {
	var (
		shapes map[string]*ir.ValueInfo
		err    error
	)
	exception := exceptions.Try(func() {
		shapes, err = inferencer.InferShapes(e.model, dynamicAxes)
	})
	if exception != nil {
		klog.Warningf("failed in shape inference: %v", exception)
		return nil
	}
	if err != nil {
		klog.Warningf("failed in shape inference: %+v", err)
		return nil
	}
	return shapes
}

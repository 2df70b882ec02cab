// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package editor

import (
	"os"
	"path/filepath"

	"github.com/gomlx/onnxir/pkg/core/onnxio"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// SaveModelToFile sorts the primary graph topologically and writes the model to outputPath, creating
// the parent directories if needed.
//
// The format follows the file name, see onnxio.Save. If useExternalData is set, tensors are stored in a
// separate data file next to the model; otherwise that only happens if the model is too large for a
// single protobuf message.
//
// It panics (see GraphTopologicalSort) if the primary graph has cycles.
func (e *Editor) SaveModelToFile(outputPath string, useExternalData bool) error {
	klog.V(1).Infof("Sort graphs in topological order")
	e.TopologicalSort()

	klog.V(1).Infof("Output model to %s", outputPath)
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return errors.Wrapf(err, "creating directory for %q", outputPath)
	}
	opts := onnxio.SaveOptions{
		ExternalData:          useExternalData,
		ExternalDataThreshold: onnxio.DefaultExternalDataThreshold,
	}
	return onnxio.Save(e.model, outputPath, opts)
}

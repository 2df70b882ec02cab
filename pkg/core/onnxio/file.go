// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package onnxio

import (
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/gomlx/onnxir/pkg/core/ir"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// DefaultExternalDataThreshold is the largest total size of tensors a model can hold inline: protobuf
	// messages are limited to 2GB.
	DefaultExternalDataThreshold = math.MaxInt32

	// DefaultMinExternalTensorBytes is the size from which a tensor goes to the external data file.
	DefaultMinExternalTensorBytes = 1024

	// ZstdSuffix selects zstd compression of the binary format.
	ZstdSuffix = ".zst"
)

// SaveOptions configures Save.
type SaveOptions struct {
	// ExternalData forces initializers to be stored in a separate data file.
	ExternalData bool

	// ExternalDataThreshold enables external data automatically if the total size of the initializers is
	// larger than it. Zero disables it.
	ExternalDataThreshold int64

	// Location of the external data file, relative to the model's directory.
	// Defaults to the model file name with ".data" appended.
	Location string

	// MinExternalTensorBytes: smaller initializers are kept inline even when using external data.
	// Defaults to DefaultMinExternalTensorBytes.
	MinExternalTensorBytes int64
}

type format int

const (
	formatBinary format = iota
	formatZstd
	formatText
)

func formatOf(path string) format {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ZstdSuffix):
		return formatZstd
	case strings.HasSuffix(lower, ".yaml"), strings.HasSuffix(lower, ".yml"):
		return formatText
	default:
		return formatBinary
	}
}

// initializersBytes is the memory used by the initializers of g and its nested graphs.
func initializersBytes(g *ir.Graph) int64 {
	var total int64
	for _, t := range g.Initializers {
		total += int64(t.MemoryBytes())
	}
	for _, n := range g.Nodes {
		for _, sub := range n.SubGraphs() {
			total += initializersBytes(sub)
		}
	}
	return total
}

// Save writes the model to path, in the format selected by its name (see package documentation).
//
// Files are written to a temporary name in the same directory and then renamed, so a failed save never
// leaves a truncated model behind.
func Save(m *ir.Model, path string, opts SaveOptions) error {
	if m == nil || m.Graph == nil {
		return errors.Errorf("onnxio.Save(%q): model has no graph", path)
	}
	f := formatOf(path)
	tensorBytes := initializersBytes(m.Graph)
	useExternal := opts.ExternalData || (opts.ExternalDataThreshold > 0 && tensorBytes > opts.ExternalDataThreshold)

	var (
		contents, external []byte
		location           string
		err                error
	)
	switch {
	case f == formatText:
		if useExternal {
			klog.Warningf("onnxio.Save(%q): external data is not supported by the text format, ignored", path)
		}
		contents, err = MarshalText(m)
	case useExternal:
		location = opts.Location
		if location == "" {
			location = filepath.Base(path) + ".data"
		}
		minBytes := opts.MinExternalTensorBytes
		if minBytes <= 0 {
			minBytes = DefaultMinExternalTensorBytes
		}
		contents, external, err = MarshalWithExternalData(m, location, minBytes)
	default:
		contents, err = Marshal(m)
	}
	if err != nil {
		return err
	}
	if f == formatZstd {
		encoder, err := zstd.NewWriter(nil)
		if err != nil {
			return errors.Wrap(err, "creating zstd encoder")
		}
		uncompressed := len(contents)
		contents = encoder.EncodeAll(contents, nil)
		_ = encoder.Close()
		klog.V(1).Infof("compressed model from %s to %s", humanize.Bytes(uint64(uncompressed)), humanize.Bytes(uint64(len(contents))))
	}

	if location != "" {
		dataPath := filepath.Join(filepath.Dir(path), location)
		if err := writeFileAtomically(dataPath, external); err != nil {
			return err
		}
		klog.V(1).Infof("saved %s of external data to %s", humanize.Bytes(uint64(len(external))), dataPath)
	}
	if err := writeFileAtomically(path, contents); err != nil {
		return err
	}
	klog.V(1).Infof("saved model to %s (%s, %s of tensors)", path,
		humanize.Bytes(uint64(len(contents))), humanize.Bytes(uint64(tensorBytes)))
	return nil
}

func writeFileAtomically(path string, contents []byte) error {
	tmpPath := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmpPath, contents, 0o644); err != nil {
		return errors.Wrapf(err, "writing %q", tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, "renaming %q to %q", tmpPath, path)
	}
	return nil
}

// Load reads a model from path, in the format selected by its name (see package documentation).
// External data files are resolved relative to the model's directory.
func Load(path string) (*ir.Model, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "onnxio.Load(%q)", path)
	}
	var m *ir.Model
	switch formatOf(path) {
	case formatText:
		m, err = UnmarshalText(contents)
	case formatZstd:
		var decoder *zstd.Decoder
		decoder, err = zstd.NewReader(nil)
		if err != nil {
			return nil, errors.Wrap(err, "creating zstd decoder")
		}
		contents, err = decoder.DecodeAll(contents, nil)
		decoder.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "onnxio.Load(%q): decompressing", path)
		}
		m, err = Unmarshal(contents, filepath.Dir(path))
	default:
		m, err = Unmarshal(contents, filepath.Dir(path))
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "onnxio.Load(%q)", path)
	}
	klog.V(1).Infof("loaded model from %s: %d nodes in the primary graph", path, len(m.Graph.Nodes))
	return m, nil
}

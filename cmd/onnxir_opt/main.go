// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// onnxir_opt loads ONNX models, cleans up and optionally converts them to half precision, and saves
// them back sorted in topological order.
//
// Usage:
//
//	onnxir_opt [flags] <model.onnx|glob> ...
//
// Inputs can be doublestar globs (e.g. "models/**/*.onnx"). With a single input, -output names the
// result; otherwise results are written to -output_dir (or next to each input) with an "_opt" suffix.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/onnxir/internal/workerspool"
	"github.com/gomlx/onnxir/pkg/core/editor"
	"github.com/gomlx/onnxir/pkg/core/ir"
	"github.com/gomlx/onnxir/pkg/core/onnxio"
	"github.com/gomlx/onnxir/pkg/core/precision"
	"github.com/gomlx/onnxir/pkg/support/fsutil"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

var (
	flagOutput    = flag.String("output", "", "Output file, when a single model is given.")
	flagOutputDir = flag.String("output_dir", "", "Directory where to write the optimized models. "+
		"Defaults to the directory of each input.")
	flagOutputs = flag.String("outputs", "", "Comma-separated list of graph outputs to keep. "+
		"If set, everything not needed to compute them is pruned.")
	flagUpdate = flag.Bool("update", true, "Remove nodes whose outputs are never used and unused initializers.")
	flagFP16   = flag.Bool("fp16", false, "Convert float32 weights and computation to float16.")
	flagBF16   = flag.Bool("bf16", false, "Convert float32 weights and computation to bfloat16.")
	flagKeepIO = flag.Bool("keep_io_types", true, "When converting precision, keep the graph inputs and "+
		"outputs as float32, by inserting Cast nodes.")
	flagExternalData = flag.Bool("external_data", false, "Store large tensors in a separate file next to the model.")
	flagSummary      = flag.Bool("summary", true, "Print a summary table for each model.")
	flagOps          = flag.Bool("ops", false, "Print the number of nodes per operator type.")
	flagOverwrite    = flag.Bool("overwrite", false, "Overwrite existing output files.")
	flagParallelism  = flag.Int("parallelism", 0, "Number of models optimized at the same time. "+
		"Defaults to the number of CPUs.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		klog.Errorf("Missing model(s) to optimize. See 'onnxir_opt -help'")
		os.Exit(1)
	}
	if *flagFP16 && *flagBF16 {
		klog.Errorf("Only one of -fp16 or -bf16 can be set.")
		os.Exit(1)
	}
	for _, flagPtr := range []*string{flagOutput, flagOutputDir} {
		*flagPtr = must.M1(fsutil.ExpandHome(*flagPtr))
	}
	inputs, err := expandInputs(args)
	if err != nil {
		klog.Errorf("%+v", err)
		os.Exit(1)
	}
	if *flagOutput != "" && len(inputs) > 1 {
		klog.Errorf("-output can only be used with a single model, got %d: use -output_dir instead", len(inputs))
		os.Exit(1)
	}

	var bar *progressbar.ProgressBar
	if len(inputs) > 1 {
		bar = progressbar.NewOptions(len(inputs),
			progressbar.OptionSetDescription("Optimizing"),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish())
	}
	reports := make([]*report, len(inputs))
	var failed atomic.Int32
	pool := workerspool.New(*flagParallelism)
	for ii, input := range inputs {
		pool.Run(func() {
			r, err := optimize(input, outputPathFor(input))
			if bar != nil {
				_ = bar.Add(1)
			}
			if err != nil {
				klog.Errorf("Failed to optimize %q: %+v", input, err)
				failed.Add(1)
				return
			}
			klog.V(1).Infof("%s", r)
			reports[ii] = r
		})
	}
	pool.Wait()
	if *flagSummary {
		for _, r := range reports {
			if r != nil {
				printReport(r)
			}
		}
	}
	if failed.Load() > 0 {
		klog.Errorf("%d of %d models failed", failed.Load(), len(inputs))
		os.Exit(1)
	}
}

// expandInputs resolves the glob patterns in args, keeping the order given and dropping duplicates.
func expandInputs(args []string) ([]string, error) {
	var inputs []string
	seen := make(map[string]bool)
	for _, arg := range args {
		arg, err := fsutil.ExpandHome(arg)
		if err != nil {
			return nil, err
		}
		matches, err := doublestar.FilepathGlob(arg)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid pattern %q", arg)
		}
		if len(matches) == 0 {
			return nil, errors.Errorf("no model matches %q", arg)
		}
		for _, match := range matches {
			if !seen[match] {
				seen[match] = true
				inputs = append(inputs, match)
			}
		}
	}
	return inputs, nil
}

// modelExtensions are matched longest first.
var modelExtensions = []string{".onnx" + onnxio.ZstdSuffix, ".onnx", ".yaml", ".yml"}

// outputPathFor returns where the optimized version of input is saved.
func outputPathFor(input string) string {
	if *flagOutput != "" {
		return *flagOutput
	}
	dir, base := filepath.Split(input)
	if *flagOutputDir != "" {
		dir = *flagOutputDir
	}
	ext := filepath.Ext(base)
	for _, candidate := range modelExtensions {
		if strings.HasSuffix(base, candidate) {
			ext = candidate
			break
		}
	}
	return filepath.Join(dir, strings.TrimSuffix(base, ext)+"_opt"+ext)
}

// optimize runs the pipeline over one model.
func optimize(input, output string) (r *report, err error) {
	if !*flagOverwrite {
		exists, err := fsutil.FileExists(output)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, errors.Errorf("output %q already exists, use -overwrite to replace it", output)
		}
	}
	var m *ir.Model
	var loadErr error
	if err = exceptions.TryCatch[error](func() { m, loadErr = onnxio.Load(input) }); err != nil {
		return nil, errors.WithMessagef(err, "loading %q", input)
	}
	if loadErr != nil {
		return nil, loadErr
	}
	r = &report{Input: input, Output: output}
	r.Before = statsOf(m)

	var keep []string
	if *flagOutputs != "" {
		keep = strings.Split(*flagOutputs, ",")
		for _, name := range keep {
			if m.Graph.Output(name) == nil {
				return nil, errors.Errorf("-outputs: %q is not an output of the graph, outputs are %q",
					name, m.Graph.OutputNames())
			}
		}
	}

	e := editor.New(m)
	err = exceptions.TryCatch[error](func() {
		if keep != nil {
			e.PruneGraph(keep)
		}
		if *flagUpdate {
			e.UpdateGraph()
		}
	})
	if err != nil {
		return nil, err
	}
	if *flagFP16 || *flagBF16 {
		opts := precision.Options{KeepIOTypes: *flagKeepIO, Target: precision.Float16}
		if *flagBF16 {
			opts.Target = precision.BFloat16
		}
		if err = precision.ConvertFloat32(e, opts); err != nil {
			return nil, err
		}
		r.Precision = opts.Target.String()
	}
	var saveErr error
	if err = exceptions.TryCatch[error](func() { saveErr = e.SaveModelToFile(output, *flagExternalData) }); err != nil {
		return nil, err
	}
	if saveErr != nil {
		return nil, saveErr
	}
	r.After = statsOf(e.Model())
	return r, nil
}

// stats of a model, taken over all its graphs.
type stats struct {
	Graphs, Nodes, Initializers int
	InitializerBytes            int64
	OpTypes                     map[string]int
}

func statsOf(m *ir.Model) stats {
	e := editor.New(m)
	s := stats{OpTypes: make(map[string]int)}
	for _, g := range e.Graphs() {
		s.Graphs++
		s.Nodes += len(g.Nodes)
		s.Initializers += len(g.Initializers)
		for _, t := range g.Initializers {
			s.InitializerBytes += int64(t.MemoryBytes())
		}
		for _, n := range g.Nodes {
			s.OpTypes[n.OpType]++
		}
	}
	return s
}

type report struct {
	Input, Output, Precision string
	Before, After            stats
}

func (r *report) String() string {
	return fmt.Sprintf("%s -> %s: %d -> %d nodes", r.Input, r.Output, r.Before.Nodes, r.After.Nodes)
}

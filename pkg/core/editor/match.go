// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package editor

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/onnxir/pkg/core/ir"
	"github.com/gomlx/onnxir/pkg/support/sets"
	"k8s.io/klog/v2"
)

// AnyInput is used as the input index in MatchParent and ParentPath to match the first input whose
// producer satisfies the constraints.
const AnyInput = -1

// Parent returns the node producing input i of node n, or nil if n has fewer inputs or the input is not
// produced by a node (graph inputs, initializers and omitted optional inputs).
func (e *Editor) Parent(n *ir.Node, i int, idx *Index) *ir.Node {
	if i < 0 || i >= len(n.Inputs) {
		return nil
	}
	idx = e.indexOrNew(idx)
	return idx.Producers[n.Inputs[i]]
}

// Parents returns the producers of the inputs of n, in input order. Inputs not produced by nodes are
// skipped, and a producer feeding several inputs is listed once per input.
func (e *Editor) Parents(n *ir.Node, idx *Index) []*ir.Node {
	idx = e.indexOrNew(idx)
	var parents []*ir.Node
	for _, input := range n.Inputs {
		if parent, found := idx.Producers[input]; found {
			parents = append(parents, parent)
		}
	}
	return parents
}

// Children returns the consumers of the outputs of n, in output order.
func (e *Editor) Children(n *ir.Node, idx *Index) []*ir.Node {
	idx = e.indexOrNew(idx)
	var children []*ir.Node
	for _, output := range n.Outputs {
		children = append(children, idx.Consumers[output]...)
	}
	return children
}

// MatchFirstParent scans the inputs of n left to right and returns the first producer of type opType
// that is not in exclude, along with the input index it feeds. It returns (nil, -1) if none matches.
func (e *Editor) MatchFirstParent(n *ir.Node, opType string, idx *Index, exclude sets.Set[*ir.Node]) (*ir.Node, int) {
	idx = e.indexOrNew(idx)
	for i, input := range n.Inputs {
		parent, found := idx.Producers[input]
		if !found {
			continue
		}
		if parent.OpType == opType && !exclude.Has(parent) {
			return parent, i
		}
		klog.V(2).Infof("To find first %s, current %s", opType, parent.OpType)
	}
	return nil, -1
}

// MatchParent returns the parent of n of type opType, or nil if there is none.
//
// If inputIndex is AnyInput, it returns the first matching parent (see MatchFirstParent), and if
// outIndices is not nil, appends to it the input index of the match (-1 if not matched). Otherwise only
// the producer of input inputIndex is considered.
//
// Parents in exclude never match. exclude may be nil.
func (e *Editor) MatchParent(n *ir.Node, opType string, inputIndex int, idx *Index,
	exclude sets.Set[*ir.Node], outIndices *[]int) *ir.Node {
	if n == nil {
		exceptions.Panicf("Editor.MatchParent: nil node")
	}
	if inputIndex < AnyInput {
		exceptions.Panicf("Editor.MatchParent: invalid input index %d, it must be >= 0 or AnyInput", inputIndex)
	}
	idx = e.indexOrNew(idx)

	if inputIndex == AnyInput {
		parent, index := e.MatchFirstParent(n, opType, idx, exclude)
		if outIndices != nil {
			*outIndices = append(*outIndices, index)
		}
		return parent
	}

	if inputIndex >= len(n.Inputs) {
		klog.V(2).Infof("input index %d >= node inputs %d", inputIndex, len(n.Inputs))
		return nil
	}
	parent := e.Parent(n, inputIndex, idx)
	if parent == nil {
		return nil
	}
	if parent.OpType == opType && !exclude.Has(parent) {
		return parent
	}
	klog.V(2).Infof("Expect %s, Got %s", opType, parent.OpType)
	return nil
}

// MatchParentPath walks up from n one hop per entry of opTypes: hop i must reach a node of type
// opTypes[i] through input inputIndices[i] of the previous node (AnyInput for the first matching input).
//
// It returns the matched nodes in hop order, or nil if any hop fails to match: there are no partial
// results and no backtracking across hops. The input indices chosen for AnyInput hops are appended to
// outIndices if it is not nil.
//
// It panics if opTypes and inputIndices have different lengths.
func (e *Editor) MatchParentPath(n *ir.Node, opTypes []string, inputIndices []int, idx *Index, outIndices *[]int) []*ir.Node {
	if len(opTypes) != len(inputIndices) {
		exceptions.Panicf("Editor.MatchParentPath: got %d operator types but %d input indices",
			len(opTypes), len(inputIndices))
	}
	idx = e.indexOrNew(idx)
	current := n
	matched := make([]*ir.Node, 0, len(opTypes))
	for i, opType := range opTypes {
		parent := e.MatchParent(current, opType, inputIndices[i], idx, nil, outIndices)
		if parent == nil {
			klog.V(2).Infof("Failed to match index=%d input_index=%d op_type=%s", i, inputIndices[i], opType)
			return nil
		}
		matched = append(matched, parent)
		current = parent
	}
	return matched
}

// ParentPath is one candidate path for MatchParentPaths.
type ParentPath struct {
	OpTypes      []string
	InputIndices []int
}

// MatchParentPaths tries each candidate path in order and returns the index of the first that fully
// matches, the matched nodes and the input indices chosen for AnyInput hops.
// It returns (-1, nil, nil) if no path matches.
func (e *Editor) MatchParentPaths(n *ir.Node, paths []ParentPath, idx *Index) (int, []*ir.Node, []int) {
	idx = e.indexOrNew(idx)
	for i, path := range paths {
		var indices []int
		if matched := e.MatchParentPath(n, path.OpTypes, path.InputIndices, idx, &indices); matched != nil {
			return i, matched, indices
		}
	}
	return -1, nil, nil
}

// workQueue is the traversal order used by the first-by-type searches and the subgraph collections: the
// initial nodes are visited last-to-first, and nodes discovered later are visited in discovery order.
type workQueue []*ir.Node

func newWorkQueue(initial []*ir.Node) workQueue {
	q := make(workQueue, 0, len(initial))
	for i := len(initial) - 1; i >= 0; i-- {
		q = append(q, initial[i])
	}
	return q
}

func (q *workQueue) push(nodes ...*ir.Node) {
	*q = append(*q, nodes...)
}

func (q *workQueue) pop() *ir.Node {
	n := (*q)[0]
	*q = (*q)[1:]
	return n
}

// FindFirstChildByType searches downstream of n for a node of type opType, starting with its direct
// children. If recursive is false, only direct children are considered. It returns nil if none is found.
func (e *Editor) FindFirstChildByType(n *ir.Node, opType string, idx *Index, recursive bool) *ir.Node {
	idx = e.indexOrNew(idx)
	queue := newWorkQueue(e.Children(n, idx))
	visited := sets.Make[*ir.Node]()
	for len(queue) > 0 {
		current := queue.pop()
		if !visited.InsertNew(current) {
			continue
		}
		if current.OpType == opType {
			return current
		}
		if recursive {
			queue.push(e.Children(current, idx)...)
		}
	}
	return nil
}

// FindFirstParentByType searches upstream of n for a node of type opType, starting with its direct
// parents. If recursive is false, only direct parents are considered. It returns nil if none is found.
func (e *Editor) FindFirstParentByType(n *ir.Node, opType string, idx *Index, recursive bool) *ir.Node {
	idx = e.indexOrNew(idx)
	queue := newWorkQueue(e.Parents(n, idx))
	visited := sets.Make[*ir.Node]()
	for len(queue) > 0 {
		current := queue.pop()
		if !visited.InsertNew(current) {
			continue
		}
		if current.OpType == opType {
			return current
		}
		if recursive {
			queue.push(e.Parents(current, idx)...)
		}
	}
	return nil
}

// ChildrenSubgraphNodes returns all nodes reachable downstream from root (root itself excluded), without
// crossing nodes in stop: stop nodes are neither returned nor expanded. Each node is listed once, in
// visiting order. stop may be nil.
func (e *Editor) ChildrenSubgraphNodes(root *ir.Node, stop sets.Set[*ir.Node], idx *Index) []*ir.Node {
	idx = e.indexOrNew(idx)
	queue := newWorkQueue(e.Children(root, idx))
	visited := sets.Make[*ir.Node]()
	var nodes []*ir.Node
	for len(queue) > 0 {
		current := queue.pop()
		if stop.Has(current) || !visited.InsertNew(current) {
			continue
		}
		nodes = append(nodes, current)
		for _, output := range current.Outputs {
			queue.push(idx.Consumers[output]...)
		}
	}
	return nodes
}

// ParentSubgraphNodes returns all nodes reachable upstream from n (n itself excluded), without crossing
// nodes in stop. Each node is listed once, in visiting order. stop may be nil.
func (e *Editor) ParentSubgraphNodes(n *ir.Node, stop sets.Set[*ir.Node], idx *Index) []*ir.Node {
	idx = e.indexOrNew(idx)
	queue := newWorkQueue(e.Parents(n, idx))
	visited := sets.Make[*ir.Node]()
	var nodes []*ir.Node
	for len(queue) > 0 {
		current := queue.pop()
		if stop.Has(current) || !visited.InsertNew(current) {
			continue
		}
		nodes = append(nodes, current)
		for _, input := range current.Inputs {
			if parent, found := idx.Producers[input]; found {
				queue.push(parent)
			}
		}
	}
	return nodes
}

// GraphInputsOf returns the names of the primary graph inputs consumed by n, without repetitions. If
// recursive, inputs consumed by any node upstream of n are included.
func (e *Editor) GraphInputsOf(n *ir.Node, recursive bool) []string {
	var names []string
	seen := sets.Make[string]()
	collect := func(node *ir.Node) {
		for _, input := range node.Inputs {
			if e.FindGraphInput(input) != nil && seen.InsertNew(input) {
				names = append(names, input)
			}
		}
	}
	collect(n)
	if recursive {
		for _, parent := range e.ParentSubgraphNodes(n, nil, nil) {
			collect(parent)
		}
	}
	return names
}

// InputIndex returns the index of the first input of child that is the value output, or -1.
func InputIndex(output string, child *ir.Node) int {
	for i, input := range child.Inputs {
		if input == output {
			return i
		}
	}
	return -1
}

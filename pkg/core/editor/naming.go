// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package editor

import (
	"strconv"
	"strings"
)

// CreateNodeName returns a new node name made of a prefix and a numeric suffix (e.g. "Add_3"), unique
// across all names in the discovered graphs and all names previously created by this Editor.
//
// The prefix is namePrefix if given, or opType otherwise, followed by "_" (unless it already ends in one).
//
// Existing names are scanned only on the first call for a prefix: later calls just advance the suffix,
// assuming new nodes are named by this method.
func (e *Editor) CreateNodeName(opType, namePrefix string) string {
	prefix := namePrefix
	if prefix == "" {
		prefix = opType
	}
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}

	suffix := 0
	if last, found := e.nodeNameSuffix[prefix]; found {
		suffix = last + 1
	} else {
		for _, node := range e.AllNodes() {
			if !strings.HasPrefix(node.Name, prefix) {
				continue
			}
			index, err := strconv.Atoi(node.Name[len(prefix):])
			if err != nil {
				continue
			}
			suffix = max(suffix, index+1)
		}
	}
	e.nodeNameSuffix[prefix] = suffix
	return prefix + strconv.Itoa(suffix)
}

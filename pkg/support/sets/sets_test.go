// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s := Make[int](10)
	assert.Len(t, s, 0)

	s.Insert(3, 7)
	assert.Len(t, s, 2)
	assert.True(t, s.Has(3))
	assert.True(t, s.Has(7))
	assert.False(t, s.Has(5))

	s2 := MakeWith(5, 7)
	s3 := s.Sub(s2)
	assert.True(t, s3.Equal(MakeWith(3)))

	s.Remove(7, 11)
	assert.True(t, s.Equal(s3))
	assert.False(t, s.Equal(s2))
}

func TestInsertNew(t *testing.T) {
	type node struct{ name string }
	a, b := &node{"a"}, &node{"a"}
	visited := Make[*node]()
	assert.True(t, visited.InsertNew(a))
	assert.False(t, visited.InsertNew(a))
	// Keyed by pointer, not by contents.
	assert.True(t, visited.InsertNew(b))

	var empty Set[*node]
	assert.False(t, empty.Has(a))
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)

	oddRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
)

func newPlainTable(withHeader bool) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if withHeader && row == 1 {
				return headerRowStyle
			}
			if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			if col == 0 {
				return s.Align(lipgloss.Right)
			}
			return s.Align(lipgloss.Left)
		})
}

func printReport(r *report) {
	fmt.Println(titleStyle.Render(r.Input))
	table := newPlainTable(true)
	table.Row("", "Before", "After")
	table.Row("output", "", r.Output)
	if r.Precision != "" {
		table.Row("precision", "float32", r.Precision)
	}
	table.Row("# graphs", humanize.Comma(int64(r.Before.Graphs)), humanize.Comma(int64(r.After.Graphs)))
	table.Row("# nodes", humanize.Comma(int64(r.Before.Nodes)), humanize.Comma(int64(r.After.Nodes)))
	table.Row("# initializers", humanize.Comma(int64(r.Before.Initializers)), humanize.Comma(int64(r.After.Initializers)))
	table.Row("initializers size", humanize.Bytes(uint64(r.Before.InitializerBytes)), humanize.Bytes(uint64(r.After.InitializerBytes)))
	fmt.Println(table.Render())

	if *flagOps {
		fmt.Println(titleStyle.Render("Operators"))
		ops := newPlainTable(true)
		ops.Row("Operator", "Before", "After")
		for _, opType := range slices.Sorted(maps.Keys(r.Before.OpTypes)) {
			ops.Row(opType, humanize.Comma(int64(r.Before.OpTypes[opType])), humanize.Comma(int64(r.After.OpTypes[opType])))
		}
		for _, opType := range slices.Sorted(maps.Keys(r.After.OpTypes)) {
			if _, found := r.Before.OpTypes[opType]; !found {
				ops.Row(opType, "0", humanize.Comma(int64(r.After.OpTypes[opType])))
			}
		}
		fmt.Println(ops.Render())
	}
}

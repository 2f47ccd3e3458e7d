// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package report

import (
	"fmt"
	"io"
	"slices"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/nlpodyssey/tensorinspect"
	"github.com/pkg/errors"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Padding(1, 0, 0, 2)
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	summaryRowStyle = lipgloss.NewStyle().Bold(true).
			PaddingLeft(1).PaddingRight(1)
)

// newPlainTable creates a bordered table with zebra rows. Columns take the
// given alignments in order; the last alignment applies to the remaining
// columns. Rows listed in bold use the summary style.
func newPlainTable(bold map[int]bool, alignments ...lipgloss.Position) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			switch {
			case row < 0:
				return headerRowStyle
			case bold[row]:
				s = summaryRowStyle
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			} else if len(alignments) > 0 {
				alignment = alignments[len(alignments)-1]
			}
			return s.Align(alignment)
		})
}

// Summary holds the totals of a listing.
type Summary struct {
	Tensors  int
	Elements int
	Bytes    int
}

// Summarize computes the totals of l.
func Summarize(l *tensorinspect.Listing) Summary {
	return Summary{
		Tensors:  len(l.Tensors),
		Elements: l.NumElements(),
		Bytes:    l.ByteSize(),
	}
}

// RenderTable writes a table of the tensors of l, followed by a summary row
// and, when present, a table of the free-form metadata.
func RenderTable(w io.Writer, l *tensorinspect.Listing) error {
	title := l.Format.String()
	if l.Path != "" {
		title = fmt.Sprintf("%s (%s)", l.Path, l.Format)
	}
	if l.Version != "" {
		title = fmt.Sprintf("%s, version %s", title, l.Version)
	}

	withStorage := slices.ContainsFunc(l.Tensors, func(t tensorinspect.TensorInfo) bool {
		return t.StorageID != ""
	})
	headers := []string{"Name", "DType", "Shape", "Elements", "Bytes"}
	if withStorage {
		headers = append(headers, "Storage")
	}

	bold := map[int]bool{len(l.Tensors): true}
	table := newPlainTable(bold, lipgloss.Left, lipgloss.Left, lipgloss.Left, lipgloss.Right, lipgloss.Right, lipgloss.Left)
	table.Headers(headers...)
	for _, t := range l.Tensors {
		shape := shapeString(t.Shape)
		if shape == "" {
			shape = "scalar"
		}
		row := []string{
			t.Name, t.DType.String(), shape,
			humanize.Comma(int64(t.NumElements())),
			humanize.Bytes(uint64(t.ByteSize)),
		}
		if withStorage {
			row = append(row, t.StorageID)
		}
		table.Row(row...)
	}
	sum := Summarize(l)
	summary := []string{
		fmt.Sprintf("%s tensors", humanize.Comma(int64(sum.Tensors))), "", "",
		humanize.Comma(int64(sum.Elements)),
		humanize.Bytes(uint64(sum.Bytes)),
	}
	if withStorage {
		summary = append(summary, "")
	}
	table.Row(summary...)

	if _, err := fmt.Fprintln(w, titleStyle.Render(title)); err != nil {
		return errors.Wrap(err, "failed to write table title")
	}
	if _, err := fmt.Fprintln(w, table.Render()); err != nil {
		return errors.Wrap(err, "failed to write tensors table")
	}
	if len(l.Metadata) == 0 {
		return nil
	}

	keys := make([]string, 0, len(l.Metadata))
	for k := range l.Metadata {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	meta := newPlainTable(nil, lipgloss.Right, lipgloss.Left)
	meta.Headers("Key", "Value")
	for _, k := range keys {
		meta.Row(k, l.Metadata[k])
	}
	if _, err := fmt.Fprintln(w, titleStyle.Render("Metadata")); err != nil {
		return errors.Wrap(err, "failed to write metadata title")
	}
	_, err := fmt.Fprintln(w, meta.Render())
	return errors.Wrap(err, "failed to write metadata table")
}

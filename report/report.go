// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package report renders tensor listings for humans and for scripts.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nlpodyssey/tensorinspect"
	"github.com/pkg/errors"
)

// Mode selects how a listing is rendered.
type Mode uint8

const (
	// Plain prints one line per tensor.
	Plain Mode = iota
	// Table prints a table with per-tensor sizes and a summary.
	Table
	// JSON prints the whole listing as a JSON document.
	JSON
)

var modeToString = map[Mode]string{
	Plain: "plain",
	Table: "table",
	JSON:  "json",
}

func (m Mode) String() string {
	if s, ok := modeToString[m]; ok {
		return s
	}
	return fmt.Sprintf("Mode(%d)", m)
}

// ParseMode converts the name of a Mode (as returned by String) to its value.
func ParseMode(s string) (Mode, error) {
	for k, v := range modeToString {
		if v == s {
			return k, nil
		}
	}
	return 0, errors.Errorf("unknown output format %q (valid: plain, table, json)", s)
}

// Write renders l to w according to mode. The detailed flag only affects
// the Plain mode.
func Write(w io.Writer, l *tensorinspect.Listing, mode Mode, detailed bool) error {
	switch mode {
	case Plain:
		if detailed {
			return Detailed(w, l)
		}
		return Names(w, l)
	case Table:
		return RenderTable(w, l)
	case JSON:
		return WriteJSON(w, l)
	default:
		return errors.Errorf("invalid output mode %d", mode)
	}
}

// Names prints the name of each tensor, one per line.
func Names(w io.Writer, l *tensorinspect.Listing) error {
	for _, t := range l.Tensors {
		if _, err := fmt.Fprintln(w, t.Name); err != nil {
			return errors.Wrap(err, "failed to write tensor name")
		}
	}
	return nil
}

// Detailed prints one line per tensor in the form
//
//	name - DTYPE - d0 x d1 x ...
//
// A scalar has an empty dimensions part.
func Detailed(w io.Writer, l *tensorinspect.Listing) error {
	for _, t := range l.Tensors {
		if _, err := fmt.Fprintf(w, "%s - %s - %s\n", t.Name, t.DType, shapeString(t.Shape)); err != nil {
			return errors.Wrapf(err, "failed to write tensor %q", t.Name)
		}
	}
	return nil
}

// WriteJSON encodes the listings as indented JSON: a single listing is
// written as an object, more than one as an array.
func WriteJSON(w io.Writer, listings ...*tensorinspect.Listing) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	var v any = listings
	if len(listings) == 1 {
		v = listings[0]
	}
	return errors.Wrap(enc.Encode(v), "failed to encode listing")
}

func shapeString(shape []int) string {
	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = strconv.Itoa(d)
	}
	return strings.Join(dims, " x ")
}

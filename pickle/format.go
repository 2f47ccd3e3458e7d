// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pickle

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/nlpodyssey/tensorinspect/errkind"
)

// maxHashKeySize bounds the encoding of a single hashable value. Tuples
// recalled from the memo can share items, so the encoding of a small stream
// can otherwise grow exponentially.
const maxHashKeySize = 1 << 16

// hashKey returns a canonical encoding of a hashable value, usable as a Go
// map key. Values comparing equal in Python (1, 1.0 and True) share the
// same encoding.
func hashKey(v Value) (string, error) {
	h := hasher{budget: maxHashKeySize}
	return h.key(v)
}

type hasher struct {
	budget int
}

func (h *hasher) key(v Value) (string, error) {
	var sb strings.Builder
	if err := h.write(&sb, v); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// spend consumes n bytes of the budget.
func (h *hasher) spend(n int) error {
	h.budget -= n
	if h.budget < 0 {
		return errkind.New(errkind.MalformedValue, "hash key exceeds %d bytes", maxHashKeySize)
	}
	return nil
}

func (h *hasher) write(sb *strings.Builder, v Value) error {
	before := sb.Len()
	if err := h.spend(1); err != nil {
		return err
	}
	switch v := v.(type) {
	case None:
		sb.WriteByte('N')
	case Bool:
		if v {
			sb.WriteString("I1;")
		} else {
			sb.WriteString("I0;")
		}
	case Int:
		sb.WriteByte('I')
		sb.WriteString(strconv.FormatInt(int64(v), 10))
		sb.WriteByte(';')
	case Float:
		f := float64(v)
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			sb.WriteByte('I')
			sb.WriteString(strconv.FormatInt(int64(f), 10))
			sb.WriteByte(';')
			break
		}
		sb.WriteByte('F')
		sb.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
		sb.WriteByte(';')
	case String:
		if err := h.spend(len(v)); err != nil {
			return err
		}
		sb.WriteByte('S')
		writeLenPrefixed(sb, string(v))
	case Bytes:
		if err := h.spend(len(v)); err != nil {
			return err
		}
		sb.WriteByte('B')
		writeLenPrefixed(sb, string(v))
	case Global:
		if err := h.spend(len(v.Module) + len(v.Name)); err != nil {
			return err
		}
		sb.WriteByte('G')
		writeLenPrefixed(sb, v.Module)
		writeLenPrefixed(sb, v.Name)
	case Tuple:
		sb.WriteString("T(")
		for _, item := range v {
			if err := h.write(sb, item); err != nil {
				return err
			}
		}
		sb.WriteByte(')')
	case *Set:
		if !v.Frozen {
			return errUnhashable(v)
		}
		keys := make([]string, len(v.items))
		for i, item := range v.items {
			k, err := h.key(item)
			if err != nil {
				return err
			}
			keys[i] = k
		}
		slices.Sort(keys)
		sb.WriteString("Z(")
		for _, k := range keys {
			sb.WriteString(k)
		}
		sb.WriteByte(')')
		return h.spend(sb.Len() - before)
	default:
		return errUnhashable(v)
	}
	return nil
}

func writeLenPrefixed(sb *strings.Builder, s string) {
	sb.WriteString(strconv.Itoa(len(s)))
	sb.WriteByte(':')
	sb.WriteString(s)
}

const (
	// maxFormatItems limits the number of container items rendered by Format.
	maxFormatItems = 16
	// maxFormatSize is the output size after which Format stops descending
	// into values.
	maxFormatSize = 1024
)

// Format renders a Value in a Python-like notation, for diagnostics.
// Large containers are abbreviated, containers already being rendered are
// shown as "...", and the output stops growing past about a kilobyte.
func Format(v Value) string {
	f := formatter{visiting: make(map[any]bool)}
	f.format(v)
	return f.sb.String()
}

type formatter struct {
	sb        strings.Builder
	visiting  map[any]bool
	truncated bool
}

// full reports whether the output reached maxFormatSize, marking the cut
// the first time.
func (f *formatter) full() bool {
	if f.sb.Len() < maxFormatSize {
		return false
	}
	if !f.truncated {
		f.sb.WriteString("...")
		f.truncated = true
	}
	return true
}

func (f *formatter) enter(p any) bool {
	if f.visiting[p] {
		f.sb.WriteString("...")
		return false
	}
	f.visiting[p] = true
	return true
}

func (f *formatter) leave(p any) { delete(f.visiting, p) }

func (f *formatter) format(v Value) {
	if f.full() {
		return
	}
	switch v := v.(type) {
	case nil:
		f.sb.WriteString("<nil>")
	case None:
		f.sb.WriteString("None")
	case Bool:
		if v {
			f.sb.WriteString("True")
		} else {
			f.sb.WriteString("False")
		}
	case Int:
		f.sb.WriteString(strconv.FormatInt(int64(v), 10))
	case Float:
		f.sb.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 64))
	case String:
		f.sb.WriteString(strconv.Quote(string(v)))
	case Bytes:
		f.sb.WriteByte('b')
		f.sb.WriteString(strconv.Quote(string(v)))
	case Tuple:
		f.sb.WriteByte('(')
		f.items(v)
		if len(v) == 1 {
			f.sb.WriteByte(',')
		}
		f.sb.WriteByte(')')
	case *List:
		if !f.enter(v) {
			return
		}
		defer f.leave(v)
		f.sb.WriteByte('[')
		f.items(v.Items)
		f.sb.WriteByte(']')
	case *Dict:
		if !f.enter(v) {
			return
		}
		defer f.leave(v)
		f.dict(v)
	case *Set:
		if !f.enter(v) {
			return
		}
		defer f.leave(v)
		if v.Frozen {
			f.sb.WriteString("frozenset(")
		}
		f.sb.WriteByte('{')
		f.items(v.items)
		f.sb.WriteByte('}')
		if v.Frozen {
			f.sb.WriteByte(')')
		}
	case Global:
		f.sb.WriteString(v.FullName())
	case *Reduce:
		if !f.enter(v) {
			return
		}
		defer f.leave(v)
		f.format(v.Callable)
		f.sb.WriteByte('(')
		f.items(v.Args)
		f.sb.WriteByte(')')
	case PersistentID:
		f.sb.WriteString("pid(")
		f.format(v.ID)
		f.sb.WriteByte(')')
	case Ref:
		f.sb.WriteString("ref(")
		f.sb.WriteString(strconv.Itoa(int(v)))
		f.sb.WriteByte(')')
	default:
		f.sb.WriteString("<unknown>")
	}
}

func (f *formatter) items(items []Value) {
	for i, item := range items {
		if i > 0 {
			f.sb.WriteString(", ")
		}
		if i == maxFormatItems {
			f.sb.WriteString("...")
			return
		}
		if f.full() {
			return
		}
		f.format(item)
	}
}

func (f *formatter) dict(d *Dict) {
	f.sb.WriteByte('{')
	for i, k := range d.keys {
		if i > 0 {
			f.sb.WriteString(", ")
		}
		if i == maxFormatItems {
			f.sb.WriteString("...")
			break
		}
		if f.full() {
			break
		}
		f.format(k)
		f.sb.WriteString(": ")
		f.format(d.values[i])
	}
	f.sb.WriteByte('}')
}

// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pickle

import (
	"iter"

	"github.com/nlpodyssey/tensorinspect/errkind"
)

// Kind identifies the concrete type of a Value.
type Kind uint8

const (
	KindNone Kind = iota + 1
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindTuple
	KindList
	KindDict
	KindSet
	KindGlobal
	KindReduce
	KindPersistentID
	KindRef
)

var kindNames = [...]string{
	KindNone:         "None",
	KindBool:         "Bool",
	KindInt:          "Int",
	KindFloat:        "Float",
	KindString:       "String",
	KindBytes:        "Bytes",
	KindTuple:        "Tuple",
	KindList:         "List",
	KindDict:         "Dict",
	KindSet:          "Set",
	KindGlobal:       "Global",
	KindReduce:       "Reduce",
	KindPersistentID: "PersistentID",
	KindRef:          "Ref",
}

func (k Kind) String() string {
	if k == 0 || int(k) >= len(kindNames) {
		return "Invalid"
	}
	return kindNames[k]
}

// Value is a decoded pickle value. It is one of:
// None, Bool, Int, Float, String, Bytes, Tuple, *List, *Dict, *Set,
// Global, *Reduce, PersistentID, Ref.
//
// Mutable containers (List, Dict, Set, Reduce) are pointers: a value
// recalled from the memo is the very same object that was memoized.
type Value interface {
	Kind() Kind
	String() string
}

// None is the Python None singleton.
type None struct{}

// Bool is a Python bool.
type Bool bool

// Int is a Python int which fits in 64 bits.
type Int int64

// Float is a Python float.
type Float float64

// String is a Python str.
type String string

// Bytes is a Python bytes or bytearray.
type Bytes []byte

// Tuple is an immutable Python tuple.
type Tuple []Value

// List is a Python list.
type List struct {
	Items []Value
}

// Global is a reference to a module-level object (class or function),
// identified by name only. It is never resolved.
type Global struct {
	Module string
	Name   string
}

// Reduce records the construction of an object by calling Callable with
// Args, without performing it.
type Reduce struct {
	Callable Value
	Args     Tuple
	// Kwargs holds keyword arguments given with NEWOBJ_EX, or nil.
	Kwargs *Dict
	// State is the argument of a BUILD applied to the object, or nil.
	State Value
	// ListItems are values appended to the object (list subclasses).
	ListItems []Value
	// DictItems are items set on the object (dict subclasses), or nil.
	DictItems *Dict
}

// PersistentID is a reference to an object stored outside the pickle
// stream, as produced by PERSID and BINPERSID. It is never resolved.
type PersistentID struct {
	ID Value
}

// Ref is a back-reference to the memo entry with the given id. It replaces
// a container inserted into itself, so that such trees stay finite.
type Ref int

func (None) Kind() Kind         { return KindNone }
func (Bool) Kind() Kind         { return KindBool }
func (Int) Kind() Kind          { return KindInt }
func (Float) Kind() Kind        { return KindFloat }
func (String) Kind() Kind       { return KindString }
func (Bytes) Kind() Kind        { return KindBytes }
func (Tuple) Kind() Kind        { return KindTuple }
func (*List) Kind() Kind        { return KindList }
func (*Dict) Kind() Kind        { return KindDict }
func (*Set) Kind() Kind         { return KindSet }
func (Global) Kind() Kind       { return KindGlobal }
func (*Reduce) Kind() Kind      { return KindReduce }
func (PersistentID) Kind() Kind { return KindPersistentID }
func (Ref) Kind() Kind          { return KindRef }

func (v None) String() string         { return Format(v) }
func (v Bool) String() string         { return Format(v) }
func (v Int) String() string          { return Format(v) }
func (v Float) String() string        { return Format(v) }
func (v String) String() string       { return Format(v) }
func (v Bytes) String() string        { return Format(v) }
func (v Tuple) String() string        { return Format(v) }
func (v *List) String() string        { return Format(v) }
func (v *Dict) String() string        { return Format(v) }
func (v *Set) String() string         { return Format(v) }
func (v Global) String() string       { return Format(v) }
func (v *Reduce) String() string      { return Format(v) }
func (v PersistentID) String() string { return Format(v) }
func (v Ref) String() string          { return Format(v) }

// Global returns the callable of the Reduce, if it is a Global.
func (r *Reduce) Global() (Global, bool) {
	g, ok := r.Callable.(Global)
	return g, ok
}

// FullName returns the dotted name of the Global, "module.Name".
func (g Global) FullName() string {
	if g.Module == "" {
		return g.Name
	}
	return g.Module + "." + g.Name
}

// Dict is a Python dict, preserving insertion order.
//
// Only hashable values can be used as keys: None, Bool, Int, Float, String,
// Bytes, Global, and Tuple or frozen Set of hashable values.
type Dict struct {
	keys   []Value
	values []Value
	index  map[string]int
}

// NewDict returns an empty Dict.
func NewDict() *Dict {
	return &Dict{index: make(map[string]int)}
}

// Set associates value to key. A key already present keeps its position.
// It fails with errkind.MalformedValue if the key is not hashable.
func (d *Dict) Set(key, value Value) error {
	h, err := hashKey(key)
	if err != nil {
		return err
	}
	if d.index == nil {
		d.index = make(map[string]int)
	}
	if i, ok := d.index[h]; ok {
		d.values[i] = value
		return nil
	}
	d.index[h] = len(d.keys)
	d.keys = append(d.keys, key)
	d.values = append(d.values, value)
	return nil
}

// Get returns the value associated to key, and whether it was found.
func (d *Dict) Get(key Value) (Value, bool) {
	h, err := hashKey(key)
	if err != nil {
		return nil, false
	}
	i, ok := d.index[h]
	if !ok {
		return nil, false
	}
	return d.values[i], true
}

// Len returns the number of items.
func (d *Dict) Len() int { return len(d.keys) }

// Keys returns the keys, in insertion order.
func (d *Dict) Keys() []Value {
	out := make([]Value, len(d.keys))
	copy(out, d.keys)
	return out
}

// Items iterates over key/value pairs, in insertion order.
func (d *Dict) Items() iter.Seq2[Value, Value] {
	return func(yield func(Value, Value) bool) {
		for i, k := range d.keys {
			if !yield(k, d.values[i]) {
				return
			}
		}
	}
}

// Set is a Python set or frozenset, preserving insertion order.
type Set struct {
	Frozen bool
	items  []Value
	index  map[string]struct{}
}

// Add inserts a value, unless already present.
// It fails with errkind.MalformedValue if the value is not hashable.
func (s *Set) Add(v Value) error {
	h, err := hashKey(v)
	if err != nil {
		return err
	}
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	if _, ok := s.index[h]; ok {
		return nil
	}
	s.index[h] = struct{}{}
	s.items = append(s.items, v)
	return nil
}

// Len returns the number of items.
func (s *Set) Len() int { return len(s.items) }

// Items returns the items, in insertion order.
func (s *Set) Items() []Value {
	out := make([]Value, len(s.items))
	copy(out, s.items)
	return out
}

// errUnhashable is returned for values which cannot be used as Dict keys
// or Set items.
func errUnhashable(v Value) error {
	return errkind.New(errkind.MalformedValue, "unhashable value of kind %s", v.Kind()).WithValue(v.Kind())
}

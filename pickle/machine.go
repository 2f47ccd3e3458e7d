// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pickle decodes Python pickle streams into a tree of inert values.
//
// The decoder never imports, calls or instantiates anything: references to
// classes and functions are kept as Global values, object constructions as
// Reduce values, and external references as PersistentID values. Opcodes
// without a safe data-only interpretation are rejected with
// errkind.UnsupportedOpcode.
package pickle

import (
	"strconv"
	"unicode/utf8"

	"github.com/nlpodyssey/tensorinspect/errkind"
	"github.com/pkg/errors"
)

// State is the execution state of a Machine.
type State uint8

const (
	// Running means the machine has not reached a terminal state yet.
	Running State = iota
	// Stopped means the STOP opcode was executed and a result is available.
	Stopped
	// Failed means decoding stopped on an error.
	Failed
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	case Failed:
		return "Failed"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// ErrTerminated is returned by Run on a machine which already stopped or
// failed.
var ErrTerminated = errors.New("pickle: machine already terminated")

// Machine is a single-use pickle interpreter.
type Machine struct {
	r      reader
	stack  []Value
	marks  []int
	memo   map[int]Value
	state  State
	proto  int
	op     Opcode
	opPos  int
	result Value
}

// NewMachine returns a Machine ready to decode "data".
func NewMachine(data []byte) *Machine {
	return &Machine{
		r:    reader{data: data},
		memo: make(map[int]Value),
	}
}

// Decode decodes a complete pickle stream.
func Decode(data []byte) (Value, error) {
	return NewMachine(data).Run()
}

// State returns the current execution state.
func (m *Machine) State() State { return m.state }

// Protocol returns the protocol declared by PROTO, or 0 if none was seen.
func (m *Machine) Protocol() int { return m.proto }

// Offset returns the position of the next unread byte.
func (m *Machine) Offset() int { return m.r.Position() }

// Memo returns the value stored under the given memo id.
func (m *Machine) Memo(id int) (Value, bool) {
	v, ok := m.memo[id]
	return v, ok
}

// Run executes opcodes until STOP, returning the value on top of the stack.
// Bytes following STOP are ignored.
func (m *Machine) Run() (Value, error) {
	if m.state != Running {
		return nil, ErrTerminated
	}
	for {
		if m.r.Remaining() == 0 {
			m.state = Failed
			return nil, errkind.New(errkind.TruncatedStream, "end of stream before STOP").AtOffset(m.r.Position())
		}
		m.opPos = m.r.Position()
		b, _ := m.r.ReadByte()
		m.op = Opcode(b)

		if err := m.step(); err != nil {
			m.state = Failed
			return nil, m.annotate(err)
		}
		if m.state == Stopped {
			return m.result, nil
		}
	}
}

// annotate makes sure the error carries an errkind.Kind and the offset of
// the failing opcode.
func (m *Machine) annotate(err error) error {
	var e *errkind.Error
	if errors.As(err, &e) {
		if e.Offset < 0 {
			e.Offset = m.opPos
		}
		return err
	}
	return errkind.New(errkind.MalformedValue, "%s", m.op).AtOffset(m.opPos).WithCause(err)
}

func (m *Machine) malformed(format string, args ...any) *errkind.Error {
	return errkind.New(errkind.MalformedValue, "%s: "+format, append([]any{m.op}, args...)...).AtOffset(m.opPos)
}

func (m *Machine) step() error {
	switch m.op {
	case PROTO:
		b, err := m.r.ReadByte()
		if err != nil {
			return err
		}
		if b > HighestProtocol {
			return m.malformed("unsupported protocol %d", b).WithValue(int(b))
		}
		m.proto = int(b)
	case FRAME:
		n, err := m.r.ReadU64()
		if err != nil {
			return err
		}
		if n > uint64(m.r.Remaining()) {
			return errkind.New(errkind.TruncatedStream, "frame of %d bytes exceeds %d remaining bytes", n, m.r.Remaining())
		}
	case STOP:
		v, err := m.pop()
		if err != nil {
			return err
		}
		m.result = v
		m.state = Stopped

	case MARK:
		m.marks = append(m.marks, len(m.stack))
	case POP:
		if len(m.stack) > m.floor() {
			m.stack = m.stack[:len(m.stack)-1]
			return nil
		}
		_, err := m.popMark()
		return err
	case POP_MARK:
		_, err := m.popMark()
		return err
	case DUP:
		v, err := m.top()
		if err != nil {
			return err
		}
		m.push(v)

	case NONE:
		m.push(None{})
	case NEWTRUE:
		m.push(Bool(true))
	case NEWFALSE:
		m.push(Bool(false))
	case INT:
		return m.pushLine(parseIntLine)
	case BININT:
		v, err := m.r.ReadU32()
		if err != nil {
			return err
		}
		m.push(Int(int32(v)))
	case BININT1:
		v, err := m.r.ReadByte()
		if err != nil {
			return err
		}
		m.push(Int(v))
	case BININT2:
		v, err := m.r.ReadU16()
		if err != nil {
			return err
		}
		m.push(Int(v))
	case LONG:
		return m.pushLine(parseLongLine)
	case LONG1, LONG4:
		lenSize := 1
		if m.op == LONG4 {
			lenSize = 4
		}
		b, err := m.r.ReadSized(lenSize)
		if err != nil {
			return err
		}
		v, err := decodeLong(b)
		if err != nil {
			return m.malformed("%v", err).WithValue(len(b))
		}
		m.push(Int(v))
	case FLOAT:
		return m.pushLine(parseFloatLine)
	case BINFLOAT:
		v, err := m.r.ReadF64BE()
		if err != nil {
			return err
		}
		m.push(Float(v))

	case STRING:
		return m.pushLine(parseStringLine)
	case UNICODE:
		return m.pushLine(parseUnicodeLine)
	case BINSTRING:
		return m.pushSized(4, false)
	case SHORT_BINSTRING:
		return m.pushSized(1, false)
	case BINUNICODE:
		return m.pushUnicode(4)
	case SHORT_BINUNICODE:
		return m.pushUnicode(1)
	case BINUNICODE8:
		return m.pushUnicode(8)
	case BINBYTES:
		return m.pushSized(4, true)
	case SHORT_BINBYTES:
		return m.pushSized(1, true)
	case BINBYTES8, BYTEARRAY8:
		return m.pushSized(8, true)

	case EMPTY_TUPLE:
		m.push(Tuple{})
	case TUPLE:
		items, err := m.popMark()
		if err != nil {
			return err
		}
		m.push(Tuple(items))
	case TUPLE1, TUPLE2, TUPLE3:
		items, err := m.popN(int(m.op-TUPLE1) + 1)
		if err != nil {
			return err
		}
		m.push(Tuple(items))

	case EMPTY_LIST:
		m.push(&List{})
	case LIST:
		items, err := m.popMark()
		if err != nil {
			return err
		}
		m.push(&List{Items: items})
	case APPEND:
		v, err := m.pop()
		if err != nil {
			return err
		}
		return m.appendItems([]Value{v})
	case APPENDS:
		items, err := m.popMark()
		if err != nil {
			return err
		}
		return m.appendItems(items)

	case EMPTY_DICT:
		m.push(NewDict())
	case DICT:
		items, err := m.popMark()
		if err != nil {
			return err
		}
		d := NewDict()
		if err := m.setItems(d, items); err != nil {
			return err
		}
		m.push(d)
	case SETITEM:
		items, err := m.popN(2)
		if err != nil {
			return err
		}
		return m.setItemsOnTop(items)
	case SETITEMS:
		items, err := m.popMark()
		if err != nil {
			return err
		}
		return m.setItemsOnTop(items)

	case EMPTY_SET:
		m.push(&Set{})
	case ADDITEMS:
		items, err := m.popMark()
		if err != nil {
			return err
		}
		target, err := m.top()
		if err != nil {
			return err
		}
		s, ok := target.(*Set)
		if !ok || s.Frozen {
			return m.malformed("cannot add items to %s", target.Kind())
		}
		for _, item := range items {
			if err := s.Add(m.selfRef(s, item)); err != nil {
				return err
			}
		}
	case FROZENSET:
		items, err := m.popMark()
		if err != nil {
			return err
		}
		s := &Set{Frozen: true}
		for _, item := range items {
			if err := s.Add(item); err != nil {
				return err
			}
		}
		m.push(s)

	case GLOBAL:
		module, err := m.r.ReadLine()
		if err != nil {
			return err
		}
		name, err := m.r.ReadLine()
		if err != nil {
			return err
		}
		m.push(Global{Module: string(module), Name: string(name)})
	case STACK_GLOBAL:
		items, err := m.popN(2)
		if err != nil {
			return err
		}
		module, ok1 := items[0].(String)
		name, ok2 := items[1].(String)
		if !ok1 || !ok2 {
			return m.malformed("module and name must be strings, found %s and %s", items[0].Kind(), items[1].Kind())
		}
		m.push(Global{Module: string(module), Name: string(name)})
	case INST:
		module, err := m.r.ReadLine()
		if err != nil {
			return err
		}
		name, err := m.r.ReadLine()
		if err != nil {
			return err
		}
		args, err := m.popMark()
		if err != nil {
			return err
		}
		m.push(&Reduce{Callable: Global{Module: string(module), Name: string(name)}, Args: args})
	case OBJ:
		items, err := m.popMark()
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return m.malformed("missing class")
		}
		m.push(&Reduce{Callable: items[0], Args: Tuple(items[1:])})
	case REDUCE, NEWOBJ:
		items, err := m.popN(2)
		if err != nil {
			return err
		}
		args, ok := items[1].(Tuple)
		if !ok {
			return m.malformed("arguments must be a tuple, found %s", items[1].Kind())
		}
		m.push(&Reduce{Callable: items[0], Args: args})
	case NEWOBJ_EX:
		items, err := m.popN(3)
		if err != nil {
			return err
		}
		args, ok := items[1].(Tuple)
		if !ok {
			return m.malformed("arguments must be a tuple, found %s", items[1].Kind())
		}
		kwargs, ok := items[2].(*Dict)
		if !ok {
			return m.malformed("keyword arguments must be a dict, found %s", items[2].Kind())
		}
		m.push(&Reduce{Callable: items[0], Args: args, Kwargs: kwargs})
	case BUILD:
		state, err := m.pop()
		if err != nil {
			return err
		}
		target, err := m.top()
		if err != nil {
			return err
		}
		r, ok := target.(*Reduce)
		if !ok {
			return m.malformed("cannot set state of %s", target.Kind())
		}
		r.State = m.selfRef(r, state)

	case PERSID:
		line, err := m.r.ReadLine()
		if err != nil {
			return err
		}
		m.push(PersistentID{ID: String(line)})
	case BINPERSID:
		pid, err := m.pop()
		if err != nil {
			return err
		}
		m.push(PersistentID{ID: pid})

	case PUT:
		line, err := m.r.ReadLine()
		if err != nil {
			return err
		}
		id, err := strconv.Atoi(string(line))
		if err != nil || id < 0 {
			return m.malformed("invalid memo id %q", line)
		}
		return m.memoize(id)
	case BINPUT:
		id, err := m.r.ReadByte()
		if err != nil {
			return err
		}
		return m.memoize(int(id))
	case LONG_BINPUT:
		id, err := m.r.ReadU32()
		if err != nil {
			return err
		}
		return m.memoize(int(id))
	case MEMOIZE:
		return m.memoize(len(m.memo))
	case GET:
		line, err := m.r.ReadLine()
		if err != nil {
			return err
		}
		id, err := strconv.Atoi(string(line))
		if err != nil {
			return m.malformed("invalid memo id %q", line)
		}
		return m.recall(id)
	case BINGET:
		id, err := m.r.ReadByte()
		if err != nil {
			return err
		}
		return m.recall(int(id))
	case LONG_BINGET:
		id, err := m.r.ReadU32()
		if err != nil {
			return err
		}
		return m.recall(int(id))

	default:
		return errkind.New(errkind.UnsupportedOpcode, "%s", m.op).WithValue(byte(m.op))
	}
	return nil
}

func (m *Machine) push(v Value) {
	m.stack = append(m.stack, v)
}

// floor is the lowest stack position accessible without popping a mark.
func (m *Machine) floor() int {
	if len(m.marks) == 0 {
		return 0
	}
	return m.marks[len(m.marks)-1]
}

func (m *Machine) top() (Value, error) {
	if len(m.stack) <= m.floor() {
		return nil, m.malformed("stack underflow")
	}
	return m.stack[len(m.stack)-1], nil
}

func (m *Machine) pop() (Value, error) {
	v, err := m.top()
	if err != nil {
		return nil, err
	}
	m.stack = m.stack[:len(m.stack)-1]
	return v, nil
}

// popN pops n values, returned in stack order.
func (m *Machine) popN(n int) ([]Value, error) {
	if len(m.stack)-m.floor() < n {
		return nil, m.malformed("stack underflow: need %d values, have %d", n, len(m.stack)-m.floor())
	}
	i := len(m.stack) - n
	items := make([]Value, n)
	copy(items, m.stack[i:])
	m.stack = m.stack[:i]
	return items, nil
}

// popMark pops the topmost mark and every value pushed after it.
func (m *Machine) popMark() ([]Value, error) {
	if len(m.marks) == 0 {
		return nil, m.malformed("mark not found")
	}
	i := m.marks[len(m.marks)-1]
	m.marks = m.marks[:len(m.marks)-1]
	items := make([]Value, len(m.stack)-i)
	copy(items, m.stack[i:])
	m.stack = m.stack[:i]
	return items, nil
}

func (m *Machine) pushLine(parse func([]byte) (Value, error)) error {
	line, err := m.r.ReadLine()
	if err != nil {
		return err
	}
	v, err := parse(line)
	if err != nil {
		return m.malformed("%v", err)
	}
	m.push(v)
	return nil
}

func (m *Machine) pushSized(lenSize int, asBytes bool) error {
	b, err := m.r.ReadSized(lenSize)
	if err != nil {
		return err
	}
	if asBytes {
		m.push(Bytes(append([]byte(nil), b...)))
	} else {
		m.push(String(b))
	}
	return nil
}

// pushUnicode pushes a length-prefixed UTF-8 string.
func (m *Machine) pushUnicode(lenSize int) error {
	b, err := m.r.ReadSized(lenSize)
	if err != nil {
		return err
	}
	if !utf8.Valid(b) {
		return m.malformed("invalid UTF-8 string")
	}
	m.push(String(b))
	return nil
}

func (m *Machine) appendItems(items []Value) error {
	target, err := m.top()
	if err != nil {
		return err
	}
	switch t := target.(type) {
	case *List:
		for _, item := range items {
			t.Items = append(t.Items, m.selfRef(t, item))
		}
	case *Reduce:
		for _, item := range items {
			t.ListItems = append(t.ListItems, m.selfRef(t, item))
		}
	default:
		return m.malformed("cannot append to %s", target.Kind())
	}
	return nil
}

func (m *Machine) setItemsOnTop(items []Value) error {
	target, err := m.top()
	if err != nil {
		return err
	}
	switch t := target.(type) {
	case *Dict:
		return m.setItems(t, items)
	case *Reduce:
		if t.DictItems == nil {
			t.DictItems = NewDict()
		}
		return m.setItems(t.DictItems, items)
	default:
		return m.malformed("cannot set items on %s", target.Kind())
	}
}

func (m *Machine) setItems(d *Dict, items []Value) error {
	if len(items)%2 != 0 {
		return m.malformed("odd number of items (%d)", len(items))
	}
	for i := 0; i < len(items); i += 2 {
		if err := d.Set(items[i], m.selfRef(d, items[i+1])); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) memoize(id int) error {
	v, err := m.top()
	if err != nil {
		return err
	}
	m.memo[id] = v
	return nil
}

func (m *Machine) recall(id int) error {
	v, ok := m.memo[id]
	if !ok {
		return m.malformed("memo id %d not found", id).WithValue(id)
	}
	m.push(v)
	return nil
}

// selfRef returns a Ref to the memo entry of container if item is the
// container itself, and item otherwise.
func (m *Machine) selfRef(container, item Value) Value {
	if !samePointer(container, item) {
		return item
	}
	for id, v := range m.memo {
		if samePointer(v, container) {
			return Ref(id)
		}
	}
	return Ref(-1)
}

func samePointer(a, b Value) bool {
	switch a := a.(type) {
	case *List:
		b, ok := b.(*List)
		return ok && a == b
	case *Dict:
		b, ok := b.(*Dict)
		return ok && a == b
	case *Set:
		b, ok := b.(*Set)
		return ok && a == b
	case *Reduce:
		b, ok := b.(*Reduce)
		return ok && a == b
	default:
		return false
	}
}

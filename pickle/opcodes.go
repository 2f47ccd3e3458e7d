// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pickle

import "fmt"

// Opcode is a single pickle instruction byte.
type Opcode byte

// Supported opcodes, up to protocol 4.
const (
	MARK            Opcode = '('
	STOP            Opcode = '.'
	POP             Opcode = '0'
	POP_MARK        Opcode = '1'
	DUP             Opcode = '2'
	FLOAT           Opcode = 'F'
	INT             Opcode = 'I'
	BININT          Opcode = 'J'
	BININT1         Opcode = 'K'
	LONG            Opcode = 'L'
	BININT2         Opcode = 'M'
	NONE            Opcode = 'N'
	PERSID          Opcode = 'P'
	BINPERSID       Opcode = 'Q'
	REDUCE          Opcode = 'R'
	STRING          Opcode = 'S'
	BINSTRING       Opcode = 'T'
	SHORT_BINSTRING Opcode = 'U'
	UNICODE         Opcode = 'V'
	BINUNICODE      Opcode = 'X'
	APPEND          Opcode = 'a'
	BUILD           Opcode = 'b'
	GLOBAL          Opcode = 'c'
	DICT            Opcode = 'd'
	EMPTY_DICT      Opcode = '}'
	APPENDS         Opcode = 'e'
	GET             Opcode = 'g'
	BINGET          Opcode = 'h'
	INST            Opcode = 'i'
	LONG_BINGET     Opcode = 'j'
	LIST            Opcode = 'l'
	EMPTY_LIST      Opcode = ']'
	OBJ             Opcode = 'o'
	PUT             Opcode = 'p'
	BINPUT          Opcode = 'q'
	LONG_BINPUT     Opcode = 'r'
	SETITEM         Opcode = 's'
	TUPLE           Opcode = 't'
	EMPTY_TUPLE     Opcode = ')'
	SETITEMS        Opcode = 'u'
	BINFLOAT        Opcode = 'G'

	PROTO    Opcode = 0x80
	NEWOBJ   Opcode = 0x81
	TUPLE1   Opcode = 0x85
	TUPLE2   Opcode = 0x86
	TUPLE3   Opcode = 0x87
	NEWTRUE  Opcode = 0x88
	NEWFALSE Opcode = 0x89
	LONG1    Opcode = 0x8a
	LONG4    Opcode = 0x8b

	BINBYTES       Opcode = 'B'
	SHORT_BINBYTES Opcode = 'C'

	SHORT_BINUNICODE Opcode = 0x8c
	BINUNICODE8      Opcode = 0x8d
	BINBYTES8        Opcode = 0x8e
	EMPTY_SET        Opcode = 0x8f
	ADDITEMS         Opcode = 0x90
	FROZENSET        Opcode = 0x91
	NEWOBJ_EX        Opcode = 0x92
	STACK_GLOBAL     Opcode = 0x93
	MEMOIZE          Opcode = 0x94
	FRAME            Opcode = 0x95
	BYTEARRAY8       Opcode = 0x96
)

// HighestProtocol is the highest pickle protocol version accepted by PROTO.
const HighestProtocol = 5

var opcodeNames = map[Opcode]string{
	MARK: "MARK", STOP: "STOP", POP: "POP", POP_MARK: "POP_MARK", DUP: "DUP",
	FLOAT: "FLOAT", INT: "INT", BININT: "BININT", BININT1: "BININT1",
	LONG: "LONG", BININT2: "BININT2", NONE: "NONE", PERSID: "PERSID",
	BINPERSID: "BINPERSID", REDUCE: "REDUCE", STRING: "STRING",
	BINSTRING: "BINSTRING", SHORT_BINSTRING: "SHORT_BINSTRING",
	UNICODE: "UNICODE", BINUNICODE: "BINUNICODE", APPEND: "APPEND",
	BUILD: "BUILD", GLOBAL: "GLOBAL", DICT: "DICT", EMPTY_DICT: "EMPTY_DICT",
	APPENDS: "APPENDS", GET: "GET", BINGET: "BINGET", INST: "INST",
	LONG_BINGET: "LONG_BINGET", LIST: "LIST", EMPTY_LIST: "EMPTY_LIST",
	OBJ: "OBJ", PUT: "PUT", BINPUT: "BINPUT", LONG_BINPUT: "LONG_BINPUT",
	SETITEM: "SETITEM", TUPLE: "TUPLE", EMPTY_TUPLE: "EMPTY_TUPLE",
	SETITEMS: "SETITEMS", BINFLOAT: "BINFLOAT", PROTO: "PROTO",
	NEWOBJ: "NEWOBJ", TUPLE1: "TUPLE1", TUPLE2: "TUPLE2", TUPLE3: "TUPLE3",
	NEWTRUE: "NEWTRUE", NEWFALSE: "NEWFALSE", LONG1: "LONG1", LONG4: "LONG4",
	BINBYTES: "BINBYTES", SHORT_BINBYTES: "SHORT_BINBYTES",
	SHORT_BINUNICODE: "SHORT_BINUNICODE", BINUNICODE8: "BINUNICODE8",
	BINBYTES8: "BINBYTES8", EMPTY_SET: "EMPTY_SET", ADDITEMS: "ADDITEMS",
	FROZENSET: "FROZENSET", NEWOBJ_EX: "NEWOBJ_EX",
	STACK_GLOBAL: "STACK_GLOBAL", MEMOIZE: "MEMOIZE", FRAME: "FRAME",
	BYTEARRAY8: "BYTEARRAY8",
}

// String returns the opcode name, or its hexadecimal value if unknown.
func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("0x%02x", byte(op))
}

// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pickletest provides a small pickle stream builder for tests.
package pickletest

import (
	"encoding/binary"
	"math"

	"github.com/nlpodyssey/tensorinspect/pickle"
)

// Builder appends opcodes and their arguments to a byte stream.
// All methods return the Builder, allowing calls to be chained.
type Builder struct {
	buf []byte
}

// New returns a Builder whose stream starts with PROTO 2.
func New() *Builder {
	return (&Builder{}).Proto(2)
}

// Raw returns a Builder with an empty stream.
func Raw() *Builder {
	return &Builder{}
}

// Bytes returns the built stream.
func (b *Builder) Bytes() []byte {
	return append([]byte(nil), b.buf...)
}

// Op appends bare opcodes.
func (b *Builder) Op(ops ...pickle.Opcode) *Builder {
	for _, op := range ops {
		b.buf = append(b.buf, byte(op))
	}
	return b
}

// Append appends arbitrary bytes.
func (b *Builder) Append(data ...byte) *Builder {
	b.buf = append(b.buf, data...)
	return b
}

// Proto appends PROTO with the given version.
func (b *Builder) Proto(v byte) *Builder {
	return b.Op(pickle.PROTO).Append(v)
}

// Int appends the shortest binary integer opcode for v.
func (b *Builder) Int(v int) *Builder {
	switch {
	case v >= 0 && v <= math.MaxUint8:
		return b.Op(pickle.BININT1).Append(byte(v))
	case v >= 0 && v <= math.MaxUint16:
		b.Op(pickle.BININT2)
		b.buf = binary.LittleEndian.AppendUint16(b.buf, uint16(v))
		return b
	case v >= math.MinInt32 && v <= math.MaxInt32:
		b.Op(pickle.BININT)
		b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(int32(v)))
		return b
	default:
		b.Op(pickle.LONG1).Append(8)
		b.buf = binary.LittleEndian.AppendUint64(b.buf, uint64(v))
		return b
	}
}

// Float appends BINFLOAT.
func (b *Builder) Float(v float64) *Builder {
	b.Op(pickle.BINFLOAT)
	b.buf = binary.BigEndian.AppendUint64(b.buf, math.Float64bits(v))
	return b
}

// Bool appends NEWTRUE or NEWFALSE.
func (b *Builder) Bool(v bool) *Builder {
	if v {
		return b.Op(pickle.NEWTRUE)
	}
	return b.Op(pickle.NEWFALSE)
}

// String appends SHORT_BINUNICODE or BINUNICODE.
func (b *Builder) String(s string) *Builder {
	if len(s) <= math.MaxUint8 {
		return b.Op(pickle.SHORT_BINUNICODE).Append(byte(len(s))).Append([]byte(s)...)
	}
	b.Op(pickle.BINUNICODE)
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(len(s)))
	b.buf = append(b.buf, s...)
	return b
}

// BinBytes appends SHORT_BINBYTES or BINBYTES.
func (b *Builder) BinBytes(data []byte) *Builder {
	if len(data) <= math.MaxUint8 {
		return b.Op(pickle.SHORT_BINBYTES).Append(byte(len(data))).Append(data...)
	}
	b.Op(pickle.BINBYTES)
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(len(data)))
	b.buf = append(b.buf, data...)
	return b
}

// Global appends GLOBAL.
func (b *Builder) Global(module, name string) *Builder {
	b.Op(pickle.GLOBAL)
	b.buf = append(b.buf, module+"\n"+name+"\n"...)
	return b
}

// Put appends BINPUT, or LONG_BINPUT for ids above 255.
func (b *Builder) Put(id int) *Builder {
	if id <= math.MaxUint8 {
		return b.Op(pickle.BINPUT).Append(byte(id))
	}
	b.Op(pickle.LONG_BINPUT)
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(id))
	return b
}

// Get appends BINGET, or LONG_BINGET for ids above 255.
func (b *Builder) Get(id int) *Builder {
	if id <= math.MaxUint8 {
		return b.Op(pickle.BINGET).Append(byte(id))
	}
	b.Op(pickle.LONG_BINGET)
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(id))
	return b
}

// Stop appends STOP.
func (b *Builder) Stop() *Builder {
	return b.Op(pickle.STOP)
}

// StorageID appends the persistent id of a torch storage, as written by
// torch.save: ("storage", torch.<storageType>, key, location, numel).
func (b *Builder) StorageID(storageType, key, location string, numel int) *Builder {
	return b.Op(pickle.MARK).
		String("storage").
		Global("torch", storageType).
		String(key).
		String(location).
		Int(numel).
		Op(pickle.TUPLE, pickle.BINPERSID)
}

// Ints appends a tuple of integers.
func (b *Builder) Ints(values ...int) *Builder {
	switch len(values) {
	case 0:
		return b.Op(pickle.EMPTY_TUPLE)
	case 1, 2, 3:
		for _, v := range values {
			b.Int(v)
		}
		return b.Op(pickle.TUPLE1 + pickle.Opcode(len(values)-1))
	default:
		b.Op(pickle.MARK)
		for _, v := range values {
			b.Int(v)
		}
		return b.Op(pickle.TUPLE)
	}
}

// Tensor describes a tensor rebuilt with torch._utils._rebuild_tensor_v2.
type Tensor struct {
	StorageType string
	Key         string
	Location    string
	Numel       int
	Offset      int
	Shape       []int
	Stride      []int
}

// RebuildTensorV2 appends the REDUCE call rebuilding t.
func (b *Builder) RebuildTensorV2(t Tensor) *Builder {
	location := t.Location
	if location == "" {
		location = "cpu"
	}
	return b.Global("torch._utils", "_rebuild_tensor_v2").
		Op(pickle.MARK).
		StorageID(t.StorageType, t.Key, location, t.Numel).
		Int(t.Offset).
		Ints(t.Shape...).
		Ints(t.Stride...).
		Bool(false).
		Global("collections", "OrderedDict").Op(pickle.EMPTY_TUPLE, pickle.REDUCE).
		Op(pickle.TUPLE, pickle.REDUCE)
}

// ContiguousStride returns the row-major stride of shape.
func ContiguousStride(shape []int) []int {
	stride := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		stride[i] = acc
		acc *= shape[i]
	}
	return stride
}

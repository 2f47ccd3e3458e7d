// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pickle

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/nlpodyssey/tensorinspect/errkind"
)

// reader is a cursor over an in-memory pickle stream.
//
// Every read checks the declared length against the remaining input before
// slicing or allocating anything.
type reader struct {
	data []byte
	pos  int
}

// Position returns the current byte position.
func (r *reader) Position() int { return r.pos }

// Remaining returns the number of unread bytes.
func (r *reader) Remaining() int { return len(r.data) - r.pos }

func (r *reader) truncated(need int) error {
	return errkind.New(errkind.TruncatedStream, "need %d bytes, %d left", need, r.Remaining()).AtOffset(r.pos)
}

// ReadByte reads a single byte.
func (r *reader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, r.truncated(1)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadBytes returns the next n bytes. The result aliases the input.
func (r *reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > r.Remaining() {
		return nil, r.truncated(n)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadU16 reads a little-endian uint16.
func (r *reader) ReadU16() (uint16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadU32 reads a little-endian uint32.
func (r *reader) ReadU32() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64 reads a little-endian uint64.
func (r *reader) ReadU64() (uint64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadF64BE reads a big-endian IEEE 754 double.
func (r *reader) ReadF64BE() (float64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

// ReadLine returns the bytes up to the next newline, excluding it.
// A missing newline is a truncated stream.
func (r *reader) ReadLine() ([]byte, error) {
	i := bytes.IndexByte(r.data[r.pos:], '\n')
	if i < 0 {
		return nil, errkind.New(errkind.TruncatedStream, "newline not found").AtOffset(r.pos)
	}
	line := r.data[r.pos : r.pos+i]
	r.pos += i + 1
	return line, nil
}

// ReadSized reads a length of lenSize bytes (1, 4 or 8, little-endian)
// followed by that many bytes.
func (r *reader) ReadSized(lenSize int) ([]byte, error) {
	var n uint64
	switch lenSize {
	case 1:
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		n = uint64(b)
	case 4:
		v, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		n = uint64(v)
	case 8:
		v, err := r.ReadU64()
		if err != nil {
			return nil, err
		}
		n = v
	default:
		panic("pickle: invalid length size")
	}
	if n > uint64(r.Remaining()) {
		return nil, errkind.New(errkind.TruncatedStream, "declared length %d exceeds %d remaining bytes", n, r.Remaining()).AtOffset(r.pos)
	}
	return r.ReadBytes(int(n))
}

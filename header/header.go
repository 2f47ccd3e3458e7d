// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package header reads and validates the JSON header of the flat
// (safetensors) tensor format, without touching tensor data.
package header

// Header provides tensors information and metadata, as defined by
// the safetensors format.
type Header struct {
	// Tensors are kept in the order they are stored in the header.
	Tensors  TensorSlice
	Metadata Metadata
	// ByteBufferOffset indicates the byte index position where the byte-buffer
	// is expected to start, relative to the beginning of the whole
	// safetensors data stream (or file).
	ByteBufferOffset int
}

// Metadata is a set of free-form key/value string pairs.
type Metadata map[string]string

// ByteBufferSize returns the size of the byte-buffer described by the
// header, that is, the highest data-offsets end value.
func (h Header) ByteBufferSize() int {
	size := 0
	for _, t := range h.Tensors {
		size = max(size, t.DataOffsets.End)
	}
	return size
}

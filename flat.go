// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tensorinspect

import (
	"encoding/binary"
	"io"

	"github.com/nlpodyssey/tensorinspect/errkind"
	"github.com/nlpodyssey/tensorinspect/header"
	"github.com/pkg/errors"
)

// readFlat reads and validates the header of a safetensors data stream.
// The byte-buffer must end exactly where the data ends.
func readFlat(r io.ReaderAt, size int64, c config) (*Listing, error) {
	head, err := readValidHeader(r, size, c.headerSizeLimit)
	if err != nil {
		return nil, err
	}

	end := int64(head.ByteBufferOffset) + int64(head.ByteBufferSize())
	switch {
	case end > size:
		return nil, errkind.New(errkind.TruncatedStream,
			"byte-buffer ends at %d, beyond the end of data (%d)", end, size)
	case end < size:
		return nil, errkind.New(errkind.MalformedValue,
			"%d unexpected bytes after the byte-buffer", size-end).AtOffset(int(end))
	}

	l := &Listing{
		Format:  FormatSafetensors,
		Tensors: make([]TensorInfo, len(head.Tensors)),
	}
	if len(head.Metadata) > 0 {
		l.Metadata = head.Metadata
	}
	for i, t := range head.Tensors {
		l.Tensors[i] = TensorInfo{
			Name:     t.Name,
			DType:    t.DType,
			Shape:    t.Shape,
			ByteSize: t.ByteSize(),
		}
	}
	return l, nil
}

func readValidHeader(r io.ReaderAt, size int64, sizeLimit int) (header.Header, error) {
	var arr [8]byte
	if size < int64(len(arr)) {
		return header.Header{}, errkind.New(errkind.TruncatedStream, "data too short for a header size (%d bytes)", size)
	}
	if _, err := r.ReadAt(arr[:], 0); err != nil {
		return header.Header{}, errors.Wrap(err, "failed to read header size")
	}
	n := binary.LittleEndian.Uint64(arr[:])
	if sizeLimit > 0 && n > uint64(sizeLimit) {
		return header.Header{}, errkind.New(errkind.MalformedValue, "header size %d exceeds limit %d", n, sizeLimit).WithValue(n)
	}
	if n > uint64(size-8) {
		return header.Header{}, errkind.New(errkind.TruncatedStream, "header size %d exceeds %d available bytes", n, size-8).WithValue(n)
	}

	head, err := header.Read(io.NewSectionReader(r, 0, size))
	if err != nil {
		return header.Header{}, errors.WithMessage(err, "failed to read safetensors header")
	}
	if err = head.Validate(); err != nil {
		return header.Header{}, errors.WithMessage(err, "safetensors header is invalid")
	}
	return head, nil
}

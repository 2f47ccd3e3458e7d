// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tensorinspect

import (
	"github.com/nlpodyssey/tensorinspect/dtype"
	"github.com/pkg/errors"
)

// Format identifies a tensor container format.
type Format uint8

const (
	// FormatSafetensors is the flat format: a JSON header followed by a
	// contiguous byte-buffer.
	FormatSafetensors Format = iota + 1
	// FormatPyTorch is the zip archive written by torch.save.
	FormatPyTorch
)

var formatToString = map[Format]string{
	FormatSafetensors: "safetensors",
	FormatPyTorch:     "pytorch",
}

// String returns the name of the format.
func (f Format) String() string {
	if s, ok := formatToString[f]; ok {
		return s
	}
	return "unknown"
}

// MarshalText satisfies encoding.TextMarshaler.
func (f Format) MarshalText() ([]byte, error) {
	s, ok := formatToString[f]
	if !ok {
		return nil, errors.Errorf("invalid Format %d", f)
	}
	return []byte(s), nil
}

// UnmarshalText satisfies encoding.TextUnmarshaler.
func (f *Format) UnmarshalText(text []byte) error {
	for k, v := range formatToString {
		if v == string(text) {
			*f = k
			return nil
		}
	}
	return errors.Errorf("unknown Format %q", text)
}

// TensorInfo describes a single tensor, regardless of the container format.
type TensorInfo struct {
	Name  string      `json:"name"`
	DType dtype.DType `json:"dtype"`
	Shape []int       `json:"shape"`
	// StorageID is the key of the storage holding the tensor data, for
	// archives. It is empty for the flat format.
	StorageID string `json:"storage_id,omitempty"`
	// ByteSize is the size of the tensor data in bytes.
	ByteSize int `json:"byte_size"`
}

// NumElements returns the number of elements of the tensor.
func (t TensorInfo) NumElements() int {
	n := 1
	for _, v := range t.Shape {
		n *= v
	}
	return n
}

// Listing is the result of inspecting a tensor container.
type Listing struct {
	// Path is the inspected file, if any.
	Path   string `json:"path,omitempty"`
	Format Format `json:"format"`
	// Version is the content of the archive version marker.
	Version string `json:"version,omitempty"`
	// Tensors are listed in the order they are stored.
	Tensors []TensorInfo `json:"tensors"`
	// Metadata holds the free-form pairs of the flat format header.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NumElements returns the total number of elements of all tensors.
func (l *Listing) NumElements() int {
	n := 0
	for _, t := range l.Tensors {
		n += t.NumElements()
	}
	return n
}

// ByteSize returns the total size in bytes of all tensors.
func (l *Listing) ByteSize() int {
	n := 0
	for _, t := range l.Tensors {
		n += t.ByteSize
	}
	return n
}

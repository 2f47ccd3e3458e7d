// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tensorinspect lists the tensors stored in tensor container files,
// without loading tensor data.
//
// Two formats are recognized: the flat safetensors format, and the zip
// archive written by PyTorch's torch.save.
package tensorinspect

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/nlpodyssey/tensorinspect/errkind"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
	"k8s.io/klog/v2"
)

// DefaultHeaderSizeLimit is the default maximum size of a flat format
// JSON header.
const DefaultHeaderSizeLimit = 100_000_000

type config struct {
	headerSizeLimit int
	checkStorages   bool
}

// Option configures Inspect and InspectReaderAt.
type Option func(*config)

// WithHeaderSizeLimit limits the size of a flat format header, as a guard
// against corrupted data. A value of zero, or a negative number, disables
// the limit.
func WithHeaderSizeLimit(n int) Option {
	return func(c *config) { c.headerSizeLimit = n }
}

// WithStorageCheck enables the verification, for archives, that each tensor
// has a storage entry large enough to hold its data.
func WithStorageCheck(enabled bool) Option {
	return func(c *config) { c.checkStorages = enabled }
}

func newConfig(opts []Option) config {
	c := config{headerSizeLimit: DefaultHeaderSizeLimit}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Inspect memory-maps the file at path and lists its tensors.
//
// Errors carry the path of the file (see errkind.Error).
func Inspect(path string, opts ...Option) (*Listing, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %q", path)
	}
	defer func() {
		if err := r.Close(); err != nil {
			klog.Warningf("failed to unmap %q: %v", path, err)
		}
	}()

	klog.V(1).Infof("inspecting %q (%d bytes)", path, r.Len())
	l, err := InspectReaderAt(r, int64(r.Len()), opts...)
	if err != nil {
		return nil, errkind.SetPath(err, path)
	}
	l.Path = path
	return l, nil
}

// InspectReaderAt lists the tensors stored in the first "size" bytes of "r".
//
// The flat format is tried first. Data starting with a zip signature is
// then read as a PyTorch archive. Anything else fails with
// errkind.UnknownFormat.
func InspectReaderAt(r io.ReaderAt, size int64, opts ...Option) (*Listing, error) {
	c := newConfig(opts)

	var prefix [9]byte
	n, err := r.ReadAt(prefix[:], 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "failed to read leading bytes")
	}
	lead := prefix[:n]

	l, flatErr := readFlat(r, size, c)
	if flatErr == nil {
		klog.V(1).Infof("detected %s format", FormatSafetensors)
		return l, nil
	}
	if looksFlat(lead, c) {
		return nil, flatErr
	}
	if !bytes.HasPrefix(lead, []byte("PK\x03\x04")) {
		return nil, errkind.New(errkind.UnknownFormat, "neither safetensors nor a PyTorch archive").WithCause(flatErr)
	}

	klog.V(1).Infof("detected %s format", FormatPyTorch)
	return readArchive(r, size, c)
}

// looksFlat reports whether the leading bytes are a plausible flat format
// header: a size within limits followed by an opening brace.
func looksFlat(lead []byte, c config) bool {
	if len(lead) < 9 || lead[8] != '{' {
		return false
	}
	n := binary.LittleEndian.Uint64(lead)
	return c.headerSizeLimit <= 0 || n <= uint64(c.headerSizeLimit)
}

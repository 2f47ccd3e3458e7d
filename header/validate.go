// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import (
	"math"
	"math/bits"
	"sort"

	"github.com/nlpodyssey/tensorinspect/errkind"
	"github.com/pkg/errors"
)

// Validate checks whether the content of a Header is valid according to
// safetensors format, returning an error if a problem is encountered,
// otherwise nil.
//
// This validation can serve as an early isolated checking mechanism to
// identify bogus values before performing further actions that
// heavily depend upon the Header, such as reading tensors data from
// byte-buffer.
//
// The Header is checked against the following rules:
//
//   - ByteBufferOffset must not be negative
//   - tensor names must be non-empty and unique
//   - the union of DataOffsets of all Tensors must cover an entire contiguous
//     area of the byte-buffer, starting from offset 0
//   - DataOffsets of any pair of tensors must not overlap
//   - for each Tensor, its DataOffsets.Begin must be <= DataOffsets.End
//   - each Tensor's Shape must not contain negative values
//   - for each Tensor, its explicit byte size described by DataOffsets
//     (End - Begin) must coincide with the implicit byte size computed
//     from Shape and DType (product of all Shape items * DType size; an empty
//     shape counts as 1 scalar value)
//   - no overflow must occur during calculations at any step, making sure
//     that all computed values fit within the "int" type
func (h Header) Validate() error {
	if h.ByteBufferOffset < 0 {
		return errkind.New(errkind.MalformedValue, "invalid byte-buffer offset negative value %d", h.ByteBufferOffset)
	}
	if err := validateTensors(h.Tensors); err != nil {
		return errkind.New(errkind.MalformedValue, "invalid safetensors header").WithCause(err)
	}
	return nil
}

func validateTensors(tensors TensorSlice) error {
	if err := validateTensorNames(tensors); err != nil {
		return err
	}

	ts := tensors.Clone()
	sort.Stable(TensorSliceByDataOffsets{ts})

	expectedBegin := 0
	for _, t := range ts {
		if err := validateTensor(t, expectedBegin); err != nil {
			return errors.WithMessagef(err, "invalid tensor %q", t.Name)
		}
		expectedBegin = t.DataOffsets.End
	}
	return nil
}

func validateTensorNames(ts TensorSlice) error {
	seen := make(map[string]struct{}, len(ts))
	for _, t := range ts {
		if t.Name == "" {
			return errors.New("empty tensor name")
		}
		if _, ok := seen[t.Name]; ok {
			return errors.Errorf("duplicate tensor name %q", t.Name)
		}
		seen[t.Name] = struct{}{}
	}
	return nil
}

func validateTensor(t Tensor, expectedBegin int) error {
	if t.DataOffsets.Begin != expectedBegin {
		return errors.Errorf("expected data-offsets begin %d, actual %d", expectedBegin, t.DataOffsets.Begin)
	}
	if t.DataOffsets.End < t.DataOffsets.Begin {
		return errors.Errorf("expected data-offsets end >= %d (begin), actual %d", t.DataOffsets.Begin, t.DataOffsets.End)
	}

	byteSize, err := byteSizeFromShape(t)
	if err != nil {
		return err
	}
	if offSize := t.DataOffsets.End - t.DataOffsets.Begin; offSize != byteSize {
		return errors.Errorf("byte size computed from shape (%d) differs from data-offsets size (%d)", byteSize, offSize)
	}
	return nil
}

func byteSizeFromShape(t Tensor) (int, error) {
	if err := t.DType.Validate(); err != nil {
		return 0, err
	}

	tensorSize, err := tensorSizeFromShape(t.Shape)
	if err != nil {
		return 0, err
	}

	hi, byteSize := bits.Mul(tensorSize, uint(t.DType.Size()))
	if hi != 0 {
		return 0, errors.New("int overflow computing tensor byte size from shape")
	}
	if byteSize > math.MaxInt {
		return 0, errors.Errorf("tensor byte size computed from shape is too large for int type: %d", byteSize)
	}
	return int(byteSize), nil
}

func tensorSizeFromShape(s Shape) (uint, error) {
	size := uint(1)
	for _, v := range s {
		if v < 0 {
			return 0, errors.Errorf("shape contains negative value %d", v)
		}
		var hi uint
		if hi, size = bits.Mul(size, uint(v)); hi != 0 {
			return 0, errors.New("int overflow computing tensor elements size from shape")
		}
	}
	return size, nil
}

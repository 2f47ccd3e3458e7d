// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package torch extracts tensor descriptors from the object graph of a
// PyTorch archive, as decoded by package pickle.
//
// Only a fixed allow-list of rebuild functions is ever interpreted; every
// other Global is left untouched.
package torch

import (
	"github.com/nlpodyssey/tensorinspect/dtype"
	"github.com/nlpodyssey/tensorinspect/errkind"
)

// Descriptor describes a tensor found in the object graph.
type Descriptor struct {
	// Name is the key of the tensor in the root dictionary.
	Name string
	// StorageID is the key of the storage blob, stored in the archive
	// under "<prefix>/data/<StorageID>".
	StorageID string
	DType     dtype.DType
	Shape     []int
	// StorageOffset is the offset of the first element, in elements.
	StorageOffset int
	Stride        []int
	// StorageNumel is the number of elements of the whole storage.
	StorageNumel int
	// Location is the device the storage was saved from, such as "cpu".
	Location     string
	RequiresGrad bool
	// Parameter reports whether the tensor was wrapped in a Parameter.
	Parameter bool
}

// NumElements returns the number of elements of the tensor.
func (d Descriptor) NumElements() int {
	n := 1
	for _, v := range d.Shape {
		n *= v
	}
	return n
}

// ByteSize returns the size of the tensor data in bytes, assuming a
// contiguous layout.
func (d Descriptor) ByteSize() int {
	return d.NumElements() * d.DType.Size()
}

// storageDTypes maps torch storage class names to data types.
var storageDTypes = map[string]dtype.DType{
	"FloatStorage":    dtype.F32,
	"DoubleStorage":   dtype.F64,
	"HalfStorage":     dtype.F16,
	"BFloat16Storage": dtype.BF16,
	"LongStorage":     dtype.I64,
	"IntStorage":      dtype.I32,
	"ShortStorage":    dtype.I16,
	"CharStorage":     dtype.I8,
	"ByteStorage":     dtype.U8,
	"BoolStorage":     dtype.Bool,
	"UInt16Storage":   dtype.U16,
	"UInt32Storage":   dtype.U32,
	"UInt64Storage":   dtype.U64,
}

// StorageDType returns the data type of the named torch storage class.
// It fails with errkind.UnknownDtype for unmapped names.
func StorageDType(storageType string) (dtype.DType, error) {
	dt, ok := storageDTypes[storageType]
	if !ok {
		return 0, errkind.New(errkind.UnknownDtype, "unknown storage type %q", storageType).WithValue(storageType)
	}
	return dt, nil
}

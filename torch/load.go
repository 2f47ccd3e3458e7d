// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package torch

import (
	"github.com/nlpodyssey/tensorinspect/errkind"
	"github.com/nlpodyssey/tensorinspect/pickle"
	"github.com/nlpodyssey/tensorinspect/ptarchive"
	"k8s.io/klog/v2"
)

// Checkpoint is the tensor listing of a PyTorch archive.
type Checkpoint struct {
	Payload ptarchive.Payload
	Tensors []Descriptor
}

// LoadOptions configures Load.
type LoadOptions struct {
	// CheckStorages enables the verification that every tensor has a
	// storage entry large enough to hold its data.
	CheckStorages bool
}

// Load locates the payload of the archive, decodes it and extracts the
// tensor descriptors.
//
// Errors raised while decoding or extracting the payload carry the name of
// the payload entry.
func Load(a *ptarchive.Archive, opts LoadOptions) (*Checkpoint, error) {
	payload, err := a.LocatePayload()
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("payload %q, version %q", payload.Name, payload.Version)
	if !payload.IsSupportedVersion() {
		klog.Warningf("archive version %q differs from %q, decoding anyway", payload.Version, ptarchive.SupportedVersion)
	}

	data, err := a.ReadEntry(payload.Name)
	if err != nil {
		return nil, err
	}
	root, err := pickle.Decode(data)
	if err != nil {
		return nil, errkind.SetEntry(err, payload.Name)
	}
	tensors, err := Extract(root)
	if err != nil {
		return nil, errkind.SetEntry(err, payload.Name)
	}
	klog.V(1).Infof("found %d tensors in %q", len(tensors), payload.Name)

	if opts.CheckStorages {
		if err := CheckStorages(a, payload, tensors); err != nil {
			return nil, err
		}
	}
	return &Checkpoint{Payload: payload, Tensors: tensors}, nil
}

// CheckStorages verifies that the storage entry of each tensor exists and
// is large enough for the elements the tensor addresses.
//
// A missing storage fails with errkind.MissingEntry, a short one with
// errkind.MalformedValue.
func CheckStorages(a *ptarchive.Archive, payload ptarchive.Payload, tensors []Descriptor) error {
	for _, d := range tensors {
		name := payload.StorageEntryName(d.StorageID)
		e, ok := a.Entry(name)
		if !ok {
			return errkind.New(errkind.MissingEntry, "storage of tensor %q not found", d.Name).WithEntry(name)
		}
		need := int64(d.StorageExtent()) * int64(d.DType.Size())
		if e.Size < need {
			return errkind.New(errkind.MalformedValue,
				"storage of tensor %q has %d bytes, %d needed", d.Name, e.Size, need).WithEntry(name).WithValue(e.Size)
		}
		klog.V(2).Infof("storage %q: %d bytes for tensor %q", name, e.Size, d.Name)
	}
	return nil
}

// StorageExtent returns the number of storage elements, starting from the
// beginning of the storage, spanned by the tensor.
func (d Descriptor) StorageExtent() int {
	extent := 1
	for i, n := range d.Shape {
		if n == 0 {
			return d.StorageOffset
		}
		if i < len(d.Stride) {
			extent += (n - 1) * d.Stride[i]
		}
	}
	return d.StorageOffset + extent
}

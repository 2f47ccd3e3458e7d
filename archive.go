// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tensorinspect

import (
	"io"

	"github.com/nlpodyssey/tensorinspect/ptarchive"
	"github.com/nlpodyssey/tensorinspect/torch"
)

func readArchive(r io.ReaderAt, size int64, c config) (*Listing, error) {
	a, err := ptarchive.Open(r, size)
	if err != nil {
		return nil, err
	}
	ckpt, err := torch.Load(a, torch.LoadOptions{CheckStorages: c.checkStorages})
	if err != nil {
		return nil, err
	}

	l := &Listing{
		Format:  FormatPyTorch,
		Version: ckpt.Payload.Version,
		Tensors: make([]TensorInfo, len(ckpt.Tensors)),
	}
	for i, d := range ckpt.Tensors {
		l.Tensors[i] = TensorInfo{
			Name:      d.Name,
			DType:     d.DType,
			Shape:     d.Shape,
			StorageID: d.StorageID,
			ByteSize:  d.ByteSize(),
		}
	}
	return l, nil
}

// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import (
	"testing"

	"github.com/nlpodyssey/tensorinspect/dtype"
	"github.com/stretchr/testify/assert"
)

func TestHeader_ByteBufferSize(t *testing.T) {
	assert.Equal(t, 0, Header{}.ByteBufferSize())

	h := Header{
		Tensors: TensorSlice{
			Tensor{Name: "foo", DType: dtype.U8, Shape: Shape{2, 3}, DataOffsets: DataOffsets{Begin: 20, End: 26}},
			Tensor{Name: "bar", DType: dtype.I8, Shape: Shape{4, 5}, DataOffsets: DataOffsets{Begin: 0, End: 20}},
		},
	}
	assert.Equal(t, 26, h.ByteBufferSize())
}

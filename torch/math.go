// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package torch

import (
	"math"

	"github.com/pkg/errors"
)

// checkedMul multiplies two non-negative numbers and checks for overflow.
func checkedMul(a, b int) (int, error) {
	c := a * b
	if a > 1 && b > 1 && c/a != b {
		return c, errors.Errorf("multiplication overflow: %d * %d", a, b)
	}
	return c, nil
}

// checkedAdd adds two non-negative numbers and checks for overflow.
func checkedAdd(a, b int) (int, error) {
	if a > math.MaxInt-b {
		return 0, errors.Errorf("addition overflow: %d + %d", a, b)
	}
	return a + b, nil
}

// checkSizes verifies that the element count, the byte size and the storage
// extent of the tensor can be computed without overflow.
func (d Descriptor) checkSizes() error {
	numel := 1
	extent := 1
	for i, n := range d.Shape {
		var err error
		if numel, err = checkedMul(numel, n); err != nil {
			return errors.WithMessage(err, "failed to compute num elements from shape")
		}
		if n == 0 {
			continue
		}
		span, err := checkedMul(n-1, d.Stride[i])
		if err != nil {
			return errors.WithMessage(err, "failed to compute storage extent")
		}
		if extent, err = checkedAdd(extent, span); err != nil {
			return errors.WithMessage(err, "failed to compute storage extent")
		}
	}
	if _, err := checkedMul(numel, d.DType.Size()); err != nil {
		return errors.WithMessage(err, "failed to compute num bytes from num elements")
	}
	extent, err := checkedAdd(extent, d.StorageOffset)
	if err != nil {
		return errors.WithMessage(err, "failed to compute storage extent")
	}
	if _, err := checkedMul(extent, d.DType.Size()); err != nil {
		return errors.WithMessage(err, "failed to compute storage size")
	}
	return nil
}

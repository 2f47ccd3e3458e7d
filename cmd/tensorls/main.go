// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// tensorls lists the tensors stored in safetensors files and PyTorch
// checkpoints, without loading tensor data.
//
// Usage:
//
//	tensorls list [-d] [--format plain|table|json] <file>...
package main

import (
	"fmt"
	"os"

	"k8s.io/klog/v2"
)

func main() {
	err := newRootCmd().Execute()
	klog.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

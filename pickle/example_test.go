// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pickle_test

import (
	"fmt"
	"log"

	"github.com/nlpodyssey/tensorinspect/pickle"
)

func ExampleDecode() {
	// pickle.dumps({'a': [1, 2.5, None]}, protocol=2)
	data := []byte("\x80\x02}q\x00X\x01\x00\x00\x00aq\x01]q\x02(K\x01G@\x04\x00\x00\x00\x00\x00\x00Nes.")

	v, err := pickle.Decode(data)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("kind = %s\n", v.Kind())
	fmt.Printf("value = %s\n", v)

	// Output:
	// kind = Dict
	// value = {"a": [1, 2.5, None]}
}

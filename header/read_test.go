// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"
	"testing/iotest"

	"github.com/nlpodyssey/tensorinspect/dtype"
	"github.com/nlpodyssey/tensorinspect/errkind"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead_Success(t *testing.T) {
	testCases := []struct {
		name string
		json string
		want Header
	}{
		{
			"empty object",
			`{}`,
			Header{},
		},
		{
			"empty metadata",
			`{"__metadata__": {}}`,
			Header{},
		},
		{
			"metadata",
			`{"__metadata__": {"foo": "bar", "baz": "qux"}}`,
			Header{Metadata: Metadata{"foo": "bar", "baz": "qux"}},
		},
		{
			"tensors",
			`{"foo": {"dtype": "U8", "shape": [2, 3], "data_offsets": [0, 6]},` +
				`"bar": {"dtype": "I8", "shape": [4, 5], "data_offsets": [6, 26]}}`,
			Header{Tensors: TensorSlice{
				Tensor{Name: "foo", DType: dtype.U8, Shape: Shape{2, 3}, DataOffsets: DataOffsets{Begin: 0, End: 6}},
				Tensor{Name: "bar", DType: dtype.I8, Shape: Shape{4, 5}, DataOffsets: DataOffsets{Begin: 6, End: 26}},
			}},
		},
		{
			"tensors and metadata",
			`{"foo": {"dtype": "U8", "shape": [2, 3], "data_offsets": [0, 6]},` +
				`"bar": {"dtype": "I8", "shape": [4, 5], "data_offsets": [6, 26]},` +
				`"__metadata__": {"foo": "bar", "baz": "qux"}}`,
			Header{
				Metadata: Metadata{"foo": "bar", "baz": "qux"},
				Tensors: TensorSlice{
					Tensor{Name: "foo", DType: dtype.U8, Shape: Shape{2, 3}, DataOffsets: DataOffsets{Begin: 0, End: 6}},
					Tensor{Name: "bar", DType: dtype.I8, Shape: Shape{4, 5}, DataOffsets: DataOffsets{Begin: 6, End: 26}},
				},
			},
		},
		{
			"padding before and after",
			" \n\r\t" + `{"foo": {"dtype": "U8", "shape": [2, 3], "data_offsets": [0, 6]},` +
				`"__metadata__": {"foo": "bar"}}` + " \n\r\t",
			Header{
				Metadata: Metadata{"foo": "bar"},
				Tensors: TensorSlice{
					Tensor{Name: "foo", DType: dtype.U8, Shape: Shape{2, 3}, DataOffsets: DataOffsets{Begin: 0, End: 6}},
				},
			},
		},
	}

	for _, tc := range testCases {
		want := tc.want
		want.ByteBufferOffset = 8 + len(tc.json)

		for _, byteBufferSize := range []int{0, 100} {
			t.Run(fmt.Sprintf("%s plus %d bytes", tc.name, byteBufferSize), func(t *testing.T) {
				data := makeData(tc.json, byteBufferSize)
				h, err := Read(bytes.NewReader(data))
				require.NoError(t, err)
				assert.Equal(t, want, h)
			})
		}
	}
}

func TestRead_Failure(t *testing.T) {
	testCases := []struct {
		name   string
		json   string
		errMsg string
	}{
		{"size 0", "", "malformed value: header size too small: 0"},
		{"size 1", " ", "malformed value: header size too small: 1"},
		{
			"bad trailing data, valid JSON token", "{}9",
			"malformed value: unexpected data at byte offset 2",
		},
		{
			"bad trailing data, invalid JSON token", "{}~",
			"malformed value: failed to JSON-decode header: invalid character '~' looking for beginning of value",
		},
		{
			"incomplete JSON", `{"foo`,
			"malformed value: failed to JSON-decode header: unexpected EOF",
		},
		{
			"bad JSON", `{1: 2}`,
			"malformed value: failed to JSON-decode header: invalid character '1'",
		},
		{
			"bad metadata", `{"__metadata__": {"foo": 1}}`,
			`malformed value: failed to interpret header metadata: found non-string value for key "foo"`,
		},
		{
			"dtype missing",
			`{"foo": {"shape": [2, 3], "data_offsets": [0, 6]}}`,
			`malformed value: failed to interpret header tensor "foo": "dtype" is missing`,
		},
		{
			"shape missing",
			`{"foo": {"dtype": "U8", "data_offsets": [0, 6]}}`,
			`malformed value: failed to interpret header tensor "foo": "shape" is missing`,
		},
		{
			"data_offsets missing",
			`{"foo": {"dtype": "U8", "shape": [2, 3]}}`,
			`malformed value: failed to interpret header tensor "foo": "data_offsets" is missing`,
		},
		{
			"unknown tensor key",
			`{"foo": {"dtype": "U8", "shape": [2, 3], "data_offsets": [0, 6], "bar": "baz"}}`,
			`malformed value: failed to interpret header tensor "foo": JSON object contains unknown keys`,
		},
		{
			"dtype is not string",
			`{"foo": {"dtype": 123, "shape": [2, 3], "data_offsets": [0, 6]}}`,
			`malformed value: failed to interpret header tensor "foo": found non-string "dtype" value`,
		},
		{
			"invalid dtype",
			`{"foo": {"dtype": "X9", "shape": [2, 3], "data_offsets": [0, 6]}}`,
			`malformed value: failed to interpret header tensor "foo": invalid "dtype" value: "X9"`,
		},
		{
			"shape is not array",
			`{"foo": {"dtype": "U8", "shape": 123, "data_offsets": [0, 6]}}`,
			`malformed value: failed to interpret header tensor "foo": found non-array "shape" value`,
		},
		{
			"shape item is not number",
			`{"foo": {"dtype": "U8", "shape": [2, "3"], "data_offsets": [0, 6]}}`,
			`malformed value: failed to interpret header tensor "foo": ` +
				`failed to interpret "shape" value at index 1: ` +
				`value is not a number`,
		},
		{
			"shape item is float with fraction",
			`{"foo": {"dtype": "U8", "shape": [2, 3.0], "data_offsets": [0, 6]}}`,
			`malformed value: failed to interpret header tensor "foo": ` +
				`failed to interpret "shape" value at index 1: ` +
				`failed to convert value "3.0" to int: ` +
				`strconv.ParseInt: parsing "3.0": invalid syntax`,
		},
		{
			"shape item is float with exponent",
			`{"foo": {"dtype": "U8", "shape": [2, 3e1], "data_offsets": [0, 6]}}`,
			`malformed value: failed to interpret header tensor "foo": ` +
				`failed to interpret "shape" value at index 1: ` +
				`failed to convert value "3e1" to int: ` +
				`strconv.ParseInt: parsing "3e1": invalid syntax`,
		},
		{
			"shape item int too big",
			`{"foo": {"dtype": "U8", "shape": [2, 18446744073709551615], "data_offsets": [0, 6]}}`,
			`malformed value: failed to interpret header tensor "foo": ` +
				`failed to interpret "shape" value at index 1: ` +
				`failed to convert value "18446744073709551615" to int: ` +
				`strconv.ParseInt: parsing "18446744073709551615": value out of range`,
		},
		{
			"shape item is negative",
			`{"foo": {"dtype": "U8", "shape": [2, -1], "data_offsets": [0, 6]}}`,
			`malformed value: failed to interpret header tensor "foo": ` +
				`failed to interpret "shape" value at index 1: ` +
				`value is negative: -1`,
		},
		{
			"data_offsets is not array",
			`{"foo": {"dtype": "U8", "shape": [2, 3], "data_offsets": 123}}`,
			`malformed value: failed to interpret header tensor "foo": found non-array "data_offsets" value`,
		},
		{
			"data_offsets len is not 2",
			`{"foo": {"dtype": "U8", "shape": [2, 3], "data_offsets": [1, 2, 3]}}`,
			`malformed value: failed to interpret header tensor "foo": bad "data_offsets" length: expected 2, actual 3`,
		},
		{
			"data_offsets item is not number",
			`{"foo": {"dtype": "U8", "shape": [2, 3], "data_offsets": [0, "6"]}}`,
			`malformed value: failed to interpret header tensor "foo": ` +
				`failed to interpret "data_offsets" value at index 1: ` +
				`value is not a number`,
		},
		{
			"data_offsets item is float with fraction",
			`{"foo": {"dtype": "U8", "shape": [2, 3], "data_offsets": [0, 6.0]}}`,
			`malformed value: failed to interpret header tensor "foo": ` +
				`failed to interpret "data_offsets" value at index 1: ` +
				`failed to convert value "6.0" to int: ` +
				`strconv.ParseInt: parsing "6.0": invalid syntax`,
		},
		{
			"data_offsets item is float with exponent",
			`{"foo": {"dtype": "U8", "shape": [2, 3], "data_offsets": [0, 6e1]}}`,
			`malformed value: failed to interpret header tensor "foo": ` +
				`failed to interpret "data_offsets" value at index 1: ` +
				`failed to convert value "6e1" to int: ` +
				`strconv.ParseInt: parsing "6e1": invalid syntax`,
		},
		{
			"data_offsets item int too big",
			`{"foo": {"dtype": "U8", "shape": [2, 3], "data_offsets": [0, 18446744073709551615]}}`,
			`malformed value: failed to interpret header tensor "foo": ` +
				`failed to interpret "data_offsets" value at index 1: ` +
				`failed to convert value "18446744073709551615" to int: ` +
				`strconv.ParseInt: parsing "18446744073709551615": value out of range`,
		},
		{
			"data_offsets item is negative",
			`{"foo": {"dtype": "U8", "shape": [2, 3], "data_offsets": [0, -1]}}`,
			`malformed value: failed to interpret header tensor "foo": ` +
				`failed to interpret "data_offsets" value at index 1: ` +
				`value is negative: -1`,
		},
	}

	for _, tc := range testCases {
		for _, byteBufferSize := range []int{0, 100} {
			t.Run(fmt.Sprintf("%s plus %d bytes", tc.name, byteBufferSize), func(t *testing.T) {
				data := makeData(tc.json, 0)
				h, err := Read(bytes.NewReader(data))
				require.EqualError(t, err, tc.errMsg)
				assert.ErrorIs(t, err, errkind.MalformedValue)
				assert.Equal(t, Header{}, h)
			})
		}
	}

	t.Run("size too large", func(t *testing.T) {
		data := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff} // max uint64
		h, err := Read(bytes.NewReader(data))
		require.EqualError(t, err, "malformed value: header size too large: 18446744073709551615")
		assert.Equal(t, Header{}, h)
	})

	t.Run("reader error reading size", func(t *testing.T) {
		data := []byte{2, 0, 0, 0, 0, 0, 0} // one byte is missing
		h, err := Read(iotest.DataErrReader(bytes.NewReader(data)))
		require.EqualError(t, err, "truncated stream: failed to read header size: unexpected EOF")
		assert.ErrorIs(t, err, errkind.TruncatedStream)
		assert.Equal(t, Header{}, h)
	})

	t.Run("reader error reading JSON", func(t *testing.T) {
		data := makeData(`{"foo`, 0)
		h, err := Read(iotest.DataErrReader(bytes.NewReader(data)))
		require.EqualError(t, err, "malformed value: failed to JSON-decode header: unexpected EOF")
		assert.Equal(t, Header{}, h)
	})
}

func TestRead_PreservesStoredOrder(t *testing.T) {
	data := makeData(`{"zeta": {"dtype": "F32", "shape": [1], "data_offsets": [0, 4]},`+
		`"__metadata__": {"format": "pt"},`+
		`"alpha": {"dtype": "BF16", "shape": [2], "data_offsets": [4, 8]},`+
		`"mid": {"dtype": "BOOL", "shape": [], "data_offsets": [8, 9]}}`, 9)

	h, err := Read(bytes.NewReader(data))
	require.NoError(t, err)
	require.NoError(t, h.Validate())
	require.Len(t, h.Tensors, 3)
	assert.Equal(t, "zeta", h.Tensors[0].Name)
	assert.Equal(t, "alpha", h.Tensors[1].Name)
	assert.Equal(t, "mid", h.Tensors[2].Name)
	assert.Equal(t, Metadata{"format": "pt"}, h.Metadata)
	assert.Equal(t, 9, h.ByteBufferSize())
}

func TestRead_DuplicateKey(t *testing.T) {
	data := makeData(`{"a": {"dtype": "U8", "shape": [1], "data_offsets": [0, 1]},`+
		`"a": {"dtype": "U8", "shape": [1], "data_offsets": [1, 2]}}`, 2)
	_, err := Read(bytes.NewReader(data))
	require.EqualError(t, err, `malformed value: duplicate header key "a"`)
}

func TestRead_Truncated(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{"empty input", nil},
		{"shorter than size", []byte{2, 0, 0}},
		{"complete JSON shorter than declared size", append([]byte{100, 0, 0, 0, 0, 0, 0, 0}, "{}"...)},
		{"incomplete JSON shorter than declared size", append([]byte{50, 0, 0, 0, 0, 0, 0, 0}, `{"foo`...)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Read(bytes.NewReader(tc.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, errkind.TruncatedStream)
		})
	}
}

func makeData(json string, byteBufferSize int) []byte {
	data := make([]byte, 8+len(json)+byteBufferSize)
	binary.LittleEndian.PutUint64(data, uint64(len(json)))
	copy(data[8:len(json)+8], json)
	for i := len(json) + 8; i < len(data); i++ {
		data[i] = 0xff
	}
	return data
}

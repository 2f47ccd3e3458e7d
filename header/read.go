// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"strconv"

	"github.com/nlpodyssey/tensorinspect/dtype"
	"github.com/nlpodyssey/tensorinspect/errkind"
	"github.com/pkg/errors"
)

const metadataKey = "__metadata__"

// Read reads and parses from "r" the initial part of a safetensors
// data stream.
//
// Tensors are returned in the order their keys appear in the JSON header.
//
// Note that after successfully reading and parsing, NO validation is
// performed on the obtained Header.
//
// This function will fail to read header data larger than math.MaxInt.
// The caller is responsible for guarding against reading data up to a lower
// limit, for example for protection against bad/corrupted data or specific
// attacks. This can be done by providing a reader implementation with a
// limiting mechanism in place. For example, see io.LimitedReader.
func Read(r io.Reader) (Header, error) {
	size, err := readHeaderSize(r)
	switch {
	case err != nil:
		return Header{}, err
	case size < 2: // a bare minimum header is "{}"
		return Header{}, errkind.New(errkind.MalformedValue, "header size too small: %d", size)
	case size > math.MaxInt-8: // 8 bytes are the uint64 "size", already read
		return Header{}, errkind.New(errkind.MalformedValue, "header size too large: %d", size)
	}

	h, err := decodeJSON(r, int64(size))
	if err != nil {
		return Header{}, err
	}
	h.ByteBufferOffset = 8 + int(size) // take into account "size" uint64 bytes
	return h, nil
}

func readHeaderSize(r io.Reader) (uint64, error) {
	var arr [8]byte
	b := arr[:]
	if _, err := io.ReadFull(r, b); err != nil {
		return 0, readError("failed to read header size", err)
	}
	return binary.LittleEndian.Uint64(b), nil
}

func readError(msg string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errkind.New(errkind.TruncatedStream, "%s", msg).WithCause(err)
	}
	return errkind.New(errkind.MalformedValue, "%s", msg).WithCause(err)
}

// decodeJSON walks the JSON object token by token, so that the key order
// of the header is preserved.
func decodeJSON(r io.Reader, size int64) (h Header, err error) {
	lr := &io.LimitedReader{R: r, N: size}
	dec := json.NewDecoder(lr)
	dec.UseNumber()

	if err = expectDelim(dec, '{'); err != nil {
		return Header{}, jsonError(lr, err)
	}
	seen := make(map[string]struct{})
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Header{}, jsonError(lr, err)
		}
		key, ok := tok.(string)
		if !ok {
			return Header{}, errkind.New(errkind.MalformedValue, "unexpected JSON token %v", tok)
		}
		if _, dup := seen[key]; dup {
			return Header{}, errkind.New(errkind.MalformedValue, "duplicate header key %q", key)
		}
		seen[key] = struct{}{}

		var raw map[string]any
		if err = dec.Decode(&raw); err != nil {
			return Header{}, jsonError(lr, err)
		}
		if key == metadataKey {
			if h.Metadata, err = convertRawMetadata(raw); err != nil {
				return Header{}, err
			}
			continue
		}
		t, err := convertRawTensor(key, raw)
		if err != nil {
			return Header{}, errkind.New(errkind.MalformedValue, "failed to interpret header tensor %q", key).WithCause(err)
		}
		h.Tensors = append(h.Tensors, t)
	}
	if err = expectDelim(dec, '}'); err != nil {
		return Header{}, jsonError(lr, err)
	}

	// take care of possible padding spaces after JSON object
	if off := dec.InputOffset(); off != size {
		if _, err := dec.Token(); err == nil {
			return Header{}, errkind.New(errkind.MalformedValue, "unexpected data at byte offset %d", off)
		} else if err != io.EOF {
			return Header{}, jsonError(lr, err)
		}
	}
	if lr.N > 0 {
		return Header{}, errkind.New(errkind.TruncatedStream, "header shorter than declared size %d", size)
	}
	return h, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return errors.Errorf("expected %q, found %v", want, tok)
	}
	return nil
}

// jsonError distinguishes a header cut short by the end of the data from an
// invalid JSON document.
func jsonError(lr *io.LimitedReader, err error) error {
	if lr.N > 0 && (errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)) {
		return errkind.New(errkind.TruncatedStream, "failed to JSON-decode header").WithCause(err)
	}
	return errkind.New(errkind.MalformedValue, "failed to JSON-decode header").WithCause(err)
}

func convertRawMetadata(raw map[string]any) (Metadata, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	metadata := make(Metadata, len(raw))
	for key, rawVal := range raw {
		var ok bool
		if metadata[key], ok = rawVal.(string); !ok {
			return nil, errkind.New(errkind.MalformedValue,
				"failed to interpret header metadata: found non-string value for key %q", key)
		}
	}
	return metadata, nil
}

func convertRawTensor(name string, raw map[string]any) (t Tensor, err error) {
	t.Name = name
	if t.DType, err = convertRawTensorDType(raw); err != nil {
		return
	}
	if t.Shape, err = convertRawTensorShape(raw); err != nil {
		return
	}
	if t.DataOffsets, err = convertRawDataOffsets(raw); err != nil {
		return
	}
	if len(raw) != 3 {
		err = errors.New("JSON object contains unknown keys")
	}
	return
}

func convertRawTensorDType(raw map[string]any) (dtype.DType, error) {
	rawDType, ok := raw["dtype"]
	if !ok {
		return 0, errors.New(`"dtype" is missing`)
	}
	strDType, ok := rawDType.(string)
	if !ok {
		return 0, errors.New(`found non-string "dtype" value`)
	}
	var dt dtype.DType
	if err := dt.UnmarshalText([]byte(strDType)); err != nil {
		return 0, errors.Errorf(`invalid "dtype" value: %q`, strDType)
	}
	return dt, nil
}

func convertRawTensorShape(raw map[string]any) (Shape, error) {
	rawShape, ok := raw["shape"]
	if !ok {
		return nil, errors.New(`"shape" is missing`)
	}
	rawSlice, ok := rawShape.([]any)
	if !ok {
		return nil, errors.New(`found non-array "shape" value`)
	}
	shape := make(Shape, len(rawSlice))
	for i, rawItem := range rawSlice {
		var err error
		if shape[i], err = convertNonNegInt(rawItem); err != nil {
			return nil, errors.WithMessagef(err, `failed to interpret "shape" value at index %d`, i)
		}
	}
	return shape, nil
}

func convertRawDataOffsets(raw map[string]any) (DataOffsets, error) {
	rawDataOffsets, ok := raw["data_offsets"]
	if !ok {
		return DataOffsets{}, errors.New(`"data_offsets" is missing`)
	}
	rawSlice, ok := rawDataOffsets.([]any)
	if !ok {
		return DataOffsets{}, errors.New(`found non-array "data_offsets" value`)
	}
	if l := len(rawSlice); l != 2 {
		return DataOffsets{}, errors.Errorf(`bad "data_offsets" length: expected 2, actual %d`, l)
	}
	var parsed [2]int
	for i, rawItem := range rawSlice {
		var err error
		if parsed[i], err = convertNonNegInt(rawItem); err != nil {
			return DataOffsets{}, errors.WithMessagef(err, `failed to interpret "data_offsets" value at index %d`, i)
		}
	}
	return DataOffsets{Begin: parsed[0], End: parsed[1]}, nil
}

func convertNonNegInt(value any) (int, error) {
	jNum, ok := value.(json.Number)
	if !ok {
		return 0, errors.New("value is not a number")
	}
	num, err := strconv.ParseInt(jNum.String(), 10, strconv.IntSize)
	if err != nil {
		return 0, errors.WithMessagef(err, "failed to convert value %q to int", jNum.String())
	}
	if num < 0 {
		return 0, errors.Errorf("value is negative: %d", num)
	}
	return int(num), nil
}

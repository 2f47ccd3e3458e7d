// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pickle

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// decodeLong interprets b as a little-endian two's complement integer.
// Leading sign-extension bytes are ignored; values wider than 64 bits fail.
func decodeLong(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, nil
	}
	negative := b[len(b)-1]&0x80 != 0
	ext := byte(0x00)
	if negative {
		ext = 0xff
	}
	n := len(b)
	for n > 8 && b[n-1] == ext {
		n--
	}
	if n > 8 || (len(b) > 8 && (b[n-1]&0x80 != 0) != negative) {
		return 0, errors.Errorf("integer of %d bytes does not fit in 64 bits", len(b))
	}
	var u uint64
	for i := n - 1; i >= 0; i-- {
		u = u<<8 | uint64(b[i])
	}
	if negative && n < 8 {
		u |= ^uint64(0) << (8 * uint(n))
	}
	return int64(u), nil
}

// parseIntLine parses the argument of INT, which also encodes booleans
// as "00" and "01".
func parseIntLine(line []byte) (Value, error) {
	s := string(line)
	switch s {
	case "00":
		return Bool(false), nil
	case "01":
		return Bool(true), nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid INT literal %q", s)
	}
	return Int(v), nil
}

// parseLongLine parses the argument of LONG, with optional "L" suffix.
func parseLongLine(line []byte) (Value, error) {
	s := strings.TrimSuffix(string(line), "L")
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid LONG literal %q", s)
	}
	return Int(v), nil
}

func parseFloatLine(line []byte) (Value, error) {
	s := string(line)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid FLOAT literal %q", s)
	}
	return Float(v), nil
}

// parseStringLine parses the argument of STRING: a quoted string literal
// using Python escape sequences.
func parseStringLine(line []byte) (Value, error) {
	s := string(line)
	if len(s) < 2 || s[0] != s[len(s)-1] || (s[0] != '\'' && s[0] != '"') {
		return nil, errors.Errorf("the STRING opcode argument must be quoted: %q", s)
	}
	b, err := unescape(s[1:len(s)-1], false)
	if err != nil {
		return nil, err
	}
	return String(b), nil
}

// parseUnicodeLine parses the argument of UNICODE, encoded with Python's
// "raw-unicode-escape" codec.
func parseUnicodeLine(line []byte) (Value, error) {
	b, err := unescape(string(line), true)
	if err != nil {
		return nil, err
	}
	return String(b), nil
}

// unescape decodes backslash escape sequences. In raw mode only \uXXXX and
// \UXXXXXXXX are escapes, and other bytes are Latin-1 code points.
func unescape(s string, raw bool) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			if raw {
				out = utf8.AppendRune(out, rune(c))
			} else {
				out = append(out, c)
			}
			continue
		}
		e := s[i+1]
		switch {
		case e == 'u' || e == 'U':
			n := 4
			if e == 'U' {
				n = 8
			}
			if i+2+n > len(s) {
				return nil, errors.Errorf("truncated \\%c escape", e)
			}
			cp, err := strconv.ParseUint(s[i+2:i+2+n], 16, 32)
			if err != nil || cp > utf8.MaxRune {
				return nil, errors.Errorf("invalid \\%c escape %q", e, s[i+2:i+2+n])
			}
			out = utf8.AppendRune(out, rune(cp))
			i += 1 + n
		case raw:
			out = utf8.AppendRune(out, rune(c))
		case e == 'x':
			if i+4 > len(s) {
				return nil, errors.New("truncated \\x escape")
			}
			v, err := strconv.ParseUint(s[i+2:i+4], 16, 8)
			if err != nil {
				return nil, errors.Errorf("invalid \\x escape %q", s[i+2:i+4])
			}
			out = append(out, byte(v))
			i += 3
		case e >= '0' && e <= '7':
			j := i + 1
			v := 0
			for ; j < len(s) && j < i+4 && s[j] >= '0' && s[j] <= '7'; j++ {
				v = v*8 + int(s[j]-'0')
			}
			out = append(out, byte(v))
			i = j - 1
		default:
			if r, ok := simpleEscapes[e]; ok {
				out = append(out, r)
			} else {
				out = append(out, '\\', e)
			}
			i++
		}
	}
	return out, nil
}

var simpleEscapes = map[byte]byte{
	'\\': '\\', '\'': '\'', '"': '"', 'a': '\a', 'b': '\b',
	'f': '\f', 'n': '\n', 'r': '\r', 't': '\t', 'v': '\v',
}

// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package errkind provides the error taxonomy shared by all tensorinspect
// packages.
//
// Every fallible operation returns an *Error (possibly wrapped with more
// context), whose Kind tells apart a corrupt file from an unsupported one.
// A Kind is itself an error, so callers can test for a category with
// errors.Is:
//
//	if errors.Is(err, errkind.MissingEntry) {
//		// not an archive of this family
//	}
package errkind

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes an error.
type Kind string

const (
	NotAnArchive        Kind = "not an archive"
	MissingEntry        Kind = "missing entry"
	AmbiguousEntry      Kind = "ambiguous entry"
	TruncatedStream     Kind = "truncated stream"
	UnsupportedOpcode   Kind = "unsupported opcode"
	MalformedValue      Kind = "malformed value"
	UnexpectedRootShape Kind = "unexpected root shape"
	UnknownDtype        Kind = "unknown dtype"
	UnknownFormat       Kind = "unknown format"
)

// Error implements the error interface, so that a Kind can be used as
// target of errors.Is.
func (k Kind) Error() string { return string(k) }

// Error is the structured error returned by tensorinspect packages.
type Error struct {
	Kind Kind
	// Path is the file being processed, if known.
	Path string
	// Entry is the archive entry being processed, if any.
	Entry string
	// Offset is the byte position within the entry or stream, or -1.
	Offset int
	// Value is the offending value (opcode byte, dtype tag, ...), if any.
	Value  any
	Detail string
	Cause  error
}

// New creates a new Error of the given kind, with a formatted detail message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Offset: -1, Detail: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	if e.Entry != "" {
		fmt.Fprintf(&b, "entry %q: ", e.Entry)
	}
	b.WriteString(string(e.Kind))
	if e.Offset >= 0 {
		fmt.Fprintf(&b, " at offset %d", e.Offset)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is the Kind of this error.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// AtOffset sets the stream offset and returns the same error.
func (e *Error) AtOffset(offset int) *Error {
	e.Offset = offset
	return e
}

// WithValue sets the offending value and returns the same error.
func (e *Error) WithValue(v any) *Error {
	e.Value = v
	return e
}

// WithEntry sets the archive entry name and returns the same error.
func (e *Error) WithEntry(name string) *Error {
	e.Entry = name
	return e
}

// WithCause sets the underlying cause and returns the same error.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// KindOf returns the Kind of the first *Error found in err's chain,
// or an empty Kind if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// SetPath records the file path on the first *Error found in err's chain
// which does not have one yet. The same err is returned.
func SetPath(err error, path string) error {
	var e *Error
	if errors.As(err, &e) && e.Path == "" {
		e.Path = path
	}
	return err
}

// SetEntry records the archive entry on the first *Error found in err's
// chain which does not have one yet. The same err is returned.
func SetEntry(err error, entry string) error {
	var e *Error
	if errors.As(err, &e) && e.Entry == "" {
		e.Entry = entry
	}
	return err
}

// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ptarchive locates the entries of a PyTorch zip archive (the format
// written by torch.save): the pickled payload, its version marker and the
// raw storage blobs, all sharing a common path prefix.
package ptarchive

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"

	"github.com/nlpodyssey/tensorinspect/errkind"
	"github.com/pkg/errors"
)

// zipSignature is the leading local file header signature of a zip archive.
var zipSignature = []byte("PK\x03\x04")

// Entry is a single file stored within an Archive.
type Entry struct {
	// Name is the full path of the entry, unique within the archive.
	Name string
	// Size is the uncompressed size in bytes.
	Size int64
	file *zip.File
}

// Open returns a reader for the uncompressed content of the entry.
func (e Entry) Open() (io.ReadCloser, error) {
	return e.file.Open()
}

// ReadAll reads the whole uncompressed content of the entry.
func (e Entry) ReadAll() ([]byte, error) {
	rc, err := e.Open()
	if err != nil {
		return nil, errkind.New(errkind.MalformedValue, "failed to open entry").WithEntry(e.Name).WithCause(err)
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		kind := errkind.MalformedValue
		if errors.Is(err, io.ErrUnexpectedEOF) {
			kind = errkind.TruncatedStream
		}
		return nil, errkind.New(kind, "failed to read entry").WithEntry(e.Name).WithCause(err)
	}
	return data, nil
}

// EntryRef is the result of a lookup by suffix.
type EntryRef struct {
	// Name is the full entry name.
	Name string
	// Prefix is Name without the looked up suffix.
	Prefix string
}

// Archive is an open zip archive, allowing lookup of entries by name or by
// suffix. Entries are immutable for the lifetime of the Archive.
type Archive struct {
	entries []Entry
	byName  map[string]int
}

// Open opens the archive stored in the first "size" bytes of "r".
//
// It fails with errkind.NotAnArchive if the data does not start with a zip
// signature, or if the zip central directory cannot be read.
func Open(r io.ReaderAt, size int64) (*Archive, error) {
	var sig [4]byte
	if size < int64(len(sig)) {
		return nil, errkind.New(errkind.NotAnArchive, "data too short (%d bytes)", size)
	}
	if _, err := r.ReadAt(sig[:], 0); err != nil {
		return nil, errkind.New(errkind.NotAnArchive, "failed to read signature").WithCause(err)
	}
	if !bytes.Equal(sig[:], zipSignature) {
		return nil, errkind.New(errkind.NotAnArchive, "zip signature not found").WithValue(sig)
	}

	zr, err := zip.NewReader(r, size)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, errkind.New(errkind.NotAnArchive, "failed to read zip directory").WithCause(err)
	}

	a := &Archive{
		entries: make([]Entry, 0, len(zr.File)),
		byName:  make(map[string]int, len(zr.File)),
	}
	for _, f := range zr.File {
		if _, dup := a.byName[f.Name]; dup {
			continue
		}
		a.byName[f.Name] = len(a.entries)
		a.entries = append(a.entries, Entry{
			Name: f.Name,
			Size: int64(f.UncompressedSize64),
			file: f,
		})
	}
	return a, nil
}

// Entries returns all entries, in the order they are stored in the archive.
func (a *Archive) Entries() []Entry {
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Entry returns the entry with the given name, and whether it was found.
func (a *Archive) Entry(name string) (Entry, bool) {
	i, ok := a.byName[name]
	if !ok {
		return Entry{}, false
	}
	return a.entries[i], true
}

// FindBySuffix returns the unique entry whose name ends with "suffix".
//
// It fails with errkind.MissingEntry if no entry matches, and with
// errkind.AmbiguousEntry if more than one does.
func (a *Archive) FindBySuffix(suffix string) (EntryRef, error) {
	var matches []string
	for _, e := range a.entries {
		if strings.HasSuffix(e.Name, suffix) {
			matches = append(matches, e.Name)
		}
	}
	switch len(matches) {
	case 0:
		return EntryRef{}, errkind.New(errkind.MissingEntry, "no entry ends with %q", suffix)
	case 1:
		return EntryRef{
			Name:   matches[0],
			Prefix: strings.TrimSuffix(matches[0], suffix),
		}, nil
	default:
		return EntryRef{}, errkind.New(errkind.AmbiguousEntry, "%d entries end with %q: %s",
			len(matches), suffix, strings.Join(matches, ", ")).WithValue(matches)
	}
}

// ReadEntry reads the whole content of the named entry.
//
// It fails with errkind.MissingEntry if the entry does not exist.
func (a *Archive) ReadEntry(name string) ([]byte, error) {
	e, ok := a.Entry(name)
	if !ok {
		return nil, errkind.New(errkind.MissingEntry, "entry not found").WithEntry(name)
	}
	return e.ReadAll()
}

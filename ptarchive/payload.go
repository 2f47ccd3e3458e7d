// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ptarchive

import (
	"strings"
	"unicode/utf8"

	"github.com/nlpodyssey/tensorinspect/errkind"
	"github.com/pkg/errors"
)

const (
	// PayloadSuffix is the name suffix of the pickled object graph.
	PayloadSuffix = "/data.pkl"
	// VersionSuffix is the name suffix of the format version marker.
	VersionSuffix = "/version"
	// StorageDir is the sub-directory, relative to the prefix, holding the
	// raw storage blobs.
	StorageDir = "/data/"

	// SupportedVersion is the version marker written by torch.save since
	// the zip format was introduced.
	SupportedVersion = "3"
)

// Payload identifies the pickled object graph of an archive, together
// with the version marker found next to it.
type Payload struct {
	// Name is the full name of the payload entry.
	Name string
	// Prefix is shared by all entries belonging to the payload.
	Prefix string
	// Version is the content of the version marker, without trailing newline.
	Version string
}

// LocatePayload finds the unique payload entry and reads its sibling
// version marker.
//
// A missing version marker is reported as errkind.MissingEntry: it is the
// signal telling a PyTorch archive apart from an arbitrary zip file.
func (a *Archive) LocatePayload() (Payload, error) {
	ref, err := a.FindBySuffix(PayloadSuffix)
	if err != nil {
		return Payload{}, err
	}

	versionName := ref.Prefix + VersionSuffix
	data, err := a.ReadEntry(versionName)
	if errors.Is(err, errkind.MissingEntry) {
		return Payload{}, errkind.New(errkind.MissingEntry,
			"not a PyTorch archive: %q has no version marker", ref.Name).WithEntry(versionName)
	}
	if err != nil {
		return Payload{}, err
	}
	if !utf8.Valid(data) {
		return Payload{}, errkind.New(errkind.MalformedValue, "version marker is not valid UTF-8").WithEntry(versionName)
	}

	version := strings.TrimSuffix(string(data), "\n")
	version = strings.TrimSuffix(version, "\r")
	return Payload{
		Name:    ref.Name,
		Prefix:  ref.Prefix,
		Version: version,
	}, nil
}

// IsSupportedVersion reports whether the version marker is the one this
// package was written against.
func (p Payload) IsSupportedVersion() bool {
	return p.Version == SupportedVersion
}

// StorageEntryName returns the name of the entry holding the raw bytes of
// the storage with the given key.
func (p Payload) StorageEntryName(key string) string {
	return p.Prefix + StorageDir + key
}

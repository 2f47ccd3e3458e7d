// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

const testHeader = `{"weight":{"dtype":"F32","shape":[2,3],"data_offsets":[0,24]},"bias":{"dtype":"F32","shape":[3],"data_offsets":[24,36]}}`

func writeSafetensors(t *testing.T, dir, name string) string {
	t.Helper()
	b := binary.LittleEndian.AppendUint64(nil, uint64(len(testHeader)))
	b = append(b, testHeader...)
	b = append(b, make([]byte, 36)...)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return path
}

// execute runs the command line in an isolated home directory.
func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	path := writeSafetensors(t, dir, "model.safetensors")

	t.Run("names", func(t *testing.T) {
		out, _, err := execute(t, "list", path)
		require.NoError(t, err)
		assert.Equal(t, "weight\nbias\n", out)
	})

	t.Run("detailed", func(t *testing.T) {
		out, _, err := execute(t, "list", "-d", path)
		require.NoError(t, err)
		assert.Equal(t, "weight - F32 - 2 x 3\nbias - F32 - 3\n", out)
	})

	t.Run("many files", func(t *testing.T) {
		other := writeSafetensors(t, dir, "other.safetensors")
		out, _, err := execute(t, "list", path, other)
		require.NoError(t, err)
		assert.Equal(t, path+":\nweight\nbias\n"+other+":\nweight\nbias\n", out)
	})

	t.Run("json", func(t *testing.T) {
		out, _, err := execute(t, "list", "--format", "json", path, path)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "["))
		assert.Equal(t, 2, strings.Count(out, `"name": "weight"`))
	})

	t.Run("table", func(t *testing.T) {
		out, _, err := execute(t, "list", "--format", "table", path)
		require.NoError(t, err)
		assert.Contains(t, out, "2 tensors")
		assert.Contains(t, out, "36 B")
	})

	t.Run("unknown format", func(t *testing.T) {
		_, _, err := execute(t, "list", "--format", "yaml", path)
		assert.EqualError(t, err, `unknown output format "yaml" (valid: plain, table, json)`)
	})

	t.Run("no files", func(t *testing.T) {
		_, _, err := execute(t, "list")
		assert.Error(t, err)
	})
}

func TestList_Failures(t *testing.T) {
	dir := t.TempDir()
	good := writeSafetensors(t, dir, "good.safetensors")
	bad := filepath.Join(dir, "bad.bin")
	require.NoError(t, os.WriteFile(bad, []byte("definitely not tensors"), 0o644))

	var logs bytes.Buffer
	klog.LogToStderr(false)
	klog.SetOutput(&logs)
	t.Cleanup(func() {
		klog.SetOutput(os.Stderr)
		klog.LogToStderr(true)
	})

	out, stderr, err := execute(t, "list", bad, good)
	require.EqualError(t, err, "1 of 2 files could not be inspected")
	assert.Contains(t, out, "weight\nbias\n")
	assert.Contains(t, stderr, "tensorls: "+bad+": unknown format")
	assert.Equal(t, 1, strings.Count(stderr, bad))

	klog.Flush()
	assert.NotContains(t, logs.String(), bad)
}

func TestList_Config(t *testing.T) {
	dir := t.TempDir()
	path := writeSafetensors(t, dir, "model.safetensors")

	t.Run("file", func(t *testing.T) {
		cfg := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(cfg, []byte("detailed: true\n"), 0o644))
		out, _, err := execute(t, "--config", cfg, "list", path)
		require.NoError(t, err)
		assert.Equal(t, "weight - F32 - 2 x 3\nbias - F32 - 3\n", out)
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := execute(t, "--config", filepath.Join(dir, "missing.yaml"), "list", path)
		assert.ErrorContains(t, err, "failed to read config")
	})

	t.Run("env", func(t *testing.T) {
		t.Setenv("TENSORLS_FORMAT", "json")
		out, _, err := execute(t, "list", path)
		require.NoError(t, err)
		assert.Contains(t, out, `"format": "safetensors"`)
	})

	t.Run("flag overrides env", func(t *testing.T) {
		t.Setenv("TENSORLS_FORMAT", "json")
		out, _, err := execute(t, "list", "--format", "plain", path)
		require.NoError(t, err)
		assert.Equal(t, "weight\nbias\n", out)
	})

	t.Run("header size limit", func(t *testing.T) {
		t.Setenv("TENSORLS_HEADER_SIZE_LIMIT", "10")
		_, stderr, err := execute(t, "list", path)
		require.Error(t, err)
		assert.Contains(t, stderr, "exceeds limit 10")
	})
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "tensorls "))
}

/*
 * Copyright (c) SAS Institute Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package zipfile

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	inPath := filepath.Join(dir, "in.zip")
	outPath := filepath.Join(dir, "out.zip")

	f, err := os.Create(inPath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("hello.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("hello world"))
	require.NoError(t, err)
	_, err = zw.CreateHeader(&zip.FileHeader{Name: "sub/"})
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	archive, err := Open(inPath)
	require.NoError(t, err)
	defer archive.Close()
	require.Len(t, archive.Entries, 2)
	assert.False(t, archive.Entries["hello.txt"].Dir)
	assert.True(t, archive.Entries["sub/"].Dir)

	// entries can be read more than once
	for i := 0; i < 2; i++ {
		r, err := archive.Entries["hello.txt"].Open()
		require.NoError(t, err)
		blob, err := io.ReadAll(r)
		r.Close()
		require.NoError(t, err)
		assert.Equal(t, []byte("hello world"), blob)
	}

	stamp := time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)
	out, err := os.Create(outPath)
	require.NoError(t, err)
	writer := NewWriter(out)
	entry := archive.Entries["hello.txt"]
	entry.ModTime = stamp
	require.NoError(t, writer.Add(entry))
	require.NoError(t, writer.AddBytes("extra.txt", []byte("extra"), stamp))
	require.NoError(t, writer.Close())
	require.NoError(t, out.Close())

	zr, err := zip.OpenReader(outPath)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 2)
	assert.Equal(t, "hello.txt", zr.File[0].Name)
	assert.Equal(t, "extra.txt", zr.File[1].Name)
	for _, zf := range zr.File {
		assert.WithinDuration(t, stamp, zf.Modified, 2*time.Second, zf.Name)
	}
}

func TestNewEntry(t *testing.T) {
	t.Parallel()
	e := NewEntry("dir/", nil)
	assert.True(t, e.Dir)

	e = NewEntry("file.bin", []byte{1, 2, 3})
	assert.False(t, e.Dir)
	r, err := e.Open()
	require.NoError(t, err)
	blob, err := io.ReadAll(r)
	r.Close()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, blob)
}

func TestOpenNotZip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bogus.zip")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0644))
	_, err := Open(path)
	require.Error(t, err)
}

func TestWriterDeterministic(t *testing.T) {
	t.Parallel()
	stamp := time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)
	var bufs [2]bytes.Buffer
	for i := range bufs {
		w := NewWriter(&bufs[i])
		require.NoError(t, w.AddBytes("a.txt", []byte("aaa"), stamp))
		require.NoError(t, w.AddBytes("b.txt", []byte("bbb"), stamp))
		require.NoError(t, w.Close())
	}
	assert.Equal(t, bufs[0].Bytes(), bufs[1].Bytes())
}

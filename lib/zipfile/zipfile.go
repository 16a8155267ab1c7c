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

// Package zipfile is the archive boundary of the signer: it exposes zip
// contents as a name-keyed entry map and serializes entries back out in
// exactly the order they are presented.
package zipfile

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"
)

// Entry is one member of an input archive. Content is read through Open,
// which may be called more than once; the signer reads once to digest and
// once more to copy.
type Entry struct {
	Name    string
	Dir     bool
	ModTime time.Time
	open    func() (io.ReadCloser, error)
}

func (e *Entry) Open() (io.ReadCloser, error) {
	if e.open == nil {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	return e.open()
}

// NewEntry builds an in-memory entry, mostly useful for feeding
// pre-assembled content to SignEntries.
func NewEntry(name string, contents []byte) *Entry {
	return &Entry{
		Name: name,
		Dir:  strings.HasSuffix(name, "/"),
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(contents)), nil
		},
	}
}

// Archive holds an open input zip. It must stay open until every entry the
// caller plans to read has been read.
type Archive struct {
	Path    string
	Entries map[string]*Entry
	rc      *zip.ReadCloser
}

func Open(path string) (*Archive, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("reading zip %s: %w", path, err)
	}
	entries := make(map[string]*Entry, len(rc.File))
	for _, f := range rc.File {
		f := f
		entries[f.Name] = &Entry{
			Name:    f.Name,
			Dir:     f.FileInfo().IsDir(),
			ModTime: f.Modified,
			open:    func() (io.ReadCloser, error) { return f.Open() },
		}
	}
	return &Archive{Path: path, Entries: entries, rc: rc}, nil
}

func (a *Archive) Close() error {
	if a.rc == nil {
		return nil
	}
	err := a.rc.Close()
	a.rc = nil
	return err
}

// Writer serializes entries to an output stream, preserving the order in
// which they are added.
type Writer struct {
	zw *zip.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{zw: zip.NewWriter(w)}
}

// Add copies one entry, stamped with the entry's current ModTime.
func (w *Writer) Add(e *Entry) error {
	r, err := e.Open()
	if err != nil {
		return fmt.Errorf("reading zip entry %s: %w", e.Name, err)
	}
	defer r.Close()
	fw, err := w.create(e.Name, e.ModTime)
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return fmt.Errorf("copying zip entry %s: %w", e.Name, err)
	}
	return nil
}

// AddBytes writes a new entry from a byte buffer.
func (w *Writer) AddBytes(name string, contents []byte, modTime time.Time) error {
	fw, err := w.create(name, modTime)
	if err != nil {
		return err
	}
	_, err = fw.Write(contents)
	return err
}

func (w *Writer) create(name string, modTime time.Time) (io.Writer, error) {
	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modTime,
	}
	return w.zw.CreateHeader(hdr)
}

// Close finalizes the central directory. Must be called exactly once.
func (w *Writer) Close() error {
	return w.zw.Close()
}

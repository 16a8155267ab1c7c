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

// Package atomicfile writes a file through a temporary name in the same
// directory. Until Commit is called nothing exists at the destination path,
// so an abandoned or canceled write leaves no partial output behind.
package atomicfile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

type AtomicFile interface {
	io.WriteCloser
	// Commit renames the temporary file over the destination path.
	Commit() error
}

type atomicFile struct {
	name     string
	tempfile *os.File
}

func New(name string) (AtomicFile, error) {
	tempfile, err := os.CreateTemp(filepath.Dir(name), filepath.Base(name)+".tmp")
	if err != nil {
		return nil, err
	}
	return &atomicFile{name, tempfile}, nil
}

func (f *atomicFile) Write(d []byte) (int, error) {
	return f.tempfile.Write(d)
}

// Close discards the temporary file. Calling Close after Commit is a no-op,
// so it is safe to defer unconditionally.
func (f *atomicFile) Close() error {
	if f.tempfile == nil {
		return nil
	}
	f.tempfile.Close()
	os.Remove(f.tempfile.Name())
	f.tempfile = nil
	return nil
}

func (f *atomicFile) Commit() error {
	if f.tempfile == nil {
		return errors.New("file is closed")
	}
	f.tempfile.Chmod(0644)
	if err := f.tempfile.Close(); err != nil {
		return err
	}
	// rename can't overwrite on windows
	if err := os.Remove(f.name); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Rename(f.tempfile.Name(), f.name); err != nil {
		return err
	}
	f.tempfile = nil
	return nil
}

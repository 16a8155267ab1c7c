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

package atomicfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommit(t *testing.T) {
	t.Parallel()
	dest := filepath.Join(t.TempDir(), "out.bin")
	f, err := New(dest)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Write([]byte("contents"))
	require.NoError(t, err)

	// nothing exists at the destination before Commit
	_, err = os.Stat(dest)
	require.True(t, os.IsNotExist(err))

	require.NoError(t, f.Commit())
	blob, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, []byte("contents"), blob)

	// deferred Close after Commit must not remove the result
	require.NoError(t, f.Close())
	_, err = os.Stat(dest)
	require.NoError(t, err)
}

func TestCloseDiscards(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.bin")
	f, err := New(dest)
	require.NoError(t, err)
	_, err = f.Write([]byte("abandoned"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = os.Stat(dest)
	require.True(t, os.IsNotExist(err))
	// the temp file is gone too
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCommitOverwrites(t *testing.T) {
	t.Parallel()
	dest := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, os.WriteFile(dest, []byte("old"), 0644))

	f, err := New(dest)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Write([]byte("new"))
	require.NoError(t, err)
	require.NoError(t, f.Commit())

	blob, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), blob)
}

func TestCommitAfterClose(t *testing.T) {
	t.Parallel()
	f, err := New(filepath.Join(t.TempDir(), "out.bin"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.Error(t, f.Commit())
}

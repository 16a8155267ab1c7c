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

package signzip

import (
	"crypto/sha1" //nolint:gosec
	"encoding/base64"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Breaktrapper/zip-signer/lib/zipfile"
)

func newTestRun() *run {
	return &run{s: New(), log: zerolog.Nop()}
}

func TestParseManifest(t *testing.T) {
	t.Parallel()
	const manifest = "Manifest-Version: 1.0\r\n" +
		"Created-By: 1.0 (Android SignApk)\r\n" +
		"\r\n" +
		"Name: foo\r\n" +
		"SHA1-Digest: AAAA\r\n" +
		"\r\n"
	parsed, err := ParseManifest([]byte(manifest))
	require.NoError(t, err)
	assert.Equal(t, "1.0", parsed.Main.Get("Manifest-Version"))
	assert.Equal(t, []string{"foo"}, parsed.Order)
	require.Contains(t, parsed.Files, "foo")
	// exact key casing must survive the round trip
	assert.Equal(t, []string{"AAAA"}, parsed.Files["foo"]["SHA1-Digest"])

	dumped := parsed.Dump()
	assert.Equal(t, manifest, string(dumped))
}

func TestParseManifestContinuation(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("x", 100)
	var m = &Manifest{
		Main:  http.Header{"Manifest-Version": {"1.0"}, "Long-Attr": {long}},
		Order: nil,
		Files: map[string]http.Header{},
	}
	dumped := m.Dump()
	parsed, err := ParseManifest(dumped)
	require.NoError(t, err)
	assert.Equal(t, long, parsed.Main.Get("Long-Attr"))
}

func TestExcluded(t *testing.T) {
	t.Parallel()
	excluded := []*zipfile.Entry{
		{Name: "dir/", Dir: true},
		{Name: ManifestName},
		{Name: SignatureName},
		{Name: BlockName},
		{Name: "META-INF/OLD.SF"},
		{Name: "META-INF/OTHER.RSA"},
		{Name: "META-INF/sub/KEY.DSA"},
	}
	for _, e := range excluded {
		assert.True(t, Excluded(e), e.Name)
	}
	included := []*zipfile.Entry{
		{Name: "a.txt"},
		{Name: "META-INF/services/foo"},
		// comparisons are case-sensitive and exact
		{Name: "meta-inf/cert.sf"},
		{Name: "prefix/META-INF/X.SF"},
	}
	for _, e := range included {
		assert.False(t, Excluded(e), e.Name)
	}
}

func TestAddDigestsToManifest(t *testing.T) {
	t.Parallel()
	entries := map[string]*zipfile.Entry{
		"z.bin":           zipfile.NewEntry("z.bin", []byte("zzz")),
		"a.txt":           zipfile.NewEntry("a.txt", []byte("hello")),
		"dir/":            zipfile.NewEntry("dir/", nil),
		"META-INF/OLD.SF": zipfile.NewEntry("META-INF/OLD.SF", []byte("stale")),
	}
	r := newTestRun()
	m, err := r.addDigestsToManifest(entries)
	require.NoError(t, err)

	// sorted, exclusions applied
	assert.Equal(t, []string{"a.txt", "z.bin"}, m.Order)
	assert.Equal(t, "1.0", m.Main.Get("Manifest-Version"))

	digest := sha1.Sum([]byte("hello"))
	want := base64.StdEncoding.EncodeToString(digest[:])
	assert.Equal(t, []string{want}, m.Files["a.txt"]["SHA1-Digest"])
}

func TestAddDigestsCarryForward(t *testing.T) {
	t.Parallel()
	prev := &Manifest{
		Main: http.Header{
			"Manifest-Version": {"1.0"},
			"Built-By":         {"somebody"},
		},
		Order: []string{"a.txt"},
		Files: map[string]http.Header{
			"a.txt": {
				"Name":        {"a.txt"},
				"SHA1-Digest": {"stale-digest"},
				"Custom-Attr": {"kept"},
			},
		},
	}
	entries := map[string]*zipfile.Entry{
		ManifestName: zipfile.NewEntry(ManifestName, prev.Dump()),
		"a.txt":      zipfile.NewEntry("a.txt", []byte("hello")),
	}
	r := newTestRun()
	m, err := r.addDigestsToManifest(entries)
	require.NoError(t, err)

	// main attributes are preserved verbatim
	assert.Equal(t, "somebody", m.Main.Get("Built-By"))
	// per-entry attributes carry forward, except the digest is recomputed
	assert.Equal(t, []string{"kept"}, m.Files["a.txt"]["Custom-Attr"])
	digest := sha1.Sum([]byte("hello"))
	want := base64.StdEncoding.EncodeToString(digest[:])
	assert.Equal(t, []string{want}, m.Files["a.txt"]["SHA1-Digest"])
}

func TestManifestDeterministicOrder(t *testing.T) {
	t.Parallel()
	entries := map[string]*zipfile.Entry{}
	for _, name := range []string{"m", "c", "z", "a", "q"} {
		entries[name] = zipfile.NewEntry(name, []byte(name))
	}
	r1 := newTestRun()
	m1, err := r1.addDigestsToManifest(entries)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "m", "q", "z"}, m1.Order)

	r2 := newTestRun()
	m2, err := r2.addDigestsToManifest(entries)
	require.NoError(t, err)
	assert.Equal(t, m1.Dump(), m2.Dump())
}

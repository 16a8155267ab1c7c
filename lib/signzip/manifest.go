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

// See https://docs.oracle.com/javase/8/docs/technotes/guides/jar/jar.html#JAR_Manifest

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // the recovery verifier is SHA1-only
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/Breaktrapper/zip-signer/lib/zipfile"
)

const (
	metaInf       = "META-INF/"
	ManifestName  = metaInf + "MANIFEST.MF"
	SignatureName = metaInf + "CERT.SF"
	BlockName     = metaInf + "CERT.RSA"

	manifestVersion = "1.0"
	createdBy       = "1.0 (Android SignApk)"

	digestAttr         = "SHA1-Digest"
	digestManifestAttr = "SHA1-Digest-Manifest"
)

// Entries matching this pattern are neither digested nor copied to the
// output.
var stripPattern = regexp.MustCompile(`^META-INF/(.*)\.(SF|RSA|DSA)$`)

// Excluded reports whether an entry is left out of the manifest, the
// signature file and the output copy.
func Excluded(e *zipfile.Entry) bool {
	return e.Dir ||
		e.Name == ManifestName ||
		e.Name == SignatureName ||
		e.Name == BlockName ||
		stripPattern.MatchString(e.Name)
}

// Manifest is an ordered JAR manifest document: main attributes plus one
// attribute section per named entry.
type Manifest struct {
	Main  http.Header
	Order []string
	Files map[string]http.Header
}

// ParseManifest reads an existing MANIFEST.MF so its attributes can be
// carried forward through a re-signing.
func ParseManifest(manifest []byte) (*Manifest, error) {
	sections := splitManifest(manifest)
	if len(sections) == 0 {
		return nil, errors.New("manifest has no sections")
	}
	m := &Manifest{
		Order: make([]string, 0, len(sections)-1),
		Files: make(map[string]http.Header, len(sections)-1),
	}
	for i, section := range sections {
		hdr, err := parseSection(section)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			m.Main = hdr
			continue
		}
		name := hdr.Get("Name")
		if name == "" {
			return nil, errors.New("manifest has section with no \"Name\" attribute")
		}
		m.Order = append(m.Order, name)
		m.Files[name] = hdr
	}
	return m, nil
}

// Dump serializes the manifest with CRLF line endings. The bytes are
// deterministic for a given document: entries in Order, attributes sorted
// within each section.
func (m *Manifest) Dump() []byte {
	var out bytes.Buffer
	writeSection(&out, m.Main, "Manifest-Version")
	for _, name := range m.Order {
		if section := m.Files[name]; section != nil {
			writeSection(&out, section, "Name")
		}
	}
	return out.Bytes()
}

func splitManifest(manifest []byte) [][]byte {
	sections := make([][]byte, 0)
	for len(manifest) != 0 {
		i1 := bytes.Index(manifest, []byte("\r\n\r\n"))
		i2 := bytes.Index(manifest, []byte("\n\n"))
		var idx int
		switch {
		case i1 >= 0 && (i2 < 0 || i1 < i2):
			idx = i1 + 4
		case i2 >= 0:
			idx = i2 + 2
		default:
			idx = len(manifest)
		}
		section := manifest[:idx]
		manifest = manifest[idx:]
		if len(bytes.TrimSpace(section)) == 0 {
			continue
		}
		sections = append(sections, section)
	}
	return sections
}

func parseSection(section []byte) (http.Header, error) {
	section = bytes.ReplaceAll(section, []byte("\r\n"), []byte{'\n'})
	// undo continuation lines
	section = bytes.ReplaceAll(section, []byte("\n "), []byte{})
	hdr := make(http.Header)
	for _, line := range bytes.Split(section, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		idx := bytes.IndexRune(line, ':')
		if idx < 0 {
			return nil, errors.New("manifest is malformed")
		}
		key := strings.TrimSpace(string(line[:idx]))
		value := strings.TrimSpace(string(line[idx+1:]))
		// direct assignment: Set would canonicalize SHA1-Digest to Sha1-Digest
		hdr[key] = append(hdr[key], value)
	}
	return hdr, nil
}

const maxLineLength = 70

// Write a key-value pair, wrapping long lines as necessary
func writeAttribute(out *bytes.Buffer, key, value string) {
	line := []byte(fmt.Sprintf("%s: %s", key, value))
	for i := 0; i < len(line); {
		goal := maxLineLength
		if i != 0 {
			out.Write([]byte{' '})
			goal--
		}
		j := i + goal
		if j > len(line) {
			j = len(line)
		}
		out.Write(line[i:j])
		out.Write([]byte("\r\n"))
		i = j
	}
}

func writeSection(out *bytes.Buffer, hdr http.Header, first string) {
	if value := hdr.Get(first); value != "" {
		writeAttribute(out, first, value)
	}
	keys := make([]string, 0, len(hdr))
	for key := range hdr {
		if key == first {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		for _, value := range hdr[key] {
			writeAttribute(out, key, value)
		}
	}
	out.Write([]byte("\r\n"))
}

func hashBase64(data []byte) string {
	d := sha1.Sum(data)
	return base64.StdEncoding.EncodeToString(d[:])
}

// addDigestsToManifest scans the input entries in name-sorted order and
// builds the manifest for this run. Attributes from a pre-existing
// manifest are carried forward, with the digest overwritten.
func (r *run) addDigestsToManifest(entries map[string]*zipfile.Entry) (*Manifest, error) {
	var input *Manifest
	if prev := entries[ManifestName]; prev != nil {
		rc, err := prev.Open()
		if err != nil {
			return nil, fmt.Errorf("reading zip entry %s: %w", ManifestName, err)
		}
		blob, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading zip entry %s: %w", ManifestName, err)
		}
		input, err = ParseManifest(blob)
		if err != nil {
			return nil, err
		}
	}

	output := &Manifest{Main: make(http.Header), Files: make(map[string]http.Header)}
	if input != nil {
		for key, values := range input.Main {
			output.Main[key] = append([]string(nil), values...)
		}
	} else {
		output.Main["Manifest-Version"] = []string{manifestVersion}
		output.Main["Created-By"] = []string{createdBy}
	}

	// Sort input entries by name so the output manifest is deterministic
	// regardless of iteration order.
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if r.isCanceled() {
			break
		}
		entry := entries[name]
		if Excluded(entry) {
			continue
		}
		r.progress(PriorityNormal, "Generating manifest")
		digest, err := digestEntry(entry)
		if err != nil {
			return nil, err
		}
		attr := make(http.Header)
		if input != nil {
			for key, values := range input.Files[name] {
				attr[key] = append([]string(nil), values...)
			}
		}
		attr["Name"] = []string{name}
		attr[digestAttr] = []string{digest}
		output.Order = append(output.Order, name)
		output.Files[name] = attr
	}
	return output, nil
}

func digestEntry(entry *zipfile.Entry) (string, error) {
	rc, err := entry.Open()
	if err != nil {
		return "", fmt.Errorf("reading zip entry %s: %w", entry.Name, err)
	}
	defer rc.Close()
	d := sha1.New() //nolint:gosec
	if _, err := io.Copy(d, rc); err != nil {
		return "", fmt.Errorf("reading zip entry %s: %w", entry.Name, err)
	}
	return base64.StdEncoding.EncodeToString(d.Sum(nil)), nil
}

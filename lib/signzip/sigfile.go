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
	"bytes"
	"errors"
)

// generateSignatureFile transforms serialized manifest bytes into the
// CERT.SF document. Every digest is computed over the exact bytes of the
// corresponding manifest section, so the manifest must not be re-serialized
// between the two steps.
func (r *run) generateSignatureFile(manifest []byte) ([]byte, error) {
	sections := splitManifest(manifest)
	if len(sections) == 0 {
		return nil, errors.New("manifest has no sections")
	}
	var out bytes.Buffer
	writeAttribute(&out, "Signature-Version", "1.0")
	writeAttribute(&out, "Created-By", createdBy)
	writeAttribute(&out, digestManifestAttr, hashBase64(manifest))
	out.WriteString("\r\n")

	// One stanza per manifest entry, same order as the manifest.
	for _, section := range sections[1:] {
		if r.isCanceled() {
			break
		}
		r.progress(PriorityNormal, "Generating signature file")
		hdr, err := parseSection(section)
		if err != nil {
			return nil, err
		}
		name := hdr.Get("Name")
		if name == "" {
			return nil, errors.New("manifest section was missing Name attribute")
		}
		writeAttribute(&out, "Name", name)
		writeAttribute(&out, digestAttr, hashBase64(section))
		out.WriteString("\r\n")
	}
	return out.Bytes(), nil
}

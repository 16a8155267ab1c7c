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
	"crypto"
	"crypto/x509"
	"fmt"
	"sync"

	"github.com/Breaktrapper/zip-signer/lib/pkcs7"
)

// BlockEncoder produces a self-contained PKCS7 SignedData buffer from a
// raw signature and the signing certificate. It is the replacement for a
// precomputed signature block template.
type BlockEncoder interface {
	EncodeSignatureBlock(signature []byte, cert *x509.Certificate) ([]byte, error)
}

// DefaultBlockEncoderName is the capability resolved when a signer has no
// template and no explicitly injected encoder.
const DefaultBlockEncoderName = "pkcs7"

var (
	encoderMu     sync.Mutex
	blockEncoders = make(map[string]BlockEncoder)
)

// RegisterBlockEncoder makes an encoder resolvable by name. Registration
// is optional: callers that always supply a template or inject an encoder
// never consult the registry.
func RegisterBlockEncoder(name string, enc BlockEncoder) {
	encoderMu.Lock()
	defer encoderMu.Unlock()
	blockEncoders[name] = enc
}

func lookupBlockEncoder(name string) BlockEncoder {
	encoderMu.Lock()
	defer encoderMu.Unlock()
	return blockEncoders[name]
}

// MissingEncoderError is the fatal, non-retryable result of asking for a
// signature block with neither a template nor a usable encoder.
type MissingEncoderError struct {
	Name string
}

func (e *MissingEncoderError) Error() string {
	return fmt.Sprintf("no %q signature block encoder is available and no signature block template was supplied", e.Name)
}

// writeSignatureBlock assembles the CERT.RSA bytes. With a template the
// output is the byte-exact concatenation template ++ signature; the
// template's trailing variable-length field is the signature, by contract
// with whoever generated it. Without a template an encoder builds the
// whole container.
func (r *run) writeSignatureBlock(template, signature []byte, cert *x509.Certificate) ([]byte, error) {
	if template != nil {
		out := make([]byte, 0, len(template)+len(signature))
		out = append(out, template...)
		return append(out, signature...), nil
	}
	enc := r.s.encoder
	if enc == nil {
		enc = lookupBlockEncoder(r.s.encoderName)
	}
	if enc == nil {
		return nil, &MissingEncoderError{Name: r.s.encoderName}
	}
	block, err := enc.EncodeSignatureBlock(signature, cert)
	if err != nil {
		return nil, fmt.Errorf("encoding signature block: %w", err)
	}
	return block, nil
}

// PKCS7Encoder is the built-in block encoder: a detached SHA1 SignedData
// holding the certificate and the raw signature.
type PKCS7Encoder struct{}

func (PKCS7Encoder) EncodeSignatureBlock(signature []byte, cert *x509.Certificate) ([]byte, error) {
	return pkcs7.SignatureBlock(signature, cert, crypto.SHA1)
}

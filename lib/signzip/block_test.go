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
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Breaktrapper/zip-signer/lib/keymaterial"
	"github.com/Breaktrapper/zip-signer/lib/pkcs7"
)

func testCertificate(t *testing.T) *x509.Certificate {
	t.Helper()
	cert, err := keymaterial.LoadCertificateFile("testdata/testkey.x509.pem")
	require.NoError(t, err)
	return cert
}

func TestSignatureBlockTemplate(t *testing.T) {
	t.Parallel()
	template := []byte("TEMPLATE-PREFIX")
	signature := []byte("SIGNATURE")
	r := newTestRun()
	block, err := r.writeSignatureBlock(template, signature, nil)
	require.NoError(t, err)
	// byte-exact concatenation, no parsing of the template
	assert.Equal(t, append([]byte("TEMPLATE-PREFIX"), []byte("SIGNATURE")...), block)
}

func TestSignatureBlockMissingEncoder(t *testing.T) {
	t.Parallel()
	s := New(signzipWithUnregisteredName())
	r := &run{s: s, log: s.logger}
	_, err := r.writeSignatureBlock(nil, []byte("SIGNATURE"), testCertificate(t))
	var missing *MissingEncoderError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, missing.Error(), "no-such-encoder")
}

func signzipWithUnregisteredName() Option {
	return WithBlockEncoderName("no-such-encoder")
}

func TestSignatureBlockEncoder(t *testing.T) {
	t.Parallel()
	cert := testCertificate(t)
	signature := []byte("SIGNATURE-BYTES")
	s := New(WithBlockEncoder(PKCS7Encoder{}))
	r := &run{s: s, log: s.logger}
	block, err := r.writeSignatureBlock(nil, signature, cert)
	require.NoError(t, err)

	psd, err := pkcs7.Parse(block)
	require.NoError(t, err)
	require.Len(t, psd.Content.SignerInfos, 1)
	assert.Equal(t, signature, psd.Content.SignerInfos[0].EncryptedDigest)
	certs, err := psd.Content.Certificates.Parse()
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.Equal(t, cert.Raw, certs[0].Raw)
}

func TestSignatureBlockRegistry(t *testing.T) {
	RegisterBlockEncoder("test-registry-encoder", PKCS7Encoder{})
	s := New(WithBlockEncoderName("test-registry-encoder"))
	r := &run{s: s, log: s.logger}
	block, err := r.writeSignatureBlock(nil, []byte("SIG"), testCertificate(t))
	require.NoError(t, err)
	_, err = pkcs7.Parse(block)
	require.NoError(t, err)
}

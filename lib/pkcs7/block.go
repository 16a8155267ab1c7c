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

package pkcs7

import (
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"

	"github.com/Breaktrapper/zip-signer/lib/x509tools"
)

// SignatureBlock wraps an already-computed signature and its certificate in
// a detached SignedData container. The signature is not recomputed or
// validated here; the caller is responsible for producing one that matches
// the digest algorithm.
func SignatureBlock(signature []byte, cert *x509.Certificate, hash crypto.Hash) ([]byte, error) {
	if cert == nil {
		return nil, errors.New("pkcs7: certificate is required")
	}
	digestAlg, ok := x509tools.PkixDigestAlgorithm(hash)
	if !ok {
		return nil, errors.New("pkcs7: unsupported digest algorithm")
	}
	pkeyAlg, ok := x509tools.PkixPublicKeyAlgorithm(cert.PublicKey)
	if !ok {
		return nil, errors.New("pkcs7: unsupported public key algorithm")
	}
	psd := ContentInfoSignedData{
		ContentType: OidSignedData,
		Content: SignedData{
			Version:                    1,
			DigestAlgorithmIdentifiers: []pkix.AlgorithmIdentifier{digestAlg},
			ContentInfo:                ContentInfo{ContentType: OidData},
			Certificates:               MarshalCertificates([]*x509.Certificate{cert}),
			SignerInfos: []SignerInfo{{
				Version: 1,
				IssuerAndSerialNumber: IssuerAndSerial{
					IssuerName:   asn1.RawValue{FullBytes: cert.RawIssuer},
					SerialNumber: cert.SerialNumber,
				},
				DigestAlgorithm:           digestAlg,
				DigestEncryptionAlgorithm: pkeyAlg,
				EncryptedDigest:           signature,
			}},
		},
	}
	return asn1.Marshal(psd)
}

// Parse decodes a SignedData container, e.g. a CERT.RSA pulled back out of
// a signed zip.
func Parse(der []byte) (*ContentInfoSignedData, error) {
	psd := new(ContentInfoSignedData)
	if rest, err := asn1.Unmarshal(der, psd); err != nil {
		return nil, err
	} else if len(rest) != 0 {
		return nil, errors.New("pkcs7: trailing garbage after SignedData")
	}
	if !psd.ContentType.Equal(OidSignedData) {
		return nil, errors.New("pkcs7: not a SignedData structure")
	}
	return psd, nil
}

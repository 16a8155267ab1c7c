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

// Package keymaterial loads the inputs of a signing run: a private key
// from plain or password-encrypted PKCS8, an X.509 certificate, and
// optionally a precomputed signature block template.
package keymaterial

import (
	"crypto"
	"crypto/dsa" //nolint:staticcheck // legacy keys are still loadable
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"os"

	"github.com/Breaktrapper/zip-signer/lib/x509tools"
)

const asn1Magic = 0x30

// KeyMaterial is everything a signing run needs, loaded once and read-only
// afterward. SignatureBlockTemplate may be nil, in which case a block
// encoder assembles CERT.RSA from scratch.
type KeyMaterial struct {
	PrivateKey             crypto.PrivateKey
	Certificate            *x509.Certificate
	SignatureBlockTemplate []byte
}

// ParsePrivateKey decodes a PKCS8 private key, transparently decrypting
// password-encrypted PKCS8 first. RSA is tried before DSA, matching the
// key types the downstream signer understands.
func ParsePrivateKey(der []byte, password string) (crypto.PrivateKey, error) {
	plain, encrypted, err := decryptPKCS8(der, password)
	if err != nil {
		return nil, err
	}
	key, err := parsePKCS8(plain)
	if err != nil && encrypted {
		// The payload decrypted without a padding error but still isn't a
		// key, which almost always means the password was wrong.
		return nil, &DecryptionError{Err: err}
	}
	return key, err
}

// LoadPrivateKeyFile reads a PKCS8 key file, PEM or DER.
func LoadPrivateKeyFile(path, password string) (crypto.PrivateKey, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(blob) > 0 && blob[0] != asn1Magic {
		for {
			var block *pem.Block
			block, blob = pem.Decode(blob)
			if block == nil {
				return nil, &FormatError{What: "private key", Err: errNoPemKey}
			}
			if block.Type == "PRIVATE KEY" || block.Type == "ENCRYPTED PRIVATE KEY" {
				return ParsePrivateKey(block.Bytes, password)
			}
		}
	}
	return ParsePrivateKey(blob, password)
}

// ParseCertificate decodes a X.509 certificate from PEM or DER. There is
// no decryption step for certificates.
func ParseCertificate(blob []byte) (*x509.Certificate, error) {
	if len(blob) > 0 && blob[0] != asn1Magic {
		for {
			var block *pem.Block
			block, blob = pem.Decode(blob)
			if block == nil {
				return nil, &FormatError{What: "certificate", Err: errNoPemCert}
			}
			if block.Type == "CERTIFICATE" {
				blob = block.Bytes
				break
			}
		}
	}
	cert, err := x509.ParseCertificate(blob)
	if err != nil {
		return nil, &FormatError{What: "certificate", Err: err}
	}
	return cert, nil
}

func LoadCertificateFile(path string) (*x509.Certificate, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCertificate(blob)
}

// Load assembles key material from individual files. templatePath is
// optional; the other two are required.
func Load(keyPath, certPath, templatePath, password string) (*KeyMaterial, error) {
	key, err := LoadPrivateKeyFile(keyPath, password)
	if err != nil {
		return nil, err
	}
	cert, err := LoadCertificateFile(certPath)
	if err != nil {
		return nil, err
	}
	km := &KeyMaterial{PrivateKey: key, Certificate: cert}
	if templatePath != "" {
		km.SignatureBlockTemplate, err = os.ReadFile(templatePath)
		if err != nil {
			return nil, err
		}
	}
	return km, nil
}

type errString string

func (e errString) Error() string { return string(e) }

const (
	errNoPemKey  = errString("no private key block found in PEM data")
	errNoPemCert = errString("no certificate block found in PEM data")
)

type privateKeyInfo struct {
	Version             int
	PrivateKeyAlgorithm pkix.AlgorithmIdentifier
	PrivateKey          []byte
}

type dsaParameters struct {
	P, Q, G *big.Int
}

// parsePKCS8 instantiates a key from plain PKCS8 bytes, trying RSA first
// and falling back to DSA. The standard library has no DSA PKCS8 support
// so that branch is decoded by hand.
func parsePKCS8(der []byte) (crypto.PrivateKey, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
		return nil, &FormatError{What: "private key", Err: errString("key is neither RSA nor DSA")}
	}
	if key, err := parseDSAPKCS8(der); err == nil {
		return key, nil
	}
	return nil, &FormatError{What: "private key", Err: errString("not a PKCS8 encoded key")}
}

func parseDSAPKCS8(der []byte) (*dsa.PrivateKey, error) {
	var info privateKeyInfo
	if rest, err := asn1.Unmarshal(der, &info); err != nil {
		return nil, err
	} else if len(rest) != 0 {
		return nil, errString("trailing data after PKCS8 structure")
	}
	if !info.PrivateKeyAlgorithm.Algorithm.Equal(x509tools.OidPublicKeyDSA) {
		return nil, errString("not a DSA key")
	}
	var params dsaParameters
	if _, err := asn1.Unmarshal(info.PrivateKeyAlgorithm.Parameters.FullBytes, &params); err != nil {
		return nil, err
	}
	var x *big.Int
	if rest, err := asn1.Unmarshal(info.PrivateKey, &x); err != nil {
		return nil, err
	} else if len(rest) != 0 {
		return nil, errString("trailing data after DSA key")
	}
	key := &dsa.PrivateKey{X: x}
	key.P, key.Q, key.G = params.P, params.Q, params.G
	key.Y = new(big.Int).Exp(params.G, x, params.P)
	return key, nil
}

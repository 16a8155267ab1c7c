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

// Package mincrypt produces the exact signature form accepted by the
// Android recovery verifier: PKCS#1 v1.5 padding over a SHA1 DigestInfo.
// A generic SHA1withRSA implementation would verify under jarsigner but
// the recovery image insists on this padding and mode.
package mincrypt

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // the verifier only understands SHA1
	"fmt"
	"hash"
)

// Signature mirrors the init/update/sign flow of the signing primitive the
// orchestrator drives. Instances are single-use per signing run.
type Signature struct {
	priv   *rsa.PrivateKey
	digest hash.Hash
}

func New() *Signature {
	return &Signature{}
}

// InitSign binds the private key. Only RSA keys can satisfy the recovery
// verifier; anything else is rejected up front.
func (s *Signature) InitSign(key crypto.PrivateKey) error {
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("mincrypt: unsupported key type %T, recovery verifier requires RSA", key)
	}
	s.priv = rsaKey
	s.digest = sha1.New()
	return nil
}

func (s *Signature) Update(data []byte) {
	s.digest.Write(data)
}

func (s *Signature) Sign() ([]byte, error) {
	if s.priv == nil {
		return nil, fmt.Errorf("mincrypt: InitSign was not called")
	}
	return rsa.SignPKCS1v15(nil, s.priv, crypto.SHA1, s.digest.Sum(nil))
}

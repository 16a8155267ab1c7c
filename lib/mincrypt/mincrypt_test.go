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

package mincrypt

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerifies(t *testing.T) {
	t.Parallel()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	sig := New()
	require.NoError(t, sig.InitSign(key))
	sig.Update([]byte("signature "))
	sig.Update([]byte("file bytes"))
	signature, err := sig.Sign()
	require.NoError(t, err)

	digest := sha1.Sum([]byte("signature file bytes"))
	require.NoError(t, rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA1, digest[:], signature))
}

func TestSignDeterministic(t *testing.T) {
	t.Parallel()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	var sigs [][]byte
	for i := 0; i < 2; i++ {
		s := New()
		require.NoError(t, s.InitSign(key))
		s.Update([]byte("same input"))
		signature, err := s.Sign()
		require.NoError(t, err)
		sigs = append(sigs, signature)
	}
	require.Equal(t, sigs[0], sigs[1])
}

func TestRejectsNonRSA(t *testing.T) {
	t.Parallel()
	s := New()
	err := s.InitSign("not a key")
	require.Error(t, err)
	require.Contains(t, err.Error(), "RSA")
}

func TestSignWithoutInit(t *testing.T) {
	t.Parallel()
	s := New()
	_, err := s.Sign()
	require.Error(t, err)
}

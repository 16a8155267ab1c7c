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

package keymaterial

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des" //nolint:gosec // PBES1 keys in the wild use DES
	"crypto/hmac"
	"crypto/md5"  //nolint:gosec // PBKDF1 as specified by PKCS#5
	"crypto/sha1" //nolint:gosec // PBKDF1/PBKDF2 as specified by PKCS#5
	"crypto/sha256"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"hash"

	"golang.org/x/crypto/pbkdf2"
)

// PKCS#5 and related object identifiers.
var (
	oidPBEWithMD5AndDES  = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 5, 3}
	oidPBEWithSHA1AndDES = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 5, 10}
	oidPBES2             = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 5, 13}
	oidPBKDF2            = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 5, 12}

	oidHMACWithSHA1   = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 7}
	oidHMACWithSHA256 = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 9}

	oidDESCBC     = asn1.ObjectIdentifier{1, 3, 14, 3, 2, 7}
	oidDESEDE3CBC = asn1.ObjectIdentifier{1, 2, 840, 113549, 3, 7}
	oidAES128CBC  = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 2}
	oidAES192CBC  = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 22}
	oidAES256CBC  = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 42}
)

type encryptedPrivateKeyInfo struct {
	Algorithm pkix.AlgorithmIdentifier
	Data      []byte
}

type pbeParameter struct {
	Salt       []byte
	Iterations int
}

type pbes2Params struct {
	KeyDerivationFunc pkix.AlgorithmIdentifier
	EncryptionScheme  pkix.AlgorithmIdentifier
}

type pbkdf2Params struct {
	Salt           []byte
	IterationCount int
	KeyLength      int                      `asn1:"optional"`
	PRF            pkix.AlgorithmIdentifier `asn1:"optional"`
}

// decryptPKCS8 peels the EncryptedPrivateKeyInfo wrapper off a key, if one
// is present. A structural parse failure means the bytes are (probably) a
// plain PKCS8 key and are returned untouched with encrypted=false.
func decryptPKCS8(der []byte, password string) (plain []byte, encrypted bool, err error) {
	var info encryptedPrivateKeyInfo
	if rest, err2 := asn1.Unmarshal(der, &info); err2 != nil || len(rest) != 0 {
		return der, false, nil
	}
	plain, err = decryptPBE(info, password)
	if err != nil {
		return nil, true, err
	}
	return plain, true, nil
}

func decryptPBE(info encryptedPrivateKeyInfo, password string) ([]byte, error) {
	algo := info.Algorithm.Algorithm
	switch {
	case algo.Equal(oidPBEWithMD5AndDES):
		return decryptPBES1(info, password, md5.New)
	case algo.Equal(oidPBEWithSHA1AndDES):
		return decryptPBES1(info, password, sha1.New)
	case algo.Equal(oidPBES2):
		return decryptPBES2(info, password)
	}
	return nil, fmt.Errorf("unsupported private key encryption algorithm %s", algo)
}

// decryptPBES1 implements PKCS#5 PBES1: PBKDF1 derives 8 key bytes and 8
// IV bytes for single DES in CBC mode.
func decryptPBES1(info encryptedPrivateKeyInfo, password string, newHash func() hash.Hash) ([]byte, error) {
	var params pbeParameter
	if _, err := asn1.Unmarshal(info.Algorithm.Parameters.FullBytes, &params); err != nil {
		return nil, &FormatError{What: "encrypted private key", Err: err}
	}
	derived := pbkdf1(newHash, []byte(password), params.Salt, params.Iterations, 16)
	block, err := des.NewCipher(derived[:8])
	if err != nil {
		return nil, err
	}
	return cbcDecrypt(block, derived[8:16], info.Data)
}

func decryptPBES2(info encryptedPrivateKeyInfo, password string) ([]byte, error) {
	var params pbes2Params
	if _, err := asn1.Unmarshal(info.Algorithm.Parameters.FullBytes, &params); err != nil {
		return nil, &FormatError{What: "encrypted private key", Err: err}
	}
	if !params.KeyDerivationFunc.Algorithm.Equal(oidPBKDF2) {
		return nil, fmt.Errorf("unsupported key derivation function %s", params.KeyDerivationFunc.Algorithm)
	}
	var kdf pbkdf2Params
	if _, err := asn1.Unmarshal(params.KeyDerivationFunc.Parameters.FullBytes, &kdf); err != nil {
		return nil, &FormatError{What: "encrypted private key", Err: err}
	}
	prf := sha1.New
	if len(kdf.PRF.Algorithm) != 0 {
		switch {
		case kdf.PRF.Algorithm.Equal(oidHMACWithSHA1):
		case kdf.PRF.Algorithm.Equal(oidHMACWithSHA256):
			prf = sha256.New
		default:
			return nil, fmt.Errorf("unsupported PBKDF2 PRF %s", kdf.PRF.Algorithm)
		}
	}

	scheme := params.EncryptionScheme
	var iv []byte
	if _, err := asn1.Unmarshal(scheme.Parameters.FullBytes, &iv); err != nil {
		return nil, &FormatError{What: "encrypted private key", Err: err}
	}
	var keyLen int
	var newCipher func(key []byte) (cipher.Block, error)
	switch {
	case scheme.Algorithm.Equal(oidAES128CBC):
		keyLen, newCipher = 16, aes.NewCipher
	case scheme.Algorithm.Equal(oidAES192CBC):
		keyLen, newCipher = 24, aes.NewCipher
	case scheme.Algorithm.Equal(oidAES256CBC):
		keyLen, newCipher = 32, aes.NewCipher
	case scheme.Algorithm.Equal(oidDESEDE3CBC):
		keyLen, newCipher = 24, des.NewTripleDESCipher
	case scheme.Algorithm.Equal(oidDESCBC):
		keyLen, newCipher = 8, des.NewCipher
	default:
		return nil, fmt.Errorf("unsupported encryption scheme %s", scheme.Algorithm)
	}
	if kdf.KeyLength != 0 {
		keyLen = kdf.KeyLength
	}
	key := pbkdf2.Key([]byte(password), kdf.Salt, kdf.IterationCount, keyLen, prf)
	block, err := newCipher(key)
	if err != nil {
		return nil, err
	}
	return cbcDecrypt(block, iv, info.Data)
}

// pbkdf1 per PKCS#5: iterate hash over password||salt, concatenating
// digests until length bytes are available.
func pbkdf1(newHash func() hash.Hash, password, salt []byte, iterations, length int) []byte {
	var derived []byte
	d := append(append([]byte{}, password...), salt...)
	for len(derived) < length {
		for i := 0; i < iterations; i++ {
			h := newHash()
			h.Write(d)
			d = h.Sum(nil)
		}
		derived = append(derived, d...)
	}
	return derived[:length]
}

func cbcDecrypt(block cipher.Block, iv, data []byte) ([]byte, error) {
	if len(iv) != block.BlockSize() {
		return nil, &DecryptionError{Err: errString("bad IV length")}
	}
	if len(data) == 0 || len(data)%block.BlockSize() != 0 {
		return nil, &DecryptionError{Err: errString("ciphertext is not block aligned")}
	}
	plain := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, data)
	return stripPadding(plain, block.BlockSize())
}

func stripPadding(plain []byte, blockSize int) ([]byte, error) {
	n := int(plain[len(plain)-1])
	if n == 0 || n > blockSize || n > len(plain) {
		return nil, &DecryptionError{Err: errString("bad padding")}
	}
	pad := plain[len(plain)-n:]
	var bad byte
	for _, b := range pad {
		bad |= b ^ byte(n)
	}
	if !hmac.Equal([]byte{bad}, []byte{0}) {
		return nil, &DecryptionError{Err: errString("bad padding")}
	}
	return plain[:len(plain)-n], nil
}

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
	"crypto/x509"
	"fmt"
	"os"
	"strings"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
)

// LoadKeystore pulls a certificate and private key pair out of a Java
// keystore, as an alternative key material source. Only the JKS store type
// is supported.
func LoadKeystore(path, storeType, storePassword, alias, keyPassword string) (*KeyMaterial, error) {
	if storeType != "" && !strings.EqualFold(storeType, "jks") {
		return nil, fmt.Errorf("unsupported keystore type %q", storeType)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ks := keystore.New()
	if err := ks.Load(f, []byte(storePassword)); err != nil {
		return nil, fmt.Errorf("reading keystore %s: %w", path, err)
	}
	entry, err := ks.GetPrivateKeyEntry(alias, []byte(keyPassword))
	if err != nil {
		return nil, fmt.Errorf("keystore alias %q: %w", alias, err)
	}
	if len(entry.CertificateChain) == 0 {
		return nil, fmt.Errorf("keystore alias %q has no certificate chain", alias)
	}
	cert, err := x509.ParseCertificate(entry.CertificateChain[0].Content)
	if err != nil {
		return nil, &FormatError{What: "keystore certificate", Err: err}
	}
	// The keystore layer already decrypted the entry, leaving plain PKCS8.
	key, err := ParsePrivateKey(entry.PrivateKey, "")
	if err != nil {
		return nil, err
	}
	return &KeyMaterial{PrivateKey: key, Certificate: cert}, nil
}

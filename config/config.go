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

// Package config holds version info and the optional YAML profile file
// that bundles key material paths under a name.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

var (
	Version   = "unknown" // set this via go build ldflags
	UserAgent = "zip-signer/" + Version
)

// Profile names a set of key material sources so a signing invocation
// doesn't need four file paths.
type Profile struct {
	Key          string `yaml:"key"`           // PKCS8 private key file
	Certificate  string `yaml:"certificate"`   // X.509 certificate file
	Template     string `yaml:"template"`      // optional signature block template
	Keystore     string `yaml:"keystore"`      // alternative: Java keystore
	KeystoreType string `yaml:"keystore_type"` // keystore type, default jks
	Alias        string `yaml:"alias"`         // keystore entry alias
}

type Config struct {
	Profiles map[string]*Profile `yaml:"profiles"`

	path string
}

func ReadFile(path string) (*Config, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := new(Config)
	if err := yaml.UnmarshalStrict(blob, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.path = path
	return cfg, nil
}

func (c *Config) GetProfile(name string) (*Profile, error) {
	if p := c.Profiles[name]; p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("profile %q is not defined in %s", name, c.path)
}

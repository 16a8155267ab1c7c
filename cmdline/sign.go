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

package cmdline

import (
	"errors"
	"fmt"
	"os"

	"github.com/howeyc/gopass"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Breaktrapper/zip-signer/config"
	"github.com/Breaktrapper/zip-signer/lib/keymaterial"
	"github.com/Breaktrapper/zip-signer/lib/signzip"
)

var (
	argKey          string
	argCert         string
	argTemplate     string
	argKeystore     string
	argKeystoreType string
	argStorePass    string
	argAlias        string
	argKeyPass      string
	argPromptPass   bool
	argProfile      string
)

var signCmd = &cobra.Command{
	Use:   "sign [flags] INPUT-ZIP OUTPUT-ZIP",
	Short: "Re-sign a zip/JAR/APK so the recovery verifier accepts it",
	Args:  cobra.ExactArgs(2),
	RunE:  runSign,
}

func init() {
	signCmd.Flags().StringVarP(&argKey, "key", "k", "", "PKCS8 private key file")
	signCmd.Flags().StringVar(&argCert, "cert", "", "X.509 certificate file")
	signCmd.Flags().StringVar(&argTemplate, "template", "", "Signature block template file")
	signCmd.Flags().StringVar(&argKeystore, "keystore", "", "Java keystore file (alternative to --key/--cert)")
	signCmd.Flags().StringVar(&argKeystoreType, "keystore-type", "", "Keystore type (default jks)")
	signCmd.Flags().StringVar(&argStorePass, "storepass", "", "Keystore password")
	signCmd.Flags().StringVar(&argAlias, "alias", "", "Keystore entry alias")
	signCmd.Flags().StringVar(&argKeyPass, "keypass", "", "Private key password")
	signCmd.Flags().BoolVar(&argPromptPass, "prompt", false, "Prompt for the key password")
	signCmd.Flags().StringVarP(&argProfile, "profile", "p", "", "Named profile from the config file")
	signCmd.Flags().SetNormalizeFunc(normalizeSignFlags)
	RootCmd.AddCommand(signCmd)

	signzip.RegisterBlockEncoder(signzip.DefaultBlockEncoderName, signzip.PKCS7Encoder{})
}

// accept the hyphenated spellings jarsigner users expect
func normalizeSignFlags(f *pflag.FlagSet, name string) pflag.NormalizedName {
	switch name {
	case "store-pass":
		name = "storepass"
	case "key-pass":
		name = "keypass"
	}
	return pflag.NormalizedName(name)
}

// consoleListener prints milestone messages and coarse percentage steps.
type consoleListener struct {
	lastPercent int
}

func (l *consoleListener) OnProgress(ev signzip.ProgressEvent) {
	if ev.Priority != signzip.PriorityImportant && ev.Percent/10 == l.lastPercent/10 {
		return
	}
	l.lastPercent = ev.Percent
	fmt.Fprintf(os.Stderr, "%3d%% %s\n", ev.Percent, ev.Message)
}

func runSign(cmd *cobra.Command, args []string) error {
	inputPath, outputPath := args[0], args[1]
	if argProfile != "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		profile, err := cfg.GetProfile(argProfile)
		if err != nil {
			return err
		}
		applyProfile(profile)
	}
	if argPromptPass {
		fmt.Fprint(os.Stderr, "Key password: ")
		pass, err := gopass.GetPasswd()
		if err != nil {
			return err
		}
		argKeyPass = string(pass)
	}

	signer := signzip.New(signzip.WithLogger(logger))
	signer.AddProgressListener(&consoleListener{lastPercent: -10})

	if argKeystore != "" {
		if argAlias == "" {
			return errors.New("--alias is required with --keystore")
		}
		return signer.SignZipWithKeystore(argKeystore, argKeystoreType, argStorePass, argAlias, argKeyPass, inputPath, outputPath)
	}
	if argKey == "" || argCert == "" {
		return errors.New("either --keystore or both --key and --cert are required")
	}
	km, err := keymaterial.Load(argKey, argCert, argTemplate, argKeyPass)
	if err != nil {
		return err
	}
	return signer.SignZipWithKeyMaterial(km, inputPath, outputPath)
}

func applyProfile(profile *config.Profile) {
	if argKey == "" {
		argKey = profile.Key
	}
	if argCert == "" {
		argCert = profile.Certificate
	}
	if argTemplate == "" {
		argTemplate = profile.Template
	}
	if argKeystore == "" {
		argKeystore = profile.Keystore
	}
	if argKeystoreType == "" {
		argKeystoreType = profile.KeystoreType
	}
	if argAlias == "" {
		argAlias = profile.Alias
	}
}

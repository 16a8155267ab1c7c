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

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Breaktrapper/zip-signer/config"
)

var (
	argConfig  string
	argDebug   bool
	argVersion bool
)

var RootCmd = &cobra.Command{
	Use:              "zipsigner",
	PersistentPreRun: setup,
	RunE:             bailUnlessVersion,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&argConfig, "config", "c", "", "Profile configuration file")
	RootCmd.PersistentFlags().BoolVar(&argDebug, "debug", false, "Enable debug logging")
	RootCmd.PersistentFlags().BoolVar(&argVersion, "version", false, "Show version and exit")
}

func setup(cmd *cobra.Command, args []string) {
	if argVersion {
		fmt.Printf("zipsigner version %s\n", config.Version)
		os.Exit(0)
	}
	level := zerolog.InfoLevel
	if argDebug {
		level = zerolog.DebugLevel
	}
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

var logger zerolog.Logger

func bailUnlessVersion(cmd *cobra.Command, args []string) error {
	if !argVersion {
		return errors.New("expected a command")
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	if argConfig == "" {
		return nil, errors.New("--config is required when --profile is used")
	}
	return config.ReadFile(argConfig)
}

func Main() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

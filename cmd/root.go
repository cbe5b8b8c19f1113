// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cmd implements the appendfs command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/appendfs/appendfs/cfg"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const version = "0.3.0"

var (
	cfgFile     string
	mountConfig cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "appendfs [flags] fs_name mount_point",
	Short: "Mount a filesystem stored in an append-only object store",
	Long: `appendfs mounts a POSIX filesystem whose entire durable state lives
in a content-addressed, append-only object store. The filesystem is named
by fs_name; mounting the same name against the same store re-mounts the
same filesystem.`,
	Version:       version,
	Args:          cobra.ExactArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMount(args[0], args[1], &mountConfig)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&cfgFile, "config-file", "", "Path of a YAML config file.")
	flags.String("store", "", "Path of the local object-store database.")
	flags.Bool("store-in-memory", false, "Use a throwaway in-memory store.")
	flags.String("store-file-mode", "600", "Permissions of the store database file, in octal.")
	flags.String("log-file", "", "Log to this file instead of stderr.")
	flags.String("log-format", "text", "Log format: text or json.")
	flags.String("log-severity", "info", "Minimum log severity: trace, debug, info, warning, error, off.")
	flags.Int("metrics-port", 0, "Serve prometheus metrics on this localhost port. Zero disables.")
	flags.Bool("debug-fuse", false, "Log every FUSE request and response.")

	bind := map[string]string{
		"store.path":           "store",
		"store.in-memory":      "store-in-memory",
		"store.file-mode":      "store-file-mode",
		"logging.file-path":    "log-file",
		"logging.format":       "log-format",
		"logging.severity":     "log-severity",
		"metrics.port":         "metrics-port",
		"debug-fuse":           "debug-fuse",
	}

	for key, flag := range bind {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", flag, err))
		}
	}

	rootCmd.AddCommand(inspectCmd)
}

// loadConfig merges defaults, the optional config file and flags into
// mountConfig.
func loadConfig() error {
	mountConfig = cfg.Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
	}

	err := viper.Unmarshal(&mountConfig, viper.DecodeHook(cfg.DecodeHook()))
	if err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}

	return mountConfig.Validate()
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	return 0
}

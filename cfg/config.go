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

// Package cfg holds the mount configuration, populated from flags and an
// optional YAML config file.
package cfg

import (
	"fmt"

	"github.com/appendfs/appendfs/internal/logger"
	"github.com/mitchellh/mapstructure"
)

// StoreConfig selects and tunes the object-store backend.
type StoreConfig struct {
	// Path of the local store database. Mutually exclusive with InMemory.
	Path string `mapstructure:"path"`

	// InMemory mounts against a throwaway in-memory store. Nothing
	// survives the process; useful for experiments and tests.
	InMemory bool `mapstructure:"in-memory"`

	// FileMode of the store database file.
	FileMode Octal `mapstructure:"file-mode"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	// Port to serve /metrics on, on localhost. Zero disables metrics.
	Port int `mapstructure:"port"`
}

// Config is everything the process needs to mount a filesystem.
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Logging logger.Config `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`

	// DebugFuse turns on go-fuse's request/response logging.
	DebugFuse bool `mapstructure:"debug-fuse"`
}

// Default returns the configuration used when no flag or file overrides a
// value.
func Default() Config {
	return Config{
		Store: StoreConfig{
			FileMode: 0600,
		},
		Logging: logger.Config{
			Format:        "text",
			Severity:      "info",
			MaxFileSizeMB: 100,
			MaxBackups:    5,
		},
	}
}

// Validate rejects configurations the process cannot honor.
func (c *Config) Validate() error {
	if c.Store.Path == "" && !c.Store.InMemory {
		return fmt.Errorf("either store.path or store.in-memory is required")
	}

	if c.Store.Path != "" && c.Store.InMemory {
		return fmt.Errorf("store.path and store.in-memory are mutually exclusive")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown logging format %q", c.Logging.Format)
	}

	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics port %d out of range", c.Metrics.Port)
	}

	return nil
}

// DecodeHook converts the string forms that flags and YAML deliver into
// the typed fields above, e.g. "600" into an Octal.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	)
}

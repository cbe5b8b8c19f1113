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

// Package logger provides the process-wide structured logger. Call Init
// once at startup; the package-level helpers are safe to use from any
// goroutine before and after.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelTrace sits below slog's own levels; per-operation logging uses it
// so it can be switched off wholesale in production mounts.
const LevelTrace = slog.Level(-8)

var levelNames = map[slog.Level]string{
	LevelTrace:      "TRACE",
	slog.LevelDebug: "DEBUG",
	slog.LevelInfo:  "INFO",
	slog.LevelWarn:  "WARNING",
	slog.LevelError: "ERROR",
}

var (
	defaultLogger = slog.New(newHandler(os.Stderr, "text", new(slog.LevelVar)))
	programLevel  = new(slog.LevelVar)
)

// Config controls where and how the process logs.
type Config struct {
	// Path of the log file. Empty means stderr.
	FilePath string `mapstructure:"file-path"`

	// "text" or "json".
	Format string `mapstructure:"format"`

	// One of "trace", "debug", "info", "warning", "error", "off".
	Severity string `mapstructure:"severity"`

	// Rotation limits, only meaningful with a log file.
	MaxFileSizeMB int `mapstructure:"max-file-size-mb"`
	MaxBackups    int `mapstructure:"max-backups"`
}

// Init installs the process logger described by cfg.
func Init(cfg Config) error {
	var w io.Writer = os.Stderr
	if cfg.FilePath != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxFileSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
	}

	if err := setLevel(cfg.Severity); err != nil {
		return err
	}

	defaultLogger = slog.New(newHandler(w, cfg.Format, programLevel))
	return nil
}

func setLevel(severity string) error {
	switch severity {
	case "trace":
		programLevel.Set(LevelTrace)
	case "debug":
		programLevel.Set(slog.LevelDebug)
	case "", "info":
		programLevel.Set(slog.LevelInfo)
	case "warning":
		programLevel.Set(slog.LevelWarn)
	case "error":
		programLevel.Set(slog.LevelError)
	case "off":
		programLevel.Set(slog.Level(100))
	default:
		return fmt.Errorf("unknown log severity %q", severity)
	}

	return nil
}

func newHandler(w io.Writer, format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,

		// Rename the custom trace level, which slog would otherwise print
		// as "DEBUG-4".
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if name, ok := levelNames[a.Value.Any().(slog.Level)]; ok {
					a.Value = slog.StringValue(name)
				}
			}

			return a
		},
	}

	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}

	return slog.NewTextHandler(w, opts)
}

// Tracef logs one entry per filesystem operation and similar hot-path
// events.
func Tracef(format string, v ...interface{}) {
	defaultLogger.Log(context.Background(), LevelTrace, fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...interface{}) {
	defaultLogger.Debug(fmt.Sprintf(format, v...))
}

func Infof(format string, v ...interface{}) {
	defaultLogger.Info(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...interface{}) {
	defaultLogger.Warn(fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...interface{}) {
	defaultLogger.Error(fmt.Sprintf(format, v...))
}

// Fatal logs and exits.
func Fatal(format string, v ...interface{}) {
	defaultLogger.Error(fmt.Sprintf(format, v...))
	os.Exit(1)
}

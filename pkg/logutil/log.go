// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package logutil

import (
	"context"
	stdErrors "errors"
	"strings"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// DefaultLogLevel is the default log level
	DefaultLogLevel = "info"
	// DefaultLogFormat is the default log format
	DefaultLogFormat = "text"

	defaultLogMaxDays = 7
	defaultLogMaxSize = 300 // MB
)

// Config serializes log related config in toml/json.
type Config struct {
	// Log level.
	Level string `toml:"level" json:"level"`
	// Log format, one of json or text.
	Format string `toml:"format" json:"format"`
	// File log config. An empty file logs to stderr.
	File string `toml:"file" json:"file"`
	// Max size for a single file, in MB.
	FileMaxSize int `toml:"max-size" json:"max-size"`
	// Max log keep days, default is never deleting.
	FileMaxDays int `toml:"max-days" json:"max-days"`
	// Maximum number of old log files to retain.
	FileMaxBackups int `toml:"max-backups" json:"max-backups"`
}

// Adjust adjusts config
func (cfg *Config) Adjust() {
	if len(cfg.Level) == 0 {
		cfg.Level = DefaultLogLevel
	}
	if cfg.Level == "warning" {
		cfg.Level = "warn"
	}
	if len(cfg.Format) == 0 {
		cfg.Format = DefaultLogFormat
	}
	if cfg.FileMaxSize == 0 {
		cfg.FileMaxSize = defaultLogMaxSize
	}
	if cfg.FileMaxDays == 0 {
		cfg.FileMaxDays = defaultLogMaxDays
	}
}

// InitLogger initializes the global pingcap logger.
func InitLogger(cfg *Config) error {
	cfg.Adjust()
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return errors.Trace(err)
	}

	logger, props, err := log.InitLogger(&log.Config{
		Level:  strings.ToLower(cfg.Level),
		Format: cfg.Format,
		File: log.FileLogConfig{
			Filename:   cfg.File,
			MaxSize:    cfg.FileMaxSize,
			MaxDays:    cfg.FileMaxDays,
			MaxBackups: cfg.FileMaxBackups,
		},
	})
	if err != nil {
		return errors.Trace(err)
	}
	log.ReplaceGlobals(logger, props)
	return nil
}

// ShortError contructs a field which only records the error message without the
// verbose text (i.e. excludes the stack trace).
func ShortError(err error) zap.Field {
	if err == nil {
		return zap.Skip()
	}
	return zap.String("error", err.Error())
}

// ZapErrorFilter wraps zap.Error, if err is in given filters, it returns zap.Error(nil)
func ZapErrorFilter(err error, filters ...error) zap.Field {
	cause := errors.Cause(err)
	for _, ferr := range filters {
		if cause == ferr || stdErrors.Is(err, ferr) {
			return zap.Error(nil)
		}
	}
	return zap.Error(err)
}

// IsCanceled reports whether err came from a canceled context.
func IsCanceled(err error) bool {
	return stdErrors.Is(errors.Cause(err), context.Canceled) || stdErrors.Is(err, context.Canceled)
}

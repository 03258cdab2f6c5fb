// Copyright 2024-2026 The proxybridge Authors, all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package log

import (
	"os"
)

// Logger is the logger used by the proxybridge package.
type Logger interface {
	Errorf(format string, args ...any)
	Infof(format string, args ...any)
	Debugf(format string, args ...any)
}

// NopLogger is a logger that does nothing.
var NopLogger = nopLogger{} //nolint:gochecknoglobals // nop implementation

type nopLogger struct{}

func (l nopLogger) Errorf(_ string, _ ...any) {}

func (l nopLogger) Infof(_ string, _ ...any) {}

func (l nopLogger) Debugf(_ string, _ ...any) {}

// Config is a configuration for the loggers.
type Config struct {
	File  *os.File
	Level Level
}

func DefaultConfig() *Config {
	return &Config{
		File:  nil,
		Level: InfoLevel,
	}
}

type Level int

// Levels start from 1 to avoid zero value in help printer.
const (
	ErrorLevel Level = 1 + iota
	InfoLevel
	DebugLevel
)

func (l Level) String() string {
	return [3]string{"error", "info", "debug"}[l-1]
}

// Copyright 2024-2026 The proxybridge Authors, all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package stdlog implements the proxybridge logging interfaces using the
// standard log package.
package stdlog

import (
	"io"
	"log"
	"os"

	blog "github.com/sessionlabs/proxybridge/log"
)

func Default() *Logger {
	return &Logger{
		log:   log.Default(),
		level: blog.InfoLevel,
	}
}

func New(cfg *blog.Config) *Logger {
	var w io.Writer = os.Stdout
	if cfg.File != nil {
		w = cfg.File
	}

	return &Logger{
		log:   log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.LUTC),
		level: cfg.Level,
	}
}

// Logger implements the proxybridge.Logger interface using the standard log package.
type Logger struct {
	log   *log.Logger
	name  string
	level blog.Level

	errorPfx string
	infoPfx  string
	debugPfx string
}

func (sl Logger) Named(name string) *Logger { //nolint:gocritic // we pass by value to get a copy
	if sl.name != "" {
		name = sl.name + "." + name
	}
	sl.name = name

	if name != "" {
		name = "[" + name + "] "
	}

	sl.errorPfx = name + "[ERROR] "
	sl.infoPfx = name + "[INFO] "
	sl.debugPfx = name + "[DEBUG] "

	return &sl
}

func (sl *Logger) Errorf(format string, args ...any) {
	if sl.level < blog.ErrorLevel {
		return
	}
	sl.log.Printf(sl.errorPfx+format, args...)
}

func (sl *Logger) Infof(format string, args ...any) {
	if sl.level < blog.InfoLevel {
		return
	}
	sl.log.Printf(sl.infoPfx+format, args...)
}

func (sl *Logger) Debugf(format string, args ...any) {
	if sl.level < blog.DebugLevel {
		return
	}
	sl.log.Printf(sl.debugPfx+format, args...)
}

// Unwrap returns the underlying log.Logger pointer.
func (sl *Logger) Unwrap() *log.Logger {
	return sl.log
}

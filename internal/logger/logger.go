// Copyright 2026 The idevicererestore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package logger provides a small leveled logger that may be carried
// through a context.Context, in the style of the teacher's tools/logger
// package.
package logger

import (
	"context"
	"fmt"
	"io"
	stdlog "log"

	"github.com/Trsvsr/idevicererestore/internal/color"
)

// Level controls which messages a Logger emits.
type Level int

const (
	// DebugLevel emits debug, info, and error messages.
	DebugLevel Level = iota
	// InfoLevel emits info and error messages.
	InfoLevel
	// ErrorLevel emits only error messages.
	ErrorLevel
)

// String implements flag.Value.
func (l *Level) String() string {
	switch *l {
	case DebugLevel:
		return "debug"
	case ErrorLevel:
		return "error"
	default:
		return "info"
	}
}

// Set implements flag.Value.
func (l *Level) Set(s string) error {
	switch s {
	case "debug":
		*l = DebugLevel
	case "info":
		*l = InfoLevel
	case "error":
		*l = ErrorLevel
	default:
		return fmt.Errorf("%q is not a valid log level", s)
	}
	return nil
}

// Logger writes leveled, optionally colorized log lines to two streams: one
// for normal output, one for errors.
type Logger struct {
	level         Level
	color         color.Color
	goLogger      *stdlog.Logger
	goErrorLogger *stdlog.Logger
}

// NewLogger constructs a Logger at the given level, writing to out and err.
// Either stream may be nil, in which case that level of message is dropped.
func NewLogger(level Level, c color.Color, out, errOut io.Writer) *Logger {
	l := &Logger{level: level, color: c}
	if out != nil {
		l.goLogger = stdlog.New(out, "", stdlog.LstdFlags)
	} else {
		l.goLogger = stdlog.New(io.Discard, "", stdlog.LstdFlags)
	}
	if errOut != nil {
		l.goErrorLogger = stdlog.New(errOut, "", stdlog.LstdFlags)
	} else {
		l.goErrorLogger = stdlog.New(io.Discard, "", stdlog.LstdFlags)
	}
	return l
}

// Debugf logs a debug-level message.
func (l *Logger) Debugf(format string, a ...interface{}) {
	if l.level > DebugLevel {
		return
	}
	l.goLogger.Print(l.color.Cyan(format, a...))
}

// Infof logs an info-level message.
func (l *Logger) Infof(format string, a ...interface{}) {
	if l.level > InfoLevel {
		return
	}
	l.goLogger.Print(l.color.Green(format, a...))
}

// Errorf logs an error-level message.
func (l *Logger) Errorf(format string, a ...interface{}) {
	l.goErrorLogger.Print(l.color.Red(format, a...))
}

type globalLoggerKeyType struct{}

// WithLogger returns a new context carrying logger, retrievable via
// FromContext.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, globalLoggerKeyType{}, logger)
}

// FromContext returns the Logger previously attached with WithLogger, or a
// discarding default Logger if none was attached.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(globalLoggerKeyType{}).(*Logger); ok && l != nil {
		return l
	}
	return NewLogger(InfoLevel, color.NewColor(color.ColorNever), nil, nil)
}

// Debugf logs a debug-level message using the Logger in ctx.
func Debugf(ctx context.Context, format string, a ...interface{}) {
	FromContext(ctx).Debugf(format, a...)
}

// Infof logs an info-level message using the Logger in ctx.
func Infof(ctx context.Context, format string, a ...interface{}) {
	FromContext(ctx).Infof(format, a...)
}

// Errorf logs an error-level message using the Logger in ctx.
func Errorf(ctx context.Context, format string, a ...interface{}) {
	FromContext(ctx).Errorf(format, a...)
}

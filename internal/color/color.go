// Copyright 2026 The idevicererestore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package color provides optionally-disabled ANSI color formatting for CLI
// output, in the style of the teacher's tools/color package.
package color

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

type colorCode int

// Foreground text colors.
const (
	blackFg colorCode = iota + 30
	redFg
	greenFg
	yellowFg
	blueFg
	magentaFg
	cyanFg
	whiteFg
	defaultFg
)

const (
	escape = "\033["
	clear  = escape + "0m"
)

// Color formats strings, optionally wrapping them in ANSI color codes.
type Color interface {
	Red(format string, a ...interface{}) string
	Green(format string, a ...interface{}) string
	Yellow(format string, a ...interface{}) string
	Cyan(format string, a ...interface{}) string
	Enabled() bool
}

type ansiColor struct{}

func (ansiColor) Red(format string, a ...interface{}) string    { return colorString(redFg, format, a...) }
func (ansiColor) Green(format string, a ...interface{}) string  { return colorString(greenFg, format, a...) }
func (ansiColor) Yellow(format string, a ...interface{}) string { return colorString(yellowFg, format, a...) }
func (ansiColor) Cyan(format string, a ...interface{}) string   { return colorString(cyanFg, format, a...) }
func (ansiColor) Enabled() bool                                 { return true }

func colorString(c colorCode, format string, a ...interface{}) string {
	return fmt.Sprintf("%s%dm%s%s", escape, c, fmt.Sprintf(format, a...), clear)
}

type monochrome struct{}

func (monochrome) Red(format string, a ...interface{}) string    { return fmt.Sprintf(format, a...) }
func (monochrome) Green(format string, a ...interface{}) string  { return fmt.Sprintf(format, a...) }
func (monochrome) Yellow(format string, a ...interface{}) string { return fmt.Sprintf(format, a...) }
func (monochrome) Cyan(format string, a ...interface{}) string   { return fmt.Sprintf(format, a...) }
func (monochrome) Enabled() bool                                 { return false }

// EnableColor is a flag.Value controlling when color is used.
type EnableColor int

const (
	// ColorNever disables color unconditionally.
	ColorNever EnableColor = iota
	// ColorAuto enables color only when stdout is a terminal.
	ColorAuto
	// ColorAlways enables color unconditionally.
	ColorAlways
)

func isColorAvailable() bool {
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// NewColor returns the Color implementation selected by enableColor.
func NewColor(enableColor EnableColor) Color {
	enabled := enableColor == ColorAlways || (enableColor == ColorAuto && isColorAvailable())
	if enabled {
		return ansiColor{}
	}
	return monochrome{}
}

// String implements flag.Value.
func (ec *EnableColor) String() string {
	switch *ec {
	case ColorNever:
		return "never"
	case ColorAlways:
		return "always"
	default:
		return "auto"
	}
}

// Set implements flag.Value.
func (ec *EnableColor) Set(s string) error {
	switch s {
	case "never":
		*ec = ColorNever
	case "auto":
		*ec = ColorAuto
	case "always":
		*ec = ColorAlways
	default:
		return fmt.Errorf("%q is not a valid color value", s)
	}
	return nil
}

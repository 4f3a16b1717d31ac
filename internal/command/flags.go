// Copyright 2026 The idevicererestore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package command provides small flag.Value implementations and a
// cancelable-context helper shared by the CLI, ported from the teacher's
// command package.
package command

import "strings"

// StringsFlag implements flag.Value so a flag may be repeated to build up a
// list, e.g. repeated --component entries.
type StringsFlag []string

// Set implements flag.Value.Set.
func (s *StringsFlag) Set(val string) error {
	*s = append(*s, val)
	return nil
}

// String implements flag.Value.String.
func (s *StringsFlag) String() string {
	if s == nil {
		return ""
	}
	return strings.Join([]string(*s), ", ")
}

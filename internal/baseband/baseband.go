// Copyright 2026 The idevicererestore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package baseband decides whether the user's archive baseband firmware is
// reusable against a freshly downloaded reference manifest, or must be
// fetched fresh. Grounded on idevicerestore.c's get_bbfw_fail_reasons /
// build_identity comparison block that walks a device's BasebandFirmware
// dictionary against the latest public manifest.
package baseband

import (
	"fmt"

	"github.com/Trsvsr/idevicererestore/internal/manifest"
	"github.com/Trsvsr/idevicererestore/internal/plist"
)

// IdentityIndex maps product type to the (base index, +1-if-Update) pair
// used to select the reference Build Identity, per spec.md §4.7. Exposed
// as a variable so tests (and, in principle, an operator) may override it.
var IdentityIndex = map[string]struct {
	Base            int
	PlusOneIfUpdate bool
}{
	"iPhone5,2": {Base: 0, PlusOneIfUpdate: true},
	"iPad3,5":   {Base: 0, PlusOneIfUpdate: true},
	"iPhone5,4": {Base: 2, PlusOneIfUpdate: true},
	"iPad3,6":   {Base: 2, PlusOneIfUpdate: true},
	"iPhone5,1": {Base: 4, PlusOneIfUpdate: true},
	"iPad3,4":   {Base: 4, PlusOneIfUpdate: true},
	"iPhone5,3": {Base: 6, PlusOneIfUpdate: true},
}

// ReferenceIndex resolves the reference Build Identity index for
// productType/behavior, per the table in spec.md §4.7. Unlisted product
// types default to index 0 regardless of behavior.
func ReferenceIndex(productType, behavior string) int {
	entry, ok := IdentityIndex[productType]
	if !ok {
		return 0
	}
	idx := entry.Base
	if entry.PlusOneIfUpdate && behavior == "Update" {
		idx++
	}
	return idx
}

// ResolveReferenceIdentity looks up the reference Build Identity inside a
// freshly parsed reference manifest, failing if build_major >= 14 and
// productType has no table entry (the table is required at that point).
func ResolveReferenceIdentity(referenceManifest *manifest.Manifest, productType, behavior string) (*manifest.Identity, error) {
	vi, err := referenceManifest.GetVersionInfo()
	if err != nil {
		return nil, fmt.Errorf("baseband: reference manifest version info: %w", err)
	}
	_, hasEntry := IdentityIndex[productType]
	if vi.BuildMajor >= 14 && !hasEntry {
		return nil, fmt.Errorf("baseband: build_major %d requires a baseband index table entry for %q", vi.BuildMajor, productType)
	}

	idx := ReferenceIndex(productType, behavior)
	return referenceManifest.GetIdentityByIndex(idx)
}

// Match reports the outcome of comparing the archive's baseband firmware
// dictionary against the reference.
type Match struct {
	// OK is true iff every key compared equal.
	OK bool
	// MismatchKey names the first key found to differ, if !OK.
	MismatchKey string
}

// Compare walks every key of local (the archive's BasebandFirmware dict)
// and compares it against the same key in reference, ignoring Dict values
// under key "Info". Types must match; Data values must be byte-equal;
// Integer values must be numerically equal. This is a pure function with
// no I/O.
func Compare(local, reference *plist.Value) (Match, error) {
	if local == nil || local.Kind() != plist.KindDict {
		return Match{}, fmt.Errorf("baseband: local BasebandFirmware is not a dictionary")
	}
	if reference == nil || reference.Kind() != plist.KindDict {
		return Match{}, fmt.Errorf("baseband: reference BasebandFirmware is not a dictionary")
	}

	for _, key := range local.Keys() {
		if key == "Info" && local.Get(key).Kind() == plist.KindDict {
			continue
		}
		lv := local.Get(key)
		rv := reference.Get(key)
		if rv == nil {
			return Match{OK: false, MismatchKey: key}, nil
		}
		if lv.Kind() != rv.Kind() {
			return Match{OK: false, MismatchKey: key}, nil
		}
		switch lv.Kind() {
		case plist.KindDict:
			if key == "Info" {
				continue
			}
			// Non-Info dict values are compared structurally by nested
			// Compare; absence of any mismatch among their children
			// counts as equal.
			sub, err := Compare(lv, rv)
			if err != nil {
				return Match{}, err
			}
			if !sub.OK {
				return Match{OK: false, MismatchKey: key + "." + sub.MismatchKey}, nil
			}
		case plist.KindData:
			if string(lv.Data()) != string(rv.Data()) {
				return Match{OK: false, MismatchKey: key}, nil
			}
		case plist.KindInteger:
			if lv.Integer() != rv.Integer() {
				return Match{OK: false, MismatchKey: key}, nil
			}
		case plist.KindString:
			if lv.String() != rv.String() {
				return Match{OK: false, MismatchKey: key}, nil
			}
		case plist.KindBool:
			if lv.Bool() != rv.Bool() {
				return Match{OK: false, MismatchKey: key}, nil
			}
		}
	}
	return Match{OK: true}, nil
}

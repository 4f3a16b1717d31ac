// Copyright 2026 The idevicererestore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package rerestore implements the re-restore identity classifier: given a
// cached ticket issued for an unknown ramdisk variant, discover whether it
// authorizes the Erase or Update identity without trusting the caller's
// flag. Grounded on idevicerestore.c's check_error_code/is_image4 control
// flow around get_signed_component and the ramdisk-hash comparison it
// performs before committing to a restore variant.
package rerestore

import (
	"crypto/sha1"
	"fmt"

	"github.com/Trsvsr/idevicererestore/internal/manifest"
)

// minImageLen is the shortest an Image3 payload can be and still carry a
// signed-region header (spec.md §4.5 step 3: 0x14 bytes).
const minImageLen = 0x14

// signedBodyOffset is the byte offset at which the Image3 hashed region
// begins.
const signedBodyOffset = 0x0C

// Result reports the outcome of classification.
type Result struct {
	// Identity is the Build Identity the session should proceed with.
	Identity *manifest.Identity
	// Custom reports whether the ramdisk was found to be a custom,
	// unsigned image (FLAG_CUSTOM).
	Custom bool
}

// ImageFetcher extracts the signed ramdisk image named by path from the
// user's archive. Implemented by the IPSW reader.
type ImageFetcher func(path string) ([]byte, error)

// Classify discovers which Build Identity the ticket's APTicket
// authorizes, starting from an initial identity defaulted to Erase, per
// spec.md §4.5.
//
// m is the manifest the initial identity was drawn from, used to resolve
// the identity's model for the Erase/Update swap. model is the device's
// DeviceClass.
func Classify(ticket []byte, m *manifest.Manifest, model string, initial *manifest.Identity, fetch ImageFetcher) (*Result, error) {
	identity := initial
	behavior := identity.RestoreBehavior()

	for attempt := 0; attempt < 2; attempt++ {
		path, err := manifest.GetComponentPath(identity, "RestoreRamDisk")
		if err != nil {
			return nil, fmt.Errorf("rerestore: resolve RestoreRamDisk path: %w", err)
		}
		image, err := fetch(path)
		if err != nil {
			return nil, fmt.Errorf("rerestore: extract %s: %w", path, err)
		}

		if len(image) < minImageLen || isUnsignedCustom(image) {
			return &Result{Identity: identity, Custom: true}, nil
		}

		h := sha1.Sum(image[signedBodyOffset:])
		if scanForDigest(ticket, h[:]) {
			return &Result{Identity: identity, Custom: false}, nil
		}

		// No match: swap Erase<->Update and try once more.
		swapBehavior := otherBehavior(behavior)
		swapped, err := m.GetIdentityByModelBehavior(model, swapBehavior)
		if err != nil {
			// Swap target absent: revert to Erase and stop.
			erased, eraseErr := m.GetIdentityByModelBehavior(model, "Erase")
			if eraseErr != nil {
				return nil, fmt.Errorf("rerestore: no Erase identity available: %w", eraseErr)
			}
			return &Result{Identity: erased, Custom: false}, nil
		}
		identity = swapped
		behavior = swapBehavior
	}

	// Second miss: declare custom, pin to Erase.
	erased, err := m.GetIdentityByModelBehavior(model, "Erase")
	if err != nil {
		return nil, fmt.Errorf("rerestore: no Erase identity available after second miss: %w", err)
	}
	return &Result{Identity: erased, Custom: true}, nil
}

// isUnsignedCustom reports whether the byte at signedBodyOffset is zero,
// indicating an unsigned custom image (spec.md §3, Signed Image).
func isUnsignedCustom(image []byte) bool {
	return image[signedBodyOffset] == 0
}

// scanForDigest linearly scans ticket for a window exactly equal to digest.
func scanForDigest(ticket, digest []byte) bool {
	n := len(digest)
	if len(ticket) < n {
		return false
	}
	for i := 0; i <= len(ticket)-n; i++ {
		if bytesEqual(ticket[i:i+n], digest) {
			return true
		}
	}
	return false
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func otherBehavior(behavior string) string {
	if behavior == "Update" {
		return "Erase"
	}
	return "Update"
}

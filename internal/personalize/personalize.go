// Copyright 2026 The idevicererestore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package personalize stitches ticket blobs into component payloads,
// grounded on idevicerestore.c's personalize_component()/img3_stitch()
// sequence.
package personalize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Trsvsr/idevicererestore/internal/logger"
	"github.com/Trsvsr/idevicererestore/internal/plist"
)

// Image3StitchPrefixSize is the size of the prefix of a ticket blob
// embedded into a component's Image3 signature region — a stable property
// of the Image3 format, not a tunable.
const Image3StitchPrefixSize = 64

// Stitch replaces the signature region of an Image3 payload with the first
// Image3StitchPrefixSize bytes of blob, returning the personalized bytes.
func Stitch(componentName string, payload, blob []byte) ([]byte, error) {
	if len(blob) < Image3StitchPrefixSize {
		return nil, fmt.Errorf("personalize: %s: blob shorter than stitch prefix (%d < %d)", componentName, len(blob), Image3StitchPrefixSize)
	}
	if len(payload) < 12 {
		return nil, fmt.Errorf("personalize: %s: payload shorter than Image3 header", componentName)
	}

	out := make([]byte, len(payload))
	copy(out, payload)
	copy(out[len(out)-Image3StitchPrefixSize:], blob[:Image3StitchPrefixSize])
	return out, nil
}

// Personalize looks up componentName's blob in ticket and stitches it into
// payload. If no blob is present, the unmodified payload is returned and a
// "not personalized" message is logged. When debugDir is non-empty, the
// resulting bytes are also written there for inspection.
func Personalize(ctx context.Context, ticket *plist.Value, componentName string, payload []byte, debugDir string) ([]byte, error) {
	log := logger.FromContext(ctx)

	blobNode := ticket.Get(componentName)
	var out []byte
	if blobNode == nil || blobNode.Kind() != plist.KindData || len(blobNode.Data()) == 0 {
		log.Infof("personalize: %s not personalized", componentName)
		out = payload
	} else {
		stitched, err := Stitch(componentName, payload, blobNode.Data())
		if err != nil {
			return nil, err
		}
		out = stitched
	}

	if debugDir != "" {
		path := filepath.Join(debugDir, componentName+".personalized")
		if err := os.WriteFile(path, out, 0644); err != nil {
			log.Errorf("personalize: failed to write debug output for %s: %v", componentName, err)
		}
	}

	return out, nil
}

// Copyright 2018 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// This file includes build-specific concepts.

package build

const (
	// TestSpecManifestName is the name of the manifest of test specs produced by the build.
	TestSpecManifestName = "tests.json"

	// PlatformManifestName is the name of the manifest of available test
	// platforms.
	PlatformManifestName = "platforms.json"
)

// Copyright 2026 The idevicererestore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package manifest resolves a Build Manifest into Build Identities and
// their component paths, mirroring idevicerestore.c's build_manifest_*
// and build_identity_* family in the shape of the teacher's plist-backed
// lookups.
package manifest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Trsvsr/idevicererestore/internal/cache"
	"github.com/Trsvsr/idevicererestore/internal/plist"
)

// ShapeError reports a required manifest or identity node that is missing
// or of the wrong kind.
type ShapeError struct {
	Node string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("manifest: malformed or missing node %q", e.Node)
}

// newShapeError builds a ManifestShape error for node.
func newShapeError(node string) error { return &ShapeError{Node: node} }

// Manifest wraps a decoded BuildManifest.plist tree.
type Manifest struct {
	root *plist.Value

	// identityCache memoizes GetIdentityByModelBehavior lookups, which a
	// session may repeat (once to resolve the identity to restore with,
	// again inside the re-restore classifier) against the same manifest.
	identityCache cache.LRUCache
}

// New wraps a decoded plist.Value as a Manifest. It performs no validation;
// callers that need the required top-level keys present should use Parse.
func New(root *plist.Value) *Manifest {
	return &Manifest{root: root}
}

// Parse decodes raw BuildManifest.plist bytes and validates the presence of
// the required top-level keys.
func Parse(raw []byte) (*Manifest, error) {
	root, err := plist.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("manifest: parse: %w", err)
	}
	m := &Manifest{root: root}
	if m.root.Get("ProductVersion") == nil {
		return nil, newShapeError("ProductVersion")
	}
	if m.root.Get("ProductBuildVersion") == nil {
		return nil, newShapeError("ProductBuildVersion")
	}
	if m.root.Get("SupportedProductTypes") == nil {
		return nil, newShapeError("SupportedProductTypes")
	}
	if m.root.Get("BuildIdentities") == nil {
		return nil, newShapeError("BuildIdentities")
	}
	return m, nil
}

// Identity wraps a single Build Identity dictionary.
type Identity struct {
	root *plist.Value
}

// Root returns the identity's underlying plist tree.
func (id *Identity) Root() *plist.Value { return id.root }

// CheckCompatibility succeeds iff productType appears in
// SupportedProductTypes. The key's absence is a shape error, never
// inferred.
func (m *Manifest) CheckCompatibility(productType string) error {
	list := m.root.Get("SupportedProductTypes")
	if list == nil || list.Kind() != plist.KindArray {
		return newShapeError("SupportedProductTypes")
	}
	for i := 0; i < list.Len(); i++ {
		if list.Index(i).String() == productType {
			return nil
		}
	}
	return fmt.Errorf("manifest: product type %q not supported", productType)
}

// GetIdentityByModelBehavior scans BuildIdentities for the first entry
// whose Info.DeviceClass case-insensitively equals model and, if behavior
// is non-empty, whose Info.RestoreBehavior case-insensitively equals
// behavior. The returned Identity is detached (copy-on-return).
func (m *Manifest) GetIdentityByModelBehavior(model, behavior string) (*Identity, error) {
	key := strings.ToLower(model) + "\x00" + strings.ToLower(behavior)
	if cached, ok := m.identityCache.Get(key); ok {
		return &Identity{root: cached.(*Identity).root.Clone()}, nil
	}

	list := m.root.Get("BuildIdentities")
	if list == nil || list.Kind() != plist.KindArray {
		return nil, newShapeError("BuildIdentities")
	}
	for i := 0; i < list.Len(); i++ {
		entry := list.Index(i)
		info := entry.Get("Info")
		if info == nil {
			continue
		}
		class := info.Get("DeviceClass")
		if class == nil || !strings.EqualFold(class.String(), model) {
			continue
		}
		if behavior != "" {
			rb := info.Get("RestoreBehavior")
			if rb == nil || !strings.EqualFold(rb.String(), behavior) {
				continue
			}
		}
		id := &Identity{root: entry.Clone()}
		m.identityCache.Add(key, id)
		return &Identity{root: id.root.Clone()}, nil
	}
	return nil, fmt.Errorf("manifest: no identity for model %q behavior %q", model, behavior)
}

// GetIdentityByIndex returns the i'th Build Identity, detached. Used by the
// Baseband Resolver, where identity selection is a device-specific
// constant.
func (m *Manifest) GetIdentityByIndex(i int) (*Identity, error) {
	list := m.root.Get("BuildIdentities")
	if list == nil || list.Kind() != plist.KindArray {
		return nil, newShapeError("BuildIdentities")
	}
	entry := list.Index(i)
	if entry == nil {
		return nil, newShapeError(fmt.Sprintf("BuildIdentities[%d]", i))
	}
	return &Identity{root: entry.Clone()}, nil
}

// GetComponentPath returns identity.Manifest[component].Info.Path.
func GetComponentPath(identity *Identity, component string) (string, error) {
	node := identity.root.Path("Manifest", component, "Info", "Path")
	if node == nil || node.Kind() != plist.KindString {
		return "", newShapeError(fmt.Sprintf("Manifest.%s.Info.Path", component))
	}
	return node.String(), nil
}

// ComponentMetadata returns the opaque per-component metadata dictionary
// consumed verbatim by the Ticket Client.
func ComponentMetadata(identity *Identity, component string) (*plist.Value, error) {
	node := identity.root.Path("Manifest", component)
	if node == nil || node.Kind() != plist.KindDict {
		return nil, newShapeError(fmt.Sprintf("Manifest.%s", component))
	}
	return node.Clone(), nil
}

// VersionInfo holds the product/build version strings and the derived
// build-major integer.
type VersionInfo struct {
	ProductVersion      string
	ProductBuildVersion string
	BuildMajor          int
}

// GetVersionInfo extracts the product version, build version, and the
// build-major integer (the leading decimal digits of the build version).
func (m *Manifest) GetVersionInfo() (*VersionInfo, error) {
	pv := m.root.Get("ProductVersion")
	if pv == nil || pv.Kind() != plist.KindString {
		return nil, newShapeError("ProductVersion")
	}
	bv := m.root.Get("ProductBuildVersion")
	if bv == nil || bv.Kind() != plist.KindString {
		return nil, newShapeError("ProductBuildVersion")
	}
	major, err := buildMajor(bv.String())
	if err != nil {
		return nil, err
	}
	return &VersionInfo{
		ProductVersion:      pv.String(),
		ProductBuildVersion: bv.String(),
		BuildMajor:          major,
	}, nil
}

// buildMajor parses the leading decimal digits of a build version string,
// e.g. "14E304" -> 14.
func buildMajor(buildVersion string) (int, error) {
	i := 0
	for i < len(buildVersion) && buildVersion[i] >= '0' && buildVersion[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, fmt.Errorf("manifest: build version %q has no leading digits", buildVersion)
	}
	n, err := strconv.Atoi(buildVersion[:i])
	if err != nil {
		return 0, fmt.Errorf("manifest: build version %q: %w", buildVersion, err)
	}
	return n, nil
}

// DeviceClass returns the identity's Info.DeviceClass.
func (id *Identity) DeviceClass() string {
	return id.root.Path("Info", "DeviceClass").String()
}

// RestoreBehavior returns the identity's Info.RestoreBehavior ("Erase" or
// "Update").
func (id *Identity) RestoreBehavior() string {
	return id.root.Path("Info", "RestoreBehavior").String()
}

// Variant returns the identity's Info.Variant.
func (id *Identity) Variant() string {
	return id.root.Path("Info", "Variant").String()
}

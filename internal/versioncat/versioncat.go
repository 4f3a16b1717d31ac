// Copyright 2026 The idevicererestore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package versioncat caches the global firmware-version catalogue
// ("version.xml") used to discover latest-firmware URLs and the WTF
// stage-0 loader fallback URL, grounded on idevicerestore.c's
// get_version_data()/VERSION_XML handling: a 24h-stale local cache,
// refreshed via an atomic download-then-rename, with stale-on-failure
// fallback when the refresh itself cannot reach the network.
package versioncat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/Trsvsr/idevicererestore/internal/logger"
	"github.com/Trsvsr/idevicererestore/internal/plist"
)

// sourceURL is the vendor endpoint the catalogue is fetched from.
const sourceURL = "http://itunes.apple.com/check/version"

// refreshInterval is how stale a cached copy may be before a refresh is
// attempted.
const refreshInterval = 24 * time.Hour

// HardCodedWTFURL is the last-resort WTF stage-0 loader URL, preserved
// verbatim from idevicerestore.c's fallback constant, used when neither the
// archive nor the version catalogue can supply one.
const HardCodedWTFURL = "http://appldnld.apple.com.edgesuite.net/content.info.apple.com/iPhone/061-6618.20090617.Xse7Y/x12220000_5_Recovery.ipsw"

// ErrVersionCatalogueDown reports that no cached or fresh catalogue is
// available.
var ErrVersionCatalogueDown = errors.New("versioncat: version catalogue unavailable")

// ErrWTFSourceExhausted reports that no WTF loader URL could be resolved
// from the catalogue and the hard-coded fallback itself failed to fetch.
var ErrWTFSourceExhausted = fmt.Errorf("versioncat: no WTF loader source available: %w", ErrVersionCatalogueDown)

// Catalogue wraps a decoded version.xml tree.
type Catalogue struct {
	root *plist.Value
}

func cachePath(cacheDir string) string {
	return filepath.Join(cacheDir, "version.xml")
}

// Load returns the cached catalogue, refreshing it first if the cached
// copy is absent or older than refreshInterval. If the refresh attempt
// fails, a stale cached copy is used instead; only if no cached copy
// exists at all does Load fail.
func Load(ctx context.Context, httpClient *http.Client, cacheDir string) (*Catalogue, error) {
	return loadFromURL(ctx, httpClient, cacheDir, sourceURL)
}

// loadFromURL is Load with the source endpoint overridable, so tests can
// point it at an httptest server instead of the vendor endpoint.
func loadFromURL(ctx context.Context, httpClient *http.Client, cacheDir, source string) (*Catalogue, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	log := logger.FromContext(ctx)
	path := cachePath(cacheDir)

	stale := true
	if fi, err := os.Stat(path); err == nil {
		stale = time.Since(fi.ModTime()) > refreshInterval
	}

	if stale {
		if err := refresh(ctx, httpClient, source, path); err != nil {
			log.Infof("versioncat: refresh failed, falling back to cache: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVersionCatalogueDown, err)
	}
	root, err := plist.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("versioncat: decode %s: %w", path, err)
	}
	return &Catalogue{root: root}, nil
}

// refresh downloads a fresh copy of the catalogue to path, using an
// atomic write-then-rename so a concurrent Load never observes a partial
// file.
func refresh(ctx context.Context, httpClient *http.Client, source, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("versioncat: %s returned %d", source, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	return nil
}

// WTFURL resolves a WTF stage-0 loader URL for the device whose chip ID is
// cpid, via MobileDeviceSoftwareVersionsByVersion.5.RecoverySoftwareVersions.WTF.<cpid>.5.FirmwareURL,
// falling back to the hard-coded URL if that path is absent.
func (c *Catalogue) WTFURL(cpid uint32) string {
	node := c.root.Path(
		"MobileDeviceSoftwareVersionsByVersion", "5", "RecoverySoftwareVersions",
		"WTF", fmt.Sprintf("%d", cpid), "5", "FirmwareURL",
	)
	if node != nil && node.Kind() == plist.KindString && node.String() != "" {
		return node.String()
	}
	return HardCodedWTFURL
}

// ResolveLatestFirmwareURL loads the version catalogue and resolves the
// latest-firmware IPSW URL for productType, combining Load and
// (*Catalogue).LatestFirmwareURL for the --latest convenience flag.
func ResolveLatestFirmwareURL(ctx context.Context, httpClient *http.Client, cacheDir, productType string) (string, error) {
	cat, err := Load(ctx, httpClient, cacheDir)
	if err != nil {
		return "", err
	}
	return cat.LatestFirmwareURL(productType)
}

// LatestFirmwareURL resolves the IPSW URL for the latest firmware of
// productType, read from
// MobileDeviceSoftwareVersionsByVersion.0.RestoreVersions.<productType>.FirmwareURL.
func (c *Catalogue) LatestFirmwareURL(productType string) (string, error) {
	node := c.root.Path("MobileDeviceSoftwareVersionsByVersion", "0", "RestoreVersions", productType, "FirmwareURL")
	if node == nil || node.Kind() != plist.KindString {
		return "", fmt.Errorf("versioncat: no latest firmware URL for %q", productType)
	}
	return node.String(), nil
}

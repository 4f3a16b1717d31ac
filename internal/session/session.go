// Copyright 2026 The idevicererestore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package session threads per-run state (debug flag, re-restore flag,
// cache directory, discovered ECID) through the call graph via
// context.Context, replacing idevicerestore.c's global mutable flags
// (idevicerestore_debug, idevicerestore_keep_pers) per the design note
// that a restore session's state belongs on an explicit context rather
// than process globals. Device-context publishing (temp file + env var
// pair) is adapted from the teacher's botanist/context.go DeviceContext.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

const deviceContextEnvVar = "IDEVICERERESTORE_DEVICE_CONTEXT"

// Options holds the session-wide flags threaded through a Session.
type Options struct {
	// Debug enables verbose logging and retains intermediate personalized
	// components on disk for inspection.
	Debug bool
	// Rerestore selects re-restore mode: the cached-ticket classification
	// path rather than a fresh signing request.
	Rerestore bool
	// ShshOnly requests ticket-capture only: the session ends after
	// caching a ticket without touching the device further.
	ShshOnly bool
	// CacheDir is the root directory for the SHSH ticket cache, the
	// extracted-filesystem cache, and the version catalogue cache.
	CacheDir string
}

// Session carries the per-run options plus discovered device state.
type Session struct {
	Options

	// ECID is the device's Exclusive Chip ID, discovered once and
	// immutable for the rest of the session (spec.md §3 invariant).
	ECID uint64
	// ProductType is the device's product type string, e.g. "iPhone5,2".
	ProductType string
	// Model is the device's hardware model / DeviceClass, e.g. "n61ap",
	// used to select a Build Identity out of a manifest that may support
	// several devices.
	Model string
}

type sessionKeyType struct{}

// WithSession returns a new context carrying s, retrievable via
// FromContext.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKeyType{}, s)
}

// FromContext returns the Session previously attached with WithSession, or
// a zero-value Session if none was attached.
func FromContext(ctx context.Context) *Session {
	if s, ok := ctx.Value(sessionKeyType{}).(*Session); ok && s != nil {
		return s
	}
	return &Session{}
}

// DeviceContext describes the attached device for the benefit of
// subprocesses invoked mid-session (e.g. an external personalization
// helper), published via a temp file referenced by an environment
// variable.
type DeviceContext struct {
	location string

	ECID                uint64 `json:"ecid"`
	ProductType         string `json:"product_type"`
	ProductVersion      string `json:"product_version"`
	ProductBuildVersion string `json:"product_build_version"`
}

// Register writes devCtx to a temp file so it can be located via
// EnvironEntry. Unregister must be called to clean it up.
func (devCtx *DeviceContext) Register() error {
	if devCtx.location != "" {
		return nil
	}
	f, err := os.CreateTemp("", "idevicererestore-devctx")
	if err != nil {
		return fmt.Errorf("session: create device context file: %w", err)
	}
	defer f.Close()

	devCtx.location = f.Name()
	if err := json.NewEncoder(f).Encode(devCtx); err != nil {
		devCtx.Unregister()
		return fmt.Errorf("session: encode device context: %w", err)
	}
	return nil
}

// EnvironEntry returns a "NAME=VALUE" string that may be attached to a
// subprocess's environment to let it locate the published DeviceContext.
func (devCtx DeviceContext) EnvironEntry() string {
	return fmt.Sprintf("%s=%s", deviceContextEnvVar, devCtx.location)
}

// Unregister removes the published device context file.
func (devCtx *DeviceContext) Unregister() error {
	if devCtx.location == "" {
		return nil
	}
	defer func() { devCtx.location = "" }()
	return os.Remove(devCtx.location)
}

// GetDeviceContext reads back a DeviceContext published by a parent
// process via the environment variable EnvironEntry sets.
func GetDeviceContext() (*DeviceContext, error) {
	location := os.Getenv(deviceContextEnvVar)
	if location == "" {
		return nil, fmt.Errorf("session: no device context published in %s", deviceContextEnvVar)
	}
	f, err := os.Open(location)
	if err != nil {
		return nil, fmt.Errorf("session: open device context: %w", err)
	}
	defer f.Close()

	var devCtx DeviceContext
	if err := json.NewDecoder(f).Decode(&devCtx); err != nil {
		return nil, fmt.Errorf("session: decode device context: %w", err)
	}
	devCtx.location = location
	return &devCtx, nil
}

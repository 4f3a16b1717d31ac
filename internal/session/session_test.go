// Copyright 2026 The idevicererestore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package session

import (
	"context"
	"os"
	"strings"
	"testing"
)

func TestWithSessionAndFromContext(t *testing.T) {
	s := &Session{Options: Options{Debug: true, CacheDir: "/tmp/cache"}, ECID: 42}
	ctx := WithSession(context.Background(), s)

	got := FromContext(ctx)
	if got.ECID != 42 || !got.Debug || got.CacheDir != "/tmp/cache" {
		t.Errorf("unexpected session: %+v", got)
	}
}

func TestFromContextDefaultsWhenAbsent(t *testing.T) {
	got := FromContext(context.Background())
	if got.Debug || got.ECID != 0 {
		t.Errorf("expected zero-value session, got %+v", got)
	}
}

func TestDeviceContextRegisterAndGet(t *testing.T) {
	devCtx := &DeviceContext{ECID: 99, ProductType: "iPhone5,2"}
	if err := devCtx.Register(); err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer devCtx.Unregister()

	entry := devCtx.EnvironEntry()
	parts := strings.SplitN(entry, "=", 2)
	if len(parts) != 2 {
		t.Fatalf("malformed environ entry: %q", entry)
	}
	oldVal, hadOld := os.LookupEnv(parts[0])
	os.Setenv(parts[0], parts[1])
	defer func() {
		if hadOld {
			os.Setenv(parts[0], oldVal)
		} else {
			os.Unsetenv(parts[0])
		}
	}()

	got, err := GetDeviceContext()
	if err != nil {
		t.Fatalf("GetDeviceContext: %v", err)
	}
	if got.ECID != 99 || got.ProductType != "iPhone5,2" {
		t.Errorf("unexpected device context: %+v", got)
	}
}

func TestGetDeviceContextFailsWhenUnset(t *testing.T) {
	os.Unsetenv(deviceContextEnvVar)
	if _, err := GetDeviceContext(); err == nil {
		t.Error("expected error when env var unset")
	}
}

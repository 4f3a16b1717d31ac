// Copyright 2026 The idevicererestore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package mode

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/Trsvsr/idevicererestore/internal/deviceio"
)

func TestMain(m *testing.M) {
	pollAttempts = 3
	pollInterval = time.Millisecond
	os.Exit(m.Run())
}

type fakeModeDriver struct {
	present bool
	ecid    uint64
	image4  bool
}

func (f *fakeModeDriver) CheckMode(ctx context.Context) (bool, error) { return f.present, nil }
func (f *fakeModeDriver) ECID(ctx context.Context) (uint64, error)   { return f.ecid, nil }
func (f *fakeModeDriver) ApNonce(ctx context.Context) ([]byte, error) {
	return nil, deviceio.ErrUnimplemented
}
func (f *fakeModeDriver) SepNonce(ctx context.Context) ([]byte, error) {
	return nil, deviceio.ErrUnimplemented
}
func (f *fakeModeDriver) HardwareModel(ctx context.Context) (string, error) { return "n61ap", nil }
func (f *fakeModeDriver) IsImage4Supported(ctx context.Context) (bool, error) {
	return f.image4, nil
}

type fakeRecoveryDriver struct {
	fakeModeDriver
	ibfl          uint32
	enterRestoreN int
	ticketErr     error
	sentTicket    []byte
}

func (f *fakeRecoveryDriver) SendTicket(ctx context.Context, ticket []byte) error {
	f.sentTicket = ticket
	return f.ticketErr
}
func (f *fakeRecoveryDriver) EnterRestore(ctx context.Context) error {
	f.enterRestoreN++
	return nil
}
func (f *fakeRecoveryDriver) SetAutoboot(ctx context.Context, enabled bool) error { return nil }
func (f *fakeRecoveryDriver) SendReset(ctx context.Context) error                 { return nil }
func (f *fakeRecoveryDriver) IBFL(ctx context.Context) (uint32, error)            { return f.ibfl, nil }

type fakeDFUDriver struct {
	fakeModeDriver
	sentBuffer []byte
	sentIBEC   []byte
	reenumerate bool
}

func (f *fakeDFUDriver) CPID(ctx context.Context) (uint32, error) { return 0x8010, nil }
func (f *fakeDFUDriver) SendBuffer(ctx context.Context, data []byte) error {
	f.sentBuffer = data
	if f.reenumerate {
		f.present = true
	}
	return nil
}
func (f *fakeDFUDriver) SendIBEC(ctx context.Context, personalized []byte) error {
	f.sentIBEC = personalized
	return nil
}

type fakeNormalDriver struct {
	fakeModeDriver
	enterRecoveryN int
}

func (f *fakeNormalDriver) EnterRecovery(ctx context.Context) error {
	f.enterRecoveryN++
	return nil
}
func (f *fakeNormalDriver) PreflightInfo(ctx context.Context) (*deviceio.PreflightInfo, error) {
	return nil, deviceio.ErrUnimplemented
}

type fakeRestoreDriver struct {
	fakeModeDriver
	resetCalled bool
}

func (f *fakeRestoreDriver) SendReset(ctx context.Context) error {
	f.resetCalled = true
	f.present = false
	return nil
}

func TestDetectReturnsFirstRespondingMode(t *testing.T) {
	recovery := &fakeRecoveryDriver{fakeModeDriver: fakeModeDriver{present: false}}
	dfu := &fakeDFUDriver{fakeModeDriver: fakeModeDriver{present: true}}
	c := NewController(Drivers{Recovery: recovery, DFU: dfu}, nil)

	got, err := c.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if got != deviceio.ModeDFU {
		t.Errorf("Detect = %s, want DFU", got)
	}
}

func TestDetectReturnsUnknownWhenNoneRespond(t *testing.T) {
	c := NewController(Drivers{}, nil)
	got, err := c.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if got != deviceio.ModeUnknown {
		t.Errorf("Detect = %s, want Unknown", got)
	}
}

func TestIsImage4SupportedDispatchesToCurrentDriver(t *testing.T) {
	dfu := &fakeDFUDriver{fakeModeDriver: fakeModeDriver{present: true, image4: true}}
	c := NewController(Drivers{DFU: dfu}, nil)
	if _, err := c.Detect(context.Background()); err != nil {
		t.Fatalf("Detect: %v", err)
	}

	got, err := c.IsImage4Supported(context.Background())
	if err != nil {
		t.Fatalf("IsImage4Supported: %v", err)
	}
	if !got {
		t.Error("IsImage4Supported = false, want true")
	}
}

func TestIsImage4SupportedErrorsWithNoDetectedMode(t *testing.T) {
	c := NewController(Drivers{}, nil)
	if _, err := c.IsImage4Supported(context.Background()); err == nil {
		t.Fatal("expected error when no mode has been detected")
	}
}

func TestResolveWTFLoaderSourcePrefersEmbeddedArchive(t *testing.T) {
	dfu := &fakeDFUDriver{fakeModeDriver: fakeModeDriver{present: true}}
	c := NewController(Drivers{DFU: dfu}, nil)

	embedded := []byte("loader-bytes")
	source, err := c.ResolveWTFLoaderSource(context.Background(), t.TempDir(), func(cpid uint32) []byte {
		if cpid != 0x8010 {
			t.Fatalf("archiveLookup cpid = 0x%x, want 0x8010", cpid)
		}
		return embedded
	})
	if err != nil {
		t.Fatalf("ResolveWTFLoaderSource: %v", err)
	}
	if string(source.Embedded) != string(embedded) {
		t.Errorf("Embedded = %q, want %q", source.Embedded, embedded)
	}
	if source.FallbackURL == "" {
		t.Error("expected FallbackURL to always be populated as a safety net")
	}
}

func TestResolveWTFLoaderSourceFallsBackWhenCatalogueUnavailable(t *testing.T) {
	dfu := &fakeDFUDriver{fakeModeDriver: fakeModeDriver{present: true}}
	c := NewController(Drivers{DFU: dfu}, nil)

	source, err := c.ResolveWTFLoaderSource(context.Background(), t.TempDir(), nil)
	if err != nil {
		t.Fatalf("ResolveWTFLoaderSource: %v", err)
	}
	if source.Embedded != nil {
		t.Errorf("expected no embedded loader, got %d bytes", len(source.Embedded))
	}
	if source.CatalogueURL != "" {
		t.Errorf("expected empty CatalogueURL with no cache/network, got %q", source.CatalogueURL)
	}
	if source.FallbackURL == "" {
		t.Error("expected FallbackURL to be populated when the catalogue cannot be loaded")
	}
}

func TestResolveWTFLoaderSourceErrorsWithNoDFUDriver(t *testing.T) {
	c := NewController(Drivers{}, nil)
	if _, err := c.ResolveWTFLoaderSource(context.Background(), t.TempDir(), nil); err == nil {
		t.Fatal("expected error with no DFU driver configured")
	}
}

func TestEnsureExitRestoreNoOpWhenNotInRestore(t *testing.T) {
	normal := &fakeNormalDriver{fakeModeDriver: fakeModeDriver{present: true}}
	c := NewController(Drivers{Normal: normal}, nil)
	if err := c.EnsureExitRestore(context.Background()); err != nil {
		t.Fatalf("EnsureExitRestore: %v", err)
	}
}

func TestEnsureExitRestoreSucceedsWhenDeviceLeaves(t *testing.T) {
	restore := &fakeRestoreDriver{fakeModeDriver: fakeModeDriver{present: true}}
	c := NewController(Drivers{Restore: restore}, nil)
	if err := c.EnsureExitRestore(context.Background()); err != nil {
		t.Fatalf("EnsureExitRestore: %v", err)
	}
	if !restore.resetCalled {
		t.Error("expected SendReset to be called")
	}
}

func TestEnsureExitRestoreStuckWhenDeviceNeverLeaves(t *testing.T) {
	restore := &fakeRestoreDriver{fakeModeDriver: fakeModeDriver{present: true}}
	restore.resetCalled = false
	// Override SendReset behavior: never actually leaves Restore.
	stuckDriver := &stuckRestoreDriver{fakeRestoreDriver: *restore}
	c := NewController(Drivers{Restore: stuckDriver}, nil)

	err := c.EnsureExitRestore(context.Background())
	if err == nil {
		t.Fatal("expected StuckError")
	}
	var stuckErr *StuckError
	if !errors.As(err, &stuckErr) {
		t.Fatalf("expected *StuckError, got %T: %v", err, err)
	}
}

type stuckRestoreDriver struct {
	fakeRestoreDriver
}

func (s *stuckRestoreDriver) SendReset(ctx context.Context) error {
	// Unlike fakeRestoreDriver, does not clear `present` — device never
	// leaves Restore mode.
	return nil
}

func TestWaitForStage2Success(t *testing.T) {
	recovery := &fakeRecoveryDriver{fakeModeDriver: fakeModeDriver{present: true}, ibfl: 0x02}
	c := NewController(Drivers{Recovery: recovery}, nil)
	if err := c.WaitForStage2(context.Background()); err != nil {
		t.Fatalf("WaitForStage2: %v", err)
	}
}

func TestWaitForStage2Fatal(t *testing.T) {
	recovery := &fakeRecoveryDriver{fakeModeDriver: fakeModeDriver{present: true}, ibfl: 0x03}
	c := NewController(Drivers{Recovery: recovery}, nil)
	err := c.WaitForStage2(context.Background())
	if err == nil {
		t.Fatal("expected LoaderStuckError")
	}
	var loaderErr *LoaderStuckError
	if !errors.As(err, &loaderErr) {
		t.Fatalf("expected *LoaderStuckError, got %T: %v", err, err)
	}
}

func TestWaitForStage2UnrecognizedIBFLTreatedAsSuccess(t *testing.T) {
	recovery := &fakeRecoveryDriver{fakeModeDriver: fakeModeDriver{present: true}, ibfl: 0x77}
	c := NewController(Drivers{Recovery: recovery}, nil)
	if err := c.WaitForStage2(context.Background()); err != nil {
		t.Fatalf("WaitForStage2: %v", err)
	}
}

func TestEnterRestoreRequiresRecoveryMode(t *testing.T) {
	recovery := &fakeRecoveryDriver{fakeModeDriver: fakeModeDriver{present: true}}
	c := NewController(Drivers{Recovery: recovery}, nil)
	if err := c.EnterRestore(context.Background()); err == nil {
		t.Fatal("expected error entering restore before a Detect established Recovery mode")
	}

	if _, err := c.Detect(context.Background()); err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if err := c.EnterRestore(context.Background()); err != nil {
		t.Fatalf("EnterRestore: %v", err)
	}
	if recovery.enterRestoreN != 1 {
		t.Errorf("expected EnterRestore to be called once, got %d", recovery.enterRestoreN)
	}
}

func TestEnterRecoveryFromDFUSendsIBECAndTicket(t *testing.T) {
	recovery := &fakeRecoveryDriver{fakeModeDriver: fakeModeDriver{present: false}}
	dfu := &fakeDFUDriver{fakeModeDriver: fakeModeDriver{present: true}}
	c := NewController(Drivers{Recovery: recovery, DFU: dfu}, nil)
	if _, err := c.Detect(context.Background()); err != nil {
		t.Fatalf("Detect: %v", err)
	}

	payload := bytes.Repeat([]byte{0xAA}, 200)
	blob := bytes.Repeat([]byte{0xBB}, 64)
	if err := c.EnterRecovery(context.Background(), 14, []byte("ticket"), payload, blob); err != nil {
		t.Fatalf("EnterRecovery: %v", err)
	}
	if len(dfu.sentIBEC) != len(payload) {
		t.Errorf("expected personalized IBEC to be sent, len=%d", len(dfu.sentIBEC))
	}
	if string(recovery.sentTicket) != "ticket" {
		t.Errorf("expected pre-flight ticket to be sent, got %q", recovery.sentTicket)
	}
}

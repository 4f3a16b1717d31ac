// Copyright 2026 The idevicererestore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package deviceio

import "context"

// USBDFUDriver satisfies DFUDriver by pairing USBModeDriver's enumeration
// with stubbed wire-protocol commands. Sending a buffer or a personalized
// iBEC over DFU requires the USB bulk-transfer control protocol, which is
// an external collaborator this core does not implement.
type USBDFUDriver struct {
	*USBModeDriver
}

// NewUSBDFUDriver constructs a DFUDriver enumerating under the DFU VID/PID.
func NewUSBDFUDriver() (*USBDFUDriver, error) {
	d, err := NewUSBModeDriver(ModeDFU)
	if err != nil {
		return nil, err
	}
	return &USBDFUDriver{USBModeDriver: d}, nil
}

func (d *USBDFUDriver) CPID(ctx context.Context) (uint32, error) { return 0, ErrUnimplemented }
func (d *USBDFUDriver) SendBuffer(ctx context.Context, data []byte) error {
	return ErrUnimplemented
}
func (d *USBDFUDriver) SendIBEC(ctx context.Context, personalizedIBEC []byte) error {
	return ErrUnimplemented
}

// USBRecoveryDriver satisfies RecoveryDriver. Every recovery-mode command
// (ticket upload, restore entry, autoboot toggle, reset, IBFL readback) is
// framed over the same out-of-scope wire protocol as USBDFUDriver.
type USBRecoveryDriver struct {
	*USBModeDriver
}

// NewUSBRecoveryDriver constructs a RecoveryDriver enumerating under the
// Recovery VID/PID.
func NewUSBRecoveryDriver() (*USBRecoveryDriver, error) {
	d, err := NewUSBModeDriver(ModeRecovery)
	if err != nil {
		return nil, err
	}
	return &USBRecoveryDriver{USBModeDriver: d}, nil
}

func (d *USBRecoveryDriver) SendTicket(ctx context.Context, ticket []byte) error {
	return ErrUnimplemented
}
func (d *USBRecoveryDriver) EnterRestore(ctx context.Context) error { return ErrUnimplemented }
func (d *USBRecoveryDriver) SetAutoboot(ctx context.Context, enabled bool) error {
	return ErrUnimplemented
}
func (d *USBRecoveryDriver) SendReset(ctx context.Context) error { return ErrUnimplemented }
func (d *USBRecoveryDriver) IBFL(ctx context.Context) (uint32, error) {
	return 0, ErrUnimplemented
}

// USBNormalDriver satisfies NormalDriver. Unlike DFU/Recovery/Restore,
// Normal mode has no fixed restore VID/PID to probe directly: a booted
// device is discovered and addressed through its usbmuxd pairing record,
// which this core treats as an external collaborator. Every method is
// therefore a stub.
type USBNormalDriver struct{}

// NewUSBNormalDriver constructs a NormalDriver placeholder; all of its
// methods return ErrUnimplemented until a usbmuxd-backed implementation is
// wired in.
func NewUSBNormalDriver() (*USBNormalDriver, error) {
	return &USBNormalDriver{}, nil
}

func (d *USBNormalDriver) CheckMode(ctx context.Context) (bool, error) {
	return false, ErrUnimplemented
}
func (d *USBNormalDriver) ECID(ctx context.Context) (uint64, error) { return 0, ErrUnimplemented }
func (d *USBNormalDriver) ApNonce(ctx context.Context) ([]byte, error) {
	return nil, ErrUnimplemented
}
func (d *USBNormalDriver) SepNonce(ctx context.Context) ([]byte, error) {
	return nil, ErrUnimplemented
}
func (d *USBNormalDriver) HardwareModel(ctx context.Context) (string, error) {
	return "", ErrUnimplemented
}
func (d *USBNormalDriver) IsImage4Supported(ctx context.Context) (bool, error) {
	return false, ErrUnimplemented
}
func (d *USBNormalDriver) EnterRecovery(ctx context.Context) error { return ErrUnimplemented }
func (d *USBNormalDriver) PreflightInfo(ctx context.Context) (*PreflightInfo, error) {
	return nil, ErrUnimplemented
}

// USBRestoreDriver satisfies RestoreDriver.
type USBRestoreDriver struct {
	*USBModeDriver
}

// NewUSBRestoreDriver constructs a RestoreDriver enumerating under the
// Restore VID/PID.
func NewUSBRestoreDriver() (*USBRestoreDriver, error) {
	d, err := NewUSBModeDriver(ModeRestore)
	if err != nil {
		return nil, err
	}
	return &USBRestoreDriver{USBModeDriver: d}, nil
}

func (d *USBRestoreDriver) SendReset(ctx context.Context) error { return ErrUnimplemented }

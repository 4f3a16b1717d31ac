// Copyright 2026 The idevicererestore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// USB enumeration backing for ModeDriver.CheckMode/ECID, grounded on
// guiperry-HASHER's internal/driver/device/usb_device.go
// OpenUSBDevice/IsUSBDeviceAvailable VID/PID-probe pattern. The restore
// wire protocol itself (DFU/Recovery/Restore command framing) is an
// external collaborator this core does not implement; only enumeration —
// "is a device in this mode attached, and what is its ECID" — is wired to
// a real USB stack.
package deviceio

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/gousb"
)

// UsbTransport reports that a USB probe or transfer to an attached device
// failed. Wrapped into the errors CheckMode/ECID return, so callers can
// check with errors.Is(err, deviceio.UsbTransport).
var UsbTransport = errors.New("deviceio: usb transport error")

// usbIdentity is the VID/PID pair a mode is enumerated under.
type usbIdentity struct {
	vid, pid gousb.ID
}

var (
	dfuIdentity      = usbIdentity{vid: 0x05ac, pid: 0x1227}
	recoveryIdentity = usbIdentity{vid: 0x05ac, pid: 0x1281}
	restoreIdentity  = usbIdentity{vid: 0x05ac, pid: 0x1292}
)

// USBModeDriver enumerates Apple USB restore devices via github.com/google/gousb
// to answer CheckMode/ECID probes. Every other ModeDriver method returns
// ErrUnimplemented: the wire protocol used to actually talk to the device
// in each mode is out of scope for this core.
type USBModeDriver struct {
	identity usbIdentity
}

// NewUSBModeDriver constructs a driver that probes for devices enumerated
// under the given mode's VID/PID.
func NewUSBModeDriver(mode Mode) (*USBModeDriver, error) {
	var id usbIdentity
	switch mode {
	case ModeDFU, ModeWTF:
		id = dfuIdentity
	case ModeRecovery:
		id = recoveryIdentity
	case ModeRestore:
		id = restoreIdentity
	default:
		return nil, fmt.Errorf("deviceio: no USB identity known for mode %s", mode)
	}
	return &USBModeDriver{identity: id}, nil
}

// CheckMode reports whether a device matching this driver's VID/PID is
// currently attached.
func (d *USBModeDriver) CheckMode(ctx context.Context) (bool, error) {
	usbCtx := gousb.NewContext()
	defer usbCtx.Close()

	dev, err := usbCtx.OpenDeviceWithVIDPID(d.identity.vid, d.identity.pid)
	if err != nil {
		return false, fmt.Errorf("%w: probe: %v", UsbTransport, err)
	}
	if dev == nil {
		return false, nil
	}
	defer dev.Close()
	return true, nil
}

// ECID reads the device's serial number string descriptor and parses it as
// the Exclusive Chip ID. Apple restore-mode devices report ECID as the USB
// serial number in hexadecimal.
func (d *USBModeDriver) ECID(ctx context.Context) (uint64, error) {
	usbCtx := gousb.NewContext()
	defer usbCtx.Close()

	dev, err := usbCtx.OpenDeviceWithVIDPID(d.identity.vid, d.identity.pid)
	if err != nil {
		return 0, fmt.Errorf("%w: probe: %v", UsbTransport, err)
	}
	if dev == nil {
		return 0, fmt.Errorf("%w: no device attached in this mode", UsbTransport)
	}
	defer dev.Close()

	serial, err := dev.SerialNumber()
	if err != nil {
		return 0, fmt.Errorf("%w: read serial number: %v", UsbTransport, err)
	}
	ecid, err := strconv.ParseUint(serial, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("deviceio: parse ECID from serial %q: %w", serial, err)
	}
	return ecid, nil
}

func (d *USBModeDriver) ApNonce(ctx context.Context) ([]byte, error) {
	return nil, ErrUnimplemented
}

func (d *USBModeDriver) SepNonce(ctx context.Context) ([]byte, error) {
	return nil, ErrUnimplemented
}

func (d *USBModeDriver) HardwareModel(ctx context.Context) (string, error) {
	return "", ErrUnimplemented
}

func (d *USBModeDriver) IsImage4Supported(ctx context.Context) (bool, error) {
	return false, ErrUnimplemented
}

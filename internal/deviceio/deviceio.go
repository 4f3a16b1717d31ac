// Copyright 2026 The idevicererestore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package deviceio declares the capability interfaces the core consumes
// from the device transport layer. The USB wire protocols themselves are
// explicitly out of scope (spec.md §1/§6) — this package names the
// contracts the Mode Controller drives, modeling the four sub-drivers as
// implementations of one capability set per spec.md §9's re-architecture
// cue, rather than a large switch on mode.
package deviceio

import (
	"context"
	"errors"
)

// ErrUnimplemented marks a capability whose wire protocol is an external
// collaborator not implemented by this core.
var ErrUnimplemented = errors.New("deviceio: method unimplemented")

// Mode identifies one of the device's mutually exclusive boot states.
type Mode int

const (
	// ModeUnknown is returned when no sub-driver responds to a probe.
	ModeUnknown Mode = iota
	// ModeNormal is the booted operating system.
	ModeNormal
	// ModeRecovery is the bootloader recovery console (iBoot/iBEC).
	ModeRecovery
	// ModeDFU is the ROM-level Device Firmware Upgrade loader.
	ModeDFU
	// ModeWTF is an older-CPU stage-0 state that needs a WTF loader before
	// DFU commands are accepted.
	ModeWTF
	// ModeRestore is the filesystem-restore daemon.
	ModeRestore
)

// String names a Mode for logging.
func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "Normal"
	case ModeRecovery:
		return "Recovery"
	case ModeDFU:
		return "DFU"
	case ModeWTF:
		return "WTF"
	case ModeRestore:
		return "Restore"
	default:
		return "Unknown"
	}
}

// PreflightInfo carries the baseband identifiers the Normal-mode driver
// reports, remapped by the Ticket Client into Bb-prefixed TSS request tags.
type PreflightInfo struct {
	Nonce        []byte
	ChipID       int64
	CertID       int64
	ChipSerialNo int64
}

// ModeDriver is the capability set common to every sub-driver: detect
// whether it is the one currently attached, and read the identifiers the
// Ticket Client and Re-restore Classifier need.
type ModeDriver interface {
	// CheckMode reports whether a device in this driver's mode is
	// currently attached and responsive.
	CheckMode(ctx context.Context) (bool, error)

	// ECID returns the device's Exclusive Chip ID.
	ECID(ctx context.Context) (uint64, error)

	// ApNonce returns the device's current application-processor nonce,
	// which may be empty if the device has not yet generated one.
	ApNonce(ctx context.Context) ([]byte, error)

	// SepNonce returns the device's current Secure Enclave nonce, if any.
	SepNonce(ctx context.Context) ([]byte, error)

	// HardwareModel returns the device's short hardware model string,
	// e.g. "n61ap".
	HardwareModel(ctx context.Context) (string, error)

	// IsImage4Supported reports the device's signed-image-format bit.
	IsImage4Supported(ctx context.Context) (bool, error)
}

// DFUDriver extends ModeDriver with the DFU-mode-specific commands needed
// to bootstrap WTF and enter Recovery.
type DFUDriver interface {
	ModeDriver

	// CPID returns the device's chip identifier, used to name the WTF
	// loader entry for this hardware.
	CPID(ctx context.Context) (uint32, error)

	// SendBuffer ships a raw buffer (a WTF stage-0 loader) to the device.
	SendBuffer(ctx context.Context, data []byte) error

	// SendIBEC personalizes and ships the second-stage loader (iBEC),
	// driving the device from DFU into Recovery.
	SendIBEC(ctx context.Context, personalizedIBEC []byte) error
}

// RecoveryDriver extends ModeDriver with Recovery-mode-specific commands.
type RecoveryDriver interface {
	ModeDriver

	// SendTicket uploads the APTicket ahead of the restore-enter command,
	// for build_major > 8 devices. Its failure is non-fatal per spec.md
	// §4.1.
	SendTicket(ctx context.Context, ticket []byte) error

	// EnterRestore sends the restore-enter command bundle.
	EnterRestore(ctx context.Context) error

	// SetAutoboot toggles the bootloader's auto-boot behavior.
	SetAutoboot(ctx context.Context, enabled bool) error

	// SendReset issues a device reset.
	SendReset(ctx context.Context) error

	// IBFL returns the second-stage-loader status bitfield reported after
	// an iBEC upload.
	IBFL(ctx context.Context) (uint32, error)
}

// NormalDriver extends ModeDriver with Normal-mode-specific commands.
type NormalDriver interface {
	ModeDriver

	// EnterRecovery drives the booted device into Recovery mode.
	EnterRecovery(ctx context.Context) error

	// PreflightInfo returns the baseband preflight identifiers, if the
	// device reports one.
	PreflightInfo(ctx context.Context) (*PreflightInfo, error)
}

// RestoreDriver extends ModeDriver with the Restore-daemon commands needed
// to detect and exit Restore mode.
type RestoreDriver interface {
	ModeDriver

	// SendReset reboots the device out of the restore daemon.
	SendReset(ctx context.Context) error
}

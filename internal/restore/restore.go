// Copyright 2026 The idevicererestore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package restore wires the Mode Controller, Manifest Resolver, IPSW
// Reader, Ticket Client, Re-restore Classifier, Personalizer, and Baseband
// Resolver into the end-to-end restore session described in spec.md §2,
// grounded on idevicerestore.c's idevicerestore_start() driver function
// and on the teacher's RunCommand.execute (cmd/botanist/run.go), which
// plays the same "load inputs, derive a plan, drive the target through its
// boot states" role for a Fuchsia device that this package plays for an
// Apple one.
package restore

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/Trsvsr/idevicererestore/internal/baseband"
	"github.com/Trsvsr/idevicererestore/internal/deviceio"
	"github.com/Trsvsr/idevicererestore/internal/ipsw"
	"github.com/Trsvsr/idevicererestore/internal/logger"
	"github.com/Trsvsr/idevicererestore/internal/manifest"
	"github.com/Trsvsr/idevicererestore/internal/mode"
	"github.com/Trsvsr/idevicererestore/internal/personalize"
	"github.com/Trsvsr/idevicererestore/internal/plist"
	"github.com/Trsvsr/idevicererestore/internal/rerestore"
	"github.com/Trsvsr/idevicererestore/internal/session"
	"github.com/Trsvsr/idevicererestore/internal/tss"
)

// Archive is the subset of *ipsw.Archive a Plan consumes, narrowed so
// tests can supply a fake without building a real zip.
type Archive interface {
	ExtractToMemory(path string) ([]byte, error)
	ExtractCached(ctx context.Context, path, cacheDir string, progress ipsw.ProgressFunc) (dest string, ephemeral bool, err error)
}

// Config is the set of inputs a restore session needs beyond the archive,
// the manifest, and the session carried on ctx. ReferenceManifest stands in
// for the latest-firmware lookup the Baseband Resolver needs: it would
// ordinarily come from a second downloaded IPSW, which this core does not
// fetch on its own (spec.md §1 scopes archive decompression out).
type Config struct {
	ReferenceManifest *manifest.Manifest

	// ComponentFilter, if non-empty, restricts personalizeComponents to
	// only the named Manifest components, letting an operator scope a
	// session to the handful of components under active investigation
	// instead of stitching every component the archive carries.
	ComponentFilter []string
}

// StuckInModeError reports that the device failed to transition, naming
// which mode it was stuck in.
type StuckInModeError struct {
	Mode deviceio.Mode
}

func (e *StuckInModeError) Error() string {
	return fmt.Sprintf("restore: device did not transition out of %s", e.Mode)
}

// RecoveryFromNormalError reports that entering Recovery from Normal mode
// failed, the specific failure spec.md §6 assigns its own exit code.
type RecoveryFromNormalError struct {
	Cause error
}

func (e *RecoveryFromNormalError) Error() string {
	return fmt.Sprintf("restore: failed to enter recovery from normal mode: %v", e.Cause)
}

func (e *RecoveryFromNormalError) Unwrap() error { return e.Cause }

// UnsupportedDeviceError reports that the detected device's image-format
// bit is set, per spec.md §3/§7: this core only ever targets the
// unsigned-image (img3) restore path and refuses to operate otherwise.
type UnsupportedDeviceError struct {
	Mode deviceio.Mode
}

func (e *UnsupportedDeviceError) Error() string {
	return fmt.Sprintf("restore: device detected in %s supports image4; this core only targets image3 devices", e.Mode)
}

// Engine drives a single restore session against one attached device.
type Engine struct {
	Controller *mode.Controller
	TSS        *tss.Client
}

// NewEngine constructs an Engine wired to real USB-backed drivers.
func NewEngine(httpClient *http.Client) (*Engine, error) {
	dfu, err := deviceio.NewUSBDFUDriver()
	if err != nil {
		return nil, err
	}
	recovery, err := deviceio.NewUSBRecoveryDriver()
	if err != nil {
		return nil, err
	}
	normal, err := deviceio.NewUSBNormalDriver()
	if err != nil {
		return nil, err
	}
	restoreDrv, err := deviceio.NewUSBRestoreDriver()
	if err != nil {
		return nil, err
	}
	drivers := mode.Drivers{Recovery: recovery, DFU: dfu, Normal: normal, Restore: restoreDrv}
	return &Engine{
		Controller: mode.NewController(drivers, httpClient),
		TSS:        tss.NewClient(httpClient),
	}, nil
}

// Outcome reports what a completed (or partially completed) session did.
type Outcome struct {
	Identity     *manifest.Identity
	Custom       bool
	TicketCached bool
}

// Run drives one restore session: resolve the identity, obtain a ticket,
// personalize components, and walk the device through its mode
// transitions to Restore. arc is the opened IPSW archive and m its parsed
// Build Manifest; cfg supplies the inputs on-device discovery would
// otherwise provide.
func (e *Engine) Run(ctx context.Context, arc Archive, m *manifest.Manifest, cfg Config) (*Outcome, error) {
	sess := session.FromContext(ctx)
	log := logger.FromContext(ctx)

	if err := m.CheckCompatibility(sess.ProductType); err != nil {
		return nil, err
	}

	detected, err := e.Controller.Detect(ctx)
	if err != nil {
		return nil, err
	}
	if detected == deviceio.ModeUnknown {
		return nil, &StuckInModeError{Mode: deviceio.ModeUnknown}
	}

	supportsImg4, err := e.Controller.IsImage4Supported(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore: query image-format support: %w", err)
	}
	if supportsImg4 {
		return nil, &UnsupportedDeviceError{Mode: detected}
	}

	if err := e.Controller.EnsureExitRestore(ctx); err != nil {
		return nil, err
	}

	identity, custom, err := e.resolveIdentity(ctx, arc, m, sess, cfg)
	if err != nil {
		return nil, err
	}

	vi, err := m.GetVersionInfo()
	if err != nil {
		return nil, err
	}

	devCtx := &session.DeviceContext{
		ECID:                sess.ECID,
		ProductType:         sess.ProductType,
		ProductVersion:      vi.ProductVersion,
		ProductBuildVersion: vi.ProductBuildVersion,
	}
	if err := devCtx.Register(); err != nil {
		log.Infof("restore: publishing device context: %v", err)
	} else {
		defer devCtx.Unregister()
	}

	if cfg.ReferenceManifest != nil {
		e.compareBaseband(ctx, identity, sess.ProductType, cfg)
	}

	key := tss.CacheKey{
		ECID:                sess.ECID,
		ProductType:         sess.ProductType,
		ProductVersion:      vi.ProductVersion,
		ProductBuildVersion: vi.ProductBuildVersion,
	}
	tssMode := tss.ModeNormal
	if sess.Rerestore {
		tssMode = tss.ModeRerestore
	}
	req := &tss.Request{
		ECID: sess.ECID,
		// Always false: a device with the bit set is rejected above, before
		// a session ever reaches ticket acquisition.
		SupportsImg4: false,
		Identity:     identity,
		Components:   identity.Root().Path("Manifest").Keys(),
	}
	ticket, err := e.TSS.Fetch(ctx, tssMode, key, sess.CacheDir, req)
	if err != nil {
		return nil, fmt.Errorf("restore: acquire ticket: %w", err)
	}

	if sess.ShshOnly {
		if err := tss.SaveOnly(key, sess.CacheDir, ticket); err != nil {
			log.Infof("restore: ticket already cached: %v", err)
		}
		return &Outcome{Identity: identity, Custom: custom, TicketCached: true}, nil
	}

	debugDir := ""
	if sess.Debug {
		debugDir = sess.CacheDir
	}
	if err := e.personalizeComponents(ctx, arc, identity, ticket, debugDir, cfg.ComponentFilter); err != nil {
		log.Infof("restore: some components could not be personalized: %v", err)
	}

	if osPath, err := manifest.GetComponentPath(identity, "OS"); err == nil {
		cached, ephemeral, err := arc.ExtractCached(ctx, osPath, sess.CacheDir, nil)
		if err != nil {
			log.Infof("restore: failed to cache root filesystem image: %v", err)
		} else {
			log.Debugf("restore: root filesystem image cached at %s", cached)
			if ephemeral {
				defer os.Remove(cached)
			}
		}
	}

	ticketBinary, err := ticket.EncodeBinary()
	if err != nil {
		return nil, fmt.Errorf("restore: encode ticket: %w", err)
	}

	if err := e.transition(ctx, arc, identity, vi.BuildMajor, ticket, ticketBinary, sess.ProductType, cfg); err != nil {
		return nil, err
	}

	return &Outcome{Identity: identity, Custom: custom}, nil
}

// personalizeComponents stitches the ticket's blob into every component
// named in identity's Manifest dictionary, per spec.md §4.6. Components the
// archive doesn't carry a payload for are skipped; a stitch failure for one
// component does not abort the others. If filter is non-empty, only the
// named components are stitched.
func (e *Engine) personalizeComponents(ctx context.Context, arc Archive, identity *manifest.Identity, ticket *plist.Value, debugDir string, filter []string) error {
	manifestNode := identity.Root().Get("Manifest")
	if manifestNode == nil {
		return fmt.Errorf("restore: identity has no Manifest dictionary")
	}
	allow := make(map[string]bool, len(filter))
	for _, c := range filter {
		allow[c] = true
	}
	var firstErr error
	for _, component := range manifestNode.Keys() {
		if len(allow) > 0 && !allow[component] {
			continue
		}
		path, err := manifest.GetComponentPath(identity, component)
		if err != nil {
			continue
		}
		payload, err := arc.ExtractToMemory(path)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if _, err := personalize.Personalize(ctx, ticket, component, payload, debugDir); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// resolveIdentity picks the Build Identity to restore with: a fresh Erase
// identity, or — in re-restore mode — whichever variant the Re-restore
// Classifier determines the cached ticket actually authorizes.
func (e *Engine) resolveIdentity(ctx context.Context, arc Archive, m *manifest.Manifest, sess *session.Session, cfg Config) (*manifest.Identity, bool, error) {
	initial, err := m.GetIdentityByModelBehavior(sess.Model, "Erase")
	if err != nil {
		return nil, false, err
	}
	if !sess.Rerestore {
		return initial, false, nil
	}

	vi, err := m.GetVersionInfo()
	if err != nil {
		return nil, false, err
	}
	key := tss.CacheKey{
		ECID:                sess.ECID,
		ProductType:         sess.ProductType,
		ProductVersion:      vi.ProductVersion,
		ProductBuildVersion: vi.ProductBuildVersion,
	}
	cached, err := e.TSS.Fetch(ctx, tss.ModeRerestore, key, sess.CacheDir, &tss.Request{
		ECID:     sess.ECID,
		Identity: initial,
	})
	if err != nil {
		return nil, false, fmt.Errorf("restore: re-restore requires a cached or archived ticket: %w", err)
	}
	ticketBytes, err := cached.EncodeBinary()
	if err != nil {
		return nil, false, err
	}

	result, err := rerestore.Classify(ticketBytes, m, sess.Model, initial, func(path string) ([]byte, error) {
		return arc.ExtractToMemory(path)
	})
	if err != nil {
		return nil, false, err
	}
	return result.Identity, result.Custom, nil
}

// compareBaseband runs the Baseband Resolver against cfg.ReferenceManifest,
// logging the outcome. A mismatch is never fatal: the session proceeds
// with the archive's own baseband firmware.
func (e *Engine) compareBaseband(ctx context.Context, identity *manifest.Identity, productType string, cfg Config) {
	log := logger.FromContext(ctx)
	localBB := identity.Root().Path("Manifest", "BasebandFirmware")
	if localBB == nil {
		return
	}
	refIdentity, err := baseband.ResolveReferenceIdentity(cfg.ReferenceManifest, productType, identity.RestoreBehavior())
	if err != nil {
		log.Infof("restore: baseband reference resolution failed: %v", err)
		return
	}
	refBB := refIdentity.Root().Path("Manifest", "BasebandFirmware")
	if refBB == nil {
		return
	}
	match, err := baseband.Compare(localBB, refBB)
	if err != nil {
		log.Infof("restore: baseband comparison failed: %v", err)
		return
	}
	if !match.OK {
		log.Infof("restore: baseband firmware differs from reference at %s; using archive's own firmware", match.MismatchKey)
	}
}

// transition drives the device from its current mode through to Restore.
// The iBEC payload and its ticket blob are looked up directly here (rather
// than reused from personalizeComponents) since EnterRecovery performs its
// own stitch, matching idevicerestore.c's recovery_send_ibec/iBEC handling.
func (e *Engine) transition(ctx context.Context, arc Archive, identity *manifest.Identity, buildMajor int, ticket *plist.Value, ticketBinary []byte, productType string, cfg Config) error {
	log := logger.FromContext(ctx)

	current := e.Controller.Mode()
	if current == deviceio.ModeWTF {
		sess := session.FromContext(ctx)
		source, err := e.Controller.ResolveWTFLoaderSource(ctx, sess.CacheDir, func(cpid uint32) []byte {
			path := fmt.Sprintf("Firmware/dfu/WTF.s5l%04xxall.RELEASE.dfu", cpid)
			data, err := arc.ExtractToMemory(path)
			if err != nil {
				return nil
			}
			return data
		})
		if err != nil {
			log.Infof("restore: resolving WTF loader source: %v", err)
		}
		if err := e.Controller.WTFBootstrap(ctx, productType, source); err != nil {
			return err
		}
		current = e.Controller.Mode()
	}

	if current == deviceio.ModeNormal || current == deviceio.ModeDFU {
		var ibecPayload, ibecBlob []byte
		if path, err := manifest.GetComponentPath(identity, "iBEC"); err == nil {
			ibecPayload, _ = arc.ExtractToMemory(path)
		}
		if blob := ticket.Get("iBEC"); blob != nil && blob.Kind() == plist.KindData {
			ibecBlob = blob.Data()
		}
		if err := e.Controller.EnterRecovery(ctx, buildMajor, ticketBinary, ibecPayload, ibecBlob); err != nil {
			if current == deviceio.ModeNormal {
				return &RecoveryFromNormalError{Cause: err}
			}
			return err
		}
	}

	if err := e.Controller.WaitForStage2(ctx); err != nil {
		return err
	}

	if err := e.Controller.EnterRestore(ctx); err != nil {
		return err
	}

	log.Infof("restore: device entered restore mode")
	return nil
}

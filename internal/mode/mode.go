// Copyright 2026 The idevicererestore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package mode implements the Mode Controller: tracking a device across
// its five mutually exclusive boot states and driving the transitions
// between them. Grounded on the teacher's botanist/pave.go and
// botanist/boot.go mode-transition/poll-loop structure, generalized from
// Fuchsia's paver states to idevicerestore.c's
// idevice_event_cb/dfu_wait/recovery_enter_restore transition sequence.
package mode

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Trsvsr/idevicererestore/internal/deviceio"
	"github.com/Trsvsr/idevicererestore/internal/logger"
	"github.com/Trsvsr/idevicererestore/internal/personalize"
	"github.com/Trsvsr/idevicererestore/internal/retry"
	"github.com/Trsvsr/idevicererestore/internal/versioncat"
)

// StuckError reports that the device failed to leave a mode within the
// bounded wait.
type StuckError struct {
	From string
}

func (e *StuckError) Error() string {
	return fmt.Sprintf("mode: device stuck in %s", e.From)
}

// LoaderStuckError reports that the second-stage loader reported a fatal
// IBFL value.
type LoaderStuckError struct {
	IBFL uint32
}

func (e *LoaderStuckError) Error() string {
	return fmt.Sprintf("mode: second-stage loader failed (IBFL=0x%02x)", e.IBFL)
}

// pollAttempts and pollInterval bound the polling loops used throughout
// this package ("≈ 20 polls at 500 ms"). Declared as variables, rather
// than constants, so tests can shrink them instead of waiting out the
// full real-world interval.
var (
	pollAttempts = 20
	pollInterval = 500 * time.Millisecond
)

// Drivers bundles the sub-drivers the controller dispatches to for each
// mode. A nil entry means that mode cannot be probed/acted on.
type Drivers struct {
	Recovery deviceio.RecoveryDriver
	DFU      deviceio.DFUDriver
	Normal   deviceio.NormalDriver
	Restore  deviceio.RestoreDriver
}

// Controller tracks device mode and drives the transitions between DFU,
// WTF, Recovery, Normal, and Restore.
type Controller struct {
	drivers Drivers
	current deviceio.Mode

	// httpClient fetches a WTF loader URL, when neither the archive nor a
	// hard-coded fallback is available.
	httpClient *http.Client
}

// NewController constructs a Controller over the given sub-drivers.
func NewController(drivers Drivers, httpClient *http.Client) *Controller {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Controller{drivers: drivers, httpClient: httpClient}
}

// Mode returns the most recently detected mode.
func (c *Controller) Mode() deviceio.Mode { return c.current }

// Detect probes, in order, Recovery, DFU, Normal, Restore, and returns the
// first mode that responds. Idempotent.
func (c *Controller) Detect(ctx context.Context) (deviceio.Mode, error) {
	checks := []struct {
		mode   deviceio.Mode
		driver deviceio.ModeDriver
	}{
		{deviceio.ModeRecovery, c.drivers.Recovery},
		{deviceio.ModeDFU, c.drivers.DFU},
		{deviceio.ModeNormal, c.drivers.Normal},
		{deviceio.ModeRestore, c.drivers.Restore},
	}
	for _, check := range checks {
		if check.driver == nil {
			continue
		}
		ok, err := check.driver.CheckMode(ctx)
		if err != nil {
			logger.FromContext(ctx).Debugf("mode: probe for %s failed: %v", check.mode, err)
			continue
		}
		if ok {
			c.current = check.mode
			return check.mode, nil
		}
	}
	c.current = deviceio.ModeUnknown
	return deviceio.ModeUnknown, nil
}

// EnsureExitRestore reboots the device and re-detects until it leaves
// Restore mode, failing with StuckError if it does not within the bounded
// poll.
func (c *Controller) EnsureExitRestore(ctx context.Context) error {
	mode, err := c.Detect(ctx)
	if err != nil {
		return err
	}
	if mode != deviceio.ModeRestore {
		return nil
	}
	if c.drivers.Restore == nil {
		return fmt.Errorf("mode: no restore driver configured to exit Restore mode")
	}
	if err := c.drivers.Restore.SendReset(ctx); err != nil {
		return fmt.Errorf("mode: reset from Restore: %w", err)
	}

	backoff := retry.WithMaxRetries(retry.NewConstantBackoff(pollInterval), pollAttempts)
	err = retry.Retry(ctx, backoff, func() error {
		mode, err := c.Detect(ctx)
		if err != nil {
			return err
		}
		if mode == deviceio.ModeRestore {
			return fmt.Errorf("mode: still in Restore")
		}
		return nil
	})
	if err != nil {
		return &StuckError{From: "Restore"}
	}
	return nil
}

// currentDriver returns the ModeDriver backing the most recently detected
// mode, or nil if none is configured or no mode has been detected.
func (c *Controller) currentDriver() deviceio.ModeDriver {
	switch c.current {
	case deviceio.ModeRecovery:
		return c.drivers.Recovery
	case deviceio.ModeDFU:
		return c.drivers.DFU
	case deviceio.ModeNormal:
		return c.drivers.Normal
	case deviceio.ModeRestore:
		return c.drivers.Restore
	default:
		return nil
	}
}

// IsImage4Supported reports the signed-image-format bit of the currently
// detected device, per spec.md §3's invariant that a session never
// proceeds against a device where this bit is set.
func (c *Controller) IsImage4Supported(ctx context.Context) (bool, error) {
	driver := c.currentDriver()
	if driver == nil {
		return false, fmt.Errorf("mode: no driver configured for mode %s", c.current)
	}
	return driver.IsImage4Supported(ctx)
}

// LoaderSource supplies a WTF stage-0 loader for a product, in priority
// order: embedded in the user's archive, discovered via a version
// catalogue URL, or a hard-coded fallback URL.
type LoaderSource struct {
	// Embedded is the loader bytes from the user's archive, if present.
	Embedded []byte
	// CatalogueURL is a URL discovered in the global version catalogue.
	CatalogueURL string
	// FallbackURL is a hard-coded last resort.
	FallbackURL string
}

// ResolveWTFLoaderSource assembles a LoaderSource for product by reading
// the device's CPID from DFU, consulting the cached version catalogue for
// a per-CPID loader URL, and falling back to the hard-coded URL when the
// catalogue itself cannot be loaded. archiveLookup, if non-nil, is tried
// first and supplies the Embedded field when the user's own archive
// already carries a matching WTF loader.
func (c *Controller) ResolveWTFLoaderSource(ctx context.Context, cacheDir string, archiveLookup func(cpid uint32) []byte) (LoaderSource, error) {
	if c.drivers.DFU == nil {
		return LoaderSource{}, fmt.Errorf("mode: no DFU driver configured to read CPID")
	}
	cpid, err := c.drivers.DFU.CPID(ctx)
	if err != nil {
		return LoaderSource{}, fmt.Errorf("mode: read CPID: %w", err)
	}

	source := LoaderSource{FallbackURL: versioncat.HardCodedWTFURL}
	if archiveLookup != nil {
		source.Embedded = archiveLookup(cpid)
	}

	cat, err := versioncat.Load(ctx, c.httpClient, cacheDir)
	if err != nil {
		logger.FromContext(ctx).Infof("mode: version catalogue unavailable, using hard-coded WTF fallback: %v", err)
		return source, nil
	}
	source.CatalogueURL = cat.WTFURL(cpid)
	return source, nil
}

// WTFBootstrap fetches a WTF stage-0 loader for product and ships it via
// DFU. On completion the device re-enumerates in DFU; the controller
// updates its mode accordingly.
func (c *Controller) WTFBootstrap(ctx context.Context, product string, source LoaderSource) error {
	if c.drivers.DFU == nil {
		return fmt.Errorf("mode: no DFU driver configured for WTF bootstrap")
	}

	loader := source.Embedded
	if len(loader) == 0 {
		url := source.CatalogueURL
		if url == "" {
			url = source.FallbackURL
		}
		if url == "" {
			return fmt.Errorf("mode: no WTF loader available for %s: %w", product, versioncat.ErrWTFSourceExhausted)
		}
		fetched, err := c.fetchLoader(ctx, url)
		if err != nil && url != source.FallbackURL && source.FallbackURL != "" {
			logger.FromContext(ctx).Infof("mode: fetch WTF loader from %s failed, trying hard-coded fallback: %v", url, err)
			fetched, err = c.fetchLoader(ctx, source.FallbackURL)
		}
		if err != nil {
			return fmt.Errorf("mode: fetch WTF loader: %w: %w", versioncat.ErrWTFSourceExhausted, err)
		}
		loader = fetched
	}

	if err := c.drivers.DFU.SendBuffer(ctx, loader); err != nil {
		return fmt.Errorf("mode: send WTF loader: %w", err)
	}

	mode, err := c.Detect(ctx)
	if err != nil {
		return err
	}
	if mode != deviceio.ModeDFU {
		logger.FromContext(ctx).Debugf("mode: device did not re-enumerate in DFU after WTF bootstrap (now %s)", mode)
	}
	return nil
}

func (c *Controller) fetchLoader(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EnterRecovery drives the device from Normal or DFU into Recovery. From
// Normal it asks the Normal driver to enter Recovery; no ticket is sent.
// From DFU with build_major > 8, a pre-flight ticket send is attempted
// first (its failure is non-fatal), then an iBEC personalized with
// ibecBlob is sent.
func (c *Controller) EnterRecovery(ctx context.Context, buildMajor int, ticket, ibecPayload, ibecBlob []byte) error {
	log := logger.FromContext(ctx)

	switch c.current {
	case deviceio.ModeNormal:
		if c.drivers.Normal == nil {
			return fmt.Errorf("mode: no Normal driver configured")
		}
		if err := c.drivers.Normal.EnterRecovery(ctx); err != nil {
			return fmt.Errorf("mode: enter recovery from Normal: %w", err)
		}
	case deviceio.ModeDFU:
		if c.drivers.DFU == nil {
			return fmt.Errorf("mode: no DFU driver configured")
		}
		if buildMajor > 8 && c.drivers.Recovery != nil {
			if err := c.drivers.Recovery.SendTicket(ctx, ticket); err != nil {
				log.Infof("mode: pre-flight ticket send failed (non-fatal): %v", err)
			}
		}
		personalizedIBEC, err := personalize.Stitch("iBEC", ibecPayload, ibecBlob)
		if err != nil {
			return fmt.Errorf("mode: personalize iBEC: %w", err)
		}
		if err := c.drivers.DFU.SendIBEC(ctx, personalizedIBEC); err != nil {
			return fmt.Errorf("mode: send iBEC: %w", err)
		}
	default:
		return fmt.Errorf("mode: cannot enter recovery from %s", c.current)
	}
	return nil
}

// ibflSuccess and ibflFatal enumerate the second-stage loader status
// values named in spec.md §4.1's IBFL table.
var (
	ibflSuccess = map[uint32]bool{0x02: true, 0x1A: true}
	ibflFatal   = map[uint32]bool{0x03: true, 0x1B: true}
)

// WaitForStage2 polls mode once and then up to pollAttempts more times,
// pollInterval apart. When
// Recovery re-appears, it inspects the device's IBFL field and maps it to
// success, fatal failure, or (for any other value) a logged success.
func (c *Controller) WaitForStage2(ctx context.Context) error {
	if c.drivers.Recovery == nil {
		return fmt.Errorf("mode: no Recovery driver configured")
	}
	log := logger.FromContext(ctx)

	var ibfl uint32
	backoff := retry.WithMaxRetries(retry.NewConstantBackoff(pollInterval), pollAttempts)
	err := retry.Retry(ctx, backoff, func() error {
		mode, err := c.Detect(ctx)
		if err != nil {
			return err
		}
		if mode != deviceio.ModeRecovery {
			return fmt.Errorf("mode: recovery not yet re-appeared")
		}
		v, err := c.drivers.Recovery.IBFL(ctx)
		if err != nil {
			return err
		}
		ibfl = v
		return nil
	})
	if err != nil {
		return &StuckError{From: "stage-2 load"}
	}

	switch {
	case ibflSuccess[ibfl]:
		return nil
	case ibflFatal[ibfl]:
		return &LoaderStuckError{IBFL: ibfl}
	default:
		log.Infof("mode: unrecognized IBFL 0x%02x, treating as success", ibfl)
		return nil
	}
}

// EnterRestore sends the restore-enter command bundle from Recovery mode.
func (c *Controller) EnterRestore(ctx context.Context) error {
	if c.current != deviceio.ModeRecovery {
		return fmt.Errorf("mode: cannot enter restore from %s", c.current)
	}
	if c.drivers.Recovery == nil {
		return fmt.Errorf("mode: no Recovery driver configured")
	}
	if err := c.drivers.Recovery.EnterRestore(ctx); err != nil {
		return fmt.Errorf("mode: enter restore: %w", err)
	}
	c.current = deviceio.ModeRestore
	return nil
}

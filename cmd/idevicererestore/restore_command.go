// Copyright 2026 The idevicererestore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/Trsvsr/idevicererestore/internal/command"
	"github.com/Trsvsr/idevicererestore/internal/ipsw"
	"github.com/Trsvsr/idevicererestore/internal/logger"
	"github.com/Trsvsr/idevicererestore/internal/manifest"
	"github.com/Trsvsr/idevicererestore/internal/restore"
	"github.com/Trsvsr/idevicererestore/internal/session"
	"github.com/Trsvsr/idevicererestore/internal/versioncat"
)

// exitUsageError, exitDeviceTransition, and exitRecoveryFromNormal are the
// negative exit statuses spec.md assigns a fixed meaning, distinct from the
// subcommands package's own ExitSuccess/ExitUsageError/ExitFailure.
const (
	exitUsageError         subcommands.ExitStatus = -1
	exitDeviceTransition   subcommands.ExitStatus = -2
	exitRecoveryFromNormal subcommands.ExitStatus = -5
)

// RestoreCommand is a Command implementation for restoring a single
// attached device from an IPSW archive.
type RestoreCommand struct {
	debug       bool
	rerestore   bool
	shshOnly    bool
	latest      bool
	cacheDir    string
	ecid        uint64
	productType string
	model       string

	// referenceManifest, if set, names a second Build Manifest to compare
	// the chosen identity's baseband firmware against.
	referenceManifest string

	// components, if non-empty, restricts personalization to the named
	// Manifest components instead of stitching every component the
	// archive carries.
	components command.StringsFlag
}

func (*RestoreCommand) Name() string { return "restore" }

func (*RestoreCommand) Usage() string {
	return `
idevicererestore restore [flags...] <IPSW>
idevicererestore restore [flags...] -latest -product-type=<type>

flags:
`
}

func (*RestoreCommand) Synopsis() string {
	return "restores an attached device from an IPSW archive"
}

func (r *RestoreCommand) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&r.debug, "debug", false, "enable verbose logging and retain personalized components on disk")
	f.BoolVar(&r.rerestore, "rerestore", false, "restore using a previously saved ticket rather than requesting a fresh one")
	f.BoolVar(&r.shshOnly, "shsh-only", false, "save a ticket to the cache and exit without touching the device")
	f.BoolVar(&r.latest, "latest", false, "resolve and restore the latest public firmware for --product-type instead of a positional IPSW")
	f.StringVar(&r.cacheDir, "cache-dir", "", "root directory for the ticket and filesystem cache")
	f.Uint64Var(&r.ecid, "ecid", 0, "the device's ECID; required since this command does not probe for it")
	f.StringVar(&r.productType, "product-type", "", "the device's product type, e.g. iPhone5,2 (required)")
	f.StringVar(&r.model, "model", "", "the device's hardware model, e.g. n61ap (required)")
	f.StringVar(&r.referenceManifest, "reference-manifest", "", "path to a Build Manifest to compare baseband firmware against")
	f.Var(&r.components, "component", "restrict personalization to this Manifest component; may be repeated")
}

// usageError wraps a failure that belongs to argument parsing or archive
// shape, rather than to the device session itself, so Execute can tell it
// apart from a failure returned by engine.Run.
type usageError struct{ cause error }

func (e *usageError) Error() string { return e.cause.Error() }
func (e *usageError) Unwrap() error { return e.cause }

// parseManifest extracts and parses BuildManifest.plist from an already
// opened archive.
func (r *RestoreCommand) parseManifest(arc *ipsw.Archive) (*manifest.Manifest, error) {
	raw, err := arc.ExtractToMemory("BuildManifest.plist")
	if err != nil {
		return nil, &usageError{fmt.Errorf("extract BuildManifest.plist: %w", err)}
	}
	m, err := manifest.Parse(raw)
	if err != nil {
		return nil, &usageError{err}
	}
	return m, nil
}

func (r *RestoreCommand) loadManifest(path string) (*ipsw.Archive, *manifest.Manifest, error) {
	arc, err := ipsw.Open(path)
	if err != nil {
		return nil, nil, &usageError{err}
	}
	m, err := r.parseManifest(arc)
	if err != nil {
		arc.Close()
		return nil, nil, err
	}
	return arc, m, nil
}

// loadLatestManifest resolves the latest public firmware URL for
// r.productType via the version catalogue, then opens it as a partial-zip
// remote archive: only the central directory and BuildManifest.plist are
// fetched, not the whole IPSW.
func (r *RestoreCommand) loadLatestManifest(ctx context.Context) (*ipsw.Archive, *manifest.Manifest, error) {
	url, err := versioncat.ResolveLatestFirmwareURL(ctx, nil, r.cacheDir, r.productType)
	if err != nil {
		return nil, nil, &usageError{fmt.Errorf("resolve latest firmware for %s: %w", r.productType, err)}
	}
	arc, err := ipsw.OpenRemote(ctx, nil, url)
	if err != nil {
		return nil, nil, &usageError{err}
	}
	m, err := r.parseManifest(arc)
	if err != nil {
		arc.Close()
		return nil, nil, err
	}
	return arc, m, nil
}

func (r *RestoreCommand) execute(ctx context.Context, args []string) error {
	if r.productType == "" || r.model == "" {
		return &usageError{fmt.Errorf("--product-type and --model are both required")}
	}
	if r.ecid == 0 {
		return &usageError{fmt.Errorf("--ecid is required")}
	}

	var arc *ipsw.Archive
	var m *manifest.Manifest
	var err error
	switch {
	case r.latest:
		if len(args) != 0 {
			return &usageError{fmt.Errorf("--latest does not take a positional IPSW argument")}
		}
		arc, m, err = r.loadLatestManifest(ctx)
	case len(args) == 1:
		arc, m, err = r.loadManifest(args[0])
	default:
		return &usageError{fmt.Errorf("expected exactly one positional IPSW argument, got %d", len(args))}
	}
	if err != nil {
		return err
	}
	defer arc.Close()

	var cfg restore.Config
	if r.referenceManifest != "" {
		refArc, refManifest, err := r.loadManifest(r.referenceManifest)
		if err != nil {
			return err
		}
		defer refArc.Close()
		cfg.ReferenceManifest = refManifest
	}
	cfg.ComponentFilter = []string(r.components)

	sess := &session.Session{
		Options: session.Options{
			Debug:     r.debug,
			Rerestore: r.rerestore,
			ShshOnly:  r.shshOnly,
			CacheDir:  r.cacheDir,
		},
		ECID:        r.ecid,
		ProductType: r.productType,
		Model:       r.model,
	}
	ctx = session.WithSession(ctx, sess)

	engine, err := restore.NewEngine(nil)
	if err != nil {
		return fmt.Errorf("open device transports: %w", err)
	}

	outcome, err := engine.Run(ctx, arc, m, cfg)
	if err != nil {
		return err
	}

	logger.Infof(ctx, "restore: %s complete for %s (%s)", outcome.Identity.RestoreBehavior(), r.productType, r.model)
	return nil
}

func (r *RestoreCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	err := r.execute(ctx, f.Args())
	if err == nil {
		return subcommands.ExitSuccess
	}
	logger.Errorf(ctx, "%v", err)
	switch err.(type) {
	case *usageError:
		return exitUsageError
	case *restore.RecoveryFromNormalError:
		return exitRecoveryFromNormal
	default:
		return exitDeviceTransition
	}
}

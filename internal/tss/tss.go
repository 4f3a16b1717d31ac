// Copyright 2026 The idevicererestore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package tss assembles and submits Ticket Signing Server requests, caches
// tickets under a local SHSH directory, and applies the restore-variant
// fixups the server is known to omit. Grounded on idevicerestore.c's
// get_tss_response()/tss_request_new() request-dict assembly and on the
// teacher's net/http request-building convention in
// botanist/power/amt/amt.go, replacing its SOAP payload with a plist body.
package tss

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/Trsvsr/idevicererestore/internal/logger"
	"github.com/Trsvsr/idevicererestore/internal/manifest"
	"github.com/Trsvsr/idevicererestore/internal/plist"
)

// TicketUnavailable reports that a signing server rejected the request or
// returned a response that could not be parsed as a ticket. Wrapped into
// the errors Fetch and submit return, so callers can check with
// errors.Is(err, tss.TicketUnavailable).
var TicketUnavailable = errors.New("tss: ticket unavailable")

const (
	// vendorEndpoint is the vendor's live signing server.
	vendorEndpoint = "http://gs.apple.com/TSS/controller?action=2"
	// communityEndpoint is a community archive known to hold expired
	// tickets, consulted only in re-restore mode on a local cache miss.
	communityEndpoint = "http://cydia.saurik.com/TSS/controller?action=2"
)

// Request is the set of inputs used to assemble a TSS request dictionary.
type Request struct {
	ECID             uint64
	ApNonce          []byte
	SepNonce         []byte
	SupportsImg4     bool
	Identity         *manifest.Identity
	Components       []string
	Preflight        *Preflight
}

// Preflight carries the baseband identifiers reported by the device in
// Normal mode, remapped into Bb-prefixed request tags.
type Preflight struct {
	Nonce        []byte
	ChipID       int64
	CertID       int64
	ChipSerialNo int64
}

// BuildRequest assembles the TSS request dictionary per spec.md §4.4: the
// device identity tags, the identity's common/ap/img3 component tags copied
// verbatim, and (Normal mode only) the baseband tags.
func BuildRequest(req *Request) (*plist.Value, error) {
	d := plist.NewDict()
	d.Set("ApECID", plist.NewInteger(int64(req.ECID)))
	if len(req.ApNonce) > 0 {
		d.Set("ApNonce", plist.NewData(req.ApNonce))
	}
	if len(req.SepNonce) > 0 {
		d.Set("ApSepNonce", plist.NewData(req.SepNonce))
	}
	d.Set("ApProductionMode", plist.NewBool(true))
	d.Set("ApSupportsImg4", plist.NewBool(req.SupportsImg4))

	for _, component := range req.Components {
		meta, err := manifest.ComponentMetadata(req.Identity, component)
		if err != nil {
			// Not every component need appear in every identity; skip
			// silently, mirroring the reference tool's per-component
			// tss_request_add_*_tag functions which no-op on a missing
			// manifest entry.
			continue
		}
		d.Set(component, meta)
	}

	if req.Preflight != nil {
		if len(req.Preflight.Nonce) > 0 {
			d.Set("BbNonce", plist.NewData(req.Preflight.Nonce))
		}
		d.Set("BbChipID", plist.NewInteger(req.Preflight.ChipID))
		d.Set("BbGoldCertId", plist.NewInteger(req.Preflight.CertID))
		d.Set("BbSNUM", plist.NewInteger(req.Preflight.ChipSerialNo))
	}

	return d, nil
}

// Mode selects which endpoint(s) a Fetch call consults.
type Mode int

const (
	// ModeNormal always uses the vendor endpoint.
	ModeNormal Mode = iota
	// ModeRerestore consults the local cache first, then the community
	// endpoint on a miss, then falls back to the vendor endpoint for any
	// subsequent request in the same session.
	ModeRerestore
)

// CacheKey identifies a cached ticket by the tuple the cache is keyed on.
type CacheKey struct {
	ECID                uint64
	ProductType         string
	ProductVersion      string
	ProductBuildVersion string
}

// path returns the cache file path for key under cacheDir.
func (k CacheKey) path(cacheDir string) string {
	name := fmt.Sprintf("%d-%s-%s-%s.shsh", k.ECID, k.ProductType, k.ProductVersion, k.ProductBuildVersion)
	return filepath.Join(cacheDir, "shsh", name)
}

// Client submits and caches TSS tickets.
type Client struct {
	httpClient *http.Client

	// usedCommunity records whether a Fetch in Rerestore mode already hit
	// the community endpoint this session; subsequent requests are
	// directed back at the vendor endpoint per spec.md §4.4.
	usedCommunity bool
}

// NewClient constructs a Client using the given HTTP client, or
// http.DefaultClient if nil.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient}
}

// Fetch acquires a ticket for req, consulting the local cache and community
// endpoint first when mode is ModeRerestore.
func (c *Client) Fetch(ctx context.Context, mode Mode, key CacheKey, cacheDir string, req *Request) (*plist.Value, error) {
	log := logger.FromContext(ctx)

	if mode == ModeRerestore && !c.usedCommunity {
		if ticket, err := loadCached(key, cacheDir); err == nil {
			log.Infof("tss: using cached ticket for %s", key.path(cacheDir))
			return ticket, nil
		}
	}

	reqDict, err := BuildRequest(req)
	if err != nil {
		return nil, err
	}

	endpoint := vendorEndpoint
	if mode == ModeRerestore && !c.usedCommunity {
		endpoint = communityEndpoint
	}

	ticket, err := c.submit(ctx, endpoint, reqDict)
	if err != nil {
		if mode == ModeRerestore && endpoint == communityEndpoint {
			return nil, fmt.Errorf("tss: community endpoint fetch failed: %w", err)
		}
		return nil, err
	}
	if endpoint == communityEndpoint {
		c.usedCommunity = true
	}

	applyFixups(ticket)
	return ticket, nil
}

// submit POSTs reqDict as an XML property list to endpoint and decodes the
// response.
func (c *Client) submit(ctx context.Context, endpoint string, reqDict *plist.Value) (*plist.Value, error) {
	body, err := reqDict.EncodeXML()
	if err != nil {
		return nil, fmt.Errorf("tss: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tss: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "text/xml; charset=\"utf-8\"")
	httpReq.Header.Set("Expect", "")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tss: request to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tss: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tss: server %s returned %d: %w", endpoint, resp.StatusCode, TicketUnavailable)
	}

	ticket, err := parseControllerResponse(respBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", TicketUnavailable, err)
	}
	return ticket, nil
}

// parseControllerResponse extracts the embedded property list from the TSS
// controller's "STATUS=0&MESSAGE=SUCCESS&REQUEST_STRING=<plist>" response
// format.
func parseControllerResponse(body []byte) (*plist.Value, error) {
	const marker = "REQUEST_STRING="
	idx := bytes.Index(body, []byte(marker))
	if idx < 0 {
		return nil, fmt.Errorf("tss: response missing %s marker", marker)
	}
	ticket, err := plist.Decode(body[idx+len(marker):])
	if err != nil {
		return nil, fmt.Errorf("tss: decode ticket: %w", err)
	}
	return ticket, nil
}

// applyFixups replaces RestoreLogo/RestoreDeviceTree/RestoreKernelCache
// with copies of AppleLogo/DeviceTree/KernelCache when the server returned
// them as empty dictionaries, compensating for servers that omit
// restore-variant blobs.
func applyFixups(ticket *plist.Value) {
	pairs := [][2]string{
		{"RestoreLogo", "AppleLogo"},
		{"RestoreDeviceTree", "DeviceTree"},
		{"RestoreKernelCache", "KernelCache"},
	}
	for _, pair := range pairs {
		restoreKey, sourceKey := pair[0], pair[1]
		restoreVal := ticket.Get(restoreKey)
		if restoreVal == nil || restoreVal.Kind() != plist.KindDict || restoreVal.Len() != 0 {
			continue
		}
		source := ticket.Get(sourceKey)
		if source == nil {
			continue
		}
		ticket.Set(restoreKey, source.Clone())
	}
}

// SaveOnly serializes ticket as a compact binary property list, gz-
// compresses it, and writes it under the cache path for key, refusing to
// overwrite an existing file.
func SaveOnly(key CacheKey, cacheDir string, ticket *plist.Value) error {
	path := key.path(cacheDir)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("tss: cache entry already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("tss: mkdir: %w", err)
	}

	binary, err := ticket.EncodeBinary()
	if err != nil {
		return fmt.Errorf("tss: encode ticket: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("tss: create %s: %w", tmp, err)
	}
	gw := gzip.NewWriter(f)
	if _, err := gw.Write(binary); err != nil {
		gw.Close()
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("tss: write %s: %w", tmp, err)
	}
	if err := gw.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("tss: close gzip writer: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("tss: close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("tss: publish %s: %w", path, err)
	}
	return nil
}

// loadCached loads and decompresses a cached ticket for key, returning an
// error if absent.
func loadCached(key CacheKey, cacheDir string) (*plist.Value, error) {
	path := key.path(cacheDir)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("tss: open gzip reader for %s: %w", path, err)
	}
	defer gr.Close()

	data, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("tss: read %s: %w", path, err)
	}
	return plist.Decode(data)
}

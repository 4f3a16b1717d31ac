// Copyright 2026 The idevicererestore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ipsw

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
)

// httpRangeReaderAt is an io.ReaderAt over a remote resource fetched via
// HTTP Range requests. archive/zip only ever calls ReadAt to read the
// central directory and the handful of entries a caller actually extracts,
// so this lets zip.NewReader operate against a remote IPSW without
// downloading the whole archive.
type httpRangeReaderAt struct {
	ctx        context.Context
	httpClient *http.Client
	url        string
}

func (r *httpRangeReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+int64(len(p))-1))
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent {
		return 0, fmt.Errorf("ipsw: range request to %s returned %d, want 206", r.url, resp.StatusCode)
	}
	return io.ReadFull(resp.Body, p)
}

// remoteSize determines a remote object's total size via a HEAD request,
// without which archive/zip.NewReader cannot locate the trailing central
// directory.
func remoteSize(ctx context.Context, httpClient *http.Client, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("ipsw: HEAD %s returned %d", url, resp.StatusCode)
	}
	if resp.ContentLength < 0 {
		return 0, fmt.Errorf("ipsw: %s did not report Content-Length", url)
	}
	return resp.ContentLength, nil
}

// OpenRemote opens a partial-zip reader over a remote IPSW at url: only its
// central directory and whichever entries a caller later extracts are
// fetched, so inspecting a BuildManifest.plist in a multi-gigabyte archive
// never requires downloading the whole thing.
func OpenRemote(ctx context.Context, httpClient *http.Client, url string) (*Archive, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	size, err := remoteSize(ctx, httpClient, url)
	if err != nil {
		return nil, fmt.Errorf("ipsw: determine size of %s: %w", url, err)
	}
	ra := &httpRangeReaderAt{ctx: ctx, httpClient: httpClient, url: url}
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("ipsw: open remote archive %s: %w", url, err)
	}
	index := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		index[f.Name] = f
	}
	return &Archive{path: url, index: index}, nil
}

// Copyright 2026 The idevicererestore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package ipsw provides random-access reads over a firmware archive (a
// ZIP-like container) and a filesystem cache for its large entries,
// grounded on the teacher's archive/tar-based CopyFile/OverwriteFileWithCopy
// rename-to-publish convention in botanist/fileutil.go, generalized from
// tar to the stdlib archive/zip reader this format actually requires.
package ipsw

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/Trsvsr/idevicererestore/internal/logger"
)

// ArchiveEntry reports that a named entry does not exist in an archive.
// Wrapped into the errors entry() returns, so callers can check with
// errors.Is(err, ipsw.ArchiveEntry).
var ArchiveEntry = errors.New("ipsw: no such archive entry")

// ProgressFunc reports extraction progress as bytes are streamed to disk.
// written is the cumulative byte count; total is the entry's uncompressed
// size (0 if unknown).
type ProgressFunc func(written, total int64)

// Archive is a read-only random-access reader over a firmware archive. A
// local archive opened via Open owns a file handle that must be released
// with Close; an archive opened via OpenRemote reads lazily over HTTP and
// Close is a no-op.
type Archive struct {
	path string
	zr   *zip.ReadCloser
	// index maps archive-relative path to its zip.File for O(1) lookup.
	index map[string]*zip.File
}

// Open opens the firmware archive at path for random access.
func Open(path string) (*Archive, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("ipsw: open %s: %w", path, err)
	}
	index := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		index[f.Name] = f
	}
	return &Archive{path: path, zr: zr, index: index}, nil
}

// Close releases the archive's underlying file handle. A no-op for an
// archive opened via OpenRemote.
func (a *Archive) Close() error {
	if a.zr == nil {
		return nil
	}
	return a.zr.Close()
}

// entry looks up a named entry, or returns an error if absent.
func (a *Archive) entry(path string) (*zip.File, error) {
	f, ok := a.index[path]
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s", ArchiveEntry, path, a.path)
	}
	return f, nil
}

// GetEntrySize returns the uncompressed size of a named entry, used to
// detect a stale cached filesystem image.
func (a *Archive) GetEntrySize(path string) (int64, error) {
	f, err := a.entry(path)
	if err != nil {
		return 0, err
	}
	return int64(f.UncompressedSize64), nil
}

// ExtractToMemory returns the fully decompressed bytes of a named entry.
func (a *Archive) ExtractToMemory(path string) ([]byte, error) {
	f, err := a.entry(path)
	if err != nil {
		return nil, err
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("ipsw: open entry %q: %w", path, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("ipsw: read entry %q: %w", path, err)
	}
	return data, nil
}

// ExtractToFile streams a named entry to dest, optionally reporting
// progress.
func (a *Archive) ExtractToFile(path, dest string, progress ProgressFunc) error {
	f, err := a.entry(path)
	if err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("ipsw: open entry %q: %w", path, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("ipsw: create %s: %w", dest, err)
	}
	defer out.Close()

	total := int64(f.UncompressedSize64)
	var written int64
	buf := make([]byte, 32*1024)
	for {
		n, rerr := rc.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return fmt.Errorf("ipsw: write %s: %w", dest, werr)
			}
			written += int64(n)
			if progress != nil {
				progress(written, total)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("ipsw: read entry %q: %w", path, rerr)
		}
	}
	return nil
}

// ExtractCached extracts the named entry into cacheDir/<name>, reusing an
// existing cached copy whose size matches the entry's uncompressed size.
// Concurrent callers are coordinated by an O_EXCL lock file adjacent to the
// target: a caller that loses the race extracts into a unique temporary
// path instead and gets ephemeral=true back, marking that path as theirs
// alone to remove once they're done with it; only the lock holder renames
// "<name>.extract" to "<name>" on success and shares the durable cache path
// with every other caller.
func (a *Archive) ExtractCached(ctx context.Context, path, cacheDir string, progress ProgressFunc) (dest string, ephemeral bool, err error) {
	log := logger.FromContext(ctx)
	name := filepath.Base(path)
	dest = filepath.Join(cacheDir, name)
	wantSize, err := a.GetEntrySize(path)
	if err != nil {
		return "", false, err
	}

	if fi, err := os.Stat(dest); err == nil && fi.Size() == wantSize {
		log.Debugf("ipsw: cache hit for %s", name)
		return dest, false, nil
	}

	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return "", false, fmt.Errorf("ipsw: mkdir %s: %w", cacheDir, err)
	}

	lockPath := dest + ".lock"
	lock, lockErr := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if lockErr != nil {
		// Another process holds the extraction; extract into a private,
		// ephemeral temporary path so this caller can still proceed.
		log.Debugf("ipsw: lock held for %s, extracting to a private path", name)
		tmp := filepath.Join(cacheDir, fmt.Sprintf("%s.%s.tmp", name, uuid.NewString()))
		if err := a.ExtractToFile(path, tmp, progress); err != nil {
			return "", false, err
		}
		return tmp, true, nil
	}
	defer func() {
		lock.Close()
		os.Remove(lockPath)
	}()

	extractPath := dest + ".extract"
	if err := a.ExtractToFile(path, extractPath, progress); err != nil {
		os.Remove(extractPath)
		return "", false, err
	}
	if err := os.Rename(extractPath, dest); err != nil {
		return "", false, fmt.Errorf("ipsw: publish %s: %w", dest, err)
	}
	log.Debugf("ipsw: extracted and cached %s", name)
	return dest, false, nil
}

// Copyright 2026 The idevicererestore Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package retry implements bounded retry loops with pluggable backoff, in
// the shape of the teacher's tools/retry package.
package retry

import (
	"context"
	"time"
)

// Stop signals to Retry that no further attempts should be made.
const Stop time.Duration = -1

// Backoff determines the wait interval between successive retries.
type Backoff interface {
	// Next returns the duration to wait before the next attempt, or Stop
	// if no further attempts should be made.
	Next() time.Duration
}

// ZeroBackoff retries immediately, forever.
type ZeroBackoff struct{}

// Next implements Backoff.
func (ZeroBackoff) Next() time.Duration { return 0 }

// ConstantBackoff waits a fixed interval between attempts, forever.
type ConstantBackoff struct {
	interval time.Duration
}

// NewConstantBackoff returns a Backoff that waits interval between attempts.
func NewConstantBackoff(interval time.Duration) *ConstantBackoff {
	return &ConstantBackoff{interval: interval}
}

// Next implements Backoff.
func (c *ConstantBackoff) Next() time.Duration { return c.interval }

// maxTriesBackoff wraps a Backoff, stopping after a bounded number of
// attempts.
type maxTriesBackoff struct {
	backoff Backoff
	tries   int
	max     int
}

// WithMaxRetries wraps backoff so that it stops after max calls to Next.
func WithMaxRetries(backoff Backoff, max int) Backoff {
	return &maxTriesBackoff{backoff: backoff, max: max}
}

// Next implements Backoff.
func (m *maxTriesBackoff) Next() time.Duration {
	if m.tries >= m.max {
		return Stop
	}
	m.tries++
	return m.backoff.Next()
}

// Retry calls fn repeatedly, per the schedule given by backoff, until fn
// returns nil, backoff signals Stop, or ctx is canceled. The last error
// returned by fn is returned, including when ctx is canceled.
func Retry(ctx context.Context, backoff Backoff, fn func() error) error {
	var err error
	for {
		err = fn()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return err
		default:
		}
		wait := backoff.Next()
		if wait == Stop {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(wait):
		}
	}
}

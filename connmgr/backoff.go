// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package connmgr

import (
	"math/rand"
	"time"
)

const (
	// baseBackoff is the delay before the first retry of a failed dial.
	baseBackoff = 1 * time.Second

	// maxBackoff caps the delay between retries of a persistently
	// failing address, per spec.md §4.5's retry policy.
	maxBackoff = 30 * time.Minute

	// jitterFraction is the +/- proportion of randomness mixed into
	// each backoff so that many peers retried in lockstep don't all
	// redial in the same instant.
	jitterFraction = 0.20
)

// backoffDuration returns the delay to wait before the (retry+1)'th
// connection attempt to an address, doubling per previous failure up
// to maxBackoff and jittered by +/- jitterFraction.
func backoffDuration(retry uint32) time.Duration {
	d := baseBackoff
	for i := uint32(0); i < retry && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}

	jitter := time.Duration(float64(d) * jitterFraction)
	if jitter <= 0 {
		return d
	}
	offset := time.Duration(rand.Int63n(int64(2*jitter))) - jitter
	d += offset
	if d < 0 {
		d = 0
	}
	return d
}

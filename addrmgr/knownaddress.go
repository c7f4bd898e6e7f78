// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"math"
	"time"

	"github.com/ndau-spv/spvcore/wire"
)

// Address quality thresholds used by isBad. These mirror the
// well-known btcsuite addrmgr constants: an address that fails any of
// them is considered unworthy of further connection attempts until it
// is refreshed by a fresh gossip or a successful dial.
const (
	numMissingDays = 30
	numRetries     = 3
	maxFailures    = 10
	minBadDays     = 7
)

// KnownAddress tracks a gossiped peer address together with our own
// connection history against it: how many times we've tried it, when
// we last tried and last succeeded, and whether it currently lives in
// the tried bucket.
type KnownAddress struct {
	na          *wire.NetAddress
	srcAddr     *wire.NetAddress
	attempts    int
	lastattempt time.Time
	lastsuccess time.Time
	tried       bool
	refs        int // number of new-bucket entries referencing this address
}

// NetAddress returns the wrapped network address.
func (ka *KnownAddress) NetAddress() *wire.NetAddress {
	return ka.na
}

// chance returns a probability in [0,1] that this address should be
// selected as the next connection attempt. Addresses tried recently,
// or tried many times, are penalized multiplicatively so the pool
// keeps cycling toward addresses we haven't already given a fair shot.
func (ka *KnownAddress) chance() float64 {
	c := 1.0

	lastAttempt := time.Since(ka.lastattempt)
	if lastAttempt < 0 {
		lastAttempt = 0
	}
	if lastAttempt < 10*time.Minute {
		c *= 0.01
	}

	c *= math.Pow(0.66, float64(ka.attempts))
	return c
}

// isBad flags an address as no longer worth attempting: advertised
// from the future, stale beyond numMissingDays, never once successful
// after numRetries attempts, or not successful in minBadDays with
// maxFailures or more attempts logged against it.
func (ka *KnownAddress) isBad() bool {
	if ka.lastattempt.After(time.Now().Add(-1 * time.Minute)) {
		return false
	}
	if ka.na.Timestamp.After(time.Now().Add(10 * time.Minute)) {
		return true
	}
	if ka.na.Timestamp.Before(time.Now().Add(-numMissingDays * 24 * time.Hour)) {
		return true
	}
	if ka.lastsuccess.IsZero() && ka.attempts >= numRetries {
		return true
	}
	if !ka.lastsuccess.After(time.Now().Add(-minBadDays*24*time.Hour)) &&
		ka.attempts >= maxFailures {
		return true
	}
	return false
}

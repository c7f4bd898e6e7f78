// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peergroup

import (
	"github.com/decred/dcrd/container/apbf"
	"github.com/decred/dcrd/lru"

	"github.com/ndau-spv/spvcore/peer"
)

// maxBannedAddresses bounds the misbehaving-address cache; once full,
// the least recently banned address is evicted to make room, the same
// trade PeerGroup accepts everywhere else it trusts bounded memory over
// perfect recall of history.
const maxBannedAddresses = 256

// seenInvElements and seenInvFPRate size the rolling filter of
// transaction hashes PeerGroup has already relayed or fetched, used to
// avoid re-requesting the same transaction from every peer that
// announces it.
const (
	seenInvElements = 4096
	seenInvFPRate   = 0.0001
)

// newMisbehaviorCache returns the address ban cache backing onConnect's
// dial filtering.
func newMisbehaviorCache() *lru.Cache[string] {
	return lru.New[string](maxBannedAddresses)
}

// newSeenInvFilter returns the age-partitioned bloom filter backing
// handleInv's inventory dedup.
func newSeenInvFilter() *apbf.Filter {
	return apbf.NewFilter(seenInvElements, seenInvFPRate)
}

// handleMisbehavior is posted from peer.Config's OnMisbehavior hook: it
// bans p's address from future dialing. ReportMisbehavior has already
// closed the socket by the time this runs; banning only affects
// addresses connmgr considers later.
func (pg *PeerGroup) handleMisbehavior(p *peer.Peer, err error) {
	log.Warnf("banning %s: %v", p.Addr(), err)
	pg.banned.Add(p.Addr())
}

// isBanned reports whether addr misbehaved recently enough that
// getAddress should skip offering it back to connmgr.
func (pg *PeerGroup) isBanned(addr string) bool {
	return pg.banned.Contains(addr)
}

// markInvSeen records hash as delivered so a future announcement of the
// same transaction from another peer is not re-requested.
func (pg *PeerGroup) markInvSeen(hash [32]byte) {
	pg.seenInv.Add(hash[:])
}

// invSeen reports whether hash has already been requested or relayed.
func (pg *PeerGroup) invSeen(hash [32]byte) bool {
	return pg.seenInv.Contains(hash[:])
}

// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package checkpoints consumes a network's trusted (height, hash) seed
// points, letting a newly started BlockChain skip full header validation
// for anything at or below the most recent checkpoint it has reached.
package checkpoints

import (
	"sort"

	"github.com/ndau-spv/spvcore/chaincfg"
	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
)

// List returns net's checkpoints sorted by ascending height. The
// network's Params already store them in ascending order, but List
// re-sorts defensively since callers may hold a Params built by hand.
func List(net *chaincfg.Params) []chaincfg.Checkpoint {
	cps := make([]chaincfg.Checkpoint, len(net.Checkpoints))
	copy(cps, net.Checkpoints)
	sort.Slice(cps, func(i, j int) bool { return cps[i].Height < cps[j].Height })
	return cps
}

// Latest returns the highest checkpoint at or below height, and whether
// one exists. A header chain may trust everything up to and including
// this checkpoint's hash without further validation.
func Latest(net *chaincfg.Params, height int32) (chaincfg.Checkpoint, bool) {
	cps := List(net)
	var best chaincfg.Checkpoint
	found := false
	for _, cp := range cps {
		if cp.Height > height {
			break
		}
		best = cp
		found = true
	}
	return best, found
}

// Verify reports whether hash matches the checkpoint at height, if one
// is defined for that exact height. A mismatch here means the chain
// being validated forks away from the trusted history and must be
// rejected outright, regardless of cumulative proof-of-work.
func Verify(net *chaincfg.Params, height int32, hash chainhash.Hash) bool {
	for _, cp := range net.Checkpoints {
		if cp.Height == height {
			return *cp.Hash == hash
		}
	}
	return true
}

// NextAfter returns the lowest checkpoint strictly above height, and
// whether one exists. A BlockChain mid-header-sync uses this to know how
// far it can fast-forward header validation before it must resume
// checking proof-of-work and difficulty transitions block by block.
func NextAfter(net *chaincfg.Params, height int32) (chaincfg.Checkpoint, bool) {
	cps := List(net)
	for _, cp := range cps {
		if cp.Height > height {
			return cp, true
		}
	}
	return chaincfg.Checkpoint{}, false
}

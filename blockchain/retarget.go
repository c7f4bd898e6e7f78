// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"math/big"
	"time"

	"github.com/ndau-spv/spvcore/blockchain/standalone"
	"github.com/ndau-spv/spvcore/blockstore"
)

// calcNextRequiredBits returns the bits field a header extending
// parent must carry. At every RetargetInterval-th block, the target is
// recomputed from the timespan actually taken to mine the preceding
// window, clamped to within a factor of four of the intended span and
// to no easier than the network's maximum target. Between retarget
// boundaries the bits must stay the same as the parent's, except for
// networks with ReduceMinDifficulty, where a sufficiently stale tip
// resets difficulty to the network minimum.
func (b *BlockChain) calcNextRequiredBits(parent blockstore.StoredBlock, newBlockTime time.Time) (uint32, error) {
	nextHeight := parent.Height + 1

	if nextHeight%b.params.RetargetInterval != 0 {
		if b.params.ReduceMinDifficulty &&
			newBlockTime.After(parent.Header.Timestamp.Add(b.params.MinDiffReductionTime)) {
			return b.params.PowLimitBits, nil
		}
		if b.params.ReduceMinDifficulty {
			prev, err := b.findPrevNonReducedDifficulty(parent)
			if err != nil {
				return 0, err
			}
			return prev.Header.Bits, nil
		}
		return parent.Header.Bits, nil
	}

	firstHeight := nextHeight - b.params.RetargetInterval
	first, err := b.ancestorAtHeight(parent, firstHeight)
	if err != nil {
		return 0, err
	}

	actualTimespan := parent.Header.Timestamp.Sub(first.Header.Timestamp)
	adjustedTimespan := clampTimespan(actualTimespan, b.params.TargetTimespan)

	oldTarget := standalone.CompactToBig(parent.Header.Bits)
	newTarget := new(big.Int).Mul(oldTarget, big.NewInt(int64(adjustedTimespan/time.Second)))
	newTarget.Div(newTarget, big.NewInt(int64(b.params.TargetTimespan/time.Second)))

	if newTarget.Cmp(b.params.PowLimit) > 0 {
		newTarget = b.params.PowLimit
	}
	return standalone.BigToCompact(newTarget), nil
}

// clampTimespan bounds actual within [target/4, target*4], the classic
// retarget clamp that keeps difficulty from swinging more than 4x in
// either direction in a single window.
func clampTimespan(actual, target time.Duration) time.Duration {
	switch {
	case actual < target/4:
		return target / 4
	case actual > target*4:
		return target * 4
	default:
		return actual
	}
}

// findPrevNonReducedDifficulty walks back from parent to the most
// recent ancestor whose bits were not set by the ReduceMinDifficulty
// special case, i.e. the last retarget-boundary block or a block whose
// bits differ from the network minimum. It implements the testnet
// rule that a post-gap block's difficulty reverts to whatever was last
// legitimately computed, rather than staying pinned at the minimum.
func (b *BlockChain) findPrevNonReducedDifficulty(from blockstore.StoredBlock) (blockstore.StoredBlock, error) {
	cur := from
	for cur.Height != 0 &&
		cur.Height%b.params.RetargetInterval != 0 &&
		cur.Header.Bits == b.params.PowLimitBits {
		prev, ok, err := b.store.Get(cur.Header.PrevBlock)
		if err != nil {
			return blockstore.StoredBlock{}, err
		}
		if !ok {
			break
		}
		cur = prev
	}
	return cur, nil
}

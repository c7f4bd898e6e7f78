// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"time"

	"github.com/ndau-spv/spvcore/blockchain/standalone"
	"github.com/ndau-spv/spvcore/blockstore"
	"github.com/ndau-spv/spvcore/walleterrors"
	"github.com/ndau-spv/spvcore/wire"
)

// validateHeader checks header against parent, which must already be
// known to the store, in the order: proof of work, timestamp bounds,
// required bits, all assuming the caller has already resolved parent
// from header.PrevBlock.
func (b *BlockChain) validateHeader(header wire.BlockHeader, parent blockstore.StoredBlock) error {
	target := standalone.CompactToBig(header.Bits)
	if target.Sign() <= 0 || target.Cmp(b.params.PowLimit) > 0 {
		return walleterrors.E(walleterrors.ProtocolMalformed,
			"header bits exceed the network's maximum target", nil)
	}
	hash := header.BlockHash()
	if standalone.HashToBig(&hash).Cmp(target) > 0 {
		return walleterrors.E(walleterrors.ProtocolMalformed,
			"header hash does not meet its claimed target", nil)
	}

	medianTime, err := b.medianTimePast(parent)
	if err != nil {
		return err
	}
	if !header.Timestamp.After(medianTime) {
		return walleterrors.E(walleterrors.ProtocolMalformed,
			"header timestamp is not after the median of the last 11 blocks", nil)
	}
	if header.Timestamp.After(time.Now().Add(maxFutureBlockTime)) {
		return walleterrors.E(walleterrors.ProtocolMalformed,
			"header timestamp is too far in the future", nil)
	}

	wantBits, err := b.calcNextRequiredBits(parent, header.Timestamp)
	if err != nil {
		return err
	}
	if header.Bits != wantBits {
		return walleterrors.E(walleterrors.ProtocolMalformed,
			"header bits do not match the required difficulty", nil)
	}

	return nil
}

// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package blockchain validates incoming block headers, maintains the
// work-weighted best chain, and dispatches disconnect/connect
// notifications to registered Wallets on reorganization.
package blockchain

import (
	"math/big"
	"sync"
	"time"

	"github.com/ndau-spv/spvcore/blockchain/standalone"
	"github.com/ndau-spv/spvcore/blockstore"
	"github.com/ndau-spv/spvcore/chaincfg"
	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
	"github.com/ndau-spv/spvcore/walleterrors"
	"github.com/ndau-spv/spvcore/wire"
)

// medianTimeBlocks is how many of the most recent ancestors a header's
// timestamp is checked against.
const medianTimeBlocks = 11

// maxFutureBlockTime bounds how far into the future a header's
// timestamp may claim to be, relative to the validator's clock.
const maxFutureBlockTime = 2 * time.Hour

// WalletNotifiee receives disconnect/connect notifications when the
// best chain reorganizes, and best-block notifications when it simply
// extends. Disconnects are always delivered before connects.
type WalletNotifiee interface {
	OnReorganize(disconnected, connected []blockstore.StoredBlock)
	OnBestBlock(tip blockstore.StoredBlock)
}

// BlockChain validates headers against a NetworkParameters descriptor
// and durably tracks the best chain through a blockstore.Store. It
// holds a reference to, but does not own, that Store and any
// registered Wallets.
type BlockChain struct {
	mu     sync.Mutex
	params *chaincfg.Params
	store  *blockstore.Store

	tip         blockstore.StoredBlock
	heightIndex map[int32]chainhash.Hash

	listeners []WalletNotifiee
}

// New returns a BlockChain backed by store, for the network described
// by params. If store is empty, it is seeded with params' genesis
// block as the chain tip.
func New(store *blockstore.Store, params *chaincfg.Params) (*BlockChain, error) {
	b := &BlockChain{
		params:      params,
		store:       store,
		heightIndex: make(map[int32]chainhash.Hash),
	}

	tip, ok, err := store.GetChainHead()
	if err != nil {
		return nil, err
	}
	if ok {
		b.tip = tip
		b.heightIndex[tip.Height] = tip.Hash()
		return b, nil
	}

	genesis := blockstore.StoredBlock{
		Header: params.GenesisBlock.Header,
		Work:   standalone.CalcWork(params.GenesisBlock.Header.Bits),
		Height: 0,
	}
	if err := store.Put(genesis); err != nil {
		return nil, err
	}
	if err := store.SetChainHead(genesis); err != nil {
		return nil, err
	}
	b.tip = genesis
	b.heightIndex[0] = genesis.Hash()
	return b, nil
}

// AddListener registers a Wallet (or any other WalletNotifiee) to
// receive reorganize and best-block notifications.
func (b *BlockChain) AddListener(l WalletNotifiee) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Tip returns the current best-chain tip.
func (b *BlockChain) Tip() blockstore.StoredBlock {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tip
}

// BlockAtHeight returns the best chain's StoredBlock at height, if the
// chain has reached that height.
func (b *BlockChain) BlockAtHeight(height int32) (blockstore.StoredBlock, bool, error) {
	b.mu.Lock()
	hash, ok := b.heightIndex[height]
	b.mu.Unlock()
	if !ok {
		return blockstore.StoredBlock{}, false, nil
	}
	return b.store.Get(hash)
}

// ancestorAtHeight walks the PrevBlock chain backward from from to
// locate the ancestor at height, without relying on the best-chain
// heightIndex — needed so side-chain headers (which have not yet, or
// may never, become the best chain) can still be retarget-validated.
func (b *BlockChain) ancestorAtHeight(from blockstore.StoredBlock, height int32) (blockstore.StoredBlock, error) {
	cur := from
	for cur.Height > height {
		prev, ok, err := b.store.Get(cur.Header.PrevBlock)
		if err != nil {
			return blockstore.StoredBlock{}, err
		}
		if !ok {
			return blockstore.StoredBlock{}, walleterrors.E(walleterrors.NotFound,
				"ancestor header evicted from the block store or never seen", nil)
		}
		cur = prev
	}
	return cur, nil
}

// medianTimePast returns the median timestamp of the most recent
// medianTimeBlocks ancestors ending at and including from.
func (b *BlockChain) medianTimePast(from blockstore.StoredBlock) (time.Time, error) {
	times := make([]time.Time, 0, medianTimeBlocks)
	cur := from
	for i := 0; i < medianTimeBlocks; i++ {
		times = append(times, cur.Header.Timestamp)
		if cur.Height == 0 {
			break
		}
		prev, ok, err := b.store.Get(cur.Header.PrevBlock)
		if err != nil {
			return time.Time{}, err
		}
		if !ok {
			break
		}
		cur = prev
	}
	// Insertion sort: medianTimeBlocks is always small.
	for i := 1; i < len(times); i++ {
		for j := i; j > 0 && times[j].Before(times[j-1]); j-- {
			times[j], times[j-1] = times[j-1], times[j]
		}
	}
	return times[len(times)/2], nil
}

// ProcessHeader validates header against the rules in validate.go and,
// if valid, stores it and updates the best chain, notifying listeners
// of any reorganization or simple extension.
func (b *BlockChain) ProcessHeader(header wire.BlockHeader) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	parent, ok, err := b.store.Get(header.PrevBlock)
	if err != nil {
		return err
	}
	if !ok {
		return walleterrors.E(walleterrors.ProtocolMalformed,
			"header's previous hash references an unknown block", nil)
	}

	if err := b.validateHeader(header, parent); err != nil {
		log.Debugf("rejected header %s: %v", header.BlockHash(), err)
		return err
	}

	newBlock := blockstore.StoredBlock{
		Header: header,
		Work:   new(big.Int).Add(parent.Work, standalone.CalcWork(header.Bits)),
		Height: parent.Height + 1,
	}
	if err := b.store.Put(newBlock); err != nil {
		return err
	}

	switch {
	case header.PrevBlock == b.tip.Hash():
		b.extend(newBlock)
	case newBlock.Work.Cmp(b.tip.Work) > 0:
		return b.reorganize(newBlock)
	}
	return nil
}

// extend advances the tip by one block along the fast path: the new
// block's parent is already the current tip.
func (b *BlockChain) extend(newBlock blockstore.StoredBlock) {
	b.tip = newBlock
	b.heightIndex[newBlock.Height] = newBlock.Hash()
	log.Debugf("extended best chain to height %d (%s)", newBlock.Height, newBlock.Hash())
	b.notifyBestBlock(newBlock)
}

// reorganize switches the best chain to the branch ending at newTip,
// whose cumulative work exceeds the current tip's. Disconnected blocks
// are reported from the old tip down to (exclusive of) the fork point;
// connected blocks are reported from just after the fork point up to
// newTip, in forward order. Listeners see all disconnects before any
// connect.
func (b *BlockChain) reorganize(newTip blockstore.StoredBlock) error {
	var disconnected []blockstore.StoredBlock
	var connected []blockstore.StoredBlock

	oldCur := b.tip
	newCur := newTip
	for oldCur.Height > newCur.Height {
		disconnected = append(disconnected, oldCur)
		prev, ok, err := b.store.Get(oldCur.Header.PrevBlock)
		if err != nil || !ok {
			return walleterrors.E(walleterrors.StoreIO, "walk back old chain during reorg", err)
		}
		oldCur = prev
	}
	for newCur.Height > oldCur.Height {
		connected = append([]blockstore.StoredBlock{newCur}, connected...)
		prev, ok, err := b.store.Get(newCur.Header.PrevBlock)
		if err != nil || !ok {
			return walleterrors.E(walleterrors.StoreIO, "walk back new chain during reorg", err)
		}
		newCur = prev
	}
	for oldCur.Hash() != newCur.Hash() {
		disconnected = append(disconnected, oldCur)
		connected = append([]blockstore.StoredBlock{newCur}, connected...)

		oldPrev, ok, err := b.store.Get(oldCur.Header.PrevBlock)
		if err != nil || !ok {
			return walleterrors.E(walleterrors.StoreIO, "walk back old chain during reorg", err)
		}
		newPrev, ok, err := b.store.Get(newCur.Header.PrevBlock)
		if err != nil || !ok {
			return walleterrors.E(walleterrors.StoreIO, "walk back new chain during reorg", err)
		}
		oldCur, newCur = oldPrev, newPrev
	}

	for _, d := range disconnected {
		delete(b.heightIndex, d.Height)
	}
	for _, c := range connected {
		b.heightIndex[c.Height] = c.Hash()
	}

	if err := b.store.SetChainHead(newTip); err != nil {
		return err
	}
	b.tip = newTip

	log.Infof("reorganize: disconnected %d block(s), connected %d block(s), new tip height %d (%s)",
		len(disconnected), len(connected), newTip.Height, newTip.Hash())

	for _, l := range b.listeners {
		l.OnReorganize(disconnected, connected)
	}
	b.notifyBestBlock(newTip)
	return nil
}

func (b *BlockChain) notifyBestBlock(tip blockstore.StoredBlock) {
	for _, l := range b.listeners {
		l.OnBestBlock(tip)
	}
}

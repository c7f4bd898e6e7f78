// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peergroup

import (
	"fmt"

	"github.com/ndau-spv/spvcore/bloom"
	"github.com/ndau-spv/spvcore/blockstore"
	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
	"github.com/ndau-spv/spvcore/peer"
	"github.com/ndau-spv/spvcore/wire"
)

// handleHeaders runs on the chain+wallet worker: it is step 3 of the
// download pipeline in spec.md §4.5. Each header is validated and
// attached to BlockChain; a full-size response means more headers
// remain, so the locator is rebuilt and resent. A short response means
// headers are caught up, and the newly attached range is requested
// again as filtered blocks so their matched transactions can arrive.
func (pg *PeerGroup) handleHeaders(p *peer.Peer, msg *wire.MsgHeaders) {
	var newHashes []chainhash.Hash
	for _, h := range msg.Headers {
		if err := pg.cfg.Chain.ProcessHeader(*h); err != nil {
			p.ReportMisbehavior(err)
			return
		}
		newHashes = append(newHashes, h.BlockHash())
	}

	if len(msg.Headers) == maxHeadersPerMsg {
		pg.requestHeaders(p)
		return
	}

	if len(newHashes) > 0 {
		pg.requestFilteredBlocks(p, newHashes)
	}
	pg.reportProgress()
}

// requestFilteredBlocks issues a getdata for each hash as a filtered
// block; handleMerkleBlock registers the pendingBlock for each one once
// its merkleblock arrives.
func (pg *PeerGroup) requestFilteredBlocks(p *peer.Peer, hashes []chainhash.Hash) {
	invs := make([]*wire.InvVect, 0, len(hashes))
	for _, h := range hashes {
		invs = append(invs, &wire.InvVect{Type: wire.InvTypeFilteredBlock, Hash: h})
	}
	p.PushGetDataMsg(invs)
}

// handleMerkleBlock is step 4 of the download pipeline: it verifies
// the partial merkle tree the peer sent matches the header's committed
// root, then either returns at once when nothing matched or registers
// a pendingBlock and waits for the matched transactions to stream in.
func (pg *PeerGroup) handleMerkleBlock(p *peer.Peer, msg *wire.MsgMerkleBlock) {
	root, matched, err := bloom.ExtractMatches(msg)
	if err != nil {
		p.ReportMisbehavior(err)
		return
	}
	if root != msg.Header.MerkleRoot {
		p.ReportMisbehavior(fmt.Errorf("peergroup: merkleblock root does not match header"))
		return
	}

	blockHash := msg.Header.BlockHash()
	sb, ok, err := pg.cfg.Store.Get(blockHash)
	if err != nil {
		p.ReportMisbehavior(err)
		return
	}
	if !ok {
		p.ReportMisbehavior(fmt.Errorf("peergroup: merkleblock for unknown header %s", blockHash))
		return
	}

	if len(matched) == 0 {
		return
	}

	remaining := make(map[chainhash.Hash]bool, len(matched))
	for _, h := range matched {
		remaining[*h] = true
	}

	pg.mu.Lock()
	pg.pending[blockHash] = &pendingBlock{block: sb, remaining: remaining}
	pg.mu.Unlock()
}

// handleTx is the remainder of step 4: a transaction arriving outside
// any pendingBlock is mempool relay and is handed to Wallets as
// pending; one that completes a pendingBlock's match set is delivered
// as confirmed, and once the last expected transaction for a block
// arrives the pendingBlock entry is retired.
func (pg *PeerGroup) handleTx(_ *peer.Peer, tx *wire.MsgTx) {
	txHash := tx.TxHash()
	pg.markInvSeen(txHash)

	pg.mu.Lock()
	var matchedBlock *pendingBlock
	for hash, pb := range pg.pending {
		if pb.remaining[txHash] {
			delete(pb.remaining, txHash)
			matchedBlock = pb
			if len(pb.remaining) == 0 {
				delete(pg.pending, hash)
			}
			break
		}
	}
	pg.mu.Unlock()

	if matchedBlock != nil {
		pg.deliverConfirmed(tx, matchedBlock.block)
		return
	}

	pg.deliverPending(tx)
}

// deliverConfirmed hands tx to every registered Wallet as confirmed in
// block, then re-derives the bloom filter: a wallet-owned output in tx
// may have just advanced a keychain's lookahead window (KeyChain.MarkUsed),
// and the freshly derived keys it pulls in need to be watched for too.
func (pg *PeerGroup) deliverConfirmed(tx *wire.MsgTx, block blockstore.StoredBlock) {
	for _, w := range pg.cfg.Wallets {
		_ = w.ReceiveFromBlock(tx, block)
	}
	pg.rebuildAndReuploadFilter()
}

// deliverPending hands tx to every registered Wallet as unconfirmed and
// re-derives the bloom filter for the same reason as deliverConfirmed.
func (pg *PeerGroup) deliverPending(tx *wire.MsgTx) {
	for _, w := range pg.cfg.Wallets {
		_ = w.ReceivePending(tx, nil)
	}
	pg.rebuildAndReuploadFilter()
}

// handleInv relays announced inventory: a transaction we don't already
// have is requested via getdata; a transaction hash matching an
// outstanding broadcast this peer wasn't originally sent to is
// propagation evidence that resolves the broadcast future; a
// transaction already delivered by another peer is skipped rather than
// re-fetched.
func (pg *PeerGroup) handleInv(p *peer.Peer, msg *wire.MsgInv) {
	var want []*wire.InvVect
	for _, iv := range msg.InvList {
		if iv.Type != wire.InvTypeTx {
			continue
		}
		if pg.echoesBroadcast(p, iv.Hash) {
			continue
		}
		if pg.invSeen(iv.Hash) {
			continue
		}
		want = append(want, iv)
	}
	if len(want) > 0 {
		p.PushGetDataMsg(want)
	}
}

// handleGetData answers a peer's request for inventory we announced:
// currently only outstanding broadcast transactions are ever announced
// via inv, so this both serves the transaction and, if the requester
// was one of the peers the broadcast was sent to, counts as acceptance
// evidence resolving the broadcast future.
func (pg *PeerGroup) handleGetData(p *peer.Peer, msg *wire.MsgGetData) {
	for _, iv := range msg.InvList {
		if iv.Type != wire.InvTypeTx {
			continue
		}
		pg.serveBroadcastRequest(p, iv.Hash)
	}
}

// handleAddr feeds gossiped addresses into the address manager, the
// lowest-priority discovery source per spec.md §4.5.
func (pg *PeerGroup) handleAddr(p *peer.Peer, msg *wire.MsgAddr) {
	src, ok := parseHostPort(p.Addr())
	if !ok {
		return
	}
	pg.addrMgr.AddAddresses(msg.AddrList, src)
}

// reportProgress is a hook for listeners wanting "blocks remaining"
// updates (step 5 of the pipeline); PeerGroup itself has no listener
// registry of its own and simply leaves chain height as the signal of
// record, queryable through Config.Chain.
func (pg *PeerGroup) reportProgress() {}

// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain_test

import (
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ndau-spv/spvcore/blockchain"
	"github.com/ndau-spv/spvcore/blockchain/standalone"
	"github.com/ndau-spv/spvcore/blockstore"
	"github.com/ndau-spv/spvcore/chaincfg"
	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
	"github.com/ndau-spv/spvcore/wire"
)

// easyTestParams returns regression-network parameters with a target
// so permissive (the full 256-bit range) that every header's hash
// satisfies it deterministically, and with a genesis block carrying
// that same easy target so every descendant inherits it at
// non-retarget heights. A small RetargetInterval keeps retarget
// boundaries reachable within a handful of blocks.
func easyTestParams(retargetInterval int32) *chaincfg.Params {
	p := *chaincfg.RegressionNetParams()
	p.PowLimit = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	p.PowLimitBits = standalone.BigToCompact(p.PowLimit)
	p.RetargetInterval = retargetInterval
	p.TargetTimespan = time.Duration(retargetInterval) * p.TargetTimePerBlock
	p.ReduceMinDifficulty = false

	genesis := *p.GenesisBlock
	genesis.Header.Bits = p.PowLimitBits
	p.GenesisBlock = &genesis
	p.GenesisHash = genesis.Header.BlockHash()
	return &p
}

func newTestChain(t *testing.T, params *chaincfg.Params) (*blockchain.BlockChain, *blockstore.Store) {
	t.Helper()
	store, err := blockstore.New(filepath.Join(t.TempDir(), "blocks.db"), 256)
	if err != nil {
		t.Fatalf("blockstore.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	bc, err := blockchain.New(store, params)
	if err != nil {
		t.Fatalf("blockchain.New: %v", err)
	}
	return bc, store
}

func childHeader(parent wire.BlockHeader, bits uint32, ts time.Time, nonce uint32) wire.BlockHeader {
	return wire.BlockHeader{
		Version:    1,
		PrevBlock:  parent.BlockHash(),
		MerkleRoot: chainhash.HashH([]byte{byte(nonce)}),
		Timestamp:  ts,
		Bits:       bits,
		Nonce:      nonce,
	}
}

func TestExtendBuildsSequentialChain(t *testing.T) {
	params := easyTestParams(2016)
	bc, _ := newTestChain(t, params)

	genesisHeader := params.GenesisBlock.Header
	ts := genesisHeader.Timestamp
	parent := genesisHeader
	for i := uint32(1); i <= 5; i++ {
		ts = ts.Add(params.TargetTimePerBlock)
		h := childHeader(parent, parent.Bits, ts, i)
		if err := bc.ProcessHeader(h); err != nil {
			t.Fatalf("ProcessHeader %d: %v", i, err)
		}
		parent = h
	}

	tip := bc.Tip()
	if tip.Height != 5 {
		t.Fatalf("tip height = %d, want 5", tip.Height)
	}

	blk, ok, err := bc.BlockAtHeight(3)
	if err != nil {
		t.Fatalf("BlockAtHeight: %v", err)
	}
	if !ok {
		t.Fatalf("expected height 3 to be indexed")
	}
	if blk.Header.Nonce != 3 {
		t.Fatalf("BlockAtHeight(3).Header.Nonce = %d, want 3", blk.Header.Nonce)
	}
}

func TestRejectsHeaderWithUnknownParent(t *testing.T) {
	params := easyTestParams(2016)
	bc, _ := newTestChain(t, params)

	orphanParent := params.GenesisBlock.Header
	orphanParent.Nonce = 999 // so its hash does not match the real genesis
	h := childHeader(orphanParent, params.GenesisBlock.Header.Bits,
		params.GenesisBlock.Header.Timestamp.Add(time.Hour), 1)

	if err := bc.ProcessHeader(h); err == nil {
		t.Fatalf("expected ProcessHeader to reject a header with an unknown parent")
	}
}

func TestRejectsBitsMismatchBetweenRetargets(t *testing.T) {
	params := easyTestParams(2016)
	bc, _ := newTestChain(t, params)

	genesisHeader := params.GenesisBlock.Header
	h := childHeader(genesisHeader, genesisHeader.Bits-1,
		genesisHeader.Timestamp.Add(params.TargetTimePerBlock), 1)

	if err := bc.ProcessHeader(h); err == nil {
		t.Fatalf("expected ProcessHeader to reject bits that differ from the parent's outside a retarget boundary")
	}
}

type recordingNotifiee struct {
	disconnected [][]blockstore.StoredBlock
	connected    [][]blockstore.StoredBlock
	bestBlocks   []blockstore.StoredBlock
}

func (r *recordingNotifiee) OnReorganize(disconnected, connected []blockstore.StoredBlock) {
	r.disconnected = append(r.disconnected, disconnected)
	r.connected = append(r.connected, connected)
}

func (r *recordingNotifiee) OnBestBlock(tip blockstore.StoredBlock) {
	r.bestBlocks = append(r.bestBlocks, tip)
}

func TestReorgPrefersMoreWorkAndOrdersNotifications(t *testing.T) {
	params := easyTestParams(2016)
	bc, _ := newTestChain(t, params)

	notifiee := &recordingNotifiee{}
	bc.AddListener(notifiee)

	genesisHeader := params.GenesisBlock.Header
	ts := genesisHeader.Timestamp

	// Main chain: three blocks, becomes the tip as each is processed.
	mainParent := genesisHeader
	mainHeaders := make([]wire.BlockHeader, 0, 3)
	for i := uint32(1); i <= 3; i++ {
		ts = ts.Add(params.TargetTimePerBlock)
		h := childHeader(mainParent, mainParent.Bits, ts, 100+i)
		if err := bc.ProcessHeader(h); err != nil {
			t.Fatalf("ProcessHeader main %d: %v", i, err)
		}
		mainHeaders = append(mainHeaders, h)
		mainParent = h
	}
	if bc.Tip().Height != 3 {
		t.Fatalf("tip height = %d, want 3 after main chain", bc.Tip().Height)
	}

	// Side chain: four blocks from genesis, same per-block difficulty,
	// so its cumulative work overtakes the three-block main chain only
	// once its fourth block lands.
	forkTS := genesisHeader.Timestamp
	forkParent := genesisHeader
	var forkHeaders []wire.BlockHeader
	for i := uint32(1); i <= 4; i++ {
		forkTS = forkTS.Add(params.TargetTimePerBlock)
		h := childHeader(forkParent, forkParent.Bits, forkTS, 200+i)
		if err := bc.ProcessHeader(h); err != nil {
			t.Fatalf("ProcessHeader fork %d: %v", i, err)
		}
		forkHeaders = append(forkHeaders, h)
		forkParent = h
	}

	tip := bc.Tip()
	if tip.Height != 4 || tip.Header.Nonce != 204 {
		t.Fatalf("expected reorg onto the 4-block fork, got height=%d nonce=%d", tip.Height, tip.Header.Nonce)
	}

	if len(notifiee.disconnected) != 1 {
		t.Fatalf("expected exactly one reorg notification, got %d", len(notifiee.disconnected))
	}
	disconnected := notifiee.disconnected[0]
	connected := notifiee.connected[0]

	if len(disconnected) != 3 {
		t.Fatalf("disconnected len = %d, want 3", len(disconnected))
	}
	for i, want := range []uint32{103, 102, 101} {
		if disconnected[i].Header.Nonce != want {
			t.Fatalf("disconnected[%d].Nonce = %d, want %d (tip-down-to-fork order)", i, disconnected[i].Header.Nonce, want)
		}
	}

	if len(connected) != 4 {
		t.Fatalf("connected len = %d, want 4", len(connected))
	}
	for i, want := range []uint32{201, 202, 203, 204} {
		if connected[i].Header.Nonce != want {
			t.Fatalf("connected[%d].Nonce = %d, want %d (fork-up-to-tip order)", i, connected[i].Header.Nonce, want)
		}
	}

	_ = mainHeaders
	_ = forkHeaders
}

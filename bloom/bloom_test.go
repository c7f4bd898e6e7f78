// Copyright (c) 2018 The ExchangeCoin team
// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2017 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bloom_test

import (
	"testing"
	"time"

	"github.com/ndau-spv/spvcore/bloom"
	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
	"github.com/ndau-spv/spvcore/wire"
)

func buildTestBlock() *wire.MsgBlock {
	block := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:   1,
			Timestamp: time.Unix(1231006506, 0),
			Bits:      0x1d00ffff,
		},
	}
	for i := 0; i < 4; i++ {
		tx := &wire.MsgTx{Version: 1}
		tx.TxIn = append(tx.TxIn, &wire.TxIn{
			PreviousOutPoint: wire.OutPoint{Index: uint32(i)},
		})
		tx.TxOut = append(tx.TxOut, &wire.TxOut{
			Value:    int64(i) * 1e8,
			PkScript: []byte{0x76, 0xa9, 0x14, byte(i), 0x88, 0xac},
		})
		block.AddTransaction(tx)
	}
	return block
}

func TestFilterAddAndMatches(t *testing.T) {
	f := bloom.NewFilter(10, 0, 0.0001, wire.BloomUpdateAll)

	data := []byte("a registered public key hash")
	if f.Matches(data) {
		t.Fatalf("unadded element should not match")
	}
	f.Add(data)
	if !f.Matches(data) {
		t.Fatalf("added element should match")
	}
}

func TestFilterAddHash(t *testing.T) {
	f := bloom.NewFilter(10, 0, 0.0001, wire.BloomUpdateAll)
	hash := chainhash.HashH([]byte("a transaction"))
	f.AddHash(&hash)
	if !f.MatchesHash(&hash) {
		t.Fatalf("added hash should match")
	}

	other := chainhash.HashH([]byte("a different transaction"))
	if f.MatchesHash(&other) {
		t.Fatalf("unrelated hash unexpectedly matched (fp rate too high for this test?)")
	}
}

func TestMerkleBlockRoundTrip(t *testing.T) {
	block := buildTestBlock()

	f := bloom.NewFilter(10, 0, 0.0001, wire.BloomUpdateAll)
	matchedHash := block.Transactions[2].TxHash()
	f.AddHash(&matchedHash)

	mb, matchedIdx := bloom.NewMerkleBlock(block, f)
	if len(matchedIdx) != 1 || matchedIdx[0] != 2 {
		t.Fatalf("matched indexes = %v, want [2]", matchedIdx)
	}

	root, matches, err := bloom.ExtractMatches(mb)
	if err != nil {
		t.Fatalf("ExtractMatches: %v", err)
	}
	wantRoot := computeMerkleRoot(block)
	if root != wantRoot {
		t.Fatalf("extracted root = %v, want %v", root, wantRoot)
	}
	if len(matches) != 1 || *matches[0] != matchedHash {
		t.Fatalf("extracted matches = %v, want [%v]", matches, matchedHash)
	}
}

// computeMerkleRoot independently recomputes a block's merkle root,
// duplicating the final hash of an odd-sized level, matching the
// algorithm bloom.NewMerkleBlock uses internally.
func computeMerkleRoot(block *wire.MsgBlock) chainhash.Hash {
	level := make([]chainhash.Hash, len(block.Transactions))
	for i, tx := range block.Transactions {
		level[i] = tx.TxHash()
	}
	for len(level) > 1 {
		next := make([]chainhash.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, chainhash.HashH(append(append([]byte(nil), left[:]...), right[:]...)))
		}
		level = next
	}
	return level[0]
}

// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import "testing"

func TestGenesisBlockHashMatchesReference(t *testing.T) {
	p := MainNetParams()
	got := p.GenesisBlock.BlockHash().String()
	want := "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"
	if got != want {
		t.Fatalf("mainnet genesis hash = %s, want %s", got, want)
	}
}

func TestGenesisMerkleRootIsCoinbaseTxID(t *testing.T) {
	p := MainNetParams()
	if len(p.GenesisBlock.Transactions) != 1 {
		t.Fatalf("genesis block must contain exactly one transaction")
	}
	if p.GenesisBlock.Header.MerkleRoot != p.GenesisBlock.Transactions[0].TxHash() {
		t.Fatalf("genesis merkle root does not match sole coinbase txid")
	}
}

// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import (
	"math/big"
	"time"

	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
)

// testNet3PowLimit is the highest proof-of-work target a testnet3 block
// may have. It is the value 2^224 - 1, same as mainnet, since testnet's
// distinguishing feature is the reduced-difficulty rule rather than a
// different floor.
var testNet3PowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 224), bigOne)

// TestNet3Params returns the NetworkParameters descriptor for the test
// network (version 3).
func TestNet3Params() *Params {
	genesis := newGenesisBlock(
		&chainhash.Hash{},
		time.Unix(1296688602, 0),
		0x1d00ffff,
		414098458,
		1,
		50*1e8,
	)

	return &Params{
		Name:        "testnet3",
		Net:         0x0709110b,
		DefaultPort: "18333",
		DNSSeeds: []DNSSeed{
			{Host: "testnet-seed.bitcoin.jonasschnelli.ch"},
			{Host: "seed.tbtc.petertodd.org"},
			{Host: "seed.testnet.bitcoin.sprovoost.nl"},
		},

		GenesisBlock: genesis,
		GenesisHash:  genesis.BlockHash(),

		PowLimit:             testNet3PowLimit,
		PowLimitBits:         0x1d00ffff,
		ReduceMinDifficulty:  true,
		MinDiffReductionTime: 20 * time.Minute,
		TargetTimePerBlock:   10 * time.Minute,
		TargetTimespan:       14 * 24 * time.Hour,

		RetargetInterval:         2016,
		SubsidyReductionInterval: 210000,
		BaseSubsidy:              50 * 1e8,

		Checkpoints: []Checkpoint{
			{Height: 546, Hash: mustHashFromStr("000000002a936ca763904c3c35fce2f3556c559c0214345d31b1bcebf76acb70")},
		},

		PubKeyHashAddrID: 0x6f,
		ScriptHashAddrID: 0xc4,
		PrivateKeyID:     0xef,
		HDPrivateKeyID:   [4]byte{0x04, 0x35, 0x83, 0x94}, // tprv
		HDPublicKeyID:    [4]byte{0x04, 0x35, 0x87, 0xcf}, // tpub
		HDCoinType:       1,
	}
}

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

// regressionPowLimit is the highest proof-of-work target a regtest block
// may have. It is the value 2^255 - 1, low enough that a single CPU can
// mine blocks instantly for local testing.
var regressionPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 255), bigOne)

// RegressionNetParams returns the NetworkParameters descriptor for the
// regression test network, used for local, deterministic integration
// tests rather than any public chain.
func RegressionNetParams() *Params {
	genesis := newGenesisBlock(
		&chainhash.Hash{},
		time.Unix(1296688602, 0),
		0x207fffff,
		2,
		1,
		50*1e8,
	)

	return &Params{
		Name:        "regtest",
		Net:         0xdab5bffa,
		DefaultPort: "18444",
		DNSSeeds:    nil,

		GenesisBlock: genesis,
		GenesisHash:  genesis.BlockHash(),

		PowLimit:             regressionPowLimit,
		PowLimitBits:         0x207fffff,
		ReduceMinDifficulty:  true,
		MinDiffReductionTime: 0,
		TargetTimePerBlock:   10 * time.Minute,
		TargetTimespan:       14 * 24 * time.Hour,

		RetargetInterval:         2016,
		SubsidyReductionInterval: 150,
		BaseSubsidy:              50 * 1e8,

		Checkpoints: nil,

		PubKeyHashAddrID: 0x6f,
		ScriptHashAddrID: 0xc4,
		PrivateKeyID:     0xef,
		HDPrivateKeyID:   [4]byte{0x04, 0x35, 0x83, 0x94}, // tprv
		HDPublicKeyID:    [4]byte{0x04, 0x35, 0x87, 0xcf}, // tpub
		HDCoinType:       1,
	}
}

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

// bigOne is 1 represented as a big.Int, defined once to avoid the overhead
// of creating it repeatedly.
var bigOne = big.NewInt(1)

// mainPowLimit is the highest proof-of-work target a mainnet block may
// have, i.e. the lowest allowed difficulty. It is the value 2^224 - 1.
var mainPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 224), bigOne)

func mustHashFromStr(s string) *chainhash.Hash {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		panic(err)
	}
	return h
}

// MainNetParams returns the NetworkParameters descriptor for the main
// network, built around the reference Bitcoin genesis block.
func MainNetParams() *Params {
	genesis := newGenesisBlock(
		&chainhash.Hash{},
		time.Unix(1231006505, 0),
		0x1d00ffff,
		2083236893,
		1,
		50*1e8,
	)

	return &Params{
		Name:        "mainnet",
		Net:         0xd9b4bef9,
		DefaultPort: "8333",
		DNSSeeds: []DNSSeed{
			{Host: "seed.bitcoin.sipa.be"},
			{Host: "dnsseed.bluematt.me"},
			{Host: "dnsseed.bitcoin.dashjr.org"},
			{Host: "seed.bitcoinstats.com"},
			{Host: "seed.bitcoin.jonasschnelli.ch"},
		},

		GenesisBlock: genesis,
		GenesisHash:  genesis.BlockHash(),

		PowLimit:                 mainPowLimit,
		PowLimitBits:             0x1d00ffff,
		ReduceMinDifficulty:      false,
		MinDiffReductionTime:     0,
		TargetTimePerBlock:       10 * time.Minute,
		TargetTimespan:           14 * 24 * time.Hour,
		RetargetInterval:         2016,
		SubsidyReductionInterval: 210000,
		BaseSubsidy:              50 * 1e8,

		Checkpoints: []Checkpoint{
			{Height: 11111, Hash: mustHashFromStr("0000000069e244f73d78e8fd29ba2fd2ed618bd6fa2ee92559f542fdb26e7c1d")},
			{Height: 33333, Hash: mustHashFromStr("000000002dd5588a74784eaa7ab0507a18ad16a236e7b1ce69f00d7ddfb5d0a6")},
			{Height: 74000, Hash: mustHashFromStr("0000000000573993a3c9e41ce34471c079dcf5f52a0e824a81e7f953b8661a20")},
			{Height: 105000, Hash: mustHashFromStr("00000000000291ce28027faea320c8d2b054b2e0fe44a773f3eefb151d6bdc97")},
			{Height: 134444, Hash: mustHashFromStr("00000000000005b12ffd4cd315cd34ffd4a594f430ac814c91184a0d42d2b0fe")},
			{Height: 168000, Hash: mustHashFromStr("000000000000099e61ea72015e79632f216fe6cb33d7899acb35b75c8303b763")},
			{Height: 193000, Hash: mustHashFromStr("000000000000059f452a5f7340de6682a977387c17010ff6e6c3bd83ca8b1317")},
			{Height: 210000, Hash: mustHashFromStr("000000000000048b95347e83192f69cf0366076336c639f9b7228e9ba171342e")},
			{Height: 216116, Hash: mustHashFromStr("00000000000001b4f4b433e81ee46494af945cf96014816a4e2370f11b23df4e")},
			{Height: 225430, Hash: mustHashFromStr("00000000000001c108384350f74090433e7fcf79a606b8e797f065b130575932")},
			{Height: 250000, Hash: mustHashFromStr("000000000000003887df1f29024b06fc2200b55f8af8f35453d7be294df2d214")},
			{Height: 279000, Hash: mustHashFromStr("0000000000000001ae8c72a0b0c301f67e3afca10e819efa9041e458e9bd7e40")},
			{Height: 295000, Hash: mustHashFromStr("00000000000000004d9b4ef50f0f9d686fd69db2e03af35a100370c64632a983")},
		},

		PubKeyHashAddrID: 0x00,
		ScriptHashAddrID: 0x05,
		PrivateKeyID:     0x80,
		HDPrivateKeyID:   [4]byte{0x04, 0x88, 0xad, 0xe4}, // xprv
		HDPublicKeyID:    [4]byte{0x04, 0x88, 0xb2, 0x1e}, // xpub
		HDCoinType:       0,
	}
}

// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chaincfg defines the NetworkParameters descriptor — the immutable
// set of constants (magic bytes, genesis header, difficulty floor, retarget
// schedule, address version bytes, seed hosts) that together identify a
// single Bitcoin-family network, per spec.md §3.
package chaincfg

import (
	"math/big"
	"time"

	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
	"github.com/ndau-spv/spvcore/wire"
)

// DNSSeed identifies a DNS seed host used for initial peer discovery.
type DNSSeed struct {
	Host string
}

// Checkpoint identifies a block by height and hash, trusted to be on the
// best chain, allowing a new node to skip validating headers before it
// (spec.md §2, Checkpoints component).
type Checkpoint struct {
	Height int32
	Hash   *chainhash.Hash
}

// Params defines a Bitcoin-family network's NetworkParameters descriptor.
// A *Params value is immutable once constructed and is shared by every
// component of the core (KeyChain, BlockStore, BlockChain, PeerGroup).
type Params struct {
	// Name is the human-readable network name, e.g. "mainnet".
	Name string

	// Net is the magic four bytes placed at the start of every P2P
	// message envelope, encoded as a little-endian uint32.
	Net uint32

	// DefaultPort is the default P2P TCP port for this network.
	DefaultPort string

	// DNSSeeds lists hostnames that resolve to active peer addresses.
	DNSSeeds []DNSSeed

	// SeedIPs lists hard-coded fallback peer addresses (host:port) used
	// when DNS seeding is unavailable or returns nothing.
	SeedIPs []string

	// GenesisBlock is the first block of the chain.
	GenesisBlock *wire.MsgBlock

	// GenesisHash is the cached hash of GenesisBlock's header.
	GenesisHash chainhash.Hash

	// PowLimit is the highest (easiest) proof-of-work target allowed on
	// the network — the difficulty floor.
	PowLimit *big.Int

	// PowLimitBits is PowLimit in the compact "bits" encoding used in
	// block headers.
	PowLimitBits uint32

	// ReduceMinDifficulty, when true, allows the special testnet rule
	// that resets difficulty to PowLimitBits after MinDiffReductionTime
	// has elapsed without a block.
	ReduceMinDifficulty bool

	// MinDiffReductionTime is the elapsed-time threshold for the reduced
	// minimum difficulty rule described above.
	MinDiffReductionTime time.Duration

	// TargetTimePerBlock is the intended average time between blocks.
	TargetTimePerBlock time.Duration

	// TargetTimespan is the total time a RetargetInterval-block window is
	// expected to take; the retarget computation scales the next target
	// by actualTimespan / TargetTimespan.
	TargetTimespan time.Duration

	// RetargetInterval is the number of blocks between difficulty
	// retargets (2016 for Bitcoin mainnet).
	RetargetInterval int32

	// SubsidyReductionInterval is the number of blocks between halvings
	// of the block subsidy.
	SubsidyReductionInterval int32

	// BaseSubsidy is the initial block subsidy, in satoshis, before any
	// halving is applied.
	BaseSubsidy int64

	// Checkpoints lists trusted (height, hash) pairs in ascending height
	// order.
	Checkpoints []Checkpoint

	// PubKeyHashAddrID is the version byte prepended before Base58Check
	// encoding a P2PKH address.
	PubKeyHashAddrID byte

	// ScriptHashAddrID is the version byte prepended before Base58Check
	// encoding a P2SH address.
	ScriptHashAddrID byte

	// PrivateKeyID is the version byte prepended before Base58Check
	// encoding a WIF private key.
	PrivateKeyID byte

	// HDPrivateKeyID and HDPublicKeyID are the four-byte version
	// prefixes ("xprv"/"xpub"-style) used when serializing BIP32
	// extended keys for this network.
	HDPrivateKeyID [4]byte
	HDPublicKeyID  [4]byte

	// HDCoinType is this network's BIP44 coin type, forming the third
	// level of the m/44'/coin'/account' derivation path.
	HDCoinType uint32
}

// TotalSubsidyHalvings returns the number of times the block subsidy halves
// before reaching zero, used by the subsidy calculator to short-circuit
// far-future heights.
func (p *Params) TotalSubsidyHalvings() int32 {
	halvings := int32(0)
	subsidy := p.BaseSubsidy
	for subsidy > 0 {
		subsidy >>= 1
		halvings++
	}
	return halvings
}

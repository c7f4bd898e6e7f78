// Copyright (c) 2018 The ExchangeCoin team
// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2017 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package bloom implements the BIP37 bloom filter a PeerGroup uploads to
// its download peers so they can forward only transactions and merkle
// proofs the wallet's keychains might care about.
package bloom

import (
	"math"
	"sync"

	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
	"github.com/ndau-spv/spvcore/internal/bitset"
	"github.com/ndau-spv/spvcore/wire"
)

const (
	// ln2Squared and ln2 are used in the standard BIP37 filter sizing
	// formulas below.
	ln2Squared = 0.4804530139182014246671025263266649717305529515945455
	ln2        = 0.6931471805599453094172321214581765680755001343602552

	// maxFilterLoadFilterSize mirrors the wire protocol's filterload
	// size bound; calcFilterSize clamps every filter this package builds
	// to it, and Filter.MsgFilterLoad copies the filter bytes unchanged.
	maxFilterLoadFilterSize = 36000

	// maxFilterLoadHashFuncs mirrors the wire protocol's cap on the
	// number of hash functions a filterload message may specify.
	maxFilterLoadHashFuncs = 50
)

// Filter defines a bloom filter that can be used to test membership of
// data against a set of keychain-derived elements, per BIP37. Filter is
// safe for concurrent use.
type Filter struct {
	mu        sync.Mutex
	filter    *bitset.Set
	hashFuncs uint32
	tweak     uint32
	flags     wire.BloomUpdateType
}

// NewFilter creates a new bloom filter sized for elements entries at
// false-positive rate fp, tweaked by tweak so the same element set hashes
// to different bit positions across independent filters.
func NewFilter(elements, tweak uint32, fp float64, flags wire.BloomUpdateType) *Filter {
	dataLen := calcFilterSize(elements, fp)
	hashFuncs := calcHashFuncs(elements, dataLen)
	return &Filter{
		filter:    bitset.New(int(dataLen) * 8),
		hashFuncs: hashFuncs,
		tweak:     tweak,
		flags:     flags,
	}
}

// calcFilterSize returns the number of bytes needed for a filter holding
// elements items at false-positive rate fp, per the BIP37 formula,
// clamped to the protocol's maximum filterload size.
func calcFilterSize(elements uint32, fp float64) uint32 {
	dataLen := uint32(-1 * float64(elements) * math.Log(fp) / ln2Squared / 8)
	if dataLen > maxFilterLoadFilterSize {
		dataLen = maxFilterLoadFilterSize
	}
	if dataLen == 0 {
		dataLen = 1
	}
	return dataLen
}

// calcHashFuncs returns the number of hash functions that minimizes the
// false-positive rate for a dataLen-byte filter holding elements items.
func calcHashFuncs(elements, dataLen uint32) uint32 {
	n := uint32(float64(dataLen*8) / float64(elements) * ln2)
	if n > maxFilterLoadHashFuncs {
		n = maxFilterLoadHashFuncs
	}
	if n == 0 {
		n = 1
	}
	return n
}

// hash returns the bit index data maps to under the hashNum'th hash
// function, the BIP37 murmur3-based scheme that lets a single filter
// array be probed by an arbitrary number of independent-looking hashes.
func (f *Filter) hash(hashNum uint32, data []byte) uint32 {
	seed := hashNum*0xfba4c795 + f.tweak
	return murmurHash3(seed, data) % uint32(f.filter.Len())
}

// matches reports whether data is a member of the filter. Callers must
// hold f.mu.
func (f *Filter) matches(data []byte) bool {
	if f.filter.AllOnesByte() {
		return true
	}
	for i := uint32(0); i < f.hashFuncs; i++ {
		idx := f.hash(i, data)
		if !f.filter.Get(int(idx)) {
			return false
		}
	}
	return true
}

// add inserts data into the filter. Callers must hold f.mu.
func (f *Filter) add(data []byte) {
	if f.filter.AllOnesByte() {
		return
	}
	for i := uint32(0); i < f.hashFuncs; i++ {
		idx := f.hash(i, data)
		f.filter.Set(int(idx))
	}
}

// Add inserts a raw data element (a public key, a script, a serialized
// outpoint) into the filter.
func (f *Filter) Add(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.add(data)
}

// AddHash inserts a chainhash.Hash into the filter as its stored bytes,
// which are already in the protocol's wire order; nothing is reversed.
func (f *Filter) AddHash(hash *chainhash.Hash) {
	f.Add(hash[:])
}

// AddOutPoint inserts an outpoint's serialized form into the filter, the
// BloomUpdateAll mechanism uses to track future spends of a matched
// output without a second filter upload.
func (f *Filter) AddOutPoint(op *wire.OutPoint) {
	data := make([]byte, chainhash.HashSize+4)
	copy(data, op.Hash[:])
	data[chainhash.HashSize] = byte(op.Index)
	data[chainhash.HashSize+1] = byte(op.Index >> 8)
	data[chainhash.HashSize+2] = byte(op.Index >> 16)
	data[chainhash.HashSize+3] = byte(op.Index >> 24)
	f.Add(data)
}

// Matches reports whether data is a member of the filter.
func (f *Filter) Matches(data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.matches(data)
}

// MatchesHash reports whether hash is a member of the filter.
func (f *Filter) MatchesHash(hash *chainhash.Hash) bool {
	return f.Matches(hash[:])
}

// MsgFilterLoad returns the wire message that installs this filter on a
// peer connection.
func (f *Filter) MsgFilterLoad() *wire.MsgFilterLoad {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw := f.filter.Bytes()
	filterCopy := make([]byte, len(raw))
	copy(filterCopy, raw)
	return &wire.MsgFilterLoad{
		Filter:    filterCopy,
		HashFuncs: f.hashFuncs,
		Tweak:     f.tweak,
		Flags:     f.flags,
	}
}

// murmurHash3 computes the 32-bit MurmurHash3 of data with the given
// seed, the exact variant BIP37 specifies for filter hash functions.
func murmurHash3(seed uint32, data []byte) uint32 {
	const (
		c1 = 0xcc9e2d51
		c2 = 0x1b873593
	)

	h1 := seed
	nblocks := len(data) / 4

	for i := 0; i < nblocks; i++ {
		k1 := uint32(data[i*4]) | uint32(data[i*4+1])<<8 |
			uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24

		k1 *= c1
		k1 = (k1 << 15) | (k1 >> 17)
		k1 *= c2

		h1 ^= k1
		h1 = (h1 << 13) | (h1 >> 19)
		h1 = h1*5 + 0xe6546b64
	}

	tailStart := nblocks * 4
	var k1 uint32
	tail := data[tailStart:]
	switch len(tail) {
	case 3:
		k1 ^= uint32(tail[2]) << 16
		fallthrough
	case 2:
		k1 ^= uint32(tail[1]) << 8
		fallthrough
	case 1:
		k1 ^= uint32(tail[0])
		k1 *= c1
		k1 = (k1 << 15) | (k1 >> 17)
		k1 *= c2
		h1 ^= k1
	}

	h1 ^= uint32(len(data))
	h1 ^= h1 >> 16
	h1 *= 0x85ebca6b
	h1 ^= h1 >> 13
	h1 *= 0xc2b2ae35
	h1 ^= h1 >> 16

	return h1
}

// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package addrmgr maintains the PeerGroup's pool of known peer
// addresses, split into a large "new" set of addresses gossiped but
// never confirmed and a smaller "tried" set of addresses we've
// successfully connected to, with quality scoring biasing selection
// away from addresses that keep failing.
package addrmgr

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	mathrand "math/rand"
	"sync"

	"github.com/ndau-spv/spvcore/wire"
)

// Bucket layout. The classic btcsuite addrmgr uses 1024 new buckets
// and 64 tried buckets sized for a full node's address book; an SPV
// wallet only ever needs enough peers to sustain a handful of
// concurrent connections, so both dimensions are scaled down while
// keeping the same bucketing algorithm.
const (
	newBucketCount   = 64
	newBucketSize    = 64
	triedBucketCount = 16
	triedBucketSize  = 64
)

// AddrManager is the PeerGroup's address book.
type AddrManager struct {
	mu sync.Mutex

	key [32]byte // random per-process secret mixed into bucket hashing

	addrNew   [newBucketCount]map[string]*KnownAddress
	addrTried [triedBucketCount][]*KnownAddress
	addrIndex map[string]*KnownAddress

	nNew   int
	nTried int

	rng *mathrand.Rand
}

// New returns an empty AddrManager.
func New() *AddrManager {
	am := &AddrManager{
		addrIndex: make(map[string]*KnownAddress),
		rng:       mathrand.New(mathrand.NewSource(randSeed())),
	}
	for i := range am.addrNew {
		am.addrNew[i] = make(map[string]*KnownAddress)
	}
	if _, err := rand.Read(am.key[:]); err != nil {
		// crypto/rand failing means the platform's entropy source is
		// broken; bucket hashing degrades to a fixed key rather than
		// the address manager becoming unusable.
	}
	return am
}

func randSeed() int64 {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return int64(binary.LittleEndian.Uint64(buf[:]))
}

func addressKey(na *wire.NetAddress) string {
	return fmt.Sprintf("%x:%d", na.IP, na.Port)
}

// groupKey approximates the classic "address group" (a /16 for IPv4,
// a wider prefix for IPv6) used to spread bucket assignment across
// network ranges rather than individual hosts, so a single operator
// cannot monopolize either bucket set by gossiping many addresses from
// one network.
func groupKey(na *wire.NetAddress) string {
	ip := na.IP
	if ip[10] == 0xff && ip[11] == 0xff {
		// IPv4-mapped: group by the first two octets.
		return fmt.Sprintf("%d.%d", ip[12], ip[13])
	}
	return fmt.Sprintf("%x:%x", ip[0:2], ip[2:4])
}

func (a *AddrManager) newBucket(na, srcAddr *wire.NetAddress) int {
	h := sha256.New()
	h.Write(a.key[:])
	h.Write([]byte(groupKey(na)))
	h.Write([]byte(groupKey(srcAddr)))
	sum := h.Sum(nil)
	return int(binary.LittleEndian.Uint64(sum[:8]) % newBucketCount)
}

func (a *AddrManager) triedBucket(na *wire.NetAddress) int {
	h := sha256.New()
	h.Write(a.key[:])
	h.Write([]byte(addressKey(na)))
	sum := h.Sum(nil)
	return int(binary.LittleEndian.Uint64(sum[:8]) % triedBucketCount)
}

// AddAddress records na, gossiped to us by srcAddr, in the new set if
// it isn't already known.
func (a *AddrManager) AddAddress(na, srcAddr *wire.NetAddress) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.addAddress(na, srcAddr)
}

// AddAddresses records every address in addrs, all gossiped to us by
// the same srcAddr (an addr message's originating peer).
func (a *AddrManager) AddAddresses(addrs []*wire.NetAddress, srcAddr *wire.NetAddress) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, na := range addrs {
		a.addAddress(na, srcAddr)
	}
}

func (a *AddrManager) addAddress(na, srcAddr *wire.NetAddress) {
	key := addressKey(na)
	if _, ok := a.addrIndex[key]; ok {
		return
	}

	ka := &KnownAddress{na: na, srcAddr: srcAddr}
	bucket := a.newBucket(na, srcAddr)
	if len(a.addrNew[bucket]) >= newBucketSize {
		a.evictOneNew(bucket)
	}
	a.addrNew[bucket][key] = ka
	ka.refs++
	a.addrIndex[key] = ka
	a.nNew++
}

// evictOneNew removes the worst-scoring address in bucket to make room
// for a new insertion, preferring to evict addresses already flagged
// bad.
func (a *AddrManager) evictOneNew(bucket int) {
	var oldest *KnownAddress
	var oldestKey string
	for key, ka := range a.addrNew[bucket] {
		if oldest == nil || ka.isBad() || ka.chance() < oldest.chance() {
			oldest = ka
			oldestKey = key
			if ka.isBad() {
				break
			}
		}
	}
	if oldest == nil {
		return
	}
	delete(a.addrNew[bucket], oldestKey)
	oldest.refs--
	if oldest.refs <= 0 && !oldest.tried {
		delete(a.addrIndex, oldestKey)
		a.nNew--
	}
}

// Good marks addr as having completed a successful handshake, moving
// it from the new set into the tried set.
func (a *AddrManager) Good(addr *wire.NetAddress) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := addressKey(addr)
	ka, ok := a.addrIndex[key]
	if !ok {
		a.addAddress(addr, addr)
		ka = a.addrIndex[key]
	}

	ka.lastsuccess = timeNow()
	ka.lastattempt = ka.lastsuccess
	ka.attempts = 0

	if ka.tried {
		return
	}

	for bucket := range a.addrNew {
		if _, ok := a.addrNew[bucket][key]; ok {
			delete(a.addrNew[bucket], key)
			ka.refs--
		}
	}
	if ka.refs <= 0 {
		a.nNew--
	}
	ka.refs = 0

	bucket := a.triedBucket(addr)
	if len(a.addrTried[bucket]) >= triedBucketSize {
		a.evictOneTried(bucket)
	}
	a.addrTried[bucket] = append(a.addrTried[bucket], ka)
	ka.tried = true
	a.nTried++
}

func (a *AddrManager) evictOneTried(bucket int) {
	entries := a.addrTried[bucket]
	worst := 0
	for i, ka := range entries[1:] {
		if ka.chance() < entries[worst].chance() {
			worst = i + 1
		}
	}
	removed := entries[worst]
	a.addrTried[bucket] = append(entries[:worst], entries[worst+1:]...)
	delete(a.addrIndex, addressKey(removed.na))
	a.nTried--
}

// Attempt records a connection attempt against addr, whether or not it
// succeeded; a caller that succeeded should follow up with Good
// instead of, not in addition to, reporting failure here.
func (a *AddrManager) Attempt(addr *wire.NetAddress) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := addressKey(addr)
	ka, ok := a.addrIndex[key]
	if !ok {
		return
	}
	ka.attempts++
	ka.lastattempt = timeNow()
}

// GetAddress returns a candidate address to dial next, biased toward
// addresses with a higher chance() score. It returns nil if the address
// book is empty, or if none of 64 random draws passes its chance() test.
func (a *AddrManager) GetAddress() *KnownAddress {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.nTried == 0 && a.nNew == 0 {
		return nil
	}

	useTried := a.nTried > 0 && (a.nNew == 0 || a.rng.Intn(2) == 0)

	for attempt := 0; attempt < 64; attempt++ {
		var candidate *KnownAddress
		if useTried {
			candidate = a.randomTried()
		} else {
			candidate = a.randomNew()
		}
		if candidate == nil {
			return nil
		}
		if a.rng.Float64() < candidate.chance() {
			return candidate
		}
	}
	return nil
}

func (a *AddrManager) randomTried() *KnownAddress {
	nonEmpty := make([]int, 0, triedBucketCount)
	for i, bucket := range a.addrTried {
		if len(bucket) > 0 {
			nonEmpty = append(nonEmpty, i)
		}
	}
	if len(nonEmpty) == 0 {
		return nil
	}
	bucket := a.addrTried[nonEmpty[a.rng.Intn(len(nonEmpty))]]
	return bucket[a.rng.Intn(len(bucket))]
}

func (a *AddrManager) randomNew() *KnownAddress {
	nonEmpty := make([]int, 0, newBucketCount)
	for i, bucket := range a.addrNew {
		if len(bucket) > 0 {
			nonEmpty = append(nonEmpty, i)
		}
	}
	if len(nonEmpty) == 0 {
		return nil
	}
	bucket := a.addrNew[nonEmpty[a.rng.Intn(len(nonEmpty))]]
	idx := a.rng.Intn(len(bucket))
	i := 0
	for _, ka := range bucket {
		if i == idx {
			return ka
		}
		i++
	}
	return nil
}

// NeedMoreAddresses reports whether the pool is thin enough that the
// PeerGroup should fall back to DNS seeds or hard-coded seed IPs.
func (a *AddrManager) NeedMoreAddresses() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nNew+a.nTried < newBucketSize/4
}

// AddressCount returns the total number of addresses known, tried and
// new combined.
func (a *AddrManager) AddressCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nNew + a.nTried
}

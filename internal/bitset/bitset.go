// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package bitset provides a byte-backed bit vector for the handful of
// fixed-size bit-flagging problems spvcore has: BIP37 bloom filter data
// and GCS-adjacent bookkeeping. It wraps github.com/jrick/bitset so the
// storage and bit math live in one audited place instead of being
// hand-rolled at each call site.
package bitset

import "github.com/jrick/bitset"

// Set is a fixed-size vector of bits backed by a byte slice.
type Set struct {
	bits bitset.Bytes
	n    int
}

// New returns a Set large enough to hold n bits, all initially unset.
func New(n int) *Set {
	return &Set{bits: bitset.NewBytes(n), n: n}
}

// FromBytes wraps an existing byte slice as a Set of n bits. The slice is
// used directly, not copied; len(b) must be at least (n+7)/8.
func FromBytes(b []byte, n int) *Set {
	return &Set{bits: bitset.Bytes(b), n: n}
}

// Len reports the number of addressable bits.
func (s *Set) Len() int { return s.n }

// Get reports whether bit i is set.
func (s *Set) Get(i int) bool { return s.bits.Get(i) }

// Set sets bit i.
func (s *Set) Set(i int) { s.bits.Set(i) }

// Unset clears bit i.
func (s *Set) Unset(i int) { s.bits.Unset(i) }

// Bytes returns the underlying byte slice backing the set. Callers must
// not retain it past the Set's lifetime if they intend to keep mutating
// through the Set.
func (s *Set) Bytes() []byte { return []byte(s.bits) }

// AllOnesByte reports whether the set is backed by exactly one byte and
// every bit in it is set, the BIP37 encoding for "matches everything".
func (s *Set) AllOnesByte() bool {
	return len(s.bits) == 1 && s.bits[0] == 0xff
}

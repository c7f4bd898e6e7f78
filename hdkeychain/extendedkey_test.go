// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package hdkeychain_test

import (
	"encoding/hex"
	"testing"

	"github.com/ndau-spv/spvcore/chaincfg"
	"github.com/ndau-spv/spvcore/hdkeychain"
)

// TestBIP0032Vector1 exercises the first official BIP32 test vector:
// seed 000102030405060708090a0b0c0d0e0f, checking m, m/0' and m/0'/1.
func TestBIP0032Vector1(t *testing.T) {
	seed, err := hex.DecodeString("000102030405060708090a0b0c0d0e0f")
	if err != nil {
		t.Fatalf("DecodeString: %v", err)
	}
	net := chaincfg.MainNetParams()

	master, err := hdkeychain.NewMaster(seed, net)
	if err != nil {
		t.Fatalf("NewMaster: %v", err)
	}
	if !master.IsPrivate() {
		t.Fatalf("master key should be private")
	}
	wantMaster := "xprv9s21ZrQH143K3QTDL4LXw2F7HEK3wJUD2nW2nRk4stbPy6cq3jPPqjiChkVvvNKmPGJxWUtg6LnF5kejMRNNU3TGtRBeJgk33yuGBxrMPHi"
	if got := master.String(); got != wantMaster {
		t.Fatalf("master key = %s, want %s", got, wantMaster)
	}

	child0h, err := master.Child(hdkeychain.HardenedKeyStart)
	if err != nil {
		t.Fatalf("Child(0'): %v", err)
	}
	wantChild0h := "xprv9uHRZZhk6KAJC1avXpDAp4MDc3sQKNxDiPvvkX8Br5ngLNv1TxvUxt4cV1rGL5hj6KCesnDYUhd7oWgT11eZG7XnxHrnYeSvkzY7d2bhkJ7"
	if child0h.String() != wantChild0h {
		t.Fatalf("child m/0' = %s, want %s", child0h.String(), wantChild0h)
	}

	child0h1, err := child0h.Child(1)
	if err != nil {
		t.Fatalf("Child(1): %v", err)
	}
	wantChild0h1 := "xprv9wTYmMFdV23N2TdNG573QoEsfRrWKQgWeibmLntzniatZvR9BmLnvSxqu53Kw1UmYPxLgboyZQaXwTCg8MSY3H2EU4pWcQDnRnrVA1xe8fs"
	if child0h1.String() != wantChild0h1 {
		t.Fatalf("child m/0'/1 = %s, want %s", child0h1.String(), wantChild0h1)
	}
}

// TestNeuterProducesPublicKey verifies that Neuter strips private key
// material while preserving the public key and chain code.
func TestNeuterProducesPublicKey(t *testing.T) {
	seed, _ := hdkeychain.GenerateSeed(hdkeychain.RecommendedSeedLen)
	net := chaincfg.MainNetParams()

	master, err := hdkeychain.NewMaster(seed, net)
	if err != nil {
		t.Fatalf("NewMaster: %v", err)
	}
	pub, err := master.Neuter()
	if err != nil {
		t.Fatalf("Neuter: %v", err)
	}
	if pub.IsPrivate() {
		t.Fatalf("neutered key should not be private")
	}
	if _, err := pub.ECPrivKey(); err != hdkeychain.ErrNotPrivExtKey {
		t.Fatalf("ECPrivKey on neutered key: got %v, want ErrNotPrivExtKey", err)
	}

	masterPub, err := master.ECPubKey()
	if err != nil {
		t.Fatalf("ECPubKey: %v", err)
	}
	pubPub, err := pub.ECPubKey()
	if err != nil {
		t.Fatalf("ECPubKey: %v", err)
	}
	if !masterPub.IsEqual(pubPub) {
		t.Fatalf("neutered public key does not match master's public key")
	}
}

// TestNeuteredChildCannotDeriveHardened confirms that hardened
// derivation is impossible from a public extended key, per BIP32.
func TestNeuteredChildCannotDeriveHardened(t *testing.T) {
	seed, _ := hdkeychain.GenerateSeed(hdkeychain.RecommendedSeedLen)
	net := chaincfg.MainNetParams()

	master, _ := hdkeychain.NewMaster(seed, net)
	pub, _ := master.Neuter()

	if _, err := pub.Child(hdkeychain.HardenedKeyStart); err != hdkeychain.ErrDeriveHardFromPublic {
		t.Fatalf("Child(hardened) on public key: got %v, want ErrDeriveHardFromPublic", err)
	}
}

// TestNewMasterRejectsBadSeedLength checks the seed length bound.
func TestNewMasterRejectsBadSeedLength(t *testing.T) {
	net := chaincfg.MainNetParams()
	if _, err := hdkeychain.NewMaster(make([]byte, 15), net); err != hdkeychain.ErrInvalidSeedLen {
		t.Fatalf("NewMaster with 15-byte seed: got %v, want ErrInvalidSeedLen", err)
	}
	if _, err := hdkeychain.NewMaster(make([]byte, 65), net); err != hdkeychain.ErrInvalidSeedLen {
		t.Fatalf("NewMaster with 65-byte seed: got %v, want ErrInvalidSeedLen", err)
	}
}

// TestSerializationRoundTrip checks that a key surviving NewKeyFromString
// after String() reproduces the same fields.
func TestSerializationRoundTrip(t *testing.T) {
	seed, _ := hdkeychain.GenerateSeed(hdkeychain.RecommendedSeedLen)
	net := chaincfg.MainNetParams()
	master, _ := hdkeychain.NewMaster(seed, net)

	child, err := master.Child(0)
	if err != nil {
		t.Fatalf("Child(0): %v", err)
	}

	restored, err := hdkeychain.NewKeyFromString(child.String())
	if err != nil {
		t.Fatalf("NewKeyFromString: %v", err)
	}
	if restored.String() != child.String() {
		t.Fatalf("round trip mismatch: got %s, want %s", restored.String(), child.String())
	}
	if restored.ParentFingerprint() != child.ParentFingerprint() {
		t.Fatalf("parent fingerprint mismatch after round trip")
	}
}

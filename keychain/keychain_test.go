// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keychain_test

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/ndau-spv/spvcore/chaincfg"
	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
	"github.com/ndau-spv/spvcore/hdkeychain"
	"github.com/ndau-spv/spvcore/keychain"
	"github.com/ndau-spv/spvcore/txscript"
)

func testSeed(t *testing.T) []byte {
	t.Helper()
	seed, err := hdkeychain.GenerateSeed(hdkeychain.RecommendedSeedLen)
	if err != nil {
		t.Fatalf("generate seed: %v", err)
	}
	return seed
}

func TestFreshKeyAdvancesAndRefillsLookahead(t *testing.T) {
	kc, err := keychain.New(testSeed(t), chaincfg.MainNetParams(), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	first, err := kc.FreshKey(keychain.External)
	if err != nil {
		t.Fatalf("FreshKey: %v", err)
	}
	if first.Index() != 0 {
		t.Fatalf("first issued key index = %d, want 0", first.Index())
	}

	second, err := kc.FreshKey(keychain.External)
	if err != nil {
		t.Fatalf("FreshKey: %v", err)
	}
	if second.Index() != 1 {
		t.Fatalf("second issued key index = %d, want 1", second.Index())
	}

	current, err := kc.CurrentKey(keychain.External)
	if err != nil {
		t.Fatalf("CurrentKey: %v", err)
	}
	if current.Index() != second.Index() {
		t.Fatalf("CurrentKey returned index %d, want %d", current.Index(), second.Index())
	}
}

func TestFindKeyByHashAndMarkUsed(t *testing.T) {
	kc, err := keychain.New(testSeed(t), chaincfg.MainNetParams(), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// A key deep in the lookahead window, never explicitly issued, is
	// still findable by hash: this is what lets the wallet recognize
	// funds paid to an address it handed out before FreshKey caught up.
	farHash := kc.ScriptHashes()
	if len(farHash) == 0 {
		t.Fatalf("expected lookahead keys to be indexed")
	}

	var found bool
	for _, h := range farHash {
		k, ok := kc.FindKeyByHash(h)
		if !ok || k.Hash160() != h {
			t.Fatalf("FindKeyByHash inconsistent for indexed hash")
		}
		found = true
	}
	if !found {
		t.Fatalf("expected at least one indexed key")
	}

	target := farHash[len(farHash)/2]
	k, _ := kc.FindKeyByHash(target)
	if err := kc.MarkUsed(target); err != nil {
		t.Fatalf("MarkUsed: %v", err)
	}

	current, err := kc.CurrentKey(k.Purpose())
	if err != nil {
		t.Fatalf("CurrentKey: %v", err)
	}
	if current.Index() < k.Index() {
		t.Fatalf("MarkUsed did not advance issued counter past the used key")
	}
}

func TestCurrentKeyBeforeAnyIssuanceFails(t *testing.T) {
	kc, err := keychain.New(testSeed(t), chaincfg.MainNetParams(), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := kc.CurrentKey(keychain.Internal); err == nil {
		t.Fatalf("expected CurrentKey to fail before any key is issued")
	}
}

func TestEncryptLocksAndDecryptWithWrongPassphraseFails(t *testing.T) {
	kc, err := keychain.New(testSeed(t), chaincfg.MainNetParams(), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if kc.IsLocked() {
		t.Fatalf("freshly created keychain should be unlocked")
	}

	if err := kc.Encrypt([]byte("correct horse battery staple")); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if !kc.IsLocked() {
		t.Fatalf("keychain should be locked after Encrypt")
	}

	if err := kc.Decrypt([]byte("wrong passphrase")); err == nil {
		t.Fatalf("expected Decrypt to fail with the wrong passphrase")
	}
	if !kc.IsLocked() {
		t.Fatalf("keychain should remain locked after a failed Decrypt")
	}

	if err := kc.Decrypt([]byte("correct horse battery staple")); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if kc.IsLocked() {
		t.Fatalf("keychain should be unlocked after a correct Decrypt")
	}
}

func TestLockRelocksWithoutPassphraseAndDecryptStillWorks(t *testing.T) {
	kc, err := keychain.New(testSeed(t), chaincfg.MainNetParams(), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := kc.Lock(); err == nil {
		t.Fatalf("Lock should fail before the keychain has ever been Encrypted")
	}

	passphrase := []byte("correct horse battery staple")
	if err := kc.Encrypt(passphrase); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if err := kc.Decrypt(passphrase); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if kc.IsLocked() {
		t.Fatalf("keychain should be unlocked after Decrypt")
	}

	if err := kc.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if !kc.IsLocked() {
		t.Fatalf("keychain should be locked after Lock")
	}

	// Lock must not have disturbed the stored ciphertext: the original
	// passphrase still decrypts it.
	if err := kc.Decrypt(passphrase); err != nil {
		t.Fatalf("Decrypt after Lock: %v", err)
	}
	if kc.IsLocked() {
		t.Fatalf("keychain should be unlocked after Decrypt")
	}
}

func TestSignProducesVerifiableSignature(t *testing.T) {
	kc, err := keychain.New(testSeed(t), chaincfg.MainNetParams(), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	key, err := kc.FreshKey(keychain.External)
	if err != nil {
		t.Fatalf("FreshKey: %v", err)
	}

	sigHash := chainhash.HashH([]byte("a transaction's signature hash"))
	sig, err := kc.Sign(key, sigHash, txscript.SigHashAll)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(sig) == 0 {
		t.Fatalf("Sign returned an empty signature")
	}
	if wantSuffix := byte(txscript.SigHashAll); sig[len(sig)-1] != wantSuffix {
		t.Fatalf("signature hash type byte = %#x, want %#x", sig[len(sig)-1], wantSuffix)
	}

	pub, err := key.ExtendedKey().ECPubKey()
	if err != nil {
		t.Fatalf("ECPubKey: %v", err)
	}
	der := sig[:len(sig)-1]
	parsed, err := ecdsa.ParseDERSignature(der)
	if err != nil {
		t.Fatalf("parse DER signature: %v", err)
	}
	if !parsed.Verify(sigHash[:], pub) {
		t.Fatalf("signature does not verify against the signing key's public key")
	}
}

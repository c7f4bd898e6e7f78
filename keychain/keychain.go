// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package keychain layers BIP44 account/external/internal subchains, key
// lookahead, and a HASH160-to-key index on top of hdkeychain's BIP32
// derivation.
package keychain

import (
	"sync"

	"github.com/ndau-spv/spvcore/address"
	"github.com/ndau-spv/spvcore/chaincfg"
	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
	"github.com/ndau-spv/spvcore/crypter"
	"github.com/ndau-spv/spvcore/hdkeychain"
	"github.com/ndau-spv/spvcore/primitives"
	"github.com/ndau-spv/spvcore/txscript"
	"github.com/ndau-spv/spvcore/walleterrors"
)

// Purpose selects a KeyChain's external (receiving) or internal (change)
// subchain, matching BIP44's chain component (m/44'/coin'/account'/chain/index).
type Purpose uint32

const (
	// External is the receiving subchain, handed out to counterparties.
	External Purpose = 0

	// Internal is the change subchain, used only by the wallet itself.
	Internal Purpose = 1
)

func (p Purpose) String() string {
	if p == Internal {
		return "internal"
	}
	return "external"
}

const (
	// DefaultLookaheadSize is the number of keys kept derived and
	// indexed past the highest issued index on each subchain.
	DefaultLookaheadSize = 100

	// DefaultLookaheadThreshold is the lookahead threshold a new
	// KeyChain records (see SetLookahead). refill does not consult it:
	// every issuance tops the window back up to lookaheadSize keys.
	DefaultLookaheadThreshold = 33

	// bip44Purpose is the hardened purpose field for BIP44 paths.
	bip44Purpose = 44 + hdkeychain.HardenedKeyStart
)

// Key is a single derived keypair, indexed by its public key hash.
type Key struct {
	extended *hdkeychain.ExtendedKey
	purpose  Purpose
	index    uint32
	hash160  [20]byte
}

// ExtendedKey returns the underlying BIP32 node, from which both the
// private and public key material can be recovered.
func (k *Key) ExtendedKey() *hdkeychain.ExtendedKey { return k.extended }

// Purpose reports whether k belongs to the external or internal subchain.
func (k *Key) Purpose() Purpose { return k.purpose }

// Index reports k's position within its subchain.
func (k *Key) Index() uint32 { return k.index }

// Hash160 returns HASH160(compressed pubkey), the value a P2PKH output
// script commits to.
func (k *Key) Hash160() [20]byte { return k.hash160 }

// Address returns the P2PKH address k pays to on net.
func (k *Key) Address(net *chaincfg.Params) (*address.Address, error) {
	h := k.hash160
	return address.NewAddressPubKeyHash(h[:], net)
}

// subchain tracks one BIP44 branch (external or internal): the branch's
// extended key, how many of its keys have been issued to callers, and
// the lookahead window derived and indexed past that point.
type subchain struct {
	branch      *hdkeychain.ExtendedKey
	issuedKeys  uint32 // count of keys returned by freshKey
	derivedKeys uint32 // count of keys derived and indexed so far
}

// KeyChain is a single BIP44 account: a purpose-44' / coin-type' /
// account' node with external and internal subchains beneath it, each
// maintaining a lookahead window and a HASH160-to-key index.
//
// KeyChain is safe for concurrent use.
type KeyChain struct {
	mu sync.RWMutex

	net        *chaincfg.Params
	account    *hdkeychain.ExtendedKey // m/44'/coin'/account', private while unlocked
	neutered   *hdkeychain.ExtendedKey // same node, public only
	accountNum uint32

	lookaheadSize      uint32
	lookaheadThreshold uint32

	chains     [2]subchain
	index      map[[20]byte]*Key
	indexByPos [2]map[uint32][20]byte

	crypt *crypter.Crypter // nil when locked or never encrypted

	cryptParams      *crypter.Params // persisted alongside encryptedAccount; nil until Encrypt is called
	encryptedAccount []byte          // ciphertext of account.String(); nil until Encrypt is called
}

// New derives a BIP44 account KeyChain from seed for net, using the
// default lookahead parameters.
func New(seed []byte, net *chaincfg.Params, account uint32) (*KeyChain, error) {
	master, err := hdkeychain.NewMaster(seed, net)
	if err != nil {
		return nil, walleterrors.E(walleterrors.Invalid, "derive master key", err)
	}
	defer master.Zero()

	purposeKey, err := master.Child(bip44Purpose)
	if err != nil {
		return nil, walleterrors.E(walleterrors.Invalid, "derive purpose node", err)
	}
	coinKey, err := purposeKey.Child(net.HDCoinType + hdkeychain.HardenedKeyStart)
	if err != nil {
		return nil, walleterrors.E(walleterrors.Invalid, "derive coin-type node", err)
	}
	accountKey, err := coinKey.Child(account + hdkeychain.HardenedKeyStart)
	if err != nil {
		return nil, walleterrors.E(walleterrors.Invalid, "derive account node", err)
	}

	neutered, err := accountKey.Neuter()
	if err != nil {
		return nil, walleterrors.E(walleterrors.Invalid, "neuter account node", err)
	}

	kc := &KeyChain{
		net:                net,
		account:            accountKey,
		neutered:           neutered,
		accountNum:         account,
		lookaheadSize:      DefaultLookaheadSize,
		lookaheadThreshold: DefaultLookaheadThreshold,
		index:              make(map[[20]byte]*Key),
		indexByPos:         [2]map[uint32][20]byte{make(map[uint32][20]byte), make(map[uint32][20]byte)},
	}

	for _, purpose := range []Purpose{External, Internal} {
		branch, err := accountKey.Child(uint32(purpose))
		if err != nil {
			return nil, walleterrors.E(walleterrors.Invalid, "derive branch node", err)
		}
		kc.chains[purpose] = subchain{branch: branch}
		if err := kc.refill(purpose); err != nil {
			return nil, err
		}
	}

	return kc, nil
}

// SetLookahead overrides the default lookahead size and threshold.
// Shrinking lookaheadSize below the number of already-derived keys is a
// no-op: the index never shrinks, only grows.
func (kc *KeyChain) SetLookahead(lookaheadSize, lookaheadThreshold uint32) {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	kc.lookaheadSize = lookaheadSize
	kc.lookaheadThreshold = lookaheadThreshold
}

// refill derives and indexes keys on purpose's subchain until
// derivedKeys reaches issuedKeys+lookaheadSize. Callers must hold kc.mu
// for writing, except during New where no lock is needed yet.
func (kc *KeyChain) refill(purpose Purpose) error {
	c := &kc.chains[purpose]
	target := c.issuedKeys + kc.lookaheadSize
	if c.derivedKeys < target {
		log.Debugf("refilling lookahead for purpose %d: %d -> %d derived keys", purpose, c.derivedKeys, target)
	}
	for c.derivedKeys < target {
		idx := c.derivedKeys
		child, err := c.branch.Child(idx)
		if err != nil {
			return walleterrors.E(walleterrors.Invalid, "derive lookahead key", err)
		}
		pub, err := child.ECPubKey()
		if err != nil {
			return walleterrors.E(walleterrors.Invalid, "recover public key", err)
		}
		h160 := primitives.Hash160(pub.SerializeCompressed())
		var hash160 [20]byte
		copy(hash160[:], h160[:])

		kc.index[hash160] = &Key{
			extended: child,
			purpose:  purpose,
			index:    idx,
			hash160:  hash160,
		}
		kc.indexByPos[purpose][idx] = hash160
		c.derivedKeys++
	}
	return nil
}

// FreshKey returns the next unissued key on purpose's subchain,
// advancing the issued counter and topping up the lookahead window.
func (kc *KeyChain) FreshKey(purpose Purpose) (*Key, error) {
	kc.mu.Lock()
	defer kc.mu.Unlock()

	c := &kc.chains[purpose]
	idx := c.issuedKeys
	if err := kc.ensureDerived(purpose, idx); err != nil {
		return nil, err
	}
	key := kc.keyAt(purpose, idx)
	c.issuedKeys++
	if err := kc.refill(purpose); err != nil {
		return nil, err
	}
	return key, nil
}

// CurrentKey returns the most recently issued key on purpose's
// subchain without advancing the issued counter. It returns
// walleterrors.KeyMissing if no key has been issued yet.
func (kc *KeyChain) CurrentKey(purpose Purpose) (*Key, error) {
	kc.mu.RLock()
	defer kc.mu.RUnlock()

	c := kc.chains[purpose]
	if c.issuedKeys == 0 {
		return nil, walleterrors.E(walleterrors.KeyMissing, "no key has been issued on this subchain", nil)
	}
	return kc.keyAt(purpose, c.issuedKeys-1), nil
}

// FindKeyByHash looks up the key whose HASH160(pubkey) is hash160,
// searching both subchains' lookahead indexes.
func (kc *KeyChain) FindKeyByHash(hash160 [20]byte) (*Key, bool) {
	kc.mu.RLock()
	defer kc.mu.RUnlock()
	k, ok := kc.index[hash160]
	return k, ok
}

// MarkUsed records that a wallet-relevant transaction touched the key
// identified by hash160, advancing that subchain's issued counter to at
// least this key's index and refilling the lookahead window.
func (kc *KeyChain) MarkUsed(hash160 [20]byte) error {
	kc.mu.Lock()
	defer kc.mu.Unlock()

	k, ok := kc.index[hash160]
	if !ok {
		return walleterrors.E(walleterrors.KeyMissing, "hash not tracked by this keychain", nil)
	}

	c := &kc.chains[k.purpose]
	if k.index+1 > c.issuedKeys {
		c.issuedKeys = k.index + 1
		log.Debugf("marked used: purpose %d index %d, issued counter now %d", k.purpose, k.index, c.issuedKeys)
	}
	return kc.refill(k.purpose)
}

// ensureDerived grows the index, if needed, to cover idx. Called while
// holding kc.mu for writing.
func (kc *KeyChain) ensureDerived(purpose Purpose, idx uint32) error {
	c := &kc.chains[purpose]
	if idx < c.derivedKeys {
		return nil
	}
	target := idx + 1
	for c.derivedKeys < target {
		child, err := c.branch.Child(c.derivedKeys)
		if err != nil {
			return walleterrors.E(walleterrors.Invalid, "derive key", err)
		}
		pub, err := child.ECPubKey()
		if err != nil {
			return walleterrors.E(walleterrors.Invalid, "recover public key", err)
		}
		h160 := primitives.Hash160(pub.SerializeCompressed())
		var hash160 [20]byte
		copy(hash160[:], h160[:])
		kc.index[hash160] = &Key{extended: child, purpose: purpose, index: c.derivedKeys, hash160: hash160}
		kc.indexByPos[purpose][c.derivedKeys] = hash160
		c.derivedKeys++
	}
	return nil
}

// keyAt returns the already-derived key at purpose/idx. Called while
// holding kc.mu.
func (kc *KeyChain) keyAt(purpose Purpose, idx uint32) *Key {
	hash160, ok := kc.indexByPos[purpose][idx]
	if !ok {
		return nil
	}
	return kc.index[hash160]
}

// ScriptHashes returns HASH160 values for every key currently indexed
// across both subchains, the set a PeerGroup feeds into its bloom
// filter.
func (kc *KeyChain) ScriptHashes() [][20]byte {
	kc.mu.RLock()
	defer kc.mu.RUnlock()
	out := make([][20]byte, 0, len(kc.index))
	for h := range kc.index {
		out = append(out, h)
	}
	return out
}

// NeuteredAccountKey returns the account-level extended public key
// (m/44'/coin'/account'), safe to export for watch-only use.
func (kc *KeyChain) NeuteredAccountKey() *hdkeychain.ExtendedKey {
	return kc.neutered
}

// IsLocked reports whether the KeyChain's private key material has
// been encrypted and the in-memory copy discarded.
func (kc *KeyChain) IsLocked() bool {
	kc.mu.RLock()
	defer kc.mu.RUnlock()
	return kc.account == nil
}

// Lock discards the in-memory private account key without touching the
// stored ciphertext, re-sealing a KeyChain that was previously Encrypt
// with a passphrase still recoverable via Decrypt. Unlike Encrypt, it
// takes no passphrase and cannot be used to seal a KeyChain for the
// first time.
func (kc *KeyChain) Lock() error {
	kc.mu.Lock()
	defer kc.mu.Unlock()

	if kc.encryptedAccount == nil {
		return walleterrors.E(walleterrors.Invalid, "keychain has never been encrypted", nil)
	}
	if kc.account == nil {
		return nil
	}
	kc.account.Zero()
	kc.account = nil
	kc.crypt = nil
	log.Infof("keychain locked")
	return nil
}

// Encrypt derives an encryption key from passphrase (generating fresh
// scrypt parameters on first use), seals the account's serialized
// private extended key under it, and discards the in-memory private
// copy. Keys already issued via FreshKey/MarkUsed keep their derived
// private material resident for this process's lifetime; Encrypt
// protects the account seed used to derive further keys, not those
// already indexed.
func (kc *KeyChain) Encrypt(passphrase []byte) error {
	kc.mu.Lock()
	defer kc.mu.Unlock()

	if kc.account == nil {
		return walleterrors.E(walleterrors.Invalid, "keychain is already locked", nil)
	}

	if kc.cryptParams == nil {
		params, err := crypter.NewParams()
		if err != nil {
			return err
		}
		kc.cryptParams = params
	}

	c, err := crypter.New(kc.cryptParams, passphrase)
	if err != nil {
		return err
	}
	defer c.Zero()

	ciphertext, err := c.Encrypt([]byte(kc.account.String()))
	if err != nil {
		return walleterrors.E(walleterrors.Invalid, "encrypt account key", err)
	}

	kc.encryptedAccount = ciphertext
	kc.account.Zero()
	kc.account = nil
	kc.crypt = nil
	log.Infof("keychain locked")
	return nil
}

// Decrypt reverses Encrypt, restoring the account's private key in
// memory so FreshKey, MarkUsed and Sign can derive and use private
// material again. It is a no-op if the keychain is already unlocked.
func (kc *KeyChain) Decrypt(passphrase []byte) error {
	kc.mu.Lock()
	defer kc.mu.Unlock()

	if kc.account != nil {
		return nil
	}
	if kc.encryptedAccount == nil {
		return walleterrors.E(walleterrors.Invalid, "keychain has never been encrypted", nil)
	}

	c, err := crypter.New(kc.cryptParams, passphrase)
	if err != nil {
		return err
	}

	plaintext, err := c.Decrypt(kc.encryptedAccount)
	if err != nil {
		c.Zero()
		return walleterrors.E(walleterrors.Invalid, "decrypt account key", err)
	}

	account, err := hdkeychain.NewKeyFromString(string(plaintext))
	for i := range plaintext {
		plaintext[i] = 0
	}
	if err != nil {
		c.Zero()
		return walleterrors.E(walleterrors.Invalid, "parse decrypted account key", err)
	}

	kc.account = account
	kc.crypt = c
	log.Infof("keychain unlocked")
	return nil
}

// Sign produces a DER-encoded, hashType-tagged signature over sigHash
// using key's private material, for embedding in a transaction's
// signature script. It returns walleterrors.Invalid if key carries no
// private component (a watch-only key derived from a neutered account).
func (kc *KeyChain) Sign(key *Key, sigHash chainhash.Hash, hashType txscript.SigHashType) ([]byte, error) {
	kc.mu.RLock()
	defer kc.mu.RUnlock()

	if key.extended == nil || !key.extended.IsPrivate() {
		return nil, walleterrors.E(walleterrors.Invalid, "key has no private material", nil)
	}

	priv, err := key.extended.ECPrivKey()
	if err != nil {
		return nil, walleterrors.E(walleterrors.Invalid, "recover private key", err)
	}
	return txscript.RawTxInSignature(sigHash, hashType, priv), nil
}

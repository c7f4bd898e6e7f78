// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package hdkeychain implements BIP32 hierarchical deterministic key
// derivation, the mechanism spec.md's KeyChain uses to derive an
// unbounded stream of addresses from a single seed.
package hdkeychain

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/EXCCoin/base58"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ndau-spv/spvcore/address"
	"github.com/ndau-spv/spvcore/chaincfg"
	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
	"github.com/ndau-spv/spvcore/primitives"
)

const (
	// RecommendedSeedLen is the recommended length in bytes for a seed
	// to a master node.
	RecommendedSeedLen = 32

	// HardenedKeyStart is the index at which a hardened key starts, per
	// BIP32. Indices at or above this value derive hardened children,
	// which cannot be derived from an extended public key alone.
	HardenedKeyStart = 0x80000000

	// MinSeedBytes and MaxSeedBytes are the minimum and maximum
	// allowable length, in bytes, of a seed to a master node.
	MinSeedBytes = 16
	MaxSeedBytes = 64

	serializedKeyLen = 4 + 1 + 4 + 4 + 32 + 33 + 4
)

var (
	// ErrDeriveHardFromPublic describes an error in which the caller
	// attempted to derive a hardened extended key from a public key.
	ErrDeriveHardFromPublic = errors.New("cannot derive a hardened key from a public key")

	// ErrNotPrivExtKey describes an error in which the caller attempted
	// to extract a private key from a public extended key.
	ErrNotPrivExtKey = errors.New("unable to create private keys from a public extended key")

	// ErrInvalidChild describes an error in which the child at a
	// particular index is invalid, per BIP32; the caller should simply
	// ignore the derivation at this index and use the next one instead.
	// This error has a probability of around 1 in 2^127.
	ErrInvalidChild = errors.New("the extended key at this index is invalid")

	// ErrInvalidSeedLen describes an error in which the provided seed
	// is not between MinSeedBytes and MaxSeedBytes.
	ErrInvalidSeedLen = fmt.Errorf("seed length must be between %d and %d bits", MinSeedBytes*8, MaxSeedBytes*8)

	// ErrBadChecksum describes an error in which the checksum encoded
	// in a serialized extended key does not match the calculated one.
	ErrBadChecksum = errors.New("bad extended key checksum")

	// ErrInvalidKeyLen describes an error in which the provided
	// serialized key is not the expected length.
	ErrInvalidKeyLen = errors.New("the provided serialized extended key length is invalid")

	masterKey = []byte("Bitcoin seed")
)

// ExtendedKey houses all the information needed to support a BIP32
// hierarchical deterministic extended key, and derives child keys of
// itself by way of its Child method.
type ExtendedKey struct {
	key       []byte // 33 bytes for public, 32 for private (padded caller-side to 33 w/ leading 0x00)
	pubKey    []byte // always the compressed public key
	chainCode []byte
	depth     uint8
	parentFP  []byte
	childNum  uint32
	version   [4]byte
	isPrivate bool
}

// NewExtendedKey returns a new instance of an extended key with the given
// fields. No error checking is performed here as it's only intended to be
// a convenience method used to create a populated struct.
func NewExtendedKey(version [4]byte, key, chainCode, parentFP []byte, depth uint8, childNum uint32, isPrivate bool) *ExtendedKey {
	return &ExtendedKey{
		key:       key,
		chainCode: chainCode,
		depth:     depth,
		parentFP:  parentFP,
		childNum:  childNum,
		version:   version,
		isPrivate: isPrivate,
	}
}

// pubKeyBytes returns the compressed serialized public key associated
// with the extended key, computing it from the private key the first
// time if necessary.
func (k *ExtendedKey) pubKeyBytes() []byte {
	if k.pubKey != nil {
		return k.pubKey
	}
	if !k.isPrivate {
		k.pubKey = k.key
		return k.pubKey
	}

	privKey := secp256k1.PrivKeyFromBytes(k.key)
	k.pubKey = privKey.PubKey().SerializeCompressed()
	return k.pubKey
}

// IsPrivate returns whether the extended key is a private extended key.
func (k *ExtendedKey) IsPrivate() bool {
	return k.isPrivate
}

// Depth returns the current derivation depth of the extended key, with
// the root node having depth zero.
func (k *ExtendedKey) Depth() uint8 {
	return k.depth
}

// ParentFingerprint returns a fingerprint of the parent extended key from
// which this one was derived.
func (k *ExtendedKey) ParentFingerprint() uint32 {
	return binary.BigEndian.Uint32(k.parentFP)
}

// ChildIndex returns the child index used to derive this key.
func (k *ExtendedKey) ChildIndex() uint32 {
	return k.childNum
}

// Child returns a derived child extended key at the given index. Indices
// at or above HardenedKeyStart derive a hardened key, possible only from
// a private extended key.
//
// There is a small chance, around 1 in 2^127, that the specific child
// index does not derive to a usable key; ErrInvalidChild is returned in
// that case and the caller should retry with the next index.
func (k *ExtendedKey) Child(i uint32) (*ExtendedKey, error) {
	isChildHardened := i >= HardenedKeyStart
	if !k.isPrivate && isChildHardened {
		return nil, ErrDeriveHardFromPublic
	}

	var data []byte
	if isChildHardened {
		data = make([]byte, 0, 37)
		data = append(data, 0x00)
		data = append(data, k.key...)
	} else {
		data = append(data, k.pubKeyBytes()...)
	}
	data = append(data, byte(i>>24), byte(i>>16), byte(i>>8), byte(i))

	hmac512 := hmac.New(sha512.New, k.chainCode)
	hmac512.Write(data)
	ilr := hmac512.Sum(nil)
	il := ilr[:32]
	childChainCode := ilr[32:]

	var ilScalar secp256k1.ModNScalar
	if overflow := ilScalar.SetByteSlice(il); overflow || ilScalar.IsZero() {
		return nil, ErrInvalidChild
	}

	parentFP := primitives.Hash160(k.pubKeyBytes())[:4]

	if k.isPrivate {
		var keyScalar secp256k1.ModNScalar
		if overflow := keyScalar.SetByteSlice(k.key); overflow {
			return nil, ErrInvalidChild
		}
		childScalar := new(secp256k1.ModNScalar).Set(&keyScalar)
		childScalar.Add(&ilScalar)
		if childScalar.IsZero() {
			return nil, ErrInvalidChild
		}
		childKeyArr := childScalar.Bytes()
		childKey := childKeyArr[:]

		return NewExtendedKey(k.version, childKey, childChainCode, parentFP, k.depth+1, i, true), nil
	}

	ilPriv := secp256k1.NewPrivateKey(&ilScalar)
	parentPoint, err := secp256k1.ParsePubKey(k.pubKeyBytes())
	if err != nil {
		return nil, err
	}
	childPoint, ok := addPublicKeys(ilPriv.PubKey(), parentPoint)
	if !ok {
		return nil, ErrInvalidChild
	}
	childKey := childPoint.SerializeCompressed()

	return NewExtendedKey(k.version, childKey, childChainCode, parentFP, k.depth+1, i, false), nil
}

// addPublicKeys returns the elliptic-curve sum of a and b, the operation
// BIP32 public-key derivation relies on: the child key is the parent
// point plus the point generated by the HMAC output scalar.
func addPublicKeys(a, b *secp256k1.PublicKey) (*secp256k1.PublicKey, bool) {
	var aJ, bJ, sumJ secp256k1.JacobianPoint
	a.AsJacobian(&aJ)
	b.AsJacobian(&bJ)
	secp256k1.AddNonConst(&aJ, &bJ, &sumJ)
	if (sumJ.X.IsZero() && sumJ.Y.IsZero()) || sumJ.Z.IsZero() {
		return nil, false
	}
	sumJ.ToAffine()
	return secp256k1.NewPublicKey(&sumJ.X, &sumJ.Y), true
}

// Neuter returns a new extended public key from this extended key. The
// same extended key will be returned unaltered if it is already an
// extended public key.
func (k *ExtendedKey) Neuter() (*ExtendedKey, error) {
	if !k.isPrivate {
		return k, nil
	}

	version, err := chainPubVersion(k.version)
	if err != nil {
		return nil, err
	}

	return NewExtendedKey(version, k.pubKeyBytes(), k.chainCode, k.parentFP, k.depth, k.childNum, false), nil
}

// ECPrivKey converts the extended key to a secp256k1 private key and
// returns it, or ErrNotPrivExtKey if the extended key is a public one.
func (k *ExtendedKey) ECPrivKey() (*secp256k1.PrivateKey, error) {
	if !k.isPrivate {
		return nil, ErrNotPrivExtKey
	}
	return secp256k1.PrivKeyFromBytes(k.key), nil
}

// ECPubKey converts the extended key to a secp256k1 public key and
// returns it.
func (k *ExtendedKey) ECPubKey() (*secp256k1.PublicKey, error) {
	return secp256k1.ParsePubKey(k.pubKeyBytes())
}

// Address returns the P2PKH address for this extended key's public key on
// the given network.
func (k *ExtendedKey) Address(net *chaincfg.Params) (*address.Address, error) {
	return address.NewAddressPubKeyHash(primitives.Hash160(k.pubKeyBytes()), net)
}

// String returns the Base58Check-encoded extended key, using the version
// bytes set when it (or its ancestor) was created.
func (k *ExtendedKey) String() string {
	if len(k.key) == 0 {
		return ""
	}

	var serialized [serializedKeyLen]byte
	copy(serialized[0:4], k.version[:])
	serialized[4] = k.depth
	copy(serialized[5:9], k.parentFP)
	binary.BigEndian.PutUint32(serialized[9:13], k.childNum)
	copy(serialized[13:45], k.chainCode)
	if k.isPrivate {
		serialized[45] = 0x00
		copy(serialized[46:78], paddedPrivKey(k.key))
	} else {
		copy(serialized[45:78], k.pubKeyBytes())
	}

	checkSum := chainhash.HashB(serialized[:78])[:4]
	serializedWithChecksum := append(serialized[:78], checkSum...)
	return base58.Encode(serializedWithChecksum)
}

func paddedPrivKey(key []byte) []byte {
	if len(key) == 32 {
		return key
	}
	padded := make([]byte, 32)
	copy(padded[32-len(key):], key)
	return padded
}

// NewMaster creates a new master node for use in creating a hierarchical
// deterministic key chain, per BIP32. The seed must be between
// MinSeedBytes and MaxSeedBytes in length.
func NewMaster(seed []byte, net *chaincfg.Params) (*ExtendedKey, error) {
	if len(seed) < MinSeedBytes || len(seed) > MaxSeedBytes {
		return nil, ErrInvalidSeedLen
	}

	hmac512 := hmac.New(sha512.New, masterKey)
	hmac512.Write(seed)
	lr := hmac512.Sum(nil)

	secretKey := lr[:32]
	chainCode := lr[32:]

	var secretScalar secp256k1.ModNScalar
	if overflow := secretScalar.SetByteSlice(secretKey); overflow || secretScalar.IsZero() {
		return nil, ErrInvalidChild
	}

	parentFP := []byte{0x00, 0x00, 0x00, 0x00}
	return NewExtendedKey(net.HDPrivateKeyID, secretKey, chainCode, parentFP, 0, 0, true), nil
}

// GenerateSeed returns a cryptographically secure random seed suitable
// for use with NewMaster, of the given length in bytes, which must be
// between MinSeedBytes and MaxSeedBytes.
func GenerateSeed(length uint8) ([]byte, error) {
	if length < MinSeedBytes || length > MaxSeedBytes {
		return nil, ErrInvalidSeedLen
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// NewKeyFromString returns a new extended key instance from a
// Base58-encoded extended key.
func NewKeyFromString(key string) (*ExtendedKey, error) {
	decoded := base58.Decode(key)
	if len(decoded) != serializedKeyLen {
		return nil, ErrInvalidKeyLen
	}

	payload := decoded[:len(decoded)-4]
	checksum := decoded[len(decoded)-4:]
	expectedChecksum := chainhash.HashB(payload)[:4]
	if !bytes.Equal(checksum, expectedChecksum) {
		return nil, ErrBadChecksum
	}

	var version [4]byte
	copy(version[:], payload[0:4])
	depth := payload[4]
	parentFP := payload[5:9]
	childNum := binary.BigEndian.Uint32(payload[9:13])
	chainCode := payload[13:45]
	keyData := payload[45:78]

	isPrivate := keyData[0] == 0x00
	if isPrivate {
		keyData = keyData[1:]
	}

	return NewExtendedKey(version, append([]byte(nil), keyData...), append([]byte(nil), chainCode...),
		append([]byte(nil), parentFP...), depth, childNum, isPrivate), nil
}

// Zero manually clears the private key material, parent fingerprint,
// chain code, public key, and version fields of the extended key. This
// is meant to be called on keys derived from a passphrase or seed after
// the caller is finished with them, to reduce the lifetime that the
// plaintext secret material is resident in memory.
func (k *ExtendedKey) Zero() {
	zero(k.key)
	zero(k.chainCode)
	zero(k.parentFP)
	zero(k.pubKey)
	k.version = [4]byte{}
	k.key = nil
	k.pubKey = nil
	k.chainCode = nil
	k.parentFP = nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// chainPubVersion maps a private extended-key version prefix to its
// corresponding public one.
func chainPubVersion(privVersion [4]byte) ([4]byte, error) {
	networks := []*chaincfg.Params{
		chaincfg.MainNetParams(),
		chaincfg.TestNet3Params(),
		chaincfg.RegressionNetParams(),
	}
	for _, net := range networks {
		if net.HDPrivateKeyID == privVersion {
			return net.HDPublicKeyID, nil
		}
	}
	return [4]byte{}, fmt.Errorf("unknown hd private key version %x", privVersion)
}

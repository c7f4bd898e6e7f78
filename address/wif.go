// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package address implements Base58Check encoding and decoding of
// pay-to-pubkey-hash and pay-to-script-hash addresses and Wallet Import
// Format (WIF) private keys, per spec.md's KeyChain component.
package address

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/EXCCoin/base58"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ndau-spv/spvcore/chaincfg"
	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
)

// ErrMalformedPrivateKey describes an error where a WIF-encoded private
// key cannot be decoded due to being improperly formatted.
var ErrMalformedPrivateKey = errors.New("malformed private key")

// ErrChecksumMismatch describes an error where decoding failed due to a
// bad checksum.
var ErrChecksumMismatch = errors.New("checksum mismatch")

const (
	compressMagic   = 0x01
	privKeyBytesLen = 32
	cksumBytesLen   = 4
)

// ErrWrongWIFNetwork reports that a decoded WIF's network identifier byte
// does not match the expected network.
type ErrWrongWIFNetwork byte

func (e ErrWrongWIFNetwork) Error() string {
	return fmt.Sprintf("WIF is not for the network identified by %#02x", byte(e))
}

// WIF holds the components of a Wallet Import Format private key: the
// raw private key bytes, whether the associated address uses the
// compressed public key serialization, and the network identifier byte
// used when encoding.
type WIF struct {
	PrivKey        *secp256k1.PrivateKey
	CompressPubKey bool
	netID          byte
}

// NewWIF creates a WIF wrapping privKey for the given network; compress
// selects whether the public key is serialized in compressed form.
func NewWIF(privKey *secp256k1.PrivateKey, net *chaincfg.Params, compress bool) (*WIF, error) {
	if net == nil {
		return nil, errors.New("no network")
	}
	return &WIF{PrivKey: privKey, CompressPubKey: compress, netID: net.PrivateKeyID}, nil
}

// IsForNet returns whether the decoded WIF is associated with net.
func (w *WIF) IsForNet(net *chaincfg.Params) bool {
	return w.netID == net.PrivateKeyID
}

// DecodeWIF decodes the Base58Check string encoding of a WIF private key.
//
// The encoded byte sequence is:
//   - 1 byte network identifier (e.g. 0x80 for mainnet, 0xef for testnet)
//   - 32 bytes of big-endian private key
//   - optional 1 byte (0x01) marking a compressed-pubkey address
//   - 4 bytes of double-SHA256 checksum
func DecodeWIF(wif string) (*WIF, error) {
	decoded := base58.Decode(wif)
	decodedLen := len(decoded)

	var compress bool
	switch decodedLen {
	case 1 + privKeyBytesLen + 1 + cksumBytesLen:
		if decoded[1+privKeyBytesLen] != compressMagic {
			return nil, ErrMalformedPrivateKey
		}
		compress = true
	case 1 + privKeyBytesLen + cksumBytesLen:
		compress = false
	default:
		return nil, ErrMalformedPrivateKey
	}

	var tosum []byte
	if compress {
		tosum = decoded[:1+privKeyBytesLen+1]
	} else {
		tosum = decoded[:1+privKeyBytesLen]
	}
	cksum := chainhash.HashB(tosum)[:cksumBytesLen]
	if !bytes.Equal(cksum, decoded[decodedLen-cksumBytesLen:]) {
		return nil, ErrChecksumMismatch
	}

	privKeyBytes := decoded[1 : 1+privKeyBytesLen]
	privKey := secp256k1.PrivKeyFromBytes(privKeyBytes)

	return &WIF{PrivKey: privKey, CompressPubKey: compress, netID: decoded[0]}, nil
}

// String returns the Base58Check-encoded WIF representation.
func (w *WIF) String() string {
	encodeLen := 1 + privKeyBytesLen + cksumBytesLen
	if w.CompressPubKey {
		encodeLen++
	}

	a := make([]byte, 0, encodeLen)
	a = append(a, w.netID)
	a = append(a, w.PrivKey.Serialize()...)
	if w.CompressPubKey {
		a = append(a, compressMagic)
	}

	cksum := chainhash.HashB(a)
	a = append(a, cksum[:cksumBytesLen]...)
	return base58.Encode(a)
}

// SerializePubKey returns the public key in the serialization form (
// compressed or uncompressed) matching w.CompressPubKey.
func (w *WIF) SerializePubKey() []byte {
	pub := w.PrivKey.PubKey()
	if w.CompressPubKey {
		return pub.SerializeCompressed()
	}
	return pub.SerializeUncompressed()
}

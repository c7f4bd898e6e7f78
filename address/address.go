// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package address

import (
	"bytes"
	"fmt"

	"github.com/EXCCoin/base58"
	"github.com/ndau-spv/spvcore/chaincfg"
	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
	"github.com/ndau-spv/spvcore/primitives"
)

// Address is a decoded Base58Check-encoded payment address: either a
// pay-to-pubkey-hash or pay-to-script-hash destination, tied to the
// network whose version byte it carries.
type Address struct {
	hash    [20]byte
	isP2SH  bool
	netID   byte
}

// NewAddressPubKeyHash returns the P2PKH address for the given 20-byte
// HASH160 on the given network.
func NewAddressPubKeyHash(pkHash []byte, net *chaincfg.Params) (*Address, error) {
	if len(pkHash) != 20 {
		return nil, fmt.Errorf("pubkey hash must be 20 bytes, got %d", len(pkHash))
	}
	a := &Address{netID: net.PubKeyHashAddrID}
	copy(a.hash[:], pkHash)
	return a, nil
}

// NewAddressScriptHash returns the P2SH address for the given 20-byte
// HASH160 of a redeem script on the given network.
func NewAddressScriptHash(scriptHash []byte, net *chaincfg.Params) (*Address, error) {
	if len(scriptHash) != 20 {
		return nil, fmt.Errorf("script hash must be 20 bytes, got %d", len(scriptHash))
	}
	a := &Address{isP2SH: true, netID: net.ScriptHashAddrID}
	copy(a.hash[:], scriptHash)
	return a, nil
}

// NewAddressScriptHashFromScript hashes script and returns its P2SH
// address on the given network.
func NewAddressScriptHashFromScript(script []byte, net *chaincfg.Params) (*Address, error) {
	return NewAddressScriptHash(primitives.Hash160(script), net)
}

// Hash160 returns the address's 20-byte HASH160 payload.
func (a *Address) Hash160() *[20]byte {
	return &a.hash
}

// IsScriptHash reports whether this address identifies a P2SH
// destination rather than a P2PKH one.
func (a *Address) IsScriptHash() bool {
	return a.isP2SH
}

// String returns the Base58Check encoding of the address.
func (a *Address) String() string {
	return encodeAddress(a.hash[:], a.netID)
}

// IsForNet reports whether the address's version byte matches net.
func (a *Address) IsForNet(net *chaincfg.Params) bool {
	if a.isP2SH {
		return a.netID == net.ScriptHashAddrID
	}
	return a.netID == net.PubKeyHashAddrID
}

// encodeAddress Base58Check-encodes a single version byte followed by
// the 20-byte hash payload.
func encodeAddress(hash160 []byte, netID byte) string {
	b := make([]byte, 0, 1+len(hash160)+4)
	b = append(b, netID)
	b = append(b, hash160...)
	cksum := chainhash.HashB(b)
	b = append(b, cksum[:4]...)
	return base58.Encode(b)
}

// DecodeAddress decodes a Base58Check-encoded address string, validating
// it is for the given network and returning the appropriate Address.
func DecodeAddress(addr string, net *chaincfg.Params) (*Address, error) {
	decoded := base58.Decode(addr)
	if len(decoded) != 1+20+4 {
		return nil, fmt.Errorf("decoded address has invalid length %d", len(decoded))
	}

	payload := decoded[:1+20]
	cksum := chainhash.HashB(payload)[:4]
	if !bytes.Equal(cksum, decoded[21:]) {
		return nil, fmt.Errorf("checksum mismatch")
	}

	netID := decoded[0]
	switch netID {
	case net.PubKeyHashAddrID:
		return NewAddressPubKeyHash(decoded[1:21], net)
	case net.ScriptHashAddrID:
		return NewAddressScriptHash(decoded[1:21], net)
	default:
		return nil, fmt.Errorf("address version %#02x is not valid for network %s", netID, net.Name)
	}
}

// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package address_test

import (
	"bytes"
	"testing"

	"github.com/ndau-spv/spvcore/address"
	"github.com/ndau-spv/spvcore/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

func TestAddressPubKeyHashRoundTrip(t *testing.T) {
	net := chaincfg.MainNetParams()
	hash := bytes.Repeat([]byte{0x11}, 20)

	addr, err := address.NewAddressPubKeyHash(hash, net)
	if err != nil {
		t.Fatalf("NewAddressPubKeyHash: %v", err)
	}
	encoded := addr.String()

	decoded, err := address.DecodeAddress(encoded, net)
	if err != nil {
		t.Fatalf("DecodeAddress: %v", err)
	}
	if decoded.IsScriptHash() {
		t.Fatalf("decoded address should not be P2SH")
	}
	if !bytes.Equal(decoded.Hash160()[:], hash) {
		t.Fatalf("hash mismatch after round trip")
	}
	if !decoded.IsForNet(net) {
		t.Fatalf("decoded address should be valid for mainnet")
	}
}

func TestAddressScriptHashRoundTrip(t *testing.T) {
	net := chaincfg.TestNet3Params()
	hash := bytes.Repeat([]byte{0x22}, 20)

	addr, err := address.NewAddressScriptHash(hash, net)
	if err != nil {
		t.Fatalf("NewAddressScriptHash: %v", err)
	}
	decoded, err := address.DecodeAddress(addr.String(), net)
	if err != nil {
		t.Fatalf("DecodeAddress: %v", err)
	}
	if !decoded.IsScriptHash() {
		t.Fatalf("decoded address should be P2SH")
	}
}

func TestDecodeAddressRejectsWrongNetwork(t *testing.T) {
	main := chaincfg.MainNetParams()
	test := chaincfg.TestNet3Params()
	addr, _ := address.NewAddressPubKeyHash(bytes.Repeat([]byte{0x33}, 20), main)

	if _, err := address.DecodeAddress(addr.String(), test); err == nil {
		t.Fatalf("expected error decoding mainnet address against testnet params")
	}
}

func TestWIFRoundTrip(t *testing.T) {
	privKey, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	net := chaincfg.MainNetParams()

	wif, err := address.NewWIF(privKey, net, true)
	if err != nil {
		t.Fatalf("NewWIF: %v", err)
	}
	encoded := wif.String()

	decoded, err := address.DecodeWIF(encoded)
	if err != nil {
		t.Fatalf("DecodeWIF: %v", err)
	}
	if !decoded.IsForNet(net) {
		t.Fatalf("decoded WIF should be valid for mainnet")
	}
	if !bytes.Equal(decoded.PrivKey.Serialize(), privKey.Serialize()) {
		t.Fatalf("private key mismatch after round trip")
	}
	if !decoded.CompressPubKey {
		t.Fatalf("compressed flag lost after round trip")
	}
}

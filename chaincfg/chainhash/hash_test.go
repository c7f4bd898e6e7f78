// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainhash_test

import (
	"bytes"
	"testing"

	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
)

func TestHashRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte{0xab}, 32)
	h, err := chainhash.NewHash(data)
	if err != nil {
		t.Fatalf("NewHash: %v", err)
	}
	if !bytes.Equal(h.CloneBytes(), data) {
		t.Fatalf("CloneBytes mismatch")
	}

	str := h.String()
	h2, err := chainhash.NewHashFromStr(str)
	if err != nil {
		t.Fatalf("NewHashFromStr: %v", err)
	}
	if !h.IsEqual(h2) {
		t.Fatalf("round-trip through string changed hash: %v != %v", h, h2)
	}
}

func TestHashHDeterministic(t *testing.T) {
	got := chainhash.HashH(nil)
	again := chainhash.HashH([]byte{})
	if got != again {
		t.Fatalf("HashH not deterministic")
	}
}

func TestDecodeOddLength(t *testing.T) {
	var h chainhash.Hash
	if err := chainhash.Decode(&h, "abc"); err != nil {
		t.Fatalf("Decode odd-length string: %v", err)
	}
}

func TestDecodeTooLong(t *testing.T) {
	var h chainhash.Hash
	long := make([]byte, chainhash.MaxHashStringSize+2)
	for i := range long {
		long[i] = 'a'
	}
	if err := chainhash.Decode(&h, string(long)); err == nil {
		t.Fatalf("expected error for oversized hash string")
	}
}

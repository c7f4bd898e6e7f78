// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package primitives_test

import (
	"bytes"
	"testing"

	"github.com/ndau-spv/spvcore/primitives"
)

func TestVarIntRoundTrip(t *testing.T) {
	tests := []struct {
		val  uint64
		size int
	}{
		{0, 1},
		{0xfc, 1},
		{0xfd, 3},
		{0xffff, 3},
		{0x10000, 5},
		{0xffffffff, 5},
		{0x100000000, 9},
		{^uint64(0), 9},
	}

	for _, tc := range tests {
		if got := primitives.VarIntSerializeSize(tc.val); got != tc.size {
			t.Errorf("VarIntSerializeSize(%d) = %d, want %d", tc.val, got, tc.size)
		}

		var buf bytes.Buffer
		if err := primitives.WriteVarInt(&buf, tc.val); err != nil {
			t.Fatalf("WriteVarInt(%d): %v", tc.val, err)
		}
		if buf.Len() != tc.size {
			t.Fatalf("WriteVarInt(%d) wrote %d bytes, want %d", tc.val, buf.Len(), tc.size)
		}

		got, n, err := primitives.ReadVarInt(&buf)
		if err != nil {
			t.Fatalf("ReadVarInt(%d): %v", tc.val, err)
		}
		if got != tc.val {
			t.Errorf("ReadVarInt round-trip = %d, want %d", got, tc.val)
		}
		if n != tc.size {
			t.Errorf("ReadVarInt consumed %d bytes, want %d", n, tc.size)
		}
	}
}

func TestHash160Length(t *testing.T) {
	h := primitives.Hash160([]byte("a public key"))
	if len(h) != 20 {
		t.Fatalf("Hash160 length = %d, want 20", len(h))
	}
}

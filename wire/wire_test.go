// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
	"github.com/ndau-spv/spvcore/wire"
)

func TestBlockHeaderRoundTrip(t *testing.T) {
	prev := chainhash.HashH([]byte("prev"))
	merkle := chainhash.HashH([]byte("merkle"))
	h := &wire.BlockHeader{
		Version:    1,
		PrevBlock:  prev,
		MerkleRoot: merkle,
		Timestamp:  time.Unix(1231006505, 0),
		Bits:       0x1d00ffff,
		Nonce:      2083236893,
	}

	var buf bytes.Buffer
	if err := h.Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if buf.Len() != wire.BlockHeaderLen {
		t.Fatalf("serialized header length = %d, want %d", buf.Len(), wire.BlockHeaderLen)
	}

	var got wire.BlockHeader
	if err := got.Deserialize(&buf); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got.Version != h.Version || got.Bits != h.Bits || got.Nonce != h.Nonce {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
	if got.BlockHash() != h.BlockHash() {
		t.Fatalf("hash mismatch after round trip")
	}
}

func TestMsgTxRoundTrip(t *testing.T) {
	tx := &wire.MsgTx{
		Version: 1,
		TxIn: []*wire.TxIn{{
			PreviousOutPoint: wire.OutPoint{Hash: chainhash.HashH([]byte("x")), Index: 0},
			SignatureScript:  []byte{0x01, 0x02},
			Sequence:         0xffffffff,
		}},
		TxOut: []*wire.TxOut{{
			Value:    5000000000,
			PkScript: []byte{0x76, 0xa9, 0x14},
		}},
		LockTime: 0,
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	orig := append([]byte(nil), buf.Bytes()...)

	var got wire.MsgTx
	if err := got.Deserialize(bytes.NewReader(orig)); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}

	var reencoded bytes.Buffer
	if err := got.Serialize(&reencoded); err != nil {
		t.Fatalf("re-Serialize: %v", err)
	}
	if !bytes.Equal(orig, reencoded.Bytes()) {
		t.Fatalf("re-encoding not bit-identical:\norig: %x\ngot:  %x", orig, reencoded.Bytes())
	}
	if tx.TxHash() != got.TxHash() {
		t.Fatalf("txid mismatch after round trip")
	}
}

func TestMsgTxWitnessExcludedFromTxID(t *testing.T) {
	base := &wire.MsgTx{
		Version: 1,
		TxIn: []*wire.TxIn{{
			PreviousOutPoint: wire.OutPoint{Hash: chainhash.HashH([]byte("y")), Index: 1},
			Sequence:         0xffffffff,
		}},
		TxOut: []*wire.TxOut{{Value: 1000, PkScript: []byte{0x51}}},
	}
	withWitness := *base
	withWitness.TxIn = []*wire.TxIn{{
		PreviousOutPoint: base.TxIn[0].PreviousOutPoint,
		Sequence:         base.TxIn[0].Sequence,
		Witness:          [][]byte{{0xde, 0xad}},
	}}

	if base.TxHash() != withWitness.TxHash() {
		t.Fatalf("witness data must not affect txid")
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	const magic = uint32(0xd9b4bef9)
	ping := &wire.MsgPing{Nonce: 0x1122334455667788}

	var buf bytes.Buffer
	if err := wire.WriteMessage(&buf, ping, wire.ProtocolVersion, magic); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	msg, _, err := wire.ReadMessage(&buf, wire.ProtocolVersion, magic)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	got, ok := msg.(*wire.MsgPing)
	if !ok {
		t.Fatalf("ReadMessage returned %T, want *MsgPing", msg)
	}
	if got.Nonce != ping.Nonce {
		t.Fatalf("nonce mismatch: got %d, want %d", got.Nonce, ping.Nonce)
	}
}

func TestEnvelopeRejectsWrongNetwork(t *testing.T) {
	var buf bytes.Buffer
	if err := wire.WriteMessage(&buf, &wire.MsgVerAck{}, wire.ProtocolVersion, 0x01020304); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if _, _, err := wire.ReadMessage(&buf, wire.ProtocolVersion, 0x05060708); err == nil {
		t.Fatalf("expected network mismatch error")
	}
}
